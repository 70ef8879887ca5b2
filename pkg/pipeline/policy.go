package pipeline

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// PolicyKind selects how an endpoint reacts to connection failures.
type PolicyKind string

const (
	// RetryForever keeps reconnecting with a bounded backoff.
	RetryForever PolicyKind = "retry_forever"

	// FailFast fails all queued work on the first connect failure.
	FailFast PolicyKind = "fail_fast"
)

// BackoffConfig parameterizes the retry-forever reconnect delay.
type BackoffConfig struct {
	Initial time.Duration `yaml:"initial"`
	Factor  float64       `yaml:"factor"`
	Max     time.Duration `yaml:"max"`
	Jitter  float64       `yaml:"jitter"`
}

// DefaultBackoff returns the reconnect schedule used when none is given:
// a constant one second interval.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		Initial: time.Second,
		Factor:  1,
		Max:     800 * time.Second,
		Jitter:  0,
	}
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	d := DefaultBackoff()
	if c.Initial <= 0 {
		c.Initial = d.Initial
	}
	if c.Factor < 1 {
		c.Factor = d.Factor
	}
	if c.Max <= 0 {
		c.Max = d.Max
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	return c
}

// Policy decides whether and when the factory opens another connection.
// Its methods are called with the factory lock held.
type Policy interface {
	// Connected is called when a connection completes.
	Connected()

	// ConnectFailed returns the delay before the next attempt, or false
	// to give up and fail every pending query with err.
	ConnectFailed(err error) (time.Duration, bool)

	// ConnectionLost returns the delay before reconnecting, or false to
	// stay idle until new work arrives.
	ConnectionLost(pending bool) (time.Duration, bool)
}

// NewPolicy returns the policy for kind. An empty kind is RetryForever.
func NewPolicy(kind PolicyKind, cfg BackoffConfig) Policy {
	if kind == FailFast {
		return failFast{}
	}
	return newRetryForever(cfg)
}

type retryForever struct {
	b *backoff.ExponentialBackOff
}

func newRetryForever(cfg BackoffConfig) *retryForever {
	cfg = cfg.withDefaults()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.Initial
	b.Multiplier = cfg.Factor
	b.MaxInterval = cfg.Max
	b.RandomizationFactor = cfg.Jitter
	b.MaxElapsedTime = 0
	b.Reset()
	return &retryForever{b: b}
}

func (p *retryForever) Connected() {
	p.b.Reset()
}

func (p *retryForever) ConnectFailed(err error) (time.Duration, bool) {
	return p.b.NextBackOff(), true
}

func (p *retryForever) ConnectionLost(pending bool) (time.Duration, bool) {
	if !pending {
		return 0, false
	}
	return p.b.NextBackOff(), true
}

type failFast struct{}

func (failFast) Connected() {}

func (failFast) ConnectFailed(err error) (time.Duration, bool) {
	return 0, false
}

// ConnectionLost makes one fresh attempt for requeued work; if that
// attempt fails, ConnectFailed fails everything.
func (failFast) ConnectionLost(pending bool) (time.Duration, bool) {
	return 0, pending
}
