package pipeline

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"time"
)

const (
	// DefaultIdleTimeout is how long an idle connection stays open.
	DefaultIdleTimeout = 300 * time.Second

	// DefaultConnectTimeout bounds resolving, dialing and the TLS
	// handshake of one attempt.
	DefaultConnectTimeout = 60 * time.Second

	// DefaultUserAgent is sent when Options.UserAgent is empty.
	DefaultUserAgent = "kapipe/1.0"
)

// Dialer opens transport connections. *net.Dialer implements it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Resolver maps a host name to addresses. *net.Resolver implements it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Options configures an Endpoint. The zero value is usable.
type Options struct {
	// User and Password override credentials embedded in the URL. When a
	// user is set, requests carry Basic authorization.
	User     string
	Password string

	// Policy defaults to RetryForever.
	Policy  PolicyKind
	Backoff BackoffConfig

	// IdleTimeout defaults to DefaultIdleTimeout; a negative value keeps
	// idle connections open.
	IdleTimeout    time.Duration
	ConnectTimeout time.Duration
	UserAgent      string

	// TLSConfig is cloned for https targets. ServerName defaults to the
	// target host.
	TLSConfig *tls.Config
	Dialer    Dialer
	Resolver  Resolver

	Logger   Logger
	Observer Observer
}

// Endpoint submits queries to one origin over at most one pipelined
// connection, opened on demand.
type Endpoint struct {
	target         Target
	hostHeader     string
	connectTimeout time.Duration
	tlsConfig      *tls.Config
	dialer         Dialer
	resolver       Resolver
	factory        *Factory
}

// NewEndpoint parses rawURL and prepares an endpoint for it. No
// connection is made until the first Submit.
func NewEndpoint(rawURL string, opts Options) (*Endpoint, error) {
	target, err := ParseTarget(rawURL, opts.User, opts.Password)
	if err != nil {
		return nil, err
	}

	e := &Endpoint{
		target:         target,
		hostHeader:     hostHeader(target),
		connectTimeout: opts.ConnectTimeout,
		tlsConfig:      opts.TLSConfig,
		dialer:         opts.Dialer,
		resolver:       opts.Resolver,
	}
	if e.connectTimeout <= 0 {
		e.connectTimeout = DefaultConnectTimeout
	}
	if e.dialer == nil {
		e.dialer = &net.Dialer{}
	}
	if e.resolver == nil {
		e.resolver = net.DefaultResolver
	}

	idle := opts.IdleTimeout
	if idle == 0 {
		idle = DefaultIdleTimeout
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	e.factory = newFactory(factoryConfig{
		policy:      NewPolicy(opts.Policy, opts.Backoff),
		dial:        e.dial,
		idleTimeout: idle,
		userAgent:   ua,
		logger:      opts.Logger,
		observer:    opts.Observer,
	})
	return e, nil
}

// hostHeader omits the port when it is the scheme default.
func hostHeader(t Target) string {
	if (t.Secure && t.Port == 443) || (!t.Secure && t.Port == 80) {
		return t.Host
	}
	return t.Address()
}

// Submit queues a GET for path and returns its pending result. Queries
// are sent in submission order and settle in the same order.
func (e *Endpoint) Submit(path string) *Query {
	q := NewQuery(path, e.hostHeader, e.target.User, e.target.Password)
	e.factory.Enqueue(q)
	return q
}

// Do submits path and waits for its body.
func (e *Endpoint) Do(ctx context.Context, path string) ([]byte, error) {
	return e.Submit(path).Wait(ctx)
}

// Target returns the parsed target.
func (e *Endpoint) Target() Target {
	return e.target
}

// Factory returns the endpoint's queue.
func (e *Endpoint) Factory() *Factory {
	return e.factory
}

// Pending returns the number of queries not yet sent.
func (e *Endpoint) Pending() int {
	return e.factory.Pending()
}

// Shutdown closes the current connection, if any.
func (e *Endpoint) Shutdown() {
	e.factory.Shutdown()
}

// Close stops the endpoint and fails every unanswered query with
// ErrClosed.
func (e *Endpoint) Close() error {
	e.factory.Close()
	return nil
}

func (e *Endpoint) dial(ctx context.Context) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, e.connectTimeout)
	defer cancel()

	addrs, err := e.resolver.LookupHost(ctx, e.target.Host)
	if err == nil && len(addrs) == 0 {
		err = errors.New("no addresses")
	}
	if err != nil {
		return nil, &ConnectError{Op: "resolve", Addr: e.target.Host, Err: err}
	}

	addr := net.JoinHostPort(addrs[0], strconv.Itoa(e.target.Port))
	conn, err := e.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectError{Op: "dial", Addr: addr, Err: err}
	}
	if !e.target.Secure {
		return conn, nil
	}

	var cfg *tls.Config
	if e.tlsConfig != nil {
		cfg = e.tlsConfig.Clone()
	} else {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = e.target.Host
	}
	tconn := tls.Client(conn, cfg)
	if err := tconn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, &ConnectError{Op: "handshake", Addr: addr, Err: err}
	}
	return tconn, nil
}
