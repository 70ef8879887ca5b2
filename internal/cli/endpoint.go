package cli

import (
	"crypto/tls"

	"github.com/apex/log"
	"github.com/kapipe/internal/config"
	"github.com/kapipe/internal/replay"
	"github.com/kapipe/pkg/pipeline"
)

// newEndpoint builds the pipelined endpoint described by cfg.
func newEndpoint(cfg config.Target, observer pipeline.Observer) (*pipeline.Endpoint, error) {
	opts := pipeline.Options{
		User:           cfg.User,
		Password:       cfg.Password,
		Policy:         cfg.Policy(),
		Backoff:        cfg.Backoff,
		IdleTimeout:    cfg.IdleTimeout,
		ConnectTimeout: cfg.ConnectTimeout,
		UserAgent:      cfg.UserAgent,
		Logger:         log.Log,
		Observer:       observer,
	}
	if cfg.TLSInsecure {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return pipeline.NewEndpoint(cfg.URL, opts)
}

// endpointSet is the endpoints of one replay, each owning its own
// pipelined connection.
type endpointSet []*pipeline.Endpoint

// newEndpoints builds n endpoints for cfg.
func newEndpoints(cfg config.Target, n int, observer pipeline.Observer) (endpointSet, error) {
	set := make(endpointSet, 0, n)
	for i := 0; i < n; i++ {
		e, err := newEndpoint(cfg, observer)
		if err != nil {
			set.Close()
			return nil, err
		}
		set = append(set, e)
	}
	return set, nil
}

// Clients returns the endpoints as replay clients.
func (s endpointSet) Clients() []replay.Client {
	clients := make([]replay.Client, len(s))
	for i, e := range s {
		clients[i] = e
	}
	return clients
}

// Pending returns the queries not yet sent, over all endpoints.
func (s endpointSet) Pending() int {
	n := 0
	for _, e := range s {
		n += e.Pending()
	}
	return n
}

// InFlight returns the queries awaiting an answer, over all endpoints.
func (s endpointSet) InFlight() int {
	n := 0
	for _, e := range s {
		n += e.Factory().InFlight()
	}
	return n
}

func (s endpointSet) Close() {
	for _, e := range s {
		e.Close()
	}
}
