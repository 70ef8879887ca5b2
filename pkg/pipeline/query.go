package pipeline

import (
	"context"
	"sync/atomic"
)

// Query is one logical request and its eventual result.
//
// The result settles exactly once, with either a body or an error. The
// factory owns a query while it is pending, the session while it is in
// flight; callers only ever read it.
type Query struct {
	Path     string
	Host     string
	User     string
	Password string

	// decode is set when the response carried Content-Encoding: gzip.
	decode bool

	settled atomic.Bool
	done    chan struct{}
	body    []byte
	err     error
}

// NewQuery creates a pending query for path on host.
func NewQuery(path, host, user, password string) *Query {
	return &Query{
		Path:     path,
		Host:     host,
		User:     user,
		Password: password,
		done:     make(chan struct{}),
	}
}

// Done is closed once the query has settled.
func (q *Query) Done() <-chan struct{} {
	return q.done
}

// Result returns the body or the failure. It is only meaningful after
// Done is closed; before that it returns nil, nil.
func (q *Query) Result() ([]byte, error) {
	select {
	case <-q.done:
		return q.body, q.err
	default:
		return nil, nil
	}
}

// Wait blocks until the query settles or ctx is done. An expired ctx
// does not cancel the query.
func (q *Query) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-q.done:
		return q.body, q.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Query) succeed(body []byte) {
	q.settle(body, nil)
}

func (q *Query) fail(err error) {
	q.settle(nil, err)
}

func (q *Query) settle(body []byte, err error) {
	if !q.settled.CompareAndSwap(false, true) {
		panic("pipeline: query " + q.Path + " settled twice")
	}
	q.body = body
	q.err = err
	close(q.done)
}
