package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyQueue is returned by DequeueNext when nothing is pending.
	ErrEmptyQueue = errors.New("pipeline: empty queue")

	// ErrAlreadyConnected is the panic value of attaching a second session
	// to a factory.
	ErrAlreadyConnected = errors.New("pipeline: factory already has a connection")

	// ErrNotAttached is the panic value of detaching a session that is not
	// the factory's current one.
	ErrNotAttached = errors.New("pipeline: session is not attached")

	// ErrConnectionLost is the cause logged when a connection goes away
	// with queries in flight. Those queries are requeued, not failed.
	ErrConnectionLost = errors.New("pipeline: connection lost")

	// ErrClosed fails queries still queued when the endpoint is closed.
	ErrClosed = errors.New("pipeline: endpoint closed")

	// ErrUnexpectedResponse means the peer sent a response with nothing
	// in flight.
	ErrUnexpectedResponse = errors.New("pipeline: response without request")
)

// StatusError is the failure of a query answered with a non-200 status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pipeline: bad status %d %s", e.Code, e.Message)
}

// ConnectError is the failure of a connection attempt.
type ConnectError struct {
	// Op is "resolve", "dial" or "handshake".
	Op   string
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("pipeline: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
