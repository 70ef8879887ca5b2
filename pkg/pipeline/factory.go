package pipeline

import (
	"context"
	"net"
	"sync"
	"time"
)

type dialFunc func(ctx context.Context) (net.Conn, error)

type factoryConfig struct {
	policy      Policy
	dial        dialFunc
	idleTimeout time.Duration
	userAgent   string
	logger      Logger
	observer    Observer
}

// Factory owns the pending queue of one target and its single
// connection. It starts connection attempts on demand and hands queued
// queries to the attached session.
//
// One mutex guards the queue, the current session and that session's
// in-flight list, so enqueueing never races sending, receiving or
// closing.
type Factory struct {
	mu         sync.Mutex
	queue      []*Query
	current    *session
	connecting bool
	closed     bool

	cfg    factoryConfig
	ctx    context.Context
	cancel context.CancelFunc
}

func newFactory(cfg factoryConfig) *Factory {
	cfg.logger = validLoggerOrDefault(cfg.logger)
	if cfg.observer == nil {
		cfg.observer = NopObserver{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Factory{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Enqueue appends q to the pending queue. A live connection sends it
// right away; without one, a connection attempt is started unless one is
// already underway.
func (f *Factory) Enqueue(q *Query) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		q.fail(ErrClosed)
		return
	}

	f.queue = append(f.queue, q)
	f.cfg.logger.Debugf("pipeline: enqueue %s (pending %d)", q.Path, len(f.queue))

	switch {
	case f.current != nil && !f.current.closing:
		f.current.sendNext()
	case f.current == nil && !f.connecting:
		f.startConnectLocked(0)
	}
	f.notifyLocked()
	f.mu.Unlock()
}

// DequeueNext pops the head of the pending queue.
func (f *Factory) DequeueNext() (*Query, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dequeueLocked()
}

func (f *Factory) dequeueLocked() (*Query, error) {
	if len(f.queue) == 0 {
		return nil, ErrEmptyQueue
	}
	q := f.queue[0]
	f.queue[0] = nil
	f.queue = f.queue[1:]
	return q, nil
}

// HasPending reports whether any query waits to be sent.
func (f *Factory) HasPending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasPendingLocked()
}

func (f *Factory) hasPendingLocked() bool {
	return len(f.queue) > 0
}

// Pending returns the number of queries waiting to be sent.
func (f *Factory) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// InFlight returns the number of queries sent on the current connection
// and not yet answered.
func (f *Factory) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return 0
	}
	return len(f.current.inflight)
}

// RequeueFront puts qs, in order, ahead of everything pending.
func (f *Factory) RequeueFront(qs []*Query) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requeueFrontLocked(qs)
}

func (f *Factory) requeueFrontLocked(qs []*Query) {
	queue := make([]*Query, 0, len(qs)+len(f.queue))
	queue = append(queue, qs...)
	f.queue = append(queue, f.queue...)
}

// attach makes s the current session and drains the pending queue into
// it. At most one session per factory exists at a time.
func (f *Factory) attach(s *session) {
	if f.current != nil {
		panic(ErrAlreadyConnected)
	}
	f.current = s
	f.cfg.policy.Connected()
	f.cfg.observer.ConnectionOpened()
	f.cfg.logger.Debugf("pipeline: connection made %s", s.peer)

	for f.hasPendingLocked() {
		s.sendNext()
	}
	if len(s.inflight) == 0 {
		s.armIdle()
	}
	f.notifyLocked()
}

func (f *Factory) detach(s *session) {
	if f.current != s {
		panic(ErrNotAttached)
	}
	f.current = nil
	f.cfg.logger.Debugf("pipeline: connection lost %s", s.peer)
}

// Shutdown closes the current connection, if any. What happens next
// depends on the reconnection policy and on pending work.
func (f *Factory) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current != nil {
		f.current.closeLocked()
	}
}

// Close shuts the factory down for good. Pending queries, and queries
// in flight once their connection is gone, fail with ErrClosed.
func (f *Factory) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.cancel()
	failed := f.queue
	f.queue = nil
	if f.current != nil {
		f.current.closeLocked()
	}
	f.notifyLocked()
	f.mu.Unlock()

	for _, q := range failed {
		q.fail(ErrClosed)
	}
}

func (f *Factory) startConnectLocked(delay time.Duration) {
	f.connecting = true
	go f.connect(delay)
}

// connect waits for delay and then makes one connection attempt.
func (f *Factory) connect(delay time.Duration) {
	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-f.ctx.Done():
			t.Stop()
			f.mu.Lock()
			f.connecting = false
			f.mu.Unlock()
			return
		}
	}

	f.cfg.observer.ConnectAttempt()
	conn, err := f.cfg.dial(f.ctx)
	if err != nil {
		f.connectFailed(err)
		return
	}
	newSession(f, conn).connectionMade()
}

func (f *Factory) connectFailed(err error) {
	f.cfg.observer.ConnectFailed(err)

	f.mu.Lock()
	if f.closed {
		f.connecting = false
		f.mu.Unlock()
		return
	}

	if delay, retry := f.cfg.policy.ConnectFailed(err); retry {
		f.cfg.logger.Warnf("pipeline: connect failed, retrying in %s: %v", delay, err)
		go f.connect(delay)
		f.mu.Unlock()
		return
	}

	f.cfg.logger.Warnf("pipeline: connect failed, failing %d queries: %v", len(f.queue), err)
	failed := f.queue
	f.queue = nil
	f.connecting = false
	f.notifyLocked()
	f.mu.Unlock()

	for _, q := range failed {
		q.fail(err)
	}
}

func (f *Factory) notifyLocked() {
	inflight := 0
	if f.current != nil {
		inflight = len(f.current.inflight)
	}
	f.cfg.observer.QueueChanged(len(f.queue), inflight)
}
