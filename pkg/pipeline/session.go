package pipeline

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// session owns one live connection. Queries are written back to back by
// writeLoop and responses are matched to them in send order by readLoop.
//
// inflight, outbox, idle, idleGen and closing are guarded by the
// factory mutex.
type session struct {
	f    *Factory
	conn net.Conn
	br   *bufio.Reader
	bw   *bufio.Writer
	peer string

	inflight []*Query
	outbox   []*Query
	idle     *time.Timer
	idleGen  uint64
	closing  bool

	wake chan struct{}
	done chan struct{}
}

func newSession(f *Factory, conn net.Conn) *session {
	return &session{
		f:    f,
		conn: conn,
		br:   bufio.NewReader(conn),
		bw:   bufio.NewWriter(conn),
		peer: conn.RemoteAddr().String(),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// connectionMade registers the session with its factory and starts the
// I/O loops.
func (s *session) connectionMade() {
	f := s.f
	f.mu.Lock()
	f.connecting = false
	if f.closed {
		f.mu.Unlock()
		s.conn.Close()
		return
	}
	f.attach(s)
	f.mu.Unlock()

	go s.writeLoop()
	go s.readLoop()
}

// sendNext moves the head of the pending queue to the in-flight list and
// schedules it for writing. Callers hold the factory lock and have
// checked that the queue is not empty.
func (s *session) sendNext() {
	s.cancelIdle()

	q, err := s.f.dequeueLocked()
	if err != nil {
		panic(err)
	}
	s.inflight = append(s.inflight, q)
	s.outbox = append(s.outbox, q)
	s.f.cfg.logger.Debugf("pipeline: %s: sending %s", s.peer, q.Path)

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		s.f.mu.Lock()
		batch := s.outbox
		s.outbox = nil
		s.f.mu.Unlock()

		for _, q := range batch {
			s.writeRequest(q)
		}
		if err := s.bw.Flush(); err != nil {
			s.f.cfg.logger.Debugf("pipeline: %s: write: %v", s.peer, err)
			// readLoop notices the closed conn and requeues.
			s.conn.Close()
			return
		}
	}
}

// writeRequest buffers the request head for q. Write errors are sticky
// in the bufio.Writer and surface at Flush.
func (s *session) writeRequest(q *Query) {
	w := s.bw
	fmt.Fprintf(w, "GET %s HTTP/1.1\r\n", q.Path)
	writeHeader(w, "User-Agent", s.f.cfg.userAgent)
	writeHeader(w, "Host", q.Host)
	writeHeader(w, "Accept-Encoding", "gzip")
	writeHeader(w, "Connection", "Keep-Alive")
	writeHeader(w, "Content-Type", "application/octet-stream")
	if q.User != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(q.User + ":" + q.Password))
		writeHeader(w, "Authorization", "Basic "+auth)
	}
	w.WriteString("\r\n")
}

func writeHeader(w *bufio.Writer, key, value string) {
	w.WriteString(key)
	w.WriteString(": ")
	w.WriteString(value)
	w.WriteString("\r\n")
}

func (s *session) readLoop() {
	var err error
	for err == nil {
		var resp *http.Response
		resp, err = http.ReadResponse(s.br, nil)
		if err == nil {
			err = s.handleResponse(resp)
		}
	}
	s.connectionLost(err)
}

// handleResponse settles the query at the head of the in-flight list.
// A non-nil error ends the session.
func (s *session) handleResponse(resp *http.Response) error {
	f := s.f

	f.mu.Lock()
	if len(s.inflight) == 0 {
		f.mu.Unlock()
		return ErrUnexpectedResponse
	}
	q := s.inflight[0]

	if resp.StatusCode != http.StatusOK {
		s.inflight = s.inflight[1:]
		// The pipeline is not trusted to stay in sync after an error.
		s.closeLocked()
		f.notifyLocked()
		f.mu.Unlock()

		f.cfg.logger.Debugf("pipeline: %s: failed %s: %s", s.peer, q.Path, resp.Status)
		err := &StatusError{Code: resp.StatusCode, Message: statusMessage(resp)}
		q.fail(err)
		return err
	}
	if resp.Close {
		// The peer announced it will close; new work waits for the next
		// connection.
		s.closing = true
	}
	f.mu.Unlock()

	// A requeued query is decided again by its new response.
	q.decode = isGzip(resp.Header)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return err
	}
	var decodeErr error
	if q.decode {
		body, decodeErr = gunzip(body)
	}

	f.mu.Lock()
	s.inflight[0] = nil
	s.inflight = s.inflight[1:]
	switch {
	case len(s.inflight) > 0:
	case s.closing:
		// Hang up ourselves; queries submitted meanwhile wait for the
		// next connection.
		s.closeLocked()
	case !f.hasPendingLocked():
		s.armIdle()
	}
	f.notifyLocked()
	f.mu.Unlock()

	f.cfg.logger.Debugf("pipeline: %s: responded %s", s.peer, q.Path)
	if decodeErr != nil {
		q.fail(decodeErr)
	} else {
		q.succeed(body)
	}
	return nil
}

func statusMessage(resp *http.Response) string {
	return strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" ")
}

// connectionLost runs once, from readLoop, when the connection is gone.
// Unanswered queries go back to the front of the pending queue.
func (s *session) connectionLost(cause error) {
	s.conn.Close()
	close(s.done)

	if errors.Is(cause, io.EOF) || errors.Is(cause, io.ErrUnexpectedEOF) {
		cause = fmt.Errorf("%w: closed by peer", ErrConnectionLost)
	}

	f := s.f
	f.mu.Lock()
	s.cancelIdle()
	s.closing = true
	requeued := s.inflight
	s.inflight = nil
	s.outbox = nil
	if len(requeued) > 0 {
		f.cfg.logger.Debugf("pipeline: %s: putting back %d queries: %v", s.peer, len(requeued), cause)
		f.requeueFrontLocked(requeued)
	}
	f.detach(s)
	f.cfg.observer.ConnectionClosed(len(requeued))

	var failed []*Query
	if f.closed {
		failed = f.queue
		f.queue = nil
	} else if delay, retry := f.cfg.policy.ConnectionLost(f.hasPendingLocked()); retry {
		f.cfg.logger.Debugf("pipeline: reconnecting in %s for %d pending queries", delay, len(f.queue))
		f.startConnectLocked(delay)
	}
	f.notifyLocked()
	f.mu.Unlock()

	for _, q := range failed {
		q.fail(ErrClosed)
	}
}

// armIdle starts the idle timer. It runs only when nothing is in flight
// or pending.
func (s *session) armIdle() {
	timeout := s.f.cfg.idleTimeout
	if timeout <= 0 {
		return
	}
	s.cancelIdle()
	gen := s.idleGen
	s.idle = time.AfterFunc(timeout, func() {
		s.idleExpired(gen)
	})
}

func (s *session) cancelIdle() {
	if s.idle != nil {
		s.idle.Stop()
		s.idle = nil
	}
	s.idleGen++
}

func (s *session) idleExpired(gen uint64) {
	f := s.f
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != s.idleGen || s.closing || len(s.inflight) > 0 {
		return
	}
	s.idle = nil
	f.cfg.logger.Debugf("pipeline: %s: idle, closing", s.peer)
	s.closeLocked()
}

// closeLocked marks the session as closing and closes the transport.
// readLoop then runs connectionLost.
func (s *session) closeLocked() {
	s.closing = true
	s.conn.Close()
}
