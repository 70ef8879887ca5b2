package pipeline

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

// fakeResponse is what fakeServer writes for one request.
type fakeResponse struct {
	status int
	header map[string]string
	body   []byte

	// delay holds the answer back. cut > 0 sends only cut bytes of the
	// body and then drops the connection.
	delay time.Duration
	cut   int
}

func (r *fakeResponse) bytes() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", r.status, http.StatusText(r.status))
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(r.body))
	for k, v := range r.header {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	b.WriteString("\r\n")
	if r.cut > 0 {
		b.Write(r.body[:r.cut])
	} else {
		b.Write(r.body)
	}
	return b.Bytes()
}

func ok(body string) *fakeResponse {
	return &fakeResponse{status: http.StatusOK, body: []byte(body)}
}

func gzipped(t *testing.T, body []byte) *fakeResponse {
	var b bytes.Buffer
	zw := gzip.NewWriter(&b)
	_, err := zw.Write(body)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return &fakeResponse{
		status: http.StatusOK,
		header: map[string]string{"Content-Encoding": "gzip"},
		body:   b.Bytes(),
	}
}

// hold tells fakeServer to read on without answering.
var hold = &fakeResponse{}

// handlerFunc answers a request on connection conn. A nil response closes
// the connection without answering.
type handlerFunc func(conn int, req *http.Request) *fakeResponse

// fakeServer is a pipelining HTTP/1.1 server. It records the paths seen
// on every connection and, with batch > 1, writes the answers of batch
// requests with a single Write.
type fakeServer struct {
	ln      net.Listener
	handler handlerFunc
	batch   int

	mu     sync.Mutex
	paths  [][]string
	reqs   []*http.Request
	closed chan int
}

func newFakeServer(t *testing.T, handler handlerFunc) *fakeServer {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeServer{
		ln:      ln,
		handler: handler,
		closed:  make(chan int, 64),
	}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeServer) URL() string {
	return "http://" + s.ln.Addr().String()
}

func (s *fakeServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		idx := len(s.paths)
		s.paths = append(s.paths, nil)
		s.mu.Unlock()
		go s.serveConn(idx, conn)
	}
}

func (s *fakeServer) serveConn(idx int, conn net.Conn) {
	defer func() {
		conn.Close()
		s.closed <- idx
	}()

	br := bufio.NewReader(conn)
	var out []byte
	answered := 0
	for {
		req, err := http.ReadRequest(br)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.paths[idx] = append(s.paths[idx], req.URL.RequestURI())
		s.reqs = append(s.reqs, req)
		s.mu.Unlock()

		resp := s.handler(idx, req)
		switch resp {
		case nil:
			return
		case hold:
			continue
		}
		if resp.delay > 0 {
			time.Sleep(resp.delay)
		}
		out = append(out, resp.bytes()...)
		if resp.cut > 0 {
			conn.Write(out)
			return
		}
		answered++
		if s.batch <= 1 || answered%s.batch == 0 {
			if _, err := conn.Write(out); err != nil {
				return
			}
			out = nil
		}
	}
}

// Paths returns the request paths seen on each connection.
func (s *fakeServer) Paths() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.paths))
	for i, p := range s.paths {
		out[i] = append([]string(nil), p...)
	}
	return out
}

func (s *fakeServer) Conns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}

func (s *fakeServer) Request(i int) *http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reqs[i]
}

// waitClosed blocks until connection idx has ended on the server side.
func (s *fakeServer) waitClosed(t *testing.T, idx int) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case got := <-s.closed:
			if got == idx {
				return
			}
		case <-timeout:
			t.Fatalf("connection %d not closed", idx)
		}
	}
}
