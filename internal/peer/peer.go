// Package peer runs a fake BitTorrent peer. Trackers that verify
// announced peers by connecting back get a handshake answer from it.
package peer

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/apex/log"
)

const (
	// handshakeLen is pstrlen + pstr + reserved + info_hash + peer_id.
	handshakeLen = 68

	// echoLen covers everything up to and including the info_hash.
	echoLen = 48
)

// PeerID is sent back in place of the caller's peer id.
var PeerID = []byte("MAGICMAGICMAGICMAGIC")

// Server answers BitTorrent handshakes with PeerID and hangs up.
type Server struct {
	addr     string
	listener net.Listener
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// NewServer creates a server for addr.
func NewServer(addr string) *Server {
	return &Server{addr: addr}
}

// Start begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.accept(ctx)

	log.Infof("[peer] answering handshakes on %s", ln.Addr())
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) accept(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.WithError(err).Warn("[peer] accept")
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			handle(conn)
		}()
	}
}

func handle(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(30 * time.Second))

	buf := make([]byte, handshakeLen)
	if _, err := io.ReadFull(conn, buf); err != nil {
		log.WithError(err).Debug("[peer] short handshake")
		return
	}
	reply := make([]byte, 0, echoLen+len(PeerID))
	reply = append(reply, buf[:echoLen]...)
	reply = append(reply, PeerID...)
	conn.Write(reply)
}

// Stop closes the listener and waits for open handshakes.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
}
