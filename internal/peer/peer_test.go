package peer

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerAnswersHandshake(t *testing.T) {
	s := NewServer("127.0.0.1:0")
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	handshake := append([]byte{19}, "BitTorrent protocol"...)
	handshake = append(handshake, make([]byte, 8)...)
	handshake = append(handshake, bytes.Repeat([]byte{0xab}, 20)...)
	handshake = append(handshake, "-KP0001-123456789012"...)
	require.Len(t, handshake, handshakeLen)

	// Split writes still make one handshake.
	_, err = conn.Write(handshake[:30])
	require.NoError(t, err)
	_, err = conn.Write(handshake[30:])
	require.NoError(t, err)

	reply, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, handshake[:echoLen]...), PeerID...), reply)
}

func TestServerShortHandshake(t *testing.T) {
	s := NewServer("127.0.0.1:0")
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	reply, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Empty(t, reply)
	conn.Close()
}
