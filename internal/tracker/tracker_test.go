package tracker

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckResponse(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		assert.NoError(t, CheckResponse([]byte("d8:intervali1800e5:peers0:e")))
	})

	t.Run("failure reason", func(t *testing.T) {
		err := CheckResponse([]byte("d14:failure reason17:torrent not founde"))
		var ferr *FailureError
		require.True(t, errors.As(err, &ferr))
		assert.Equal(t, "torrent not found", ferr.Reason)
	})

	t.Run("not bencode", func(t *testing.T) {
		err := CheckResponse([]byte("<html>"))
		require.Error(t, err)
		var ferr *FailureError
		assert.False(t, errors.As(err, &ferr))
	})
}

func TestEncodeRoundTrip(t *testing.T) {
	peers, err := CompactPeers([]netip.AddrPort{
		netip.MustParseAddrPort("127.0.0.1:6881"),
		netip.MustParseAddrPort("[::1]:6881"),
	})
	require.NoError(t, err)

	body, err := Encode(&AnnounceResponse{Interval: 1800, Complete: 3, Peers: peers})
	require.NoError(t, err)

	resp, err := Parse(body)
	require.NoError(t, err)
	assert.Equal(t, 1800, resp.Interval)
	assert.Equal(t, 3, resp.Complete)
	assert.Equal(t, "6:\x7f\x00\x00\x01\x1a\xe1", string(resp.Peers))
}
