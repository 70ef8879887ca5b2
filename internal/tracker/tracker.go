// Package tracker decodes the bencoded replies of a BitTorrent tracker.
package tracker

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/anacrolix/torrent/bencode"
)

// AnnounceResponse is the dictionary a tracker answers an announce with.
// Peers is kept raw since trackers send either the compact string or a
// list of dictionaries.
type AnnounceResponse struct {
	FailureReason  string        `bencode:"failure reason,omitempty"`
	WarningMessage string        `bencode:"warning message,omitempty"`
	Interval       int           `bencode:"interval,omitempty"`
	MinInterval    int           `bencode:"min interval,omitempty"`
	Complete       int           `bencode:"complete,omitempty"`
	Incomplete     int           `bencode:"incomplete,omitempty"`
	Peers          bencode.Bytes `bencode:"peers,omitempty"`
}

// FailureError is a reply carrying a "failure reason".
type FailureError struct {
	Reason string
}

func (e *FailureError) Error() string {
	return "tracker: failure reason: " + e.Reason
}

// Parse decodes a tracker reply.
func Parse(body []byte) (*AnnounceResponse, error) {
	var resp AnnounceResponse
	if err := bencode.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("tracker: decode response: %w", err)
	}
	return &resp, nil
}

// CheckResponse returns nil for a well-formed reply without a failure
// reason.
func CheckResponse(body []byte) error {
	resp, err := Parse(body)
	if err != nil {
		return err
	}
	if resp.FailureReason != "" {
		return &FailureError{Reason: resp.FailureReason}
	}
	return nil
}

// CompactPeers encodes IPv4 peers in the 6 bytes per peer compact form.
// Non IPv4 addresses are skipped.
func CompactPeers(peers []netip.AddrPort) (bencode.Bytes, error) {
	buf := make([]byte, 0, 6*len(peers))
	for _, p := range peers {
		if !p.Addr().Is4() {
			continue
		}
		ip := p.Addr().As4()
		buf = append(buf, ip[:]...)
		buf = binary.BigEndian.AppendUint16(buf, p.Port())
	}
	raw, err := bencode.Marshal(string(buf))
	if err != nil {
		return nil, err
	}
	return bencode.Bytes(raw), nil
}

// Encode bencodes resp.
func Encode(resp *AnnounceResponse) ([]byte, error) {
	return bencode.Marshal(resp)
}
