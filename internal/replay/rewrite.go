package replay

import (
	"encoding/hex"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/kapipe/internal/config"
)

// fakeIDPrefix starts every generated peer id; 8 bytes plus 12 hex
// characters make the 20 bytes of a peer id.
const fakeIDPrefix = "MAGICMAG"

// Rewriter adapts logged announces for replay: real peer ids are swapped
// for stable fake ones and ip/port point at the fake peer.
type Rewriter struct {
	cfg config.Rewrite

	mu  sync.Mutex
	ids map[string]string
}

// NewRewriter creates a rewriter for cfg.
func NewRewriter(cfg config.Rewrite) *Rewriter {
	return &Rewriter{
		cfg: cfg,
		ids: make(map[string]string),
	}
}

// Rewrite returns path with its parameters replaced. Parameters missing
// from path are not added.
func (r *Rewriter) Rewrite(path string) string {
	if r.cfg.PeerID {
		if id, ok := getParam(path, "peer_id"); ok {
			path = replaceParam(path, "peer_id", r.fakeID(id))
		}
	}
	if r.cfg.IP != "" {
		path = replaceParam(path, "ip", r.cfg.IP)
	}
	if r.cfg.Port != "" {
		path = replaceParam(path, "port", r.cfg.Port)
	}
	return path
}

// Reset forgets the peer id mapping. Called between passes.
func (r *Rewriter) Reset() {
	r.mu.Lock()
	r.ids = make(map[string]string)
	r.mu.Unlock()
}

func (r *Rewriter) fakeID(real string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.ids[real]; ok {
		return id
	}
	u := uuid.New()
	id := fakeIDPrefix + hex.EncodeToString(u[:6])
	r.ids[real] = id
	return id
}

// findParam locates name in the query of path. start and end bound its
// value; eq is false for a bare "name" without "=".
func findParam(path, name string) (start, end int, eq, ok bool) {
	q := strings.IndexByte(path, '?')
	if q < 0 {
		return 0, 0, false, false
	}
	pos := q + 1
	for {
		stop := len(path)
		if amp := strings.IndexByte(path[pos:], '&'); amp >= 0 {
			stop = pos + amp
		}
		pair := path[pos:stop]
		switch {
		case pair == name:
			return stop, stop, false, true
		case strings.HasPrefix(pair, name+"="):
			return pos + len(name) + 1, stop, true, true
		}
		if stop == len(path) {
			return 0, 0, false, false
		}
		pos = stop + 1
	}
}

func getParam(path, name string) (string, bool) {
	start, end, _, ok := findParam(path, name)
	if !ok {
		return "", false
	}
	return path[start:end], true
}

func replaceParam(path, name, value string) string {
	start, end, eq, ok := findParam(path, name)
	if !ok {
		return path
	}
	value = url.QueryEscape(value)
	if !eq {
		value = "=" + value
	}
	return path[:start] + value + path[end:]
}
