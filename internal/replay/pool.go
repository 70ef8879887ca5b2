package replay

import (
	"context"
	"sync/atomic"
)

// Pool spreads queries over several clients in turn, so a replay can
// drive more than one pipelined connection.
type Pool struct {
	clients []Client
	next    atomic.Uint64
}

// NewPool returns a pool over clients. It panics when clients is empty.
func NewPool(clients ...Client) *Pool {
	if len(clients) == 0 {
		panic("replay: pool needs at least one client")
	}
	return &Pool{clients: clients}
}

// Do sends path through the next client in turn.
func (p *Pool) Do(ctx context.Context, path string) ([]byte, error) {
	n := p.next.Add(1) - 1
	return p.clients[n%uint64(len(p.clients))].Do(ctx, path)
}

// Len returns the number of clients.
func (p *Pool) Len() int {
	return len(p.clients)
}
