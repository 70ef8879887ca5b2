package replay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolTakesTurns(t *testing.T) {
	a := &fakeClient{body: func(string) ([]byte, error) { return []byte("a"), nil }}
	b := &fakeClient{body: func(string) ([]byte, error) { return []byte("b"), nil }}
	p := NewPool(a, b)
	assert.Equal(t, 2, p.Len())

	var got string
	for _, path := range []string{"/1", "/2", "/3", "/4", "/5"} {
		body, err := p.Do(context.Background(), path)
		require.NoError(t, err)
		got += string(body)
	}
	assert.Equal(t, "ababa", got)
	assert.Equal(t, []string{"/1", "/3", "/5"}, a.Paths())
	assert.Equal(t, []string{"/2", "/4"}, b.Paths())
}

func TestPoolNeedsClients(t *testing.T) {
	assert.Panics(t, func() { NewPool() })
}
