package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery(t *testing.T) {
	t.Run("succeed", func(t *testing.T) {
		q := NewQuery("/a", "example.com", "", "")
		body, err := q.Result()
		assert.Nil(t, body)
		assert.NoError(t, err)

		q.succeed([]byte("ok"))
		<-q.Done()
		body, err = q.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ok", string(body))
	})

	t.Run("fail", func(t *testing.T) {
		expected := errors.New("mocked error")
		q := NewQuery("/a", "example.com", "", "")
		q.fail(expected)
		_, err := q.Result()
		assert.ErrorIs(t, err, expected)
	})

	t.Run("settles once", func(t *testing.T) {
		q := NewQuery("/a", "example.com", "", "")
		q.succeed(nil)
		assert.Panics(t, func() { q.fail(errors.New("again")) })
	})

	t.Run("wait honors context", func(t *testing.T) {
		q := NewQuery("/a", "example.com", "", "")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := q.Wait(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		select {
		case <-q.Done():
			t.Fatal("query settled by an expired context")
		default:
		}
	})
}
