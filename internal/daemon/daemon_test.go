package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shortDir keeps socket paths under the Unix socket length limit.
func shortDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "kp")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestDaemonCommands(t *testing.T) {
	dir := shortDir(t)
	var paused atomic.Bool
	var stopped atomic.Bool

	d := NewInDir(dir, Controls{
		Status: func() Status {
			return Status{TargetURL: "http://tracker:6969", Requests: 42, Errors: 1, Pending: 3}
		},
		Pause: paused.Store,
		Stop:  func() { stopped.Store(true) },
	})
	require.NoError(t, d.Start())
	defer d.Stop()

	pid, err := os.ReadFile(filepath.Join(dir, PidFile))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(pid)))

	socket := filepath.Join(dir, SocketName)
	send := func(typ string) *Response {
		resp, err := sendCommand(context.Background(), socket, Command{Type: typ})
		require.NoError(t, err)
		return resp
	}

	resp := send("status")
	require.True(t, resp.Success)
	status, err := DecodeStatus(resp)
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.False(t, status.Paused)
	assert.Equal(t, "http://tracker:6969", status.TargetURL)
	assert.Equal(t, int64(42), status.Requests)
	assert.Equal(t, 3, status.Pending)

	assert.True(t, send("pause").Success)
	assert.True(t, paused.Load())
	status, err = DecodeStatus(send("status"))
	require.NoError(t, err)
	assert.True(t, status.Paused)

	assert.True(t, send("resume").Success)
	assert.False(t, paused.Load())

	assert.False(t, send("reload").Success)

	assert.True(t, send("stop").Success)
	assert.True(t, stopped.Load())
}

func TestDaemonAlreadyRunning(t *testing.T) {
	dir := shortDir(t)
	first := NewInDir(dir, Controls{})
	require.NoError(t, first.Start())

	second := NewInDir(dir, Controls{})
	assert.ErrorIs(t, second.Start(), ErrAlreadyRunning)

	first.Stop()
	_, err := os.Stat(filepath.Join(dir, SocketName))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, PidFile))
	assert.True(t, os.IsNotExist(err))
}

func TestSendCommandNotRunning(t *testing.T) {
	_, err := sendCommand(context.Background(), filepath.Join(shortDir(t), SocketName), Command{Type: "status"})
	assert.Error(t, err)
}
