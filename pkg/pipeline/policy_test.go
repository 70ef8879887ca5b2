package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryForeverPolicy(t *testing.T) {
	p := NewPolicy(RetryForever, BackoffConfig{})
	errDial := errors.New("refused")

	for i := 0; i < 5; i++ {
		delay, retry := p.ConnectFailed(errDial)
		assert.True(t, retry)
		assert.Equal(t, time.Second, delay, "attempt %d", i)
	}

	_, retry := p.ConnectionLost(false)
	assert.False(t, retry)

	p.Connected()
	delay, retry := p.ConnectionLost(true)
	assert.True(t, retry)
	assert.Equal(t, time.Second, delay)
}

func TestRetryForeverPolicyCapped(t *testing.T) {
	p := NewPolicy("", BackoffConfig{Initial: time.Second, Factor: 2, Max: 3 * time.Second})

	var got []time.Duration
	for i := 0; i < 4; i++ {
		delay, _ := p.ConnectFailed(nil)
		got = append(got, delay)
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}, got)

	p.Connected()
	delay, _ := p.ConnectFailed(nil)
	assert.Equal(t, time.Second, delay)
}

func TestFailFastPolicy(t *testing.T) {
	p := NewPolicy(FailFast, DefaultBackoff())

	_, retry := p.ConnectFailed(errors.New("refused"))
	assert.False(t, retry)

	delay, retry := p.ConnectionLost(true)
	assert.True(t, retry)
	assert.Zero(t, delay)

	_, retry = p.ConnectionLost(false)
	assert.False(t, retry)
}
