package replay

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kapipe/internal/tracker"
	"github.com/kapipe/pkg/pipeline"
	"github.com/stretchr/testify/assert"
)

func TestStats(t *testing.T) {
	s := NewStats()
	for i := 1; i <= 100; i++ {
		s.Record(time.Duration(i)*time.Millisecond, nil)
	}
	s.Record(time.Millisecond, &tracker.FailureError{Reason: "unregistered torrent"})
	s.Record(time.Millisecond, &pipeline.StatusError{Code: 500, Message: "Internal Server Error"})

	assert.Equal(t, int64(102), s.Requests())
	assert.Equal(t, int64(2), s.Errors())
	assert.Equal(t, map[string]int64{
		OutcomeSuccess:        100,
		OutcomeTrackerFailure: 1,
		OutcomeBadStatus:      1,
	}, s.Outcomes())

	p50 := s.Percentile(50)
	assert.InDelta(t, float64(49*time.Millisecond), float64(p50), float64(2*time.Millisecond))
	assert.True(t, s.Percentile(99) >= 98*time.Millisecond)

	summary := s.Summary()
	assert.True(t, strings.HasPrefix(summary, "SUMMARY: requests=102 errors=2 "), summary)
	assert.Contains(t, summary, "outcomes=bad_status:1,success:100,tracker_failure:1")
}

func TestStatsEmpty(t *testing.T) {
	s := NewStats()
	assert.Equal(t, time.Duration(0), s.Percentile(99))
	assert.Contains(t, s.Summary(), "p50=0.00ms")
}

func TestOutcome(t *testing.T) {
	cases := map[string]error{
		OutcomeSuccess:        nil,
		OutcomeTrackerFailure: &tracker.FailureError{Reason: "x"},
		OutcomeBadStatus:      &pipeline.StatusError{Code: 404},
		OutcomeConnectError:   &pipeline.ConnectError{Op: "dial", Err: errors.New("refused")},
		OutcomeError:          pipeline.ErrConnectionLost,
	}
	for want, err := range cases {
		assert.Equal(t, want, outcome(err))
	}
}
