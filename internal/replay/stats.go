package replay

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/apex/log"
)

// Latencies are recorded in microseconds, from 1µs up to a minute.
const (
	minLatency = 1
	maxLatency = int64(time.Minute / time.Microsecond)
	sigFigs    = 3
)

// Stats accumulates replay results.
type Stats struct {
	mu       sync.Mutex
	hist     *hdrhistogram.Histogram
	requests int64
	errors   int64
	outcomes map[string]int64
	started  time.Time
}

// NewStats creates empty stats.
func NewStats() *Stats {
	return &Stats{
		hist:     hdrhistogram.New(minLatency, maxLatency, sigFigs),
		outcomes: make(map[string]int64),
		started:  time.Now(),
	}
}

// Record adds one answered query.
func (s *Stats) Record(d time.Duration, err error) {
	us := d.Microseconds()
	if us < minLatency {
		us = minLatency
	}
	if us > maxLatency {
		us = maxLatency
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	if err != nil {
		s.errors++
	}
	s.outcomes[outcome(err)]++
	if herr := s.hist.RecordValue(us); herr != nil {
		log.WithError(herr).Warnf("[replay] dropping latency %dus", us)
	}
}

// Requests returns the number of recorded queries.
func (s *Stats) Requests() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// Errors returns the number of failed queries.
func (s *Stats) Errors() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errors
}

// Outcomes returns the query count per outcome label.
func (s *Stats) Outcomes() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.outcomes))
	for k, v := range s.outcomes {
		out[k] = v
	}
	return out
}

// Percentile returns the latency at quantile q (0-100).
func (s *Stats) Percentile(q float64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hist.TotalCount() == 0 {
		return 0
	}
	return time.Duration(s.hist.ValueAtQuantile(q)) * time.Microsecond
}

// Summary renders a one line report:
//
//	SUMMARY: requests=10 errors=1 rps=4.9 p50=1.20ms p95=3.40ms p99=3.40ms max=3.41ms outcomes=bad_status:1,success:9
func (s *Stats) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var p50, p95, p99, max time.Duration
	if s.hist.TotalCount() > 0 {
		p50 = time.Duration(s.hist.ValueAtQuantile(50)) * time.Microsecond
		p95 = time.Duration(s.hist.ValueAtQuantile(95)) * time.Microsecond
		p99 = time.Duration(s.hist.ValueAtQuantile(99)) * time.Microsecond
		max = time.Duration(s.hist.Max()) * time.Microsecond
	}
	rps := 0.0
	if elapsed := time.Since(s.started).Seconds(); elapsed > 0 {
		rps = float64(s.requests) / elapsed
	}

	labels := make([]string, 0, len(s.outcomes))
	for k := range s.outcomes {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	parts := make([]string, len(labels))
	for i, k := range labels {
		parts[i] = fmt.Sprintf("%s:%d", k, s.outcomes[k])
	}

	return fmt.Sprintf("SUMMARY: requests=%d errors=%d rps=%.1f p50=%s p95=%s p99=%s max=%s outcomes=%s",
		s.requests, s.errors, rps, ms(p50), ms(p95), ms(p99), ms(max), strings.Join(parts, ","))
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
}
