// Package replay drives a logged stream of tracker announces through a
// pipelined endpoint.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"github.com/kapipe/internal/config"
	"github.com/kapipe/internal/tracker"
	"github.com/kapipe/pkg/pipeline"
	"golang.org/x/time/rate"
)

// Outcome labels used in stats and metrics.
const (
	OutcomeSuccess        = "success"
	OutcomeTrackerFailure = "tracker_failure"
	OutcomeBadStatus      = "bad_status"
	OutcomeConnectError   = "connect_error"
	OutcomeError          = "error"
)

// defaultGatePause is how long a worker waits while the replay is paused
// or the target is reported unhealthy.
const defaultGatePause = time.Second

// Client submits one query and waits for its body. *pipeline.Endpoint
// and *Pool implement it.
type Client interface {
	Do(ctx context.Context, path string) ([]byte, error)
}

// Recorder receives per query results.
type Recorder interface {
	RecordQuery(outcome string, seconds float64)
}

// Gate reports whether queries should be sent right now.
type Gate interface {
	Healthy() bool
}

// Runner replays entries with a fixed number of workers sharing one
// cursor.
type Runner struct {
	cfg      config.Replay
	entries  []string
	client   Client
	metrics  Recorder
	rewriter *Rewriter
	limiter  *rate.Limiter
	stats    *Stats

	gate      Gate
	gatePause time.Duration
	paused    atomic.Bool
	progress  io.Writer
	progMu    sync.Mutex

	mu     sync.Mutex
	next   int
	passes int

	active atomic.Int64
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewRunner creates a runner. metrics may be nil.
func NewRunner(cfg config.Replay, entries []string, client Client, metrics Recorder) *Runner {
	limit := rate.Inf
	burst := 1
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
		burst = int(cfg.Rate / 10) // 10% of the rate
		if burst < 1 {
			burst = 1
		}
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	cfg.Workers = workers

	return &Runner{
		cfg:       cfg,
		entries:   entries,
		client:    client,
		metrics:   metrics,
		rewriter:  NewRewriter(cfg.Rewrite),
		limiter:   rate.NewLimiter(limit, burst),
		stats:     NewStats(),
		gatePause: defaultGatePause,
		passes:    1,
	}
}

// SetGate makes workers pause while g reports the target unhealthy.
func (r *Runner) SetGate(g Gate) {
	r.gate = g
}

// SetPaused stops or resumes handing out entries. Queries already
// submitted still complete.
func (r *Runner) SetPaused(paused bool) {
	r.paused.Store(paused)
}

// SetProgress writes one character per answered query to w: '.' for
// success and 'x' for failure.
func (r *Runner) SetProgress(w io.Writer) {
	r.progress = w
}

// Stats returns the accumulated results.
func (r *Runner) Stats() *Stats {
	return r.stats
}

// Active returns the number of queries being waited on.
func (r *Runner) Active() int {
	return int(r.active.Load())
}

// Passes returns how many times the log has been started.
func (r *Runner) Passes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.passes
}

// Run starts the workers and blocks until the log is exhausted (without
// loop), ctx is done or Stop is called.
func (r *Runner) Run(ctx context.Context) error {
	if len(r.entries) == 0 {
		return errors.New("replay: no entries")
	}
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	log.Infof("[replay] starting %d workers over %d entries", r.cfg.Workers, len(r.entries))
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
	r.wg.Wait()
	log.Infof("[replay] all workers stopped")
	return nil
}

// Stop ends a running replay.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()

	for ctx.Err() == nil {
		if r.paused.Load() || (r.gate != nil && !r.gate.Healthy()) {
			if !sleep(ctx, r.gatePause) {
				return
			}
			continue
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return
		}
		path, ok := r.take()
		if !ok {
			return
		}
		if !r.process(ctx, path) {
			return
		}
	}
}

// take returns the next entry, rewritten with the peer ids of the pass
// it was taken in. With loop set, the cursor starts over once the log is
// exhausted.
func (r *Runner) take() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next >= len(r.entries) {
		if !r.cfg.Loop {
			return "", false
		}
		r.next = 0
		r.passes++
		log.Infof("[replay] restarting! pass %d, %d errors so far", r.passes, r.stats.Errors())
		r.rewriter.Reset()
	}
	entry := r.entries[r.next]
	r.next++
	return r.rewriter.Rewrite(entry), true
}

// process runs one query. It returns false when ctx ended the query.
func (r *Runner) process(ctx context.Context, path string) bool {
	r.active.Add(1)
	defer r.active.Add(-1)

	start := time.Now()
	body, err := r.client.Do(ctx, path)
	if err != nil && ctx.Err() != nil {
		return false
	}
	if err == nil {
		err = tracker.CheckResponse(body)
	}
	elapsed := time.Since(start)

	r.stats.Record(elapsed, err)
	if r.metrics != nil {
		r.metrics.RecordQuery(outcome(err), elapsed.Seconds())
	}
	if err != nil {
		log.WithError(err).WithField("path", path).Debug("[replay] query failed")
	}
	r.tick(err == nil)
	return true
}

func (r *Runner) tick(ok bool) {
	if r.progress == nil {
		return
	}
	c := "x"
	if ok {
		c = "."
	}
	r.progMu.Lock()
	fmt.Fprint(r.progress, c)
	r.progMu.Unlock()
}

func outcome(err error) string {
	var (
		failure *tracker.FailureError
		status  *pipeline.StatusError
		connect *pipeline.ConnectError
	)
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.As(err, &failure):
		return OutcomeTrackerFailure
	case errors.As(err, &status):
		return OutcomeBadStatus
	case errors.As(err, &connect):
		return OutcomeConnectError
	default:
		return OutcomeError
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
