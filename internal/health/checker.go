package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/kapipe/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prober sends one probe query. *pipeline.Endpoint implements it.
type Prober interface {
	Do(ctx context.Context, path string) ([]byte, error)
}

// Checker periodically probes the target through the pipelined endpoint.
// Probes share the queue with regular queries, so a stuck connection
// shows up as an unhealthy target.
type Checker struct {
	cfg     config.Health
	prober  Prober
	metrics *Metrics
	healthy bool
	lastErr error
	mu      sync.RWMutex
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewChecker creates a new health checker. metrics may be nil.
func NewChecker(cfg config.Health, prober Prober, metrics *Metrics) *Checker {
	return &Checker{
		cfg:     cfg,
		prober:  prober,
		metrics: metrics,
		healthy: true,
	}
}

// Start begins periodic health checking.
func (c *Checker) Start(ctx context.Context) {
	if !c.cfg.Enabled {
		return
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	// The target is assumed healthy until a probe says otherwise.
	if c.metrics != nil {
		c.metrics.SetTargetHealth(true)
	}

	go c.run(ctx)
}

// run is the main health check loop.
func (c *Checker) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check sends one probe and updates the target status.
func (c *Checker) Check(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	_, err := c.prober.Do(checkCtx, c.cfg.Path)
	if err != nil && ctx.Err() != nil {
		return c.Healthy()
	}
	healthy := err == nil

	c.mu.Lock()
	prev := c.healthy
	c.healthy = healthy
	c.lastErr = err
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetTargetHealth(healthy)
	}

	// Log status changes
	if prev != healthy {
		if healthy {
			log.Infof("[health] target is now healthy")
		} else {
			log.WithError(err).Warn("[health] target is now unhealthy")
		}
	}
	return healthy
}

// Healthy reports the result of the last probe.
func (c *Checker) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

// LastError returns the error of the last failed probe.
func (c *Checker) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Stop stops the health checker.
func (c *Checker) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

// Server serves Prometheus metrics and health endpoints.
type Server struct {
	server *http.Server
}

// NewServer creates a new metrics/health HTTP server. ready backs
// /readyz; nil means always ready.
func NewServer(cfg config.Metrics, gatherer prometheus.Gatherer, ready func() bool) *Server {
	return &Server{
		server: &http.Server{
			Addr:    cfg.Address,
			Handler: newMux(cfg.Path, gatherer, ready),
		},
	}
}

func newMux(path string, gatherer prometheus.Gatherer, ready func() bool) *http.ServeMux {
	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Liveness probe
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Readiness probe
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil && !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("target unhealthy"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return mux
}

// Start begins serving metrics.
func (s *Server) Start() error {
	log.Infof("[metrics] starting server on %s", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
