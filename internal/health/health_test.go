package health

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kapipe/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func value(t *testing.T, families map[string]*dto.MetricFamily, name string) float64 {
	t.Helper()
	f, ok := families[name]
	require.True(t, ok, name)
	m := f.GetMetric()[0]
	switch {
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	}
	t.Fatalf("%s: unexpected metric type", name)
	return 0
}

func TestMetricsObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ConnectAttempt()
	m.ConnectFailed(errors.New("refused"))
	m.ConnectAttempt()
	m.ConnectionOpened()
	m.QueueChanged(4, 2)
	m.ConnectionClosed(2)

	families := gather(t, reg)
	assert.Equal(t, 2.0, value(t, families, "kapipe_connect_attempts_total"))
	assert.Equal(t, 1.0, value(t, families, "kapipe_connect_failures_total"))
	assert.Equal(t, 0.0, value(t, families, "kapipe_connections_open"))
	assert.Equal(t, 1.0, value(t, families, "kapipe_connections_closed_total"))
	assert.Equal(t, 2.0, value(t, families, "kapipe_queries_requeued_total"))
	assert.Equal(t, 4.0, value(t, families, "kapipe_queries_pending"))
	assert.Equal(t, 2.0, value(t, families, "kapipe_queries_in_flight"))
}

func TestMetricsRecordQuery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordQuery("success", 0.01)
	m.RecordQuery("success", 0.02)
	m.RecordQuery("tracker_failure", 0.03)

	families := gather(t, reg)
	byOutcome := map[string]float64{}
	for _, metric := range families["kapipe_queries_total"].GetMetric() {
		byOutcome[metric.GetLabel()[0].GetValue()] = metric.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"success": 2, "tracker_failure": 1}, byOutcome)
	assert.Equal(t, 1.0, value(t, families, "kapipe_tracker_failures_total"))

	hist := families["kapipe_query_duration_seconds"].GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(3), hist.GetSampleCount())
}

type proberFunc func(ctx context.Context, path string) ([]byte, error)

func (f proberFunc) Do(ctx context.Context, path string) ([]byte, error) {
	return f(ctx, path)
}

func TestCheckerTracksHealth(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	var fail atomic.Bool
	var gotPath atomic.Value
	prober := proberFunc(func(ctx context.Context, path string) ([]byte, error) {
		gotPath.Store(path)
		if fail.Load() {
			return nil, errors.New("connection refused")
		}
		return []byte("d5:filesdee"), nil
	})

	c := NewChecker(config.Health{Path: "/scrape", Timeout: time.Second}, prober, m)
	assert.True(t, c.Healthy())

	fail.Store(true)
	assert.False(t, c.Check(context.Background()))
	assert.False(t, c.Healthy())
	assert.EqualError(t, c.LastError(), "connection refused")
	assert.Equal(t, 0.0, value(t, gather(t, reg), "kapipe_target_health"))

	fail.Store(false)
	assert.True(t, c.Check(context.Background()))
	assert.Equal(t, 1.0, value(t, gather(t, reg), "kapipe_target_health"))
	assert.Equal(t, "/scrape", gotPath.Load())
}

func TestCheckerProbeTimeout(t *testing.T) {
	prober := proberFunc(func(ctx context.Context, path string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	c := NewChecker(config.Health{Path: "/scrape", Timeout: 10 * time.Millisecond}, prober, nil)
	assert.False(t, c.Check(context.Background()))
	assert.ErrorIs(t, c.LastError(), context.DeadlineExceeded)
}

func TestCheckerRunsPeriodically(t *testing.T) {
	var probes atomic.Int32
	prober := proberFunc(func(ctx context.Context, path string) ([]byte, error) {
		probes.Add(1)
		return nil, nil
	})
	c := NewChecker(config.Health{
		Enabled:  true,
		Path:     "/scrape",
		Interval: 5 * time.Millisecond,
		Timeout:  time.Second,
	}, prober, nil)
	c.Start(context.Background())
	require.Eventually(t, func() bool { return probes.Load() >= 3 }, 5*time.Second, time.Millisecond)
	c.Stop()
}

func TestServerEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ConnectAttempt()
	var ready atomic.Bool

	srv := httptest.NewServer(newMux("/metrics", reg, ready.Load))
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, body := get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "kapipe_connect_attempts_total 1")

	code, _ = get("/healthz")
	assert.Equal(t, http.StatusOK, code)

	code, _ = get("/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	ready.Store(true)
	code, _ = get("/readyz")
	assert.Equal(t, http.StatusOK, code)
}
