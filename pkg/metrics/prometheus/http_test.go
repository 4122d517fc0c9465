package prometheus

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/marmos91/fileshover/pkg/metrics"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findFamily(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	families, err := metrics.GetRegistry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric family %s not registered", name)
	return nil
}

func TestNoopWhenDisabled(t *testing.T) {
	if metrics.IsEnabled() {
		t.Skip("registry already initialized")
	}
	m := NewHTTPMetrics()
	assert.Equal(t, metrics.NewNoopHTTPMetrics(), m)
}

func TestHTTPMetrics(t *testing.T) {
	metrics.InitRegistry()
	m := NewHTTPMetrics()

	m.RecordConnectionAccepted()
	m.RecordRequestStart()
	m.RecordResolve("ok")
	m.RecordRequest("GET", 200, 3*time.Millisecond, 1024)
	m.RecordRequest("", 0, time.Millisecond, 0)
	m.RecordRequestEnd()
	m.RecordConnectionClosed()
	m.TaskStarted(1)
	m.TaskFinished(5*time.Millisecond, true)

	requests := findFamily(t, "fileshover_http_requests_total")
	labels := map[string]float64{}
	for _, metric := range requests.GetMetric() {
		var method, code string
		for _, lp := range metric.GetLabel() {
			switch lp.GetName() {
			case "method":
				method = lp.GetValue()
			case "code":
				code = lp.GetValue()
			}
		}
		labels[method+" "+code] = metric.GetCounter().GetValue()
	}
	assert.Equal(t, 1.0, labels["GET 200"])
	assert.Equal(t, 1.0, labels["unknown none"])

	bytes := findFamily(t, "fileshover_http_bytes_sent_total")
	assert.Equal(t, 1024.0, bytes.GetMetric()[0].GetCounter().GetValue())

	inflight := findFamily(t, "fileshover_http_requests_in_flight")
	assert.Equal(t, 0.0, inflight.GetMetric()[0].GetGauge().GetValue())

	panics := findFamily(t, "fileshover_pool_task_panics_total")
	assert.Equal(t, 1.0, panics.GetMetric()[0].GetCounter().GetValue())

	t.Run("ClientMethodsDoNotGrowSeries", func(t *testing.T) {
		m.RecordRequest("AAAA1", 405, time.Millisecond, 0)
		m.RecordRequest("AAAA2", 405, time.Millisecond, 0)
		m.RecordRequest("BREW", 405, time.Millisecond, 0)

		methods := map[string]float64{}
		for _, metric := range findFamily(t, "fileshover_http_requests_total").GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "method" {
					methods[lp.GetValue()] += metric.GetCounter().GetValue()
				}
			}
		}
		assert.Equal(t, 3.0, methods["other"])
		assert.NotContains(t, methods, "AAAA1")
		assert.NotContains(t, methods, "AAAA2")
		assert.NotContains(t, methods, "BREW")

		durations := findFamily(t, "fileshover_http_request_duration_milliseconds")
		var otherSeries int
		for _, metric := range durations.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "method" && lp.GetValue() == "other" {
					otherSeries++
				}
			}
		}
		assert.Equal(t, 1, otherSeries)
	})

	t.Run("SubMillisecondDurationsKeepFraction", func(t *testing.T) {
		m.RecordRequest("POST", 201, 250*time.Microsecond, 0)

		for _, metric := range findFamily(t, "fileshover_http_request_duration_milliseconds").GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "method" && lp.GetValue() == "POST" {
					assert.InDelta(t, 0.25, metric.GetHistogram().GetSampleSum(), 1e-9)
					return
				}
			}
		}
		t.Fatal("no POST duration series")
	})

	t.Run("ServedOverHTTP", func(t *testing.T) {
		srv := metrics.NewServer(metrics.ServerConfig{Port: 0})
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- srv.Start(ctx) }()
		<-srv.Ready()

		resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(srv.Port()) + "/metrics")
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), "fileshover_http_requests_total")

		cancel()
		assert.NoError(t, <-done)
	})
}
