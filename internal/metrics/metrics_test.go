package metrics

import (
	gocontext "context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgast/tracegen/pkg/events"
)

func TestRecordContextEvents(t *testing.T) {
	m := New()
	m.Record(events.NewEvent(events.EventContextCreated, events.ContextData{ContextID: "a", Version: 1}))
	m.Record(events.NewEvent(events.EventContextUpdated, events.ContextData{ContextID: "a", Version: 2}))
	m.Record(events.NewEvent(events.EventContextUpdated, events.ContextData{ContextID: "a", Version: 3}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.contextEvents.WithLabelValues("context.created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.contextEvents.WithLabelValues("context.updated")))
}

func TestRecordExportAndMatrix(t *testing.T) {
	m := New()
	m.Record(events.NewEvent(events.EventExportWritten, events.ExportData{Format: "xml", TestCases: 4}))
	m.Record(events.NewEvent(events.EventMatrixBuilt, events.MatrixData{Requirements: 4, Covered: 1}))
	m.Record(events.NewEvent(events.EventMatrixBuilt, events.MatrixData{}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.exports.WithLabelValues("xml")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.exportedCases))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.matrixBuilds))
	assert.Equal(t, 0.25, testutil.ToFloat64(m.matrixCoverage), "empty matrix leaves the ratio unchanged")
}

func TestWatchConsumesBus(t *testing.T) {
	m := New()
	bus := events.NewMemoryBus(0)
	ctx, cancel := gocontext.WithCancel(gocontext.Background())
	done := make(chan struct{})
	go func() {
		m.Watch(ctx, bus)
		close(done)
	}()

	// Watch subscribes asynchronously; publish until the counter moves.
	require.Eventually(t, func() bool {
		bus.Publish(events.NewEvent(events.EventPipelineStep, events.PipelineData{Step: "export", Status: "ok"}))
		return testutil.ToFloat64(m.pipelineSteps.WithLabelValues("export", "ok")) > 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/contexts/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/contexts/ctx_1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/contexts/{id}", "404")))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tracegen_http_requests_total")
	assert.Contains(t, string(body), "go_goroutines")
}

type fixedDrops int64

func (d fixedDrops) Dropped() int64 { return int64(d) }

func TestTrackDrops(t *testing.T) {
	m := New()
	m.TrackDrops(fixedDrops(7))

	n, err := testutil.GatherAndCount(m.Registry(), "tracegen_events_dropped_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tracegen_events_dropped_total 7")
}
