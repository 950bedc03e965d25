package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/presi/internal/core"
)

func TestNotifyCountsJobs(t *testing.T) {
	m := New()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	m.Notify(core.Event{Kind: core.EventPrinterStatus, Printer: "Alice", PrinterStatus: core.PrinterStatusIdle})
	m.Notify(core.Event{Kind: core.EventPrinterStatus, Printer: "Alice", PrinterStatus: core.PrinterStatusBusy})
	m.Notify(core.Event{Kind: core.EventJobStarted, JobID: 1, Time: start})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PrintersBusy))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsActive))

	m.Notify(core.Event{Kind: core.EventPrinterStatus, Printer: "Alice", PrinterStatus: core.PrinterStatusIdle})
	m.Notify(core.Event{Kind: core.EventJobFinished, JobID: 1, Time: start.Add(2 * time.Second)})
	m.Notify(core.Event{Kind: core.EventJobAborted, JobID: 2, Time: start})

	assert.Equal(t, 0.0, testutil.ToFloat64(m.PrintersBusy))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.JobsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues("finished")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues("aborted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues(string(core.EventPrinterStatus))))
	assert.Equal(t, 1, testutil.CollectAndCount(m.JobDuration))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.Notify(core.Event{Kind: core.EventJobCreated, JobID: 0})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `presi_events_total{kind="job_created"} 1`)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/health", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}
