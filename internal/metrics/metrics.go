// Package metrics exposes spooler activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orrn/presi/internal/core"
)

// Metrics holds every collector on its own registry so tests and multiple
// instances do not collide on the default one.
type Metrics struct {
	Registry *prometheus.Registry

	EventsTotal     *prometheus.CounterVec
	JobsTotal       *prometheus.CounterVec
	JobDuration     prometheus.Histogram
	JobsActive      prometheus.Gauge
	PrintersBusy    prometheus.Gauge
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	mu      sync.Mutex
	started map[int]time.Time
	busy    map[string]bool
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "presi_events_total",
				Help: "Spooler events by kind",
			},
			[]string{"kind"},
		),
		JobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "presi_jobs_completed_total",
				Help: "Jobs that reached a terminal state, by state",
			},
			[]string{"status"},
		),
		JobDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "presi_job_duration_seconds",
				Help:    "Time from pipeline start to job termination",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			},
		),
		JobsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "presi_jobs_active",
				Help: "Jobs currently running or paused",
			},
		),
		PrintersBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "presi_printers_busy",
				Help: "Printers currently bound to a job",
			},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "presi_http_requests_total",
				Help: "Admin API requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "presi_http_request_duration_seconds",
				Help:    "Admin API request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		started: make(map[int]time.Time),
		busy:    make(map[string]bool),
	}
}

// Notify implements core.Observer.
func (m *Metrics) Notify(e core.Event) {
	m.EventsTotal.WithLabelValues(string(e.Kind)).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()

	switch e.Kind {
	case core.EventPrinterStatus:
		busy := e.PrinterStatus == core.PrinterStatusBusy
		if busy != m.busy[e.Printer] {
			m.busy[e.Printer] = busy
			if busy {
				m.PrintersBusy.Inc()
			} else {
				m.PrintersBusy.Dec()
			}
		}
	case core.EventJobStarted:
		m.started[e.JobID] = e.Time
		m.JobsActive.Inc()
	case core.EventJobFinished, core.EventJobAborted:
		status := core.JobStatusFinished
		if e.Kind == core.EventJobAborted {
			status = core.JobStatusAborted
		}
		m.JobsTotal.WithLabelValues(string(status)).Inc()
		if start, ok := m.started[e.JobID]; ok {
			m.JobDuration.Observe(e.Time.Sub(start).Seconds())
			delete(m.started, e.JobID)
			m.JobsActive.Dec()
		}
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency for the admin API.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
