package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"syscall"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/presi/internal/api/handlers"
	"github.com/orrn/presi/internal/api/middleware"
	"github.com/orrn/presi/internal/archive"
	"github.com/orrn/presi/internal/config"
	"github.com/orrn/presi/internal/conversion"
	"github.com/orrn/presi/internal/core"
	"github.com/orrn/presi/internal/db"
	"github.com/orrn/presi/internal/metrics"
)

type direct struct {
	s *core.Spooler
}

func (d direct) Do(ctx context.Context, fn func(*core.Spooler) error) error {
	return fn(d.s)
}

type stopped struct{}

func (stopped) Do(context.Context, func(*core.Spooler) error) error {
	return core.ErrLoopStopped
}

type stubLauncher struct {
	group int
}

func (l *stubLauncher) Passthrough(*core.Job, *core.Printer) error { return nil }

func (l *stubLauncher) Launch(*core.Job, *core.Printer, []conversion.Step) (int, error) {
	l.group++
	return l.group, nil
}

type stubSignaler struct {
	sent []syscall.Signal
}

func (s *stubSignaler) SignalGroup(_ int, sig syscall.Signal) error {
	s.sent = append(s.sent, sig)
	return nil
}

type stubEvents struct {
	filter db.EventFilter
}

func (s *stubEvents) Events(_ context.Context, f db.EventFilter) ([]*db.EventRecord, error) {
	s.filter = f
	id := 3
	return []*db.EventRecord{{ID: 9, Kind: string(core.EventJobCreated), JobID: &id, DetailJSON: "{}"}}, nil
}

type testAPI struct {
	router   *gin.Engine
	spooler  *core.Spooler
	signaler *stubSignaler
	events   *stubEvents
}

func newTestAPI(t *testing.T, cfg Config) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sig := &stubSignaler{}
	s := core.New(core.Options{Launcher: &stubLauncher{group: 76}, Signaler: sig})
	events := &stubEvents{}
	router := NewRouter(cfg, Deps{Runner: direct{s: s}, Events: events, Metrics: metrics.New()})
	return &testAPI{router: router, spooler: s, signaler: sig, events: events}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if len(header) == 2 {
		req.Header.Set(header[0], header[1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	a := newTestAPI(t, Config{})

	assert.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/api/types", gin.H{"name": "pdf"}).Code)
	assert.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/api/types", gin.H{"name": "ps"}).Code)
	assert.Equal(t, http.StatusConflict, a.do(t, http.MethodPost, "/api/types", gin.H{"name": "ps"}).Code)
	assert.Equal(t, []string{"pdf", "ps"}, decode[[]string](t, a.do(t, http.MethodGet, "/api/types", nil)))

	rec := a.do(t, http.MethodPost, "/api/conversions", gin.H{"from": "pdf", "to": "ps", "command": []string{"pdf2ps", "-", "-"}})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/printers", gin.H{"name": "Alice", "type": "ps"})
	require.Equal(t, http.StatusCreated, rec.Code)
	printer := decode[handlers.PrinterResponse](t, rec)
	assert.Equal(t, "disabled", printer.Status)

	rec = a.do(t, http.MethodPost, "/api/jobs", gin.H{"file": "report.pdf", "printers": []string{"Alice"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	job := decode[handlers.JobResponse](t, rec)
	assert.Equal(t, 0, job.ID)
	assert.Equal(t, "pdf", job.Type)
	assert.Equal(t, "created", job.Status)
	assert.Equal(t, []string{"Alice"}, job.Eligible)
	assert.Nil(t, job.StartedAt)

	rec = a.do(t, http.MethodPost, "/api/printers/Alice/enable", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "busy", decode[handlers.PrinterResponse](t, rec).Status)

	job = decode[handlers.JobResponse](t, a.do(t, http.MethodGet, "/api/jobs/0", nil))
	assert.Equal(t, "running", job.Status)
	assert.Equal(t, "Alice", job.Printer)
	assert.Equal(t, 77, job.ProcessGroup)
	assert.NotNil(t, job.StartedAt)

	assert.Equal(t, http.StatusConflict, a.do(t, http.MethodPost, "/api/printers/Alice/disable", nil).Code)
	assert.Equal(t, http.StatusConflict, a.do(t, http.MethodPost, "/api/jobs/0/resume", nil).Code)

	rec = a.do(t, http.MethodPost, "/api/jobs/0/pause", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "running", decode[handlers.JobResponse](t, rec).Status)
	assert.Equal(t, []syscall.Signal{syscall.SIGSTOP}, a.signaler.sent)

	running := decode[[]handlers.JobResponse](t, a.do(t, http.MethodGet, "/api/jobs?status=running", nil))
	assert.Len(t, running, 1)
	created := decode[[]handlers.JobResponse](t, a.do(t, http.MethodGet, "/api/jobs?status=created", nil))
	assert.Empty(t, created)
}

func TestCancelCreatedJob(t *testing.T) {
	a := newTestAPI(t, Config{})
	require.NoError(t, a.spooler.AddType("txt"))

	rec := a.do(t, http.MethodPost, "/api/jobs", gin.H{"file": "notes.txt"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, decode[handlers.JobResponse](t, rec).Eligible)

	rec = a.do(t, http.MethodPost, "/api/jobs/0/cancel", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	job := decode[handlers.JobResponse](t, rec)
	assert.Equal(t, "aborted", job.Status)
	assert.NotNil(t, job.FinishedAt)

	assert.Equal(t, http.StatusConflict, a.do(t, http.MethodPost, "/api/jobs/0/cancel", nil).Code)
}

func TestErrorMapping(t *testing.T) {
	a := newTestAPI(t, Config{})
	require.NoError(t, a.spooler.AddType("pdf"))

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
		kind   string
	}{
		{"missing printer fields", http.MethodPost, "/api/printers", gin.H{"name": "Alice"}, http.StatusBadRequest, "validation_error"},
		{"printer of unknown type", http.MethodPost, "/api/printers", gin.H{"name": "Alice", "type": "ps"}, http.StatusBadRequest, "validation_error"},
		{"empty conversion command", http.MethodPost, "/api/conversions", gin.H{"from": "pdf", "to": "pdf", "command": []string{}}, http.StatusBadRequest, "validation_error"},
		{"uninferable file", http.MethodPost, "/api/jobs", gin.H{"file": "noext"}, http.StatusBadRequest, "validation_error"},
		{"unknown eligible printer", http.MethodPost, "/api/jobs", gin.H{"file": "a.pdf", "printers": []string{"Zed"}}, http.StatusNotFound, "not_found"},
		{"unknown job", http.MethodGet, "/api/jobs/42", nil, http.StatusNotFound, "not_found"},
		{"bad job id", http.MethodGet, "/api/jobs/abc", nil, http.StatusBadRequest, "invalid_id"},
		{"negative job id", http.MethodPost, "/api/jobs/-1/pause", nil, http.StatusBadRequest, "invalid_id"},
		{"enable unknown printer", http.MethodPost, "/api/printers/Zed/enable", nil, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Equal(t, tt.kind, decode[handlers.ErrorResponse](t, rec).Error)
		})
	}
}

func TestEventsEndpoint(t *testing.T) {
	a := newTestAPI(t, Config{})

	rec := a.do(t, http.MethodGet, "/api/events?job_id=3&kind=job_created&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	records := decode[[]db.EventRecord](t, rec)
	require.Len(t, records, 1)
	assert.Equal(t, int64(9), records[0].ID)

	require.NotNil(t, a.events.filter.JobID)
	assert.Equal(t, 3, *a.events.filter.JobID)
	assert.Equal(t, "job_created", a.events.filter.Kind)
	assert.Equal(t, 5, a.events.filter.Limit)

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/events?limit=5000", nil).Code)
}

func TestEventsEndpointWithoutJournal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(Config{}, Deps{Runner: direct{s: core.New(core.Options{})}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthProtectsAPI(t *testing.T) {
	const secret = "shared-secret"
	a := newTestAPI(t, Config{JWTSecret: secret})

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/metrics", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/api/printers", nil).Code)

	token, err := middleware.NewAuth(secret).IssueToken("admin", time.Hour)
	require.NoError(t, err)
	rec := a.do(t, http.MethodGet, "/api/printers", nil, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]handlers.PrinterResponse](t, rec))
}

func TestRateLimitedAPI(t *testing.T) {
	a := newTestAPI(t, Config{RateLimitRPS: 1, RateLimitBurst: 1})

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/jobs", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, a.do(t, http.MethodGet, "/api/jobs", nil).Code)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/health", nil).Code)
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t, Config{})
	rec := a.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rec)["status"])

	gin.SetMode(gin.TestMode)
	router := NewRouter(Config{}, Deps{Runner: stopped{}})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServerShutsDownOnCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	router := NewRouter(Config{}, Deps{Runner: direct{s: core.New(core.Options{})}})
	srv := NewServer(Config{ReadTimeout: time.Second, WriteTimeout: time.Second}, router, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := fmt.Sprintf("http://%s/health", ln.Addr())
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	_, err = http.Get(url)
	assert.Error(t, err)
}

type stubWebhooks struct {
	urls   []string
	failOn string
	tested []string
}

func (s *stubWebhooks) Endpoints() []string { return s.urls }

func (s *stubWebhooks) Test(_ context.Context, url string) error {
	s.tested = append(s.tested, url)
	if url == s.failOn {
		return fmt.Errorf("http error: 500")
	}
	return nil
}

func TestWebhookEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hooks := &stubWebhooks{urls: []string{"http://a.example/hook", "http://b.example/hook"}, failOn: "http://b.example/hook"}
	a := &testAPI{router: NewRouter(Config{}, Deps{Runner: direct{s: core.New(core.Options{})}, Webhooks: hooks})}

	listed := decode[map[string][]string](t, a.do(t, http.MethodGet, "/api/webhooks", nil))
	assert.Equal(t, hooks.urls, listed["endpoints"])

	rec := a.do(t, http.MethodPost, "/api/webhooks/test", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[[]handlers.TestWebhookResponse](t, rec)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Message, "500")

	hooks.tested = nil
	rec = a.do(t, http.MethodPost, "/api/webhooks/test", gin.H{"url": "http://a.example/hook"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"http://a.example/hook"}, hooks.tested)

	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodPost, "/api/webhooks/test", gin.H{"url": "http://evil.example"}).Code)
}

func TestWebhookEndpointsUnconfigured(t *testing.T) {
	a := newTestAPI(t, Config{})

	listed := decode[map[string][]string](t, a.do(t, http.MethodGet, "/api/webhooks", nil))
	assert.Empty(t, listed["endpoints"])
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodPost, "/api/webhooks/test", nil).Code)
}

func TestConfigEndpointHidesSecrets(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.API.JWTSecret = "do-not-leak"
	cfg.Webhooks.Secret = "also-secret"
	cfg.Webhooks.Endpoints = []string{"http://a.example/hook"}

	a := &testAPI{router: NewRouter(Config{}, Deps{Runner: direct{s: core.New(core.Options{})}, Settings: cfg})}
	rec := a.do(t, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "do-not-leak")
	assert.NotContains(t, rec.Body.String(), "also-secret")

	got := decode[handlers.ServerConfigResponse](t, rec)
	assert.Equal(t, 64, got.MaxJobs)
	assert.Equal(t, "10s", got.RetentionWindow)
	assert.True(t, got.AuthEnabled)
	assert.Equal(t, 1, got.WebhookCount)

	assert.Equal(t, http.StatusNotFound, newTestAPI(t, Config{}).do(t, http.MethodGet, "/api/config", nil).Code)
}

type stubArchiver struct {
	cutoff time.Time
}

func (s *stubArchiver) List() ([]*archive.ArchiveFile, error) {
	return []*archive.ArchiveFile{{Filename: "events_2024_05.db", Size: 8192, EventCount: 12}}, nil
}

func (s *stubArchiver) Archive(_ context.Context, cutoff time.Time) (int, error) {
	s.cutoff = cutoff
	return 4, nil
}

func TestArchiveEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	arch := &stubArchiver{}
	a := &testAPI{router: NewRouter(Config{}, Deps{Runner: direct{s: core.New(core.Options{})}, Archives: arch})}

	listed := decode[handlers.ArchiveListResponse](t, a.do(t, http.MethodGet, "/api/archives", nil))
	assert.Equal(t, 1, listed.Count)
	assert.Equal(t, 12, listed.Archives[0].EventCount)

	rec := a.do(t, http.MethodPost, "/api/archives/run", gin.H{"older_than_days": 30})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4.0, decode[map[string]any](t, rec)["archived"])
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -30), arch.cutoff, time.Minute)

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/api/archives/run", gin.H{"older_than_days": -1}).Code)

	unconfigured := newTestAPI(t, Config{})
	assert.Equal(t, http.StatusNotFound, unconfigured.do(t, http.MethodGet, "/api/archives", nil).Code)
}
