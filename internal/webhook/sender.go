package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/orrn/presi/internal/core"
)

const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Webhook-Event"
	HeaderDelivery  = "X-Webhook-Delivery"

	EventTest = "test"
)

type WebhookPayload struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature,omitempty"`
}

type JobEventData struct {
	JobID      int      `json:"job_id"`
	Status     string   `json:"status,omitempty"`
	FileName   string   `json:"file_name,omitempty"`
	FileType   string   `json:"file_type,omitempty"`
	Printer    string   `json:"printer,omitempty"`
	Group      int      `json:"process_group,omitempty"`
	Commands   []string `json:"commands,omitempty"`
	ExitStatus *int     `json:"exit_status,omitempty"`
}

type PrinterEventData struct {
	PrinterName string `json:"printer_name"`
	PrinterType string `json:"printer_type,omitempty"`
	Status      string `json:"status,omitempty"`
}

type TypeEventData struct {
	Type     string   `json:"type,omitempty"`
	From     string   `json:"from,omitempty"`
	To       string   `json:"to,omitempty"`
	Commands []string `json:"commands,omitempty"`
}

type WebhookConfig struct {
	Endpoints    []string
	Secret       string
	RetryCount   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
	WorkerCount  int
	QueueSize    int
}

type webhookTask struct {
	url     string
	payload *WebhookPayload
}

// WebhookSender posts spooler events to every configured endpoint. Events
// are queued without blocking the caller; when the queue is full they are
// dropped and logged.
type WebhookSender struct {
	endpoints []string
	secret    string
	client    *retryablehttp.Client
	queue     chan *webhookTask
	stopCh    chan struct{}
	stopOnce  sync.Once
	workers   int
	wg        sync.WaitGroup
	logger    *zap.Logger
}

func NewWebhookSender(config WebhookConfig, logger *zap.Logger) *WebhookSender {
	if config.RetryCount < 0 {
		config.RetryCount = 0
	}
	if config.RetryWaitMin <= 0 {
		config.RetryWaitMin = time.Second
	}
	if config.RetryWaitMax <= 0 {
		config.RetryWaitMax = 30 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 2
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := retryablehttp.NewClient()
	client.RetryMax = config.RetryCount
	client.RetryWaitMin = config.RetryWaitMin
	client.RetryWaitMax = config.RetryWaitMax
	client.HTTPClient.Timeout = config.Timeout
	client.Logger = nil

	return &WebhookSender{
		endpoints: append([]string(nil), config.Endpoints...),
		secret:    config.Secret,
		client:    client,
		queue:     make(chan *webhookTask, config.QueueSize),
		stopCh:    make(chan struct{}),
		workers:   config.WorkerCount,
		logger:    logger.With(zap.String("component", "webhook")),
	}
}

func (s *WebhookSender) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// Stop delivers whatever is still queued and waits for the workers.
func (s *WebhookSender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Notify implements core.Observer.
func (s *WebhookSender) Notify(e core.Event) {
	if len(s.endpoints) == 0 {
		return
	}
	data, err := json.Marshal(eventData(e))
	if err != nil {
		s.logger.Error("failed to encode event", zap.String("event", string(e.Kind)), zap.Error(err))
		return
	}
	s.enqueue(string(e.Kind), e.Time, data)
}

func eventData(e core.Event) any {
	switch e.Kind {
	case core.EventTypeDefined, core.EventConversionDefined:
		return TypeEventData{Type: e.TypeName, From: e.FromType, To: e.ToType, Commands: e.Commands}
	case core.EventPrinterDefined, core.EventPrinterStatus:
		return PrinterEventData{PrinterName: e.Printer, PrinterType: e.PrinterType, Status: string(e.PrinterStatus)}
	}

	d := JobEventData{
		JobID:    e.JobID,
		Status:   string(e.JobStatus),
		FileName: e.FileName,
		FileType: e.FileType,
		Printer:  e.Printer,
		Group:    e.Group,
		Commands: e.Commands,
	}
	if e.Kind == core.EventJobFinished || e.Kind == core.EventJobAborted {
		status := e.ExitStatus
		d.ExitStatus = &status
	}
	return d
}

func (s *WebhookSender) newPayload(event string, ts time.Time, data []byte) *WebhookPayload {
	payload := &WebhookPayload{
		ID:        uuid.NewString(),
		Event:     event,
		Timestamp: ts,
		Data:      data,
	}
	if s.secret != "" {
		payload.Signature = signPayload(data, s.secret)
	}
	return payload
}

func (s *WebhookSender) enqueue(event string, ts time.Time, data []byte) {
	for _, url := range s.endpoints {
		payload := s.newPayload(event, ts, data)

		select {
		case s.queue <- &webhookTask{url: url, payload: payload}:
		default:
			s.logger.Warn("queue full, dropping webhook", zap.String("url", url), zap.String("event", event))
		}
	}
}

func (s *WebhookSender) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.queue:
			s.deliver(id, task)
		case <-s.stopCh:
			for {
				select {
				case task := <-s.queue:
					s.deliver(id, task)
				default:
					return
				}
			}
		}
	}
}

func (s *WebhookSender) deliver(worker int, task *webhookTask) {
	if err := s.sendRequest(context.Background(), task.url, task.payload); err != nil {
		s.logger.Warn("failed to send webhook",
			zap.Int("worker", worker),
			zap.String("url", task.url),
			zap.String("event", task.payload.Event),
			zap.String("delivery", task.payload.ID),
			zap.Error(err),
		)
	}
}

// Endpoints returns the configured endpoint URLs.
func (s *WebhookSender) Endpoints() []string {
	return append([]string(nil), s.endpoints...)
}

// Test posts a signed test payload to url and waits for the answer. It
// bypasses the queue and is subject to the same retry policy.
func (s *WebhookSender) Test(ctx context.Context, url string) error {
	data, err := json.Marshal(map[string]any{
		"test":    true,
		"message": "Test webhook from presi",
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return s.sendRequest(ctx, url, s.newPayload(EventTest, time.Now(), data))
}

func (s *WebhookSender) sendRequest(ctx context.Context, url string, payload *WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, payload.Signature)
	req.Header.Set(HeaderEvent, payload.Event)
	req.Header.Set(HeaderDelivery, payload.ID)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("http error: %d", resp.StatusCode)
	}
	return nil
}

func signPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether signature is the HMAC-SHA256 of data under secret.
func Verify(data []byte, signature, secret string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return hmac.Equal(h.Sum(nil), want)
}
