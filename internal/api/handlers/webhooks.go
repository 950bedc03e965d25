package handlers

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
)

type WebhookTester interface {
	Endpoints() []string
	Test(ctx context.Context, url string) error
}

type TestWebhookRequest struct {
	URL string `json:"url"`
}

type TestWebhookResponse struct {
	URL     string `json:"url"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type WebhookHandler struct {
	sender WebhookTester
}

// NewWebhookHandler serves configured endpoints; a nil sender means none.
func NewWebhookHandler(sender WebhookTester) *WebhookHandler {
	return &WebhookHandler{sender: sender}
}

func (h *WebhookHandler) endpoints() []string {
	if h.sender == nil {
		return []string{}
	}
	return h.sender.Endpoints()
}

func (h *WebhookHandler) ListWebhooks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"endpoints": h.endpoints()})
}

// TestWebhook sends a test delivery to one configured endpoint, or to all of
// them when no URL is given. Delivery failures are reported in the body.
func (h *WebhookHandler) TestWebhook(c *gin.Context) {
	var req TestWebhookRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			validationError(c, err)
			return
		}
	}

	targets := h.endpoints()
	if req.URL != "" {
		if !slices.Contains(targets, req.URL) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Webhook endpoint is not configured"})
			return
		}
		targets = []string{req.URL}
	}
	if len(targets) == 0 {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "No webhook endpoints configured"})
		return
	}

	results := make([]TestWebhookResponse, 0, len(targets))
	for _, url := range targets {
		res := TestWebhookResponse{URL: url, Success: true, Message: "Webhook test successful"}
		if err := h.sender.Test(c.Request.Context(), url); err != nil {
			res.Success = false
			res.Message = fmt.Sprintf("Failed to send webhook: %v", err)
		}
		results = append(results, res)
	}
	c.JSON(http.StatusOK, results)
}
