package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/presi/internal/core"
)

type HealthHandler struct {
	runner Runner
}

func NewHealthHandler(runner Runner) *HealthHandler {
	return &HealthHandler{runner: runner}
}

// Health round-trips the spooler loop, so a stopped loop reports 503.
func (h *HealthHandler) Health(c *gin.Context) {
	var jobs, printers int
	err := h.runner.Do(c.Request.Context(), func(s *core.Spooler) error {
		jobs = len(s.Jobs())
		printers = len(s.Printers())
		return nil
	})
	if err != nil {
		code, _ := statusFor(err)
		c.JSON(code, gin.H{"status": "unavailable", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "jobs": jobs, "printers": printers})
}
