package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/presi/internal/config"
)

// ServerConfigResponse is the configuration with secrets left out.
type ServerConfigResponse struct {
	MaxJobs           int               `json:"max_jobs"`
	MaxTypes          int               `json:"max_types"`
	RetentionWindow   string            `json:"retention_window"`
	ReapInterval      string            `json:"reap_interval"`
	SpoolDir          string            `json:"spool_dir"`
	ConnectionTimeout string            `json:"connection_timeout"`
	Devices           map[string]string `json:"devices"`
	APIAddr           string            `json:"api_addr"`
	AuthEnabled       bool              `json:"auth_enabled"`
	JournalPath       string            `json:"journal_path,omitempty"`
	JournalRetention  int               `json:"journal_retention_days"`
	ArchiveDir        string            `json:"archive_dir,omitempty"`
	WebhookCount      int               `json:"webhook_count"`
	LogLevel          string            `json:"log_level"`
	LogFormat         string            `json:"log_format"`
}

type SettingsHandler struct {
	config *config.Config
}

func NewSettingsHandler(cfg *config.Config) *SettingsHandler {
	return &SettingsHandler{config: cfg}
}

func (h *SettingsHandler) GetServerConfig(c *gin.Context) {
	if h.config == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Configuration is not available"})
		return
	}

	devices := h.config.Printers.Devices
	if devices == nil {
		devices = map[string]string{}
	}

	c.JSON(http.StatusOK, ServerConfigResponse{
		MaxJobs:           h.config.Spool.MaxJobs,
		MaxTypes:          h.config.Spool.MaxTypes,
		RetentionWindow:   h.config.Spool.RetentionWindow.String(),
		ReapInterval:      h.config.Spool.ReapInterval.String(),
		SpoolDir:          h.config.Printers.SpoolDir,
		ConnectionTimeout: h.config.Printers.ConnectionTimeout.String(),
		Devices:           devices,
		APIAddr:           h.config.API.Addr,
		AuthEnabled:       h.config.API.JWTSecret != "",
		JournalPath:       h.config.Journal.Path,
		JournalRetention:  h.config.Journal.RetentionDays,
		ArchiveDir:        h.config.Journal.ArchiveDir,
		WebhookCount:      len(h.config.Webhooks.Endpoints),
		LogLevel:          h.config.Logging.Level,
		LogFormat:         h.config.Logging.Format,
	})
}
