package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/presi/internal/archive"
)

type Archiver interface {
	List() ([]*archive.ArchiveFile, error)
	Archive(ctx context.Context, cutoff time.Time) (int, error)
}

type ArchiveListResponse struct {
	Archives []*archive.ArchiveFile `json:"archives"`
	Count    int                    `json:"count"`
}

type RunArchiveRequest struct {
	OlderThanDays int `json:"older_than_days" binding:"min=0"`
}

type ArchiveHandler struct {
	archiver Archiver
}

// NewArchiveHandler serves journal archives; a nil archiver answers 404.
func NewArchiveHandler(archiver Archiver) *ArchiveHandler {
	return &ArchiveHandler{archiver: archiver}
}

func (h *ArchiveHandler) unavailable(c *gin.Context) bool {
	if h.archiver == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Journal archiving is not configured"})
		return true
	}
	return false
}

func (h *ArchiveHandler) ListArchives(c *gin.Context) {
	if h.unavailable(c) {
		return
	}

	archives, err := h.archiver.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "archive_error", Message: "Failed to list archives"})
		return
	}
	if archives == nil {
		archives = []*archive.ArchiveFile{}
	}

	c.JSON(http.StatusOK, ArchiveListResponse{
		Archives: archives,
		Count:    len(archives),
	})
}

// RunArchive archives events older than the requested number of days
// right away.
func (h *ArchiveHandler) RunArchive(c *gin.Context) {
	if h.unavailable(c) {
		return
	}

	var req RunArchiveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			validationError(c, err)
			return
		}
	}

	cutoff := time.Now().AddDate(0, 0, -req.OlderThanDays)
	moved, err := h.archiver.Archive(c.Request.Context(), cutoff)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "archive_error", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"archived": moved})
}
