package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/presi/internal/db"
)

type EventStore interface {
	Events(ctx context.Context, f db.EventFilter) ([]*db.EventRecord, error)
}

type ListEventsQuery struct {
	JobID *int   `form:"job_id" binding:"omitempty,min=0"`
	Kind  string `form:"kind"`
	Limit int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

type EventHandler struct {
	store EventStore
}

// NewEventHandler serves the journal; a nil store answers 404.
func NewEventHandler(store EventStore) *EventHandler {
	return &EventHandler{store: store}
}

func (h *EventHandler) ListEvents(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Event journal is not configured"})
		return
	}

	var query ListEventsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		validationError(c, err)
		return
	}

	records, err := h.store.Events(c.Request.Context(), db.EventFilter{
		JobID: query.JobID,
		Kind:  query.Kind,
		Limit: query.Limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "database_error", Message: "Failed to retrieve events"})
		return
	}
	if records == nil {
		records = []*db.EventRecord{}
	}
	c.JSON(http.StatusOK, records)
}
