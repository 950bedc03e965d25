// Package handlers holds the gin handlers of the admin API. Every spooler
// access goes through a Runner so it executes on the spooler's loop.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orrn/presi/internal/core"
)

type Runner interface {
	Do(ctx context.Context, fn func(*core.Spooler) error) error
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrBadArguments), errors.Is(err, core.ErrUnknownType):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, core.ErrUnknownJob), errors.Is(err, core.ErrUnknownPrinter):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrDuplicateName):
		return http.StatusConflict, "duplicate_name"
	case errors.Is(err, core.ErrInvalidTransition), errors.Is(err, core.ErrPrinterBusy):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, core.ErrCapacity):
		return http.StatusInsufficientStorage, "capacity_exhausted"
	case errors.Is(err, core.ErrLoopStopped), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func respondError(c *gin.Context, err error) {
	code, kind := statusFor(err)
	c.JSON(code, ErrorResponse{Error: kind, Message: err.Error()})
}

func validationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: err.Error()})
}

func jobIDParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_id", Message: "Invalid job ID"})
		return 0, false
	}
	return id, true
}
