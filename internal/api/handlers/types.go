package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/presi/internal/core"
)

type CreateTypeRequest struct {
	Name string `json:"name" binding:"required"`
}

type CreateConversionRequest struct {
	From    string   `json:"from" binding:"required"`
	To      string   `json:"to" binding:"required"`
	Command []string `json:"command" binding:"required,min=1"`
}

type TypeHandler struct {
	runner Runner
}

func NewTypeHandler(runner Runner) *TypeHandler {
	return &TypeHandler{runner: runner}
}

func (h *TypeHandler) ListTypes(c *gin.Context) {
	var types []string
	err := h.runner.Do(c.Request.Context(), func(s *core.Spooler) error {
		types = s.Types()
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if types == nil {
		types = []string{}
	}
	c.JSON(http.StatusOK, types)
}

func (h *TypeHandler) CreateType(c *gin.Context) {
	var req CreateTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}

	err := h.runner.Do(c.Request.Context(), func(s *core.Spooler) error {
		return s.AddType(req.Name)
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": req.Name})
}

func (h *TypeHandler) CreateConversion(c *gin.Context) {
	var req CreateConversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}

	err := h.runner.Do(c.Request.Context(), func(s *core.Spooler) error {
		return s.DefineConversion(req.From, req.To, req.Command)
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}
