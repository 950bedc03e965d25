package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/presi/internal/core"
)

type CreatePrinterRequest struct {
	Name string `json:"name" binding:"required"`
	Type string `json:"type" binding:"required"`
}

type PrinterResponse struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Status       string `json:"status"`
	ProcessGroup int    `json:"process_group,omitempty"`
}

type PrinterHandler struct {
	runner Runner
}

func NewPrinterHandler(runner Runner) *PrinterHandler {
	return &PrinterHandler{runner: runner}
}

func printerToResponse(p core.Printer) PrinterResponse {
	return PrinterResponse{
		ID:           p.ID,
		Name:         p.Name,
		Type:         p.Type,
		Status:       string(p.Status),
		ProcessGroup: p.ProcessGroup,
	}
}

func (h *PrinterHandler) ListPrinters(c *gin.Context) {
	var printers []core.Printer
	err := h.runner.Do(c.Request.Context(), func(s *core.Spooler) error {
		printers = s.Printers()
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]PrinterResponse, 0, len(printers))
	for _, p := range printers {
		responses = append(responses, printerToResponse(p))
	}
	c.JSON(http.StatusOK, responses)
}

func (h *PrinterHandler) CreatePrinter(c *gin.Context) {
	var req CreatePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}

	var created core.Printer
	err := h.runner.Do(c.Request.Context(), func(s *core.Spooler) error {
		if _, err := s.AddPrinter(req.Name, req.Type); err != nil {
			return err
		}
		created = *s.LookupPrinter(req.Name)
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, printerToResponse(created))
}

func (h *PrinterHandler) EnablePrinter(c *gin.Context) {
	h.transition(c, (*core.Spooler).Enable)
}

func (h *PrinterHandler) DisablePrinter(c *gin.Context) {
	h.transition(c, (*core.Spooler).Disable)
}

func (h *PrinterHandler) transition(c *gin.Context, op func(*core.Spooler, string) error) {
	name := c.Param("name")

	var updated core.Printer
	err := h.runner.Do(c.Request.Context(), func(s *core.Spooler) error {
		if err := op(s, name); err != nil {
			return err
		}
		updated = *s.LookupPrinter(name)
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, printerToResponse(updated))
}
