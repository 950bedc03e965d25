package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/presi/internal/core"
)

type CreateJobRequest struct {
	File     string   `json:"file" binding:"required"`
	Printers []string `json:"printers"`
}

type JobResponse struct {
	ID           int        `json:"id"`
	File         string     `json:"file"`
	Type         string     `json:"type"`
	Status       string     `json:"status"`
	Printer      string     `json:"printer,omitempty"`
	Eligible     []string   `json:"eligible,omitempty"`
	ProcessGroup int        `json:"process_group,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

type ListJobsQuery struct {
	Status string `form:"status"`
}

type JobHandler struct {
	runner Runner
}

func NewJobHandler(runner Runner) *JobHandler {
	return &JobHandler{runner: runner}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// jobToResponse must run on the loop since it reads the printer table.
// An unrestricted job lists no eligible printers.
func jobToResponse(s *core.Spooler, j core.Job) JobResponse {
	resp := JobResponse{
		ID:           j.ID,
		File:         j.FileName,
		Type:         j.FileType,
		Status:       string(j.Status),
		Printer:      j.PrinterName(),
		ProcessGroup: j.ProcessGroup,
		CreatedAt:    j.CreatedAt,
		StartedAt:    optionalTime(j.StartedAt),
		FinishedAt:   optionalTime(j.FinishedAt),
	}
	if j.Eligible != core.AllPrinters {
		for _, p := range s.Printers() {
			if j.Eligible.Has(p.ID) {
				resp.Eligible = append(resp.Eligible, p.Name)
			}
		}
	}
	return resp
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	var query ListJobsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		validationError(c, err)
		return
	}

	responses := []JobResponse{}
	err := h.runner.Do(c.Request.Context(), func(s *core.Spooler) error {
		for _, j := range s.Jobs() {
			if query.Status != "" && string(j.Status) != query.Status {
				continue
			}
			responses = append(responses, jobToResponse(s, j))
		}
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, responses)
}

func (h *JobHandler) GetJob(c *gin.Context) {
	id, ok := jobIDParam(c)
	if !ok {
		return
	}
	h.respondJob(c, http.StatusOK, id, nil)
}

// CreateJob submits a file for printing. The job may already be running
// by the time the response is written.
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, err)
		return
	}

	var resp JobResponse
	err := h.runner.Do(c.Request.Context(), func(s *core.Spooler) error {
		id, err := s.SubmitJob(req.File, req.Printers...)
		if err != nil {
			return err
		}
		resp = jobToResponse(s, *s.LookupJob(id))
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *JobHandler) PauseJob(c *gin.Context) {
	h.signal(c, (*core.Spooler).Pause)
}

func (h *JobHandler) ResumeJob(c *gin.Context) {
	h.signal(c, (*core.Spooler).Resume)
}

func (h *JobHandler) CancelJob(c *gin.Context) {
	h.signal(c, (*core.Spooler).Cancel)
}

// signal applies op and answers 202: pause, resume and cancel of an
// active job complete only once the reaper observes the child.
func (h *JobHandler) signal(c *gin.Context, op func(*core.Spooler, int) error) {
	id, ok := jobIDParam(c)
	if !ok {
		return
	}
	h.respondJob(c, http.StatusAccepted, id, op)
}

func (h *JobHandler) respondJob(c *gin.Context, code, id int, op func(*core.Spooler, int) error) {
	var resp JobResponse
	err := h.runner.Do(c.Request.Context(), func(s *core.Spooler) error {
		if op != nil {
			if err := op(s, id); err != nil {
				return err
			}
		}
		j := s.LookupJob(id)
		if j == nil {
			return core.ErrUnknownJob
		}
		resp = jobToResponse(s, *j)
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(code, resp)
}
