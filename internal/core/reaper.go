package core

import (
	"syscall"

	"go.uber.org/zap"
)

type ChildState int

const (
	ChildStopped ChildState = iota + 1
	ChildContinued
	ChildExited
	ChildSignaled
)

func (c ChildState) String() string {
	switch c {
	case ChildStopped:
		return "stopped"
	case ChildContinued:
		return "continued"
	case ChildExited:
		return "exited"
	case ChildSignaled:
		return "signaled"
	default:
		return "unknown"
	}
}

// ChildStatus is one status change of a child process. Group is the
// process group the child belonged to; for a supervisor it equals Pid.
type ChildStatus struct {
	Pid      int
	Group    int
	State    ChildState
	ExitCode int
	Signal   syscall.Signal
	Raw      int
}

func (c ChildStatus) Succeeded() bool {
	return c.State == ChildExited && c.ExitCode == 0
}

// Waiter reports pending child status changes without blocking. Next
// returns false once nothing is pending.
type Waiter interface {
	Next() (ChildStatus, bool)
}

// Reap drains every pending child status change, applies it to the owning
// job, deletes expired terminal jobs and re-runs the dispatcher. It returns
// the number of status changes consumed.
func (s *Spooler) Reap() int {
	n := 0
	if s.waiter != nil {
		for {
			st, ok := s.waiter.Next()
			if !ok {
				break
			}
			n++
			s.applyChildStatus(st)
		}
	}

	s.CollectGarbage()
	s.TryDispatch()
	return n
}

func (s *Spooler) applyChildStatus(st ChildStatus) {
	j, ok := s.groups[st.Group]
	if !ok {
		j, ok = s.groups[st.Pid]
	}
	if !ok {
		s.logger.Debug("status change for unknown process group",
			zap.Int("pid", st.Pid),
			zap.Int("pgid", st.Group),
			zap.Stringer("state", st.State),
		)
		return
	}

	switch st.State {
	case ChildStopped:
		if j.Status == JobStatusRunning {
			s.setJobStatus(j, JobStatusPaused)
		}
	case ChildContinued:
		if j.Status == JobStatusPaused {
			s.setJobStatus(j, JobStatusRunning)
		}
	case ChildExited, ChildSignaled:
		s.finish(j, st)
	}
}

func (s *Spooler) finish(j *Job, st ChildStatus) {
	j.FinishedAt = s.now()
	delete(s.groups, j.ProcessGroup)
	j.ProcessGroup = 0

	if p := j.Printer; p != nil {
		p.ProcessGroup = 0
		s.setPrinterStatus(p, PrinterStatusIdle)
	}

	if st.Succeeded() {
		s.setJobStatus(j, JobStatusFinished)
		s.notify(Event{Kind: EventJobFinished, JobID: j.ID, ExitStatus: st.Raw})
		return
	}

	s.logger.Info("job pipeline failed",
		zap.Int("job", j.ID),
		zap.Stringer("state", st.State),
		zap.Int("exit_code", st.ExitCode),
	)
	s.setJobStatus(j, JobStatusAborted)
	s.notify(Event{Kind: EventJobAborted, JobID: j.ID, ExitStatus: st.Raw})
}

// CollectGarbage deletes Finished and Aborted jobs whose retention window
// has elapsed. Deleted slots become reusable.
func (s *Spooler) CollectGarbage() int {
	now := s.now()
	n := 0
	for _, j := range s.jobs {
		if !j.Status.Terminal() || now.Sub(j.FinishedAt) < s.retention {
			continue
		}
		j.Status = JobStatusDeleted
		n++
		s.notify(Event{Kind: EventJobDeleted, JobID: j.ID})
	}
	return n
}
