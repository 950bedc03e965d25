package core

import (
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/orrn/presi/internal/conversion"
)

// TryDispatch makes at most one assignment: the lowest-id Created job that
// has a feasible printer, bound to the lowest-id Idle eligible printer
// reachable by a conversion path. It reports whether a pipeline was
// committed. Callers re-run it after every state change.
func (s *Spooler) TryDispatch() bool {
	for _, j := range s.createdJobs() {
		for _, p := range s.printers {
			if p.Status != PrinterStatusIdle || !j.Eligible.Has(p.ID) {
				continue
			}
			steps, ok := s.path(j.FileType, p.Type)
			if !ok {
				continue
			}
			return s.commit(j, p, steps)
		}
	}
	return false
}

func (s *Spooler) createdJobs() []*Job {
	var out []*Job
	for _, j := range s.jobs {
		if j.Status == JobStatusCreated {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

func (s *Spooler) path(from, to string) ([]conversion.Step, bool) {
	if !s.graph.LookupType(from) || !s.graph.LookupType(to) {
		return nil, false
	}
	if from == to {
		return nil, true
	}
	steps, ok := s.graph.FindPath(from, to)
	if !ok {
		return nil, false
	}
	return steps, true
}

func (s *Spooler) commit(j *Job, p *Printer, steps []conversion.Step) bool {
	if s.launcher == nil {
		s.logger.Error("no launcher configured", zap.Int("job", j.ID))
		return false
	}
	if len(steps) == 0 {
		s.passthrough(j, p)
		return true
	}

	pgid, err := s.launcher.Launch(j, p, steps)
	if err != nil {
		if errors.Is(err, ErrSpawn) {
			s.logger.Warn("pipeline spawn failed, job stays queued", zap.Int("job", j.ID), zap.Error(err))
			return false
		}
		s.logger.Warn("pipeline resources unavailable", zap.Int("job", j.ID), zap.String("printer", p.Name), zap.Error(err))
		s.abortUnstarted(j, p)
		s.TryDispatch()
		return true
	}

	j.ProcessGroup = pgid
	j.Printer = p
	j.StartedAt = s.now()
	p.ProcessGroup = pgid
	s.groups[pgid] = j

	s.setPrinterStatus(p, PrinterStatusBusy)
	s.setJobStatus(j, JobStatusRunning)
	s.notify(Event{
		Kind:     EventJobStarted,
		JobID:    j.ID,
		Printer:  p.Name,
		Group:    pgid,
		Commands: commandNames(steps),
	})
	return true
}

// passthrough handles identical source and printer types: bytes are copied
// in-process and no process group is created.
func (s *Spooler) passthrough(j *Job, p *Printer) {
	err := s.launcher.Passthrough(j, p)
	if errors.Is(err, ErrSourceUnavailable) || errors.Is(err, ErrTransportUnavailable) {
		s.logger.Warn("passthrough resources unavailable", zap.Int("job", j.ID), zap.String("printer", p.Name), zap.Error(err))
		s.abortUnstarted(j, p)
		s.TryDispatch()
		return
	}

	j.Printer = p
	j.StartedAt = s.now()
	s.setPrinterStatus(p, PrinterStatusBusy)
	s.setJobStatus(j, JobStatusRunning)
	s.notify(Event{Kind: EventJobStarted, JobID: j.ID, Printer: p.Name, Commands: []string{}})

	j.FinishedAt = s.now()
	s.setPrinterStatus(p, PrinterStatusIdle)
	if err != nil {
		s.logger.Warn("passthrough copy failed", zap.Int("job", j.ID), zap.Error(err))
		s.setJobStatus(j, JobStatusAborted)
		s.notify(Event{Kind: EventJobAborted, JobID: j.ID, ExitStatus: abortStatusResource})
	} else {
		s.setJobStatus(j, JobStatusFinished)
		s.notify(Event{Kind: EventJobFinished, JobID: j.ID, ExitStatus: 0})
	}

	s.TryDispatch()
}

// abortUnstarted aborts a job whose file or printer could not be opened.
// The printer stays Idle.
func (s *Spooler) abortUnstarted(j *Job, p *Printer) {
	j.Printer = p
	j.FinishedAt = s.now()
	s.setJobStatus(j, JobStatusAborted)
	s.notify(Event{Kind: EventJobAborted, JobID: j.ID, ExitStatus: abortStatusResource})
}

func commandNames(steps []conversion.Step) []string {
	out := make([]string, 0, len(steps))
	for _, st := range steps {
		out = append(out, st.Name())
	}
	return out
}
