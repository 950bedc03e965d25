package core

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

func (s *Spooler) setPrinterStatus(p *Printer, status PrinterStatus) {
	if p.Status == status {
		return
	}
	p.Status = status
	s.notify(Event{Kind: EventPrinterStatus, Printer: p.Name, PrinterStatus: status})
}

func (s *Spooler) setJobStatus(j *Job, status JobStatus) {
	if j.Status == status {
		return
	}
	j.Status = status
	s.notify(Event{Kind: EventJobStatus, JobID: j.ID, JobStatus: status})
}

// Enable moves a disabled printer to Idle and attempts a dispatch. Enabling
// a printer that is already enabled succeeds without side effects.
func (s *Spooler) Enable(name string) error {
	p := s.LookupPrinter(name)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrUnknownPrinter, name)
	}
	if p.Status != PrinterStatusDisabled {
		return nil
	}

	s.setPrinterStatus(p, PrinterStatusIdle)
	s.TryDispatch()
	return nil
}

// Disable takes an idle printer out of service. A busy printer cannot be
// disabled until its job terminates.
func (s *Spooler) Disable(name string) error {
	p := s.LookupPrinter(name)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrUnknownPrinter, name)
	}
	switch p.Status {
	case PrinterStatusDisabled:
		return nil
	case PrinterStatusBusy:
		return fmt.Errorf("%w: %s", ErrPrinterBusy, name)
	}

	s.setPrinterStatus(p, PrinterStatusDisabled)
	return nil
}

// Pause stops a running job's process group. The job becomes Paused only
// once the reaper observes the stop.
func (s *Spooler) Pause(id int) error {
	j := s.LookupJob(id)
	if j == nil {
		return fmt.Errorf("%w: %d", ErrUnknownJob, id)
	}
	if j.Status != JobStatusRunning {
		return fmt.Errorf("%w: cannot pause %s job %d", ErrInvalidTransition, j.Status, id)
	}
	return s.signalGroup(j, unix.SIGSTOP)
}

// Resume continues a paused job's process group. The job becomes Running
// once the reaper observes the continue.
func (s *Spooler) Resume(id int) error {
	j := s.LookupJob(id)
	if j == nil {
		return fmt.Errorf("%w: %d", ErrUnknownJob, id)
	}
	if j.Status != JobStatusPaused {
		return fmt.Errorf("%w: cannot resume %s job %d", ErrInvalidTransition, j.Status, id)
	}
	return s.signalGroup(j, unix.SIGCONT)
}

// Cancel aborts a Created job immediately. An active job's group is asked
// to terminate, and a stopped group is continued first so the request takes
// effect; the job reaches Aborted through the reaper.
func (s *Spooler) Cancel(id int) error {
	j := s.LookupJob(id)
	if j == nil {
		return fmt.Errorf("%w: %d", ErrUnknownJob, id)
	}

	switch j.Status {
	case JobStatusCreated:
		j.FinishedAt = s.now()
		s.setJobStatus(j, JobStatusAborted)
		s.notify(Event{Kind: EventJobAborted, JobID: j.ID, ExitStatus: abortStatusCancelled})
		return nil
	case JobStatusRunning:
		return s.signalGroup(j, unix.SIGTERM)
	case JobStatusPaused:
		if err := s.signalGroup(j, unix.SIGCONT); err != nil {
			return err
		}
		return s.signalGroup(j, unix.SIGTERM)
	}

	return fmt.Errorf("%w: cannot cancel %s job %d", ErrInvalidTransition, j.Status, id)
}

func (s *Spooler) signalGroup(j *Job, sig unix.Signal) error {
	if s.signaler == nil || j.ProcessGroup <= 0 {
		return fmt.Errorf("%w: job %d has no process group", ErrInvalidTransition, j.ID)
	}
	if err := s.signaler.SignalGroup(j.ProcessGroup, sig); err != nil {
		return fmt.Errorf("failed to signal group %d: %w", j.ProcessGroup, err)
	}
	s.logger.Debug("signalled job group",
		zap.Int("job", j.ID),
		zap.Int("pgid", j.ProcessGroup),
		zap.String("signal", unix.SignalName(sig)),
	)
	return nil
}

// Shutdown asks every active process group to terminate. Job state is not
// changed; the caller stops reaping afterwards.
func (s *Spooler) Shutdown() {
	for _, j := range s.jobs {
		if !j.Status.Active() || j.ProcessGroup <= 0 || s.signaler == nil {
			continue
		}
		if j.Status == JobStatusPaused {
			_ = s.signaler.SignalGroup(j.ProcessGroup, unix.SIGCONT)
		}
		if err := s.signaler.SignalGroup(j.ProcessGroup, unix.SIGTERM); err != nil {
			s.logger.Warn("failed to terminate job group", zap.Int("job", j.ID), zap.Error(err))
		}
	}
}
