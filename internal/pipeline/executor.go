// Package pipeline runs dispatched jobs as operating system processes.
//
// A job with conversion steps is handed to a supervisor: a re-executed copy
// of the current binary that leads its own process group, runs one child
// per step chained by pipes, waits for all of them and exits with their
// aggregate status. The spooler never waits on the supervisor directly;
// ProcWaiter collects its status changes when SIGCHLD arrives.
package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"go.uber.org/zap"

	"github.com/orrn/presi/internal/conversion"
	"github.com/orrn/presi/internal/core"
	"github.com/orrn/presi/internal/printer"
)

type Executor struct {
	connector printer.Connector
	self      string
	logger    *zap.Logger
}

// NewExecutor returns an Executor that re-executes the running binary as
// the pipeline supervisor.
func NewExecutor(connector printer.Connector, logger *zap.Logger) (*Executor, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate own executable: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		connector: connector,
		self:      self,
		logger:    logger.With(zap.String("component", "pipeline")),
	}, nil
}

func (e *Executor) open(job *core.Job, p *core.Printer) (*os.File, *os.File, error) {
	src, err := os.Open(job.FileName)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", core.ErrSourceUnavailable, err)
	}
	dst, err := e.connector.Connect(p.Name, p.Type, 0)
	if err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("%w: %v", core.ErrTransportUnavailable, err)
	}
	return src, dst, nil
}

// Passthrough copies the job file to the printer transport in-process.
func (e *Executor) Passthrough(job *core.Job, p *core.Printer) error {
	src, dst, err := e.open(job, p)
	if err != nil {
		return err
	}
	defer src.Close()
	defer dst.Close()

	n, err := io.Copy(dst, src)
	if err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", job.FileName, p.Name, err)
	}
	e.logger.Debug("passthrough copy complete",
		zap.Int("job", job.ID),
		zap.String("printer", p.Name),
		zap.Int64("bytes", n),
	)
	return nil
}

// Launch starts the supervisor for steps and returns its process group id.
// The caller's copies of the source and transport descriptors are closed
// before returning.
func (e *Executor) Launch(job *core.Job, p *core.Printer, steps []conversion.Step) (int, error) {
	payload, err := json.Marshal(steps)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrSpawn, err)
	}

	src, dst, err := e.open(job, p)
	if err != nil {
		return 0, err
	}
	defer src.Close()
	defer dst.Close()

	cmd := exec.Command(e.self)
	cmd.Env = append(os.Environ(), supervisorEnv+"="+string(payload))
	cmd.ExtraFiles = []*os.File{src, dst}
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrSpawn, err)
	}
	pgid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		e.logger.Warn("failed to release supervisor handle", zap.Int("pid", pgid), zap.Error(err))
	}

	e.logger.Info("pipeline started",
		zap.Int("job", job.ID),
		zap.String("printer", p.Name),
		zap.Int("pgid", pgid),
		zap.Int("stages", len(steps)),
	)
	return pgid, nil
}
