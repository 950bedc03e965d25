// Package shell is the line-oriented command front end of the spooler.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/orrn/presi/internal/core"
)

const Prompt = "presi> "

const maxArgs = 32

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("wrong number of arguments")
)

const helpText = `Commands:
help quit
type printer conversion
printers jobs
print [pause, resume, cancel] [enable, disable]
`

// Runner executes a closure with exclusive access to the spooler.
type Runner interface {
	Do(ctx context.Context, fn func(*core.Spooler) error) error
}

type command struct {
	usage   string
	minArgs int
	maxArgs int
	run     func(sh *Shell, ctx context.Context, args []string) error
}

var commands = map[string]command{
	"help":       {usage: "help", run: (*Shell).help},
	"type":       {usage: "type NAME", minArgs: 1, maxArgs: 1, run: (*Shell).defineType},
	"printer":    {usage: "printer NAME TYPE", minArgs: 2, maxArgs: 2, run: (*Shell).definePrinter},
	"conversion": {usage: "conversion FROM TO CMD [ARGS...]", minArgs: 3, maxArgs: -1, run: (*Shell).defineConversion},
	"printers":   {usage: "printers", run: (*Shell).listPrinters},
	"jobs":       {usage: "jobs", run: (*Shell).listJobs},
	"print":      {usage: "print FILE [PRINTER...]", minArgs: 1, maxArgs: -1, run: (*Shell).print},
	"pause":      {usage: "pause ID", minArgs: 1, maxArgs: 1, run: jobCommand((*core.Spooler).Pause)},
	"resume":     {usage: "resume ID", minArgs: 1, maxArgs: 1, run: jobCommand((*core.Spooler).Resume)},
	"cancel":     {usage: "cancel ID", minArgs: 1, maxArgs: 1, run: jobCommand((*core.Spooler).Cancel)},
	"enable":     {usage: "enable PRINTER", minArgs: 1, maxArgs: 1, run: printerCommand((*core.Spooler).Enable)},
	"disable":    {usage: "disable PRINTER", minArgs: 1, maxArgs: 1, run: printerCommand((*core.Spooler).Disable)},
}

type Shell struct {
	runner Runner
	out    io.Writer
	logger *zap.Logger
	quit   bool
}

func New(runner Runner, out io.Writer, logger *zap.Logger) *Shell {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Shell{
		runner: runner,
		out:    out,
		logger: logger.With(zap.String("component", "shell")),
	}
}

// Run reads commands from in until quit, end of input or ctx is done.
// Failed commands are reported on the output and do not stop the shell.
func (sh *Shell) Run(ctx context.Context, in io.Reader, interactive bool) error {
	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(sh.out, Prompt)
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		quit, err := sh.Exec(ctx, scanner.Text())
		if err != nil {
			if errors.Is(err, core.ErrLoopStopped) || errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(sh.out, "error: %v\n", err)
		}
		if quit {
			sh.quit = true
			return nil
		}
	}
}

// Quit reports whether a quit command has been read.
func (sh *Shell) Quit() bool {
	return sh.quit
}

// Exec runs one command line. It reports quit for the quit command.
func (sh *Shell) Exec(ctx context.Context, line string) (bool, error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false, nil
	}
	if len(args) > maxArgs {
		args = args[:maxArgs]
	}

	name, args := args[0], args[1:]
	if name == "quit" {
		return true, nil
	}

	cmd, ok := commands[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	if len(args) < cmd.minArgs || (cmd.maxArgs >= 0 && len(args) > cmd.maxArgs) {
		return false, fmt.Errorf("%w: usage: %s", ErrUsage, cmd.usage)
	}

	err := cmd.run(sh, ctx, args)
	if err != nil {
		sh.logger.Debug("command failed", zap.String("command", name), zap.Error(err))
	}
	return false, err
}

func (sh *Shell) help(ctx context.Context, args []string) error {
	_, err := io.WriteString(sh.out, helpText)
	return err
}

func (sh *Shell) defineType(ctx context.Context, args []string) error {
	return sh.runner.Do(ctx, func(s *core.Spooler) error {
		return s.AddType(args[0])
	})
}

func (sh *Shell) definePrinter(ctx context.Context, args []string) error {
	return sh.runner.Do(ctx, func(s *core.Spooler) error {
		_, err := s.AddPrinter(args[0], args[1])
		return err
	})
}

func (sh *Shell) defineConversion(ctx context.Context, args []string) error {
	return sh.runner.Do(ctx, func(s *core.Spooler) error {
		return s.DefineConversion(args[0], args[1], args[2:])
	})
}

func (sh *Shell) print(ctx context.Context, args []string) error {
	return sh.runner.Do(ctx, func(s *core.Spooler) error {
		_, err := s.SubmitJob(args[0], args[1:]...)
		return err
	})
}

func (sh *Shell) listPrinters(ctx context.Context, args []string) error {
	var printers []core.Printer
	err := sh.runner.Do(ctx, func(s *core.Spooler) error {
		printers = s.Printers()
		return nil
	})
	if err != nil {
		return err
	}
	for _, p := range printers {
		fmt.Fprintln(sh.out, FormatPrinter(p))
	}
	return nil
}

func (sh *Shell) listJobs(ctx context.Context, args []string) error {
	var jobs []core.Job
	err := sh.runner.Do(ctx, func(s *core.Spooler) error {
		jobs = s.Jobs()
		return nil
	})
	if err != nil {
		return err
	}
	for _, j := range jobs {
		fmt.Fprintln(sh.out, FormatJob(j))
	}
	return nil
}

func FormatPrinter(p core.Printer) string {
	return fmt.Sprintf("PRINTER %2d %-10s type=%-4s %s", p.ID, p.Name, p.Type, p.Status)
}

func FormatJob(j core.Job) string {
	return fmt.Sprintf("JOB[%2d] %-10s %s", j.ID, j.Status, j.FileName)
}

func jobCommand(op func(*core.Spooler, int) error) func(*Shell, context.Context, []string) error {
	return func(sh *Shell, ctx context.Context, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil || id < 0 {
			return fmt.Errorf("%w: job id %q", core.ErrBadArguments, args[0])
		}
		return sh.runner.Do(ctx, func(s *core.Spooler) error {
			return op(s, id)
		})
	}
}

func printerCommand(op func(*core.Spooler, string) error) func(*Shell, context.Context, []string) error {
	return func(sh *Shell, ctx context.Context, args []string) error {
		return sh.runner.Do(ctx, func(s *core.Spooler) error {
			return op(s, args[0])
		})
	}
}
