package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/orrn/presi/internal/conversion"
)

// supervisorEnv carries the JSON encoded conversion steps to a re-executed
// copy of the current binary. Its presence switches the binary into
// supervisor mode.
const supervisorEnv = "PRESI_PIPELINE"

const (
	sourceFD    = 3
	transportFD = 4
)

// IsSupervisor reports whether this process was started to supervise a
// pipeline. Binaries that use Executor must check it first thing in main.
func IsSupervisor() bool {
	_, ok := os.LookupEnv(supervisorEnv)
	return ok
}

// RunSupervisor runs the pipeline described by the environment between the
// inherited source and transport descriptors and returns the exit code:
// 0 when every stage exited 0, 1 otherwise.
func RunSupervisor() int {
	var steps []conversion.Step
	if err := json.Unmarshal([]byte(os.Getenv(supervisorEnv)), &steps); err != nil {
		fmt.Fprintf(os.Stderr, "presi: bad pipeline description: %v\n", err)
		return 1
	}
	src := os.NewFile(sourceFD, "source")
	dst := os.NewFile(transportFD, "transport")
	if src == nil || dst == nil {
		fmt.Fprintln(os.Stderr, "presi: pipeline descriptors missing")
		return 1
	}
	return supervise(steps, src, dst)
}

// supervise starts one process per step, chained by pipes from src to dst,
// and waits for all of them. The supervisor's copies of every descriptor
// are closed before waiting so stages see EOF and EPIPE as they should.
func supervise(steps []conversion.Step, src, dst *os.File) int {
	failed := len(steps) == 0
	started := make([]*exec.Cmd, 0, len(steps))
	env := stageEnv()

	in := src
	for i, step := range steps {
		if len(step.Command) == 0 {
			fmt.Fprintf(os.Stderr, "presi: step %d has no command\n", i)
			failed = true
			break
		}
		out := dst
		var next *os.File
		if i < len(steps)-1 {
			r, w, err := os.Pipe()
			if err != nil {
				fmt.Fprintf(os.Stderr, "presi: pipe: %v\n", err)
				failed = true
				break
			}
			out, next = w, r
		}

		cmd := exec.Command(step.Command[0], step.Command[1:]...)
		cmd.Stdin = in
		cmd.Stdout = out
		cmd.Stderr = os.Stderr
		cmd.Env = env
		err := cmd.Start()

		if in != src {
			in.Close()
		}
		if out != dst {
			out.Close()
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "presi: %s: %v\n", step.Name(), err)
			if next != nil {
				next.Close()
			}
			failed = true
			break
		}
		started = append(started, cmd)
		in = next
	}
	if in != nil && in != src {
		in.Close()
	}

	src.Close()
	dst.Close()

	for _, cmd := range started {
		if err := cmd.Wait(); err != nil {
			failed = true
		}
	}
	if failed {
		return 1
	}
	return 0
}

// stageEnv is the supervisor's environment minus the pipeline description.
func stageEnv() []string {
	env := os.Environ()
	out := env[:0]
	for _, kv := range env {
		if !strings.HasPrefix(kv, supervisorEnv+"=") {
			out = append(out, kv)
		}
	}
	return out
}
