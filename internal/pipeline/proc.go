package pipeline

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/orrn/presi/internal/core"
)

// ProcWaiter collects status changes of any child of this process without
// blocking.
type ProcWaiter struct{}

func (ProcWaiter) Next() (core.ChildStatus, bool) {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil || pid <= 0 {
			return core.ChildStatus{}, false
		}

		st := core.ChildStatus{Pid: pid, Group: pid, Raw: int(ws)}
		if pgid, err := unix.Getpgid(pid); err == nil {
			st.Group = pgid
		}

		switch {
		case ws.Stopped():
			st.State = core.ChildStopped
		case ws.Continued():
			st.State = core.ChildContinued
		case ws.Exited():
			st.State = core.ChildExited
			st.ExitCode = ws.ExitStatus()
		case ws.Signaled():
			st.State = core.ChildSignaled
			st.Signal = ws.Signal()
		default:
			continue
		}
		return st, true
	}
}

// GroupSignaler signals whole process groups.
type GroupSignaler struct{}

func (GroupSignaler) SignalGroup(pgid int, sig syscall.Signal) error {
	if pgid <= 0 {
		return unix.ESRCH
	}
	return unix.Kill(-pgid, sig)
}
