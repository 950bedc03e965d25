package core

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orrn/presi/internal/conversion"
)

type launch struct {
	JobID   int
	Printer string
	Steps   []conversion.Step
	Group   int
}

// fakeLauncher records every attempt. Errors are keyed by job id.
type fakeLauncher struct {
	nextGroup    int
	attempts     []launch
	launches     []launch
	passthroughs []launch

	launchErr      map[int]error
	passthroughErr map[int]error
}

func (f *fakeLauncher) Passthrough(j *Job, p *Printer) error {
	f.passthroughs = append(f.passthroughs, launch{JobID: j.ID, Printer: p.Name})
	return f.passthroughErr[j.ID]
}

func (f *fakeLauncher) Launch(j *Job, p *Printer, steps []conversion.Step) (int, error) {
	attempt := launch{JobID: j.ID, Printer: p.Name, Steps: steps}
	f.attempts = append(f.attempts, attempt)
	if err := f.launchErr[j.ID]; err != nil {
		return 0, err
	}
	f.nextGroup++
	attempt.Group = 1000 + f.nextGroup
	f.launches = append(f.launches, attempt)
	return attempt.Group, nil
}

type sent struct {
	Group  int
	Signal syscall.Signal
}

type fakeSignaler struct {
	sent []sent
	err  error
}

func (f *fakeSignaler) SignalGroup(pgid int, sig syscall.Signal) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{Group: pgid, Signal: sig})
	return nil
}

type fakeWaiter struct {
	pending []ChildStatus
}

func (f *fakeWaiter) push(st ...ChildStatus) {
	f.pending = append(f.pending, st...)
}

func (f *fakeWaiter) Next() (ChildStatus, bool) {
	if len(f.pending) == 0 {
		return ChildStatus{}, false
	}
	st := f.pending[0]
	f.pending = f.pending[1:]
	return st, true
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type recorder struct {
	events []Event
}

func (r *recorder) Notify(e Event) { r.events = append(r.events, e) }

func (r *recorder) kinds() []EventKind {
	out := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func (r *recorder) reset() { r.events = nil }

func (r *recorder) ofKind(k EventKind) []Event {
	var out []Event
	for _, e := range r.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	s        *Spooler
	launcher *fakeLauncher
	signaler *fakeSignaler
	waiter   *fakeWaiter
	clock    *fakeClock
	events   *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		launcher: &fakeLauncher{launchErr: map[int]error{}, passthroughErr: map[int]error{}},
		signaler: &fakeSignaler{},
		waiter:   &fakeWaiter{},
		clock:    &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		events:   &recorder{},
	}
	h.s = New(Options{
		Launcher: h.launcher,
		Signaler: h.signaler,
		Waiter:   h.waiter,
		Observer: h.events,
		Now:      h.clock.Now,
	})
	return h
}

func (h *harness) types(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, h.s.AddType(n))
	}
}

func (h *harness) printer(t *testing.T, name, fileType string, enable bool) int {
	t.Helper()
	id, err := h.s.AddPrinter(name, fileType)
	require.NoError(t, err)
	if enable {
		require.NoError(t, h.s.Enable(name))
	}
	return id
}

func exited(group, code int) ChildStatus {
	return ChildStatus{Pid: group, Group: group, State: ChildExited, ExitCode: code, Raw: code << 8}
}

func signaled(group int, sig syscall.Signal) ChildStatus {
	return ChildStatus{Pid: group, Group: group, State: ChildSignaled, Signal: sig, Raw: int(sig)}
}

func stopped(group int) ChildStatus {
	return ChildStatus{Pid: group, Group: group, State: ChildStopped, Raw: 0x137f}
}

func continued(group int) ChildStatus {
	return ChildStatus{Pid: group, Group: group, State: ChildContinued, Raw: 0xffff}
}

// checkInvariants asserts the process group and busy printer invariants.
func checkInvariants(t *testing.T, s *Spooler) {
	t.Helper()
	owners := map[string]int{}
	for _, j := range s.jobs {
		if j.Status == JobStatusDeleted {
			continue
		}
		require.Equal(t, j.Status.Active(), j.ProcessGroup != 0, "job %d in %s", j.ID, j.Status)
		if j.Status.Active() {
			require.NotNil(t, j.Printer)
			require.Equal(t, j.ProcessGroup, j.Printer.ProcessGroup)
			require.Same(t, j, s.groups[j.ProcessGroup])
			owners[j.Printer.Name]++
		}
	}
	for _, p := range s.printers {
		busy := p.Status == PrinterStatusBusy
		require.Equal(t, busy, p.ProcessGroup != 0, "printer %s in %s", p.Name, p.Status)
		require.Equal(t, busy, owners[p.Name] == 1, "printer %s owners", p.Name)
	}
	require.Len(t, s.groups, len(owners))
}
