// Package signals turns asynchronous signal delivery into a wakeup that a
// single-threaded loop can select on.
package signals

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Wakeup records that a signal arrived. Delivery only sets a flag and
// performs a non-blocking send on a one-slot channel; the owner of the
// state decides when to act on it.
type Wakeup struct {
	pending atomic.Bool
	ready   chan struct{}

	sigs     chan os.Signal
	stop     chan struct{}
	stopOnce sync.Once
}

// New returns a Wakeup that is not subscribed to any signal. Mark drives it
// directly.
func New() *Wakeup {
	return &Wakeup{
		ready: make(chan struct{}, 1),
		stop:  make(chan struct{}),
	}
}

// NotifyChild subscribes a new Wakeup to SIGCHLD.
func NotifyChild() *Wakeup {
	return Notify(unix.SIGCHLD)
}

func Notify(sig ...os.Signal) *Wakeup {
	w := New()
	w.sigs = make(chan os.Signal, 1)
	signal.Notify(w.sigs, sig...)
	go w.forward()
	return w
}

func (w *Wakeup) forward() {
	for {
		select {
		case <-w.stop:
			return
		case <-w.sigs:
			w.Mark()
		}
	}
}

// Mark flags a pending delivery and wakes the reader if it is not already
// awake.
func (w *Wakeup) Mark() {
	w.pending.Store(true)
	select {
	case w.ready <- struct{}{}:
	default:
	}
}

func (w *Wakeup) C() <-chan struct{} {
	return w.ready
}

// Consume reports whether a delivery was pending and clears the flag.
func (w *Wakeup) Consume() bool {
	return w.pending.Swap(false)
}

func (w *Wakeup) Stop() {
	w.stopOnce.Do(func() {
		if w.sigs != nil {
			signal.Stop(w.sigs)
		}
		close(w.stop)
	})
}
