package core

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

var ErrLoopStopped = errors.New("spooler loop stopped")

const defaultReapInterval = time.Second

// Wakeup reports asynchronous child status changes. C becomes readable when
// a change may be pending and Consume clears the pending flag.
type Wakeup interface {
	C() <-chan struct{}
	Consume() bool
}

type request struct {
	fn     func(*Spooler) error
	result chan error
}

// Loop serialises every access to a Spooler on a single goroutine. Callers
// hand it closures through Do; child status changes and the periodic
// retention pass are handled between requests.
type Loop struct {
	spooler  *Spooler
	wakeup   Wakeup
	interval time.Duration
	logger   *zap.Logger

	requests chan request
	done     chan struct{}
}

func NewLoop(s *Spooler, w Wakeup, interval time.Duration, logger *zap.Logger) *Loop {
	if interval <= 0 {
		interval = defaultReapInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		spooler:  s,
		wakeup:   w,
		interval: interval,
		logger:   logger.With(zap.String("component", "loop")),
		requests: make(chan request),
		done:     make(chan struct{}),
	}
}

// Run processes requests until ctx is cancelled. On the way out every
// active process group is asked to terminate.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	var wake <-chan struct{}
	if l.wakeup != nil {
		wake = l.wakeup.C()
	}

	l.logger.Info("spooler loop started", zap.Duration("reap_interval", l.interval))
	for {
		select {
		case <-ctx.Done():
			l.spooler.Shutdown()
			l.logger.Info("spooler loop stopped")
			return nil
		case req := <-l.requests:
			req.result <- req.fn(l.spooler)
		case <-wake:
			if l.wakeup.Consume() {
				if n := l.spooler.Reap(); n > 0 {
					l.logger.Debug("reaped child status changes", zap.Int("count", n))
				}
			}
		case <-ticker.C:
			l.spooler.Reap()
		}
	}
}

// Do runs fn on the loop goroutine and returns its error.
func (l *Loop) Do(ctx context.Context, fn func(*Spooler) error) error {
	req := request{fn: fn, result: make(chan error, 1)}

	select {
	case l.requests <- req:
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
