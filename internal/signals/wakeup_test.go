package signals

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestWakeupMarkCoalesces(t *testing.T) {
	w := New()
	defer w.Stop()

	assert.False(t, w.Consume())

	w.Mark()
	w.Mark()
	w.Mark()

	select {
	case <-w.C():
	default:
		t.Fatal("expected a pending wakeup")
	}
	select {
	case <-w.C():
		t.Fatal("repeated marks must collapse into one wakeup")
	default:
	}

	assert.True(t, w.Consume())
	assert.False(t, w.Consume())
}

func TestWakeupDeliversSignal(t *testing.T) {
	w := Notify(unix.SIGUSR1)
	defer w.Stop()

	require.NoError(t, unix.Kill(os.Getpid(), unix.SIGUSR1))

	select {
	case <-w.C():
	case <-time.After(5 * time.Second):
		t.Fatal("signal was not delivered")
	}
	assert.True(t, w.Consume())
}

func TestWakeupStopIsIdempotent(t *testing.T) {
	w := NotifyChild()
	w.Stop()
	w.Stop()
}
