package ticker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tick(t *testing.T, ticker *Ticker) {
	t.Helper()
	select {
	case <-ticker.C:
	case <-time.After(time.Second):
		require.FailNow(t, "no tick")
	}
}

func quiet(t *testing.T, ticker *Ticker, d time.Duration) {
	t.Helper()
	select {
	case <-ticker.C:
		require.FailNow(t, "ticked while paused")
	case <-time.After(d):
	}
}

func TestPauseResume(t *testing.T) {
	ticker := New(5 * time.Millisecond)
	defer ticker.Stop()

	tick(t, ticker)

	ticker.Pause()
	ticker.Pause()
	assert.True(t, ticker.Paused())
	quiet(t, ticker, 30*time.Millisecond)

	ticker.Resume()
	assert.False(t, ticker.Paused())
	tick(t, ticker)
	tick(t, ticker)
}

func TestNewPaused(t *testing.T) {
	ticker := NewPaused(5 * time.Millisecond)
	defer ticker.Stop()

	assert.Equal(t, 0.005, ticker.Seconds())
	quiet(t, ticker, 30*time.Millisecond)

	ticker.Resume()
	tick(t, ticker)
}

func TestStop(t *testing.T) {
	ticker := New(5 * time.Millisecond)
	ticker.Pause()
	ticker.Stop()

	assert.True(t, ticker.Stopped())

	// Everything after Stop is a no-op.
	ticker.Pause()
	ticker.Resume()
	ticker.Stop()
	quiet(t, ticker, 20*time.Millisecond)
}
