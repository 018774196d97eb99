package chanlock

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthyLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lock := NewWithTimeout(zerolog.Nop(), 5*time.Millisecond, 50*time.Millisecond)
	health := lock.Poll(ctx)

	for i := 0; i < 3; i++ {
		lock.Mark("tick")
		select {
		case <-health:
		case <-time.After(time.Second):
			require.FailNow(t, "no health tick")
		}
	}

	assert.Zero(t, lock.Stalls())
}

func TestStall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lock := NewWithTimeout(zerolog.Nop(), 5*time.Millisecond, 10*time.Millisecond)
	health := lock.Poll(ctx)

	lock.Mark("fixed tick")
	assert.Eventually(t, func() bool {
		return lock.Stalls() > 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "fixed tick", lock.LastMark())

	select {
	case <-health:
	case <-time.After(time.Second):
		require.FailNow(t, "loop did not recover")
	}
	assert.Eventually(t, func() bool {
		return lock.LastMark() == ""
	}, time.Second, 5*time.Millisecond)
}
