package chanlock

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sasha-s/go-deadlock"
)

// Chanlock notices an event loop that stopped turning. The loop selects on
// the channel returned by Poll and calls Mark as it enters each phase; when
// a health tick goes unread for too long the last mark is logged.
type Chanlock struct {
	log      zerolog.Logger
	interval time.Duration
	timeout  time.Duration

	mutex    deadlock.RWMutex
	lastMark string
	stalls   int
}

const (
	TIMEOUT_DURATION      = 15 * time.Second
	HEALTH_CHECK_DURATION = 1 * time.Second
)

func New(logger zerolog.Logger) *Chanlock {
	return NewWithTimeout(logger, HEALTH_CHECK_DURATION, TIMEOUT_DURATION)
}

func NewWithTimeout(logger zerolog.Logger, interval, timeout time.Duration) *Chanlock {
	return &Chanlock{
		log:      logger,
		interval: interval,
		timeout:  timeout,
	}
}

func (c *Chanlock) Mark(name string) {
	c.mutex.Lock()
	c.lastMark = name
	c.mutex.Unlock()
}

func (c *Chanlock) LastMark() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.lastMark
}

// Stalls is how many health ticks went unread past the timeout.
func (c *Chanlock) Stalls() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.stalls
}

func (c *Chanlock) Poll(ctx context.Context) <-chan time.Time {
	out := make(chan time.Time)

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case t := <-ticker.C:
				if !c.deliver(ctx, out, t) {
					return
				}
				c.Mark("")
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func (c *Chanlock) deliver(ctx context.Context, out chan<- time.Time, t time.Time) bool {
	timeout := time.NewTimer(c.timeout)
	defer timeout.Stop()

	select {
	case out <- t:
		return true
	case <-ctx.Done():
		return false
	case <-timeout.C:
	}

	c.mutex.Lock()
	c.stalls++
	mark := c.lastMark
	c.mutex.Unlock()

	c.log.Error().Msgf("event loop no longer healthy")
	if mark != "" {
		c.log.Error().Msgf("last mark: %s", mark)
	}

	select {
	case out <- t:
		c.log.Info().Msg("event loop recovered")
		return true
	case <-ctx.Done():
		return false
	}
}
