package ticker

import (
	"time"

	"github.com/sasha-s/go-deadlock"
)

// Ticker delivers ticks like time.Ticker but can be paused. Ticks that fall
// due while paused are dropped, not queued.
type Ticker struct {
	C <-chan time.Time // The channel on which the ticks are delivered.

	mutex  deadlock.Mutex
	period time.Duration
	pause  chan bool
	paused bool
	stop   chan struct{}
	ticker *time.Ticker
}

func New(d time.Duration) *Ticker {
	c := make(chan time.Time)

	t := &Ticker{
		C:      c,
		period: d,
		pause:  make(chan bool),
		stop:   make(chan struct{}),
		ticker: time.NewTicker(d),
	}

	go t.run(c)

	return t
}

// NewPaused returns a ticker that waits for Resume before its first tick.
func NewPaused(d time.Duration) *Ticker {
	t := New(d)
	t.Pause()
	return t
}

func (t *Ticker) run(c chan<- time.Time) {
	defer close(t.stop)

	for {
		select {
		case now := <-t.ticker.C:
			select {
			case c <- now:
			case shouldPause := <-t.pause:
				if shouldPause && !t.wait() {
					return
				}
			case <-t.stop:
				return
			}
		case shouldPause := <-t.pause:
			if shouldPause && !t.wait() {
				return
			}
		case <-t.stop:
			return
		}
	}
}

// wait blocks until resumed or stopped and reports whether to keep running.
func (t *Ticker) wait() bool {
	for {
		select {
		case shouldPause := <-t.pause:
			if shouldPause {
				continue
			}
			t.ticker.Reset(t.period)
			select {
			case <-t.ticker.C:
			default:
			}
			return true
		case <-t.stop:
			return false
		}
	}
}

// Period is the interval between ticks.
func (t *Ticker) Period() time.Duration {
	return t.period
}

// Seconds is the period as a simulation delta.
func (t *Ticker) Seconds() float64 {
	return t.period.Seconds()
}

func (t *Ticker) Pause() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.stop == nil || t.paused {
		return
	}
	t.pause <- true
	t.paused = true
}

func (t *Ticker) Paused() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.paused
}

func (t *Ticker) Resume() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.stop == nil || !t.paused {
		return
	}
	t.pause <- false
	t.paused = false
}

func (t *Ticker) Stop() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.stop == nil {
		return
	}
	t.stop <- struct{}{}
	<-t.stop
	t.stop = nil
	t.ticker.Stop()
}

func (t *Ticker) Stopped() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.stop == nil
}
