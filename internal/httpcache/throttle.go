package httpcache

import (
	"time"

	"overcastmirror/internal/logger"
)

// Clock abstracts wall-clock reads and sleeping so throttle behavior is
// testable without real delays.
type Clock struct {
	Now   func() time.Time
	Sleep func(time.Duration)
}

func systemClock() Clock {
	return Clock{Now: time.Now, Sleep: time.Sleep}
}

// throttle enforces a minimum spacing between outbound network calls. It
// guards network fetches only; cache hits never pass through it. The
// baseline is scoped to one session and is not persisted.
type throttle struct {
	minInterval   time.Duration
	lastRequestAt time.Time
	clock         Clock
	log           logger.Logger
}

func newThrottle(minInterval time.Duration, clock Clock, log logger.Logger) *throttle {
	return &throttle{minInterval: minInterval, clock: clock, log: log}
}

// wait blocks until minInterval has elapsed since the previous network
// call, then records the new baseline.
func (t *throttle) wait() {
	d := t.minInterval - t.clock.Now().Sub(t.lastRequestAt)
	if d > 0 {
		t.log.Warn("throttling request", logger.Duration("wait", d))
		t.clock.Sleep(d)
	}
	t.lastRequestAt = t.clock.Now()
}
