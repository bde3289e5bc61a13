package pubmed

import "time"

// Throttle enforces a minimum interval between successive requests. It tracks
// only the last request time and assumes sequential use; no concurrency is
// expected within a fetcher.
type Throttle struct {
	minInterval time.Duration
	last        time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

// NewThrottle creates a throttle allowing at most maxRequestsPerSec requests
// per second.
func NewThrottle(maxRequestsPerSec int) *Throttle {
	if maxRequestsPerSec <= 0 {
		maxRequestsPerSec = 1
	}
	return &Throttle{
		minInterval: time.Second / time.Duration(maxRequestsPerSec),
		now:         time.Now,
		sleep:       time.Sleep,
	}
}

// Wait blocks until at least the minimum interval has passed since the
// previous call, then records the current time.
func (t *Throttle) Wait() {
	if !t.last.IsZero() {
		if elapsed := t.now().Sub(t.last); elapsed < t.minInterval {
			t.sleep(t.minInterval - elapsed)
		}
	}
	t.last = t.now()
}
