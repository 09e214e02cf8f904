package drill

import "time"

// Clock abstracts time so drill countdowns can run against a fake
// ticker in tests.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the minimal surface of time.Ticker the service needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock delegates to the time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// FakeClock hand-drives time in tests. Advance fires one tick per call.
type FakeClock struct {
	now   time.Time
	ticks chan time.Time
}

// NewFakeClock starts fake time at now.
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now, ticks: make(chan time.Time, 64)}
}

func (c *FakeClock) Now() time.Time { return c.now }

func (c *FakeClock) NewTicker(time.Duration) Ticker {
	return fakeTicker{c.ticks}
}

// Advance moves fake time forward one second and delivers a tick.
func (c *FakeClock) Advance() {
	c.now = c.now.Add(time.Second)
	c.ticks <- c.now
}

type fakeTicker struct {
	ticks chan time.Time
}

func (f fakeTicker) C() <-chan time.Time { return f.ticks }
func (f fakeTicker) Stop()               {}
