package dlog

import "time"

// Clock supplies the hardware tick counter and the wall clock used for the header timestamp.
type Clock interface {
	Micros() uint32
	Now() time.Time
}

// SystemClock derives microsecond ticks from the monotonic clock.
type SystemClock struct {
	start time.Time
}

// NewSystemClock creates a clock whose tick counter starts at zero now.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Micros returns microseconds since the clock was created. Wraps after ~71 minutes,
// which bounds session durations fed from this clock.
func (c *SystemClock) Micros() uint32 {
	return uint32(time.Since(c.start).Microseconds())
}

// Now returns the current UTC time.
func (c *SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Step is the outcome of advancing the sample clock by one tick.
type Step struct {
	Missed   int     // Boundaries crossed without a sample, oldest first
	Sample   bool    // A real sample is due for the latest crossed boundary
	Lateness float64 // Seconds between that boundary and the current time
	Finished bool    // The next boundary lies past the configured duration
}

// SampleClock converts a tick counter into elapsed time and schedules sample boundaries.
// The tick source is assumed not to wrap within a session.
type SampleClock struct {
	lastTick uint32
	seconds  uint32
	micros   uint32
	index    uint32

	period   float64
	duration float64
	current  float64
	next     float64
}

// Reset restarts the clock at tick with boundary zero due immediately.
func (c *SampleClock) Reset(tick uint32, period, duration float32) {
	c.lastTick = tick
	c.seconds = 0
	c.micros = 0
	c.index = 0
	c.period = float64(period)
	c.duration = float64(duration)
	c.current = 0
	c.next = 0
}

// Advance accounts for the ticks elapsed since the previous call and reports
// which records are due.
func (c *SampleClock) Advance(tick uint32) Step {
	c.micros += tick - c.lastTick
	c.lastTick = tick

	if c.micros >= 1000000 {
		c.seconds += c.micros / 1000000
		c.micros %= 1000000
	}

	c.current = float64(c.seconds) + float64(c.micros)*1e-6

	var step Step
	if c.current < c.next {
		return step
	}

	for {
		c.index++
		c.next = float64(c.index) * c.period
		if c.current < c.next || c.next > c.duration {
			break
		}
		// the previous boundary was passed over
		step.Missed++
	}

	step.Sample = true
	step.Lateness = c.current - float64(c.index-1)*c.period
	step.Finished = c.next > c.duration
	return step
}

// CurrentTime returns seconds elapsed since the session started.
func (c *SampleClock) CurrentTime() float64 {
	return c.current
}

// NextTime returns the time of the next scheduled boundary.
func (c *SampleClock) NextTime() float64 {
	return c.next
}
