// Package clock is the single animation time source. Every registered
// callback is invoked once per frame, in registration order, with the
// accumulated global time and the scaled frame delta.
package clock

import (
	"math"
	"time"
)

// Scheduler runs fn once at the next frame boundary with the frame's
// timestamp. Timestamps are monotonic within one scheduler.
type Scheduler interface {
	RequestFrame(fn func(now time.Duration))
}

// Func is a per-frame callback. time and dt are in seconds.
type Func func(time, dt float64)

type entry struct {
	id      string
	fn      Func
	removed bool
}

// Clock is driven by its Scheduler and must be used from the frame thread.
type Clock struct {
	scheduler Scheduler
	entries   []*entry
	index     map[string]*entry

	running    bool
	generation int
	haveLast   bool
	last       time.Duration
	speed      float64
	elapsed    float64
}

func New(s Scheduler) *Clock {
	return &Clock{
		scheduler: s,
		index:     make(map[string]*entry),
		speed:     1,
	}
}

// Start begins ticking. The first tick after Start has a zero delta.
func (c *Clock) Start() {
	if c.running {
		return
	}
	c.running = true
	c.haveLast = false
	c.generation++
	c.schedule()
}

// Stop halts ticking after the current frame. Time is kept.
func (c *Clock) Stop() {
	if !c.running {
		return
	}
	c.running = false
	c.generation++
}

func (c *Clock) Running() bool { return c.running }

func (c *Clock) schedule() {
	gen := c.generation
	c.scheduler.RequestFrame(func(now time.Duration) {
		if gen != c.generation || !c.running {
			return
		}
		c.tick(now)
		if c.running && gen == c.generation {
			c.schedule()
		}
	})
}

func (c *Clock) tick(now time.Duration) {
	var dt float64
	if c.haveLast && now > c.last {
		dt = (now - c.last).Seconds() * c.speed
	}
	c.last = now
	c.haveLast = true
	c.elapsed += dt

	// Callbacks added during the tick run from the next frame.
	for _, e := range append([]*entry(nil), c.entries...) {
		if e.removed {
			continue
		}
		e.fn(c.elapsed, dt)
	}
}

// Add registers fn under id. Re-adding an id replaces its function and keeps
// its position.
func (c *Clock) Add(id string, fn Func) {
	if e, ok := c.index[id]; ok {
		e.fn = fn
		return
	}
	e := &entry{id: id, fn: fn}
	c.entries = append(c.entries, e)
	c.index[id] = e
}

// Remove unregisters id. A callback removed during a tick is not invoked
// later in that tick.
func (c *Clock) Remove(id string) {
	e, ok := c.index[id]
	if !ok {
		return
	}
	e.removed = true
	delete(c.index, id)
	for i, x := range c.entries {
		if x == e {
			c.entries = append(c.entries[:i:i], c.entries[i+1:]...)
			break
		}
	}
}

func (c *Clock) Has(id string) bool {
	_, ok := c.index[id]
	return ok
}

// Len returns the number of registered callbacks.
func (c *Clock) Len() int { return len(c.entries) }

// SetGlobalSpeed scales every future delta. Negative and NaN factors are
// clamped to 0.
func (c *Clock) SetGlobalSpeed(f float64) {
	if f < 0 || math.IsNaN(f) {
		f = 0
	}
	c.speed = f
}

func (c *Clock) GlobalSpeed() float64 { return c.speed }

// Time returns the accumulated global time in seconds.
func (c *Clock) Time() float64 { return c.elapsed }
