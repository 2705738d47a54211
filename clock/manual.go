package clock

import "time"

// ManualScheduler queues frame requests until Advance is called. It drives
// clocks in tests and headless tools.
type ManualScheduler struct {
	now     time.Duration
	pending []func(time.Duration)
}

func NewManualScheduler() *ManualScheduler { return &ManualScheduler{} }

func (m *ManualScheduler) RequestFrame(fn func(now time.Duration)) {
	m.pending = append(m.pending, fn)
}

// Advance moves time forward by d and runs the requests queued before the
// call. Requests made while running wait for the next Advance.
func (m *ManualScheduler) Advance(d time.Duration) {
	m.now += d
	batch := m.pending
	m.pending = nil
	for _, fn := range batch {
		fn(m.now)
	}
}

// Now returns the scheduler's current timestamp.
func (m *ManualScheduler) Now() time.Duration { return m.now }

// Pending returns the number of queued frame requests.
func (m *ManualScheduler) Pending() int { return len(m.pending) }
