// Package rate tracks the instantaneous inter-arrival rate of MAVLink
// message types for diagnostics.
package rate

import (
	"sync"
	"time"
)

// Sample is the per-type tracking state.
type Sample struct {
	Last time.Time
	Rate float64
}

// Tracker holds one Sample per message type. A zero Tracker is ready to use.
type Tracker struct {
	mu      sync.Mutex
	samples map[string]*Sample
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{samples: make(map[string]*Sample)}
}

// Observe records an arrival of msgType at now and returns the current rate
// in Hz. The first observation of a type returns 0. A non-positive interval
// leaves the previous rate in place.
func (t *Tracker) Observe(msgType string, now time.Time) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.samples == nil {
		t.samples = make(map[string]*Sample)
	}

	s, ok := t.samples[msgType]
	if !ok {
		t.samples[msgType] = &Sample{Last: now}
		return 0
	}

	if dt := now.Sub(s.Last).Seconds(); dt > 0 {
		s.Rate = 1 / dt
	}
	s.Last = now
	return s.Rate
}

// Rate returns the last computed rate for msgType, or 0.
func (t *Tracker) Rate(msgType string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.samples[msgType]; ok {
		return s.Rate
	}
	return 0
}

// Reset forgets every type.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.samples = make(map[string]*Sample)
	t.mu.Unlock()
}
