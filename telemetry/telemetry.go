// Package telemetry is the lossy diagnostic log and latest-status snapshot
// polled by the control layer.
package telemetry

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/c360/mavcot/metric"
	"github.com/c360/mavcot/pkg/buffer"
	"github.com/c360/mavcot/position"
)

// DefaultCapacity is the number of diagnostics retained before the oldest is evicted.
const DefaultCapacity = 100

// Entry is one diagnostic line.
type Entry struct {
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// Status is overwritten wholesale on every update.
type Status struct {
	MessageCount int64            `json:"mavlink_msg_count"`
	CotSentCount int64            `json:"cot_sent_count"`
	Latest       *position.Report `json:"latest_position,omitempty"`
	LatestClock  string           `json:"latest_time,omitempty"`
	RateHz       float64          `json:"rate_hz"`
	Running      bool             `json:"running"`

	// Transmit is nil when the session sender does not keep counters.
	Transmit *TransmitStats `json:"transmit,omitempty"`
}

// TransmitStats are the outbound socket counters of the current or last session.
type TransmitStats struct {
	Sent         int64     `json:"sent"`
	Failures     int64     `json:"failures"`
	LastActivity time.Time `json:"last_activity,omitempty"`
}

// Deps holds optional collaborators for a Bus.
type Deps struct {
	Logger   *slog.Logger
	Registry *metric.MetricsRegistry
	// OnStatus is called after every UpdateStatus from the writer's goroutine.
	// It must not block.
	OnStatus func(Status)
}

// Bus is safe for one writer and any number of readers. Neither side blocks.
type Bus struct {
	ring     *buffer.Ring[Entry]
	status   atomic.Pointer[Status]
	logger   *slog.Logger
	onStatus func(Status)
	now      func() time.Time
}

// NewBus creates a bus with the given capacity (DefaultCapacity when < 1).
func NewBus(capacity int, deps Deps) (*Bus, error) {
	if capacity < 1 {
		capacity = DefaultCapacity
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var opts []buffer.Option[Entry]
	if deps.Registry != nil {
		opts = append(opts, buffer.WithMetrics[Entry](deps.Registry, "diagnostics"))
	}
	ring, err := buffer.NewRing(capacity, opts...)
	if err != nil {
		return nil, err
	}

	b := &Bus{
		ring:     ring,
		logger:   logger.With("component", "telemetry"),
		onStatus: deps.OnStatus,
		now:      time.Now,
	}
	b.status.Store(&Status{})
	return b, nil
}

// Publish appends a diagnostic, evicting the oldest when full.
func (b *Bus) Publish(text string) {
	e := Entry{Text: text, Time: b.now()}
	b.logger.Debug(text)
	// Write only fails after Close; diagnostics after shutdown are discarded.
	_ = b.ring.Write(e)
}

// Drain removes and returns all queued diagnostics, oldest first.
func (b *Bus) Drain() []Entry {
	return b.ring.Drain()
}

// Len returns the number of queued diagnostics.
func (b *Bus) Len() int {
	return b.ring.Size()
}

// UpdateStatus replaces the snapshot.
func (b *Bus) UpdateStatus(s Status) {
	if s.Latest != nil {
		latest := *s.Latest
		s.Latest = &latest
		s.LatestClock = latest.Clock()
	}
	b.status.Store(&s)
	if b.onStatus != nil {
		b.onStatus(s)
	}
}

// Status returns the newest snapshot.
func (b *Bus) Status() Status {
	return *b.status.Load()
}

// Stats exposes ring counters, including evictions.
func (b *Bus) Stats() buffer.Summary {
	return b.ring.Stats().Summary()
}
