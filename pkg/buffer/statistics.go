package buffer

import (
	"sync/atomic"
	"time"
)

// Statistics tracks ring activity. All methods are safe for concurrent use.
type Statistics struct {
	writes    atomic.Int64
	reads     atomic.Int64
	drops     atomic.Int64
	size      atomic.Int64
	maxSize   atomic.Int64
	startTime time.Time
}

// NewStatistics creates a zeroed tracker.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

func (s *Statistics) write(size int) {
	s.writes.Add(1)
	s.setSize(size)
}

func (s *Statistics) read(n, size int) {
	s.reads.Add(int64(n))
	s.setSize(size)
}

func (s *Statistics) overflow() {
	s.drops.Add(1)
}

func (s *Statistics) setSize(size int) {
	v := int64(size)
	s.size.Store(v)
	for {
		cur := s.maxSize.Load()
		if v <= cur || s.maxSize.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Writes returns the number of accepted writes, including ones that evicted an item.
func (s *Statistics) Writes() int64 { return s.writes.Load() }

// Reads returns the number of items removed by Drain.
func (s *Statistics) Reads() int64 { return s.reads.Load() }

// Drops returns the number of items lost to overflow.
func (s *Statistics) Drops() int64 { return s.drops.Load() }

// CurrentSize returns the last observed size.
func (s *Statistics) CurrentSize() int64 { return s.size.Load() }

// MaxSize returns the high-water mark.
func (s *Statistics) MaxSize() int64 { return s.maxSize.Load() }

// Summary is a point-in-time copy of the counters.
type Summary struct {
	Writes      int64         `json:"writes"`
	Reads       int64         `json:"reads"`
	Drops       int64         `json:"drops"`
	CurrentSize int64         `json:"current_size"`
	MaxSize     int64         `json:"max_size"`
	Uptime      time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all counters.
func (s *Statistics) Summary() Summary {
	return Summary{
		Writes:      s.Writes(),
		Reads:       s.Reads(),
		Drops:       s.Drops(),
		CurrentSize: s.CurrentSize(),
		MaxSize:     s.MaxSize(),
		Uptime:      time.Since(s.startTime),
	}
}
