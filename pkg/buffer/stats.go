package buffer

import (
	"sync"
	"sync/atomic"
	"time"
)

// Statistics tracks buffer operation counters. All counters are safe
// for concurrent use.
type Statistics struct {
	writes    atomic.Int64
	reads     atomic.Int64
	overflows atomic.Int64
	drops     atomic.Int64

	mu          sync.RWMutex
	startTime   time.Time
	currentSize int64
	maxSize     int64
}

// NewStatistics creates a statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

func (s *Statistics) recordWrite()    { s.writes.Add(1) }
func (s *Statistics) recordRead()     { s.reads.Add(1) }
func (s *Statistics) recordOverflow() { s.overflows.Add(1) }
func (s *Statistics) recordDrop()     { s.drops.Add(1) }

func (s *Statistics) updateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	if size > s.maxSize {
		s.maxSize = size
	}
	s.mu.Unlock()
}

// Writes returns the total number of successful writes.
func (s *Statistics) Writes() int64 { return s.writes.Load() }

// Reads returns the total number of reads.
func (s *Statistics) Reads() int64 { return s.reads.Load() }

// Overflows returns the number of writes that hit a full buffer.
func (s *Statistics) Overflows() int64 { return s.overflows.Load() }

// Drops returns the number of items discarded by the overflow policy.
func (s *Statistics) Drops() int64 { return s.drops.Load() }

// CurrentSize returns the number of items currently buffered.
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// MaxSize returns the high-water mark of buffered items.
func (s *Statistics) MaxSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSize
}

// DropRate returns drops as a fraction of write attempts (0.0 to 1.0).
func (s *Statistics) DropRate() float64 {
	attempts := s.Writes() + s.Drops()
	if attempts == 0 {
		return 0.0
	}
	return float64(s.Drops()) / float64(attempts)
}

// Uptime returns the time since the buffer was created or last Reset.
func (s *Statistics) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// Reset zeroes all counters.
func (s *Statistics) Reset() {
	s.writes.Store(0)
	s.reads.Store(0)
	s.overflows.Store(0)
	s.drops.Store(0)

	s.mu.Lock()
	s.startTime = time.Now()
	s.currentSize = 0
	s.maxSize = 0
	s.mu.Unlock()
}

// Summary is a point-in-time snapshot of buffer statistics, suitable
// for health reports.
type Summary struct {
	Writes      int64         `json:"writes"`
	Reads       int64         `json:"reads"`
	Overflows   int64         `json:"overflows"`
	Drops       int64         `json:"drops"`
	CurrentSize int64         `json:"current_size"`
	MaxSize     int64         `json:"max_size"`
	DropRate    float64       `json:"drop_rate"`
	Uptime      time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all counters.
func (s *Statistics) Summary() Summary {
	return Summary{
		Writes:      s.Writes(),
		Reads:       s.Reads(),
		Overflows:   s.Overflows(),
		Drops:       s.Drops(),
		CurrentSize: s.CurrentSize(),
		MaxSize:     s.MaxSize(),
		DropRate:    s.DropRate(),
		Uptime:      s.Uptime(),
	}
}
