package dollcache

import (
	"sync"
	"time"
)

// TTLStats is a point-in-time snapshot of the optimizer's accumulator.
type TTLStats struct {
	TotalKeys   int64
	Clustered   int64 // computed with jitter disabled or a zero draw
	Distributed int64 // nonzero jitter applied
	AvgJitter   time.Duration
	HistorySize int
}

// ttlStats accumulates per-computation observations. One instance per
// optimizer, mutex-guarded; many in-flight requests feed it concurrently.
type ttlStats struct {
	mu          sync.Mutex
	total       int64
	clustered   int64
	distributed int64
	jitterSum   time.Duration // sum of absolute jitter magnitudes

	// bounded expiration history, overwritten oldest-first
	history []time.Time
	limit   int
	pos     int
}

func newTTLStats(limit int) *ttlStats {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &ttlStats{
		history: make([]time.Time, 0, limit),
		limit:   limit,
	}
}

func (s *ttlStats) record(jitter time.Duration, distributed bool, expireAt time.Time) {
	if jitter < 0 {
		jitter = -jitter
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if distributed {
		s.distributed++
	} else {
		s.clustered++
	}
	s.jitterSum += jitter

	if len(s.history) < s.limit {
		s.history = append(s.history, expireAt)
		return
	}
	s.history[s.pos] = expireAt
	s.pos = (s.pos + 1) % s.limit
}

func (s *ttlStats) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total, s.clustered, s.distributed = 0, 0, 0
	s.jitterSum = 0
	s.history = s.history[:0]
	s.pos = 0
}

func (s *ttlStats) snapshot() TTLStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := TTLStats{
		TotalKeys:   s.total,
		Clustered:   s.clustered,
		Distributed: s.distributed,
		HistorySize: len(s.history),
	}
	if s.total > 0 {
		out.AvgJitter = s.jitterSum / time.Duration(s.total)
	}
	return out
}

// expirations copies the recorded history.
func (s *ttlStats) expirations() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Time, len(s.history))
	copy(out, s.history)
	return out
}
