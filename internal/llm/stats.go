package llm

import (
	"sort"
	"sync"
	"time"
)

// Operation names recorded by the model clients.
const (
	OpCaption  = "caption"
	OpEmbed    = "embed"
	OpGenerate = "generate"
)

type sample struct {
	timestamp  time.Time
	durationMs int64
}

// StatsSnapshot is a point-in-time aggregate of latency samples for one
// operation.
type StatsSnapshot struct {
	Count  int     `json:"count"`
	Errors int     `json:"errors"`
	MinMs  int64   `json:"min_ms"`
	MaxMs  int64   `json:"max_ms"`
	AvgMs  float64 `json:"avg_ms"`
	P50Ms  float64 `json:"p50_ms"`
	P95Ms  float64 `json:"p95_ms"`
	P99Ms  float64 `json:"p99_ms"`
}

// Stats tracks recent model call latencies per operation within a rolling
// window. A nil *Stats discards everything.
type Stats struct {
	mu      sync.Mutex
	samples map[string][]sample
	errors  map[string][]time.Time
	maxAge  time.Duration
}

// NewStats keeps samples for maxAge, one hour when unset.
func NewStats(maxAge time.Duration) *Stats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Stats{
		samples: make(map[string][]sample),
		errors:  make(map[string][]time.Time),
		maxAge:  maxAge,
	}
}

// Record adds a successful call's latency.
func (s *Stats) Record(op string, d time.Duration) {
	if s == nil {
		return
	}
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	s.samples[op] = append(s.samples[op], sample{timestamp: now, durationMs: ms})
}

// RecordError counts a failed call.
func (s *Stats) RecordError(op string) {
	if s == nil {
		return
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	s.errors[op] = append(s.errors[op], now)
}

// Snapshot aggregates every operation seen within the window.
func (s *Stats) Snapshot() map[string]StatsSnapshot {
	out := map[string]StatsSnapshot{}
	if s == nil {
		return out
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	for op := range s.samples {
		out[op] = s.aggregateLocked(op)
	}
	for op := range s.errors {
		if _, ok := out[op]; !ok {
			out[op] = s.aggregateLocked(op)
		}
	}
	return out
}

func (s *Stats) aggregateLocked(op string) StatsSnapshot {
	snap := StatsSnapshot{Errors: len(s.errors[op])}
	samples := s.samples[op]
	if len(samples) == 0 {
		return snap
	}

	values := make([]int64, 0, len(samples))
	var sum int64
	for _, sm := range samples {
		values = append(values, sm.durationMs)
		sum += sm.durationMs
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	snap.Count = len(values)
	snap.MinMs = values[0]
	snap.MaxMs = values[len(values)-1]
	snap.AvgMs = float64(sum) / float64(len(values))
	snap.P50Ms = percentile(values, 50)
	snap.P95Ms = percentile(values, 95)
	snap.P99Ms = percentile(values, 99)
	return snap
}

func (s *Stats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.maxAge)
	for op, samples := range s.samples {
		kept := samples[:0]
		for _, sm := range samples {
			if !sm.timestamp.Before(cutoff) {
				kept = append(kept, sm)
			}
		}
		if len(kept) == 0 {
			delete(s.samples, op)
			continue
		}
		s.samples[op] = kept
	}
	for op, times := range s.errors {
		kept := times[:0]
		for _, ts := range times {
			if !ts.Before(cutoff) {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(s.errors, op)
			continue
		}
		s.errors[op] = kept
	}
}

func percentile(sortedValues []int64, pct float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sortedValues[0])
	}
	if pct >= 100 {
		return float64(sortedValues[len(sortedValues)-1])
	}

	index := (float64(len(sortedValues)-1) * pct) / 100.0
	lower := int(index)
	upper := lower + 1
	if upper >= len(sortedValues) {
		return float64(sortedValues[lower])
	}
	weight := index - float64(lower)
	lo := float64(sortedValues[lower])
	hi := float64(sortedValues[upper])
	return lo + ((hi - lo) * weight)
}
