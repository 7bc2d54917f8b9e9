package llm

import (
	"slices"
	"sync"
	"time"
)

type call struct {
	at         time.Time
	durationMs int64
	failed     bool
}

// StatsSnapshot aggregates the completion calls inside the rolling window.
// Latency figures cover successful calls only.
type StatsSnapshot struct {
	Calls  int     `json:"calls"`
	Failed int     `json:"failed"`
	MinMs  int64   `json:"min_ms"`
	MaxMs  int64   `json:"max_ms"`
	AvgMs  float64 `json:"avg_ms"`
	P50Ms  float64 `json:"p50_ms"`
	P95Ms  float64 `json:"p95_ms"`
	P99Ms  float64 `json:"p99_ms"`
}

// LLMStats tracks recent completion latencies and failures within a rolling window.
type LLMStats struct {
	mu     sync.Mutex
	calls  []call
	window time.Duration
	now    func() time.Time
}

func NewLLMStats(window time.Duration) *LLMStats {
	if window <= 0 {
		window = time.Hour
	}
	return &LLMStats{
		calls:  make([]call, 0, 256),
		window: window,
		now:    time.Now,
	}
}

// Record adds one completed call. Negative durations count as zero.
func (s *LLMStats) Record(d time.Duration, err error) {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)
	s.calls = append(s.calls, call{at: now, durationMs: ms, failed: err != nil})
}

func (s *LLMStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(s.now())

	var snap StatsSnapshot
	values := make([]int64, 0, len(s.calls))
	var sum int64
	for _, c := range s.calls {
		snap.Calls++
		if c.failed {
			snap.Failed++
			continue
		}
		values = append(values, c.durationMs)
		sum += c.durationMs
	}
	if len(values) == 0 {
		return snap
	}
	slices.Sort(values)

	snap.MinMs = values[0]
	snap.MaxMs = values[len(values)-1]
	snap.AvgMs = float64(sum) / float64(len(values))
	snap.P50Ms = percentile(values, 50)
	snap.P95Ms = percentile(values, 95)
	snap.P99Ms = percentile(values, 99)
	return snap
}

func (s *LLMStats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.window)
	keep := s.calls[:0]
	for _, c := range s.calls {
		if !c.at.Before(cutoff) {
			keep = append(keep, c)
		}
	}
	s.calls = keep
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []int64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sorted[0])
	}
	if pct >= 100 {
		return float64(sorted[len(sorted)-1])
	}

	index := float64(len(sorted)-1) * pct / 100.0
	lower := int(index)
	if lower+1 >= len(sorted) {
		return float64(sorted[lower])
	}
	weight := index - float64(lower)
	lo, hi := float64(sorted[lower]), float64(sorted[lower+1])
	return lo + (hi-lo)*weight
}
