package llm

import (
	"errors"
	"testing"
	"time"
)

func TestLLMStatsSnapshotPercentiles(t *testing.T) {
	stats := NewLLMStats(time.Hour)
	for _, ms := range []int64{500, 100, 400, 200, 300} {
		stats.Record(time.Duration(ms)*time.Millisecond, nil)
	}

	snap := stats.Snapshot()
	if snap.Calls != 5 || snap.Failed != 0 {
		t.Fatalf("expected calls=5 failed=0, got %d/%d", snap.Calls, snap.Failed)
	}
	if snap.MinMs != 100 {
		t.Fatalf("expected min=100, got %d", snap.MinMs)
	}
	if snap.MaxMs != 500 {
		t.Fatalf("expected max=500, got %d", snap.MaxMs)
	}
	if snap.AvgMs != 300 {
		t.Fatalf("expected avg=300, got %f", snap.AvgMs)
	}
	if snap.P50Ms != 300 {
		t.Fatalf("expected p50=300, got %f", snap.P50Ms)
	}
	if snap.P95Ms != 480 {
		t.Fatalf("expected p95=480, got %f", snap.P95Ms)
	}
	if snap.P99Ms != 496 {
		t.Fatalf("expected p99=496, got %f", snap.P99Ms)
	}
}

func TestLLMStatsFailuresExcludedFromLatency(t *testing.T) {
	stats := NewLLMStats(time.Hour)
	stats.Record(100*time.Millisecond, nil)
	stats.Record(9*time.Second, errors.New("timeout"))

	snap := stats.Snapshot()
	if snap.Calls != 2 || snap.Failed != 1 {
		t.Fatalf("expected calls=2 failed=1, got %d/%d", snap.Calls, snap.Failed)
	}
	if snap.MaxMs != 100 {
		t.Fatalf("expected failed call excluded from max, got %d", snap.MaxMs)
	}
}

func TestLLMStatsPrunesExpiredSamples(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	stats := NewLLMStats(time.Minute)
	stats.now = func() time.Time { return now }

	stats.Record(100*time.Millisecond, nil)
	now = now.Add(2 * time.Minute)

	if snap := stats.Snapshot(); snap.Calls != 0 {
		t.Fatalf("expected calls=0 after prune, got %d", snap.Calls)
	}

	stats.Record(200*time.Millisecond, nil)
	snap := stats.Snapshot()
	if snap.Calls != 1 {
		t.Fatalf("expected calls=1 for fresh sample, got %d", snap.Calls)
	}
	if snap.MinMs != 200 || snap.MaxMs != 200 {
		t.Fatalf("expected min=max=200, got min=%d max=%d", snap.MinMs, snap.MaxMs)
	}
}

func TestLLMStatsRecordClampsNegativeDuration(t *testing.T) {
	stats := NewLLMStats(time.Hour)
	stats.Record(-10*time.Millisecond, nil)
	snap := stats.Snapshot()
	if snap.Calls != 1 {
		t.Fatalf("expected calls=1, got %d", snap.Calls)
	}
	if snap.MinMs != 0 || snap.MaxMs != 0 {
		t.Fatalf("expected clamped duration=0, got min=%d max=%d", snap.MinMs, snap.MaxMs)
	}
}

func TestPercentileEmpty(t *testing.T) {
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("expected 0, got %f", got)
	}
}
