package store

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/louisbranch/sessiondb/internal/session"
	"github.com/louisbranch/sessiondb/internal/session/dialect"
)

func fixedClock(millis int64) func() time.Time {
	return func() time.Time {
		return time.UnixMilli(millis).UTC()
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	return m.GetCounter().GetValue()
}

func histogramSampleCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	var m dto.Metric
	if err := h.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestSweepReapsOwnedThenOrphaned(t *testing.T) {
	st, _ := newTestStore(t, oracleLike())
	ctx := context.Background()
	now := int64(50_000)

	mine := session.NewContext("/", "0.0.0.0", "node-1")
	crashed := session.NewContext("/", "0.0.0.0", "node-gone")

	owned := testData("owned", 1000)
	owned.Expiry = now - 1
	if err := st.Insert(ctx, mine, owned); err != nil {
		t.Fatalf("insert owned: %v", err)
	}
	orphan := testData("orphan", 1000)
	orphan.Expiry = now - 1
	if err := st.Insert(ctx, crashed, orphan); err != nil {
		t.Fatalf("insert orphan: %v", err)
	}
	alive := testData("alive", 1000)
	alive.Expiry = now + 1000
	if err := st.Insert(ctx, mine, alive); err != nil {
		t.Fatalf("insert alive: %v", err)
	}

	sweeper := NewSweeper(st, mine, WithClock(fixedClock(now)))
	reaped, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if reaped != 2 {
		t.Fatalf("reaped %d, want 2", reaped)
	}

	for _, id := range []string{"owned", "orphan"} {
		found, err := st.Exists(ctx, id, mine)
		if err != nil {
			t.Fatalf("exists %s: %v", id, err)
		}
		if found {
			t.Fatalf("%s survived the sweep", id)
		}
	}
	found, err := st.Exists(ctx, "alive", mine)
	if err != nil || !found {
		t.Fatalf("alive session missing: found=%v err=%v", found, err)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	st, _ := newTestStore(t, dialect.SQLite())
	ctx := context.Background()
	now := int64(50_000)

	scope := session.NewContext("/", "0.0.0.0", "node-1")
	expired := testData("expired", 1000)
	expired.Expiry = now - 1
	if err := st.Insert(ctx, scope, expired); err != nil {
		t.Fatalf("insert: %v", err)
	}

	sweeper := NewSweeper(st, scope, WithClock(fixedClock(now)))
	if reaped, err := sweeper.Sweep(ctx); err != nil || reaped != 1 {
		t.Fatalf("first sweep: reaped=%d err=%v", reaped, err)
	}
	if reaped, err := sweeper.Sweep(ctx); err != nil || reaped != 0 {
		t.Fatalf("second sweep: reaped=%d err=%v", reaped, err)
	}
}

// Sweep metrics live on the process-wide registerer, so assertions work on
// deltas rather than absolute values.
func TestSweepRecordsMetrics(t *testing.T) {
	st, _ := newTestStore(t, dialect.SQLite())
	ctx := context.Background()
	now := int64(50_000)

	metrics := sweeperMetrics()
	ownedBefore := counterValue(t, metrics.reapedTotal.WithLabelValues(reapOwned))
	orphanedBefore := counterValue(t, metrics.reapedTotal.WithLabelValues(reapOrphaned))
	sweepsBefore := counterValue(t, metrics.sweepsTotal)
	samplesBefore := histogramSampleCount(t, metrics.sweepDuration)

	mine := session.NewContext("/", "0.0.0.0", "node-1")
	crashed := session.NewContext("/", "0.0.0.0", "node-gone")

	owned := testData("metrics-owned", 1000)
	owned.Expiry = now - 1
	if err := st.Insert(ctx, mine, owned); err != nil {
		t.Fatalf("insert owned: %v", err)
	}
	orphan := testData("metrics-orphan", 1000)
	orphan.Expiry = now - 1
	if err := st.Insert(ctx, crashed, orphan); err != nil {
		t.Fatalf("insert orphan: %v", err)
	}

	sweeper := NewSweeper(st, mine, WithClock(fixedClock(now)))
	if reaped, err := sweeper.Sweep(ctx); err != nil || reaped != 2 {
		t.Fatalf("sweep: reaped=%d err=%v", reaped, err)
	}

	if got := counterValue(t, metrics.reapedTotal.WithLabelValues(reapOwned)) - ownedBefore; got != 1 {
		t.Fatalf("owned reaped delta = %v, want 1", got)
	}
	if got := counterValue(t, metrics.reapedTotal.WithLabelValues(reapOrphaned)) - orphanedBefore; got != 1 {
		t.Fatalf("orphaned reaped delta = %v, want 1", got)
	}
	if got := counterValue(t, metrics.sweepsTotal) - sweepsBefore; got != 1 {
		t.Fatalf("sweeps delta = %v, want 1", got)
	}
	if got := histogramSampleCount(t, metrics.sweepDuration) - samplesBefore; got != 1 {
		t.Fatalf("duration samples delta = %v, want 1", got)
	}
}

func TestSweepFailureIncrementsErrorCounter(t *testing.T) {
	st, db := newTestStore(t, dialect.SQLite())
	scope := session.NewContext("/", "0.0.0.0", "node-1")

	metrics := sweeperMetrics()
	errorsBefore := counterValue(t, metrics.errorsTotal)
	sweepsBefore := counterValue(t, metrics.sweepsTotal)

	if err := db.Close(); err != nil {
		t.Fatalf("close pool: %v", err)
	}

	sweeper := NewSweeper(st, scope, WithClock(fixedClock(50_000)))
	if _, err := sweeper.Sweep(context.Background()); err == nil {
		t.Fatal("expected sweep to fail on closed pool")
	}

	if got := counterValue(t, metrics.errorsTotal) - errorsBefore; got != 1 {
		t.Fatalf("errors delta = %v, want 1", got)
	}
	// A failed pass does not count as a completed sweep.
	if got := counterValue(t, metrics.sweepsTotal) - sweepsBefore; got != 0 {
		t.Fatalf("sweeps delta = %v, want 0", got)
	}
}

func TestSweepLeavesImmortalSessions(t *testing.T) {
	st, _ := newTestStore(t, dialect.SQLite())
	ctx := context.Background()
	now := int64(50_000)

	scope := session.NewContext("/", "0.0.0.0", "node-1")
	if err := st.Insert(ctx, scope, testData("immortal", 1000)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	sweeper := NewSweeper(st, scope, WithClock(fixedClock(now)))
	if reaped, err := sweeper.Sweep(ctx); err != nil || reaped != 0 {
		t.Fatalf("sweep: reaped=%d err=%v", reaped, err)
	}
	found, err := st.Exists(ctx, "immortal", scope)
	if err != nil || !found {
		t.Fatalf("immortal session missing: found=%v err=%v", found, err)
	}
}
