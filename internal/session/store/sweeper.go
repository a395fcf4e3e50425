package store

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/sessiondb/internal/session"
)

const (
	reapOwned    = "owned"
	reapOrphaned = "orphaned"
)

// Sweeper reaps expired sessions for one scope. It first deletes sessions
// owned by the scope's node, then falls back to the global expired set to
// pick up orphans whose owning node is gone. Deletes are idempotent, so a
// concurrent sweep on another node racing for the same orphan is harmless.
type Sweeper struct {
	store   *Store
	scope   session.Context
	clock   func() time.Time
	metrics *sweepMetrics
	tracer  trace.Tracer
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithClock overrides the sweep clock. Tests pin it to control the expiry
// boundary.
func WithClock(clock func() time.Time) SweeperOption {
	return func(w *Sweeper) {
		w.clock = clock
	}
}

// NewSweeper creates a sweeper over the store for the given scope.
func NewSweeper(st *Store, scope session.Context, opts ...SweeperOption) *Sweeper {
	w := &Sweeper{
		store:   st,
		scope:   scope,
		clock:   time.Now,
		metrics: sweeperMetrics(),
		tracer:  otel.Tracer("sessiondb/sweeper"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Sweep runs one expiry pass and returns how many sessions it deleted.
// The first storage error aborts the pass and propagates unchanged.
func (w *Sweeper) Sweep(ctx context.Context) (int, error) {
	ctx, span := w.tracer.Start(ctx, "session.sweep", trace.WithAttributes(
		attribute.String("session.node", w.scope.NodeID()),
	))
	defer span.End()

	start := w.clock()
	nowMillis := start.UTC().UnixMilli()

	reaped := 0

	owned, err := w.store.MyExpiredSessions(ctx, w.scope, nowMillis)
	if err != nil {
		return reaped, w.fail(span, err)
	}
	n, err := w.reap(ctx, owned, reapOwned)
	reaped += n
	if err != nil {
		return reaped, w.fail(span, err)
	}

	orphaned, err := w.store.ExpiredSessions(ctx, w.scope.ContextPath(), w.scope.VirtualHost(), nowMillis)
	if err != nil {
		return reaped, w.fail(span, err)
	}
	n, err = w.reap(ctx, orphaned, reapOrphaned)
	reaped += n
	if err != nil {
		return reaped, w.fail(span, err)
	}

	w.metrics.sweepsTotal.Inc()
	w.metrics.sweepDuration.Observe(w.clock().Sub(start).Seconds())
	span.SetAttributes(attribute.Int("session.reaped", reaped))
	return reaped, nil
}

// reap deletes each id, counting only rows actually removed. A count of 0
// means another sweep got there first; that is success, not an error.
func (w *Sweeper) reap(ctx context.Context, ids []string, ownership string) (int, error) {
	reaped := 0
	for _, id := range ids {
		affected, err := w.store.Delete(ctx, id, w.scope)
		if err != nil {
			return reaped, err
		}
		if affected > 0 {
			reaped++
			w.metrics.reapedTotal.WithLabelValues(ownership).Inc()
		}
	}
	return reaped, nil
}

func (w *Sweeper) fail(span trace.Span, err error) error {
	w.metrics.errorsTotal.Inc()
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, "sweep failed")
	return err
}
