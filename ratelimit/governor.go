package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

/* Governor applies per-class fixed-window limits using a primary counter
 * store with an in-process fallback.
 *
 * Backend selection is per call: the primary is tried first and, if it
 * errors, the fallback counts the request against the stricter degraded
 * table for that call only. The next request probes the primary again, so
 * degraded mode never sticks after the primary recovers.
 */

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is the suggested wait in seconds; zero unless denied.
	RetryAfter int
}

// Recorder receives governor outcomes for metrics.
type Recorder interface {
	RecordRateLimitCheck(ctx context.Context, class string, allowed bool, degraded bool)
}

type Governor struct {
	primary  Counter
	fallback Counter
	tables   *Tables
	// primaryTimeout bounds each primary-store call so a slow Redis
	// degrades rate limiting, not the whole request.
	primaryTimeout time.Duration
	logger         zerolog.Logger
	recorder       Recorder
	now            func() time.Time
}

// GovernorOption configures a Governor.
type GovernorOption func(*Governor)

// WithPrimaryTimeout overrides the per-call primary store timeout.
func WithPrimaryTimeout(d time.Duration) GovernorOption {
	return func(g *Governor) { g.primaryTimeout = d }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) GovernorOption {
	return func(g *Governor) { g.recorder = r }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) GovernorOption {
	return func(g *Governor) { g.now = now }
}

// NewGovernor creates a governor over a primary and fallback counter store.
func NewGovernor(primary, fallback Counter, tables *Tables, logger zerolog.Logger, opts ...GovernorOption) *Governor {
	g := &Governor{
		primary:        primary,
		fallback:       fallback,
		tables:         tables,
		primaryTimeout: 500 * time.Millisecond,
		logger:         logger,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check consumes one request unit for (class, identity) and decides whether
// it may proceed. It never returns an error: internal failures log and fail
// open unless the class is configured fail-closed.
func (g *Governor) Check(ctx context.Context, class Class, clientID string) Decision {
	key := fmt.Sprintf("%s:%s", class, clientID)

	decision, err := g.checkPrimary(ctx, class, key)
	if err == nil {
		g.record(ctx, class, decision.Allowed, false)
		return decision
	}

	g.logger.Warn().Err(err).Str("class", class.String()).
		Msg("primary quota store unavailable, using degraded limits")

	decision, fallbackErr := g.checkStore(ctx, g.fallback, key, g.tables.Degraded(class))
	if fallbackErr == nil {
		g.record(ctx, class, decision.Allowed, true)
		return decision
	}

	g.logger.Error().Err(fallbackErr).Str("class", class.String()).
		Msg("fallback quota store failed")

	if g.tables.FailClosed(class) {
		g.record(ctx, class, false, true)
		return Decision{
			Allowed:    false,
			Limit:      g.tables.Degraded(class).Max,
			Remaining:  0,
			RetryAfter: int(g.tables.Degraded(class).Window / time.Second),
		}
	}

	// Fail open: blocking all traffic on an internal bug is worse than
	// briefly under-enforcing limits.
	g.record(ctx, class, true, true)
	limit := g.tables.Normal(class)
	return Decision{Allowed: true, Limit: limit.Max, Remaining: limit.Max}
}

func (g *Governor) checkPrimary(ctx context.Context, class Class, key string) (Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, g.primaryTimeout)
	defer cancel()
	return g.checkStore(ctx, g.primary, key, g.tables.Normal(class))
}

func (g *Governor) checkStore(ctx context.Context, store Counter, key string, limit Limit) (Decision, error) {
	count, resetAt, err := store.Incr(ctx, key, limit.Window)
	if err != nil {
		return Decision{}, fmt.Errorf("incrementing quota counter: %w", err)
	}

	if count > int64(limit.Max) {
		retryAfter := int((resetAt.Sub(g.now()) + time.Second - 1) / time.Second)
		if retryAfter < 1 {
			retryAfter = 1
		}
		return Decision{
			Allowed:    false,
			Limit:      limit.Max,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfter,
		}, nil
	}

	return Decision{
		Allowed:   true,
		Limit:     limit.Max,
		Remaining: limit.Max - int(count),
		ResetAt:   resetAt,
	}, nil
}

func (g *Governor) record(ctx context.Context, class Class, allowed, degraded bool) {
	if g.recorder != nil {
		g.recorder.RecordRateLimitCheck(ctx, class.String(), allowed, degraded)
	}
}
