package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

/* Worker periodically claims due failures and replays them.
 * It runs out of process from the request handlers (cmd/retryworker) with
 * no ordering dependency on request traffic. Delivery is at-least-once:
 * a crash mid-replay leaves the lease to expire and another worker claims
 * the row again.
 */

// Replayer attempts one redelivery or reprocessing of a failure.
type Replayer interface {
	Replay(ctx context.Context, failure FailedDelivery) error
}

// ReplayerFunc adapts a function to the Replayer interface.
type ReplayerFunc func(ctx context.Context, failure FailedDelivery) error

func (f ReplayerFunc) Replay(ctx context.Context, failure FailedDelivery) error {
	return f(ctx, failure)
}

// WorkerConfig tunes the replay loop.
type WorkerConfig struct {
	Interval    time.Duration // polling period
	Lease       time.Duration // claim duration per row
	BatchSize   int           // max rows claimed per tick
	MaxAttempts int           // attempt ceiling before abandoning
	BackoffBase time.Duration // first retry delay
	BackoffCap  time.Duration // ceiling for the exponential schedule
}

// DefaultWorkerConfig returns production replay settings.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Interval:    30 * time.Second,
		Lease:       time.Minute,
		BatchSize:   50,
		MaxAttempts: 8,
		BackoffBase: 30 * time.Second,
		BackoffCap:  time.Hour,
	}
}

// WorkerRecorder receives replay outcomes for metrics.
type WorkerRecorder interface {
	RecordRetryOutcome(ctx context.Context, source string, outcome string)
}

type Worker struct {
	store    Store
	replayer Replayer
	config   WorkerConfig
	logger   zerolog.Logger
	recorder WorkerRecorder
	now      func() time.Time
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithWorkerRecorder attaches a metrics recorder.
func WithWorkerRecorder(r WorkerRecorder) WorkerOption {
	return func(w *Worker) { w.recorder = r }
}

// WithWorkerClock overrides the time source, for tests.
func WithWorkerClock(now func() time.Time) WorkerOption {
	return func(w *Worker) { w.now = now }
}

// NewWorker creates a replay worker over a failed-delivery store.
func NewWorker(store Store, replayer Replayer, config WorkerConfig, logger zerolog.Logger, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:    store,
		replayer: replayer,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls for due failures until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error().Err(err).Msg("replay pass failed")
			}
		}
	}
}

// RunOnce claims one batch of due failures and replays each.
func (w *Worker) RunOnce(ctx context.Context) error {
	failures, err := w.store.ClaimDue(ctx, w.now(), w.config.Lease, w.config.BatchSize)
	if err != nil {
		return fmt.Errorf("claiming due failures: %w", err)
	}

	for _, failure := range failures {
		w.replay(ctx, failure)
	}
	return nil
}

func (w *Worker) replay(ctx context.Context, failure FailedDelivery) {
	log := w.logger.With().
		Str("failure_id", failure.ID).
		Str("source", failure.Source.String()).
		Int("attempt", failure.AttemptCount+1).
		Logger()

	if err := w.replayer.Replay(ctx, failure); err != nil {
		w.handleFailure(ctx, failure, err, log)
		return
	}

	if err := w.store.MarkResolved(ctx, failure.ID, w.now()); err != nil {
		// The replay succeeded; the worst case of losing this update is one
		// duplicate delivery after the lease expires.
		log.Error().Err(err).Msg("marking failure resolved")
		return
	}
	w.record(ctx, failure, "resolved")
	log.Info().Msg("failed delivery replayed")
}

func (w *Worker) handleFailure(ctx context.Context, failure FailedDelivery, cause error, log zerolog.Logger) {
	attempts := failure.AttemptCount + 1

	if attempts >= w.config.MaxAttempts {
		if err := w.store.MarkAbandoned(ctx, failure.ID, w.now()); err != nil {
			log.Error().Err(err).Msg("marking failure abandoned")
			return
		}
		w.record(ctx, failure, "abandoned")
		log.Warn().Err(cause).Msg("failed delivery abandoned after attempt ceiling")
		return
	}

	nextRetryAt := NextRetryAt(w.now(), w.config.BackoffBase, attempts, w.config.BackoffCap)
	if err := w.store.Reschedule(ctx, failure.ID, attempts, nextRetryAt); err != nil {
		log.Error().Err(err).Msg("rescheduling failure")
		return
	}
	w.record(ctx, failure, "rescheduled")
	log.Info().Err(cause).Time("next_retry_at", nextRetryAt).Msg("failed delivery rescheduled")
}

func (w *Worker) record(ctx context.Context, failure FailedDelivery, outcome string) {
	if w.recorder != nil {
		w.recorder.RecordRetryOutcome(ctx, failure.Source.String(), outcome)
	}
}
