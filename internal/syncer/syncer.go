package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/good12834/shoestore/internal/domain"
	apperrors "github.com/good12834/shoestore/pkg/errors"
)

// Syncer gates a store's remote calls and runs its background work. Each
// store owns one.
type Syncer struct {
	name    string
	queue   *Queue
	breaker *Breaker
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a syncer for the store called name.
func New(name string, policy Policy, logger *slog.Logger) *Syncer {
	s := &Syncer{
		name:    name,
		breaker: NewBreaker(policy.FailureThreshold),
		logger:  logger.With(slog.String("store", name)),
	}
	if policy.RatePerSecond > 0 {
		burst := policy.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(policy.RatePerSecond), burst)
	}
	s.queue = NewQueue(s.taskDone)
	s.publishState()
	return s
}

// Name returns the store name used in logs and metrics.
func (s *Syncer) Name() string {
	return s.name
}

// Start launches the background worker.
func (s *Syncer) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Enqueue schedules fn on the worker without waiting for it. Errors from fn
// are logged and dropped.
func (s *Syncer) Enqueue(op string, fn func(ctx context.Context) error) {
	if !s.queue.Enqueue(Task{Name: op, Run: fn}) {
		s.logger.Warn("sync queue closed, dropping task", slog.String("op", op))
		return
	}
	syncQueueDepth.WithLabelValues(s.name).Set(float64(s.queue.Pending()))
}

// Call runs one remote call through the breaker. While the circuit is open
// fn is not invoked and the returned error wraps apperrors.ErrCircuitOpen.
func (s *Syncer) Call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if !s.breaker.Allow() {
		syncCalls.WithLabelValues(s.name, op, outcomeSkipped).Inc()
		return apperrors.CircuitOpen(s.name)
	}
	return s.attempt(ctx, op, fn)
}

// Probe runs one remote call even if the circuit is open. A success closes
// the circuit.
func (s *Syncer) Probe(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return s.attempt(ctx, op, fn)
}

func (s *Syncer) attempt(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("wait for sync rate limit: %w", err)
		}
	}

	err := fn(ctx)
	s.breaker.Record(err)
	s.publishState()

	switch {
	case err == nil:
		syncCalls.WithLabelValues(s.name, op, outcomeSuccess).Inc()
	case apperrors.IsUnauthorized(err):
		syncCalls.WithLabelValues(s.name, op, outcomeUnauthorized).Inc()
	default:
		syncCalls.WithLabelValues(s.name, op, outcomeFailure).Inc()
		if st := s.breaker.State(); st.Open {
			s.logger.WarnContext(ctx, "remote sync suspended",
				slog.String("op", op),
				slog.Int("consecutive_failures", st.ConsecutiveFailures),
			)
		}
	}
	return err
}

// Allow reports whether Call would attempt a remote call right now.
func (s *Syncer) Allow() bool {
	return s.breaker.Allow()
}

// Reset closes the circuit without a remote call.
func (s *Syncer) Reset() {
	s.breaker.Reset()
	s.publishState()
}

// State reports breaker and queue state.
func (s *Syncer) State() domain.SyncState {
	st := s.breaker.State()
	return domain.SyncState{
		ConsecutiveFailures: st.ConsecutiveFailures,
		CircuitOpen:         st.Open,
		Threshold:           st.Threshold,
		Pending:             s.queue.Pending(),
		LastError:           st.LastError,
	}
}

// Flush waits until all queued work has run.
func (s *Syncer) Flush(ctx context.Context) error {
	return s.queue.Flush(ctx)
}

// Close stops the worker. Queued tasks are dropped.
func (s *Syncer) Close() {
	s.queue.Close()
	syncQueueDepth.WithLabelValues(s.name).Set(0)
}

func (s *Syncer) taskDone(task Task, err error, elapsed time.Duration) {
	syncTaskDuration.WithLabelValues(s.name, task.Name).Observe(elapsed.Seconds())
	// The finished task is still counted until the queue marks it done.
	syncQueueDepth.WithLabelValues(s.name).Set(float64(max(s.queue.Pending()-1, 0)))
	if err != nil {
		s.logger.Warn("sync task failed",
			slog.String("task", task.Name),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", elapsed),
		)
	}
}

func (s *Syncer) publishState() {
	st := s.breaker.State()
	syncConsecutiveFailures.WithLabelValues(s.name).Set(float64(st.ConsecutiveFailures))
	open := 0.0
	if st.Open {
		open = 1
	}
	syncCircuitOpen.WithLabelValues(s.name).Set(open)
}
