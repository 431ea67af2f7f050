// Package scheduler owns the latest accepted aurora field and recomputes it
// on a single background worker whenever the raw field or the point budget
// changes.
//
// A newer request cancels the computation in flight and replaces any request
// still waiting, so a burst of budget changes yields one result for the last
// value. Results that were superseded while computing are never published.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/aurora-field/internal/domain"
	"github.com/couchcryptid/aurora-field/internal/observability"
)

// ComputeFunc turns raw entries into a downsampled field. It must be pure and
// should return ctx.Err() promptly once ctx is cancelled.
type ComputeFunc func(ctx context.Context, entries []domain.RawFieldEntry, targetCount int, minProbability float64) (domain.DownsampledField, domain.IngestStats, error)

// Input is everything one computation needs.
type Input struct {
	Snapshot       domain.FieldSnapshot
	TargetCount    int
	MinProbability float64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used to stamp published fields.
func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithCompute replaces domain.BuildField as the computation.
func WithCompute(fn ComputeFunc) Option {
	return func(s *Scheduler) { s.compute = fn }
}

// Scheduler serializes recomputations and publishes their results.
type Scheduler struct {
	compute ComputeFunc
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	latest atomic.Pointer[domain.DownsampledField]
	wake   chan struct{}

	mu          sync.Mutex
	input       Input
	hasSnapshot bool
	pending     bool
	generation  uint64
	version     uint64
	cancel      context.CancelFunc
	published   chan struct{}
	subs        map[int]chan *domain.DownsampledField
	nextSub     int
}

// New creates a Scheduler with an initial budget. Nothing is computed until
// the first raw field arrives.
func New(targetCount int, minProbability float64, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Scheduler {
	s := &Scheduler{
		compute: domain.BuildField,
		clock:   clockwork.NewRealClock(),
		logger:  logger,
		metrics: metrics,
		wake:    make(chan struct{}, 1),
		input: Input{
			TargetCount:    targetCount,
			MinProbability: minProbability,
		},
		published: make(chan struct{}),
		subs:      make(map[int]chan *domain.DownsampledField),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request replaces every input at once and schedules a recomputation.
func (s *Scheduler) Request(in Input) {
	s.mu.Lock()
	s.input = in
	s.hasSnapshot = true
	s.submitLocked()
	s.mu.Unlock()
	s.signal()
}

// UpdateField schedules a recomputation for a freshly fetched raw field.
func (s *Scheduler) UpdateField(snapshot domain.FieldSnapshot) {
	s.mu.Lock()
	s.input.Snapshot = snapshot
	s.hasSnapshot = true
	s.submitLocked()
	s.mu.Unlock()
	s.signal()
}

// UpdateBudget changes the per-hemisphere target count. It reports whether a
// recomputation was scheduled; without a raw field, or when the budget is
// unchanged, only the stored value changes.
func (s *Scheduler) UpdateBudget(targetCount int) bool {
	s.mu.Lock()
	if s.input.TargetCount == targetCount || !s.hasSnapshot {
		s.input.TargetCount = targetCount
		s.mu.Unlock()
		return false
	}
	s.input.TargetCount = targetCount
	s.submitLocked()
	s.mu.Unlock()
	s.signal()
	return true
}

// Budget returns the target count the next computation will use.
func (s *Scheduler) Budget() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input.TargetCount
}

// submitLocked supersedes whatever is in flight. Callers hold s.mu.
func (s *Scheduler) submitLocked() {
	s.generation++
	s.pending = true
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Latest returns the most recently published field, or nil before the first
// publication. The returned field must not be modified.
func (s *Scheduler) Latest() *domain.DownsampledField {
	return s.latest.Load()
}

// Subscribe returns a channel that always holds the newest published field.
// A slow reader only misses intermediate values; the worker never blocks on
// it. The latest field, if any, is delivered immediately. Call the returned
// function to unsubscribe.
func (s *Scheduler) Subscribe() (<-chan *domain.DownsampledField, func()) {
	ch := make(chan *domain.DownsampledField, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	if f := s.latest.Load(); f != nil {
		ch <- f
	}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Wait blocks until a field with at least the given version is published.
func (s *Scheduler) Wait(ctx context.Context, version uint64) (*domain.DownsampledField, error) {
	for {
		s.mu.Lock()
		f := s.latest.Load()
		published := s.published
		s.mu.Unlock()

		if f != nil && f.Version >= version {
			return f, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-published:
		}
	}
}

// Run executes recomputations one at a time until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	in := s.input
	s.mu.Unlock()
	s.logger.Info("scheduler started",
		"target_count", in.TargetCount,
		"min_probability", in.MinProbability,
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		case <-s.wake:
			s.runPending(ctx)
		}
	}
}

// runPending runs the waiting request, if any, and publishes its result
// unless a newer request arrived in the meantime.
func (s *Scheduler) runPending(ctx context.Context) {
	s.mu.Lock()
	if !s.pending {
		s.mu.Unlock()
		return
	}
	s.pending = false
	in := s.input
	gen := s.generation
	jobCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.metrics.ComputationsStarted.Inc()
	start := s.clock.Now()
	field, stats, err := s.compute(jobCtx, in.Snapshot.Entries, in.TargetCount, in.MinProbability)
	cancel()
	elapsed := s.clock.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = nil

	if err != nil || gen != s.generation {
		s.metrics.ComputationsCancelled.Inc()
		s.logger.Debug("computation superseded",
			"target_count", in.TargetCount,
			"error", err,
		)
		return
	}

	s.version++
	field.Version = s.version
	field.TargetCount = in.TargetCount
	field.MinProbability = in.MinProbability
	field.ComputedAt = s.clock.Now().UTC()
	field.ObservedAt = in.Snapshot.ObservedAt
	field.ForecastAt = in.Snapshot.ForecastAt

	s.publishLocked(&field)
	s.record(&field, stats, elapsed.Seconds())
}

// publishLocked swaps the latest slot and notifies waiters. Callers hold s.mu.
func (s *Scheduler) publishLocked(f *domain.DownsampledField) {
	s.latest.Store(f)

	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- f:
		default:
		}
	}

	close(s.published)
	s.published = make(chan struct{})
}

func (s *Scheduler) record(f *domain.DownsampledField, stats domain.IngestStats, seconds float64) {
	s.metrics.ComputationsPublished.Inc()
	s.metrics.ComputeDuration.Observe(seconds)
	s.metrics.FieldVersion.Set(float64(f.Version))
	s.metrics.FieldSamples.WithLabelValues(domain.North.String()).Set(float64(len(f.Northern)))
	s.metrics.FieldSamples.WithLabelValues(domain.South.String()).Set(float64(len(f.Southern)))
	s.metrics.IngestEntries.WithLabelValues("kept").Add(float64(stats.Kept))
	s.metrics.IngestEntries.WithLabelValues("malformed").Add(float64(stats.Malformed))
	s.metrics.IngestEntries.WithLabelValues("zero_probability").Add(float64(stats.ZeroProbability))

	s.logger.Info("field published",
		"version", f.Version,
		"target_count", f.TargetCount,
		"northern", len(f.Northern),
		"southern", len(f.Southern),
		"axes", stats.Axes.Order.String(),
		"axes_inferred", stats.Axes.Inferred,
		"duration_ms", seconds*1000,
	)
}
