// Package pipeline moves raw fields from a source into the recompute
// scheduler and forwards published fields to an optional sink.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/aurora-field/internal/domain"
	"github.com/couchcryptid/aurora-field/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Fields is the scheduler surface the pipeline drives.
type Fields interface {
	UpdateField(snapshot domain.FieldSnapshot)
	Subscribe() (<-chan *domain.DownsampledField, func())
}

// FieldPublisher writes a published field to a downstream sink.
type FieldPublisher interface {
	PublishField(ctx context.Context, field *domain.DownsampledField) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock replaces the wall clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithInterval polls the source on a fixed period. With no interval the
// source is read back to back, which suits sources that block until the
// next field arrives.
func WithInterval(d time.Duration) Option {
	return func(p *Pipeline) { p.interval = d }
}

// WithFetchTimeout bounds each fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.fetchTimeout = d }
}

// WithPublisher forwards every published field to pub.
func WithPublisher(pub FieldPublisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// Pipeline runs the fetch loop and the publish loop.
type Pipeline struct {
	source       domain.FieldSource
	fields       Fields
	publisher    FieldPublisher
	logger       *slog.Logger
	metrics      *observability.Metrics
	clock        clockwork.Clock
	interval     time.Duration
	fetchTimeout time.Duration
	ready        atomic.Bool
}

// New creates a Pipeline reading from source and feeding fields.
func New(source domain.FieldSource, fields Fields, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:  source,
		fields:  fields,
		logger:  logger,
		metrics: metrics,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil once a field has been published, or an error
// describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no field has been published yet")
	}
	return nil
}

// Run fetches until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started",
		"interval", p.interval,
		"fetch_timeout", p.fetchTimeout,
		"publisher", p.publisher != nil,
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	updates, unsubscribe := p.fields.Subscribe()
	defer unsubscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.forward(ctx, updates)
	}()
	defer wg.Wait()

	backoff := initialBackoff
	for ctx.Err() == nil {
		wait := p.interval
		if p.fetchOnce(ctx) {
			backoff = initialBackoff
		} else {
			wait = backoff
			backoff = nextBackoff(backoff, maxBackoff)
		}
		sleepWithContext(ctx, p.clock, wait)
	}

	p.logger.Info("pipeline stopping", "reason", ctx.Err())
	return nil
}

// fetchOnce reads one snapshot and hands it to the scheduler. An unchanged
// upstream counts as success. Returns false on error.
func (p *Pipeline) fetchOnce(ctx context.Context) bool {
	fetchCtx := ctx
	if p.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.fetchTimeout)
		defer cancel()
	}

	snap, err := p.source.FetchField(fetchCtx)
	switch {
	case errors.Is(err, domain.ErrFieldUnchanged):
		p.logger.Debug("field unchanged, skipping recompute")
		return true
	case err != nil:
		if ctx.Err() == nil {
			p.logger.Error("fetch field failed", "error", err)
		}
		return false
	}

	p.logger.Debug("field fetched",
		"entries", len(snap.Entries),
		"observed_at", snap.ObservedAt,
		"forecast_at", snap.ForecastAt,
	)
	p.fields.UpdateField(snap)
	return true
}

// forward marks the pipeline ready on the first publication and writes each
// field to the publisher. A failed write is retried with backoff until a
// newer field is available.
func (p *Pipeline) forward(ctx context.Context, updates <-chan *domain.DownsampledField) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-updates:
			if f == nil {
				continue
			}
			p.ready.Store(true)
			if p.publisher != nil {
				p.publish(ctx, f, updates)
			}
		}
	}
}

func (p *Pipeline) publish(ctx context.Context, f *domain.DownsampledField, updates <-chan *domain.DownsampledField) {
	backoff := initialBackoff
	for {
		err := p.publisher.PublishField(ctx, f)
		if err == nil {
			p.logger.Debug("field forwarded", "version", f.Version)
			return
		}
		if ctx.Err() != nil {
			return
		}
		p.logger.Error("publish field failed", "error", err, "version", f.Version)

		if len(updates) > 0 {
			// A newer field replaces this one.
			return
		}
		if !sleepWithContext(ctx, p.clock, backoff) {
			return
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
