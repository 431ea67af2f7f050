package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/aurora-field/internal/domain"
	"github.com/couchcryptid/aurora-field/internal/observability"
	"github.com/couchcryptid/aurora-field/internal/pipeline"
)

// --- mocks ---

type fetchResult struct {
	snap domain.FieldSnapshot
	err  error
}

// scriptedSource returns its results in order, then blocks until the context
// is done.
type scriptedSource struct {
	mu           sync.Mutex
	results      []fetchResult
	calls        int
	hadDeadlines []bool
}

func (s *scriptedSource) FetchField(ctx context.Context) (domain.FieldSnapshot, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	_, ok := ctx.Deadline()
	s.hadDeadlines = append(s.hadDeadlines, ok)
	s.mu.Unlock()

	if i >= len(s.results) {
		<-ctx.Done()
		return domain.FieldSnapshot{}, ctx.Err()
	}
	return s.results[i].snap, s.results[i].err
}

func (s *scriptedSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeFields struct {
	mu      sync.Mutex
	updates []domain.FieldSnapshot
	ch      chan *domain.DownsampledField
}

func newFakeFields() *fakeFields {
	return &fakeFields{ch: make(chan *domain.DownsampledField, 1)}
}

func (f *fakeFields) UpdateField(snap domain.FieldSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, snap)
}

func (f *fakeFields) Subscribe() (<-chan *domain.DownsampledField, func()) {
	return f.ch, func() {}
}

func (f *fakeFields) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

type flakyPublisher struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	published []uint64
}

func (p *flakyPublisher) PublishField(_ context.Context, f *domain.DownsampledField) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failFirst {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, f.Version)
	return nil
}

func (p *flakyPublisher) snapshot() (int, []uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls, append([]uint64(nil), p.published...)
}

func snapshot(n int) domain.FieldSnapshot {
	entries := make([]domain.RawFieldEntry, n)
	for i := range entries {
		entries[i] = domain.RawFieldEntry{float64(i), 65, 10}
	}
	return domain.FieldSnapshot{Entries: entries, ObservedAt: time.Date(2026, 3, 20, 4, 0, 0, 0, time.UTC)}
}

// runPipeline starts p and returns a stop function that cancels it and waits.
func runPipeline(t *testing.T, p *pipeline.Pipeline) (context.Context, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	stop := func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("pipeline did not stop")
		}
	}
	t.Cleanup(cancel)
	return ctx, stop
}

// --- tests ---

func TestPipeline_PollsOnInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &scriptedSource{results: []fetchResult{
		{snap: snapshot(3)},
		{snap: snapshot(4)},
	}}
	fields := newFakeFields()
	p := pipeline.New(src, fields, slog.Default(), observability.NewMetricsForTesting(),
		pipeline.WithClock(clock), pipeline.WithInterval(5*time.Minute))

	ctx, stop := runPipeline(t, p)
	defer stop()

	require.Eventually(t, func() bool { return fields.updateCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(4 * time.Minute)
	assert.Equal(t, 1, src.callCount())

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return fields.updateCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Len(t, fields.updates[1].Entries, 4)
}

func TestPipeline_UnchangedSkipsUpdate(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &scriptedSource{results: []fetchResult{
		{snap: snapshot(3)},
		{err: domain.ErrFieldUnchanged},
		{snap: snapshot(5)},
	}}
	fields := newFakeFields()
	p := pipeline.New(src, fields, slog.Default(), observability.NewMetricsForTesting(),
		pipeline.WithClock(clock), pipeline.WithInterval(time.Minute))

	ctx, stop := runPipeline(t, p)
	defer stop()

	for want := 2; want <= 3; want++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(time.Minute)
		require.Eventually(t, func() bool { return src.callCount() == want }, time.Second, 5*time.Millisecond)
	}

	require.Eventually(t, func() bool { return fields.updateCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Len(t, fields.updates[0].Entries, 3)
	assert.Len(t, fields.updates[1].Entries, 5)
}

func TestPipeline_BacksOffAfterError(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &scriptedSource{results: []fetchResult{
		{err: errors.New("connection refused")},
		{err: errors.New("connection refused")},
		{snap: snapshot(2)},
	}}
	fields := newFakeFields()
	p := pipeline.New(src, fields, slog.Default(), observability.NewMetricsForTesting(),
		pipeline.WithClock(clock), pipeline.WithInterval(time.Hour))

	ctx, stop := runPipeline(t, p)
	defer stop()

	// First retry after 200ms.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(199 * time.Millisecond)
	assert.Equal(t, 1, src.callCount())
	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return src.callCount() == 2 }, time.Second, 5*time.Millisecond)

	// Second retry after 400ms.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(200 * time.Millisecond)
	assert.Equal(t, 2, src.callCount())
	clock.Advance(200 * time.Millisecond)
	require.Eventually(t, func() bool { return fields.updateCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestPipeline_StreamingReadsBackToBack(t *testing.T) {
	src := &scriptedSource{results: []fetchResult{
		{snap: snapshot(1)},
		{snap: snapshot(2)},
		{snap: snapshot(3)},
	}}
	fields := newFakeFields()
	p := pipeline.New(src, fields, slog.Default(), observability.NewMetricsForTesting(),
		pipeline.WithClock(clockwork.NewFakeClock()))

	_, stop := runPipeline(t, p)
	require.Eventually(t, func() bool { return fields.updateCount() == 3 }, time.Second, 5*time.Millisecond)
	// The fourth fetch blocks until shutdown.
	require.Eventually(t, func() bool { return src.callCount() == 4 }, time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, 3, fields.updateCount())
}

func TestPipeline_FetchTimeoutBoundsEachFetch(t *testing.T) {
	src := &scriptedSource{results: []fetchResult{{snap: snapshot(1)}}}
	fields := newFakeFields()
	p := pipeline.New(src, fields, slog.Default(), observability.NewMetricsForTesting(),
		pipeline.WithClock(clockwork.NewFakeClock()),
		pipeline.WithInterval(time.Hour),
		pipeline.WithFetchTimeout(10*time.Second))

	_, stop := runPipeline(t, p)
	require.Eventually(t, func() bool { return fields.updateCount() == 1 }, time.Second, 5*time.Millisecond)
	stop()

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, []bool{true}, src.hadDeadlines)
}

func TestPipeline_ReadyAfterFirstPublication(t *testing.T) {
	fields := newFakeFields()
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(&scriptedSource{}, fields, slog.Default(), metrics)

	require.Error(t, p.CheckReadiness(context.Background()))

	_, stop := runPipeline(t, p)
	defer stop()

	require.Eventually(t, func() bool { return testutil.ToFloat64(metrics.PipelineRunning) == 1 }, time.Second, 5*time.Millisecond)
	assert.Error(t, p.CheckReadiness(context.Background()))

	fields.ch <- &domain.DownsampledField{Version: 1}
	require.Eventually(t, func() bool {
		return p.CheckReadiness(context.Background()) == nil
	}, time.Second, 5*time.Millisecond)
}

func TestPipeline_PublisherRetries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fields := newFakeFields()
	pub := &flakyPublisher{failFirst: 1}
	p := pipeline.New(&scriptedSource{}, fields, slog.Default(), observability.NewMetricsForTesting(),
		pipeline.WithClock(clock), pipeline.WithPublisher(pub))

	ctx, stop := runPipeline(t, p)
	defer stop()

	fields.ch <- &domain.DownsampledField{Version: 7}

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	calls, published := pub.snapshot()
	assert.Equal(t, 1, calls)
	assert.Empty(t, published)

	clock.Advance(200 * time.Millisecond)
	require.Eventually(t, func() bool {
		_, published := pub.snapshot()
		return len(published) == 1
	}, time.Second, 5*time.Millisecond)

	_, published = pub.snapshot()
	assert.Equal(t, []uint64{7}, published)
}

func TestPipeline_RunStopsOnCancelledContext(t *testing.T) {
	src := &scriptedSource{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(src, newFakeFields(), slog.Default(), metrics)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, 0, src.callCount())
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}
