package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/health-dashboard-etl/internal/domain"
	"github.com/couchcryptid/health-dashboard-etl/internal/observability"
	"github.com/couchcryptid/health-dashboard-etl/internal/snapshot"
	"github.com/jonboulle/clockwork"
)

// Reloader swaps in a freshly loaded snapshot.
type Reloader interface {
	Reload(ctx context.Context) (*snapshot.Snapshot, error)
}

// ViewPublisher writes the aggregates of a snapshot to a downstream sink.
type ViewPublisher interface {
	PublishViews(ctx context.Context, views []View) error
}

// Pipeline orchestrates the reload-aggregate-publish loop.
type Pipeline struct {
	store      Reloader
	aggregator *Aggregator
	publisher  ViewPublisher
	logger     *slog.Logger
	metrics    *observability.Metrics
	clock      clockwork.Clock
	interval   time.Duration
	ready      atomic.Bool
}

// New creates a Pipeline. A nil publisher disables publishing; a nil clock uses real time.
func New(store Reloader, aggregator *Aggregator, publisher ViewPublisher, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock, interval time.Duration) *Pipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		store:      store,
		aggregator: aggregator,
		publisher:  publisher,
		logger:     logger,
		metrics:    metrics,
		clock:      clock,
		interval:   interval,
	}
}

// CheckReadiness returns nil once a snapshot has been loaded and published,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no snapshot has been published yet")
	}
	return nil
}

// Run refreshes on every interval until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "refresh_interval", p.interval)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		if ctx.Err() != nil {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}

		if err := p.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Error("refresh failed", "error", err, "retry_in", backoff)
			if !p.sleepWithContext(ctx, backoff) {
				continue
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}

		backoff = 200 * time.Millisecond
		p.sleepWithContext(ctx, p.interval)
	}
}

// Refresh runs one reload-aggregate-publish cycle.
func (p *Pipeline) Refresh(ctx context.Context) error {
	start := p.clock.Now()

	snap, err := p.store.Reload(ctx)
	if err != nil {
		p.metrics.ReloadErrors.Inc()
		return err
	}
	p.metrics.SnapshotGeneration.Set(float64(snap.Generation))

	views := make([]View, 0, len(domain.Datasets()))
	for _, d := range domain.Datasets() {
		for _, v := range p.aggregator.DefaultViews(snap, d) {
			p.recordQuality(v)
			views = append(views, v)
		}
	}

	if p.publisher != nil {
		if err := p.publisher.PublishViews(ctx, views); err != nil {
			p.metrics.PublishErrors.Inc()
			return fmt.Errorf("publish generation %d: %w", snap.Generation, err)
		}
		for _, v := range views {
			p.metrics.SeriesPublished.WithLabelValues(string(v.Dataset)).Add(float64(len(v.Series)))
		}
	}

	p.ready.Store(true)
	p.metrics.ReloadDuration.Observe(p.clock.Since(start).Seconds())
	return nil
}

// recordQuality reports per-dataset data quality once per generation.
func (p *Pipeline) recordQuality(v View) {
	label := string(v.Dataset)
	p.metrics.RecordsLoaded.WithLabelValues(label).Add(float64(v.Records))
	p.metrics.MalformedValues.WithLabelValues(label).Add(float64(v.Malformed))
	p.metrics.UnresolvedRegions.WithLabelValues(label).Add(float64(v.Unresolved))

	if v.Unresolved > 0 || v.Malformed > 0 {
		p.logger.Warn("dataset has unusable rows",
			"dataset", v.Dataset,
			"generation", v.Generation,
			"category", v.Filter.Category,
			"unresolved", v.Unresolved,
			"malformed", v.Malformed,
		)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func (p *Pipeline) sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := p.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
