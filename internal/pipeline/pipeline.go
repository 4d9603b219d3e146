package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/station-demand-service/internal/domain"
	"github.com/couchcryptid/station-demand-service/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// ReportAnalyzer produces one analysis report.
type ReportAnalyzer interface {
	Analyze(ctx context.Context, req Request) (*domain.Report, error)
}

// ReportPublisher delivers a finished report downstream.
type ReportPublisher interface {
	LoadReport(ctx context.Context, report *domain.Report) error
}

// Pipeline runs the analysis on a fixed interval and publishes each report.
type Pipeline struct {
	analyzer   ReportAnalyzer
	publishers []ReportPublisher
	interval   time.Duration
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
	ready      atomic.Bool
	latest     atomic.Pointer[domain.Report]
}

// New creates a Pipeline. A nil clock uses real time.
func New(a ReportAnalyzer, interval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, publishers ...ReportPublisher) *Pipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		analyzer:   a,
		publishers: publishers,
		interval:   interval,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
}

// CheckReadiness returns nil once a scheduled run has completed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no analysis run has completed yet")
	}
	return nil
}

// Latest returns the most recent scheduled report, or nil before the first.
func (p *Pipeline) Latest() *domain.Report {
	return p.latest.Load()
}

// Run executes the analysis loop until the context is cancelled. A failed run
// is retried with exponential backoff; a successful one waits for the next
// interval.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "interval", p.interval)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}

		if err := p.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("analysis run failed", "error", err, "retry_in", backoff)
			if !retry.SleepWithContext(ctx, backoff) {
				return nil
			}
			backoff = retry.NextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = initialBackoff

		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		case <-p.clock.After(p.interval):
		}
	}
}

// RunOnce analyses the configured range and hands the report to every
// publisher. The report becomes Latest only when all publishers succeed.
func (p *Pipeline) RunOnce(ctx context.Context) error {
	report, err := p.analyzer.Analyze(ctx, Request{})
	if err != nil {
		return err
	}
	for _, pub := range p.publishers {
		if err := pub.LoadReport(ctx, report); err != nil {
			return err
		}
	}
	p.latest.Store(report)
	p.ready.Store(true)
	return nil
}
