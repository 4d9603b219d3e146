package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/station-demand-service/internal/config"
	"github.com/couchcryptid/station-demand-service/internal/domain"
	"github.com/couchcryptid/station-demand-service/internal/observability"
)

// ErrInvalidRequest marks caller input the services reject before touching a
// collaborator.
var ErrInvalidRequest = errors.New("invalid request")

// RecordReader loads every demand record matching a filter.
type RecordReader interface {
	ReadAll(ctx context.Context, filter domain.RangeFilter) ([]domain.DemandRecord, error)
}

// StationSource supplies station metadata and the stored date range.
type StationSource interface {
	ListStations(ctx context.Context) ([]domain.Station, error)
	DateBounds(ctx context.Context) (start, end domain.Date, err error)
}

// Options are the analysis parameters not carried by a Request.
type Options struct {
	Classifier domain.ClassifierConfig
	// ObservedDayCount divides every profile slot. Zero uses the length of
	// the analysed range.
	ObservedDayCount    int
	PreferAuthoritative bool
	Start, End          domain.Date
}

// OptionsFromConfig converts the layered analysis configuration.
func OptionsFromConfig(a *config.Analysis) Options {
	start, end := a.Range()
	return Options{
		Classifier:          a.ClassifierConfig(),
		ObservedDayCount:    a.ObservedDayCount,
		PreferAuthoritative: a.PreferAuthoritative,
		Start:               start,
		End:                 end,
	}
}

// Request narrows one analysis. Zero fields fall back to Options and then to
// the stored date range.
type Request struct {
	Policy domain.Policy
	Start  domain.Date
	End    domain.Date
}

// Analyzer loads one date range and runs the whole core over it: aggregation,
// profiles, classification, rankings and insights.
type Analyzer struct {
	records  RecordReader
	stations StationSource
	opts     Options
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewAnalyzer creates an Analyzer. A nil clock uses real time.
func NewAnalyzer(records RecordReader, stations StationSource, opts Options, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Analyzer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Analyzer{
		records:  records,
		stations: stations,
		opts:     opts,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// Analyze produces a Report for req.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*domain.Report, error) {
	cfg := a.opts.Classifier
	if req.Policy != "" {
		cfg.Policy = req.Policy
	}
	classifier, err := domain.NewClassifier(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	start := time.Now()
	report, err := a.analyze(ctx, req, classifier)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	a.metrics.AnalysisRuns.WithLabelValues(string(classifier.Policy()), outcome).Inc()
	if err != nil {
		return nil, err
	}
	a.metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	return report, nil
}

func (a *Analyzer) analyze(ctx context.Context, req Request, classifier domain.Classifier) (*domain.Report, error) {
	filter, err := a.resolveRange(ctx, req)
	if err != nil {
		return nil, err
	}

	stations, err := a.stations.ListStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list stations: %w", domain.ErrCollaborator, err)
	}
	records, err := a.records.ReadAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	a.metrics.RecordsLoaded.Add(float64(len(records)))

	report := &domain.Report{
		RunID:       uuid.NewString(),
		GeneratedAt: a.clock.Now().UTC(),
		Start:       filter.Start,
		End:         filter.End,
	}

	report.Summary = domain.Aggregate(records)
	if report.Summary.Skipped > 0 {
		a.logger.Warn("skipped invalid demand records", "count", report.Summary.Skipped, "run_id", report.RunID)
		a.metrics.RecordsSkipped.Add(float64(report.Summary.Skipped))
	}
	report.HourPeaks = domain.FindPeaks(report.Summary.HourTotals[:])

	report.ObservedDays = a.opts.ObservedDayCount
	if report.ObservedDays == 0 {
		report.ObservedDays = max(filter.Days(), 1)
	}
	if seen := domain.DistinctDays(records); seen > 0 && seen < report.ObservedDays {
		a.logger.Warn("records cover fewer days than the profile divisor",
			"run_id", report.RunID, "days_with_records", seen, "observed_days", report.ObservedDays)
	}
	report.Profiles, err = domain.BuildProfiles(stations, records, report.ObservedDays, a.opts.PreferAuthoritative)
	if err != nil {
		return nil, err
	}
	report.Patterns = domain.ClassifyProfiles(classifier, report.Profiles)

	stats := namedStats(domain.StationStats(records), stations)
	report.Ranking = domain.RankStations(stats, domain.RankByTotal)
	report.Quartiles = domain.GradeRanking(report.Ranking)

	totals := make([]float64, len(stats))
	for i, s := range stats {
		totals[i] = s.TotalDemand
	}
	report.Tiers = domain.DemandTiers(totals)
	report.CommonPeakHour, report.CommonPeakStations = domain.MostCommonPeakHour(stats)
	report.Insights = domain.BuildInsights(report.Summary, stats, report.Patterns.Clusters)

	for _, c := range report.Patterns.Clusters {
		a.metrics.StationsBy.WithLabelValues(string(c.Pattern)).Set(float64(c.MemberCount))
	}
	a.logger.Info("analysis complete",
		"run_id", report.RunID,
		"policy", report.Patterns.Policy,
		"start", report.Start.String(),
		"end", report.End.String(),
		"records", len(records),
		"stations", len(report.Profiles),
		"total_demand", domain.FormatCompact(report.Summary.TotalDemand),
	)
	return report, nil
}

// resolveRange fills unset bounds from the options and then from the store.
func (a *Analyzer) resolveRange(ctx context.Context, req Request) (domain.RangeFilter, error) {
	f := domain.RangeFilter{Start: req.Start, End: req.End}
	if f.Start.IsZero() {
		f.Start = a.opts.Start
	}
	if f.End.IsZero() {
		f.End = a.opts.End
	}
	if f.Start.IsZero() || f.End.IsZero() {
		first, last, err := a.stations.DateBounds(ctx)
		if err != nil {
			return f, fmt.Errorf("%w: date bounds: %w", domain.ErrCollaborator, err)
		}
		if f.Start.IsZero() {
			f.Start = first
		}
		if f.End.IsZero() {
			f.End = last
		}
	}
	if !f.Start.IsZero() && !f.End.IsZero() && f.End.Before(f.Start.Time) {
		return f, fmt.Errorf("%w: end %s before start %s", ErrInvalidRequest, f.End, f.Start)
	}
	return f, nil
}

// namedStats copies station names onto stats.
func namedStats(stats []domain.StationStat, stations []domain.Station) []domain.StationStat {
	names := make(map[int]string, len(stations))
	for _, st := range stations {
		names[st.StationID] = st.Name
	}
	for i := range stats {
		stats[i].Name = names[stats[i].StationID]
	}
	return stats
}
