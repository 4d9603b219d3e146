package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/station-demand-service/internal/domain"
)

// StationRepository is the station-level read side of the record store.
type StationRepository interface {
	StationLookup
	ListStations(ctx context.Context) ([]domain.Station, error)
	StationStats(ctx context.Context, filter domain.RangeFilter) ([]domain.StationStat, error)
	Overview(ctx context.Context) (domain.Overview, error)
}

// StationView is a station with its demand level and optional statistics.
type StationView struct {
	domain.Station
	Level domain.DemandLevel  `json:"level"`
	Stats *domain.StationStat `json:"stats,omitempty"`
}

// Ranking is a ranked station list graded by quartile.
type Ranking struct {
	Metric    domain.RankMetric      `json:"metric"`
	Quartiles domain.Quartiles       `json:"quartiles"`
	Stations  []domain.RankedStation `json:"stations"`
	Tiers     []domain.DemandTier    `json:"tiers"`
}

// StationService answers station listing, detail, overview and ranking
// queries. Its errors from the repository are wrapped as collaborator
// failures except ErrStationNotFound.
type StationService struct {
	repo StationRepository
}

// NewStationService creates a StationService.
func NewStationService(repo StationRepository) *StationService {
	return &StationService{repo: repo}
}

// List returns up to limit stations ordered by ID; limit <= 0 returns all.
// With includeStats each view carries the station's SQL statistics.
func (s *StationService) List(ctx context.Context, includeStats bool, limit int) ([]StationView, error) {
	stations, err := s.repo.ListStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list stations: %w", domain.ErrCollaborator, err)
	}
	if limit > 0 && len(stations) > limit {
		stations = stations[:limit]
	}

	var byID map[int]domain.StationStat
	if includeStats {
		stats, err := s.repo.StationStats(ctx, domain.RangeFilter{})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrCollaborator, err)
		}
		byID = make(map[int]domain.StationStat, len(stats))
		for _, st := range stats {
			byID[st.StationID] = st
		}
	}

	out := make([]StationView, len(stations))
	for i, st := range stations {
		v := StationView{Station: st}
		var stat *domain.StationStat
		if stt, ok := byID[st.StationID]; ok {
			stat = &stt
		}
		v.Stats = stat
		v.Level = levelOf(st, stat)
		out[i] = v
	}
	return out, nil
}

// Info returns one station with its statistics over all stored records. A
// station without records falls back to its authoritative totals, if any.
func (s *StationService) Info(ctx context.Context, id int) (*StationView, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: station id %d", ErrInvalidRequest, id)
	}
	st, err := s.repo.GetStation(ctx, id)
	if err != nil {
		return nil, err
	}
	stats, err := s.repo.StationStats(ctx, domain.RangeFilter{StationID: id})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCollaborator, err)
	}

	v := &StationView{Station: st}
	switch {
	case len(stats) > 0:
		v.Stats = &stats[0]
		v.Stats.Name = st.Name
	case st.TotalDemand != nil:
		stat := domain.StatFromStation(st)
		v.Stats = &stat
	}
	v.Level = levelOf(st, v.Stats)
	return v, nil
}

// Overview returns the headline figures of the stored data set.
func (s *StationService) Overview(ctx context.Context) (domain.Overview, error) {
	o, err := s.repo.Overview(ctx)
	if err != nil {
		return o, fmt.Errorf("%w: %w", domain.ErrCollaborator, err)
	}
	return o, nil
}

// Rank orders the stations by metric over filter and grades them by
// quartile.
func (s *StationService) Rank(ctx context.Context, metric domain.RankMetric, filter domain.RangeFilter) (*Ranking, error) {
	if _, ok := domain.ParseRankMetric(string(metric)); !ok {
		return nil, fmt.Errorf("%w: unknown ranking metric %q", ErrInvalidRequest, metric)
	}
	stats, err := s.repo.StationStats(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCollaborator, err)
	}

	ranked := domain.RankStations(stats, metric)
	totals := make([]float64, len(stats))
	for i, st := range stats {
		totals[i] = st.TotalDemand
	}
	return &Ranking{
		Metric:    metric,
		Quartiles: domain.GradeRanking(ranked),
		Stations:  ranked,
		Tiers:     domain.DemandTiers(totals),
	}, nil
}

// levelOf prefers the stored demand level, then grades the stored total,
// then the computed one.
func levelOf(st domain.Station, stat *domain.StationStat) domain.DemandLevel {
	switch {
	case st.DemandLevel != nil:
		return domain.DemandLevel(*st.DemandLevel)
	case st.TotalDemand != nil:
		return domain.LevelForTotal(*st.TotalDemand)
	case stat != nil:
		return domain.LevelForTotal(stat.TotalDemand)
	default:
		return domain.DemandLow
	}
}
