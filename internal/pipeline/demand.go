package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/couchcryptid/station-demand-service/internal/domain"
	"github.com/couchcryptid/station-demand-service/internal/observability"
	"github.com/couchcryptid/station-demand-service/internal/store"
)

// PageReader reads bounded record sets and fixed-size pages.
type PageReader interface {
	RecordReader
	ReadPage(ctx context.Context, filter domain.RangeFilter, page, pageSize int) (store.Page, error)
}

// BlobWriter stores an object and returns a temporary handle to it.
type BlobWriter interface {
	Put(key string, data []byte, contentType string) (domain.BlobHandle, error)
}

// StationLookup resolves one station.
type StationLookup interface {
	GetStation(ctx context.Context, id int) (domain.Station, error)
}

// HourlyRow is one record graded against the period mean.
type HourlyRow struct {
	domain.DemandRecord
	Level domain.HourLevel `json:"level"`
}

// StationDemand is one station's records over a date range.
type StationDemand struct {
	Station   domain.Station      `json:"station"`
	Start     domain.Date         `json:"start"`
	End       domain.Date         `json:"end"`
	Rows      []HourlyRow         `json:"rows"`
	Summary   domain.Summary      `json:"summary"`
	Daily     []domain.DailyTotal `json:"daily"`
	Stability domain.Stability    `json:"stability"`
	HourPeaks []domain.Peak       `json:"hour_peaks"`
}

// PageHandle is a record page written to blob storage.
type PageHandle struct {
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
	TotalRows  int               `json:"total_rows"`
	Rows       int               `json:"rows"`
	Blob       domain.BlobHandle `json:"blob"`
}

// DemandService answers per-station range queries and materializes record
// pages and CSV exports into blob storage.
type DemandService struct {
	records  PageReader
	stations StationLookup
	blobs    BlobWriter
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewDemandService creates a DemandService.
func NewDemandService(records PageReader, stations StationLookup, blobs BlobWriter, logger *slog.Logger, metrics *observability.Metrics) *DemandService {
	return &DemandService{records: records, stations: stations, blobs: blobs, logger: logger, metrics: metrics}
}

// ByStation returns the station's records between start and end inclusive,
// each graded against the range's average demand.
func (s *DemandService) ByStation(ctx context.Context, id int, start, end domain.Date) (*StationDemand, error) {
	st, recs, err := s.load(ctx, id, start, end)
	if err != nil {
		return nil, err
	}

	sum := domain.Aggregate(recs)
	rows := make([]HourlyRow, 0, len(recs))
	for _, r := range recs {
		if r.Validate() != nil {
			continue
		}
		rows = append(rows, HourlyRow{DemandRecord: r, Level: domain.HourLevelOf(r.Demand, sum.AvgDemand)})
	}
	return &StationDemand{
		Station:   st,
		Start:     start,
		End:       end,
		Rows:      rows,
		Summary:   sum,
		Daily:     domain.DailyTotals(recs),
		Stability: domain.StabilityOf(sum.CV),
		HourPeaks: domain.FindPeaks(sum.HourTotals[:]),
	}, nil
}

// ExportCSV writes the station's records between start and end as a
// Date,Hour,Demand CSV and returns its temporary handle.
func (s *DemandService) ExportCSV(ctx context.Context, id int, start, end domain.Date) (domain.BlobHandle, error) {
	_, recs, err := s.load(ctx, id, start, end)
	if err != nil {
		return domain.BlobHandle{}, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Date", "Hour", "Demand"})
	for _, r := range recs {
		_ = w.Write([]string{r.Date.String(), strconv.Itoa(r.Hour), strconv.FormatFloat(r.Demand, 'f', -1, 64)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return domain.BlobHandle{}, fmt.Errorf("encode csv export: %w", err)
	}

	key := fmt.Sprintf("exports/station_%d_%s_%s.csv", id, start, end)
	h, err := s.put(key, buf.Bytes(), "text/csv")
	if err != nil {
		return domain.BlobHandle{}, err
	}
	s.logger.Info("csv export written", "station_id", id, "rows", len(recs), "key", key)
	return h, nil
}

// PublishPage writes the 1-based page of pageSize records as JSON to blob
// storage. A page past the end is written empty.
func (s *DemandService) PublishPage(ctx context.Context, page, pageSize int) (PageHandle, error) {
	if page < 1 || pageSize < 1 {
		return PageHandle{}, fmt.Errorf("%w: page %d with size %d", ErrInvalidRequest, page, pageSize)
	}
	p, err := s.records.ReadPage(ctx, domain.RangeFilter{}, page, pageSize)
	if err != nil {
		return PageHandle{}, err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return PageHandle{}, fmt.Errorf("encode page %d: %w", page, err)
	}
	h, err := s.put(fmt.Sprintf("hourly-demands/page-%d.json", page), data, "application/json")
	if err != nil {
		return PageHandle{}, err
	}
	return PageHandle{
		Page:       p.Number,
		PageSize:   p.PageSize,
		TotalPages: p.TotalPages,
		TotalRows:  p.TotalRows,
		Rows:       len(p.Records),
		Blob:       h,
	}, nil
}

func (s *DemandService) load(ctx context.Context, id int, start, end domain.Date) (domain.Station, []domain.DemandRecord, error) {
	if id <= 0 {
		return domain.Station{}, nil, fmt.Errorf("%w: station id %d", ErrInvalidRequest, id)
	}
	if start.IsZero() || end.IsZero() {
		return domain.Station{}, nil, fmt.Errorf("%w: start and end dates are required", ErrInvalidRequest)
	}
	if end.Before(start.Time) {
		return domain.Station{}, nil, fmt.Errorf("%w: end %s before start %s", ErrInvalidRequest, end, start)
	}
	st, err := s.stations.GetStation(ctx, id)
	if err != nil {
		return domain.Station{}, nil, err
	}
	recs, err := s.records.ReadAll(ctx, domain.RangeFilter{StationID: id, Start: start, End: end})
	if err != nil {
		return domain.Station{}, nil, err
	}
	return st, recs, nil
}

func (s *DemandService) put(key string, data []byte, contentType string) (domain.BlobHandle, error) {
	h, err := s.blobs.Put(key, data, contentType)
	if err != nil {
		return domain.BlobHandle{}, fmt.Errorf("%w: store %s: %w", domain.ErrCollaborator, key, err)
	}
	s.metrics.BlobBytesWritten.Add(float64(len(data)))
	return h, nil
}
