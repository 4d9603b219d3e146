package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/station-demand-service/internal/domain"
	"github.com/couchcryptid/station-demand-service/internal/observability"
)

// Pager is the count-and-page view of the demand table.
type Pager interface {
	Count(ctx context.Context, filter domain.RangeFilter) (int, error)
	ListPage(ctx context.Context, filter domain.RangeFilter, offset, limit int) ([]domain.DemandRecord, error)
}

// PagedReader materializes record sets from a Pager.
type PagedReader struct {
	pager       Pager
	limit       int
	concurrency int
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewPagedReader reads at most limit rows per call with at most concurrency
// calls in flight.
func NewPagedReader(pager Pager, limit, concurrency int, logger *slog.Logger, metrics *observability.Metrics) *PagedReader {
	return &PagedReader{
		pager:       pager,
		limit:       max(limit, 1),
		concurrency: max(concurrency, 1),
		logger:      logger,
		metrics:     metrics,
	}
}

// ReadAll returns every record matching filter, in store order.
func (r *PagedReader) ReadAll(ctx context.Context, filter domain.RangeFilter) ([]domain.DemandRecord, error) {
	total, err := r.pager.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: count records: %w", domain.ErrCollaborator, err)
	}
	return r.readRange(ctx, filter, 0, total)
}

// Page describes one fixed-size slice of a record set.
type Page struct {
	Number     int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
	TotalRows  int                   `json:"total_rows"`
	Records    []domain.DemandRecord `json:"records"`
}

// ReadPage returns the 1-based page of pageSize records. A page past the end
// is returned empty.
func (r *PagedReader) ReadPage(ctx context.Context, filter domain.RangeFilter, page, pageSize int) (Page, error) {
	if page < 1 || pageSize < 1 {
		return Page{}, fmt.Errorf("page %d with size %d: page and size must be positive", page, pageSize)
	}
	total, err := r.pager.Count(ctx, filter)
	if err != nil {
		return Page{}, fmt.Errorf("%w: count records: %w", domain.ErrCollaborator, err)
	}

	out := Page{
		Number:     page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
		TotalRows:  total,
	}
	offset := (page - 1) * pageSize
	if offset >= total {
		out.Records = []domain.DemandRecord{}
		return out, nil
	}
	out.Records, err = r.readRange(ctx, filter, offset, min(pageSize, total-offset))
	if err != nil {
		return Page{}, err
	}
	return out, nil
}

// readRange reads n rows starting at offset in limit-sized batches.
func (r *PagedReader) readRange(ctx context.Context, filter domain.RangeFilter, offset, n int) ([]domain.DemandRecord, error) {
	if n <= 0 {
		return []domain.DemandRecord{}, nil
	}
	batches := (n + r.limit - 1) / r.limit
	results := make([][]domain.DemandRecord, batches)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range batches {
		g.Go(func() error {
			start := offset + i*r.limit
			size := min(r.limit, offset+n-start)

			began := time.Now()
			recs, err := r.pager.ListPage(gctx, filter, start, size)
			if err != nil {
				return fmt.Errorf("read batch %d at offset %d: %w", i, start, err)
			}
			r.metrics.PagesFetched.Inc()
			r.metrics.PageFetchDuration.Observe(time.Since(began).Seconds())
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.logger.Error("paged read failed", "error", err, "offset", offset, "rows", n)
		return nil, fmt.Errorf("%w: %w", domain.ErrCollaborator, err)
	}

	out := make([]domain.DemandRecord, 0, n)
	for _, recs := range results {
		out = append(out, recs...)
	}
	r.logger.Debug("paged read complete", "offset", offset, "rows", len(out), "batches", batches)
	return out, nil
}
