package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/station-demand-service/internal/domain"
	"github.com/couchcryptid/station-demand-service/internal/observability"
)

// fakePager serves records from memory and tracks concurrent calls.
type fakePager struct {
	records  []domain.DemandRecord
	failAt   int // offset whose read fails; -1 disables
	countErr error
	delay    time.Duration

	mu       sync.Mutex
	offsets  []int
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newFakePager(n int) *fakePager {
	recs := make([]domain.DemandRecord, n)
	for i := range recs {
		recs[i] = domain.DemandRecord{StationID: i + 1, Hour: i % domain.HoursPerDay, Demand: float64(i)}
	}
	return &fakePager{records: recs, failAt: -1}
}

func (f *fakePager) Count(_ context.Context, _ domain.RangeFilter) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.records), nil
}

func (f *fakePager) ListPage(ctx context.Context, _ domain.RangeFilter, offset, limit int) ([]domain.DemandRecord, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if cur <= p || f.peak.CompareAndSwap(p, cur) {
			break
		}
	}

	f.mu.Lock()
	f.offsets = append(f.offsets, offset)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if offset == f.failAt {
		return nil, errors.New("connection reset")
	}
	end := min(offset+limit, len(f.records))
	return append([]domain.DemandRecord(nil), f.records[offset:end]...), nil
}

func newReader(p Pager, limit, concurrency int) *PagedReader {
	return NewPagedReader(p, limit, concurrency, slog.Default(), observability.NewMetricsForTesting())
}

func TestPagedReader_ReadAll(t *testing.T) {
	pager := newFakePager(2345)
	r := newReader(pager, 1000, 5)

	got, err := r.ReadAll(context.Background(), domain.RangeFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2345)
	for i, rec := range got {
		require.Equal(t, i+1, rec.StationID, "record %d out of order", i)
	}
	assert.ElementsMatch(t, []int{0, 1000, 2000}, pager.offsets)
}

func TestPagedReader_BoundedConcurrency(t *testing.T) {
	pager := newFakePager(100)
	pager.delay = 20 * time.Millisecond
	r := newReader(pager, 5, 3)

	got, err := r.ReadAll(context.Background(), domain.RangeFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 100)
	assert.LessOrEqual(t, pager.peak.Load(), int32(3))
	assert.Len(t, pager.offsets, 20)
}

func TestPagedReader_BatchFailureFailsWholeRead(t *testing.T) {
	pager := newFakePager(50)
	pager.failAt = 20
	r := newReader(pager, 10, 2)

	got, err := r.ReadAll(context.Background(), domain.RangeFilter{})
	require.Error(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, domain.ErrCollaborator)
	assert.Contains(t, err.Error(), "offset 20")
}

func TestPagedReader_CountFailure(t *testing.T) {
	pager := newFakePager(0)
	pager.countErr = errors.New("timeout")
	r := newReader(pager, 10, 2)

	_, err := r.ReadAll(context.Background(), domain.RangeFilter{})
	assert.ErrorIs(t, err, domain.ErrCollaborator)
}

func TestPagedReader_Empty(t *testing.T) {
	r := newReader(newFakePager(0), 10, 2)

	got, err := r.ReadAll(context.Background(), domain.RangeFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPagedReader_ReadPage(t *testing.T) {
	pager := newFakePager(25)
	r := newReader(pager, 4, 2)
	ctx := context.Background()

	page, err := r.ReadPage(ctx, domain.RangeFilter{}, 3, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 25, page.TotalRows)
	require.Len(t, page.Records, 5)
	assert.Equal(t, 21, page.Records[0].StationID)

	page, err = r.ReadPage(ctx, domain.RangeFilter{}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Records, 10)
	assert.Equal(t, 10, page.Records[9].StationID)

	page, err = r.ReadPage(ctx, domain.RangeFilter{}, 4, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Records)

	_, err = r.ReadPage(ctx, domain.RangeFilter{}, 0, 10)
	assert.Error(t, err)
}
