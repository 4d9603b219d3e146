package pipeline_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/station-demand-service/internal/domain"
	"github.com/couchcryptid/station-demand-service/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	march1 = domain.NewDate(2024, time.March, 1)
	march2 = domain.NewDate(2024, time.March, 2)
)

// commuteAndFlat returns two days of records: station 1 peaks at 08:00 and
// 18:00, station 2 carries a flat 3 per hour.
func commuteAndFlat() []domain.DemandRecord {
	var recs []domain.DemandRecord
	for _, d := range []domain.Date{march1, march2} {
		for h := range domain.HoursPerDay {
			commute := 1.0
			if h == 8 || h == 18 {
				commute = 20
			}
			recs = append(recs,
				domain.DemandRecord{StationID: 1, Date: d, Hour: h, Demand: commute},
				domain.DemandRecord{StationID: 2, Date: d, Hour: h, Demand: 3},
			)
		}
	}
	return recs
}

// fakeRecords serves records from memory.
type fakeRecords struct {
	records []domain.DemandRecord
	err     error
	filters []domain.RangeFilter
}

func (f *fakeRecords) ReadAll(_ context.Context, filter domain.RangeFilter) ([]domain.DemandRecord, error) {
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.DemandRecord
	for _, r := range f.records {
		if filter.Contains(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRecords) ReadPage(_ context.Context, _ domain.RangeFilter, page, pageSize int) (store.Page, error) {
	if f.err != nil {
		return store.Page{}, f.err
	}
	total := len(f.records)
	p := store.Page{Number: page, PageSize: pageSize, TotalRows: total, TotalPages: (total + pageSize - 1) / pageSize}
	from := min((page-1)*pageSize, total)
	to := min(from+pageSize, total)
	p.Records = append([]domain.DemandRecord{}, f.records[from:to]...)
	return p, nil
}

// fakeStations implements every station-side repository interface.
type fakeStations struct {
	stations   []domain.Station
	stats      []domain.StationStat
	overview   domain.Overview
	start, end domain.Date
	err        error
}

func (f *fakeStations) ListStations(context.Context) ([]domain.Station, error) {
	return f.stations, f.err
}

func (f *fakeStations) DateBounds(context.Context) (domain.Date, domain.Date, error) {
	return f.start, f.end, f.err
}

func (f *fakeStations) GetStation(_ context.Context, id int) (domain.Station, error) {
	if f.err != nil {
		return domain.Station{}, f.err
	}
	for _, st := range f.stations {
		if st.StationID == id {
			return st, nil
		}
	}
	return domain.Station{}, domain.ErrStationNotFound
}

func (f *fakeStations) StationStats(_ context.Context, filter domain.RangeFilter) ([]domain.StationStat, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.StationStat
	for _, s := range f.stats {
		if filter.StationID == 0 || s.StationID == filter.StationID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStations) Overview(context.Context) (domain.Overview, error) {
	return f.overview, f.err
}

// fakeBlobs keeps written objects in a map.
type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}}
}

func (f *fakeBlobs) Put(key string, data []byte, _ string) (domain.BlobHandle, error) {
	if f.err != nil {
		return domain.BlobHandle{}, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = append([]byte(nil), data...)
	return domain.BlobHandle{Key: key, FileID: "file-" + key, URL: "http://blobs/" + key, Size: len(data)}, nil
}

func ptr[T any](v T) *T { return &v }
