// Package duckdb is the demand record store backed by an embedded DuckDB
// database.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver

	"github.com/couchcryptid/station-demand-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS stations (
	station_id   INTEGER PRIMARY KEY,
	name         VARCHAR NOT NULL,
	latitude     DOUBLE,
	longitude    DOUBLE,
	address      VARCHAR,
	total_demand DOUBLE,
	avg_demand   DOUBLE,
	max_demand   DOUBLE,
	peak_hour    INTEGER,
	demand_level INTEGER
);
CREATE TABLE IF NOT EXISTS hourly_demands (
	station_id INTEGER NOT NULL,
	date       DATE NOT NULL,
	hour       INTEGER NOT NULL CHECK (hour BETWEEN 0 AND 23),
	demand     DOUBLE NOT NULL CHECK (demand >= 0),
	PRIMARY KEY (station_id, date, hour)
);
`

// Store reads and writes stations and hourly demand records.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens the database at path and applies the schema. An empty path or
// ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	dsn := path
	if path == ":memory:" {
		dsn = ""
	}
	if dsn != "" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	s := &Store{db: db, logger: logger}
	if err := s.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, err
	}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// UpsertStations inserts or replaces station metadata in one transaction.
func (s *Store) UpsertStations(ctx context.Context, stations []domain.Station) error {
	return s.inTx(ctx, `INSERT OR REPLACE INTO stations
		(station_id, name, latitude, longitude, address, total_demand, avg_demand, max_demand, peak_hour, demand_level)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, len(stations), func(stmt *sql.Stmt, i int) error {
		st := stations[i]
		_, err := stmt.ExecContext(ctx,
			st.StationID, st.Name, st.Latitude, st.Longitude, nullString(st.Address),
			st.TotalDemand, st.AvgDemand, st.MaxDemand, st.PeakHour, st.DemandLevel)
		return err
	})
}

// InsertRecords writes records in one transaction, replacing any row with the
// same station, date and hour. An invalid record aborts the whole insert.
func (s *Store) InsertRecords(ctx context.Context, records []domain.DemandRecord) error {
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	err := s.inTx(ctx, `INSERT OR REPLACE INTO hourly_demands (station_id, date, hour, demand) VALUES (?, ?, ?, ?)`,
		len(records), func(stmt *sql.Stmt, i int) error {
			r := records[i]
			_, err := stmt.ExecContext(ctx, r.StationID, r.Date.Time, r.Hour, r.Demand)
			return err
		})
	if err == nil {
		s.logger.Debug("records inserted", "count", len(records))
	}
	return err
}

func (s *Store) inTx(ctx context.Context, query string, n int, exec func(stmt *sql.Stmt, i int) error) error {
	if n == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range n {
		if err := exec(stmt, i); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// where renders the filter as a WHERE clause with positional arguments.
func where(f domain.RangeFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.StationID != 0 {
		conds = append(conds, "station_id = ?")
		args = append(args, f.StationID)
	}
	if !f.Start.IsZero() {
		conds = append(conds, "date >= ?")
		args = append(args, f.Start.Time)
	}
	if !f.End.IsZero() {
		conds = append(conds, "date <= ?")
		args = append(args, f.End.Time)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const recordOrder = " ORDER BY date, hour, station_id"

// QueryRange returns every record matching the filter, both date bounds
// inclusive, ordered by date, hour and station.
func (s *Store) QueryRange(ctx context.Context, filter domain.RangeFilter) ([]domain.DemandRecord, error) {
	w, args := where(filter)
	return s.queryRecords(ctx, "SELECT station_id, date, hour, demand FROM hourly_demands"+w+recordOrder, args...)
}

// Count returns the number of records matching the filter.
func (s *Store) Count(ctx context.Context, filter domain.RangeFilter) (int, error) {
	w, args := where(filter)
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM hourly_demands"+w, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// ListPage returns at most limit records from offset in the QueryRange order.
func (s *Store) ListPage(ctx context.Context, filter domain.RangeFilter, offset, limit int) ([]domain.DemandRecord, error) {
	w, args := where(filter)
	args = append(args, limit, offset)
	return s.queryRecords(ctx, "SELECT station_id, date, hour, demand FROM hourly_demands"+w+recordOrder+" LIMIT ? OFFSET ?", args...)
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]domain.DemandRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := []domain.DemandRecord{}
	for rows.Next() {
		var (
			r domain.DemandRecord
			d time.Time
		)
		if err := rows.Scan(&r.StationID, &d, &r.Hour, &r.Demand); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Date = domain.DateOf(d)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

const stationColumns = "station_id, name, latitude, longitude, address, total_demand, avg_demand, max_demand, peak_hour, demand_level"

// ListStations returns all station metadata ordered by ID.
func (s *Store) ListStations(ctx context.Context) ([]domain.Station, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+stationColumns+" FROM stations ORDER BY station_id")
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	defer rows.Close()

	out := []domain.Station{}
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stations: %w", err)
	}
	return out, nil
}

// GetStation returns one station or domain.ErrStationNotFound.
func (s *Store) GetStation(ctx context.Context, id int) (domain.Station, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+stationColumns+" FROM stations WHERE station_id = ?", id)
	st, err := scanStation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Station{}, fmt.Errorf("station %d: %w", id, domain.ErrStationNotFound)
	}
	return st, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStation(sc scanner) (domain.Station, error) {
	var (
		st                   domain.Station
		lat, lon             sql.NullFloat64
		addr                 sql.NullString
		total, avg, maxD     sql.NullFloat64
		peakHour, demandLevl sql.NullInt64
	)
	if err := sc.Scan(&st.StationID, &st.Name, &lat, &lon, &addr, &total, &avg, &maxD, &peakHour, &demandLevl); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return st, err
		}
		return st, fmt.Errorf("scan station: %w", err)
	}
	st.Latitude = lat.Float64
	st.Longitude = lon.Float64
	st.Address = addr.String
	st.TotalDemand = floatPtr(total)
	st.AvgDemand = floatPtr(avg)
	st.MaxDemand = floatPtr(maxD)
	st.PeakHour = intPtr(peakHour)
	st.DemandLevel = intPtr(demandLevl)
	return st, nil
}

// StationStats computes per-station figures in SQL over the filtered
// records. Peak hour ties resolve to the earliest hour.
func (s *Store) StationStats(ctx context.Context, filter domain.RangeFilter) ([]domain.StationStat, error) {
	w, args := where(filter)
	query := `
WITH hourly AS (
	SELECT station_id, hour, SUM(demand) AS hour_total FROM hourly_demands` + w + `
	GROUP BY station_id, hour
), peak AS (
	SELECT station_id, hour FROM (
		SELECT station_id, hour,
			ROW_NUMBER() OVER (PARTITION BY station_id ORDER BY hour_total DESC, hour ASC) AS rn
		FROM hourly
	) WHERE rn = 1
), agg AS (
	SELECT station_id, SUM(demand) AS total, AVG(demand) AS avg, MAX(demand) AS mx, STDDEV_POP(demand) AS sd
	FROM hourly_demands` + w + `
	GROUP BY station_id
)
SELECT agg.station_id, COALESCE(st.name, ''), agg.total, agg.avg, agg.mx, COALESCE(agg.sd, 0), peak.hour
FROM agg
JOIN peak USING (station_id)
LEFT JOIN stations st USING (station_id)
ORDER BY agg.station_id`

	rows, err := s.db.QueryContext(ctx, query, append(args, args...)...)
	if err != nil {
		return nil, fmt.Errorf("station stats: %w", err)
	}
	defer rows.Close()

	out := []domain.StationStat{}
	for rows.Next() {
		var st domain.StationStat
		if err := rows.Scan(&st.StationID, &st.Name, &st.TotalDemand, &st.AvgDemand, &st.MaxDemand, &st.StdDev, &st.PeakHour); err != nil {
			return nil, fmt.Errorf("scan station stats: %w", err)
		}
		if st.AvgDemand != 0 {
			st.CV = st.StdDev / st.AvgDemand
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate station stats: %w", err)
	}
	return out, nil
}

// DateBounds returns the earliest and latest stored dates, zero when empty.
func (s *Store) DateBounds(ctx context.Context) (start, end domain.Date, err error) {
	var lo, hi sql.NullTime
	if err := s.db.QueryRowContext(ctx, "SELECT MIN(date), MAX(date) FROM hourly_demands").Scan(&lo, &hi); err != nil {
		return start, end, fmt.Errorf("date bounds: %w", err)
	}
	if lo.Valid {
		start = domain.DateOf(lo.Time)
	}
	if hi.Valid {
		end = domain.DateOf(hi.Time)
	}
	return start, end, nil
}

// Overview returns the headline figures of the whole data set.
func (s *Store) Overview(ctx context.Context) (domain.Overview, error) {
	var o domain.Overview
	err := s.db.QueryRowContext(ctx, `
SELECT
	(SELECT COUNT(*) FROM stations),
	COUNT(*),
	COALESCE(SUM(demand), 0)
FROM hourly_demands`).Scan(&o.StationCount, &o.RecordCount, &o.TotalDemand)
	if err != nil {
		return o, fmt.Errorf("overview: %w", err)
	}

	if o.Start, o.End, err = s.DateBounds(ctx); err != nil {
		return o, err
	}

	stats, err := s.StationStats(ctx, domain.RangeFilter{})
	if err != nil {
		return o, err
	}
	if o.StationCount == 0 {
		o.StationCount = len(stats)
	}
	if ranked := domain.RankStations(stats, domain.RankByTotal); len(ranked) > 0 {
		top := ranked[0].StationStat
		o.PeakStation = &top
	}
	o.Finish()
	return o, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
