package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// HoursPerDay is the number of slots in a demand profile.
const HoursPerDay = 24

// dateLayout is the wire format of a calendar day.
const dateLayout = "2006-01-02"

var (
	// ErrInvalidRecord marks a demand record that cannot take part in aggregation.
	ErrInvalidRecord = errors.New("invalid demand record")

	// ErrInvalidDayCount is returned when a profile is requested without a
	// positive observed day count.
	ErrInvalidDayCount = errors.New("observed day count must be positive")

	// ErrStationNotFound is returned by lookups for an unknown station ID.
	ErrStationNotFound = errors.New("station not found")

	// ErrCollaborator wraps failures of the record store, object storage or
	// broker so callers can tell them apart from bad input.
	ErrCollaborator = errors.New("collaborator failure")
)

// Date is a calendar day in UTC.
type Date struct {
	time.Time
}

// NewDate returns the calendar day for the given year, month and day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a "2006-01-02" string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// IsWeekend reports whether the day is a Saturday or Sunday.
func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// DaysThrough returns the number of calendar days from d to end, both inclusive.
// It returns 0 when end is before d.
func (d Date) DaysThrough(end Date) int {
	if end.Before(d.Time) {
		return 0
	}
	return int(end.Sub(d.Time).Hours()/24) + 1
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(d.String())), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DemandRecord is one station's demand in one hour of one day.
type DemandRecord struct {
	StationID int     `json:"station_id"`
	Date      Date    `json:"date"`
	Hour      int     `json:"hour"`
	Demand    float64 `json:"demand"`
}

// Validate reports why a record cannot be aggregated, or nil.
func (r DemandRecord) Validate() error {
	if r.Hour < 0 || r.Hour >= HoursPerDay {
		return fmt.Errorf("%w: hour %d outside 0-23", ErrInvalidRecord, r.Hour)
	}
	if math.IsNaN(r.Demand) || math.IsInf(r.Demand, 0) || r.Demand < 0 {
		return fmt.Errorf("%w: demand %v is not a non-negative number", ErrInvalidRecord, r.Demand)
	}
	return nil
}

// Station is the externally maintained station metadata. Pointer fields are
// optional precomputed values; nil means "derive from records".
type Station struct {
	StationID   int      `json:"station_id"`
	Name        string   `json:"name"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	Address     string   `json:"address,omitempty"`
	TotalDemand *float64 `json:"total_demand,omitempty"`
	AvgDemand   *float64 `json:"avg_demand,omitempty"`
	MaxDemand   *float64 `json:"max_demand,omitempty"`
	PeakHour    *int     `json:"peak_hour,omitempty"`
	DemandLevel *int     `json:"demand_level,omitempty"`
}

// RangeFilter selects records between two calendar days, both inclusive.
// A zero StationID selects every station.
type RangeFilter struct {
	StationID int
	Start     Date
	End       Date
}

// Days returns the inclusive length of the range in calendar days.
func (f RangeFilter) Days() int {
	return f.Start.DaysThrough(f.End)
}

// Contains reports whether the record falls inside the filter.
func (f RangeFilter) Contains(r DemandRecord) bool {
	if f.StationID != 0 && r.StationID != f.StationID {
		return false
	}
	if !f.Start.IsZero() && r.Date.Before(f.Start.Time) {
		return false
	}
	if !f.End.IsZero() && r.Date.After(f.End.Time) {
		return false
	}
	return true
}
