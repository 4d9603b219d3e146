package domain

import (
	"cmp"
	"math"
	"slices"
)

// TimePoint identifies the hour of a specific day, used to label peaks and valleys.
type TimePoint struct {
	Date Date `json:"date"`
	Hour int  `json:"hour"`
}

// GroupStats is the demand carried by a subset of records.
type GroupStats struct {
	Count int     `json:"count"`
	Total float64 `json:"total"`
	Avg   float64 `json:"avg"`
}

func (g *GroupStats) add(demand float64) {
	g.Count++
	g.Total += demand
}

func (g *GroupStats) finish() {
	g.Avg = safeDiv(g.Total, float64(g.Count))
}

// Summary holds the statistics of a bounded record set.
type Summary struct {
	Count       int                  `json:"count"`
	TotalDemand float64              `json:"total_demand"`
	AvgDemand   float64              `json:"avg_demand"`
	MaxDemand   float64              `json:"max_demand"`
	MinDemand   float64              `json:"min_demand"`
	PeakTime    TimePoint            `json:"peak_time"`
	ValleyTime  TimePoint            `json:"valley_time"`
	StdDev      float64              `json:"std_dev"`
	CV          float64              `json:"cv"`
	Weekday     GroupStats           `json:"weekday"`
	Weekend     GroupStats           `json:"weekend"`
	HourTotals  [HoursPerDay]float64 `json:"hour_totals"`
	Skipped     int                  `json:"skipped"`
}

// Aggregate computes the summary statistics of records. Invalid records are
// skipped and counted. Peak and valley labels belong to the first record, in
// iteration order, that carries the maximum or minimum demand. An empty input
// yields an all-zero summary.
func Aggregate(records []DemandRecord) Summary {
	var s Summary
	first := true
	for _, r := range records {
		if r.Validate() != nil {
			s.Skipped++
			continue
		}

		s.Count++
		s.TotalDemand += r.Demand
		s.HourTotals[r.Hour] += r.Demand
		if r.Date.IsWeekend() {
			s.Weekend.add(r.Demand)
		} else {
			s.Weekday.add(r.Demand)
		}

		point := TimePoint{Date: r.Date, Hour: r.Hour}
		if first || r.Demand > s.MaxDemand {
			s.MaxDemand = r.Demand
			s.PeakTime = point
		}
		if first || r.Demand < s.MinDemand {
			s.MinDemand = r.Demand
			s.ValleyTime = point
		}
		first = false
	}

	if s.Count == 0 {
		return s
	}

	s.AvgDemand = s.TotalDemand / float64(s.Count)
	var sq float64
	for _, r := range records {
		if r.Validate() != nil {
			continue
		}
		d := r.Demand - s.AvgDemand
		sq += d * d
	}
	s.StdDev = math.Sqrt(sq / float64(s.Count))
	s.CV = safeDiv(s.StdDev, s.AvgDemand)
	s.Weekday.finish()
	s.Weekend.finish()
	return s
}

// DailyTotal is the demand of one calendar day.
type DailyTotal struct {
	Date   Date    `json:"date"`
	Demand float64 `json:"demand"`
}

// DailyTotals sums demand per calendar day, ordered by date.
func DailyTotals(records []DemandRecord) []DailyTotal {
	byDay := make(map[Date]float64)
	for _, r := range records {
		if r.Validate() != nil {
			continue
		}
		byDay[r.Date] += r.Demand
	}
	out := make([]DailyTotal, 0, len(byDay))
	for d, v := range byDay {
		out = append(out, DailyTotal{Date: d, Demand: v})
	}
	slices.SortFunc(out, func(a, b DailyTotal) int { return a.Date.Compare(b.Date.Time) })
	return out
}

// DistinctDays counts the calendar days present in records.
func DistinctDays(records []DemandRecord) int {
	seen := make(map[Date]struct{})
	for _, r := range records {
		if r.Validate() != nil {
			continue
		}
		seen[r.Date] = struct{}{}
	}
	return len(seen)
}

// StationStat carries the per-station figures a ranking can sort by.
type StationStat struct {
	StationID   int     `json:"station_id"`
	Name        string  `json:"name,omitempty"`
	TotalDemand float64 `json:"total_demand"`
	AvgDemand   float64 `json:"avg_demand"`
	MaxDemand   float64 `json:"max_demand"`
	StdDev      float64 `json:"std_dev"`
	CV          float64 `json:"cv"`
	PeakHour    int     `json:"peak_hour"`
}

// StationStats derives one StationStat per station present in records,
// ordered by station ID.
func StationStats(records []DemandRecord) []StationStat {
	grouped := GroupByStation(records)
	out := make([]StationStat, 0, len(grouped))
	for id, recs := range grouped {
		sum := Aggregate(recs)
		out = append(out, StationStat{
			StationID:   id,
			TotalDemand: sum.TotalDemand,
			AvgDemand:   sum.AvgDemand,
			MaxDemand:   sum.MaxDemand,
			StdDev:      sum.StdDev,
			CV:          sum.CV,
			PeakHour:    argMax(sum.HourTotals[:]),
		})
	}
	slices.SortFunc(out, func(a, b StationStat) int { return cmp.Compare(a.StationID, b.StationID) })
	return out
}

// StatFromStation builds a StationStat from authoritative station metadata,
// leaving absent fields at zero.
func StatFromStation(st Station) StationStat {
	stat := StationStat{StationID: st.StationID, Name: st.Name}
	if st.TotalDemand != nil {
		stat.TotalDemand = *st.TotalDemand
	}
	if st.AvgDemand != nil {
		stat.AvgDemand = *st.AvgDemand
	}
	if st.MaxDemand != nil {
		stat.MaxDemand = *st.MaxDemand
	}
	if st.PeakHour != nil {
		stat.PeakHour = *st.PeakHour
	}
	return stat
}

// GroupByStation splits records per station ID, keeping input order within
// each station.
func GroupByStation(records []DemandRecord) map[int][]DemandRecord {
	grouped := make(map[int][]DemandRecord)
	for _, r := range records {
		grouped[r.StationID] = append(grouped[r.StationID], r)
	}
	return grouped
}

// RankMetric selects the figure a station ranking sorts by.
type RankMetric string

const (
	RankByTotal RankMetric = "total"
	RankByAvg   RankMetric = "avg"
	RankByPeak  RankMetric = "peak"
)

// ParseRankMetric validates a ranking metric name.
func ParseRankMetric(s string) (RankMetric, bool) {
	switch m := RankMetric(s); m {
	case RankByTotal, RankByAvg, RankByPeak:
		return m, true
	default:
		return "", false
	}
}

func (m RankMetric) value(s StationStat) float64 {
	switch m {
	case RankByAvg:
		return s.AvgDemand
	case RankByPeak:
		return s.MaxDemand
	default:
		return s.TotalDemand
	}
}

// RankedStation is a StationStat with its position in a ranking.
type RankedStation struct {
	StationStat
	Rank  int     `json:"rank"`
	Value float64 `json:"value"`
	// Percent is the value relative to the top entry, 0-100.
	Percent float64 `json:"percent"`
	// Level is set by GradeRanking.
	Level DemandLevel `json:"level,omitempty"`
}

// RankStations sorts stats by metric, descending. The sort is stable, so
// ties keep their input order, and ranks are dense: equal values share a
// rank and the next distinct value takes the following one.
func RankStations(stats []StationStat, metric RankMetric) []RankedStation {
	sorted := slices.Clone(stats)
	slices.SortStableFunc(sorted, func(a, b StationStat) int {
		return cmp.Compare(metric.value(b), metric.value(a))
	})

	out := make([]RankedStation, len(sorted))
	var top float64
	if len(sorted) > 0 {
		top = metric.value(sorted[0])
	}
	rank := 0
	for i, s := range sorted {
		v := metric.value(s)
		if i == 0 || v != out[i-1].Value {
			rank++
		}
		out[i] = RankedStation{
			StationStat: s,
			Rank:        rank,
			Value:       v,
			Percent:     safeDiv(v*100, top),
		}
	}
	return out
}

// safeDiv divides, resolving a zero denominator to 0.
func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// argMax returns the index of the first maximum of values, or 0 when empty.
func argMax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// Overview is the headline figure set of the whole stored data set.
type Overview struct {
	StationCount   int          `json:"station_count"`
	RecordCount    int          `json:"record_count"`
	TotalDemand    float64      `json:"total_demand"`
	Start          Date         `json:"start"`
	End            Date         `json:"end"`
	Days           int          `json:"days"`
	AvgDailyDemand float64      `json:"avg_daily_demand"`
	PeakStation    *StationStat `json:"peak_station,omitempty"`
}

// Finish fills the derived day count and daily average.
func (o *Overview) Finish() {
	if o.Start.IsZero() || o.End.IsZero() {
		return
	}
	o.Days = o.Start.DaysThrough(o.End)
	o.AvgDailyDemand = safeDiv(o.TotalDemand, float64(o.Days))
}
