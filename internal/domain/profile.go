package domain

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Hour windows read by feature extraction, half-open [from, to).
var (
	morningWindow   = window{7, 10}
	noonWindow      = window{11, 14}
	afternoonWindow = window{14, 17}
	eveningWindow   = window{17, 20}
	nightWindow     = window{20, 24}
)

type window struct{ from, to int }

func (w window) peak(curve [HoursPerDay]float64) float64 {
	return floats.Max(curve[w.from:w.to])
}

// DerivedFeatures are the shape descriptors of a profile.
type DerivedFeatures struct {
	MorningRatio   float64 `json:"morning_ratio"`
	EveningRatio   float64 `json:"evening_ratio"`
	AfternoonRatio float64 `json:"afternoon_ratio"`
	NightRatio     float64 `json:"night_ratio"`
	CV             float64 `json:"cv"`

	MorningPeak   float64 `json:"morning_peak"`
	NoonPeak      float64 `json:"noon_peak"`
	AfternoonPeak float64 `json:"afternoon_peak"`
	EveningPeak   float64 `json:"evening_peak"`
	NightPeak     float64 `json:"night_peak"`
	Mean          float64 `json:"mean"`
}

// CommuteScore is the sum of the morning and evening ratios.
func (f DerivedFeatures) CommuteScore() float64 {
	return f.MorningRatio + f.EveningRatio
}

// ExtractFeatures derives window peaks, their ratios to the 24-hour mean and
// the coefficient of variation. A zero mean yields zero ratios and CV.
func ExtractFeatures(curve [HoursPerDay]float64) DerivedFeatures {
	mean, std := stat.PopMeanStdDev(curve[:], nil)
	f := DerivedFeatures{
		MorningPeak:   morningWindow.peak(curve),
		NoonPeak:      noonWindow.peak(curve),
		AfternoonPeak: afternoonWindow.peak(curve),
		EveningPeak:   eveningWindow.peak(curve),
		NightPeak:     nightWindow.peak(curve),
		Mean:          mean,
	}
	if mean == 0 {
		return f
	}
	f.MorningRatio = f.MorningPeak / mean
	f.EveningRatio = f.EveningPeak / mean
	f.AfternoonRatio = f.AfternoonPeak / mean
	f.NightRatio = f.NightPeak / mean
	f.CV = std / mean
	return f
}

// StationProfile is a station's average demand by hour of day over one
// analysis window.
type StationProfile struct {
	StationID     int                  `json:"station_id"`
	HourlyAverage [HoursPerDay]float64 `json:"hourly_average"`
	TotalDemand   float64              `json:"total_demand"`
	Features      DerivedFeatures      `json:"features"`
	Skipped       int                  `json:"skipped,omitempty"`
}

// ProfileOptions tune profile construction.
type ProfileOptions struct {
	// PreferAuthoritative takes TotalDemand from Station when it is set
	// instead of recomputing it from the records.
	PreferAuthoritative bool
	Station             *Station
}

// BuildProfile averages the station's demand per hour of day over
// observedDayCount calendar days. Every slot is divided by the day count, not
// by the number of records in the slot. Records of other stations are
// ignored; invalid records of this station are skipped and counted.
func BuildProfile(stationID int, records []DemandRecord, observedDayCount int, opts ProfileOptions) (StationProfile, error) {
	if observedDayCount <= 0 {
		return StationProfile{}, ErrInvalidDayCount
	}

	p := StationProfile{StationID: stationID}
	for _, r := range records {
		if r.StationID != stationID {
			continue
		}
		if r.Validate() != nil {
			p.Skipped++
			continue
		}
		p.HourlyAverage[r.Hour] += r.Demand
	}

	days := float64(observedDayCount)
	for h := range p.HourlyAverage {
		p.HourlyAverage[h] /= days
	}
	p.TotalDemand = floats.Sum(p.HourlyAverage[:]) * days
	if opts.PreferAuthoritative && opts.Station != nil && opts.Station.TotalDemand != nil {
		p.TotalDemand = *opts.Station.TotalDemand
	}
	p.Features = ExtractFeatures(p.HourlyAverage)
	return p, nil
}

// BuildProfiles builds one profile per station in stations plus one for every
// station that only appears in records, ordered by station ID. Records are
// grouped in a single pass.
func BuildProfiles(stations []Station, records []DemandRecord, observedDayCount int, preferAuthoritative bool) ([]StationProfile, error) {
	if observedDayCount <= 0 {
		return nil, ErrInvalidDayCount
	}

	grouped := GroupByStation(records)
	meta := make(map[int]*Station, len(stations))
	for i := range stations {
		meta[stations[i].StationID] = &stations[i]
	}

	ids := make([]int, 0, len(meta)+len(grouped))
	for id := range meta {
		ids = append(ids, id)
	}
	for id := range grouped {
		if _, ok := meta[id]; !ok {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, cmp.Compare[int])

	profiles := make([]StationProfile, 0, len(ids))
	for _, id := range ids {
		p, err := BuildProfile(id, grouped[id], observedDayCount, ProfileOptions{
			PreferAuthoritative: preferAuthoritative,
			Station:             meta[id],
		})
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}
