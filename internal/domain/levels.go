package domain

import (
	"math"
	"slices"
)

// DemandLevel is a 1-4 grade of station demand.
type DemandLevel int

const (
	DemandLow DemandLevel = iota + 1
	DemandMedium
	DemandHigh
	DemandVeryHigh
)

func (l DemandLevel) String() string {
	switch l {
	case DemandLow:
		return "low"
	case DemandMedium:
		return "medium"
	case DemandHigh:
		return "high"
	case DemandVeryHigh:
		return "very high"
	default:
		return "unknown"
	}
}

// LevelForTotal grades a monthly total demand on fixed bands:
// <50k low, <100k medium, <150k high, otherwise very high.
func LevelForTotal(total float64) DemandLevel {
	switch {
	case total < 50000:
		return DemandLow
	case total < 100000:
		return DemandMedium
	case total < 150000:
		return DemandHigh
	default:
		return DemandVeryHigh
	}
}

// Quartiles holds the lower-index quartile cut points of a population.
type Quartiles struct {
	Q1 float64 `json:"q1"`
	Q2 float64 `json:"q2"`
	Q3 float64 `json:"q3"`
}

// QuartilesOf picks the values at floor(n*0.25), floor(n*0.5) and
// floor(n*0.75) of the sorted population.
func QuartilesOf(values []float64) Quartiles {
	if len(values) == 0 {
		return Quartiles{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	at := func(p float64) float64 { return sorted[int(math.Floor(float64(len(sorted))*p))] }
	return Quartiles{Q1: at(0.25), Q2: at(0.5), Q3: at(0.75)}
}

// Level grades v against the quartiles, inclusive upper bounds.
func (q Quartiles) Level(v float64) DemandLevel {
	switch {
	case v <= q.Q1:
		return DemandLow
	case v <= q.Q2:
		return DemandMedium
	case v <= q.Q3:
		return DemandHigh
	default:
		return DemandVeryHigh
	}
}

// GradeRanking sets each entry's Level from the quartiles of the ranked
// values and returns the quartiles.
func GradeRanking(ranked []RankedStation) Quartiles {
	values := make([]float64, len(ranked))
	for i, r := range ranked {
		values[i] = r.Value
	}
	q := QuartilesOf(values)
	for i := range ranked {
		ranked[i].Level = q.Level(ranked[i].Value)
	}
	return q
}

// DemandTier is one of five equal-width bands over station totals.
type DemandTier struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Count     int     `json:"count"`
	AvgDemand float64 `json:"avg_demand"`
}

var tierNames = [5]struct{ id, name string }{
	{"very_high", "Very high demand"},
	{"high", "High demand"},
	{"medium", "Medium demand"},
	{"low", "Lower demand"},
	{"very_low", "Low demand"},
}

// DemandTiers splits the positive totals into five equal-width bands between
// their minimum and maximum, highest band first. Zero and negative totals are
// left out. When every total is equal all stations land in the lowest band.
func DemandTiers(totals []float64) []DemandTier {
	positive := make([]float64, 0, len(totals))
	for _, t := range totals {
		if t > 0 {
			positive = append(positive, t)
		}
	}

	tiers := make([]DemandTier, 5)
	if len(positive) == 0 {
		for i := range tiers {
			tiers[i] = DemandTier{ID: tierNames[i].id, Name: tierNames[i].name}
		}
		return tiers
	}

	lo, hi := slices.Min(positive), slices.Max(positive)
	step := (hi - lo) / 5
	sums := make([]float64, 5)
	for _, t := range positive {
		idx := 0
		if step > 0 {
			idx = min(int(math.Floor((t-lo)/step)), 4)
		}
		pos := 4 - idx
		tiers[pos].Count++
		sums[pos] += t
	}
	for i := range tiers {
		band := 4 - i
		tiers[i].ID = tierNames[i].id
		tiers[i].Name = tierNames[i].name
		tiers[i].Min = lo + step*float64(band)
		tiers[i].Max = lo + step*float64(band+1)
		tiers[i].AvgDemand = safeDiv(sums[i], float64(tiers[i].Count))
	}
	return tiers
}

// Stability describes demand volatility from a coefficient of variation.
type Stability string

const (
	StabilityVeryStable Stability = "very stable, small fluctuations"
	StabilityStable     Stability = "fairly stable, some fluctuation"
	StabilityVolatile   Stability = "volatile, marked changes"
)

// StabilityOf grades a CV: <0.3 very stable, <0.5 stable, otherwise volatile.
func StabilityOf(cv float64) Stability {
	switch {
	case cv < 0.3:
		return StabilityVeryStable
	case cv < 0.5:
		return StabilityStable
	default:
		return StabilityVolatile
	}
}

// HourLevel grades a single hourly value against the period mean.
type HourLevel string

const (
	HourLevelHigh   HourLevel = "high"
	HourLevelMedium HourLevel = "medium"
	HourLevelLow    HourLevel = "low"
)

// HourLevelOf returns high above 1.5x mean, medium above 0.8x mean, else low.
func HourLevelOf(demand, mean float64) HourLevel {
	switch {
	case demand > mean*1.5:
		return HourLevelHigh
	case demand > mean*0.8:
		return HourLevelMedium
	default:
		return HourLevelLow
	}
}

// Peak is a local maximum of a series.
type Peak struct {
	Hour  int     `json:"hour"`
	Value float64 `json:"value"`
}

// FindPeaks returns the strict local maxima of data, excluding both ends,
// largest first.
func FindPeaks(data []float64) []Peak {
	var peaks []Peak
	for i := 1; i < len(data)-1; i++ {
		if data[i] > data[i-1] && data[i] > data[i+1] {
			peaks = append(peaks, Peak{Hour: i, Value: data[i]})
		}
	}
	slices.SortStableFunc(peaks, func(a, b Peak) int {
		switch {
		case a.Value > b.Value:
			return -1
		case a.Value < b.Value:
			return 1
		default:
			return 0
		}
	})
	return peaks
}
