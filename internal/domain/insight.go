package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Insights are the human-readable findings of one analysis run.
type Insights struct {
	Time     []string               `json:"time"`
	Space    []string               `json:"space"`
	Patterns map[PatternType]string `json:"patterns"`
}

// BuildInsights formats the time, space and pattern findings of a run.
func BuildInsights(summary Summary, stats []StationStat, clusters []ClusterStats) Insights {
	ins := Insights{
		Time:     TimeInsights(summary),
		Space:    SpaceInsights(stats),
		Patterns: make(map[PatternType]string, len(clusters)),
	}
	for _, c := range clusters {
		ins.Patterns[c.Pattern] = PatternFeatureSummary(c)
	}
	return ins
}

// TimeInsights describes the city-wide peak and valley hours, the weekday
// versus weekend difference and the rush-hour share. It returns nil for an
// empty summary.
func TimeInsights(s Summary) []string {
	if s.Count == 0 {
		return nil
	}
	peak, valley := argMax(s.HourTotals[:]), argMin(s.HourTotals[:])

	var rush float64
	for _, w := range []window{morningWindow, eveningWindow} {
		for h := w.from; h < w.to; h++ {
			rush += s.HourTotals[h]
		}
	}

	out := []string{
		fmt.Sprintf("City-wide demand peaks at %02d:00 with %s rentals", peak, FormatNumber(s.HourTotals[peak])),
		fmt.Sprintf("The quietest hour is %02d:00 with about %s rentals", valley, FormatNumber(s.HourTotals[valley])),
	}
	if s.Weekend.Avg > 0 {
		diff := (s.Weekday.Avg - s.Weekend.Avg) / s.Weekend.Avg * 100
		direction := "higher"
		if diff < 0 {
			direction = "lower"
		}
		out = append(out, fmt.Sprintf("Average weekday demand is %.1f%% %s than at weekends", math.Abs(diff), direction))
	}
	out = append(out, fmt.Sprintf("Morning (07-09) and evening (17-19) rush hours carry %.1f%% of daily demand",
		safeDiv(rush*100, s.TotalDemand)))
	return out
}

// SpaceInsights describes the busiest station and how unevenly demand is
// spread across stations. Stations without demand are left out of the
// averages.
func SpaceInsights(stats []StationStat) []string {
	var (
		sum   float64
		count int
		top   *StationStat
	)
	for i := range stats {
		t := stats[i].TotalDemand
		if t <= 0 {
			continue
		}
		sum += t
		count++
		if top == nil || t > top.TotalDemand {
			top = &stats[i]
		}
	}
	if count == 0 {
		return nil
	}
	avg := sum / float64(count)

	var high, low int
	for _, s := range stats {
		switch {
		case s.TotalDemand <= 0:
		case s.TotalDemand > avg*1.5:
			high++
		case s.TotalDemand < avg*0.5:
			low++
		}
	}

	name := top.Name
	if name == "" {
		name = "station " + strconv.Itoa(top.StationID)
	}
	return []string{
		fmt.Sprintf("The busiest station is %s with %s rentals", name, FormatNumber(top.TotalDemand)),
		fmt.Sprintf("Stations average %s rentals", FormatNumber(avg)),
		fmt.Sprintf("%d stations (%.1f%%) exceed 1.5x the average", high, safeDiv(float64(high)*100, float64(len(stats)))),
		fmt.Sprintf("%d stations fall below half the average", low),
	}
}

// PatternFeatureSummary condenses a cluster's average features into a short
// label.
func PatternFeatureSummary(c ClusterStats) string {
	if c.MemberCount == 0 {
		return ""
	}
	f := c.AvgFeatures
	var parts []string
	switch c.Pattern {
	case PatternCommute:
		if f.MorningRatio > 1 {
			parts = append(parts, "morning peak")
		}
		if f.EveningRatio > 1 {
			parts = append(parts, "evening peak")
		}
	case PatternLeisure:
		if f.AfternoonRatio > 1 {
			parts = append(parts, "afternoon peak")
		}
	case PatternNight:
		parts = append(parts, fmt.Sprintf("night peak %.2fx mean", f.NightRatio))
	case PatternLowFrequency:
		parts = append(parts, "low demand", "stable")
	case PatternBalanced:
		parts = append(parts, "even through the day")
	}
	if len(parts) == 0 {
		return "no distinctive feature"
	}
	return strings.Join(parts, ", ")
}

// MostCommonPeakHour returns the hour most stations peak at and how many do.
// Ties go to the earlier hour.
func MostCommonPeakHour(stats []StationStat) (hour, count int) {
	var counts [HoursPerDay]int
	for _, s := range stats {
		if s.PeakHour >= 0 && s.PeakHour < HoursPerDay {
			counts[s.PeakHour]++
		}
	}
	for h, c := range counts {
		if c > count {
			hour, count = h, c
		}
	}
	return hour, count
}

// FormatNumber rounds v and groups thousands with commas.
func FormatNumber(v float64) string {
	n := int64(math.Round(v))
	sign := ""
	if n < 0 {
		sign, n = "-", -n
	}
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return sign + b.String()
}

// FormatCompact abbreviates large values: 12345 -> "12.3k", 2500000 -> "2.5M".
func FormatCompact(v float64) string {
	switch {
	case math.Abs(v) >= 1e6:
		return strconv.FormatFloat(v/1e6, 'f', 1, 64) + "M"
	case math.Abs(v) >= 1e3:
		return strconv.FormatFloat(v/1e3, 'f', 1, 64) + "k"
	default:
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
}

func argMin(values []float64) int {
	best := 0
	for i, v := range values {
		if v < values[best] {
			best = i
		}
	}
	return best
}
