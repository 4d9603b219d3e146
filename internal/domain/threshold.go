package domain

import "fmt"

// Threshold policy cutoffs.
const (
	commuteRatioMin   = 1.5
	commuteCVMin      = 0.4
	nightRatioMin     = 1.4
	afternoonRatioMin = 1.3
	balancedCVMax     = 0.35
)

// ThresholdClassifier classifies each station independently by absolute
// ratio thresholds, after removing stations whose total demand falls below a
// fraction of the population median.
type ThresholdClassifier struct {
	lowFreqFactor float64
}

// NewThresholdClassifier returns a ThresholdClassifier. A non-positive factor
// falls back to DefaultLowFreqThresholdFactor.
func NewThresholdClassifier(lowFreqFactor float64) *ThresholdClassifier {
	if lowFreqFactor <= 0 {
		lowFreqFactor = DefaultLowFreqThresholdFactor
	}
	return &ThresholdClassifier{lowFreqFactor: lowFreqFactor}
}

func (c *ThresholdClassifier) Policy() Policy { return PolicyThreshold }

// LowFrequencyThreshold returns the total demand below which a station in
// profiles is LOW_FREQUENCY.
func (c *ThresholdClassifier) LowFrequencyThreshold(profiles []StationProfile) float64 {
	totals := make([]float64, len(profiles))
	for i, p := range profiles {
		totals[i] = p.TotalDemand
	}
	return c.lowFreqFactor * Median(totals)
}

// Classify returns one assignment per profile, in input order.
func (c *ThresholdClassifier) Classify(profiles []StationProfile) []PatternAssignment {
	threshold := c.LowFrequencyThreshold(profiles)
	out := make([]PatternAssignment, len(profiles))
	for i, p := range profiles {
		pattern, reason := classifyByThreshold(p, threshold)
		out[i] = PatternAssignment{StationID: p.StationID, Pattern: pattern, Reason: reason}
	}
	return out
}

// classifyByThreshold applies the ordered rules; the first match wins.
func classifyByThreshold(p StationProfile, lowFreqThreshold float64) (PatternType, string) {
	if p.TotalDemand < lowFreqThreshold {
		return PatternLowFrequency, fmt.Sprintf("total demand %.0f below threshold %.0f", p.TotalDemand, lowFreqThreshold)
	}

	f := p.Features
	switch {
	case f.MorningRatio > commuteRatioMin && f.EveningRatio > commuteRatioMin && f.CV > commuteCVMin:
		return PatternCommute, fmt.Sprintf("morning %.2fx and evening %.2fx of mean, cv %.2f", f.MorningRatio, f.EveningRatio, f.CV)
	case f.NightRatio > nightRatioMin && f.NightPeak > f.MorningPeak && f.NightPeak > f.EveningPeak:
		return PatternNight, fmt.Sprintf("night peak %.2fx of mean above rush hours", f.NightRatio)
	case f.AfternoonRatio > afternoonRatioMin && f.AfternoonPeak > f.MorningPeak && f.AfternoonPeak > f.EveningPeak:
		return PatternLeisure, fmt.Sprintf("afternoon peak %.2fx of mean above rush hours", f.AfternoonRatio)
	case f.CV < balancedCVMax:
		return PatternBalanced, fmt.Sprintf("cv %.2f indicates even demand", f.CV)
	}

	// Fallback by dominant peak. NIGHT is not reachable here: a dominant
	// night peak lands in BALANCED.
	maxPeak := max(f.MorningPeak, f.AfternoonPeak, f.EveningPeak, f.NightPeak)
	switch maxPeak {
	case f.MorningPeak, f.EveningPeak:
		return PatternCommute, "dominant rush-hour peak"
	case f.AfternoonPeak:
		return PatternLeisure, "dominant afternoon peak"
	default:
		return PatternBalanced, "no dominant daytime peak"
	}
}
