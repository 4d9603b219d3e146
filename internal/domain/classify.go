package domain

import (
	"fmt"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Classifier assigns every profile exactly one pattern. Implementations are
// pure: the result depends only on the profiles and the classifier's own
// parameters.
type Classifier interface {
	Policy() Policy
	Classify(profiles []StationProfile) []PatternAssignment
}

// QuotaFractions are the shares of the remaining population peeled off at
// each stage of the quota policy.
type QuotaFractions struct {
	LowFrequency float64 `json:"low_frequency" koanf:"low_frequency" validate:"gte=0,lte=1"`
	Night        float64 `json:"night" koanf:"night" validate:"gte=0,lte=1"`
	Commute      float64 `json:"commute" koanf:"commute" validate:"gte=0,lte=1"`
	Leisure      float64 `json:"leisure" koanf:"leisure" validate:"gte=0,lte=1"`
}

// DefaultQuotaFractions reproduce 10/50, 8/40, 12/32 and 10/20.
func DefaultQuotaFractions() QuotaFractions {
	return QuotaFractions{
		LowFrequency: 10.0 / 50.0,
		Night:        8.0 / 40.0,
		Commute:      12.0 / 32.0,
		Leisure:      10.0 / 20.0,
	}
}

// DefaultLowFreqThresholdFactor is the share of the median total demand below
// which the threshold policy calls a station LOW_FREQUENCY.
const DefaultLowFreqThresholdFactor = 0.3

// ClassifierConfig selects and parameterizes a policy.
type ClassifierConfig struct {
	Policy                 Policy
	LowFreqThresholdFactor float64
	QuotaFractions         QuotaFractions
}

// DefaultClassifierConfig returns the threshold policy with default parameters.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		Policy:                 PolicyThreshold,
		LowFreqThresholdFactor: DefaultLowFreqThresholdFactor,
		QuotaFractions:         DefaultQuotaFractions(),
	}
}

// NewClassifier returns the classifier for cfg.Policy.
func NewClassifier(cfg ClassifierConfig) (Classifier, error) {
	switch cfg.Policy {
	case PolicyThreshold:
		return NewThresholdClassifier(cfg.LowFreqThresholdFactor), nil
	case PolicyQuota:
		return NewQuotaClassifier(cfg.QuotaFractions), nil
	default:
		return nil, fmt.Errorf("unknown classification policy %q", cfg.Policy)
	}
}

// ClusterStats aggregates the members of one pattern.
type ClusterStats struct {
	Pattern     PatternType `json:"pattern"`
	Info        PatternInfo `json:"info"`
	MemberCount int         `json:"member_count"`
	// SharePercent is the member count relative to the classified population.
	SharePercent float64 `json:"share_percent"`
	// TypicalCurve is the member-average profile scaled so its maximum is 100.
	TypicalCurve     [HoursPerDay]float64 `json:"typical_curve"`
	MemberStationIDs []int                `json:"member_station_ids"`
	// AvgFeatures averages the members' derived features.
	AvgFeatures DerivedFeatures `json:"avg_features"`
}

// BuildClusterStats groups profiles by their assignment and returns one entry
// per pattern in PatternTypes order, empty groups included. Assignments for
// stations without a profile are ignored.
func BuildClusterStats(assignments []PatternAssignment, profiles []StationProfile) []ClusterStats {
	byID := make(map[int]*StationProfile, len(profiles))
	for i := range profiles {
		byID[profiles[i].StationID] = &profiles[i]
	}

	members := make(map[PatternType][]*StationProfile, len(PatternTypes))
	classified := 0
	for _, a := range assignments {
		p, ok := byID[a.StationID]
		if !ok {
			continue
		}
		members[a.Pattern] = append(members[a.Pattern], p)
		classified++
	}

	out := make([]ClusterStats, 0, len(PatternTypes))
	for _, pt := range PatternTypes {
		group := members[pt]
		cs := ClusterStats{
			Pattern:          pt,
			Info:             pt.Info(),
			MemberCount:      len(group),
			SharePercent:     safeDiv(float64(len(group))*100, float64(classified)),
			MemberStationIDs: make([]int, 0, len(group)),
		}
		if len(group) > 0 {
			var sum [HoursPerDay]float64
			var feats DerivedFeatures
			for _, p := range group {
				cs.MemberStationIDs = append(cs.MemberStationIDs, p.StationID)
				floats.Add(sum[:], p.HourlyAverage[:])
				feats = addFeatures(feats, p.Features)
			}
			floats.Scale(1/float64(len(group)), sum[:])
			cs.TypicalCurve = ScaleToPeak(sum)
			cs.AvgFeatures = scaleFeatures(feats, 1/float64(len(group)))
		}
		slices.Sort(cs.MemberStationIDs)
		out = append(out, cs)
	}
	return out
}

// ScaleToPeak rescales curve linearly so its maximum becomes 100. An
// all-zero curve is returned unchanged.
func ScaleToPeak(curve [HoursPerDay]float64) [HoursPerDay]float64 {
	peak := floats.Max(curve[:])
	if peak == 0 {
		return curve
	}
	top := floats.MaxIdx(curve[:])
	floats.Scale(100/peak, curve[:])
	curve[top] = 100
	return curve
}

// Median returns the median of values, averaging the middle pair for even
// lengths. It returns 0 for an empty slice.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func addFeatures(a, b DerivedFeatures) DerivedFeatures {
	return DerivedFeatures{
		MorningRatio:   a.MorningRatio + b.MorningRatio,
		EveningRatio:   a.EveningRatio + b.EveningRatio,
		AfternoonRatio: a.AfternoonRatio + b.AfternoonRatio,
		NightRatio:     a.NightRatio + b.NightRatio,
		CV:             a.CV + b.CV,
		MorningPeak:    a.MorningPeak + b.MorningPeak,
		NoonPeak:       a.NoonPeak + b.NoonPeak,
		AfternoonPeak:  a.AfternoonPeak + b.AfternoonPeak,
		EveningPeak:    a.EveningPeak + b.EveningPeak,
		NightPeak:      a.NightPeak + b.NightPeak,
		Mean:           a.Mean + b.Mean,
	}
}

func scaleFeatures(f DerivedFeatures, k float64) DerivedFeatures {
	return DerivedFeatures{
		MorningRatio:   f.MorningRatio * k,
		EveningRatio:   f.EveningRatio * k,
		AfternoonRatio: f.AfternoonRatio * k,
		NightRatio:     f.NightRatio * k,
		CV:             f.CV * k,
		MorningPeak:    f.MorningPeak * k,
		NoonPeak:       f.NoonPeak * k,
		AfternoonPeak:  f.AfternoonPeak * k,
		EveningPeak:    f.EveningPeak * k,
		NightPeak:      f.NightPeak * k,
		Mean:           f.Mean * k,
	}
}

// PatternReport is the outcome of classifying one population.
type PatternReport struct {
	Policy       Policy              `json:"policy"`
	Assignments  []PatternAssignment `json:"assignments"`
	Clusters     []ClusterStats      `json:"clusters"`
	ClassifiedAt time.Time           `json:"classified_at"`
}

// ClassifyProfiles runs c over profiles and aggregates the clusters.
func ClassifyProfiles(c Classifier, profiles []StationProfile) PatternReport {
	assignments := c.Classify(profiles)
	return PatternReport{
		Policy:       c.Policy(),
		Assignments:  assignments,
		Clusters:     BuildClusterStats(assignments, profiles),
		ClassifiedAt: now(),
	}
}
