package domain

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// quotaEpsilon absorbs float error in fraction × population before flooring,
// so 50 × 0.2 yields 10 and not 9.
const quotaEpsilon = 1e-9

// QuotaClassifier assigns patterns by rank cutoffs. Each stage takes a
// fraction of the stations still unassigned, rounding down; whatever is left
// after the last stage is BALANCED.
type QuotaClassifier struct {
	fractions QuotaFractions
}

// NewQuotaClassifier returns a QuotaClassifier with the given fractions.
func NewQuotaClassifier(fractions QuotaFractions) *QuotaClassifier {
	return &QuotaClassifier{fractions: fractions}
}

func (c *QuotaClassifier) Policy() Policy { return PolicyQuota }

// QuotaSizes returns the group sizes for a population of n stations in stage
// order: low frequency, night, commute, leisure, balanced.
func (c *QuotaClassifier) QuotaSizes(n int) [5]int {
	var sizes [5]int
	remaining := n
	for i, f := range []float64{c.fractions.LowFrequency, c.fractions.Night, c.fractions.Commute, c.fractions.Leisure} {
		k := quotaOf(remaining, f)
		sizes[i] = k
		remaining -= k
	}
	sizes[4] = remaining
	return sizes
}

func quotaOf(n int, fraction float64) int {
	k := int(math.Floor(float64(n)*fraction + quotaEpsilon))
	return min(max(k, 0), n)
}

// Classify returns one assignment per profile, in input order.
func (c *QuotaClassifier) Classify(profiles []StationProfile) []PatternAssignment {
	sizes := c.QuotaSizes(len(profiles))
	assigned := make(map[int]PatternAssignment, len(profiles))

	// Bottom stations by total demand. The population is ordered by total
	// descending and the tail is taken, so among equal totals the later
	// input stations are the ones removed.
	byTotal := slices.Clone(profiles)
	slices.SortStableFunc(byTotal, func(a, b StationProfile) int {
		return cmp.Compare(b.TotalDemand, a.TotalDemand)
	})
	cut := len(byTotal) - sizes[0]
	for _, p := range byTotal[cut:] {
		assigned[p.StationID] = PatternAssignment{
			StationID: p.StationID,
			Pattern:   PatternLowFrequency,
			Reason:    fmt.Sprintf("total demand %.0f among the lowest %d", p.TotalDemand, sizes[0]),
		}
	}
	remaining := byTotal[:cut]

	remaining = takeTop(remaining, sizes[1], func(f DerivedFeatures) float64 { return f.NightRatio }, func(p StationProfile) PatternAssignment {
		return PatternAssignment{StationID: p.StationID, Pattern: PatternNight,
			Reason: fmt.Sprintf("night ratio %.2f among the highest", p.Features.NightRatio)}
	}, assigned)

	remaining = takeTop(remaining, sizes[2], DerivedFeatures.CommuteScore, func(p StationProfile) PatternAssignment {
		return PatternAssignment{StationID: p.StationID, Pattern: PatternCommute,
			Reason: fmt.Sprintf("morning+evening ratio %.2f among the highest", p.Features.CommuteScore())}
	}, assigned)

	remaining = takeTop(remaining, sizes[3], func(f DerivedFeatures) float64 { return f.AfternoonRatio }, func(p StationProfile) PatternAssignment {
		return PatternAssignment{StationID: p.StationID, Pattern: PatternLeisure,
			Reason: fmt.Sprintf("afternoon ratio %.2f among the highest", p.Features.AfternoonRatio)}
	}, assigned)

	for _, p := range remaining {
		assigned[p.StationID] = PatternAssignment{StationID: p.StationID, Pattern: PatternBalanced, Reason: "demand relatively even"}
	}

	out := make([]PatternAssignment, len(profiles))
	for i, p := range profiles {
		out[i] = assigned[p.StationID]
	}
	return out
}

// takeTop assigns the k highest-scoring profiles and returns the rest in
// their incoming order.
func takeTop(pool []StationProfile, k int, score func(DerivedFeatures) float64, assign func(StationProfile) PatternAssignment, assigned map[int]PatternAssignment) []StationProfile {
	ranked := slices.Clone(pool)
	slices.SortStableFunc(ranked, func(a, b StationProfile) int {
		return cmp.Compare(score(b.Features), score(a.Features))
	})

	taken := make(map[int]struct{}, k)
	for _, p := range ranked[:k] {
		assigned[p.StationID] = assign(p)
		taken[p.StationID] = struct{}{}
	}

	rest := make([]StationProfile, 0, len(pool)-k)
	for _, p := range pool {
		if _, ok := taken[p.StationID]; !ok {
			rest = append(rest, p)
		}
	}
	return rest
}
