package domain

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func curveProfile(id int, curve [HoursPerDay]float64) StationProfile {
	var total float64
	for _, v := range curve {
		total += v
	}
	return StationProfile{StationID: id, HourlyAverage: curve, TotalDemand: total, Features: ExtractFeatures(curve)}
}

func flatCurve(v float64) [HoursPerDay]float64 {
	var c [HoursPerDay]float64
	for h := range c {
		c[h] = v
	}
	return c
}

func peakedCurve(base float64, peaks map[int]float64) [HoursPerDay]float64 {
	c := flatCurve(base)
	for h, v := range peaks {
		c[h] = v
	}
	return c
}

// randomProfiles builds n profiles with varied shapes from a fixed seed.
func randomProfiles(n int, seed uint64) []StationProfile {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]StationProfile, n)
	for i := range out {
		var c [HoursPerDay]float64
		scale := rng.Float64() * 50
		for h := range c {
			c[h] = rng.Float64() * scale
		}
		out[i] = curveProfile(i+1, c)
	}
	return out
}

func allClassifiers(t *testing.T) []Classifier {
	t.Helper()
	var out []Classifier
	for _, p := range []Policy{PolicyThreshold, PolicyQuota} {
		cfg := DefaultClassifierConfig()
		cfg.Policy = p
		c, err := NewClassifier(cfg)
		require.NoError(t, err)
		out = append(out, c)
	}
	return out
}

func TestClassifyPartition(t *testing.T) {
	for _, c := range allClassifiers(t) {
		for _, n := range []int{1, 7, 50, 123} {
			t.Run(fmt.Sprintf("%s/%d", c.Policy(), n), func(t *testing.T) {
				profiles := randomProfiles(n, uint64(n))
				assignments := c.Classify(profiles)
				require.Len(t, assignments, n)

				seen := make(map[int]PatternType, n)
				for i, a := range assignments {
					assert.Equal(t, profiles[i].StationID, a.StationID)
					assert.True(t, a.Pattern.Valid())
					assert.NotEmpty(t, a.Reason)
					_, dup := seen[a.StationID]
					assert.False(t, dup)
					seen[a.StationID] = a.Pattern
				}

				clusters := BuildClusterStats(assignments, profiles)
				require.Len(t, clusters, len(PatternTypes))
				members := 0
				for _, cs := range clusters {
					members += cs.MemberCount
					for _, id := range cs.MemberStationIDs {
						assert.Equal(t, cs.Pattern, seen[id])
					}
				}
				assert.Equal(t, n, members)
			})
		}
	}
}

func TestClassifyEmptyPopulation(t *testing.T) {
	for _, c := range allClassifiers(t) {
		t.Run(string(c.Policy()), func(t *testing.T) {
			assignments := c.Classify(nil)
			assert.Empty(t, assignments)

			clusters := BuildClusterStats(assignments, nil)
			require.Len(t, clusters, 5)
			for i, cs := range clusters {
				assert.Equal(t, PatternTypes[i], cs.Pattern)
				assert.Zero(t, cs.MemberCount)
				assert.Equal(t, [HoursPerDay]float64{}, cs.TypicalCurve)
				assert.Empty(t, cs.MemberStationIDs)
			}
		})
	}
}

func TestThresholdClassifier(t *testing.T) {
	c := NewThresholdClassifier(0)

	t.Run("commute scenario", func(t *testing.T) {
		p, err := BuildProfile(1, commuteDay(1, friday), 1, ProfileOptions{})
		require.NoError(t, err)

		got := c.Classify([]StationProfile{p})
		assert.Equal(t, PatternCommute, got[0].Pattern)
	})

	t.Run("flat profile is balanced", func(t *testing.T) {
		got := c.Classify([]StationProfile{curveProfile(1, flatCurve(10))})
		assert.Equal(t, PatternBalanced, got[0].Pattern)
	})

	t.Run("empty station is low frequency when others have demand", func(t *testing.T) {
		profiles := []StationProfile{
			curveProfile(1, [HoursPerDay]float64{}),
			curveProfile(2, flatCurve(10)),
		}
		got := c.Classify(profiles)
		assert.Equal(t, PatternLowFrequency, got[0].Pattern)
		assert.Equal(t, PatternBalanced, got[1].Pattern)
	})

	t.Run("threshold is a fraction of the median", func(t *testing.T) {
		profiles := []StationProfile{
			{StationID: 1, TotalDemand: 100},
			{StationID: 2, TotalDemand: 300},
			{StationID: 3, TotalDemand: 1000},
		}
		assert.InDelta(t, 90.0, c.LowFrequencyThreshold(profiles), 1e-9)
		assert.InDelta(t, 150.0, NewThresholdClassifier(0.5).LowFrequencyThreshold(profiles), 1e-9)
	})

	t.Run("degenerate profile with authoritative total", func(t *testing.T) {
		p := StationProfile{StationID: 1, TotalDemand: 500}
		got := c.Classify([]StationProfile{p})
		assert.NotEqual(t, PatternNight, got[0].Pattern)
		assert.NotEqual(t, PatternLowFrequency, got[0].Pattern)
	})

	t.Run("night", func(t *testing.T) {
		curve := peakedCurve(5, map[int]float64{21: 20, 22: 25})
		got := c.Classify([]StationProfile{curveProfile(1, curve)})
		assert.Equal(t, PatternNight, got[0].Pattern)
	})

	t.Run("leisure", func(t *testing.T) {
		curve := peakedCurve(5, map[int]float64{14: 15, 15: 18})
		got := c.Classify([]StationProfile{curveProfile(1, curve)})
		assert.Equal(t, PatternLeisure, got[0].Pattern)
	})

	t.Run("fallback follows the dominant peak", func(t *testing.T) {
		tests := []struct {
			name string
			f    DerivedFeatures
			want PatternType
		}{
			{"morning", DerivedFeatures{CV: 0.5, MorningPeak: 9, EveningPeak: 2, AfternoonPeak: 3, NightPeak: 1}, PatternCommute},
			{"evening", DerivedFeatures{CV: 0.5, MorningPeak: 2, EveningPeak: 9, AfternoonPeak: 3, NightPeak: 1}, PatternCommute},
			{"afternoon", DerivedFeatures{CV: 0.5, MorningPeak: 2, EveningPeak: 3, AfternoonPeak: 9, NightPeak: 1}, PatternLeisure},
			{"night never reached", DerivedFeatures{CV: 0.5, NightRatio: 1.2, MorningPeak: 2, EveningPeak: 3, AfternoonPeak: 1, NightPeak: 9}, PatternBalanced},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, _ := classifyByThreshold(StationProfile{TotalDemand: 1, Features: tt.f}, 0)
				assert.Equal(t, tt.want, got)
			})
		}
	})
}

func TestQuotaSizes(t *testing.T) {
	c := NewQuotaClassifier(DefaultQuotaFractions())

	t.Run("fifty stations", func(t *testing.T) {
		sizes := c.QuotaSizes(50)
		assert.Equal(t, [5]int{10, 8, 12, 10, 10}, sizes)
	})

	t.Run("sizes always sum to population", func(t *testing.T) {
		for n := range 200 {
			sizes := c.QuotaSizes(n)
			sum := 0
			for _, s := range sizes {
				assert.GreaterOrEqual(t, s, 0)
				sum += s
			}
			assert.Equal(t, n, sum, "population %d", n)
		}
	})

	t.Run("scales proportionally", func(t *testing.T) {
		assert.Equal(t, [5]int{20, 16, 24, 20, 20}, c.QuotaSizes(100))
		assert.Equal(t, [5]int{0, 0, 1, 1, 1}, c.QuotaSizes(3))
	})
}

func TestQuotaClassifier(t *testing.T) {
	profiles := randomProfiles(50, 42)
	c := NewQuotaClassifier(DefaultQuotaFractions())
	assignments := c.Classify(profiles)

	counts := make(map[PatternType]int)
	byID := make(map[int]PatternType)
	for _, a := range assignments {
		counts[a.Pattern]++
		byID[a.StationID] = a.Pattern
	}
	assert.Equal(t, map[PatternType]int{
		PatternLowFrequency: 10,
		PatternNight:        8,
		PatternCommute:      12,
		PatternLeisure:      10,
		PatternBalanced:     10,
	}, counts)

	// Every LOW_FREQUENCY total is at or below every other total.
	maxLow, minRest := 0.0, -1.0
	for _, p := range profiles {
		if byID[p.StationID] == PatternLowFrequency {
			maxLow = max(maxLow, p.TotalDemand)
		} else if minRest < 0 || p.TotalDemand < minRest {
			minRest = p.TotalDemand
		}
	}
	assert.LessOrEqual(t, maxLow, minRest)

	// Every NIGHT ratio is at or above the ratio of any later-stage station.
	minNight := -1.0
	for _, p := range profiles {
		if byID[p.StationID] == PatternNight && (minNight < 0 || p.Features.NightRatio < minNight) {
			minNight = p.Features.NightRatio
		}
	}
	for _, p := range profiles {
		switch byID[p.StationID] {
		case PatternCommute, PatternLeisure, PatternBalanced:
			assert.LessOrEqual(t, p.Features.NightRatio, minNight)
		}
	}
}

func TestQuotaClassifierTies(t *testing.T) {
	profiles := make([]StationProfile, 5)
	for i := range profiles {
		profiles[i] = curveProfile(i+1, flatCurve(1))
	}
	c := NewQuotaClassifier(QuotaFractions{LowFrequency: 0.4})
	got := c.Classify(profiles)

	want := []PatternAssignment{
		{StationID: 1, Pattern: PatternBalanced},
		{StationID: 2, Pattern: PatternBalanced},
		{StationID: 3, Pattern: PatternBalanced},
		{StationID: 4, Pattern: PatternLowFrequency},
		{StationID: 5, Pattern: PatternLowFrequency},
	}
	ignoreReason := cmp.Comparer(func(a, b PatternAssignment) bool {
		return a.StationID == b.StationID && a.Pattern == b.Pattern
	})
	if diff := cmp.Diff(want, got, ignoreReason); diff != "" {
		t.Errorf("Classify mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildClusterStats(t *testing.T) {
	profiles := []StationProfile{
		curveProfile(3, peakedCurve(10, map[int]float64{8: 40})),
		curveProfile(1, peakedCurve(10, map[int]float64{8: 60})),
		curveProfile(2, [HoursPerDay]float64{}),
	}
	assignments := []PatternAssignment{
		{StationID: 3, Pattern: PatternCommute},
		{StationID: 1, Pattern: PatternCommute},
		{StationID: 2, Pattern: PatternLowFrequency},
		{StationID: 99, Pattern: PatternNight},
	}

	clusters := BuildClusterStats(assignments, profiles)
	require.Len(t, clusters, 5)

	commute := clusters[0]
	assert.Equal(t, PatternCommute, commute.Pattern)
	assert.Equal(t, "Commuter", commute.Info.Name)
	assert.Equal(t, 2, commute.MemberCount)
	assert.Equal(t, []int{1, 3}, commute.MemberStationIDs)
	assert.InDelta(t, 66.666, commute.SharePercent, 1e-2)
	assert.Equal(t, 100.0, commute.TypicalCurve[8])
	assert.InDelta(t, 20.0, commute.TypicalCurve[0], 1e-9)

	night := clusters[3]
	assert.Zero(t, night.MemberCount)

	low := clusters[4]
	assert.Equal(t, 1, low.MemberCount)
	assert.Equal(t, [HoursPerDay]float64{}, low.TypicalCurve)
}

func TestTypicalCurveScaling(t *testing.T) {
	for _, c := range allClassifiers(t) {
		profiles := randomProfiles(40, 7)
		for _, cs := range BuildClusterStats(c.Classify(profiles), profiles) {
			if cs.MemberCount == 0 {
				continue
			}
			peak := 0.0
			for _, v := range cs.TypicalCurve {
				peak = max(peak, v)
			}
			assert.Equal(t, 100.0, peak, "%s/%s", c.Policy(), cs.Pattern)
		}
	}
}

func TestScaleToPeak(t *testing.T) {
	assert.Equal(t, [HoursPerDay]float64{}, ScaleToPeak([HoursPerDay]float64{}))

	got := ScaleToPeak(peakedCurve(0, map[int]float64{3: 3, 4: 1}))
	assert.Equal(t, 100.0, got[3])
	assert.InDelta(t, 33.333, got[4], 1e-3)
	assert.Equal(t, 0.0, got[0])
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, Median(nil))
	assert.Equal(t, 3.0, Median([]float64{5, 1, 3}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 2, 3}))
}

func TestNewClassifier(t *testing.T) {
	_, err := NewClassifier(ClassifierConfig{Policy: "kmeans"})
	require.Error(t, err)

	p, err := ParsePolicy("quota")
	require.NoError(t, err)
	assert.Equal(t, PolicyQuota, p)

	_, err = ParsePolicy("")
	assert.Error(t, err)
}

func TestClassifyProfiles(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC))
	SetClock(fake)
	t.Cleanup(func() { SetClock(nil) })

	profiles := []StationProfile{curveProfile(1, flatCurve(4))}
	report := ClassifyProfiles(NewThresholdClassifier(0), profiles)

	assert.Equal(t, PolicyThreshold, report.Policy)
	assert.Equal(t, fake.Now(), report.ClassifiedAt)
	require.Len(t, report.Assignments, 1)
	assert.Len(t, report.Clusters, 5)
}
