package domain

import "fmt"

// PatternType is the behavioural archetype assigned to a station.
type PatternType string

const (
	PatternCommute      PatternType = "COMMUTE"
	PatternLeisure      PatternType = "LEISURE"
	PatternBalanced     PatternType = "BALANCED"
	PatternNight        PatternType = "NIGHT"
	PatternLowFrequency PatternType = "LOW_FREQUENCY"
)

// PatternTypes lists every pattern in presentation order.
var PatternTypes = []PatternType{
	PatternCommute,
	PatternLeisure,
	PatternBalanced,
	PatternNight,
	PatternLowFrequency,
}

// PatternInfo is presentation metadata for a pattern. It carries no meaning
// for classification.
type PatternInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	Icon        string `json:"icon"`
}

var patternInfo = map[PatternType]PatternInfo{
	PatternCommute:      {Name: "Commuter", Description: "pronounced morning and evening peaks", Color: "#1890ff", Icon: "🚇"},
	PatternLeisure:      {Name: "Leisure", Description: "single afternoon peak", Color: "#52c41a", Icon: "🎮"},
	PatternBalanced:     {Name: "Balanced", Description: "even demand through the day", Color: "#faad14", Icon: "⚖️"},
	PatternNight:        {Name: "Night", Description: "active after 20:00", Color: "#722ed1", Icon: "🌙"},
	PatternLowFrequency: {Name: "Low frequency", Description: "little demand overall", Color: "#8c8c8c", Icon: "📉"},
}

// Info returns the presentation metadata of the pattern.
func (p PatternType) Info() PatternInfo {
	return patternInfo[p]
}

// Valid reports whether p is one of the five known patterns.
func (p PatternType) Valid() bool {
	_, ok := patternInfo[p]
	return ok
}

// PatternAssignment places one station in one pattern.
type PatternAssignment struct {
	StationID int         `json:"station_id"`
	Pattern   PatternType `json:"pattern"`
	Reason    string      `json:"reason"`
}

// Policy names a classification policy.
type Policy string

const (
	// PolicyThreshold classifies by absolute ratio thresholds.
	PolicyThreshold Policy = "threshold"
	// PolicyQuota classifies by fixed rank cutoffs within the population.
	PolicyQuota Policy = "quota"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyThreshold, PolicyQuota:
		return p, nil
	default:
		return "", fmt.Errorf("unknown classification policy %q", s)
	}
}
