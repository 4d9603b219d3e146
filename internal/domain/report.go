package domain

import "time"

// Report is the complete result of one analysis run over a date range.
type Report struct {
	RunID        string    `json:"run_id"`
	GeneratedAt  time.Time `json:"generated_at"`
	Start        Date      `json:"start"`
	End          Date      `json:"end"`
	ObservedDays int       `json:"observed_days"`

	Summary   Summary          `json:"summary"`
	HourPeaks []Peak           `json:"hour_peaks"`
	Profiles  []StationProfile `json:"profiles"`
	Patterns  PatternReport    `json:"patterns"`

	Ranking   []RankedStation `json:"ranking"`
	Quartiles Quartiles       `json:"quartiles"`
	Tiers     []DemandTier    `json:"tiers"`

	CommonPeakHour     int `json:"common_peak_hour"`
	CommonPeakStations int `json:"common_peak_stations"`

	Insights Insights `json:"insights"`
}

// PatternOf returns the pattern assigned to a station in the report.
func (r *Report) PatternOf(stationID int) (PatternType, bool) {
	for _, a := range r.Patterns.Assignments {
		if a.StationID == stationID {
			return a.Pattern, true
		}
	}
	return "", false
}

// BlobHandle locates an object written to blob storage. The URL stays valid
// until ExpiresAt; a zero ExpiresAt never expires.
type BlobHandle struct {
	Key       string    `json:"key"`
	FileID    string    `json:"file_id"`
	URL       string    `json:"url"`
	Size      int       `json:"size"`
	ExpiresAt time.Time `json:"expires_at"`
}
