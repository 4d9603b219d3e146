// Package domain models hourly bike/scooter station demand and the
// aggregation and classification rules applied to it.
//
// # Data Source
//
// Demand records come from the station operator's monthly export: one row per
// station, calendar day and hour of day, carrying the number of rentals that
// started at the station in that hour. The reference month is May 2021
// (50 stations x 31 days x 24 hours = 37,200 rows). Station metadata (name,
// coordinates, precomputed totals) lives alongside the records and is treated
// as authoritative when a field is present.
//
// # Record Conventions
//
//	station_id  integer station key
//	date        calendar day, "2006-01-02"
//	hour        0..23, the hour the rentals started in
//	demand      non-negative count (fractional values are accepted)
//
// Missing hours are absent rather than zero: they do not contribute to record
// counts or per-record averages, but contribute zero to sums. Records with an
// hour outside 0..23 or a negative (or NaN) demand are skipped and counted in
// the Skipped field of the result that dropped them.
//
// # Profiles
//
// A station profile is a 24-slot curve: slot h holds the station's total
// demand at hour h divided by the observed day count of the run. The divisor
// is always the number of calendar days in the analysis window, never the
// number of records that landed in the slot, so sparse hours are diluted
// rather than inflated. The day count is supplied by the caller; see
// [BuildProfile].
//
// # Windows
//
// Feature extraction reads the profile through fixed hour windows:
//
//	morning    07-09
//	noon       11-13
//	afternoon  14-16
//	evening    17-19
//	night      20-23
//
// Each window ratio is the window maximum divided by the 24-hour mean. The
// coefficient of variation (CV) is the population standard deviation of the
// 24 slots divided by their mean. A zero mean yields zero for every ratio.
//
// # Patterns
//
// Every station is assigned exactly one of five patterns per run:
//
//	COMMUTE        pronounced morning and evening peaks
//	LEISURE        single afternoon peak
//	BALANCED       flat demand through the day
//	NIGHT          peak after 20:00
//	LOW_FREQUENCY  little demand overall
//
// Two policies produce the assignment. The threshold policy (see
// [ThresholdClassifier]) removes stations below 0.3 x median total demand as
// LOW_FREQUENCY and then applies ordered ratio rules with a peak-based
// fallback that never yields NIGHT. The quota policy (see [QuotaClassifier])
// peels fixed fractions of the population off by rank: the bottom 20% by
// total demand, then 20% by night ratio, 37.5% by commute score, 50% by
// afternoon ratio, and leaves the rest BALANCED. For 50 stations the group
// sizes are 10, 8, 12, 10 and 10.
package domain
