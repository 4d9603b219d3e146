package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/couchcryptid/station-demand-service/internal/domain"
)

// Analysis holds the classification parameters. They are layered: built-in
// defaults, then an optional YAML file, then ANALYSIS_* environment variables.
type Analysis struct {
	Policy string `koanf:"policy" validate:"oneof=threshold quota"`

	// ObservedDayCount divides every profile slot. Zero uses the inclusive
	// length of the analysed date range.
	ObservedDayCount    int  `koanf:"observed_day_count" validate:"gte=0"`
	PreferAuthoritative bool `koanf:"prefer_authoritative"`

	LowFreqThresholdFactor float64               `koanf:"low_freq_threshold_factor" validate:"gt=0,lte=1"`
	Quota                  domain.QuotaFractions `koanf:"quota"`

	// RangeStart and RangeEnd bound scheduled runs. Empty means the full
	// stored date range.
	RangeStart string `koanf:"range_start" validate:"omitempty,datetime=2006-01-02"`
	RangeEnd   string `koanf:"range_end" validate:"omitempty,datetime=2006-01-02"`
}

// DefaultAnalysis returns the threshold policy over the whole stored range.
func DefaultAnalysis() Analysis {
	cc := domain.DefaultClassifierConfig()
	return Analysis{
		Policy:                 string(cc.Policy),
		LowFreqThresholdFactor: cc.LowFreqThresholdFactor,
		Quota:                  cc.QuotaFractions,
	}
}

// analysisEnvKeys maps ANALYSIS_* variables to koanf paths.
var analysisEnvKeys = map[string]string{
	"ANALYSIS_POLICY":                    "policy",
	"ANALYSIS_OBSERVED_DAY_COUNT":        "observed_day_count",
	"ANALYSIS_PREFER_AUTHORITATIVE":      "prefer_authoritative",
	"ANALYSIS_LOW_FREQ_THRESHOLD_FACTOR": "low_freq_threshold_factor",
	"ANALYSIS_QUOTA_LOW_FREQUENCY":       "quota.low_frequency",
	"ANALYSIS_QUOTA_NIGHT":               "quota.night",
	"ANALYSIS_QUOTA_COMMUTE":             "quota.commute",
	"ANALYSIS_QUOTA_LEISURE":             "quota.leisure",
	"ANALYSIS_RANGE_START":               "range_start",
	"ANALYSIS_RANGE_END":                 "range_end",
}

func analysisEnvTransform(key string) string {
	return analysisEnvKeys[strings.ToUpper(key)]
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadAnalysis builds the analysis parameters. path may be empty.
func LoadAnalysis(path string) (*Analysis, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultAnalysis(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load analysis defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load analysis config %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("ANALYSIS_", ".", analysisEnvTransform), nil); err != nil {
		return nil, fmt.Errorf("load analysis env: %w", err)
	}

	a := &Analysis{}
	if err := k.Unmarshal("", a); err != nil {
		return nil, fmt.Errorf("decode analysis config: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks field ranges and that the date range is ordered.
func (a *Analysis) Validate() error {
	if err := validate.Struct(a); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("invalid analysis config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid analysis config: %w", err)
	}
	if a.RangeStart != "" && a.RangeEnd != "" && a.RangeEnd < a.RangeStart {
		return errors.New("invalid analysis config: range_end before range_start")
	}
	return nil
}

// ClassifierConfig converts the parameters for the domain classifier.
func (a *Analysis) ClassifierConfig() domain.ClassifierConfig {
	return domain.ClassifierConfig{
		Policy:                 domain.Policy(a.Policy),
		LowFreqThresholdFactor: a.LowFreqThresholdFactor,
		QuotaFractions:         a.Quota,
	}
}

// Range returns the configured scheduled-run bounds. Zero dates mean unbounded.
func (a *Analysis) Range() (start, end domain.Date) {
	// Both strings passed validation.
	start, _ = domain.ParseDate(a.RangeStart)
	end, _ = domain.ParseDate(a.RangeEnd)
	return start, end
}
