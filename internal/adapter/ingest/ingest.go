// Package ingest decodes uploaded demand data into domain records. It accepts
// one explicit schema, station_id, date, hour and demand, validates every row
// once and reports the rows it had to drop.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/couchcryptid/station-demand-service/internal/domain"
)

// maxErrors caps the per-row messages kept in a Result.
const maxErrors = 50

var validate = validator.New(validator.WithRequiredStructEnabled())

// row is the wire shape of one demand record.
type row struct {
	StationID int     `json:"station_id" validate:"gt=0"`
	Date      string  `json:"date" validate:"required,datetime=2006-01-02"`
	Hour      int     `json:"hour" validate:"gte=0,lte=23"`
	Demand    float64 `json:"demand" validate:"gte=0"`
}

func (r row) record() (domain.DemandRecord, error) {
	if err := validate.Struct(r); err != nil {
		return domain.DemandRecord{}, describe(err)
	}
	d, err := domain.ParseDate(r.Date)
	if err != nil {
		return domain.DemandRecord{}, err
	}
	rec := domain.DemandRecord{StationID: r.StationID, Date: d, Hour: r.Hour, Demand: r.Demand}
	return rec, rec.Validate()
}

// Result is the outcome of decoding one upload.
type Result struct {
	Records []domain.DemandRecord `json:"-"`
	Total   int                   `json:"total"`
	Skipped int                   `json:"skipped"`
	Errors  []string              `json:"errors,omitempty"`
}

func (r *Result) skip(line int, err error) {
	r.Skipped++
	if len(r.Errors) < maxErrors {
		r.Errors = append(r.Errors, fmt.Sprintf("row %d: %v", line, err))
	}
}

// DecodeJSON reads a JSON array of demand objects.
func DecodeJSON(rd io.Reader) (*Result, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(rd).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode demand json: %w", err)
	}

	res := &Result{Records: make([]domain.DemandRecord, 0, len(raw))}
	for i, msg := range raw {
		res.Total++
		var r row
		if err := json.Unmarshal(msg, &r); err != nil {
			res.skip(i+1, err)
			continue
		}
		rec, err := r.record()
		if err != nil {
			res.skip(i+1, err)
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

var csvColumns = []string{"station_id", "date", "hour", "demand"}

// DecodeCSV reads a CSV file whose header names the four record columns in
// any order. Extra columns are ignored.
func DecodeCSV(rd io.Reader) (*Result, error) {
	reader := csv.NewReader(rd)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return &Result{Records: []domain.DemandRecord{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range csvColumns {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("missing required csv column %q", c)
		}
	}

	res := &Result{Records: []domain.DemandRecord{}}
	line := 1
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		res.Total++
		if err != nil {
			res.skip(line, err)
			continue
		}
		r, err := parseCSVRow(fields, idx)
		if err != nil {
			res.skip(line, err)
			continue
		}
		rec, err := r.record()
		if err != nil {
			res.skip(line, err)
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func parseCSVRow(fields []string, idx map[string]int) (row, error) {
	get := func(col string) (string, error) {
		i := idx[col]
		if i >= len(fields) {
			return "", fmt.Errorf("missing %s", col)
		}
		return strings.TrimSpace(fields[i]), nil
	}

	var (
		r   row
		s   string
		err error
	)
	if s, err = get("station_id"); err != nil {
		return r, err
	}
	if r.StationID, err = strconv.Atoi(s); err != nil {
		return r, fmt.Errorf("station_id %q is not an integer", s)
	}
	if r.Date, err = get("date"); err != nil {
		return r, err
	}
	if s, err = get("hour"); err != nil {
		return r, err
	}
	if r.Hour, err = strconv.Atoi(s); err != nil {
		return r, fmt.Errorf("hour %q is not an integer", s)
	}
	if s, err = get("demand"); err != nil {
		return r, err
	}
	if r.Demand, err = strconv.ParseFloat(s, 64); err != nil {
		return r, fmt.Errorf("demand %q is not a number", s)
	}
	return r, nil
}

// DecodeFile picks the decoder by file extension: .csv or .json.
func DecodeFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return DecodeCSV(f)
	case ".json":
		return DecodeJSON(f)
	default:
		return nil, fmt.Errorf("unsupported demand file %s: want .csv or .json", path)
	}
}

// stationRow is the wire shape of station metadata.
type stationRow struct {
	StationID   int      `json:"station_id" validate:"gt=0"`
	Name        string   `json:"name" validate:"required"`
	Latitude    float64  `json:"latitude" validate:"latitude"`
	Longitude   float64  `json:"longitude" validate:"longitude"`
	Address     string   `json:"address"`
	TotalDemand *float64 `json:"total_demand" validate:"omitnil,gte=0"`
	AvgDemand   *float64 `json:"avg_demand" validate:"omitnil,gte=0"`
	MaxDemand   *float64 `json:"max_demand" validate:"omitnil,gte=0"`
	PeakHour    *int     `json:"peak_hour" validate:"omitnil,gte=0,lte=23"`
	DemandLevel *int     `json:"demand_level" validate:"omitnil,gte=1,lte=4"`
}

// DecodeStations reads a JSON array of stations. Any invalid station fails
// the whole decode: station metadata is small and hand-maintained.
func DecodeStations(rd io.Reader) ([]domain.Station, error) {
	var rows []stationRow
	if err := json.NewDecoder(rd).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode stations json: %w", err)
	}
	out := make([]domain.Station, len(rows))
	for i, r := range rows {
		if err := validate.Struct(r); err != nil {
			return nil, fmt.Errorf("station %d: %w", i+1, describe(err))
		}
		out[i] = domain.Station{
			StationID:   r.StationID,
			Name:        r.Name,
			Latitude:    r.Latitude,
			Longitude:   r.Longitude,
			Address:     r.Address,
			TotalDemand: r.TotalDemand,
			AvgDemand:   r.AvgDemand,
			MaxDemand:   r.MaxDemand,
			PeakHour:    r.PeakHour,
			DemandLevel: r.DemandLevel,
		}
	}
	return out, nil
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag())
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidRecord, strings.Join(msgs, ", "))
}
