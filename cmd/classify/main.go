// Command classify runs the demand analysis offline over a CSV or JSON file
// and prints the report as JSON.
//
// Usage:
//
//	go run ./cmd/classify -in data/march.csv -stations data/stations.json -policy quota
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"slices"

	"github.com/goccy/go-json"

	"github.com/couchcryptid/station-demand-service/internal/adapter/duckdb"
	"github.com/couchcryptid/station-demand-service/internal/adapter/ingest"
	"github.com/couchcryptid/station-demand-service/internal/config"
	"github.com/couchcryptid/station-demand-service/internal/domain"
	"github.com/couchcryptid/station-demand-service/internal/observability"
	"github.com/couchcryptid/station-demand-service/internal/pipeline"
	"github.com/couchcryptid/station-demand-service/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	in := flag.String("in", "", "demand file (.csv or .json)")
	stationsPath := flag.String("stations", "", "optional station metadata JSON")
	policy := flag.String("policy", "", "classification policy: threshold or quota (default from config)")
	analysisPath := flag.String("config", "", "optional analysis config YAML")
	out := flag.String("out", "", "output path (default stdout)")
	flag.Parse()

	if *in == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -in")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	analysis := cfg.Analysis
	if *analysisPath != "" {
		if analysis, err = config.LoadAnalysis(*analysisPath); err != nil {
			return err
		}
	}
	var req pipeline.Request
	if *policy != "" {
		if req.Policy, err = domain.ParsePolicy(*policy); err != nil {
			return err
		}
	}

	res, err := ingest.DecodeFile(*in)
	if err != nil {
		return fmt.Errorf("decode %s: %w", *in, err)
	}
	log.Printf("%s: %d rows, %d skipped", *in, res.Total, res.Skipped)
	for _, e := range res.Errors {
		log.Print(e)
	}
	if len(res.Records) == 0 {
		return fmt.Errorf("%s holds no valid demand records", *in)
	}

	stations, err := loadStations(*stationsPath, res.Records)
	if err != nil {
		return err
	}

	ctx := context.Background()
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	db, err := duckdb.Open(ctx, ":memory:", logger)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // process exit
	if err := db.UpsertStations(ctx, stations); err != nil {
		return err
	}
	if err := db.InsertRecords(ctx, res.Records); err != nil {
		return err
	}

	reader := store.NewPagedReader(db, cfg.StorePageLimit, cfg.StoreConcurrency, logger, metrics)
	analyzer := pipeline.NewAnalyzer(reader, db, pipeline.OptionsFromConfig(analysis), nil, logger, metrics)
	report, err := analyzer.Analyze(ctx, req)
	if err != nil {
		return err
	}

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// loadStations reads station metadata, or names every station seen in the
// records when no file is given.
func loadStations(path string, records []domain.DemandRecord) ([]domain.Station, error) {
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ingest.DecodeStations(f)
	}

	var ids []int
	for _, r := range records {
		ids = append(ids, r.StationID)
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	stations := make([]domain.Station, len(ids))
	for i, id := range ids {
		stations[i] = domain.Station{StationID: id, Name: fmt.Sprintf("Station %d", id)}
	}
	return stations, nil
}
