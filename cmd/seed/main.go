// Command seed fills a DuckDB database with a synthetic month of hourly
// station demand. Stations cycle through five archetypes (commuter, leisure,
// balanced, night, low frequency) so every pattern has members.
//
// Usage:
//
//	go run ./cmd/seed -db data/demand.duckdb -stations 50 -days 31 -start 2021-05-01
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"time"

	"github.com/couchcryptid/station-demand-service/internal/adapter/duckdb"
	"github.com/couchcryptid/station-demand-service/internal/config"
	"github.com/couchcryptid/station-demand-service/internal/domain"
	"github.com/couchcryptid/station-demand-service/internal/observability"
)

// archetype shapes one station's demand curve before noise.
type archetype func(hour int, weekend bool) float64

var archetypes = []archetype{
	func(h int, weekend bool) float64 { // commuter
		if weekend {
			return 3 + 2*bump(h, 14, 3)
		}
		return 2 + 28*bump(h, 8, 1.2) + 24*bump(h, 18, 1.5)
	},
	func(h int, weekend bool) float64 { // leisure
		scale := 1.0
		if weekend {
			scale = 1.6
		}
		return 2 + scale*20*bump(h, 15, 2.5)
	},
	func(h int, _ bool) float64 { // balanced
		if h < 6 {
			return 4
		}
		return 8
	},
	func(h int, _ bool) float64 { // night
		return 1 + 18*bump(h, 22, 1.5) + 12*bump(h, 1, 1.5)
	},
	func(h int, _ bool) float64 { // low frequency
		if h >= 7 && h <= 21 {
			return 0.4
		}
		return 0.1
	},
}

// bump is a gaussian centred on hour c that wraps around midnight.
func bump(h int, c, width float64) float64 {
	d := math.Abs(float64(h) - c)
	d = math.Min(d, domain.HoursPerDay-d)
	return math.Exp(-d * d / (2 * width * width))
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	dbPath := flag.String("db", cfg.DuckDBPath, "DuckDB database path")
	stations := flag.Int("stations", 50, "number of stations")
	days := flag.Int("days", 31, "number of days")
	startStr := flag.String("start", "2021-05-01", "first day (YYYY-MM-DD)")
	seed := flag.Uint64("seed", 42, "random seed")
	flag.Parse()

	if *stations <= 0 || *days <= 0 {
		flag.Usage()
		return fmt.Errorf("-stations and -days must be positive")
	}
	start, err := domain.ParseDate(*startStr)
	if err != nil {
		return err
	}

	ctx := context.Background()
	db, err := duckdb.Open(ctx, *dbPath, observability.NewLogger(cfg))
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // process exit

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	meta := make([]domain.Station, *stations)
	for i := range meta {
		id := i + 1
		meta[i] = domain.Station{
			StationID: id,
			Name:      fmt.Sprintf("Station %03d", id),
			Latitude:  22.45 + rng.Float64()*0.2,
			Longitude: 113.90 + rng.Float64()*0.3,
			Address:   fmt.Sprintf("%d Demo Road", 100+id),
		}
	}
	if err := db.UpsertStations(ctx, meta); err != nil {
		return fmt.Errorf("seed stations: %w", err)
	}

	began := time.Now()
	total := 0
	for d := range *days {
		date := domain.DateOf(start.AddDate(0, 0, d))
		records := make([]domain.DemandRecord, 0, *stations*domain.HoursPerDay)
		for _, st := range meta {
			shape := archetypes[(st.StationID-1)%len(archetypes)]
			for h := range domain.HoursPerDay {
				v := shape(h, date.IsWeekend()) * (0.85 + 0.3*rng.Float64())
				records = append(records, domain.DemandRecord{
					StationID: st.StationID,
					Date:      date,
					Hour:      h,
					Demand:    math.Round(v*10) / 10,
				})
			}
		}
		if err := db.InsertRecords(ctx, records); err != nil {
			return fmt.Errorf("seed %s: %w", date, err)
		}
		total += len(records)
	}

	log.Printf("seeded %d stations, %d records into %s in %s", len(meta), total, *dbPath, time.Since(began).Round(time.Millisecond))
	return nil
}
