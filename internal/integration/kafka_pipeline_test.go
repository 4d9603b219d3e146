//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/station-demand-service/internal/adapter/blob"
	"github.com/couchcryptid/station-demand-service/internal/adapter/duckdb"
	httpadapter "github.com/couchcryptid/station-demand-service/internal/adapter/http"
	"github.com/couchcryptid/station-demand-service/internal/adapter/kafka"
	"github.com/couchcryptid/station-demand-service/internal/config"
	"github.com/couchcryptid/station-demand-service/internal/domain"
	"github.com/couchcryptid/station-demand-service/internal/observability"
	"github.com/couchcryptid/station-demand-service/internal/pipeline"
	"github.com/couchcryptid/station-demand-service/internal/store"
)

const testSinkTopic = "test-station-patterns"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("station-demand-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{Topic: topic, NumPartitions: 3, ReplicationFactor: 1}))
}

// seedStore loads stations and a week of records: odd stations commute,
// even stations stay flat.
func seedStore(ctx context.Context, t *testing.T, stations int) *duckdb.Store {
	t.Helper()
	db, err := duckdb.Open(ctx, "", discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))

	meta := make([]domain.Station, stations)
	var recs []domain.DemandRecord
	start := domain.NewDate(2024, time.March, 4)
	for i := range stations {
		id := i + 1
		meta[i] = domain.Station{StationID: id, Name: fmt.Sprintf("Station %d", id), Latitude: 22.5, Longitude: 114.0}
		for d := range 7 {
			date := domain.DateOf(start.AddDate(0, 0, d))
			for h := range domain.HoursPerDay {
				demand := 4.0
				if id%2 == 1 {
					demand = 1
					if h == 8 || h == 18 {
						demand = 30
					}
				}
				recs = append(recs, domain.DemandRecord{StationID: id, Date: date, Hour: h, Demand: demand})
			}
		}
	}
	require.NoError(t, db.UpsertStations(ctx, meta))
	require.NoError(t, db.InsertRecords(ctx, recs))
	return db
}

func newAnalyzer(db *duckdb.Store, metrics *observability.Metrics) *pipeline.Analyzer {
	breaker := store.NewBreaker(store.DefaultBreakerConfig("duckdb"), discardLogger(), metrics)
	reader := store.NewPagedReader(store.Guard(db, breaker), 100, 4, discardLogger(), metrics)
	opts := pipeline.Options{Classifier: domain.DefaultClassifierConfig()}
	return pipeline.NewAnalyzer(reader, db, opts, nil, discardLogger(), metrics)
}

// TestPipelinePublishesAssignments runs one scheduled analysis against DuckDB
// and reads every assignment back from Kafka.
func TestPipelinePublishesAssignments(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	const stations = 6
	db := seedStore(ctx, t, stations)
	metrics := observability.NewMetricsForTesting()

	cfg := &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSinkTopic:     testSinkTopic,
		BatchSize:          50,
		BatchFlushInterval: 100 * time.Millisecond,
	}
	writer := kafka.NewWriter(cfg, discardLogger(), metrics)
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(newAnalyzer(db, metrics), time.Hour, nil, discardLogger(), metrics, writer)
	require.NoError(t, p.RunOnce(ctx))
	report := p.Latest()
	require.NotNil(t, report)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	patterns := map[int]string{}
	for len(patterns) < stations {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from sink topic")

		headers := map[string]string{}
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		assert.Equal(t, report.RunID, headers["run_id"])
		_, err = time.Parse(time.RFC3339, headers["generated_at"])
		assert.NoError(t, err)

		var body struct {
			StationID int    `json:"station_id"`
			Pattern   string `json:"pattern"`
		}
		require.NoError(t, json.Unmarshal(msg.Value, &body))
		assert.Equal(t, strconv.Itoa(body.StationID), string(msg.Key))
		assert.Equal(t, body.Pattern, headers["pattern"])
		patterns[body.StationID] = body.Pattern
	}

	for id, pattern := range patterns {
		if id%2 == 1 {
			assert.Equal(t, string(domain.PatternCommute), pattern, "station %d", id)
		} else {
			assert.Equal(t, string(domain.PatternBalanced), pattern, "station %d", id)
		}
	}
}

// TestServiceEndToEnd drives the HTTP API over DuckDB and badger without a
// broker.
func TestServiceEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db := seedStore(ctx, t, 4)
	metrics := observability.NewMetricsForTesting()
	blobs, err := blob.Open(blob.Options{TTL: time.Hour, BaseURL: "http://example.test"}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = blobs.Close() })

	breaker := store.NewBreaker(store.DefaultBreakerConfig("duckdb"), discardLogger(), metrics)
	reader := store.NewPagedReader(store.Guard(db, breaker), 100, 4, discardLogger(), metrics)
	analyzer := newAnalyzer(db, metrics)
	p := pipeline.New(analyzer, time.Hour, nil, discardLogger(), metrics, pipeline.NewReportArchive(blobs, discardLogger(), metrics))
	require.NoError(t, p.RunOnce(ctx))

	srv := httpadapter.NewServer(":0", httpadapter.Deps{
		Ready:    p,
		Analyzer: analyzer,
		Latest:   p,
		Stations: pipeline.NewStationService(db),
		Demand:   pipeline.NewDemandService(reader, db, blobs, discardLogger(), metrics),
		Blobs:    blobs,
		PageSize: 200,
	}, discardLogger())

	get := func(method, target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, get(http.MethodGet, "/readyz").Code)

	rec := get(http.MethodGet, "/api/v1/overview")
	require.Equal(t, http.StatusOK, rec.Code)
	var overview domain.Overview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &overview))
	assert.Equal(t, 4, overview.StationCount)
	assert.Equal(t, 7, overview.Days)

	rec = get(http.MethodGet, "/api/v1/patterns?policy=quota")
	require.Equal(t, http.StatusOK, rec.Code)
	var report domain.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, domain.PolicyQuota, report.Patterns.Policy)
	assert.Len(t, report.Patterns.Assignments, 4)

	rec = get(http.MethodPost, "/api/v1/stations/1/export?start=2024-03-04&end=2024-03-05")
	require.Equal(t, http.StatusCreated, rec.Code)
	var handle domain.BlobHandle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &handle))

	rec = get(http.MethodGet, "/api/v1/blobs/"+handle.Key)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "2024-03-05,18,30")

	rec = get(http.MethodPost, "/api/v1/demand/pages/2")
	require.Equal(t, http.StatusCreated, rec.Code)
	var page pipeline.PageHandle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 4*7*24, page.TotalRows)
	assert.Equal(t, 200, page.Rows)

	rec = get(http.MethodGet, "/api/v1/blobs/"+pipeline.LatestReportKey)
	assert.Equal(t, http.StatusOK, rec.Code)
}
