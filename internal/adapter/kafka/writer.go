package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/station-demand-service/internal/config"
	"github.com/couchcryptid/station-demand-service/internal/domain"
	"github.com/couchcryptid/station-demand-service/internal/observability"
)

// Writer publishes pattern assignments to a Kafka topic.
// It implements pipeline.ReportPublisher.
type Writer struct {
	writer  messageWriter
	logger  *slog.Logger
	metrics *observability.Metrics
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchFlushInterval,
	}
	return &Writer{writer: w, logger: logger, metrics: metrics}
}

// assignmentMessage is the value of one published message.
type assignmentMessage struct {
	RunID       string             `json:"run_id"`
	GeneratedAt time.Time          `json:"generated_at"`
	Policy      domain.Policy      `json:"policy"`
	Start       domain.Date        `json:"start"`
	End         domain.Date        `json:"end"`
	StationID   int                `json:"station_id"`
	Pattern     domain.PatternType `json:"pattern"`
	Reason      string             `json:"reason"`
	TotalDemand float64            `json:"total_demand"`
}

// LoadReport publishes one message per pattern assignment in a single
// WriteMessages call. Messages are keyed by station ID so a station's history
// stays on one partition.
func (w *Writer) LoadReport(ctx context.Context, report *domain.Report) error {
	if report == nil || len(report.Patterns.Assignments) == 0 {
		return nil
	}
	msgs, err := reportMessages(report)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("%w: publish report %s: %w", domain.ErrCollaborator, report.RunID, err)
	}
	w.metrics.ReportsPublished.Inc()
	w.logger.Info("report published", "run_id", report.RunID, "messages", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func reportMessages(report *domain.Report) ([]kafkago.Message, error) {
	totals := make(map[int]float64, len(report.Profiles))
	for _, p := range report.Profiles {
		totals[p.StationID] = p.TotalDemand
	}

	generatedAt := report.GeneratedAt.UTC().Format(time.RFC3339)
	msgs := make([]kafkago.Message, len(report.Patterns.Assignments))
	for i, a := range report.Patterns.Assignments {
		data, err := json.Marshal(assignmentMessage{
			RunID:       report.RunID,
			GeneratedAt: report.GeneratedAt,
			Policy:      report.Patterns.Policy,
			Start:       report.Start,
			End:         report.End,
			StationID:   a.StationID,
			Pattern:     a.Pattern,
			Reason:      a.Reason,
			TotalDemand: totals[a.StationID],
		})
		if err != nil {
			return nil, fmt.Errorf("serialize assignment for station %d: %w", a.StationID, err)
		}
		msgs[i] = kafkago.Message{
			Key:   []byte(strconv.Itoa(a.StationID)),
			Value: data,
			Headers: []kafkago.Header{
				{Key: "pattern", Value: []byte(a.Pattern)},
				{Key: "run_id", Value: []byte(report.RunID)},
				{Key: "generated_at", Value: []byte(generatedAt)},
			},
		}
	}
	return msgs, nil
}
