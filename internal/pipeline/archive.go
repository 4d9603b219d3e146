package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"

	"github.com/couchcryptid/station-demand-service/internal/domain"
	"github.com/couchcryptid/station-demand-service/internal/observability"
)

// LatestReportKey is the blob key of the most recent scheduled report.
const LatestReportKey = "reports/latest.json"

// ReportArchive writes each report to blob storage under its run ID and
// under LatestReportKey. It implements ReportPublisher.
type ReportArchive struct {
	blobs   BlobWriter
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewReportArchive creates a ReportArchive.
func NewReportArchive(blobs BlobWriter, logger *slog.Logger, metrics *observability.Metrics) *ReportArchive {
	return &ReportArchive{blobs: blobs, logger: logger, metrics: metrics}
}

func (a *ReportArchive) LoadReport(_ context.Context, report *domain.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", report.RunID, err)
	}
	for _, key := range []string{"reports/" + report.RunID + ".json", LatestReportKey} {
		if _, err := a.blobs.Put(key, data, "application/json"); err != nil {
			return fmt.Errorf("%w: store %s: %w", domain.ErrCollaborator, key, err)
		}
		a.metrics.BlobBytesWritten.Add(float64(len(data)))
	}
	a.logger.Debug("report archived", "run_id", report.RunID, "bytes", len(data))
	return nil
}
