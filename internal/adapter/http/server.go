package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/station-demand-service/internal/adapter/blob"
	"github.com/couchcryptid/station-demand-service/internal/domain"
	"github.com/couchcryptid/station-demand-service/internal/pipeline"
)

// Analyzer runs an analysis on request.
type Analyzer interface {
	Analyze(ctx context.Context, req pipeline.Request) (*domain.Report, error)
}

// LatestReport exposes the most recent scheduled report.
type LatestReport interface {
	Latest() *domain.Report
}

// StationQueries answers station-level reads.
type StationQueries interface {
	List(ctx context.Context, includeStats bool, limit int) ([]pipeline.StationView, error)
	Info(ctx context.Context, id int) (*pipeline.StationView, error)
	Overview(ctx context.Context) (domain.Overview, error)
	Rank(ctx context.Context, metric domain.RankMetric, filter domain.RangeFilter) (*pipeline.Ranking, error)
}

// DemandQueries answers per-station record reads and blob exports.
type DemandQueries interface {
	ByStation(ctx context.Context, id int, start, end domain.Date) (*pipeline.StationDemand, error)
	ExportCSV(ctx context.Context, id int, start, end domain.Date) (domain.BlobHandle, error)
	PublishPage(ctx context.Context, page, pageSize int) (pipeline.PageHandle, error)
}

// BlobReader serves stored objects.
type BlobReader interface {
	Get(key string) (blob.Object, error)
}

// Deps are the collaborators behind the API routes.
type Deps struct {
	Ready    sharedobs.ReadinessChecker
	Analyzer Analyzer
	Latest   LatestReport
	Stations StationQueries
	Demand   DemandQueries
	Blobs    BlobReader
	// PageSize is the default size of a materialized record page.
	PageSize int
}

// Server exposes the health, metrics and analysis HTTP endpoints.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the operational and /api/v1 routes.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	s := &Server{deps: deps, logger: logger}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(deps.Ready))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(requestLogger(logger))

		r.Get("/overview", s.handleOverview)
		r.Get("/stations", s.handleStations)
		r.Get("/stations/{id}", s.handleStation)
		r.Get("/stations/{id}/demand", s.handleStationDemand)
		r.Post("/stations/{id}/export", s.handleExport)
		r.Get("/ranking", s.handleRanking)
		r.Get("/patterns", s.handlePatterns)
		r.Get("/patterns/latest", s.handleLatestPatterns)
		r.Post("/demand/pages/{page}", s.handlePublishPage)
		r.Get("/blobs/*", s.handleBlob)
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimiddleware.GetReqID(r.Context()),
			)
		})
	}
}
