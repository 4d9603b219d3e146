package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/couchcryptid/station-demand-service/internal/adapter/blob"
	"github.com/couchcryptid/station-demand-service/internal/domain"
	"github.com/couchcryptid/station-demand-service/internal/pipeline"
	"github.com/couchcryptid/station-demand-service/internal/store"
)

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	o, err := s.deps.Stations.Overview(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	includeStats, err := boolParam(q.Get("include_stats"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := intParam(q.Get("limit"), 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views, err := s.deps.Stations.List(r.Context(), includeStats, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stations": views, "count": len(views)})
}

func (s *Server) handleStation(w http.ResponseWriter, r *http.Request) {
	id, err := stationID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.deps.Stations.Info(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleStationDemand(w http.ResponseWriter, r *http.Request) {
	id, start, end, err := stationRange(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.deps.Demand.ByStation(r.Context(), id, start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id, start, end, err := stationRange(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	h, err := s.deps.Demand.ExportCSV(r.Context(), id, start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	metric := domain.RankByTotal
	if m := q.Get("metric"); m != "" {
		var ok bool
		if metric, ok = domain.ParseRankMetric(m); !ok {
			s.writeError(w, r, fmt.Errorf("%w: metric must be total, avg or peak", pipeline.ErrInvalidRequest))
			return
		}
	}
	start, end, err := dateRange(q.Get("start"), q.Get("end"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ranking, err := s.deps.Stations.Rank(r.Context(), metric, domain.RangeFilter{Start: start, End: end})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ranking)
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var req pipeline.Request
	if p := q.Get("policy"); p != "" {
		policy, err := domain.ParsePolicy(p)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: %w", pipeline.ErrInvalidRequest, err))
			return
		}
		req.Policy = policy
	}
	var err error
	if req.Start, req.End, err = dateRange(q.Get("start"), q.Get("end")); err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.deps.Analyzer.Analyze(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleLatestPatterns(w http.ResponseWriter, r *http.Request) {
	report := s.deps.Latest.Latest()
	if report == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no scheduled report yet"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handlePublishPage(w http.ResponseWriter, r *http.Request) {
	page, err := intParam(chi.URLParam(r, "page"), 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	size, err := intParam(r.URL.Query().Get("page_size"), s.deps.PageSize)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	h, err := s.deps.Demand.PublishPage(r.Context(), page, size)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	obj, err := s.deps.Blobs.Get(chi.URLParam(r, "*"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("X-File-Id", obj.FileID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.Data)
}

// writeError maps service errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrStationNotFound), errors.Is(err, blob.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrCollaborator):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // headers are already sent
}

func stationID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: station id must be a positive integer", pipeline.ErrInvalidRequest)
	}
	return id, nil
}

func stationRange(r *http.Request) (int, domain.Date, domain.Date, error) {
	id, err := stationID(r)
	if err != nil {
		return 0, domain.Date{}, domain.Date{}, err
	}
	q := r.URL.Query()
	start, end, err := dateRange(q.Get("start"), q.Get("end"))
	return id, start, end, err
}

// dateRange parses optional start and end dates. Empty strings stay zero.
func dateRange(startStr, endStr string) (start, end domain.Date, err error) {
	if startStr != "" {
		if start, err = domain.ParseDate(startStr); err != nil {
			return start, end, fmt.Errorf("%w: start: %w", pipeline.ErrInvalidRequest, err)
		}
	}
	if endStr != "" {
		if end, err = domain.ParseDate(endStr); err != nil {
			return start, end, fmt.Errorf("%w: end: %w", pipeline.ErrInvalidRequest, err)
		}
	}
	return start, end, nil
}

func intParam(s string, fallback int) (int, error) {
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", pipeline.ErrInvalidRequest, s)
	}
	return n, nil
}

func boolParam(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%w: %q is not a boolean", pipeline.ErrInvalidRequest, s)
	}
	return b, nil
}
