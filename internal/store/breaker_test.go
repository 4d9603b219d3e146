package store

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/station-demand-service/internal/domain"
	"github.com/couchcryptid/station-demand-service/internal/observability"
)

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	b := NewBreaker(BreakerConfig{Name: "duckdb", FailureThreshold: 2, Timeout: time.Minute, MaxRequests: 1}, slog.Default(), metrics)
	boom := errors.New("boom")

	for range 2 {
		_, err := Do(b, func() (int, error) { return 0, boom })
		require.ErrorIs(t, err, boom)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	calls := 0
	_, err := Do(b, func() (int, error) { calls++; return 1, nil })
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Zero(t, calls)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.BreakerState.WithLabelValues("duckdb")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BreakerRequests.WithLabelValues("duckdb", "rejected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.BreakerRequests.WithLabelValues("duckdb", "failure")))
}

func TestBreaker_CancellationDoesNotTrip(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "t", FailureThreshold: 1, Timeout: time.Minute}, slog.Default(), observability.NewMetricsForTesting())

	_, err := Do(b, func() (string, error) { return "", context.Canceled })
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, gobreaker.StateClosed, b.State())

	v, err := Do(b, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestGuard(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	pager := newFakePager(30)
	pager.countErr = errors.New("down")
	b := NewBreaker(BreakerConfig{Name: "pager", FailureThreshold: 1, Timeout: time.Minute}, slog.Default(), metrics)
	r := NewPagedReader(Guard(pager, b), 10, 2, slog.Default(), metrics)

	_, err := r.ReadAll(context.Background(), domain.RangeFilter{})
	require.ErrorIs(t, err, domain.ErrCollaborator)

	pager.countErr = nil
	_, err = r.ReadAll(context.Background(), domain.RangeFilter{})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, domain.ErrCollaborator)
}
