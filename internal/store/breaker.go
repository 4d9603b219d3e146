package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/couchcryptid/station-demand-service/internal/domain"
	"github.com/couchcryptid/station-demand-service/internal/observability"
)

// ErrUnavailable is returned while a breaker rejects calls.
var ErrUnavailable = errors.New("collaborator unavailable")

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	Timeout          time.Duration
	MaxRequests      uint32
}

// DefaultBreakerConfig trips after five consecutive failures and probes again
// after 30 seconds.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{Name: name, FailureThreshold: 5, Timeout: 30 * time.Second, MaxRequests: 1}
}

// Breaker guards calls to one collaborator.
type Breaker struct {
	cb      *gobreaker.CircuitBreaker[any]
	name    string
	metrics *observability.Metrics
}

// NewBreaker returns a closed Breaker.
func NewBreaker(cfg BreakerConfig, logger *slog.Logger, metrics *observability.Metrics) *Breaker {
	b := &Breaker{name: cfg.Name, metrics: metrics}
	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// Context cancellation is the caller giving up, not the collaborator failing.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			metrics.BreakerTransition.WithLabelValues(name, to.String()).Inc()
		},
	})
	metrics.BreakerState.WithLabelValues(cfg.Name).Set(float64(gobreaker.StateClosed))
	return b
}

// State reports the breaker's current state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Do runs fn through the breaker. Rejected calls return ErrUnavailable.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.metrics.BreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		var zero T
		return zero, fmt.Errorf("%w: %s: %w", ErrUnavailable, b.name, err)
	}
	if err != nil {
		b.metrics.BreakerRequests.WithLabelValues(b.name, "failure").Inc()
		var zero T
		return zero, err
	}
	b.metrics.BreakerRequests.WithLabelValues(b.name, "success").Inc()
	return res.(T), nil
}

// guardedPager runs every Pager call through a Breaker.
type guardedPager struct {
	next    Pager
	breaker *Breaker
}

// Guard wraps p so each call passes through b.
func Guard(p Pager, b *Breaker) Pager {
	return &guardedPager{next: p, breaker: b}
}

func (g *guardedPager) Count(ctx context.Context, filter domain.RangeFilter) (int, error) {
	return Do(g.breaker, func() (int, error) { return g.next.Count(ctx, filter) })
}

func (g *guardedPager) ListPage(ctx context.Context, filter domain.RangeFilter, offset, limit int) ([]domain.DemandRecord, error) {
	return Do(g.breaker, func() ([]domain.DemandRecord, error) { return g.next.ListPage(ctx, filter, offset, limit) })
}
