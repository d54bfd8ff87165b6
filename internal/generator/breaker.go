// Package generator selects the recommendation generator and guards it with
// a circuit breaker.
package generator

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"movierag/internal/domain"
	"movierag/internal/logging"
	"movierag/internal/metrics"
)

var _ domain.Generator = (*Breaker)(nil)

// BreakerSettings configures the circuit breaker around a generator.
type BreakerSettings struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32
	// OpenTimeout is how long the circuit stays open before a trial request.
	OpenTimeout time.Duration
}

// Breaker wraps a generator with a circuit breaker. Every failure, including
// a rejected call while the circuit is open, is returned as a
// GenerationError.
type Breaker struct {
	next domain.Generator
	cb   *gobreaker.CircuitBreaker[string]
}

// WithBreaker wraps next.
func WithBreaker(next domain.Generator, s BreakerSettings) *Breaker {
	if s.MaxFailures == 0 {
		s.MaxFailures = 3
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	name := "generator-" + next.Name()
	metrics.BreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
		// cancellations are the caller's doing, not a provider failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("generator circuit breaker state change")
			metrics.RecordBreakerTransition(name, from.String(), to.String(), stateValue(to))
		},
	})
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) Name() string  { return b.next.Name() }
func (b *Breaker) Model() string { return b.next.Model() }

// State returns the breaker state name: closed, half-open or open.
func (b *Breaker) State() string { return b.cb.State().String() }

func (b *Breaker) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	start := time.Now()
	out, err := b.cb.Execute(func() (string, error) {
		return b.next.Generate(ctx, req)
	})
	metrics.ObserveGeneration(b.next.Name(), time.Since(start), err)
	if err != nil {
		return "", &domain.GenerationError{Provider: b.next.Name(), Err: err}
	}
	return out, nil
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
