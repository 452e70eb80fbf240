package provider

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerProvider wraps a Provider with circuit breaker functionality
// so a flapping upstream fails fast instead of stalling every request.
type CircuitBreakerProvider struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
}

// Ensure CircuitBreakerProvider implements Provider at compile time.
var _ Provider = (*CircuitBreakerProvider)(nil)

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerProvider creates a CircuitBreakerProvider with sensible defaults.
func NewCircuitBreakerProvider(p Provider) *CircuitBreakerProvider {
	return NewCircuitBreakerProviderWithSettings(p, CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewCircuitBreakerProviderWithSettings creates a CircuitBreakerProvider with custom settings.
func NewCircuitBreakerProviderWithSettings(p Provider, settings CircuitBreakerSettings) *CircuitBreakerProvider {
	gbSettings := gobreaker.Settings{
		Name:        "ProviderCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerProvider{
		provider: p,
		breaker:  gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// execBreaker is a generic helper for circuit breaker wrapper methods.
func execBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	p Provider,
	fn func(Provider) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(p) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// GetQuote wraps the underlying provider call with the circuit breaker.
func (c *CircuitBreakerProvider) GetQuote(symbol string) (*Quote, error) {
	return execBreaker(c.breaker, c.provider, func(p Provider) (*Quote, error) { return p.GetQuote(symbol) })
}

// GetQuoteCtx wraps the underlying provider call with the circuit breaker.
func (c *CircuitBreakerProvider) GetQuoteCtx(ctx context.Context, symbol string) (*Quote, error) {
	return execBreaker(c.breaker, c.provider, func(p Provider) (*Quote, error) { return p.GetQuoteCtx(ctx, symbol) })
}

// GetExpirations wraps the underlying provider call with the circuit breaker.
func (c *CircuitBreakerProvider) GetExpirations(symbol string) ([]string, error) {
	return execBreaker(c.breaker, c.provider, func(p Provider) ([]string, error) { return p.GetExpirations(symbol) })
}

// GetExpirationsCtx wraps the underlying provider call with the circuit breaker.
func (c *CircuitBreakerProvider) GetExpirationsCtx(ctx context.Context, symbol string) ([]string, error) {
	return execBreaker(c.breaker, c.provider, func(p Provider) ([]string, error) { return p.GetExpirationsCtx(ctx, symbol) })
}

// GetChainSnapshot wraps the underlying provider call with the circuit breaker.
func (c *CircuitBreakerProvider) GetChainSnapshot(symbol, expiration string) (*ChainResult, error) {
	return execBreaker(c.breaker, c.provider, func(p Provider) (*ChainResult, error) { return p.GetChainSnapshot(symbol, expiration) })
}

// GetChainSnapshotCtx wraps the underlying provider call with the circuit breaker.
func (c *CircuitBreakerProvider) GetChainSnapshotCtx(ctx context.Context, symbol, expiration string) (*ChainResult, error) {
	return execBreaker(c.breaker, c.provider, func(p Provider) (*ChainResult, error) { return p.GetChainSnapshotCtx(ctx, symbol, expiration) })
}

// GetImpliedVolatility wraps the underlying provider call with the circuit breaker.
func (c *CircuitBreakerProvider) GetImpliedVolatility(symbol string) (float64, error) {
	return execBreaker(c.breaker, c.provider, func(p Provider) (float64, error) { return p.GetImpliedVolatility(symbol) })
}

// GetImpliedVolatilityCtx wraps the underlying provider call with the circuit breaker.
func (c *CircuitBreakerProvider) GetImpliedVolatilityCtx(ctx context.Context, symbol string) (float64, error) {
	return execBreaker(c.breaker, c.provider, func(p Provider) (float64, error) { return p.GetImpliedVolatilityCtx(ctx, symbol) })
}
