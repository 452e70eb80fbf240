// Package retry wraps provider fetches with bounded retry and exponential
// backoff. Only transient upstream failures are retried; anything else
// surfaces immediately.
package retry

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/AustinnAI/volaris/internal/provider"
)

type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

// Client retries provider fetches on transient failures.
type Client struct {
	provider provider.Provider
	logger   *log.Logger
	config   Config
}

func NewClient(p provider.Provider, logger *log.Logger, config ...Config) *Client {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	return &Client{
		provider: p,
		logger:   logger,
		config:   cfg,
	}
}

// FetchChainSnapshot fetches one expiration's chain with retry.
func (c *Client) FetchChainSnapshot(ctx context.Context, symbol, expiration string) (*provider.ChainResult, error) {
	return do(ctx, c, fmt.Sprintf("chain %s %s", symbol, expiration),
		func(ctx context.Context) (*provider.ChainResult, error) {
			return c.provider.GetChainSnapshotCtx(ctx, symbol, expiration)
		})
}

// FetchQuote fetches an underlying quote with retry.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*provider.Quote, error) {
	return do(ctx, c, fmt.Sprintf("quote %s", symbol),
		func(ctx context.Context) (*provider.Quote, error) {
			return c.provider.GetQuoteCtx(ctx, symbol)
		})
}

// FetchExpirations fetches available expirations with retry.
func (c *Client) FetchExpirations(ctx context.Context, symbol string) ([]string, error) {
	return do(ctx, c, fmt.Sprintf("expirations %s", symbol),
		func(ctx context.Context) ([]string, error) {
			return c.provider.GetExpirationsCtx(ctx, symbol)
		})
}

// FetchImpliedVolatility fetches an IV reading with retry.
func (c *Client) FetchImpliedVolatility(ctx context.Context, symbol string) (float64, error) {
	return do(ctx, c, fmt.Sprintf("iv %s", symbol),
		func(ctx context.Context) (float64, error) {
			return c.provider.GetImpliedVolatilityCtx(ctx, symbol)
		})
}

// do runs one fetch with the retry loop. Transient failures back off with
// jitter; permanent ones return immediately.
func do[T any](ctx context.Context, c *Client, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	fetchCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		select {
		case <-fetchCtx.Done():
			return zero, fmt.Errorf("%s timed out after %v: %w", op, c.config.Timeout, fetchCtx.Err())
		default:
		}

		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s canceled: %w", op, ctx.Err())
		}

		result, err := fn(fetchCtx)
		if err == nil {
			if attempt > 0 {
				c.logger.Printf("%s succeeded on attempt %d", op, attempt+1)
			}
			return result, nil
		}

		lastErr = err
		c.logger.Printf("%s attempt %d/%d failed: %v", op, attempt+1, c.config.MaxRetries+1, err)

		if c.isTransientError(err) && attempt < c.config.MaxRetries {
			c.logger.Printf("Transient error detected, retrying in %v", backoff)
			select {
			case <-time.After(backoff):
				backoff = c.calculateNextBackoff(backoff)
			case <-fetchCtx.Done():
				return zero, fmt.Errorf("%s timed out during backoff: %w", op, fetchCtx.Err())
			case <-ctx.Done():
				return zero, fmt.Errorf("%s canceled during backoff: %w", op, ctx.Err())
			}
		} else {
			break
		}
	}

	return zero, fmt.Errorf("%s failed after %d attempt(s): %w", op, c.config.MaxRetries+1, lastErr)
}

func (c *Client) calculateNextBackoff(currentBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(currentBackoff) * 1.5)
	if backoff > c.config.MaxBackoff {
		backoff = c.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			log.Printf("Failed to generate jitter: %v", err)
		} else {
			jitter := time.Duration(jitterVal.Int64())
			backoff += jitter
		}
	}

	return backoff
}

func (c *Client) isTransientError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"429", // HTTP 429 Too Many Requests
		"502", // HTTP 502 Bad Gateway
		"503", // HTTP 503 Service Unavailable
		"504", // HTTP 504 Gateway Timeout
		"network",
		"dns",
		"tcp",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
