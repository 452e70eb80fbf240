// Package provider implements market-data access: quotes, expirations, and
// option-chain snapshots from the Tradier API, plus a synthetic provider for
// mock mode. Chain data is normalized into models.ChainSnapshot before it
// leaves this package; nothing downstream sees provider wire formats.
package provider

import (
	"context"
	"math"
	"time"

	"github.com/AustinnAI/volaris/internal/models"
)

// Quote is a normalized underlying quote.
type Quote struct {
	Symbol    string  `json:"symbol"`
	Last      float64 `json:"last"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	PrevClose float64 `json:"prev_close"`
}

// Price returns the best available underlying price: last trade, falling
// back to the bid/ask midpoint, then previous close.
func (q *Quote) Price() float64 {
	if q.Last > 0 {
		return q.Last
	}
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	return q.PrevClose
}

// Provider defines the interface for market-data access.
type Provider interface {
	// Quotes
	GetQuote(symbol string) (*Quote, error)
	GetQuoteCtx(ctx context.Context, symbol string) (*Quote, error)

	// Option metadata
	GetExpirations(symbol string) ([]string, error)
	GetExpirationsCtx(ctx context.Context, symbol string) ([]string, error)

	// Chain data, normalized; expiration is YYYY-MM-DD
	GetChainSnapshot(symbol, expiration string) (*ChainResult, error)
	GetChainSnapshotCtx(ctx context.Context, symbol, expiration string) (*ChainResult, error)

	// Implied volatility for the underlying, annualized (e.g. 0.22)
	GetImpliedVolatility(symbol string) (float64, error)
	GetImpliedVolatilityCtx(ctx context.Context, symbol string) (float64, error)
}

// ChainResult pairs a normalized snapshot with the quote it was priced from.
type ChainResult struct {
	Snapshot *models.ChainSnapshot
	Quote    *Quote
}

// DaysUntil counts calendar days from now until a YYYY-MM-DD expiration.
func DaysUntil(now time.Time, expiration string) (int, error) {
	exp, err := time.Parse("2006-01-02", expiration)
	if err != nil {
		return 0, err
	}
	f := now.UTC().Truncate(24 * time.Hour)
	t := exp.UTC().Truncate(24 * time.Hour)
	return int(t.Sub(f).Hours() / 24), nil
}

// CalculateIVRank normalizes a current IV against its historical range:
// (current - low) / (high - low) * 100, clamped to [0,100]. Invalid readings
// in the history are skipped; an empty or flat history yields 0.
func CalculateIVRank(currentIV float64, historicalIVs []float64) float64 {
	if math.IsNaN(currentIV) || math.IsInf(currentIV, 0) {
		return 0
	}

	clean := make([]float64, 0, len(historicalIVs))
	for _, v := range historicalIVs {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return 0
	}

	minIV, maxIV := clean[0], clean[0]
	for _, iv := range clean {
		if iv < minIV {
			minIV = iv
		}
		if iv > maxIV {
			maxIV = iv
		}
	}

	if maxIV == minIV {
		return 0
	}
	r := (currentIV - minIV) / (maxIV - minIV) * 100
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return r
}
