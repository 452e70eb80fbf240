// Package models defines the domain types shared across the analysis pipeline:
// option contracts, chain snapshots, IV readings, and the enums used to
// describe strategies and market regimes.
package models

import (
	"fmt"
	"strings"
	"time"
)

// OptionType represents the type of option contract.
type OptionType string

const (
	// OptionTypeCall represents a call option contract
	OptionTypeCall OptionType = "call"
	// OptionTypePut represents a put option contract
	OptionTypePut OptionType = "put"
)

// ParseOptionType normalizes and validates an option type string.
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call":
		return OptionTypeCall, nil
	case "put":
		return OptionTypePut, nil
	default:
		return "", fmt.Errorf("%w: option_type %q must be 'call' or 'put'", ErrInvalidInput, s)
	}
}

// Bias represents the caller's directional view on the underlying.
type Bias string

const (
	// BiasBullish expects the underlying to rise
	BiasBullish Bias = "bullish"
	// BiasBearish expects the underlying to fall
	BiasBearish Bias = "bearish"
	// BiasNeutral expects the underlying to stay range-bound
	BiasNeutral Bias = "neutral"
)

// ParseBias normalizes and validates a bias string.
func ParseBias(s string) (Bias, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bullish":
		return BiasBullish, nil
	case "bearish":
		return BiasBearish, nil
	case "neutral":
		return BiasNeutral, nil
	default:
		return "", fmt.Errorf("%w: bias %q must be 'bullish', 'bearish' or 'neutral'", ErrInvalidInput, s)
	}
}

// StrategyFamily classifies the shape of a recommended position.
type StrategyFamily string

const (
	// FamilyVerticalCredit is a two-leg vertical collecting net premium at entry
	FamilyVerticalCredit StrategyFamily = "vertical_credit"
	// FamilyVerticalDebit is a two-leg vertical paying net premium at entry
	FamilyVerticalDebit StrategyFamily = "vertical_debit"
	// FamilyLongCall is a single-leg long call
	FamilyLongCall StrategyFamily = "long_call"
	// FamilyLongPut is a single-leg long put
	FamilyLongPut StrategyFamily = "long_put"
)

// IsSpread reports whether the family is a two-leg vertical.
func (f StrategyFamily) IsSpread() bool {
	return f == FamilyVerticalCredit || f == FamilyVerticalDebit
}

// IsCredit reports whether the family collects premium at entry.
func (f StrategyFamily) IsCredit() bool {
	return f == FamilyVerticalCredit
}

// IVRegime classifies implied volatility rank against configured thresholds.
type IVRegime string

const (
	// RegimeHigh means IV rank above the high threshold
	RegimeHigh IVRegime = "high"
	// RegimeNeutral means IV rank between the thresholds
	RegimeNeutral IVRegime = "neutral"
	// RegimeLow means IV rank below the low threshold
	RegimeLow IVRegime = "low"
)

// ParseIVRegime normalizes and validates a regime string (used for overrides).
func ParseIVRegime(s string) (IVRegime, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return RegimeHigh, nil
	case "neutral":
		return RegimeNeutral, nil
	case "low":
		return RegimeLow, nil
	default:
		return "", fmt.Errorf("%w: iv_regime %q must be 'high', 'neutral' or 'low'", ErrInvalidInput, s)
	}
}

// StrikePosition places a strike relative to the underlying price.
type StrikePosition string

const (
	// PositionITM is in the money
	PositionITM StrikePosition = "itm"
	// PositionATM is at the money (within the configured band)
	PositionATM StrikePosition = "atm"
	// PositionOTM is out of the money
	PositionOTM StrikePosition = "otm"
)

// OptionContract is a single quoted contract from a chain snapshot.
// Delta is nil when the data source did not supply greeks; such contracts are
// excluded before any strike selection.
type OptionContract struct {
	Strike       float64    `json:"strike"`
	OptionType   OptionType `json:"option_type"`
	Bid          float64    `json:"bid"`
	Ask          float64    `json:"ask"`
	Mark         float64    `json:"mark"`
	Delta        *float64   `json:"delta,omitempty"`
	Volume       int64      `json:"volume"`
	OpenInterest int64      `json:"open_interest"`
}

// ChainSnapshot is one underlying's option chain for a single expiration,
// captured at a point in time. At most one contract per (strike, option_type).
// Snapshots are read-only once built; the analysis core never mutates them.
type ChainSnapshot struct {
	ID              string           `json:"id"`
	Symbol          string           `json:"symbol"`
	Expiration      string           `json:"expiration"` // YYYY-MM-DD
	DTE             int              `json:"dte"`
	UnderlyingPrice float64          `json:"underlying_price"`
	AsOf            time.Time        `json:"as_of"`
	Contracts       []OptionContract `json:"contracts"`
}

// ContractsOfType returns the snapshot's contracts of one option type.
func (s *ChainSnapshot) ContractsOfType(t OptionType) []OptionContract {
	out := make([]OptionContract, 0, len(s.Contracts)/2)
	for _, c := range s.Contracts {
		if c.OptionType == t {
			out = append(out, c)
		}
	}
	return out
}

// IVReading is a single implied-volatility observation for a symbol,
// used to derive IV rank against its stored history.
type IVReading struct {
	Symbol string    `json:"symbol"`
	AsOf   time.Time `json:"as_of"`
	IV     float64   `json:"iv"` // annualized, e.g. 0.22 for 22%
}
