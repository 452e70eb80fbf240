// Package valuation provides deterministic P/L arithmetic for vertical spreads
// and long options, plus risk-based position sizing. All functions are pure:
// they validate their inputs, compute, and return, with no I/O and no shared
// state, so they are safe to call concurrently.
package valuation

import (
	"fmt"
	"math"

	"github.com/AustinnAI/volaris/internal/models"
)

// Multiplier is the standard equity option contract multiplier.
const Multiplier = 100.0

// SpreadInput fully specifies a vertical spread for pricing.
// LongDelta and ShortDelta are optional; when either is nil the win-probability
// proxy is omitted from the result.
type SpreadInput struct {
	LongStrike   float64
	ShortStrike  float64
	LongPremium  float64
	ShortPremium float64
	OptionType   models.OptionType
	Contracts    int
	LongDelta    *float64
	ShortDelta   *float64
}

// SpreadMetrics is the priced result of VerticalSpread.
// NetPremium is signed: positive for debit spreads, negative for credit
// spreads. RiskReward is nil when MaxLoss is zero (never a division by zero).
type SpreadMetrics struct {
	NetPremium   float64
	IsCredit     bool
	WidthPoints  float64
	WidthDollars float64
	Breakeven    float64
	MaxProfit    float64
	MaxLoss      float64
	RiskReward   *float64
	PopProxy     *float64 // 0-100
}

// LongOptionInput fully specifies a single-leg long option for pricing.
type LongOptionInput struct {
	Strike     float64
	Premium    float64
	OptionType models.OptionType
	Contracts  int
	Delta      *float64
}

// LongOptionMetrics is the priced result of LongOption.
// MaxProfit is nil for calls (unbounded upside).
type LongOptionMetrics struct {
	Breakeven  float64
	MaxProfit  *float64
	MaxLoss    float64
	RiskReward *float64
	PopProxy   *float64 // 0-100
}

// PositionSizing is the result of PositionSize. Contracts is zero when a
// single contract's max loss exceeds the risk budget; callers must treat that
// as "cannot afford one contract" rather than rounding up.
type PositionSizing struct {
	Contracts        int
	TotalRiskDollars float64
	RiskPctOfAccount float64
}

// VerticalSpread prices a two-leg vertical: net premium, width, breakeven,
// max profit/loss, risk/reward and a delta-based win-probability proxy.
//
// Debit (net premium > 0): max loss is the premium paid, max profit is
// width minus premium, breakeven moves from the long strike.
// Credit (net premium < 0): max profit is the premium received, max loss is
// width minus premium, breakeven moves from the short strike.
func VerticalSpread(in SpreadInput) (SpreadMetrics, error) {
	if err := in.validate(); err != nil {
		return SpreadMetrics{}, err
	}

	contracts := float64(in.Contracts)
	netPremium := (in.LongPremium - in.ShortPremium) * contracts * Multiplier
	widthPoints := math.Abs(in.LongStrike - in.ShortStrike)
	widthDollars := widthPoints * contracts * Multiplier

	isDebit := netPremium > 0

	var maxProfit, maxLoss float64
	if isDebit {
		maxLoss = netPremium
		maxProfit = widthDollars - netPremium
	} else {
		maxProfit = math.Abs(netPremium)
		maxLoss = widthDollars - math.Abs(netPremium)
	}

	// Per-share premium for the breakeven offset.
	perShare := math.Abs(netPremium) / (contracts * Multiplier)

	var breakeven float64
	switch in.OptionType {
	case models.OptionTypeCall:
		if isDebit {
			breakeven = in.LongStrike + perShare
		} else {
			breakeven = in.ShortStrike + perShare
		}
	case models.OptionTypePut:
		if isDebit {
			breakeven = in.LongStrike - perShare
		} else {
			breakeven = in.ShortStrike - perShare
		}
	}

	m := SpreadMetrics{
		NetPremium:   netPremium,
		IsCredit:     !isDebit,
		WidthPoints:  widthPoints,
		WidthDollars: widthDollars,
		Breakeven:    breakeven,
		MaxProfit:    maxProfit,
		MaxLoss:      maxLoss,
	}

	if maxLoss > 0 {
		rr := maxProfit / maxLoss
		m.RiskReward = &rr
	}

	if in.LongDelta != nil && in.ShortDelta != nil {
		netDelta := math.Abs(*in.LongDelta - *in.ShortDelta)
		var pop float64
		if isDebit {
			pop = netDelta * 100
		} else {
			pop = (1 - netDelta) * 100
		}
		m.PopProxy = &pop
	}

	return m, nil
}

// LongOption prices a single-leg long call or put. Calls have unbounded upside
// so MaxProfit and RiskReward are nil; puts max out with the underlying at
// zero.
func LongOption(in LongOptionInput) (LongOptionMetrics, error) {
	if err := in.validate(); err != nil {
		return LongOptionMetrics{}, err
	}

	contracts := float64(in.Contracts)
	maxLoss := in.Premium * contracts * Multiplier

	m := LongOptionMetrics{MaxLoss: maxLoss}

	switch in.OptionType {
	case models.OptionTypeCall:
		m.Breakeven = in.Strike + in.Premium
	case models.OptionTypePut:
		m.Breakeven = in.Strike - in.Premium
		maxProfit := in.Strike*contracts*Multiplier - maxLoss
		m.MaxProfit = &maxProfit
		if maxLoss > 0 {
			rr := maxProfit / maxLoss
			m.RiskReward = &rr
		}
	}

	if in.Delta != nil {
		pop := math.Abs(*in.Delta) * 100
		m.PopProxy = &pop
	}

	return m, nil
}

// PositionSize converts a per-contract max loss and a risk budget into a
// contract count. The count is floored: zero means one contract already
// exceeds the budget.
func PositionSize(maxLossPerContract, accountSize, riskPercentage float64) (PositionSizing, error) {
	if maxLossPerContract <= 0 {
		return PositionSizing{}, fmt.Errorf("%w: max loss per contract must be > 0, got %.2f",
			models.ErrInvalidInput, maxLossPerContract)
	}
	if accountSize <= 0 {
		return PositionSizing{}, fmt.Errorf("%w: account size must be > 0, got %.2f",
			models.ErrInvalidInput, accountSize)
	}
	if riskPercentage <= 0 || riskPercentage > 100 {
		return PositionSizing{}, fmt.Errorf("%w: risk percentage must be in (0,100], got %.2f",
			models.ErrInvalidInput, riskPercentage)
	}

	maxRiskDollars := accountSize * (riskPercentage / 100)
	contracts := int(math.Floor(maxRiskDollars / maxLossPerContract))
	if contracts < 0 {
		contracts = 0
	}

	total := float64(contracts) * maxLossPerContract
	return PositionSizing{
		Contracts:        contracts,
		TotalRiskDollars: total,
		RiskPctOfAccount: total / accountSize * 100,
	}, nil
}

func (in SpreadInput) validate() error {
	if in.LongStrike <= 0 || in.ShortStrike <= 0 {
		return fmt.Errorf("%w: strikes must be > 0 (long %.2f, short %.2f)",
			models.ErrInvalidInput, in.LongStrike, in.ShortStrike)
	}
	if in.LongStrike == in.ShortStrike {
		return fmt.Errorf("%w: long and short strikes must differ (both %.2f)",
			models.ErrInvalidInput, in.LongStrike)
	}
	if in.LongPremium <= 0 || in.ShortPremium <= 0 {
		return fmt.Errorf("%w: premiums must be > 0 (long %.4f, short %.4f)",
			models.ErrInvalidInput, in.LongPremium, in.ShortPremium)
	}
	if in.Contracts <= 0 {
		return fmt.Errorf("%w: contracts must be > 0, got %d", models.ErrInvalidInput, in.Contracts)
	}
	if in.OptionType != models.OptionTypeCall && in.OptionType != models.OptionTypePut {
		return fmt.Errorf("%w: option_type %q", models.ErrInvalidInput, in.OptionType)
	}
	return nil
}

func (in LongOptionInput) validate() error {
	if in.Strike <= 0 {
		return fmt.Errorf("%w: strike must be > 0, got %.2f", models.ErrInvalidInput, in.Strike)
	}
	if in.Premium <= 0 {
		return fmt.Errorf("%w: premium must be > 0, got %.4f", models.ErrInvalidInput, in.Premium)
	}
	if in.Contracts <= 0 {
		return fmt.Errorf("%w: contracts must be > 0, got %d", models.ErrInvalidInput, in.Contracts)
	}
	if in.OptionType != models.OptionTypeCall && in.OptionType != models.OptionTypePut {
		return fmt.Errorf("%w: option_type %q", models.ErrInvalidInput, in.OptionType)
	}
	return nil
}
