// Package mock generates synthetic option-chain snapshots for tests and for
// paper-mode experimentation. Chains are deterministic: the same inputs always
// produce the same strikes, marks and deltas, so assertions stay stable.
package mock

import (
	"math"
	"time"

	"github.com/AustinnAI/volaris/internal/models"
)

// ChainParams controls the synthetic ladder.
type ChainParams struct {
	Symbol       string
	Spot         float64
	DTE          int
	LowStrike    float64
	HighStrike   float64
	StrikeStep   float64
	Volume       int64 // per contract
	OpenInterest int64 // per contract
	AsOf         time.Time
}

// LiquidChain builds a snapshot with a uniformly spaced, uniformly liquid
// strike ladder. Deltas decay exponentially with distance from spot and marks
// carry intrinsic plus a distance-decayed time value, which keeps debit
// spreads net-positive and credit spreads net-negative the way real chains do.
func LiquidChain(p ChainParams) *models.ChainSnapshot {
	if p.StrikeStep <= 0 {
		p.StrikeStep = 5
	}
	if p.Volume == 0 {
		p.Volume = 500
	}
	if p.OpenInterest == 0 {
		p.OpenInterest = 1000
	}
	if p.AsOf.IsZero() {
		p.AsOf = time.Date(2025, 6, 2, 15, 30, 0, 0, time.UTC)
	}

	timeValueATM := p.Spot * 0.015 * math.Sqrt(math.Max(float64(p.DTE), 1)/30.0)

	var contracts []models.OptionContract
	for strike := p.LowStrike; strike <= p.HighStrike+1e-9; strike += p.StrikeStep {
		distance := math.Abs(strike - p.Spot)
		decay := math.Exp(-distance / (p.Spot * 0.025))

		callDelta := 0.5 * decay
		if strike < p.Spot {
			callDelta = 1 - 0.5*decay
		}
		putDelta := callDelta - 1 // put-call delta parity

		timeValue := math.Max(0.10, timeValueATM*decay)

		callIntrinsic := math.Max(0, p.Spot-strike)
		putIntrinsic := math.Max(0, strike-p.Spot)

		callMark := round2(callIntrinsic + timeValue)
		putMark := round2(putIntrinsic + timeValue)

		contracts = append(contracts,
			contract(strike, models.OptionTypeCall, callMark, callDelta, p),
			contract(strike, models.OptionTypePut, putMark, putDelta, p),
		)
	}

	return &models.ChainSnapshot{
		Symbol:          p.Symbol,
		Expiration:      p.AsOf.AddDate(0, 0, p.DTE).Format("2006-01-02"),
		DTE:             p.DTE,
		UnderlyingPrice: p.Spot,
		AsOf:            p.AsOf,
		Contracts:       contracts,
	}
}

func contract(strike float64, t models.OptionType, mark, delta float64, p ChainParams) models.OptionContract {
	d := delta
	return models.OptionContract{
		Strike:       strike,
		OptionType:   t,
		Bid:          round2(mark - 0.05),
		Ask:          round2(mark + 0.05),
		Mark:         mark,
		Delta:        &d,
		Volume:       p.Volume,
		OpenInterest: p.OpenInterest,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
