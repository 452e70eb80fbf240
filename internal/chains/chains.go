// Package chains turns an option-chain snapshot into priced spread and long
// option candidates for one requested strategy shape. It selects anchor and
// far-leg strikes per ITM/ATM/OTM class, enforces liquidity and width
// tolerance, and delegates all P/L arithmetic to the valuation package.
package chains

import (
	"fmt"
	"math"
	"sort"

	"github.com/AustinnAI/volaris/internal/models"
	"github.com/AustinnAI/volaris/internal/valuation"
)

// Params carries the strike-selection thresholds threaded in from config.
// The zero value is not usable; construct via DefaultParams or config.
type Params struct {
	ATMBandPct        float64 // ATM label when |strike-price|/price*100 <= band; anchors ignore it
	WidthLowPrice     int     // width for underlyings under $100
	WidthMidPrice     int     // width for underlyings $100-$300
	WidthHighPrice    int     // width for underlyings over $300
	WidthTolerancePct float64 // acceptable deviation from target width, e.g. 0.20
	MinOpenInterest   int64
	MinVolume         int64
	MinMarkPrice      float64
	MinCreditPct      float64 // credit floor as % of width, e.g. 25
	MaxSpreadWidth    *int    // optional cap from the request
}

// DefaultParams returns the strike-selection defaults.
func DefaultParams() Params {
	return Params{
		ATMBandPct:        2.0,
		WidthLowPrice:     5,
		WidthMidPrice:     5,
		WidthHighPrice:    5,
		WidthTolerancePct: 0.20,
		MinOpenInterest:   10,
		MinVolume:         5,
		MinMarkPrice:      0.01,
		MinCreditPct:      25,
	}
}

// LegRole identifies which side of a spread a leg sits on.
type LegRole string

const (
	// RoleLong is a bought leg
	RoleLong LegRole = "long"
	// RoleShort is a sold leg
	RoleShort LegRole = "short"
)

// SpreadCandidate is a fully priced two-leg vertical for one position class.
type SpreadCandidate struct {
	Position        models.StrikePosition
	OptionType      models.OptionType
	LongStrike      float64
	ShortStrike     float64
	LongPremium     float64
	ShortPremium    float64
	NetPremium      float64
	IsCredit        bool
	WidthPoints     float64
	WidthDollars    float64
	Breakeven       float64
	MaxProfit       float64
	MaxLoss         float64
	RiskReward      *float64
	PopProxy        *float64
	LongDelta       *float64
	ShortDelta      *float64
	AvgOpenInterest int64
	AvgVolume       int64
}

// LongOptionCandidate is a priced single-leg long option for one position class.
type LongOptionCandidate struct {
	Position     models.StrikePosition
	OptionType   models.OptionType
	Strike       float64
	Premium      float64
	Breakeven    float64
	MaxProfit    *float64
	MaxLoss      float64
	RiskReward   *float64
	PopProxy     *float64
	Delta        *float64
	OpenInterest int64
	Volume       int64
}

// Orientation maps a strategy family to its leg roles: (nearRole, farRole).
// Debit spreads buy the near-money strike and sell the far one; credit spreads
// sell the near-money strike and buy the far one. This is an explicit branch
// on the family: orientation must never be inferred from premium comparison,
// because a mis-oriented credit spread silently becomes a debit spread that
// collects no credit.
func Orientation(family models.StrategyFamily) (nearRole, farRole LegRole, err error) {
	switch family {
	case models.FamilyVerticalDebit:
		return RoleLong, RoleShort, nil
	case models.FamilyVerticalCredit:
		return RoleShort, RoleLong, nil
	default:
		return "", "", fmt.Errorf("%w: %q is not a spread family", models.ErrInvalidInput, family)
	}
}

// ClassifyStrike places a strike relative to the underlying price. Strikes
// within the ATM band are ATM regardless of side; outside the band the side
// and option type decide ITM vs OTM.
func ClassifyStrike(strike, underlyingPrice float64, optionType models.OptionType, atmBandPct float64) models.StrikePosition {
	pctDiff := math.Abs(strike-underlyingPrice) / underlyingPrice * 100
	if pctDiff <= atmBandPct {
		return models.PositionATM
	}
	if optionType == models.OptionTypeCall {
		if strike < underlyingPrice {
			return models.PositionITM
		}
		return models.PositionOTM
	}
	if strike > underlyingPrice {
		return models.PositionITM
	}
	return models.PositionOTM
}

// TargetWidth picks the spread width for an underlying price, price-tiered,
// optionally capped by the request's max width.
func TargetWidth(underlyingPrice float64, p Params) int {
	var width int
	switch {
	case underlyingPrice < 100:
		width = p.WidthLowPrice
	case underlyingPrice < 300:
		width = p.WidthMidPrice
	default:
		width = p.WidthHighPrice
	}
	if p.MaxSpreadWidth != nil && *p.MaxSpreadWidth < width {
		width = *p.MaxSpreadWidth
	}
	return width
}

// Tradeable reports whether a contract passes the liquidity filter: a usable
// mark, a known delta, and minimum open interest and volume.
func Tradeable(c models.OptionContract, p Params) bool {
	if c.Mark < p.MinMarkPrice || c.Delta == nil {
		return false
	}
	return c.OpenInterest >= p.MinOpenInterest && c.Volume >= p.MinVolume
}

// SpreadCandidates builds up to one priced vertical per position class from
// the snapshot. Candidates that miss the width tolerance, fail liquidity on
// either leg, or (for credit spreads) collect less than the minimum credit are
// dropped, not returned with warnings.
func SpreadCandidates(
	snapshot *models.ChainSnapshot,
	family models.StrategyFamily,
	optionType models.OptionType,
	targetWidth int,
	p Params,
) ([]SpreadCandidate, error) {
	nearRole, _, err := Orientation(family)
	if err != nil {
		return nil, err
	}

	eligible := tradeableOfType(snapshot, optionType, p)
	if len(eligible) == 0 {
		return nil, nil
	}

	var out []SpreadCandidate
	for _, position := range []models.StrikePosition{models.PositionITM, models.PositionATM, models.PositionOTM} {
		anchor, ok := nearestInClass(eligible, snapshot.UnderlyingPrice, optionType, position)
		if !ok {
			continue
		}

		// The far leg always sits further out of the money: above the anchor
		// for calls, below it for puts.
		farTarget := anchor.Strike + float64(targetWidth)
		if optionType == models.OptionTypePut {
			farTarget = anchor.Strike - float64(targetWidth)
		}

		far, ok := nearestToStrike(eligible, farTarget, anchor.Strike)
		if !ok {
			continue
		}

		actualWidth := math.Abs(far.Strike - anchor.Strike)
		if math.Abs(actualWidth-float64(targetWidth)) > float64(targetWidth)*p.WidthTolerancePct {
			// Sparse strike ladder: nothing close enough to the target width.
			continue
		}

		longLeg, shortLeg := anchor, far
		if nearRole == RoleShort {
			longLeg, shortLeg = far, anchor
		}

		m, err := valuation.VerticalSpread(valuation.SpreadInput{
			LongStrike:   longLeg.Strike,
			ShortStrike:  shortLeg.Strike,
			LongPremium:  longLeg.Mark,
			ShortPremium: shortLeg.Mark,
			OptionType:   optionType,
			Contracts:    1,
			LongDelta:    longLeg.Delta,
			ShortDelta:   shortLeg.Delta,
		})
		if err != nil {
			return nil, fmt.Errorf("pricing %s spread at %s: %w", family, position, err)
		}

		if family.IsCredit() {
			creditPct := math.Abs(m.NetPremium) / m.WidthDollars * 100
			if creditPct < p.MinCreditPct {
				continue
			}
		}

		out = append(out, SpreadCandidate{
			Position:        position,
			OptionType:      optionType,
			LongStrike:      longLeg.Strike,
			ShortStrike:     shortLeg.Strike,
			LongPremium:     longLeg.Mark,
			ShortPremium:    shortLeg.Mark,
			NetPremium:      m.NetPremium,
			IsCredit:        m.IsCredit,
			WidthPoints:     m.WidthPoints,
			WidthDollars:    m.WidthDollars,
			Breakeven:       m.Breakeven,
			MaxProfit:       m.MaxProfit,
			MaxLoss:         m.MaxLoss,
			RiskReward:      m.RiskReward,
			PopProxy:        m.PopProxy,
			LongDelta:       longLeg.Delta,
			ShortDelta:      shortLeg.Delta,
			AvgOpenInterest: (longLeg.OpenInterest + shortLeg.OpenInterest) / 2,
			AvgVolume:       (longLeg.Volume + shortLeg.Volume) / 2,
		})
	}

	return out, nil
}

// LongOptionCandidates builds up to one priced long option per position class.
func LongOptionCandidates(
	snapshot *models.ChainSnapshot,
	optionType models.OptionType,
	p Params,
) ([]LongOptionCandidate, error) {
	eligible := tradeableOfType(snapshot, optionType, p)
	if len(eligible) == 0 {
		return nil, nil
	}

	var out []LongOptionCandidate
	for _, position := range []models.StrikePosition{models.PositionITM, models.PositionATM, models.PositionOTM} {
		c, ok := nearestInClass(eligible, snapshot.UnderlyingPrice, optionType, position)
		if !ok {
			continue
		}

		m, err := valuation.LongOption(valuation.LongOptionInput{
			Strike:     c.Strike,
			Premium:    c.Mark,
			OptionType: optionType,
			Contracts:  1,
			Delta:      c.Delta,
		})
		if err != nil {
			return nil, fmt.Errorf("pricing long %s at %s: %w", optionType, position, err)
		}

		out = append(out, LongOptionCandidate{
			Position:     position,
			OptionType:   optionType,
			Strike:       c.Strike,
			Premium:      c.Mark,
			Breakeven:    m.Breakeven,
			MaxProfit:    m.MaxProfit,
			MaxLoss:      m.MaxLoss,
			RiskReward:   m.RiskReward,
			PopProxy:     m.PopProxy,
			Delta:        c.Delta,
			OpenInterest: c.OpenInterest,
			Volume:       c.Volume,
		})
	}

	return out, nil
}

// tradeableOfType filters the snapshot to liquidity-passing contracts of one
// option type, sorted by strike.
func tradeableOfType(snapshot *models.ChainSnapshot, optionType models.OptionType, p Params) []models.OptionContract {
	out := make([]models.OptionContract, 0, len(snapshot.Contracts)/2)
	for _, c := range snapshot.Contracts {
		if c.OptionType == optionType && Tradeable(c, p) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strike < out[j].Strike })
	return out
}

// nearestInClass finds the anchor contract for a position class. The ATM
// anchor is the strike closest to spot; ITM and OTM anchors are the nearest
// strikes strictly on their side of spot for the option type. The ATM band is
// a labelling convention only and never excludes a strike from anchoring an
// ITM or OTM spread.
func nearestInClass(
	contracts []models.OptionContract,
	underlyingPrice float64,
	optionType models.OptionType,
	position models.StrikePosition,
) (models.OptionContract, bool) {
	// ITM calls and OTM puts sit below spot; the mirror classes sit above.
	wantBelow := (optionType == models.OptionTypeCall) == (position == models.PositionITM)

	var best models.OptionContract
	bestDist := math.MaxFloat64
	found := false

	for _, c := range contracts {
		if position != models.PositionATM {
			if wantBelow && c.Strike >= underlyingPrice {
				continue
			}
			if !wantBelow && c.Strike <= underlyingPrice {
				continue
			}
		}
		if d := math.Abs(c.Strike - underlyingPrice); d < bestDist {
			best, bestDist, found = c, d, true
		}
	}
	return best, found
}

// nearestToStrike finds the contract closest to the target strike, excluding
// the anchor strike itself.
func nearestToStrike(contracts []models.OptionContract, target, exclude float64) (models.OptionContract, bool) {
	var best models.OptionContract
	bestDist := math.MaxFloat64
	found := false

	for _, c := range contracts {
		if c.Strike == exclude {
			continue
		}
		if d := math.Abs(c.Strike - target); d < bestDist {
			best, bestDist, found = c, d, true
		}
	}
	return best, found
}
