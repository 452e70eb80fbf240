// Package recommend orchestrates the analysis pipeline: classify the IV
// regime, select a strategy family for the caller's bias, generate priced
// candidates, filter them against objectives, score, rank, size, and attach
// reasoning. Everything here is pure over its inputs; data access happens in
// the caller.
package recommend

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/AustinnAI/volaris/internal/chains"
	"github.com/AustinnAI/volaris/internal/models"
	"github.com/AustinnAI/volaris/internal/valuation"
)

// Objectives carries the caller's risk goals. All fields are optional; nil
// means "no preference". PreferCredit is tri-state on purpose: nil follows
// the regime table, true forces credit spreads, false forces debit/long.
type Objectives struct {
	MaxRiskPerTrade *float64
	MinPopPct       *float64
	MinRiskReward   *float64
	PreferCredit    *bool
	AccountSize     *float64
	RiskPercentage  *float64
}

// Constraints carries per-request overrides of the strike-selection filters.
type Constraints struct {
	MinCreditPct     *float64
	MaxSpreadWidth   *int
	IVRegimeOverride *models.IVRegime
	MinOpenInterest  *int64
	MinVolume        *int64
	MinMarkPrice     *float64
}

// ScoringWeights are the point budgets of the composite score. They sum to
// 100 with the defaults.
type ScoringWeights struct {
	Pop       float64
	RR        float64
	Credit    float64
	Liquidity float64
	Position  float64
}

// Config is the immutable knob set threaded through every recommendation
// call. No global state: tests construct their own.
type Config struct {
	IVHighThreshold float64
	IVLowThreshold  float64
	Strike          chains.Params
	Weights         ScoringWeights
	DefaultRiskPct  float64
	MaxRanked       int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		IVHighThreshold: 50,
		IVLowThreshold:  25,
		Strike:          chains.DefaultParams(),
		Weights: ScoringWeights{
			Pop:       30,
			RR:        30,
			Credit:    25,
			Liquidity: 10,
			Position:  5,
		},
		DefaultRiskPct: 2.0,
		MaxRanked:      3,
	}
}

// Request is the transport-agnostic recommendation request.
type Request struct {
	Symbol      string
	Bias        models.Bias
	DTE         int
	IVRank      *float64
	Objectives  Objectives
	Constraints Constraints
}

// Recommendation is one ranked, scored, sized candidate. Spread and
// single-leg fields are pointers because only one group applies.
type Recommendation struct {
	Rank           int                   `json:"rank"`
	StrategyFamily models.StrategyFamily `json:"strategy_family"`
	OptionType     models.OptionType     `json:"option_type"`
	Position       models.StrikePosition `json:"position"`

	// Single-leg fields.
	Strike  *float64 `json:"strike,omitempty"`
	Premium *float64 `json:"premium,omitempty"`
	Delta   *float64 `json:"delta,omitempty"`

	// Spread fields.
	LongStrike   *float64 `json:"long_strike,omitempty"`
	ShortStrike  *float64 `json:"short_strike,omitempty"`
	LongPremium  *float64 `json:"long_premium,omitempty"`
	ShortPremium *float64 `json:"short_premium,omitempty"`
	NetPremium   *float64 `json:"net_premium,omitempty"`
	IsCredit     *bool    `json:"is_credit,omitempty"`
	WidthPoints  *float64 `json:"width_points,omitempty"`
	WidthDollars *float64 `json:"width_dollars,omitempty"`
	LongDelta    *float64 `json:"long_delta,omitempty"`
	ShortDelta   *float64 `json:"short_delta,omitempty"`

	// Risk metrics, common to both shapes.
	Breakeven       float64  `json:"breakeven"`
	MaxProfit       *float64 `json:"max_profit,omitempty"`
	MaxLoss         float64  `json:"max_loss"`
	RiskReward      *float64 `json:"risk_reward_ratio,omitempty"`
	PopProxy        *float64 `json:"pop_proxy,omitempty"`
	AvgOpenInterest int64    `json:"avg_open_interest"`
	AvgVolume       int64    `json:"avg_volume"`

	// Sizing, set only when the request carried an account size.
	RecommendedContracts *int     `json:"recommended_contracts,omitempty"`
	PositionSizeDollars  *float64 `json:"position_size_dollars,omitempty"`

	CompositeScore float64  `json:"composite_score"`
	Reasons        []string `json:"reasons"`
}

// ConfigUsed echoes the thresholds a result was computed with, so callers can
// audit what produced a given ranking.
type ConfigUsed struct {
	IVHighThreshold float64        `json:"iv_high_threshold"`
	IVLowThreshold  float64        `json:"iv_low_threshold"`
	MinCreditPct    float64        `json:"min_credit_pct"`
	SpreadWidth     int            `json:"spread_width"`
	Weights         ScoringWeights `json:"scoring_weights"`
}

// Result is the complete recommendation response.
type Result struct {
	Symbol          string                `json:"underlying_symbol"`
	UnderlyingPrice float64               `json:"underlying_price"`
	ChosenFamily    models.StrategyFamily `json:"chosen_strategy_family"`
	IVRank          *float64              `json:"iv_rank,omitempty"`
	IVRegime        models.IVRegime       `json:"iv_regime"`
	DTE             int                   `json:"dte"`
	DataTimestamp   time.Time             `json:"data_timestamp"`
	Recommendations []Recommendation      `json:"recommendations"`
	ConfigUsed      ConfigUsed            `json:"config_used"`
	Warnings        []string              `json:"warnings"`
}

// ClassifyRegime maps an IV rank onto a regime. A nil rank is a data gap, not
// an error: the pipeline assumes neutral and warns.
func ClassifyRegime(ivRank *float64, cfg Config) models.IVRegime {
	if ivRank == nil {
		return models.RegimeNeutral
	}
	switch {
	case *ivRank > cfg.IVHighThreshold:
		return models.RegimeHigh
	case *ivRank < cfg.IVLowThreshold:
		return models.RegimeLow
	default:
		return models.RegimeNeutral
	}
}

// SelectFamily picks the strategy family and option type for a bias and
// regime. An explicit PreferCredit overrides the regime table entirely, in
// both directions. Returns the selection rationale alongside.
func SelectFamily(regime models.IVRegime, bias models.Bias, preferCredit *bool) (models.StrategyFamily, models.OptionType, string) {
	if preferCredit != nil {
		if *preferCredit {
			switch bias {
			case models.BiasBullish:
				return models.FamilyVerticalCredit, models.OptionTypePut, "Explicit preference for credit spreads (bull put)"
			case models.BiasBearish:
				return models.FamilyVerticalCredit, models.OptionTypeCall, "Explicit preference for credit spreads (bear call)"
			default:
				return models.FamilyVerticalCredit, models.OptionTypeCall, "Explicit preference for credit spreads"
			}
		}
		switch bias {
		case models.BiasBullish:
			return models.FamilyVerticalDebit, models.OptionTypeCall, "Explicit preference for debit spreads (bull call)"
		case models.BiasBearish:
			return models.FamilyVerticalDebit, models.OptionTypePut, "Explicit preference for debit spreads (bear put)"
		default:
			return models.FamilyVerticalDebit, models.OptionTypeCall, "Explicit preference for debit spreads"
		}
	}

	switch regime {
	case models.RegimeHigh:
		switch bias {
		case models.BiasBullish:
			return models.FamilyVerticalCredit, models.OptionTypePut, "High IV regime favors selling premium - bull put credit spread"
		case models.BiasBearish:
			return models.FamilyVerticalCredit, models.OptionTypeCall, "High IV regime favors selling premium - bear call credit spread"
		default:
			return models.FamilyVerticalCredit, models.OptionTypeCall, "High IV regime favors selling premium - credit spread"
		}
	case models.RegimeLow:
		switch bias {
		case models.BiasBullish:
			return models.FamilyLongCall, models.OptionTypeCall, "Low IV regime favors buying cheap premium - long call"
		case models.BiasBearish:
			return models.FamilyLongPut, models.OptionTypePut, "Low IV regime favors buying cheap premium - long put"
		default:
			return models.FamilyVerticalDebit, models.OptionTypeCall, "Low IV with neutral bias - defined risk debit spread"
		}
	default:
		switch bias {
		case models.BiasBullish:
			return models.FamilyVerticalDebit, models.OptionTypeCall, "Neutral IV regime - balanced bull call debit spread"
		case models.BiasBearish:
			return models.FamilyVerticalDebit, models.OptionTypePut, "Neutral IV regime - balanced bear put debit spread"
		default:
			return models.FamilyVerticalDebit, models.OptionTypeCall, "Neutral IV and bias - balanced vertical debit spread"
		}
	}
}

// Recommend runs the full pipeline over one chain snapshot. A nil or empty
// snapshot, and a chain where every candidate is filtered out, both produce a
// valid result with an empty ranked list and a warning. Only a malformed
// request is an error.
func Recommend(snapshot *models.ChainSnapshot, req Request, cfg Config) (*Result, error) {
	if req.DTE <= 0 {
		return nil, fmt.Errorf("%w: target_dte must be positive, got %d", models.ErrInvalidInput, req.DTE)
	}
	switch req.Bias {
	case models.BiasBullish, models.BiasBearish, models.BiasNeutral:
	default:
		return nil, fmt.Errorf("%w: unknown bias %q", models.ErrInvalidInput, req.Bias)
	}

	var warnings []string

	var regime models.IVRegime
	if req.Constraints.IVRegimeOverride != nil {
		regime = *req.Constraints.IVRegimeOverride
		warnings = append(warnings, fmt.Sprintf("Using overridden IV regime: %s", regime))
	} else {
		regime = ClassifyRegime(req.IVRank, cfg)
		if req.IVRank == nil {
			warnings = append(warnings, "IV rank unavailable; assuming neutral regime")
		}
	}

	family, optionType, familyReason := SelectFamily(regime, req.Bias, req.Objectives.PreferCredit)

	params := strikeParams(cfg.Strike, req.Constraints)

	result := &Result{
		Symbol:       req.Symbol,
		ChosenFamily: family,
		IVRank:       req.IVRank,
		IVRegime:     regime,
		DTE:          req.DTE,
	}

	if snapshot == nil || len(snapshot.Contracts) == 0 {
		warnings = append(warnings, "no option chain data available")
		warnings = append(warnings, rejectionWarning(0))
		result.Warnings = warnings
		result.ConfigUsed = configUsed(cfg, params, 0)
		result.Recommendations = []Recommendation{}
		result.DataTimestamp = time.Now().UTC()
		return result, nil
	}

	result.UnderlyingPrice = snapshot.UnderlyingPrice
	result.DataTimestamp = snapshot.AsOf

	targetWidth := chains.TargetWidth(snapshot.UnderlyingPrice, params)

	raw, err := buildCandidates(snapshot, family, optionType, targetWidth, params)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		warnings = append(warnings, fmt.Sprintf("no width-compliant candidates for %s", family))
	}

	survivors, rejected := filterByObjectives(raw, req.Objectives)
	warnings = append(warnings, rejectionWarning(rejected))

	for i := range survivors {
		survivors[i].CompositeScore = compositeScore(survivors[i], family, cfg.Weights)
		survivors[i].Reasons = buildReasons(survivors[i], family, familyReason)
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].CompositeScore > survivors[j].CompositeScore
	})
	if len(survivors) > cfg.MaxRanked {
		survivors = survivors[:cfg.MaxRanked]
	}
	for i := range survivors {
		survivors[i].Rank = i + 1
	}

	sizePositions(survivors, req.Objectives, cfg)

	if len(survivors) == 0 && len(raw) > 0 {
		warnings = append(warnings, fmt.Sprintf("no candidates met constraints for %s", family))
	}

	result.Recommendations = survivors
	result.ConfigUsed = configUsed(cfg, params, targetWidth)
	result.Warnings = warnings
	return result, nil
}

// strikeParams overlays per-request constraint overrides on the configured
// strike-selection defaults.
func strikeParams(base chains.Params, c Constraints) chains.Params {
	p := base
	if c.MinCreditPct != nil {
		p.MinCreditPct = *c.MinCreditPct
	}
	if c.MaxSpreadWidth != nil {
		p.MaxSpreadWidth = c.MaxSpreadWidth
	}
	if c.MinOpenInterest != nil {
		p.MinOpenInterest = *c.MinOpenInterest
	}
	if c.MinVolume != nil {
		p.MinVolume = *c.MinVolume
	}
	if c.MinMarkPrice != nil {
		p.MinMarkPrice = *c.MinMarkPrice
	}
	return p
}

func buildCandidates(
	snapshot *models.ChainSnapshot,
	family models.StrategyFamily,
	optionType models.OptionType,
	targetWidth int,
	params chains.Params,
) ([]Recommendation, error) {
	if family.IsSpread() {
		spreads, err := chains.SpreadCandidates(snapshot, family, optionType, targetWidth, params)
		if err != nil {
			return nil, err
		}
		out := make([]Recommendation, 0, len(spreads))
		for _, s := range spreads {
			out = append(out, fromSpread(s, family))
		}
		return out, nil
	}

	longs, err := chains.LongOptionCandidates(snapshot, optionType, params)
	if err != nil {
		return nil, err
	}
	out := make([]Recommendation, 0, len(longs))
	for _, l := range longs {
		out = append(out, fromLongOption(l, family))
	}
	return out, nil
}

func fromSpread(s chains.SpreadCandidate, family models.StrategyFamily) Recommendation {
	return Recommendation{
		StrategyFamily:  family,
		OptionType:      s.OptionType,
		Position:        s.Position,
		LongStrike:      ptr(s.LongStrike),
		ShortStrike:     ptr(s.ShortStrike),
		LongPremium:     ptr(s.LongPremium),
		ShortPremium:    ptr(s.ShortPremium),
		NetPremium:      ptr(s.NetPremium),
		IsCredit:        ptr(s.IsCredit),
		WidthPoints:     ptr(s.WidthPoints),
		WidthDollars:    ptr(s.WidthDollars),
		LongDelta:       s.LongDelta,
		ShortDelta:      s.ShortDelta,
		Breakeven:       s.Breakeven,
		MaxProfit:       ptr(s.MaxProfit),
		MaxLoss:         s.MaxLoss,
		RiskReward:      s.RiskReward,
		PopProxy:        s.PopProxy,
		AvgOpenInterest: s.AvgOpenInterest,
		AvgVolume:       s.AvgVolume,
	}
}

func fromLongOption(l chains.LongOptionCandidate, family models.StrategyFamily) Recommendation {
	return Recommendation{
		StrategyFamily:  family,
		OptionType:      l.OptionType,
		Position:        l.Position,
		Strike:          ptr(l.Strike),
		Premium:         ptr(l.Premium),
		Delta:           l.Delta,
		Breakeven:       l.Breakeven,
		MaxProfit:       l.MaxProfit,
		MaxLoss:         l.MaxLoss,
		RiskReward:      l.RiskReward,
		PopProxy:        l.PopProxy,
		AvgOpenInterest: l.OpenInterest,
		AvgVolume:       l.Volume,
	}
}

// filterByObjectives drops candidates that violate the caller's risk
// objectives. A nil risk/reward ratio never fails the minimum R:R check:
// unbounded-upside long calls have no ratio to compare.
func filterByObjectives(candidates []Recommendation, o Objectives) (survivors []Recommendation, rejected int) {
	for _, c := range candidates {
		if o.MaxRiskPerTrade != nil && c.MaxLoss > *o.MaxRiskPerTrade {
			rejected++
			continue
		}
		if o.MinPopPct != nil && c.PopProxy != nil && *c.PopProxy < *o.MinPopPct {
			rejected++
			continue
		}
		if o.MinRiskReward != nil && c.RiskReward != nil && *c.RiskReward < *o.MinRiskReward {
			rejected++
			continue
		}
		survivors = append(survivors, c)
	}
	return survivors, rejected
}

// sizePositions fills contract counts when the request carried an account
// size. Zero contracts means the account cannot afford one contract at the
// configured risk; that is reported as-is, never rounded up.
func sizePositions(recs []Recommendation, o Objectives, cfg Config) {
	if o.AccountSize == nil {
		return
	}
	riskPct := cfg.DefaultRiskPct
	if o.RiskPercentage != nil {
		riskPct = *o.RiskPercentage
	}

	for i := range recs {
		sizing, err := valuation.PositionSize(recs[i].MaxLoss, *o.AccountSize, riskPct)
		if err != nil {
			continue
		}
		recs[i].RecommendedContracts = ptr(sizing.Contracts)
		recs[i].PositionSizeDollars = ptr(sizing.TotalRiskDollars)
	}
}

func rejectionWarning(n int) string {
	return fmt.Sprintf("%d candidate(s) rejected by objective constraints", n)
}

func configUsed(cfg Config, params chains.Params, spreadWidth int) ConfigUsed {
	return ConfigUsed{
		IVHighThreshold: cfg.IVHighThreshold,
		IVLowThreshold:  cfg.IVLowThreshold,
		MinCreditPct:    params.MinCreditPct,
		SpreadWidth:     spreadWidth,
		Weights:         cfg.Weights,
	}
}

func ptr[T any](v T) *T { return &v }

// creditPctOf returns |net premium| as a percentage of spread width, or 0
// when the candidate has no spread fields.
func creditPctOf(r Recommendation) float64 {
	if r.NetPremium == nil || r.WidthDollars == nil || *r.WidthDollars <= 0 {
		return 0
	}
	return math.Abs(*r.NetPremium) / *r.WidthDollars * 100
}
