package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/AustinnAI/volaris/internal/models"
	"github.com/AustinnAI/volaris/internal/recommend"
	"github.com/AustinnAI/volaris/internal/valuation"
)

// errorResponse is the uniform error payload.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeDomainError maps the error taxonomy onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, models.ErrNoData):
		s.writeError(w, http.StatusNotFound, err)
	default:
		s.logger.WithError(err).Error("Request failed")
		s.writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("malformed request body: %w", err))
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// --- strategy recommendation ---

type objectivesRequest struct {
	MaxRiskPerTrade *float64 `json:"max_risk_per_trade,omitempty"`
	MinPopPct       *float64 `json:"min_pop_pct,omitempty"`
	MinRiskReward   *float64 `json:"min_risk_reward,omitempty"`
	PreferCredit    *bool    `json:"prefer_credit,omitempty"`
	AccountSize     *float64 `json:"account_size,omitempty"`
	RiskPercentage  *float64 `json:"risk_percentage,omitempty"`
}

type constraintsRequest struct {
	MinCreditPct     *float64 `json:"min_credit_pct,omitempty"`
	MaxSpreadWidth   *int     `json:"max_spread_width,omitempty"`
	IVRegimeOverride *string  `json:"iv_regime_override,omitempty"`
	MinOpenInterest  *int64   `json:"min_open_interest,omitempty"`
	MinVolume        *int64   `json:"min_volume,omitempty"`
	MinMarkPrice     *float64 `json:"min_mark_price,omitempty"`
}

type recommendRequest struct {
	UnderlyingSymbol string              `json:"underlying_symbol"`
	Bias             string              `json:"bias"`
	TargetDTE        int                 `json:"target_dte"`
	DTETolerance     *int                `json:"dte_tolerance,omitempty"`
	Objectives       *objectivesRequest  `json:"objectives,omitempty"`
	Constraints      *constraintsRequest `json:"constraints,omitempty"`
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var body recommendRequest
	if !s.decode(w, r, &body) {
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(body.UnderlyingSymbol))
	if symbol == "" {
		s.writeError(w, http.StatusBadRequest,
			fmt.Errorf("%w: underlying_symbol is required", models.ErrInvalidInput))
		return
	}
	bias, err := models.ParseBias(body.Bias)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	req := recommend.Request{
		Symbol: symbol,
		Bias:   bias,
		DTE:    body.TargetDTE,
	}
	if o := body.Objectives; o != nil {
		req.Objectives = recommend.Objectives{
			MaxRiskPerTrade: o.MaxRiskPerTrade,
			MinPopPct:       o.MinPopPct,
			MinRiskReward:   o.MinRiskReward,
			PreferCredit:    o.PreferCredit,
			AccountSize:     o.AccountSize,
			RiskPercentage:  o.RiskPercentage,
		}
	}
	if c := body.Constraints; c != nil {
		req.Constraints = recommend.Constraints{
			MinCreditPct:    c.MinCreditPct,
			MaxSpreadWidth:  c.MaxSpreadWidth,
			MinOpenInterest: c.MinOpenInterest,
			MinVolume:       c.MinVolume,
			MinMarkPrice:    c.MinMarkPrice,
		}
		if c.IVRegimeOverride != nil {
			regime, err := models.ParseIVRegime(*c.IVRegimeOverride)
			if err != nil {
				s.writeDomainError(w, err)
				return
			}
			req.Constraints.IVRegimeOverride = &regime
		}
	}

	result, err := s.service.Recommend(r.Context(), req, body.DTETolerance)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// --- trade planner ---

type legResponse struct {
	Strike     float64 `json:"strike"`
	Premium    float64 `json:"premium"`
	OptionType string  `json:"option_type"`
	Position   string  `json:"position"` // long | short
	Contracts  int     `json:"contracts"`
}

type calculationResponse struct {
	StrategyType     string        `json:"strategy_type"`
	Bias             string        `json:"bias"`
	UnderlyingSymbol string        `json:"underlying_symbol"`
	UnderlyingPrice  float64       `json:"underlying_price"`
	Legs             []legResponse `json:"legs"`

	NetPremium   *float64 `json:"net_premium,omitempty"`
	IsCredit     *bool    `json:"is_credit,omitempty"`
	WidthPoints  *float64 `json:"width_points,omitempty"`
	WidthDollars *float64 `json:"width_dollars,omitempty"`

	Breakeven  float64  `json:"breakeven"`
	MaxProfit  *float64 `json:"max_profit"` // null = unbounded
	MaxLoss    float64  `json:"max_loss"`
	RiskReward *float64 `json:"risk_reward_ratio,omitempty"`
	PopProxy   *float64 `json:"pop_proxy,omitempty"`

	DTE                  *int     `json:"dte,omitempty"`
	RecommendedContracts *int     `json:"recommended_contracts,omitempty"`
	PositionSizeDollars  *float64 `json:"position_size_dollars,omitempty"`
}

type verticalSpreadRequest struct {
	UnderlyingSymbol string   `json:"underlying_symbol"`
	UnderlyingPrice  float64  `json:"underlying_price"`
	LongStrike       float64  `json:"long_strike"`
	ShortStrike      float64  `json:"short_strike"`
	LongPremium      float64  `json:"long_premium"`
	ShortPremium     float64  `json:"short_premium"`
	OptionType       string   `json:"option_type"`
	Bias             string   `json:"bias"`
	Contracts        int      `json:"contracts,omitempty"`
	DTE              *int     `json:"dte,omitempty"`
	LongDelta        *float64 `json:"long_delta,omitempty"`
	ShortDelta       *float64 `json:"short_delta,omitempty"`
	AccountSize      *float64 `json:"account_size,omitempty"`
	RiskPercentage   *float64 `json:"risk_percentage,omitempty"`
}

func (s *Server) handleVerticalSpread(w http.ResponseWriter, r *http.Request) {
	var body verticalSpreadRequest
	if !s.decode(w, r, &body) {
		return
	}

	optionType, err := models.ParseOptionType(body.OptionType)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	bias, err := models.ParseBias(body.Bias)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	contracts := body.Contracts
	if contracts == 0 {
		contracts = 1
	}

	metrics, err := valuation.VerticalSpread(valuation.SpreadInput{
		LongStrike:   body.LongStrike,
		ShortStrike:  body.ShortStrike,
		LongPremium:  body.LongPremium,
		ShortPremium: body.ShortPremium,
		OptionType:   optionType,
		Contracts:    contracts,
		LongDelta:    body.LongDelta,
		ShortDelta:   body.ShortDelta,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	resp := calculationResponse{
		StrategyType:     "vertical_spread",
		Bias:             string(bias),
		UnderlyingSymbol: strings.ToUpper(strings.TrimSpace(body.UnderlyingSymbol)),
		UnderlyingPrice:  body.UnderlyingPrice,
		Legs: []legResponse{
			{Strike: body.LongStrike, Premium: body.LongPremium, OptionType: string(optionType), Position: "long", Contracts: contracts},
			{Strike: body.ShortStrike, Premium: body.ShortPremium, OptionType: string(optionType), Position: "short", Contracts: contracts},
		},
		NetPremium:   &metrics.NetPremium,
		IsCredit:     &metrics.IsCredit,
		WidthPoints:  &metrics.WidthPoints,
		WidthDollars: &metrics.WidthDollars,
		Breakeven:    metrics.Breakeven,
		MaxProfit:    &metrics.MaxProfit,
		MaxLoss:      metrics.MaxLoss,
		RiskReward:   metrics.RiskReward,
		PopProxy:     metrics.PopProxy,
		DTE:          body.DTE,
	}
	s.applySizing(&resp, metrics.MaxLoss/float64(contracts), body.AccountSize, body.RiskPercentage)
	s.writeJSON(w, http.StatusOK, resp)
}

type longOptionRequest struct {
	UnderlyingSymbol string   `json:"underlying_symbol"`
	UnderlyingPrice  float64  `json:"underlying_price"`
	Strike           float64  `json:"strike"`
	Premium          float64  `json:"premium"`
	OptionType       string   `json:"option_type"`
	Bias             string   `json:"bias"`
	Contracts        int      `json:"contracts,omitempty"`
	DTE              *int     `json:"dte,omitempty"`
	Delta            *float64 `json:"delta,omitempty"`
	AccountSize      *float64 `json:"account_size,omitempty"`
	RiskPercentage   *float64 `json:"risk_percentage,omitempty"`
}

func (s *Server) handleLongOption(w http.ResponseWriter, r *http.Request) {
	var body longOptionRequest
	if !s.decode(w, r, &body) {
		return
	}

	optionType, err := models.ParseOptionType(body.OptionType)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	bias, err := models.ParseBias(body.Bias)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	contracts := body.Contracts
	if contracts == 0 {
		contracts = 1
	}

	metrics, err := valuation.LongOption(valuation.LongOptionInput{
		Strike:     body.Strike,
		Premium:    body.Premium,
		OptionType: optionType,
		Contracts:  contracts,
		Delta:      body.Delta,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	strategyType := "long_call"
	if optionType == models.OptionTypePut {
		strategyType = "long_put"
	}
	resp := calculationResponse{
		StrategyType:     strategyType,
		Bias:             string(bias),
		UnderlyingSymbol: strings.ToUpper(strings.TrimSpace(body.UnderlyingSymbol)),
		UnderlyingPrice:  body.UnderlyingPrice,
		Legs: []legResponse{
			{Strike: body.Strike, Premium: body.Premium, OptionType: string(optionType), Position: "long", Contracts: contracts},
		},
		Breakeven:  metrics.Breakeven,
		MaxProfit:  metrics.MaxProfit,
		MaxLoss:    metrics.MaxLoss,
		RiskReward: metrics.RiskReward,
		PopProxy:   metrics.PopProxy,
		DTE:        body.DTE,
	}
	s.applySizing(&resp, metrics.MaxLoss/float64(contracts), body.AccountSize, body.RiskPercentage)
	s.writeJSON(w, http.StatusOK, resp)
}

// applySizing fills the sizing fields when an account size was provided.
// Sizing failures are logged, never fatal: the valuation itself stands.
func (s *Server) applySizing(resp *calculationResponse, maxLossPerContract float64, accountSize, riskPct *float64) {
	if accountSize == nil {
		return
	}
	risk := 2.0
	if riskPct != nil {
		risk = *riskPct
	}
	sizing, err := valuation.PositionSize(maxLossPerContract, *accountSize, risk)
	if err != nil {
		s.logger.WithError(err).Warn("Position sizing failed")
		return
	}
	resp.RecommendedContracts = &sizing.Contracts
	resp.PositionSizeDollars = &sizing.TotalRiskDollars
}

type positionSizeRequest struct {
	MaxLossPerContract float64  `json:"max_loss_per_contract"`
	AccountSize        float64  `json:"account_size"`
	RiskPercentage     *float64 `json:"risk_percentage,omitempty"`
}

type positionSizeResponse struct {
	Contracts          int     `json:"contracts"`
	MaxLossPerContract float64 `json:"max_loss_per_contract"`
	AccountSize        float64 `json:"account_size"`
	RiskPercentage     float64 `json:"risk_percentage"`
	TotalRiskDollars   float64 `json:"total_risk_dollars"`
	RiskPctOfAccount   float64 `json:"risk_as_percent_of_account"`
}

func (s *Server) handlePositionSize(w http.ResponseWriter, r *http.Request) {
	var body positionSizeRequest
	if !s.decode(w, r, &body) {
		return
	}

	risk := 2.0
	if body.RiskPercentage != nil {
		risk = *body.RiskPercentage
	}
	sizing, err := valuation.PositionSize(body.MaxLossPerContract, body.AccountSize, risk)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, positionSizeResponse{
		Contracts:          sizing.Contracts,
		MaxLossPerContract: body.MaxLossPerContract,
		AccountSize:        body.AccountSize,
		RiskPercentage:     risk,
		TotalRiskDollars:   sizing.TotalRiskDollars,
		RiskPctOfAccount:   sizing.RiskPctOfAccount,
	})
}
