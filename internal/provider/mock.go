package provider

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/AustinnAI/volaris/internal/mock"
	"github.com/AustinnAI/volaris/internal/models"
)

// MockProvider serves synthetic chains for mock mode and tests. Spots are
// fixed per symbol so repeated calls stay comparable.
type MockProvider struct {
	Spots map[string]float64
	IV    float64
	now   func() time.Time
}

// Ensure MockProvider implements Provider at compile time.
var _ Provider = (*MockProvider)(nil)

// NewMockProvider creates a synthetic provider with a default spot of 450.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Spots: map[string]float64{},
		IV:    0.22,
		now:   time.Now,
	}
}

// WithClock replaces the time source, for deterministic tests.
func (m *MockProvider) WithClock(now func() time.Time) *MockProvider {
	if now != nil {
		m.now = now
	}
	return m
}

func (m *MockProvider) spot(symbol string) float64 {
	if s, ok := m.Spots[symbol]; ok {
		return s
	}
	return 450
}

// GetQuote returns a synthetic quote.
func (m *MockProvider) GetQuote(symbol string) (*Quote, error) {
	return m.GetQuoteCtx(context.Background(), symbol)
}

// GetQuoteCtx returns a synthetic quote.
func (m *MockProvider) GetQuoteCtx(_ context.Context, symbol string) (*Quote, error) {
	spot := m.spot(symbol)
	return &Quote{
		Symbol:    symbol,
		Last:      spot,
		Bid:       spot - 0.05,
		Ask:       spot + 0.05,
		PrevClose: spot,
	}, nil
}

// GetExpirations returns weekly expirations for the next six weeks.
func (m *MockProvider) GetExpirations(symbol string) ([]string, error) {
	return m.GetExpirationsCtx(context.Background(), symbol)
}

// GetExpirationsCtx returns weekly expirations for the next six weeks.
func (m *MockProvider) GetExpirationsCtx(_ context.Context, _ string) ([]string, error) {
	now := m.now().UTC()
	out := make([]string, 0, 6)
	for i := 1; i <= 6; i++ {
		out = append(out, now.AddDate(0, 0, 7*i).Format("2006-01-02"))
	}
	return out, nil
}

// GetChainSnapshot builds a synthetic liquid chain around the symbol's spot.
func (m *MockProvider) GetChainSnapshot(symbol, expiration string) (*ChainResult, error) {
	return m.GetChainSnapshotCtx(context.Background(), symbol, expiration)
}

// GetChainSnapshotCtx builds a synthetic liquid chain around the symbol's spot.
func (m *MockProvider) GetChainSnapshotCtx(ctx context.Context, symbol, expiration string) (*ChainResult, error) {
	now := m.now().UTC()
	dte, err := DaysUntil(now, expiration)
	if err != nil {
		return nil, err
	}
	if dte <= 0 {
		return nil, models.ErrNoData
	}

	spot := m.spot(symbol)
	snapshot := mock.LiquidChain(mock.ChainParams{
		Symbol:     symbol,
		Spot:       spot,
		DTE:        dte,
		LowStrike:  spot * 0.95,
		HighStrike: spot * 1.05,
		AsOf:       now,
	})
	snapshot.ID = uuid.New().String()
	snapshot.Expiration = expiration

	quote, err := m.GetQuoteCtx(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &ChainResult{Snapshot: snapshot, Quote: quote}, nil
}

// GetImpliedVolatility returns the configured synthetic IV.
func (m *MockProvider) GetImpliedVolatility(symbol string) (float64, error) {
	return m.GetImpliedVolatilityCtx(context.Background(), symbol)
}

// GetImpliedVolatilityCtx returns the configured synthetic IV.
func (m *MockProvider) GetImpliedVolatilityCtx(_ context.Context, _ string) (float64, error) {
	return m.IV, nil
}
