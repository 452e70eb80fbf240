package valuation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AustinnAI/volaris/internal/models"
)

func fptr(v float64) *float64 { return &v }

func TestVerticalSpread_BullCallDebit(t *testing.T) {
	// Long 445 call @ 7.50, short 450 call @ 5.20, 1 contract.
	m, err := VerticalSpread(SpreadInput{
		LongStrike:   445,
		ShortStrike:  450,
		LongPremium:  7.50,
		ShortPremium: 5.20,
		OptionType:   models.OptionTypeCall,
		Contracts:    1,
		LongDelta:    fptr(0.55),
		ShortDelta:   fptr(0.42),
	})
	require.NoError(t, err)

	assert.InDelta(t, 230.0, m.NetPremium, 1e-9)
	assert.False(t, m.IsCredit)
	assert.InDelta(t, 5.0, m.WidthPoints, 1e-9)
	assert.InDelta(t, 500.0, m.WidthDollars, 1e-9)
	assert.InDelta(t, 230.0, m.MaxLoss, 1e-9)
	assert.InDelta(t, 270.0, m.MaxProfit, 1e-9)
	// BE = long strike + per-share debit
	assert.InDelta(t, 447.30, m.Breakeven, 1e-9)
	require.NotNil(t, m.RiskReward)
	assert.InDelta(t, 270.0/230.0, *m.RiskReward, 1e-9)
	require.NotNil(t, m.PopProxy)
	assert.InDelta(t, 13.0, *m.PopProxy, 1e-9)
}

func TestVerticalSpread_BullPutCredit(t *testing.T) {
	// Short 445 put @ 6.10, long 440 put @ 4.30: net credit of $180.
	m, err := VerticalSpread(SpreadInput{
		LongStrike:   440,
		ShortStrike:  445,
		LongPremium:  4.30,
		ShortPremium: 6.10,
		OptionType:   models.OptionTypePut,
		Contracts:    1,
		LongDelta:    fptr(-0.30),
		ShortDelta:   fptr(-0.42),
	})
	require.NoError(t, err)

	assert.InDelta(t, -180.0, m.NetPremium, 1e-9)
	assert.True(t, m.IsCredit)
	assert.InDelta(t, 180.0, m.MaxProfit, 1e-9)
	assert.InDelta(t, 320.0, m.MaxLoss, 1e-9)
	// BE = short strike - per-share credit
	assert.InDelta(t, 443.20, m.Breakeven, 1e-9)
	require.NotNil(t, m.PopProxy)
	// Credit POP: (1 - |longDelta - shortDelta|) * 100
	assert.InDelta(t, 88.0, *m.PopProxy, 1e-9)
}

func TestVerticalSpread_ProfitPlusLossEqualsWidth(t *testing.T) {
	tests := []struct {
		name string
		in   SpreadInput
	}{
		{
			name: "debit call",
			in: SpreadInput{
				LongStrike: 100, ShortStrike: 105, LongPremium: 3.0, ShortPremium: 1.5,
				OptionType: models.OptionTypeCall, Contracts: 1,
			},
		},
		{
			name: "credit put",
			in: SpreadInput{
				LongStrike: 95, ShortStrike: 100, LongPremium: 1.2, ShortPremium: 2.9,
				OptionType: models.OptionTypePut, Contracts: 1,
			},
		},
		{
			name: "credit call multi-contract",
			in: SpreadInput{
				LongStrike: 460, ShortStrike: 455, LongPremium: 2.1, ShortPremium: 3.8,
				OptionType: models.OptionTypeCall, Contracts: 3,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := VerticalSpread(tt.in)
			require.NoError(t, err)
			assert.InDelta(t, m.WidthDollars, m.MaxProfit+m.MaxLoss, 1e-9)
			// is_credit must agree with the sign of net premium
			assert.Equal(t, m.NetPremium < 0, m.IsCredit)
		})
	}
}

func TestVerticalSpread_MultiContractBreakeven(t *testing.T) {
	// Breakeven is per-share regardless of contract count.
	one, err := VerticalSpread(SpreadInput{
		LongStrike: 445, ShortStrike: 450, LongPremium: 7.5, ShortPremium: 5.2,
		OptionType: models.OptionTypeCall, Contracts: 1,
	})
	require.NoError(t, err)

	five, err := VerticalSpread(SpreadInput{
		LongStrike: 445, ShortStrike: 450, LongPremium: 7.5, ShortPremium: 5.2,
		OptionType: models.OptionTypeCall, Contracts: 5,
	})
	require.NoError(t, err)

	assert.InDelta(t, one.Breakeven, five.Breakeven, 1e-9)
	assert.InDelta(t, one.NetPremium*5, five.NetPremium, 1e-9)
}

func TestVerticalSpread_NoDeltasNoPop(t *testing.T) {
	m, err := VerticalSpread(SpreadInput{
		LongStrike: 100, ShortStrike: 105, LongPremium: 3.0, ShortPremium: 1.5,
		OptionType: models.OptionTypeCall, Contracts: 1,
	})
	require.NoError(t, err)
	assert.Nil(t, m.PopProxy)
}

func TestVerticalSpread_InvalidInput(t *testing.T) {
	base := SpreadInput{
		LongStrike: 445, ShortStrike: 450, LongPremium: 7.5, ShortPremium: 5.2,
		OptionType: models.OptionTypeCall, Contracts: 1,
	}

	tests := []struct {
		name   string
		mutate func(*SpreadInput)
	}{
		{"zero long strike", func(in *SpreadInput) { in.LongStrike = 0 }},
		{"negative short strike", func(in *SpreadInput) { in.ShortStrike = -5 }},
		{"equal strikes", func(in *SpreadInput) { in.ShortStrike = in.LongStrike }},
		{"zero long premium", func(in *SpreadInput) { in.LongPremium = 0 }},
		{"negative short premium", func(in *SpreadInput) { in.ShortPremium = -1 }},
		{"zero contracts", func(in *SpreadInput) { in.Contracts = 0 }},
		{"bad option type", func(in *SpreadInput) { in.OptionType = "straddle" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			_, err := VerticalSpread(in)
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}
}

func TestLongOption_Call(t *testing.T) {
	m, err := LongOption(LongOptionInput{
		Strike:     450,
		Premium:    3.20,
		OptionType: models.OptionTypeCall,
		Contracts:  1,
		Delta:      fptr(0.48),
	})
	require.NoError(t, err)

	assert.InDelta(t, 320.0, m.MaxLoss, 1e-9)
	assert.Nil(t, m.MaxProfit, "call upside is unbounded")
	assert.Nil(t, m.RiskReward)
	assert.InDelta(t, 453.20, m.Breakeven, 1e-9)
	require.NotNil(t, m.PopProxy)
	assert.InDelta(t, 48.0, *m.PopProxy, 1e-9)
}

func TestLongOption_Put(t *testing.T) {
	m, err := LongOption(LongOptionInput{
		Strike:     445,
		Premium:    4.10,
		OptionType: models.OptionTypePut,
		Contracts:  2,
		Delta:      fptr(-0.44),
	})
	require.NoError(t, err)

	assert.InDelta(t, 820.0, m.MaxLoss, 1e-9)
	require.NotNil(t, m.MaxProfit)
	// Max profit with the underlying at zero: strike value minus premium paid.
	assert.InDelta(t, 445*2*100-820.0, *m.MaxProfit, 1e-9)
	assert.InDelta(t, 440.90, m.Breakeven, 1e-9)
	require.NotNil(t, m.PopProxy)
	assert.InDelta(t, 44.0, *m.PopProxy, 1e-9)
}

func TestLongOption_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		in   LongOptionInput
	}{
		{"zero strike", LongOptionInput{Strike: 0, Premium: 1, OptionType: models.OptionTypeCall, Contracts: 1}},
		{"zero premium", LongOptionInput{Strike: 100, Premium: 0, OptionType: models.OptionTypePut, Contracts: 1}},
		{"zero contracts", LongOptionInput{Strike: 100, Premium: 1, OptionType: models.OptionTypeCall, Contracts: 0}},
		{"bad type", LongOptionInput{Strike: 100, Premium: 1, OptionType: "butterfly", Contracts: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LongOption(tt.in)
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}
}

func TestPositionSize(t *testing.T) {
	tests := []struct {
		name          string
		maxLoss       float64
		accountSize   float64
		riskPct       float64
		wantContracts int
	}{
		{"exact fit", 250, 25000, 2.0, 2},
		{"floors fractional", 230, 25000, 2.0, 2}, // 500/230 = 2.17
		{"single contract", 450, 25000, 2.0, 1},
		{"unaffordable returns zero", 325, 5000, 2.0, 0}, // budget $100
		{"large budget", 100, 100000, 5.0, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := PositionSize(tt.maxLoss, tt.accountSize, tt.riskPct)
			require.NoError(t, err)
			assert.Equal(t, tt.wantContracts, s.Contracts)
			assert.InDelta(t, float64(tt.wantContracts)*tt.maxLoss, s.TotalRiskDollars, 1e-9)
			assert.LessOrEqual(t, s.TotalRiskDollars, tt.accountSize*tt.riskPct/100+1e-9)
		})
	}
}

func TestPositionSize_NeverRoundsUp(t *testing.T) {
	// One contract risks $325 against a $100 budget: must be 0, not 1.
	s, err := PositionSize(325, 5000, 2.0)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Contracts)
	assert.Zero(t, s.TotalRiskDollars)
}

func TestPositionSize_InvalidInput(t *testing.T) {
	tests := []struct {
		name                          string
		maxLoss, accountSize, riskPct float64
	}{
		{"zero max loss", 0, 25000, 2},
		{"negative max loss", -10, 25000, 2},
		{"zero account", 250, 0, 2},
		{"zero risk pct", 250, 25000, 0},
		{"risk pct over 100", 250, 25000, 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PositionSize(tt.maxLoss, tt.accountSize, tt.riskPct)
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}
}
