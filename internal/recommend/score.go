package recommend

import (
	"fmt"
	"math"
	"strings"

	"github.com/AustinnAI/volaris/internal/models"
)

// compositeScore ranks a candidate on a 0-100 scale. Point budgets come from
// the weights; with the defaults: POP 30, risk/reward 30, credit-or-cost
// quality 25, liquidity 10, position preference 5.
func compositeScore(r Recommendation, family models.StrategyFamily, w ScoringWeights) float64 {
	score := 0.0

	if r.PopProxy != nil {
		score += math.Min(*r.PopProxy/100, 1) * w.Pop
	}

	// A missing ratio means unbounded upside; treat it as the 3:1 cap rather
	// than zeroing the component.
	rr := 3.0
	if r.RiskReward != nil {
		rr = *r.RiskReward
	}
	score += math.Min(rr/3, 1) * w.RR

	if family.IsCredit() {
		// 50% of width collected scores full marks.
		score += math.Min(creditPctOf(r)/50, 1) * w.Credit
	} else {
		// Debit and long positions score on profit-to-cost instead, with a
		// nil max profit treated as the 5:1 cap.
		ratio := 5.0
		if r.MaxProfit != nil && r.MaxLoss > 0 {
			ratio = *r.MaxProfit / r.MaxLoss
		}
		score += math.Min(ratio/5, 1) * w.Credit
	}

	score += math.Min(float64(r.AvgOpenInterest)/500, 1) * w.Liquidity

	switch r.Position {
	case models.PositionATM:
		score += w.Position
	case models.PositionOTM:
		score += w.Position / 2
	}

	return math.Min(score, 100)
}

// buildReasons writes the ordered reasoning bullets for one candidate:
// regime rationale, position, risk/reward (only when attractive), POP tier,
// credit quality, width, liquidity.
func buildReasons(r Recommendation, family models.StrategyFamily, familyReason string) []string {
	reasons := []string{familyReason}

	positionNames := map[models.StrikePosition]string{
		models.PositionITM: "In-the-money",
		models.PositionATM: "At-the-money",
		models.PositionOTM: "Out-of-the-money",
	}
	reasons = append(reasons, fmt.Sprintf("%s %s", positionNames[r.Position], r.OptionType))

	if r.RiskReward != nil && *r.RiskReward >= 1.5 {
		reasons = append(reasons, fmt.Sprintf("Attractive R:R of %.2f:1", *r.RiskReward))
	}

	if r.PopProxy != nil {
		switch {
		case *r.PopProxy >= 60:
			reasons = append(reasons, fmt.Sprintf("High probability setup (~%.0f%% POP)", *r.PopProxy))
		case *r.PopProxy >= 40:
			reasons = append(reasons, fmt.Sprintf("Moderate probability (~%.0f%% POP)", *r.PopProxy))
		default:
			reasons = append(reasons, fmt.Sprintf("Lower probability, higher reward (~%.0f%% POP)", *r.PopProxy))
		}
	}

	if family.IsCredit() {
		creditPct := creditPctOf(r)
		if creditPct >= 30 {
			reasons = append(reasons, fmt.Sprintf("Strong credit collection (%.0f%% of width)", creditPct))
		} else {
			reasons = append(reasons, fmt.Sprintf("Credit: %.0f%% of spread width", creditPct))
		}
	}

	if r.WidthPoints != nil {
		reasons = append(reasons, fmt.Sprintf("$%.0f spread width for %s", *r.WidthPoints, strings.ToUpper(string(r.Position))))
	}

	if r.AvgOpenInterest >= 100 {
		reasons = append(reasons, fmt.Sprintf("Good liquidity (OI: %d)", r.AvgOpenInterest))
	}

	return reasons
}
