package strategy

import "DCASentinel/internal/model"

// ReferenceScore is the neutral momentum value, the midpoint of the RSI range.
const ReferenceScore = 50.0

// Plan splits totalBudget evenly across symbols with a usable score, then
// weights each share by ReferenceScore/score so oversold pairs get more.
//
// There is no upper clamp. Shares below minOrderValue are raised to it,
// which can push the total above totalBudget; that over-spend is intended.
// Symbols without a score are left out and do not count toward the split.
func Plan(symbols []model.SymbolMomentum, totalBudget, minOrderValue float64) []model.Allocation {
	n := 0
	for _, s := range symbols {
		if s.Valid() {
			n++
		}
	}
	if n == 0 {
		return nil
	}

	baseShare := totalBudget / float64(n)
	plan := make([]model.Allocation, 0, n)
	for _, s := range symbols {
		if !s.Valid() {
			continue
		}
		target := baseShare * (ReferenceScore / s.Score)
		if target < minOrderValue {
			target = minOrderValue
		}
		plan = append(plan, model.Allocation{
			Symbol:      s.Symbol,
			Score:       s.Score,
			BaseShare:   baseShare,
			TargetSpend: target,
		})
	}
	return plan
}
