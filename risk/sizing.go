package risk

import "math"

// SizeForRisk is fixed-fractional position sizing: the quantity whose loss
// at stop equals riskPct of equity, rounded down. It returns 0 when entry
// and stop coincide or equity is not positive.
func SizeForRisk(equity, riskPct, entry, stop float64) uint64 {
	move := math.Abs(entry - stop)
	if move == 0 || equity <= 0 || riskPct <= 0 {
		return 0
	}
	units := math.Floor(equity * riskPct / move)
	if units <= 0 || math.IsInf(units, 0) || math.IsNaN(units) {
		return 0
	}
	return uint64(units)
}

// PlannedRisk is the loss in account currency if a position of qty is
// stopped out. quoteToAccount converts quote currency to account currency.
func PlannedRisk(qty uint64, entry, stop, quoteToAccount float64) float64 {
	return float64(qty) * math.Abs(entry-stop) * quoteToAccount
}

// RR is the reward to risk ratio of a trade plan.
func RR(entry, stop, takeProfit float64) float64 {
	risk := math.Abs(entry - stop)
	if risk == 0 {
		return 0
	}
	return math.Abs(takeProfit-entry) / risk
}

// RiskPct is planned risk as a fraction of equity.
func RiskPct(planned, equity float64) float64 {
	if equity <= 0 {
		return math.Inf(1)
	}
	return planned / equity
}
