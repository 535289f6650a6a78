package market

// Position is a signed holding of one instrument by one strategy, kept with
// average-cost accounting.
type Position struct {
	Instrument string
	Strategy   string

	// Quantity is positive for long and negative for short.
	Quantity      int64
	AveragePrice  Price
	RealizedPnL   float64
	UnrealizedPnL float64
}

func (p Position) Flat() bool { return p.Quantity == 0 }

// Exposure is the absolute notional of the position at its average price.
func (p Position) Exposure() float64 {
	q := p.Quantity
	if q < 0 {
		q = -q
	}
	return float64(q) * p.AveragePrice
}

// Mark returns the unrealized PnL of the position at price.
func (p Position) Mark(price Price) float64 {
	if p.Quantity == 0 || price <= 0 {
		return 0
	}
	return float64(p.Quantity) * (price - p.AveragePrice)
}
