package market

import "time"

// Fill is one execution of an order at a single price. An order that walks
// several price levels produces one Fill per level.
type Fill struct {
	OrderID    OrderID
	Timestamp  time.Time
	Instrument string
	Strategy   string
	Side       Side
	Price      Price
	Quantity   Volume
	Commission float64

	// Slippage is the modelled cost, in account currency, on top of Price.
	Slippage float64
	// Maker is set for fills of resting orders.
	Maker bool
}

func (f Fill) Notional() float64 {
	return Notional(f.Quantity, f.Price)
}

// SignedQuantity is positive for buys and negative for sells.
func (f Fill) SignedQuantity() int64 {
	return f.Side.Sign() * int64(f.Quantity)
}

// Cost is everything charged on top of the execution price.
func (f Fill) Cost() float64 {
	return f.Commission + f.Slippage
}
