package market

import "math"

// Price is an execution or quote price in quote currency.
type Price = float64

// Volume is an unsigned order or level quantity.
type Volume = uint64

// OrderID identifies an order for its whole life in the book.
type OrderID = uint64

// ValidPrice reports whether p can be used as a book price.
func ValidPrice(p Price) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}

// Notional is quantity times price.
func Notional(qty Volume, p Price) float64 {
	return float64(qty) * p
}
