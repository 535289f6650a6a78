package market

import "time"

// Tick is a timestamped snapshot of one instrument's quote and bar state,
// as supplied by the data layer.
type Tick struct {
	Timestamp  time.Time
	Instrument string

	Bid     Price
	Ask     Price
	BidSize Volume
	AskSize Volume
	Last    Price
	Volume  Volume

	Open  float64
	High  float64
	Low   float64
	Close float64
	Date  string
}

func (t Tick) Mid() Price {
	if t.Bid == 0 || t.Ask == 0 {
		return 0
	}
	return (t.Bid + t.Ask) / 2
}

func (t Tick) Spread() Price {
	if t.Bid == 0 || t.Ask == 0 {
		return 0
	}
	return t.Ask - t.Bid
}

// Reference is the price used to mark positions: last trade, then bar
// close, then the quote mid.
func (t Tick) Reference() Price {
	switch {
	case t.Last > 0:
		return t.Last
	case t.Close > 0:
		return t.Close
	default:
		return t.Mid()
	}
}

// HasQuote reports whether both sides of the quote are present.
func (t Tick) HasQuote() bool {
	return ValidPrice(t.Bid) && ValidPrice(t.Ask) && t.Bid < t.Ask
}
