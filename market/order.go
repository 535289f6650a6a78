package market

import (
	"fmt"
	"math"
	"time"
)

type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return fmt.Sprintf("Side(%d)", uint8(s))
	}
}

// Sign is +1 for buys and -1 for sells.
func (s Side) Sign() int64 {
	if s == Sell {
		return -1
	}
	return 1
}

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

type OrderType uint8

const (
	Market OrderType = iota
	Limit
	Stop
	StopLimit
)

func (t OrderType) String() string {
	switch t {
	case Market:
		return "MARKET"
	case Limit:
		return "LIMIT"
	case Stop:
		return "STOP"
	case StopLimit:
		return "STOP_LIMIT"
	default:
		return fmt.Sprintf("OrderType(%d)", uint8(t))
	}
}

type OrderStatus uint8

const (
	Pending OrderStatus = iota
	PartialFill
	Filled
	Cancelled
	Rejected
)

func (s OrderStatus) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case PartialFill:
		return "PARTIAL_FILL"
	case Filled:
		return "FILLED"
	case Cancelled:
		return "CANCELLED"
	case Rejected:
		return "REJECTED"
	default:
		return fmt.Sprintf("OrderStatus(%d)", uint8(s))
	}
}

// Order is a request to trade. Price is the limit price for limit and
// stop-limit orders and is ignored for market orders. StopPrice is only used by
// stop and stop-limit orders.
type Order struct {
	ID         OrderID
	Timestamp  time.Time
	Instrument string
	Strategy   string
	Side       Side
	Type       OrderType
	Price      Price
	StopPrice  Price
	Quantity   Volume

	FilledQuantity Volume
	Status         OrderStatus
}

func (o Order) Remaining() Volume {
	if o.FilledQuantity >= o.Quantity {
		return 0
	}
	return o.Quantity - o.FilledQuantity
}

// Validate checks the fields every order needs before it can be routed.
func (o Order) Validate() error {
	switch {
	case o.Instrument == "":
		return &ValidationError{Field: "instrument", Reason: "is required"}
	case o.Strategy == "":
		return &ValidationError{Field: "strategy", Reason: "is required"}
	case o.Quantity == 0:
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	case o.Quantity > math.MaxInt64:
		return &ValidationError{Field: "quantity", Reason: "exceeds the signed position range"}
	case o.Side != Buy && o.Side != Sell:
		return &ValidationError{Field: "side", Reason: fmt.Sprintf("unknown side %d", o.Side)}
	}

	switch o.Type {
	case Market:
	case Limit:
		if !ValidPrice(o.Price) {
			return &ValidationError{Field: "price", Reason: fmt.Sprintf("limit price %v is not valid", o.Price)}
		}
	case Stop:
		if !ValidPrice(o.StopPrice) {
			return &ValidationError{Field: "stop_price", Reason: fmt.Sprintf("stop price %v is not valid", o.StopPrice)}
		}
	case StopLimit:
		if !ValidPrice(o.StopPrice) {
			return &ValidationError{Field: "stop_price", Reason: fmt.Sprintf("stop price %v is not valid", o.StopPrice)}
		}
		if !ValidPrice(o.Price) {
			return &ValidationError{Field: "price", Reason: fmt.Sprintf("limit price %v is not valid", o.Price)}
		}
	default:
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown order type %d", o.Type)}
	}
	return nil
}

// Apply folds fills for this order into FilledQuantity and Status.
// Fills for other orders are ignored.
func (o *Order) Apply(fills []Fill) {
	for _, f := range fills {
		if f.OrderID != o.ID {
			continue
		}
		o.FilledQuantity += f.Quantity
	}
	switch {
	case o.FilledQuantity == 0:
	case o.FilledQuantity >= o.Quantity:
		o.FilledQuantity = o.Quantity
		o.Status = Filled
	default:
		o.Status = PartialFill
	}
}

// ValidationError reports a malformed order or registration.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
