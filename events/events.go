// Package events defines the closed set of events carried by the bus.
//
// Event is sealed: only the six kinds declared here implement it, and Visitor
// has one method per kind, so adding a kind fails to compile anywhere that
// dispatches on events without handling it.
package events

import (
	"fmt"
	"time"

	"github.com/rustyeddy/backtest/market"
)

type Kind uint8

const (
	KindMarket Kind = iota
	KindSignal
	KindOrder
	KindFill
	KindRisk
	KindTimer
)

// Kinds lists every event kind in declaration order.
var Kinds = []Kind{KindMarket, KindSignal, KindOrder, KindFill, KindRisk, KindTimer}

func (k Kind) String() string {
	switch k {
	case KindMarket:
		return "MARKET_DATA"
	case KindSignal:
		return "SIGNAL"
	case KindOrder:
		return "ORDER"
	case KindFill:
		return "FILL"
	case KindRisk:
		return "RISK"
	case KindTimer:
		return "TIMER"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Event is implemented by MarketEvent, SignalEvent, OrderEvent, FillEvent,
// RiskEvent and TimerEvent. Events are values and are not modified after
// they are published.
type Event interface {
	Kind() Kind
	Time() time.Time
	Accept(v Visitor) error
	sealed()
}

type Visitor interface {
	VisitMarket(MarketEvent) error
	VisitSignal(SignalEvent) error
	VisitOrder(OrderEvent) error
	VisitFill(FillEvent) error
	VisitRisk(RiskEvent) error
	VisitTimer(TimerEvent) error
}

type MarketEvent struct {
	Tick market.Tick
}

func (e MarketEvent) Kind() Kind             { return KindMarket }
func (e MarketEvent) Time() time.Time        { return e.Tick.Timestamp }
func (e MarketEvent) Accept(v Visitor) error { return v.VisitMarket(e) }
func (MarketEvent) sealed()                  {}

type Signal uint8

const (
	SignalBuy Signal = iota
	SignalSell
	SignalHold
	SignalClose
)

func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	case SignalHold:
		return "HOLD"
	case SignalClose:
		return "CLOSE"
	default:
		return fmt.Sprintf("Signal(%d)", uint8(s))
	}
}

type SignalEvent struct {
	At         time.Time
	Instrument string
	Strategy   string
	Signal     Signal
	Strength   float64
}

func (e SignalEvent) Kind() Kind             { return KindSignal }
func (e SignalEvent) Time() time.Time        { return e.At }
func (e SignalEvent) Accept(v Visitor) error { return v.VisitSignal(e) }
func (SignalEvent) sealed()                  {}

type OrderEvent struct {
	Order market.Order
}

func (e OrderEvent) Kind() Kind             { return KindOrder }
func (e OrderEvent) Time() time.Time        { return e.Order.Timestamp }
func (e OrderEvent) Accept(v Visitor) error { return v.VisitOrder(e) }
func (OrderEvent) sealed()                  {}

type FillEvent struct {
	Fill market.Fill
}

func (e FillEvent) Kind() Kind             { return KindFill }
func (e FillEvent) Time() time.Time        { return e.Fill.Timestamp }
func (e FillEvent) Accept(v Visitor) error { return v.VisitFill(e) }
func (FillEvent) sealed()                  {}

type RiskType uint8

const (
	RiskPositionLimit RiskType = iota
	RiskLossLimit
	RiskExposureLimit
	RiskCooldown
	RiskRateLimit
	RiskOrderSize
	RiskInvalidOrder
)

func (t RiskType) String() string {
	switch t {
	case RiskPositionLimit:
		return "POSITION_LIMIT"
	case RiskLossLimit:
		return "LOSS_LIMIT"
	case RiskExposureLimit:
		return "EXPOSURE_LIMIT"
	case RiskCooldown:
		return "COOLDOWN"
	case RiskRateLimit:
		return "RATE_LIMIT"
	case RiskOrderSize:
		return "ORDER_SIZE"
	case RiskInvalidOrder:
		return "INVALID_ORDER"
	default:
		return fmt.Sprintf("RiskType(%d)", uint8(t))
	}
}

type RiskEvent struct {
	At         time.Time
	Type       RiskType
	Strategy   string
	Instrument string
	Message    string
	Value      float64
	Limit      float64
}

func (e RiskEvent) Kind() Kind             { return KindRisk }
func (e RiskEvent) Time() time.Time        { return e.At }
func (e RiskEvent) Accept(v Visitor) error { return v.VisitRisk(e) }
func (RiskEvent) sealed()                  {}

type TimerEvent struct {
	At      time.Time
	TimerID string
}

func (e TimerEvent) Kind() Kind             { return KindTimer }
func (e TimerEvent) Time() time.Time        { return e.At }
func (e TimerEvent) Accept(v Visitor) error { return v.VisitTimer(e) }
func (TimerEvent) sealed()                  {}
