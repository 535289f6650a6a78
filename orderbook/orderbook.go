// Package orderbook is a per-instrument limit order book with price-time
// priority.
//
// Each side is a btree of price levels; each level is a FIFO queue of
// resting entries. Aggressing orders walk the contra side best price first
// and fill at the resting price. One fill is produced per level touched.
package orderbook

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/btree"
	"go.uber.org/zap"

	"github.com/rustyeddy/backtest/market"
)

var (
	ErrWouldCross    = errors.New("orderbook: resting order would cross the book")
	ErrOrderNotFound = errors.New("orderbook: order not found")
	ErrDuplicateID   = errors.New("orderbook: duplicate order id")
	ErrCrossedBook   = errors.New("orderbook: book is crossed")
)

const btreeDegree = 32

// Entry is one resting order's remaining interest in a level queue.
type Entry struct {
	OrderID  market.OrderID
	Strategy string
	Volume   market.Volume
	At       time.Time
}

// Level holds the FIFO queue at one price. Volume is always the sum of the
// queued entries' volume.
type Level struct {
	Price  market.Price
	Volume market.Volume
	queue  []Entry
}

func (l *Level) Orders() int { return len(l.queue) }

// Resting describes an order currently on the book.
type Resting struct {
	OrderID   market.OrderID
	Strategy  string
	Side      market.Side
	Price     market.Price
	Remaining market.Volume
	At        time.Time
}

type Option func(*OrderBook)

// WithMakerListener receives one fill per resting order consumed by an
// aggressing order. It is called after the book lock is released.
func WithMakerListener(fn func(market.Fill)) Option {
	return func(ob *OrderBook) { ob.onMaker = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(ob *OrderBook) {
		if l != nil {
			ob.log = l
		}
	}
}

type OrderBook struct {
	mu         sync.RWMutex
	instrument string
	bids       *btree.Map[market.Price, *Level]
	asks       *btree.Map[market.Price, *Level]
	index      map[market.OrderID]*Resting

	onMaker func(market.Fill)
	log     *zap.Logger

	trades       uint64
	volumeTraded market.Volume
}

func New(instrument string, opts ...Option) *OrderBook {
	ob := &OrderBook{
		instrument: instrument,
		bids:       btree.NewMap[market.Price, *Level](btreeDegree),
		asks:       btree.NewMap[market.Price, *Level](btreeDegree),
		index:      make(map[market.OrderID]*Resting),
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(ob)
	}
	ob.log = ob.log.With(zap.String("instrument", instrument))
	return ob
}

func (ob *OrderBook) Instrument() string { return ob.instrument }

func (ob *OrderBook) side(s market.Side) *btree.Map[market.Price, *Level] {
	if s == market.Buy {
		return ob.bids
	}
	return ob.asks
}

// AddOrder rests the order's remaining quantity at its limit price. An order
// that would cross the contra side is rejected with ErrWouldCross; use
// ExecuteLimitOrder to match it instead.
func (ob *OrderBook) AddOrder(o market.Order) error {
	if err := ob.checkRestable(o); err != nil {
		return err
	}
	ob.mu.Lock()
	defer ob.mu.Unlock()
	if _, dup := ob.index[o.ID]; dup {
		return fmt.Errorf("%w: %d", ErrDuplicateID, o.ID)
	}
	if ob.crossesLocked(o.Side, o.Price) {
		return fmt.Errorf("%w: %s %v", ErrWouldCross, o.Side, o.Price)
	}
	ob.restLocked(o, o.Remaining())
	return nil
}

func (ob *OrderBook) checkRestable(o market.Order) error {
	if o.Instrument != "" && o.Instrument != ob.instrument {
		return &market.ValidationError{Field: "instrument", Reason: fmt.Sprintf("%q is not %q", o.Instrument, ob.instrument)}
	}
	if !market.ValidPrice(o.Price) {
		return &market.ValidationError{Field: "price", Reason: "resting orders need a positive finite price"}
	}
	if o.Remaining() == 0 {
		return &market.ValidationError{Field: "quantity", Reason: "nothing left to rest"}
	}
	return nil
}

func (ob *OrderBook) crossesLocked(s market.Side, p market.Price) bool {
	if s == market.Buy {
		ask, _, ok := ob.asks.Min()
		return ok && p >= ask
	}
	bid, _, ok := ob.bids.Max()
	return ok && p <= bid
}

func (ob *OrderBook) restLocked(o market.Order, qty market.Volume) {
	levels := ob.side(o.Side)
	lvl, ok := levels.Get(o.Price)
	if !ok {
		lvl = &Level{Price: o.Price}
		levels.Set(o.Price, lvl)
	}
	lvl.queue = append(lvl.queue, Entry{OrderID: o.ID, Strategy: o.Strategy, Volume: qty, At: o.Timestamp})
	lvl.Volume += qty
	ob.index[o.ID] = &Resting{
		OrderID:   o.ID,
		Strategy:  o.Strategy,
		Side:      o.Side,
		Price:     o.Price,
		Remaining: qty,
		At:        o.Timestamp,
	}
}

// RemoveOrder takes up to qty off the resting order id at side and price and
// returns the volume actually removed. The entry leaves the queue when it
// reaches zero and the level is pruned when it empties.
func (ob *OrderBook) RemoveOrder(id market.OrderID, s market.Side, price market.Price, qty market.Volume) (market.Volume, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	r, ok := ob.index[id]
	if !ok || r.Side != s || r.Price != price {
		return 0, fmt.Errorf("%w: %d %s@%v", ErrOrderNotFound, id, s, price)
	}
	return ob.removeLocked(r, qty), nil
}

// CancelOrder removes the whole remainder of a resting order.
func (ob *OrderBook) CancelOrder(id market.OrderID) (market.Volume, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	r, ok := ob.index[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	return ob.removeLocked(r, r.Remaining), nil
}

func (ob *OrderBook) removeLocked(r *Resting, qty market.Volume) market.Volume {
	levels := ob.side(r.Side)
	lvl, ok := levels.Get(r.Price)
	if !ok {
		ob.log.Error("index points at missing level", zap.Uint64("order", uint64(r.OrderID)))
		delete(ob.index, r.OrderID)
		return 0
	}
	for i := range lvl.queue {
		e := &lvl.queue[i]
		if e.OrderID != r.OrderID {
			continue
		}
		take := min(qty, e.Volume)
		e.Volume -= take
		lvl.Volume -= take
		r.Remaining -= take
		if e.Volume == 0 {
			lvl.queue = append(lvl.queue[:i], lvl.queue[i+1:]...)
			delete(ob.index, r.OrderID)
		}
		if lvl.Volume == 0 {
			levels.Delete(r.Price)
		}
		return take
	}
	return 0
}

// Clear drops all resting interest.
func (ob *OrderBook) Clear() {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.bids.Clear()
	ob.asks.Clear()
	ob.index = make(map[market.OrderID]*Resting)
}
