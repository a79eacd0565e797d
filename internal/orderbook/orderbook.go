// Package orderbook maintains the per-market, two-sided price-time book the
// matching engine matches against.
//
// The teacher repo (manangoyal18-GOLANG-ORDER-MATCHING-SYSTEM) keeps a
// map[string]*PriceLevel plus a freshly re-sorted price slice on every
// mutation — simple, but O(n log n) per insert/remove as the design note
// (§9) calls out. Here each side is an ordered map of price -> FIFO queue
// backed by github.com/huandu/skiplist, giving O(log P) insert/remove and
// O(1) best-of-book via the list's head/tail, while keeping the teacher's
// FIFO-queue-per-price-level shape for time priority within a level.
package orderbook

import (
	"sync"

	"github.com/google/uuid"
	"github.com/huandu/skiplist"
	"github.com/shopspring/decimal"

	"github.com/hyperperp/matchcore/internal/models"
)

// PriceLevel is a FIFO queue of resting orders at a single price.
type PriceLevel struct {
	Price  decimal.Decimal
	Orders []*models.Order
}

func (pl *PriceLevel) add(o *models.Order) {
	pl.Orders = append(pl.Orders, o)
}

// remove deletes the order with the given id, preserving FIFO order among
// the rest. Reports whether anything was removed.
func (pl *PriceLevel) remove(id uuid.UUID) bool {
	for i, o := range pl.Orders {
		if o.ID == id {
			pl.Orders = append(pl.Orders[:i], pl.Orders[i+1:]...)
			return true
		}
	}
	return false
}

func (pl *PriceLevel) isEmpty() bool { return len(pl.Orders) == 0 }

// TotalSize sums the remaining size of every order resting at this level.
func (pl *PriceLevel) TotalSize() decimal.Decimal {
	total := decimal.Zero
	for _, o := range pl.Orders {
		total = total.Add(o.Remaining())
	}
	return total
}

// priceOrder implements skiplist.Comparable over decimal.Decimal keys,
// ascending for asks (best = lowest price) and descending for bids
// (best = highest price) per §3's book ordering.
type priceOrder struct{ descending bool }

func (o priceOrder) Compare(lhs, rhs interface{}) int {
	a, b := lhs.(decimal.Decimal), rhs.(decimal.Decimal)
	if o.descending {
		return b.Cmp(a)
	}
	return a.Cmp(b)
}

// CalcScore maps a decimal price onto the float64 ordering score skiplist
// uses for its internal level index, negated for the descending (bid) side.
func (o priceOrder) CalcScore(key interface{}) float64 {
	f, _ := key.(decimal.Decimal).Float64()
	if o.descending {
		return -f
	}
	return f
}

// OrderBook is the in-memory book for a single market. Safe for concurrent
// use: mutations and best-of-book reads hold the embedded mutex, matching
// the teacher's OrderBook.mutex convention and §5's "single logical writer,
// concurrent-safe reads" requirement.
type OrderBook struct {
	MarketID int64

	mu   sync.RWMutex
	bids *skiplist.SkipList // price (desc) -> *PriceLevel
	asks *skiplist.SkipList // price (asc)  -> *PriceLevel
}

// New constructs an empty OrderBook for the given market.
func New(marketID int64) *OrderBook {
	return &OrderBook{
		MarketID: marketID,
		bids:     skiplist.New(priceOrder{descending: true}),
		asks:     skiplist.New(priceOrder{descending: false}),
	}
}

func (ob *OrderBook) sideFor(side models.OrderSide) *skiplist.SkipList {
	if side == models.OrderSideBuy {
		return ob.bids
	}
	return ob.asks
}

// Add inserts a non-terminal limit order into the book. Market orders carry
// no price and are never added (§4.2/§4.3: market orders are never placed
// on the book).
func (ob *OrderBook) Add(o *models.Order) {
	if o.Price == nil {
		return
	}
	ob.mu.Lock()
	defer ob.mu.Unlock()

	side := ob.sideFor(o.Side)
	if elem := side.Get(*o.Price); elem != nil {
		elem.Value.(*PriceLevel).add(o)
		return
	}
	level := &PriceLevel{Price: *o.Price}
	level.add(o)
	side.Set(*o.Price, level)
}

// Remove deletes the order with the given id from side/price if present.
// Reports whether a row was modified.
func (ob *OrderBook) Remove(id uuid.UUID, side models.OrderSide, price *decimal.Decimal) bool {
	if price == nil {
		return false
	}
	ob.mu.Lock()
	defer ob.mu.Unlock()

	s := ob.sideFor(side)
	elem := s.Get(*price)
	if elem == nil {
		return false
	}
	level := elem.Value.(*PriceLevel)
	if !level.remove(id) {
		return false
	}
	if level.isEmpty() {
		s.Remove(*price)
	}
	return true
}

// BestBid returns the oldest order at the best (highest) bid price, or nil.
func (ob *OrderBook) BestBid() *models.Order { return ob.bestOf(ob.bids) }

// BestAsk returns the oldest order at the best (lowest) ask price, or nil.
func (ob *OrderBook) BestAsk() *models.Order { return ob.bestOf(ob.asks) }

func (ob *OrderBook) bestOf(side *skiplist.SkipList) *models.Order {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	front := side.Front()
	if front == nil {
		return nil
	}
	level := front.Value.(*PriceLevel)
	if len(level.Orders) == 0 {
		return nil
	}
	return level.Orders[0]
}

// Level is a read-only aggregated view of one price for snapshots.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// IterBids returns an observational, point-in-time view of the bid side,
// best price first.
func (ob *OrderBook) IterBids() []Level { return ob.snapshot(ob.bids) }

// IterAsks returns an observational, point-in-time view of the ask side,
// best price first.
func (ob *OrderBook) IterAsks() []Level { return ob.snapshot(ob.asks) }

func (ob *OrderBook) snapshot(side *skiplist.SkipList) []Level {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	levels := make([]Level, 0, side.Len())
	for elem := side.Front(); elem != nil; elem = elem.Next() {
		pl := elem.Value.(*PriceLevel)
		if pl.isEmpty() {
			continue
		}
		levels = append(levels, Level{Price: pl.Price, Size: pl.TotalSize()})
	}
	return levels
}

// Depth returns the number of resting orders on each side.
func (ob *OrderBook) Depth() (bids, asks int) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	for elem := ob.bids.Front(); elem != nil; elem = elem.Next() {
		bids += len(elem.Value.(*PriceLevel).Orders)
	}
	for elem := ob.asks.Front(); elem != nil; elem = elem.Next() {
		asks += len(elem.Value.(*PriceLevel).Orders)
	}
	return bids, asks
}
