// Package matching implements the authoritative order-submission pipeline:
// validation, collateral freeze, persistence, price-time matching against
// the resting book, and trade broadcast (§4.3). Engine is the main type;
// matcher.go holds the pure matching-rule helpers it calls into.
package matching

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hyperperp/matchcore/internal/collateral"
	"github.com/hyperperp/matchcore/internal/durability"
	"github.com/hyperperp/matchcore/internal/models"
	"github.com/hyperperp/matchcore/internal/orderbook"
	"github.com/hyperperp/matchcore/internal/snapshotcache"
)

// Engine is the matching engine: one in-memory book per market behind a
// per-market lock, the durability store, the collateral interlock, and the
// trade broadcast hub. Grounded on the teacher's Engine (db handle +
// per-symbol mutex map + in-memory order books), generalized from
// int64/string-symbol keys to uuid.UUID/int64-market keys.
type Engine struct {
	store     durability.Store
	interlock *collateral.Interlock
	clock     *models.MonotonicClock
	hub       *tradeHub
	cache     snapshotcache.Cache // optional; nil is a valid, supported value

	marketsMu     sync.RWMutex
	books         map[int64]*orderbook.OrderBook
	marketMutexes map[int64]*sync.Mutex
}

// New constructs an Engine. cache may be nil (§1: the engine must function
// correctly without a Snapshot Cache).
func New(store durability.Store, interlock *collateral.Interlock, cache snapshotcache.Cache) *Engine {
	return &Engine{
		store:         store,
		interlock:     interlock,
		clock:         models.NewMonotonicClock(),
		hub:           newTradeHub(1000),
		cache:         cache,
		books:         make(map[int64]*orderbook.OrderBook),
		marketMutexes: make(map[int64]*sync.Mutex),
	}
}

// getMarketMutex returns the per-market mutex, creating it if necessary.
// Generalizes the teacher's getSymbolMutex from a string symbol key to an
// int64 market id key (§5's single-logical-writer-per-market requirement).
func (e *Engine) getMarketMutex(marketID int64) *sync.Mutex {
	e.marketsMu.RLock()
	mtx, ok := e.marketMutexes[marketID]
	e.marketsMu.RUnlock()
	if ok {
		return mtx
	}

	e.marketsMu.Lock()
	defer e.marketsMu.Unlock()
	if mtx, ok = e.marketMutexes[marketID]; ok {
		return mtx
	}
	mtx = &sync.Mutex{}
	e.marketMutexes[marketID] = mtx
	return mtx
}

// getBook returns the in-memory OrderBook for a market, creating it if
// necessary.
func (e *Engine) getBook(marketID int64) *orderbook.OrderBook {
	e.marketsMu.RLock()
	ob, ok := e.books[marketID]
	e.marketsMu.RUnlock()
	if ok {
		return ob
	}

	e.marketsMu.Lock()
	defer e.marketsMu.Unlock()
	if ob, ok = e.books[marketID]; ok {
		return ob
	}
	ob = orderbook.New(marketID)
	e.books[marketID] = ob
	return ob
}

// SubmitOrder runs the full pipeline of §4.3 step (1)-(7): validate, freeze
// collateral, persist Pending, match against the book, persist each fill
// incrementally, rest any limit remainder, and broadcast. Unlike the
// teacher's PlaceOrder, which buffers trades/updates into a MatchResult and
// persists them after matching completes, this loop persists each trade and
// maker update as it is produced — matching the Rust original's per-
// iteration database.insert_trade(...).await?.
func (e *Engine) SubmitOrder(ctx context.Context, o *models.Order) ([]models.Trade, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	marketMtx := e.getMarketMutex(o.MarketID)
	marketMtx.Lock()
	defer marketMtx.Unlock()

	reconciliationKey := fmt.Sprintf("%d:%s:%s", o.MarketID, o.OwnerAddr, o.ID)
	if err := e.interlock.FreezeForOrder(ctx, o, reconciliationKey); err != nil {
		return nil, err
	}

	o.CreatedAt = e.clock.Now()
	o.UpdatedAt = o.CreatedAt
	o.Status = models.OrderStatusPending

	if err := e.store.InsertOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("persist submitted order: %w", err)
	}

	book := e.getBook(o.MarketID)
	opposite := oppositeSide(o.Side)

	var trades []models.Trade
	for o.Remaining().GreaterThan(decimal.Zero) {
		maker := bestOf(book, opposite)
		if maker == nil || !canCross(o, maker) {
			break
		}

		size := fillSize(o, maker)
		now := e.clock.Now()
		trade := newTrade(o, maker, size, now)

		applyFill(o, size, now)
		applyFill(maker, size, now)

		if err := e.store.InsertTrade(ctx, &trade); err != nil {
			return trades, fmt.Errorf("persist trade: %w", err)
		}
		if err := e.store.UpdateOrder(ctx, maker); err != nil {
			return trades, fmt.Errorf("persist maker update: %w", err)
		}
		if maker.Status.IsTerminal() {
			book.Remove(maker.ID, maker.Side, maker.Price)
		}

		trades = append(trades, trade)
		log.Info().
			Str("trade_id", trade.ID.String()).
			Int64("market_id", o.MarketID).
			Str("price", trade.Price.String()).
			Str("size", trade.Size.String()).
			Msg("trade emitted")
	}

	if err := e.store.UpdateOrder(ctx, o); err != nil {
		return trades, fmt.Errorf("persist taker update: %w", err)
	}

	if o.Type == models.OrderTypeLimit && !o.Status.IsTerminal() {
		book.Add(o)
	}

	if e.cache != nil {
		e.cache.Invalidate(o.MarketID)
	}
	for _, t := range trades {
		e.hub.publish(t)
	}

	return trades, nil
}

// CancelOrder cancels a resting or partially filled order: durable
// cancellation first, then book removal and collateral unfreeze. Returns
// false (not an error) if the order is unknown or already terminal, per
// §4.3/§7.
func (e *Engine) CancelOrder(ctx context.Context, id uuid.UUID) (bool, error) {
	o, err := e.store.GetOrder(ctx, id)
	if err != nil {
		if err == models.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("lookup order for cancel: %w", err)
	}

	marketMtx := e.getMarketMutex(o.MarketID)
	marketMtx.Lock()
	defer marketMtx.Unlock()

	cancelledAt := e.clock.Now()
	ok, err := e.store.CancelOrder(ctx, id, cancelledAt)
	if err != nil {
		if err == models.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("cancel order: %w", err)
	}
	if !ok {
		return false, nil
	}

	book := e.getBook(o.MarketID)
	if o.Price != nil {
		book.Remove(o.ID, o.Side, o.Price)
	}
	if e.cache != nil {
		e.cache.Invalidate(o.MarketID)
	}

	o.Status = models.OrderStatusCancelled
	o.UpdatedAt = cancelledAt
	if err := e.interlock.UnfreezeForCancel(ctx, o); err != nil {
		log.Warn().Err(err).Str("order_id", id.String()).Msg("unfreeze after cancel failed")
		return true, err
	}

	return true, nil
}

// SubscribeTrades returns a channel of future trades and a cancel func that
// releases the subscription. Delivery is best-effort: a slow subscriber
// loses old events rather than blocking matching (§4.3, §5).
func (e *Engine) SubscribeTrades() (<-chan models.Trade, func()) {
	return e.hub.subscribe()
}

// OrderBook returns a read-only aggregated view of a market's book, using
// the snapshot cache when present.
func (e *Engine) OrderBook(marketID int64) (bids, asks []orderbook.Level) {
	if e.cache != nil {
		if snap, ok := e.cache.Get(marketID); ok {
			return toOrderbookLevels(snap.Bids), toOrderbookLevels(snap.Asks)
		}
	}

	book := e.getBook(marketID)
	bids, asks = book.IterBids(), book.IterAsks()

	if e.cache != nil {
		e.cache.Put(marketID, toSnapshot(marketID, bids, asks))
	}
	return bids, asks
}

// LoadPendingOrders warms every market's in-memory book from durable state
// at startup, mirroring the teacher's LoadOpenOrders.
func (e *Engine) LoadPendingOrders(ctx context.Context) error {
	orders, err := e.store.GetPendingOrders(ctx)
	if err != nil {
		return fmt.Errorf("load pending orders: %w", err)
	}

	loaded := 0
	for _, o := range orders {
		if o.Type != models.OrderTypeLimit || o.Price == nil {
			continue
		}
		e.getBook(o.MarketID).Add(o)
		loaded++
	}
	log.Info().Int("count", loaded).Msg("loaded pending orders into order books")
	return nil
}

func oppositeSide(side models.OrderSide) models.OrderSide {
	if side == models.OrderSideBuy {
		return models.OrderSideSell
	}
	return models.OrderSideBuy
}

func bestOf(book *orderbook.OrderBook, side models.OrderSide) *models.Order {
	if side == models.OrderSideBuy {
		return book.BestBid()
	}
	return book.BestAsk()
}

func toOrderbookLevels(levels []snapshotcache.Level) []orderbook.Level {
	out := make([]orderbook.Level, len(levels))
	for i, l := range levels {
		out[i] = orderbook.Level{Price: l.Price, Size: l.Size}
	}
	return out
}

func toSnapshot(marketID int64, bids, asks []orderbook.Level) snapshotcache.BookSnapshot {
	return snapshotcache.BookSnapshot{
		MarketID: marketID,
		Bids:     toSnapshotLevels(bids),
		Asks:     toSnapshotLevels(asks),
	}
}

func toSnapshotLevels(levels []orderbook.Level) []snapshotcache.Level {
	out := make([]snapshotcache.Level, len(levels))
	for i, l := range levels {
		out[i] = snapshotcache.Level{Price: l.Price, Size: l.Size}
	}
	return out
}
