// Package matching implements the authoritative order-submission pipeline:
// validation, collateral freeze, persistence, price-time matching against
// the resting book, and trade broadcast (§4.3).
//
// This file holds the pure matching-rule helpers, grounded on the teacher's
// matcher.go (canMatch/executeTrade) and the Rust original's
// match_limit_order/match_market_order. Unlike the teacher, which buffers
// every trade and order update into a MatchResult and persists it in one
// shot at the end, Engine.SubmitOrder (engine.go) persists each trade and
// maker update incrementally as the loop runs, matching the original's
// per-iteration database.insert_trade(...).await? pattern.
package matching

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hyperperp/matchcore/internal/models"
)

// canCross reports whether taker can trade against maker at maker's price.
// A market taker always crosses; a limit taker crosses only when its price
// is at least as aggressive as the maker's (buy >= maker ask, sell <= maker
// bid).
func canCross(taker, maker *models.Order) bool {
	if taker.Type == models.OrderTypeMarket {
		return true
	}
	if taker.Price == nil || maker.Price == nil {
		return false
	}
	if taker.Side == models.OrderSideBuy {
		return taker.Price.GreaterThanOrEqual(*maker.Price)
	}
	return taker.Price.LessThanOrEqual(*maker.Price)
}

// fillSize is the size traded between taker and maker: the smaller of the
// two sides' remaining size.
func fillSize(taker, maker *models.Order) decimal.Decimal {
	tr, mr := taker.Remaining(), maker.Remaining()
	if tr.LessThan(mr) {
		return tr
	}
	return mr
}

// newTrade builds the Trade record for one fill. Price is always the
// maker's resting price: the maker's price always wins, so any price
// improvement for a limit taker accrues to the taker (§4.3 invariant).
func newTrade(taker, maker *models.Order, size decimal.Decimal, createdAt time.Time) models.Trade {
	return models.Trade{
		ID:           uuid.New(),
		MarketID:     maker.MarketID,
		TakerOrderID: taker.ID,
		MakerOrderID: maker.ID,
		TakerAddr:    taker.OwnerAddr,
		MakerAddr:    maker.OwnerAddr,
		Size:         size,
		Price:        *maker.Price,
		Side:         taker.Side,
		CreatedAt:    createdAt,
	}
}

// applyFill credits a fill to an order and advances its status.
func applyFill(o *models.Order, size decimal.Decimal, updatedAt time.Time) {
	o.FilledSize = o.FilledSize.Add(size)
	o.UpdatedAt = updatedAt
	finalizeStatus(o)
}

// finalizeStatus derives an order's status from size/filled_size. It never
// downgrades a terminal non-fill status (cancelled/expired) set elsewhere.
func finalizeStatus(o *models.Order) {
	if o.Status == models.OrderStatusCancelled || o.Status == models.OrderStatusExpired {
		return
	}
	switch {
	case o.Remaining().LessThanOrEqual(decimal.Zero):
		o.Status = models.OrderStatusFilled
	case o.FilledSize.GreaterThan(decimal.Zero):
		o.Status = models.OrderStatusPartiallyFilled
	default:
		o.Status = models.OrderStatusPending
	}
}
