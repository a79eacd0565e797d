// Package models defines the core data types shared by the matching engine,
// the settlement batcher and the durability layer: orders, trades and
// settlement batches, along with the enumerated sides/types/statuses the
// spec pins down as fixed string sets.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderSide is the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusExpired         OrderStatus = "expired"
)

// IsTerminal reports whether the status ends an order's life in a book.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusExpired
}

// Order is a single resting or historical order.
type Order struct {
	ID          uuid.UUID
	OwnerAddr   string
	MarketID    int64
	Side        OrderSide
	Type        OrderType
	Size        decimal.Decimal
	Price       *decimal.Decimal // present iff Type == OrderTypeLimit
	FilledSize  decimal.Decimal
	Status      OrderStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExpiresAt   *time.Time
}

// Remaining returns the unfilled size of the order.
func (o *Order) Remaining() decimal.Decimal {
	return o.Size.Sub(o.FilledSize)
}

// Validate checks the structural invariants from the data model (§3):
// limit orders carry a positive price and market orders carry none, and
// size must be positive. It does not check filled_size/status consistency,
// which the engine maintains internally.
func (o *Order) Validate() error {
	if o.Size.LessThanOrEqual(decimal.Zero) {
		return NewValidationError("size must be positive")
	}
	switch o.Type {
	case OrderTypeLimit:
		if o.Price == nil || o.Price.LessThanOrEqual(decimal.Zero) {
			return NewValidationError("limit order requires a positive price")
		}
	case OrderTypeMarket:
		if o.Price != nil {
			return NewValidationError("market order must not carry a price")
		}
	default:
		return NewValidationError("unknown order type")
	}
	if o.Side != OrderSideBuy && o.Side != OrderSideSell {
		return NewValidationError("unknown order side")
	}
	return nil
}

// Trade is an immutable (except for SettlementBatchID) fill between a taker
// and a resting maker order.
type Trade struct {
	ID                 uuid.UUID
	MarketID           int64
	TakerOrderID       uuid.UUID
	MakerOrderID       uuid.UUID
	TakerAddr          string
	MakerAddr          string
	Size               decimal.Decimal
	Price              decimal.Decimal
	Side               OrderSide // taker's side
	CreatedAt          time.Time
	SettlementBatchID  *uuid.UUID
}

// BatchStatus is the lifecycle state of a settlement batch.
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusSubmitted BatchStatus = "submitted"
	BatchStatusConfirmed BatchStatus = "confirmed"
	BatchStatusFailed    BatchStatus = "failed"
)

// IsTerminal reports whether the batch status can no longer change.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusConfirmed || s == BatchStatusFailed
}

// SettlementBatch is a single-market, bounded collection of trades submitted
// together to the Chain Gateway.
type SettlementBatch struct {
	ID               uuid.UUID
	MarketID         int64
	Trades           []Trade
	OracleTimestamp  int64 // unix seconds
	MinPrice         decimal.Decimal
	MaxPrice         decimal.Decimal
	ExpiryTimestamp  int64 // unix seconds
	Status           BatchStatus
	TransactionHash  *string
	CreatedAt        time.Time
}
