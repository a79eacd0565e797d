// Package durability is the narrow persistence boundary between the
// matching engine and whatever database backs it (§4.1). It defines the
// Store contract, a MySQL-backed implementation grounded on the teacher's
// internal/db, and an in-memory fake used by tests that don't want a live
// database.
package durability

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hyperperp/matchcore/internal/models"
)

// Store is the durability contract the matching engine and settlement
// batcher depend on. Every write is idempotent on the entity's id: inserting
// an id that already exists returns models.ErrAlreadyExists, and updating an
// unknown id returns models.ErrNotFound, so a crash-and-retry never
// double-applies a write.
type Store interface {
	// InsertOrder persists a newly submitted order. Returns
	// models.ErrAlreadyExists if the id is already present.
	InsertOrder(ctx context.Context, o *models.Order) error

	// UpdateOrder persists the full current state of an existing order
	// (filled_size, status, updated_at). Returns models.ErrNotFound if the
	// id is unknown.
	UpdateOrder(ctx context.Context, o *models.Order) error

	// CancelOrder conditionally transitions an order to cancelled: it
	// succeeds only if the order's current status is not terminal, and
	// reports via the bool whether it actually changed anything so callers
	// can distinguish "already terminal" from "didn't exist" (the latter
	// returns models.ErrNotFound).
	CancelOrder(ctx context.Context, id uuid.UUID, cancelledAt time.Time) (bool, error)

	// GetOrder returns a single order by id, or models.ErrNotFound.
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)

	// GetPendingOrders returns every order not in a terminal status across
	// all markets, oldest created_at first — used at startup to rebuild the
	// in-memory books (§4.3 recovery).
	GetPendingOrders(ctx context.Context) ([]*models.Order, error)

	// OrdersByUser returns orders owned by an address, newest first,
	// optionally restricted to a single status. limit/offset of 0 mean
	// unbounded/no skip respectively.
	OrdersByUser(ctx context.Context, owner string, status *models.OrderStatus, limit, offset int) ([]*models.Order, error)

	// InsertTrade persists a new trade record.
	InsertTrade(ctx context.Context, t *models.Trade) error

	// GetPendingTrades returns every trade not yet assigned to a
	// settlement batch, across all markets, oldest created_at first — the
	// settlement batcher groups this stream into single-market batches
	// itself (§4.4 step 2).
	GetPendingTrades(ctx context.Context) ([]*models.Trade, error)

	// AssignTradesToBatch atomically stamps a set of trades with a
	// settlement batch id. Returns models.ErrAlreadyAssigned if any trade
	// in the set already carries a different batch id.
	AssignTradesToBatch(ctx context.Context, tradeIDs []uuid.UUID, batchID uuid.UUID) error

	// TradesByUser returns trades involving an address (as taker or
	// maker), newest first, optionally restricted to a [start, end]
	// created_at range. A zero start or end leaves that bound open.
	TradesByUser(ctx context.Context, addr string, start, end time.Time, limit, offset int) ([]*models.Trade, error)

	// AllTrades returns every trade across all users in a [start, end]
	// created_at range, newest first, with no address filter. A zero
	// start or end leaves that bound open.
	AllTrades(ctx context.Context, start, end time.Time, limit, offset int) ([]*models.Trade, error)

	// InsertSettlementBatch persists a newly formed batch, pending status.
	InsertSettlementBatch(ctx context.Context, b *models.SettlementBatch) error

	// UpdateSettlementBatchStatus transitions a batch's status and,
	// optionally, records its on-chain transaction hash.
	UpdateSettlementBatchStatus(ctx context.Context, id uuid.UUID, status models.BatchStatus, txHash *string) error

	// GetSettlementBatch returns a batch by id, or models.ErrNotFound.
	GetSettlementBatch(ctx context.Context, id uuid.UUID) (*models.SettlementBatch, error)
}
