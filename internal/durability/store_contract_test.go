package durability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/hyperperp/matchcore/internal/models"
)

// runStoreContract exercises the Store interface's documented guarantees
// against any implementation; used directly by the in-memory tests and by
// the MySQL integration test when DB_DSN is set.
func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	price := decimal.NewFromInt(100)
	order := &models.Order{
		ID:        uuid.New(),
		OwnerAddr: "0xalice",
		MarketID:  1,
		Side:      models.OrderSideBuy,
		Type:      models.OrderTypeLimit,
		Size:      decimal.NewFromInt(10),
		Price:     &price,
		Status:    models.OrderStatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	require.NoError(t, store.InsertOrder(ctx, order))
	require.ErrorIs(t, store.InsertOrder(ctx, order), models.ErrAlreadyExists)

	got, err := store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, got.Size.Equal(order.Size))
	require.Equal(t, models.OrderStatusPending, got.Status)

	order.FilledSize = decimal.NewFromInt(4)
	order.Status = models.OrderStatusPartiallyFilled
	order.UpdatedAt = time.Now()
	require.NoError(t, store.UpdateOrder(ctx, order))

	pending, err := store.GetPendingOrders(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.True(t, pending[0].FilledSize.Equal(decimal.NewFromInt(4)))

	ok, err := store.CancelOrder(ctx, order.ID, time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.CancelOrder(ctx, order.ID, time.Now())
	require.NoError(t, err)
	require.False(t, ok, "cancelling an already-terminal order must be a no-op")

	trade := &models.Trade{
		ID:           uuid.New(),
		MarketID:     1,
		TakerOrderID: uuid.New(),
		MakerOrderID: order.ID,
		TakerAddr:    "0xbob",
		MakerAddr:    "0xalice",
		Size:         decimal.NewFromInt(4),
		Price:        price,
		Side:         models.OrderSideBuy,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, store.InsertTrade(ctx, trade))

	pendingTrades, err := store.GetPendingTrades(ctx)
	require.NoError(t, err)
	require.Len(t, pendingTrades, 1)

	batch := &models.SettlementBatch{
		ID:              uuid.New(),
		MarketID:        1,
		OracleTimestamp: time.Now().Unix(),
		MinPrice:        price,
		MaxPrice:        price,
		ExpiryTimestamp: time.Now().Add(5 * time.Minute).Unix(),
		Status:          models.BatchStatusPending,
		CreatedAt:       time.Now(),
	}
	require.NoError(t, store.InsertSettlementBatch(ctx, batch))
	require.NoError(t, store.AssignTradesToBatch(ctx, []uuid.UUID{trade.ID}, batch.ID))

	// re-assigning the same trade to a different batch must fail.
	other := uuid.New()
	require.ErrorIs(t, store.AssignTradesToBatch(ctx, []uuid.UUID{trade.ID}, other), models.ErrAlreadyAssigned)

	pendingTrades, err = store.GetPendingTrades(ctx)
	require.NoError(t, err)
	require.Empty(t, pendingTrades, "assigned trades must no longer be pending")

	hash := "0xdeadbeef"
	require.NoError(t, store.UpdateSettlementBatchStatus(ctx, batch.ID, models.BatchStatusConfirmed, &hash))

	gotBatch, err := store.GetSettlementBatch(ctx, batch.ID)
	require.NoError(t, err)
	require.Equal(t, models.BatchStatusConfirmed, gotBatch.Status)
	require.Equal(t, hash, *gotBatch.TransactionHash)

	trades, err := store.TradesByUser(ctx, "0xbob", time.Time{}, time.Time{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	allTrades, err := store.AllTrades(ctx, time.Time{}, time.Time{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, allTrades, 1)

	futureStart := trade.CreatedAt.Add(time.Hour)
	noTrades, err := store.TradesByUser(ctx, "0xbob", futureStart, time.Time{}, 0, 0)
	require.NoError(t, err)
	require.Empty(t, noTrades, "start bound after the trade must exclude it")

	cancelled := models.OrderStatusCancelled
	cancelledOrders, err := store.OrdersByUser(ctx, "0xalice", &cancelled, 0, 0)
	require.NoError(t, err)
	require.Len(t, cancelledOrders, 1)

	pendingOnly := models.OrderStatusPending
	noPending, err := store.OrdersByUser(ctx, "0xalice", &pendingOnly, 0, 0)
	require.NoError(t, err)
	require.Empty(t, noPending, "status filter must exclude the cancelled order")

	offsetOrders, err := store.OrdersByUser(ctx, "0xalice", nil, 0, 1)
	require.NoError(t, err)
	require.Empty(t, offsetOrders, "offset past the only row must return nothing")
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStoreGetOrderNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.GetOrder(context.Background(), uuid.New())
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryStoreCancelUnknownOrder(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.CancelOrder(context.Background(), uuid.New(), time.Now())
	require.ErrorIs(t, err, models.ErrNotFound)
}
