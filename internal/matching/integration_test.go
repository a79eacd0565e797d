package matching

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperperp/matchcore/internal/chaingateway"
	"github.com/hyperperp/matchcore/internal/collateral"
	"github.com/hyperperp/matchcore/internal/durability"
	"github.com/hyperperp/matchcore/internal/models"
)

func newTestEngine(t *testing.T) (*Engine, *chaingateway.MockGateway) {
	t.Helper()
	store := durability.NewMemoryStore()
	gateway := chaingateway.NewMockGateway()
	gateway.Balances["alice"] = 1_000_000
	gateway.Balances["bob"] = 1_000_000
	interlock := collateral.New(gateway, 10)
	return New(store, interlock, nil), gateway
}

func limitOrder(owner string, side models.OrderSide, price, size float64) *models.Order {
	p := decimal.NewFromFloat(price)
	return &models.Order{
		ID:        uuid.New(),
		OwnerAddr: owner,
		MarketID:  1,
		Side:      side,
		Type:      models.OrderTypeLimit,
		Size:      decimal.NewFromFloat(size),
		Price:     &p,
		Status:    models.OrderStatusPending,
	}
}

// TestStartupRecovery verifies that pending/partially-filled limit orders
// are restored into the in-memory book on engine startup, at their prices
// and with their remaining size.
func TestStartupRecovery(t *testing.T) {
	store := durability.NewMemoryStore()
	gateway := chaingateway.NewMockGateway()
	interlock := collateral.New(gateway, 10)
	ctx := context.Background()

	first := limitOrder("alice", models.OrderSideBuy, 49000, 1.5)
	second := limitOrder("alice2", models.OrderSideBuy, 49000, 0.5)
	ask := limitOrder("bob", models.OrderSideSell, 51000, 2.0)
	ask.FilledSize = decimal.NewFromFloat(1.0)
	ask.Status = models.OrderStatusPartiallyFilled

	for _, o := range []*models.Order{first, second, ask} {
		require.NoError(t, store.InsertOrder(ctx, o))
	}

	eng := New(store, interlock, nil)
	require.NoError(t, eng.LoadPendingOrders(ctx))

	book := eng.getBook(1)

	bestBid := book.BestBid()
	require.NotNil(t, bestBid)
	assert.True(t, bestBid.Price.Equal(decimal.NewFromFloat(49000)))

	bestAsk := book.BestAsk()
	require.NotNil(t, bestAsk)
	assert.True(t, bestAsk.Price.Equal(decimal.NewFromFloat(51000)))
	assert.True(t, bestAsk.Remaining().Equal(decimal.NewFromFloat(1.0)))

	bids, asks := book.Depth()
	assert.Equal(t, 2, bids, "both resting bids at 49000 load into the book")
	assert.Equal(t, 1, asks)
}

// TestConcurrentOrderPlacement submits many orders for the same market from
// concurrent goroutines and checks the pipeline never errors and every
// order is durably persisted, matching the teacher's
// TestConcurrentOrderPlacement shape but against the Store contract instead
// of raw SQL row counts.
func TestConcurrentOrderPlacement(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	const numGoroutines = 10
	const ordersPerGoroutine = 5
	total := numGoroutines * ordersPerGoroutine

	var wg sync.WaitGroup
	errs := make(chan error, total)

	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func(goroutineID int) {
			defer wg.Done()
			for i := 0; i < ordersPerGoroutine; i++ {
				var o *models.Order
				if (goroutineID+i)%2 == 0 {
					o = limitOrder("alice", models.OrderSideBuy, 49000+float64(i*10), 0.1)
				} else {
					o = limitOrder("bob", models.OrderSideSell, 51000+float64(i*10), 0.1)
				}
				_, err := eng.SubmitOrder(ctx, o)
				errs <- err
			}
		}(g)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	orders, err := eng.store.OrdersByUser(ctx, "alice", nil, 0, 0)
	require.NoError(t, err)
	ordersBob, err := eng.store.OrdersByUser(ctx, "bob", nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, total, len(orders)+len(ordersBob))

	for _, o := range append(orders, ordersBob...) {
		switch o.Status {
		case models.OrderStatusPending, models.OrderStatusPartiallyFilled, models.OrderStatusFilled:
		default:
			t.Errorf("order %s has unexpected status %s", o.ID, o.Status)
		}
	}
}
