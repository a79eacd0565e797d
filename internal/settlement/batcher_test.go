package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/hyperperp/matchcore/internal/chaingateway"
	"github.com/hyperperp/matchcore/internal/chainscale"
	"github.com/hyperperp/matchcore/internal/durability"
	"github.com/hyperperp/matchcore/internal/models"
)

func mkTrade(marketID int64, price float64, createdAt time.Time) *models.Trade {
	return &models.Trade{
		ID:        uuid.New(),
		MarketID:  marketID,
		TakerAddr: "0xtaker",
		MakerAddr: "0xmaker",
		Size:      decimal.NewFromInt(1),
		Price:     decimal.NewFromFloat(price),
		Side:      models.OrderSideBuy,
		CreatedAt: createdAt,
	}
}

// TestGroupTradesSplitsOnMarketBoundary is scenario E: pending trades
// M1, M1, M2, M1 (batch_size=10) produce three batches [M1,M1], [M2], [M1].
func TestGroupTradesSplitsOnMarketBoundary(t *testing.T) {
	base := time.Now()
	trades := []*models.Trade{
		mkTrade(1, 100, base),
		mkTrade(1, 101, base.Add(time.Second)),
		mkTrade(2, 50, base.Add(2*time.Second)),
		mkTrade(1, 102, base.Add(3*time.Second)),
	}

	groups := groupTrades(trades, 10)
	require.Len(t, groups, 3)
	require.Len(t, groups[0], 2)
	require.Equal(t, int64(1), groups[0][0].MarketID)
	require.Len(t, groups[1], 1)
	require.Equal(t, int64(2), groups[1][0].MarketID)
	require.Len(t, groups[2], 1)
	require.Equal(t, int64(1), groups[2][0].MarketID)
}

func TestGroupTradesSplitsOnBatchSize(t *testing.T) {
	base := time.Now()
	trades := []*models.Trade{
		mkTrade(1, 100, base),
		mkTrade(1, 101, base.Add(time.Second)),
		mkTrade(1, 102, base.Add(2*time.Second)),
	}

	groups := groupTrades(trades, 2)
	require.Len(t, groups, 2)
	require.Len(t, groups[0], 2)
	require.Len(t, groups[1], 1)
}

func TestSettleGroupComputesSlippageEnvelope(t *testing.T) {
	store := durability.NewMemoryStore()
	gateway := chaingateway.NewMockGateway()
	b := New(store, gateway).WithSlippage(decimal.NewFromFloat(0.05))

	base := time.Now()
	trades := []*models.Trade{
		mkTrade(1, 100, base),
		mkTrade(1, 110, base.Add(time.Second)),
	}
	require.NoError(t, store.InsertTrade(context.Background(), trades[0]))
	require.NoError(t, store.InsertTrade(context.Background(), trades[1]))

	require.NoError(t, b.DrainOnce(context.Background()))

	pending, err := store.GetPendingTrades(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending, "trades must be assigned to the new batch")

	require.Len(t, gateway.SubmittedBatches, 1)
	payload := gateway.SubmittedBatches[0]
	require.Len(t, payload.Fills, 2)

	// price_range = 10, slippage = 0.05 -> envelope_min = 100 - 0.5 = 99.5,
	// envelope_max = 110 + 0.5 = 110.5.
	wantMin := decimal.NewFromFloat(99.5).Mul(decimal.NewFromInt(chainscale.Scale)).BigInt()
	require.Equal(t, 0, payload.MinPriceScaled.Cmp(wantMin))
}

func TestDrainOnceMarksBatchFailedOnSubmissionError(t *testing.T) {
	store := durability.NewMemoryStore()
	gateway := chaingateway.NewMockGateway()
	gateway.SimulateFailure = true
	b := New(store, gateway)

	trade := mkTrade(1, 100, time.Now())
	require.NoError(t, store.InsertTrade(context.Background(), trade))
	require.NoError(t, b.DrainOnce(context.Background()))

	pending, err := store.GetPendingTrades(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending, "a failed batch's trades remain assigned, not pending")
}

func TestDrainOnceNoopWhenNoPendingTrades(t *testing.T) {
	store := durability.NewMemoryStore()
	gateway := chaingateway.NewMockGateway()
	b := New(store, gateway)
	require.NoError(t, b.DrainOnce(context.Background()))
	require.Empty(t, gateway.SubmittedBatches)
}
