package chainscale

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hyperperp/matchcore/internal/models"
)

func TestNewFillScalesPriceNotSize(t *testing.T) {
	trade := models.Trade{
		ID:           uuid.New(),
		MarketID:     7,
		TakerAddr:    "0xtaker",
		MakerAddr:    "0xmaker",
		Size:         decimal.NewFromInt(3),
		Price:        decimal.NewFromFloat(50000.5),
		CreatedAt:    time.Now(),
	}

	fill := NewFill(trade, 1234567890)

	if fill.Size.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("expected unscaled size 3, got %s", fill.Size.String())
	}
	wantPrice := big.NewInt(5000050000000)
	if fill.PriceScaled.Cmp(wantPrice) != 0 {
		t.Fatalf("expected price_scaled %s, got %s", wantPrice.String(), fill.PriceScaled.String())
	}
	if fill.FeeBps != 10 {
		t.Fatalf("expected fee_bps 10, got %d", fill.FeeBps)
	}
	if fill.MarketID != 7 {
		t.Fatalf("expected market_id 7, got %d", fill.MarketID)
	}
}

func TestDecimalToScaledUintClampsNegativeToZero(t *testing.T) {
	got := decimalToScaledUint(decimal.NewFromInt(-5))
	if got.Sign() != 0 {
		t.Fatalf("expected 0 for negative input, got %s", got.String())
	}
}

func TestDecimalToScaledUintClampsOverflowToMax(t *testing.T) {
	huge := decimal.New(1, 40) // 10^40, far beyond u128 after *10^8
	got := decimalToScaledUint(huge)
	if got.Cmp(maxU128) != 0 {
		t.Fatalf("expected clamp to u128 max, got %s", got.String())
	}
}

func TestNewBatchPayloadEnvelope(t *testing.T) {
	trades := []models.Trade{
		{Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1), CreatedAt: time.Now()},
		{Price: decimal.NewFromInt(105), Size: decimal.NewFromInt(1), CreatedAt: time.Now()},
	}
	payload := NewBatchPayload(trades, decimal.NewFromInt(95), decimal.NewFromInt(110), 1000, 1300)

	if len(payload.Fills) != 2 {
		t.Fatalf("expected 2 fills, got %d", len(payload.Fills))
	}
	if payload.OracleTS != 1000 || payload.Expiry != 1300 {
		t.Fatalf("unexpected oracle_ts/expiry: %+v", payload)
	}
	wantMin := big.NewInt(9500000000)
	wantMax := big.NewInt(11000000000)
	if payload.MinPriceScaled.Cmp(wantMin) != 0 {
		t.Fatalf("expected min_price_scaled %s, got %s", wantMin, payload.MinPriceScaled)
	}
	if payload.MaxPriceScaled.Cmp(wantMax) != 0 {
		t.Fatalf("expected max_price_scaled %s, got %s", wantMax, payload.MaxPriceScaled)
	}
}
