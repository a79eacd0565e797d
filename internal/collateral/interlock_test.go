package collateral

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/hyperperp/matchcore/internal/chaingateway"
	"github.com/hyperperp/matchcore/internal/models"
)

func limitOrder(price, size float64) *models.Order {
	p := decimal.NewFromFloat(price)
	return &models.Order{
		OwnerAddr: "0xalice",
		MarketID:  1,
		Type:      models.OrderTypeLimit,
		Price:     &p,
		Size:      decimal.NewFromFloat(size),
	}
}

func TestRequiredCollateralFloorsNotionalOverTen(t *testing.T) {
	o := limitOrder(100, 2) // notional 200 -> 20
	if got := RequiredCollateral(o); got != 20 {
		t.Fatalf("expected 20, got %d", got)
	}
}

func TestRequiredCollateralFloorsToAtLeastOne(t *testing.T) {
	o := limitOrder(1, 1) // notional 1 -> floor(0.1) = 0, clamped to 1
	if got := RequiredCollateral(o); got != 1 {
		t.Fatalf("expected minimum collateral of 1, got %d", got)
	}
}

func TestRequiredCollateralMarketOrderUsesUnitPrice(t *testing.T) {
	o := &models.Order{Type: models.OrderTypeMarket, Size: decimal.NewFromInt(50)}
	if got := RequiredCollateral(o); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
}

func TestFreezeForOrderRejectsInsufficientCollateral(t *testing.T) {
	gw := chaingateway.NewMockGateway() // zero balance
	in := New(gw, 1)

	o := limitOrder(100, 2)
	err := in.FreezeForOrder(context.Background(), o, "key-1")
	if err != models.ErrInsufficientCollateral {
		t.Fatalf("expected ErrInsufficientCollateral, got %v", err)
	}
}

func TestFreezeForOrderSucceedsWithSufficientBalance(t *testing.T) {
	gw := chaingateway.NewMockGateway()
	gw.Balances["0xalice"] = 1000
	in := New(gw, 1)

	o := limitOrder(100, 2)
	if err := in.FreezeForOrder(context.Background(), o, "key-1"); err != nil {
		t.Fatalf("expected freeze to succeed, got %v", err)
	}
	if gw.Frozen["0xalice"] != 20 {
		t.Fatalf("expected 20 frozen, got %d", gw.Frozen["0xalice"])
	}
}

func TestUnfreezeForCancelNoopWhenNothingRemains(t *testing.T) {
	gw := chaingateway.NewMockGateway()
	in := New(gw, 1)

	o := limitOrder(100, 0) // zero remaining => zero unfreeze
	if err := in.UnfreezeForCancel(context.Background(), o); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if len(gw.SubmittedBatches) != 0 {
		t.Fatal("unexpected batch submission")
	}
}

func TestUnfreezeForCancelReleasesRemaining(t *testing.T) {
	gw := chaingateway.NewMockGateway()
	gw.Frozen["0xalice"] = 20
	in := New(gw, 1)

	o := limitOrder(100, 2)
	if err := in.UnfreezeForCancel(context.Background(), o); err != nil {
		t.Fatalf("expected unfreeze to succeed, got %v", err)
	}
	if gw.Frozen["0xalice"] != 0 {
		t.Fatalf("expected frozen back to 0, got %d", gw.Frozen["0xalice"])
	}
}
