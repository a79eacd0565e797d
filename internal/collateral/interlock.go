// Package collateral brackets order submission and cancellation with
// Chain Gateway fund movement (§4.5): freeze before a match is allowed to
// proceed, unfreeze after a cancellation is durable.
package collateral

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/hyperperp/matchcore/internal/chaingateway"
	"github.com/hyperperp/matchcore/internal/models"
)

// Interlock wraps a chaingateway.Gateway with the collateral sequencing
// rules §4.5 specifies.
type Interlock struct {
	gateway        chaingateway.Gateway
	confirmAttempts int
}

// New constructs an Interlock. confirmAttempts is the bounded retry count
// passed to WaitForConfirmation (§5: "up to 10 confirmation polls").
func New(gateway chaingateway.Gateway, confirmAttempts int) *Interlock {
	if confirmAttempts <= 0 {
		confirmAttempts = 10
	}
	return &Interlock{gateway: gateway, confirmAttempts: confirmAttempts}
}

// RequiredCollateral computes max(1, floor(notional/10)) where notional is
// size * (price if Limit else 1), mapped to integer units (§4.5).
func RequiredCollateral(o *models.Order) int64 {
	unitPrice := decimal.NewFromInt(1)
	if o.Type == models.OrderTypeLimit && o.Price != nil {
		unitPrice = *o.Price
	}
	notional := o.Size.Mul(unitPrice)
	units := notional.Div(decimal.NewFromInt(10)).Floor()
	amount := units.IntPart()
	return int64(math.Max(1, float64(amount)))
}

// FreezeForOrder validates and freezes collateral for a newly submitted
// order. reconciliationKey is the deterministic identifier (§9 open
// question i) the Chain Gateway can use to replay an interrupted freeze.
// Returns models.ErrInsufficientCollateral or models.ErrChainUnavailable on
// rejection; the caller must not persist or match the order in that case.
func (in *Interlock) FreezeForOrder(ctx context.Context, o *models.Order, reconciliationKey string) error {
	amount := RequiredCollateral(o)

	ok, err := in.gateway.ValidateCollateral(ctx, o.OwnerAddr, amount)
	if err != nil {
		return fmt.Errorf("%w: validate_collateral: %v", models.ErrChainUnavailable, err)
	}
	if !ok {
		return models.ErrInsufficientCollateral
	}

	txHash, err := in.gateway.FreezeFunds(ctx, o.OwnerAddr, amount, o.MarketID, reconciliationKey)
	if err != nil {
		return fmt.Errorf("%w: freeze_funds: %v", models.ErrChainUnavailable, err)
	}

	confirmed, err := in.gateway.WaitForConfirmation(ctx, txHash, in.confirmAttempts)
	if err != nil {
		return fmt.Errorf("%w: wait_for_confirmation(freeze): %v", models.ErrChainUnavailable, err)
	}
	if !confirmed {
		return fmt.Errorf("%w: freeze did not confirm", models.ErrChainUnavailable)
	}
	return nil
}

// UnfreezeForCancel releases the collateral still backing the cancelled
// remainder of an order. A confirmation failure here is surfaced to the
// caller but never resurrects the already-durable cancellation (§4.5).
func (in *Interlock) UnfreezeForCancel(ctx context.Context, o *models.Order) error {
	amount := unfreezeAmount(o)
	if amount <= 0 {
		return nil
	}

	txHash, err := in.gateway.UnfreezeFunds(ctx, o.OwnerAddr, amount)
	if err != nil {
		return fmt.Errorf("%w: unfreeze_funds: %v", models.ErrChainUnavailable, err)
	}

	confirmed, err := in.gateway.WaitForConfirmation(ctx, txHash, in.confirmAttempts)
	if err != nil {
		return fmt.Errorf("%w: wait_for_confirmation(unfreeze): %v", models.ErrChainUnavailable, err)
	}
	if !confirmed {
		return fmt.Errorf("%w: unfreeze did not confirm", models.ErrChainUnavailable)
	}
	return nil
}

// unfreezeAmount computes the collateral to release for a cancelled order's
// remaining size, scaled the same way as RequiredCollateral.
func unfreezeAmount(o *models.Order) int64 {
	unitPrice := decimal.NewFromInt(1)
	if o.Type == models.OrderTypeLimit && o.Price != nil {
		unitPrice = *o.Price
	}
	notional := o.Remaining().Mul(unitPrice)
	return notional.Div(decimal.NewFromInt(10)).Floor().IntPart()
}
