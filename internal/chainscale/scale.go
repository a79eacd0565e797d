// Package chainscale converts decimal prices/sizes into the fixed-point,
// u128-shaped integers the Chain Gateway's settlement contract expects
// (§6). Grounded verbatim on the Rust original's aptos_client.rs
// (decimal_to_u128, price * Decimal::from(100_000_000), clamp-on-overflow).
package chainscale

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/hyperperp/matchcore/internal/models"
)

// Scale is the fixed-point factor applied to every price before it is sent
// on-chain: price_scaled = price * 10^8.
const Scale = 100_000_000

// feeBps is the flat protocol fee, basis points, carried in every fill per
// §6's payload shape.
const feeBps = 10

// maxU128 is the clamp ceiling for price_scaled/size fields, mirroring the
// Rust original's u128::MAX overflow clamp.
var maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Fill is one trade as it appears in a submitted batch payload.
type Fill struct {
	Taker       string
	Maker       string
	MarketID    uint64
	Size        *big.Int // u128
	PriceScaled *big.Int // u128, price * 10^8
	FeeBps      uint64
	Timestamp   uint64 // unix seconds
}

// BatchPayload is the bit-exact shape submitted to the Chain Gateway (§6).
type BatchPayload struct {
	Fills          []Fill
	OracleTS       uint64
	MinPriceScaled *big.Int // u128, clamped to 0 on underflow
	MaxPriceScaled *big.Int // u128, clamped to u128::MAX on overflow
	Expiry         uint64
}

// clampToU128 clamps an integer to [0, u128::MAX] the way the Rust original's decimal_to_u128
// does with unwrap_or(0) / unwrap_or(u128::MAX).
func clampToU128(i *big.Int) *big.Int {
	if i.Sign() < 0 {
		return big.NewInt(0)
	}
	if i.Cmp(maxU128) > 0 {
		return new(big.Int).Set(maxU128)
	}
	return i
}

// decimalToScaledUint converts price*10^8 to a clamped u128-shaped big.Int.
func decimalToScaledUint(d decimal.Decimal) *big.Int {
	return clampToU128(d.Mul(decimal.NewFromInt(Scale)).BigInt())
}

// decimalToUint converts a size directly to a clamped u128-shaped big.Int,
// with no scaling factor applied: the Rust original's decimal_to_u128(size)
// passes size through unscaled, unlike price.
func decimalToUint(d decimal.Decimal) *big.Int {
	return clampToU128(d.BigInt())
}

// NewFill builds a chain payload Fill from one executed trade.
func NewFill(t models.Trade, ts uint64) Fill {
	return Fill{
		Taker:       t.TakerAddr,
		Maker:       t.MakerAddr,
		MarketID:    uint64(t.MarketID),
		Size:        decimalToUint(t.Size),
		PriceScaled: decimalToScaledUint(t.Price),
		FeeBps:      feeBps,
		Timestamp:   ts,
	}
}

// NewBatchPayload builds the full payload for a settlement batch from its
// trades and envelope, per §4.4/§6.
func NewBatchPayload(trades []models.Trade, minPrice, maxPrice decimal.Decimal, oracleTS, expiry uint64) BatchPayload {
	fills := make([]Fill, 0, len(trades))
	for _, t := range trades {
		fills = append(fills, NewFill(t, uint64(t.CreatedAt.Unix())))
	}
	return BatchPayload{
		Fills:          fills,
		OracleTS:       oracleTS,
		MinPriceScaled: decimalToScaledUint(minPrice),
		MaxPriceScaled: decimalToScaledUint(maxPrice),
		Expiry:         expiry,
	}
}
