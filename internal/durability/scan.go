package durability

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hyperperp/matchcore/internal/models"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func setDecimal(dst *decimal.Decimal, s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("parse decimal %q: %w", s, err)
	}
	*dst = d
	return nil
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var idStr string
	var side, typ, status string
	var price sql.NullString
	var size, filledSize string
	var expiresAt sql.NullTime

	err := row.Scan(&idStr, &o.OwnerAddr, &o.MarketID, &side, &typ, &price,
		&size, &filledSize, &status, &o.CreatedAt, &o.UpdatedAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse order id: %w", err)
	}
	o.Side = models.OrderSide(side)
	o.Type = models.OrderType(typ)
	o.Status = models.OrderStatus(status)

	if err := setDecimal(&o.Size, size); err != nil {
		return nil, err
	}
	if err := setDecimal(&o.FilledSize, filledSize); err != nil {
		return nil, err
	}
	if price.Valid {
		var p decimal.Decimal
		if err := setDecimal(&p, price.String); err != nil {
			return nil, err
		}
		o.Price = &p
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		o.ExpiresAt = &t
	}
	return &o, nil
}

func scanOrders(rows *sql.Rows) ([]*models.Order, error) {
	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return out, nil
}

func scanTrades(rows *sql.Rows) ([]*models.Trade, error) {
	var out []*models.Trade
	for rows.Next() {
		var t models.Trade
		var idStr, takerID, makerID, side string
		var size, price string
		var batchID sql.NullString

		if err := rows.Scan(&idStr, &t.MarketID, &takerID, &makerID, &t.TakerAddr, &t.MakerAddr,
			&size, &price, &side, &t.CreatedAt, &batchID); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}

		var err error
		if t.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("parse trade id: %w", err)
		}
		if t.TakerOrderID, err = uuid.Parse(takerID); err != nil {
			return nil, fmt.Errorf("parse taker order id: %w", err)
		}
		if t.MakerOrderID, err = uuid.Parse(makerID); err != nil {
			return nil, fmt.Errorf("parse maker order id: %w", err)
		}
		t.Side = models.OrderSide(side)
		if err := setDecimal(&t.Size, size); err != nil {
			return nil, err
		}
		if err := setDecimal(&t.Price, price); err != nil {
			return nil, err
		}
		if batchID.Valid {
			bid, err := uuid.Parse(batchID.String)
			if err != nil {
				return nil, fmt.Errorf("parse settlement batch id: %w", err)
			}
			t.SettlementBatchID = &bid
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return out, nil
}
