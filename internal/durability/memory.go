package durability

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hyperperp/matchcore/internal/models"
)

// MemoryStore is an in-process Store used by unit tests that don't want a
// live MySQL instance. It copies values in and out
// so callers can't mutate stored state through a returned pointer.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]models.Order
	trades map[uuid.UUID]models.Trade
	batches map[uuid.UUID]models.SettlementBatch
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:  make(map[uuid.UUID]models.Order),
		trades:  make(map[uuid.UUID]models.Trade),
		batches: make(map[uuid.UUID]models.SettlementBatch),
	}
}

func (s *MemoryStore) InsertOrder(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return models.ErrAlreadyExists
	}
	s.orders[o.ID] = *o
	return nil
}

func (s *MemoryStore) UpdateOrder(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		return models.ErrNotFound
	}
	s.orders[o.ID] = *o
	return nil
}

func (s *MemoryStore) CancelOrder(_ context.Context, id uuid.UUID, cancelledAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, models.ErrNotFound
	}
	if o.Status.IsTerminal() {
		return false, nil
	}
	o.Status = models.OrderStatusCancelled
	o.UpdatedAt = cancelledAt
	s.orders[id] = o
	return true, nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id uuid.UUID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := o
	return &cp, nil
}

func (s *MemoryStore) GetPendingOrders(_ context.Context) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Order
	for _, o := range s.orders {
		if o.Status.IsTerminal() {
			continue
		}
		cp := o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) OrdersByUser(_ context.Context, owner string, status *models.OrderStatus, limit, offset int) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Order
	for _, o := range s.orders {
		if o.OwnerAddr != owner {
			continue
		}
		if status != nil && o.Status != *status {
			continue
		}
		cp := o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginateOrders(out, limit, offset), nil
}

func (s *MemoryStore) InsertTrade(_ context.Context, t *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trades[t.ID]; ok {
		return models.ErrAlreadyExists
	}
	s.trades[t.ID] = *t
	return nil
}

func (s *MemoryStore) GetPendingTrades(_ context.Context) ([]*models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Trade
	for _, t := range s.trades {
		if t.SettlementBatchID != nil {
			continue
		}
		cp := t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) AssignTradesToBatch(_ context.Context, tradeIDs []uuid.UUID, batchID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range tradeIDs {
		t, ok := s.trades[id]
		if !ok {
			return models.ErrNotFound
		}
		if t.SettlementBatchID != nil && *t.SettlementBatchID != batchID {
			return models.ErrAlreadyAssigned
		}
	}
	for _, id := range tradeIDs {
		t := s.trades[id]
		bid := batchID
		t.SettlementBatchID = &bid
		s.trades[id] = t
	}
	return nil
}

func (s *MemoryStore) TradesByUser(_ context.Context, addr string, start, end time.Time, limit, offset int) ([]*models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Trade
	for _, t := range s.trades {
		if t.TakerAddr != addr && t.MakerAddr != addr {
			continue
		}
		if !inRange(t.CreatedAt, start, end) {
			continue
		}
		cp := t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginateTrades(out, limit, offset), nil
}

// AllTrades returns every trade across all users in a created_at range,
// newest first, with no address filter (the Settlement Batcher's own
// GetPendingTrades stream is unaffected by this; this view backs operator
// and reporting queries).
func (s *MemoryStore) AllTrades(_ context.Context, start, end time.Time, limit, offset int) ([]*models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Trade
	for _, t := range s.trades {
		if !inRange(t.CreatedAt, start, end) {
			continue
		}
		cp := t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginateTrades(out, limit, offset), nil
}

func inRange(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}

func paginateOrders(out []*models.Order, limit, offset int) []*models.Order {
	if offset > 0 {
		if offset >= len(out) {
			return nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func paginateTrades(out []*models.Trade, limit, offset int) []*models.Trade {
	if offset > 0 {
		if offset >= len(out) {
			return nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MemoryStore) InsertSettlementBatch(_ context.Context, b *models.SettlementBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[b.ID]; ok {
		return models.ErrAlreadyExists
	}
	s.batches[b.ID] = *b
	return nil
}

func (s *MemoryStore) UpdateSettlementBatchStatus(_ context.Context, id uuid.UUID, status models.BatchStatus, txHash *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return models.ErrNotFound
	}
	b.Status = status
	if txHash != nil {
		b.TransactionHash = txHash
	}
	s.batches[id] = b
	return nil
}

func (s *MemoryStore) GetSettlementBatch(_ context.Context, id uuid.UUID) (*models.SettlementBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := b
	return &cp, nil
}
