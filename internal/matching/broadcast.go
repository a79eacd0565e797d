package matching

import (
	"sync"

	"github.com/hyperperp/matchcore/internal/models"
)

// tradeHub fans out emitted trades to subscribers with bounded, lossy
// delivery: a full subscriber channel drops its oldest queued trade before
// enqueuing the new one, so a slow reader loses old events rather than
// blocking the matching loop or starving other subscribers (§5, §9 "Broadcast
// of trades"). Go's ecosystem has no tokio::sync::broadcast equivalent in the
// retrieved corpus, so this hub is hand-rolled.
type tradeHub struct {
	mu       sync.Mutex
	subs     map[int]chan models.Trade
	nextID   int
	capacity int
}

func newTradeHub(capacity int) *tradeHub {
	if capacity <= 0 {
		capacity = 1000
	}
	return &tradeHub{subs: make(map[int]chan models.Trade), capacity: capacity}
}

// subscribe returns a channel of future trades and a cancel func that must
// be called to release the subscription.
func (h *tradeHub) subscribe() (<-chan models.Trade, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan models.Trade, h.capacity)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// publish delivers a trade to every current subscriber, dropping the oldest
// queued trade on any channel that is already full.
func (h *tradeHub) publish(t models.Trade) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- t:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- t:
			default:
			}
		}
	}
}
