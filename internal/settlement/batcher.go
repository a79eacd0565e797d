// Package settlement implements the periodic drain of unsettled trades into
// bounded, single-market batches submitted to the Chain Gateway (§4.4).
package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hyperperp/matchcore/internal/chaingateway"
	"github.com/hyperperp/matchcore/internal/chainscale"
	"github.com/hyperperp/matchcore/internal/durability"
	"github.com/hyperperp/matchcore/internal/models"
)

const (
	// defaultBatchSize is the max trades per batch (§6 configuration).
	defaultBatchSize = 10

	// defaultBatchTimeout is the drain period (§6 configuration).
	defaultBatchTimeout = 5 * time.Second

	// defaultSlippage is the envelope coefficient (§6 configuration).
	defaultSlippage = 0.05

	// batchExpiry is how far past creation a batch's on-chain submission
	// remains valid.
	batchExpiry = 5 * time.Minute

	// submitTimeout bounds a single batch's Chain Gateway round trip.
	submitTimeout = 30 * time.Second

	// confirmAttempts is the poll budget handed to WaitForConfirmation;
	// the hard bound is submitTimeout via the context deadline.
	confirmAttempts = 30
)

// Clock abstracts wall-clock reads so tests can inject deterministic time
// without touching the package-global time.Now.
type Clock func() time.Time

// Batcher periodically drains pending trades into settlement batches and
// drives their submission. Grounded on
// VictorVVedtion-perp-dex/offchain/matcher.OffchainMatcher.batchLoop (ticker
// + stop channel + sync.WaitGroup) and the Rust original's
// start_settlement_loop (interval + timeout).
type Batcher struct {
	store   durability.Store
	gateway chaingateway.Gateway
	clock   Clock

	batchSize     int
	batchTimeout  time.Duration
	slippage      decimal.Decimal

	mu      sync.Mutex // guards the self-reentrant drain_once invocation
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// New constructs a Batcher with the §6 configuration defaults.
func New(store durability.Store, gateway chaingateway.Gateway) *Batcher {
	return &Batcher{
		store:        store,
		gateway:      gateway,
		clock:        time.Now,
		batchSize:    defaultBatchSize,
		batchTimeout: defaultBatchTimeout,
		slippage:     decimal.NewFromFloat(defaultSlippage),
	}
}

// WithBatchSize overrides the default batch_size configuration value.
func (b *Batcher) WithBatchSize(n int) *Batcher {
	b.batchSize = n
	return b
}

// WithBatchTimeout overrides the default batch_timeout_secs configuration
// value.
func (b *Batcher) WithBatchTimeout(d time.Duration) *Batcher {
	b.batchTimeout = d
	return b
}

// WithSlippage overrides the default max_price_slippage configuration
// value.
func (b *Batcher) WithSlippage(frac decimal.Decimal) *Batcher {
	b.slippage = frac
	return b
}

// WithClock overrides the wall-clock source; used by tests only.
func (b *Batcher) WithClock(c Clock) *Batcher {
	b.clock = c
	return b
}

// Start launches the periodic drain loop in a background goroutine. Calling
// Start twice is a no-op.
func (b *Batcher) Start(ctx context.Context) {
	if b.started {
		return
	}
	b.started = true
	b.stopCh = make(chan struct{})

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.batchTimeout)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			case <-ticker.C:
				if err := b.DrainOnce(ctx); err != nil {
					log.Error().Err(err).Msg("settlement drain failed")
				}
			}
		}
	}()
}

// Stop halts the loop and waits for any in-flight drain to finish.
func (b *Batcher) Stop() {
	if !b.started {
		return
	}
	close(b.stopCh)
	b.wg.Wait()
	b.started = false
}

// DrainOnce runs one pass of the §4.4 algorithm: fetch all pending trades,
// group them into single-market bounded batches, persist, and submit each.
// Invocations are mutually exclusive with themselves (the self-reentrant
// guard named in §5); concurrent calls block rather than overlap.
func (b *Batcher) DrainOnce(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	trades, err := b.store.GetPendingTrades(ctx)
	if err != nil {
		return fmt.Errorf("settlement: fetch pending trades: %w", err)
	}
	if len(trades) == 0 {
		return nil
	}

	for _, group := range groupTrades(trades, b.batchSize) {
		if err := b.settleGroup(ctx, group); err != nil {
			// Individual settlement errors must not stop the loop (§4.4);
			// the next group, and the next tick, still proceed.
			log.Error().Err(err).Int64("market_id", group[0].MarketID).Msg("settle group failed")
		}
	}
	return nil
}

// groupTrades implements §4.4 step 2: start a new batch whenever the market
// id changes from the previous trade, or the current batch already holds
// batchSize trades. Trades must already be ordered by created_at ascending.
func groupTrades(trades []*models.Trade, batchSize int) [][]*models.Trade {
	var groups [][]*models.Trade
	var current []*models.Trade

	for _, t := range trades {
		newGroup := len(current) == 0 ||
			current[0].MarketID != t.MarketID ||
			len(current) >= batchSize
		if newGroup {
			if len(current) > 0 {
				groups = append(groups, current)
			}
			current = nil
		}
		current = append(current, t)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// settleGroup persists a batch for one group of same-market trades,
// computes its slippage envelope, and submits it to the Chain Gateway,
// following §4.4 steps 3-6.
func (b *Batcher) settleGroup(ctx context.Context, group []*models.Trade) error {
	minPrice, maxPrice := priceRange(group)
	spread := maxPrice.Sub(minPrice)
	envelopeMin := decimal.Max(decimal.Zero, minPrice.Sub(spread.Mul(b.slippage)))
	envelopeMax := maxPrice.Add(spread.Mul(b.slippage))

	now := b.clock()
	batch := &models.SettlementBatch{
		ID:              uuid.New(),
		MarketID:        group[0].MarketID,
		OracleTimestamp: now.Unix(),
		MinPrice:        envelopeMin,
		MaxPrice:        envelopeMax,
		ExpiryTimestamp: now.Add(batchExpiry).Unix(),
		Status:          models.BatchStatusPending,
		CreatedAt:       now,
	}
	if err := b.store.InsertSettlementBatch(ctx, batch); err != nil {
		return fmt.Errorf("insert settlement batch: %w", err)
	}

	tradeIDs := make([]uuid.UUID, len(group))
	tradeVals := make([]models.Trade, len(group))
	for i, t := range group {
		tradeIDs[i] = t.ID
		tradeVals[i] = *t
	}
	if err := b.store.AssignTradesToBatch(ctx, tradeIDs, batch.ID); err != nil {
		return fmt.Errorf("assign trades to batch: %w", err)
	}

	b.submit(ctx, batch, tradeVals)
	return nil
}

// submit sends a persisted, trade-assigned batch to the Chain Gateway under
// a 30-second hard timeout (§4.4 step 6, §5). Submission failures mark the
// batch Failed rather than propagating: the trades remain assigned to it and
// recovery is operator-driven (§4.4 failure semantics).
func (b *Batcher) submit(ctx context.Context, batch *models.SettlementBatch, trades []models.Trade) {
	submitCtx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	payload := chainscale.NewBatchPayload(trades, batch.MinPrice, batch.MaxPrice,
		uint64(batch.OracleTimestamp), uint64(batch.ExpiryTimestamp))

	fail := func(reason error) {
		log.Error().Err(reason).Str("batch_id", batch.ID.String()).Msg("settlement batch failed")
		if err := b.store.UpdateSettlementBatchStatus(ctx, batch.ID, models.BatchStatusFailed, nil); err != nil {
			log.Error().Err(err).Str("batch_id", batch.ID.String()).Msg("persist failed batch status")
		}
	}

	txHash, err := b.gateway.SubmitBatch(submitCtx, payload)
	if err != nil {
		fail(fmt.Errorf("submit batch: %w", err))
		return
	}

	confirmed, err := b.gateway.WaitForConfirmation(submitCtx, txHash, confirmAttempts)
	if err != nil {
		fail(fmt.Errorf("confirm batch: %w", err))
		return
	}
	if !confirmed {
		fail(fmt.Errorf("batch confirmation timed out"))
		return
	}

	if err := b.store.UpdateSettlementBatchStatus(ctx, batch.ID, models.BatchStatusConfirmed, &txHash); err != nil {
		log.Error().Err(err).Str("batch_id", batch.ID.String()).Msg("persist confirmed batch status")
	}
}

func priceRange(trades []*models.Trade) (min, max decimal.Decimal) {
	min, max = trades[0].Price, trades[0].Price
	for _, t := range trades[1:] {
		if t.Price.LessThan(min) {
			min = t.Price
		}
		if t.Price.GreaterThan(max) {
			max = t.Price
		}
	}
	return min, max
}
