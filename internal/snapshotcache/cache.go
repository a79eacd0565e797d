// Package snapshotcache implements the optional read-through cache for
// order-book snapshot views named in spec §1. The Matching Engine and
// Settlement Batcher must function correctly with a nil Cache; when
// present it only saves recomputation of aggregated book levels between
// trades on the same market.
//
// Grounded on tienpsm-go-trader/persistence.Snapshotter, which
// zstd-compresses matching-engine snapshots before writing them to disk.
// Adapted here to an in-memory, per-market cache rather than a file
// snapshotter, since this collaborator is scoped as a read-through cache,
// not crash-recovery storage.
package snapshotcache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/shopspring/decimal"
)

// Level mirrors orderbook.Level without importing the orderbook package, so
// this cache stays a leaf dependency usable from any component that can
// produce aggregated book levels.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// BookSnapshot is the cached, point-in-time aggregated view of one market's
// book.
type BookSnapshot struct {
	MarketID int64
	Bids     []Level
	Asks     []Level
}

// Cache is the read-through cache contract. Implementations must be safe
// for concurrent use.
type Cache interface {
	Get(marketID int64) (BookSnapshot, bool)
	Put(marketID int64, snap BookSnapshot)
	Invalidate(marketID int64)
}

// ZstdCache stores each market's snapshot gob-encoded and zstd-compressed
// in memory, trading a small CPU cost on Put/Get for a much smaller
// resident footprint under many markets.
type ZstdCache struct {
	mu      sync.RWMutex
	entries map[int64][]byte

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstdCache constructs a ZstdCache. The returned cache owns its
// encoder/decoder; callers do not need to close anything for it to be
// garbage collected, but Close releases the zstd goroutines promptly.
func NewZstdCache() (*ZstdCache, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("snapshotcache: new zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("snapshotcache: new zstd decoder: %w", err)
	}
	return &ZstdCache{
		entries: make(map[int64][]byte),
		encoder: enc,
		decoder: dec,
	}, nil
}

// Close releases the zstd encoder/decoder goroutines.
func (c *ZstdCache) Close() {
	c.encoder.Close()
	c.decoder.Close()
}

func (c *ZstdCache) Get(marketID int64) (BookSnapshot, bool) {
	c.mu.RLock()
	raw, ok := c.entries[marketID]
	c.mu.RUnlock()
	if !ok {
		return BookSnapshot{}, false
	}

	decompressed, err := c.decoder.DecodeAll(raw, nil)
	if err != nil {
		return BookSnapshot{}, false
	}

	var snap BookSnapshot
	if err := gob.NewDecoder(bytes.NewReader(decompressed)).Decode(&snap); err != nil {
		return BookSnapshot{}, false
	}
	return snap, true
}

func (c *ZstdCache) Put(marketID int64, snap BookSnapshot) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return
	}
	compressed := c.encoder.EncodeAll(buf.Bytes(), nil)

	c.mu.Lock()
	c.entries[marketID] = compressed
	c.mu.Unlock()
}

func (c *ZstdCache) Invalidate(marketID int64) {
	c.mu.Lock()
	delete(c.entries, marketID)
	c.mu.Unlock()
}
