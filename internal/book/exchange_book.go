// Package book maintains per-venue L2 order book state and a consolidated
// multi-venue view with NBBO and per-level venue attribution. Books are
// mutated by the market-data goroutine and read by the strategy goroutine;
// every accessor observes a consistent serialization point of the update
// stream.
package book

import (
	"sync"

	"github.com/tidwall/btree"

	"github.com/quantara-io/quantara/internal/core"
)

// depthCacheSize bounds the memoized top-of-book caches.
const depthCacheSize = 64

// Level is one aggregated price level.
type Level struct {
	Price     core.Price
	Quantity  core.Quantity
	Orders    uint32
	UpdatedAt core.Timestamp
}

// ExchangeBook is the L2 book of a single venue. Bids and asks are ordered
// maps keyed by price; a zero-quantity update erases the level. Guarded by
// one RWMutex; the top-K slices are rebuilt lazily when read after a
// mutation.
type ExchangeBook struct {
	mu       sync.RWMutex
	exchange core.ExchangeID
	symbol   core.Symbol

	bids *btree.Map[int64, Level]
	asks *btree.Map[int64, Level]

	lastSeq    core.SequenceNum
	lastUpdate core.Timestamp

	bidCache      []Level
	askCache      []Level
	bidCacheDirty bool
	askCacheDirty bool
}

// NewExchangeBook creates an empty book for one venue and symbol.
func NewExchangeBook(exchange core.ExchangeID, symbol core.Symbol) *ExchangeBook {
	return &ExchangeBook{
		exchange: exchange,
		symbol:   symbol,
		bids:     btree.NewMap[int64, Level](32),
		asks:     btree.NewMap[int64, Level](32),
		bidCache: make([]Level, 0, depthCacheSize),
		askCache: make([]Level, 0, depthCacheSize),
	}
}

// Exchange returns the owning venue.
func (b *ExchangeBook) Exchange() core.ExchangeID { return b.exchange }

// Symbol returns the instrument.
func (b *ExchangeBook) Symbol() core.Symbol { return b.symbol }

// UpdateBid sets the aggregate quantity at a bid price; zero erases.
func (b *ExchangeBook) UpdateBid(price core.Price, qty core.Quantity) {
	b.mu.Lock()
	b.updateBidLocked(price, qty)
	b.lastUpdate = core.Now()
	b.mu.Unlock()
}

// UpdateAsk sets the aggregate quantity at an ask price; zero erases.
func (b *ExchangeBook) UpdateAsk(price core.Price, qty core.Quantity) {
	b.mu.Lock()
	b.updateAskLocked(price, qty)
	b.lastUpdate = core.Now()
	b.mu.Unlock()
}

func (b *ExchangeBook) updateBidLocked(price core.Price, qty core.Quantity) {
	if qty == 0 {
		b.bids.Delete(price)
	} else {
		b.bids.Set(price, Level{Price: price, Quantity: qty, Orders: 1, UpdatedAt: core.Now()})
	}
	b.bidCacheDirty = true
}

func (b *ExchangeBook) updateAskLocked(price core.Price, qty core.Quantity) {
	if qty == 0 {
		b.asks.Delete(price)
	} else {
		b.asks.Set(price, Level{Price: price, Quantity: qty, Orders: 1, UpdatedAt: core.Now()})
	}
	b.askCacheDirty = true
}

// ApplySnapshot atomically replaces both sides and resets the sequence.
func (b *ExchangeBook) ApplySnapshot(bids, asks []Level, seq core.SequenceNum) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = btree.NewMap[int64, Level](32)
	b.asks = btree.NewMap[int64, Level](32)
	for _, lvl := range bids {
		if lvl.Quantity > 0 {
			b.bids.Set(lvl.Price, lvl)
		}
	}
	for _, lvl := range asks {
		if lvl.Quantity > 0 {
			b.asks.Set(lvl.Price, lvl)
		}
	}
	b.lastSeq = seq
	b.lastUpdate = core.Now()
	b.bidCacheDirty = true
	b.askCacheDirty = true
}

// ApplyTick upserts the tick's top-of-book levels. Stale levels behind a
// fast-moving top are tolerated; IsValid catches the crossed case and the
// strategy declines to quote until depth updates resolve it.
func (b *ExchangeBook) ApplyTick(t *core.Tick) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t.Bid > 0 {
		b.updateBidLocked(t.Bid, t.BidQty)
	}
	if t.Ask > 0 {
		b.updateAskLocked(t.Ask, t.AskQty)
	}
	if t.Seq > b.lastSeq {
		b.lastSeq = t.Seq
	}
	b.lastUpdate = t.LocalTS
}

// BestBid returns the highest bid level.
func (b *ExchangeBook) BestBid() (Level, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, lvl, ok := b.bids.Max()
	return lvl, ok
}

// BestAsk returns the lowest ask level.
func (b *ExchangeBook) BestAsk() (Level, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, lvl, ok := b.asks.Min()
	return lvl, ok
}

// MidPrice is the arithmetic mid of the inside quote, 0 when one-sided.
func (b *ExchangeBook) MidPrice() core.Price {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, bid, okB := b.bids.Max()
	_, ask, okA := b.asks.Min()
	if !okB || !okA {
		return 0
	}
	return (bid.Price + ask.Price) / 2
}

// SpreadBps is the inside spread in basis points of the mid, 0 when the
// book is one-sided.
func (b *ExchangeBook) SpreadBps() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, bid, okB := b.bids.Max()
	_, ask, okA := b.asks.Min()
	if !okB || !okA {
		return 0
	}
	mid := (bid.Price + ask.Price) / 2
	if mid <= 0 {
		return 0
	}
	return 10000 * float64(ask.Price-bid.Price) / float64(mid)
}

// IsValid reports a two-sided, uncrossed book.
func (b *ExchangeBook) IsValid() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, bid, okB := b.bids.Max()
	_, ask, okA := b.asks.Min()
	return okB && okA && bid.Price < ask.Price
}

// TopBids returns up to k best bid levels, highest first.
func (b *ExchangeBook) TopBids(k int) []Level {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshBidCacheLocked()
	return copyLevels(b.bidCache, k)
}

// TopAsks returns up to k best ask levels, lowest first.
func (b *ExchangeBook) TopAsks(k int) []Level {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshAskCacheLocked()
	return copyLevels(b.askCache, k)
}

func (b *ExchangeBook) refreshBidCacheLocked() {
	if !b.bidCacheDirty {
		return
	}
	b.bidCache = b.bidCache[:0]
	b.bids.Reverse(func(_ int64, lvl Level) bool {
		b.bidCache = append(b.bidCache, lvl)
		return len(b.bidCache) < depthCacheSize
	})
	b.bidCacheDirty = false
}

func (b *ExchangeBook) refreshAskCacheLocked() {
	if !b.askCacheDirty {
		return
	}
	b.askCache = b.askCache[:0]
	b.asks.Scan(func(_ int64, lvl Level) bool {
		b.askCache = append(b.askCache, lvl)
		return len(b.askCache) < depthCacheSize
	})
	b.askCacheDirty = false
}

func copyLevels(cache []Level, k int) []Level {
	if k > len(cache) {
		k = len(cache)
	}
	out := make([]Level, k)
	copy(out, cache[:k])
	return out
}

// VWAPBid is the volume-weighted average price of sweeping qty through the
// bids, best first. Returns 0 when nothing fills.
func (b *ExchangeBook) VWAPBid(qty core.Quantity) core.Price {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var notional, filled int64
	remaining := qty
	b.bids.Reverse(func(_ int64, lvl Level) bool {
		take := min64(remaining, lvl.Quantity)
		notional += mulDiv(lvl.Price, take)
		filled += take
		remaining -= take
		return remaining > 0
	})
	if filled == 0 {
		return 0
	}
	return core.Price(float64(notional) / core.FromQty(filled))
}

// VWAPAsk is the sweep VWAP on the ask side, best first.
func (b *ExchangeBook) VWAPAsk(qty core.Quantity) core.Price {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var notional, filled int64
	remaining := qty
	b.asks.Scan(func(_ int64, lvl Level) bool {
		take := min64(remaining, lvl.Quantity)
		notional += mulDiv(lvl.Price, take)
		filled += take
		remaining -= take
		return remaining > 0
	})
	if filled == 0 {
		return 0
	}
	return core.Price(float64(notional) / core.FromQty(filled))
}

// Imbalance is (ΣB−ΣA)/(ΣB+ΣA) over the top n levels of each side; 0 when
// the book is empty.
func (b *ExchangeBook) Imbalance(n int) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshBidCacheLocked()
	b.refreshAskCacheLocked()
	var sumB, sumA int64
	for i, lvl := range b.bidCache {
		if i >= n {
			break
		}
		sumB += lvl.Quantity
	}
	for i, lvl := range b.askCache {
		if i >= n {
			break
		}
		sumA += lvl.Quantity
	}
	total := sumB + sumA
	if total == 0 {
		return 0
	}
	return float64(sumB-sumA) / float64(total)
}

// Depth reports the level counts of both sides.
func (b *ExchangeBook) Depth() (bids, asks int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.Len(), b.asks.Len()
}

// LastUpdate is the timestamp of the most recent mutation.
func (b *ExchangeBook) LastUpdate() core.Timestamp {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdate
}

// LastSeq is the venue sequence of the most recent update.
func (b *ExchangeBook) LastSeq() core.SequenceNum {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastSeq
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// mulDiv multiplies a scaled price by a scaled quantity into scaled
// notional, dividing out one precision factor to avoid overflow.
func mulDiv(price core.Price, qty core.Quantity) int64 {
	return int64(float64(price) * core.FromQty(qty))
}
