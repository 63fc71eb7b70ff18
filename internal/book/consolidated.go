package book

import (
	"sync"

	"github.com/tidwall/btree"

	"github.com/quantara-io/quantara/internal/core"
)

// VenueQuantity attributes part of a consolidated level to one venue.
type VenueQuantity struct {
	Exchange core.ExchangeID
	Quantity core.Quantity
}

// ConsolidatedLevel is one merged price level. Contributions always sum to
// Quantity.
type ConsolidatedLevel struct {
	Price         core.Price
	Quantity      core.Quantity
	Contributions []VenueQuantity
}

// NBBO is the national best bid and offer across venues.
type NBBO struct {
	BidPrice    core.Price
	BidQty      core.Quantity
	AskPrice    core.Price
	AskQty      core.Quantity
	BidExchange core.ExchangeID
	AskExchange core.ExchangeID
	Timestamp   core.Timestamp
}

// IsValid reports a usable two-sided NBBO. A crossed NBBO (bid >= ask) is
// not an error, it is an arbitrage signal, but it is not quotable.
func (n *NBBO) IsValid() bool {
	return n.BidPrice > 0 && n.AskPrice > 0 && n.BidPrice < n.AskPrice
}

// Arbitrage is a crossed top-of-book between two venues.
type Arbitrage struct {
	BuyExchange  core.ExchangeID
	SellExchange core.ExchangeID
	BuyPrice     core.Price
	SellPrice    core.Price
	Quantity     core.Quantity
	ProfitBps    float64
}

// ConsolidatedBook merges the books of every registered venue for one
// symbol. Venue books are updated independently; the merged depth is
// rebuilt lazily on read when any venue changed since the last rebuild.
type ConsolidatedBook struct {
	mu     sync.Mutex
	symbol core.Symbol
	books  [core.MaxExchanges]*ExchangeBook

	merged      *btree.Map[int64, *ConsolidatedLevel]
	mergedAsks  *btree.Map[int64, *ConsolidatedLevel]
	dirty       bool
	lastRebuild core.Timestamp
}

// NewConsolidatedBook creates an empty consolidated view.
func NewConsolidatedBook(symbol core.Symbol) *ConsolidatedBook {
	return &ConsolidatedBook{
		symbol:     symbol,
		merged:     btree.NewMap[int64, *ConsolidatedLevel](32),
		mergedAsks: btree.NewMap[int64, *ConsolidatedLevel](32),
		dirty:      true,
	}
}

// Symbol returns the instrument.
func (c *ConsolidatedBook) Symbol() core.Symbol { return c.symbol }

// AddVenue registers a venue and returns its book. Re-registering returns
// the existing book.
func (c *ConsolidatedBook) AddVenue(exchange core.ExchangeID) *ExchangeBook {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b := c.books[exchange]; b != nil {
		return b
	}
	b := NewExchangeBook(exchange, c.symbol)
	c.books[exchange] = b
	c.dirty = true
	return b
}

// Venue returns the book of one venue, nil if unregistered.
func (c *ConsolidatedBook) Venue(exchange core.ExchangeID) *ExchangeBook {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.books[exchange]
}

// Venues lists the registered venues in enum order.
func (c *ConsolidatedBook) Venues() []core.ExchangeID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.ExchangeID, 0, len(c.books))
	for i, b := range c.books {
		if b != nil {
			out = append(out, core.ExchangeID(i))
		}
	}
	return out
}

// ApplyTick routes a tick to its venue book, registering the venue on
// first sight.
func (c *ConsolidatedBook) ApplyTick(t *core.Tick) {
	b := c.AddVenue(t.Exchange)
	b.ApplyTick(t)
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
}

// UpdateVenueBid updates one venue's bid level and marks the merge stale.
func (c *ConsolidatedBook) UpdateVenueBid(exchange core.ExchangeID, price core.Price, qty core.Quantity) {
	b := c.AddVenue(exchange)
	b.UpdateBid(price, qty)
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
}

// UpdateVenueAsk updates one venue's ask level and marks the merge stale.
func (c *ConsolidatedBook) UpdateVenueAsk(exchange core.ExchangeID, price core.Price, qty core.Quantity) {
	b := c.AddVenue(exchange)
	b.UpdateAsk(price, qty)
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
}

// NBBO computes the best bid and offer across all venues. Venues with a
// one-sided or empty book contribute only the side they have.
func (c *ConsolidatedBook) NBBO() NBBO {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out NBBO
	out.Timestamp = core.Now()
	for _, b := range c.books {
		if b == nil {
			continue
		}
		if lvl, ok := b.BestBid(); ok && lvl.Price > out.BidPrice {
			out.BidPrice = lvl.Price
			out.BidQty = lvl.Quantity
			out.BidExchange = b.Exchange()
		}
		if lvl, ok := b.BestAsk(); ok && (out.AskPrice == 0 || lvl.Price < out.AskPrice) {
			out.AskPrice = lvl.Price
			out.AskQty = lvl.Quantity
			out.AskExchange = b.Exchange()
		}
	}
	return out
}

// HasArbitrage reports whether any venue's bid crosses another venue's ask.
func (c *ConsolidatedBook) HasArbitrage() bool {
	_, ok := c.FindArbitrage()
	return ok
}

// FindArbitrage returns the most profitable crossed venue pair: buy at the
// lowest ask, sell at the highest bid, sized to the smaller touch quantity.
func (c *ConsolidatedBook) FindArbitrage() (Arbitrage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var best Arbitrage
	found := false
	for _, sell := range c.books {
		if sell == nil {
			continue
		}
		bid, okB := sell.BestBid()
		if !okB {
			continue
		}
		for _, buy := range c.books {
			if buy == nil || buy == sell {
				continue
			}
			ask, okA := buy.BestAsk()
			if !okA || bid.Price <= ask.Price {
				continue
			}
			opp := Arbitrage{
				BuyExchange:  buy.Exchange(),
				SellExchange: sell.Exchange(),
				BuyPrice:     ask.Price,
				SellPrice:    bid.Price,
				Quantity:     core.Quantity(min64(int64(bid.Quantity), int64(ask.Quantity))),
				ProfitBps:    10000 * float64(bid.Price-ask.Price) / float64(ask.Price),
			}
			if !found || opp.ProfitBps > best.ProfitBps {
				best = opp
				found = true
			}
		}
	}
	return best, found
}

// ConsolidatedBids returns up to k merged bid levels, highest first, each
// carrying its per-venue attribution.
func (c *ConsolidatedBook) ConsolidatedBids(k int) []ConsolidatedLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebuildLocked()
	out := make([]ConsolidatedLevel, 0, k)
	c.merged.Reverse(func(_ int64, lvl *ConsolidatedLevel) bool {
		out = append(out, *lvl)
		return len(out) < k
	})
	return out
}

// ConsolidatedAsks returns up to k merged ask levels, lowest first.
func (c *ConsolidatedBook) ConsolidatedAsks(k int) []ConsolidatedLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebuildLocked()
	out := make([]ConsolidatedLevel, 0, k)
	c.mergedAsks.Scan(func(_ int64, lvl *ConsolidatedLevel) bool {
		out = append(out, *lvl)
		return len(out) < k
	})
	return out
}

func (c *ConsolidatedBook) rebuildLocked() {
	if !c.dirty {
		return
	}
	c.merged = btree.NewMap[int64, *ConsolidatedLevel](32)
	c.mergedAsks = btree.NewMap[int64, *ConsolidatedLevel](32)
	for _, b := range c.books {
		if b == nil {
			continue
		}
		ex := b.Exchange()
		for _, lvl := range b.TopBids(depthCacheSize) {
			mergeLevel(c.merged, ex, lvl)
		}
		for _, lvl := range b.TopAsks(depthCacheSize) {
			mergeLevel(c.mergedAsks, ex, lvl)
		}
	}
	c.dirty = false
	c.lastRebuild = core.Now()
}

func mergeLevel(side *btree.Map[int64, *ConsolidatedLevel], ex core.ExchangeID, lvl Level) {
	if existing, ok := side.Get(lvl.Price); ok {
		existing.Quantity += lvl.Quantity
		existing.Contributions = append(existing.Contributions, VenueQuantity{Exchange: ex, Quantity: lvl.Quantity})
		return
	}
	side.Set(lvl.Price, &ConsolidatedLevel{
		Price:         lvl.Price,
		Quantity:      lvl.Quantity,
		Contributions: []VenueQuantity{{Exchange: ex, Quantity: lvl.Quantity}},
	})
}

// LastRebuild is when the merged depth was last recomputed.
func (c *ConsolidatedBook) LastRebuild() core.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRebuild
}
