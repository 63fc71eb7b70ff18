// Package strategy contains the market-making quote generators. All
// variants share one pipeline: derive a fair value from the book, widen
// the spread with volatility, shift both quotes against inventory, size
// each side so the position cannot grow unbounded, and throttle emissions
// that would replace a live quote with the same prices. Variants differ
// only in how they compute the skew and the spread.
package strategy

import (
	"sync"
	"sync/atomic"

	"github.com/quantara-io/quantara/internal/book"
	"github.com/quantara-io/quantara/internal/core"
	"github.com/quantara-io/quantara/internal/risk"
)

// Decision reason strings for declined quotes.
const (
	reasonDisabled  = "strategy disabled"
	reasonBadBook   = "order book invalid"
	reasonCrossed   = "quotes crossed"
	reasonUnchanged = "prices unchanged"
)

// Params configures a quoter. Spreads are in basis points, times in
// microseconds.
type Params struct {
	Symbol             core.Symbol
	BaseOrderQty       core.Quantity
	MinOrderQty        core.Quantity
	MaxOrderQty        core.Quantity
	MaxPosition        core.Quantity
	TargetSpreadBps    float64
	MinSpreadBps       float64
	MaxSpreadBps       float64
	InventorySkewCoeff float64
	EmaAlpha           float64
	QuoteRefreshUs     int64
	MinQuoteLifeUs     int64
}

// DefaultParams returns the stock configuration for a liquid pair.
func DefaultParams(symbol core.Symbol) Params {
	return Params{
		Symbol:             symbol,
		BaseOrderQty:       core.QtyPrecision / 10,
		MinOrderQty:        core.QtyPrecision / 100,
		MaxOrderQty:        core.QtyPrecision,
		MaxPosition:        10 * core.QtyPrecision,
		TargetSpreadBps:    10,
		MinSpreadBps:       5,
		MaxSpreadBps:       50,
		InventorySkewCoeff: 0.5,
		EmaAlpha:           0.1,
		QuoteRefreshUs:     100_000,
		MinQuoteLifeUs:     50_000,
	}
}

// Decision is the outcome of one quote computation. When ShouldQuote is
// false, Reason says why.
type Decision struct {
	BidPrice    core.Price
	AskPrice    core.Price
	BidQty      core.Quantity
	AskQty      core.Quantity
	ShouldQuote bool
	Reason      string
	Timestamp   core.Timestamp
}

// Strategy is what the engine's strategy goroutine drives.
type Strategy interface {
	Name() string
	ComputeQuotes(b *book.ExchangeBook, pos risk.Position, sig core.Signal) Decision
	OnFill(side core.Side, qty core.Quantity, price core.Price)
	OnCancel(id core.OrderID)
	OnReject(id core.OrderID)
	SetEnabled(enabled bool)
	Enabled() bool
}

// Quoter is the base market maker with a linear inventory skew. Variants
// replace the skew hook and keep the rest of the pipeline.
type Quoter struct {
	params  Params
	enabled atomic.Bool

	// skew maps a signed position to [-1, 1]. Installed by the
	// constructor, never changed afterwards.
	skew func(position core.Quantity) float64

	mu          sync.Mutex
	lastQuoteTS core.Timestamp
	lastBid     core.Price
	lastAsk     core.Price
	activeBidID core.OrderID
	activeAskID core.OrderID
	bought      core.Quantity
	sold        core.Quantity
}

// NewQuoter creates the base quoter. It starts disabled.
func NewQuoter(params Params) *Quoter {
	q := &Quoter{params: params}
	q.skew = q.linearSkew
	return q
}

func (q *Quoter) Name() string { return "marketmaker" }

// Params returns the quoter's configuration.
func (q *Quoter) Params() Params { return q.params }

// SetEnabled flips the quoting flag.
func (q *Quoter) SetEnabled(enabled bool) { q.enabled.Store(enabled) }

// Enabled reports whether the quoter is live.
func (q *Quoter) Enabled() bool { return q.enabled.Load() }

func (q *Quoter) linearSkew(position core.Quantity) float64 {
	if q.params.MaxPosition == 0 {
		return 0
	}
	s := float64(position) / float64(q.params.MaxPosition)
	return clampF(s, -1, 1)
}

// ComputeQuotes runs the quoting pipeline against one venue book.
func (q *Quoter) ComputeQuotes(b *book.ExchangeBook, pos risk.Position, sig core.Signal) Decision {
	now := core.Now()
	d := Decision{Timestamp: now}
	if !q.enabled.Load() {
		d.Reason = reasonDisabled
		return d
	}
	if !b.IsValid() {
		d.Reason = reasonBadBook
		return d
	}

	fair := sig.FairValue
	if fair <= 0 {
		fair = b.MidPrice()
	}
	spreadBps := clampF(q.params.TargetSpreadBps*(1+sig.Volatility), q.params.MinSpreadBps, q.params.MaxSpreadBps)
	half := core.Price(float64(fair) * spreadBps / 20000)
	skewAdj := core.Price(float64(fair) * q.skew(pos.Quantity) * q.params.InventorySkewCoeff / 10000)

	bid := fair - half - skewAdj
	ask := fair + half - skewAdj
	q.finalize(&d, fair, bid, ask, pos.Quantity, now)
	return d
}

// finalize applies the steps shared by every variant: the no-cross guard,
// per-side sizing and the min-quote-life throttle.
func (q *Quoter) finalize(d *Decision, fair, bid, ask core.Price, position core.Quantity, now core.Timestamp) {
	if bid >= ask {
		d.Reason = reasonCrossed
		return
	}
	d.BidPrice = bid
	d.AskPrice = ask
	d.BidQty = q.OrderSize(core.Buy, position)
	d.AskQty = q.OrderSize(core.Sell, position)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.lastQuoteTS != 0 && now-q.lastQuoteTS < uint64(q.params.MinQuoteLifeUs)*1000 {
		// Within the quote's minimum life, only a move of at least one
		// basis point on either side justifies a replace.
		tick := float64(fair) / 10000
		if absF(float64(bid-q.lastBid)) < tick && absF(float64(ask-q.lastAsk)) < tick {
			d.Reason = reasonUnchanged
			return
		}
	}
	q.lastBid = bid
	q.lastAsk = ask
	q.lastQuoteTS = now
	d.ShouldQuote = true
}

// OrderSize sizes one side. The side that would grow the inventory is
// scaled down by how much of the position budget is already used.
func (q *Quoter) OrderSize(side core.Side, position core.Quantity) core.Quantity {
	size := q.params.BaseOrderQty
	if q.params.MaxPosition > 0 {
		grows := (side == core.Buy && position > 0) || (side == core.Sell && position < 0)
		if grows {
			scale := 1 - float64(abs64(position))/float64(q.params.MaxPosition)
			if scale < 0 {
				scale = 0
			}
			size = core.Quantity(float64(size) * scale)
		}
	}
	if q.params.MinOrderQty > 0 && size < q.params.MinOrderQty {
		size = q.params.MinOrderQty
	}
	if q.params.MaxOrderQty > 0 && size > q.params.MaxOrderQty {
		size = q.params.MaxOrderQty
	}
	return size
}

// SetActiveQuotes records the venue ids of the live quote pair.
func (q *Quoter) SetActiveQuotes(bidID, askID core.OrderID) {
	q.mu.Lock()
	q.activeBidID = bidID
	q.activeAskID = askID
	q.mu.Unlock()
}

// ActiveQuotes returns the live quote ids, zero when none.
func (q *Quoter) ActiveQuotes() (bidID, askID core.OrderID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.activeBidID, q.activeAskID
}

// OnFill tallies executed volume per side.
func (q *Quoter) OnFill(side core.Side, qty core.Quantity, _ core.Price) {
	q.mu.Lock()
	if side == core.Buy {
		q.bought += qty
	} else {
		q.sold += qty
	}
	q.mu.Unlock()
}

// OnCancel clears the matching active quote id.
func (q *Quoter) OnCancel(id core.OrderID) { q.clearActive(id) }

// OnReject clears the matching active quote id.
func (q *Quoter) OnReject(id core.OrderID) { q.clearActive(id) }

func (q *Quoter) clearActive(id core.OrderID) {
	if id == 0 {
		return
	}
	q.mu.Lock()
	if q.activeBidID == id {
		q.activeBidID = 0
	}
	if q.activeAskID == id {
		q.activeAskID = 0
	}
	q.mu.Unlock()
}

// Volume returns cumulative bought and sold quantities.
func (q *Quoter) Volume() (bought, sold core.Quantity) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bought, q.sold
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
