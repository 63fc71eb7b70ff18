package strategy

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/quantara-io/quantara/internal/book"
	"github.com/quantara-io/quantara/internal/core"
	"github.com/quantara-io/quantara/internal/risk"
)

// hedgeSlippageBps is how far a hedge order crosses the touch so an IOC
// fills through a moving book.
const hedgeSlippageBps = 10

// VenuePositions maps each venue to its signed inventory for the quoted
// symbol.
type VenuePositions map[core.ExchangeID]core.Quantity

// Net sums the per-venue inventories.
func (v VenuePositions) Net() core.Quantity {
	var net core.Quantity
	for _, q := range v {
		net += q
	}
	return net
}

// LatencyProvider reports the observed round-trip latency per venue. The
// exchange manager implements it.
type LatencyProvider interface {
	Latency(exchange core.ExchangeID) time.Duration
}

// VenueDecision is one venue's quote decision.
type VenueDecision struct {
	Exchange core.ExchangeID
	Decision
}

// CrossVenueQuoter quotes the same symbol on every registered venue,
// skewing all quotes by the net inventory so a long on one venue leans the
// quotes everywhere. Fills can be hedged on the fastest peer venue.
type CrossVenueQuoter struct {
	params  Params
	latency LatencyProvider
	enabled atomic.Bool

	mu      sync.Mutex
	quoters map[core.ExchangeID]*Quoter
}

// NewCrossVenueQuoter creates the multi-venue quoter. latency may be nil,
// in which case hedge venues are chosen by best price instead.
func NewCrossVenueQuoter(params Params, latency LatencyProvider) *CrossVenueQuoter {
	return &CrossVenueQuoter{
		params:  params,
		latency: latency,
		quoters: make(map[core.ExchangeID]*Quoter),
	}
}

func (c *CrossVenueQuoter) Name() string { return "marketmaker-crossvenue" }

// SetLatencyProvider installs the latency source used to pick hedge
// venues. Must be called before quoting starts.
func (c *CrossVenueQuoter) SetLatencyProvider(lp LatencyProvider) { c.latency = lp }

// SetEnabled flips quoting across all venues.
func (c *CrossVenueQuoter) SetEnabled(enabled bool) { c.enabled.Store(enabled) }

// Enabled reports whether the quoter is live.
func (c *CrossVenueQuoter) Enabled() bool { return c.enabled.Load() }

func (c *CrossVenueQuoter) venueQuoter(exchange core.ExchangeID) *Quoter {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.quoters[exchange]
	if !ok {
		q = NewQuoter(c.params)
		// Gating happens on the cross-venue flag; the per-venue quoters
		// stay always-on.
		q.SetEnabled(true)
		c.quoters[exchange] = q
	}
	return q
}

// ComputeQuotes produces one decision per registered venue. Venues whose
// own inventory sits at the position cap are skipped with a reason; the
// skew everywhere else uses the net inventory across venues.
func (c *CrossVenueQuoter) ComputeQuotes(cb *book.ConsolidatedBook, positions VenuePositions, sig core.Signal) []VenueDecision {
	venues := cb.Venues()
	out := make([]VenueDecision, 0, len(venues))
	if !c.enabled.Load() {
		for _, ex := range venues {
			out = append(out, VenueDecision{Exchange: ex, Decision: Decision{Reason: reasonDisabled, Timestamp: core.Now()}})
		}
		return out
	}

	net := positions.Net()
	for _, ex := range venues {
		vb := cb.Venue(ex)
		if vb == nil {
			continue
		}
		if c.params.MaxPosition > 0 && abs64(positions[ex]) >= c.params.MaxPosition {
			out = append(out, VenueDecision{Exchange: ex, Decision: Decision{Reason: "venue at position cap", Timestamp: core.Now()}})
			continue
		}
		d := c.venueQuoter(ex).ComputeQuotes(vb, risk.Position{Symbol: c.params.Symbol, Quantity: net}, sig)
		out = append(out, VenueDecision{Exchange: ex, Decision: d})
	}
	return out
}

// HedgeOrder builds the offsetting order for a fill on one venue: the
// opposite side, the fill's quantity, an IOC crossing the destination
// touch by a small slippage allowance. The destination is the
// lowest-latency peer, or the best-priced peer when no latency data is
// available. Returns false when no other venue can take the hedge.
func (c *CrossVenueQuoter) HedgeOrder(cb *book.ConsolidatedBook, fillVenue core.ExchangeID, side core.Side, qty core.Quantity) (core.Order, bool) {
	hedgeSide := side.Opposite()

	var (
		dest      core.ExchangeID
		destTouch core.Price
		found     bool
		bestLat   time.Duration
	)
	for _, ex := range cb.Venues() {
		if ex == fillVenue {
			continue
		}
		vb := cb.Venue(ex)
		if vb == nil {
			continue
		}
		var touch core.Price
		if hedgeSide == core.Sell {
			lvl, ok := vb.BestBid()
			if !ok {
				continue
			}
			touch = lvl.Price
		} else {
			lvl, ok := vb.BestAsk()
			if !ok {
				continue
			}
			touch = lvl.Price
		}

		if c.latency != nil {
			lat := c.latency.Latency(ex)
			if !found || lat < bestLat {
				dest, destTouch, bestLat, found = ex, touch, lat, true
			}
			continue
		}
		better := hedgeSide == core.Sell && touch > destTouch ||
			hedgeSide == core.Buy && (destTouch == 0 || touch < destTouch)
		if !found || better {
			dest, destTouch, found = ex, touch, true
		}
	}
	if !found {
		return core.Order{}, false
	}

	slip := destTouch * hedgeSlippageBps / 10000
	price := destTouch - slip
	if hedgeSide == core.Buy {
		price = destTouch + slip
	}
	return core.Order{
		Price:     price,
		Quantity:  qty,
		Timestamp: core.Now(),
		Symbol:    c.params.Symbol,
		Exchange:  dest,
		Side:      hedgeSide,
		Type:      core.ImmediateOrCancel,
		TIF:       core.IOC,
	}, true
}
