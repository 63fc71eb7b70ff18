package arb

import (
	"sync/atomic"

	"github.com/quantara-io/quantara/internal/book"
	"github.com/quantara-io/quantara/internal/core"
)

// Triple names the three pairs of a triangular route through currencies
// X -> Y -> Z -> X, where X is the home currency. Leg1 is Y quoted in X,
// Leg2 is Z quoted in Y, Leg3 is Z quoted in X. For a USDT home currency
// with BTC and ETH intermediates: Leg1=BTCUSDT, Leg2=ETHBTC, Leg3=ETHUSDT.
type Triple struct {
	Leg1 core.Symbol
	Leg2 core.Symbol
	Leg3 core.Symbol
}

// Direction says which way around the triangle the route runs.
type Direction uint8

const (
	// Forward buys Leg1, buys Leg2, sells Leg3.
	Forward Direction = iota
	// Reverse buys Leg3, sells Leg2, sells Leg1.
	Reverse
)

func (d Direction) String() string {
	if d == Reverse {
		return "REVERSE"
	}
	return "FORWARD"
}

// TriOpportunity is one profitable triangular round trip.
type TriOpportunity struct {
	Venue      core.ExchangeID
	Triple     Triple
	Direction  Direction
	ProfitBps  float64
	DetectedAt core.Timestamp
}

// TriCallback receives each validated triangular opportunity.
type TriCallback func(TriOpportunity)

// BookSource resolves a symbol to its venue book, nil when unavailable.
type BookSource func(symbol core.Symbol) *book.ExchangeBook

// TriangularScanner evaluates configured triples against one venue's
// books. Yield is computed through the touch of each leg; fees are the
// caller's layer and belong in the profit threshold.
type TriangularScanner struct {
	cfg     Config
	venue   core.ExchangeID
	triples []Triple
	cb      TriCallback

	detected atomic.Uint64
}

// NewTriangularScanner creates a scanner for one venue's triples.
func NewTriangularScanner(cfg Config, venue core.ExchangeID, triples []Triple) *TriangularScanner {
	return &TriangularScanner{cfg: cfg, venue: venue, triples: triples}
}

// SetCallback registers the opportunity sink.
func (t *TriangularScanner) SetCallback(cb TriCallback) { t.cb = cb }

// Scan evaluates every triple in both directions and returns the routes
// whose round-trip yield clears the profit threshold.
func (t *TriangularScanner) Scan(books BookSource) []TriOpportunity {
	now := core.Now()
	var out []TriOpportunity
	for _, tri := range t.triples {
		b1, b2, b3 := books(tri.Leg1), books(tri.Leg2), books(tri.Leg3)
		if b1 == nil || b2 == nil || b3 == nil {
			continue
		}

		// Forward: spend X on Y at ask1, Y on Z at ask2, sell Z at bid3.
		if ask1, ok1 := b1.BestAsk(); ok1 {
			if ask2, ok2 := b2.BestAsk(); ok2 {
				if bid3, ok3 := b3.BestBid(); ok3 {
					yield := core.FromPrice(bid3.Price) /
						(core.FromPrice(ask1.Price) * core.FromPrice(ask2.Price))
					t.report(&out, tri, Forward, yield, now)
				}
			}
		}

		// Reverse: spend X on Z at ask3, sell Z for Y at bid2, sell Y at bid1.
		if ask3, ok3 := b3.BestAsk(); ok3 {
			if bid2, ok2 := b2.BestBid(); ok2 {
				if bid1, ok1 := b1.BestBid(); ok1 {
					yield := core.FromPrice(bid1.Price) * core.FromPrice(bid2.Price) /
						core.FromPrice(ask3.Price)
					t.report(&out, tri, Reverse, yield, now)
				}
			}
		}
	}
	return out
}

func (t *TriangularScanner) report(out *[]TriOpportunity, tri Triple, dir Direction, yield float64, now core.Timestamp) {
	// Three taker legs, three fees.
	profitBps := 10000 * (yield - 1)
	if profitBps < t.cfg.MinProfitBps+3*t.cfg.FeeBps {
		return
	}
	opp := TriOpportunity{
		Venue:      t.venue,
		Triple:     tri,
		Direction:  dir,
		ProfitBps:  profitBps,
		DetectedAt: now,
	}
	t.detected.Add(1)
	if t.cb != nil {
		t.cb(opp)
	}
	*out = append(*out, opp)
}

// Detected is the count of reported triangular opportunities.
func (t *TriangularScanner) Detected() uint64 { return t.detected.Load() }
