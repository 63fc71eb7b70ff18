package exchange

import (
	"errors"
	"sort"
	"sync/atomic"

	"github.com/quantara-io/quantara/internal/book"
	"github.com/quantara-io/quantara/internal/core"
)

// RoutePolicy selects how the router picks a venue for an order that does
// not name one.
type RoutePolicy uint8

const (
	// RouteBestPrice sends buys to the lowest ask and sells to the
	// highest bid.
	RouteBestPrice RoutePolicy = iota
	// RouteLowestLatency always picks the fastest connected venue.
	RouteLowestLatency
	// RouteRoundRobin rotates across connected venues.
	RouteRoundRobin
)

func (p RoutePolicy) String() string {
	switch p {
	case RouteBestPrice:
		return "best_price"
	case RouteLowestLatency:
		return "lowest_latency"
	case RouteRoundRobin:
		return "round_robin"
	}
	return "unknown"
}

// ErrNoVenue means no connected venue could take the order.
var ErrNoVenue = errors.New("no venue available")

// Router assigns a venue to outgoing orders. Orders that already name a
// venue pass through untouched.
type Router struct {
	manager *Manager
	policy  RoutePolicy
	rr      atomic.Uint64
}

// NewRouter creates a router over the manager's venues.
func NewRouter(manager *Manager, policy RoutePolicy) *Router {
	return &Router{manager: manager, policy: policy}
}

// Policy returns the active routing policy.
func (r *Router) Policy() RoutePolicy { return r.policy }

// Route picks the destination venue for an order. The consolidated book
// may be nil, in which case best-price routing degrades to lowest
// latency.
func (r *Router) Route(o *core.Order, cb *book.ConsolidatedBook) (core.ExchangeID, error) {
	if o.Exchange != core.ExchangeUnknown {
		return o.Exchange, nil
	}
	switch r.policy {
	case RouteBestPrice:
		if ex := r.bestPrice(o.Side, cb); ex != core.ExchangeUnknown {
			return ex, nil
		}
		fallthrough
	case RouteLowestLatency:
		if ex := r.manager.FastestExchange(); ex != core.ExchangeUnknown {
			return ex, nil
		}
		return core.ExchangeUnknown, ErrNoVenue
	case RouteRoundRobin:
		return r.roundRobin()
	}
	return core.ExchangeUnknown, ErrNoVenue
}

func (r *Router) bestPrice(side core.Side, cb *book.ConsolidatedBook) core.ExchangeID {
	if cb == nil {
		return core.ExchangeUnknown
	}
	n := cb.NBBO()
	if side == core.Buy && n.AskPrice > 0 {
		return n.AskExchange
	}
	if side == core.Sell && n.BidPrice > 0 {
		return n.BidExchange
	}
	return core.ExchangeUnknown
}

func (r *Router) roundRobin() (core.ExchangeID, error) {
	var connected []core.ExchangeID
	for _, c := range r.manager.Clients() {
		if c.IsConnected() {
			connected = append(connected, c.Exchange())
		}
	}
	if len(connected) == 0 {
		return core.ExchangeUnknown, ErrNoVenue
	}
	sort.Slice(connected, func(i, j int) bool { return connected[i] < connected[j] })
	idx := (r.rr.Add(1) - 1) % uint64(len(connected))
	return connected[idx], nil
}
