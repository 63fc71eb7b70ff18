package risk

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/quantara-io/quantara/internal/core"
)

// KillSwitchCallback is invoked exactly once when the kill switch arms.
type KillSwitchCallback func(reason string)

// Gate performs pre-trade checks and owns the kill switch. A mutex guards
// the open-orders and disabled-symbol maps; the rate limiter, open-order
// count and kill-switch flag are atomics so CheckOrder never blocks on a
// concurrent fill.
type Gate struct {
	limits    Limits
	positions *PositionTracker

	mu         sync.Mutex
	openOrders map[core.OrderID]core.Order
	// closedEarly holds ids whose terminal update arrived before the
	// send path registered them; the adapter's event goroutine can beat
	// the response.
	closedEarly map[core.OrderID]struct{}
	disabled    map[core.Symbol]struct{}
	peakEquity  float64

	killSwitch   atomic.Bool
	killCallback KillSwitchCallback

	rateWindow  atomic.Int64
	rateCount   atomic.Int64
	openCount   atomic.Int32
	errorCount  atomic.Uint32
	rejectCount atomic.Uint32

	now func() core.Timestamp
}

// NewGate creates a gate enforcing the given limits.
func NewGate(limits Limits) *Gate {
	return &Gate{
		limits:      limits,
		positions:   NewPositionTracker(),
		openOrders:  make(map[core.OrderID]core.Order),
		closedEarly: make(map[core.OrderID]struct{}),
		disabled:    make(map[core.Symbol]struct{}),
		now:         core.Now,
	}
}

// SetKillSwitchCallback registers the arming callback. Must be called
// before trading starts; registration is not synchronized against checks.
func (g *Gate) SetKillSwitchCallback(cb KillSwitchCallback) { g.killCallback = cb }

// Limits returns the gate's configured limits.
func (g *Gate) Limits() Limits { return g.limits }

// CheckOrder runs the pre-trade checks in order and returns the first
// violation, or ViolationNone on pass. refPrice enables the price
// deviation check; pass 0 to skip it. Every violation counts toward the
// reject threshold.
func (g *Gate) CheckOrder(o *core.Order, refPrice core.Price) Violation {
	v := g.runChecks(o, refPrice)
	if !v.OK() {
		g.countReject()
	}
	return v
}

func (g *Gate) runChecks(o *core.Order, refPrice core.Price) Violation {
	if g.killSwitch.Load() {
		return ViolationKillSwitch
	}
	if !g.SymbolEnabled(o.Symbol) {
		return ViolationSymbolDisabled
	}
	if g.limits.MaxPositionQty > 0 {
		post := g.positions.Quantity(o.Symbol)
		if o.Side == core.Buy {
			post += o.Quantity
		} else {
			post -= o.Quantity
		}
		if abs64(post) > g.limits.MaxPositionQty {
			return ViolationPositionLimit
		}
	}
	if g.limits.MaxOrderQty > 0 && o.Quantity > g.limits.MaxOrderQty {
		return ViolationOrderSize
	}
	if g.limits.MaxOrderValue > 0 &&
		core.FromQty(o.Quantity)*core.FromPrice(o.Price) > g.limits.MaxOrderValue {
		return ViolationOrderValue
	}
	if g.limits.MaxOrdersPerSecond > 0 && !g.admitThisSecond() {
		return ViolationRateLimit
	}
	if g.limits.MaxOpenOrders > 0 && g.openCount.Load() >= g.limits.MaxOpenOrders {
		return ViolationOpenOrders
	}
	if g.limits.MaxDailyLoss > 0 && -g.positions.TotalRealized() >= g.limits.MaxDailyLoss {
		g.ActivateKillSwitch("daily loss limit breached")
		return ViolationDailyLoss
	}
	if refPrice > 0 && g.limits.MaxPriceDeviationBps > 0 {
		dev := 10000 * math.Abs(float64(o.Price-refPrice)) / float64(refPrice)
		if dev > g.limits.MaxPriceDeviationBps {
			return ViolationPriceDeviation
		}
	}
	return ViolationNone
}

// admitThisSecond counts this check against the wall-clock second,
// resetting the counter when the second rolls over. Two goroutines racing
// the rollover both land in the fresh window.
func (g *Gate) admitThisSecond() bool {
	sec := int64(g.now() / 1_000_000_000)
	window := g.rateWindow.Load()
	if sec != window {
		if g.rateWindow.CompareAndSwap(window, sec) {
			g.rateCount.Store(0)
		}
	}
	return g.rateCount.Add(1) <= int64(g.limits.MaxOrdersPerSecond)
}

func (g *Gate) countReject() {
	n := g.rejectCount.Add(1)
	if g.limits.RejectThreshold > 0 && n >= g.limits.RejectThreshold {
		g.ActivateKillSwitch("reject threshold reached")
	}
}

// OnError counts an adapter error and arms the kill switch at the
// configured threshold.
func (g *Gate) OnError(string) {
	n := g.errorCount.Add(1)
	if g.limits.ErrorThreshold > 0 && n >= g.limits.ErrorThreshold {
		g.ActivateKillSwitch("error threshold reached")
	}
}

// OnFill folds an execution into the position, tracks peak equity and arms
// the kill switch when drawdown from the peak exceeds the limit. Returns
// the updated position.
func (g *Gate) OnFill(symbol core.Symbol, side core.Side, qty core.Quantity, price core.Price) Position {
	pos := g.positions.ApplyFill(symbol, side, qty, price)
	equity := g.positions.TotalPnL()
	g.mu.Lock()
	if equity > g.peakEquity {
		g.peakEquity = equity
	}
	drawdown := g.peakEquity - equity
	g.mu.Unlock()
	if g.limits.MaxDrawdown > 0 && drawdown > g.limits.MaxDrawdown {
		g.ActivateKillSwitch("max drawdown exceeded")
	}
	return pos
}

// MarkPrice refreshes the symbol's unrealized P&L.
func (g *Gate) MarkPrice(symbol core.Symbol, mark core.Price) {
	g.positions.MarkPrice(symbol, mark)
}

// Position returns a copy of the symbol's position.
func (g *Gate) Position(symbol core.Symbol) (Position, bool) {
	return g.positions.Position(symbol)
}

// Positions returns copies of all tracked positions.
func (g *Gate) Positions() []Position { return g.positions.All() }

// DailyPnL is realized plus unrealized P&L across all symbols.
func (g *Gate) DailyPnL() float64 { return g.positions.TotalPnL() }

// RealizedPnL is total realized P&L across all symbols.
func (g *Gate) RealizedPnL() float64 { return g.positions.TotalRealized() }

// ResetDaily clears realized P&L and the equity peak at a day boundary.
func (g *Gate) ResetDaily() {
	g.positions.ResetDaily()
	g.mu.Lock()
	g.peakEquity = g.positions.TotalPnL()
	g.mu.Unlock()
}

// RegisterOrder records a venue-acknowledged order as open.
func (g *Gate) RegisterOrder(o core.Order) {
	g.mu.Lock()
	if _, ok := g.closedEarly[o.ID]; ok {
		delete(g.closedEarly, o.ID)
		g.mu.Unlock()
		return
	}
	g.openOrders[o.ID] = o
	g.mu.Unlock()
	g.openCount.Add(1)
}

// UpdateOrder replaces the stored copy of an open order, keeping partial
// fill progress visible to observers.
func (g *Gate) UpdateOrder(o core.Order) {
	g.mu.Lock()
	if _, ok := g.openOrders[o.ID]; ok {
		g.openOrders[o.ID] = o
	}
	g.mu.Unlock()
}

// CloseOrder drops an order that reached a terminal status.
func (g *Gate) CloseOrder(id core.OrderID) {
	g.mu.Lock()
	_, ok := g.openOrders[id]
	if ok {
		delete(g.openOrders, id)
	} else {
		g.closedEarly[id] = struct{}{}
	}
	g.mu.Unlock()
	if ok {
		g.openCount.Add(-1)
	}
}

// OpenOrders returns copies of all open orders.
func (g *Gate) OpenOrders() []core.Order {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]core.Order, 0, len(g.openOrders))
	for _, o := range g.openOrders {
		out = append(out, o)
	}
	return out
}

// OpenOrderCount is the number of currently open orders.
func (g *Gate) OpenOrderCount() int { return int(g.openCount.Load()) }

// DisableSymbol blocks new orders for a symbol. Symbols are enabled by
// default.
func (g *Gate) DisableSymbol(symbol core.Symbol) {
	g.mu.Lock()
	g.disabled[symbol] = struct{}{}
	g.mu.Unlock()
}

// EnableSymbol lifts a symbol block.
func (g *Gate) EnableSymbol(symbol core.Symbol) {
	g.mu.Lock()
	delete(g.disabled, symbol)
	g.mu.Unlock()
}

// SymbolEnabled reports whether orders for the symbol are admitted.
func (g *Gate) SymbolEnabled(symbol core.Symbol) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, off := g.disabled[symbol]
	return !off
}

// ActivateKillSwitch arms the kill switch. Arming an armed switch is a
// no-op; the callback fires only on the first transition.
func (g *Gate) ActivateKillSwitch(reason string) {
	if g.killSwitch.Swap(true) {
		return
	}
	if cb := g.killCallback; cb != nil {
		cb(reason)
	}
}

// DeactivateKillSwitch clears the switch and resets the error and reject
// counters.
func (g *Gate) DeactivateKillSwitch() {
	g.killSwitch.Store(false)
	g.errorCount.Store(0)
	g.rejectCount.Store(0)
}

// KillSwitchActive reports whether trading is halted.
func (g *Gate) KillSwitchActive() bool { return g.killSwitch.Load() }

// RejectCount is the cumulative number of pre-trade rejects.
func (g *Gate) RejectCount() uint32 { return g.rejectCount.Load() }

// ErrorCount is the cumulative number of adapter errors.
func (g *Gate) ErrorCount() uint32 { return g.errorCount.Load() }
