package risk

import (
	"sync"

	"github.com/quantara-io/quantara/internal/core"
)

// Position is one symbol's signed inventory. Quantity is positive long,
// negative short. P&L values are in quote units.
type Position struct {
	Symbol        core.Symbol
	Quantity      core.Quantity
	AvgEntryPrice core.Price
	RealizedPnL   float64
	UnrealizedPnL float64
	LastUpdate    core.Timestamp
}

// PositionTracker maintains positions and realized/unrealized P&L across
// symbols. Fills and mark-price updates arrive from the order and
// market-data goroutines; a single mutex keeps the map consistent.
type PositionTracker struct {
	mu        sync.Mutex
	positions map[core.Symbol]*Position
}

// NewPositionTracker returns an empty tracker.
func NewPositionTracker() *PositionTracker {
	return &PositionTracker{positions: make(map[core.Symbol]*Position)}
}

func (t *PositionTracker) get(symbol core.Symbol) *Position {
	p, ok := t.positions[symbol]
	if !ok {
		p = &Position{Symbol: symbol}
		t.positions[symbol] = p
	}
	return p
}

// ApplyFill folds an execution into the symbol's position. Fills in the
// direction of the position extend it at a weighted average entry; fills
// against it realize P&L on the closed size and, when the position crosses
// zero, restart the average at the fill price.
func (t *PositionTracker) ApplyFill(symbol core.Symbol, side core.Side, qty core.Quantity, fillPrice core.Price) Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.get(symbol)

	signed := qty
	if side == core.Sell {
		signed = -qty
	}
	q := p.Quantity

	switch {
	case q == 0 || (q > 0) == (signed > 0):
		// Extending. Weighted average in real units; scaled integer
		// products overflow int64 at large books.
		den := core.FromQty(abs64(q) + qty)
		if den > 0 {
			avg := (core.FromQty(abs64(q))*core.FromPrice(p.AvgEntryPrice) +
				core.FromQty(qty)*core.FromPrice(fillPrice)) / den
			p.AvgEntryPrice = core.ToPrice(avg)
		}
		p.Quantity = q + signed
	default:
		closed := min64(qty, abs64(q))
		if side == core.Buy {
			p.RealizedPnL += core.FromQty(closed) * core.FromPrice(p.AvgEntryPrice-fillPrice)
		} else {
			p.RealizedPnL += core.FromQty(closed) * core.FromPrice(fillPrice-p.AvgEntryPrice)
		}
		newQ := q + signed
		switch {
		case newQ == 0:
			p.AvgEntryPrice = 0
			p.UnrealizedPnL = 0
		case (newQ > 0) != (q > 0):
			// Crossed through flat; the residual opened at the fill.
			p.AvgEntryPrice = fillPrice
			p.UnrealizedPnL = 0
		}
		p.Quantity = newQ
	}
	p.LastUpdate = core.Now()
	return *p
}

// MarkPrice revalues the symbol's unrealized P&L against a mark. Flat
// positions stay at zero.
func (t *PositionTracker) MarkPrice(symbol core.Symbol, mark core.Price) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[symbol]
	if !ok || p.Quantity == 0 {
		return
	}
	p.UnrealizedPnL = core.FromQty(p.Quantity) * core.FromPrice(mark-p.AvgEntryPrice)
	p.LastUpdate = core.Now()
}

// Position returns a copy of the symbol's position.
func (t *PositionTracker) Position(symbol core.Symbol) (Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[symbol]
	if !ok {
		return Position{Symbol: symbol}, false
	}
	return *p, true
}

// Quantity returns the symbol's signed quantity, zero when flat or unknown.
func (t *PositionTracker) Quantity(symbol core.Symbol) core.Quantity {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.positions[symbol]; ok {
		return p.Quantity
	}
	return 0
}

// All returns copies of every tracked position.
func (t *PositionTracker) All() []Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, *p)
	}
	return out
}

// TotalRealized sums realized P&L across symbols.
func (t *PositionTracker) TotalRealized() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var sum float64
	for _, p := range t.positions {
		sum += p.RealizedPnL
	}
	return sum
}

// TotalPnL sums realized plus unrealized P&L across symbols.
func (t *PositionTracker) TotalPnL() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var sum float64
	for _, p := range t.positions {
		sum += p.RealizedPnL + p.UnrealizedPnL
	}
	return sum
}

// ResetDaily zeroes realized P&L at a trading-day boundary. Open positions
// and their unrealized P&L survive.
func (t *PositionTracker) ResetDaily() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.positions {
		p.RealizedPnL = 0
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
