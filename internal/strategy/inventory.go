package strategy

import (
	"math"
	"sync"

	"github.com/quantara-io/quantara/internal/core"
)

// InventoryQuoter replaces the linear skew with a smoothed sigmoid of an
// exponentially weighted position average. The EMA damps skew flapping
// when fills alternate sides, and the sigmoid saturates the lean well
// before the position cap so quotes keep working at the edges.
type InventoryQuoter struct {
	*Quoter

	emaMu sync.Mutex
	ema   float64
}

// NewInventoryQuoter creates the EMA-skewed variant. It starts disabled.
func NewInventoryQuoter(params Params) *InventoryQuoter {
	iq := &InventoryQuoter{}
	q := NewQuoter(params)
	q.skew = iq.emaSkew
	iq.Quoter = q
	return iq
}

func (iq *InventoryQuoter) Name() string { return "marketmaker-inventory" }

// emaSkew advances the position EMA one step and maps it through
// 2*sigmoid(3*ema/max) - 1.
func (iq *InventoryQuoter) emaSkew(position core.Quantity) float64 {
	iq.emaMu.Lock()
	defer iq.emaMu.Unlock()
	alpha := iq.params.EmaAlpha
	iq.ema = alpha*float64(position) + (1-alpha)*iq.ema
	if iq.params.MaxPosition == 0 {
		return 0
	}
	x := 3 * iq.ema / float64(iq.params.MaxPosition)
	return 2/(1+math.Exp(-x)) - 1
}

// PositionEMA exposes the current smoothed position for observability.
func (iq *InventoryQuoter) PositionEMA() float64 {
	iq.emaMu.Lock()
	defer iq.emaMu.Unlock()
	return iq.ema
}
