// Package risk enforces pre-trade limits and tracks per-symbol positions
// and P&L. The gate sits between the strategy and the exchange adapter;
// every order passes CheckOrder before it may leave the process. Limit
// breaches are values, not errors, and the worst of them arm a kill switch
// that halts all trading until an operator clears it.
package risk

import "github.com/quantara-io/quantara/internal/core"

// Violation tags the outcome of a pre-trade check. ViolationNone means the
// order passed.
type Violation uint8

const (
	ViolationNone Violation = iota
	ViolationKillSwitch
	ViolationSymbolDisabled
	ViolationPositionLimit
	ViolationOrderSize
	ViolationOrderValue
	ViolationRateLimit
	ViolationOpenOrders
	ViolationDailyLoss
	ViolationPriceDeviation
)

func (v Violation) String() string {
	switch v {
	case ViolationNone:
		return "OK"
	case ViolationKillSwitch:
		return "KILL_SWITCH_ACTIVE"
	case ViolationSymbolDisabled:
		return "SYMBOL_DISABLED"
	case ViolationPositionLimit:
		return "POSITION_LIMIT"
	case ViolationOrderSize:
		return "ORDER_SIZE_LIMIT"
	case ViolationOrderValue:
		return "ORDER_VALUE_LIMIT"
	case ViolationRateLimit:
		return "RATE_LIMIT"
	case ViolationOpenOrders:
		return "OPEN_ORDERS_LIMIT"
	case ViolationDailyLoss:
		return "DAILY_LOSS_LIMIT"
	case ViolationPriceDeviation:
		return "PRICE_DEVIATION"
	}
	return "UNKNOWN"
}

// OK reports whether the check passed.
func (v Violation) OK() bool { return v == ViolationNone }

// Limits is an immutable snapshot of the gate's thresholds. A zero value
// for any individual limit disables that check.
type Limits struct {
	// MaxPositionQty caps the post-trade absolute position per symbol.
	MaxPositionQty core.Quantity
	// MaxOrderQty caps a single order's quantity.
	MaxOrderQty core.Quantity
	// MaxOrderValue caps a single order's notional in quote units.
	MaxOrderValue float64
	// MaxDailyLoss arms the kill switch once realized losses reach it.
	MaxDailyLoss float64
	// MaxDrawdown arms the kill switch when equity falls this far below
	// its peak.
	MaxDrawdown float64
	// MaxPriceDeviationBps bounds how far an order price may sit from the
	// reference price.
	MaxPriceDeviationBps float64
	// MaxOrdersPerSecond rate-limits order admission per wall-clock second.
	MaxOrdersPerSecond uint32
	// MaxOpenOrders caps concurrently open orders.
	MaxOpenOrders int32
	// ErrorThreshold arms the kill switch after this many adapter errors.
	ErrorThreshold uint32
	// RejectThreshold arms the kill switch after this many rejects.
	RejectThreshold uint32
}

// DefaultLimits leaves position and loss checks unlimited and applies
// sane rate and sanity bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxOrdersPerSecond:   100,
		MaxOpenOrders:        100,
		MaxPriceDeviationBps: 100,
		ErrorThreshold:       10,
		RejectThreshold:      20,
	}
}

// ConservativeLimits is a tight preset for bring-up on a live venue.
func ConservativeLimits() Limits {
	return Limits{
		MaxPositionQty:       1 * core.QtyPrecision,
		MaxOrderQty:          core.QtyPrecision / 10,
		MaxOrderValue:        10_000,
		MaxDailyLoss:         1_000,
		MaxDrawdown:          500,
		MaxPriceDeviationBps: 50,
		MaxOrdersPerSecond:   10,
		MaxOpenOrders:        10,
		ErrorThreshold:       5,
		RejectThreshold:      10,
	}
}
