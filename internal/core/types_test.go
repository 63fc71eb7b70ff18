package core

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedPointConversions(t *testing.T) {
	assert.Equal(t, int64(100_00000000), ToPrice(100.0))
	assert.Equal(t, int64(10000000), ToPrice(0.1))
	assert.InDelta(t, 100.05, FromPrice(10005000000), 1e-9)

	assert.Equal(t, int64(50000000), ToQty(0.5))
	assert.InDelta(t, 0.5, FromQty(50000000), 1e-9)

	// Truncation toward zero, both signs.
	assert.Equal(t, int64(0), ToQty(0.000000001))
	assert.Equal(t, int64(0), ToPrice(-0.000000001))
	assert.Equal(t, int64(-100_00000000), ToPrice(-100.0))
}

func TestSymbol(t *testing.T) {
	s := NewSymbol("BTCUSDT")
	assert.Equal(t, "BTCUSDT", s.String())
	assert.Equal(t, 7, s.Len())
	assert.False(t, s.IsZero())

	// Value semantics: equal strings produce equal symbols.
	assert.Equal(t, s, NewSymbol("BTCUSDT"))
	assert.NotEqual(t, s, NewSymbol("ETHUSDT"))

	// Truncated at 15 payload bytes.
	long := NewSymbol("ABCDEFGHIJKLMNOPQRST")
	assert.Equal(t, 15, long.Len())
	assert.Equal(t, "ABCDEFGHIJKLMNO", long.String())

	var zero Symbol
	assert.True(t, zero.IsZero())
	assert.Equal(t, "", zero.String())
}

func TestRecordSizes(t *testing.T) {
	// Records cross ring queues by value; they must stay on cache-line
	// multiples so a copy never straddles an extra line.
	require.Equal(t, uintptr(128), unsafe.Sizeof(Order{}))
	require.Equal(t, uintptr(128), unsafe.Sizeof(Tick{}))
	require.Equal(t, uintptr(64), unsafe.Sizeof(Trade{}))
	require.Equal(t, uintptr(16), unsafe.Sizeof(Symbol{}))
}

func TestOrderAccessors(t *testing.T) {
	o := Order{Quantity: ToQty(2), FilledQty: ToQty(0.5), Status: StatusPartiallyFilled}
	assert.Equal(t, ToQty(1.5), o.Remaining())
	assert.True(t, o.IsActive())

	o.Status = StatusFilled
	assert.False(t, o.IsActive())
	o.Status = StatusCanceled
	assert.False(t, o.IsActive())
}

func TestTick(t *testing.T) {
	tick := Tick{Bid: ToPrice(100), Ask: ToPrice(101)}
	assert.True(t, tick.IsValid())
	assert.Equal(t, ToPrice(100.5), tick.MidPrice())
	assert.InDelta(t, 99.5, tick.SpreadBps(), 0.01)

	crossed := Tick{Bid: ToPrice(101), Ask: ToPrice(100)}
	assert.False(t, crossed.IsValid())

	onesided := Tick{Bid: ToPrice(100)}
	assert.False(t, onesided.IsValid())
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "BUY", Buy.String())
	assert.Equal(t, "SELL", Sell.String())
	assert.Equal(t, Sell, Buy.Opposite())
	assert.Equal(t, Buy, Sell.Opposite())

	assert.Equal(t, "LIMIT_MAKER", LimitMaker.String())
	assert.Equal(t, "GTX", GTX.String())
	assert.Equal(t, "PARTIALLY_FILLED", StatusPartiallyFilled.String())

	assert.Equal(t, ExchangeBinance, ParseExchange("binance"))
	assert.Equal(t, ExchangeBinance, ParseExchange("Binance"))
	assert.Equal(t, ExchangeUnknown, ParseExchange("nyse"))
	assert.Equal(t, "OKX", ExchangeOKX.String())
}
