package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantara-io/quantara/internal/book"
	"github.com/quantara-io/quantara/internal/core"
	"github.com/quantara-io/quantara/internal/risk"
)

var strategySym = core.NewSymbol("BTCUSDT")

func validBook(bid, ask core.Price) *book.ExchangeBook {
	b := book.NewExchangeBook(core.ExchangeBinance, strategySym)
	b.UpdateBid(bid, 5*core.QtyPrecision)
	b.UpdateAsk(ask, 5*core.QtyPrecision)
	return b
}

func flatPosition() risk.Position {
	return risk.Position{Symbol: strategySym}
}

func TestBaseQuoterFlat(t *testing.T) {
	q := NewQuoter(DefaultParams(strategySym))
	q.SetEnabled(true)
	b := validBook(99*core.PricePrecision, 101*core.PricePrecision)

	d := q.ComputeQuotes(b, flatPosition(), core.Signal{})
	require.True(t, d.ShouldQuote, "reason: %s", d.Reason)
	// 10 bps around a 100.00 mid.
	assert.Equal(t, core.Price(9_995_000_000), d.BidPrice)
	assert.Equal(t, core.Price(10_005_000_000), d.AskPrice)
	assert.Less(t, d.BidPrice, d.AskPrice)
	assert.Equal(t, core.Quantity(core.QtyPrecision/10), d.BidQty)
	assert.Equal(t, core.Quantity(core.QtyPrecision/10), d.AskQty)
}

func TestQuoterDeclines(t *testing.T) {
	q := NewQuoter(DefaultParams(strategySym))
	b := validBook(99*core.PricePrecision, 101*core.PricePrecision)

	d := q.ComputeQuotes(b, flatPosition(), core.Signal{})
	assert.False(t, d.ShouldQuote)
	assert.Equal(t, "strategy disabled", d.Reason)

	q.SetEnabled(true)
	empty := book.NewExchangeBook(core.ExchangeBinance, strategySym)
	d = q.ComputeQuotes(empty, flatPosition(), core.Signal{})
	assert.False(t, d.ShouldQuote)
	assert.Equal(t, "order book invalid", d.Reason)
}

func TestInventorySkewShiftsQuotes(t *testing.T) {
	q := NewQuoter(DefaultParams(strategySym))
	q.SetEnabled(true)
	b := validBook(99*core.PricePrecision, 101*core.PricePrecision)

	long := risk.Position{Symbol: strategySym, Quantity: 5 * core.QtyPrecision}
	d := q.ComputeQuotes(b, long, core.Signal{})
	require.True(t, d.ShouldQuote)
	// skew 0.5 with coeff 0.5 lowers both quotes by 0.25 bps of fair.
	assert.Equal(t, core.Price(9_994_750_000), d.BidPrice)
	assert.Equal(t, core.Price(10_004_750_000), d.AskPrice)

	// Long inventory also shrinks the buy side and keeps the sell side.
	assert.Equal(t, core.Quantity(core.QtyPrecision/20), d.BidQty)
	assert.Equal(t, core.Quantity(core.QtyPrecision/10), d.AskQty)
}

func TestVolatilityWidensSpread(t *testing.T) {
	p := DefaultParams(strategySym)
	p.MinQuoteLifeUs = 0
	q := NewQuoter(p)
	q.SetEnabled(true)
	b := validBook(99*core.PricePrecision, 101*core.PricePrecision)

	calm := q.ComputeQuotes(b, flatPosition(), core.Signal{})
	rough := q.ComputeQuotes(b, flatPosition(), core.Signal{Volatility: 1})
	require.True(t, calm.ShouldQuote)
	require.True(t, rough.ShouldQuote)
	assert.Greater(t, rough.AskPrice-rough.BidPrice, calm.AskPrice-calm.BidPrice)

	// Extreme volatility clamps at the max spread: 50 bps -> half 25 bps.
	extreme := q.ComputeQuotes(b, flatPosition(), core.Signal{Volatility: 100})
	assert.Equal(t, core.Price(9_975_000_000), extreme.BidPrice)
	assert.Equal(t, core.Price(10_025_000_000), extreme.AskPrice)
}

func TestQuoteThrottle(t *testing.T) {
	p := DefaultParams(strategySym)
	p.MinQuoteLifeUs = 60_000_000 // one minute, nothing requotes in-test
	q := NewQuoter(p)
	q.SetEnabled(true)
	b := validBook(99*core.PricePrecision, 101*core.PricePrecision)

	first := q.ComputeQuotes(b, flatPosition(), core.Signal{})
	require.True(t, first.ShouldQuote)

	second := q.ComputeQuotes(b, flatPosition(), core.Signal{})
	assert.False(t, second.ShouldQuote)
	assert.Equal(t, "prices unchanged", second.Reason)

	// A 1% move dwarfs the 1 bps threshold and requotes immediately.
	b.UpdateBid(100*core.PricePrecision, 5*core.QtyPrecision)
	b.UpdateAsk(102*core.PricePrecision, 5*core.QtyPrecision)
	third := q.ComputeQuotes(b, flatPosition(), core.Signal{})
	assert.True(t, third.ShouldQuote)
}

func TestOrderSizeAtCap(t *testing.T) {
	q := NewQuoter(DefaultParams(strategySym))

	atCap := core.Quantity(10 * core.QtyPrecision)
	// The growing side collapses to the minimum size at the cap.
	assert.Equal(t, core.Quantity(core.QtyPrecision/100), q.OrderSize(core.Buy, atCap))
	assert.Equal(t, core.Quantity(core.QtyPrecision/10), q.OrderSize(core.Sell, atCap))

	short := core.Quantity(-10 * core.QtyPrecision)
	assert.Equal(t, core.Quantity(core.QtyPrecision/10), q.OrderSize(core.Buy, short))
	assert.Equal(t, core.Quantity(core.QtyPrecision/100), q.OrderSize(core.Sell, short))
}

func TestActiveQuoteLifecycle(t *testing.T) {
	q := NewQuoter(DefaultParams(strategySym))
	q.SetActiveQuotes(11, 12)

	q.OnCancel(11)
	bid, ask := q.ActiveQuotes()
	assert.Equal(t, core.OrderID(0), bid)
	assert.Equal(t, core.OrderID(12), ask)

	q.OnReject(12)
	_, ask = q.ActiveQuotes()
	assert.Equal(t, core.OrderID(0), ask)

	q.OnFill(core.Buy, 3*core.QtyPrecision, 100*core.PricePrecision)
	q.OnFill(core.Sell, 1*core.QtyPrecision, 101*core.PricePrecision)
	bought, sold := q.Volume()
	assert.Equal(t, core.Quantity(3*core.QtyPrecision), bought)
	assert.Equal(t, core.Quantity(1*core.QtyPrecision), sold)
}

func TestInventoryQuoterEMASkew(t *testing.T) {
	iq := NewInventoryQuoter(DefaultParams(strategySym))

	long := core.Quantity(10 * core.QtyPrecision)
	first := iq.emaSkew(long)
	assert.Greater(t, first, 0.0)
	assert.Less(t, first, 1.0)

	// Holding the position drives the EMA, and the skew, upward.
	var last float64
	for i := 0; i < 50; i++ {
		last = iq.emaSkew(long)
	}
	assert.Greater(t, last, first)
	assert.InDelta(t, 0.905, last, 0.01, "sigmoid saturates near 2/(1+e^-3)-1")

	short := NewInventoryQuoter(DefaultParams(strategySym))
	assert.Less(t, short.emaSkew(-long), 0.0)
}

func TestAvellanedaStoikovQuotes(t *testing.T) {
	p := DefaultParams(strategySym)
	p.MinQuoteLifeUs = 0
	s := NewAvellanedaStoikov(p, DefaultASParams())
	s.SetEnabled(true)
	b := validBook(99*core.PricePrecision, 101*core.PricePrecision)

	flat := s.ComputeQuotes(b, flatPosition(), core.Signal{})
	require.True(t, flat.ShouldQuote, "reason: %s", flat.Reason)
	// The closed-form spread exceeds the cap with default params, so the
	// clamp pins it at 50 bps around the reservation price.
	assert.Equal(t, core.Price(25_000_000), (flat.AskPrice-flat.BidPrice)/2)
	mid := core.Price(100 * core.PricePrecision)
	assert.InDelta(t, float64(mid), float64(flat.BidPrice+flat.AskPrice)/2, float64(core.PricePrecision)/100)

	// Inventory pushes the reservation price away from the mid.
	long := risk.Position{Symbol: strategySym, Quantity: 2 * core.QtyPrecision}
	skewed := s.ComputeQuotes(b, long, core.Signal{})
	require.True(t, skewed.ShouldQuote)
	assert.Less(t, skewed.BidPrice, flat.BidPrice)
	assert.Less(t, skewed.AskPrice, flat.AskPrice)
}

func TestAvellanedaStoikovDisabled(t *testing.T) {
	s := NewAvellanedaStoikov(DefaultParams(strategySym), DefaultASParams())
	b := validBook(99*core.PricePrecision, 101*core.PricePrecision)
	d := s.ComputeQuotes(b, flatPosition(), core.Signal{})
	assert.False(t, d.ShouldQuote)
	assert.Equal(t, "strategy disabled", d.Reason)
}

func TestCrossVenueDecisions(t *testing.T) {
	cb := book.NewConsolidatedBook(strategySym)
	cb.UpdateVenueBid(core.ExchangeBinance, 99*core.PricePrecision, 5*core.QtyPrecision)
	cb.UpdateVenueAsk(core.ExchangeBinance, 101*core.PricePrecision, 5*core.QtyPrecision)
	cb.UpdateVenueBid(core.ExchangeKraken, 99*core.PricePrecision, 5*core.QtyPrecision)
	cb.UpdateVenueAsk(core.ExchangeKraken, 101*core.PricePrecision, 5*core.QtyPrecision)

	cv := NewCrossVenueQuoter(DefaultParams(strategySym), nil)
	cv.SetEnabled(true)

	positions := VenuePositions{
		core.ExchangeBinance: 10 * core.QtyPrecision, // at the cap
		core.ExchangeKraken:  0,
	}
	decisions := cv.ComputeQuotes(cb, positions, core.Signal{})
	require.Len(t, decisions, 2)

	byVenue := map[core.ExchangeID]VenueDecision{}
	for _, d := range decisions {
		byVenue[d.Exchange] = d
	}
	assert.False(t, byVenue[core.ExchangeBinance].ShouldQuote)
	assert.Equal(t, "venue at position cap", byVenue[core.ExchangeBinance].Reason)

	kraken := byVenue[core.ExchangeKraken]
	require.True(t, kraken.ShouldQuote, "reason: %s", kraken.Reason)
	// Net inventory of 10 leans the Kraken quotes downward.
	assert.Less(t, kraken.BidPrice, core.Price(9_995_000_000))
}

func TestCrossVenueDisabled(t *testing.T) {
	cb := book.NewConsolidatedBook(strategySym)
	cb.UpdateVenueBid(core.ExchangeBinance, 99*core.PricePrecision, core.QtyPrecision)

	cv := NewCrossVenueQuoter(DefaultParams(strategySym), nil)
	decisions := cv.ComputeQuotes(cb, VenuePositions{}, core.Signal{})
	require.Len(t, decisions, 1)
	assert.Equal(t, "strategy disabled", decisions[0].Reason)
}

type fixedLatency map[core.ExchangeID]time.Duration

func (f fixedLatency) Latency(ex core.ExchangeID) time.Duration { return f[ex] }

func TestHedgeOrderBestPrice(t *testing.T) {
	cb := book.NewConsolidatedBook(strategySym)
	cb.UpdateVenueBid(core.ExchangeBinance, 100*core.PricePrecision, 5*core.QtyPrecision)
	cb.UpdateVenueBid(core.ExchangeKraken, 99_90000000, 5*core.QtyPrecision)
	cb.UpdateVenueBid(core.ExchangeOKX, 100*core.PricePrecision, 5*core.QtyPrecision)

	cv := NewCrossVenueQuoter(DefaultParams(strategySym), nil)

	// Bought on Binance: hedge is a sell on the best-bid peer.
	o, ok := cv.HedgeOrder(cb, core.ExchangeBinance, core.Buy, 2*core.QtyPrecision)
	require.True(t, ok)
	assert.Equal(t, core.Sell, o.Side)
	assert.Equal(t, core.ExchangeOKX, o.Exchange)
	assert.Equal(t, core.Quantity(2*core.QtyPrecision), o.Quantity)
	assert.Equal(t, core.ImmediateOrCancel, o.Type)
	// Crosses the touch down by 10 bps.
	assert.Equal(t, core.Price(9_990_000_000), o.Price)
}

func TestHedgeOrderLowestLatency(t *testing.T) {
	cb := book.NewConsolidatedBook(strategySym)
	cb.UpdateVenueBid(core.ExchangeKraken, 99*core.PricePrecision, core.QtyPrecision)
	cb.UpdateVenueBid(core.ExchangeOKX, 100*core.PricePrecision, core.QtyPrecision)

	lat := fixedLatency{core.ExchangeKraken: time.Millisecond, core.ExchangeOKX: 5 * time.Millisecond}
	cv := NewCrossVenueQuoter(DefaultParams(strategySym), lat)

	o, ok := cv.HedgeOrder(cb, core.ExchangeBinance, core.Buy, core.QtyPrecision)
	require.True(t, ok)
	assert.Equal(t, core.ExchangeKraken, o.Exchange, "latency beats price when a provider is wired")
}

func TestHedgeOrderNoPeer(t *testing.T) {
	cb := book.NewConsolidatedBook(strategySym)
	cb.UpdateVenueBid(core.ExchangeBinance, 100*core.PricePrecision, core.QtyPrecision)

	cv := NewCrossVenueQuoter(DefaultParams(strategySym), nil)
	_, ok := cv.HedgeOrder(cb, core.ExchangeBinance, core.Buy, core.QtyPrecision)
	assert.False(t, ok)
}
