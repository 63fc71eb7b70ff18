package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quantara-io/quantara/internal/config"
	"github.com/quantara-io/quantara/internal/core"
	"github.com/quantara-io/quantara/internal/exchange"
	"github.com/quantara-io/quantara/internal/strategy"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Trading.Paper = true
	cfg.System.TickQueueSize = 1024
	cfg.System.OrderQueueSize = 256
	cfg.System.TradeQueueSize = 256
	cfg.System.EventQueueSize = 64
	cfg.System.OrderPoolSize = 64
	cfg.Strategy.QuoteRefreshUs = 1000
	cfg.Risk.MaxOrdersPerSecond = 1000
	return cfg
}

func validTick(bid, ask core.Price, seq core.SequenceNum) core.Tick {
	now := core.Now()
	return core.Tick{
		Bid:        bid,
		Ask:        ask,
		BidQty:     5 * core.QtyPrecision,
		AskQty:     5 * core.QtyPrecision,
		LastPrice:  (bid + ask) / 2,
		ExchangeTS: now,
		LocalTS:    now,
		Seq:        seq,
	}
}

func TestEngineQuotesAndFills(t *testing.T) {
	cfg := testConfig()
	log := zaptest.NewLogger(t)
	paper := exchange.NewPaperClient(core.ExchangeBinance, log)
	params, err := cfg.StrategyParams()
	require.NoError(t, err)

	e, err := NewBuilder().
		WithConfig(cfg).
		WithLogger(log).
		WithClient(paper).
		WithStrategy(strategy.NewInventoryQuoter(params)).
		Build()
	require.NoError(t, err)
	require.NoError(t, e.Start(t.Context()))
	defer e.Stop()

	require.True(t, paper.IsConnected())
	assert.True(t, e.Running())

	sym := core.NewSymbol("BTCUSDT")
	paper.InjectTick(sym, validTick(50_000*core.PricePrecision, 50_010*core.PricePrecision, 1))

	require.Eventually(t, func() bool {
		return e.gate.OpenOrderCount() == 2
	}, 2*time.Second, 5*time.Millisecond, "two-sided quote should rest on the venue")

	// A bid through the resting ask lifts the sell quote.
	paper.InjectTick(sym, validTick(50_100*core.PricePrecision, 50_110*core.PricePrecision, 2))

	require.Eventually(t, func() bool {
		pos, ok := e.gate.Position(sym)
		return ok && pos.Quantity < 0
	}, 2*time.Second, 5*time.Millisecond, "maker sell fill should leave a short position")

	st := e.Stats()
	assert.GreaterOrEqual(t, st.Ticks, uint64(2))
	assert.GreaterOrEqual(t, st.OrdersSent, uint64(2))
	assert.GreaterOrEqual(t, st.Fills, uint64(1))
	assert.GreaterOrEqual(t, st.Quotes, uint64(1))

	e.Stop()
	assert.False(t, e.Running())
	assert.False(t, paper.IsConnected())
}

func TestEngineStartIsIdempotent(t *testing.T) {
	cfg := testConfig()
	log := zaptest.NewLogger(t)
	paper := exchange.NewPaperClient(core.ExchangeBinance, log)
	params, err := cfg.StrategyParams()
	require.NoError(t, err)

	e, err := NewBuilder().
		WithConfig(cfg).
		WithLogger(log).
		WithClient(paper).
		WithStrategy(strategy.NewQuoter(params)).
		Build()
	require.NoError(t, err)
	require.NoError(t, e.Start(t.Context()))
	require.NoError(t, e.Start(t.Context()))
	e.Stop()
	e.Stop()
}

func TestEnginePauseResumeAndKillSwitch(t *testing.T) {
	cfg := testConfig()
	log := zaptest.NewLogger(t)
	paper := exchange.NewPaperClient(core.ExchangeBinance, log)
	params, err := cfg.StrategyParams()
	require.NoError(t, err)

	e, err := NewBuilder().
		WithConfig(cfg).
		WithLogger(log).
		WithClient(paper).
		WithStrategy(strategy.NewInventoryQuoter(params)).
		Build()
	require.NoError(t, err)
	require.NoError(t, e.Start(t.Context()))
	defer e.Stop()

	assert.True(t, e.Running())
	e.Pause()
	assert.False(t, e.Running())
	e.Resume()
	assert.True(t, e.Running())

	e.gate.ActivateKillSwitch("drill")
	assert.False(t, e.Running())
	e.Resume()
	assert.False(t, e.Running(), "resume must not override an armed kill switch")

	e.gate.DeactivateKillSwitch()
	e.Resume()
	assert.True(t, e.Running())
}

func TestEngineCrossVenueArbAndHedge(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.Kind = "cross"
	cfg.Arb.Enabled = true
	log := zaptest.NewLogger(t)
	a := exchange.NewPaperClient(core.ExchangeBinance, log)
	b := exchange.NewPaperClient(core.ExchangeKraken, log)
	params, err := cfg.StrategyParams()
	require.NoError(t, err)

	e, err := NewBuilder().
		WithConfig(cfg).
		WithLogger(log).
		WithClient(a).
		WithClient(b).
		WithCrossVenue(strategy.NewCrossVenueQuoter(params, nil)).
		Build()
	require.NoError(t, err)
	require.NoError(t, e.Start(t.Context()))
	defer e.Stop()

	sym := core.NewSymbol("BTCUSDT")
	a.InjectTick(sym, validTick(50_000*core.PricePrecision, 50_010*core.PricePrecision, 1))
	b.InjectTick(sym, validTick(50_002*core.PricePrecision, 50_012*core.PricePrecision, 1))

	require.Eventually(t, func() bool {
		return e.gate.OpenOrderCount() == 4
	}, 2*time.Second, 5*time.Millisecond, "a quote pair should rest on each venue")

	// Kraken jumps through Binance's ask: the scanner sees the crossed
	// venues, the resting Kraken ask fills as maker, and the fill is
	// hedged with an IOC buy on Binance.
	b.InjectTick(sym, validTick(50_150*core.PricePrecision, 50_160*core.PricePrecision, 2))

	require.Eventually(t, func() bool {
		return e.scanner.Detected() >= 1
	}, 2*time.Second, 5*time.Millisecond, "crossed venues should report an opportunity")

	require.Eventually(t, func() bool {
		return e.gate.RealizedPnL() > 0
	}, 2*time.Second, 5*time.Millisecond, "maker fill plus cheaper hedge should realize profit")

	require.Eventually(t, func() bool {
		return e.scanner.Executed() >= 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestBuilderValidation(t *testing.T) {
	log := zaptest.NewLogger(t)
	paper := exchange.NewPaperClient(core.ExchangeBinance, log)
	params := strategy.DefaultParams(core.NewSymbol("BTCUSDT"))

	_, err := NewBuilder().Build()
	assert.ErrorContains(t, err, "config required")

	_, err = NewBuilder().WithConfig(config.Default()).Build()
	assert.ErrorContains(t, err, "logger required")

	_, err = NewBuilder().WithConfig(config.Default()).WithLogger(log).Build()
	assert.ErrorContains(t, err, "at least one venue client")

	_, err = NewBuilder().WithConfig(config.Default()).WithLogger(log).WithClient(paper).Build()
	assert.ErrorContains(t, err, "strategy required")

	bad := config.Default()
	bad.Trading.Exchange = "mtgox"
	_, err = NewBuilder().WithConfig(bad).WithLogger(log).WithClient(paper).
		WithStrategy(strategy.NewQuoter(params)).Build()
	assert.ErrorContains(t, err, "unknown exchange")

	kraken := exchange.NewPaperClient(core.ExchangeKraken, log)
	_, err = NewBuilder().WithConfig(config.Default()).WithLogger(log).WithClient(kraken).
		WithStrategy(strategy.NewQuoter(params)).Build()
	assert.ErrorContains(t, err, "no client registered for primary exchange")

	_, err = NewBuilder().WithConfig(config.Default()).WithLogger(log).WithClient(paper).
		WithStrategy(strategy.NewQuoter(params)).
		WithCrossVenue(strategy.NewCrossVenueQuoter(params, nil)).Build()
	assert.ErrorContains(t, err, "mutually exclusive")
}
