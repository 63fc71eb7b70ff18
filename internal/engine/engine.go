// Package engine owns the trading loop: four worker goroutines wired
// through bounded lock-free rings, a pre-trade risk gate, one strategy, and
// the venue adapters. Market data, order updates and trades enter through
// adapter callbacks that do nothing but enqueue; everything else happens on
// the workers. Losing a tick under burst is acceptable, blocking a callback
// is not.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantara-io/quantara/internal/arb"
	"github.com/quantara-io/quantara/internal/book"
	"github.com/quantara-io/quantara/internal/config"
	"github.com/quantara-io/quantara/internal/core"
	"github.com/quantara-io/quantara/internal/exchange"
	"github.com/quantara-io/quantara/internal/feed"
	"github.com/quantara-io/quantara/internal/journal"
	"github.com/quantara-io/quantara/internal/mirror"
	"github.com/quantara-io/quantara/internal/risk"
	"github.com/quantara-io/quantara/internal/strategy"
	"github.com/quantara-io/quantara/internal/transport"
	"github.com/quantara-io/quantara/pkg/metrics"
)

// Worker backoff and cadence constants. Sleeps are the only suspension
// points in the worker loops.
const (
	tickBackoff  = 10 * time.Microsecond
	orderBackoff = 100 * time.Microsecond
	riskCadence  = 100 * time.Millisecond
	pausedSleep  = 10 * time.Millisecond

	bookDepth = 20

	// volScale converts an absolute mid return into the dimensionless
	// volatility factor the quoters widen their spread with.
	volScale = 100
)

// quotePair holds the venue order ids of one live two-sided quote.
type quotePair struct {
	bid core.OrderID
	ask core.OrderID
}

// Engine drives one symbol across one or more venues.
type Engine struct {
	log *zap.Logger
	cfg *config.Config

	symbol  core.Symbol
	primary core.ExchangeID
	params  strategy.Params

	mgr     *exchange.Manager
	gate    *risk.Gate
	book    *book.ConsolidatedBook
	strat   strategy.Strategy
	cross   *strategy.CrossVenueQuoter
	scanner *arb.Scanner
	health  *exchange.HealthMonitor

	feed    *feed.Publisher
	journal *journal.Journal

	// One tick ring per venue: the venue's read pump is the only producer,
	// the market-data worker the only consumer, so SPSC holds. Order and
	// trade events can arrive from the send path and the venue stream at
	// once, so those rings are MPMC.
	tickRings [core.MaxExchanges]*transport.SPSC[core.Tick]
	venues    []core.ExchangeID
	updates   *transport.MPMC[core.Order]
	trades    *transport.MPMC[core.Trade]
	events    *transport.MPMC[core.Event]
	pool      *transport.Slab[core.Order]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lifecycle sync.Mutex
	running   atomic.Bool

	nextClientID atomic.Uint64
	lastTickNs   atomic.Uint64
	startTime    time.Time

	quoteMu sync.Mutex
	active  map[core.ExchangeID]quotePair

	posMu    sync.Mutex
	venuePos strategy.VenuePositions

	// Volatility EWMA state, touched only by the strategy worker.
	prevMid core.Price
	vol     float64

	ticksSeen   atomic.Uint64
	quotesMade  atomic.Uint64
	ordersSent  atomic.Uint64
	ordersRej   atomic.Uint64
	fillsSeen   atomic.Uint64
	tickDrops   atomic.Uint64
	updateDrops atomic.Uint64
	tradeDrops  atomic.Uint64
	eventDrops  atomic.Uint64
	poolMisses  atomic.Uint64
}

// Stats is a point-in-time snapshot of the engine counters.
type Stats struct {
	Ticks          uint64
	Quotes         uint64
	OrdersSent     uint64
	OrdersRejected uint64
	Fills          uint64
	TickDrops      uint64
	UpdateDrops    uint64
	TradeDrops     uint64
	EventDrops     uint64
	PoolMisses     uint64
	Uptime         time.Duration
}

// Start connects the venues, subscribes market data, spawns the workers
// and enables quoting. Calling Start on a running engine logs a warning
// and returns nil.
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if e.running.Load() {
		e.log.Warn("Engine already running")
		return nil
	}

	e.ctx, e.cancel = context.WithCancel(ctx)
	e.startTime = time.Now()

	// Callbacks must be in place before any adapter goroutine can fire.
	e.gate.SetKillSwitchCallback(e.onKillSwitch)
	if e.scanner != nil {
		e.scanner.SetCallback(e.onOpportunity)
	}
	e.health.SetCallbacks(e.onVenueUnhealthy, e.onVenueRecovered)
	for _, c := range e.mgr.Clients() {
		e.wireCallbacks(c)
	}

	if err := e.mgr.ConnectAll(e.ctx); err != nil {
		// ConnectAll stops at the first failure; drop whatever connected.
		e.mgr.DisconnectAll()
		e.cancel()
		return fmt.Errorf("engine: connect: %w", err)
	}
	for _, c := range e.mgr.Clients() {
		if err := e.subscribe(c); err != nil {
			e.mgr.DisconnectAll()
			e.cancel()
			return fmt.Errorf("engine: subscribe %s: %w", c.Exchange(), err)
		}
	}
	e.health.Start()

	e.running.Store(true)
	for _, worker := range []func(){e.marketDataWorker, e.strategyWorker, e.orderWorker, e.riskWorker} {
		e.wg.Add(1)
		go func(fn func()) {
			defer e.wg.Done()
			fn()
		}(worker)
	}
	e.setQuoting(true)

	metrics.ConnectedVenues.Set(float64(e.mgr.ConnectedCount()))
	e.log.Info("Engine started",
		zap.String("symbol", e.symbol.String()),
		zap.String("primary", e.primary.String()),
		zap.String("strategy", e.strategyName()),
		zap.Int("venues", len(e.mgr.Clients())))
	return nil
}

// Stop winds the engine down: quoting off, open orders canceled, workers
// joined, venues disconnected, sinks flushed. Safe to call on a stopped
// engine.
func (e *Engine) Stop() {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if !e.running.Load() {
		return
	}

	e.setQuoting(false)
	e.cancelAllVenues()
	e.running.Store(false)
	e.wg.Wait()
	e.health.Stop()
	e.cancel()
	e.mgr.DisconnectAll()

	if e.feed != nil {
		if err := e.feed.Close(); err != nil {
			e.log.Warn("Feed close failed", zap.Error(err))
		}
	}
	if e.journal != nil {
		if err := e.journal.Close(); err != nil {
			e.log.Warn("Journal close failed", zap.Error(err))
		}
	}

	st := e.Stats()
	e.log.Info("Engine stopped",
		zap.Uint64("ticks", st.Ticks),
		zap.Uint64("quotes", st.Quotes),
		zap.Uint64("orders_sent", st.OrdersSent),
		zap.Uint64("orders_rejected", st.OrdersRejected),
		zap.Uint64("fills", st.Fills),
		zap.Duration("uptime", st.Uptime))
}

// Running reports whether the engine is up and the strategy is quoting.
func (e *Engine) Running() bool {
	return e.running.Load() && e.quotingEnabled()
}

// Pause stops quote generation; the workers keep draining their rings.
func (e *Engine) Pause() {
	e.setQuoting(false)
	e.log.Info("Strategy paused")
}

// Resume re-enables quoting. A no-op while the kill switch is armed.
func (e *Engine) Resume() {
	if e.gate.KillSwitchActive() {
		e.log.Warn("Resume refused, kill switch armed")
		return
	}
	e.setQuoting(true)
	e.log.Info("Strategy resumed")
}

// SendOrder runs the full pre-trade path on the calling goroutine: client
// id assignment, risk check, adapter dispatch, gate registration. Returns
// the venue order id, or zero when the order was refused at any stage.
func (e *Engine) SendOrder(o *core.Order) core.OrderID {
	if o.ClientID == 0 {
		o.ClientID = e.nextClientID.Add(1)
	}
	if o.Exchange == core.ExchangeUnknown {
		o.Exchange = e.primary
	}
	if o.Timestamp == 0 {
		o.Timestamp = core.Now()
	}

	if v := e.gate.CheckOrder(o, e.refPrice(o.Exchange)); !v.OK() {
		e.ordersRej.Add(1)
		metrics.OrdersRejected.WithLabelValues("risk").Inc()
		e.log.Debug("Order rejected",
			zap.String("violation", v.String()),
			zap.String("side", o.Side.String()),
			zap.Int64("price", o.Price),
			zap.Int64("qty", o.Quantity))
		return 0
	}

	c := e.mgr.Client(o.Exchange)
	if c == nil {
		e.ordersRej.Add(1)
		metrics.OrdersRejected.WithLabelValues("venue").Inc()
		e.log.Warn("No adapter for venue", zap.String("exchange", o.Exchange.String()))
		return 0
	}

	start := time.Now()
	resp := c.SendOrder(e.ctx, o)
	rtt := time.Since(start)
	metrics.OrderSendLatency.Observe(rtt.Seconds())
	e.mgr.RecordLatency(o.Exchange, rtt)

	if !resp.Success {
		e.ordersRej.Add(1)
		metrics.OrdersRejected.WithLabelValues("venue").Inc()
		e.log.Warn("Venue refused order",
			zap.String("exchange", o.Exchange.String()),
			zap.String("error", resp.Error))
		return 0
	}

	o.ID = resp.ExchangeOrderID
	o.Status = core.StatusNew
	e.gate.RegisterOrder(*o)
	e.ordersSent.Add(1)
	metrics.OrdersSent.WithLabelValues(o.Side.String()).Inc()
	return o.ID
}

// Stats returns the engine counters.
func (e *Engine) Stats() Stats {
	var uptime time.Duration
	if !e.startTime.IsZero() {
		uptime = time.Since(e.startTime)
	}
	return Stats{
		Ticks:          e.ticksSeen.Load(),
		Quotes:         e.quotesMade.Load(),
		OrdersSent:     e.ordersSent.Load(),
		OrdersRejected: e.ordersRej.Load(),
		Fills:          e.fillsSeen.Load(),
		TickDrops:      e.tickDrops.Load(),
		UpdateDrops:    e.updateDrops.Load(),
		TradeDrops:     e.tradeDrops.Load(),
		EventDrops:     e.eventDrops.Load(),
		PoolMisses:     e.poolMisses.Load(),
		Uptime:         uptime,
	}
}

// Snapshot builds the state-mirror view of the engine.
func (e *Engine) Snapshot() mirror.Snapshot {
	pos, _ := e.gate.Position(e.symbol)
	n := e.book.NBBO()
	return mirror.Snapshot{
		Symbol:          e.symbol.String(),
		Exchange:        e.primary.String(),
		Running:         e.Running(),
		KillSwitch:      e.gate.KillSwitchActive(),
		Position:        decimal.New(pos.Quantity, -8).String(),
		AvgEntryPrice:   decimal.New(pos.AvgEntryPrice, -8).String(),
		RealizedPnL:     decimal.NewFromFloat(e.gate.RealizedPnL()).String(),
		UnrealizedPnL:   decimal.NewFromFloat(pos.UnrealizedPnL).String(),
		Bid:             decimal.New(n.BidPrice, -8).String(),
		Ask:             decimal.New(n.AskPrice, -8).String(),
		BidExchange:     n.BidExchange.String(),
		AskExchange:     n.AskExchange.String(),
		OpenOrders:      e.gate.OpenOrderCount(),
		ConnectedVenues: e.mgr.ConnectedCount(),
	}
}

// Gate exposes the risk gate for the admin API.
func (e *Engine) Gate() *risk.Gate { return e.gate }

// Book exposes the consolidated book for the admin API.
func (e *Engine) Book() *book.ConsolidatedBook { return e.book }

// Manager exposes the venue registry for the admin API.
func (e *Engine) Manager() *exchange.Manager { return e.mgr }

func (e *Engine) strategyName() string {
	if e.cross != nil {
		return e.cross.Name()
	}
	return e.strat.Name()
}

func (e *Engine) setQuoting(on bool) {
	if e.cross != nil {
		e.cross.SetEnabled(on)
		return
	}
	e.strat.SetEnabled(on)
}

func (e *Engine) quotingEnabled() bool {
	if e.cross != nil {
		return e.cross.Enabled()
	}
	return e.strat.Enabled()
}

// refPrice is the reference for the gate's price-deviation check: the
// venue's own mid, the NBBO mid as fallback, zero to skip.
func (e *Engine) refPrice(venue core.ExchangeID) core.Price {
	if vb := e.book.Venue(venue); vb != nil {
		if mid := vb.MidPrice(); mid > 0 {
			return mid
		}
	}
	n := e.book.NBBO()
	if n.BidPrice > 0 && n.AskPrice > 0 {
		return (n.BidPrice + n.AskPrice) / 2
	}
	return 0
}

func (e *Engine) subscribe(c exchange.Client) error {
	if err := c.SubscribeOrderBook(e.symbol, bookDepth); err != nil {
		return err
	}
	if err := c.SubscribeTrades(e.symbol); err != nil {
		return err
	}
	return c.SubscribeTicker(e.symbol)
}

// wireCallbacks installs the enqueue-only adapter callbacks. Failed pushes
// drop the element and count it; the warning is rate limited.
func (e *Engine) wireCallbacks(c exchange.Client) {
	ex := c.Exchange()
	ring := e.tickRings[ex]
	c.SetCallbacks(exchange.Callbacks{
		OnTick: func(t core.Tick) {
			if !ring.TryPush(t) {
				e.countDrop(&e.tickDrops, "ticks")
			}
		},
		OnOrderUpdate: func(o core.Order) {
			if !e.updates.TryPush(o) {
				e.countDrop(&e.updateDrops, "orders")
			}
		},
		OnTrade: func(t core.Trade) {
			if !e.trades.TryPush(t) {
				e.countDrop(&e.tradeDrops, "trades")
			}
		},
		OnError: func(err error) {
			e.pushEvent(core.Event{Type: core.EventError, Exchange: ex, Timestamp: core.Now(), Msg: err.Error()})
		},
		OnConnected: func() {
			e.pushEvent(core.Event{Type: core.EventConnected, Exchange: ex, Timestamp: core.Now()})
		},
		OnDisconnected: func() {
			e.pushEvent(core.Event{Type: core.EventDisconnected, Exchange: ex, Timestamp: core.Now()})
		},
	})
}

func (e *Engine) pushEvent(ev core.Event) {
	if !e.events.TryPush(ev) {
		e.countDrop(&e.eventDrops, "events")
	}
}

func (e *Engine) countDrop(counter *atomic.Uint64, ring string) {
	n := counter.Add(1)
	metrics.QueueDrops.WithLabelValues(ring).Inc()
	if n == 1 || n%1000 == 0 {
		e.log.Warn("Queue full, dropping", zap.String("ring", ring), zap.Uint64("dropped", n))
	}
}

// onKillSwitch runs on whichever goroutine armed the switch; it only flips
// flags and enqueues, the order worker does the cancels.
func (e *Engine) onKillSwitch(reason string) {
	e.log.Error("Kill switch armed", zap.String("reason", reason))
	e.setQuoting(false)
	metrics.KillSwitch.Set(1)
	e.pushEvent(core.Event{Type: core.EventKillSwitch, Timestamp: core.Now(), Msg: reason})
}

func (e *Engine) onOpportunity(o arb.Opportunity) {
	metrics.ArbOpportunities.WithLabelValues("detected").Inc()
	if e.feed != nil {
		e.feed.PublishOpportunity(&o)
	}
	if e.journal != nil {
		e.journal.RecordOpportunity(&o)
	}
}

func (e *Engine) onVenueUnhealthy(ex core.ExchangeID) {
	if ex == e.primary {
		e.log.Warn("Primary venue unhealthy, quoting off")
		e.setQuoting(false)
	}
}

func (e *Engine) onVenueRecovered(ex core.ExchangeID) {
	if ex == e.primary && e.running.Load() && !e.gate.KillSwitchActive() {
		e.log.Info("Primary venue recovered, quoting on")
		e.setQuoting(true)
	}
}

// cancelAllVenues cancels every open order for the symbol on every
// connected venue and forgets the live quote pairs.
func (e *Engine) cancelAllVenues() {
	e.quoteMu.Lock()
	e.active = make(map[core.ExchangeID]quotePair)
	e.quoteMu.Unlock()

	for _, c := range e.mgr.Clients() {
		if !c.IsConnected() {
			continue
		}
		if resp := c.CancelAllOrders(e.ctx, e.symbol); !resp.Success {
			e.log.Warn("Cancel all failed",
				zap.String("exchange", c.Exchange().String()),
				zap.String("error", resp.Error))
		}
	}
}
