package engine

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/quantara-io/quantara/internal/core"
	"github.com/quantara-io/quantara/internal/exchange"
	"github.com/quantara-io/quantara/internal/strategy"
	"github.com/quantara-io/quantara/pkg/metrics"
)

// marketDataWorker drains the per-venue tick rings into the consolidated
// book, refreshes the mark price and runs the arbitrage scan when more
// than one venue contributes.
func (e *Engine) marketDataWorker() {
	multiVenue := len(e.venues) > 1
	for e.running.Load() {
		idle := true
		for _, ex := range e.venues {
			t, ok := e.tickRings[ex].TryPop()
			if !ok {
				continue
			}
			idle = false
			e.ticksSeen.Add(1)
			metrics.TicksProcessed.WithLabelValues(t.Exchange.String()).Inc()
			e.lastTickNs.Store(t.LocalTS)

			e.book.ApplyTick(&t)
			if t.IsValid() {
				e.gate.MarkPrice(e.symbol, t.MidPrice())
			}
			e.health.Heartbeat(t.Exchange)

			if e.scanner != nil && multiVenue {
				e.scanner.Scan(e.book)
			}
		}
		if idle {
			time.Sleep(tickBackoff)
		}
	}
}

// strategyWorker runs the quote loop at the configured refresh, sleeping
// longer while quoting is off.
func (e *Engine) strategyWorker() {
	refresh := time.Duration(e.params.QuoteRefreshUs) * time.Microsecond
	if refresh <= 0 {
		refresh = 100 * time.Millisecond
	}
	for e.running.Load() {
		if !e.quotingEnabled() {
			time.Sleep(pausedSleep)
			continue
		}
		e.quoteOnce()
		time.Sleep(refresh)
	}
}

func (e *Engine) quoteOnce() {
	if e.cross != nil {
		n := e.book.NBBO()
		var mid core.Price
		if n.BidPrice > 0 && n.AskPrice > 0 {
			mid = (n.BidPrice + n.AskPrice) / 2
		}
		sig := e.signal(mid, e.netPosition())
		for _, vd := range e.cross.ComputeQuotes(e.book, e.venuePositions(), sig) {
			if vd.ShouldQuote {
				e.placeQuotes(vd.Exchange, vd.Decision)
			}
		}
		return
	}

	vb := e.book.Venue(e.primary)
	if vb == nil {
		return
	}
	pos, _ := e.gate.Position(e.symbol)
	sig := e.signal(vb.MidPrice(), pos.Quantity)
	d := e.strat.ComputeQuotes(vb, pos, sig)
	if d.ShouldQuote {
		e.placeQuotes(e.primary, d)
	}
}

// signal summarizes the market for the quoter: fair value from the mid, the
// share of the position budget in use, and an EWMA of absolute mid returns
// as the volatility factor. Strategy-worker only.
func (e *Engine) signal(mid core.Price, position core.Quantity) core.Signal {
	if mid > 0 {
		if e.prevMid > 0 {
			r := math.Abs(float64(mid-e.prevMid) / float64(e.prevMid))
			e.vol = (1-e.params.EmaAlpha)*e.vol + e.params.EmaAlpha*r*volScale
		}
		e.prevMid = mid
	}
	pressure := 0.0
	if e.params.MaxPosition > 0 {
		pressure = float64(position) / float64(e.params.MaxPosition)
		if pressure > 1 {
			pressure = 1
		} else if pressure < -1 {
			pressure = -1
		}
	}
	return core.Signal{
		FairValue:         mid,
		InventoryPressure: pressure,
		Volatility:        e.vol,
		Timestamp:         core.Now(),
	}
}

// placeQuotes replaces the live pair on a venue with the decided one. Order
// records come from the slab so the quote path does not allocate.
func (e *Engine) placeQuotes(venue core.ExchangeID, d strategy.Decision) {
	e.cancelActive(venue)

	send := func(side core.Side, price core.Price, qty core.Quantity) core.OrderID {
		cell := e.pool.Get()
		if cell == nil {
			e.poolMisses.Add(1)
			metrics.QueueDrops.WithLabelValues("pool").Inc()
			return 0
		}
		cell.Price = price
		cell.Quantity = qty
		cell.Symbol = e.symbol
		cell.Exchange = venue
		cell.Side = side
		cell.Type = core.LimitMaker
		cell.TIF = core.GTX
		id := e.SendOrder(cell)
		e.pool.Put(cell)
		return id
	}

	bidID := send(core.Buy, d.BidPrice, d.BidQty)
	askID := send(core.Sell, d.AskPrice, d.AskQty)
	if bidID == 0 && askID == 0 {
		return
	}

	e.quoteMu.Lock()
	e.active[venue] = quotePair{bid: bidID, ask: askID}
	e.quoteMu.Unlock()

	e.quotesMade.Add(1)
	metrics.QuotesGenerated.Inc()
	if last := e.lastTickNs.Load(); last > 0 {
		if now := core.Now(); now > last {
			metrics.TickToQuote.Observe(float64(now - last))
		}
	}
}

// cancelActive pulls the venue's live pair and cancels both sides. Cancel
// refusals are expected, the order may already be done.
func (e *Engine) cancelActive(venue core.ExchangeID) {
	e.quoteMu.Lock()
	pair := e.active[venue]
	delete(e.active, venue)
	e.quoteMu.Unlock()
	if pair == (quotePair{}) {
		return
	}

	c := e.mgr.Client(venue)
	if c == nil {
		return
	}
	for _, id := range [2]core.OrderID{pair.bid, pair.ask} {
		if id == 0 {
			continue
		}
		if resp := c.CancelOrder(e.ctx, exchange.CancelRequest{Symbol: e.symbol, OrderID: id}); !resp.Success {
			e.log.Debug("Cancel refused",
				zap.Uint64("order_id", id),
				zap.String("error", resp.Error))
		}
	}
}

func (e *Engine) clearActive(venue core.ExchangeID, id core.OrderID) {
	if id == 0 {
		return
	}
	e.quoteMu.Lock()
	if pair, ok := e.active[venue]; ok {
		if pair.bid == id {
			pair.bid = 0
		}
		if pair.ask == id {
			pair.ask = 0
		}
		if pair == (quotePair{}) {
			delete(e.active, venue)
		} else {
			e.active[venue] = pair
		}
	}
	e.quoteMu.Unlock()
}

// orderWorker drains order updates, trades and out-of-band events into the
// gate and the strategy callbacks.
func (e *Engine) orderWorker() {
	for e.running.Load() {
		idle := true
		if o, ok := e.updates.TryPop(); ok {
			idle = false
			e.onOrderUpdate(o)
		}
		if t, ok := e.trades.TryPop(); ok {
			idle = false
			e.onTrade(t)
		}
		if ev, ok := e.events.TryPop(); ok {
			idle = false
			e.onEvent(ev)
		}
		if idle {
			time.Sleep(orderBackoff)
		}
	}
}

func (e *Engine) onOrderUpdate(o core.Order) {
	switch o.Status {
	case core.StatusNew, core.StatusPartiallyFilled:
		e.gate.UpdateOrder(o)
	case core.StatusFilled, core.StatusExpired:
		e.gate.CloseOrder(o.ID)
		e.clearActive(o.Exchange, o.ID)
	case core.StatusCanceled:
		e.gate.CloseOrder(o.ID)
		e.clearActive(o.Exchange, o.ID)
		if e.strat != nil {
			e.strat.OnCancel(o.ID)
		}
	case core.StatusRejected:
		e.gate.CloseOrder(o.ID)
		e.clearActive(o.Exchange, o.ID)
		metrics.OrdersRejected.WithLabelValues("venue").Inc()
		if e.strat != nil {
			e.strat.OnReject(o.ID)
		}
	}
}

func (e *Engine) onTrade(t core.Trade) {
	e.fillsSeen.Add(1)
	pos := e.gate.OnFill(e.symbol, t.Side, t.Quantity, t.Price)
	metrics.Position.WithLabelValues(e.symbol.String()).Set(core.FromQty(pos.Quantity))
	if e.strat != nil {
		e.strat.OnFill(t.Side, t.Quantity, t.Price)
	}

	signed := t.Quantity
	if t.Side == core.Sell {
		signed = -signed
	}
	e.posMu.Lock()
	e.venuePos[t.Exchange] += signed
	e.posMu.Unlock()

	if e.feed != nil {
		e.feed.PublishFill(e.symbol, &t)
	}
	if e.journal != nil {
		e.journal.RecordFill(e.symbol, &t)
	}

	// Maker fills get hedged on a peer venue; the hedge itself is an IOC
	// taker fill and must not hedge again.
	if e.cross != nil && t.IsMaker {
		if hedge, ok := e.cross.HedgeOrder(e.book, t.Exchange, t.Side, t.Quantity); ok {
			if e.SendOrder(&hedge) != 0 && e.scanner != nil {
				e.scanner.MarkExecuted()
				metrics.ArbOpportunities.WithLabelValues("executed").Inc()
			}
		}
	}
}

func (e *Engine) onEvent(ev core.Event) {
	switch ev.Type {
	case core.EventError:
		e.log.Warn("Venue error",
			zap.String("exchange", ev.Exchange.String()),
			zap.String("error", ev.Msg))
		e.gate.OnError(ev.Msg)
	case core.EventDisconnected:
		e.log.Warn("Venue disconnected", zap.String("exchange", ev.Exchange.String()))
		metrics.ConnectedVenues.Set(float64(e.mgr.ConnectedCount()))
		if ev.Exchange == e.primary {
			e.setQuoting(false)
		}
	case core.EventConnected:
		e.log.Info("Venue connected", zap.String("exchange", ev.Exchange.String()))
		metrics.WSReconnects.WithLabelValues(ev.Exchange.String()).Inc()
		metrics.ConnectedVenues.Set(float64(e.mgr.ConnectedCount()))
		if ev.Exchange == e.primary && e.running.Load() && !e.gate.KillSwitchActive() {
			e.setQuoting(true)
		}
	case core.EventKillSwitch:
		e.cancelAllVenues()
	}
}

// riskWorker is the slow observability loop: gauges every cycle, a stats
// line at the configured interval, the NBBO feed event when enabled.
func (e *Engine) riskWorker() {
	logEvery := e.cfg.System.StatsIntervalSec * 10
	if logEvery <= 0 {
		logEvery = 100
	}
	n := 0
	for e.running.Load() {
		time.Sleep(riskCadence)
		e.publishGauges()
		if e.feed != nil {
			if nb := e.book.NBBO(); nb.BidPrice > 0 && nb.AskPrice > 0 {
				e.feed.PublishNBBO(e.symbol, nb.BidExchange, nb.AskExchange, nb.BidPrice, nb.AskPrice)
			}
		}
		n++
		if n%logEvery == 0 {
			e.logStats()
		}
	}
}

func (e *Engine) publishGauges() {
	pos, _ := e.gate.Position(e.symbol)
	metrics.Position.WithLabelValues(e.symbol.String()).Set(core.FromQty(pos.Quantity))
	metrics.DailyPnL.Set(e.gate.DailyPnL())
	var queued uint64
	for _, ex := range e.venues {
		queued += e.tickRings[ex].Size()
	}
	metrics.QueueDepth.WithLabelValues("ticks").Set(float64(queued))
	metrics.QueueDepth.WithLabelValues("orders").Set(float64(e.updates.Size()))
	metrics.QueueDepth.WithLabelValues("trades").Set(float64(e.trades.Size()))
	metrics.QueueDepth.WithLabelValues("events").Set(float64(e.events.Size()))
	metrics.ConnectedVenues.Set(float64(e.mgr.ConnectedCount()))
	if e.gate.KillSwitchActive() {
		metrics.KillSwitch.Set(1)
	} else {
		metrics.KillSwitch.Set(0)
	}
}

func (e *Engine) logStats() {
	st := e.Stats()
	pos, _ := e.gate.Position(e.symbol)
	e.log.Info("Engine stats",
		zap.Uint64("ticks", st.Ticks),
		zap.Uint64("quotes", st.Quotes),
		zap.Uint64("orders_sent", st.OrdersSent),
		zap.Uint64("orders_rejected", st.OrdersRejected),
		zap.Uint64("fills", st.Fills),
		zap.Uint64("tick_drops", st.TickDrops),
		zap.Float64("position", core.FromQty(pos.Quantity)),
		zap.Float64("daily_pnl", e.gate.DailyPnL()),
		zap.Int("open_orders", e.gate.OpenOrderCount()))
}

func (e *Engine) netPosition() core.Quantity {
	e.posMu.Lock()
	defer e.posMu.Unlock()
	return e.venuePos.Net()
}

func (e *Engine) venuePositions() strategy.VenuePositions {
	e.posMu.Lock()
	defer e.posMu.Unlock()
	cp := make(strategy.VenuePositions, len(e.venuePos))
	for ex, q := range e.venuePos {
		cp[ex] = q
	}
	return cp
}
