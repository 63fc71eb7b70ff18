package exchange

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantara-io/quantara/internal/core"
)

// quoteAssets are the suffixes tried when splitting a pair into base and
// quote for settlement. Longer suffixes first so FDUSD wins over USD.
var quoteAssets = []string{"FDUSD", "USDT", "USDC", "BUSD", "TUSD", "BTC", "ETH", "EUR", "USD"}

func splitPair(s string) (base, quote string) {
	for _, q := range quoteAssets {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return s[:len(s)-len(q)], q
		}
	}
	return s, ""
}

// PaperClient is an in-process venue used for paper trading and tests.
// Orders rest on arrival unless they cross the last seen touch; resting
// orders are matched against every injected tick. Fills settle into the
// balance map, which may go negative: the simulator does not margin-check.
//
// All events are delivered synchronously on the goroutine that triggered
// them, which keeps test runs deterministic.
type PaperClient struct {
	exchange core.ExchangeID
	log      *zap.Logger

	mu          sync.Mutex
	connected   bool
	cb          Callbacks
	balances    map[string]decimal.Decimal
	open        map[core.OrderID]*core.Order
	last        map[core.Symbol]core.Tick
	nextOrderID uint64
	nextTradeID uint64
}

// NewPaperClient builds a disconnected paper venue masquerading as the
// given exchange id.
func NewPaperClient(exchange core.ExchangeID, log *zap.Logger) *PaperClient {
	return &PaperClient{
		exchange: exchange,
		log:      log.Named("paper"),
		balances: make(map[string]decimal.Decimal),
		open:     make(map[core.OrderID]*core.Order),
		last:     make(map[core.Symbol]core.Tick),
	}
}

func (p *PaperClient) Exchange() core.ExchangeID { return p.exchange }

func (p *PaperClient) Name() string { return "paper" }

// SetBalance seeds an asset balance. Intended for startup configuration.
func (p *PaperClient) SetBalance(asset string, qty decimal.Decimal) {
	p.mu.Lock()
	p.balances[asset] = qty
	p.mu.Unlock()
}

// SetCallbacks registers the event sinks. Call before Connect.
func (p *PaperClient) SetCallbacks(cb Callbacks) {
	p.mu.Lock()
	p.cb = cb
	p.mu.Unlock()
}

func (p *PaperClient) Connect(ctx context.Context) error {
	p.mu.Lock()
	if p.connected {
		p.mu.Unlock()
		return nil
	}
	p.connected = true
	cb := p.cb
	p.mu.Unlock()

	p.log.Info("Paper venue connected", zap.String("venue", p.exchange.String()))
	if cb.OnConnected != nil {
		cb.OnConnected()
	}
	return nil
}

func (p *PaperClient) Disconnect() error {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return nil
	}
	p.connected = false
	cb := p.cb
	p.mu.Unlock()

	p.log.Info("Paper venue disconnected", zap.String("venue", p.exchange.String()))
	if cb.OnDisconnected != nil {
		cb.OnDisconnected()
	}
	return nil
}

func (p *PaperClient) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *PaperClient) SubscribeOrderBook(symbol core.Symbol, depth int) error {
	return p.requireConnected()
}

func (p *PaperClient) SubscribeTrades(symbol core.Symbol) error {
	return p.requireConnected()
}

func (p *PaperClient) SubscribeTicker(symbol core.Symbol) error {
	return p.requireConnected()
}

func (p *PaperClient) Unsubscribe(symbol core.Symbol) error { return nil }

func (p *PaperClient) requireConnected() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return ErrNotConnected
	}
	return nil
}

// InjectTick publishes a top-of-book update and matches resting orders
// against it. Tests and the replay feed drive the simulator through here.
func (p *PaperClient) InjectTick(symbol core.Symbol, t core.Tick) {
	t.Exchange = p.exchange
	now := core.Now()
	if t.LocalTS == 0 {
		t.LocalTS = now
	}

	p.mu.Lock()
	p.last[symbol] = t
	cb := p.cb

	ids := make([]core.OrderID, 0, len(p.open))
	for id, o := range p.open {
		if o.Symbol == symbol {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var events []core.Order
	var fills []core.Trade
	for _, id := range ids {
		ord := p.open[id]
		ev, fl := p.matchLocked(ord, &t, now, true)
		events = append(events, ev...)
		fills = append(fills, fl...)
		if !ord.IsActive() {
			delete(p.open, id)
		}
	}
	p.mu.Unlock()

	if cb.OnTick != nil {
		cb.OnTick(t)
	}
	deliver(cb, events, fills)
}

func (p *PaperClient) SendOrder(ctx context.Context, o *core.Order) OrderResponse {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return OrderResponse{ClientOrderID: o.ClientID, Error: "not connected"}
	}

	p.nextOrderID++
	now := core.Now()
	ord := *o
	ord.ID = core.OrderID(p.nextOrderID)
	ord.Exchange = p.exchange
	ord.Status = core.StatusNew
	ord.FilledQty = 0
	ord.Timestamp = now

	t, seen := p.last[ord.Symbol]
	if (ord.Type == core.LimitMaker || ord.TIF == core.GTX) && seen && crossesTouch(&ord, &t) {
		p.mu.Unlock()
		return OrderResponse{ClientOrderID: o.ClientID, Error: "post-only order would cross"}
	}

	var events []core.Order
	var fills []core.Trade
	if seen {
		events, fills = p.matchLocked(&ord, &t, now, false)
	}
	if ord.Status == core.StatusNew {
		if ord.Type == core.Market || ord.TIF == core.IOC || ord.TIF == core.FOK {
			// Nothing to trade against right now and these never rest.
			ord.Status = core.StatusExpired
			events = append(events, ord)
		} else {
			events = append(events, ord)
		}
	}
	if ord.IsActive() {
		rest := ord
		p.open[rest.ID] = &rest
	}
	cb := p.cb
	p.mu.Unlock()

	deliver(cb, events, fills)
	return OrderResponse{ExchangeOrderID: ord.ID, ClientOrderID: o.ClientID, Success: true, ExchangeTS: now}
}

// matchLocked fills ord against the touch of t and settles the result.
// maker marks whether ord was resting before the tick arrived. Callers
// hold p.mu.
func (p *PaperClient) matchLocked(ord *core.Order, t *core.Tick, now core.Timestamp, maker bool) ([]core.Order, []core.Trade) {
	touch, avail := t.Ask, t.AskQty
	if ord.Side == core.Sell {
		touch, avail = t.Bid, t.BidQty
	}
	if touch <= 0 || !crossesTouch(ord, t) {
		return nil, nil
	}

	fillQty := min(ord.Remaining(), avail)
	if fillQty <= 0 || (ord.TIF == core.FOK && fillQty < ord.Remaining()) {
		if !maker && (ord.Type == core.Market || ord.TIF == core.IOC || ord.TIF == core.FOK) {
			ord.Status = core.StatusExpired
			ord.Timestamp = now
			return []core.Order{*ord}, nil
		}
		return nil, nil
	}

	ord.FilledQty += fillQty
	ord.Timestamp = now
	switch {
	case ord.Remaining() == 0:
		ord.Status = core.StatusFilled
	case ord.Type == core.Market || ord.TIF == core.IOC:
		// Partial fill, remainder dies at the venue.
		ord.Status = core.StatusExpired
	default:
		ord.Status = core.StatusPartiallyFilled
	}

	p.nextTradeID++
	p.settleLocked(ord.Symbol, ord.Side, fillQty, touch)
	trade := core.Trade{
		OrderID:   ord.ID,
		TradeID:   core.OrderID(p.nextTradeID),
		Price:     touch,
		Quantity:  fillQty,
		Timestamp: now,
		Exchange:  p.exchange,
		Side:      ord.Side,
		IsMaker:   maker,
	}
	return []core.Order{*ord}, []core.Trade{trade}
}

// crossesTouch reports whether ord would trade against the current touch.
func crossesTouch(ord *core.Order, t *core.Tick) bool {
	if ord.Side == core.Buy {
		return t.Ask > 0 && (ord.Type == core.Market || ord.Price >= t.Ask)
	}
	return t.Bid > 0 && (ord.Type == core.Market || ord.Price <= t.Bid)
}

func (p *PaperClient) settleLocked(sym core.Symbol, side core.Side, qty core.Quantity, px core.Price) {
	base, quote := splitPair(sym.String())
	if quote == "" {
		return
	}
	dq := decimal.NewFromFloat(core.FromQty(qty))
	notional := dq.Mul(decimal.NewFromFloat(core.FromPrice(px)))
	if side == core.Buy {
		p.balances[base] = p.balances[base].Add(dq)
		p.balances[quote] = p.balances[quote].Sub(notional)
	} else {
		p.balances[base] = p.balances[base].Sub(dq)
		p.balances[quote] = p.balances[quote].Add(notional)
	}
}

func (p *PaperClient) CancelOrder(ctx context.Context, req CancelRequest) CancelResponse {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return CancelResponse{Error: "not connected"}
	}
	ord := p.open[req.OrderID]
	if ord == nil && req.ClientOrderID != 0 {
		for _, o := range p.open {
			if o.ClientID == req.ClientOrderID {
				ord = o
				break
			}
		}
	}
	if ord == nil {
		p.mu.Unlock()
		return CancelResponse{Error: "unknown order"}
	}
	delete(p.open, ord.ID)
	ord.Status = core.StatusCanceled
	ord.Timestamp = core.Now()
	ev := *ord
	cb := p.cb
	p.mu.Unlock()

	if cb.OnOrderUpdate != nil {
		cb.OnOrderUpdate(ev)
	}
	return CancelResponse{Success: true}
}

func (p *PaperClient) CancelAllOrders(ctx context.Context, symbol core.Symbol) CancelResponse {
	var all core.Symbol

	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return CancelResponse{Error: "not connected"}
	}
	now := core.Now()
	ids := make([]core.OrderID, 0, len(p.open))
	for id, o := range p.open {
		if symbol == all || o.Symbol == symbol {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	events := make([]core.Order, 0, len(ids))
	for _, id := range ids {
		ord := p.open[id]
		delete(p.open, id)
		ord.Status = core.StatusCanceled
		ord.Timestamp = now
		events = append(events, *ord)
	}
	cb := p.cb
	p.mu.Unlock()

	deliver(cb, events, nil)
	return CancelResponse{Success: true}
}

func (p *PaperClient) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return decimal.Zero, ErrNotConnected
	}
	return p.balances[asset], nil
}

func (p *PaperClient) OpenOrders(ctx context.Context, symbol core.Symbol) ([]core.Order, error) {
	var all core.Symbol

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil, ErrNotConnected
	}
	out := make([]core.Order, 0, len(p.open))
	for _, o := range p.open {
		if symbol == all || o.Symbol == symbol {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p *PaperClient) ServerTime(ctx context.Context) (core.Timestamp, error) {
	return core.Now(), nil
}

func deliver(cb Callbacks, events []core.Order, fills []core.Trade) {
	if cb.OnOrderUpdate != nil {
		for _, ev := range events {
			cb.OnOrderUpdate(ev)
		}
	}
	if cb.OnTrade != nil {
		for _, f := range fills {
			cb.OnTrade(f)
		}
	}
}
