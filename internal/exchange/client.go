// Package exchange defines the venue adapter contract the engine trades
// through, a manager that tracks adapter health and latency, an order
// router, and two adapters: a deterministic in-process paper venue and a
// Binance client speaking websocket market data plus signed REST orders.
package exchange

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/quantara-io/quantara/internal/core"
)

// ErrNotConnected is returned by adapter calls that need a live session.
var ErrNotConnected = errors.New("exchange: not connected")

// OrderResponse is a venue's answer to an order submission. Refusals are
// values, not errors; Error carries the venue's reason.
type OrderResponse struct {
	ExchangeOrderID core.OrderID
	ClientOrderID   core.OrderID
	Success         bool
	Error           string
	ExchangeTS      core.Timestamp
}

// CancelRequest identifies an order to cancel by venue or client id.
type CancelRequest struct {
	Symbol        core.Symbol
	OrderID       core.OrderID
	ClientOrderID core.OrderID
}

// CancelResponse is a venue's answer to a cancel.
type CancelResponse struct {
	Success bool
	Error   string
}

// Callbacks are the engine's event sinks. Adapters deliver events on
// their own goroutines; every callback must be a thread-safe enqueue and
// nothing more. Register them before Connect.
type Callbacks struct {
	OnTick         func(core.Tick)
	OnOrderUpdate  func(core.Order)
	OnTrade        func(core.Trade)
	OnError        func(err error)
	OnConnected    func()
	OnDisconnected func()
}

// Client is the adapter contract one venue implements.
type Client interface {
	Exchange() core.ExchangeID
	Name() string

	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool

	SubscribeOrderBook(symbol core.Symbol, depth int) error
	SubscribeTrades(symbol core.Symbol) error
	SubscribeTicker(symbol core.Symbol) error
	Unsubscribe(symbol core.Symbol) error

	SendOrder(ctx context.Context, o *core.Order) OrderResponse
	CancelOrder(ctx context.Context, req CancelRequest) CancelResponse
	CancelAllOrders(ctx context.Context, symbol core.Symbol) CancelResponse

	Balance(ctx context.Context, asset string) (decimal.Decimal, error)
	OpenOrders(ctx context.Context, symbol core.Symbol) ([]core.Order, error)
	ServerTime(ctx context.Context) (core.Timestamp, error)

	SetCallbacks(cb Callbacks)
}
