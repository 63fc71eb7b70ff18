// Package core defines the fixed-point numeric types, identifiers and
// plain-value records exchanged between the engine's components. Everything
// here is copied by value across ring queues, so records are fixed-size,
// allocation-free and padded to cache-line multiples.
package core

import (
	"strings"
	"time"
)

// Price and Quantity are signed fixed-point values scaled by 1e8.
// Monetary state never touches floating point; float64 appears only in
// dimensionless factors such as basis points and skew.
type (
	Price    = int64
	Quantity = int64
)

// OrderID identifies an order. Client IDs are assigned monotonically by the
// engine; exchange IDs come from the venue adapter.
type OrderID = uint64

// Timestamp is nanoseconds since the Unix epoch.
type Timestamp = uint64

// SequenceNum orders events within a single venue's stream.
type SequenceNum = uint64

const (
	// PricePrecision is the fixed-point scale: 8 decimal places.
	PricePrecision int64 = 100000000
	// QtyPrecision matches PricePrecision.
	QtyPrecision int64 = 100000000
)

// ToPrice converts a float price into scaled units, truncating toward zero.
func ToPrice(p float64) Price { return Price(p * float64(PricePrecision)) }

// FromPrice converts scaled units back to a float price.
func FromPrice(p Price) float64 { return float64(p) / float64(PricePrecision) }

// ToQty converts a float quantity into scaled units, truncating toward zero.
func ToQty(q float64) Quantity { return Quantity(q * float64(QtyPrecision)) }

// FromQty converts scaled units back to a float quantity.
func FromQty(q Quantity) float64 { return float64(q) / float64(QtyPrecision) }

// Now returns the current wall clock as a Timestamp.
func Now() Timestamp { return Timestamp(time.Now().UnixNano()) }

// Side is the order direction.
type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "SELL"
	}
	return "BUY"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType selects the execution style of an order.
type OrderType uint8

const (
	Limit OrderType = iota
	Market
	LimitMaker // post-only
	ImmediateOrCancel
	FillOrKill
)

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "LIMIT"
	case Market:
		return "MARKET"
	case LimitMaker:
		return "LIMIT_MAKER"
	case ImmediateOrCancel:
		return "IOC"
	case FillOrKill:
		return "FOK"
	}
	return "UNKNOWN"
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus uint8

const (
	StatusNew OrderStatus = iota
	StatusPartiallyFilled
	StatusFilled
	StatusCanceled
	StatusRejected
	StatusExpired
)

func (s OrderStatus) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case StatusFilled:
		return "FILLED"
	case StatusCanceled:
		return "CANCELED"
	case StatusRejected:
		return "REJECTED"
	case StatusExpired:
		return "EXPIRED"
	}
	return "UNKNOWN"
}

// TimeInForce controls how long an order stays working.
type TimeInForce uint8

const (
	GTC TimeInForce = iota // good till cancel
	IOC                    // immediate or cancel
	FOK                    // fill or kill
	GTX                    // good till crossing (post-only)
)

func (t TimeInForce) String() string {
	switch t {
	case GTC:
		return "GTC"
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	case GTX:
		return "GTX"
	}
	return "UNKNOWN"
}

// ExchangeID enumerates supported venues. The zero value is Unknown.
type ExchangeID uint8

const (
	ExchangeUnknown ExchangeID = iota
	ExchangeBinance
	ExchangeBybit
	ExchangeOKX
	ExchangeCoinbase
	ExchangeKraken
	ExchangeKuCoin
	ExchangeHuobi
	ExchangeGate

	// MaxExchanges bounds venue-indexed arrays.
	MaxExchanges = 16
)

func (e ExchangeID) String() string {
	switch e {
	case ExchangeBinance:
		return "BINANCE"
	case ExchangeBybit:
		return "BYBIT"
	case ExchangeOKX:
		return "OKX"
	case ExchangeCoinbase:
		return "COINBASE"
	case ExchangeKraken:
		return "KRAKEN"
	case ExchangeKuCoin:
		return "KUCOIN"
	case ExchangeHuobi:
		return "HUOBI"
	case ExchangeGate:
		return "GATE"
	}
	return "UNKNOWN"
}

// ParseExchange maps a case-insensitive venue name to its ExchangeID.
func ParseExchange(name string) ExchangeID {
	switch strings.ToLower(name) {
	case "binance":
		return ExchangeBinance
	case "bybit":
		return ExchangeBybit
	case "okx":
		return ExchangeOKX
	case "coinbase":
		return ExchangeCoinbase
	case "kraken":
		return ExchangeKraken
	case "kucoin":
		return ExchangeKuCoin
	case "huobi":
		return ExchangeHuobi
	case "gate":
		return ExchangeGate
	}
	return ExchangeUnknown
}

// Symbol is a fixed 16-byte instrument identifier. Byte 0 holds the length,
// bytes 1..15 the payload, so the whole value is comparable and hashable
// without heap allocation. Longer names are truncated at 15 bytes.
type Symbol [16]byte

// NewSymbol builds a Symbol from a string.
func NewSymbol(s string) Symbol {
	var sym Symbol
	n := len(s)
	if n > 15 {
		n = 15
	}
	sym[0] = byte(n)
	copy(sym[1:], s[:n])
	return sym
}

// Len reports the payload length.
func (s Symbol) Len() int { return int(s[0]) }

// IsZero reports whether the symbol is empty.
func (s Symbol) IsZero() bool { return s[0] == 0 }

func (s Symbol) String() string { return string(s[1 : 1+s[0]]) }

// Order is the record sent to and received from venue adapters. Two cache
// lines; the explicit padding keeps copies from straddling a third.
type Order struct {
	ID        OrderID
	ClientID  OrderID
	Price     Price
	Quantity  Quantity
	FilledQty Quantity
	Timestamp Timestamp
	Symbol    Symbol
	Exchange  ExchangeID
	Side      Side
	Type      OrderType
	Status    OrderStatus
	TIF       TimeInForce
	_         [59]byte
}

// Remaining is the unfilled quantity.
func (o *Order) Remaining() Quantity { return o.Quantity - o.FilledQty }

// IsActive reports whether the order is still working at the venue.
func (o *Order) IsActive() bool {
	return o.Status == StatusNew || o.Status == StatusPartiallyFilled
}

// Quote is a two-sided price produced by a strategy.
type Quote struct {
	BidPrice  Price
	AskPrice  Price
	BidQty    Quantity
	AskQty    Quantity
	Timestamp Timestamp
}

// Trade is an execution report. One cache line.
type Trade struct {
	OrderID   OrderID
	TradeID   OrderID
	Price     Price
	Quantity  Quantity
	Timestamp Timestamp
	Exchange  ExchangeID
	Side      Side
	IsMaker   bool
	_         [21]byte
}

// Tick is a top-of-book market data update. Two cache lines. ExchangeTS is
// the venue-reported time, LocalTS the local ingestion time.
type Tick struct {
	Bid        Price
	Ask        Price
	BidQty     Quantity
	AskQty     Quantity
	LastPrice  Price
	LastQty    Quantity
	ExchangeTS Timestamp
	LocalTS    Timestamp
	Seq        SequenceNum
	Exchange   ExchangeID
	_          [55]byte
}

// IsValid reports whether the tick carries an uncrossed two-sided market.
func (t *Tick) IsValid() bool {
	return t.Bid > 0 && t.Ask > 0 && t.Bid < t.Ask
}

// MidPrice is the arithmetic mid of bid and ask.
func (t *Tick) MidPrice() Price { return (t.Bid + t.Ask) / 2 }

// SpreadBps returns the quoted spread in basis points of the mid.
func (t *Tick) SpreadBps() float64 {
	mid := t.MidPrice()
	if mid <= 0 {
		return 0
	}
	return 10000 * float64(t.Ask-t.Bid) / float64(mid)
}

// Signal is the strategy thread's per-iteration market summary.
type Signal struct {
	FairValue         Price
	InventoryPressure float64
	Volatility        float64
	Timestamp         Timestamp
}
