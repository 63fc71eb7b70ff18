// Package metrics exposes the engine's Prometheus instrumentation.
// Everything registers on the default registry in init; the admin API
// serves it at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// TicksProcessed counts market-data ticks drained from the feed
	// ring, per venue.
	TicksProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantara_ticks_processed_total",
			Help: "Market data ticks processed by the engine",
		},
		[]string{"exchange"},
	)

	// QuotesGenerated counts strategy quote refreshes that produced a
	// two-sided quote.
	QuotesGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quantara_quotes_generated_total",
			Help: "Quote pairs produced by the strategy",
		},
	)

	// OrdersSent counts orders accepted by the venue adapter, by side.
	OrdersSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantara_orders_sent_total",
			Help: "Orders accepted by the venue",
		},
		[]string{"side"},
	)

	// OrdersRejected counts orders refused before or at the venue.
	// Reason is "risk" or "venue".
	OrdersRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantara_orders_rejected_total",
			Help: "Orders refused by the risk gate or the venue",
		},
		[]string{"reason"},
	)

	// QueueDrops counts ring-buffer overflow drops, per ring.
	QueueDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantara_queue_drops_total",
			Help: "Messages dropped on full rings",
		},
		[]string{"queue"},
	)

	// ArbOpportunities counts scanner output by stage, "detected" or
	// "executed".
	ArbOpportunities = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantara_arb_opportunities_total",
			Help: "Arbitrage opportunities by stage",
		},
		[]string{"stage"},
	)

	// WSReconnects counts websocket reconnect attempts per venue.
	WSReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quantara_ws_reconnects_total",
			Help: "Websocket reconnect attempts",
		},
		[]string{"exchange"},
	)

	// Position is the signed position in base units per symbol.
	Position = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quantara_position",
			Help: "Signed position in base units",
		},
		[]string{"symbol"},
	)

	// DailyPnL is realized plus unrealized PnL in quote units since
	// the last daily reset.
	DailyPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quantara_daily_pnl",
			Help: "Daily PnL in quote units",
		},
	)

	// QueueDepth samples ring occupancy, per ring.
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quantara_queue_depth",
			Help: "Ring buffer occupancy",
		},
		[]string{"queue"},
	)

	// ConnectedVenues is the number of venue sessions currently up.
	ConnectedVenues = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quantara_connected_venues",
			Help: "Venue sessions currently connected",
		},
	)

	// KillSwitch is 1 while trading is halted.
	KillSwitch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quantara_kill_switch",
			Help: "1 while the kill switch is armed",
		},
	)

	// TickToQuote measures nanoseconds from tick ingress to the quote
	// decision.
	TickToQuote = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quantara_tick_to_quote_ns",
			Help:    "Tick-to-quote latency in nanoseconds",
			Buckets: prometheus.ExponentialBuckets(1000, 4, 12),
		},
	)

	// OrderSendLatency measures the venue round trip for order entry.
	OrderSendLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quantara_order_send_latency_seconds",
			Help:    "Order submission round-trip latency",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		TicksProcessed, QuotesGenerated, OrdersSent, OrdersRejected,
		QueueDrops, ArbOpportunities, WSReconnects,
		Position, DailyPnL, QueueDepth, ConnectedVenues, KillSwitch,
		TickToQuote, OrderSendLatency,
	)
}
