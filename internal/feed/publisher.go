// Package feed streams engine events to Kafka for downstream
// consumers. Publishing is fire-and-forget: the hot path enqueues onto
// a buffered channel and one goroutine drains it, so a slow or absent
// broker never blocks trading. A full queue drops the event and counts
// the drop.
package feed

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantara-io/quantara/internal/arb"
	"github.com/quantara-io/quantara/internal/core"
	"github.com/quantara-io/quantara/pkg/metrics"
)

// Event types carried on the topic.
const (
	EventFill        = "fill"
	EventOpportunity = "opportunity"
	EventNBBO        = "nbbo"
	EventStatus      = "status"
)

// Event is the wire envelope. Payload is event-type specific JSON.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
}

// Publisher owns the Kafka writer and the in-process queue in front of
// it.
type Publisher struct {
	writer *kafka.Writer
	log    *zap.Logger

	ch      chan kafka.Message
	done    chan struct{}
	wg      sync.WaitGroup
	closed  atomic.Bool
	dropped atomic.Uint64
}

// NewPublisher connects a writer to the given brokers and topic and
// starts the drain goroutine. The writer is async; broker errors
// surface through the completion callback, never to callers.
func NewPublisher(brokers []string, topic string, log *zap.Logger) *Publisher {
	l := log.Named("feed")
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				l.Error("Kafka publish failed",
					zap.Error(err), zap.Int("count", len(messages)))
			}
		},
	}
	p := &Publisher{
		writer: w,
		log:    l,
		ch:     make(chan kafka.Message, 1024),
		done:   make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case msg := <-p.ch:
			p.write(msg)
		case <-p.done:
			// Drain what is already queued before shutting down.
			for {
				select {
				case msg := <-p.ch:
					p.write(msg)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) write(msg kafka.Message) {
	if err := p.writer.WriteMessages(context.Background(), msg); err != nil {
		p.log.Error("Kafka write failed", zap.Error(err))
	}
}

// Publish wraps payload in an envelope and enqueues it. A full queue
// drops the event.
func (p *Publisher) Publish(eventType, key string, payload any) {
	if p.closed.Load() {
		return
	}
	msg, err := envelope(eventType, key, payload)
	if err != nil {
		p.log.Error("Event marshal failed",
			zap.String("type", eventType), zap.Error(err))
		return
	}
	select {
	case p.ch <- msg:
	default:
		n := p.dropped.Add(1)
		metrics.QueueDrops.WithLabelValues("feed").Inc()
		if n == 1 || n%1000 == 0 {
			p.log.Warn("Feed queue full, dropping events", zap.Uint64("dropped", n))
		}
	}
}

// PublishFill reports an execution.
func (p *Publisher) PublishFill(symbol core.Symbol, t *core.Trade) {
	p.Publish(EventFill, symbol.String(), fillPayload{
		Symbol:   symbol.String(),
		Exchange: t.Exchange.String(),
		OrderID:  t.OrderID,
		TradeID:  t.TradeID,
		Side:     t.Side.String(),
		Price:    decimal.New(t.Price, -8).String(),
		Quantity: decimal.New(t.Quantity, -8).String(),
		IsMaker:  t.IsMaker,
	})
}

// PublishOpportunity reports a detected arbitrage candidate.
func (p *Publisher) PublishOpportunity(o *arb.Opportunity) {
	p.Publish(EventOpportunity, o.Symbol.String(), opportunityPayload{
		Symbol:       o.Symbol.String(),
		BuyExchange:  o.BuyExchange.String(),
		SellExchange: o.SellExchange.String(),
		BuyPrice:     decimal.New(o.BuyPrice, -8).String(),
		SellPrice:    decimal.New(o.SellPrice, -8).String(),
		Quantity:     decimal.New(o.Quantity, -8).String(),
		ProfitBps:    o.ProfitBps,
	})
}

// PublishNBBO reports a best-bid-and-offer change.
func (p *Publisher) PublishNBBO(symbol core.Symbol, bidEx, askEx core.ExchangeID, bid, ask core.Price) {
	p.Publish(EventNBBO, symbol.String(), nbboPayload{
		Symbol:      symbol.String(),
		BidExchange: bidEx.String(),
		AskExchange: askEx.String(),
		Bid:         decimal.New(bid, -8).String(),
		Ask:         decimal.New(ask, -8).String(),
	})
}

// Dropped reports how many events were lost to a full queue.
func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }

// Close stops the drain goroutine, flushes the queue and closes the
// writer. Safe to call twice.
func (p *Publisher) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.done)
	p.wg.Wait()
	return p.writer.Close()
}

type fillPayload struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
	OrderID  uint64 `json:"order_id"`
	TradeID  uint64 `json:"trade_id"`
	Side     string `json:"side"`
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	IsMaker  bool   `json:"is_maker"`
}

type opportunityPayload struct {
	Symbol       string  `json:"symbol"`
	BuyExchange  string  `json:"buy_exchange"`
	SellExchange string  `json:"sell_exchange"`
	BuyPrice     string  `json:"buy_price"`
	SellPrice    string  `json:"sell_price"`
	Quantity     string  `json:"quantity"`
	ProfitBps    float64 `json:"profit_bps"`
}

type nbboPayload struct {
	Symbol      string `json:"symbol"`
	BidExchange string `json:"bid_exchange"`
	AskExchange string `json:"ask_exchange"`
	Bid         string `json:"bid"`
	Ask         string `json:"ask"`
}

func envelope(eventType, key string, payload any) (kafka.Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return kafka.Message{}, err
	}
	now := time.Now().UTC()
	value, err := json.Marshal(Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: now,
		Payload:   body,
	})
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(key), Value: value, Time: now}, nil
}
