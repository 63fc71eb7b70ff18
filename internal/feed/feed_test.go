package feed

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quantara-io/quantara/internal/core"
)

func TestEnvelope(t *testing.T) {
	msg, err := envelope(EventFill, "BTCUSDT", fillPayload{
		Symbol:   "BTCUSDT",
		Exchange: "BINANCE",
		OrderID:  42,
		Side:     "BUY",
		Price:    "50000",
		Quantity: "0.5",
	})
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", string(msg.Key))

	var env Event
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, EventFill, env.Type)
	_, err = uuid.Parse(env.ID)
	assert.NoError(t, err, "envelope id should be a uuid")
	assert.False(t, env.Timestamp.IsZero())

	var payload fillPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, uint64(42), payload.OrderID)
	assert.Equal(t, "50000", payload.Price)
}

func TestPublishDropsWhenFull(t *testing.T) {
	// No drain goroutine: the channel fills and stays full.
	p := &Publisher{
		log: zap.NewNop(),
		ch:  make(chan kafka.Message, 1),
	}

	p.Publish(EventStatus, "k", map[string]string{"state": "running"})
	p.Publish(EventStatus, "k", map[string]string{"state": "running"})
	p.Publish(EventStatus, "k", map[string]string{"state": "running"})

	assert.Equal(t, uint64(2), p.Dropped())
	assert.Len(t, p.ch, 1)
}

func TestFillPayloadRendersHumanUnits(t *testing.T) {
	p := &Publisher{
		log: zap.NewNop(),
		ch:  make(chan kafka.Message, 4),
	}
	sym := core.NewSymbol("ETHUSDT")
	p.PublishFill(sym, &core.Trade{
		OrderID:  7,
		TradeID:  9,
		Price:    3000 * core.PricePrecision,
		Quantity: core.QtyPrecision / 4,
		Exchange: core.ExchangeBinance,
		Side:     core.SideSell,
		IsMaker:  true,
	})

	msg := <-p.ch
	var env Event
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	var payload fillPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))

	assert.Equal(t, "3000", payload.Price)
	assert.Equal(t, "0.25", payload.Quantity)
	assert.Equal(t, "SELL", payload.Side)
	assert.True(t, payload.IsMaker)
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	p := &Publisher{
		log: zap.NewNop(),
		ch:  make(chan kafka.Message, 4),
	}
	p.closed.Store(true)
	p.Publish(EventStatus, "k", map[string]string{"state": "stopped"})
	assert.Len(t, p.ch, 0)
	assert.Equal(t, uint64(0), p.Dropped())
}
