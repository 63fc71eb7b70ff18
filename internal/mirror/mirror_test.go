package mirror

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "quantara:state:BTCUSDT", Key("BTCUSDT"))
}

func TestSnapshotJSONShape(t *testing.T) {
	snap := Snapshot{
		Symbol:        "BTCUSDT",
		Exchange:      "BINANCE",
		Running:       true,
		Position:      "-0.25",
		RealizedPnL:   "12.5",
		Bid:           "50000",
		Ask:           "50001",
		BidExchange:   "BINANCE",
		AskExchange:   "KRAKEN",
		OpenOrders:    2,
		UpdatedAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		KillSwitch:    false,
		AvgEntryPrice: "49900",
		UnrealizedPnL: "-3.1",
	}

	data, err := json.Marshal(&snap)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "BTCUSDT", m["symbol"])
	assert.Equal(t, "-0.25", m["position"])
	assert.Equal(t, "50001", m["ask"])
	assert.Equal(t, false, m["kill_switch"])
	assert.Contains(t, m, "updated_at")
}

func TestNewFailsWithoutRedis(t *testing.T) {
	// Port 1 refuses immediately, so this exercises the fail-fast path
	// without a timeout wait.
	_, err := New(Config{Addr: "127.0.0.1:1"}, func() Snapshot { return Snapshot{} }, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mirror: connect redis")
}
