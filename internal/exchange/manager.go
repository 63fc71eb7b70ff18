package exchange

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quantara-io/quantara/internal/core"
)

// latencyAlpha is the EWMA smoothing factor for per-venue latency.
const latencyAlpha = 0.2

// Manager owns the registered venue adapters and tracks an exponentially
// weighted latency estimate per venue, fed by order round trips. It
// implements the strategy package's LatencyProvider.
type Manager struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[core.ExchangeID]Client
	latency map[core.ExchangeID]time.Duration
}

// NewManager creates an empty registry.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger:  logger.Named("exchange"),
		clients: make(map[core.ExchangeID]Client),
		latency: make(map[core.ExchangeID]time.Duration),
	}
}

// Register adds a venue adapter. Re-registering a venue replaces it.
func (m *Manager) Register(c Client) {
	m.mu.Lock()
	m.clients[c.Exchange()] = c
	m.mu.Unlock()
	m.logger.Info("registered exchange client",
		zap.String("exchange", c.Exchange().String()),
		zap.String("name", c.Name()))
}

// Client returns the adapter for a venue, nil if unregistered.
func (m *Manager) Client(exchange core.ExchangeID) Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clients[exchange]
}

// Clients returns all registered adapters.
func (m *Manager) Clients() []Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Client, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, c)
	}
	return out
}

// ConnectAll connects every registered adapter, stopping at the first
// failure.
func (m *Manager) ConnectAll(ctx context.Context) error {
	for _, c := range m.Clients() {
		if c.IsConnected() {
			continue
		}
		if err := c.Connect(ctx); err != nil {
			m.logger.Error("connect failed",
				zap.String("exchange", c.Exchange().String()),
				zap.Error(err))
			return err
		}
	}
	return nil
}

// DisconnectAll disconnects every adapter, logging failures and carrying
// on.
func (m *Manager) DisconnectAll() {
	for _, c := range m.Clients() {
		if err := c.Disconnect(); err != nil {
			m.logger.Warn("disconnect failed",
				zap.String("exchange", c.Exchange().String()),
				zap.Error(err))
		}
	}
}

// RecordLatency folds one observed round trip into the venue's EWMA.
func (m *Manager) RecordLatency(exchange core.ExchangeID, rtt time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.latency[exchange]
	if !ok {
		m.latency[exchange] = rtt
		return
	}
	m.latency[exchange] = time.Duration(latencyAlpha*float64(rtt) + (1-latencyAlpha)*float64(prev))
}

// Latency returns the venue's smoothed round-trip estimate, zero when
// nothing has been recorded.
func (m *Manager) Latency(exchange core.ExchangeID) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latency[exchange]
}

// FastestExchange returns the connected venue with the lowest latency
// estimate. Venues without an estimate rank last; returns Unknown when
// nothing is connected.
func (m *Manager) FastestExchange() core.ExchangeID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	best := core.ExchangeUnknown
	var bestLat time.Duration
	for ex, c := range m.clients {
		if !c.IsConnected() {
			continue
		}
		lat, ok := m.latency[ex]
		if !ok {
			lat = time.Hour
		}
		if best == core.ExchangeUnknown || lat < bestLat {
			best, bestLat = ex, lat
		}
	}
	return best
}

// ConnectedCount reports how many venues are currently connected.
func (m *Manager) ConnectedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.clients {
		if c.IsConnected() {
			n++
		}
	}
	return n
}
