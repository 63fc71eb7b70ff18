package exchange

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quantara-io/quantara/internal/core"
)

// HealthStatus is one venue's connection health snapshot.
type HealthStatus struct {
	Exchange  core.ExchangeID `json:"exchange"`
	Connected bool            `json:"connected"`
	Healthy   bool            `json:"healthy"`
	LastSeen  time.Time       `json:"last_seen"`
	Latency   time.Duration   `json:"latency"`
}

// HealthMonitor watches the registered venues: a venue is healthy while
// its adapter reports connected and market data arrived within the
// staleness window. Transitions invoke the registered callbacks so the
// engine can halt and resume quoting per venue.
type HealthMonitor struct {
	manager    *Manager
	logger     *zap.Logger
	interval   time.Duration
	staleAfter time.Duration

	mu       sync.Mutex
	lastSeen map[core.ExchangeID]time.Time
	healthy  map[core.ExchangeID]bool

	onUnhealthy func(core.ExchangeID)
	onRecovered func(core.ExchangeID)

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewHealthMonitor creates a monitor polling at interval and treating
// venues silent for staleAfter as unhealthy.
func NewHealthMonitor(manager *Manager, logger *zap.Logger, interval, staleAfter time.Duration) *HealthMonitor {
	return &HealthMonitor{
		manager:    manager,
		logger:     logger.Named("health"),
		interval:   interval,
		staleAfter: staleAfter,
		lastSeen:   make(map[core.ExchangeID]time.Time),
		healthy:    make(map[core.ExchangeID]bool),
		stopCh:     make(chan struct{}),
	}
}

// SetCallbacks registers the transition hooks. Register before Start.
func (h *HealthMonitor) SetCallbacks(onUnhealthy, onRecovered func(core.ExchangeID)) {
	h.onUnhealthy = onUnhealthy
	h.onRecovered = onRecovered
}

// Heartbeat records data arrival from a venue. The engine calls it for
// every tick it ingests.
func (h *HealthMonitor) Heartbeat(exchange core.ExchangeID) {
	h.mu.Lock()
	h.lastSeen[exchange] = time.Now()
	h.mu.Unlock()
}

// Start spawns the polling loop.
func (h *HealthMonitor) Start() {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-h.stopCh:
				return
			case <-ticker.C:
				h.check()
			}
		}
	}()
}

// Stop halts the polling loop and waits for it to exit.
func (h *HealthMonitor) Stop() {
	close(h.stopCh)
	h.wg.Wait()
}

func (h *HealthMonitor) check() {
	now := time.Now()
	for _, c := range h.manager.Clients() {
		ex := c.Exchange()
		h.mu.Lock()
		seen, hasSeen := h.lastSeen[ex]
		wasHealthy, known := h.healthy[ex]
		if !known {
			wasHealthy = true
		}
		isHealthy := c.IsConnected() && (!hasSeen || now.Sub(seen) <= h.staleAfter)
		h.healthy[ex] = isHealthy
		h.mu.Unlock()

		if wasHealthy && !isHealthy {
			h.logger.Warn("venue unhealthy",
				zap.String("exchange", ex.String()),
				zap.Bool("connected", c.IsConnected()))
			if h.onUnhealthy != nil {
				h.onUnhealthy(ex)
			}
		}
		if !wasHealthy && isHealthy {
			h.logger.Info("venue recovered", zap.String("exchange", ex.String()))
			if h.onRecovered != nil {
				h.onRecovered(ex)
			}
		}
	}
}

// Healthy reports the venue's last evaluated health state. Venues never
// evaluated count as healthy.
func (h *HealthMonitor) Healthy(exchange core.ExchangeID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	healthy, known := h.healthy[exchange]
	return !known || healthy
}

// Snapshot returns the health of every registered venue.
func (h *HealthMonitor) Snapshot() []HealthStatus {
	clients := h.manager.Clients()
	out := make([]HealthStatus, 0, len(clients))
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range clients {
		ex := c.Exchange()
		healthy, known := h.healthy[ex]
		out = append(out, HealthStatus{
			Exchange:  ex,
			Connected: c.IsConnected(),
			Healthy:   !known || healthy,
			LastSeen:  h.lastSeen[ex],
			Latency:   h.manager.Latency(ex),
		})
	}
	return out
}
