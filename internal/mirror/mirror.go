// Package mirror pushes periodic engine state snapshots into Redis so
// dashboards and sibling services can read position, PnL and NBBO
// without touching the hot path. Writes carry a TTL, so when the
// engine stops writing the keys age out and readers see absence
// instead of a frozen picture. The engine never reads these keys back.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Snapshot is the state blob written each cycle. Prices and
// quantities are human-unit decimal strings.
type Snapshot struct {
	Symbol          string    `json:"symbol"`
	Exchange        string    `json:"exchange"`
	Running         bool      `json:"running"`
	KillSwitch      bool      `json:"kill_switch"`
	Position        string    `json:"position"`
	AvgEntryPrice   string    `json:"avg_entry_price"`
	RealizedPnL     string    `json:"realized_pnl"`
	UnrealizedPnL   string    `json:"unrealized_pnl"`
	Bid             string    `json:"bid"`
	Ask             string    `json:"ask"`
	BidExchange     string    `json:"bid_exchange"`
	AskExchange     string    `json:"ask_exchange"`
	OpenOrders      int       `json:"open_orders"`
	ConnectedVenues int       `json:"connected_venues"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Config carries the Redis connection and cadence settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Interval time.Duration
}

// Mirror owns the Redis client and the snapshot loop.
type Mirror struct {
	client   *redis.Client
	log      *zap.Logger
	ttl      time.Duration
	interval time.Duration
	source   func() Snapshot

	done   chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New connects to Redis and verifies the connection. source is called
// once per cycle on the mirror's own goroutine and must be safe to
// call concurrently with the engine.
func New(cfg Config, source func() Snapshot, log *zap.Logger) (*Mirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("mirror: connect redis at %s: %w", cfg.Addr, err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	return &Mirror{
		client:   client,
		log:      log.Named("mirror"),
		ttl:      ttl,
		interval: interval,
		source:   source,
		done:     make(chan struct{}),
	}, nil
}

// Start begins the periodic snapshot loop.
func (m *Mirror) Start() {
	m.wg.Add(1)
	go m.run()
	m.log.Info("State mirror started",
		zap.Duration("interval", m.interval), zap.Duration("ttl", m.ttl))
}

func (m *Mirror) run() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := m.publish(context.Background()); err != nil {
				m.log.Warn("Snapshot write failed", zap.Error(err))
			}
		case <-m.done:
			return
		}
	}
}

func (m *Mirror) publish(ctx context.Context) error {
	snap := m.source()
	snap.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(&snap)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, Key(snap.Symbol), data, m.ttl).Err()
}

// Key returns the Redis key a symbol's snapshot lives under.
func Key(symbol string) string { return "quantara:state:" + symbol }

// Close stops the loop and closes the client. Safe to call twice.
func (m *Mirror) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(m.done)
	m.wg.Wait()
	return m.client.Close()
}
