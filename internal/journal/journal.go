// Package journal persists executions and arbitrage opportunities
// through GORM. Writes are asynchronous and batched: the hot path
// enqueues records onto a channel and one goroutine flushes them with
// CreateInBatches on a timer or when the batch fills. Postgres in
// production, SQLite for local runs.
package journal

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/quantara-io/quantara/internal/arb"
	"github.com/quantara-io/quantara/internal/core"
	"github.com/quantara-io/quantara/pkg/metrics"
)

// FillRecord is one execution. Prices and quantities are human-unit
// decimal strings so both drivers store them exactly.
type FillRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   uint64    `gorm:"index" json:"order_id"`
	TradeID   uint64    `json:"trade_id"`
	Symbol    string    `gorm:"index;type:varchar(32)" json:"symbol"`
	Exchange  string    `gorm:"type:varchar(16)" json:"exchange"`
	Side      string    `gorm:"type:varchar(4)" json:"side"`
	Price     string    `gorm:"type:varchar(32)" json:"price"`
	Quantity  string    `gorm:"type:varchar(32)" json:"quantity"`
	IsMaker   bool      `json:"is_maker"`
	TradedAt  time.Time `gorm:"index" json:"traded_at"`
	CreatedAt time.Time `json:"created_at"`
}

// OpportunityRecord is one detected arbitrage candidate.
type OpportunityRecord struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Symbol       string    `gorm:"index;type:varchar(32)" json:"symbol"`
	BuyExchange  string    `gorm:"type:varchar(16)" json:"buy_exchange"`
	SellExchange string    `gorm:"type:varchar(16)" json:"sell_exchange"`
	BuyPrice     string    `gorm:"type:varchar(32)" json:"buy_price"`
	SellPrice    string    `gorm:"type:varchar(32)" json:"sell_price"`
	Quantity     string    `gorm:"type:varchar(32)" json:"quantity"`
	ProfitBps    float64   `json:"profit_bps"`
	DetectedAt   time.Time `gorm:"index" json:"detected_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// Config selects the driver and batching behavior.
type Config struct {
	Driver        string
	DSN           string
	BatchSize     int
	FlushInterval time.Duration
}

// Journal owns the database handle and the write queue.
type Journal struct {
	db  *gorm.DB
	log *zap.Logger
	cfg Config

	ch      chan any
	done    chan struct{}
	wg      sync.WaitGroup
	closed  atomic.Bool
	dropped atomic.Uint64
}

// Open connects, migrates the two tables and starts the flush
// goroutine.
func Open(cfg Config, log *zap.Logger) (*Journal, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("journal: unknown driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", cfg.Driver, err)
	}
	if err := db.AutoMigrate(&FillRecord{}, &OpportunityRecord{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	j := &Journal{
		db:   db,
		log:  log.Named("journal"),
		cfg:  cfg,
		ch:   make(chan any, 4096),
		done: make(chan struct{}),
	}
	j.wg.Add(1)
	go j.run()
	return j, nil
}

// RecordFill enqueues an execution. A full queue drops the record.
func (j *Journal) RecordFill(symbol core.Symbol, t *core.Trade) {
	j.enqueue(&FillRecord{
		OrderID:  t.OrderID,
		TradeID:  t.TradeID,
		Symbol:   symbol.String(),
		Exchange: t.Exchange.String(),
		Side:     t.Side.String(),
		Price:    decimal.New(t.Price, -8).String(),
		Quantity: decimal.New(t.Quantity, -8).String(),
		IsMaker:  t.IsMaker,
		TradedAt: time.Unix(0, int64(t.Timestamp)).UTC(),
	})
}

// RecordOpportunity enqueues a detected arbitrage candidate.
func (j *Journal) RecordOpportunity(o *arb.Opportunity) {
	j.enqueue(&OpportunityRecord{
		Symbol:       o.Symbol.String(),
		BuyExchange:  o.BuyExchange.String(),
		SellExchange: o.SellExchange.String(),
		BuyPrice:     decimal.New(o.BuyPrice, -8).String(),
		SellPrice:    decimal.New(o.SellPrice, -8).String(),
		Quantity:     decimal.New(o.Quantity, -8).String(),
		ProfitBps:    o.ProfitBps,
		DetectedAt:   time.Unix(0, int64(o.DetectedAt)).UTC(),
	})
}

func (j *Journal) enqueue(rec any) {
	if j.closed.Load() {
		return
	}
	select {
	case j.ch <- rec:
	default:
		n := j.dropped.Add(1)
		metrics.QueueDrops.WithLabelValues("journal").Inc()
		if n == 1 || n%1000 == 0 {
			j.log.Warn("Journal queue full, dropping records", zap.Uint64("dropped", n))
		}
	}
}

func (j *Journal) run() {
	defer j.wg.Done()
	fills := make([]*FillRecord, 0, j.cfg.BatchSize)
	opps := make([]*OpportunityRecord, 0, j.cfg.BatchSize)
	ticker := time.NewTicker(j.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-j.ch:
			switch r := rec.(type) {
			case *FillRecord:
				fills = append(fills, r)
			case *OpportunityRecord:
				opps = append(opps, r)
			}
			if len(fills)+len(opps) >= j.cfg.BatchSize {
				j.flush(&fills, &opps)
			}
		case <-ticker.C:
			j.flush(&fills, &opps)
		case <-j.done:
			// Drain the queue, then a final flush.
			for {
				select {
				case rec := <-j.ch:
					switch r := rec.(type) {
					case *FillRecord:
						fills = append(fills, r)
					case *OpportunityRecord:
						opps = append(opps, r)
					}
				default:
					j.flush(&fills, &opps)
					return
				}
			}
		}
	}
}

func (j *Journal) flush(fills *[]*FillRecord, opps *[]*OpportunityRecord) {
	if len(*fills) > 0 {
		if err := j.db.CreateInBatches(*fills, j.cfg.BatchSize).Error; err != nil {
			j.log.Error("Fill batch insert failed",
				zap.Error(err), zap.Int("count", len(*fills)))
		}
		*fills = (*fills)[:0]
	}
	if len(*opps) > 0 {
		if err := j.db.CreateInBatches(*opps, j.cfg.BatchSize).Error; err != nil {
			j.log.Error("Opportunity batch insert failed",
				zap.Error(err), zap.Int("count", len(*opps)))
		}
		*opps = (*opps)[:0]
	}
}

// RecentFills returns the newest executions, most recent first.
func (j *Journal) RecentFills(ctx context.Context, limit int) ([]FillRecord, error) {
	var out []FillRecord
	err := j.db.WithContext(ctx).Order("id desc").Limit(limit).Find(&out).Error
	return out, err
}

// RecentOpportunities returns the newest candidates, most recent
// first.
func (j *Journal) RecentOpportunities(ctx context.Context, limit int) ([]OpportunityRecord, error) {
	var out []OpportunityRecord
	err := j.db.WithContext(ctx).Order("id desc").Limit(limit).Find(&out).Error
	return out, err
}

// Dropped reports how many records were lost to a full queue.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

// Close drains the queue, flushes and closes the database. Safe to
// call twice.
func (j *Journal) Close() error {
	if !j.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(j.done)
	j.wg.Wait()
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
