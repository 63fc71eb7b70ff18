// Package config holds the runtime configuration for the trading
// engine. Values layer in a fixed order: code defaults, then an
// optional YAML file, then environment overrides. Quantities and
// prices are written in human units ("0.001") and converted exactly
// into the engine's fixed-point representation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/quantara-io/quantara/internal/arb"
	"github.com/quantara-io/quantara/internal/core"
	"github.com/quantara-io/quantara/internal/risk"
	"github.com/quantara-io/quantara/internal/strategy"
)

// Config is the root of the configuration tree.
type Config struct {
	Trading   TradingConfig          `mapstructure:"trading" yaml:"trading" json:"trading" validate:"required"`
	System    SystemConfig           `mapstructure:"system" yaml:"system" json:"system" validate:"required"`
	Strategy  StrategyConfig         `mapstructure:"strategy" yaml:"strategy" json:"strategy" validate:"required"`
	Risk      RiskConfig             `mapstructure:"risk" yaml:"risk" json:"risk"`
	Arb       ArbConfig              `mapstructure:"arb" yaml:"arb" json:"arb"`
	Exchanges map[string]VenueConfig `mapstructure:"exchanges" yaml:"exchanges" json:"exchanges" validate:"omitempty,dive"`
	Admin     AdminConfig            `mapstructure:"admin" yaml:"admin" json:"admin"`
	Kafka     KafkaConfig            `mapstructure:"kafka" yaml:"kafka" json:"kafka"`
	Mirror    MirrorConfig           `mapstructure:"mirror" yaml:"mirror" json:"mirror"`
	Journal   JournalConfig          `mapstructure:"journal" yaml:"journal" json:"journal"`
}

// TradingConfig selects the instrument and venue.
type TradingConfig struct {
	Symbol   string `mapstructure:"symbol" yaml:"symbol" json:"symbol" validate:"required"`
	Exchange string `mapstructure:"exchange" yaml:"exchange" json:"exchange" validate:"required"`
	Testnet  bool   `mapstructure:"testnet" yaml:"testnet" json:"testnet"`
	Paper    bool   `mapstructure:"paper" yaml:"paper" json:"paper"`
}

// SystemConfig sizes the queues and pools and sets process-wide knobs.
// Queue capacities must be powers of two; the rings mask instead of
// dividing.
type SystemConfig struct {
	TickQueueSize    int    `mapstructure:"tick_queue_size" yaml:"tick_queue_size" json:"tick_queue_size" validate:"required,gt=0"`
	OrderQueueSize   int    `mapstructure:"order_queue_size" yaml:"order_queue_size" json:"order_queue_size" validate:"required,gt=0"`
	TradeQueueSize   int    `mapstructure:"trade_queue_size" yaml:"trade_queue_size" json:"trade_queue_size" validate:"required,gt=0"`
	EventQueueSize   int    `mapstructure:"event_queue_size" yaml:"event_queue_size" json:"event_queue_size" validate:"required,gt=0"`
	OrderPoolSize    int    `mapstructure:"order_pool_size" yaml:"order_pool_size" json:"order_pool_size" validate:"required,gt=0"`
	StatsIntervalSec int    `mapstructure:"stats_interval_sec" yaml:"stats_interval_sec" json:"stats_interval_sec"`
	LogLevel         string `mapstructure:"log_level" yaml:"log_level" json:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// StrategyConfig selects the quoting strategy and its parameters.
// Quantity fields are decimal strings in base units; zero or empty
// means "keep the library default".
type StrategyConfig struct {
	Kind               string           `mapstructure:"kind" yaml:"kind" json:"kind" validate:"required,oneof=basic inventory avellaneda cross"`
	BaseOrderQty       string           `mapstructure:"base_order_qty" yaml:"base_order_qty" json:"base_order_qty"`
	MinOrderQty        string           `mapstructure:"min_order_qty" yaml:"min_order_qty" json:"min_order_qty"`
	MaxOrderQty        string           `mapstructure:"max_order_qty" yaml:"max_order_qty" json:"max_order_qty"`
	MaxPosition        string           `mapstructure:"max_position" yaml:"max_position" json:"max_position"`
	TargetSpreadBps    float64          `mapstructure:"target_spread_bps" yaml:"target_spread_bps" json:"target_spread_bps" validate:"omitempty,gt=0"`
	MinSpreadBps       float64          `mapstructure:"min_spread_bps" yaml:"min_spread_bps" json:"min_spread_bps" validate:"omitempty,gt=0"`
	MaxSpreadBps       float64          `mapstructure:"max_spread_bps" yaml:"max_spread_bps" json:"max_spread_bps" validate:"omitempty,gt=0"`
	InventorySkewCoeff float64          `mapstructure:"inventory_skew_coeff" yaml:"inventory_skew_coeff" json:"inventory_skew_coeff"`
	EmaAlpha           float64          `mapstructure:"ema_alpha" yaml:"ema_alpha" json:"ema_alpha" validate:"omitempty,gt=0,lte=1"`
	QuoteRefreshUs     int64            `mapstructure:"quote_refresh_us" yaml:"quote_refresh_us" json:"quote_refresh_us" validate:"omitempty,gt=0"`
	MinQuoteLifeUs     int64            `mapstructure:"min_quote_life_us" yaml:"min_quote_life_us" json:"min_quote_life_us" validate:"omitempty,gte=0"`
	Avellaneda         AvellanedaConfig `mapstructure:"avellaneda" yaml:"avellaneda" json:"avellaneda"`
}

// AvellanedaConfig tunes the closed-form reservation-price quoter.
type AvellanedaConfig struct {
	Gamma     float64 `mapstructure:"gamma" yaml:"gamma" json:"gamma" validate:"omitempty,gt=0"`
	Sigma     float64 `mapstructure:"sigma" yaml:"sigma" json:"sigma" validate:"omitempty,gt=0"`
	K         float64 `mapstructure:"k" yaml:"k" json:"k" validate:"omitempty,gt=0"`
	HorizonMs int64   `mapstructure:"horizon_ms" yaml:"horizon_ms" json:"horizon_ms" validate:"omitempty,gt=0"`
}

// RiskConfig overrides the pre-trade limits. Quantity fields are
// decimal strings in base units, value fields are quote units. Zero
// means "keep the library default", which for the caps means
// unlimited.
type RiskConfig struct {
	MaxPositionQty       string  `mapstructure:"max_position_qty" yaml:"max_position_qty" json:"max_position_qty"`
	MaxOrderQty          string  `mapstructure:"max_order_qty" yaml:"max_order_qty" json:"max_order_qty"`
	MaxOrderValue        float64 `mapstructure:"max_order_value" yaml:"max_order_value" json:"max_order_value" validate:"omitempty,gt=0"`
	MaxDailyLoss         float64 `mapstructure:"max_daily_loss" yaml:"max_daily_loss" json:"max_daily_loss" validate:"omitempty,gt=0"`
	MaxDrawdown          float64 `mapstructure:"max_drawdown" yaml:"max_drawdown" json:"max_drawdown" validate:"omitempty,gt=0"`
	MaxPriceDeviationBps float64 `mapstructure:"max_price_deviation_bps" yaml:"max_price_deviation_bps" json:"max_price_deviation_bps" validate:"omitempty,gt=0"`
	MaxOrdersPerSecond   uint32  `mapstructure:"max_orders_per_second" yaml:"max_orders_per_second" json:"max_orders_per_second"`
	MaxOpenOrders        int32   `mapstructure:"max_open_orders" yaml:"max_open_orders" json:"max_open_orders"`
	ErrorThreshold       uint32  `mapstructure:"error_threshold" yaml:"error_threshold" json:"error_threshold"`
	RejectThreshold      uint32  `mapstructure:"reject_threshold" yaml:"reject_threshold" json:"reject_threshold"`
}

// ArbConfig tunes the cross-venue and triangular scanners.
type ArbConfig struct {
	Enabled                bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	MinProfitBps           float64 `mapstructure:"min_profit_bps" yaml:"min_profit_bps" json:"min_profit_bps" validate:"omitempty,gt=0"`
	FeeBps                 float64 `mapstructure:"fee_bps" yaml:"fee_bps" json:"fee_bps" validate:"omitempty,gte=0"`
	MinQuantity            string  `mapstructure:"min_quantity" yaml:"min_quantity" json:"min_quantity"`
	MaxQuantity            string  `mapstructure:"max_quantity" yaml:"max_quantity" json:"max_quantity"`
	MaxOpportunityAgeMs    int64   `mapstructure:"max_opportunity_age_ms" yaml:"max_opportunity_age_ms" json:"max_opportunity_age_ms" validate:"omitempty,gt=0"`
	RequireBothSidesLiquid bool    `mapstructure:"require_both_sides_liquid" yaml:"require_both_sides_liquid" json:"require_both_sides_liquid"`
	MinLiquidityRatio      float64 `mapstructure:"min_liquidity_ratio" yaml:"min_liquidity_ratio" json:"min_liquidity_ratio" validate:"omitempty,gt=0,lte=1"`
}

// VenueConfig carries per-venue endpoints and credentials. Empty URLs
// fall back to the adapter's built-in endpoints.
type VenueConfig struct {
	WSURL     string `mapstructure:"ws_url" yaml:"ws_url" json:"ws_url"`
	RESTURL   string `mapstructure:"rest_url" yaml:"rest_url" json:"rest_url"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key" json:"api_key"`
	APISecret string `mapstructure:"api_secret" yaml:"api_secret" json:"api_secret"`
	TimeoutMs int    `mapstructure:"timeout_ms" yaml:"timeout_ms" json:"timeout_ms" validate:"omitempty,gt=0"`
}

// AdminConfig exposes the HTTP admin API.
type AdminConfig struct {
	Enabled bool     `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Addr    string   `mapstructure:"addr" yaml:"addr" json:"addr"`
	Origins []string `mapstructure:"origins" yaml:"origins" json:"origins"`
}

// KafkaConfig feeds fills, opportunities and NBBO changes to a topic.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Brokers []string `mapstructure:"brokers" yaml:"brokers" json:"brokers"`
	Topic   string   `mapstructure:"topic" yaml:"topic" json:"topic"`
}

// MirrorConfig pushes periodic state snapshots into Redis.
type MirrorConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Addr       string `mapstructure:"addr" yaml:"addr" json:"addr"`
	Password   string `mapstructure:"password" yaml:"password" json:"password"`
	DB         int    `mapstructure:"db" yaml:"db" json:"db"`
	TTLSec     int    `mapstructure:"ttl_sec" yaml:"ttl_sec" json:"ttl_sec" validate:"omitempty,gt=0"`
	IntervalMs int    `mapstructure:"interval_ms" yaml:"interval_ms" json:"interval_ms" validate:"omitempty,gt=0"`
}

// JournalConfig persists fills and opportunities through the database
// writer.
type JournalConfig struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Driver          string `mapstructure:"driver" yaml:"driver" json:"driver" validate:"omitempty,oneof=postgres sqlite"`
	DSN             string `mapstructure:"dsn" yaml:"dsn" json:"dsn"`
	BatchSize       int    `mapstructure:"batch_size" yaml:"batch_size" json:"batch_size" validate:"omitempty,gt=0"`
	FlushIntervalMs int    `mapstructure:"flush_interval_ms" yaml:"flush_interval_ms" json:"flush_interval_ms" validate:"omitempty,gt=0"`
}

// Default returns the baseline configuration: Binance testnet,
// inventory quoting, every optional sink disabled.
func Default() *Config {
	return &Config{
		Trading: TradingConfig{
			Symbol:   "BTCUSDT",
			Exchange: "binance",
			Testnet:  true,
		},
		System: SystemConfig{
			TickQueueSize:    65536,
			OrderQueueSize:   8192,
			TradeQueueSize:   8192,
			EventQueueSize:   4096,
			OrderPoolSize:    10000,
			StatsIntervalSec: 10,
			LogLevel:         "info",
		},
		Strategy: StrategyConfig{
			Kind: "inventory",
		},
		Arb: ArbConfig{
			MinProfitBps:           10,
			RequireBothSidesLiquid: true,
			MinLiquidityRatio:      0.5,
		},
		Exchanges: map[string]VenueConfig{
			"binance": {TimeoutMs: 10000},
		},
		Admin: AdminConfig{
			Enabled: true,
			Addr:    ":8080",
			Origins: []string{"*"},
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "quantara.events",
		},
		Mirror: MirrorConfig{
			Addr:       "localhost:6379",
			TTLSec:     30,
			IntervalMs: 1000,
		},
		Journal: JournalConfig{
			Driver:          "sqlite",
			DSN:             "quantara.db",
			BatchSize:       128,
			FlushIntervalMs: 500,
		},
	}
}

// BinanceSpot is the preset for quoting a single Binance spot symbol.
func BinanceSpot(symbol string) *Config {
	cfg := Default()
	cfg.Trading.Symbol = symbol
	cfg.Trading.Exchange = "binance"
	return cfg
}

// Venue returns the per-venue section for name. Missing venues come
// back zero so callers fall through to adapter defaults.
func (c *Config) Venue(name string) VenueConfig {
	return c.Exchanges[strings.ToLower(name)]
}

// StrategyParams converts the strategy section into quoting
// parameters, starting from the library defaults so unset fields keep
// working values.
func (c *Config) StrategyParams() (strategy.Params, error) {
	p := strategy.DefaultParams(core.NewSymbol(c.Trading.Symbol))
	s := c.Strategy

	q, err := parseQty("strategy.base_order_qty", s.BaseOrderQty)
	if err != nil {
		return p, err
	}
	if q > 0 {
		p.BaseOrderQty = q
	}
	q, err = parseQty("strategy.min_order_qty", s.MinOrderQty)
	if err != nil {
		return p, err
	}
	if q > 0 {
		p.MinOrderQty = q
	}
	q, err = parseQty("strategy.max_order_qty", s.MaxOrderQty)
	if err != nil {
		return p, err
	}
	if q > 0 {
		p.MaxOrderQty = q
	}
	q, err = parseQty("strategy.max_position", s.MaxPosition)
	if err != nil {
		return p, err
	}
	if q > 0 {
		p.MaxPosition = q
	}

	if s.TargetSpreadBps > 0 {
		p.TargetSpreadBps = s.TargetSpreadBps
	}
	if s.MinSpreadBps > 0 {
		p.MinSpreadBps = s.MinSpreadBps
	}
	if s.MaxSpreadBps > 0 {
		p.MaxSpreadBps = s.MaxSpreadBps
	}
	if s.InventorySkewCoeff > 0 {
		p.InventorySkewCoeff = s.InventorySkewCoeff
	}
	if s.EmaAlpha > 0 {
		p.EmaAlpha = s.EmaAlpha
	}
	if s.QuoteRefreshUs > 0 {
		p.QuoteRefreshUs = s.QuoteRefreshUs
	}
	if s.MinQuoteLifeUs > 0 {
		p.MinQuoteLifeUs = s.MinQuoteLifeUs
	}
	return p, nil
}

// ASParams converts the avellaneda subsection, falling back to the
// solver defaults for unset fields.
func (c *Config) ASParams() strategy.ASParams {
	as := strategy.DefaultASParams()
	a := c.Strategy.Avellaneda
	if a.Gamma > 0 {
		as.Gamma = a.Gamma
	}
	if a.Sigma > 0 {
		as.Sigma = a.Sigma
	}
	if a.K > 0 {
		as.K = a.K
	}
	if a.HorizonMs > 0 {
		as.Horizon = time.Duration(a.HorizonMs) * time.Millisecond
	}
	return as
}

// Limits converts the risk section into gate limits on top of the
// library defaults.
func (r RiskConfig) Limits() (risk.Limits, error) {
	l := risk.DefaultLimits()

	q, err := parseQty("risk.max_position_qty", r.MaxPositionQty)
	if err != nil {
		return l, err
	}
	if q > 0 {
		l.MaxPositionQty = q
	}
	q, err = parseQty("risk.max_order_qty", r.MaxOrderQty)
	if err != nil {
		return l, err
	}
	if q > 0 {
		l.MaxOrderQty = q
	}

	if r.MaxOrderValue > 0 {
		l.MaxOrderValue = r.MaxOrderValue
	}
	if r.MaxDailyLoss > 0 {
		l.MaxDailyLoss = r.MaxDailyLoss
	}
	if r.MaxDrawdown > 0 {
		l.MaxDrawdown = r.MaxDrawdown
	}
	if r.MaxPriceDeviationBps > 0 {
		l.MaxPriceDeviationBps = r.MaxPriceDeviationBps
	}
	if r.MaxOrdersPerSecond > 0 {
		l.MaxOrdersPerSecond = r.MaxOrdersPerSecond
	}
	if r.MaxOpenOrders > 0 {
		l.MaxOpenOrders = r.MaxOpenOrders
	}
	if r.ErrorThreshold > 0 {
		l.ErrorThreshold = r.ErrorThreshold
	}
	if r.RejectThreshold > 0 {
		l.RejectThreshold = r.RejectThreshold
	}
	return l, nil
}

// ScannerConfig converts the arb section into scanner settings.
func (a ArbConfig) ScannerConfig() (arb.Config, error) {
	cfg := arb.DefaultConfig()
	if a.MinProfitBps > 0 {
		cfg.MinProfitBps = a.MinProfitBps
	}
	if a.FeeBps > 0 {
		cfg.FeeBps = a.FeeBps
	}

	q, err := parseQty("arb.min_quantity", a.MinQuantity)
	if err != nil {
		return cfg, err
	}
	if q > 0 {
		cfg.MinQuantity = q
	}
	q, err = parseQty("arb.max_quantity", a.MaxQuantity)
	if err != nil {
		return cfg, err
	}
	if q > 0 {
		cfg.MaxQuantity = q
	}

	if a.MaxOpportunityAgeMs > 0 {
		cfg.MaxOpportunityAge = time.Duration(a.MaxOpportunityAgeMs) * time.Millisecond
	}
	cfg.RequireBothSidesLiquid = a.RequireBothSidesLiquid
	if a.MinLiquidityRatio > 0 {
		cfg.MinLiquidityRatio = a.MinLiquidityRatio
	}
	return cfg, nil
}

// Dump renders the effective configuration as YAML with credentials
// masked, for startup logs and the admin API.
func (c *Config) Dump() (string, error) {
	red := *c
	red.Exchanges = make(map[string]VenueConfig, len(c.Exchanges))
	for name, venue := range c.Exchanges {
		if venue.APIKey != "" {
			venue.APIKey = "[redacted]"
		}
		if venue.APISecret != "" {
			venue.APISecret = "[redacted]"
		}
		red.Exchanges[name] = venue
	}
	if red.Mirror.Password != "" {
		red.Mirror.Password = "[redacted]"
	}
	// DSNs can embed passwords, so the whole string is masked.
	if red.Journal.DSN != "" {
		red.Journal.DSN = "[redacted]"
	}
	out, err := yaml.Marshal(&red)
	if err != nil {
		return "", fmt.Errorf("config: dump: %w", err)
	}
	return string(out), nil
}

// parseQty parses a human-unit decimal string into the fixed-point
// representation. Empty means zero, which callers treat as unset.
func parseQty(field, s string) (core.Quantity, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("config: %s: bad decimal %q: %w", field, s, err)
	}
	return core.Quantity(d.Shift(8).IntPart()), nil
}
