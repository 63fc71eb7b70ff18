package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/quantara-io/quantara/internal/core"
)

var validate = validator.New()

// Load builds the effective configuration. Order of precedence, lowest
// first: code defaults, the YAML file at path (skipped with a warning
// when missing), then environment overrides. The result is validated;
// any failure here is fatal at startup.
func Load(path string, log *zap.Logger) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("QUANTARA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
			log.Info("Loaded configuration file", zap.String("path", path))
		} else {
			log.Warn("Configuration file not found, continuing with defaults",
				zap.String("path", path))
		}
	}

	applyEnvOverrides(v)

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides maps well-known environment variables onto config
// keys. AutomaticEnv alone does not surface variables to Unmarshal, so
// the mapping is explicit.
func applyEnvOverrides(v *viper.Viper) {
	envMappings := map[string]string{
		"QUANTARA_SYMBOL":         "trading.symbol",
		"QUANTARA_EXCHANGE":       "trading.exchange",
		"QUANTARA_TESTNET":        "trading.testnet",
		"QUANTARA_PAPER":          "trading.paper",
		"QUANTARA_LOG_LEVEL":      "system.log_level",
		"QUANTARA_STRATEGY":       "strategy.kind",
		"QUANTARA_ADMIN_ADDR":     "admin.addr",
		"QUANTARA_KAFKA_BROKERS":  "kafka.brokers",
		"QUANTARA_KAFKA_TOPIC":    "kafka.topic",
		"QUANTARA_REDIS_ADDR":     "mirror.addr",
		"QUANTARA_REDIS_PASSWORD": "mirror.password",
		"QUANTARA_JOURNAL_DSN":    "journal.dsn",
		"BINANCE_API_KEY":         "exchanges.binance.api_key",
		"BINANCE_API_SECRET":      "exchanges.binance.api_secret",
	}
	for envVar, key := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			v.Set(key, value)
		}
	}
}

// Validate applies the struct tags plus the semantic checks tags
// cannot express: the venue must be known, the ring capacities must be
// powers of two, and every decimal field must parse.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if core.ParseExchange(c.Trading.Exchange) == core.ExchangeUnknown {
		return fmt.Errorf("config: unknown exchange %q", c.Trading.Exchange)
	}
	for name, size := range map[string]int{
		"system.tick_queue_size":  c.System.TickQueueSize,
		"system.order_queue_size": c.System.OrderQueueSize,
		"system.trade_queue_size": c.System.TradeQueueSize,
		"system.event_queue_size": c.System.EventQueueSize,
	} {
		if size&(size-1) != 0 {
			return fmt.Errorf("config: %s must be a power of two, got %d", name, size)
		}
	}
	if c.Admin.Enabled && c.Admin.Addr == "" {
		return fmt.Errorf("config: admin enabled without addr")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("config: kafka enabled without brokers or topic")
	}
	if c.Mirror.Enabled && c.Mirror.Addr == "" {
		return fmt.Errorf("config: mirror enabled without redis addr")
	}
	if c.Journal.Enabled && c.Journal.DSN == "" {
		return fmt.Errorf("config: journal enabled without dsn")
	}
	if _, err := c.StrategyParams(); err != nil {
		return err
	}
	if _, err := c.Risk.Limits(); err != nil {
		return err
	}
	if _, err := c.Arb.ScannerConfig(); err != nil {
		return err
	}
	return nil
}
