// Command quantara runs the market-making engine: venue adapters, quoting
// strategy, risk gate and admin API, assembled from the YAML configuration
// with flag and environment overrides.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/quantara-io/quantara/internal/config"
	"github.com/quantara-io/quantara/internal/core"
	"github.com/quantara-io/quantara/internal/engine"
	"github.com/quantara-io/quantara/internal/exchange"
	"github.com/quantara-io/quantara/internal/feed"
	"github.com/quantara-io/quantara/internal/journal"
	"github.com/quantara-io/quantara/internal/mirror"
	"github.com/quantara-io/quantara/internal/server"
	"github.com/quantara-io/quantara/internal/strategy"
	"github.com/quantara-io/quantara/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

func main() {
	var (
		configPath string
		symbol     string
		venue      string
		testnet    bool
		paper      bool
		verbose    bool
	)
	flag.StringVarP(&configPath, "config", "c", "quantara.yaml", "path to the YAML configuration")
	flag.StringVarP(&symbol, "symbol", "s", "", "override the traded symbol")
	flag.StringVarP(&venue, "exchange", "e", "", "override the primary exchange")
	flag.BoolVarP(&testnet, "testnet", "t", false, "use the venue's testnet endpoints")
	flag.BoolVarP(&paper, "paper", "p", false, "trade against the in-process paper venue")
	flag.BoolVarP(&verbose, "verbose", "v", false, "debug logging with console output")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}

	boot := logger.New("info", verbose)
	cfg, err := config.Load(configPath, boot)
	if err != nil {
		boot.Fatal("Failed to load configuration", zap.Error(err))
	}
	if symbol != "" {
		cfg.Trading.Symbol = symbol
	}
	if venue != "" {
		cfg.Trading.Exchange = venue
	}
	if testnet {
		cfg.Trading.Testnet = true
	}
	if paper {
		cfg.Trading.Paper = true
	}

	zlog := logger.New(cfg.System.LogLevel, verbose)
	defer zlog.Sync()

	client, err := buildClient(cfg, zlog)
	if err != nil {
		zlog.Fatal("Failed to build venue client", zap.Error(err))
	}
	params, err := cfg.StrategyParams()
	if err != nil {
		zlog.Fatal("Failed to derive strategy parameters", zap.Error(err))
	}

	b := engine.NewBuilder().
		WithConfig(cfg).
		WithLogger(zlog).
		WithClient(client)
	switch cfg.Strategy.Kind {
	case "basic":
		b.WithStrategy(strategy.NewQuoter(params))
	case "avellaneda":
		b.WithStrategy(strategy.NewAvellanedaStoikov(params, cfg.ASParams()))
	case "cross":
		b.WithCrossVenue(strategy.NewCrossVenueQuoter(params, nil))
	default:
		b.WithStrategy(strategy.NewInventoryQuoter(params))
	}

	if cfg.Kafka.Enabled {
		b.WithFeed(feed.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, zlog))
	}
	if cfg.Journal.Enabled {
		jr, err := journal.Open(journal.Config{
			Driver:        cfg.Journal.Driver,
			DSN:           cfg.Journal.DSN,
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: time.Duration(cfg.Journal.FlushIntervalMs) * time.Millisecond,
		}, zlog)
		if err != nil {
			zlog.Fatal("Failed to open journal", zap.Error(err))
		}
		b.WithJournal(jr)
	}

	eng, err := b.Build()
	if err != nil {
		zlog.Fatal("Failed to build engine", zap.Error(err))
	}

	var mir *mirror.Mirror
	if cfg.Mirror.Enabled {
		mir, err = mirror.New(mirror.Config{
			Addr:     cfg.Mirror.Addr,
			Password: cfg.Mirror.Password,
			DB:       cfg.Mirror.DB,
			TTL:      time.Duration(cfg.Mirror.TTLSec) * time.Second,
			Interval: time.Duration(cfg.Mirror.IntervalMs) * time.Millisecond,
		}, eng.Snapshot, zlog)
		if err != nil {
			zlog.Fatal("Failed to connect state mirror", zap.Error(err))
		}
	}

	var srv *server.Server
	if cfg.Admin.Enabled {
		srv = server.New(cfg, eng.Gate(), eng.Book(), eng.Manager(), eng, zlog)
		if err := srv.Start(); err != nil {
			zlog.Fatal("Failed to start admin API", zap.Error(err))
		}
	}

	if err := eng.Start(context.Background()); err != nil {
		zlog.Fatal("Failed to start engine", zap.Error(err))
	}
	if mir != nil {
		mir.Start()
	}
	zlog.Info("Quantara running",
		zap.String("symbol", cfg.Trading.Symbol),
		zap.String("exchange", cfg.Trading.Exchange),
		zap.String("strategy", cfg.Strategy.Kind),
		zap.Bool("paper", cfg.Trading.Paper),
		zap.Bool("testnet", cfg.Trading.Testnet))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("Shutting down")

	eng.Stop()
	if mir != nil {
		if err := mir.Close(); err != nil {
			zlog.Error("Mirror close failed", zap.Error(err))
		}
	}
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(ctx); err != nil {
			zlog.Error("Admin API shutdown failed", zap.Error(err))
		}
		cancel()
	}
	zlog.Info("Shutdown complete")
}

// buildClient picks the venue adapter: the paper simulator when requested,
// otherwise the adapter matching trading.exchange. Unknown exchange names
// fall through to the builder's config validation for the error message.
func buildClient(cfg *config.Config, zlog *zap.Logger) (exchange.Client, error) {
	ex := core.ParseExchange(cfg.Trading.Exchange)
	if cfg.Trading.Paper {
		return exchange.NewPaperClient(ex, zlog), nil
	}
	switch ex {
	case core.ExchangeBinance:
		vc := cfg.Venue(cfg.Trading.Exchange)
		bc := exchange.NewBinanceClient(vc.APIKey, vc.APISecret, cfg.Trading.Testnet, zlog)
		bc.SetEndpoints(vc.WSURL, vc.RESTURL)
		if vc.TimeoutMs > 0 {
			bc.SetTimeout(time.Duration(vc.TimeoutMs) * time.Millisecond)
		}
		return bc, nil
	default:
		return nil, fmt.Errorf("no live adapter for exchange %q, run with --paper", cfg.Trading.Exchange)
	}
}
