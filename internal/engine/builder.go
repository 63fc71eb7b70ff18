package engine

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quantara-io/quantara/internal/arb"
	"github.com/quantara-io/quantara/internal/book"
	"github.com/quantara-io/quantara/internal/config"
	"github.com/quantara-io/quantara/internal/core"
	"github.com/quantara-io/quantara/internal/exchange"
	"github.com/quantara-io/quantara/internal/feed"
	"github.com/quantara-io/quantara/internal/journal"
	"github.com/quantara-io/quantara/internal/risk"
	"github.com/quantara-io/quantara/internal/strategy"
	"github.com/quantara-io/quantara/internal/transport"
)

const (
	healthInterval = 5 * time.Second
	staleAfter     = 15 * time.Second
)

// Builder assembles an Engine. Configuration problems surface from Build
// as errors; a misconfigured engine never starts.
type Builder struct {
	cfg     *config.Config
	log     *zap.Logger
	clients []exchange.Client
	strat   strategy.Strategy
	cross   *strategy.CrossVenueQuoter
	pub     *feed.Publisher
	jrnl    *journal.Journal
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder { return &Builder{} }

// WithConfig sets the validated configuration.
func (b *Builder) WithConfig(cfg *config.Config) *Builder {
	b.cfg = cfg
	return b
}

// WithLogger sets the root logger; the engine logs under "engine".
func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.log = log
	return b
}

// WithClient registers a venue adapter. Call once per venue.
func (b *Builder) WithClient(c exchange.Client) *Builder {
	b.clients = append(b.clients, c)
	return b
}

// WithStrategy sets a single-venue strategy.
func (b *Builder) WithStrategy(s strategy.Strategy) *Builder {
	b.strat = s
	return b
}

// WithCrossVenue sets the multi-venue quoter instead of a single-venue
// strategy.
func (b *Builder) WithCrossVenue(q *strategy.CrossVenueQuoter) *Builder {
	b.cross = q
	return b
}

// WithFeed attaches the Kafka event publisher. The engine closes it on
// Stop.
func (b *Builder) WithFeed(p *feed.Publisher) *Builder {
	b.pub = p
	return b
}

// WithJournal attaches the fill journal. The engine closes it on Stop.
func (b *Builder) WithJournal(j *journal.Journal) *Builder {
	b.jrnl = j
	return b
}

// Build validates the assembly and constructs the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.cfg == nil {
		return nil, errors.New("engine: config required")
	}
	if b.log == nil {
		return nil, errors.New("engine: logger required")
	}
	if err := b.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if len(b.clients) == 0 {
		return nil, errors.New("engine: at least one venue client required")
	}
	if b.strat == nil && b.cross == nil {
		return nil, errors.New("engine: strategy required")
	}
	if b.strat != nil && b.cross != nil {
		return nil, errors.New("engine: single-venue strategy and cross-venue quoter are mutually exclusive")
	}

	primary := core.ParseExchange(b.cfg.Trading.Exchange)
	found := false
	for _, c := range b.clients {
		if c.Exchange() == primary {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("engine: no client registered for primary exchange %s", primary)
	}

	params, err := b.cfg.StrategyParams()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	limits, err := b.cfg.Risk.Limits()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	symbol := core.NewSymbol(b.cfg.Trading.Symbol)
	mgr := exchange.NewManager(b.log)
	cb := book.NewConsolidatedBook(symbol)
	for _, c := range b.clients {
		mgr.Register(c)
		cb.AddVenue(c.Exchange())
	}
	if b.cross != nil {
		b.cross.SetLatencyProvider(mgr)
	}

	var scanner *arb.Scanner
	if b.cfg.Arb.Enabled {
		scCfg, err := b.cfg.Arb.ScannerConfig()
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		scanner = arb.NewScanner(scCfg)
	}

	sys := b.cfg.System
	e := &Engine{
		log:      b.log.Named("engine"),
		cfg:      b.cfg,
		symbol:   symbol,
		primary:  primary,
		params:   params,
		mgr:      mgr,
		gate:     risk.NewGate(limits),
		book:     cb,
		strat:    b.strat,
		cross:    b.cross,
		scanner:  scanner,
		health:   exchange.NewHealthMonitor(mgr, b.log, healthInterval, staleAfter),
		feed:     b.pub,
		journal:  b.jrnl,
		updates:  transport.NewMPMC[core.Order](uint64(sys.OrderQueueSize)),
		trades:   transport.NewMPMC[core.Trade](uint64(sys.TradeQueueSize)),
		events:   transport.NewMPMC[core.Event](uint64(sys.EventQueueSize)),
		pool:     transport.NewSlab[core.Order](sys.OrderPoolSize),
		active:   make(map[core.ExchangeID]quotePair),
		venuePos: make(strategy.VenuePositions),
	}
	for _, c := range b.clients {
		ex := c.Exchange()
		if e.tickRings[ex] == nil {
			e.tickRings[ex] = transport.NewSPSC[core.Tick](uint64(sys.TickQueueSize))
			e.venues = append(e.venues, ex)
		}
	}
	return e, nil
}
