// Package arb detects price dislocations: the pair scanner watches for one
// venue's bid crossing another venue's ask on the same symbol, the
// triangular scanner for a profitable three-leg round trip on a single
// venue. Both validate size, freshness and profit before reporting. Fees
// live in the scanner config as a per-leg taker rate; book math stays
// fee-free.
package arb

import (
	"sync/atomic"
	"time"

	"github.com/quantara-io/quantara/internal/book"
	"github.com/quantara-io/quantara/internal/core"
)

// Config bounds what the scanners will report.
type Config struct {
	// MinProfitBps is the reporting threshold net of fees.
	MinProfitBps float64
	// FeeBps is the per-leg taker fee; both legs pay it, so the gross
	// edge must clear MinProfitBps + 2*FeeBps.
	FeeBps float64
	// MinQuantity drops opportunities too small to execute.
	MinQuantity core.Quantity
	// MaxQuantity caps the candidate size regardless of displayed depth.
	MaxQuantity core.Quantity
	// MaxOpportunityAge invalidates candidates that sat in a queue too
	// long; crossed books rarely survive beyond a few hundred
	// milliseconds.
	MaxOpportunityAge time.Duration
	// RequireBothSidesLiquid additionally demands the candidate fill a
	// MinLiquidityRatio share of MaxQuantity.
	RequireBothSidesLiquid bool
	MinLiquidityRatio      float64
}

// DefaultConfig mirrors conservative production thresholds.
func DefaultConfig() Config {
	return Config{
		MinProfitBps:           10,
		MinQuantity:            core.QtyPrecision / 100,
		MaxQuantity:            core.QtyPrecision,
		MaxOpportunityAge:      100 * time.Millisecond,
		RequireBothSidesLiquid: true,
		MinLiquidityRatio:      0.5,
	}
}

// Opportunity is one executable cross-venue dislocation.
type Opportunity struct {
	Symbol       core.Symbol
	BuyExchange  core.ExchangeID
	SellExchange core.ExchangeID
	BuyPrice     core.Price
	SellPrice    core.Price
	Quantity     core.Quantity
	ProfitBps    float64
	DetectedAt   core.Timestamp
}

// ExpectedProfit is the gross edge in quote units.
func (o *Opportunity) ExpectedProfit() float64 {
	return core.FromQty(o.Quantity) * core.FromPrice(o.SellPrice-o.BuyPrice)
}

// Callback receives each validated opportunity.
type Callback func(Opportunity)

// Scanner finds crossed tops of book between venue pairs in a
// consolidated view.
type Scanner struct {
	cfg Config
	cb  Callback

	detected atomic.Uint64
	executed atomic.Uint64

	now func() core.Timestamp
}

// NewScanner creates a scanner. Register the callback before the
// market-data goroutine starts scanning.
func NewScanner(cfg Config) *Scanner {
	return &Scanner{cfg: cfg, now: core.Now}
}

// SetCallback registers the opportunity sink.
func (s *Scanner) SetCallback(cb Callback) { s.cb = cb }

// Config returns the scanner's thresholds.
func (s *Scanner) Config() Config { return s.cfg }

// Scan walks every ordered venue pair of the consolidated book and
// returns the validated opportunities, highest profit first, invoking the
// callback for each.
func (s *Scanner) Scan(cb *book.ConsolidatedBook) []Opportunity {
	now := s.now()
	venues := cb.Venues()
	var out []Opportunity
	for _, sellEx := range venues {
		sellBook := cb.Venue(sellEx)
		if sellBook == nil {
			continue
		}
		bid, ok := sellBook.BestBid()
		if !ok {
			continue
		}
		for _, buyEx := range venues {
			if buyEx == sellEx {
				continue
			}
			buyBook := cb.Venue(buyEx)
			if buyBook == nil {
				continue
			}
			ask, ok := buyBook.BestAsk()
			if !ok || bid.Price <= ask.Price {
				continue
			}

			qty := min3(bid.Quantity, ask.Quantity, s.cfg.MaxQuantity)
			opp := Opportunity{
				Symbol:       cb.Symbol(),
				BuyExchange:  buyEx,
				SellExchange: sellEx,
				BuyPrice:     ask.Price,
				SellPrice:    bid.Price,
				Quantity:     qty,
				ProfitBps:    10000 * float64(bid.Price-ask.Price) / float64(ask.Price),
				DetectedAt:   now,
			}
			if !s.Validate(opp) {
				continue
			}
			s.detected.Add(1)
			if s.cb != nil {
				s.cb(opp)
			}
			out = append(out, opp)
		}
	}
	sortByProfit(out)
	return out
}

// Validate re-checks an opportunity against the thresholds. Consumers that
// queue opportunities should call it again just before execution; the
// freshness bound is what expires stale candidates.
func (s *Scanner) Validate(o Opportunity) bool {
	if o.ProfitBps < s.cfg.MinProfitBps+2*s.cfg.FeeBps {
		return false
	}
	if o.Quantity < s.cfg.MinQuantity {
		return false
	}
	if s.cfg.RequireBothSidesLiquid &&
		float64(o.Quantity) < s.cfg.MinLiquidityRatio*float64(s.cfg.MaxQuantity) {
		return false
	}
	if s.cfg.MaxOpportunityAge > 0 {
		age := time.Duration(s.now() - o.DetectedAt)
		if age > s.cfg.MaxOpportunityAge {
			return false
		}
	}
	return true
}

// MarkExecuted counts an opportunity the caller acted on.
func (s *Scanner) MarkExecuted() { s.executed.Add(1) }

// Detected is the count of validated opportunities.
func (s *Scanner) Detected() uint64 { return s.detected.Load() }

// Executed is the count of acted-on opportunities.
func (s *Scanner) Executed() uint64 { return s.executed.Load() }

func min3(a, b, c int64) int64 {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func sortByProfit(opps []Opportunity) {
	// Insertion sort; the slice is nearly always 0 or 1 long.
	for i := 1; i < len(opps); i++ {
		for j := i; j > 0 && opps[j].ProfitBps > opps[j-1].ProfitBps; j-- {
			opps[j], opps[j-1] = opps[j-1], opps[j]
		}
	}
}
