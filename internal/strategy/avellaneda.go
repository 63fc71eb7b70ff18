package strategy

import (
	"math"
	"sync"
	"time"

	"github.com/quantara-io/quantara/internal/book"
	"github.com/quantara-io/quantara/internal/core"
	"github.com/quantara-io/quantara/internal/risk"
)

// ASParams are the Avellaneda-Stoikov model inputs: risk aversion gamma,
// volatility sigma (per horizon), order-arrival decay k and the quoting
// horizon T. The model renormalizes time within each horizon window, so a
// long-running quoter behaves as a sequence of back-to-back sessions.
type ASParams struct {
	Gamma   float64
	Sigma   float64
	K       float64
	Horizon time.Duration
}

// DefaultASParams returns the canonical small-gamma configuration.
func DefaultASParams() ASParams {
	return ASParams{Gamma: 0.1, Sigma: 0.01, K: 1.5, Horizon: time.Second}
}

// AvellanedaStoikov quotes around a reservation price that backs away from
// the mid as inventory accumulates, with a spread derived from the model's
// closed form instead of a configured target.
type AvellanedaStoikov struct {
	*Quoter
	as ASParams

	startOnce sync.Once
	start     time.Time
}

// NewAvellanedaStoikov creates the model-driven variant. It starts
// disabled.
func NewAvellanedaStoikov(params Params, as ASParams) *AvellanedaStoikov {
	return &AvellanedaStoikov{Quoter: NewQuoter(params), as: as}
}

func (s *AvellanedaStoikov) Name() string { return "avellaneda-stoikov" }

// ComputeQuotes derives the reservation price
// r = mid − mid·q·γ·σ²·t and the optimal spread
// γ·σ²·t + (2/γ)·ln(1 + γ/k), both renormalized to the fraction t of the
// horizon still remaining.
func (s *AvellanedaStoikov) ComputeQuotes(b *book.ExchangeBook, pos risk.Position, sig core.Signal) Decision {
	now := core.Now()
	d := Decision{Timestamp: now}
	if !s.Enabled() {
		d.Reason = reasonDisabled
		return d
	}
	if !b.IsValid() {
		d.Reason = reasonBadBook
		return d
	}
	s.startOnce.Do(func() { s.start = time.Now() })

	horizon := s.as.Horizon.Seconds()
	if horizon <= 0 {
		horizon = 1
	}
	elapsed := time.Since(s.start).Seconds()
	tRem := 1 - math.Mod(elapsed/horizon, 1)
	if tRem < 0.01 {
		tRem = 0.01
	}

	mid := float64(b.MidPrice())
	q := core.FromQty(pos.Quantity)
	gs2t := s.as.Gamma * s.as.Sigma * s.as.Sigma * tRem

	reservation := mid - mid*q*gs2t
	spreadBps := 10000 * (gs2t + (2/s.as.Gamma)*math.Log(1+s.as.Gamma/s.as.K))
	spreadBps = clampF(spreadBps, s.params.MinSpreadBps, s.params.MaxSpreadBps)
	half := mid * spreadBps / 20000

	bid := core.Price(reservation - half)
	ask := core.Price(reservation + half)
	s.finalize(&d, core.Price(mid), bid, ask, pos.Quantity, now)
	return d
}
