package roll

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/eddiefleurent/wheelhouse/internal/models"
	"github.com/eddiefleurent/wheelhouse/internal/quote"
)

// FinderConfig tunes per-position evaluation.
type FinderConfig struct {
	// TargetDeltaCall/TargetDeltaPut are the replacement deltas to hunt for
	// (defaults 0.10 and -0.90).
	TargetDeltaCall float64
	TargetDeltaPut  float64
	// DTEThreshold gates evaluation: positions further out are not yet
	// eligible (default 14).
	DTEThreshold int
	// ExpiringDTEMax: at or below this DTE, missing price data is expected
	// rather than anomalous (default 2).
	ExpiringDTEMax int
	// StrikeTolerance dedupes candidates whose strikes are effectively equal
	// (default 1.0).
	StrikeTolerance float64
}

func (c *FinderConfig) normalize() {
	if c.TargetDeltaCall == 0 {
		c.TargetDeltaCall = 0.10
	}
	if c.TargetDeltaPut == 0 {
		c.TargetDeltaPut = -0.90
	}
	if c.DTEThreshold <= 0 {
		c.DTEThreshold = 14
	}
	if c.ExpiringDTEMax <= 0 {
		c.ExpiringDTEMax = 2
	}
	if c.StrikeTolerance <= 0 {
		c.StrikeTolerance = sameStrikeTolerance
	}
}

// Finder orchestrates one position's evaluation: eligibility and
// data-quality gates, spot lookup, replacement expiry selection, candidate
// construction, scoring and ranking.
type Finder struct {
	fetcher  *quote.Fetcher
	expiries *ExpirySelector
	sampler  *Sampler
	cfg      FinderConfig
	logger   *log.Logger
	now      func() time.Time
}

// NewFinder creates a Finder from its collaborators.
func NewFinder(f *quote.Fetcher, expiries *ExpirySelector, sampler *Sampler, cfg FinderConfig, logger *log.Logger) *Finder {
	cfg.normalize()
	return &Finder{
		fetcher:  f,
		expiries: expiries,
		sampler:  sampler,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Evaluate runs the full gate-and-score pipeline for one position. Every
// failure mode is recovered here at single-position granularity; a panic or
// unexpected provider failure becomes OutcomeProviderError so the rest of
// the batch proceeds.
func (f *Finder) Evaluate(ctx context.Context, pos *models.Position) (ev models.Evaluation) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Printf("Recovered evaluating %s $%.2f%s: %v", pos.Symbol, pos.Strike, pos.Right, r)
			ev = models.Evaluation{
				Outcome: models.OutcomeProviderError,
				Reason:  fmt.Sprintf("unexpected failure: %v", r),
			}
		}
	}()

	now := f.now()
	dte := pos.DTE(now)

	// Gate: not yet close enough to expiration to bother.
	if dte > f.cfg.DTEThreshold {
		return models.Evaluation{
			Outcome: models.OutcomeNotEligible,
			Reason:  fmt.Sprintf("DTE %d above threshold %d", dte, f.cfg.DTEThreshold),
		}
	}

	// Gate: data quality. Quotes routinely vanish right before expiry; with
	// time remaining a missing mark is an anomaly worth reporting.
	if !pos.HasMark() {
		if dte <= f.cfg.ExpiringDTEMax {
			return models.Evaluation{
				Outcome: models.OutcomeSkipExpiring,
				Reason:  fmt.Sprintf("expiring in %d day(s), no market data available", dte),
			}
		}
		return models.Evaluation{
			Outcome: models.OutcomeMissingData,
			Reason:  "no current market price available, cannot compute roll candidates",
		}
	}

	buyback := pos.BuybackCost()
	currentPnL := pos.EntryCredit - buyback

	// Spot absence degrades strike sampling quality, not the evaluation.
	var spot *float64
	if price, err := f.fetcher.Stock(ctx, pos.Symbol); err == nil {
		spot = models.Float(price)
	} else {
		f.logger.Printf("Warning: no spot price for %s, strike bands degrade: %v", pos.Symbol, err)
	}

	nextExpiry, err := f.expiries.Next(ctx, pos.Symbol, pos.Expiry, pos.Right)
	if err != nil {
		return models.Evaluation{
			Outcome: models.OutcomeNoExpiry,
			Reason:  fmt.Sprintf("no expiry in window after %s+%dd", pos.Expiry.Format("2006-01-02"), f.expiries.cfg.RollForwardDays),
		}
	}

	candidates := f.buildCandidates(ctx, pos, nextExpiry, spot)
	if len(candidates) == 0 {
		return models.Evaluation{
			Outcome: models.OutcomeNoCandidates,
			Reason:  "no positive-net-credit replacement found",
		}
	}

	result := &models.RollResult{
		Symbol:        pos.Symbol,
		Spot:          spot,
		CurrentStrike: pos.Strike,
		CurrentExpiry: pos.Expiry,
		CurrentDTE:    dte,
		CurrentDelta:  pos.CurrentDelta,
		BuybackCost:   buyback,
		EntryCredit:   pos.EntryCredit,
		CurrentPnL:    currentPnL,
		Contracts:     pos.Contracts,
		Right:         pos.Right,
		Candidates:    candidates,
	}
	result.SortByCapitalROI()

	return models.Evaluation{Outcome: models.OutcomeFound, Result: result}
}

// buildCandidates assembles the candidate set: the same-strike replacement
// first, then delta-sampled strikes deduped against what is already present.
// Only strictly positive net credit survives; rolling into a debit is never
// actionable.
func (f *Finder) buildCandidates(ctx context.Context, pos *models.Position, nextExpiry string, spot *float64) []models.RollCandidate {
	var candidates []models.RollCandidate

	if q, err := f.fetcher.Option(ctx, pos.Symbol, nextExpiry, pos.Strike, pos.Right); err == nil {
		if c := Score(pos, q); c.NetCredit > 0 {
			candidates = append(candidates, c)
		}
	} else {
		f.logger.Printf("No same-strike quote for %s %s $%.2f%s: %v", pos.Symbol, nextExpiry, pos.Strike, pos.Right, err)
	}

	targetDelta := f.targetDelta(pos.Right)
	for _, q := range f.sampler.Sample(ctx, pos.Symbol, nextExpiry, pos.Right, targetDelta, spot, pos.Strike) {
		if f.duplicateStrike(candidates, q.Strike) {
			continue
		}
		if c := Score(pos, q); c.NetCredit > 0 {
			candidates = append(candidates, c)
		}
	}

	return candidates
}

func (f *Finder) duplicateStrike(candidates []models.RollCandidate, strike float64) bool {
	for _, c := range candidates {
		if c.Quote != nil && math.Abs(c.Quote.Strike-strike) < f.cfg.StrikeTolerance {
			return true
		}
	}
	return false
}

func (f *Finder) targetDelta(right models.Right) float64 {
	if right == models.RightPut {
		return f.cfg.TargetDeltaPut
	}
	return f.cfg.TargetDeltaCall
}

// TargetDelta exposes the configured target for a right; consumers use it
// for the delta-then-ROI secondary ordering.
func (f *Finder) TargetDelta(right models.Right) float64 {
	return f.targetDelta(right)
}
