package roll

import (
	"context"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/eddiefleurent/wheelhouse/internal/models"
	"github.com/eddiefleurent/wheelhouse/internal/provider"
	"github.com/eddiefleurent/wheelhouse/internal/quote"
	"golang.org/x/sync/errgroup"
)

// SamplerConfig tunes the band-then-sample strike search. The band widths
// and early-exit thresholds are provider-latency heuristics, not derived
// constants, so they all live here rather than in code.
type SamplerConfig struct {
	// MaxUniverse clamps anomalously large strike universes (default 200);
	// past it, only strikes within ClampPct of the current strike survive.
	MaxUniverse int
	ClampPct    float64 // default 0.30

	// LowDeltaCutoffCall: below this target delta a call band switches from
	// dollar offsets to the far-OTM percentage band (default 0.15).
	LowDeltaCutoffCall float64
	// LowDeltaCutoffPut: below this (signed) target delta a put band uses
	// the percentage band (default -0.85).
	LowDeltaCutoffPut float64

	// BandCallPct is the far-OTM call band as multiples of spot (default 1.05..1.15).
	BandCallPct [2]float64
	// BandPutPct is the deep-OTM put band as multiples of spot (default 0.85..0.95).
	BandPutPct [2]float64
	// BandDollarBelow/Above are the near-the-money dollar offsets
	// (defaults 50/150; mirrored for puts).
	BandDollarBelow float64
	BandDollarAbove float64

	// SampleSize is the even-sampling budget across the band (default 10).
	SampleSize int
	// DegradedCount is how many strikes to take when no spot price is
	// available (default 20).
	DegradedCount int

	// GoodMatches stops sequential fetching once this many quotes landed
	// within DeltaTolerance of the target (defaults 8, 0.05).
	GoodMatches    int
	DeltaTolerance float64
	// MaxReturned caps the result set after sorting by delta closeness (default 12).
	MaxReturned int

	// VenueTimeout bounds the per-venue fetch loop (default 60s);
	// OverallTimeout bounds the whole sampling operation (default 180s).
	VenueTimeout   time.Duration
	OverallTimeout time.Duration

	// Parallel switches the per-venue fetch loop to concurrent fetching.
	// Early exit only applies to the sequential mode.
	Parallel      bool
	ParallelLimit int // default 4

	// Venues is the fallback order for strike lookups.
	Venues []string
}

func (c *SamplerConfig) normalize() {
	if c.MaxUniverse <= 0 {
		c.MaxUniverse = 200
	}
	if c.ClampPct <= 0 {
		c.ClampPct = 0.30
	}
	if c.LowDeltaCutoffCall <= 0 {
		c.LowDeltaCutoffCall = 0.15
	}
	if c.LowDeltaCutoffPut >= 0 {
		c.LowDeltaCutoffPut = -0.85
	}
	if c.BandCallPct == [2]float64{} {
		c.BandCallPct = [2]float64{1.05, 1.15}
	}
	if c.BandPutPct == [2]float64{} {
		c.BandPutPct = [2]float64{0.85, 0.95}
	}
	if c.BandDollarBelow <= 0 {
		c.BandDollarBelow = 50
	}
	if c.BandDollarAbove <= 0 {
		c.BandDollarAbove = 150
	}
	if c.SampleSize <= 0 {
		c.SampleSize = 10
	}
	if c.DegradedCount <= 0 {
		c.DegradedCount = 20
	}
	if c.GoodMatches <= 0 {
		c.GoodMatches = 8
	}
	if c.DeltaTolerance <= 0 {
		c.DeltaTolerance = 0.05
	}
	if c.MaxReturned <= 0 {
		c.MaxReturned = 12
	}
	if c.VenueTimeout <= 0 {
		c.VenueTimeout = 60 * time.Second
	}
	if c.OverallTimeout <= 0 {
		c.OverallTimeout = 180 * time.Second
	}
	if c.ParallelLimit <= 0 {
		c.ParallelLimit = 4
	}
	if len(c.Venues) == 0 {
		c.Venues = provider.DefaultVenues
	}
}

// Sampler narrows a strike universe to a small band around the target delta
// and samples it, bounding quote fetches against a rate-limited source.
// Chains can carry hundreds of strikes while only a handful sit near any
// given delta, so the band is a moneyness guess made before spending fetch
// budget.
type Sampler struct {
	provider provider.Provider
	fetcher  *quote.Fetcher
	cfg      SamplerConfig
	logger   *log.Logger
}

// NewSampler creates a Sampler.
func NewSampler(p provider.Provider, f *quote.Fetcher, cfg SamplerConfig, logger *log.Logger) *Sampler {
	cfg.normalize()
	return &Sampler{provider: p, fetcher: f, cfg: cfg, logger: logger}
}

// Sample returns up to MaxReturned quotes near targetDelta for the expiry,
// sorted by delta closeness. A nil spot degrades band quality but is not
// fatal. Failures degrade to an empty slice; the overall ceiling bounds the
// whole operation.
func (s *Sampler) Sample(ctx context.Context, symbol, expiry string, right models.Right, targetDelta float64, spot *float64, currentStrike float64) []*models.Quote {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OverallTimeout)
	defer cancel()

	quotes, err := provider.TryVenues(s.cfg.Venues, func(venue string) ([]*models.Quote, error) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		universe, err := s.provider.ListStrikes(ctx, symbol, expiry, right, venue)
		if err != nil {
			return nil, err
		}
		if len(universe) == 0 {
			return nil, quote.ErrNoQuote
		}

		sample := s.selectSample(universe, right, targetDelta, spot, currentStrike)
		collected := s.fetchSample(ctx, symbol, expiry, right, targetDelta, sample)
		if len(collected) == 0 {
			return nil, quote.ErrNoQuote
		}
		return collected, nil
	})
	if err != nil {
		s.logger.Printf("No delta-sampled quotes for %s %s %s: %v", symbol, expiry, right, err)
		return nil
	}

	sort.SliceStable(quotes, func(i, j int) bool {
		return deltaDistance(quotes[i], targetDelta) < deltaDistance(quotes[j], targetDelta)
	})
	if len(quotes) > s.cfg.MaxReturned {
		quotes = quotes[:s.cfg.MaxReturned]
	}
	return quotes
}

// selectSample clamps the universe, picks the delta- and side-aware band,
// and evenly samples it down to the fetch budget.
func (s *Sampler) selectSample(universe []float64, right models.Right, targetDelta float64, spot *float64, currentStrike float64) []float64 {
	strikes := make([]float64, len(universe))
	copy(strikes, universe)
	sort.Float64s(strikes)

	// A universe past MaxUniverse strikes is symptomatic of a data anomaly;
	// restrict to the neighborhood of the current strike before banding.
	if len(strikes) > s.cfg.MaxUniverse && currentStrike > 0 {
		lo := currentStrike * (1 - s.cfg.ClampPct)
		hi := currentStrike * (1 + s.cfg.ClampPct)
		strikes = within(strikes, lo, hi)
	}

	var band []float64
	if spot != nil && *spot > 0 {
		lo, hi := s.bandBounds(right, targetDelta, *spot)
		band = within(strikes, lo, hi)
	} else {
		// Degraded mode: no spot price, take the front of the universe.
		if len(strikes) > s.cfg.DegradedCount {
			return strikes[:s.cfg.DegradedCount]
		}
		return strikes
	}

	if len(band) <= s.cfg.SampleSize {
		return band
	}
	// Evenly sample across the band to preserve coverage of its range.
	stride := len(band) / s.cfg.SampleSize
	sample := make([]float64, 0, s.cfg.SampleSize)
	for i := 0; i < len(band) && len(sample) < s.cfg.SampleSize; i += stride {
		sample = append(sample, band[i])
	}
	return sample
}

func (s *Sampler) bandBounds(right models.Right, targetDelta, spot float64) (float64, float64) {
	if right == models.RightPut {
		if targetDelta < s.cfg.LowDeltaCutoffPut {
			return spot * s.cfg.BandPutPct[0], spot * s.cfg.BandPutPct[1]
		}
		return spot - s.cfg.BandDollarAbove, spot + s.cfg.BandDollarBelow
	}
	if targetDelta < s.cfg.LowDeltaCutoffCall {
		return spot * s.cfg.BandCallPct[0], spot * s.cfg.BandCallPct[1]
	}
	return spot - s.cfg.BandDollarBelow, spot + s.cfg.BandDollarAbove
}

// fetchSample resolves quotes for the sampled strikes, skipping strikes
// without delta. Sequential mode stops early once enough in-tolerance
// matches exist; parallel mode fetches the whole sample under a limit.
func (s *Sampler) fetchSample(ctx context.Context, symbol, expiry string, right models.Right, targetDelta float64, sample []float64) []*models.Quote {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.VenueTimeout)
	defer cancel()

	if s.cfg.Parallel {
		return s.fetchParallel(ctx, symbol, expiry, right, sample)
	}

	var collected []*models.Quote
	good := 0
	for _, strike := range sample {
		if ctx.Err() != nil {
			break
		}
		// Enough good options already; stop spending fetch budget.
		if good >= s.cfg.GoodMatches {
			break
		}
		q, err := s.fetcher.Option(ctx, symbol, expiry, strike, right)
		if err != nil || q.Delta == nil {
			continue
		}
		collected = append(collected, q)
		if deltaDistance(q, targetDelta) <= s.cfg.DeltaTolerance {
			good++
		}
	}
	return collected
}

func (s *Sampler) fetchParallel(ctx context.Context, symbol, expiry string, right models.Right, sample []float64) []*models.Quote {
	var mu sync.Mutex
	var collected []*models.Quote

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ParallelLimit)
	for _, strike := range sample {
		strike := strike
		g.Go(func() error {
			q, err := s.fetcher.Option(gctx, symbol, expiry, strike, right)
			if err != nil || q.Delta == nil {
				return nil // partial data tolerated
			}
			mu.Lock()
			collected = append(collected, q)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return collected
}

// deltaDistance is |abs(delta) − abs(target)|; quotes without delta sort last.
func deltaDistance(q *models.Quote, targetDelta float64) float64 {
	if q == nil || q.Delta == nil {
		return math.MaxFloat64
	}
	return math.Abs(math.Abs(*q.Delta) - math.Abs(targetDelta))
}

func within(sorted []float64, lo, hi float64) []float64 {
	out := make([]float64, 0, len(sorted))
	for _, k := range sorted {
		if k >= lo && k <= hi {
			out = append(out, k)
		}
	}
	return out
}
