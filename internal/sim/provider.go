// Package sim provides a synthetic market-data provider for paper runs and
// tests. Chains, greeks and prices are generated from a small closed-form
// model so the rest of the pipeline can run without a live data session.
package sim

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/eddiefleurent/wheelhouse/internal/models"
	"github.com/eddiefleurent/wheelhouse/internal/provider"
)

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1.
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// SymbolSeed describes one simulated underlying.
type SymbolSeed struct {
	Symbol string
	Spot   float64
	// IV is the volatility level used for pricing, as a percentage (e.g. 20).
	IV float64
	// StrikeInterval is the chain's strike spacing (default 5).
	StrikeInterval float64
}

// Config tunes the simulated provider.
type Config struct {
	Symbols []SymbolSeed
	// GreeksDelay is how many Read calls a subscription returns priceless
	// ticks before data "arrives", exercising the polling path (default 0).
	GreeksDelay int
	// WeeklyExpirations is how many consecutive weekly expirations each chain
	// carries (default 12).
	WeeklyExpirations int
	// Jitter adds a small random walk to spot prices on each quote.
	Jitter bool
}

// Provider is a synthetic implementation of provider.Provider.
type Provider struct {
	mu          sync.Mutex
	symbols     map[string]*symbolState
	greeksDelay int
	weeks       int
	jitter      bool
	now         func() time.Time
}

type symbolState struct {
	seed SymbolSeed
	spot float64
}

var _ provider.Provider = (*Provider)(nil)

// New creates a simulated provider from its seed universe.
func New(cfg Config) *Provider {
	if cfg.WeeklyExpirations <= 0 {
		cfg.WeeklyExpirations = 12
	}
	symbols := make(map[string]*symbolState, len(cfg.Symbols))
	for _, seed := range cfg.Symbols {
		if seed.StrikeInterval <= 0 {
			seed.StrikeInterval = 5
		}
		if seed.IV <= 0 {
			seed.IV = 20
		}
		symbols[seed.Symbol] = &symbolState{seed: seed, spot: seed.Spot}
	}
	return &Provider{
		symbols:     symbols,
		greeksDelay: cfg.GreeksDelay,
		weeks:       cfg.WeeklyExpirations,
		jitter:      cfg.Jitter,
		now:         time.Now,
	}
}

// ListPositions fabricates one short position per seeded symbol: a contract
// near the model's 0.30 delta, expiring within the evaluation threshold so
// paper runs always have something to roll.
func (p *Provider) ListPositions(ctx context.Context) ([]models.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.symbols))
	for name := range p.symbols {
		names = append(names, name)
	}
	sort.Strings(names)

	positions := make([]models.Position, 0, len(names))
	for _, name := range names {
		st := p.symbols[name]
		expiry := nextFriday(p.now()).AddDate(0, 0, 7)
		strike := p.strikeNearDelta(st.spot, st.seed.IV, st.seed.StrikeInterval, expiry, models.RightCall, 0.30)
		mark, delta := p.model(st.spot, st.seed.IV, expiry, strike, models.RightCall)
		positions = append(positions, models.Position{
			Symbol:       name,
			Strike:       strike,
			Expiry:       expiry,
			Right:        models.RightCall,
			Contracts:    1,
			EntryCredit:  mark * 1.4,
			CurrentMark:  models.Float(mark),
			CurrentDelta: models.Float(delta),
		})
	}
	return positions, nil
}

// ListExpirations returns consecutive weekly (Friday) expirations.
func (p *Provider) ListExpirations(ctx context.Context, symbol string, right models.Right, venue string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := p.state(symbol); err != nil {
		return nil, err
	}

	expirations := make([]string, 0, p.weeks)
	friday := nextFriday(p.now())
	for i := 0; i < p.weeks; i++ {
		expirations = append(expirations, friday.Format(models.ExpiryFormat))
		friday = friday.AddDate(0, 0, 7)
	}
	return expirations, nil
}

// ListStrikes returns the chain's strike universe around the current spot.
func (p *Provider) ListStrikes(ctx context.Context, symbol, expiry string, right models.Right, venue string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := p.state(symbol)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	interval := st.seed.StrikeInterval
	start := math.Floor(st.spot/interval)*interval - 10*interval
	strikes := make([]float64, 0, 41)
	for k := start; k <= start+40*interval; k += interval {
		if k > 0 {
			strikes = append(strikes, k)
		}
	}
	return strikes, nil
}

// Subscribe returns a synthetic subscription whose ticks come from the
// pricing model. Stock subscriptions random-walk the spot when jitter is on.
func (p *Provider) Subscribe(ctx context.Context, c provider.Contract, withGreeks bool) (provider.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := p.state(c.Symbol)
	if err != nil {
		return nil, err
	}
	return &subscription{
		provider:   p,
		state:      st,
		contract:   c,
		withGreeks: withGreeks,
		delay:      p.greeksDelay,
	}, nil
}

func (p *Provider) state(symbol string) (*symbolState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol %q", symbol)
	}
	return st, nil
}

// model prices one contract: delta decays exponentially with distance from
// spot, and premium scales with volatility and time remaining.
func (p *Provider) model(spot, iv float64, expiry time.Time, strike float64, right models.Right) (mark, delta float64) {
	dte := models.DaysUntil(p.now(), expiry)
	if dte < 0 {
		dte = 0
	}
	distance := math.Abs(strike - spot)
	decay := math.Exp(-distance * 0.02)

	if right == models.RightPut {
		delta = -0.5 * decay
		if strike > spot {
			delta = -0.5 * (2 - decay)
		}
	} else {
		delta = 0.5 * decay
		if strike < spot {
			delta = 0.5 * (2 - decay)
		}
	}

	timeValue := float64(dte) / 365.0
	vol := iv / 100.0
	mark = math.Max(0.05, vol*math.Sqrt(timeValue)*spot*0.01*math.Abs(delta)*10)
	return mark, delta
}

func (p *Provider) strikeNearDelta(spot, iv, interval float64, expiry time.Time, right models.Right, target float64) float64 {
	best := math.Floor(spot/interval) * interval
	bestDiff := math.MaxFloat64
	for k := best - 10*interval; k <= best+10*interval; k += interval {
		if k <= 0 {
			continue
		}
		_, delta := p.model(spot, iv, expiry, k, right)
		diff := math.Abs(math.Abs(delta) - target)
		if diff < bestDiff {
			best, bestDiff = k, diff
		}
	}
	return best
}

// nextFriday returns the next Friday strictly after t, at midnight UTC.
func nextFriday(t time.Time) time.Time {
	t = t.UTC().Truncate(24 * time.Hour)
	days := (int(time.Friday) - int(t.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return t.AddDate(0, 0, days)
}

type subscription struct {
	provider   *Provider
	state      *symbolState
	contract   provider.Contract
	withGreeks bool

	mu       sync.Mutex
	delay    int
	released bool
}

var _ provider.Subscription = (*subscription)(nil)

// Read returns the current synthetic tick. The first GreeksDelay reads return
// an empty tick to mimic a data session still warming up.
func (s *subscription) Read() provider.Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return provider.Tick{}
	}
	if s.delay > 0 {
		s.delay--
		return provider.Tick{}
	}

	s.provider.mu.Lock()
	if s.provider.jitter {
		s.state.spot += (secureFloat64() - 0.5) * 2
	}
	spot := s.state.spot
	s.provider.mu.Unlock()

	if s.contract.IsStock() {
		spread := 0.02
		return provider.Tick{
			Bid:  models.Float(spot - spread/2),
			Ask:  models.Float(spot + spread/2),
			Last: models.Float(spot),
		}
	}

	expiry, err := models.ParseExpiry(s.contract.Expiry)
	if err != nil {
		return provider.Tick{}
	}
	mark, delta := s.provider.model(spot, s.state.seed.IV, expiry, s.contract.Strike, s.contract.Right)
	tick := provider.Tick{
		Bid:  models.Float(mark - 0.05),
		Ask:  models.Float(mark + 0.05),
		Last: models.Float(mark),
	}
	if s.withGreeks {
		vol := s.state.seed.IV / 100.0
		tick.Delta = models.Float(delta)
		tick.Gamma = models.Float(0.01 * vol)
		tick.Theta = models.Float(-0.05 * vol)
		tick.IV = models.Float(vol)
	}
	return tick
}

// Release marks the subscription dead; later reads return empty ticks.
func (s *subscription) Release() {
	s.mu.Lock()
	s.released = true
	s.mu.Unlock()
}
