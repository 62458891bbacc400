package quote

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/eddiefleurent/wheelhouse/internal/models"
	"github.com/eddiefleurent/wheelhouse/internal/provider"
)

// ErrNoQuote is returned when every venue was exhausted without producing a
// usable quote.
var ErrNoQuote = errors.New("no usable quote")

// defaultStockVenues is the primary-exchange order for stock quotes; a
// venue-less request is the last resort after these.
var defaultStockVenues = []string{"NASDAQ", "NYSE", "SMART"}

// FetcherConfig tunes the fetcher. Zero values fall back to defaults.
type FetcherConfig struct {
	// Venues is the fallback order for option subscriptions.
	Venues []string
	// StockVenues is the primary-exchange order for stock quotes.
	StockVenues []string
	// QuoteTimeout bounds the greeks polling wait per venue.
	QuoteTimeout time.Duration
	// Backoff is the polling schedule while waiting for greeks.
	Backoff Backoff
}

// Fetcher resolves option and stock quotes through the provider, caching
// results and polling subscriptions with adaptive backoff.
type Fetcher struct {
	provider    provider.Provider
	options     *Cache
	stocks      *Cache
	venues      []string
	stockVenues []string
	timeout     time.Duration
	poller      *poller
	logger      *log.Logger
	now         func() time.Time
}

// NewFetcher creates a Fetcher. optionCache and stockCache are owned by the
// caller so distinct TTLs (and tests with fake clocks) stay possible.
func NewFetcher(p provider.Provider, optionCache, stockCache *Cache, cfg FetcherConfig, logger *log.Logger) *Fetcher {
	if len(cfg.Venues) == 0 {
		cfg.Venues = provider.DefaultVenues
	}
	if len(cfg.StockVenues) == 0 {
		cfg.StockVenues = defaultStockVenues
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = 3 * time.Second
	}
	if len(cfg.Backoff.Stages) == 0 {
		cfg.Backoff = DefaultBackoff()
	}
	return &Fetcher{
		provider:    p,
		options:     optionCache,
		stocks:      stockCache,
		venues:      cfg.Venues,
		stockVenues: cfg.StockVenues,
		timeout:     cfg.QuoteTimeout,
		poller:      newPoller(cfg.Backoff),
		logger:      logger,
		now:         time.Now,
	}
}

// Option resolves one option quote (price + greeks), trying the cache first
// and then each venue in order. Returns ErrNoQuote when no venue produced a
// usable mark price.
func (f *Fetcher) Option(ctx context.Context, symbol, expiry string, strike float64, right models.Right) (*models.Quote, error) {
	key := OptionKey(symbol, expiry, strike, right)
	if q, ok := f.options.Get(key); ok {
		return q, nil
	}

	q, err := provider.TryVenues(f.venues, func(venue string) (*models.Quote, error) {
		return f.optionFromVenue(ctx, venue, symbol, expiry, strike, right)
	})
	if err != nil {
		return nil, fmt.Errorf("option quote %s %s %.2f%s: %w: %w", symbol, expiry, strike, right, ErrNoQuote, err)
	}

	f.options.Put(key, q)
	return q, nil
}

func (f *Fetcher) optionFromVenue(ctx context.Context, venue, symbol, expiry string, strike float64, right models.Right) (*models.Quote, error) {
	contract := provider.Contract{Symbol: symbol, Expiry: expiry, Strike: strike, Right: right, Venue: venue}
	sub, err := f.provider.Subscribe(ctx, contract, true)
	if err != nil {
		return nil, err
	}
	// Release on every exit path; a leaked subscription counts against the
	// provider's line limit until the session dies.
	defer sub.Release()

	f.poller.waitUntil(ctx, f.timeout, func() bool {
		return sub.Read().HasGreeks()
	})

	tick := sub.Read()
	mark, ok := markFromTick(tick)
	if !ok {
		return nil, ErrNoQuote
	}

	dte := 0
	if exp, perr := models.ParseExpiry(expiry); perr == nil {
		dte = models.DaysUntil(f.now(), exp)
	} else {
		f.logger.Printf("Warning: unparseable expiry %q for %s: %v", expiry, symbol, perr)
	}

	return &models.Quote{
		Symbol: symbol,
		Strike: strike,
		Expiry: expiry,
		Right:  right,
		Bid:    sanitize(tick.Bid),
		Ask:    sanitize(tick.Ask),
		Last:   sanitize(tick.Last),
		Close:  sanitize(tick.Close),
		Mark:   mark,
		Delta:  sanitize(tick.Delta),
		Gamma:  sanitize(tick.Gamma),
		Theta:  sanitize(tick.Theta),
		IV:     sanitize(tick.IV),
		DTE:    dte,
	}, nil
}

// Stock resolves the underlying's price, trying the cache, then each primary
// exchange, then a venue-less request as last resort. The price must be
// strictly positive to be accepted.
func (f *Fetcher) Stock(ctx context.Context, symbol string) (float64, error) {
	key := StockKey(symbol)
	if q, ok := f.stocks.Get(key); ok {
		return q.Mark, nil
	}

	// Venue-less request appended as the final fallback.
	venues := make([]string, 0, len(f.stockVenues)+1)
	venues = append(venues, f.stockVenues...)
	venues = append(venues, "")

	price, err := provider.TryVenues(venues, func(venue string) (float64, error) {
		return f.stockFromVenue(ctx, venue, symbol)
	})
	if err != nil {
		return 0, fmt.Errorf("stock quote %s: %w: %w", symbol, ErrNoQuote, err)
	}

	f.stocks.Put(key, &models.Quote{Symbol: symbol, Mark: price})
	return price, nil
}

func (f *Fetcher) stockFromVenue(ctx context.Context, venue, symbol string) (float64, error) {
	sub, err := f.provider.Subscribe(ctx, provider.StockContract(symbol, venue), false)
	if err != nil {
		return 0, err
	}
	defer sub.Release()

	var price float64
	f.poller.waitUntil(ctx, f.timeout, func() bool {
		mark, ok := markFromTick(sub.Read())
		if ok && mark > 0 {
			price = mark
			return true
		}
		return false
	})

	if price <= 0 {
		return 0, ErrNoQuote
	}
	return price, nil
}

// markFromTick derives a representative price: bid/ask midpoint when both
// are present and 0 < bid <= ask, else the first positive of bid, ask, last,
// close.
func markFromTick(t provider.Tick) (float64, bool) {
	bid, ask := sanitize(t.Bid), sanitize(t.Ask)
	if bid != nil && ask != nil && 0 < *bid && *bid <= *ask {
		return (*bid + *ask) / 2, true
	}
	for _, p := range []*float64{bid, ask, sanitize(t.Last), sanitize(t.Close)} {
		if p != nil && *p > 0 {
			return *p, true
		}
	}
	return 0, false
}

// sanitize normalizes NaN and infinities from the wire into the optional
// representation so they can never leak into ranking arithmetic.
func sanitize(p *float64) *float64 {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return nil
	}
	v := *p
	return &v
}
