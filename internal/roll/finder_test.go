package roll

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/wheelhouse/internal/models"
	"github.com/eddiefleurent/wheelhouse/internal/provider"
	"github.com/eddiefleurent/wheelhouse/internal/quote"
)

// fakeProvider drives the full pipeline with scripted chain data. Option
// quotes come from the quotes map keyed by strike; the stock quote from spot.
type fakeProvider struct {
	expirations []string
	strikes     []float64
	spot        *float64
	quotes      map[float64]fakeQuote

	panicOnExpirations bool
}

type fakeQuote struct {
	mark  float64
	delta float64
}

type fakeSub struct {
	tick provider.Tick
}

func (s *fakeSub) Read() provider.Tick { return s.tick }
func (s *fakeSub) Release()            {}

func (f *fakeProvider) ListPositions(ctx context.Context) ([]models.Position, error) {
	return nil, nil
}

func (f *fakeProvider) ListExpirations(ctx context.Context, symbol string, right models.Right, venue string) ([]string, error) {
	if f.panicOnExpirations {
		panic("session lost")
	}
	return f.expirations, nil
}

func (f *fakeProvider) ListStrikes(ctx context.Context, symbol, expiry string, right models.Right, venue string) ([]float64, error) {
	return f.strikes, nil
}

func (f *fakeProvider) Subscribe(ctx context.Context, c provider.Contract, withGreeks bool) (provider.Subscription, error) {
	if c.IsStock() {
		if f.spot == nil {
			return &fakeSub{}, nil
		}
		return &fakeSub{tick: provider.Tick{Last: f.spot}}, nil
	}
	q, ok := f.quotes[c.Strike]
	if !ok {
		return &fakeSub{}, nil
	}
	return &fakeSub{tick: provider.Tick{
		Bid:   models.Float(q.mark - 0.05),
		Ask:   models.Float(q.mark + 0.05),
		Delta: models.Float(q.delta),
	}}, nil
}

func newTestFinder(p provider.Provider) *Finder {
	logger := discardLogger()
	fetcher := quote.NewFetcher(p, quote.NewCache(time.Minute), quote.NewCache(time.Minute), quote.FetcherConfig{
		QuoteTimeout: 100 * time.Millisecond,
	}, logger)
	expiries := NewExpirySelector(p, ExpiryConfig{}, logger)
	sampler := NewSampler(p, fetcher, SamplerConfig{}, logger)
	return NewFinder(fetcher, expiries, sampler, FinderConfig{}, logger)
}

func callPosition(dte int, mark, delta *float64) *models.Position {
	return &models.Position{
		Symbol:       "XYZ",
		Strike:       100,
		Expiry:       time.Now().UTC().AddDate(0, 0, dte),
		Right:        models.RightCall,
		Contracts:    1,
		EntryCredit:  3.0,
		CurrentMark:  mark,
		CurrentDelta: delta,
	}
}

func TestEvaluateGates(t *testing.T) {
	tests := []struct {
		name string
		pos  *models.Position
		want models.Outcome
	}{
		{
			name: "far from expiry is not eligible",
			pos:  callPosition(30, models.Float(1.0), models.Float(0.25)),
			want: models.OutcomeNotEligible,
		},
		{
			name: "missing mark near expiry is expected",
			pos:  callPosition(1, nil, models.Float(0.25)),
			want: models.OutcomeSkipExpiring,
		},
		{
			name: "missing mark with time left is an anomaly",
			pos:  callPosition(10, nil, models.Float(0.25)),
			want: models.OutcomeMissingData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Gates fire before any provider interaction.
			f := newTestFinder(&fakeProvider{})
			ev := f.Evaluate(context.Background(), tt.pos)
			assert.Equal(t, tt.want, ev.Outcome)
			assert.NotEmpty(t, ev.Reason)
			assert.Nil(t, ev.Result)
		})
	}
}

func TestEvaluateNoExpiry(t *testing.T) {
	p := &fakeProvider{
		// Only short-dated expirations; nothing lands in the 30-60 window.
		expirations: []string{
			time.Now().UTC().AddDate(0, 0, 7).Format(models.ExpiryFormat),
			time.Now().UTC().AddDate(0, 0, 14).Format(models.ExpiryFormat),
		},
		spot: models.Float(100.0),
	}

	f := newTestFinder(p)
	ev := f.Evaluate(context.Background(), callPosition(10, models.Float(1.0), models.Float(0.25)))
	assert.Equal(t, models.OutcomeNoExpiry, ev.Outcome)
}

func TestEvaluateNoPositiveCredit(t *testing.T) {
	expiry := time.Now().UTC().AddDate(0, 0, 37)
	p := &fakeProvider{
		expirations: []string{expiry.Format(models.ExpiryFormat)},
		strikes:     []float64{100, 105},
		spot:        models.Float(100.0),
		quotes: map[float64]fakeQuote{
			// Everything quotes below the buyback cost.
			100: {mark: 0.50, delta: 0.30},
			105: {mark: 0.40, delta: 0.12},
		},
	}

	f := newTestFinder(p)
	ev := f.Evaluate(context.Background(), callPosition(10, models.Float(1.0), models.Float(0.25)))
	assert.Equal(t, models.OutcomeNoCandidates, ev.Outcome)
}

func TestEvaluateRecoversPanics(t *testing.T) {
	p := &fakeProvider{panicOnExpirations: true, spot: models.Float(100.0)}

	f := newTestFinder(p)
	ev := f.Evaluate(context.Background(), callPosition(10, models.Float(1.0), models.Float(0.25)))
	assert.Equal(t, models.OutcomeProviderError, ev.Outcome)
	assert.Contains(t, ev.Reason, "session lost")
	assert.True(t, ev.Outcome.IsError())
}

func TestEvaluateEndToEnd(t *testing.T) {
	expiry := time.Now().UTC().AddDate(0, 0, 37)
	p := &fakeProvider{
		expirations: []string{expiry.Format(models.ExpiryFormat)},
		strikes:     []float64{95, 100, 105, 110, 115},
		// Spot 95 puts the far-OTM call band at [99.75, 109.25], which
		// covers the current strike so dedupe gets exercised.
		spot: models.Float(95.0),
		quotes: map[float64]fakeQuote{
			100: {mark: 3.00, delta: 0.20},
			105: {mark: 1.80, delta: 0.09},
		},
	}

	f := newTestFinder(p)
	pos := callPosition(10, models.Float(1.0), models.Float(0.25))
	ev := f.Evaluate(context.Background(), pos)

	require.Equal(t, models.OutcomeFound, ev.Outcome)
	require.NotNil(t, ev.Result)

	res := ev.Result
	assert.Equal(t, "XYZ", res.Symbol)
	require.NotNil(t, res.Spot)
	assert.InDelta(t, 95.0, *res.Spot, 1e-9)
	assert.InDelta(t, 1.0, res.BuybackCost, 1e-9)
	assert.InDelta(t, 2.0, res.CurrentPnL, 1e-9, "entry credit 3.0 minus buyback 1.0")

	// The same-strike candidate appears once even though the sampler also
	// quoted strike 100.
	sameStrike := 0
	for _, c := range res.Candidates {
		if c.Label == "Same Strike" {
			sameStrike++
		}
		assert.Greater(t, c.NetCredit, 0.0, "only positive net credit survives")
	}
	assert.Equal(t, 1, sameStrike)

	// Ranked by descending capital ROI; the same-strike roll pays the most.
	require.Len(t, res.Candidates, 2)
	best := res.Candidates[0]
	require.NotNil(t, best.Quote)
	assert.InDelta(t, 100.0, best.Quote.Strike, 1e-9)
	assert.InDelta(t, 2.0, best.NetCredit, 1e-9)
	assert.InDelta(t, 2.0, best.CapitalROI, 1e-9, "net credit over the current strike")
	assert.Equal(t, "Roll Up (+$5)", res.Candidates[1].Label)
	assert.InDelta(t, 0.8, res.Candidates[1].NetCredit, 1e-9)
}

func TestEvaluateToleratesMissingSpot(t *testing.T) {
	expiry := time.Now().UTC().AddDate(0, 0, 37)
	p := &fakeProvider{
		expirations: []string{expiry.Format(models.ExpiryFormat)},
		strikes:     []float64{100, 105},
		spot:        nil, // stock quote never resolves
		quotes: map[float64]fakeQuote{
			100: {mark: 3.00, delta: 0.30},
			105: {mark: 2.50, delta: 0.12},
		},
	}

	f := newTestFinder(p)
	ev := f.Evaluate(context.Background(), callPosition(10, models.Float(1.0), models.Float(0.25)))

	require.Equal(t, models.OutcomeFound, ev.Outcome)
	assert.Nil(t, ev.Result.Spot)
	assert.NotEmpty(t, ev.Result.Candidates)
}
