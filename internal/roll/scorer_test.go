package roll

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/wheelhouse/internal/models"
)

func TestScoreFormulas(t *testing.T) {
	pos := &models.Position{
		Symbol:       "XYZ",
		Strike:       100,
		Right:        models.RightCall,
		Contracts:    1,
		EntryCredit:  3.0,
		CurrentMark:  models.Float(1.0),
		CurrentDelta: models.Float(0.25),
	}

	q := &models.Quote{
		Symbol: "XYZ",
		Strike: 100,
		Expiry: "20260918",
		Right:  models.RightCall,
		Mark:   3.0,
		Delta:  models.Float(0.30),
		DTE:    30,
	}

	c := Score(pos, q)

	assert.Equal(t, "Same Strike", c.Label)
	assert.InDelta(t, 2.0, c.NetCredit, 1e-9)
	require.NotNil(t, c.NetDelta)
	assert.InDelta(t, 0.05, *c.NetDelta, 1e-9)
	// net / mark * 100 = 2/3 * 100
	assert.InDelta(t, 66.6667, c.PremiumEfficiency, 1e-3)
	// net / current strike * 100 = 2/100 * 100
	assert.InDelta(t, 2.0, c.CapitalROI, 1e-9)
	// capital * 365/DTE = 2.0 * 365/30
	assert.InDelta(t, 24.3333, c.AnnualizedROI, 1e-3)
}

func TestScoreMissingInputs(t *testing.T) {
	tests := []struct {
		name string
		pos  *models.Position
		q    *models.Quote
		want func(t *testing.T, c models.RollCandidate)
	}{
		{
			name: "zero dte skips annualization",
			pos:  &models.Position{Strike: 100, CurrentMark: models.Float(1.0)},
			q:    &models.Quote{Strike: 100, Mark: 3.0, DTE: 0},
			want: func(t *testing.T, c models.RollCandidate) {
				assert.InDelta(t, 2.0, c.CapitalROI, 1e-9)
				assert.Zero(t, c.AnnualizedROI)
			},
		},
		{
			name: "missing deltas leave net delta absent",
			pos:  &models.Position{Strike: 100, CurrentMark: models.Float(1.0)},
			q:    &models.Quote{Strike: 100, Mark: 3.0, DTE: 30},
			want: func(t *testing.T, c models.RollCandidate) {
				assert.Nil(t, c.NetDelta)
			},
		},
		{
			name: "zero mark skips premium efficiency",
			pos:  &models.Position{Strike: 100, CurrentMark: models.Float(1.0)},
			q:    &models.Quote{Strike: 100, Mark: 0, DTE: 30},
			want: func(t *testing.T, c models.RollCandidate) {
				assert.Zero(t, c.PremiumEfficiency)
				assert.InDelta(t, -1.0, c.NetCredit, 1e-9)
			},
		},
		{
			name: "missing position mark scores buyback as zero",
			pos:  &models.Position{Strike: 100},
			q:    &models.Quote{Strike: 100, Mark: 3.0, DTE: 30},
			want: func(t *testing.T, c models.RollCandidate) {
				assert.InDelta(t, 3.0, c.NetCredit, 1e-9)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.want(t, Score(tt.pos, tt.q))
		})
	}
}

func TestLabel(t *testing.T) {
	tests := []struct {
		name      string
		candidate float64
		current   float64
		want      string
	}{
		{"identical", 100, 100, "Same Strike"},
		{"within tolerance", 100.5, 100, "Same Strike"},
		{"roll up", 105, 100, "Roll Up (+$5)"},
		{"roll down", 95, 100, "Roll Down (-$5)"},
		{"large move up", 250, 100, "Roll Up (+$150)"},
		// Puts label by strike direction, not by conservativeness.
		{"put lower strike", 85, 90, "Roll Down (-$5)"},
		{"put higher strike", 95, 90, "Roll Up (+$5)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Label(tt.candidate, tt.current))
		})
	}
}
