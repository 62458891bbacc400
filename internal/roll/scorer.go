package roll

import (
	"fmt"
	"math"

	"github.com/eddiefleurent/wheelhouse/internal/models"
)

// daysPerYear is the annualization basis for capital ROI.
const daysPerYear = 365.0

// sameStrikeTolerance is the strike distance (in dollars) under which a
// candidate counts as the same strike as the current position.
const sameStrikeTolerance = 1.0

// Score computes net credit and the profitability metrics for one candidate
// replacement quote against the current position. Missing inputs score as
// zero but stay absent on the candidate, so consumers can render "N/A"
// instead of a silent 0.
func Score(pos *models.Position, q *models.Quote) models.RollCandidate {
	buyback := pos.BuybackCost()
	netCredit := q.Mark - buyback

	var netDelta *float64
	if pos.CurrentDelta != nil && q.Delta != nil {
		netDelta = models.Float(*q.Delta - *pos.CurrentDelta)
	}

	premiumEfficiency := 0.0
	if q.Mark > 0 {
		premiumEfficiency = netCredit / q.Mark * 100
	}

	capitalROI := 0.0
	// The current strike is the capital base for every candidate, keeping
	// roll-up and roll-down candidates comparable to each other and to the
	// position being replaced.
	if pos.Strike > 0 {
		capitalROI = netCredit / pos.Strike * 100
	}

	annualizedROI := 0.0
	if q.DTE > 0 {
		annualizedROI = capitalROI * (daysPerYear / float64(q.DTE))
	}

	return models.RollCandidate{
		Label:             Label(q.Strike, pos.Strike),
		Quote:             q,
		NetCredit:         netCredit,
		NetDelta:          netDelta,
		PremiumEfficiency: premiumEfficiency,
		CapitalROI:        capitalROI,
		AnnualizedROI:     annualizedROI,
	}
}

// Label categorizes a candidate by strike direction relative to the current
// strike. Puts are labeled by strike direction too, not by conservativeness:
// a lower-strike put is "Roll Down" even though it is the safer roll.
func Label(candidateStrike, currentStrike float64) string {
	diff := candidateStrike - currentStrike
	switch {
	case math.Abs(diff) < sameStrikeTolerance:
		return "Same Strike"
	case diff > 0:
		return fmt.Sprintf("Roll Up (+$%.0f)", diff)
	default:
		return fmt.Sprintf("Roll Down (-$%.0f)", -diff)
	}
}
