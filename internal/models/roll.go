package models

import (
	"math"
	"sort"
	"time"
)

// RollCandidate is one proposed replacement contract scored against the
// position it would replace. Candidates are transient: created by the scorer,
// ranked, displayed, never persisted individually.
type RollCandidate struct {
	Label             string   `json:"label"` // "Same Strike", "Roll Up (+$N)", "Roll Down (-$N)"
	Quote             *Quote   `json:"quote"`
	NetCredit         float64  `json:"net_credit"`
	NetDelta          *float64 `json:"net_delta,omitempty"`
	PremiumEfficiency float64  `json:"premium_efficiency"`
	CapitalROI        float64  `json:"capital_roi"`
	AnnualizedROI     float64  `json:"annualized_roi"`
}

// RollResult bundles everything a consumer needs to act on one position:
// the current position snapshot and the ranked replacement candidates.
type RollResult struct {
	Symbol        string          `json:"symbol"`
	Spot          *float64        `json:"spot,omitempty"`
	CurrentStrike float64         `json:"current_strike"`
	CurrentExpiry time.Time       `json:"current_expiry"`
	CurrentDTE    int             `json:"current_dte"`
	CurrentDelta  *float64        `json:"current_delta,omitempty"`
	BuybackCost   float64         `json:"buyback_cost"`
	EntryCredit   float64         `json:"entry_credit"`
	CurrentPnL    float64         `json:"current_pnl"`
	Contracts     int             `json:"contracts"`
	Right         Right           `json:"right"`
	Candidates    []RollCandidate `json:"candidates"`
}

// SortByCapitalROI orders candidates by descending capital ROI, the default
// consumer ordering.
func (r *RollResult) SortByCapitalROI() {
	sort.SliceStable(r.Candidates, func(i, j int) bool {
		return r.Candidates[i].CapitalROI > r.Candidates[j].CapitalROI
	})
}

// SortByDeltaThenROI orders candidates by closeness of |delta| to the target,
// breaking ties by descending capital ROI. Candidates without a delta sort last.
func (r *RollResult) SortByDeltaThenROI(targetDelta float64) {
	dist := func(c RollCandidate) float64 {
		if c.Quote == nil || c.Quote.Delta == nil {
			return math.MaxFloat64
		}
		return math.Abs(math.Abs(*c.Quote.Delta) - math.Abs(targetDelta))
	}
	sort.SliceStable(r.Candidates, func(i, j int) bool {
		di, dj := dist(r.Candidates[i]), dist(r.Candidates[j])
		if di != dj {
			return di < dj
		}
		return r.Candidates[i].CapitalROI > r.Candidates[j].CapitalROI
	})
}

// Outcome tags the terminal state of evaluating one position. None of these
// abort a batch; each is recovered at single-position granularity.
type Outcome string

const (
	// OutcomeFound means at least one positive-net-credit candidate exists.
	OutcomeFound Outcome = "found"
	// OutcomeNotEligible means DTE is still above the alert threshold.
	OutcomeNotEligible Outcome = "not_eligible"
	// OutcomeSkipExpiring means price data vanished on a near-expiry position (benign).
	OutcomeSkipExpiring Outcome = "skip_expiring"
	// OutcomeMissingData means price data is missing with time still remaining (anomaly).
	OutcomeMissingData Outcome = "missing_data"
	// OutcomeNoExpiry means no replacement expiration satisfies the constraints.
	OutcomeNoExpiry Outcome = "no_expiry"
	// OutcomeNoCandidates means an expiry was found but no candidate clears net credit > 0.
	OutcomeNoCandidates Outcome = "no_candidates"
	// OutcomeProviderError means an unexpected provider failure for this position.
	OutcomeProviderError Outcome = "provider_error"
)

// IsError reports whether the outcome is a reportable anomaly rather than an
// expected terminal state.
func (o Outcome) IsError() bool {
	switch o {
	case OutcomeMissingData, OutcomeNoExpiry, OutcomeProviderError:
		return true
	default:
		return false
	}
}

// Evaluation is the full result of evaluating one position.
type Evaluation struct {
	Outcome Outcome     `json:"outcome"`
	Reason  string      `json:"reason,omitempty"`
	Result  *RollResult `json:"result,omitempty"`
}
