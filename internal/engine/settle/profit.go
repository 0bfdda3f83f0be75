// Package settle evaluates resolved contracts into per-user profit metrics.
// It is pure bookkeeping over bet records: resolution assigns each share a
// terminal value, and a bet's profit is that value times its shares minus
// its stake. Sales already carry negative amounts and shares, so positions
// compose by plain summation. Records with non-finite numbers are skipped
// and reported rather than poisoning the aggregate.
package settle

import (
	"fmt"
	"math"

	"github.com/marketfold/venue/internal/domain"
)

// Policy filters which contracts count toward competitive aggregates.
type Policy struct {
	RequirePublic bool
	RequireRanked bool
	ExcludedIDs   map[string]bool
}

// Eligible reports whether a contract's bets count under this policy.
func (p Policy) Eligible(c domain.Contract) bool {
	if p.RequirePublic && c.Visibility != domain.VisibilityPublic {
		return false
	}
	if p.RequireRanked && !c.Ranked {
		return false
	}
	if p.ExcludedIDs[c.ID] {
		return false
	}
	return true
}

// ProfitMetrics accumulates one user's outcomes across settled bets.
type ProfitMetrics struct {
	UserID   string
	Invested float64 // net stake across buys and sales
	Payout   float64 // terminal value of all shares held
	Profit   float64 // Payout - Invested
	Bets     int
}

// Skipped identifies a bet left out of an aggregate and why.
type Skipped struct {
	ContractID string
	BetID      string
	Reason     string
}

// Report is the outcome of one aggregation pass.
type Report struct {
	Users   map[string]*ProfitMetrics
	Skipped []Skipped
}

// ShareValue returns the terminal per-share value of a bet's position under
// the contract's resolution. Binary contracts pay the resolved side 1 and
// the other 0; multi-outcome and numeric contracts pay 1 per YES share of
// the winning answer and 1 per NO share of every losing answer.
func ShareValue(c domain.Contract, b domain.Bet) (float64, error) {
	if !c.Resolved || c.Resolution == nil {
		return 0, domain.Validation("contract", 0, "not resolved")
	}
	res := *c.Resolution

	switch c.OutcomeType.(type) {
	case domain.Binary:
		if !res.Outcome.Valid() {
			return 0, domain.Validation("resolution", 0, "binary resolution needs an outcome")
		}
		if b.Outcome == res.Outcome {
			return 1, nil
		}
		return 0, nil

	case domain.Numeric, domain.FreeResponse:
		winner := res.AnswerID
		if res.NumericValue != nil {
			id, ok := winningBucket(c, *res.NumericValue)
			if !ok {
				return 0, domain.Validation("resolution", *res.NumericValue, "value outside every bucket")
			}
			winner = id
		}
		if winner == "" {
			return 0, domain.Validation("resolution", 0, "multi-outcome resolution needs a winning answer")
		}
		won := b.AnswerID == winner
		if (won && b.Outcome == domain.OutcomeYes) || (!won && b.Outcome == domain.OutcomeNo) {
			return 1, nil
		}
		return 0, nil
	}
	return 0, domain.Validation("outcomeType", 0, "unknown mechanism")
}

// WinningAnswer returns the id of the answer bucket containing the resolved
// numeric value.
func WinningAnswer(c domain.Contract, v float64) (string, error) {
	id, ok := winningBucket(c, v)
	if !ok {
		return "", domain.Validation("value", v, "outside every bucket")
	}
	return id, nil
}

// winningBucket finds the answer whose range contains the resolved value.
// Ranges are half-open on the high side except the last bucket, which keeps
// its upper bound.
func winningBucket(c domain.Contract, v float64) (string, bool) {
	for i, a := range c.Answers {
		last := i == len(c.Answers)-1
		if v >= a.Range.Lo && (v < a.Range.Hi || (last && v <= a.Range.Hi)) {
			return a.ID, true
		}
	}
	return "", false
}

// BetProfit settles a single bet: terminal share value times shares, minus
// the stake. Non-finite inputs surface as a DegeneracyError.
func BetProfit(c domain.Contract, b domain.Bet) (float64, error) {
	v, err := ShareValue(c, b)
	if err != nil {
		return 0, err
	}
	profit := v*b.Shares - b.Amount
	if math.IsNaN(profit) || math.IsInf(profit, 0) {
		return 0, &domain.DegeneracyError{Op: "settle: bet profit", Value: profit}
	}
	return profit, nil
}

// AggregateProfit settles every bet of every eligible resolved contract into
// per-user metrics. Unresolved or policy-ineligible contracts are ignored;
// individual bets that fail to settle are reported in Skipped and do not
// abort the pass.
func AggregateProfit(contracts []domain.Contract, bets []domain.Bet, p Policy) Report {
	rep := Report{Users: map[string]*ProfitMetrics{}}

	byID := make(map[string]domain.Contract, len(contracts))
	for _, c := range contracts {
		if c.Resolved && p.Eligible(c) {
			byID[c.ID] = c
		}
	}

	for _, b := range bets {
		c, ok := byID[b.ContractID]
		if !ok {
			continue
		}
		v, err := ShareValue(c, b)
		if err != nil {
			rep.Skipped = append(rep.Skipped, Skipped{ContractID: c.ID, BetID: b.ID, Reason: err.Error()})
			continue
		}
		payout := v * b.Shares
		if !finite(payout) || !finite(b.Amount) {
			rep.Skipped = append(rep.Skipped, Skipped{
				ContractID: c.ID,
				BetID:      b.ID,
				Reason:     fmt.Sprintf("non-finite bet values (amount=%v shares=%v)", b.Amount, b.Shares),
			})
			continue
		}

		m := rep.Users[b.UserID]
		if m == nil {
			m = &ProfitMetrics{UserID: b.UserID}
			rep.Users[b.UserID] = m
		}
		m.Invested += b.Amount
		m.Payout += payout
		m.Profit += payout - b.Amount
		m.Bets++
	}
	return rep
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
