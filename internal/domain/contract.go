package domain

import "time"

// Visibility controls whether a contract appears in public listings and
// ranked aggregates.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
)

// OutcomeType is a closed variant over the supported market mechanisms.
// Exactly three types implement it: Binary, Numeric, and FreeResponse.
// Callers switch on the concrete type; the unexported marker method keeps
// the set closed to this package.
type OutcomeType interface {
	outcomeType()
}

// Binary is a two-sided YES/NO market priced by a single pool.
type Binary struct{}

// Numeric is a bucketed numeric market: the range [Min, Max] is partitioned
// into Buckets mutually exclusive answers.
type Numeric struct {
	Min     float64
	Max     float64
	Buckets int
}

// FreeResponse is a multi-outcome market whose answers are user-submitted.
type FreeResponse struct{}

func (Binary) outcomeType()       {}
func (Numeric) outcomeType()      {}
func (FreeResponse) outcomeType() {}

// Resolution records how a contract resolved. For binary contracts Outcome
// is set; for multi-outcome contracts AnswerID names the winning answer.
// NumericValue, when non-nil, is the resolved value of a numeric market and
// determines the winning bucket.
type Resolution struct {
	Outcome      Outcome
	AnswerID     string
	NumericValue *float64
	ResolvedAt   time.Time
}

// Contract is one market on the venue. Pool state is mutated exclusively by
// committing engine results; the struct itself is treated as a snapshot.
type Contract struct {
	ID          string
	Slug        string
	Question    string
	Description string
	CreatorID   string

	OutcomeType OutcomeType
	Pool        Pool     // binary contracts
	Answers     []Answer // multi-outcome contracts, in insertion order

	Visibility Visibility
	Ranked     bool // eligible for competitive scoring aggregates

	// CreatorFeeRate is the proportional fee levied on positive sale profit,
	// paid to the contract creator.
	CreatorFeeRate float64

	Ante       float64
	Resolved   bool
	Resolution *Resolution

	CloseTime time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Open reports whether the contract still accepts trades.
func (c Contract) Open() bool {
	return !c.Resolved && (c.CloseTime.IsZero() || time.Now().Before(c.CloseTime))
}

// Answer looks up an answer by id. The second return is false when the id is
// not part of this contract.
func (c Contract) Answer(id string) (Answer, bool) {
	for _, a := range c.Answers {
		if a.ID == id {
			return a, true
		}
	}
	return Answer{}, false
}
