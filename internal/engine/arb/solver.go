// Package arb extends single-outcome pricing to many simultaneous, mutually
// exclusive answers of one contract. Given a stake and the subset of answers
// the buyer wants YES exposure to, it computes per-answer fills that keep the
// implied probabilities internally consistent: the stake is routed in small
// quanta to the cheapest eligible answer, each answer is repriced immediately
// after every fill, and resting limit orders are consumed before AMM
// liquidity. The solver is pure: it consumes snapshots of answers, orders,
// and balances, and returns proposed state for the caller to commit.
package arb

import (
	"math"

	"github.com/marketfold/venue/internal/domain"
	"github.com/marketfold/venue/internal/engine/cpmm"
)

const (
	// quantumSteps divides the stake into fill quanta. Smaller quanta track
	// the marginal-cost frontier more closely at the cost of more pool
	// updates; 100 keeps allocation error well under other rounding.
	quantumSteps = 100

	epsilon = 1e-9
)

// Candidate is an answer eligible for the next fill quantum, as seen by an
// Ordering.
type Candidate struct {
	AnswerID    string
	Index       int
	Probability float64
}

// Ordering picks which of two candidates to fill first. The ordering and its
// tie-break are a policy choice pinned by reference tests, not a derived
// quantity.
type Ordering func(a, b Candidate) bool

// CheapestFirst fills the lowest-priced answer first, breaking ties by
// answer insertion order.
func CheapestFirst(a, b Candidate) bool {
	if a.Probability != b.Probability {
		return a.Probability < b.Probability
	}
	return a.Index < b.Index
}

// Config holds solver policy parameters.
type Config struct {
	// MaxProbability is the fill ceiling: once every chosen answer's implied
	// probability is at or above it, further stake cannot be absorbed and
	// the solve fails with ErrInsufficientLiquidity.
	MaxProbability float64

	// Ordering decides the fill sequence; nil means CheapestFirst.
	Ordering Ordering
}

// DefaultConfig returns the production solver policy.
func DefaultConfig() Config {
	return Config{
		MaxProbability: 0.99,
		Ordering:       CheapestFirst,
	}
}

// Fill is the complete result of buying into one answer.
type Fill struct {
	AnswerID string

	Stake  float64 // total stake routed to this answer
	Shares float64 // taker shares plus AMM shares

	Takers    []domain.Taker
	AMMStake  float64
	AMMShares float64

	ProbBefore     float64
	NewPool        domain.Pool
	NewProbability float64
}

// Result is the full proposed state change of one multi-outcome buy.
type Result struct {
	Fills []Fill

	// UpdatedAnswers holds every answer of the contract with fresh pools
	// and probabilities, for atomic persistence by the caller.
	UpdatedAnswers []domain.Answer

	// OrderUpdates carries the new remaining size and status of every
	// resting order the solve matched against.
	OrderUpdates []domain.LimitOrder
}

// answerState tracks one answer's pool and accumulated fill while solving.
type answerState struct {
	answer domain.Answer
	pool   domain.Pool
	prob   float64
	chosen bool

	stake     float64
	ammStake  float64
	ammShares float64
	takers    map[string]*domain.Taker // by order id
	orders    []*orderState
}

// orderState tracks a resting order's remaining maker commitment.
type orderState struct {
	order     domain.LimitOrder
	remaining float64
	matched   bool
}

// Solve allocates stake across the chosen answers. Zero chosen answers or a
// zero stake is a no-op returning an empty fill set. Stake that cannot be
// absorbed before every chosen answer reaches the probability ceiling is
// reported as domain.ErrInsufficientLiquidity, never silently clipped.
func Solve(
	answers []domain.Answer,
	chosenIDs []string,
	stake float64,
	orders []domain.LimitOrder,
	balances domain.BalanceSnapshot,
	cfg Config,
) (Result, error) {
	if math.IsNaN(stake) || math.IsInf(stake, 0) {
		return Result{}, domain.Validation("stake", stake, "must be finite")
	}
	if stake < 0 {
		return Result{}, domain.Validation("stake", stake, "must be non-negative")
	}
	if cfg.Ordering == nil {
		cfg.Ordering = CheapestFirst
	}
	if cfg.MaxProbability <= 0 || cfg.MaxProbability > 1 {
		cfg.MaxProbability = DefaultConfig().MaxProbability
	}

	chosen := make(map[string]bool, len(chosenIDs))
	for _, id := range chosenIDs {
		chosen[id] = true
	}

	states := make([]*answerState, 0, len(answers))
	byID := make(map[string]*answerState, len(answers))
	for _, a := range answers {
		st := &answerState{
			answer: a,
			pool:   a.Pool,
			prob:   cpmm.Probability(a.Pool),
			chosen: chosen[a.ID],
			takers: map[string]*domain.Taker{},
		}
		if st.chosen && !a.Pool.Valid() {
			return Result{}, domain.Validation("pool", a.Pool.Yes, "answer pool reserves must be finite and positive")
		}
		states = append(states, st)
		byID[a.ID] = st
	}
	for id := range chosen {
		if _, ok := byID[id]; !ok {
			return Result{}, domain.Validation("answerId", 0, "unknown answer "+id)
		}
	}

	if stake == 0 || len(chosenIDs) == 0 {
		return Result{Fills: nil, UpdatedAnswers: answers}, nil
	}

	// Remaining balances bound maker commitments across all of a user's
	// orders within this solve.
	balanceLeft := make(map[string]float64, len(balances))
	for id, b := range balances {
		balanceLeft[id] = b
	}
	attachOrders(states, byID, orders, balanceLeft)

	quantum := stake / quantumSteps
	remaining := stake
	for remaining > epsilon {
		st := next(states, cfg.Ordering)
		if st == nil || st.prob >= cfg.MaxProbability {
			return Result{}, domain.ErrInsufficientLiquidity
		}

		step := math.Min(quantum, remaining)
		spent, err := fillQuantum(st, step, balanceLeft)
		if err != nil {
			return Result{}, err
		}
		remaining -= spent
	}

	return assemble(states)
}

// attachOrders distributes open resting orders onto their answers in
// original placement order. Only orders backing the NO side offer YES
// exposure to the buyer. Orders whose owner's balance cannot cover the full
// remaining commitment are skipped outright rather than partially filled.
func attachOrders(states []*answerState, byID map[string]*answerState, orders []domain.LimitOrder, balanceLeft map[string]float64) {
	for _, o := range orders {
		st, ok := byID[o.AnswerID]
		if !ok || !st.chosen {
			continue
		}
		if !o.Open() || o.Outcome != domain.OutcomeNo {
			continue
		}
		if balanceLeft[o.UserID]+epsilon < o.Remaining {
			continue
		}
		st.orders = append(st.orders, &orderState{order: o, remaining: o.Remaining})
	}
}

// next returns the chosen answer the ordering ranks first, or nil when no
// chosen answer remains below the probability ceiling.
func next(states []*answerState, less Ordering) *answerState {
	var best *answerState
	for _, st := range states {
		if !st.chosen {
			continue
		}
		if best == nil || less(candidate(st), candidate(best)) {
			best = st
		}
	}
	return best
}

func candidate(st *answerState) Candidate {
	return Candidate{AnswerID: st.answer.ID, Index: st.answer.Index, Probability: st.prob}
}

// fillQuantum routes one stake quantum into an answer: resting orders first,
// in original order, then the AMM pool for whatever is left. It returns the
// amount actually spent.
func fillQuantum(st *answerState, step float64, balanceLeft map[string]float64) (float64, error) {
	left := step

	for _, os := range st.orders {
		if left <= epsilon {
			break
		}
		if os.remaining <= epsilon {
			continue
		}
		o := os.order
		// A maker order is only a better fill than the AMM while its limit
		// probability does not exceed the current pool price.
		if o.LimitProb > st.prob+epsilon {
			continue
		}
		// Re-check the maker's remaining balance at match time: earlier
		// fills against the same maker's other orders may have consumed
		// it since attach. Same rule as attach, no partial funding.
		if balanceLeft[o.UserID]+epsilon < os.remaining {
			continue
		}

		// Maker covers shares*(1-p); taker pays shares*p. The taker spend
		// this order can absorb is capped by the maker's remaining stake.
		cap := os.remaining * o.LimitProb / (1 - o.LimitProb)
		use := math.Min(left, cap)
		if use <= epsilon {
			continue
		}

		shares := use / o.LimitProb
		cover := shares - use
		if !isFinite(shares) || !isFinite(cover) {
			return 0, &domain.DegeneracyError{Op: "arb: order fill", Value: shares}
		}

		os.remaining -= cover
		os.matched = true
		balanceLeft[o.UserID] -= cover

		tk := st.takers[o.ID]
		if tk == nil {
			tk = &domain.Taker{OrderID: o.ID, UserID: o.UserID}
			st.takers[o.ID] = tk
		}
		tk.Amount += use
		tk.Shares += shares

		st.stake += use
		left -= use
	}

	if left > epsilon {
		res, err := cpmm.Purchase(st.pool, left, domain.OutcomeYes)
		if err != nil {
			return 0, err
		}
		st.pool = res.NewPool
		st.prob = cpmm.Probability(res.NewPool)
		st.ammStake += left
		st.ammShares += res.Shares
		st.stake += left
		left = 0
	}

	return step - left, nil
}

// assemble produces the final fills (in answer insertion order) and the full
// updated answer list.
func assemble(states []*answerState) (Result, error) {
	var res Result
	for _, st := range states {
		a := st.answer
		a.Pool = st.pool
		a.Probability = st.prob
		if !isFinite(a.Probability) {
			return Result{}, &domain.DegeneracyError{Op: "arb: answer probability", Value: a.Probability}
		}
		res.UpdatedAnswers = append(res.UpdatedAnswers, a)

		for _, os := range st.orders {
			if !os.matched {
				continue
			}
			o := os.order
			o.Remaining = os.remaining
			if o.Remaining <= epsilon {
				o.Remaining = 0
				o.Status = domain.OrderStatusFilled
			}
			res.OrderUpdates = append(res.OrderUpdates, o)
		}

		if st.stake <= 0 {
			continue
		}
		fill := Fill{
			AnswerID:       a.ID,
			Stake:          st.stake,
			AMMStake:       st.ammStake,
			AMMShares:      st.ammShares,
			ProbBefore:     cpmm.Probability(st.answer.Pool),
			NewPool:        st.pool,
			NewProbability: st.prob,
		}
		// Takers come out in the order the orders were matched, which is
		// their original placement order.
		for _, os := range st.orders {
			if tk, ok := st.takers[os.order.ID]; ok {
				fill.Takers = append(fill.Takers, *tk)
			}
		}
		fill.Shares = fill.AMMShares
		for _, tk := range fill.Takers {
			fill.Shares += tk.Shares
		}
		res.Fills = append(res.Fills, fill)
	}
	return res, nil
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
