// Package retry implements the consecutive-failure budget that gates
// escalation. It is free of timers and I/O.
package retry

import "fmt"

// DefaultBudget is the number of consecutive failed iterations tolerated
// before escalation.
const DefaultBudget = 5

// Phase classifies a State.
type Phase int

// Phases.
const (
	Healthy Phase = iota
	Degraded
	Escalating
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Escalating:
		return "escalating"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// State is the budget state after an iteration.
type State struct {
	Phase Phase
	// Remaining is the budget left, in [0, Max].
	Remaining int
	// Max is the budget restored by a successful iteration.
	Max int
}

// New returns a Healthy state with the given budget. A non-positive max
// uses DefaultBudget.
func New(max int) State {
	if max <= 0 {
		max = DefaultBudget
	}
	return State{Phase: Healthy, Remaining: max, Max: max}
}

// String implements fmt.Stringer.
func (s State) String() string {
	if s.Phase == Degraded {
		return fmt.Sprintf("degraded(%d)", s.Remaining)
	}
	return s.Phase.String()
}

// Next computes the state after an iteration. escalate is true exactly
// once per exhaustion: on the transition into Escalating.
func Next(s State, ok bool) (next State, escalate bool) {
	if s.Max <= 0 {
		s = New(s.Max)
	}
	if ok {
		return New(s.Max), false
	}
	next = s
	if next.Remaining > 0 {
		next.Remaining--
	}
	if next.Remaining > 0 {
		next.Phase = Degraded
		return next, false
	}
	next.Phase = Escalating
	return next, s.Phase != Escalating
}

// Budget tracks State across iterations. It is not safe for concurrent
// use; the orchestrator owns it.
type Budget struct {
	state State
}

// NewBudget creates a Budget.
func NewBudget(max int) *Budget {
	return &Budget{state: New(max)}
}

// Record applies an iteration outcome and reports whether escalation
// must start now.
func (b *Budget) Record(ok bool) bool {
	var escalate bool
	b.state, escalate = Next(b.state, ok)
	return escalate
}

// State returns the current state.
func (b *Budget) State() State {
	return b.state
}

// Remaining returns the budget left.
func (b *Budget) Remaining() int {
	return b.state.Remaining
}
