package process

// Registry holds the fixed transition tables, one per (process type, role).
// Tables are declarative data: states absent from a table's transition map
// have no outgoing edges and are terminal. No transition leaves a terminal
// state, self-transitions included.
type Registry struct {
	tables map[tableKey]transitionTable
}

type tableKey struct {
	Type ProcessType
	Role Role
}

type transitionTable struct {
	initial     State
	transitions map[State][]State
	outcomes    map[State]Outcome
}

// NewRegistry builds the registry with the tables for all supported
// process types. The two roles of each type are asymmetric: the initiator
// drives the hub dialogue while the recipient reacts to notifications.
func NewRegistry() *Registry {
	return &Registry{tables: map[tableKey]transitionTable{
		{TypeSupplierChange, RoleInitiator}: {
			initial: StateCreated,
			transitions: map[State][]State{
				StateCreated:   {StateSubmitted, StateCancelled},
				StateSubmitted: {StateConfirmed, StateRejected, StateCancelled},
				StateConfirmed: {StateActive, StateCancelled},
				StateActive:    {StateCompleted, StateFailed},
			},
			outcomes: map[State]Outcome{
				StateCompleted: OutcomeCompleted,
				StateRejected:  OutcomeRejected,
				StateCancelled: OutcomeCancelled,
				StateFailed:    OutcomeFailed,
			},
		},
		{TypeSupplierChange, RoleRecipient}: {
			initial: StateCreated,
			transitions: map[State][]State{
				StateCreated:      {StateNotified},
				StateNotified:     {StateAcknowledged, StateDisputed},
				StateAcknowledged: {StateSupplyEnded},
				StateDisputed:     {StateAcknowledged, StateFailed},
			},
			outcomes: map[State]Outcome{
				StateSupplyEnded: OutcomeCompleted,
				StateFailed:      OutcomeFailed,
			},
		},
		{TypeMoveIn, RoleInitiator}: {
			initial: StateCreated,
			transitions: map[State][]State{
				StateCreated:   {StateSubmitted, StateCancelled},
				StateSubmitted: {StateApproved, StateRejected, StateCancelled},
				StateApproved:  {StateActive},
				StateActive:    {StateCompleted, StateFailed},
			},
			outcomes: map[State]Outcome{
				StateCompleted: OutcomeCompleted,
				StateRejected:  OutcomeRejected,
				StateCancelled: OutcomeCancelled,
				StateFailed:    OutcomeFailed,
			},
		},
		{TypeMoveIn, RoleRecipient}: {
			initial: StateCreated,
			transitions: map[State][]State{
				StateCreated:  {StateNotified},
				StateNotified: {StateSupplyEnded, StateDisputed},
				StateDisputed: {StateSupplyEnded, StateFailed},
			},
			outcomes: map[State]Outcome{
				StateSupplyEnded: OutcomeCompleted,
				StateFailed:      OutcomeFailed,
			},
		},
		{TypeMoveOut, RoleInitiator}: {
			initial: StateCreated,
			transitions: map[State][]State{
				StateCreated:   {StateSubmitted, StateCancelled},
				StateSubmitted: {StateApproved, StateRejected},
				StateApproved:  {StateSupplyEnded, StateFailed},
			},
			outcomes: map[State]Outcome{
				StateSupplyEnded: OutcomeCompleted,
				StateRejected:    OutcomeRejected,
				StateCancelled:   OutcomeCancelled,
				StateFailed:      OutcomeFailed,
			},
		},
		{TypeMoveOut, RoleRecipient}: {
			initial: StateCreated,
			transitions: map[State][]State{
				StateCreated:  {StateNotified},
				StateNotified: {StateClosed},
			},
			outcomes: map[State]Outcome{
				StateClosed: OutcomeCompleted,
			},
		},
	}}
}

// InitialState returns the entry state for a (type, role) table.
func (r *Registry) InitialState(pt ProcessType, role Role) (State, error) {
	table, ok := r.tables[tableKey{pt, role}]
	if !ok {
		return "", ErrUnknownTable
	}
	return table.initial, nil
}

// CanTransition reports whether from→to is a legal edge.
func (r *Registry) CanTransition(pt ProcessType, role Role, from, to State) bool {
	table, ok := r.tables[tableKey{pt, role}]
	if !ok {
		return false
	}
	for _, next := range table.transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidTransitions returns the legal next states out of from. Terminal
// states return an empty slice.
func (r *Registry) ValidTransitions(pt ProcessType, role Role, from State) []State {
	table, ok := r.tables[tableKey{pt, role}]
	if !ok {
		return nil
	}
	next := table.transitions[from]
	out := make([]State, len(next))
	copy(out, next)
	return out
}

// IsTerminal reports whether the state has no outgoing transitions.
func (r *Registry) IsTerminal(pt ProcessType, role Role, s State) bool {
	table, ok := r.tables[tableKey{pt, role}]
	if !ok {
		return false
	}
	_, hasOutgoing := table.transitions[s]
	return !hasOutgoing
}

// OutcomeFor maps a terminal state to its outcome classification.
func (r *Registry) OutcomeFor(pt ProcessType, role Role, s State) (Outcome, bool) {
	table, ok := r.tables[tableKey{pt, role}]
	if !ok {
		return "", false
	}
	outcome, ok := table.outcomes[s]
	return outcome, ok
}

// Types returns the registered (type, role) pairs, for exhaustive checks.
func (r *Registry) Types() []struct {
	Type ProcessType
	Role Role
} {
	out := make([]struct {
		Type ProcessType
		Role Role
	}, 0, len(r.tables))
	for key := range r.tables {
		out = append(out, struct {
			Type ProcessType
			Role Role
		}{key.Type, key.Role})
	}
	return out
}

// States returns every state mentioned by a table, either as an edge
// source or target.
func (r *Registry) States(pt ProcessType, role Role) []State {
	table, ok := r.tables[tableKey{pt, role}]
	if !ok {
		return nil
	}
	seen := map[State]bool{table.initial: true}
	for from, targets := range table.transitions {
		seen[from] = true
		for _, to := range targets {
			seen[to] = true
		}
	}
	states := make([]State, 0, len(seen))
	for s := range seen {
		states = append(states, s)
	}
	return states
}
