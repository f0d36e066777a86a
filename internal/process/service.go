package process

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Repository persists process instances and their transition history.
// ApplyTransition must perform the state update conditionally on the
// expected previous state and append the transition record in the same
// transaction, returning ErrTransitionConflict when the conditional
// update matches no row.
type Repository interface {
	Insert(ctx context.Context, instance ProcessInstance) error
	Get(ctx context.Context, id uuid.UUID) (ProcessInstance, error)
	List(ctx context.Context, filter ListFilter) ([]ProcessInstance, int, error)
	ApplyTransition(ctx context.Context, input ApplyTransitionInput) (ProcessInstance, error)
	Transitions(ctx context.Context, processID uuid.UUID) ([]TransitionRecord, error)
}

// ListFilter narrows process listings.
type ListFilter struct {
	Type            ProcessType
	MeteringPointID string
	ActiveOnly      bool
	Page            int
	PerPage         int
}

// ApplyTransitionInput carries one validated transition to the store.
type ApplyTransitionInput struct {
	ProcessID   uuid.UUID
	From        State
	To          State
	At          time.Time
	TriggerRef  *uuid.UUID
	CompletedAt *time.Time
	Outcome     *Outcome
}

// CreateInput describes a new process instance.
type CreateInput struct {
	Type            ProcessType
	Role            Role
	CorrelationID   string
	MeteringPointID string
	EffectiveDate   time.Time
}

// EventSink receives transition facts after they are committed.
type EventSink func(ctx context.Context, evt TransitionEvent)

// Manager owns process instance lifecycles. All state changes go through
// Advance; nothing else mutates an instance.
type Manager struct {
	repo     Repository
	registry *Registry
	logger   *slog.Logger
	now      func() time.Time
	sinks    []EventSink
}

// NewManager constructs a Manager.
func NewManager(repo Repository, registry *Registry, logger *slog.Logger) *Manager {
	return &Manager{repo: repo, registry: registry, logger: logger, now: time.Now}
}

// Subscribe registers a sink for transition events. Sinks run synchronously
// after the transition commits; registration is not safe once Advance is
// being called concurrently, so wire sinks during startup.
func (m *Manager) Subscribe(sink EventSink) {
	if sink != nil {
		m.sinks = append(m.sinks, sink)
	}
}

// Create starts a new process instance in its table's initial state.
func (m *Manager) Create(ctx context.Context, input CreateInput) (ProcessInstance, error) {
	initial, err := m.registry.InitialState(input.Type, input.Role)
	if err != nil {
		return ProcessInstance{}, err
	}
	instance := ProcessInstance{
		ID:              uuid.New(),
		Type:            input.Type,
		Role:            input.Role,
		CurrentState:    initial,
		CorrelationID:   input.CorrelationID,
		MeteringPointID: input.MeteringPointID,
		EffectiveDate:   input.EffectiveDate,
		StartedAt:       m.now(),
	}
	if err := m.repo.Insert(ctx, instance); err != nil {
		return ProcessInstance{}, err
	}
	m.logger.Info("process created",
		slog.String("process_id", instance.ID.String()),
		slog.String("type", string(instance.Type)),
		slog.String("role", string(instance.Role)),
		slog.String("metering_point", instance.MeteringPointID))
	return instance, nil
}

// Advance applies one validated transition. The registry decides legality,
// the repository enforces atomicity via a conditional update keyed on the
// previous state, and subscribers are notified after the commit.
func (m *Manager) Advance(ctx context.Context, processID uuid.UUID, target State, triggerRef *uuid.UUID) (ProcessInstance, error) {
	instance, err := m.repo.Get(ctx, processID)
	if err != nil {
		return ProcessInstance{}, err
	}
	if m.registry.IsTerminal(instance.Type, instance.Role, instance.CurrentState) {
		return ProcessInstance{}, ErrProcessTerminal
	}
	if !m.registry.CanTransition(instance.Type, instance.Role, instance.CurrentState, target) {
		return ProcessInstance{}, ErrInvalidTransition
	}

	now := m.now()
	input := ApplyTransitionInput{
		ProcessID:  processID,
		From:       instance.CurrentState,
		To:         target,
		At:         now,
		TriggerRef: triggerRef,
	}
	terminal := m.registry.IsTerminal(instance.Type, instance.Role, target)
	if terminal {
		input.CompletedAt = &now
		if outcome, ok := m.registry.OutcomeFor(instance.Type, instance.Role, target); ok {
			input.Outcome = &outcome
		}
	}

	updated, err := m.repo.ApplyTransition(ctx, input)
	if err != nil {
		return ProcessInstance{}, err
	}

	evt := TransitionEvent{
		ProcessID:       processID,
		Type:            instance.Type,
		Role:            instance.Role,
		MeteringPointID: instance.MeteringPointID,
		EffectiveDate:   instance.EffectiveDate,
		From:            input.From,
		To:              target,
		Terminal:        terminal,
		Outcome:         input.Outcome,
		At:              now,
	}
	for _, sink := range m.sinks {
		sink(ctx, evt)
	}
	m.logger.Info("process transitioned",
		slog.String("process_id", processID.String()),
		slog.String("from", string(evt.From)),
		slog.String("to", string(evt.To)),
		slog.Bool("terminal", terminal))
	return updated, nil
}

// IsComplete reports whether the process reached a terminal state.
func (m *Manager) IsComplete(ctx context.Context, processID uuid.UUID) (bool, error) {
	instance, err := m.repo.Get(ctx, processID)
	if err != nil {
		return false, err
	}
	return m.registry.IsTerminal(instance.Type, instance.Role, instance.CurrentState), nil
}

// Get returns a process instance.
func (m *Manager) Get(ctx context.Context, processID uuid.UUID) (ProcessInstance, error) {
	return m.repo.Get(ctx, processID)
}

// History returns the transition audit trail for a process.
func (m *Manager) History(ctx context.Context, processID uuid.UUID) ([]TransitionRecord, error) {
	if _, err := m.repo.Get(ctx, processID); err != nil {
		return nil, err
	}
	return m.repo.Transitions(ctx, processID)
}

// List returns process instances matching the filter plus a total count.
func (m *Manager) List(ctx context.Context, filter ListFilter) ([]ProcessInstance, int, error) {
	return m.repo.List(ctx, filter)
}
