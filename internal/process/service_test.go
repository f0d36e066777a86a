package process

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memoryProcessRepo struct {
	instances   map[uuid.UUID]ProcessInstance
	transitions map[uuid.UUID][]TransitionRecord
	nextRecID   int64
	// conflictOnce simulates a concurrent writer stealing the first
	// conditional update.
	conflictOnce bool
}

func newMemoryProcessRepo() *memoryProcessRepo {
	return &memoryProcessRepo{
		instances:   make(map[uuid.UUID]ProcessInstance),
		transitions: make(map[uuid.UUID][]TransitionRecord),
	}
}

func (r *memoryProcessRepo) Insert(ctx context.Context, p ProcessInstance) error {
	r.instances[p.ID] = p
	return nil
}

func (r *memoryProcessRepo) Get(ctx context.Context, id uuid.UUID) (ProcessInstance, error) {
	p, ok := r.instances[id]
	if !ok {
		return ProcessInstance{}, ErrProcessNotFound
	}
	return p, nil
}

func (r *memoryProcessRepo) List(ctx context.Context, filter ListFilter) ([]ProcessInstance, int, error) {
	var out []ProcessInstance
	for _, p := range r.instances {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (r *memoryProcessRepo) ApplyTransition(ctx context.Context, input ApplyTransitionInput) (ProcessInstance, error) {
	p, ok := r.instances[input.ProcessID]
	if !ok {
		return ProcessInstance{}, ErrProcessNotFound
	}
	if r.conflictOnce {
		r.conflictOnce = false
		return ProcessInstance{}, ErrTransitionConflict
	}
	if p.CurrentState != input.From {
		return ProcessInstance{}, ErrTransitionConflict
	}
	p.CurrentState = input.To
	p.CompletedAt = input.CompletedAt
	p.Outcome = input.Outcome
	r.instances[p.ID] = p
	r.nextRecID++
	r.transitions[p.ID] = append(r.transitions[p.ID], TransitionRecord{
		ID:         r.nextRecID,
		ProcessID:  p.ID,
		FromState:  input.From,
		ToState:    input.To,
		At:         input.At,
		TriggerRef: input.TriggerRef,
	})
	return p, nil
}

func (r *memoryProcessRepo) Transitions(ctx context.Context, processID uuid.UUID) ([]TransitionRecord, error) {
	return r.transitions[processID], nil
}

func newTestManager(repo Repository) *Manager {
	return NewManager(repo, NewRegistry(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreateStartsAtInitialState(t *testing.T) {
	repo := newMemoryProcessRepo()
	mgr := newTestManager(repo)

	p, err := mgr.Create(context.Background(), CreateInput{
		Type:            TypeSupplierChange,
		Role:            RoleInitiator,
		CorrelationID:   "DK-2026-000123",
		MeteringPointID: "571313100000012345",
		EffectiveDate:   time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, StateCreated, p.CurrentState)
	require.Nil(t, p.Outcome)

	complete, err := mgr.IsComplete(context.Background(), p.ID)
	require.NoError(t, err)
	require.False(t, complete)
}

func TestAdvanceFullSupplierChange(t *testing.T) {
	repo := newMemoryProcessRepo()
	mgr := newTestManager(repo)
	ctx := context.Background()

	var events []TransitionEvent
	mgr.Subscribe(func(ctx context.Context, evt TransitionEvent) {
		events = append(events, evt)
	})

	p, err := mgr.Create(ctx, CreateInput{Type: TypeSupplierChange, Role: RoleInitiator, MeteringPointID: "571313100000012345"})
	require.NoError(t, err)

	for _, target := range []State{StateSubmitted, StateConfirmed, StateActive, StateCompleted} {
		p, err = mgr.Advance(ctx, p.ID, target, nil)
		require.NoError(t, err)
		require.Equal(t, target, p.CurrentState)
	}

	require.NotNil(t, p.CompletedAt)
	require.NotNil(t, p.Outcome)
	require.Equal(t, OutcomeCompleted, *p.Outcome)

	complete, err := mgr.IsComplete(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, complete)

	history, err := mgr.History(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	require.Equal(t, StateCreated, history[0].FromState)
	require.Equal(t, StateCompleted, history[3].ToState)

	require.Len(t, events, 4)
	require.True(t, events[3].Terminal)
	require.Equal(t, OutcomeCompleted, *events[3].Outcome)
}

func TestAdvanceRejectsIllegalJump(t *testing.T) {
	repo := newMemoryProcessRepo()
	mgr := newTestManager(repo)
	ctx := context.Background()

	p, err := mgr.Create(ctx, CreateInput{Type: TypeSupplierChange, Role: RoleInitiator})
	require.NoError(t, err)
	_, err = mgr.Advance(ctx, p.ID, StateSubmitted, nil)
	require.NoError(t, err)

	// Submitted -> Active skips confirmation.
	_, err = mgr.Advance(ctx, p.ID, StateActive, nil)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAdvanceAfterTerminalFails(t *testing.T) {
	repo := newMemoryProcessRepo()
	mgr := newTestManager(repo)
	ctx := context.Background()

	p, err := mgr.Create(ctx, CreateInput{Type: TypeSupplierChange, Role: RoleInitiator})
	require.NoError(t, err)
	_, err = mgr.Advance(ctx, p.ID, StateCancelled, nil)
	require.NoError(t, err)

	_, err = mgr.Advance(ctx, p.ID, StateSubmitted, nil)
	require.ErrorIs(t, err, ErrProcessTerminal)
	// Self-transition is equally illegal.
	_, err = mgr.Advance(ctx, p.ID, StateCancelled, nil)
	require.ErrorIs(t, err, ErrProcessTerminal)
}

func TestAdvanceSurfacesLostRace(t *testing.T) {
	repo := newMemoryProcessRepo()
	mgr := newTestManager(repo)
	ctx := context.Background()

	p, err := mgr.Create(ctx, CreateInput{Type: TypeMoveIn, Role: RoleInitiator})
	require.NoError(t, err)

	repo.conflictOnce = true
	_, err = mgr.Advance(ctx, p.ID, StateSubmitted, nil)
	require.ErrorIs(t, err, ErrTransitionConflict)

	// Re-read and retry succeeds.
	_, err = mgr.Advance(ctx, p.ID, StateSubmitted, nil)
	require.NoError(t, err)
}

func TestAdvanceUnknownProcess(t *testing.T) {
	mgr := newTestManager(newMemoryProcessRepo())
	_, err := mgr.Advance(context.Background(), uuid.New(), StateSubmitted, nil)
	require.ErrorIs(t, err, ErrProcessNotFound)
}

func TestTriggerRefRecorded(t *testing.T) {
	repo := newMemoryProcessRepo()
	mgr := newTestManager(repo)
	ctx := context.Background()

	p, err := mgr.Create(ctx, CreateInput{Type: TypeMoveOut, Role: RoleRecipient})
	require.NoError(t, err)

	ref := uuid.New()
	_, err = mgr.Advance(ctx, p.ID, StateNotified, &ref)
	require.NoError(t, err)

	history, err := mgr.History(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].TriggerRef)
	require.Equal(t, ref, *history[0].TriggerRef)
}
