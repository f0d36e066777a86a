package process

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gridline-energy/gridline/internal/exchange/inbox"
	"github.com/gridline-energy/gridline/internal/shared"
)

func hubReply(t *testing.T, docType string, pt ProcessType, processID uuid.UUID) inbox.Message {
	t.Helper()
	payload, err := json.Marshal(transitionDocument{ProcessID: processID.String()})
	require.NoError(t, err)
	return inbox.Message{
		ID:              uuid.New(),
		ExternalID:      "MSG-HUB-001",
		DocumentType:    docType,
		BusinessProcess: string(pt),
		Payload:         payload,
		ReceivedAt:      time.Now(),
	}
}

func TestConfirmationDocumentAdvancesProcess(t *testing.T) {
	repo := newMemoryProcessRepo()
	manager := NewManager(repo, NewRegistry(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	reg := inbox.NewRegistry()
	RegisterDocumentHandlers(reg, manager, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx := context.Background()
	instance, err := manager.Create(ctx, CreateInput{
		Type:            TypeSupplierChange,
		Role:            RoleInitiator,
		MeteringPointID: "571313100000012345",
		EffectiveDate:   time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	_, err = manager.Advance(ctx, instance.ID, StateSubmitted, nil)
	require.NoError(t, err)

	handler, ok := reg.Lookup(DocConfirmation, string(TypeSupplierChange))
	require.True(t, ok)
	msg := hubReply(t, DocConfirmation, TypeSupplierChange, instance.ID)
	require.NoError(t, handler(ctx, msg))

	updated, err := manager.Get(ctx, instance.ID)
	require.NoError(t, err)
	require.Equal(t, StateConfirmed, updated.CurrentState)

	// The transition records the triggering document.
	history, err := manager.History(ctx, instance.ID)
	require.NoError(t, err)
	last := history[len(history)-1]
	require.NotNil(t, last.TriggerRef)
	require.Equal(t, msg.ID, *last.TriggerRef)
}

func TestDocumentAdvanceNotifiesSubscribers(t *testing.T) {
	repo := newMemoryProcessRepo()
	manager := NewManager(repo, NewRegistry(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	var events []TransitionEvent
	manager.Subscribe(func(ctx context.Context, evt TransitionEvent) {
		events = append(events, evt)
	})
	reg := inbox.NewRegistry()
	RegisterDocumentHandlers(reg, manager, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx := context.Background()
	instance, err := manager.Create(ctx, CreateInput{
		Type:            TypeSupplierChange,
		Role:            RoleInitiator,
		MeteringPointID: "571313100000012345",
		EffectiveDate:   time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	_, err = manager.Advance(ctx, instance.ID, StateSubmitted, nil)
	require.NoError(t, err)

	// Document-driven advances reach subscribed sinks the same way
	// HTTP-driven ones do; the worker relies on this for retried hub
	// replies landing through the inbox sweep.
	handler, ok := reg.Lookup(DocConfirmation, string(TypeSupplierChange))
	require.True(t, ok)
	require.NoError(t, handler(ctx, hubReply(t, DocConfirmation, TypeSupplierChange, instance.ID)))

	require.Len(t, events, 2)
	last := events[len(events)-1]
	require.Equal(t, instance.ID, last.ProcessID)
	require.Equal(t, StateConfirmed, last.To)
}

func TestRejectionDocumentTerminatesProcess(t *testing.T) {
	repo := newMemoryProcessRepo()
	manager := NewManager(repo, NewRegistry(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	reg := inbox.NewRegistry()
	RegisterDocumentHandlers(reg, manager, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx := context.Background()
	instance, err := manager.Create(ctx, CreateInput{
		Type:            TypeMoveIn,
		Role:            RoleInitiator,
		MeteringPointID: "571313100000012345",
		EffectiveDate:   time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	_, err = manager.Advance(ctx, instance.ID, StateSubmitted, nil)
	require.NoError(t, err)

	handler, ok := reg.Lookup(DocRejection, string(TypeMoveIn))
	require.True(t, ok)
	require.NoError(t, handler(ctx, hubReply(t, DocRejection, TypeMoveIn, instance.ID)))

	updated, err := manager.Get(ctx, instance.ID)
	require.NoError(t, err)
	require.Equal(t, StateRejected, updated.CurrentState)
	require.NotNil(t, updated.Outcome)
	require.Equal(t, OutcomeRejected, *updated.Outcome)
}

func TestDocumentHandlerRejectsGarbagePayload(t *testing.T) {
	repo := newMemoryProcessRepo()
	manager := NewManager(repo, NewRegistry(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	reg := inbox.NewRegistry()
	RegisterDocumentHandlers(reg, manager, slog.New(slog.NewTextHandler(io.Discard, nil)))

	handler, ok := reg.Lookup(DocConfirmation, string(TypeSupplierChange))
	require.True(t, ok)

	msg := hubReply(t, DocConfirmation, TypeSupplierChange, uuid.New())
	msg.Payload = []byte(`{"process_id":"not-a-uuid"}`)
	err := handler(context.Background(), msg)
	require.ErrorIs(t, err, shared.ErrPermanent)
}

func TestDocumentHandlerSurfacesIllegalTransition(t *testing.T) {
	repo := newMemoryProcessRepo()
	manager := NewManager(repo, NewRegistry(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	reg := inbox.NewRegistry()
	RegisterDocumentHandlers(reg, manager, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx := context.Background()
	// Still in Created: a confirmation is premature.
	instance, err := manager.Create(ctx, CreateInput{
		Type:            TypeSupplierChange,
		Role:            RoleInitiator,
		MeteringPointID: "571313100000012345",
		EffectiveDate:   time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	handler, _ := reg.Lookup(DocConfirmation, string(TypeSupplierChange))
	err = handler(ctx, hubReply(t, DocConfirmation, TypeSupplierChange, instance.ID))
	require.ErrorIs(t, err, ErrInvalidTransition)
}
