package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/gridline-energy/gridline/internal/process"
)

type capturingEnqueuer struct {
	payloads []SettlementCalculatePayload
}

func (c *capturingEnqueuer) EnqueueSettlementCalculate(ctx context.Context, payload SettlementCalculatePayload) (*asynq.TaskInfo, error) {
	c.payloads = append(c.payloads, payload)
	return &asynq.TaskInfo{}, nil
}

func completedEvent() process.TransitionEvent {
	outcome := process.OutcomeCompleted
	return process.TransitionEvent{
		ProcessID:       uuid.New(),
		Type:            process.TypeSupplierChange,
		Role:            process.RoleInitiator,
		MeteringPointID: "571313100000012345",
		EffectiveDate:   time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC),
		From:            process.StateActive,
		To:              process.StateCompleted,
		Terminal:        true,
		Outcome:         &outcome,
		At:              time.Now(),
	}
}

func TestSettlementTriggerSchedulesRunForEffectiveMonth(t *testing.T) {
	enqueuer := &capturingEnqueuer{}
	sink := NewSettlementTrigger(enqueuer, slog.New(slog.NewTextHandler(io.Discard, nil)))

	sink(context.Background(), completedEvent())

	require.Len(t, enqueuer.payloads, 1)
	payload := enqueuer.payloads[0]
	require.Equal(t, "571313100000012345", payload.MeteringPointID)
	require.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), payload.PeriodStart)
	require.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), payload.PeriodEnd)
}

func TestSettlementTriggerIgnoresNonTerminalTransitions(t *testing.T) {
	enqueuer := &capturingEnqueuer{}
	sink := NewSettlementTrigger(enqueuer, slog.New(slog.NewTextHandler(io.Discard, nil)))

	evt := completedEvent()
	evt.Terminal = false
	evt.Outcome = nil
	evt.To = process.StateActive
	sink(context.Background(), evt)

	require.Empty(t, enqueuer.payloads)
}

func TestSettlementTriggerIgnoresRecipientSide(t *testing.T) {
	enqueuer := &capturingEnqueuer{}
	sink := NewSettlementTrigger(enqueuer, slog.New(slog.NewTextHandler(io.Discard, nil)))

	evt := completedEvent()
	evt.Role = process.RoleRecipient
	sink(context.Background(), evt)

	require.Empty(t, enqueuer.payloads)
}

func TestSettlementTriggerIgnoresCancelledOutcome(t *testing.T) {
	enqueuer := &capturingEnqueuer{}
	sink := NewSettlementTrigger(enqueuer, slog.New(slog.NewTextHandler(io.Discard, nil)))

	evt := completedEvent()
	cancelled := process.OutcomeCancelled
	evt.Outcome = &cancelled
	evt.To = process.StateCancelled
	sink(context.Background(), evt)

	require.Empty(t, enqueuer.payloads)
}
