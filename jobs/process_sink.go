package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gridline-energy/gridline/internal/process"
)

// SettlementEnqueuer schedules settlement runs.
type SettlementEnqueuer interface {
	EnqueueSettlementCalculate(ctx context.Context, payload SettlementCalculatePayload) (*asynq.TaskInfo, error)
}

// NewSettlementTrigger returns a transition sink that enqueues a
// settlement run when a process completes with responsibility for the
// metering point. The settlement period is the calendar month containing
// the effective date; supply ids follow the metering point.
func NewSettlementTrigger(client SettlementEnqueuer, logger *slog.Logger) process.EventSink {
	return func(ctx context.Context, evt process.TransitionEvent) {
		if !evt.Terminal || evt.Outcome == nil || *evt.Outcome != process.OutcomeCompleted {
			return
		}
		if evt.Role != process.RoleInitiator {
			return
		}
		start := time.Date(evt.EffectiveDate.Year(), evt.EffectiveDate.Month(), 1, 0, 0, 0, 0, time.UTC)
		payload := SettlementCalculatePayload{
			MeteringPointID: evt.MeteringPointID,
			SupplyID:        evt.MeteringPointID,
			PeriodStart:     start,
			PeriodEnd:       start.AddDate(0, 1, 0),
		}
		if _, err := client.EnqueueSettlementCalculate(ctx, payload); err != nil {
			logger.Error("enqueue settlement run",
				slog.String("process_id", evt.ProcessID.String()),
				slog.String("metering_point", evt.MeteringPointID),
				slog.Any("error", err))
			return
		}
		logger.Info("settlement run scheduled",
			slog.String("process_id", evt.ProcessID.String()),
			slog.String("metering_point", evt.MeteringPointID))
	}
}
