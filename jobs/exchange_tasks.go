package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/gridline-energy/gridline/internal/exchange/inbox"
	"github.com/gridline-energy/gridline/internal/exchange/outbox"
	jobmetrics "github.com/gridline-energy/gridline/internal/jobs"
)

// HandleOutboxDispatch builds the handler for the recurring dispatch
// cycle. The scheduler enqueues it on the configured cadence.
func HandleOutboxDispatch(dispatcher *outbox.Dispatcher, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("outbox_dispatch")
		result, err := dispatcher.RunCycle(ctx)
		metrics.AddDispatched("sent", result.Sent)
		metrics.AddDispatched("retried", result.Retried)
		metrics.AddDispatched("dead_lettered", result.DeadLettered)
		if result.DeadLettered > 0 {
			logger.Warn("dispatch cycle dead-lettered messages",
				slog.Int("dead_lettered", result.DeadLettered))
		}
		return tracker.End(err)
	}
}

// HandleInboxSweep builds the handler for the recurring inbound retry
// sweep.
func HandleInboxSweep(processor *inbox.Processor, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("inbox_sweep")
		processed, err := processor.SweepUnprocessed(ctx)
		metrics.AddInbound("processed", processed)
		if err != nil {
			logger.Error("inbox sweep failed", slog.Any("error", err))
		}
		return tracker.End(err)
	}
}
