package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/gridline-energy/gridline/internal/exchange/outbox"
	jobmetrics "github.com/gridline-energy/gridline/internal/jobs"
	"github.com/gridline-energy/gridline/internal/settlement"
)

// OutboxEnqueuer stages an outbound market message.
type OutboxEnqueuer interface {
	Enqueue(ctx context.Context, targetParty, messageType string, payload []byte) (outbox.Message, error)
}

// settlementNotice is the outbound document emitted after a settlement run.
type settlementNotice struct {
	SettlementID    string `json:"settlement_id"`
	MeteringPointID string `json:"metering_point_id"`
	PeriodStart     string `json:"period_start"`
	PeriodEnd       string `json:"period_end"`
	NetTotal        string `json:"net_total"`
	IsCorrection    bool   `json:"is_correction"`
	CorrectsID      string `json:"corrects_id,omitempty"`
}

func noticePayload(s settlement.Settlement) ([]byte, error) {
	notice := settlementNotice{
		SettlementID:    s.ID.String(),
		MeteringPointID: s.MeteringPointID,
		PeriodStart:     s.PeriodStart.Format("2006-01-02"),
		PeriodEnd:       s.PeriodEnd.Format("2006-01-02"),
		NetTotal:        s.NetTotal.String(),
		IsCorrection:    s.IsCorrection,
	}
	if s.CorrectsID != nil {
		notice.CorrectsID = s.CorrectsID.String()
	}
	return json.Marshal(notice)
}

// HandleSettlementCalculate builds the handler for settlement runs. A
// successful run stages the result notice on the outbox for delivery to
// the counterparty.
func HandleSettlementCalculate(svc *settlement.Service, enqueuer OutboxEnqueuer, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("settlement_calculate")
		var payload SettlementCalculatePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
		result, err := svc.CalculateForPeriod(ctx, settlement.CalculateRequest{
			MeteringPointID: payload.MeteringPointID,
			SupplyID:        payload.SupplyID,
			PeriodStart:     payload.PeriodStart,
			PeriodEnd:       payload.PeriodEnd,
		})
		if err != nil {
			logger.Error("settlement calculation job failed",
				slog.String("metering_point", payload.MeteringPointID),
				slog.Any("error", err))
			return tracker.End(err)
		}
		if enqueuer != nil && payload.TargetParty != "" {
			data, err := noticePayload(result)
			if err != nil {
				return tracker.End(err)
			}
			if _, err := enqueuer.Enqueue(ctx, payload.TargetParty, "SettlementNotice", data); err != nil {
				return tracker.End(err)
			}
		}
		return tracker.End(nil)
	}
}

// HandleSettlementCorrect builds the handler for correction runs.
func HandleSettlementCorrect(svc *settlement.Service, enqueuer OutboxEnqueuer, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("settlement_correct")
		var payload SettlementCorrectPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
		id, err := uuid.Parse(payload.SettlementID)
		if err != nil {
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
		correction, err := svc.CorrectSettlement(ctx, id)
		if err != nil {
			logger.Error("settlement correction job failed",
				slog.String("settlement_id", payload.SettlementID),
				slog.Any("error", err))
			return tracker.End(err)
		}
		if enqueuer != nil && payload.TargetParty != "" {
			data, err := noticePayload(correction)
			if err != nil {
				return tracker.End(err)
			}
			if _, err := enqueuer.Enqueue(ctx, payload.TargetParty, "SettlementNotice", data); err != nil {
				return tracker.End(err)
			}
		}
		return tracker.End(nil)
	}
}
