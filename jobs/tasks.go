package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskSettlementCalculate runs one settlement calculation for a supply
	// and period.
	TaskSettlementCalculate = "settlement:calculate"
	// TaskSettlementCorrect recalculates a stored settlement and issues the
	// delta correction.
	TaskSettlementCorrect = "settlement:correct"
	// TaskOutboxDispatch runs one outbox dispatch cycle.
	TaskOutboxDispatch = "exchange:outbox_dispatch"
	// TaskInboxSweep retries unprocessed inbound messages.
	TaskInboxSweep = "exchange:inbox_sweep"
)

// SettlementCalculatePayload scopes one settlement run.
type SettlementCalculatePayload struct {
	MeteringPointID string    `json:"metering_point_id"`
	SupplyID        string    `json:"supply_id"`
	TargetParty     string    `json:"target_party"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
}

// SettlementCorrectPayload identifies the settlement to correct.
type SettlementCorrectPayload struct {
	SettlementID string `json:"settlement_id"`
	TargetParty  string `json:"target_party"`
}

// NewSettlementCalculateTask constructs an Asynq task.
func NewSettlementCalculateTask(payload SettlementCalculatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSettlementCalculate, data), nil
}

// NewSettlementCorrectTask constructs an Asynq task.
func NewSettlementCorrectTask(payload SettlementCorrectPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSettlementCorrect, data), nil
}

// NewOutboxDispatchTask constructs the recurring dispatch task.
func NewOutboxDispatchTask() *asynq.Task {
	return asynq.NewTask(TaskOutboxDispatch, nil)
}

// NewInboxSweepTask constructs the recurring sweep task.
func NewInboxSweepTask() *asynq.Task {
	return asynq.NewTask(TaskInboxSweep, nil)
}
