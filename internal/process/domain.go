package process

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gridline-energy/gridline/internal/shared"
)

// ProcessType enumerates the regulated market processes.
type ProcessType string

const (
	TypeSupplierChange ProcessType = "supplier_change"
	TypeMoveIn         ProcessType = "move_in"
	TypeMoveOut        ProcessType = "move_out"
)

// Role identifies which side of a process this participant plays. The
// initiator gains responsibility for the metering point, the recipient
// loses it; their workflows are asymmetric.
type Role string

const (
	RoleInitiator Role = "INITIATOR"
	RoleRecipient Role = "RECIPIENT"
)

// State is a workflow state scoped to a (type, role) transition table.
type State string

const (
	StateCreated      State = "CREATED"
	StateSubmitted    State = "SUBMITTED"
	StateConfirmed    State = "CONFIRMED"
	StateApproved     State = "APPROVED"
	StateActive       State = "ACTIVE"
	StateCompleted    State = "COMPLETED"
	StateRejected     State = "REJECTED"
	StateCancelled    State = "CANCELLED"
	StateFailed       State = "FAILED"
	StateNotified     State = "NOTIFIED"
	StateAcknowledged State = "ACKNOWLEDGED"
	StateDisputed     State = "DISPUTED"
	StateSupplyEnded  State = "SUPPLY_ENDED"
	StateClosed       State = "CLOSED"
)

// Outcome classifies how a terminal process ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "COMPLETED"
	OutcomeRejected  Outcome = "REJECTED"
	OutcomeCancelled Outcome = "CANCELLED"
	OutcomeFailed    Outcome = "FAILED"
)

// ProcessInstance is one regulated workflow run for a metering point.
// Instances are mutated only through validated transitions and become
// immutable once a terminal state is reached.
type ProcessInstance struct {
	ID              uuid.UUID
	Type            ProcessType
	Role            Role
	CurrentState    State
	CorrelationID   string
	MeteringPointID string
	EffectiveDate   time.Time
	StartedAt       time.Time
	CompletedAt     *time.Time
	Outcome         *Outcome
	ErrorDetail     string
}

// IsTerminalOutcome reports whether the instance carries a terminal outcome.
func (p ProcessInstance) IsTerminalOutcome() bool {
	return p.Outcome != nil
}

// TransitionRecord is an append-only audit entry for one state change.
type TransitionRecord struct {
	ID         int64
	ProcessID  uuid.UUID
	FromState  State
	ToState    State
	At         time.Time
	TriggerRef *uuid.UUID
}

// TransitionEvent is the fact surfaced to subscribers after a successful
// transition commits.
type TransitionEvent struct {
	ProcessID       uuid.UUID
	Type            ProcessType
	Role            Role
	MeteringPointID string
	EffectiveDate   time.Time
	From            State
	To              State
	Terminal        bool
	Outcome         *Outcome
	At              time.Time
}

var (
	ErrProcessNotFound    = fmt.Errorf("process: %w", shared.ErrNotFound)
	ErrProcessTerminal    = fmt.Errorf("process already terminal: %w", shared.ErrValidation)
	ErrInvalidTransition  = fmt.Errorf("invalid transition: %w", shared.ErrValidation)
	ErrTransitionConflict = fmt.Errorf("concurrent transition: %w", shared.ErrConflict)
	ErrUnknownTable       = fmt.Errorf("no transition table for process type and role: %w", shared.ErrValidation)
)
