// Package outbox provides durable, retryable outbound delivery of
// business documents to the market hub. Delivery is at-least-once; the
// receiving side deduplicates.
package outbox

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gridline-energy/gridline/internal/shared"
)

// Status enumerates outbound message states. SENT and DEAD_LETTERED are
// terminal; a dead-lettered entry is only ever revived by cloning it as
// a new pending message.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusSending      Status = "SENDING"
	StatusSent         Status = "SENT"
	StatusDeadLettered Status = "DEAD_LETTERED"
)

// Message is one outbound document staged for delivery. The payload is
// opaque here; serialization happens upstream.
type Message struct {
	ID          uuid.UUID
	TargetParty string
	MessageType string
	Payload     []byte
	Status      Status
	Attempts    int
	NextRetryAt time.Time
	CreatedAt   time.Time
	SentAt      *time.Time
	LastError   string
}

var (
	ErrMessageNotFound = fmt.Errorf("outbox message: %w", shared.ErrNotFound)
	ErrNotDeadLettered = fmt.Errorf("only dead-lettered messages can be requeued: %w", shared.ErrValidation)
)
