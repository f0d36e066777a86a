// Package inbox ingests business documents from the market hub with
// idempotent deduplication. The hub delivers at-least-once; the unique
// external message identifier is the dedup key.
package inbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gridline-energy/gridline/internal/shared"
)

// Envelope is a parsed inbound document as delivered by the receive
// collaborator. Wire parsing happens upstream.
type Envelope struct {
	ExternalID      string          `json:"external_id" validate:"required"`
	DocumentType    string          `json:"document_type" validate:"required"`
	BusinessProcess string          `json:"business_process" validate:"required"`
	SenderParty     string          `json:"sender_party" validate:"required"`
	ReceiverParty   string          `json:"receiver_party" validate:"required"`
	Payload         json.RawMessage `json:"payload"`
}

// Message is one received document with its processing bookkeeping.
// Entries are never deleted; they are the ingestion audit trail.
type Message struct {
	ID              uuid.UUID
	ExternalID      string
	DocumentType    string
	BusinessProcess string
	SenderParty     string
	ReceiverParty   string
	Payload         []byte
	ReceivedAt      time.Time
	Processed       bool
	ProcessedAt     *time.Time
	ProcessingError string
	Attempts        int
}

var (
	ErrDuplicateMessage = fmt.Errorf("inbound message already recorded: %w", shared.ErrConflict)
	ErrMessageNotFound  = fmt.Errorf("inbound message: %w", shared.ErrNotFound)
	ErrNoHandler        = fmt.Errorf("no handler registered for document: %w", shared.ErrPermanent)
)
