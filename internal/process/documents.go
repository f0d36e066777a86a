package process

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/gridline-energy/gridline/internal/exchange/inbox"
	"github.com/gridline-energy/gridline/internal/shared"
)

// Document types the hub sends in reply to our submissions.
const (
	DocConfirmation = "Confirmation"
	DocRejection    = "Rejection"
)

type transitionDocument struct {
	ProcessID string `json:"process_id"`
}

// RegisterDocumentHandlers wires the hub reply documents to process
// transitions. A confirmation advances the initiator workflow past the
// hub's approval gate, a rejection terminates it.
func RegisterDocumentHandlers(reg *inbox.Registry, manager *Manager, logger *slog.Logger) {
	confirmTargets := map[ProcessType]State{
		TypeSupplierChange: StateConfirmed,
		TypeMoveIn:         StateApproved,
		TypeMoveOut:        StateApproved,
	}
	for pt, target := range confirmTargets {
		reg.Register(DocConfirmation, string(pt), advanceHandler(manager, logger, target))
		reg.Register(DocRejection, string(pt), advanceHandler(manager, logger, StateRejected))
	}
}

func advanceHandler(manager *Manager, logger *slog.Logger, target State) inbox.HandlerFunc {
	return func(ctx context.Context, msg inbox.Message) error {
		var doc transitionDocument
		if err := json.Unmarshal(msg.Payload, &doc); err != nil {
			return shared.Permanentf("parse %s document: %v", msg.DocumentType, err)
		}
		id, err := uuid.Parse(doc.ProcessID)
		if err != nil {
			return shared.Permanentf("document %s carries no valid process id", msg.ExternalID)
		}
		trigger := msg.ID
		if _, err := manager.Advance(ctx, id, target, &trigger); err != nil {
			return err
		}
		logger.Info("process advanced by hub document",
			slog.String("process_id", doc.ProcessID),
			slog.String("document_type", msg.DocumentType),
			slog.String("external_id", msg.ExternalID))
		return nil
	}
}
