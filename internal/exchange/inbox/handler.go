package inbox

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gridline-energy/gridline/internal/platform/httpx"
)

// Handler receives hub deliveries and exposes the ingestion backlog for
// operator triage.
type Handler struct {
	repo      *PgRepository
	processor *Processor
	cfg       Config
	logger    *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(repo *PgRepository, processor *Processor, cfg Config, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, processor: processor, cfg: cfg.withDefaults(), logger: logger}
}

// MountRoutes attaches inbox routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/messages", h.receive)
	r.Get("/unprocessed", h.listUnprocessed)
	r.Get("/failed", h.listFailed)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	var env Envelope
	if err := httpx.DecodeJSON(r, &env); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be a json envelope")
		return
	}
	result, err := h.processor.Receive(r.Context(), env)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	httpx.JSON(w, status, map[string]any{
		"id":        result.Message.ID.String(),
		"duplicate": result.Duplicate,
		"processed": result.Processed,
	})
}

type messageView struct {
	ID              string     `json:"id"`
	ExternalID      string     `json:"external_id"`
	DocumentType    string     `json:"document_type"`
	BusinessProcess string     `json:"business_process"`
	SenderParty     string     `json:"sender_party"`
	ReceivedAt      time.Time  `json:"received_at"`
	Processed       bool       `json:"processed"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	ProcessingError string     `json:"processing_error,omitempty"`
	Attempts        int        `json:"attempts"`
}

func toViews(messages []Message) []messageView {
	views := make([]messageView, len(messages))
	for i, msg := range messages {
		views[i] = messageView{
			ID:              msg.ID.String(),
			ExternalID:      msg.ExternalID,
			DocumentType:    msg.DocumentType,
			BusinessProcess: msg.BusinessProcess,
			SenderParty:     msg.SenderParty,
			ReceivedAt:      msg.ReceivedAt,
			Processed:       msg.Processed,
			ProcessedAt:     msg.ProcessedAt,
			ProcessingError: msg.ProcessingError,
			Attempts:        msg.Attempts,
		}
	}
	return views
}

func (h *Handler) listUnprocessed(w http.ResponseWriter, r *http.Request) {
	messages, err := h.repo.ListUnprocessed(r.Context(), h.cfg.MaxAttempts, 100)
	if err != nil {
		h.logger.Error("list unprocessed inbound", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": toViews(messages)})
}

func (h *Handler) listFailed(w http.ResponseWriter, r *http.Request) {
	messages, err := h.repo.ListFailed(r.Context(), h.cfg.MaxAttempts, 100)
	if err != nil {
		h.logger.Error("list failed inbound", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": toViews(messages)})
}
