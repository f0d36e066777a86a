package outbox

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gridline-energy/gridline/internal/platform/httpx"
)

// Handler exposes the dead letter queue for operator triage.
type Handler struct {
	repo   *PgRepository
	logger *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(repo *PgRepository, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// MountRoutes attaches outbox routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/dead-letters", h.listDeadLetters)
	r.Post("/dead-letters/{id}/requeue", h.requeue)
}

type messageView struct {
	ID          string     `json:"id"`
	TargetParty string     `json:"target_party"`
	MessageType string     `json:"message_type"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	CreatedAt   time.Time  `json:"created_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

func (h *Handler) listDeadLetters(w http.ResponseWriter, r *http.Request) {
	messages, err := h.repo.ListDeadLettered(r.Context(), 100)
	if err != nil {
		h.logger.Error("list dead letters", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]messageView, len(messages))
	for i, msg := range messages {
		views[i] = messageView{
			ID:          msg.ID.String(),
			TargetParty: msg.TargetParty,
			MessageType: msg.MessageType,
			Status:      string(msg.Status),
			Attempts:    msg.Attempts,
			CreatedAt:   msg.CreatedAt,
			SentAt:      msg.SentAt,
			LastError:   msg.LastError,
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": views})
}

func (h *Handler) requeue(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "message id must be a uuid")
		return
	}
	clone, err := h.repo.Requeue(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("dead letter requeued",
		slog.String("original_id", id.String()),
		slog.String("new_id", clone.ID.String()))
	httpx.JSON(w, http.StatusCreated, map[string]string{"id": clone.ID.String()})
}
