package process

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gridline-energy/gridline/internal/platform/httpx"
	"github.com/gridline-energy/gridline/internal/shared"
)

// Handler exposes the process lifecycle over HTTP.
type Handler struct {
	manager *Manager
	logger  *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	return &Handler{manager: manager, logger: logger}
}

// MountRoutes attaches process routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/advance", h.advance)
}

type createRequest struct {
	Type            string    `json:"type"`
	Role            string    `json:"role"`
	CorrelationID   string    `json:"correlation_id"`
	MeteringPointID string    `json:"metering_point_id"`
	EffectiveDate   time.Time `json:"effective_date"`
}

type advanceRequest struct {
	To string `json:"to"`
}

type instanceView struct {
	ID              string     `json:"id"`
	Type            string     `json:"type"`
	Role            string     `json:"role"`
	CurrentState    string     `json:"current_state"`
	CorrelationID   string     `json:"correlation_id"`
	MeteringPointID string     `json:"metering_point_id"`
	EffectiveDate   time.Time  `json:"effective_date"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Outcome         string     `json:"outcome,omitempty"`
	ErrorDetail     string     `json:"error_detail,omitempty"`
}

type transitionView struct {
	From       string     `json:"from"`
	To         string     `json:"to"`
	At         time.Time  `json:"at"`
	TriggerRef *uuid.UUID `json:"trigger_ref,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	filter := ListFilter{
		Type:            ProcessType(q.Get("type")),
		MeteringPointID: q.Get("metering_point"),
		ActiveOnly:      q.Get("active") == "true",
		Page:            page,
		PerPage:         perPage,
	}
	instances, total, err := h.manager.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list processes", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]instanceView, len(instances))
	for i, p := range instances {
		views[i] = toView(p)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      views,
		"pagination": shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be json")
		return
	}
	if req.MeteringPointID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "metering_point_id is required")
		return
	}
	instance, err := h.manager.Create(r.Context(), CreateInput{
		Type:            ProcessType(req.Type),
		Role:            Role(req.Role),
		CorrelationID:   req.CorrelationID,
		MeteringPointID: req.MeteringPointID,
		EffectiveDate:   req.EffectiveDate,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toView(instance))
}

func (h *Handler) advance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "process id must be a uuid")
		return
	}
	var req advanceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be json")
		return
	}
	instance, err := h.manager.Advance(r.Context(), id, State(req.To), nil)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(instance))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "process id must be a uuid")
		return
	}
	instance, err := h.manager.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	history, err := h.manager.History(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	transitions := make([]transitionView, len(history))
	for i, rec := range history {
		transitions[i] = transitionView{
			From:       string(rec.FromState),
			To:         string(rec.ToState),
			At:         rec.At,
			TriggerRef: rec.TriggerRef,
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"process":     toView(instance),
		"transitions": transitions,
	})
}

func toView(p ProcessInstance) instanceView {
	v := instanceView{
		ID:              p.ID.String(),
		Type:            string(p.Type),
		Role:            string(p.Role),
		CurrentState:    string(p.CurrentState),
		CorrelationID:   p.CorrelationID,
		MeteringPointID: p.MeteringPointID,
		EffectiveDate:   p.EffectiveDate,
		StartedAt:       p.StartedAt,
		CompletedAt:     p.CompletedAt,
		ErrorDetail:     p.ErrorDetail,
	}
	if p.Outcome != nil {
		v.Outcome = string(*p.Outcome)
	}
	return v
}
