package settlement

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

// Handler exposes the settlement ops surface.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// MountRoutes attaches settlement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/calculate", h.calculate)
	r.Get("/{id}", h.get)
	r.Get("/{id}/export.csv", h.exportCSV)
	r.Post("/{id}/invoice", h.invoice)
	r.Post("/{id}/corrections", h.correct)
}

type calculateBody struct {
	MeteringPointID string    `json:"metering_point_id"`
	SupplyID        string    `json:"supply_id"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
}

type invoiceBody struct {
	InvoiceRef string `json:"invoice_ref"`
}

func (h *Handler) calculate(w http.ResponseWriter, r *http.Request) {
	var body calculateBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be json")
		return
	}
	if body.MeteringPointID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "metering_point_id is required")
		return
	}
	result, err := h.service.CalculateForPeriod(r.Context(), CalculateRequest{
		MeteringPointID: body.MeteringPointID,
		SupplyID:        body.SupplyID,
		PeriodStart:     body.PeriodStart,
		PeriodEnd:       body.PeriodEnd,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) invoice(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "settlement id must be a uuid")
		return
	}
	var body invoiceBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be json")
		return
	}
	if body.InvoiceRef == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invoice_ref is required")
		return
	}
	if err := h.service.MarkInvoiced(r.Context(), id, body.InvoiceRef); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(StatusInvoiced)})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	meteringPoint := q.Get("metering_point")
	if meteringPoint == "" {
		httpx.Problem(w, http.StatusBadRequest, "Missing Filter", "metering_point query parameter is required")
		return
	}
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	settlements, total, err := h.service.ListByMeteringPoint(r.Context(), meteringPoint, page, perPage)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      settlements,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "settlement id must be a uuid")
		return
	}
	s, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "settlement id must be a uuid")
		return
	}
	s, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="settlement-`+id.String()+`.csv"`)
	if err := WriteCSV(w, s); err != nil {
		h.logger.Error("settlement csv export", slog.Any("error", err))
	}
}

func (h *Handler) correct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "settlement id must be a uuid")
		return
	}
	correction, err := h.service.CorrectSettlement(r.Context(), id)
	if err != nil {
		h.logger.Error("correct settlement", slog.String("settlement_id", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, correction)
}
