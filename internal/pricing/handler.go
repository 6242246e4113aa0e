package pricing

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/parkwise/parkwise/internal/platform/httpx"
)

// Handler manages pricing endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers pricing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/records", h.create)
	r.Delete("/records/{id}", h.delete)
	r.Get("/resolve", h.resolve)
	r.Get("/history", h.history)
}

type createRecordRequest struct {
	Lineage             string          `json:"lineage" validate:"required,oneof=CARD_PRICE SINGLE_ENTRY SUBSCRIPTION"`
	Primary             int64           `json:"primary" validate:"required,gt=0"`
	Secondary           int64           `json:"secondary" validate:"gte=0"`
	Price               decimal.Decimal `json:"price"`
	DayPrice            decimal.Decimal `json:"day_price"`
	FirstHourPrice      decimal.Decimal `json:"first_hour_price"`
	AdditionalHourPrice decimal.Decimal `json:"additional_hour_price"`
	EffectiveFrom       *time.Time      `json:"effective_from"`
	ChangedBy           int64           `json:"changed_by" validate:"required,gt=0"`
	Reason              string          `json:"reason" validate:"max=500"`
}

type deleteRecordRequest struct {
	OperatorID int64 `json:"operator_id" validate:"required,gt=0"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRecordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := NewRecordInput{
		Key:                 DimensionKey{Lineage: Lineage(req.Lineage), Primary: req.Primary, Secondary: req.Secondary},
		Price:               req.Price,
		DayPrice:            req.DayPrice,
		FirstHourPrice:      req.FirstHourPrice,
		AdditionalHourPrice: req.AdditionalHourPrice,
		ChangedBy:           req.ChangedBy,
		Reason:              req.Reason,
	}
	if req.EffectiveFrom != nil {
		input.EffectiveFrom = *req.EffectiveFrom
	}
	rec, err := h.service.Insert(r.Context(), input)
	if err != nil {
		h.fail(w, "insert pricing record", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req deleteRecordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id, req.OperatorID); err != nil {
		h.fail(w, "delete pricing record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	at, err := httpx.QueryTime(r, "at", time.Now())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.Resolve(r.Context(), key, at)
	if err != nil {
		h.fail(w, "resolve pricing record", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	records, err := h.service.History(r.Context(), key)
	if err != nil {
		h.fail(w, "pricing history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"key": key, "records": records})
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func keyFromQuery(r *http.Request) (DimensionKey, error) {
	primary, err := httpx.QueryInt64(r, "primary")
	if err != nil {
		return DimensionKey{}, err
	}
	secondary, err := httpx.QueryInt64(r, "secondary")
	if err != nil {
		return DimensionKey{}, err
	}
	key := DimensionKey{
		Lineage:   Lineage(r.URL.Query().Get("lineage")),
		Primary:   primary,
		Secondary: secondary,
	}
	return key, key.Validate()
}
