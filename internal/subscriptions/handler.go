package subscriptions

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/parkwise/parkwise/internal/platform/httpx"
)

// Handler manages subscription endpoints.
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

// MountRoutes registers subscription routes on the API root.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/subscriptions", h.purchase)
	r.Post("/subscriptions/{id}/suspend", h.suspend)
	r.Post("/subscriptions/{id}/resume", h.resume)
	r.Get("/cards/{cardID}/subscription", h.active)
	r.Get("/cards/{cardID}/subscriptions", h.list)
}

type purchaseRequest struct {
	CardID             int64      `json:"card_id" validate:"required,gt=0"`
	VehicleID          int64      `json:"vehicle_id" validate:"required,gt=0"`
	SubscriptionTypeID int64      `json:"subscription_type_id" validate:"required,gt=0"`
	StartDate          *time.Time `json:"start_date"`
	OperatorID         int64      `json:"operator_id" validate:"required,gt=0"`
}

type operatorRequest struct {
	OperatorID int64 `json:"operator_id" validate:"required,gt=0"`
}

func (h *Handler) purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := PurchaseInput{
		CardID:             req.CardID,
		VehicleID:          req.VehicleID,
		SubscriptionTypeID: req.SubscriptionTypeID,
		OperatorID:         req.OperatorID,
	}
	if req.StartDate != nil {
		input.StartDate = *req.StartDate
	}
	sub, err := h.service.Purchase(r.Context(), input)
	if err != nil {
		h.fail(w, "purchase subscription", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sub)
}

func (h *Handler) suspend(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, true)
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, false)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, suspend bool) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req operatorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	op := h.service.Resume
	if suspend {
		op = h.service.Suspend
	}
	sub, err := op(r.Context(), id, req.OperatorID)
	if err != nil {
		h.fail(w, "toggle subscription", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sub)
}

func (h *Handler) active(w http.ResponseWriter, r *http.Request) {
	cardID, err := httpx.PathInt64(r, "cardID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	at, err := httpx.QueryTime(r, "at", time.Now())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sub, err := h.service.HasActiveSubscription(r.Context(), cardID, at)
	if err != nil {
		h.fail(w, "active subscription", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"card_id":      cardID,
		"at":           at,
		"active":       sub != nil,
		"subscription": sub,
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	cardID, err := httpx.PathInt64(r, "cardID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	subs, err := h.service.ListByCard(r.Context(), cardID)
	if err != nil {
		h.fail(w, "list subscriptions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, subs)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
