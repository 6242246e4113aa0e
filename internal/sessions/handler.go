package sessions

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/parkwise/parkwise/internal/platform/httpx"
)

// Handler manages session endpoints.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	idempotent func(http.Handler) http.Handler
}

// NewHandler builds Handler instance. keys may be nil, which disables
// Idempotency-Key handling on the closing endpoints.
func NewHandler(logger *slog.Logger, service *Service, keys httpx.IdempotencyKeys) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:     logger,
		service:    service,
		idempotent: httpx.Idempotent(keys, "sessions", logger),
	}
}

// MountRoutes registers session routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.enter)
	r.Get("/", h.list)
	r.Get("/quote/{id}", h.preview)
	r.Get("/{id}", h.show)
	r.With(h.idempotent).Post("/{id}/exit", h.exit)
	r.With(h.idempotent).Post("/{id}/lost-ticket", h.lostTicket)
	r.With(h.idempotent).Post("/{id}/cancel", h.cancel)
}

type entryRequest struct {
	CardID        int64  `json:"card_id" validate:"required_without=CardUID,gte=0"`
	CardUID       string `json:"card_uid" validate:"max=64"`
	VehicleID     int64  `json:"vehicle_id" validate:"required,gt=0"`
	VehicleTypeID int64  `json:"vehicle_type_id" validate:"gte=0"`
	OperatorID    int64  `json:"operator_id" validate:"required,gt=0"`
}

type closeRequest struct {
	OperatorID     int64            `json:"operator_id" validate:"required,gt=0"`
	ManualFee      *decimal.Decimal `json:"manual_fee"`
	DiscountReason string           `json:"discount_reason" validate:"omitempty,oneof=PROMO MANUAL_OVERRIDE STAFF_FREE"`
}

type cancelRequest struct {
	OperatorID int64 `json:"operator_id" validate:"required,gt=0"`
}

func (h *Handler) enter(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	sess, err := h.service.Enter(r.Context(), EntryInput{
		CardID:        req.CardID,
		CardUID:       req.CardUID,
		VehicleID:     req.VehicleID,
		VehicleTypeID: req.VehicleTypeID,
		OperatorID:    req.OperatorID,
	})
	if err != nil {
		h.fail(w, "session entry", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sess)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.ListActive(r.Context())
	if err != nil {
		h.fail(w, "list sessions", err)
		return
	}
	if sessions == nil {
		sessions = []Session{}
	}
	httpx.JSON(w, http.StatusOK, sessions)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sess, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get session", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sess)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	charge, err := h.service.Preview(r.Context(), id)
	if err != nil {
		h.fail(w, "preview session charge", err)
		return
	}
	httpx.JSON(w, http.StatusOK, charge)
}

func (h *Handler) exit(w http.ResponseWriter, r *http.Request) {
	h.closeWith(w, r, h.service.Exit)
}

func (h *Handler) lostTicket(w http.ResponseWriter, r *http.Request) {
	h.closeWith(w, r, h.service.ReportLostTicket)
}

func (h *Handler) closeWith(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, in CloseInput) (*Session, error)) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req closeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	sess, err := op(r.Context(), CloseInput{
		SessionID:      id,
		OperatorID:     req.OperatorID,
		ManualFee:      req.ManualFee,
		DiscountReason: DiscountReason(req.DiscountReason),
	})
	if err != nil {
		h.fail(w, "close session", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sess)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	sess, err := h.service.Cancel(r.Context(), id, req.OperatorID)
	if err != nil {
		h.fail(w, "cancel session", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sess)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
