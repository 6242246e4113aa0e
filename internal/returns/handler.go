package returns

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/parkwise/parkwise/internal/platform/httpx"
)

// Handler manages return endpoints.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	recalc     Recalculator
	idempotent func(http.Handler) http.Handler
}

// NewHandler builds Handler instance. recalc defaults to inline
// recalculation; keys may be nil.
func NewHandler(logger *slog.Logger, service *Service, recalc Recalculator, keys httpx.IdempotencyKeys) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if recalc == nil {
		recalc = InlineRecalculator{Service: service}
	}
	return &Handler{
		logger:     logger,
		service:    service,
		recalc:     recalc,
		idempotent: httpx.Idempotent(keys, "returns", logger),
	}
}

// MountRoutes registers return routes on the API root.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/returns", h.request)
	r.Get("/returns/{id}", h.show)
	r.Post("/returns/{id}/approve", h.approve)
	r.Post("/returns/{id}/reject", h.reject)
	r.With(h.idempotent).Post("/returns/{id}/process", h.process)
	r.Get("/invoices/{id}/return-batch", h.batch)
	r.Post("/invoices/{id}/return-batch/recalculate", h.recalculate)
}

type requestReturnRequest struct {
	CardID      int64            `json:"card_id" validate:"required,gt=0"`
	Reason      string           `json:"reason" validate:"required,max=500"`
	RefundPrice *decimal.Decimal `json:"refund_price"`
	OperatorID  int64            `json:"operator_id" validate:"required,gt=0"`
}

type approveRequest struct {
	ApproverID  int64            `json:"approver_id"`
	RefundPrice *decimal.Decimal `json:"refund_price"`
}

type processRequest struct {
	Method     string `json:"refund_method"`
	OperatorID int64  `json:"operator_id" validate:"required,gt=0"`
}

func (h *Handler) request(w http.ResponseWriter, r *http.Request) {
	var req requestReturnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ret, err := h.service.Request(r.Context(), RequestInput{
		CardID:      req.CardID,
		Reason:      req.Reason,
		RefundPrice: req.RefundPrice,
		OperatorID:  req.OperatorID,
	})
	if err != nil {
		h.fail(w, "request card return", err)
		return
	}
	h.schedule(r.Context(), ret.InvoiceID)
	httpx.JSON(w, http.StatusCreated, ret)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ret, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get card return", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req approveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ret, err := h.service.Approve(r.Context(), ApproveInput{ID: id, ApproverID: req.ApproverID, RefundPrice: req.RefundPrice})
	h.respondMutation(w, r, "approve card return", ret, err)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req approveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ret, err := h.service.Reject(r.Context(), id, req.ApproverID)
	h.respondMutation(w, r, "reject card return", ret, err)
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req processRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ret, err := h.service.Process(r.Context(), ProcessInput{ID: id, Method: RefundMethod(req.Method), OperatorID: req.OperatorID})
	h.respondMutation(w, r, "process card return", ret, err)
}

func (h *Handler) respondMutation(w http.ResponseWriter, r *http.Request, msg string, ret *CardReturn, err error) {
	if err != nil {
		h.fail(w, msg, err)
		return
	}
	h.schedule(r.Context(), ret.InvoiceID)
	httpx.JSON(w, http.StatusOK, ret)
}

func (h *Handler) batch(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	batch, err := h.service.Batch(r.Context(), invoiceID)
	if err != nil {
		h.fail(w, "get return batch", err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

func (h *Handler) recalculate(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	batch, err := h.service.Recalculate(r.Context(), invoiceID)
	if err != nil {
		h.fail(w, "recalculate return batch", err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

// schedule keeps the invoice aggregate current. The mutation is already
// committed, so a failure is left to the stale-invoice sweep.
func (h *Handler) schedule(ctx context.Context, invoiceID int64) {
	if err := h.recalc.Schedule(ctx, invoiceID); err != nil {
		h.logger.Warn("schedule return batch recalculation", slog.Int64("invoice", invoiceID), slog.Any("error", err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
