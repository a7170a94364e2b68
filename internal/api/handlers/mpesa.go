package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/baharkarakas/mpesa-backend/internal/api/httpx"
	"github.com/baharkarakas/mpesa-backend/internal/api/validate"
	"github.com/baharkarakas/mpesa-backend/internal/metrics"
	"github.com/baharkarakas/mpesa-backend/internal/middleware"
	"github.com/baharkarakas/mpesa-backend/internal/mpesa"
	"github.com/baharkarakas/mpesa-backend/internal/services"
)

// Callback bodies are small; anything larger is not from the provider.
const maxCallbackBytes = 1 << 20

type MpesaHandler struct {
	Reconciler *services.ReconcileService
	Payments   *services.PaymentService
}

func NewMpesaHandler(rs *services.ReconcileService, ps *services.PaymentService) *MpesaHandler {
	return &MpesaHandler{Reconciler: rs, Payments: ps}
}

type successResp struct {
	Success bool `json:"success"`
}

// STKCallback receives payment-in results. Unknown checkout ids are
// acknowledged so the provider stops retrying.
func (h *MpesaHandler) STKCallback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCallbackBytes)
	cb, err := mpesa.DecodeSTKCallback(r.Body)
	if err != nil {
		h.badPayload(w, r, "stk", err)
		return
	}
	if _, err := h.Reconciler.HandleSTKCallback(r.Context(), cb); err != nil {
		writeInternal(w, r, err, "checkout_request_id", cb.CheckoutRequestID)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, successResp{Success: true})
}

// B2CResult receives payment-out results.
func (h *MpesaHandler) B2CResult(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCallbackBytes)
	res, err := mpesa.DecodeB2CResult(r.Body)
	if err != nil {
		h.badPayload(w, r, "b2c", err)
		return
	}
	if _, err := h.Reconciler.HandleB2CResult(r.Context(), res); err != nil {
		writeInternal(w, r, err, "conversation_id", res.ConversationID)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, successResp{Success: true})
}

func (h *MpesaHandler) badPayload(w http.ResponseWriter, r *http.Request, kind string, err error) {
	var perr *mpesa.PayloadError
	if !errors.As(err, &perr) {
		writeInternal(w, r, err)
		return
	}
	metrics.CallbacksTotal.WithLabelValues(kind, "invalid").Inc()
	slog.WarnContext(r.Context(), "rejected callback payload",
		"kind", kind, "request_id", middleware.RequestIDFrom(r.Context()), "err", err)
	httpx.WriteError(w, http.StatusBadRequest, "invalid_payload", "invalid callback payload", perr.Fields)
}

// StkPush initiates a deposit. Non-admin callers may omit user_id; it
// defaults to their own.
func (h *MpesaHandler) StkPush(w http.ResponseWriter, r *http.Request) {
	var req services.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid json body", nil)
		return
	}
	if req.UserID == "" {
		if u, ok := middleware.FromCtx(r.Context()); ok {
			req.UserID = u.UserID
		}
	}
	if errs := validate.Collect(
		validate.Required("user_id", req.UserID),
		validate.Phone("phone_number", req.PhoneNumber),
		validate.WholeAmount("amount", req.Amount),
		validate.Required("account_reference", req.AccountReference),
		validate.MaxLen("account_reference", req.AccountReference, 12),
	); len(errs) > 0 {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "invalid request", errs)
		return
	}
	if !middleware.CanAccess(r.Context(), req.UserID) {
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "not your account", nil)
		return
	}

	res, err := h.Payments.InitiateDeposit(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, "user_id", req.UserID)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, res)
}
