package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/baharkarakas/mpesa-backend/internal/api/httpx"
	"github.com/baharkarakas/mpesa-backend/internal/middleware"
	"github.com/baharkarakas/mpesa-backend/internal/services"
)

type AccountHandler struct {
	Users    *services.UserService
	Balances *services.BalanceService
	Txns     *services.TransactionService
}

func NewAccountHandler(us *services.UserService, bs *services.BalanceService, ts *services.TransactionService) *AccountHandler {
	return &AccountHandler{Users: us, Balances: bs, Txns: ts}
}

func (h *AccountHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phone_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid json body", nil)
		return
	}
	u, err := h.Users.Register(r.Context(), req.PhoneNumber)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, u)
}

func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	b, err := h.Balances.Current(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

// Transaction answers 404 for other users' transactions so ids cannot be probed.
func (h *AccountHandler) Transaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Txns.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !middleware.CanAccess(r.Context(), tx.UserID) {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "not found", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tx)
}

func (h *AccountHandler) UserTransactions(w http.ResponseWriter, r *http.Request) {
	limit, offset := 0, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	txs, err := h.Txns.ListByUser(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, txs)
}
