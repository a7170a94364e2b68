package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/baharkarakas/mpesa-backend/internal/api/httpx"
	"github.com/baharkarakas/mpesa-backend/internal/middleware"
	"github.com/baharkarakas/mpesa-backend/internal/mpesa"
	repo "github.com/baharkarakas/mpesa-backend/internal/repository"
)

// writeServiceError maps known failures to client errors. Anything else is
// logged in full and answered with the generic internal error.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, attrs ...any) {
	var uerr *mpesa.UpstreamRequestError
	switch {
	case errors.Is(err, repo.ErrUserNotFound):
		httpx.WriteError(w, http.StatusNotFound, "user_not_found", "user not found", nil)
	case errors.Is(err, repo.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "not found", nil)
	case errors.Is(err, mpesa.ErrInvalidRequest):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
	case errors.As(err, &uerr):
		logUpstream(r, err, attrs...)
		httpx.WriteError(w, http.StatusBadGateway, "upstream_error", "payment provider rejected the request",
			map[string]string{"provider_code": uerr.ProviderCode, "provider_message": uerr.ProviderMessage})
	case errors.Is(err, mpesa.ErrUpstreamAuth):
		logUpstream(r, err, attrs...)
		httpx.WriteError(w, http.StatusBadGateway, "upstream_auth_error", "payment provider unavailable", nil)
	default:
		writeInternal(w, r, err, attrs...)
	}
}

func writeInternal(w http.ResponseWriter, r *http.Request, err error, attrs ...any) {
	rid := middleware.RequestIDFrom(r.Context())
	args := append([]any{"request_id", rid, "path", r.URL.Path, "err", err}, attrs...)
	slog.ErrorContext(r.Context(), "request failed", args...)
	httpx.WriteInternal(w, rid)
}

func logUpstream(r *http.Request, err error, attrs ...any) {
	args := append([]any{"request_id", middleware.RequestIDFrom(r.Context()), "err", err}, attrs...)
	slog.WarnContext(r.Context(), "provider call failed", args...)
}
