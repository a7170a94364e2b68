package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/baharkarakas/mpesa-backend/internal/api/httpx"
)

func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				rid := RequestIDFrom(r.Context())
				slog.ErrorContext(r.Context(), "panic",
					"err", rec, "request_id", rid, "path", r.URL.Path, "stack", string(debug.Stack()))
				httpx.WriteInternal(w, rid)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
