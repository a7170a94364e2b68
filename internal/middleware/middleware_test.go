package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/mpesa-backend/internal/auth"
	"github.com/baharkarakas/mpesa-backend/internal/metrics"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "upstream-1", seen)
}

func TestRecover_GenericBody(t *testing.T) {
	h := RequestID(Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("db password is hunter2")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal_error", body["code"])
	assert.Equal(t, rec.Header().Get(RequestIDHeader), body["details"].(map[string]any)["request_id"])
}

func TestAuth(t *testing.T) {
	tm := auth.NewTokenManager("secret", "test", time.Hour)
	var got UserCtx
	h := NewAuthMiddleware(tm, "prod").Auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromCtx(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, _, err := tm.Generate("u-1", auth.RoleAdmin)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, UserCtx{UserID: "u-1", Role: auth.RoleAdmin}, got)

	// dev shortcut is off outside dev
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer dev-u-2")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_DevShortcut(t *testing.T) {
	var got UserCtx
	h := NewAuthMiddleware(auth.NewTokenManager("secret", "test", time.Hour), "dev").Auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromCtx(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer dev-u-2")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, UserCtx{UserID: "u-2", Role: auth.RoleUser}, got)
}

func TestRequireSelfOrAdmin(t *testing.T) {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			u := UserCtx{UserID: req.Header.Get("X-Uid"), Role: req.Header.Get("X-Role")}
			next.ServeHTTP(w, req.WithContext(WithUser(req.Context(), u)))
		})
	})
	r.With(RequireSelfOrAdmin("id")).Get("/users/{id}", ok)

	cases := []struct {
		uid, role string
		want      int
	}{
		{"u-1", auth.RoleUser, http.StatusOK},
		{"u-2", auth.RoleUser, http.StatusForbidden},
		{"u-2", auth.RoleAdmin, http.StatusOK},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/users/u-1", nil)
		req.Header.Set("X-Uid", c.uid)
		req.Header.Set("X-Role", c.role)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, c.want, rec.Code, "%s/%s", c.uid, c.role)
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(auth.RoleAdmin)(ok)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithUser(req.Context(), UserCtx{UserID: "u-1", Role: auth.RoleUser}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRateLimit(t *testing.T) {
	now := time.Unix(0, 0)
	h := rateLimit(2, func() time.Time { return now })(ok)

	codes := func() int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, codes())
	assert.Equal(t, http.StatusOK, codes())
	assert.Equal(t, http.StatusTooManyRequests, codes())

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, codes())
}

func TestHTTPMetrics_CountsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HTTPMetrics)
	r.Get("/users/{id}", ok)

	before := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("/users/{id}", "GET", "200"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/abc", nil))
	after := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("/users/{id}", "GET", "200"))
	assert.Equal(t, before+1, after)
}
