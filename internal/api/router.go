package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/baharkarakas/mpesa-backend/internal/api/handlers"
	"github.com/baharkarakas/mpesa-backend/internal/api/httpx"
	"github.com/baharkarakas/mpesa-backend/internal/auth"
	"github.com/baharkarakas/mpesa-backend/internal/config"
	"github.com/baharkarakas/mpesa-backend/internal/metrics"
	"github.com/baharkarakas/mpesa-backend/internal/middleware"
	"github.com/baharkarakas/mpesa-backend/internal/services"
)

type RouterDeps struct {
	Cfg        config.Config
	TM         *auth.TokenManager
	Reconciler *services.ReconcileService
	Payments   *services.PaymentService
	UserSvc    *services.UserService
	BalanceSvc *services.BalanceService
	TxnSvc     *services.TransactionService
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.HTTPMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	}))

	mh := handlers.NewMpesaHandler(d.Reconciler, d.Payments)
	ah := handlers.NewAccountHandler(d.UserSvc, d.BalanceSvc, d.TxnSvc)
	am := middleware.NewAuthMiddleware(d.TM, d.Cfg.Env)
	// Webhooks are never throttled: a rejected callback is a payment that is
	// never settled.
	limit := middleware.RateLimit(d.Cfg.RateRPS)

	// root, health & metrics
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "M-Pesa API Server is running"})
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// provider webhooks: unauthenticated, the provider cannot sign requests
		r.Post("/mpesa/stkCallback", mh.STKCallback)
		r.Post("/mpesa/b2cResult", mh.B2CResult)

		if d.Cfg.Env == "dev" {
			r.With(limit).Post("/auth/token", handlers.NewAuthHandler(d.TM).DevToken)
		}

		r.Group(func(r chi.Router) {
			r.Use(limit, am.Auth)
			r.Post("/mpesa/stkPush", mh.StkPush)
			r.With(middleware.RequireRole(auth.RoleAdmin)).Post("/users", ah.CreateUser)
			r.With(middleware.RequireSelfOrAdmin("id")).Get("/users/{id}/balance", ah.Balance)
			r.With(middleware.RequireSelfOrAdmin("id")).Get("/users/{id}/transactions", ah.UserTransactions)
			r.Get("/transactions/{id}", ah.Transaction)
		})
	})

	return r
}
