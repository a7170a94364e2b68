package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/baharkarakas/mpesa-backend/internal/api"
	"github.com/baharkarakas/mpesa-backend/internal/auth"
	"github.com/baharkarakas/mpesa-backend/internal/config"
	"github.com/baharkarakas/mpesa-backend/internal/db"
	"github.com/baharkarakas/mpesa-backend/internal/events"
	"github.com/baharkarakas/mpesa-backend/internal/logger"
	"github.com/baharkarakas/mpesa-backend/internal/metrics"
	"github.com/baharkarakas/mpesa-backend/internal/mpesa"
	"github.com/baharkarakas/mpesa-backend/internal/repository"
	"github.com/baharkarakas/mpesa-backend/internal/repository/memory"
	"github.com/baharkarakas/mpesa-backend/internal/repository/postgres"
	"github.com/baharkarakas/mpesa-backend/internal/services"
	"github.com/baharkarakas/mpesa-backend/internal/tracing"
	"github.com/baharkarakas/mpesa-backend/internal/worker"
)

const eventQueueSize = 256

type store struct {
	users  repository.Users
	trx    repository.Transactions
	audit  repository.AuditLogs
	closer func()
}

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing shutdown", "err", err)
		}
	}()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.closer()

	metrics.Init()
	wp := worker.NewPool(cfg.WorkerCount, eventQueueSize, worker.WithDepthObserver(func(n int) {
		metrics.WorkerQueueDepth.Set(float64(n))
	}))

	var pub events.Publisher = events.LogPublisher{Log: log}
	if cfg.KafkaBrokers != "" {
		pub = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		log.Info("settlement events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	defer func() {
		if err := pub.Close(); err != nil {
			log.Warn("publisher close", "err", err)
		}
	}()
	// Stop drains queued events, so it runs before the publisher closes.
	defer wp.Stop()

	client := mpesa.NewClient(cfg.Mpesa)
	reconciler := services.NewReconcileService(st.trx, st.audit, events.NewDispatcher(pub, wp),
		services.WithRequirePending(cfg.RequirePending))

	r := api.NewRouter(api.RouterDeps{
		Cfg:        cfg,
		TM:         auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL),
		Reconciler: reconciler,
		Payments:   services.NewPaymentService(client, st.users, st.trx),
		UserSvc:    services.NewUserService(st.users),
		BalanceSvc: services.NewBalanceService(st.users),
		TxnSvc:     services.NewTransactionService(st.trx),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			"port", cfg.HTTPPort, "env", cfg.Env, "store", cfg.StoreDriver,
			"mpesa_host", cfg.Mpesa.Host(), "require_pending", cfg.RequirePending)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown", "err", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store, error) {
	switch cfg.StoreDriver {
	case "memory":
		log.Warn("using in-memory store; balances are lost on restart")
		repos := memory.NewRepositories()
		return store{users: repos.Users, trx: repos.Transactions, audit: repos.AuditLogs, closer: func() {}}, nil
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return store{}, fmt.Errorf("db connect: %w", err)
		}
		if cfg.Migrate {
			if err := db.RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return store{}, fmt.Errorf("migrations: %w", err)
			}
		}
		repos := postgres.NewRepositories(pool)
		return store{users: repos.Users, trx: repos.Transactions, audit: repos.AuditLogs, closer: pool.Close}, nil
	default:
		return store{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}
