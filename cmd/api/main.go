package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calling-platform/internal/audit"
	"calling-platform/internal/auth"
	"calling-platform/internal/calls"
	"calling-platform/internal/config"
	"calling-platform/internal/contacts"
	"calling-platform/internal/credit"
	"calling-platform/internal/httpapi"
	"calling-platform/internal/monitoring"
	"calling-platform/internal/rates"
	"calling-platform/internal/reporting"
	"calling-platform/internal/telephony"
	"calling-platform/internal/users"
	"calling-platform/pkg/logger"
	"calling-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	provider, err := telephony.NewTwilioProvider(cfg.Twilio)
	if err != nil {
		log.Error("twilio init failed", "err", err)
		os.Exit(1)
	}

	monitoring.Init()

	// Stores and services.
	callStore := calls.NewSQLStore(db)
	contactStore := contacts.NewSQLStore(db)
	userStore := users.NewSQLStore(db)
	rateStore := rates.NewSQLStore(db)

	creditSvc := credit.NewService(db)
	rateSvc := rates.NewService(rateStore)
	resolver := rates.NewResolver(provider, rateStore)
	auditSvc := audit.NewService(audit.NewSQLRepo(db))
	reportSvc := reporting.NewService(reporting.NewCallStoreRepo(callStore))

	orchestrator := calls.NewOrchestrator(callStore, contactStore, resolver, creditSvc,
		provider, calls.NewRedisPairLocker(rdb), log, calls.OrchestratorConfig{
			CallbackBaseURL: cfg.Billing.CallbackBaseURL,
			DialLockTTL:     cfg.Billing.DialLockTTL,
		})
	reconciler := calls.NewReconciler(callStore, provider, auditSvc, log)

	reaper := calls.NewReaper(callStore, log, cfg.Billing.PendingCallTTL, cfg.Billing.ReaperInterval)
	go reaper.Run(rootCtx)

	handlers := httpapi.Handlers{
		Auth:         authManager,
		Users:        userStore,
		Credits:      creditSvc,
		Rates:        rateSvc,
		Calls:        callStore,
		Orchestrator: orchestrator,
		Reconciler:   reconciler,
		Reporting:    reportSvc,
		Audit:        auditSvc,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(monitoring.Middleware())

	registerRoutes(r, handlers, auth.RequireAccessToken(authManager), db)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
