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

	"github.com/dukerupert/trustvault/internal/backup"
	"github.com/dukerupert/trustvault/internal/config"
	"github.com/dukerupert/trustvault/internal/database"
	"github.com/dukerupert/trustvault/internal/logging"
	"github.com/dukerupert/trustvault/internal/middleware"
	"github.com/dukerupert/trustvault/internal/notify"
	"github.com/dukerupert/trustvault/internal/portal"
	"github.com/dukerupert/trustvault/internal/scheduler"
	"github.com/dukerupert/trustvault/internal/server"
	"github.com/dukerupert/trustvault/internal/store"
	"github.com/dukerupert/trustvault/internal/vault"
	ws "github.com/dukerupert/trustvault/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	dispatcher, err := notify.New(notify.Config{
		Provider:      cfg.EmailProvider,
		FromEmail:     cfg.FromEmail,
		FromName:      cfg.FromName,
		PostmarkToken: cfg.PostmarkToken,
		SendGridKey:   cfg.SendGridKey,
	})
	if err != nil {
		logger.Error("failed to configure notifications", "error", err)
		os.Exit(1)
	}

	hub := ws.NewHub(logger.With("component", "websocket"))
	kv := store.NewKVStore(db)

	vaultSvc, err := vault.NewService(store.NewVaultStore(kv), vault.Options{
		Hub:        hub,
		Dispatcher: dispatcher,
		Logger:     logger.With("component", "vault"),
		Location:   cfg.Timezone,
	})
	if err != nil {
		logger.Error("failed to load savings document", "error", err)
		os.Exit(1)
	}
	portalSvc, err := portal.NewService(store.NewPortalStore(kv), portal.Options{
		Hub:        hub,
		Dispatcher: dispatcher,
		Logger:     logger.With("component", "portal"),
		Currency:   cfg.Currency,
	})
	if err != nil {
		logger.Error("failed to load portal document", "error", err)
		os.Exit(1)
	}

	backupMgr := backup.NewManager(kv, store.NewBackupStore(db), logger.With("component", "backup"), vaultSvc, portalSvc)
	limiter := middleware.NewRateLimiter(cfg.RedeemLimit, cfg.RedeemWindow)

	srv := server.New(server.Config{
		AdminToken: cfg.AdminToken,
		WSOrigins:  cfg.WSOrigins,
	}, hub, vaultSvc, portalSvc, backupMgr, limiter, logger)

	if cfg.AdminToken == "" {
		logger.Warn("TRUSTVAULT_ADMIN_TOKEN not set, debug and backup routes are open")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(scheduler.Config{
		Rollover:  cfg.RolloverSchedule,
		LowCredit: cfg.LowCreditSchedule,
		Cleanup:   cfg.CleanupSchedule,
		Location:  cfg.Timezone,
	}, vaultSvc, portalSvc, srv.RateLimiter(), logger.With("component", "scheduler"))
	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("trustvault running", "url", "http://localhost:"+cfg.Port, "timezone", cfg.Timezone.String(), "email", cfg.EmailProvider)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if err := vaultSvc.Save(); err != nil {
		logger.Error("final save of savings document", "error", err)
	}
	if err := portalSvc.Save(); err != nil {
		logger.Error("final save of portal document", "error", err)
	}
}
