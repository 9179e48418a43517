package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/ortaizi/sync-service/internal/auth"
	"github.com/ortaizi/sync-service/internal/config"
	api "github.com/ortaizi/sync-service/internal/http"
	"github.com/ortaizi/sync-service/internal/log"
	"github.com/ortaizi/sync-service/internal/metrics"
	"github.com/ortaizi/sync-service/internal/oauth"
	"github.com/ortaizi/sync-service/internal/portal"
	"github.com/ortaizi/sync-service/internal/queue"
	"github.com/ortaizi/sync-service/internal/repo"
	"github.com/ortaizi/sync-service/internal/security"
	syncsvc "github.com/ortaizi/sync-service/internal/sync"
	"github.com/ortaizi/sync-service/internal/vault"
)

func main() {
	cfg := config.Load()

	prod := os.Getenv("APP_ENV") == "production"
	logger, err := log.Init(prod)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if os.Getenv("DD_AGENT_HOST") != "" {
		tracer.Start(tracer.WithService("sync-service"))
		defer tracer.Stop()
	}

	metrics.MustRegister()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := repo.NewStore(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		logger.Fatal("mongo connect", zap.Error(err))
	}
	defer store.Close(context.Background())
	if err := store.EnsureIndexes(ctx); err != nil {
		logger.Fatal("ensure indexes", zap.Error(err))
	}

	var rds *repo.Redis
	if cfg.RedisAddr != "" {
		rds = repo.NewRedis(cfg.RedisAddr)
		defer rds.Close()
		if err := rds.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, rate limiting and claims cache disabled", zap.Error(err))
			rds = nil
		}
	}

	events := queue.NewNoop()
	if cfg.RabbitURL != "" {
		pub, err := queue.NewRabbit(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			logger.Warn("rabbit unavailable, events disabled", zap.Error(err))
		} else {
			events = pub
			defer events.Close()
		}
	}

	if cfg.VaultKey == "" {
		logger.Fatal("VAULT_KEY is required")
	}
	cipher, err := security.NewCipher(cfg.VaultKey, cfg.VaultSalt)
	if err != nil {
		logger.Fatal("vault cipher", zap.Error(err))
	}

	var cache vault.ClaimsCache
	var limiter auth.RateLimiter
	var stageCache auth.DualStageCache
	if rds != nil {
		cache = rds
		limiter = rds
		stageCache = rds
	}

	v := vault.New(cipher, store, cache, logger)
	scraper := portal.NewClient(cfg.ScraperURL)

	orch := syncsvc.NewOrchestrator(store, store, scraper, events, cfg.RabbitExchange, cfg.SyncJobTimeout, logger)
	if cfg.QueueDispatch && cfg.RabbitURL != "" {
		// hand tasks to cmd/worker through the broker instead of running
		// pipelines in this process
		orch.SetDispatch(func(t syncsvc.Task) {
			pubCtx, pubCancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer pubCancel()
			err := events.Publish(pubCtx, cfg.RabbitExchange, queue.KeySyncRequested, queue.SyncRequested{
				JobID:         t.JobID,
				UserID:        t.UserID,
				InstitutionID: t.Creds.InstitutionID,
			}, "")
			if err != nil {
				logger.Error("task dispatch failed", zap.String("job_id", t.JobID), zap.Error(err))
				orch.FailJob(t, err)
			}
		})
	}

	gate := auth.NewGate(auth.GateDeps{
		Users:    store,
		Attempts: store,
		LastSync: store,
		Vault:    v,
		Source:   scraper,
		Limiter:  limiter,
		Cache:    stageCache,
		Syncs:    orch,
	}, cfg.AllowedDomains, cfg.RateLimitPerMin, cfg.AutoSyncEnabled, logger)

	h := &api.Handler{
		Gate:      gate,
		Users:     store,
		Jobs:      store,
		Syncs:     orch,
		Secrets:   v,
		DB:        store,
		JWTSecret: cfg.JWTSecret,
		AccessTTL: cfg.AccessTTL,
		Log:       logger,
	}
	if cfg.GoogleEnabled() {
		h.Google = oauth.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI, cfg.StateKey)
	} else {
		logger.Warn("google credentials missing, provider sign-in disabled")
	}

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: api.NewRouter(h)}

	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.ListenAndServe() }()
	logger.Info("sync-service listening", zap.String("port", cfg.Port))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Info("shutting down", zap.String("signal", s.String()))
	case err := <-srvErr:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}
