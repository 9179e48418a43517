package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/ortaizi/sync-service/internal/config"
	"github.com/ortaizi/sync-service/internal/log"
	"github.com/ortaizi/sync-service/internal/metrics"
	"github.com/ortaizi/sync-service/internal/portal"
	"github.com/ortaizi/sync-service/internal/queue"
	"github.com/ortaizi/sync-service/internal/repo"
	"github.com/ortaizi/sync-service/internal/security"
	syncsvc "github.com/ortaizi/sync-service/internal/sync"
	"github.com/ortaizi/sync-service/internal/vault"
)

// The worker consumes dispatched sync tasks and runs the pipeline. Tasks
// carry no plaintext secret; the credential is re-loaded from the vault.
func main() {
	cfg := config.Load()

	prod := os.Getenv("APP_ENV") == "production"
	logger, err := log.Init(prod)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if os.Getenv("DD_AGENT_HOST") != "" {
		tracer.Start(tracer.WithService("sync-worker"))
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

	if cfg.VaultKey == "" {
		logger.Fatal("VAULT_KEY is required")
	}
	cipher, err := security.NewCipher(cfg.VaultKey, cfg.VaultSalt)
	if err != nil {
		logger.Fatal("vault cipher", zap.Error(err))
	}
	v := vault.New(cipher, store, nil, logger)

	events, err := queue.NewRabbit(cfg.RabbitURL, cfg.RabbitExchange)
	if err != nil {
		logger.Fatal("rabbit connect", zap.Error(err))
	}
	defer events.Close()

	scraper := portal.NewClient(cfg.ScraperURL)
	orch := syncsvc.NewOrchestrator(store, store, scraper, events, cfg.RabbitExchange, cfg.SyncJobTimeout, logger)

	consumer, err := queue.NewConsumer(cfg.RabbitURL, cfg.RabbitExchange, cfg.TaskQueue, queue.KeySyncRequested)
	if err != nil {
		logger.Fatal("rabbit consumer", zap.Error(err))
	}
	defer consumer.Close()

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handle := func(body []byte) error {
		var task queue.SyncRequested
		if err := json.Unmarshal(body, &task); err != nil {
			// poison message, drop it
			logger.Error("malformed task", zap.Error(err))
			return nil
		}

		t := syncsvc.Task{JobID: task.JobID, UserID: task.UserID}
		username, secret, err := v.Plaintext(runCtx, task.UserID, task.InstitutionID)
		if err != nil {
			logger.Error("credential load failed",
				zap.String("job_id", task.JobID), zap.String("user_id", task.UserID.Hex()), zap.Error(err))
			orch.FailJob(t, err)
			return nil
		}
		t.Creds = syncsvc.Credentials{
			InstitutionID: task.InstitutionID,
			Username:      username,
			Secret:        secret,
		}
		orch.Run(t)
		return nil
	}

	logger.Info("sync-worker consuming",
		zap.String("queue", cfg.TaskQueue), zap.Int("workers", cfg.WorkerConcurrency))
	if err := consumer.Consume(runCtx, cfg.WorkerConcurrency, handle); err != nil {
		logger.Fatal("consume", zap.Error(err))
	}
}
