package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"renderworker/internal/adapter/repo"
	"renderworker/internal/artifact"
	"renderworker/internal/httpapi"
	"renderworker/internal/infra"
	"renderworker/internal/orchestrator"
	"renderworker/internal/promptgen"
	"renderworker/internal/providers/dashscope"
	"renderworker/internal/providers/fal"
	"renderworker/internal/providers/openai"
	"renderworker/internal/storage"
)

const runLockKey = "renderworker:pass"

func main() {
	_ = godotenv.Load()

	once := flag.Bool("once", false, "run a single pass and exit")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)
	jobs := repo.NewJobRepository(runner)

	httpClient := &http.Client{Timeout: 60 * time.Second}

	falClient := fal.NewClient(fal.Options{
		APIKey:       cfg.FalKey,
		BaseURL:      cfg.FalBaseURL,
		Timeout:      cfg.FalTimeout,
		PollInterval: cfg.FalPollInterval,
		StorageRoot:  cfg.StorageRoot,
		HTTPClient:   httpClient,
		Logger:       &logger,
	})
	dashscopeClient := dashscope.NewClient(dashscope.Options{
		APIKey:  cfg.DashScopeAPIKey,
		BaseURL: cfg.DashScopeBaseURL,
		Model:   cfg.DashScopeModel,
		Timeout: cfg.DashScopeTimeout,
		Logger:  &logger,
	})

	registry := orchestrator.Registry{}
	for short, providerModel := range orchestrator.FalModelAliases {
		registry[short] = orchestrator.Capability{Adapter: falClient, ProviderModel: providerModel}
	}
	registry[cfg.DashScopeModel] = orchestrator.Capability{Adapter: dashscopeClient, ProviderModel: cfg.DashScopeModel}

	outputStore, err := storage.NewFileStore(cfg.OutputDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure output storage")
	}
	var uploader artifact.Uploader
	if cfg.S3Endpoint != "" {
		s3, err := artifact.NewS3Uploader(artifact.S3Options{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: failed to configure object storage")
		}
		uploader = s3
	}
	materializer := artifact.NewMaterializer(artifact.Options{
		HTTPClient: httpClient,
		Store:      outputStore,
		Uploader:   uploader,
		CDNBaseURL: cfg.CDNBaseURL,
		Logger:     logger,
	})

	engine := orchestrator.New(orchestrator.Options{
		Store:        jobs,
		Registry:     registry,
		Materializer: materializer,
		Logger:       logger,
		PerOwnerCap:  cfg.JobsPerOwner,
		StuckAfter:   cfg.StuckAfter,
	})

	var expander httpapi.PromptExpander
	if cfg.OpenAIAPIKey != "" {
		completer, err := openai.NewClient(openai.Options{
			APIKey:       cfg.OpenAIAPIKey,
			Model:        cfg.OpenAIModel,
			BaseURL:      cfg.OpenAIBaseURL,
			Organization: cfg.OpenAIOrg,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: failed to configure text backend")
		}
		expander = promptgen.NewService(completer, logger)
	} else {
		logger.Warn().Msg("worker: OPENAI_API_KEY missing, prompt expansion disabled")
	}

	var lock *infra.RunLock
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: invalid REDIS_URL")
		}
		lock = infra.NewRunLock(redis.NewClient(redisOpts), runLockKey, cfg.StuckAfter)
	}

	if *once {
		runPass(ctx, engine, lock, logger)
		return
	}

	server := infra.NewOpsServer(cfg, httpapi.NewRouter(httpapi.NewHandler(jobs, expander, logger)))
	go func() {
		logger.Info().Msgf("worker: ops server listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("worker: ops server failed")
		}
	}()

	logger.Info().Dur("interval", cfg.WorkerInterval).Msg("worker: started")
	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()
	runPass(ctx, engine, lock, logger)
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("worker: ops server shutdown failed")
			}
			logger.Info().Msg("worker: stopped")
			return
		case <-ticker.C:
			runPass(ctx, engine, lock, logger)
		}
	}
}

// runPass executes one orchestration pass under the run lock. A pass skipped
// because another invocation holds the lock is not an error; an unreachable
// job store is.
func runPass(ctx context.Context, engine *orchestrator.Orchestrator, lock *infra.RunLock, logger infra.Logger) {
	release, acquired, err := lock.Acquire(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: run lock unavailable")
	}
	if !acquired {
		logger.Info().Msg("worker: previous pass still running, skipping")
		return
	}
	defer release()

	if err := engine.RunOnce(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Fatal().Err(err).Msg("worker: orchestration pass failed")
	}
}
