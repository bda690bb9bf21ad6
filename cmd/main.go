package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/playwright-community/playwright-go"
	"github.com/robfig/cron/v3"

	"autoapply/internal/artifacts"
	"autoapply/internal/cache"
	"autoapply/internal/config"
	"autoapply/internal/core/autoapply"
	"autoapply/internal/core/orchestrator"
	"autoapply/internal/core/queue"
	"autoapply/internal/core/tierscraper"
	"autoapply/internal/credentials"
	"autoapply/internal/humanize"
	"autoapply/internal/logger"
	"autoapply/internal/platform/llm"
	rds "autoapply/internal/platform/redis"
	tasks "autoapply/internal/platform/tasks"
	"autoapply/internal/proxy"
	"autoapply/internal/ratelimit"
	"autoapply/internal/server"
	"autoapply/internal/worker"
)

func main() {
	cfg := config.Load()
	log.Printf("[autoapply] starting at %s (env=%s)\n", cfg.HTTPAddr, cfg.AppEnv)

	// Initialize logger
	logr := logger.New("main")

	// Redis client
	redisSvc, err := rds.New(rds.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer redisSvc.Close()

	// Asynq client and server
	taskClient := tasks.New(redisSvc)
	asynqServer := asynq.NewServer(redisSvc.AsynqRedisOpt(), asynq.Config{
		Concurrency: cfg.QueueConcurrency,
		Queues:      map[string]int{"default": 1},
	})

	// Proxy pool and browser-facing services
	proxyPool := proxy.New(&cfg)
	sim := humanize.New(cfg.Settings.Delays)

	cacheTTL := time.Duration(cfg.Settings.Cache.DefaultTTL) * time.Second
	cacheSvc := cache.New(cfg.Settings.Cache.Capacity, cacheTTL, cache.NewPolicy(cfg.Settings.Cache.Policy))

	limiter := ratelimit.New(ratelimit.NewRedisStore(redisSvc), cfg.Settings.Tiers)

	vault, err := credentials.NewVault(cfg.CredentialsKey)
	if err != nil {
		log.Fatalf("failed to initialize credentials vault: %v", err)
	}

	// LLM advisor initialized from environment variables; nil when no key is set
	llmSvc, err := llm.New(&cfg)
	if err != nil {
		log.Fatalf("failed to initialize LLM service: %v", err)
	}

	artifactStore := artifacts.New(&cfg)

	// Core services
	executor := queue.NewBrowserExecutor(&cfg, proxyPool)
	queueSvc := queue.New(redisSvc, taskClient, executor, cfg.TaskMaxRetries)
	tierSvc := tierscraper.New(limiter, cacheSvc, executor, cacheTTL)

	factory := func(ctx context.Context, headless bool) (autoapply.Orchestrator, error) {
		orc, err := orchestrator.New(ctx, &cfg, proxyPool, headless)
		if err != nil {
			return nil, err
		}
		return orc, nil
	}
	autoSvc := autoapply.New(autoapply.NewRedisStore(redisSvc), vault, factory, sim).
		WithQuota(limiter).
		WithSearchCache(cacheSvc, cacheTTL).
		WithArtifacts(artifactStore)
	if llmSvc != nil {
		autoSvc = autoSvc.WithAdvisor(llmSvc)
	}

	// Worker mux
	mux := worker.NewMux()
	mux.HandleFunc(tasks.TaskTypeScrape, queueSvc.HandleScrapeTask)

	// Start worker
	_, workerCancel := context.WithCancel(context.Background())
	go func() {
		if err := asynqServer.Start(mux.Mux()); err != nil {
			log.Printf("[worker] stopped: %v\n", err)
		}
	}()

	// Background maintenance
	scheduler := cron.New()
	scheduler.AddFunc("@every 5m", func() {
		if removed := cacheSvc.Sweep(); removed > 0 {
			logr.LogDebugf("cache sweep removed %d entries", removed)
		}
	})
	scheduler.AddFunc("@every 15m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		proxyPool.HealthCheck(ctx)
	})
	scheduler.AddFunc("@every 30m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := proxyPool.Refresh(ctx); err != nil {
			logr.LogWarnf("proxy refresh: %v", err)
		}
	})
	scheduler.Start()

	// HTTP server
	app := fiber.New(fiber.Config{
		AppName: "AutoApply Engine",
		JSONEncoder: func(v interface{}) ([]byte, error) {
			var buf bytes.Buffer
			encoder := json.NewEncoder(&buf)
			encoder.SetEscapeHTML(false)
			if err := encoder.Encode(v); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
	})
	// Serve saved artifacts (e.g., application confirmations) from DATA_DIR under /files
	app.Static("/files", cfg.DataDir)

	// Register routes with health handler
	deps := server.Dependencies{
		Queue:     queueSvc,
		Tier:      tierSvc,
		Cache:     cacheSvc,
		Proxy:     proxyPool,
		AutoApply: autoSvc,
		Redis:     redisSvc,
	}
	healthHandler := server.RegisterRoutes(app, deps)
	healthHandler.AddCheck("data_dir", func(ctx context.Context) error {
		_, err := os.Stat(cfg.DataDir)
		return err
	})
	// The driver probe spawns a node process, so run it once and cache.
	var driverOnce sync.Once
	var driverErr error
	healthHandler.AddCheck("playwright", func(ctx context.Context) error {
		driverOnce.Do(func() {
			pw, err := playwright.Run()
			if err != nil {
				driverErr = err
				return
			}
			_ = pw.Stop()
		})
		return driverErr
	})

	// Mark application as ready after all services are initialized
	go func() {
		time.Sleep(5 * time.Second) // Allow services to fully initialize
		healthHandler.SetReady()
	}()

	// Graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		logr.LogInfo("Shutting down...")
		scheduler.Stop()
		workerCancel()
		asynqServer.Shutdown()
		_ = app.ShutdownWithTimeout(5 * time.Second)
	}()

	if err := app.Listen(cfg.HTTPAddr); err != nil {
		log.Fatalf("server listen: %v", err)
	}
}
