package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"luminalib/internal/app"
	"luminalib/internal/config"
	"luminalib/internal/enrich"
	"luminalib/internal/ratelimit"
	"luminalib/internal/recclient"
	"luminalib/internal/server"
	"luminalib/internal/util"
	"luminalib/pkg/llm"
	"luminalib/pkg/queue"
	"luminalib/pkg/storage"
	"luminalib/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}

	var revoker store.TokenRevoker
	if cfg.RedisAddr != "" {
		revoker = store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
	} else {
		revoker = store.NewMemoryTokenRevoker()
	}
	sessions, err := store.NewJWTSessionStore(
		cfg.JWTSecret,
		cfg.JWTAlgorithm,
		time.Duration(cfg.JWTExpirationMinutes)*time.Minute,
		revoker,
		store.JWTOptions{},
	)
	if err != nil {
		log.Fatalf("failed to init session store: %v", err)
	}

	backend, err := storage.New(storage.Config{
		Backend:        cfg.StorageBackend,
		LocalPath:      cfg.StoragePath,
		MinioEndpoint:  cfg.MinioEndpoint,
		MinioAccessKey: cfg.MinioAccessKey,
		MinioSecretKey: cfg.MinioSecretKey,
		MinioBucket:    cfg.MinioBucket,
		MinioUseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		log.Fatalf("failed to init storage backend: %v", err)
	}

	provider, err := llm.New(llm.Config{
		Provider: cfg.LLMProvider,
		URL:      cfg.LLMURL,
		APIKey:   cfg.LLMAPIKey,
		Model:    cfg.LLMModel,
	})
	if err != nil {
		log.Fatalf("failed to init llm provider: %v", err)
	}

	taskQueue, err := queue.New(queue.Config{
		Backend:       cfg.QueueBackend,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		AMQPURL:       cfg.AMQPURL,
	})
	if err != nil {
		log.Fatalf("failed to init task queue: %v", err)
	}
	defer taskQueue.Close()

	runner := enrich.New(dataStore, provider, taskQueue, time.Duration(cfg.EnrichTimeoutSeconds)*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx, cfg.EnrichConcurrency)

	var recs *recclient.Client
	if cfg.RecommendationURL != "" {
		recs = recclient.NewClient(cfg.RecommendationURL)
	}

	appCore, err := app.New(app.Config{
		Store:           dataStore,
		Sessions:        sessions,
		Storage:         backend,
		Enricher:        runner,
		Recommendations: recs,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	var loginLimiter *ratelimit.FixedWindowLimiter
	if cfg.LoginRateLimit > 0 {
		window := time.Duration(cfg.LoginRateWindowSeconds) * time.Second
		loginLimiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "luminalib:ratelimit:login", cfg.LoginRateLimit, window)
		if err != nil {
			log.Fatalf("failed to init login rate limiter: %v", err)
		}
	}

	httpServer, err := server.New(server.Config{
		App:          appCore,
		LoginLimiter: loginLimiter,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("api server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
