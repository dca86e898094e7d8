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

	"github.com/redis/go-redis/v9"

	"echoself/internal/app"
	"echoself/internal/config"
	"echoself/internal/ratelimit"
	"echoself/internal/server"
	"echoself/internal/util"
	"echoself/pkg/ai"
	"echoself/pkg/cache"
	"echoself/pkg/media"
	"echoself/pkg/queue"
	"echoself/pkg/storage"
	"echoself/pkg/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	defer redisClient.Close()

	dataStore, err := store.NewGormStore(cfg.DatabaseURL,
		store.WithEmbeddingDim(cfg.Embedding.Dim))
	if err != nil {
		fatal(logger, "failed to init database", err)
	}

	sessionTTL := cfg.Auth.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	sessions, err := store.NewJWTSessionStore(cfg.Auth.PrivateKeyPath, sessionTTL,
		store.NewRedisTokenRevoker(redisClient))
	if err != nil {
		fatal(logger, "failed to init sessions", err)
	}

	generator := ai.NewOpenAICompatGenerator(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model)
	embedder := ai.NewOllamaEmbedder(ai.NewOllamaClient(cfg.Embedding.BaseURL),
		cfg.Embedding.Model, cfg.Embedding.Dim)

	var (
		speech      media.SpeechSynthesizer
		video       media.VideoSynthesizer
		taskChecker media.CheckTaskFunc
	)
	if cfg.Newport.APIKey != "" {
		newport, err := media.NewNewportClient(cfg.Newport.APIKey, cfg.Newport.BaseURL)
		if err != nil {
			fatal(logger, "failed to init media client", err)
		}
		speech = media.NewNewportSpeech(newport, cfg.Newport.DefaultVoice)
		video = media.NewNewportVideo(newport)
		taskChecker = newport.CheckTask
	} else {
		logger.Warn("newport api key not set, media generation disabled")
	}

	taskCache, err := cache.NewTaskCache(cache.Config{
		Client: redisClient,
		TTL:    cfg.Chat.TaskTTL,
	})
	if err != nil {
		fatal(logger, "failed to init task cache", err)
	}

	stream := cfg.Worker.Stream
	if stream == "" {
		stream = "media:finalize"
	}
	finalizeQueue, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Client: redisClient,
		Stream: stream,
		Group:  cfg.Worker.Group,
	})
	if err != nil {
		fatal(logger, "failed to init finalize queue", err)
	}

	var objects storage.ObjectStore
	if cfg.Storage.Endpoint != "" {
		objects, err = storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			fatal(logger, "failed to init object storage", err)
		}
	} else {
		logger.Warn("object storage not configured, avatar uploads disabled")
	}

	appCore, err := app.New(app.Config{
		Store:       dataStore,
		Sessions:    sessions,
		Generator:   generator,
		Embedder:    embedder,
		Speech:      speech,
		Video:       video,
		TaskChecker: taskChecker,
		Tasks:       taskCache,
		Finalize:    finalizeQueue,
		Objects:     objects,

		TopK:               cfg.Chat.TopK,
		HistoryLimit:       cfg.Chat.HistoryLimit,
		SpeechPollAttempts: cfg.Chat.SpeechPollAttempts,
		SpeechPollInterval: cfg.Chat.SpeechPollInterval,
		VideoPollAttempts:  cfg.Chat.VideoPollAttempts,
		VideoPollInterval:  cfg.Chat.VideoPollInterval,
		TaskTTL:            cfg.Chat.TaskTTL,
	})
	if err != nil {
		fatal(logger, "failed to init app", err)
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	concurrency := cfg.Worker.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	finalizeQueue.Start(workerCtx, concurrency, appCore.FinalizeMedia)

	var chatLimiter *ratelimit.FixedWindowLimiter
	if cfg.Chat.RateLimitPerMinute > 0 {
		chatLimiter, err = ratelimit.NewFixedWindowLimiter(redisClient, "chat",
			cfg.Chat.RateLimitPerMinute, time.Minute)
		if err != nil {
			fatal(logger, "failed to init rate limiter", err)
		}
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		fatal(logger, "failed to parse trusted proxies", err)
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		ChatLimiter:    chatLimiter,
		TrustedProxies: trusted,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // chat turns wait on the speech poll budget
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fatal(logger, "server error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	stopWorkers()
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
