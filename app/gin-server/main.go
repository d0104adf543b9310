package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/callrelay/config"
	"github.com/yoockh/callrelay/internal/api/handlers"
	"github.com/yoockh/callrelay/internal/api/middleware"
	"github.com/yoockh/callrelay/internal/api/routes"
	"github.com/yoockh/callrelay/internal/cache"
	"github.com/yoockh/callrelay/internal/logger"
	"github.com/yoockh/callrelay/internal/providers/llm"
	"github.com/yoockh/callrelay/internal/providers/webhook"
	"github.com/yoockh/callrelay/internal/realtime"
	"github.com/yoockh/callrelay/internal/relay"
	mongorepo "github.com/yoockh/callrelay/internal/repositories/mongo"
	pgrepo "github.com/yoockh/callrelay/internal/repositories/postgres"
	"github.com/yoockh/callrelay/internal/services"
	"github.com/yoockh/callrelay/internal/storage"
	"github.com/yoockh/callrelay/internal/workers"
)

func main() {
	_ = godotenv.Load()

	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := services.PostCallDeps{
		Webhook: webhook.NewHTTPSender(15 * time.Second),
		Logger:  log,
	}

	// Optional backends: an unset env var disables that archival step.
	if err := config.InitMongo(); err == nil {
		if err := config.EnsureMongoIndexes(); err != nil {
			log.WithError(err).Warn("mongo indexes")
		}
		deps.Calls = mongorepo.NewCallRepo(config.MongoDatabase())
		log.Info("MongoDB connected")
	} else if !errors.Is(err, config.ErrNotConfigured) {
		log.WithError(err).Fatal("MongoDB init error")
	}

	if err := config.InitPostgres(); err == nil {
		deps.Summaries = pgrepo.NewSummaryRepo(config.PostgresDB)
		log.Info("PostgreSQL connected")
	} else if !errors.Is(err, config.ErrNotConfigured) {
		log.WithError(err).Fatal("PostgreSQL init error")
	}

	if err := config.InitRedis(); err == nil {
		rc := cache.NewRedisCache(config.RedisClient)
		deps.Cache, deps.Publisher = rc, rc
		log.Info("Redis connected")
	} else if !errors.Is(err, config.ErrNotConfigured) {
		log.WithError(err).Fatal("Redis init error")
	}

	if cfg.GCSBucket != "" {
		up, err := storage.NewGCSUploader(ctx, cfg.GCSBucket)
		if err != nil {
			log.WithError(err).Fatal("GCS init error")
		}
		defer up.Close()
		deps.Uploader = up
	}

	extractor, err := newExtractor(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("extractor init error")
	}
	defer extractor.Close()
	deps.Extractor = extractor

	postCall := services.NewPostCallService(deps)

	var handOff relay.PostCallProcessor = postCall
	var pool *workers.PostCallPool
	if config.RedisClient != nil {
		pool = &workers.PostCallPool{Redis: config.RedisClient, Processor: postCall, Logger: log}
		if err := pool.Start(ctx); err != nil {
			log.WithError(err).Fatal("post-call workers")
		}
		handOff = pool
	}
	instructions := config.NewInstructions(cfg.SystemMessage)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := relay.NewMetrics(reg)

	store := relay.NewStore(cfg.SessionIdleTTL, cfg.SessionMax)
	store.OnEvict = func(id string) {
		metrics.Evicted(1)
		log.WithField("session_id", id).Warn("session evicted at capacity")
	}
	go store.Run(ctx, time.Minute, func(ids []string) {
		metrics.Evicted(len(ids))
		log.WithField("session_ids", ids).Warn("reaped idle sessions")
	})

	connector := realtime.NewConnector(realtime.Config{
		URL:    cfg.RealtimeURL,
		Model:  cfg.RealtimeModel,
		APIKey: cfg.OpenAIKey,
	})

	rl := relay.New(relay.Options{
		Store: store,
		Dial: func(ctx context.Context, h realtime.Handler) relay.Upstream {
			return connector.Open(ctx, h)
		},
		PostCall:              handOff,
		Instructions:          instructions.SystemMessage,
		Voice:                 cfg.Voice,
		Temperature:           cfg.Temperature,
		WebhookURL:            cfg.WebhookURL,
		ConfigDelay:           cfg.ConfigDelay,
		InboxSize:             cfg.InboxSize,
		HangupOnUpstreamClose: cfg.HangupOnUpstreamClose,
		Logger:                log,
		Metrics:               metrics,
	})

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		System:   handlers.NewSystemHandler(instructions, postCall, cfg.WebhookURL, cfg.Greeting, log),
		Media:    handlers.NewMediaHandler(rl, log, cfg.MediaReadTimeout),
		Calls:    handlers.NewCallHandler(postCall),
		JWT:      middleware.JWTOptions{Secret: cfg.AdminJWTSecret},
		Gatherer: reg,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Calls are tied to ctx through their request context.
	srv.BaseContext = func(_ net.Listener) context.Context { return ctx }

	go func() {
		log.WithField("port", cfg.Port).Info("server is listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	rl.Wait()
	if pool != nil {
		pool.Wait()
	}
	shutdownBackends(shutdownCtx, log)
}

func newExtractor(ctx context.Context, cfg *config.Settings) (llm.Extractor, error) {
	switch cfg.SummarizerProvider {
	case "vertex":
		return llm.NewVertexGemini(ctx, cfg.VertexProject, cfg.VertexLocation, cfg.VertexModel)
	default:
		return llm.NewOpenAIExtractor(cfg.OpenAIKey, cfg.SummarizerModel, os.Getenv("OPENAI_BASE_URL")), nil
	}
}

func shutdownBackends(ctx context.Context, log *logrus.Logger) {
	if config.MongoClient != nil {
		if err := config.MongoClient.Disconnect(ctx); err != nil {
			log.WithError(err).Warn("mongo disconnect")
		}
	}
	if config.RedisClient != nil {
		_ = config.RedisClient.Close()
	}
	if config.PostgresDB != nil {
		if sqlDB, err := config.PostgresDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
