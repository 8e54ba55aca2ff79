// Package runtime assembles WebMACS's collaborators (persistence gateway,
// cache, broadcast hub, rule engine, webhook dispatcher, ingestion
// pipeline, OTA state machine, auth) into one object the HTTP entry point
// wires to a router, and registers the process's background janitors
// (§5/§12).
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/stefanposs/webmacs/infrastructure/config"
	"github.com/stefanposs/webmacs/infrastructure/database"
	"github.com/stefanposs/webmacs/infrastructure/logging"
	"github.com/stefanposs/webmacs/infrastructure/metrics"
	"github.com/stefanposs/webmacs/infrastructure/middleware"
	"github.com/stefanposs/webmacs/infrastructure/service"
	"github.com/stefanposs/webmacs/internal/auth"
	"github.com/stefanposs/webmacs/internal/broadcast"
	"github.com/stefanposs/webmacs/internal/cache"
	"github.com/stefanposs/webmacs/internal/httpapi"
	"github.com/stefanposs/webmacs/internal/ingest"
	"github.com/stefanposs/webmacs/internal/ota"
	"github.com/stefanposs/webmacs/internal/plugins"
	"github.com/stefanposs/webmacs/internal/rules"
	"github.com/stefanposs/webmacs/internal/store"
	"github.com/stefanposs/webmacs/internal/webhook"
)

// Config holds every environment-derived setting the runtime needs.
type Config struct {
	DatabaseURL           string
	RedisURL              string
	SecretKey             string
	AccessTokenTTL         time.Duration
	AccessTokenRetention   time.Duration // used as the blacklist janitor's retention window
	CORSOrigins            []string
	UpdateDir              string
	WebhookPermits         int
	SensorWebhookInterval  float64
	BroadcastInterval      float64
	MaxBatchSize           int
	RunningVersion         string
	GithubOwner            string
	GithubRepo             string
	RateLimitPerMinute     int
	RequestTimeout         time.Duration
	MaxRequestBodyBytes    int64
}

// LoadConfig reads Config from the process environment, applying the
// defaults §6 documents.
func LoadConfig() (Config, error) {
	// Best-effort: a missing .env is normal in production, where settings
	// come from the process environment directly.
	_ = godotenv.Load()

	dbURL, err := config.RequireEnv("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}
	secret, err := config.RequireEnv("SECRET_KEY")
	if err != nil {
		return Config{}, err
	}
	ttlMinutes := config.GetEnvInt("ACCESS_TOKEN_EXPIRE_MINUTES", 24*60)

	return Config{
		DatabaseURL:           dbURL,
		RedisURL:              config.GetEnv("REDIS_URL", ""),
		SecretKey:             secret,
		AccessTokenTTL:        time.Duration(ttlMinutes) * time.Minute,
		AccessTokenRetention:  time.Duration(ttlMinutes) * time.Minute,
		CORSOrigins:           config.SplitAndTrimCSV(config.GetEnv("CORS_ORIGINS", "")),
		UpdateDir:             config.GetEnv("UPDATE_DIR", "./data/firmware"),
		WebhookPermits:        config.GetEnvInt("WEBHOOK_CONCURRENCY", 15),
		SensorWebhookInterval: float64(config.GetEnvInt("SENSOR_WEBHOOK_INTERVAL_MS", 5000)) / 1000.0,
		BroadcastInterval:     float64(config.GetEnvInt("BROADCAST_INTERVAL_MS", 200)) / 1000.0,
		MaxBatchSize:          config.GetEnvInt("MAX_BATCH_SIZE", 500),
		RunningVersion:        config.GetEnv("FIRMWARE_VERSION", "0.0.0"),
		GithubOwner:           config.GetEnv("GITHUB_RELEASE_OWNER", ""),
		GithubRepo:            config.GetEnv("GITHUB_RELEASE_REPO", ""),
		RateLimitPerMinute:    config.GetEnvInt("RATE_LIMIT_PER_MINUTE", 600),
		RequestTimeout:        time.Duration(config.GetEnvInt("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
		MaxRequestBodyBytes:   int64(config.GetEnvInt("MAX_REQUEST_BODY_BYTES", 8<<20)),
	}, nil
}

// Runtime is the fully-wired process object.
type Runtime struct {
	Config   Config
	Logger   *logging.Logger
	DB       *sqlx.DB
	Gateway  *database.Gateway
	Store    *store.Store
	Cache    *cache.Cache
	Hub      *broadcast.Hub
	Dispatch *webhook.Dispatcher
	Rules    *rules.Engine
	Registry *plugins.Registry
	Pipeline *ingest.Pipeline
	OTA      *ota.StateMachine
	Releases *ota.ReleaseIndex
	Issuer   *auth.Issuer
	Verifier *auth.Verifier
	AuthSvc  *auth.Service
	Metrics  *metrics.Metrics
	Health   *middleware.HealthChecker
	base     *service.BaseService
}

// New connects to the database and wires every collaborator.
func New(cfg Config, logger *logging.Logger) (*Runtime, error) {
	if logger == nil {
		logger = logging.NewFromEnv("webmacs")
	}

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	gw := database.NewGateway(db)
	st := store.New(gw)

	redisCache, err := cache.New(cfg.RedisURL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect cache: %w", err)
	}

	hub := broadcast.NewHub(logger)
	dispatcher := webhook.New(st, cfg.WebhookPermits, logger)
	engine := rules.New(st, dispatcher, logger)
	registry := plugins.New(st)

	pipeline := ingest.New(ingest.Config{
		Store:             st,
		Registry:          registry,
		Rules:             engine,
		Dispatcher:        dispatcher,
		Hub:               hub,
		Logger:            logger,
		WebhookInterval:   cfg.SensorWebhookInterval,
		BroadcastInterval: cfg.BroadcastInterval,
	})

	otaMachine := ota.New(st, cfg.UpdateDir, logger)
	var releases *ota.ReleaseIndex
	if cfg.GithubOwner != "" && cfg.GithubRepo != "" {
		releases = ota.NewReleaseIndex(cfg.GithubOwner, cfg.GithubRepo, logger)
	}

	issuer := auth.NewIssuer(cfg.SecretKey, cfg.AccessTokenTTL)
	verifier := auth.NewVerifier(issuer, st, st)
	authSvc := auth.NewService(st, issuer, st)

	m := metrics.New("webmacs")
	health := middleware.NewHealthChecker(cfg.RunningVersion)
	health.RegisterCheck("database", func() error { return db.Ping() })
	health.RegisterCheck("cache", func() error { return redisCache.HealthCheck(context.Background()) })

	base := service.NewBase(&service.BaseConfig{Name: "webmacs", Logger: logger})
	base.WithHydrate(func(ctx context.Context) error {
		return db.PingContext(ctx)
	})
	base.WithStats(func() map[string]any {
		return service.NewStatsCollector().
			Add("controller_subscribers", hub.SubscriberCount("controller")).
			Add("frontend_subscribers", hub.SubscriberCount("frontend")).
			Add("broadcast_topics", hub.TopicCount()).
			Build()
	})
	base.AddTickerWorker(cfg.AccessTokenRetention, func(ctx context.Context) error {
		n, err := st.PurgeExpiredBlacklistEntries(ctx, cfg.AccessTokenRetention)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.WithContext(ctx).WithField("purged", n).Info("blacklist janitor: purged expired entries")
		}
		return nil
	}, service.WithTickerWorkerName("blacklist-janitor"))

	return &Runtime{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Gateway:  gw,
		Store:    st,
		Cache:    redisCache,
		Hub:      hub,
		Dispatch: dispatcher,
		Rules:    engine,
		Registry: registry,
		Pipeline: pipeline,
		OTA:      otaMachine,
		Releases: releases,
		Issuer:   issuer,
		Verifier: verifier,
		AuthSvc:  authSvc,
		Metrics:  m,
		Health:   health,
		base:     base,
	}, nil
}

// Router builds the HTTP handler for this runtime.
func (rt *Runtime) Router() httpapi.Deps {
	return httpapi.Deps{
		Logger:         rt.Logger,
		Verifier:       rt.Verifier,
		AuthSvc:        rt.AuthSvc,
		Pipeline:       rt.Pipeline,
		Store:          rt.Store,
		OTA:            rt.OTA,
		ReleaseIndex:   rt.Releases,
		RunningVersion: rt.Config.RunningVersion,
		Hub:            rt.Hub,
		Dispatcher:     rt.Dispatch,
		CORSOrigin:     rt.Config.CORSOrigins,
		MaxBatchSize:   rt.Config.MaxBatchSize,

		Metrics:         rt.Metrics,
		HealthChecker:   rt.Health,
		RateLimitPerMin: rt.Config.RateLimitPerMinute,
		RequestTimeout:  rt.Config.RequestTimeout,
		MaxRequestBytes: rt.Config.MaxRequestBodyBytes,
		Stats:           rt.Statistics,
	}
}

// Statistics returns the runtime's current operational counters (§6 /stats).
func (rt *Runtime) Statistics() map[string]any {
	return rt.base.Statistics()
}

// Start launches background janitors.
func (rt *Runtime) Start(ctx context.Context) error {
	return rt.base.Start(ctx)
}

// Stop halts background janitors and closes the database/cache.
func (rt *Runtime) Stop() error {
	_ = rt.base.Stop()
	_ = rt.Cache.Close()
	return rt.DB.Close()
}
