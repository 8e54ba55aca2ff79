// Package httpapi wires the persistence gateway, ingestion pipeline, rule
// engine, webhook dispatcher, broadcast hub, and OTA state machine into
// the HTTP and websocket surface described in §6.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stefanposs/webmacs/infrastructure/logging"
	"github.com/stefanposs/webmacs/infrastructure/metrics"
	"github.com/stefanposs/webmacs/infrastructure/middleware"
	"github.com/stefanposs/webmacs/internal/auth"
	"github.com/stefanposs/webmacs/internal/broadcast"
	"github.com/stefanposs/webmacs/internal/ingest"
	"github.com/stefanposs/webmacs/internal/ota"
	"github.com/stefanposs/webmacs/internal/store"
	"github.com/stefanposs/webmacs/internal/webhook"
)

// Deps bundles every collaborator a handler might need.
type Deps struct {
	Logger         *logging.Logger
	Verifier       *auth.Verifier
	AuthSvc        *auth.Service
	Pipeline       *ingest.Pipeline
	Store          *store.Store
	OTA            *ota.StateMachine
	ReleaseIndex   *ota.ReleaseIndex
	RunningVersion string
	Hub            *broadcast.Hub
	Dispatcher     *webhook.Dispatcher
	CORSOrigin     []string
	MaxBatchSize   int

	Metrics         *metrics.Metrics
	HealthChecker   *middleware.HealthChecker
	RateLimitPerMin int
	RequestTimeout  time.Duration
	MaxRequestBytes int64
	Stats           func() map[string]any
}

// NewRouter builds the full /api/v1 mux. The middleware chain mirrors
// §7's ingress pipeline: panic recovery first, then request-correlation
// tracing, security headers, body-size and timeout guards, per-client
// rate limiting, Prometheus instrumentation, CORS, and finally bearer
// auth (exempting the paths auth.Middleware itself treats as public).
func NewRouter(d Deps) http.Handler {
	if d.MaxBatchSize <= 0 {
		d.MaxBatchSize = 500
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}
	if d.MaxRequestBytes <= 0 {
		d.MaxRequestBytes = 8 << 20
	}
	if d.RateLimitPerMin <= 0 {
		d.RateLimitPerMin = 600
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", d.health).Methods(http.MethodGet)
	if d.HealthChecker != nil {
		api.Handle("/health/detail", d.HealthChecker.Handler()).Methods(http.MethodGet)
	}
	if d.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
	api.HandleFunc("/stats", d.stats).Methods(http.MethodGet)

	api.HandleFunc("/auth/login", d.login).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", d.logout).Methods(http.MethodPost)

	api.HandleFunc("/datapoints", d.ingestOne).Methods(http.MethodPost)
	api.HandleFunc("/datapoints/batch", d.ingestBatch).Methods(http.MethodPost)
	api.HandleFunc("/datapoints/latest", d.latestDatapoints).Methods(http.MethodGet)

	api.HandleFunc("/ota/check", d.otaCheck).Methods(http.MethodGet)
	api.HandleFunc("/ota/{id}/apply", d.otaApply).Methods(http.MethodPost)
	api.HandleFunc("/ota/{id}/rollback", d.otaRollback).Methods(http.MethodPost)

	api.HandleFunc("/webhooks", d.createWebhook).Methods(http.MethodPost)
	api.HandleFunc("/webhooks", d.listWebhooks).Methods(http.MethodGet)
	api.HandleFunc("/webhooks/{id}/deliveries", d.listDeliveries).Methods(http.MethodGet)

	api.HandleFunc("/channels/controller", d.controllerChannel)
	api.HandleFunc("/channels/frontend", d.frontendChannel)

	rl := middleware.NewRateLimiterWithWindow(d.RateLimitPerMin, time.Minute, d.RateLimitPerMin, d.Logger)
	cors := middleware.NewCORSMiddleware(&middleware.CORSConfig{AllowedOrigins: d.CORSOrigin})
	recovery := middleware.NewRecoveryMiddleware(d.Logger)
	tracing := middleware.NewTracingMiddleware(d.Logger)
	security := middleware.NewSecurityHeadersMiddleware(middleware.DefaultSecurityHeaders())
	bodyLimit := middleware.NewBodyLimitMiddleware(d.MaxRequestBytes)
	timeoutMw := middleware.NewTimeoutMiddleware(d.RequestTimeout)

	var handler http.Handler = r
	handler = auth.Middleware(d.Verifier)(handler)
	handler = cors.Handler(handler)
	if d.Metrics != nil {
		handler = middleware.MetricsMiddleware("webmacs", d.Metrics)(handler)
	}
	handler = rl.Handler(handler)
	handler = timeoutMw.Handler(handler)
	handler = bodyLimit.Handler(handler)
	handler = security.Handler(handler)
	handler = tracing.Handler(handler)
	handler = recovery.Handler(handler)
	return handler
}
