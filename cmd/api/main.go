package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/payment-mock/internal/app"
	"github.com/noah-isme/payment-mock/internal/config"
	"github.com/noah-isme/payment-mock/internal/health"
	"github.com/noah-isme/payment-mock/internal/idempotency"
	"github.com/noah-isme/payment-mock/internal/obs"
	"github.com/noah-isme/payment-mock/internal/payment"
	"github.com/noah-isme/payment-mock/internal/ratelimit"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	tracingEnabled := cfg.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:      obs.DefaultServiceName,
			ServiceVersion:   version,
			Endpoint:         cfg.OTLPEndpoint,
			Exporter:         cfg.TracingExporter,
			SamplingRatio:    cfg.TracingSampling,
			Environment:      cfg.AppEnv,
			StageDelay:       cfg.JobStageDelay,
			IdempotencyStore: cfg.IdempotencyStore,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url")
		}
		redisClient = redis.NewClient(redisOpts)
		if err := redisotel.InstrumentTracing(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("ping redis")
		}
	}

	var ledger idempotency.Ledger = idempotency.NewMemoryLedger()
	if cfg.IdempotencyStore == config.IdempotencyStoreRedis {
		ledger = &idempotency.RedisLedger{R: redisClient, TTL: cfg.IdempotencyTTL}
	}

	store := payment.NewStore()
	svc := payment.NewService(payment.ServiceConfig{
		Store:      store,
		Ledger:     ledger,
		StageDelay: cfg.JobStageDelay,
		Logger:     &logger,
	})

	var rateLimiter *limiter.Limiter
	if cfg.RateLimit != "" {
		limitStore, err := ratelimit.NewStore(redisClient, cfg.MetricsNamespace+":ratelimit")
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise rate limit store")
		}
		rateLimiter, err = ratelimit.New(cfg.RateLimit, limitStore)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse RATE_LIMIT")
		}
	}

	healthHandler := health.Handler{RedisTimeout: cfg.ReadyRedisTimeout}
	if redisClient != nil {
		healthHandler.Checker = health.RedisChecker{Client: redisClient}
	}

	deps := app.Dependencies{
		Logger:             logger,
		Service:            svc,
		APIKey:             cfg.APIKey,
		Health:             healthHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		BodyLimitBytes:     cfg.BodyLimitBytes,
		SecurityHeaders:    cfg.SecurityHeaders,
		Tracing:            tracingEnabled,
		RateLimiter:        rateLimiter,
	}
	if cfg.MetricsEnabled {
		deps.HTTPMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBuckets), nil)
		app.RegisterStoreGauges(cfg.MetricsNamespace, store, prometheus.DefaultRegisterer)
		deps.MetricsHandler = promhttp.Handler()
	}
	if cfg.PprofEnabled {
		deps.Pprof = app.NewPprofHandler(cfg.PprofUser, cfg.PprofPass)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           app.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("idempotency_store", cfg.IdempotencyStore).Dur("stage_delay", cfg.JobStageDelay).Msg("server starting")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("http shutdown")
		}
		cancel()
	}

	store.Close()
	stats := store.Stats()
	logger.Info().Int("intents", stats.Intents).Int("payments", stats.Payments).Int("refunds", stats.Refunds).Msg("server stopped")
}
