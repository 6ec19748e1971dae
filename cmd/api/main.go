package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/zibal-relay/internal/common"
	"github.com/noah-isme/zibal-relay/internal/config"
	"github.com/noah-isme/zibal-relay/internal/health"
	"github.com/noah-isme/zibal-relay/internal/obs"
	"github.com/noah-isme/zibal-relay/internal/ratelimit"
	"github.com/noah-isme/zibal-relay/internal/relay"
	"github.com/noah-isme/zibal-relay/internal/resilience"
	"github.com/noah-isme/zibal-relay/internal/zibal"
)

const serviceVersion = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	if cfg.Debug {
		logLevel = "debug"
	}
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "relay")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "zibal-relay",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	gateway := &zibal.Client{
		MerchantID: cfg.ZibalMerchantID,
		VerifyURL:  cfg.ZibalVerifyURL,
		PaymentURL: cfg.ZibalPaymentURL,
		HTTP: &resilience.HTTPClient{
			Client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker: resilience.NewBreaker(10, 0.5, 30*time.Second).WithTarget("zibal-verify").WithLogger(logger),
			// one verify attempt per callback to avoid duplicate settlement
			MaxAttempts: 1,
			Timeout:     cfg.VerifyTimeout,
			Target:      "zibal-verify",
		},
	}

	forwarder := &relay.Forwarder{
		WebhookURL: cfg.BackendWebhookURL(),
		Signer:     relay.Signer{Secret: cfg.WebhookSecret},
		HTTP: &resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     resilience.NewBreaker(10, 0.5, 30*time.Second).WithTarget("backend-webhook").WithLogger(logger),
			MaxAttempts: 1,
			Timeout:     cfg.ForwardTimeout,
			Target:      "backend-webhook",
		},
	}

	orchestrator := &relay.Orchestrator{
		Verifier:   gateway,
		Forwarder:  forwarder,
		SuccessURL: cfg.FrontendBaseURL + "/payment/success",
		FailureURL: cfg.FrontendBaseURL + "/payment/failed",
		Logger:     logger,
	}
	relayHandler := &relay.Handler{Orchestrator: orchestrator, Gateway: gateway}

	limit := ratelimit.Handler{
		Limiter: ratelimit.NewMemoryLimiter(),
		Config: ratelimit.Config{
			Key:    common.ClientIP,
			Window: cfg.CallbackRateWindow,
			Max:    cfg.CallbackRateMax,
		},
		OnError: func(err error) {
			logger.Error().Err(err).Msg("rate limiter")
		},
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	infoHandler := health.Handler{Service: "zibal-relay", Version: serviceVersion, Env: cfg.AppEnv}
	r.Get("/", infoHandler.Info)
	r.Get("/health", infoHandler.Health)

	r.Group(func(pub chi.Router) {
		pub.Use(limit.Middleware)
		pub.Get("/redirect/{trackId}", relayHandler.Redirect)
		pub.Get("/api/zibal/callback", relayHandler.Callback)
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}
