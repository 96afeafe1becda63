package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	limiter "github.com/ulule/limiter/v3"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"

	"github.com/noah-isme/billing-engine/internal/app"
	"github.com/noah-isme/billing-engine/internal/common"
	"github.com/noah-isme/billing-engine/internal/config"
	"github.com/noah-isme/billing-engine/internal/currency"
	"github.com/noah-isme/billing-engine/internal/health"
	enginemw "github.com/noah-isme/billing-engine/internal/http/middleware"
	"github.com/noah-isme/billing-engine/internal/obs"
	"github.com/noah-isme/billing-engine/internal/pricing"
	"github.com/noah-isme/billing-engine/internal/ratelimit"
	"github.com/noah-isme/billing-engine/internal/repo"
	"github.com/noah-isme/billing-engine/internal/rule"
	"github.com/noah-isme/billing-engine/internal/security"
	"github.com/noah-isme/billing-engine/internal/tax"
	"github.com/noah-isme/billing-engine/internal/tenant"
	"github.com/noah-isme/billing-engine/internal/usage"
	"github.com/noah-isme/billing-engine/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "billing")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "billing-engine-api",
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "billing-engine-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	if err := runMigrations(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	taskClient := asynq.NewClient(asynq.RedisClientOpt{Addr: redisOpts.Addr, Password: redisOpts.Password, DB: redisOpts.DB})
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	validate := validator.New()

	rulesRepo := repo.RulesRepo{Pool: pool}
	ratesRepo := repo.RatesRepo{Pool: pool}
	productsRepo := repo.ProductsRepo{Pool: pool}

	recorder := &usage.Recorder{Client: taskClient, Logger: logger}
	tracker := &usage.StoreTracker{Q: rulesRepo, Recorder: recorder}

	ruleStore := &rule.Store{Q: rulesRepo, MaxPercentDiscount: decimal.NewFromFloat(cfg.MaxPercentDiscount)}
	ruleHandler := &rule.Handler{Store: ruleStore, Validate: validate}

	registry := &tax.Registry{
		Q:     ratesRepo,
		Cache: tax.NewCache(redisClient, cfg.RateCacheTTL),
	}
	taxService := &tax.Service{Registry: registry}
	taxHandler := &tax.Handler{Service: taxService, Registry: registry, Validate: validate}

	var converter currency.Converter
	if cfg.CurrencyRates != "" {
		factors, err := currency.ParseFactors(cfg.CurrencyRates)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse currency conversion rates")
		}
		converter = currency.NewStaticConverter(factors)
	}

	pricingService := &pricing.Service{
		Rules:     ruleStore,
		Products:  productsRepo,
		Usage:     tracker,
		Converter: converter,
	}
	pricingHandler := &pricing.Handler{Service: pricingService, Tax: taxService, Validate: validate}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	limiterStore, err := app.NewLimiterStore(redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter store")
	}
	rateMiddleware := limiterstdlib.NewMiddleware(limiter.New(limiterStore, limiter.Rate{
		Period: time.Second,
		Limit:  int64(cfg.RateLimitRPS),
	}))

	resolver := tenant.NewResolver(cfg.TenantHeader, envOrDefault("TENANT_ROOT_DOMAIN", ""), "")

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(resolver.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", cfg.TenantHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(rateMiddleware.Handler)
	r.Use(security.Headers{Enable: true}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)

	tenantLimiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "ratelimit:tenant:"},
		Config: ratelimit.Config{
			Key: func(req *http.Request) string {
				id, _ := tenant.From(req.Context())
				return id
			},
			Window: time.Second,
			Max:    cfg.RateLimitRPS,
		},
		OnError: func(err error) { logger.Error().Err(err).Msg("tenant rate limit") },
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(enginemw.RequireTenant)
		v.Use(tenantLimiter.Middleware)

		v.Route("/rules", func(rr chi.Router) {
			rr.Post("/", ruleHandler.Create)
			rr.Get("/", ruleHandler.List)
			rr.Get("/conflicts", ruleHandler.Conflicts)
			rr.Post("/bulk-activate", ruleHandler.BulkActivate)
			rr.Post("/bulk-deactivate", ruleHandler.BulkDeactivate)
			rr.Route("/{id}", func(one chi.Router) {
				one.Get("/", ruleHandler.Get)
				one.Patch("/", ruleHandler.Update)
				one.Post("/activate", ruleHandler.Activate)
				one.Post("/deactivate", ruleHandler.Deactivate)
				one.Post("/reset-usage", ruleHandler.ResetUsage)
				one.Get("/usage", ruleHandler.UsageStats)
			})
		})

		v.Route("/pricing", func(p chi.Router) {
			// Committing usage counters must not double-count on client
			// retries, so calculate runs behind the idempotency middleware.
			p.With(idem.Middleware).Post("/calculate", pricingHandler.Calculate)
			p.Post("/preview", pricingHandler.Preview)
		})

		v.Route("/tax", func(t chi.Router) {
			t.Post("/calculate", taxHandler.Calculate)
			t.Post("/line-items", taxHandler.LineItems)
			t.Post("/reverse", taxHandler.Reverse)
			t.Get("/effective-rate", taxHandler.EffectiveRate)
			t.Post("/rates", taxHandler.AddRate)
			t.Get("/rates", taxHandler.ListRates)
		})
	})

	var handler http.Handler = r
	if tracingEnabled {
		handler = obs.WrapHandler(handler, "billing-engine-api")
	}
	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: handler,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	health.SetReady(false)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func runMigrations(databaseURL string) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return err
	}
	url := databaseURL
	if strings.HasPrefix(url, "postgres://") {
		url = "pgx5://" + strings.TrimPrefix(url, "postgres://")
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()
	return app.RunMigrations(m)
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
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

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
