package main

import (
	"context"
	"net/http"
	"time"

	"github.com/eecmx/citas/libs/auth"
	"github.com/eecmx/citas/libs/db"
	"github.com/eecmx/citas/libs/httpx"
	"github.com/eecmx/citas/libs/metrics"
	otelx "github.com/eecmx/citas/libs/otel"
	"github.com/eecmx/citas/libs/runtime"
	"github.com/eecmx/citas/services/citas-service/internal/admin"
	"github.com/eecmx/citas/services/citas-service/internal/booking"
	"github.com/eecmx/citas/services/citas-service/internal/handlers"
	"github.com/eecmx/citas/services/citas-service/migrations"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := loadServiceConfig()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.ServiceName)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	if cfg.MigrateOnStart {
		version, err := db.Migrate(migrations.FS, migrations.Dir, cfg.DatabaseURL)
		if err != nil {
			logger.Error("schema migration failed", "err", err)
			panic(err)
		}
		logger.Info("schema migrated", "version", version)
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	users := admin.NewUserRepository(pool)
	if _, err := admin.Seed(ctx, users, cfg.AdminUsername, cfg.AdminPassword, logger); err != nil {
		logger.Error("admin seed failed", "err", err)
		panic(err)
	}

	loc, err := booking.LoadLocation(cfg.ReferenceTimezone)
	if err != nil {
		panic(err)
	}
	svc := booking.NewService(booking.NewPgxRunner(pool), logger, booking.Config{Location: loc})

	var keys admin.KeySource
	if cfg.JWKSURL != "" {
		keys = auth.NewJWKSClient(cfg.JWKSURL, cfg.JWKSCacheTTL, nil)
	}
	gate := admin.NewGate(users, logger, admin.GateConfig{
		Secret:       cfg.JWTSecret,
		TTL:          time.Duration(cfg.JWTTTLMinutes) * time.Minute,
		Keys:         keys,
		SecureCookie: cfg.SecureCookie,
	})

	var (
		rateLimit  httpx.Middleware
		redisReady runtime.ReadyCheck
		clientKey  httpx.KeyFunc = httpx.ClientKey
	)
	if len(cfg.proxies) > 0 {
		clientKey = cfg.proxies.ClientKey
	}
	switch {
	case cfg.RateLimitPerMinute <= 0:
	case cfg.RedisAddr != "":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		rateLimit = httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "citas:ratelimit").
			WithKeyFunc(clientKey).
			Middleware(logger, cfg.RateLimitFailOpen)
		redisReady = runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)}
	default:
		rateLimit = httpx.NewRateLimiter(cfg.RateLimitPerMinute).WithKeyFunc(clientKey).Middleware()
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		redisReady,
	)
	mux.Handle("GET /metrics", metrics.Handler())
	gate.Register(mux)
	handlers.NewCitasHandler(svc, logger).Register(mux, gate.RequireAdmin)

	httpHandler := httpx.Chain(metrics.InstrumentHandler(mux),
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}),
		rateLimit,
		httpx.WithBodyLimit(cfg.BodyLimitBytes),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "citas")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
