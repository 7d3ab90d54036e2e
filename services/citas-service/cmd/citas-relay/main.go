package main

import (
	"context"
	"net/http"
	"time"

	"github.com/eecmx/citas/libs/config"
	"github.com/eecmx/citas/libs/db"
	"github.com/eecmx/citas/libs/kafkax"
	"github.com/eecmx/citas/libs/metrics"
	otelx "github.com/eecmx/citas/libs/otel"
	"github.com/eecmx/citas/libs/runtime"
	"github.com/eecmx/citas/services/citas-service/internal/outbox"
)

type relayConfig struct {
	ServiceName  string        `envconfig:"SERVICE_NAME" default:"citas-relay"`
	Port         string        `envconfig:"PORT" default:"8081"`
	DatabaseURL  string        `envconfig:"DATABASE_URL" required:"true"`
	KafkaBrokers string        `envconfig:"KAFKA_BROKERS" required:"true"`
	PollEvery    time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"2s"`
	BatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"50"`
}

func main() {
	var cfg relayConfig
	if err := config.Process("", &cfg); err != nil {
		panic(err)
	}
	if err := config.ValidatePort(cfg.Port); err != nil {
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

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	writer := outbox.NewKafkaWriter(cfg.KafkaBrokers)
	defer func() { _ = writer.Close() }()

	publisher := outbox.NewPublisher(pool, writer, logger, outbox.PublisherConfig{
		PollEvery: cfg.PollEvery,
		BatchSize: cfg.BatchSize,
	})
	go publisher.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)},
	)
	mux.Handle("GET /metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("relay admin server starting", "addr", srv.Addr)
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
	logger.Info("relay stopped")
}
