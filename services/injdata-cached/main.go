// Package injdatacached runs the cache sink: a Kafka consumer that applies
// the two-phase market/position rules to Redis and fans liquidation alerts
// out through pub/sub.
package injdatacached

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"injdata/cache"
	"injdata/consume"
	"injdata/internal/config"
	"injdata/internal/logging"
	"injdata/internal/telemetry"
	"injdata/pubsub"
)

// Main runs the cached service until a termination signal arrives.
func Main() error {
	env := strings.TrimSpace(os.Getenv("INJDATA_ENV"))
	logger := logging.Setup("injdata-cached", env)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "injdata-cached",
		Environment: env,
		Endpoint:    strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		Insecure:    true,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ps, err := pubsub.NewService(stopCtx, pubsub.Config{
		RedisURL:         cfg.RedisURL,
		ChannelPrefix:    cfg.PubSubChannelPrefix,
		Sharded:          cfg.PubSubSharded,
		ConnectionPool:   cfg.PubSubConnectionPool,
		PublisherWorkers: cfg.PubSubPublisherWorkers,
		QueueSize:        cfg.PubSubQueueSize,
	})
	if err != nil {
		return fmt.Errorf("init pubsub: %w", err)
	}
	defer ps.Close()

	sink, err := cache.NewSink(stopCtx, cfg.RedisURL, cfg.RedisTTLSeconds, ps, logger)
	if err != nil {
		return fmt.Errorf("init cache sink: %w", err)
	}
	defer sink.Close()

	consumer := consume.New(cfg, "cache", sink, logger)
	defer consumer.Close()

	errs := make(chan error, 2)
	go func() { errs <- consumer.Run(stopCtx) }()

	metricsServer := &http.Server{
		Addr:         cfg.MetricsListenAddress,
		Handler:      promhttp.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", "address", cfg.MetricsListenAddress)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			_ = metricsServer.Close()
		}
		return nil
	case err := <-errs:
		return err
	}
}
