// Package injdatawcsd runs the wide-column sink: a Kafka consumer that
// appends market, position, L3 orderbook and exchange balance events to
// Scylla/Cassandra without the cache sink's phase gate; other message
// types are not stored.
package injdatawcsd

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

	"injdata/consume"
	"injdata/internal/config"
	"injdata/internal/logging"
	"injdata/internal/telemetry"
	"injdata/wcs"
)

// Main runs the wcsd service until a termination signal arrives.
func Main() error {
	env := strings.TrimSpace(os.Getenv("INJDATA_ENV"))
	logger := logging.Setup("injdata-wcsd", env)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "injdata-wcsd",
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

	sink, err := wcs.NewSink(cfg.ScyllaNodes, cfg.ScyllaKeyspace, logger)
	if err != nil {
		return fmt.Errorf("init wide-column sink: %w", err)
	}
	defer sink.Close()

	consumer := consume.New(cfg, "wcs", sink, logger)
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
