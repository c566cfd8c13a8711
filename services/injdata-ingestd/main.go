// Package injdataingestd runs the stream ingester and heartbeat poller: the
// two producer-side components of the pipeline. Shaped after
// services/oracle-attesterd.Main — signal.NotifyContext shutdown, a
// buffered error channel for the metrics HTTP server, telemetry/logging
// bootstrap before anything else starts.
package injdataingestd

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

	"injdata/broker"
	"injdata/heartbeat"
	"injdata/ingest"
	"injdata/ingest/queryclient"
	"injdata/internal/checkpoint"
	"injdata/internal/config"
	"injdata/internal/logging"
	"injdata/internal/telemetry"
)

// Main runs the ingestd service until a termination signal arrives.
func Main() error {
	env := strings.TrimSpace(os.Getenv("INJDATA_ENV"))
	logger := logging.Setup("injdata-ingestd", env)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "injdata-ingestd",
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

	producer := broker.NewProducer(cfg)

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queryClient, err := queryclient.Dial(stopCtx, cfg.GRPCQueryEndpoint)
	if err != nil {
		return fmt.Errorf("dial query endpoint: %w", err)
	}
	defer queryClient.Close()

	tipStore, err := checkpoint.OpenLevelStore(cfg.CheckpointPath)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	tipCheckpoint := checkpoint.NewTipCheckpoint(tipStore)
	defer tipCheckpoint.Close()

	ingester := ingest.New(cfg.GRPCStreamEndpoint, producer, logger)
	poller := heartbeat.New(queryClient, producer, tipCheckpoint, time.Duration(cfg.HeartbeatIntervalSeconds)*time.Second, cfg.FetchBalances, logger)

	errs := make(chan error, 3)
	go func() { errs <- ingester.Run(stopCtx) }()
	go func() { errs <- poller.Run(stopCtx) }()

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
		if err := producer.Flush(shutdownCtx, 10*time.Second); err != nil {
			logger.Warn("producer flush on shutdown failed", "error", err)
		}
		return nil
	case err := <-errs:
		return err
	}
}
