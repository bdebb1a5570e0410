// Command mediarund runs the streaming media-pipeline runtime: it loads
// configuration from the environment (spec §6.5), constructs the shared
// runtime.Runtime, and serves the §6.1 WebSocket session protocol until
// a termination signal arrives, draining in-flight sessions before exit.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mediarun/runtime/logger"
	prometheusmetrics "github.com/mediarun/runtime/metrics/prometheus"
	"github.com/mediarun/runtime/pkg/config"
	"github.com/mediarun/runtime/runtime"
	"github.com/mediarun/runtime/telemetry"
	"github.com/mediarun/runtime/transport"
	"github.com/mediarun/runtime/version"
)

const supportedProtocolVersion = "1.0.0"

// Telemetry and metrics destinations are glue concerns (pkg/config
// deliberately excludes them), so they're read directly from the
// environment here rather than threaded through config.Config.
const (
	envOTLPEndpoint = "MEDIARUND_OTLP_ENDPOINT"
	envMetricsAddr  = "MEDIARUND_METRICS_ADDR"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("mediarund: load config: %w", err)
	}

	logger.Info("mediarund starting", append(version.GetBuildInfo(), "listen_addr", cfg.ListenAddr)...)

	rt, err := runtime.New(runtime.Options{
		Config:            cfg,
		VersionConstraint: fmt.Sprintf(">=%s, <2.0.0", supportedProtocolVersion),
		SupportedVersions: []string{supportedProtocolVersion},
	})
	if err != nil {
		return fmt.Errorf("mediarund: build runtime: %w", err)
	}

	shutdownTelemetry, err := wireTelemetry(rt)
	if err != nil {
		return fmt.Errorf("mediarund: wire telemetry: %w", err)
	}
	defer shutdownTelemetry()

	mux := http.NewServeMux()
	mux.Handle("/v1/session", transport.NewServer(rt))
	if addr := os.Getenv(envMetricsAddr); addr != "" {
		metricsExporter := prometheusmetrics.NewExporter(addr)
		go func() {
			if err := metricsExporter.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error("mediarund: metrics exporter stopped", "error", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsExporter.Shutdown(ctx)
		}()
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("mediarund: serve: %w", err)
		}
	case <-ctx.Done():
		logger.Info("mediarund: shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.DrainTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("mediarund: http shutdown error", "error", err)
	}
	if err := rt.Shutdown(); err != nil {
		logger.Error("mediarund: runtime shutdown error", "error", err)
	}

	return nil
}

// wireTelemetry subscribes the metrics listener unconditionally (it's
// cheap and only samples counters) and, when an OTLP endpoint is
// configured, stands up a TracerProvider and subscribes the span
// listener too. The returned func shuts the tracer provider down.
func wireTelemetry(rt *runtime.Runtime) (func(), error) {
	metricsListener := prometheusmetrics.NewMetricsListener()
	rt.Bus.SubscribeAll(metricsListener.Handle)

	endpoint := os.Getenv(envOTLPEndpoint)
	if endpoint == "" {
		return func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tp, err := telemetry.NewTracerProvider(ctx, endpoint, "mediarund")
	if err != nil {
		return nil, fmt.Errorf("build tracer provider: %w", err)
	}
	telemetry.SetupPropagation()

	tracer := telemetry.Tracer(tp)
	spanListener := telemetry.NewOTelEventListener(tracer)
	rt.Bus.SubscribeAll(spanListener.OnEvent)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("mediarund: tracer provider shutdown error", "error", err)
		}
	}, nil
}
