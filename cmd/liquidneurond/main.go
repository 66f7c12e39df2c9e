// Command liquidneurond runs the liquid-staking protocol daemon: it owns
// the bbolt-backed event log and state projection, drives the scheduled
// tasks against the external ledger/governance/secondary-DAO canisters,
// and serves the HTTP API. Flag-supplied config path, structured logging
// and OTel setup first, then signal-driven graceful shutdown.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"liquidneuron/config"
	"liquidneuron/daemon"
	"liquidneuron/observability/logging"
	telemetry "liquidneuron/observability/otel"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "liquidneurond.toml", "path to daemon configuration")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	env := strings.TrimSpace(cfg.Environment)
	slogger := logging.Setup("liquidneurond", env)

	otlpEndpoint := cfg.OTelEndpoint
	if override := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); override != "" {
		otlpEndpoint = override
	}
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "liquidneurond",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		slogger.Error("failed to initialise telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	d, err := daemon.New(cfg)
	if err != nil {
		slogger.Error("failed to construct daemon", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := d.Close(); err != nil {
			slogger.Error("failed to close daemon", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Run(ctx); err != nil {
		slogger.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
}
