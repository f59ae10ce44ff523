// Command cdpbridge runs the DevTools protocol bridge daemon: it pools
// websocket connections to a browser debug endpoint and serves the ops
// surface (health, status, metrics, event queries, live event stream).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/odvcencio/cdpbridge/pkg/bridge"
	"github.com/odvcencio/cdpbridge/pkg/bus"
	"github.com/odvcencio/cdpbridge/pkg/config"
	"github.com/odvcencio/cdpbridge/pkg/logging"
	"github.com/odvcencio/cdpbridge/pkg/server"
	"github.com/odvcencio/cdpbridge/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "cdpbridge:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		endpoint   = flag.String("endpoint", "", "browser debug websocket URL (overrides config)")
	)
	flag.Parse()

	if *endpoint != "" {
		// The flag rides the same override path as the environment.
		os.Setenv("CDPBRIDGE_ENDPOINT", *endpoint)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log := logging.NewLogger("cdpbridge", parseLevel(cfg.Logging.Level))

	tp, err := tracing.NewTracerProvider("cdpbridge")
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := bridge.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	var forwarder *bus.Forwarder
	if cfg.NATS.Enabled {
		nbus, err := bus.NewNATSBus(bus.Config{URL: cfg.NATS.URL, Name: "cdpbridge"})
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer nbus.Close()
		forwarder = bus.NewForwarder(nbus, b.Hub(), cfg.NATS.SubjectPrefix, log)
		defer forwarder.Close()
	}

	if !cfg.Server.Enabled {
		log.Info("ops server disabled, running until signal")
		<-ctx.Done()
		return nil
	}

	srv := server.New(b, cfg.Server.Bind, log)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
