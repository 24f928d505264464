// Command gitnexus is the GitNexus Gateway daemon: an MCP stdio server
// that validates, firewalls, and resiliently proxies a fixed 15-tool
// code-intelligence catalogue to a browser-hosted graph engine over a
// shared localhost WebSocket (spec §1).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/gitnexus/gateway/internal/bridge"
	"github.com/gitnexus/gateway/internal/config"
	"github.com/gitnexus/gateway/internal/mcpserver"
	"github.com/gitnexus/gateway/internal/metrics"
	"github.com/gitnexus/gateway/internal/resilience"
)

// DrainGrace is the time allowed for in-flight requests to drain before
// the bridge is torn down, per spec §4.H.
const DrainGrace = 2 * time.Second

// errShutdownRequested is the sentinel either goroutine returns (on a signal,
// or when stdio closes cleanly) to make errgroup cancel the other's context;
// it is not a real failure and is filtered back out before logging.
var errShutdownRequested = errors.New("shutdown requested")

var version = "dev"

func main() {
	port := flag.Int("port", config.DefaultPort, "Fixed localhost port shared by every GitNexus daemon instance")
	agent := flag.String("agent", "", "Override for the agent name reported in logs and to the bridge")
	showVersion := flag.BoolP("version", "V", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("gitnexus-gateway %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*port, *agent)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gitnexus: configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if cfg.MetricsEnabled {
		if err := metrics.StartPrometheus(cfg.MetricsAddr); err != nil {
			logger.Warn("failed to start metrics listener; continuing without it", "error", err)
		} else {
			logger.Info("metrics listener started", "addr", cfg.MetricsAddr)
		}
	}

	if cfg.TokenGenerated {
		logger.Info("generated a new bridge token", "env_var", config.EnvToken)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	br := bridge.New(cfg.Port, cfg.Token, logger)
	if err := br.Start(ctx, cfg.AgentName); err != nil {
		logger.Error("bridge failed to start", "error", err)
		os.Exit(1)
	}
	logger.Info("bridge started", "mode", br.Mode(), "port", cfg.Port, "agent_name", cfg.AgentName)
	if cfg.TokenGenerated && br.Mode() == bridge.ModeHub {
		logger.Info("generated a new bridge token", "token", cfg.Token, "env_var", config.EnvToken)
	}

	breaker := resilience.NewBreaker(resilience.DefaultBreakerConfig())
	timeouts := resilience.Timeouts{Quick: cfg.QuickTimeout, Heavy: cfg.HeavyTimeout}

	srv := mcpserver.New(br, breaker, timeouts, cfg.Debug, cfg.AgentName, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Two goroutines race under a shared errgroup context, generalizing the
	// teacher's indexer.go errgroup.WithContext pattern (concurrent workers,
	// first error cancels the rest) from batch file processing to a daemon's
	// two long-running loops: whichever of "signal received" or "stdio
	// closed" happens first cancels the other's context.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down gracefully", "signal", sig.String())
			return errShutdownRequested
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		logger.Info("mcp server ready, listening on stdio")
		if err := srv.Serve(gctx); err != nil {
			return err
		}
		// A nil return would not cancel gctx, leaving the signal goroutine
		// waiting; report the clean stdio close as a shutdown request.
		return errShutdownRequested
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdownRequested) {
		logger.Error("mcp server error", "error", err)
	}
	cancel()

	time.Sleep(DrainGrace)
	br.Close()
	logger.Info("gitnexus gateway stopped")
}
