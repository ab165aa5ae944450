package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GriffinCanCode/tracekit/internal/agent"
	"github.com/GriffinCanCode/tracekit/internal/infrastructure/config"
	"github.com/GriffinCanCode/tracekit/internal/infrastructure/logging"
	"github.com/GriffinCanCode/tracekit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tracekit/internal/trace"
	"github.com/GriffinCanCode/tracekit/internal/transport"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type options struct {
	ping        bool
	demo        bool
	metricsAddr string
}

func main() {
	configPath := flag.String("config", "", "Configuration file (.yaml, .yml or .toml)")
	dev := flag.Bool("dev", false, "Development logging (colored, debug level)")
	ping := flag.Bool("ping", false, "Print the agent version")
	demo := flag.Bool("demo", false, "Send a sample transaction")
	metricsAddr := flag.String("metrics-addr", "", "Serve self-metrics on this address until interrupted")
	flag.Parse()

	if *configPath != "" {
		if err := os.Setenv("TRACEKIT_CONFIG_FILE", *configPath); err != nil {
			log.Fatalf("Failed to set config file: %v", err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.FromLevel(cfg.Logging.Level, cfg.Logging.Development || *dev)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg, logger, options{ping: *ping, demo: *demo, metricsAddr: *metricsAddr})
	if err != nil {
		logger.Fatal("tracekit failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger, opts options) error {
	metrics := monitoring.NewMetrics()
	events := logger.Component("events")
	holder := agent.NewHolder()

	a, err := holder.GetOrCreate(ctx,
		agent.WithConfig(cfg),
		agent.WithLogger(logger.Logger),
		agent.WithMetrics(metrics),
		agent.WithEventHandler(func(ev transport.Event) {
			events.Debug("transport event",
				zap.String("type", string(ev.Type)),
				zap.Stringer("conn", ev.ConnID),
				zap.String("detail", ev.Detail),
				zap.Error(ev.Err),
			)
		}),
	)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := holder.ShutdownActive(shutdownCtx); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	if opts.ping {
		version, err := a.Version(ctx)
		if err != nil {
			return fmt.Errorf("ping: %w", err)
		}
		fmt.Printf("agent %s at %s\n", version, a.Client().Endpoint())
	}

	if opts.demo {
		if err := sendDemo(ctx, a); err != nil {
			return fmt.Errorf("demo: %w", err)
		}
		logger.Info("sample transaction queued")
	}

	if opts.metricsAddr != "" {
		return serveMetrics(ctx, opts.metricsAddr, metrics, logger.Component("metrics"))
	}
	return nil
}

// sendDemo records a controller request with a query nested under a render
func sendDemo(ctx context.Context, a *agent.Agent) error {
	return a.Transaction(ctx, "Controller/GET /demo", func(ctx context.Context, done func(), req *trace.Request) error {
		req.AddContext(trace.T(trace.TagPath, "/demo"), trace.T(trace.TagHTTPMethod, http.MethodGet))

		err := a.Instrument(ctx, "View/render", func(ctx context.Context, span *trace.Span) error {
			return a.Instrument(ctx, "SQL/Query", func(ctx context.Context, span *trace.Span) error {
				span.AddTag(trace.TagDBStatement, "SELECT 1")
				time.Sleep(a.Tracer().SlowThreshold() + 10*time.Millisecond)
				return nil
			})
		})
		req.AddTag(trace.TagHTTPStatus, http.StatusOK)
		return err
	})
}

func serveMetrics(ctx context.Context, addr string, metrics *monitoring.Metrics, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           monitoring.Router(metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}
