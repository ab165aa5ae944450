package agent

import (
	"context"

	"github.com/GriffinCanCode/tracekit/internal/infrastructure/config"
	"github.com/GriffinCanCode/tracekit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tracekit/internal/trace"
	"github.com/GriffinCanCode/tracekit/internal/transport"
	"go.uber.org/zap"
)

// Resolver produces the agent binary path, downloading it if needed
type Resolver interface {
	Resolve(ctx context.Context) (string, error)
}

// Option configures an Agent
type Option func(*Agent)

// WithConfig sets the configuration; the default comes from config.LoadOrDefault
func WithConfig(cfg *config.Config) Option {
	return func(a *Agent) {
		if cfg != nil {
			a.cfg = cfg
		}
	}
}

// WithLogger sets the root logger
func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m *monitoring.Metrics) Option {
	return func(a *Agent) {
		a.metrics = m
	}
}

// WithResolver sets how the agent binary is obtained when it must be launched
func WithResolver(r Resolver) Option {
	return func(a *Agent) {
		a.resolver = r
	}
}

// WithEventHandler receives transport events
func WithEventHandler(h transport.EventHandler) Option {
	return func(a *Agent) {
		a.onEvent = h
	}
}

// WithTraceOptions passes extra options to the tracer
func WithTraceOptions(opts ...trace.Option) Option {
	return func(a *Agent) {
		a.traceOpts = append(a.traceOpts, opts...)
	}
}

// InstrumentOption configures one Instrument call
type InstrumentOption func(*instrumentConfig)

type instrumentConfig struct {
	parent trace.Unit
}

// WithParent starts the span under parent instead of the current unit
func WithParent(parent trace.Unit) InstrumentOption {
	return func(c *instrumentConfig) {
		c.parent = parent
	}
}
