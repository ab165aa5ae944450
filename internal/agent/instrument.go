package agent

import (
	"context"

	"github.com/GriffinCanCode/tracekit/internal/scope"
	"github.com/GriffinCanCode/tracekit/internal/trace"
	"go.uber.org/zap"
)

// Instrument runs fn inside a span named operation. The span is a child of
// the current span or request; with neither, a request is created for it and
// finished together with the span. A non-nil error from fn is recorded in the
// error tag and returned unchanged.
func (a *Agent) Instrument(ctx context.Context, operation string, fn func(ctx context.Context, span *trace.Span) error, opts ...InstrumentOption) error {
	return a.instrument(ctx, operation, false, fn, opts)
}

// InstrumentSync is Instrument for code that must already run under a
// request or span. It fails with ErrNoParentContext instead of creating one.
func (a *Agent) InstrumentSync(ctx context.Context, operation string, fn func(span *trace.Span) error, opts ...InstrumentOption) error {
	return a.instrument(ctx, operation, true, func(_ context.Context, span *trace.Span) error {
		return fn(span)
	}, opts)
}

func (a *Agent) instrument(ctx context.Context, operation string, requireParent bool, fn func(context.Context, *trace.Span) error, opts []InstrumentOption) error {
	var cfg instrumentConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	parent := cfg.parent
	if parent == nil {
		parent = a.currentUnit(ctx)
	}

	var implicit *trace.Request
	if parent == nil {
		if requireParent {
			return ErrNoParentContext
		}
		implicit = a.tracer.StartRequest()
		implicit.SetName(operation)
		parent = implicit
		a.logger.Debug("no current request; starting one", zap.String("operation", operation))
	}

	span, err := parent.StartChildSpan(operation)
	if err != nil {
		return err
	}

	ctx, restore := a.store.Enter(ctx)
	defer restore()
	if implicit != nil {
		a.bind(ctx, scope.KeyRequest, implicit)
		defer a.Finish(ctx, implicit)
	}
	a.bind(ctx, scope.KeySpan, span)
	defer span.Stop()

	err = fn(ctx, span)
	if err != nil {
		span.AddTag(trace.TagError, err.Error())
	}
	return err
}

func (a *Agent) bind(ctx context.Context, key scope.Key, value any) {
	if err := a.store.Set(ctx, key, value); err != nil {
		a.logger.Debug("scope binding failed", zap.String("key", string(key)), zap.Error(err))
	}
}
