package integrations

import (
	"context"

	"github.com/GriffinCanCode/tracekit/internal/agent"
	"github.com/GriffinCanCode/tracekit/internal/trace"
)

// Instrumenter is the part of the agent integrations rely on
type Instrumenter interface {
	StartRequest(ctx context.Context, name string) (context.Context, *trace.Request, func())
	Instrument(ctx context.Context, operation string, fn func(ctx context.Context, span *trace.Span) error, opts ...agent.InstrumentOption) error
	CurrentSpan(ctx context.Context) (*trace.Span, bool)
	CurrentRequest(ctx context.Context) (*trace.Request, bool)
}

var _ Instrumenter = (*agent.Agent)(nil)

// current returns the innermost unit bound to ctx
func current(ctx context.Context, t Instrumenter) trace.Unit {
	if span, ok := t.CurrentSpan(ctx); ok {
		return span
	}
	if req, ok := t.CurrentRequest(ctx); ok {
		return req
	}
	return nil
}

// instrument runs call inside a span named operation. When no span can be
// started, such as under an already finished request, call still runs with a
// nil span.
func instrument(ctx context.Context, t Instrumenter, operation string, call func(ctx context.Context, span *trace.Span) error) error {
	ran := false
	err := t.Instrument(ctx, operation, func(ctx context.Context, span *trace.Span) error {
		ran = true
		return call(ctx, span)
	})
	if ran {
		return err
	}
	return call(ctx, nil)
}

func addTag(span *trace.Span, name string, value any) {
	if span != nil {
		span.AddTag(name, value)
	}
}
