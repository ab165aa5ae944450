// Package agent is the entry point applications use to trace their work.
//
// An Agent ties configuration, the transport to the agent process and the
// trace model together:
//
//	a, err := agent.New(agent.WithConfig(cfg))
//	if err != nil { ... }
//	if err := a.Setup(ctx); err != nil { ... }
//	defer a.Shutdown(ctx)
//
//	err = a.Transaction(ctx, "Controller/GET /users", func(ctx context.Context, done func(), req *trace.Request) error {
//		return a.Instrument(ctx, "SQL/Query", func(ctx context.Context, span *trace.Span) error {
//			span.AddTag(trace.TagDBStatement, "SELECT ...")
//			return queryUsers(ctx)
//		})
//	})
//
// The current request and span travel with the context. Instrument starts a
// span under whatever is current and creates a request when nothing is;
// InstrumentSync refuses to run without a parent.
//
// Telemetry failures never reach instrumented code: requests are sent in the
// background after they finish and delivery errors are only logged.
package agent
