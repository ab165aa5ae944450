package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/tracekit/internal/infrastructure/config"
	"github.com/GriffinCanCode/tracekit/internal/protocol"
	"github.com/GriffinCanCode/tracekit/internal/testutil"
	"github.com/GriffinCanCode/tracekit/internal/trace"
	"github.com/GriffinCanCode/tracekit/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(uri string) *config.Config {
	cfg := config.Default()
	cfg.App.Name = "demo"
	cfg.App.Key = "secret"
	cfg.App.Monitor = true
	cfg.Agent.SocketPath = uri
	cfg.Agent.Launch = false
	cfg.Agent.Download = false
	cfg.Transport.SendTimeout = time.Second
	cfg.Transport.ConnectTimeout = 200 * time.Millisecond
	cfg.Trace.SlowThreshold = 20 * time.Millisecond
	return cfg
}

func newTestAgent(t *testing.T, cfg *config.Config, opts ...Option) *Agent {
	t.Helper()
	a, err := New(append([]Option{WithConfig(cfg)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.Flush(ctx)
		_ = a.Shutdown(ctx)
	})
	return a
}

func flush(t *testing.T, a *Agent) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Flush(ctx))
}

func TestTransactionEndToEnd(t *testing.T) {
	fake := testutil.NewFakeAgent(t)
	a := newTestAgent(t, testConfig(fake.URI()))
	ctx := context.Background()
	require.NoError(t, a.Setup(ctx))

	var (
		req  *trace.Request
		span *trace.Span
	)
	err := a.Transaction(ctx, "Controller/GET /", func(ctx context.Context, done func(), r *trace.Request) error {
		req = r
		err := a.Instrument(ctx, "DB/query", func(ctx context.Context, s *trace.Span) error {
			span = s
			time.Sleep(40 * time.Millisecond)
			return nil
		})
		done()
		assert.True(t, r.IsStopped())
		return err
	})
	require.NoError(t, err)
	flush(t, a)

	assert.True(t, req.IsStopped())
	assert.True(t, span.IsStopped())
	assert.Equal(t, 1, req.SpanCount())
	assert.Equal(t, "Controller/GET /", req.Name())

	assert.Equal(t, []string{
		protocol.KindRegister,
		protocol.KindApplicationEvent,
		protocol.KindStartRequest,
		protocol.KindStartSpan,
		protocol.KindTagSpan,
		protocol.KindStopSpan,
		protocol.KindFinishRequest,
	}, fake.Kinds())

	for _, m := range fake.Messages() {
		if m.Kind == protocol.KindTagSpan {
			assert.Contains(t, string(m.Payload), `"tag":"stack"`)
		}
	}
}

func TestTransactionDoneIsIdempotent(t *testing.T) {
	fake := testutil.NewFakeAgent(t)
	a := newTestAgent(t, testConfig(fake.URI()))

	err := a.Transaction(context.Background(), "Job/run", func(ctx context.Context, done func(), req *trace.Request) error {
		done()
		done()
		return nil
	})
	require.NoError(t, err)
	flush(t, a)

	assert.Equal(t, 1, fake.Count(protocol.KindStartRequest))
	assert.Equal(t, 1, fake.Count(protocol.KindFinishRequest))
}

func TestTransactionReturnsCallbackError(t *testing.T) {
	fake := testutil.NewFakeAgent(t)
	a := newTestAgent(t, testConfig(fake.URI()))
	boom := errors.New("boom")

	var req *trace.Request
	err := a.Transaction(context.Background(), "Job/fail", func(ctx context.Context, done func(), r *trace.Request) error {
		req = r
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, req.IsStopped())
}

func TestTransactionBeforeSetupStillSends(t *testing.T) {
	fake := testutil.NewFakeAgent(t)
	a := newTestAgent(t, testConfig(fake.URI()))

	err := a.Transaction(context.Background(), "Job/early", func(ctx context.Context, done func(), req *trace.Request) error {
		return nil
	})
	require.NoError(t, err)
	flush(t, a)

	assert.Equal(t, []string{
		protocol.KindRegister,
		protocol.KindApplicationEvent,
		protocol.KindStartRequest,
		protocol.KindFinishRequest,
	}, fake.Kinds())
}

func TestInstrumentCreatesImplicitRequest(t *testing.T) {
	fake := testutil.NewFakeAgent(t)
	a := newTestAgent(t, testConfig(fake.URI()))
	ctx := context.Background()
	require.NoError(t, a.Setup(ctx))

	var span *trace.Span
	err := a.Instrument(ctx, "Cache/get", func(ctx context.Context, s *trace.Span) error {
		span = s
		cur, ok := a.CurrentRequest(ctx)
		require.True(t, ok)
		assert.Same(t, s.Request(), cur)
		return nil
	})
	require.NoError(t, err)
	flush(t, a)

	assert.True(t, span.Request().IsStopped())
	assert.Equal(t, "Cache/get", span.Request().Name())
	assert.Equal(t, 1, fake.Count(protocol.KindStartRequest))
	assert.Equal(t, 1, fake.Count(protocol.KindStartSpan))
	assert.Equal(t, 1, fake.Count(protocol.KindFinishRequest))
}

func TestInstrumentNestsUnderCurrentSpan(t *testing.T) {
	a := newTestAgent(t, testConfig("unix:///nonexistent/agent.sock"))

	err := a.Transaction(context.Background(), "Controller/nested", func(ctx context.Context, done func(), req *trace.Request) error {
		return a.Instrument(ctx, "outer", func(ctx context.Context, outer *trace.Span) error {
			err := a.Instrument(ctx, "inner", func(ctx context.Context, inner *trace.Span) error {
				assert.Equal(t, outer.ID(), inner.ParentID())
				cur, ok := a.CurrentSpan(ctx)
				require.True(t, ok)
				assert.Same(t, inner, cur)
				return nil
			})
			cur, ok := a.CurrentSpan(ctx)
			require.True(t, ok)
			assert.Same(t, outer, cur)

			r, ok := a.CurrentRequest(ctx)
			require.True(t, ok)
			assert.Same(t, req, r)
			return err
		})
	})
	require.NoError(t, err)
}

func TestNestedTransactionIsolatedFromOuterSpan(t *testing.T) {
	a := newTestAgent(t, testConfig("unix:///nonexistent/agent.sock"))

	var (
		outer, inner *trace.Request
		query        *trace.Span
	)
	err := a.Transaction(context.Background(), "outer", func(ctx context.Context, done func(), r *trace.Request) error {
		outer = r
		return a.Instrument(ctx, "handler", func(ctx context.Context, _ *trace.Span) error {
			return a.Transaction(ctx, "inner", func(ctx context.Context, done func(), r *trace.Request) error {
				inner = r
				_, ok := a.CurrentSpan(ctx)
				assert.False(t, ok)

				cur, ok := a.CurrentRequest(ctx)
				require.True(t, ok)
				assert.Same(t, inner, cur)

				return a.Instrument(ctx, "DB/query", func(ctx context.Context, s *trace.Span) error {
					query = s
					return nil
				})
			})
		})
	})
	require.NoError(t, err)

	assert.Same(t, inner, query.Request())
	assert.Equal(t, 1, inner.SpanCount())
	assert.Equal(t, 1, outer.SpanCount())
}

func TestInstrumentPanicStillStopsSpan(t *testing.T) {
	a := newTestAgent(t, testConfig("unix:///nonexistent/agent.sock"))

	var span *trace.Span
	err := a.Transaction(context.Background(), "Controller/panic", func(ctx context.Context, done func(), req *trace.Request) error {
		assert.Panics(t, func() {
			_ = a.Instrument(ctx, "render", func(ctx context.Context, s *trace.Span) error {
				span = s
				panic("template error")
			})
		})

		cur, ok := a.CurrentSpan(ctx)
		assert.False(t, ok)
		assert.Nil(t, cur)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, span.IsStopped())
}

func TestInstrumentPanicFinishesImplicitRequest(t *testing.T) {
	fake := testutil.NewFakeAgent(t)
	a := newTestAgent(t, testConfig(fake.URI()))
	require.NoError(t, a.Setup(context.Background()))

	var span *trace.Span
	assert.Panics(t, func() {
		_ = a.Instrument(context.Background(), "Job/crash", func(ctx context.Context, s *trace.Span) error {
			span = s
			panic("crash")
		})
	})
	flush(t, a)

	assert.True(t, span.IsStopped())
	assert.True(t, span.Request().IsStopped())
	assert.Equal(t, 1, fake.Count(protocol.KindFinishRequest))
}

func TestInstrumentRecordsError(t *testing.T) {
	a := newTestAgent(t, testConfig("unix:///nonexistent/agent.sock"))
	boom := errors.New("query failed")

	var span *trace.Span
	err := a.Transaction(context.Background(), "Controller/err", func(ctx context.Context, done func(), req *trace.Request) error {
		return a.Instrument(ctx, "DB/query", func(ctx context.Context, s *trace.Span) error {
			span = s
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	v, ok := span.Tag(trace.TagError)
	require.True(t, ok)
	assert.Equal(t, "query failed", v)
	assert.True(t, span.IsStopped())
}

func TestInstrumentUnderFinishedRequest(t *testing.T) {
	a := newTestAgent(t, testConfig("unix:///nonexistent/agent.sock"))

	err := a.Transaction(context.Background(), "Controller/late", func(ctx context.Context, done func(), req *trace.Request) error {
		done()
		return a.Instrument(ctx, "late", func(context.Context, *trace.Span) error { return nil })
	})
	assert.ErrorIs(t, err, trace.ErrUnitFinished)
}

func TestInstrumentSyncRequiresParent(t *testing.T) {
	a := newTestAgent(t, testConfig("unix:///nonexistent/agent.sock"))

	called := false
	err := a.InstrumentSync(context.Background(), "orphan", func(*trace.Span) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrNoParentContext)
	assert.False(t, called)
}

func TestInstrumentSyncWithExplicitParent(t *testing.T) {
	a := newTestAgent(t, testConfig("unix:///nonexistent/agent.sock"))
	req := a.Tracer().StartRequest()

	var span *trace.Span
	err := a.InstrumentSync(context.Background(), "explicit", func(s *trace.Span) error {
		span = s
		return nil
	}, WithParent(req))
	require.NoError(t, err)

	assert.Equal(t, req.RequestID(), span.RequestID())
	assert.Equal(t, []*trace.Span{span}, req.Children())
}

func TestSyncScopeMode(t *testing.T) {
	cfg := testConfig("unix:///nonexistent/agent.sock")
	cfg.Trace.ScopeMode = config.ScopeSync
	a := newTestAgent(t, cfg)

	err := a.Transaction(context.Background(), "Job/sync", func(ctx context.Context, done func(), req *trace.Request) error {
		return a.InstrumentSync(context.Background(), "step", func(s *trace.Span) error {
			cur, ok := a.CurrentSpan(context.Background())
			require.True(t, ok)
			assert.Same(t, s, cur)
			assert.Same(t, req, s.Request())
			return nil
		})
	})
	require.NoError(t, err)

	_, ok := a.CurrentRequest(context.Background())
	assert.False(t, ok)
}

func TestConcurrentTransactionsAreIsolated(t *testing.T) {
	a := newTestAgent(t, testConfig("unix:///nonexistent/agent.sock"))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.Transaction(context.Background(), "Job/parallel", func(ctx context.Context, done func(), req *trace.Request) error {
				return a.Instrument(ctx, "work", func(ctx context.Context, s *trace.Span) error {
					time.Sleep(5 * time.Millisecond)
					cur, ok := a.CurrentRequest(ctx)
					assert.True(t, ok)
					assert.Same(t, req, cur)
					assert.Same(t, req, s.Request())
					return nil
				})
			})
		}()
	}
	wg.Wait()
}

func TestMonitoringDisabled(t *testing.T) {
	fake := testutil.NewFakeAgent(t)
	cfg := testConfig(fake.URI())
	cfg.App.Monitor = false
	a := newTestAgent(t, cfg)

	require.NoError(t, a.Setup(context.Background()))
	err := a.Transaction(context.Background(), "Job/quiet", func(ctx context.Context, done func(), req *trace.Request) error {
		return a.Instrument(ctx, "step", func(context.Context, *trace.Span) error { return nil })
	})
	require.NoError(t, err)
	flush(t, a)

	assert.Zero(t, fake.Accepted())
	assert.Empty(t, fake.Kinds())

	_, err = a.Client().Send(context.Background(), protocol.CoreAgentVersion{})
	assert.ErrorIs(t, err, transport.ErrMonitoringDisabled)
}

func TestSetupIsShared(t *testing.T) {
	fake := testutil.NewFakeAgent(t)
	a := newTestAgent(t, testConfig(fake.URI()))

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, a.Setup(context.Background()))
		}()
	}
	wg.Wait()
	require.NoError(t, a.Setup(context.Background()))

	assert.True(t, a.Ready())
	assert.Equal(t, 1, fake.Count(protocol.KindRegister))
	assert.Equal(t, 1, fake.Count(protocol.KindApplicationEvent))
}

func TestSetupLaunchDisabled(t *testing.T) {
	a := newTestAgent(t, testConfig("unix:///nonexistent/agent.sock"))

	err := a.Setup(context.Background())
	assert.ErrorIs(t, err, transport.ErrLaunchDisabled)
	assert.False(t, a.Ready())
}

type stubResolver struct {
	path string
	err  error
	n    int
}

func (r *stubResolver) Resolve(context.Context) (string, error) {
	r.n++
	return r.path, r.err
}

func TestSetupResolvesBinaryBeforeLaunch(t *testing.T) {
	cfg := testConfig("unix:///nonexistent/agent.sock")
	cfg.Agent.Launch = true
	resolveErr := errors.New("no network")
	r := &stubResolver{err: resolveErr}
	a := newTestAgent(t, cfg, WithResolver(r))

	err := a.Setup(context.Background())
	assert.ErrorIs(t, err, resolveErr)
	assert.Equal(t, 1, r.n)
}

func TestSetupSkipsResolveWhenReachable(t *testing.T) {
	fake := testutil.NewFakeAgent(t)
	cfg := testConfig(fake.URI())
	cfg.Agent.Launch = true
	r := &stubResolver{err: errors.New("should not be called")}
	a := newTestAgent(t, cfg, WithResolver(r))

	require.NoError(t, a.Setup(context.Background()))
	assert.Zero(t, r.n)
}

func TestVersion(t *testing.T) {
	fake := testutil.NewFakeAgent(t)
	fake.Version = "1.5.2"
	a := newTestAgent(t, testConfig(fake.URI()))

	v, err := a.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.5.2", v)
}

func TestShutdownWithoutSetup(t *testing.T) {
	a, err := New(WithConfig(testConfig("unix:///nonexistent/agent.sock")))
	require.NoError(t, err)

	assert.ErrorIs(t, a.Shutdown(context.Background()), ErrNoAgent)
}

func TestShutdownDisconnects(t *testing.T) {
	fake := testutil.NewFakeAgent(t)
	a, err := New(WithConfig(testConfig(fake.URI())))
	require.NoError(t, err)
	require.NoError(t, a.Setup(context.Background()))

	require.NoError(t, a.Shutdown(context.Background()))
	assert.Zero(t, a.Client().PoolSize())
	assert.False(t, a.Ready())

	_, err = a.Client().Send(context.Background(), protocol.CoreAgentVersion{})
	assert.ErrorIs(t, err, transport.ErrDisconnected)
}

func TestFinishRacesFlush(t *testing.T) {
	fake := testutil.NewFakeAgent(t)
	cfg := testConfig(fake.URI())
	cfg.Transport.PoolMax = 4
	a := newTestAgent(t, cfg)
	ctx := context.Background()
	require.NoError(t, a.Setup(ctx))

	const n = 16
	var wg sync.WaitGroup
	for range n {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = a.Transaction(ctx, "Job/race", func(context.Context, func(), *trace.Request) error { return nil })
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, a.Flush(ctx))
		}()
	}
	wg.Wait()
	flush(t, a)

	assert.Equal(t, n, fake.Count(protocol.KindFinishRequest))
}

func TestFinishAfterShutdownIsDropped(t *testing.T) {
	fake := testutil.NewFakeAgent(t)
	a, err := New(WithConfig(testConfig(fake.URI())))
	require.NoError(t, err)
	require.NoError(t, a.Setup(context.Background()))
	require.NoError(t, a.Shutdown(context.Background()))

	var req *trace.Request
	err = a.Transaction(context.Background(), "Job/late", func(ctx context.Context, done func(), r *trace.Request) error {
		req = r
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, a.Flush(context.Background()))

	assert.True(t, req.IsStopped())
	assert.Zero(t, fake.Count(protocol.KindStartRequest))
}

func TestNewRejectsMissingKey(t *testing.T) {
	cfg := testConfig("unix:///nonexistent/agent.sock")
	cfg.App.Key = ""

	_, err := New(WithConfig(cfg))
	assert.ErrorIs(t, err, config.ErrMissingKey)
}
