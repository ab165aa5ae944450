package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/tracekit/internal/agent/download"
	"github.com/GriffinCanCode/tracekit/internal/infrastructure/config"
	"github.com/GriffinCanCode/tracekit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tracekit/internal/protocol"
	"github.com/GriffinCanCode/tracekit/internal/scope"
	"github.com/GriffinCanCode/tracekit/internal/shared/inflight"
	"github.com/GriffinCanCode/tracekit/internal/trace"
	"github.com/GriffinCanCode/tracekit/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Agent is the application-facing facade
type Agent struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	resolver  Resolver
	onEvent   transport.EventHandler
	traceOpts []trace.Option

	client   *transport.Client
	tracer   *trace.Tracer
	store    scope.Store
	register *protocol.Register

	setup singleflight.Group

	mu         sync.Mutex
	ready      bool
	attempted  bool
	inProgress chan struct{}

	pending inflight.Tracker
}

// New wires configuration, transport, tracer and scope store. It does not
// contact the agent; call Setup for that.
func New(opts ...Option) (*Agent, error) {
	a := &Agent{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	if a.cfg == nil {
		a.cfg = config.LoadOrDefault()
	}
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	a.register = protocol.NewRegister(a.cfg.App.Name, a.cfg.App.Key)

	client, err := transport.New(transport.Options{
		Endpoint:         a.cfg.Agent.SocketPath,
		Monitor:          a.cfg.App.Monitor,
		Launch:           a.cfg.Agent.Launch,
		BinaryPath:       a.cfg.Agent.BinaryPath,
		AgentLogLevel:    a.cfg.Agent.LogLevel,
		StartTimeout:     a.cfg.Agent.StartTimeout,
		PoolMin:          a.cfg.Transport.PoolMin,
		PoolMax:          a.cfg.Transport.PoolMax,
		SendTimeout:      a.cfg.Transport.SendTimeout,
		ConnectTimeout:   a.cfg.Transport.ConnectTimeout,
		BackoffThreshold: a.cfg.Transport.BackoffThreshold,
		BackoffDelay:     a.cfg.Transport.BackoffDelay,
		Register:         a.register,
		Metadata:         BuildMetadata(a.cfg.App, started).Event(started),
		Logger:           a.logger.Named("transport"),
		Metrics:          a.metrics,
		OnEvent:          a.onEvent,
	})
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	a.client = client

	traceOpts := []trace.Option{
		trace.WithLogger(a.logger.Named("trace")),
		trace.WithSlowThreshold(a.cfg.Trace.SlowThreshold),
		trace.WithStackIgnore(a.cfg.Trace.StackIgnore...),
	}
	if a.metrics != nil {
		traceOpts = append(traceOpts, trace.WithRecorder(a.metrics))
	}
	a.tracer = trace.NewTracer(client, append(traceOpts, a.traceOpts...)...)

	switch a.cfg.Trace.ScopeMode {
	case config.ScopeSync:
		a.store = scope.NewSyncStore(a.logger.Named("scope"))
	default:
		a.store = scope.NewContextStore(a.logger.Named("scope"))
	}

	if a.resolver == nil && a.cfg.Agent.Download {
		r, err := download.New(download.Options{
			BaseURL: a.cfg.Agent.DownloadURL,
			Version: a.cfg.Agent.Version,
			Triple:  a.cfg.Agent.Triple,
			Dir:     a.cfg.Agent.DownloadDir,
			SHA256:  a.cfg.Agent.SHA256,
			Logger:  a.logger.Named("download"),
		})
		if err != nil {
			// unsupported platforms can still use an agent that is already running
			a.logger.Info("agent download unavailable", zap.Error(err))
		} else {
			a.resolver = r
		}
	}

	a.logger = a.logger.Named("agent")
	return a, nil
}

// Config returns the agent's configuration
func (a *Agent) Config() *config.Config { return a.cfg }

// Tracer returns the tracer requests are created from
func (a *Agent) Tracer() *trace.Tracer { return a.tracer }

// Client returns the transport
func (a *Agent) Client() *transport.Client { return a.client }

// Store returns the scope store holding the current request and span
func (a *Agent) Store() scope.Store { return a.store }

// Setup makes sure an agent is running and registers with it. Concurrent
// calls share one attempt; after a success later calls return immediately.
// With monitoring disabled nothing is contacted.
func (a *Agent) Setup(ctx context.Context) error {
	a.mu.Lock()
	if a.ready {
		a.mu.Unlock()
		return nil
	}
	a.attempted = true
	a.mu.Unlock()
	a.pending.Open()

	_, err, _ := a.setup.Do("setup", func() (any, error) {
		a.mu.Lock()
		if a.ready {
			a.mu.Unlock()
			return nil, nil
		}
		done := make(chan struct{})
		a.inProgress = done
		a.mu.Unlock()

		err := a.connect(ctx)

		a.mu.Lock()
		a.ready = err == nil
		a.inProgress = nil
		a.mu.Unlock()
		close(done)
		return nil, err
	})
	return err
}

func (a *Agent) connect(ctx context.Context) error {
	if !a.client.Monitoring() {
		a.logger.Info("monitoring disabled; agent will not be contacted")
		return nil
	}

	if !a.client.Reachable(ctx) && a.cfg.Agent.Launch && a.client.BinaryPath() == "" {
		if a.resolver == nil {
			return fmt.Errorf("agent: setup: %w", download.ErrBinaryNotFound)
		}
		path, err := a.resolver.Resolve(ctx)
		if err != nil {
			return fmt.Errorf("agent: resolve binary: %w", err)
		}
		a.client.SetBinaryPath(path)
	}

	if err := a.client.Start(ctx); err != nil {
		return fmt.Errorf("agent: start: %w", err)
	}
	if err := a.client.Connect(ctx); err != nil {
		return fmt.Errorf("agent: %w", err)
	}

	resp, err := a.client.Send(ctx, a.register)
	if err != nil {
		return fmt.Errorf("agent: register: %w", err)
	}
	if err := resp.Outcome().Err(); err != nil {
		return fmt.Errorf("agent: register: %w", err)
	}

	a.logger.Info("agent ready",
		zap.String("endpoint", a.client.Endpoint().String()),
		zap.String("app", a.cfg.App.Name),
	)
	return nil
}

// Ready reports whether Setup has completed successfully
func (a *Agent) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}

// waitSetup blocks while a Setup attempt is running
func (a *Agent) waitSetup(ctx context.Context) {
	a.mu.Lock()
	ch := a.inProgress
	a.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case <-ch:
	case <-ctx.Done():
	}
}

// Version asks the agent for its version
func (a *Agent) Version(ctx context.Context) (string, error) {
	return a.client.Version(ctx)
}

// Transaction runs fn as one request named name. done stops the request and
// queues it for sending; it is idempotent and called automatically when fn
// returns.
func (a *Agent) Transaction(ctx context.Context, name string, fn func(ctx context.Context, done func(), req *trace.Request) error) error {
	ctx, req, done := a.StartRequest(ctx, name)
	defer done()
	return fn(ctx, done, req)
}

// StartRequest starts a request in a new scope and makes it current in the
// returned context. The returned function finishes it and closes the scope.
func (a *Agent) StartRequest(ctx context.Context, name string) (context.Context, *trace.Request, func()) {
	ctx, restore := a.store.Enter(ctx)
	req := a.tracer.StartRequest()
	req.SetName(name)
	a.bind(ctx, scope.KeyRequest, req)
	// hide spans of an enclosing request
	a.bind(ctx, scope.KeySpan, nil)

	done := sync.OnceFunc(func() {
		a.Finish(ctx, req)
		restore()
	})
	return ctx, req, done
}

// Finish stops req and sends it in the background. Flush waits for the send.
// After Shutdown the request is stopped but not sent.
func (a *Agent) Finish(ctx context.Context, req *trace.Request) {
	req.Stop()

	if !a.client.Monitoring() {
		return
	}
	if !a.pending.Add() {
		a.logger.Debug("request finished after shutdown; not sent",
			zap.String("request_id", req.RequestID().String()),
			zap.String("name", req.Name()),
		)
		return
	}

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer a.pending.Done()
		a.waitSetup(ctx)
		if err := req.Send(ctx); err != nil {
			a.logger.Debug("request dropped",
				zap.String("request_id", req.RequestID().String()),
				zap.String("name", req.Name()),
				zap.Error(err),
			)
		}
	}()
}

// CurrentRequest returns the request bound to ctx, if any
func (a *Agent) CurrentRequest(ctx context.Context) (*trace.Request, bool) {
	if v, ok := a.store.Get(ctx, scope.KeyRequest); ok {
		if req, ok := v.(*trace.Request); ok {
			return req, true
		}
	}
	if span, ok := a.CurrentSpan(ctx); ok {
		return span.Request(), true
	}
	return nil, false
}

// CurrentSpan returns the innermost span bound to ctx, if any
func (a *Agent) CurrentSpan(ctx context.Context) (*trace.Span, bool) {
	v, ok := a.store.Get(ctx, scope.KeySpan)
	if !ok {
		return nil, false
	}
	span, ok := v.(*trace.Span)
	return span, ok && span != nil
}

// currentUnit returns the innermost span, else the request, bound to ctx
func (a *Agent) currentUnit(ctx context.Context) trace.Unit {
	if span, ok := a.CurrentSpan(ctx); ok {
		return span
	}
	if req, ok := a.CurrentRequest(ctx); ok {
		return req
	}
	return nil
}

// Flush waits for background request sends to finish
func (a *Agent) Flush(ctx context.Context) error {
	if err := a.pending.Wait(ctx); err != nil {
		return fmt.Errorf("agent: flush: %w", err)
	}
	return nil
}

// Shutdown stops accepting finished requests, flushes pending sends,
// disconnects the transport and, when configured, stops the agent process
// this client launched. It returns ErrNoAgent if Setup never ran.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	attempted := a.attempted
	a.mu.Unlock()
	if !attempted {
		return ErrNoAgent
	}

	a.pending.Close()
	var errs []error
	if err := a.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.client.Disconnect(ctx); err != nil {
		errs = append(errs, fmt.Errorf("agent: disconnect: %w", err))
	}
	if a.cfg.Agent.ShutdownOnExit && a.client.OwnsProcess() {
		if err := a.client.StopProcess(ctx); err != nil {
			errs = append(errs, fmt.Errorf("agent: stop process: %w", err))
		}
	}

	a.mu.Lock()
	a.ready = false
	a.attempted = false
	a.mu.Unlock()

	a.logger.Info("agent shut down")
	return errors.Join(errs...)
}
