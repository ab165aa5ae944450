package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/GriffinCanCode/tracekit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tracekit/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/tracekit/internal/protocol"
	"github.com/GriffinCanCode/tracekit/internal/shared/inflight"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Default timeouts and pool limits
const (
	DefaultSendTimeout    = 5 * time.Second
	DefaultConnectTimeout = 2 * time.Second
	DefaultStartTimeout   = 5 * time.Second
	DefaultPoolMax        = 4

	// degradedWarnEvery throttles "agent unreachable" warnings
	degradedWarnEvery = 30 * time.Second
)

// Options configures a Client
type Options struct {
	// Endpoint is the agent socket URI: unix:///path, /path or tcp://host:port
	Endpoint string
	// Monitor enables sending; when false every send fails fast with ErrMonitoringDisabled
	Monitor bool

	// Launch allows Start to spawn the agent binary
	Launch        bool
	BinaryPath    string
	AgentLogLevel string
	StartTimeout  time.Duration

	PoolMin          int
	PoolMax          int
	SendTimeout      time.Duration
	ConnectTimeout   time.Duration
	BackoffThreshold int
	BackoffDelay     time.Duration

	// Register and Metadata are injected at the head of every new connection
	Register *protocol.Register
	Metadata *protocol.ApplicationEvent

	Logger  *zap.Logger
	Metrics *monitoring.Metrics
	OnEvent EventHandler
}

// Client is the agent transport
type Client struct {
	opts     Options
	endpoint Endpoint
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	backoff  *resilience.Backoff
	warn     *rate.Limiter

	mu           sync.Mutex
	pool         *pool
	draining     bool
	disconnected bool
	proc         *process

	async inflight.Tracker
}

// New creates a client. It does not touch the network.
func New(opts Options) (*Client, error) {
	endpoint, err := ParseEndpoint(opts.Endpoint)
	if err != nil {
		return nil, err
	}

	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = DefaultStartTimeout
	}
	if opts.PoolMax <= 0 {
		opts.PoolMax = DefaultPoolMax
	}
	if opts.PoolMin > opts.PoolMax {
		opts.PoolMin = opts.PoolMax
	}
	if opts.AgentLogLevel == "" {
		opts.AgentLogLevel = "info"
	}

	logger := opts.Logger.With(zap.String("endpoint", endpoint.String()))
	opts.Metrics.SetClassifier(classify)

	c := &Client{
		opts:     opts,
		endpoint: endpoint,
		logger:   logger,
		metrics:  opts.Metrics,
		warn:     rate.NewLimiter(rate.Every(degradedWarnEvery), 1),
	}
	c.backoff = resilience.New("agent-dial", resilience.Settings{
		Threshold: uint32(max(opts.BackoffThreshold, 0)),
		Delay:     opts.BackoffDelay,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Info("connection backoff state changed",
				zap.String("gate", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c, nil
}

// Endpoint returns the parsed agent address
func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

// Monitoring reports whether sending is enabled
func (c *Client) Monitoring() bool {
	return c.opts.Monitor
}

// Connect initializes the pool and opens PoolMin connections. Handshakes
// happen on first use of each connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.pool == nil {
		c.pool = c.newPool()
	}
	c.disconnected = false
	p := c.pool
	c.mu.Unlock()

	if c.opts.PoolMin == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	for range c.opts.PoolMin - p.size() {
		if err := p.prewarm(ctx); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
	}
	return nil
}

// Disconnect stops accepting asynchronous sends, waits for those in flight,
// then closes every connection. Later sends fail with ErrDisconnected until
// Connect is called again.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.draining = true
	c.mu.Unlock()

	waitErr := c.Wait(ctx)

	c.mu.Lock()
	p := c.pool
	c.pool = nil
	c.draining = false
	c.disconnected = true
	c.mu.Unlock()

	if p != nil {
		p.close()
	}
	return waitErr
}

// Wait blocks until every SendAsync started so far has finished
func (c *Client) Wait(ctx context.Context) error {
	if err := c.async.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for pending sends: %w", err)
	}
	return nil
}

// PoolSize returns the number of live connections
func (c *Client) PoolSize() int {
	c.mu.Lock()
	p := c.pool
	c.mu.Unlock()
	if p == nil {
		return 0
	}
	return p.size()
}

// Send delivers msg and returns the agent's reply. Fresh connections are
// handshaken first. The whole exchange, handshake included, is bounded by
// SendTimeout.
func (c *Client) Send(ctx context.Context, msg protocol.Message) (protocol.Response, error) {
	if !c.opts.Monitor {
		c.metrics.RecordSend(msg.Kind(), ErrMonitoringDisabled, 0)
		return nil, ErrMonitoringDisabled
	}

	p, err := c.activePool()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.opts.SendTimeout)
	defer cancel()

	l, err := p.acquire(ctx)
	if err != nil {
		c.metrics.RecordSend(msg.Kind(), err, time.Since(start))
		c.degraded(msg, err)
		return nil, err
	}

	resp, err := c.roundTrip(ctx, l.Value(), msg)
	p.release(l)

	c.metrics.RecordSend(msg.Kind(), err, time.Since(start))
	if err != nil {
		c.degraded(msg, err)
	}
	return resp, err
}

// SendAsync delivers msg in the background and returns at once. The reply is
// still read so the connection stays in step; failures are only logged.
func (c *Client) SendAsync(ctx context.Context, msg protocol.Message) error {
	if !c.opts.Monitor {
		return ErrMonitoringDisabled
	}

	c.mu.Lock()
	if c.draining || c.disconnected || !c.async.Add() {
		c.mu.Unlock()
		return ErrDisconnected
	}
	c.mu.Unlock()

	go func() {
		defer c.async.Done()
		if _, err := c.Send(context.WithoutCancel(ctx), msg); err != nil {
			c.logger.Debug("async send failed", zap.String("kind", msg.Kind()), zap.Error(err))
		}
	}()
	return nil
}

// Version asks the agent for its version
func (c *Client) Version(ctx context.Context) (string, error) {
	resp, err := c.Send(ctx, protocol.CoreAgentVersion{})
	if err != nil {
		return "", err
	}
	v, ok := resp.(*protocol.VersionResponse)
	if !ok {
		return "", fmt.Errorf("%w: %s in reply to %s", protocol.ErrUnrecognizedResponse, resp.Kind(), protocol.KindCoreAgentVersion)
	}
	if err := v.Result.Err(); err != nil {
		return "", err
	}
	return v.Version, nil
}

// Reachable reports whether the agent socket accepts connections
func (c *Client) Reachable(ctx context.Context) bool {
	nc, err := c.dial(ctx)
	if err != nil {
		return false
	}
	_ = nc.Close()
	return true
}

func (c *Client) activePool() (*pool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disconnected {
		return nil, ErrDisconnected
	}
	if c.pool == nil {
		c.pool = c.newPool()
	}
	return c.pool, nil
}

func (c *Client) newPool() *pool {
	return newPool(c.opts.PoolMax, c.dial, c.backoff, c.logger, c.metrics, c.opts.OnEvent)
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	var d net.Dialer
	return d.DialContext(ctx, c.endpoint.Network, c.endpoint.Address)
}

// roundTrip runs any outstanding handshake steps on cn, then msg.
func (c *Client) roundTrip(ctx context.Context, cn *conn, msg protocol.Message) (protocol.Response, error) {
	if !cn.registered {
		if protocol.IsRegister(msg) {
			resp, err := cn.exchange(ctx, msg)
			c.handshakeDone(cn, "register", err)
			if err != nil {
				return nil, err
			}
			cn.registered, cn.registration = true, resp
			if err := c.sendMetadata(ctx, cn); err != nil {
				c.logger.Warn("metadata handshake failed", zap.Error(err))
			}
			return resp, nil
		}

		if c.opts.Register != nil {
			resp, err := cn.exchange(ctx, c.opts.Register)
			c.handshakeDone(cn, "register", err)
			if err != nil {
				return nil, fmt.Errorf("register: %w", err)
			}
			cn.registration = resp
		}
		cn.registered = true
	}

	if !cn.metadataSent && !protocol.IsMetadata(msg) {
		if err := c.sendMetadata(ctx, cn); err != nil {
			return nil, err
		}
	}

	resp, err := cn.exchange(ctx, msg)
	if err == nil && protocol.IsMetadata(msg) {
		cn.metadataSent, cn.metadata = true, resp
	}
	return resp, err
}

func (c *Client) sendMetadata(ctx context.Context, cn *conn) error {
	if cn.metadataSent {
		return nil
	}
	if c.opts.Metadata == nil {
		cn.metadataSent = true
		return nil
	}

	resp, err := cn.exchange(ctx, c.opts.Metadata)
	c.handshakeDone(cn, "metadata", err)
	if err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	cn.metadataSent, cn.metadata = true, resp
	return nil
}

func (c *Client) handshakeDone(cn *conn, step string, err error) {
	c.metrics.RecordHandshake(step, err)
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(Event{Type: EventHandshake, ConnID: cn.id, Detail: step, Err: err})
	}
}

// degraded logs a failed send, at most one warning per degradedWarnEvery
func (c *Client) degraded(msg protocol.Message, err error) {
	fields := []zap.Field{zap.String("kind", msg.Kind()), zap.Error(err)}
	if c.warn.Allow() {
		c.logger.Warn("agent unreachable, telemetry is being dropped", fields...)
		return
	}
	c.logger.Debug("send failed", fields...)
}

func classify(err error) string {
	switch {
	case err == nil:
		return monitoring.OutcomeSuccess
	case errors.Is(err, ErrMonitoringDisabled):
		return monitoring.OutcomeDisabled
	case errors.Is(err, ErrTimeout):
		return monitoring.OutcomeTimeout
	default:
		return monitoring.OutcomeFailure
	}
}
