package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/GriffinCanCode/tracekit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tracekit/internal/infrastructure/resilience"
	"github.com/jackc/puddle/v2"
	"go.uber.org/zap"
)

type dialFunc func(ctx context.Context) (net.Conn, error)

// lease is an exclusively held connection
type lease = puddle.Resource[*conn]

// pool leases connections exclusively on top of a puddle pool. live tracks
// connections that have not failed yet so close can interrupt leased ones.
type pool struct {
	dial    dialFunc
	backoff *resilience.Backoff
	logger  *zap.Logger
	metrics *monitoring.Metrics
	emit    EventHandler

	res *puddle.Pool[*conn]

	mu     sync.Mutex
	live   map[*conn]struct{}
	closed bool
}

func newPool(limit int, dial dialFunc, backoff *resilience.Backoff, logger *zap.Logger, metrics *monitoring.Metrics, emit EventHandler) *pool {
	if limit <= 0 {
		limit = 1
	}
	p := &pool{
		dial:    dial,
		backoff: backoff,
		logger:  logger,
		metrics: metrics,
		emit:    emit,
		live:    make(map[*conn]struct{}),
	}

	res, err := puddle.NewPool(&puddle.Config[*conn]{
		Constructor: p.create,
		Destructor: func(c *conn) {
			c.fail(ErrConnectionClosed, "destroyed")
		},
		MaxSize: int32(limit),
	})
	if err != nil {
		// only a non-positive MaxSize is rejected
		panic(err)
	}
	p.res = res
	return p
}

// acquire leases a connection, reusing an idle one when possible and dialing
// a new one while under the size limit. It waits for ctx otherwise.
func (p *pool) acquire(ctx context.Context) (*lease, error) {
	for {
		r, err := p.res.Acquire(ctx)
		if err != nil {
			return nil, p.acquireErr(ctx, err)
		}
		if r.Value().usable() {
			return r, nil
		}
		// failed while idle
		r.Destroy()
	}
}

func (p *pool) acquireErr(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, puddle.ErrClosedPool):
		return ErrDisconnected
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrDisconnected):
		return err
	case ctx.Err() != nil:
		return fmt.Errorf("%w: waiting for connection: %v", ErrTimeout, ctx.Err())
	}
	return err
}

// prewarm dials one connection straight into the idle set
func (p *pool) prewarm(ctx context.Context) error {
	err := p.res.CreateResource(ctx)
	if errors.Is(err, puddle.ErrNotAvailable) {
		return nil
	}
	if err != nil {
		return p.acquireErr(ctx, err)
	}
	return nil
}

// create is the puddle constructor: a dial gated by the backoff breaker
func (p *pool) create(ctx context.Context) (*conn, error) {
	var nc net.Conn
	err := p.backoff.Do(ctx, func(ctx context.Context) error {
		var derr error
		nc, derr = p.dial(ctx)
		return derr
	})
	p.metrics.ConnectionCreated(err)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: dial: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("dial agent: %w", err)
	}

	c := newConn(nc, p.logger, p.metrics, p.emit, p.remove)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		c.fail(ErrDisconnected, "disconnected")
		return nil, ErrDisconnected
	}
	p.live[c] = struct{}{}
	p.mu.Unlock()

	p.logger.Debug("connection established", zap.String("conn_id", c.id.String()))
	if p.emit != nil {
		p.emit(Event{Type: EventConnected, ConnID: c.id})
	}
	return c, nil
}

// release returns a lease. Unusable connections are destroyed.
func (p *pool) release(r *lease) {
	if !r.Value().usable() {
		r.Destroy()
		return
	}
	r.Release()
}

// remove is the connection's close callback; it runs once per connection
func (p *pool) remove(c *conn, reason string) {
	p.mu.Lock()
	_, ok := p.live[c]
	delete(p.live, c)
	p.mu.Unlock()

	if ok {
		p.metrics.ConnectionDestroyed(reason)
	}
}

// size returns the number of live connections
func (p *pool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}

// close fails every connection, leased or idle, refuses new leases and waits
// for outstanding leases to come back.
func (p *pool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	conns := make([]*conn, 0, len(p.live))
	for c := range p.live {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	for _, c := range conns {
		c.fail(ErrDisconnected, "disconnected")
	}
	p.res.Close()
}
