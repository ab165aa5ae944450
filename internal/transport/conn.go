package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/tracekit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tracekit/internal/protocol"
	"github.com/GriffinCanCode/tracekit/internal/shared/id"
	"go.uber.org/zap"
)

const readBufferSize = 4096

type result struct {
	resp protocol.Response
	err  error
}

// conn is one pooled stream to the agent. Handshake fields are touched only
// by the goroutine holding the lease; waiter is shared with the reader.
type conn struct {
	id      id.ConnID
	nc      net.Conn
	logger  *zap.Logger
	metrics *monitoring.Metrics
	emit    EventHandler

	// handshake state, lease holder only
	registered   bool
	metadataSent bool
	registration protocol.Response
	metadata     protocol.Response

	mu     sync.Mutex
	waiter chan result

	doNotUse  atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
	onClose   func(c *conn, reason string)
}

func newConn(nc net.Conn, logger *zap.Logger, metrics *monitoring.Metrics, emit EventHandler, onClose func(*conn, string)) *conn {
	cid := id.NewConnID()
	c := &conn{
		id:      cid,
		nc:      nc,
		logger:  logger.With(zap.String("conn_id", cid.String())),
		metrics: metrics,
		emit:    emit,
		closed:  make(chan struct{}),
		onClose: onClose,
	}
	go c.readLoop()
	return c
}

func (c *conn) usable() bool {
	return !c.doNotUse.Load()
}

// exchange writes one frame and waits for the single reply it provokes.
// Any failure other than an agent-side protocol error destroys the connection.
func (c *conn) exchange(ctx context.Context, msg protocol.Message) (protocol.Response, error) {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return nil, err
	}

	ch := make(chan result, 1)
	c.mu.Lock()
	if c.doNotUse.Load() {
		c.mu.Unlock()
		return nil, c.err()
	}
	if c.waiter != nil {
		c.mu.Unlock()
		return nil, ErrConnectionBusy
	}
	c.waiter = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.waiter == ch {
			c.waiter = nil
		}
		c.mu.Unlock()
	}()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.nc.SetWriteDeadline(deadline)
	}
	if _, err := c.nc.Write(frame); err != nil {
		werr := fmt.Errorf("%w: write %s: %v", ErrConnectionClosed, msg.Kind(), err)
		if isTimeout(err) {
			werr = fmt.Errorf("%w: write %s", ErrTimeout, msg.Kind())
		}
		c.fail(werr, "write")
		return nil, werr
	}

	select {
	case r := <-ch:
		return r.resp, r.err
	case <-c.closed:
		// the reader may have delivered just before closing
		select {
		case r := <-ch:
			return r.resp, r.err
		default:
		}
		return nil, c.err()
	case <-ctx.Done():
		err := fmt.Errorf("%w: %s: %v", ErrTimeout, msg.Kind(), ctx.Err())
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%s: %w", msg.Kind(), ctx.Err())
		}
		// a late reply must never reach the next lease holder
		c.fail(err, "timeout")
		return nil, err
	}
}

func (c *conn) readLoop() {
	var dec protocol.Decoder
	buf := make([]byte, readBufferSize)

	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			frames, ferr := dec.Feed(buf[:n])
			for _, f := range frames {
				c.dispatch(f)
			}
			if ferr != nil {
				c.fail(fmt.Errorf("%w: %v", ErrConnectionClosed, ferr), "protocol")
				return
			}
		}
		if err != nil {
			c.fail(fmt.Errorf("%w: %v", ErrConnectionClosed, err), "closed")
			return
		}
	}
}

// dispatch hands one decoded frame to the waiting exchange, if any
func (c *conn) dispatch(f protocol.Decoded) {
	status := monitoring.FrameOK
	switch {
	case errors.Is(f.Err, protocol.ErrUnrecognizedResponse):
		status = monitoring.FrameUnrecognized
	case f.Err != nil:
		status = monitoring.FrameMalformed
	}

	c.mu.Lock()
	ch := c.waiter
	c.waiter = nil
	c.mu.Unlock()

	if ch == nil {
		c.metrics.RecordFrame(monitoring.FrameUnsolicited)
		kind := ""
		if f.Response != nil {
			kind = f.Response.Kind()
		}
		c.logger.Warn("dropping reply with no request in flight",
			zap.String("kind", kind),
			zap.Int("bytes", len(f.Payload)),
			zap.Error(f.Err),
		)
		c.notify(Event{Type: EventUnsolicited, ConnID: c.id, Detail: kind, Err: f.Err})
		return
	}

	c.metrics.RecordFrame(status)
	ch <- result{resp: f.Response, err: f.Err}
}

// fail marks the connection unusable, closes it and releases any waiter.
// Safe to call from any goroutine, any number of times.
func (c *conn) fail(err error, reason string) {
	c.doNotUse.Store(true)
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeErr = err
		ch := c.waiter
		c.waiter = nil
		c.mu.Unlock()

		close(c.closed)
		_ = c.nc.Close()
		if ch != nil {
			ch <- result{err: err}
		}

		c.logger.Debug("connection closed", zap.String("reason", reason), zap.Error(err))
		c.notify(Event{Type: EventDisconnected, ConnID: c.id, Detail: reason, Err: err})
		if c.onClose != nil {
			c.onClose(c, reason)
		}
	})
}

func (c *conn) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeErr != nil {
		return c.closeErr
	}
	return ErrConnectionClosed
}

func (c *conn) notify(ev Event) {
	if c.emit != nil {
		c.emit(ev)
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
