package trace

import (
	"context"
	"time"

	"github.com/GriffinCanCode/tracekit/internal/protocol"
	"github.com/GriffinCanCode/tracekit/internal/shared/id"
	"go.uber.org/zap"
)

// DefaultSlowThreshold is used when no threshold is configured
const DefaultSlowThreshold = 500 * time.Millisecond

// Sender delivers one message to the agent and returns its reply
type Sender interface {
	Send(ctx context.Context, msg protocol.Message) (protocol.Response, error)
}

// Recorder observes completed sends; implemented by the metrics layer
type Recorder interface {
	RequestSent(spans int, err error)
	SlowSpan(operation string)
}

// Tracer creates requests that share one sender and span policy
type Tracer struct {
	sender   Sender
	logger   *zap.Logger
	slow     time.Duration
	ignore   []string
	now      func() time.Time
	recorder Recorder
}

// Option configures a Tracer
type Option func(*Tracer)

// WithLogger sets the tracer's logger
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithSlowThreshold sets the duration above which spans capture a stack
func WithSlowThreshold(d time.Duration) Option {
	return func(t *Tracer) {
		if d > 0 {
			t.slow = d
		}
	}
}

// WithStackIgnore drops stack frames whose file matches any pattern
func WithStackIgnore(patterns ...string) Option {
	return func(t *Tracer) {
		t.ignore = append(t.ignore, patterns...)
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(t *Tracer) {
		if now != nil {
			t.now = now
		}
	}
}

// WithRecorder attaches a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(t *Tracer) {
		t.recorder = r
	}
}

// NewTracer creates a tracer that sends through sender
func NewTracer(sender Sender, opts ...Option) *Tracer {
	t := &Tracer{
		sender: sender,
		logger: zap.NewNop(),
		slow:   DefaultSlowThreshold,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SlowThreshold returns the configured slow-span threshold
func (t *Tracer) SlowThreshold() time.Duration {
	return t.slow
}

// NewRequest creates an unstarted request. An empty requestID generates one.
func (t *Tracer) NewRequest(requestID id.RequestID) *Request {
	if requestID == "" {
		requestID = id.NewRequestID()
	}
	return &Request{
		tracer: t,
		id:     requestID,
		spans:  make(map[id.SpanID]*Span),
	}
}

// StartRequest creates and starts a request with a generated ID
func (t *Tracer) StartRequest() *Request {
	r := t.NewRequest("")
	r.Start()
	return r
}
