package trace

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/tracekit/internal/protocol"
	"github.com/GriffinCanCode/tracekit/internal/shared/id"
	"go.uber.org/zap"
)

// Unit is the surface shared by requests and spans
type Unit interface {
	RequestID() id.RequestID
	StartChildSpan(operation string) (*Span, error)
	AddContext(tags ...Tag)
	AddTag(name string, value any)
	Tag(name string) (any, bool)
	Stop()
	IsStopped() bool
	Send(ctx context.Context) error
}

var (
	_ Unit = (*Request)(nil)
	_ Unit = (*Span)(nil)
)

// Request is the root unit of traced work
type Request struct {
	tracer *Tracer
	id     id.RequestID

	mu        sync.Mutex
	name      string
	timestamp time.Time
	stoppedAt time.Time
	started   bool
	stopping  bool
	stopped   bool
	ignored   bool
	tags      tagSet
	children  []*Span
	spans     map[id.SpanID]*Span

	sent    atomic.Bool
	stopSeq atomic.Uint64
}

// RequestID returns the request's wire identifier
func (r *Request) RequestID() id.RequestID {
	return r.id
}

// SetName records a local display name, such as the transaction name. It is
// used in logs and never transmitted.
func (r *Request) SetName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.name = name
}

// Name returns the display name
func (r *Request) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name
}

// Start fixes the request's timestamp. Later calls do nothing.
func (r *Request) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.timestamp = r.tracer.now()
}

// IsStarted reports whether Start has been called
func (r *Request) IsStarted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// Timestamp returns the start time, zero before Start
func (r *Request) Timestamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timestamp
}

// Duration is the elapsed time since start, frozen once stopped
func (r *Request) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return r.stoppedAt.Sub(r.timestamp)
	}
	return r.tracer.now().Sub(r.timestamp)
}

// StartChildSpan starts a top-level span of this request
func (r *Request) StartChildSpan(operation string) (*Span, error) {
	s := r.newSpan(operation, "")

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopping || r.stopped {
		return nil, ErrUnitFinished
	}
	if !r.started {
		r.started = true
		r.timestamp = s.timestamp
	}
	r.children = append(r.children, s)
	r.spans[s.id] = s
	return s, nil
}

func (r *Request) newSpan(operation string, parent id.SpanID) *Span {
	return &Span{
		request:   r,
		id:        id.NewSpanID(),
		parentID:  parent,
		operation: operation,
		timestamp: r.tracer.now(),
	}
}

// register adds a nested span to the arena
func (r *Request) register(s *Span) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopping || r.stopped {
		return ErrUnitFinished
	}
	r.spans[s.id] = s
	return nil
}

// Span looks up any span of this request by ID
func (r *Request) Span(spanID id.SpanID) (*Span, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.spans[spanID]
	return s, ok
}

// Children returns the top-level spans in creation order
func (r *Request) Children() []*Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.children)
}

// SpanCount is the number of spans at any depth
func (r *Request) SpanCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spans)
}

// AddContext sets several tags; later values win
func (r *Request) AddContext(tags ...Tag) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tags {
		r.tags.set(t.Name, t.Value)
	}
}

// AddTag sets one tag
func (r *Request) AddTag(name string, value any) {
	r.AddContext(Tag{Name: name, Value: value})
}

// Tag returns the value of a tag
func (r *Request) Tag(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.tags[name]
	return v, ok
}

// Tags returns a copy of all tags
func (r *Request) Tags() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tags.clone()
}

// Ignore marks the request so Send transmits nothing
func (r *Request) Ignore() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ignored = true
}

// IsIgnored reports whether Ignore was called
func (r *Request) IsIgnored() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ignored
}

// Stop stops every descendant span, deepest first, then the request itself.
func (r *Request) Stop() {
	r.mu.Lock()
	if r.stopping || r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopping = true
	children := slices.Clone(r.children)
	r.mu.Unlock()

	for _, child := range children {
		child.Stop()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		r.started = true
		r.timestamp = r.tracer.now()
	}
	r.stopped = true
	r.stoppedAt = r.tracer.now()
}

// Finish is an alias for Stop
func (r *Request) Finish() {
	r.Stop()
}

// IsStopped reports whether the request has been stopped
func (r *Request) IsStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// IsSent reports whether Send has claimed the request
func (r *Request) IsSent() bool {
	return r.sent.Load()
}

// Send stops the request if needed and transmits it with all of its spans.
// Only the first call does any work. Ignored requests are marked sent without
// transmitting. The first delivery error is returned after being logged.
func (r *Request) Send(ctx context.Context) error {
	if !r.sent.CompareAndSwap(false, true) {
		return nil
	}
	r.Stop()

	if r.IsIgnored() {
		r.tracer.logger.Debug("skipping ignored request", zap.String("request_id", r.id.String()))
		return nil
	}

	run := newSendRun(r.tracer, r.id)
	r.emit(ctx, run)

	if rec := r.tracer.recorder; rec != nil {
		rec.RequestSent(r.SpanCount(), run.err)
	}
	if run.err != nil {
		r.tracer.logger.Warn("request send failed",
			zap.String("request_id", r.id.String()),
			zap.Int("messages", run.sent),
			zap.Error(run.err),
		)
	}
	return run.err
}

// FinishAndSend stops and sends the request
func (r *Request) FinishAndSend(ctx context.Context) error {
	r.Stop()
	return r.Send(ctx)
}

func (r *Request) emit(ctx context.Context, run *sendRun) {
	r.mu.Lock()
	start := protocol.FormatTime(r.timestamp)
	stop := protocol.FormatTime(r.stoppedAt)
	children := slices.Clone(r.children)
	tags := r.tags.clone()
	r.mu.Unlock()

	rid := r.id.String()
	run.send(ctx, &protocol.StartRequest{RequestID: rid, Timestamp: start})

	for _, child := range children {
		child.emit(ctx, run)
	}

	for _, name := range tagSet(tags).sortedNames() {
		run.send(ctx, &protocol.TagRequest{
			RequestID: rid,
			Tag:       name,
			Value:     tags[name],
			Timestamp: stop,
		})
	}

	run.send(ctx, &protocol.FinishRequest{RequestID: rid, Timestamp: stop})
}

func (r *Request) nextStopSeq() uint64 {
	return r.stopSeq.Add(1)
}
