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

// Span is a nested unit of work within a Request. Its parent is kept as an ID
// and resolved through the owning request.
type Span struct {
	request   *Request
	id        id.SpanID
	parentID  id.SpanID
	operation string
	timestamp time.Time

	mu        sync.Mutex
	stoppedAt time.Time
	stopping  bool
	stopped   bool
	stopOrder uint64
	tags      tagSet
	children  []*Span

	sent atomic.Bool
}

// ID returns the span's wire identifier
func (s *Span) ID() id.SpanID { return s.id }

// Operation returns the span's operation name
func (s *Span) Operation() string { return s.operation }

// Request returns the owning request
func (s *Span) Request() *Request { return s.request }

// RequestID returns the owning request's identifier
func (s *Span) RequestID() id.RequestID { return s.request.id }

// ParentID returns the parent span's ID, empty for top-level spans
func (s *Span) ParentID() id.SpanID { return s.parentID }

// Parent resolves the parent span
func (s *Span) Parent() (*Span, bool) {
	if s.parentID == "" {
		return nil, false
	}
	return s.request.Span(s.parentID)
}

// Timestamp returns the span's start time
func (s *Span) Timestamp() time.Time { return s.timestamp }

// Duration is the elapsed time since start, frozen once stopped
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return s.stoppedAt.Sub(s.timestamp)
	}
	return s.request.tracer.now().Sub(s.timestamp)
}

// StartChildSpan starts a span nested under this one
func (s *Span) StartChildSpan(operation string) (*Span, error) {
	child := s.request.newSpan(operation, s.id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping || s.stopped {
		return nil, ErrUnitFinished
	}
	if err := s.request.register(child); err != nil {
		return nil, err
	}
	s.children = append(s.children, child)
	return child, nil
}

// Children returns the direct child spans in creation order
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.children)
}

// AddContext sets several tags; later values win
func (s *Span) AddContext(tags ...Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tags {
		s.tags.set(t.Name, t.Value)
	}
}

// AddTag sets one tag
func (s *Span) AddTag(name string, value any) {
	s.AddContext(Tag{Name: name, Value: value})
}

// Tag returns the value of a tag
func (s *Span) Tag(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.tags[name]
	return v, ok
}

// Tags returns a copy of all tags
func (s *Span) Tags() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tags.clone()
}

// Stop stops the span's children depth-first, then the span. A span that ran
// past the tracer's slow threshold records the caller's stack as the stack tag.
func (s *Span) Stop() {
	s.mu.Lock()
	if s.stopping || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	children := slices.Clone(s.children)
	s.mu.Unlock()

	for _, child := range children {
		child.Stop()
	}

	t := s.request.tracer
	now := t.now()

	s.mu.Lock()
	s.stopped = true
	s.stoppedAt = now
	s.stopOrder = s.request.nextStopSeq()
	s.mu.Unlock()

	if now.Sub(s.timestamp) > t.slow {
		s.AddTag(TagStack, CaptureStack(1, t.ignore))
		if t.recorder != nil {
			t.recorder.SlowSpan(s.operation)
		}
	}
}

// IsStopped reports whether the span has been stopped
func (s *Span) IsStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// IsSent reports whether the span has been transmitted
func (s *Span) IsSent() bool {
	return s.sent.Load()
}

// Send stops the span if needed and transmits it with its descendants.
// Spans are normally sent by their request; a span sent here is skipped later.
func (s *Span) Send(ctx context.Context) error {
	if s.sent.Load() {
		return nil
	}
	s.Stop()

	t := s.request.tracer
	run := newSendRun(t, s.request.id)
	s.emit(ctx, run)
	if run.err != nil {
		t.logger.Warn("span send failed",
			zap.String("request_id", s.request.id.String()),
			zap.String("span_id", s.id.String()),
			zap.Error(run.err),
		)
	}
	return run.err
}

func (s *Span) emit(ctx context.Context, run *sendRun) {
	if !s.sent.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	stop := protocol.FormatTime(s.stoppedAt)
	children := slices.Clone(s.children)
	tags := s.tags.clone()
	s.mu.Unlock()

	rid, sid := s.request.id.String(), s.id.String()
	start := &protocol.StartSpan{
		RequestID: rid,
		SpanID:    sid,
		Operation: s.operation,
		Timestamp: protocol.FormatTime(s.timestamp),
	}
	if s.parentID != "" {
		parent := s.parentID.String()
		start.ParentID = &parent
	}
	run.send(ctx, start)

	for _, child := range children {
		child.emit(ctx, run)
	}

	for _, name := range tagSet(tags).sortedNames() {
		run.send(ctx, &protocol.TagSpan{
			RequestID: rid,
			SpanID:    sid,
			Tag:       name,
			Value:     tags[name],
			Timestamp: stop,
		})
	}

	run.send(ctx, &protocol.StopSpan{RequestID: rid, SpanID: sid, Timestamp: stop})
}
