// Package testutil provides fakes shared by the client's tests.
package testutil

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/tracekit/internal/protocol"
	"github.com/stretchr/testify/mock"
)

// RecordingSender captures every message and acknowledges it with success.
// Fail, when set, decides per message whether delivery errors instead.
type RecordingSender struct {
	Fail func(msg protocol.Message) error

	mu       sync.Mutex
	messages []protocol.Message
}

// Send records msg and acknowledges it
func (s *RecordingSender) Send(_ context.Context, msg protocol.Message) (protocol.Response, error) {
	if s.Fail != nil {
		if err := s.Fail(msg); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	return protocol.NewAck(msg.Kind(), protocol.Success()), nil
}

// Messages returns a copy of everything sent so far
func (s *RecordingSender) Messages() []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Message(nil), s.messages...)
}

// Kinds returns the top-level key of each sent message in order
func (s *RecordingSender) Kinds() []string {
	msgs := s.Messages()
	kinds := make([]string, len(msgs))
	for i, m := range msgs {
		kinds[i] = m.Kind()
	}
	return kinds
}

// Reset forgets recorded messages
func (s *RecordingSender) Reset() {
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
}

// MockSender is a testify mock of the trace sender
type MockSender struct {
	mock.Mock
}

// Send mocks delivery of one message
func (m *MockSender) Send(ctx context.Context, msg protocol.Message) (protocol.Response, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(protocol.Response), args.Error(1)
}
