package scope

import (
	"context"
	"maps"
	"sync"

	"go.uber.org/zap"
)

// SyncStore holds one process-wide slot. Enter snapshots it and restore puts
// the snapshot back, so nested sequential scopes unwind correctly. Concurrent
// operations overwrite each other; use ContextStore for those.
type SyncStore struct {
	logger *zap.Logger

	mu     sync.Mutex
	values map[Key]any
	depth  int
}

// NewSyncStore creates a single-slot store
func NewSyncStore(logger *zap.Logger) *SyncStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncStore{logger: logger, values: make(map[Key]any)}
}

// Run calls fn with the slot saved and restored around it
func (s *SyncStore) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return runScoped(ctx, s, fn)
}

// Enter snapshots the slot; the returned context is ctx unchanged
func (s *SyncStore) Enter(ctx context.Context) (context.Context, func()) {
	s.mu.Lock()
	saved := maps.Clone(s.values)
	s.depth++
	s.mu.Unlock()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			s.mu.Lock()
			s.values = saved
			s.depth--
			s.mu.Unlock()
		})
	}
}

// Get reads from the slot
func (s *SyncStore) Get(_ context.Context, key Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set writes into the slot. Outside any scope the value would never be
// restored, so it is refused.
func (s *SyncStore) Set(_ context.Context, key Key, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.depth == 0 {
		return ErrNoScope
	}
	s.values[key] = value
	return nil
}

// Clear removes a key from the slot
func (s *SyncStore) Clear(_ context.Context, key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		s.logger.Debug("clear of unset key", zap.String("key", string(key)))
		return
	}
	delete(s.values, key)
}
