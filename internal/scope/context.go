package scope

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type namespaceKey struct{}

type namespace struct {
	parent *namespace

	mu     sync.RWMutex
	values map[Key]any
}

func (n *namespace) lookup(key Key) (any, bool) {
	for ns := n; ns != nil; ns = ns.parent {
		ns.mu.RLock()
		v, ok := ns.values[key]
		ns.mu.RUnlock()
		if ok {
			return v, true
		}
	}
	return nil, false
}

// ContextStore keeps namespaces on the context. Goroutines started with a
// scoped context share its namespace; separate Run calls never do.
type ContextStore struct {
	logger *zap.Logger
}

// NewContextStore creates a context-backed store
func NewContextStore(logger *zap.Logger) *ContextStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContextStore{logger: logger}
}

// Run calls fn in a fresh child scope
func (s *ContextStore) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return runScoped(ctx, s, fn)
}

// Enter returns a context carrying a new namespace chained to ctx's.
// restore is a no-op; the scope ends when the context is dropped.
func (s *ContextStore) Enter(ctx context.Context) (context.Context, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	ns := &namespace{parent: current(ctx), values: make(map[Key]any, 2)}
	return context.WithValue(ctx, namespaceKey{}, ns), func() {}
}

// Get reads a value visible from ctx
func (s *ContextStore) Get(ctx context.Context, key Key) (any, bool) {
	ns := current(ctx)
	if ns == nil {
		return nil, false
	}
	return ns.lookup(key)
}

// Set writes a value into ctx's innermost namespace
func (s *ContextStore) Set(ctx context.Context, key Key, value any) error {
	ns := current(ctx)
	if ns == nil {
		return ErrNoScope
	}
	ns.mu.Lock()
	ns.values[key] = value
	ns.mu.Unlock()
	return nil
}

// Clear deletes a key from ctx's innermost namespace
func (s *ContextStore) Clear(ctx context.Context, key Key) {
	ns := current(ctx)
	if ns == nil {
		s.logger.Debug("clear outside of scope", zap.String("key", string(key)))
		return
	}
	ns.mu.Lock()
	delete(ns.values, key)
	ns.mu.Unlock()
}

func current(ctx context.Context) *namespace {
	if ctx == nil {
		return nil
	}
	ns, _ := ctx.Value(namespaceKey{}).(*namespace)
	return ns
}
