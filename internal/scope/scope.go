// Package scope tracks the current request and span of a logical operation.
//
// A Store binds a small key/value namespace to an execution scope. Scopes are
// opened with Run or Enter. Values set inside a scope are visible to
// everything that runs within it, including goroutines handed the scope's
// context, and are invisible to unrelated scopes.
//
// ContextStore carries namespaces on context.Context and is safe for
// concurrent operations. SyncStore keeps a single process-wide slot that is
// saved and restored around each scope and suits strictly sequential code.
package scope

import (
	"context"
	"errors"
)

// Key names a value held in a scope
type Key string

const (
	// KeyRequest holds the current *trace.Request
	KeyRequest Key = "request"
	// KeySpan holds the current *trace.Span
	KeySpan Key = "span"
)

// ErrNoScope is returned by Set when no scope has been entered
var ErrNoScope = errors.New("scope: no active scope")

// Store is the current-unit namespace
type Store interface {
	// Run calls fn inside a new scope that inherits ctx's values.
	Run(ctx context.Context, fn func(ctx context.Context) error) error
	// Enter opens a new scope; restore closes it.
	Enter(ctx context.Context) (scoped context.Context, restore func())
	// Get looks the key up in the innermost scope and then its ancestors.
	Get(ctx context.Context, key Key) (any, bool)
	// Set writes into the innermost scope.
	Set(ctx context.Context, key Key, value any) error
	// Clear removes the key from the innermost scope. It never fails.
	Clear(ctx context.Context, key Key)
}

func runScoped(ctx context.Context, s Store, fn func(ctx context.Context) error) error {
	scoped, restore := s.Enter(ctx)
	defer restore()
	return fn(scoped)
}
