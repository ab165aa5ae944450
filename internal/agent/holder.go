package agent

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Holder owns the process's active Agent. Concurrent GetOrCreate calls share
// one creation.
type Holder struct {
	mu     sync.Mutex
	active *Agent
	group  singleflight.Group
}

// NewHolder returns an empty holder
func NewHolder() *Holder {
	return &Holder{}
}

// GetOrCreate returns the active agent, creating and setting one up with opts
// if there is none. A failed setup leaves the holder empty.
func (h *Holder) GetOrCreate(ctx context.Context, opts ...Option) (*Agent, error) {
	if a := h.Active(); a != nil {
		return a, nil
	}

	v, err, _ := h.group.Do("agent", func() (any, error) {
		if a := h.Active(); a != nil {
			return a, nil
		}
		a, err := New(opts...)
		if err != nil {
			return nil, err
		}
		if err := a.Setup(ctx); err != nil {
			return nil, err
		}

		h.mu.Lock()
		h.active = a
		h.mu.Unlock()
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Agent), nil
}

// Active returns the current agent or nil
func (h *Holder) Active() *Agent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// ShutdownActive shuts the active agent down and empties the holder
func (h *Holder) ShutdownActive(ctx context.Context) error {
	h.mu.Lock()
	a := h.active
	h.active = nil
	h.mu.Unlock()

	if a == nil {
		return ErrNoAgent
	}
	return a.Shutdown(ctx)
}

// Reset forgets the active agent without shutting it down
func (h *Holder) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = nil
}
