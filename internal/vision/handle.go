// Package vision provides lazily initialized, process-wide capabilities
// such as parsed fonts and computer-vision backends.
package vision

import (
	"context"
	"fmt"
	"sync"
)

type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// LoadFunc performs the expensive one-time initialization.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// Handle initializes a capability at most once at a time. Concurrent
// requesters attach to the in-flight load instead of starting another one.
// A failed load is retried by the next requester.
type Handle[T any] struct {
	name string
	load LoadFunc[T]

	mu      sync.Mutex
	state   State
	value   T
	err     error
	done    chan struct{}
	pending []func(T, error)
	loads   int
}

func NewHandle[T any](name string, load LoadFunc[T]) *Handle[T] {
	return &Handle[T]{name: name, load: load}
}

func (h *Handle[T]) Name() string {
	return h.name
}

func (h *Handle[T]) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Loads reports how many initializations have been started.
func (h *Handle[T]) Loads() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loads
}

// Get returns the capability, starting the load if needed and waiting for
// it otherwise. Cancelling ctx stops the wait, not the load.
func (h *Handle[T]) Get(ctx context.Context) (T, error) {
	h.mu.Lock()
	if h.state == StateReady {
		v := h.value
		h.mu.Unlock()
		return v, nil
	}
	done := h.startLocked(ctx)
	h.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateReady {
		return h.value, nil
	}
	var zero T
	return zero, fmt.Errorf("%s: %w", h.name, h.err)
}

// OnReady registers a continuation that runs once the capability is
// available or has failed. It runs immediately when the handle is ready.
func (h *Handle[T]) OnReady(ctx context.Context, fn func(T, error)) {
	h.mu.Lock()
	if h.state == StateReady {
		v := h.value
		h.mu.Unlock()
		fn(v, nil)
		return
	}
	h.pending = append(h.pending, fn)
	h.startLocked(ctx)
	h.mu.Unlock()
}

// Reset drops a ready or failed capability so the next Get reloads it.
func (h *Handle[T]) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateLoading {
		return
	}
	var zero T
	h.value = zero
	h.err = nil
	h.state = StateUninitialized
}

func (h *Handle[T]) startLocked(ctx context.Context) chan struct{} {
	if h.state == StateLoading {
		return h.done
	}

	h.state = StateLoading
	h.done = make(chan struct{})
	h.loads++
	done := h.done
	loadCtx := context.WithoutCancel(ctx)

	go func() {
		v, err := h.load(loadCtx)

		h.mu.Lock()
		if err != nil {
			h.state = StateFailed
			h.err = err
		} else {
			h.state = StateReady
			h.value = v
			h.err = nil
		}
		callbacks := h.pending
		h.pending = nil
		close(done)
		h.mu.Unlock()

		for _, cb := range callbacks {
			cb(v, err)
		}
	}()

	return done
}
