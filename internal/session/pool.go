package session

import (
	"context"
	"fmt"
	"runtime"
)

// Pool runs CPU-bound page work off the request goroutines with a fixed
// number of slots shared by all sessions.
type Pool struct {
	slots chan struct{}
}

func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{slots: make(chan struct{}, workers)}
}

func (p *Pool) Size() int {
	return cap(p.slots)
}

// Do waits for a free slot and runs fn on a worker goroutine. When ctx ends
// first Do returns its error; a started fn still runs to completion and
// releases its slot, but its results must be ignored.
func (p *Pool) Do(ctx context.Context, fn func()) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	done := make(chan struct{})
	var panicErr error
	go func() {
		defer func() {
			if r := recover(); r != nil {
				panicErr = fmt.Errorf("worker panic: %v", r)
			}
			<-p.slots
			close(done)
		}()
		fn()
	}()

	select {
	case <-done:
		return panicErr
	case <-ctx.Done():
		return ctx.Err()
	}
}
