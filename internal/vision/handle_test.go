package vision

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleLoadsOnceForConcurrentCallers(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})

	h := NewHandle("font", func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "goregular", nil
	})
	assert.Equal(t, StateUninitialized, h.State())

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := h.Get(context.Background())
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	require.Eventually(t, func() bool { return h.State() == StateLoading }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, h.Loads())
	assert.Equal(t, StateReady, h.State())
	for _, r := range results {
		assert.Equal(t, "goregular", r)
	}
}

func TestHandleRetriesAfterFailure(t *testing.T) {
	var calls atomic.Int32
	h := NewHandle("cv", func(ctx context.Context) (int, error) {
		if calls.Add(1) == 1 {
			return 0, errors.New("backend missing")
		}
		return 42, nil
	})

	_, err := h.Get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cv: backend missing")
	assert.Equal(t, StateFailed, h.State())

	v, err := h.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, h.Loads())
}

func TestHandleWaitRespectsContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	h := NewHandle("slow", func(ctx context.Context) (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := h.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateLoading, h.State())
}

func TestHandleOnReadyContinuations(t *testing.T) {
	h := NewHandle("font", func(ctx context.Context) (string, error) {
		return "ready", nil
	})

	got := make(chan string, 2)
	h.OnReady(context.Background(), func(v string, err error) { got <- v })

	select {
	case v := <-got:
		assert.Equal(t, "ready", v)
	case <-time.After(time.Second):
		t.Fatal("continuation not invoked")
	}

	h.OnReady(context.Background(), func(v string, err error) { got <- v + "-cached" })
	assert.Equal(t, "ready-cached", <-got)
	assert.Equal(t, 1, h.Loads())
}

func TestHandleReset(t *testing.T) {
	h := NewHandle("x", func(ctx context.Context) (int, error) { return 7, nil })

	_, err := h.Get(context.Background())
	require.NoError(t, err)

	h.Reset()
	assert.Equal(t, StateUninitialized, h.State())

	_, err = h.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, h.Loads())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "failed", StateFailed.String())
}
