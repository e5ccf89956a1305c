package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmsas95/ddtscan/internal/config"
)

type countingSweeper struct {
	calls atomic.Int32
	ttl   atomic.Int64
}

func (s *countingSweeper) Sweep(ctx context.Context, now time.Time, ttl time.Duration) int {
	s.calls.Add(1)
	s.ttl.Store(int64(ttl))
	return 1
}

type countingCollector struct {
	calls atomic.Int32
	err   error
}

func (c *countingCollector) RunGC(float64) (int, error) {
	c.calls.Add(1)
	return 0, c.err
}

func TestConfigFrom(t *testing.T) {
	cfg := config.Default(t.TempDir())
	cfg.Scanner.SessionTTLMinutes = 0

	c := ConfigFrom(cfg)
	assert.Equal(t, cfg.Cron.SweepSchedule, c.SweepSchedule)
	assert.Equal(t, 30*time.Minute, c.SessionTTL)
}

func TestNewRunner_InvalidSchedule(t *testing.T) {
	_, err := NewRunner(Config{SweepSchedule: "not a schedule"}, &countingSweeper{}, nil, nil)
	assert.Error(t, err)

	_, err = NewRunner(Config{GCSchedule: "61 * * * *"}, nil, &countingCollector{}, nil)
	assert.Error(t, err)
}

func TestRunner_RegistersOnlyProvidedJobs(t *testing.T) {
	r, err := NewRunner(Config{SweepSchedule: "@every 1m", GCSchedule: "@every 1m"}, &countingSweeper{}, nil, nil)
	require.NoError(t, err)
	assert.Len(t, r.Jobs(), 1)
}

func TestRunner_StartStop(t *testing.T) {
	r, err := NewRunner(Config{SweepSchedule: "@every 1h"}, &countingSweeper{}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, r.Start())
	assert.True(t, r.IsRunning())
	assert.Error(t, r.Start())

	r.Stop()
	assert.False(t, r.IsRunning())
	r.Stop()
}

func TestRunner_RunsJobs(t *testing.T) {
	sweeper := &countingSweeper{}
	collector := &countingCollector{err: errors.New("disk full")}
	r, err := NewRunner(Config{
		SweepSchedule: "@every 1s",
		GCSchedule:    "@every 1s",
		SessionTTL:    time.Minute,
	}, sweeper, collector, nil)
	require.NoError(t, err)

	require.NoError(t, r.Start())
	defer r.Stop()

	assert.Eventually(t, func() bool {
		return sweeper.calls.Load() > 0 && collector.calls.Load() > 0
	}, 3*time.Second, 50*time.Millisecond)
	assert.Equal(t, int64(time.Minute), sweeper.ttl.Load())
}
