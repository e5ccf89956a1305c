// Package cron runs the housekeeping jobs: expiring idle capture sessions
// and compacting the blob store.
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	robfig "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/gmsas95/ddtscan/internal/config"
)

// Sweeper aborts sessions idle for longer than ttl.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time, ttl time.Duration) int
}

// Collector reclaims blob store space.
type Collector interface {
	RunGC(discardRatio float64) (int, error)
}

type Config struct {
	SweepSchedule string
	GCSchedule    string
	SessionTTL    time.Duration
	DiscardRatio  float64
}

func ConfigFrom(cfg *config.Config) Config {
	c := Config{
		SweepSchedule: cfg.Cron.SweepSchedule,
		GCSchedule:    cfg.Cron.GCSchedule,
		SessionTTL:    time.Duration(cfg.Scanner.SessionTTLMinutes) * time.Minute,
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 30 * time.Minute
	}
	c.DiscardRatio = 0.5
	return c
}

// Runner manages scheduled job execution
type Runner struct {
	config    Config
	sweeper   Sweeper
	collector Collector
	logger    *zap.Logger
	cron      *robfig.Cron
	ctx       context.Context
	cancel    context.CancelFunc
	running   bool
	mu        sync.RWMutex
	now       func() time.Time
}

// NewRunner validates the schedules and registers the jobs. A nil sweeper or
// collector leaves its job out.
func NewRunner(cfg Config, sweeper Sweeper, collector Collector, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		config:    cfg,
		sweeper:   sweeper,
		collector: collector,
		logger:    logger,
		cron:      robfig.New(robfig.WithChain(robfig.SkipIfStillRunning(robfig.DiscardLogger))),
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
	}

	if sweeper != nil && cfg.SweepSchedule != "" {
		if _, err := r.cron.AddFunc(cfg.SweepSchedule, r.sweepSessions); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid sweep schedule %q: %w", cfg.SweepSchedule, err)
		}
	}
	if collector != nil && cfg.GCSchedule != "" {
		if _, err := r.cron.AddFunc(cfg.GCSchedule, r.collectGarbage); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid gc schedule %q: %w", cfg.GCSchedule, err)
		}
	}
	return r, nil
}

// Start starts the cron runner
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("cron runner already running")
	}

	r.running = true
	r.cron.Start()
	r.logger.Info("Cron runner started", zap.Int("jobs", len(r.cron.Entries())))
	return nil
}

// Stop waits for running jobs to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	<-r.cron.Stop().Done()
	r.logger.Info("Cron runner stopped")
}

func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Jobs returns the next run time of each registered job.
func (r *Runner) Jobs() []time.Time {
	entries := r.cron.Entries()
	next := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		next = append(next, e.Next)
	}
	return next
}

func (r *Runner) sweepSessions() {
	if n := r.sweeper.Sweep(r.ctx, r.now(), r.config.SessionTTL); n > 0 {
		r.logger.Info("Expired idle sessions", zap.Int("count", n))
	}
}

func (r *Runner) collectGarbage() {
	n, err := r.collector.RunGC(r.config.DiscardRatio)
	if err != nil {
		r.logger.Error("Blob store GC failed", zap.Error(err))
		return
	}
	if n > 0 {
		r.logger.Debug("Blob store GC rewrote value logs", zap.Int("files", n))
	}
}
