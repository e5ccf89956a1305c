package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/ddtscan/internal/errors"
	"github.com/gmsas95/ddtscan/internal/metrics"
)

// Manager owns the open capture sessions of the process.
type Manager struct {
	proc        *Processor
	store       PageStore
	budget      Budget
	maxSessions int
	logger      *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Accumulator
}

type ManagerConfig struct {
	Budget      Budget
	MaxSessions int
}

func NewManager(proc *Processor, store PageStore, cfg ManagerConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		proc:        proc,
		store:       store,
		budget:      cfg.Budget,
		maxSessions: cfg.MaxSessions,
		logger:      logger,
		sessions:    make(map[string]*Accumulator),
	}
}

// Create opens a session in the capturing state.
func (m *Manager) Create(folderID string) (*Accumulator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		return nil, apperrors.ErrTooManySessions.Withf("limit %d", m.maxSessions)
	}

	acc := NewAccumulator(m.proc, m.store, Options{
		ID:       uuid.New().String(),
		FolderID: folderID,
		Budget:   m.budget,
		Logger:   m.logger,
	})
	if err := acc.Start(); err != nil {
		return nil, err
	}
	m.sessions[acc.ID()] = acc
	metrics.SetActiveSessions(len(m.sessions))

	m.logger.Info("Capture session opened",
		zap.String("session_id", acc.ID()),
		zap.String("folder_id", folderID))
	return acc, nil
}

func (m *Manager) Get(id string) (*Accumulator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.sessions[id]
	if !ok {
		return nil, apperrors.ErrNotFound.Withf("session %s", id)
	}
	return acc, nil
}

// Remove forgets a session and frees its stored pages. A session that did
// not finalize is aborted.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	acc, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	n := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return apperrors.ErrNotFound.Withf("session %s", id)
	}
	metrics.SetActiveSessions(n)

	if acc.State() == StateFinalizing {
		return acc.Release(ctx)
	}
	return acc.Abort(ctx)
}

func (m *Manager) List() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Status, 0, len(m.sessions))
	for _, acc := range m.sessions {
		out = append(out, acc.Status())
	}
	return out
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep aborts sessions idle for longer than ttl and returns how many were
// removed.
func (m *Manager) Sweep(ctx context.Context, now time.Time, ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}

	m.mu.RLock()
	var stale []string
	for id, acc := range m.sessions {
		if now.Sub(acc.LastActivity()) > ttl {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for _, id := range stale {
		if err := m.Remove(ctx, id); err != nil && !apperrors.IsNotFound(err) {
			m.logger.Warn("Failed to sweep session", zap.String("session_id", id), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info("Swept idle capture sessions", zap.Int("count", removed))
	}
	return removed
}

// Close aborts every open session.
func (m *Manager) Close(ctx context.Context) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.Remove(ctx, id)
	}
}
