package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gmsas95/ddtscan/internal/errors"
)

func newTestManager(limit int) (*Manager, *MemoryPageStore) {
	store := NewMemoryPageStore()
	return NewManager(newTestProcessor(), store, ManagerConfig{Budget: DefaultBudget(), MaxSessions: limit}, nil), store
}

func TestManagerCreateAndGet(t *testing.T) {
	m, _ := newTestManager(2)

	a, err := m.Create("folder-1")
	require.NoError(t, err)
	assert.Equal(t, StateCapturing, a.State())
	assert.Equal(t, "folder-1", a.FolderID())

	got, err := m.Get(a.ID())
	require.NoError(t, err)
	assert.Same(t, a, got)

	b, err := m.Create("")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())

	_, err = m.Create("")
	assert.ErrorIs(t, err, apperrors.ErrTooManySessions)
	assert.Equal(t, 2, m.Count())
	assert.Len(t, m.List(), 2)

	_, err = m.Get("missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestManagerRemoveAbortsOpenSession(t *testing.T) {
	m, store := newTestManager(0)
	a, err := m.Create("")
	require.NoError(t, err)

	scanPage(t, a)
	require.NoError(t, a.AddNextPage(t.Context()))
	require.Equal(t, 1, store.Len())

	require.NoError(t, m.Remove(t.Context(), a.ID()))
	assert.Equal(t, StateAborted, a.State())
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 0, m.Count())

	assert.True(t, apperrors.IsNotFound(m.Remove(t.Context(), a.ID())))
}

func TestManagerRemoveReleasesFinalizedSession(t *testing.T) {
	m, store := newTestManager(0)
	a, err := m.Create("")
	require.NoError(t, err)

	scanPage(t, a)
	require.NoError(t, a.Finish(t.Context()))

	require.NoError(t, m.Remove(t.Context(), a.ID()))
	assert.Equal(t, StateFinalizing, a.State())
	assert.Equal(t, 0, store.Len())
}

func TestManagerSweep(t *testing.T) {
	m, _ := newTestManager(0)
	stale, err := m.Create("")
	require.NoError(t, err)

	later := time.Now().Add(time.Hour)
	fresh, err := m.Create("")
	require.NoError(t, err)
	fresh.now = func() time.Time { return later }
	require.NoError(t, fresh.CancelPage())

	assert.Equal(t, 0, m.Sweep(t.Context(), later, 0))
	assert.Equal(t, 1, m.Sweep(t.Context(), later, 30*time.Minute))

	_, err = m.Get(stale.ID())
	assert.True(t, apperrors.IsNotFound(err))
	_, err = m.Get(fresh.ID())
	assert.NoError(t, err)
}
