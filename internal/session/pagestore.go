package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	apperrors "github.com/gmsas95/ddtscan/internal/errors"
)

// PageStore keeps encoded pages outside the accumulator so that a long
// session does not pin every page in memory.
type PageStore interface {
	PutPage(ctx context.Context, key string, data []byte) error
	GetPage(ctx context.Context, key string) ([]byte, error)
	DeletePages(ctx context.Context, prefix string) error
}

func pageKey(sessionID string, index int) string {
	return fmt.Sprintf("%s%04d", pagePrefix(sessionID), index)
}

func pagePrefix(sessionID string) string {
	return "scan:" + sessionID + ":page:"
}

// MemoryPageStore is a PageStore for tests and the offline CLI.
type MemoryPageStore struct {
	mu    sync.RWMutex
	pages map[string][]byte
}

func NewMemoryPageStore() *MemoryPageStore {
	return &MemoryPageStore{pages: make(map[string][]byte)}
}

func (m *MemoryPageStore) PutPage(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[key] = data
	return nil
}

func (m *MemoryPageStore) GetPage(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.pages[key]
	if !ok {
		return nil, apperrors.ErrNotFound.Withf("page %s", key)
	}
	return data, nil
}

func (m *MemoryPageStore) DeletePages(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.pages {
		if strings.HasPrefix(k, prefix) {
			delete(m.pages, k)
		}
	}
	return nil
}

func (m *MemoryPageStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pages)
}
