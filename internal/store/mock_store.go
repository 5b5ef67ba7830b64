package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/worklink/offline-sync/internal/domain"
)

// MockQueueStore is a hand-written, in-memory implementation of QueueStore
// used in unit tests. No mock-generation library needed.
type MockQueueStore struct {
	mu      sync.RWMutex
	nextID  int64
	actions map[int64]*domain.QueuedAction

	// Optional error overrides — set in tests to simulate failure paths.
	AddItemErr       error
	GetAllItemsErr   error
	DeleteItemErr    error
	RecordFailureErr error
}

func NewMockQueueStore() *MockQueueStore {
	return &MockQueueStore{
		nextID:  1,
		actions: make(map[int64]*domain.QueuedAction),
	}
}

func (m *MockQueueStore) AddItem(_ context.Context, a *domain.QueuedAction) error {
	if m.AddItemErr != nil {
		return m.AddItemErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.nextID
	m.nextID++
	clone := *a
	m.actions[a.ID] = &clone
	return nil
}

func (m *MockQueueStore) GetAllItems(_ context.Context, q domain.Queue) ([]*domain.QueuedAction, error) {
	if m.GetAllItemsErr != nil {
		return nil, m.GetAllItemsErr
	}
	return m.list(q, domain.StatusPending), nil
}

func (m *MockQueueStore) GetItem(_ context.Context, q domain.Queue, id int64) (*domain.QueuedAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.actions[id]
	if !ok || a.Queue != q {
		return nil, domain.ErrNotFound
	}
	clone := *a
	return &clone, nil
}

func (m *MockQueueStore) DeleteItem(_ context.Context, q domain.Queue, id int64) error {
	if m.DeleteItemErr != nil {
		return m.DeleteItemErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.actions[id]; ok && a.Queue == q {
		delete(m.actions, id)
	}
	return nil
}

func (m *MockQueueStore) ClearStore(_ context.Context, q domain.Queue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range m.actions {
		if a.Queue == q {
			delete(m.actions, id)
		}
	}
	return nil
}

func (m *MockQueueStore) RecordFailure(_ context.Context, q domain.Queue, id int64, errMsg string) error {
	if m.RecordFailureErr != nil {
		return m.RecordFailureErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.actions[id]; ok && a.Queue == q {
		a.Attempts++
		a.LastError = &errMsg
		a.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *MockQueueStore) MarkAbandoned(_ context.Context, q domain.Queue, id int64, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[id]
	if !ok || a.Queue != q {
		return domain.ErrNotFound
	}
	if a.Status == domain.StatusAbandoned {
		return domain.ErrAlreadyAbandoned
	}
	a.Status = domain.StatusAbandoned
	a.Attempts++
	a.LastError = &errMsg
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockQueueStore) ListAbandoned(_ context.Context, q domain.Queue) ([]*domain.QueuedAction, error) {
	return m.list(q, domain.StatusAbandoned), nil
}

func (m *MockQueueStore) RequeueAbandoned(_ context.Context, q domain.Queue, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[id]
	if !ok || a.Queue != q {
		return domain.ErrNotFound
	}
	if a.Status != domain.StatusAbandoned {
		return domain.ErrNotAbandoned
	}
	a.Status = domain.StatusPending
	a.Attempts = 0
	a.LastError = nil
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockQueueStore) Depths(_ context.Context) (map[domain.Queue]int, map[domain.Queue]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pending := make(map[domain.Queue]int)
	abandoned := make(map[domain.Queue]int)
	for _, q := range domain.Queues() {
		pending[q], abandoned[q] = 0, 0
	}
	for _, a := range m.actions {
		switch a.Status {
		case domain.StatusPending:
			pending[a.Queue]++
		case domain.StatusAbandoned:
			abandoned[a.Queue]++
		}
	}
	return pending, abandoned, nil
}

func (m *MockQueueStore) Close() error { return nil }

func (m *MockQueueStore) list(q domain.Queue, status domain.Status) []*domain.QueuedAction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.QueuedAction
	for _, a := range m.actions {
		if a.Queue == q && a.Status == status {
			clone := *a
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

var _ QueueStore = (*MockQueueStore)(nil)
