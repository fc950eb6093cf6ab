package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/teranos/autonomy/errors"
)

// MemoryStore keeps schedules in process memory
type MemoryStore struct {
	mu        sync.RWMutex
	schedules map[string]*Schedule
	order     []string
}

// NewMemoryStore creates an empty schedule store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{schedules: make(map[string]*Schedule)}
}

func (m *MemoryStore) Create(ctx context.Context, s *Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.schedules[s.ID]; exists {
		return errors.NewInvalidStateError("schedule %s already exists", s.ID)
	}
	m.schedules[s.ID] = s.Clone()
	m.order = append(m.order, s.ID)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.schedules[id]
	if !ok {
		return nil, errors.NewNotFoundError("schedule not found: %s", id)
	}
	return s.Clone(), nil
}

func (m *MemoryStore) List(ctx context.Context) ([]*Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Schedule, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.schedules[id].Clone())
	}
	return out, nil
}

func (m *MemoryStore) SetEnabled(ctx context.Context, id string, enabled bool, next *time.Time, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schedules[id]
	if !ok {
		return errors.NewNotFoundError("schedule not found: %s", id)
	}
	s.Enabled = enabled
	if next != nil {
		n := *next
		s.NextRunAt = &n
	}
	s.UpdatedAt = now
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.schedules[id]; !ok {
		return errors.NewNotFoundError("schedule not found: %s", id)
	}
	delete(m.schedules, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) ListDue(ctx context.Context, now time.Time) ([]*Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	due := make([]*Schedule, 0)
	for _, id := range m.order {
		if s := m.schedules[id]; s.IsDue(now) {
			due = append(due, s.Clone())
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].NextRunAt.Before(*due[j].NextRunAt) })
	return due, nil
}

func (m *MemoryStore) NextDue(ctx context.Context) (*Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var next *Schedule
	for _, id := range m.order {
		s := m.schedules[id]
		if !s.Enabled || s.NextRunAt == nil {
			continue
		}
		if next == nil || s.NextRunAt.Before(*next.NextRunAt) {
			next = s
		}
	}
	return next.Clone(), nil
}

func (m *MemoryStore) Advance(ctx context.Context, id string, next time.Time, lastRunAt *time.Time, lastJobID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schedules[id]
	if !ok {
		return errors.NewNotFoundError("schedule not found: %s", id)
	}
	s.NextRunAt = &next
	if lastRunAt != nil {
		t := *lastRunAt
		s.LastRunAt = &t
		s.LastJobID = lastJobID
	}
	s.UpdatedAt = now
	return nil
}
