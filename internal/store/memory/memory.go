// Package memory provides an in-memory task store for tests and local
// development. It mirrors the last-write-wins per-row semantics of the
// SQLite store.
package memory

import (
	"context"
	"sort"
	"sync"

	"trainhub/internal/apperrors"
	"trainhub/internal/task"
)

// Store is a mutex-guarded in-memory task store.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*task.Task
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{tasks: make(map[string]*task.Task)}
}

// CreateTask inserts a new task row.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[t.ID]; exists {
		return apperrors.InvalidState("task", "task "+t.ID+" already exists")
	}
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

// GetTask returns a copy of the task or a not-found error.
func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, apperrors.NotFound("task", id)
	}
	cp := *t
	return &cp, nil
}

// UpdateTask applies a partial field update to an existing row.
func (s *Store) UpdateTask(ctx context.Context, id string, upd task.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return apperrors.NotFound("task", id)
	}
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	if upd.QueueHandle != nil {
		t.QueueHandle = *upd.QueueHandle
	}
	if upd.CurrentStep != nil {
		t.CurrentStep = *upd.CurrentStep
	}
	if upd.CurrentLoss != nil {
		v := *upd.CurrentLoss
		t.CurrentLoss = &v
	}
	if upd.CurrentMetric != nil {
		v := *upd.CurrentMetric
		t.CurrentMetric = &v
	}
	if upd.ResultPath != nil {
		t.ResultPath = *upd.ResultPath
	}
	if upd.ErrorMessage != nil {
		t.ErrorMessage = *upd.ErrorMessage
	}
	if upd.StartedAt != nil {
		v := *upd.StartedAt
		t.StartedAt = &v
	}
	if upd.CompletedAt != nil {
		v := *upd.CompletedAt
		t.CompletedAt = &v
	}
	return nil
}

// ListTasks returns tasks newest-first, optionally filtered by status.
func (s *Store) ListTasks(ctx context.Context, filter task.ListFilter) ([]*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*task.Task
	for _, t := range s.tasks {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// CountByStatus returns the number of tasks in each state.
func (s *Store) CountByStatus(ctx context.Context) (map[task.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[task.Status]int)
	for _, t := range s.tasks {
		counts[t.Status]++
	}
	return counts, nil
}

// Verify Store implements task.Store
var _ task.Store = (*Store)(nil)
