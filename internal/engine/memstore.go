package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/usemanusai/tce/model"
)

// MemoryStore is an in-memory Store. It is the only store implementation
// shipped with the engine; the Store interface keeps the seam for persistent
// backends.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]model.Workflow
	events    map[string][]model.WorkflowEvent // key: workflow ID
}

// NewMemoryStore creates a new in-memory workflow store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string]model.Workflow),
		events:    make(map[string][]model.WorkflowEvent),
	}
}

// Create persists a new workflow.
func (s *MemoryStore) Create(_ context.Context, wf model.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[wf.ID]; exists {
		return model.NewConflictError(
			fmt.Sprintf("workflow %q already exists", wf.ID),
		)
	}

	s.workflows[wf.ID] = wf.Clone()
	return nil
}

// Get retrieves a deep copy of a workflow by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (model.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, exists := s.workflows[id]
	if !exists {
		return model.Workflow{}, model.NewNotFoundError(
			fmt.Sprintf("workflow %q not found", id),
		)
	}
	return wf.Clone(), nil
}

// Update persists an updated workflow with optimistic locking.
func (s *MemoryStore) Update(_ context.Context, wf model.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.workflows[wf.ID]
	if !exists {
		return model.NewNotFoundError(
			fmt.Sprintf("workflow %q not found", wf.ID),
		)
	}

	// Optimistic lock check.
	if existing.Version != wf.Version {
		return model.NewConflictError(
			fmt.Sprintf("workflow %q version conflict (expected %d, got %d)", wf.ID, existing.Version, wf.Version),
		)
	}

	cp := wf.Clone()
	cp.Version++
	s.workflows[wf.ID] = cp
	return nil
}

// List returns workflow snapshots matching the filters, newest first.
func (s *MemoryStore) List(_ context.Context, filters ListFilters) ([]model.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Workflow
	for _, wf := range s.workflows {
		if filters.Status != "" && wf.Status != filters.Status {
			continue
		}
		if filters.Mode != "" && wf.SelectedMode != filters.Mode {
			continue
		}
		result = append(result, wf.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(result) {
			return []model.Workflow{}, nil
		}
		result = result[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(result) {
		result = result[:filters.Limit]
	}

	return result, nil
}

// Delete removes a workflow and its audit trail.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[id]; !exists {
		return model.NewNotFoundError(
			fmt.Sprintf("workflow %q not found", id),
		)
	}

	delete(s.workflows, id)
	delete(s.events, id)
	return nil
}

// AppendEvent adds an entry to a workflow's audit trail.
func (s *MemoryStore) AppendEvent(_ context.Context, event model.WorkflowEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[event.WorkflowID] = append(s.events[event.WorkflowID], event)
	return nil
}

// Events retrieves the audit trail for a workflow, ordered by timestamp.
func (s *MemoryStore) Events(_ context.Context, workflowID string) ([]model.WorkflowEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.workflows[workflowID]; !exists {
		return nil, model.NewNotFoundError(
			fmt.Sprintf("workflow %q not found", workflowID),
		)
	}

	events := s.events[workflowID]
	result := make([]model.WorkflowEvent, len(events))
	copy(result, events)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *MemoryStore) HealthCheck(_ context.Context) error {
	return nil
}

// Len returns the total number of workflows. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workflows)
}
