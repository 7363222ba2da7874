package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/crewflow/workflow"
)

// MemoryStateStore is an in-memory implementation of StateStore.
// Suitable for development and testing. Data is lost on restart.
type MemoryStateStore struct {
	records map[string][]byte
	mu      sync.RWMutex
	closed  bool
}

// NewMemoryStateStore creates a new in-memory state store
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{records: make(map[string][]byte)}
}

// Close closes the store
func (s *MemoryStateStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping checks if the store is healthy
func (s *MemoryStateStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// SaveWorkflow stores a serialized copy, so later changes to def are not visible.
func (s *MemoryStateStore) SaveWorkflow(ctx context.Context, id string, def *workflow.Definition) error {
	if err := validateSave(id, def); err != nil {
		return err
	}
	data, err := json.Marshal(&record{ID: id, Definition: def, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.records[id] = data
	return nil
}

func (s *MemoryStateStore) get(id string) (*record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	data, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// LoadWorkflow retrieves a snapshot by id
func (s *MemoryStateStore) LoadWorkflow(ctx context.Context, id string) (*workflow.Definition, error) {
	rec, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return rec.Definition, nil
}

// ListWorkflows lists stored workflows ordered by id
func (s *MemoryStateStore) ListWorkflows(ctx context.Context) ([]WorkflowSummary, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrStoreClosed
	}

	sort.Strings(ids)
	out := make([]WorkflowSummary, 0, len(ids))
	for _, id := range ids {
		rec, err := s.get(id)
		if err != nil {
			continue
		}
		out = append(out, rec.summary())
	}
	return out, nil
}

// DeleteWorkflow removes a snapshot
func (s *MemoryStateStore) DeleteWorkflow(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}
