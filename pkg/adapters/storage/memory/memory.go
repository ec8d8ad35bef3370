package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aescanero/capo/pkg/domain"
)

// InMemoryExecutionStorage implements ExecutionStorage using an in-memory map
type InMemoryExecutionStorage struct {
	records map[string]*domain.ExecutionRecord
	mu      sync.RWMutex
}

// NewInMemoryExecutionStorage creates a new in-memory execution storage
func NewInMemoryExecutionStorage() *InMemoryExecutionStorage {
	return &InMemoryExecutionStorage{
		records: make(map[string]*domain.ExecutionRecord),
	}
}

// SaveExecution stores a copy of record
func (s *InMemoryExecutionStorage) SaveExecution(ctx context.Context, record *domain.ExecutionRecord) error {
	if record == nil || record.ExecutionID == "" {
		return fmt.Errorf("execution record requires an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recordCopy := *record
	s.records[record.ExecutionID] = &recordCopy
	return nil
}

// GetExecution returns a copy of the stored record
func (s *InMemoryExecutionStorage) GetExecution(ctx context.Context, executionID string) (*domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrExecutionNotFound, executionID)
	}

	recordCopy := *record
	return &recordCopy, nil
}

// DeleteExecution removes a record
func (s *InMemoryExecutionStorage) DeleteExecution(ctx context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, executionID)
	return nil
}

// ListExecutions returns every record, most recently submitted first
func (s *InMemoryExecutionStorage) ListExecutions(ctx context.Context) ([]*domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*domain.ExecutionRecord, 0, len(s.records))
	for _, record := range s.records {
		recordCopy := *record
		records = append(records, &recordCopy)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].SubmittedAt.After(records[j].SubmittedAt)
	})

	return records, nil
}
