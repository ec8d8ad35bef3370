package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aescanero/capo/pkg/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "capo:execution:"

// ExecutionStorage implements ExecutionStorage using Redis
type ExecutionStorage struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewExecutionStorage creates a new Redis execution storage
func NewExecutionStorage(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ExecutionStorage {
	return &ExecutionStorage{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// SaveExecution saves an execution record to Redis with the configured TTL
func (s *ExecutionStorage) SaveExecution(ctx context.Context, record *domain.ExecutionRecord) error {
	if record == nil || record.ExecutionID == "" {
		return fmt.Errorf("execution record requires an id")
	}

	key := getExecutionKey(record.ExecutionID)

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}

	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}

	s.logger.Debug("execution saved",
		zap.String("execution_id", record.ExecutionID),
		zap.String("status", string(record.Status)))

	return nil
}

// GetExecution retrieves an execution record from Redis
func (s *ExecutionStorage) GetExecution(ctx context.Context, executionID string) (*domain.ExecutionRecord, error) {
	data, err := s.client.Get(ctx, getExecutionKey(executionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrExecutionNotFound, executionID)
		}
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	var record domain.ExecutionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
	}

	return &record, nil
}

// DeleteExecution deletes an execution record from Redis
func (s *ExecutionStorage) DeleteExecution(ctx context.Context, executionID string) error {
	if err := s.client.Del(ctx, getExecutionKey(executionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete execution: %w", err)
	}

	s.logger.Debug("execution deleted",
		zap.String("execution_id", executionID))

	return nil
}

// ListExecutions lists all execution records, most recently submitted first
func (s *ExecutionStorage) ListExecutions(ctx context.Context) ([]*domain.ExecutionRecord, error) {
	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	records := make([]*domain.ExecutionRecord, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			// Expired between SCAN and GET
			continue
		}

		var record domain.ExecutionRecord
		if err := json.Unmarshal(data, &record); err != nil {
			s.logger.Warn("skipping unreadable execution record",
				zap.String("key", key),
				zap.Error(err))
			continue
		}

		records = append(records, &record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].SubmittedAt.After(records[j].SubmittedAt)
	})

	return records, nil
}

// getExecutionKey returns the Redis key for an execution record
func getExecutionKey(executionID string) string {
	return keyPrefix + executionID
}
