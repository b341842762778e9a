package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallbiznis/valora-onboard/internal/domain/onboard"
	"github.com/smallbiznis/valora-onboard/internal/repository"
)

const batchPrefix = "onboard:batch:"

// RedisBatchStore keeps batch status documents with a retention TTL.
type RedisBatchStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ repository.BatchStatusStore = (*RedisBatchStore)(nil)

// NewRedisBatchStore constructs the store. A non-positive ttl keeps entries for a day.
func NewRedisBatchStore(client redis.UniversalClient, ttl time.Duration) *RedisBatchStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisBatchStore{client: client, ttl: ttl}
}

func (s *RedisBatchStore) Put(ctx context.Context, status onboard.BatchStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal batch status: %w", err)
	}
	if err := s.client.Set(ctx, batchPrefix+status.Batch.ID, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("persist batch status: %w", err)
	}
	return nil
}

func (s *RedisBatchStore) Get(ctx context.Context, batchID string) (*onboard.BatchStatus, error) {
	bytes, err := s.client.Get(ctx, batchPrefix+batchID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, onboard.ErrBatchNotFound
		}
		return nil, fmt.Errorf("load batch status: %w", err)
	}
	var status onboard.BatchStatus
	if err := json.Unmarshal(bytes, &status); err != nil {
		return nil, fmt.Errorf("decode batch status: %w", err)
	}
	return &status, nil
}
