package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallbiznis/valora-onboard/internal/domain/onboard"
	"github.com/smallbiznis/valora-onboard/internal/repository"
)

const statePrefix = "onboard:state:"

// RedisStateStore implements StateTokenStore backed by Redis.
type RedisStateStore struct {
	client redis.UniversalClient
}

var _ repository.StateTokenStore = (*RedisStateStore)(nil)

// NewRedisStateStore constructs a Redis-backed state store.
func NewRedisStateStore(client redis.UniversalClient) *RedisStateStore {
	return &RedisStateStore{client: client}
}

// Save stores the encoded state token with TTL.
func (s *RedisStateStore) Save(ctx context.Context, token onboard.StateToken, ttl time.Duration) error {
	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.client.Set(ctx, stateKey(token.TokenID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// Take loads and removes the token in a single GETDEL round trip.
func (s *RedisStateStore) Take(ctx context.Context, tokenID string) (*onboard.StateToken, error) {
	bytes, err := s.client.GetDel(ctx, stateKey(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("take state: %w", err)
	}
	var token onboard.StateToken
	if err := json.Unmarshal(bytes, &token); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &token, nil
}

func stateKey(tokenID string) string {
	return statePrefix + strings.TrimSpace(tokenID)
}
