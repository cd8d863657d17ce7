package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStateStore keeps dialogues outside the process, keyed by tenant and
// chat, so they survive restarts and can be shared by several instances.
type RedisStateStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStateStore(client *redis.Client, tenantID string, ttl time.Duration) *RedisStateStore {
	return &RedisStateStore{
		client: client,
		prefix: fmt.Sprintf("cashier:state:%s:", tenantID),
		ttl:    ttl,
	}
}

func (s *RedisStateStore) key(chatID int64) string {
	return fmt.Sprintf("%s%d", s.prefix, chatID)
}

func (s *RedisStateStore) Get(ctx context.Context, chatID int64) (*State, error) {
	raw, err := s.client.Get(ctx, s.key(chatID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read chat state: %w", err)
	}

	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		// A state written by an incompatible version is dropped.
		_ = s.client.Del(ctx, s.key(chatID)).Err()
		return nil, nil
	}
	return &st, nil
}

func (s *RedisStateStore) Set(ctx context.Context, chatID int64, state *State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(chatID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store chat state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Clear(ctx context.Context, chatID int64) error {
	if err := s.client.Del(ctx, s.key(chatID)).Err(); err != nil {
		return fmt.Errorf("failed to clear chat state: %w", err)
	}
	return nil
}
