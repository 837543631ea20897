package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"provably-fair-dice/internal/config"
	"provably-fair-dice/internal/models"

	"github.com/redis/go-redis/v9"
)

// LedgerStore persists ledger snapshots under a fixed per-player key.
type LedgerStore interface {
	LoadLedger(ctx context.Context, playerID string) (*models.LedgerState, error)
	SaveLedger(ctx context.Context, playerID string, state *models.LedgerState) error
	DeleteLedger(ctx context.Context, playerID string) error
}

type RedisService struct {
	client *redis.Client
}

func NewRedisService(cfg *config.Config) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisService{client: client}, nil
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisService) LoadLedger(ctx context.Context, playerID string) (*models.LedgerState, error) {
	key := fmt.Sprintf(KeyLedgerState, playerID)

	data, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}

	var state models.LedgerState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger: %w", err)
	}

	return &state, nil
}

func (s *RedisService) SaveLedger(ctx context.Context, playerID string, state *models.LedgerState) error {
	key := fmt.Sprintf(KeyLedgerState, playerID)

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	return nil
}

func (s *RedisService) DeleteLedger(ctx context.Context, playerID string) error {
	key := fmt.Sprintf(KeyLedgerState, playerID)
	return s.client.Del(ctx, key).Err()
}

// CheckRateLimit counts one action in the current window. The expiry is set in
// the same transaction and only when the key has none, so a counter can never
// outlive its window.
func (s *RedisService) CheckRateLimit(ctx context.Context, playerID, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, playerID, action)

	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}

	return incr.Val() <= int64(limit), nil
}

func (s *RedisService) ClearRateLimit(ctx context.Context, playerID, action string) error {
	key := fmt.Sprintf(KeyRateLimit, playerID, action)
	return s.client.Del(ctx, key).Err()
}
