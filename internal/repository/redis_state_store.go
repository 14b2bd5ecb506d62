package repository

import (
	"context"
	"errors"
	"fmt"

	"BlockTrader/internal/domain/models"
	domrepo "BlockTrader/internal/domain/repository"
	"BlockTrader/pkg/cache"
)

// RedisStateStore keeps the trading state snapshot under state:<symbol>
// without expiry.
type RedisStateStore struct {
	cache cache.Service
}

func NewRedisStateStore(c cache.Service) *RedisStateStore {
	return &RedisStateStore{cache: c}
}

func stateKey(symbol string) string { return cache.Key("state", symbol) }

// Load returns nil, nil when no snapshot has been saved.
func (s *RedisStateStore) Load(ctx context.Context, symbol string) (*models.StateSnapshot, error) {
	var snap models.StateSnapshot
	if err := s.cache.Get(ctx, stateKey(symbol), &snap); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("load state %s: %w", symbol, err)
	}
	return &snap, nil
}

func (s *RedisStateStore) Save(ctx context.Context, symbol string, snap models.StateSnapshot) error {
	if err := s.cache.Set(ctx, stateKey(symbol), snap, 0); err != nil {
		return fmt.Errorf("save state %s: %w", symbol, err)
	}
	return nil
}

var _ domrepo.StateStore = (*RedisStateStore)(nil)
