package usecase

import (
	"context"
	"errors"
	"time"

	"BlockTrader/internal/domain/models"
	domrepo "BlockTrader/internal/domain/repository"
	"BlockTrader/pkg/cache"
	"BlockTrader/pkg/logger"
	pkgmetrics "BlockTrader/pkg/metrics"
)

// CachedSource memoises candle fetches for a short TTL so the status API
// and the decision loop do not both hit the upstream source.
type CachedSource struct {
	next    domrepo.MarketDataSource
	cache   cache.Service
	ttl     time.Duration
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewCachedSource(next domrepo.MarketDataSource, c cache.Service, ttl time.Duration, metrics domrepo.Metrics, log *logger.Logger) *CachedSource {
	if log == nil {
		log = logger.Nop()
	}
	if metrics == nil {
		metrics = pkgmetrics.Nop{}
	}
	return &CachedSource{next: next, cache: c, ttl: ttl, metrics: metrics, log: log}
}

func (s *CachedSource) FetchCandles(ctx context.Context, symbol string, tf domrepo.Timeframe, count int) ([]models.Candle, error) {
	if s.cache == nil || s.ttl <= 0 {
		return s.next.FetchCandles(ctx, symbol, tf, count)
	}
	key := cache.Key("candles", symbol, tf, count)

	var cached []models.Candle
	err := s.cache.Get(ctx, key, &cached)
	if err == nil && len(cached) > 0 {
		return cached, nil
	}
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		s.metrics.RecordError("candle_cache_get")
		s.log.Debug("candle cache read failed", logger.Error(err))
	}

	candles, err := s.next.FetchCandles(ctx, symbol, tf, count)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, candles, s.ttl); err != nil {
		s.metrics.RecordError("candle_cache_set")
		s.log.Debug("candle cache write failed", logger.Error(err))
	}
	return candles, nil
}

var _ domrepo.MarketDataSource = (*CachedSource)(nil)
