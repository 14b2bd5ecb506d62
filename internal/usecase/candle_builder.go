package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"BlockTrader/internal/domain/models"
	domrepo "BlockTrader/internal/domain/repository"
	"BlockTrader/internal/services/features"
	"BlockTrader/internal/services/market"
	"BlockTrader/pkg/logger"
	pkgmetrics "BlockTrader/pkg/metrics"
)

const defaultCandleHistory = 500

type tfBook struct {
	tf        domrepo.Timeframe
	current   *models.Candle
	completed []models.Candle
}

// CandleBuilder aggregates live ticks into OHLCV candles per timeframe and
// serves the completed ones as a MarketDataSource.
type CandleBuilder struct {
	symbol    string
	validator *market.Validator
	writer    domrepo.CandleWriter
	metrics   domrepo.Metrics
	log       *logger.Logger
	history   int

	mu    sync.RWMutex
	books map[domrepo.Timeframe]*tfBook
}

func NewCandleBuilder(symbol string, tfs []domrepo.Timeframe, validator *market.Validator,
	writer domrepo.CandleWriter, metrics domrepo.Metrics, log *logger.Logger) *CandleBuilder {
	if log == nil {
		log = logger.Nop()
	}
	if metrics == nil {
		metrics = pkgmetrics.Nop{}
	}
	b := &CandleBuilder{
		symbol:    symbol,
		validator: validator,
		writer:    writer,
		metrics:   metrics,
		log:       log,
		history:   defaultCandleHistory,
		books:     make(map[domrepo.Timeframe]*tfBook, len(tfs)),
	}
	for _, tf := range tfs {
		if tf.Duration() > 0 {
			b.books[tf] = &tfBook{tf: tf}
		}
	}
	return b
}

// Process folds one tick into every timeframe. A tick older than the open
// bucket is rejected.
func (b *CandleBuilder) Process(ctx context.Context, t *models.Tick) error {
	if t == nil || t.Price <= 0 {
		return fmt.Errorf("invalid tick")
	}
	if t.Symbol != "" && t.Symbol != b.symbol {
		return nil
	}

	closed := make(map[domrepo.Timeframe][]models.Candle)
	b.mu.Lock()
	for tf, book := range b.books {
		if book.current != nil && features.Bucket(t.Timestamp, tf.Duration()).Before(book.current.Timestamp) {
			open := book.current.Timestamp
			b.mu.Unlock()
			b.metrics.RecordError("late_tick")
			return fmt.Errorf("%w: %s for %s bucket %s", domrepo.ErrLateTick, t.Timestamp.Format(time.RFC3339), tf, open.Format(time.RFC3339))
		}
	}
	for tf, book := range b.books {
		bucket := features.Bucket(t.Timestamp, tf.Duration())
		if book.current != nil && bucket.After(book.current.Timestamp) {
			closed[tf] = append(closed[tf], b.complete(book))
		}
		if book.current == nil {
			book.current = &models.Candle{Timestamp: bucket, Open: t.Price, High: t.Price, Low: t.Price}
		}
		c := book.current
		c.High = max(c.High, t.Price)
		c.Low = min(c.Low, t.Price)
		c.Close = t.Price
		c.Volume += t.Volume
	}
	b.mu.Unlock()

	b.persist(ctx, closed)
	return nil
}

// CloseBefore completes open candles whose bucket ended at or before now,
// so quiet markets still produce bars.
func (b *CandleBuilder) CloseBefore(ctx context.Context, now time.Time) {
	closed := make(map[domrepo.Timeframe][]models.Candle)
	b.mu.Lock()
	for tf, book := range b.books {
		if book.current != nil && !book.current.Timestamp.Add(tf.Duration()).After(now) {
			closed[tf] = append(closed[tf], b.complete(book))
		}
	}
	b.mu.Unlock()
	b.persist(ctx, closed)
}

// complete moves the open candle to history. Caller holds mu.
func (b *CandleBuilder) complete(book *tfBook) models.Candle {
	c := *book.current
	book.current = nil
	book.completed = append(book.completed, c)
	if over := len(book.completed) - b.history; over > 0 {
		book.completed = append(book.completed[:0:0], book.completed[over:]...)
	}
	return c
}

func (b *CandleBuilder) persist(ctx context.Context, closed map[domrepo.Timeframe][]models.Candle) {
	for tf, cs := range closed {
		b.log.Debug("candle completed",
			logger.String("symbol", b.symbol),
			logger.String("timeframe", string(tf)),
			logger.Time("ts", cs[len(cs)-1].Timestamp),
			logger.Float64("close", cs[len(cs)-1].Close),
		)
		if b.writer == nil {
			continue
		}
		if err := b.writer.StoreCandles(ctx, b.symbol, tf, cs); err != nil {
			b.metrics.RecordError("candle_store")
			b.log.Warn("candle persist failed", logger.String("timeframe", string(tf)), logger.Error(err))
		}
	}
}

// Seed preloads completed history, e.g. from ClickHouse at startup.
func (b *CandleBuilder) Seed(tf domrepo.Timeframe, candles []models.Candle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	book, ok := b.books[tf]
	if !ok {
		return
	}
	book.completed = append([]models.Candle(nil), candles...)
	if over := len(book.completed) - b.history; over > 0 {
		book.completed = book.completed[over:]
	}
}

// FetchCandles returns up to count completed candles for tf.
func (b *CandleBuilder) FetchCandles(_ context.Context, symbol string, tf domrepo.Timeframe, count int) ([]models.Candle, error) {
	if symbol != b.symbol {
		return nil, fmt.Errorf("%w: builder tracks %s, not %s", domrepo.ErrDataUnavailable, b.symbol, symbol)
	}
	b.mu.RLock()
	book, ok := b.books[tf]
	var out []models.Candle
	if ok {
		n := len(book.completed)
		from := max(0, n-count)
		out = append(out, book.completed[from:]...)
	}
	b.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: timeframe %s not built", domrepo.ErrDataUnavailable, tf)
	}
	if need := max(3, count/3); len(out) < need {
		return nil, fmt.Errorf("%w: %d of %d candles for %s", domrepo.ErrDataUnavailable, len(out), need, tf)
	}
	if b.validator != nil {
		if _, err := b.validator.Validate(symbol, string(tf), out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

var _ domrepo.MarketDataSource = (*CandleBuilder)(nil)
