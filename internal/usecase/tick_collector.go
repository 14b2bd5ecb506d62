package usecase

import (
	"context"
	"time"

	"BlockTrader/internal/domain/models"
	drepo "BlockTrader/internal/domain/repository"
	mid "BlockTrader/internal/middleware"
	"BlockTrader/pkg/logger"
	pkgmetrics "BlockTrader/pkg/metrics"
)

// TickCollector pumps the live tick stream through the pipeline into the
// candle builder and closes idle buckets on a timer.
type TickCollector struct {
	stream  drepo.TickStream
	builder *CandleBuilder
	pipe    *mid.TickPipeline
	metrics drepo.Metrics
	log     *logger.Logger
	flush   time.Duration
}

func NewTickCollector(stream drepo.TickStream, builder *CandleBuilder, pipe *mid.TickPipeline,
	metrics drepo.Metrics, log *logger.Logger) *TickCollector {
	if log == nil {
		log = logger.Nop()
	}
	if metrics == nil {
		metrics = pkgmetrics.Nop{}
	}
	return &TickCollector{stream: stream, builder: builder, pipe: pipe, metrics: metrics, log: log, flush: time.Second}
}

func (c *TickCollector) IsConnected() bool { return c.stream.IsConnected() }

// Start connects, subscribes and consumes in the background until ctx ends.
func (c *TickCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	go c.consume(ctx)
	return nil
}

func (c *TickCollector) consume(ctx context.Context) {
	ticker := time.NewTicker(c.flush)
	defer ticker.Stop()
	tickCh, errCh := c.stream.Read(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.builder.CloseBefore(ctx, now.UTC())
		case err, ok := <-errCh:
			if ok && err == nil {
				continue
			}
			if err != nil {
				c.metrics.RecordError("stream")
				c.log.Warn("tick stream error", logger.Error(err))
			}
			tickCh, errCh = c.reconnect(ctx)
			if tickCh == nil {
				return
			}
		case t, ok := <-tickCh:
			if !ok {
				// wait for the error channel to report why
				tickCh = nil
				continue
			}
			c.handle(ctx, t)
		}
	}
}

func (c *TickCollector) handle(ctx context.Context, t *models.Tick) {
	if t == nil {
		return
	}
	var err error
	if c.pipe != nil {
		err = c.pipe.Process(ctx, t)
	} else {
		err = c.builder.Process(ctx, t)
	}
	if err != nil {
		c.log.Debug("tick not applied", logger.String("symbol", t.Symbol), logger.Error(err))
		return
	}
	c.metrics.RecordLastPrice(t.Symbol, t.Price)
}

// reconnect retries until the stream is back or ctx ends.
func (c *TickCollector) reconnect(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	for {
		if err := c.stream.Reconnect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, nil
			}
			c.metrics.RecordError("stream_reconnect")
			c.log.Warn("tick stream reconnect failed", logger.Error(err))
			continue
		}
		c.log.Info("tick stream reconnected")
		return c.stream.Read(ctx)
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *TickCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
