package server

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"BlockTrader/internal/handler/api"
	"BlockTrader/internal/usecase"
	"BlockTrader/pkg/config"
	xhttp "BlockTrader/pkg/http"
	pkgkafka "BlockTrader/pkg/kafka"
	applogger "BlockTrader/pkg/logger"
)

type namedCloser struct {
	name string
	c    io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	engine     *usecase.Engine
	httpServer *xhttp.Server
	hub        *api.ReportHub

	collector *usecase.TickCollector
	consumer  *pkgkafka.Consumer
	kh        pkgkafka.MessageHandler

	closers []namedCloser
	wg      sync.WaitGroup
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, log *applogger.Logger, engine *usecase.Engine, httpServer *xhttp.Server, hub *api.ReportHub) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{cfg: cfg, log: log, engine: engine, httpServer: httpServer, hub: hub}
}

// SetCollector attaches the live tick collector for source "stream".
func (a *App) SetCollector(c *usecase.TickCollector) { a.collector = c }

// SetConsumer attaches the execution events consumer.
func (a *App) SetConsumer(c *pkgkafka.Consumer, h pkgkafka.MessageHandler) {
	a.consumer, a.kh = c, h
}

// AddCloser registers an infrastructure client closed last on shutdown,
// in reverse registration order.
func (a *App) AddCloser(name string, c io.Closer) {
	if c != nil {
		a.closers = append(a.closers, namedCloser{name: name, c: c})
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.engine.Restore(runCtx); err != nil {
		a.log.Warn("state restore failed, starting fresh", applogger.Error(err))
	}

	if a.collector != nil {
		if err := a.collector.Start(runCtx); err != nil {
			a.log.Error("tick collector start error", applogger.Error(err))
			return err
		}
		a.log.Info("tick collector started", applogger.String("symbol", a.cfg.Trading.Symbol))
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.log.Error("http server start error", applogger.Error(err))
			return err
		}
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.engine.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("decision loop stopped", applogger.Error(err))
		}
	}()

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	a.engine.Stop()
	cancel()
	return a.shutdown()
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("decision loop did not stop in time")
	}

	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.hub != nil {
		a.hub.Close()
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		nc := a.closers[i]
		if err := nc.c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("component", nc.name), applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
