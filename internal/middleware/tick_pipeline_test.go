package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"BlockTrader/internal/domain/models"
	domrepo "BlockTrader/internal/domain/repository"
)

type recordingProc struct {
	mu    sync.Mutex
	got   []*models.Tick
	fails int
	err   error
}

func (p *recordingProc) Process(_ context.Context, t *models.Tick) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if p.fails > 0 {
		p.fails--
		return errors.New("downstream busy")
	}
	p.got = append(p.got, t)
	return nil
}

func (p *recordingProc) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.got)
}

func tick(price float64) *models.Tick {
	return &models.Tick{Symbol: "MGC", Timestamp: time.Date(2024, 6, 3, 18, 0, 0, 0, time.UTC), Price: price, Volume: 1}
}

func TestPipelineValidatesTicks(t *testing.T) {
	proc := &recordingProc{}
	p := NewTickPipeline(proc, nil)
	bad := []*models.Tick{
		nil,
		{Timestamp: time.Now(), Price: 1},
		{Symbol: "MGC", Price: 1},
		{Symbol: "MGC", Timestamp: time.Now(), Price: 0},
		{Symbol: "MGC", Timestamp: time.Now(), Price: 1, Volume: -1},
	}
	for i, tk := range bad {
		if err := p.Process(context.Background(), tk); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
	if proc.count() != 0 {
		t.Fatalf("invalid ticks reached the processor")
	}
}

func TestPipelineTransformAndThrottle(t *testing.T) {
	proc := &recordingProc{}
	p := NewTickPipeline(proc, nil, WithMaxRPS(1), WithTransform(func(tk *models.Tick) *models.Tick {
		tk.Symbol = "MGC"
		return tk
	}))
	feed := tick(2050)
	feed.Symbol = "MGCQ4"
	if err := p.Process(context.Background(), feed); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Process(context.Background(), tick(2051)); err != nil {
		t.Fatalf("throttled tick should not error: %v", err)
	}
	if proc.count() != 1 || proc.got[0].Symbol != "MGC" {
		t.Fatalf("expected one transformed tick, got %d", proc.count())
	}
}

func TestPipelineDropsLateTicks(t *testing.T) {
	proc := &recordingProc{err: fmt.Errorf("1m: %w", domrepo.ErrLateTick)}
	p := NewTickPipeline(proc, nil)
	err := p.Process(context.Background(), tick(2050))
	if !errors.Is(err, domrepo.ErrLateTick) || p.Buffered() != 0 {
		t.Fatalf("late tick must be dropped, not buffered: %v buffered %d", err, p.Buffered())
	}
}

func TestPipelineRetriesBufferedTicks(t *testing.T) {
	proc := &recordingProc{fails: 1}
	p := NewTickPipeline(proc, nil, WithBufferSize(4))
	if err := p.Process(context.Background(), tick(2050)); err == nil {
		t.Fatalf("expected downstream error")
	}
	if p.Buffered() != 1 {
		t.Fatalf("failed tick should be buffered")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for proc.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("buffered tick was not retried")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
