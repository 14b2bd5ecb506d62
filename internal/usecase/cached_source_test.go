package usecase

import (
	"context"
	"testing"
	"time"

	domrepo "BlockTrader/internal/domain/repository"
	"BlockTrader/pkg/cache"
)

func TestCachedSourceServesRepeatFetches(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	src := &fakeSource{candles: flatCandles(5)}
	cs := NewCachedSource(src, mc, time.Minute, nil, nil)
	ctx := context.Background()

	first, err := cs.FetchCandles(ctx, "MGC", domrepo.TF15m, 5)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	second, err := cs.FetchCandles(ctx, "MGC", domrepo.TF15m, 5)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if src.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", src.calls)
	}
	if len(second) != len(first) || !second[4].Timestamp.Equal(first[4].Timestamp) || second[4].Close != first[4].Close {
		t.Fatalf("cached candles differ from upstream")
	}

	if _, err := cs.FetchCandles(ctx, "MGC", domrepo.TF5m, 5); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("different timeframe must miss the cache")
	}
}

func TestCachedSourceDoesNotCacheErrors(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	src := &fakeSource{err: domrepo.ErrDataUnavailable}
	cs := NewCachedSource(src, mc, time.Minute, nil, nil)

	for i := 0; i < 2; i++ {
		if _, err := cs.FetchCandles(context.Background(), "MGC", domrepo.TF15m, 5); err == nil {
			t.Fatalf("expected error")
		}
	}
	if src.calls != 2 || mc.Len() != 0 {
		t.Fatalf("errors must pass through uncached: calls %d cached %d", src.calls, mc.Len())
	}
}

func TestPlanBookEvictsOldest(t *testing.T) {
	b := NewPlanBook(2)
	b.Put("a", fakePlan("a"))
	b.Put("b", fakePlan("b"))
	b.Put("a", fakePlan("a2"))
	b.Put("c", fakePlan("c"))
	b.Put("", fakePlan("ignored"))

	if b.Len() != 2 {
		t.Fatalf("expected capacity 2, got %d", b.Len())
	}
	if _, ok := b.Get("a"); ok {
		t.Fatalf("oldest entry should be evicted")
	}
	if p, ok := b.Get("c"); !ok || p.ID != "c" {
		t.Fatalf("newest entry missing")
	}
}
