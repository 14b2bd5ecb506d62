package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AlertEntry
	done    chan struct{}
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AlertEntry))
	select {
	case p.done <- struct{}{}:
	default:
	}
	return nil
}

func TestAlertCollectorDeduplicates(t *testing.T) {
	pub := &capturePublisher{done: make(chan struct{}, 1)}
	c := NewAlertCollector(&CollectionConfig{FlushInterval: time.Hour, CountThreshold: 10, Topic: "alerts", Publisher: pub})

	fields := map[string]interface{}{"symbol": "MGC"}
	c.Add("error", "fetch failed", fields, "engine.go:10")
	c.Add("error", "fetch failed", fields, "engine.go:10")
	c.Add("warn", "cooldown", nil, "engine.go:20")

	if got := c.Pending(); got != 2 {
		t.Fatalf("expected 2 unique entries, got %d", got)
	}

	c.Close()
	select {
	case <-pub.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a flush on close")
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.topic != "alerts" {
		t.Fatalf("unexpected topic %q", pub.topic)
	}
	total := 0
	for _, e := range pub.batches[0] {
		total += e.Count
	}
	if total != 3 {
		t.Fatalf("expected aggregated count 3, got %d", total)
	}
}

func TestLoggerRoutesErrorsToCollector(t *testing.T) {
	pub := &capturePublisher{done: make(chan struct{}, 1)}
	l := Nop()
	l.AttachCollector(&CollectionConfig{FlushInterval: time.Hour, CountThreshold: 1, Topic: "alerts", Publisher: pub})
	defer l.DetachCollector()

	l.Info("not collected")
	l.Error("dispatch failed", Error(errors.New("timeout")))

	select {
	case <-pub.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected threshold flush")
	}
}
