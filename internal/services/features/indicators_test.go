package features

import (
	"math"
	"testing"
	"time"

	"BlockTrader/internal/domain/models"
)

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestPrecedingMean(t *testing.T) {
	v := []float64{1, 2, 3, 4, 5}
	if _, ok := PrecedingMean(v, 1, 2); ok {
		t.Fatalf("expected undefined before window")
	}
	got, ok := PrecedingMean(v, 3, 2)
	if !ok || !almost(got, 2.5) {
		t.Fatalf("expected 2.5, got %v (%v)", got, ok)
	}
}

func TestEMASeededWithFirstValue(t *testing.T) {
	e := EMA([]float64{10, 20}, 3)
	if e[0] != 10 {
		t.Fatalf("expected seed 10, got %v", e[0])
	}
	// alpha = 0.5
	if !almost(e[1], 15) {
		t.Fatalf("expected 15, got %v", e[1])
	}
}

func TestATR(t *testing.T) {
	candles := []models.Candle{
		{Open: 10, High: 11, Low: 9, Close: 10},
		{Open: 10, High: 12, Low: 10, Close: 11},
		{Open: 11, High: 11, Low: 8, Close: 9},
	}
	if got := ATR(candles, 3); got != 0 {
		t.Fatalf("expected 0 with too few candles, got %v", got)
	}
	// TRs: max(2, 2, 0)=2 and max(3, 0, 3)=3
	if got := ATR(candles, 2); !almost(got, 2.5) {
		t.Fatalf("expected 2.5, got %v", got)
	}
}

func TestPercentileLinear(t *testing.T) {
	v := []float64{4, 1, 3, 2}
	if got := Percentile(v, 50); !almost(got, 2.5) {
		t.Fatalf("expected 2.5, got %v", got)
	}
	if got := Percentile(v, 30); !almost(got, 1.9) {
		t.Fatalf("expected 1.9, got %v", got)
	}
	if got := Percentile(v, 100); got != 4 {
		t.Fatalf("expected 4, got %v", got)
	}
}

func TestBucket(t *testing.T) {
	ts := time.Date(2024, 1, 1, 10, 7, 31, 0, time.UTC)
	if got := Bucket(ts, 5*time.Minute); !got.Equal(time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC)) {
		t.Fatalf("unexpected bucket %v", got)
	}
}
