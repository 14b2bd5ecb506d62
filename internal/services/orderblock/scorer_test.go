package orderblock

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"BlockTrader/internal/domain/models"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestScoreSingleTimeframe(t *testing.T) {
	s := mustSeries(t, "15m", withBullishBlock(40, 30))
	p := NewDetector(DefaultParams()).Detect(s)[0]

	b, err := NewScorer(DefaultParams(), nil).Breakdown(p, s, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// strength 3, volume spike 2, age 10 -> 1, untouched level 2
	if b.Strength != 3 || b.Volume != 2 || b.Recency != 1 || b.Clean != 2 {
		t.Fatalf("unexpected breakdown %+v", b)
	}
	if b.Confluence != 0 || b.Trend != 0 || b.Total != 8 {
		t.Fatalf("single timeframe must not add mtf bonuses: %+v", b)
	}
}

func TestScoreViolatedLevel(t *testing.T) {
	candles := withBullishBlock(40, 30)
	candles[35].Low = 2040
	s := mustSeries(t, "15m", candles)
	p := NewDetector(DefaultParams()).Detect(s)[0]
	b, _ := NewScorer(DefaultParams(), nil).Breakdown(p, s, nil)
	if b.Clean != 0 {
		t.Fatalf("expected no clean bonus after breach, got %+v", b)
	}
}

func TestScoreMultiTimeframeClamps(t *testing.T) {
	primary := mustSeries(t, "15m", withBullishBlock(40, 30))
	entry := mustSeries(t, "5m", withBullishBlock(40, 30))
	d := NewDetector(DefaultParams())
	frames := []Sibling{
		{Series: primary, Patterns: d.Detect(primary)},
		{Series: entry, Patterns: d.Detect(entry)},
	}
	sc := NewScorer(DefaultParams(), nil)

	b, err := sc.Breakdown(frames[0].Patterns[0], primary, frames[1:])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !near(b.Confluence, 1.0) {
		t.Fatalf("expected 5m confluence 1.0, got %v", b.Confluence)
	}
	if !near(b.Trend, 1.2) {
		t.Fatalf("expected trend 0.7+0.5, got %v", b.Trend)
	}
	if b.Total != 10 {
		t.Fatalf("expected clamp at 10, got %v", b.Total)
	}

	scored := sc.ScoreFrames(frames, true)
	if len(scored) != 2 || scored[0].Timeframe != "15m" || scored[1].Timeframe != "5m" {
		t.Fatalf("unexpected scored frames %+v", scored)
	}
}

func TestScoreFailsClosed(t *testing.T) {
	s := mustSeries(t, "15m", withBullishBlock(40, 30))
	other := mustSeries(t, "15m", withBullishBlock(40, 30))
	p := NewDetector(DefaultParams()).Detect(s)[0]
	sc := NewScorer(DefaultParams(), nil)

	bad := map[string]models.Pattern{}
	q := p
	q.Type = "sideways"
	bad["type"] = q
	q = p
	q.Level = 0
	bad["level"] = q
	q = p
	q.Index = s.Len() - 1
	bad["index"] = q
	q = p
	q.Index = -1
	bad["negative index"] = q

	for name, pat := range bad {
		if got := sc.Score(pat, s, nil); got != 0 {
			t.Errorf("%s: expected 0, got %v", name, got)
		}
	}
	if got := sc.Score(p, other, nil); got != 0 {
		t.Fatalf("pattern scored against foreign series must be 0, got %v", got)
	}
}

func TestScoreBoundsRandomSeries(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	d := NewDetector(DefaultParams())
	sc := NewScorer(DefaultParams(), nil)
	for trial := 0; trial < 50; trial++ {
		candles := make([]models.Candle, 120)
		price := 2000.0
		for i := range candles {
			open := price
			close := open + (rng.Float64()-0.5)*30
			high := math.Max(open, close) + rng.Float64()*5
			low := math.Min(open, close) - rng.Float64()*5
			candles[i] = models.Candle{
				Timestamp: t0.Add(time.Duration(i) * time.Minute),
				Open:      open, High: high, Low: low, Close: close,
				Volume: rng.Float64() * 1000,
			}
			price = close
		}
		s := mustSeries(t, "1m", candles)
		frames := []Sibling{{Series: s, Patterns: d.Detect(s)}}
		for _, mtf := range []bool{false, true} {
			for _, sp := range sc.ScoreFrames(frames, mtf) {
				if sp.Score < 0 || sp.Score > 10 {
					t.Fatalf("score out of bounds: %v", sp.Score)
				}
			}
		}
	}
}

func TestDetectScoreSelectDeterministic(t *testing.T) {
	s := mustSeries(t, "15m", withBullishBlock(40, 30))
	run := func() (models.ScoredPattern, bool) {
		d := NewDetector(DefaultParams())
		sc := NewScorer(DefaultParams(), nil)
		return Select(sc.ScoreFrames([]Sibling{{Series: s, Patterns: d.Detect(s)}}, false), 7)
	}
	a, okA := run()
	for i := 0; i < 10; i++ {
		b, okB := run()
		if okA != okB || a.Index != b.Index || a.Score != b.Score || a.Level != b.Level {
			t.Fatalf("non-deterministic result %+v vs %+v", a, b)
		}
	}
}

func TestTrendNeedsTwentyCandles(t *testing.T) {
	s := mustSeries(t, "1m", withBullishBlock(15, 5))
	if _, ok := Trend(s); ok {
		t.Fatalf("expected no trend with fewer than 20 candles")
	}
}
