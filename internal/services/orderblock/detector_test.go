package orderblock

import (
	"testing"
	"time"

	"BlockTrader/internal/domain/models"
	"BlockTrader/internal/services/market"
)

var t0 = time.Date(2024, 6, 3, 17, 0, 0, 0, time.UTC)

// flat returns a candle with a body of 2 around base, alternating direction.
func flat(i int, base float64) models.Candle {
	open, close := base, base+2
	if i%2 == 1 {
		open, close = base+2, base
	}
	return models.Candle{
		Timestamp: t0.Add(time.Duration(i) * 15 * time.Minute),
		Open:      open, High: base + 3, Low: base - 1, Close: close, Volume: 100,
	}
}

// withBullishBlock builds n flat candles with a bullish order block at idx:
// a bearish 2060->2050 candle followed by a bullish close at 2065.
func withBullishBlock(n, idx int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		base := 2050.0
		if i > idx+1 {
			base = 2063
		}
		out[i] = flat(i, base)
	}
	ts := func(i int) time.Time { return t0.Add(time.Duration(i) * 15 * time.Minute) }
	out[idx] = models.Candle{Timestamp: ts(idx), Open: 2060, High: 2061, Low: 2049, Close: 2050, Volume: 300}
	out[idx+1] = models.Candle{Timestamp: ts(idx + 1), Open: 2051, High: 2066, Low: 2050, Close: 2065, Volume: 150}
	return out
}

func mustSeries(t *testing.T, tf string, candles []models.Candle) *market.Series {
	t.Helper()
	s, err := market.NewValidator(nil, 0, 0).Validate("MGC", tf, candles)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	return s
}

func TestDetectBullishBlockAfterWarmup(t *testing.T) {
	s := mustSeries(t, "15m", withBullishBlock(40, 30))
	got := NewDetector(DefaultParams()).Detect(s)
	if len(got) != 1 {
		t.Fatalf("expected exactly one pattern, got %d: %+v", len(got), got)
	}
	p := got[0]
	if p.Type != models.Bullish || p.Index != 30 || p.Level != 2049 || p.Top != 2061 {
		t.Fatalf("unexpected pattern %+v", p)
	}
	if p.Strength != 3 {
		t.Fatalf("expected strength capped at 3, got %v", p.Strength)
	}
	if p.Series != s.Ref() || !p.Timestamp.Equal(s.Candle(30).Timestamp) {
		t.Fatalf("pattern not bound to its series: %+v", p.Series)
	}
}

func TestDetectSkipsUndefinedAverage(t *testing.T) {
	s := mustSeries(t, "15m", withBullishBlock(30, 10))
	for _, p := range NewDetector(DefaultParams()).Detect(s) {
		if p.Index == 10 {
			t.Fatalf("pattern at index 10 must be skipped while avg body is undefined")
		}
	}
}

func TestDetectBearishMirror(t *testing.T) {
	candles := make([]models.Candle, 30)
	for i := range candles {
		base := 2050.0
		if i > 26 {
			base = 2036
		}
		candles[i] = flat(i, base)
	}
	ts := func(i int) time.Time { return t0.Add(time.Duration(i) * 15 * time.Minute) }
	candles[25] = models.Candle{Timestamp: ts(25), Open: 2042, High: 2053, Low: 2041, Close: 2052, Volume: 100}
	candles[26] = models.Candle{Timestamp: ts(26), Open: 2050, High: 2051, Low: 2036, Close: 2037, Volume: 100}

	got := NewDetector(DefaultParams()).Detect(mustSeries(t, "5m", candles))
	if len(got) != 1 {
		t.Fatalf("expected one pattern, got %+v", got)
	}
	if got[0].Type != models.Bearish || got[0].Level != 2053 || got[0].Bottom != 2041 || got[0].Index != 25 {
		t.Fatalf("unexpected pattern %+v", got[0])
	}
}

func TestDetectRespectsMaxAge(t *testing.T) {
	candles := withBullishBlock(80, 20)
	s := mustSeries(t, "15m", candles)

	if got := NewDetector(Params{MaxAge: 50}).Detect(s); len(got) != 0 {
		t.Fatalf("pattern older than max age must not be emitted: %+v", got)
	}
	got := NewDetector(Params{MaxAge: 70}).Detect(s)
	if len(got) != 1 || got[0].Index != 20 {
		t.Fatalf("expected pattern once window covers it, got %+v", got)
	}
	for _, p := range got {
		if p.Index < s.Len()-70 {
			t.Fatalf("pattern %d outside scan window", p.Index)
		}
	}
}

func TestDetectTooShort(t *testing.T) {
	if got := NewDetector(DefaultParams()).Detect(nil); got != nil {
		t.Fatalf("expected nil for nil series")
	}
}
