package features

import (
	"math"
	"sort"
	"time"

	"BlockTrader/internal/domain/models"
)

// PrecedingMean returns the mean of values[i-window:i]. It is undefined
// (ok=false) when fewer than window values precede i.
func PrecedingMean(values []float64, i, window int) (float64, bool) {
	if window <= 0 || i < window || i > len(values) {
		return 0, false
	}
	sum := 0.0
	for _, v := range values[i-window : i] {
		sum += v
	}
	return sum / float64(window), true
}

// EMA computes an exponential moving average seeded with the first value,
// alpha = 2/(span+1), without bias adjustment.
func EMA(values []float64, span int) []float64 {
	if len(values) == 0 || span <= 0 {
		return nil
	}
	alpha := 2.0 / float64(span+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// SMA returns the mean of the last period values, or 0 if there are not enough.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// Closes extracts close prices.
func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// TrueRanges returns max(high-low, |high-prevClose|, |low-prevClose|) for
// every candle after the first.
func TrueRanges(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		c, prev := candles[i], candles[i-1].Close
		tr := math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prev), math.Abs(c.Low-prev)))
		out = append(out, tr)
	}
	return out
}

// ATR is the simple mean of the last period true ranges. It returns 0 when
// fewer than period+1 candles are supplied.
func ATR(candles []models.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}
	return SMA(TrueRanges(candles), period)
}

// Percentile uses linear interpolation between closest ranks (p in [0,100]).
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	if p <= 0 {
		return s[0]
	}
	if p >= 100 {
		return s[len(s)-1]
	}
	pos := p / 100 * float64(len(s)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return s[lo] + (s[hi]-s[lo])*(pos-float64(lo))
}

// Bucket truncates ts to the start of its candle for a bar duration.
func Bucket(ts time.Time, d time.Duration) time.Time {
	if d <= 0 {
		d = time.Minute
	}
	return ts.Truncate(d)
}
