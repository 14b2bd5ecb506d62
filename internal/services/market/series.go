package market

import (
	"sync/atomic"

	"BlockTrader/internal/domain/models"
	"BlockTrader/internal/services/features"
)

// DefaultAvgWindow is the number of preceding candles averaged for body and volume.
const DefaultAvgWindow = 20

var seriesSeq atomic.Uint64

// Series is an immutable, validated candle sequence for one symbol and timeframe.
// Patterns detected on it carry its Ref so they cannot be scored against another series.
type Series struct {
	ref     models.SeriesRef
	candles []models.Candle
	bodies  []float64
	volumes []float64
	window  int
}

func newSeries(symbol, tf string, candles []models.Candle, window int) *Series {
	if window <= 0 {
		window = DefaultAvgWindow
	}
	s := &Series{
		ref:     models.SeriesRef{ID: seriesSeq.Add(1), Symbol: symbol, Timeframe: tf},
		candles: append([]models.Candle(nil), candles...),
		bodies:  make([]float64, len(candles)),
		volumes: make([]float64, len(candles)),
		window:  window,
	}
	for i, c := range s.candles {
		s.bodies[i] = c.Body()
		s.volumes[i] = c.Volume
	}
	return s
}

func (s *Series) Ref() models.SeriesRef { return s.ref }

func (s *Series) Symbol() string { return s.ref.Symbol }

func (s *Series) Timeframe() string { return s.ref.Timeframe }

func (s *Series) Len() int { return len(s.candles) }

// Candle returns the i-th candle. It panics on an out-of-range index like a slice.
func (s *Series) Candle(i int) models.Candle { return s.candles[i] }

// Candles returns a copy of the underlying candles.
func (s *Series) Candles() []models.Candle {
	return append([]models.Candle(nil), s.candles...)
}

// Last returns the most recent candle.
func (s *Series) Last() models.Candle { return s.candles[len(s.candles)-1] }

// Owns reports whether ref identifies this series.
func (s *Series) Owns(ref models.SeriesRef) bool { return s != nil && ref.ID == s.ref.ID }

// AvgBody is the mean body of the window candles preceding i.
func (s *Series) AvgBody(i int) (float64, bool) {
	return features.PrecedingMean(s.bodies, i, s.window)
}

// AvgVolume is the mean volume of the window candles preceding i.
func (s *Series) AvgVolume(i int) (float64, bool) {
	return features.PrecedingMean(s.volumes, i, s.window)
}

// ATR over the last period true ranges; 0 with fewer than period+1 candles.
func (s *Series) ATR(period int) float64 {
	return features.ATR(s.candles, period)
}

func (s *Series) Closes() []float64 { return features.Closes(s.candles) }
