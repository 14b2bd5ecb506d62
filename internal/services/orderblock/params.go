// Package orderblock detects order blocks on a validated candle series,
// scores their quality and selects the best candidate.
package orderblock

import "errors"

// ErrInvariant marks a pattern that cannot be scored against the given series.
var ErrInvariant = errors.New("pattern invariant violated")

const (
	defaultConfluenceWeight = 0.2
	defaultTrendWeight      = 0.3
	trendMinCandles         = 20
	fastSpan                = 8
	slowSpan                = 21
	maxScore                = 10.0
)

// Params configures detection and scoring.
type Params struct {
	MaxAge           int
	BodyMultiplier   float64
	StrengthCap      float64
	VolumeMultiplier float64
	// Tolerance is the violation tolerance already scaled by instrument volatility.
	Tolerance         float64
	ConfluencePct     float64
	ConfluenceWeights map[string]float64
	TrendWeights      map[string]float64
}

func DefaultParams() Params {
	return Params{
		MaxAge:            50,
		BodyMultiplier:    1.5,
		StrengthCap:       3.0,
		VolumeMultiplier:  1.5,
		Tolerance:         0.002,
		ConfluencePct:     0.005,
		ConfluenceWeights: map[string]float64{"1m": 0.2, "5m": 0.5, "15m": 0.3},
		TrendWeights:      map[string]float64{"1m": 0.3, "5m": 0.5, "15m": 0.7},
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.MaxAge <= 0 {
		p.MaxAge = d.MaxAge
	}
	if p.BodyMultiplier <= 0 {
		p.BodyMultiplier = d.BodyMultiplier
	}
	if p.StrengthCap <= 0 {
		p.StrengthCap = d.StrengthCap
	}
	if p.VolumeMultiplier <= 0 {
		p.VolumeMultiplier = d.VolumeMultiplier
	}
	if p.Tolerance <= 0 {
		p.Tolerance = d.Tolerance
	}
	if p.ConfluencePct <= 0 {
		p.ConfluencePct = d.ConfluencePct
	}
	if p.ConfluenceWeights == nil {
		p.ConfluenceWeights = d.ConfluenceWeights
	}
	if p.TrendWeights == nil {
		p.TrendWeights = d.TrendWeights
	}
	return p
}

func weight(table map[string]float64, tf string, def float64) float64 {
	if w, ok := table[tf]; ok {
		return w
	}
	return def
}
