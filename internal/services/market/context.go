package market

import (
	"math"
	"sync"
	"time"

	"BlockTrader/internal/services/features"
)

type Regime string

const (
	RegimeLow    Regime = "LOW"
	RegimeNormal Regime = "NORMAL"
	RegimeHigh   Regime = "HIGH"
)

const (
	minRegimeSamples = 20
	atrHistoryCap    = 100
)

// ClassifyVolatility compares current ATR to the 30th/70th percentile of history.
func ClassifyVolatility(current float64, history []float64) (Regime, float64) {
	if len(history) < minRegimeSamples {
		return RegimeNormal, 1.0
	}
	p30 := features.Percentile(history, 30)
	p70 := features.Percentile(history, 70)
	switch {
	case current < p30:
		return RegimeLow, 0.7
	case current > p70:
		return RegimeHigh, 1.3
	default:
		return RegimeNormal, 1.0
	}
}

// SessionOf maps an hour of day to a trading session and sensitivity factor.
func SessionOf(t time.Time) (string, float64) {
	h := t.Hour()
	switch {
	case h >= 22 || h < 7:
		return "ASIAN", 0.8
	case h < 15:
		return "EUROPEAN", 1.0
	default:
		return "US", 1.1
	}
}

// Context summarises current market conditions.
type Context struct {
	ATR               float64 `json:"atr"`
	Regime            Regime  `json:"volatility_regime"`
	VolAdjustment     float64 `json:"volatility_adjustment"`
	Session           string  `json:"session"`
	SessionAdjustment float64 `json:"session_adjustment"`
	TotalAdjustment   float64 `json:"total_adjustment"`
	Trend             string  `json:"trend"`
}

// Analyzer keeps a bounded ATR history across cycles.
type Analyzer struct {
	mu         sync.Mutex
	period     int
	atrHistory []float64
}

func NewAnalyzer(atrPeriod int) *Analyzer {
	if atrPeriod <= 0 {
		atrPeriod = 14
	}
	return &Analyzer{period: atrPeriod}
}

// Analyze records the series ATR and returns the market context at now.
func (a *Analyzer) Analyze(s *Series, now time.Time) Context {
	if s == nil || s.Len() < minRegimeSamples {
		return Context{Regime: RegimeNormal, VolAdjustment: 1, Session: "UNKNOWN",
			SessionAdjustment: 1, TotalAdjustment: 1, Trend: "NEUTRAL"}
	}
	atr := s.ATR(a.period)

	a.mu.Lock()
	a.atrHistory = append(a.atrHistory, atr)
	if len(a.atrHistory) > atrHistoryCap {
		a.atrHistory = a.atrHistory[len(a.atrHistory)-atrHistoryCap:]
	}
	history := append([]float64(nil), a.atrHistory...)
	a.mu.Unlock()

	regime, volAdj := ClassifyVolatility(atr, history)
	session, sessAdj := SessionOf(now)

	closes := s.Closes()
	sma20 := features.SMA(closes, 20)
	sma50 := sma20
	if len(closes) >= 50 {
		sma50 = features.SMA(closes, 50)
	}
	price := closes[len(closes)-1]
	trend := "NEUTRAL"
	if price > sma20 && sma20 > sma50 {
		trend = "BULLISH"
	} else if price < sma20 && sma20 < sma50 {
		trend = "BEARISH"
	}

	return Context{
		ATR:               atr,
		Regime:            regime,
		VolAdjustment:     volAdj,
		Session:           session,
		SessionAdjustment: sessAdj,
		TotalAdjustment:   volAdj * sessAdj,
		Trend:             trend,
	}
}

// HistoryLen is the number of retained ATR samples.
func (a *Analyzer) HistoryLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.atrHistory)
}

// Thresholds are the tunable detection and selection limits.
type Thresholds struct {
	MinScore       float64 `json:"min_score"`
	BodyMultiplier float64 `json:"body_multiplier"`
	MinVolumeRatio float64 `json:"min_volume_ratio"`
	Tolerance      float64 `json:"tolerance"`
}

// DynamicThresholds scales base thresholds by the context's total adjustment.
func DynamicThresholds(base Thresholds, ctx Context) Thresholds {
	adj := ctx.TotalAdjustment
	if adj <= 0 {
		adj = 1
	}
	return Thresholds{
		MinScore:       math.Max(3, math.Floor(base.MinScore*adj)),
		BodyMultiplier: math.Max(1.0, base.BodyMultiplier*adj),
		MinVolumeRatio: math.Max(1.0, base.MinVolumeRatio*adj),
		Tolerance:      base.Tolerance * adj,
	}
}
