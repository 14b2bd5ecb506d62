package models

import "time"

// PatternType discriminates order blocks.
type PatternType string

const (
	Bullish PatternType = "bullish"
	Bearish PatternType = "bearish"
)

// Valid reports whether t is a known pattern type.
func (t PatternType) Valid() bool { return t == Bullish || t == Bearish }

// SeriesRef identifies the candle series a pattern was detected on.
// Scoring a pattern against any other series fails closed.
type SeriesRef struct {
	ID        uint64 `json:"series_id"`
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
}

// Pattern is a detected order block.
type Pattern struct {
	Type      PatternType `json:"type"`
	Index     int         `json:"index"`
	Level     float64     `json:"level"`
	Strength  float64     `json:"strength"`
	Timestamp time.Time   `json:"timestamp"`
	// Top/Bottom hold the opposite edge of the block candle (high for bullish, low for bearish).
	Top    float64   `json:"top,omitempty"`
	Bottom float64   `json:"bottom,omitempty"`
	Series SeriesRef `json:"series"`
}

// ScoredPattern is a pattern with its 0-10 quality score.
type ScoredPattern struct {
	Pattern
	Score     float64 `json:"score"`
	Timeframe string  `json:"timeframe,omitempty"`
}
