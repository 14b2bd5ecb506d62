package models

import "time"

// Candle is one OHLCV bar.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Body is the absolute open-close distance.
func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// IsBullish reports close > open.
func (c Candle) IsBullish() bool { return c.Close > c.Open }

// IsBearish reports close < open.
func (c Candle) IsBearish() bool { return c.Close < c.Open }

// Tick is a single trade print from the live stream.
type Tick struct {
	Symbol    string
	Timestamp time.Time
	Price     float64
	Volume    float64
}
