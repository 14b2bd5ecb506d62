package market

import (
	"fmt"
	"math"

	"BlockTrader/internal/domain/models"
)

// DefaultMaxPriceChange is the largest close-to-close move accepted between candles.
const DefaultMaxPriceChange = 0.05

// DataValidationError reports why a candle series, pattern or order was rejected.
type DataValidationError struct {
	Field  string
	Index  int
	Reason string
}

func (e *DataValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("data validation: %s[%d]: %s", e.Field, e.Index, e.Reason)
	}
	return fmt.Sprintf("data validation: %s: %s", e.Field, e.Reason)
}

func invalid(field string, index int, format string, args ...any) error {
	return &DataValidationError{Field: field, Index: index, Reason: fmt.Sprintf(format, args...)}
}

// Validator turns raw candles into a Series. Series that break any rule are
// rejected whole; nothing is repaired.
type Validator struct {
	Contracts      *Registry
	MaxPriceChange float64
	AvgWindow      int
}

func NewValidator(contracts *Registry, maxPriceChange float64, avgWindow int) *Validator {
	if maxPriceChange <= 0 {
		maxPriceChange = DefaultMaxPriceChange
	}
	if avgWindow <= 0 {
		avgWindow = DefaultAvgWindow
	}
	return &Validator{Contracts: contracts, MaxPriceChange: maxPriceChange, AvgWindow: avgWindow}
}

func (v *Validator) bounds(symbol string) (float64, float64) {
	if v.Contracts == nil {
		return 0, 0
	}
	c, err := v.Contracts.Lookup(symbol)
	if err != nil {
		return 0, 0
	}
	return c.MinPrice, c.MaxPrice
}

func (v *Validator) Validate(symbol, tf string, candles []models.Candle) (*Series, error) {
	if len(candles) < 3 {
		return nil, invalid("candles", -1, "insufficient candles: %d, need at least 3", len(candles))
	}
	minPrice, maxPrice := v.bounds(symbol)
	maxChange := v.MaxPriceChange
	if maxChange <= 0 {
		maxChange = DefaultMaxPriceChange
	}

	for i, c := range candles {
		prices := [...]struct {
			name string
			v    float64
		}{{"open", c.Open}, {"high", c.High}, {"low", c.Low}, {"close", c.Close}}
		for _, p := range prices {
			if math.IsNaN(p.v) || math.IsInf(p.v, 0) {
				return nil, invalid(p.name, i, "not a number")
			}
			if p.v <= 0 {
				return nil, invalid(p.name, i, "must be positive, got %v", p.v)
			}
			if (minPrice > 0 && p.v < minPrice) || (maxPrice > 0 && p.v > maxPrice) {
				return nil, invalid(p.name, i, "%v outside range [%v, %v]", p.v, minPrice, maxPrice)
			}
		}
		if math.IsNaN(c.Volume) || math.IsInf(c.Volume, 0) || c.Volume < 0 {
			return nil, invalid("volume", i, "invalid volume %v", c.Volume)
		}
		if c.High < math.Max(c.Open, c.Close) {
			return nil, invalid("high", i, "high %v less than max(open %v, close %v)", c.High, c.Open, c.Close)
		}
		if c.Low > math.Min(c.Open, c.Close) {
			return nil, invalid("low", i, "low %v greater than min(open %v, close %v)", c.Low, c.Open, c.Close)
		}
		if i == 0 {
			continue
		}
		prev := candles[i-1]
		if !c.Timestamp.After(prev.Timestamp) {
			return nil, invalid("timestamp", i, "not strictly increasing")
		}
		if change := math.Abs(c.Close-prev.Close) / prev.Close; change > maxChange {
			return nil, invalid("close", i, "price change %.2f%% exceeds %.2f%%", change*100, maxChange*100)
		}
	}
	return newSeries(symbol, tf, candles, v.AvgWindow), nil
}
