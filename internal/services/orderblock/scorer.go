package orderblock

import (
	"fmt"
	"math"

	"BlockTrader/internal/domain/models"
	"BlockTrader/internal/services/market"
	"BlockTrader/pkg/logger"
)

// Sibling is another timeframe's series with the patterns detected on it.
type Sibling struct {
	Series   *market.Series
	Patterns []models.Pattern
}

// Breakdown lists each scoring component before the final clamp.
type Breakdown struct {
	Strength   float64 `json:"strength"`
	Volume     float64 `json:"volume"`
	Recency    float64 `json:"recency"`
	Clean      float64 `json:"clean"`
	Confluence float64 `json:"confluence"`
	Trend      float64 `json:"trend"`
	Total      float64 `json:"total"`
}

type Scorer struct {
	params Params
	log    *logger.Logger
}

func NewScorer(p Params, log *logger.Logger) *Scorer {
	if log == nil {
		log = logger.Nop()
	}
	return &Scorer{params: p.withDefaults(), log: log}
}

// WithThresholds returns a scorer sharing params except the violation
// tolerance and volume multiplier. Non-positive values keep the current ones.
func (sc *Scorer) WithThresholds(tolerance, volumeMultiplier float64) *Scorer {
	p := sc.params
	if tolerance > 0 {
		p.Tolerance = tolerance
	}
	if volumeMultiplier > 0 {
		p.VolumeMultiplier = volumeMultiplier
	}
	return &Scorer{params: p, log: sc.log}
}

// Params returns the scorer's effective parameters.
func (sc *Scorer) Params() Params { return sc.params }

// Score returns the 0-10 quality of p on s. A non-nil siblings slice enables
// multi-timeframe confluence and trend alignment. Invalid input scores 0.
func (sc *Scorer) Score(p models.Pattern, s *market.Series, siblings []Sibling) float64 {
	b, err := sc.Breakdown(p, s, siblings)
	if err != nil {
		sc.log.Warn("pattern scored as zero",
			logger.Error(err),
			logger.String("type", string(p.Type)),
			logger.Int("index", p.Index),
		)
		return 0
	}
	return b.Total
}

// Breakdown scores p and returns every component.
func (sc *Scorer) Breakdown(p models.Pattern, s *market.Series, siblings []Sibling) (Breakdown, error) {
	if err := checkInvariants(p, s); err != nil {
		return Breakdown{}, err
	}
	var b Breakdown
	b.Strength = math.Min(p.Strength*2, 3)
	b.Volume = sc.volumeBonus(p, s)
	b.Recency = recencyBonus(s.Len() - p.Index)
	b.Clean = sc.cleanBonus(p, s)
	if siblings != nil {
		b.Confluence = sc.confluence(p, siblings)
		b.Trend = sc.trendAlignment(p, s, siblings)
	}
	total := b.Strength + b.Volume + b.Recency + b.Clean + b.Confluence + b.Trend
	b.Total = math.Max(0, math.Min(total, maxScore))
	return b, nil
}

func checkInvariants(p models.Pattern, s *market.Series) error {
	switch {
	case s == nil:
		return fmt.Errorf("%w: nil series", ErrInvariant)
	case !p.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvariant, p.Type)
	case p.Level <= 0 || math.IsNaN(p.Level):
		return fmt.Errorf("%w: level %v", ErrInvariant, p.Level)
	case p.Index < 0 || p.Index >= s.Len()-1:
		return fmt.Errorf("%w: index %d out of range for %d candles", ErrInvariant, p.Index, s.Len())
	case !s.Owns(p.Series):
		return fmt.Errorf("%w: pattern from series %d scored against %d", ErrInvariant, p.Series.ID, s.Ref().ID)
	}
	return nil
}

func (sc *Scorer) volumeBonus(p models.Pattern, s *market.Series) float64 {
	avg, ok := s.AvgVolume(p.Index)
	if !ok || avg <= 0 {
		return 0
	}
	if s.Candle(p.Index).Volume > avg*sc.params.VolumeMultiplier {
		return 2
	}
	return 0
}

func recencyBonus(age int) float64 {
	switch {
	case age < 10:
		return 2
	case age < 25:
		return 1
	default:
		return 0
	}
}

func (sc *Scorer) cleanBonus(p models.Pattern, s *market.Series) float64 {
	tol := sc.params.Tolerance
	if p.Type == models.Bullish {
		low := math.Inf(1)
		for i := p.Index; i < s.Len(); i++ {
			low = math.Min(low, s.Candle(i).Low)
		}
		if low > p.Level*(1-tol) {
			return 2
		}
		return 0
	}
	high := math.Inf(-1)
	for i := p.Index; i < s.Len(); i++ {
		high = math.Max(high, s.Candle(i).High)
	}
	if high < p.Level*(1+tol) {
		return 2
	}
	return 0
}

// ScoreFrames scores every pattern of every frame. With mtf set, each frame is
// scored against all the others as siblings.
func (sc *Scorer) ScoreFrames(frames []Sibling, mtf bool) []models.ScoredPattern {
	var out []models.ScoredPattern
	for i, f := range frames {
		var siblings []Sibling
		if mtf {
			siblings = make([]Sibling, 0, len(frames)-1)
			for j, other := range frames {
				if j != i {
					siblings = append(siblings, other)
				}
			}
		}
		for _, p := range f.Patterns {
			out = append(out, models.ScoredPattern{
				Pattern:   p,
				Score:     sc.Score(p, f.Series, siblings),
				Timeframe: f.Series.Timeframe(),
			})
		}
	}
	return out
}
