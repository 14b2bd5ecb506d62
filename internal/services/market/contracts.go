package market

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ContractSpec holds instrument parameters the planner and scorer read.
type ContractSpec struct {
	Symbol           string  `json:"symbol"`
	TickSize         float64 `json:"tick_size"`
	TickValue        float64 `json:"tick_value"`
	Volatility       float64 `json:"volatility"`
	MinPosition      int     `json:"min_position"`
	MaxPosition      int     `json:"max_position"`
	DefaultPosition  int     `json:"default_position"`
	MinStopTicks     int     `json:"min_stop_ticks"`
	MaxStopTicks     int     `json:"max_stop_ticks"`
	DefaultStopTicks int     `json:"default_stop_ticks"`
	MinPatternScore  float64 `json:"min_pattern_score"`
	MinVolumeRatio   float64 `json:"min_volume_ratio"`
	PrimaryTF        string  `json:"primary_timeframe"`
	HigherTF         string  `json:"higher_timeframe"`
	EntryTF          string  `json:"entry_timeframe"`
	MinPrice         float64 `json:"min_price"`
	MaxPrice         float64 `json:"max_price"`
}

// Tolerance scales a base violation tolerance by the instrument's volatility.
func (c ContractSpec) Tolerance(base float64) float64 {
	if c.Volatility <= 0 {
		return base
	}
	return base * c.Volatility
}

// MaxStopDistance is the widest allowed entry-to-stop distance in price units.
func (c ContractSpec) MaxStopDistance() float64 {
	return float64(c.MaxStopTicks) * c.TickSize
}

// InBounds reports whether price is inside the instrument's sane range.
func (c ContractSpec) InBounds(price float64) bool {
	if price <= 0 {
		return false
	}
	if c.MinPrice > 0 && price < c.MinPrice {
		return false
	}
	if c.MaxPrice > 0 && price > c.MaxPrice {
		return false
	}
	return true
}

// Timeframes returns primary, entry and higher timeframes without blanks or duplicates.
func (c ContractSpec) Timeframes() []string {
	out := make([]string, 0, 3)
	seen := map[string]bool{}
	for _, tf := range []string{c.PrimaryTF, c.EntryTF, c.HigherTF} {
		if tf == "" || seen[tf] {
			continue
		}
		seen[tf] = true
		out = append(out, tf)
	}
	return out
}

func (c ContractSpec) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("contract symbol is required")
	}
	if c.TickSize <= 0 || c.TickValue <= 0 {
		return fmt.Errorf("contract %s: tick size and value must be positive", c.Symbol)
	}
	if c.MinPosition <= 0 || c.MaxPosition < c.MinPosition {
		return fmt.Errorf("contract %s: invalid position limits [%d, %d]", c.Symbol, c.MinPosition, c.MaxPosition)
	}
	if c.MinStopTicks <= 0 || c.MaxStopTicks < c.MinStopTicks {
		return fmt.Errorf("contract %s: invalid stop limits [%d, %d]", c.Symbol, c.MinStopTicks, c.MaxStopTicks)
	}
	if c.DefaultStopTicks > c.MaxStopTicks {
		return fmt.Errorf("contract %s: default stop exceeds max stop", c.Symbol)
	}
	return nil
}

var builtinContracts = []ContractSpec{
	{Symbol: "MNQ", TickSize: 0.25, TickValue: 0.5, Volatility: 1.5,
		MinPosition: 2, MaxPosition: 50, DefaultPosition: 2,
		MinStopTicks: 40, MaxStopTicks: 200, DefaultStopTicks: 60,
		MinPatternScore: 5, MinVolumeRatio: 1.2,
		PrimaryTF: "5m", HigherTF: "15m", EntryTF: "1m", MinPrice: 1000, MaxPrice: 50000},
	{Symbol: "NQ", TickSize: 0.25, TickValue: 5, Volatility: 1.5,
		MinPosition: 1, MaxPosition: 10, DefaultPosition: 1,
		MinStopTicks: 40, MaxStopTicks: 200, DefaultStopTicks: 60,
		MinPatternScore: 5, MinVolumeRatio: 1.2,
		PrimaryTF: "5m", HigherTF: "15m", EntryTF: "1m", MinPrice: 1000, MaxPrice: 50000},
	{Symbol: "MES", TickSize: 0.25, TickValue: 1.25, Volatility: 1.0,
		MinPosition: 3, MaxPosition: 50, DefaultPosition: 3,
		MinStopTicks: 20, MaxStopTicks: 100, DefaultStopTicks: 40,
		MinPatternScore: 6, MinVolumeRatio: 1.5,
		PrimaryTF: "15m", HigherTF: "1h", EntryTF: "5m", MinPrice: 500, MaxPrice: 20000},
	{Symbol: "ES", TickSize: 0.25, TickValue: 12.5, Volatility: 1.0,
		MinPosition: 1, MaxPosition: 10, DefaultPosition: 1,
		MinStopTicks: 20, MaxStopTicks: 100, DefaultStopTicks: 40,
		MinPatternScore: 6, MinVolumeRatio: 1.5,
		PrimaryTF: "15m", HigherTF: "1h", EntryTF: "5m", MinPrice: 500, MaxPrice: 20000},
	{Symbol: "MGC", TickSize: 0.1, TickValue: 1.0, Volatility: 1.2,
		MinPosition: 2, MaxPosition: 30, DefaultPosition: 2,
		MinStopTicks: 30, MaxStopTicks: 150, DefaultStopTicks: 50,
		MinPatternScore: 5.5, MinVolumeRatio: 1.3,
		PrimaryTF: "15m", HigherTF: "1h", EntryTF: "5m", MinPrice: 100, MaxPrice: 10000},
	{Symbol: "GC", TickSize: 0.1, TickValue: 10, Volatility: 1.2,
		MinPosition: 1, MaxPosition: 5, DefaultPosition: 1,
		MinStopTicks: 30, MaxStopTicks: 150, DefaultStopTicks: 50,
		MinPatternScore: 5.5, MinVolumeRatio: 1.3,
		PrimaryTF: "15m", HigherTF: "1h", EntryTF: "5m", MinPrice: 100, MaxPrice: 10000},
}

// Registry resolves contract specs by symbol.
type Registry struct {
	mu        sync.RWMutex
	contracts map[string]ContractSpec
}

// NewRegistry loads the built-in contracts, then applies overrides by symbol.
func NewRegistry(overrides ...ContractSpec) (*Registry, error) {
	r := &Registry{contracts: make(map[string]ContractSpec, len(builtinContracts))}
	for _, c := range builtinContracts {
		r.contracts[c.Symbol] = c
	}
	for _, c := range overrides {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or replaces a contract.
func (r *Registry) Register(c ContractSpec) error {
	c.Symbol = strings.ToUpper(c.Symbol)
	if err := c.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.contracts[c.Symbol] = c
	r.mu.Unlock()
	return nil
}

func (r *Registry) Lookup(symbol string) (ContractSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[strings.ToUpper(symbol)]
	if !ok {
		return ContractSpec{}, fmt.Errorf("unknown contract symbol: %s", symbol)
	}
	return c, nil
}

func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.contracts))
	for s := range r.contracts {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
