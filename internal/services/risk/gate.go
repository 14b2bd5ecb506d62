package risk

import (
	"fmt"
	"time"

	"BlockTrader/internal/domain/models"
	"BlockTrader/pkg/util"
)

type GateParams struct {
	DailyLossLimit       float64
	MaxConsecutiveLosses int
	// Session bounds and blackout start are offsets from local midnight.
	SessionStart      time.Duration
	SessionEnd        time.Duration
	NewsBlackoutStart time.Duration
	Location          *time.Location
}

// NewGateParams parses "HH:MM" session clocks in the named IANA zone.
func NewGateParams(dailyLossLimit float64, maxLosses int, start, end, blackout, tz string) (GateParams, error) {
	p := GateParams{DailyLossLimit: dailyLossLimit, MaxConsecutiveLosses: maxLosses}
	var err error
	if p.SessionStart, err = util.ParseClock(start); err != nil {
		return p, fmt.Errorf("session start: %w", err)
	}
	if p.SessionEnd, err = util.ParseClock(end); err != nil {
		return p, fmt.Errorf("session end: %w", err)
	}
	if p.NewsBlackoutStart, err = util.ParseClock(blackout); err != nil {
		return p, fmt.Errorf("news blackout: %w", err)
	}
	if tz == "" {
		tz = "UTC"
	}
	if p.Location, err = time.LoadLocation(tz); err != nil {
		return p, fmt.Errorf("timezone: %w", err)
	}
	return p, nil
}

// Gate decides whether a new trade may be considered.
type Gate struct {
	params GateParams
	state  *State
}

func NewGate(p GateParams, state *State) *Gate {
	if p.Location == nil {
		p.Location = time.UTC
	}
	return &Gate{params: p, state: state}
}

// CanTrade checks loss limits first; once the daily loss limit is hit no
// other condition can re-enable trading.
func (g *Gate) CanTrade(now time.Time) (bool, string) {
	if g.state.DailyPnL() <= -g.params.DailyLossLimit {
		return false, models.ReasonDailyLossLimit
	}
	if g.state.ConsecutiveLosses() >= g.params.MaxConsecutiveLosses {
		return false, models.ReasonConsecutiveLoss
	}
	clock := util.ClockOf(now.In(g.params.Location))
	if clock < g.params.SessionStart || clock > g.params.SessionEnd {
		return false, models.ReasonOutsideSession
	}
	if clock >= g.params.NewsBlackoutStart {
		return false, models.ReasonNewsBlackout
	}
	return true, ""
}

func (g *Gate) Location() *time.Location { return g.params.Location }
