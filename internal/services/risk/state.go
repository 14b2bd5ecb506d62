package risk

import (
	"sync"
	"time"

	"BlockTrader/internal/domain/models"
	"BlockTrader/pkg/util"
)

// State is the process-wide trading state. The decision loop and execution
// feedback both mutate it, so every access goes through the mutex.
type State struct {
	mu  sync.RWMutex
	loc *time.Location

	day               string
	dailyPnL          float64
	consecutiveLosses int
	lastSignal        time.Time
	running           bool
	wins              int
	losses            int
	totalTrades       int
}

func NewState(loc *time.Location, now time.Time) *State {
	if loc == nil {
		loc = time.UTC
	}
	return &State{loc: loc, day: util.DayKey(now, loc)}
}

func (s *State) Snapshot() models.StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.StateSnapshot{
		Day:               s.day,
		DailyPnL:          s.dailyPnL,
		ConsecutiveLosses: s.consecutiveLosses,
		LastSignalTime:    s.lastSignal,
		Running:           s.running,
		Wins:              s.wins,
		Losses:            s.losses,
		TotalTrades:       s.totalTrades,
	}
}

// Restore loads a persisted snapshot. The running flag is left untouched.
func (s *State) Restore(snap models.StateSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Day != "" {
		s.day = snap.Day
	}
	s.dailyPnL = snap.DailyPnL
	s.consecutiveLosses = snap.ConsecutiveLosses
	s.lastSignal = snap.LastSignalTime
	s.wins = snap.Wins
	s.losses = snap.Losses
	s.totalTrades = snap.TotalTrades
}

// RollDay resets daily P&L when now falls on a new calendar day.
// Consecutive losses carry over.
func (s *State) RollDay(now time.Time) bool {
	key := util.DayKey(now, s.loc)
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == s.day {
		return false
	}
	s.day = key
	s.dailyPnL = 0
	return true
}

// ResetDaily zeroes daily P&L without changing the day key.
func (s *State) ResetDaily() {
	s.mu.Lock()
	s.dailyPnL = 0
	s.mu.Unlock()
}

// RecordClose applies a closed position's realized P&L.
func (s *State) RecordClose(pnl float64) models.StateSnapshot {
	s.mu.Lock()
	s.dailyPnL += pnl
	s.totalTrades++
	if pnl > 0 {
		s.consecutiveLosses = 0
		s.wins++
	} else {
		s.consecutiveLosses++
		s.losses++
	}
	s.mu.Unlock()
	return s.Snapshot()
}

func (s *State) MarkSignal(t time.Time) {
	s.mu.Lock()
	s.lastSignal = t
	s.mu.Unlock()
}

func (s *State) LastSignal() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSignal
}

func (s *State) SetRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}

func (s *State) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *State) DailyPnL() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dailyPnL
}

func (s *State) ConsecutiveLosses() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consecutiveLosses
}

// InCooldown reports whether a signal was dispatched less than d before now.
func (s *State) InCooldown(now time.Time, d time.Duration) bool {
	last := s.LastSignal()
	return !last.IsZero() && now.Sub(last) < d
}
