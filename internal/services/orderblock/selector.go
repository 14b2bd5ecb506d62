package orderblock

import "BlockTrader/internal/domain/models"

// Select returns the highest-scoring candidate at or above minScore.
func Select(cands []models.ScoredPattern, minScore float64) (models.ScoredPattern, bool) {
	return SelectRanked(cands, minScore, nil)
}

// SelectRanked breaks equal scores by lowest pattern index, then by position of
// the candidate's timeframe in order (unlisted timeframes last, then by name).
func SelectRanked(cands []models.ScoredPattern, minScore float64, order []string) (models.ScoredPattern, bool) {
	rank := make(map[string]int, len(order))
	for i, tf := range order {
		if _, ok := rank[tf]; !ok {
			rank[tf] = i
		}
	}
	rankOf := func(tf string) int {
		if r, ok := rank[tf]; ok {
			return r
		}
		return len(order)
	}

	var best models.ScoredPattern
	found := false
	for _, c := range cands {
		if c.Score < minScore {
			continue
		}
		if !found || better(c, best, rankOf) {
			best, found = c, true
		}
	}
	return best, found
}

func better(a, b models.ScoredPattern, rankOf func(string) int) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Index != b.Index {
		return a.Index < b.Index
	}
	if ra, rb := rankOf(a.Timeframe), rankOf(b.Timeframe); ra != rb {
		return ra < rb
	}
	if a.Timeframe != b.Timeframe {
		return a.Timeframe < b.Timeframe
	}
	return a.Type < b.Type
}

// HighQuality counts candidates at or above minScore.
func HighQuality(cands []models.ScoredPattern, minScore float64) int {
	n := 0
	for _, c := range cands {
		if c.Score >= minScore {
			n++
		}
	}
	return n
}
