package competition

import "sort"

// buildLeaderboard ranks the non-eliminated states by score, highest first.
// Ties keep the input order. prev holds the ranks of the last build and is
// updated in place once trends are computed.
func buildLeaderboard(states []CompetitorState, prev map[string]int) []LeaderboardEntry {
	active := make([]CompetitorState, 0, len(states))
	for _, s := range states {
		if s.Status != CompetitorEliminated {
			active = append(active, s)
		}
	}

	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Score > active[j].Score
	})

	entries := make([]LeaderboardEntry, len(active))
	for i, s := range active {
		rank := i + 1
		previous, ok := prev[s.ID]
		if !ok {
			previous = rank
		}

		trend := TrendStable
		switch {
		case rank < previous:
			trend = TrendUp
		case rank > previous:
			trend = TrendDown
		}

		entries[i] = LeaderboardEntry{
			Rank:         rank,
			CompetitorID: s.ID,
			Name:         s.Name,
			Equity:       s.Equity,
			PnLPercent:   s.PnLPercent,
			SharpeRatio:  s.SharpeRatio,
			WinRate:      s.WinRate,
			TotalTrades:  s.TotalTrades,
			Score:        s.Score,
			Trend:        trend,
			PreviousRank: previous,
		}
	}

	for _, e := range entries {
		prev[e.CompetitorID] = e.Rank
	}
	return entries
}
