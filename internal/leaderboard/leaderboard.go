// Package leaderboard orders account summaries into ranked positions.
package leaderboard

import (
	"fmt"
	"sort"

	"github.com/and161185/hacking-zone/internal/errs"
	"github.com/and161185/hacking-zone/internal/model"
)

// SortKey selects the metric ranked in descending order.
type SortKey string

const (
	ByXP     SortKey = "xp"
	ByLevels SortKey = "levels"
	ByBadges SortKey = "badges"
	ByStreak SortKey = "streak"
)

// ParseSortKey validates s; empty means ByXP.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(s); k {
	case "":
		return ByXP, nil
	case ByXP, ByLevels, ByBadges, ByStreak:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown sort key %q", errs.ErrValidation, s)
}

func (k SortKey) metric(s model.AccountSummary) int {
	switch k {
	case ByLevels:
		return s.LevelsCompleted
	case ByBadges:
		return s.Badges
	case ByStreak:
		return s.Streak
	default:
		return s.XP
	}
}

// Rank sorts summaries by key descending, earlier accounts first on ties,
// and numbers them from 1. The input slice is not modified.
func Rank(summaries []model.AccountSummary, key SortKey) ([]model.LeaderboardEntry, error) {
	if _, err := ParseSortKey(string(key)); err != nil {
		return nil, err
	}
	sorted := append([]model.AccountSummary(nil), summaries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := key.metric(sorted[i]), key.metric(sorted[j])
		if a != b {
			return a > b
		}
		return sorted[i].Seq < sorted[j].Seq
	})
	out := make([]model.LeaderboardEntry, len(sorted))
	for i, s := range sorted {
		out[i] = model.LeaderboardEntry{Position: i + 1, AccountSummary: s}
	}
	return out, nil
}

// Top truncates entries to at most limit; limit <= 0 keeps all.
func Top(entries []model.LeaderboardEntry, limit int) []model.LeaderboardEntry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}
