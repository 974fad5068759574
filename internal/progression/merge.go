package progression

import (
	"sort"

	"github.com/and161185/hacking-zone/internal/model"
)

// MergeSnapshot combines two snapshots without losing progress on either side:
// completed levels and badges are unioned, xp and level take the maximum, and
// rank is recomputed from the merged level. Merging is commutative and
// idempotent, so re-sending a snapshot never double-applies anything.
// maxLevel bounds the level pointer (0 = unbounded).
func MergeSnapshot(base, incoming model.Snapshot, maxLevel int) model.Snapshot {
	completed := uniqueSorted(append(append([]int{}, base.CompletedLevels...), incoming.CompletedLevels...))
	level := max(base.Level, incoming.Level, nextAfter(completed))
	level = boundLevel(level, maxLevel)
	return model.Snapshot{
		Rank:            model.RankForLevel(level),
		XP:              max(base.XP, incoming.XP, 0),
		Level:           level,
		CompletedLevels: completed,
		Badges:          unionBadges(base.Badges, incoming.Badges),
	}
}

// unionBadges dedupes by id, keeping the earliest non-zero earned time.
// The result is ordered by earned time, then id.
func unionBadges(a, b []model.Badge) []model.Badge {
	byID := make(map[string]model.Badge, len(a)+len(b))
	for _, list := range [][]model.Badge{a, b} {
		for _, bd := range list {
			if bd.ID == "" {
				continue
			}
			cur, ok := byID[bd.ID]
			if !ok || (!bd.EarnedAt.IsZero() && (cur.EarnedAt.IsZero() || bd.EarnedAt.Before(cur.EarnedAt))) {
				byID[bd.ID] = bd
			}
		}
	}
	out := make([]model.Badge, 0, len(byID))
	for _, bd := range byID {
		out = append(out, bd)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EarnedAt.Equal(out[j].EarnedAt) {
			return out[i].EarnedAt.Before(out[j].EarnedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ApplySnapshot merges a server snapshot into s. Score mirrors the merged xp.
func ApplySnapshot(s State, snap model.Snapshot, maxLevel int) State {
	merged := MergeSnapshot(s.Snapshot(), snap, maxLevel)
	next := s.Clone()
	next.CompletedLevels = merged.CompletedLevels
	next.CurrentLevel = merged.Level
	next.Score = max(next.Score, merged.XP)
	next.Profile.XP = next.Score
	next.Profile.Rank = merged.Rank
	next.Profile.Badges = merged.Badges
	return next
}
