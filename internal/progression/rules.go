package progression

import (
	"fmt"
	"math"
	"time"

	"github.com/and161185/hacking-zone/internal/catalog"
	"github.com/and161185/hacking-zone/internal/errs"
	"github.com/and161185/hacking-zone/internal/model"
)

// Rules applies transitions against a level catalog. All methods are pure.
type Rules struct {
	Catalog *catalog.Catalog
}

// Outcome describes the effect of a CompleteLevel transition.
type Outcome struct {
	Applied  bool         // false when the level was already completed
	XPGained int
	Badge    *model.Badge // badge newly awarded, if any
}

// CompleteLevel records the first completion of levelID. Completing an
// already-completed level returns s unchanged with Applied=false.
// points <= 0 awards the catalog reward.
func (r Rules) CompleteLevel(s State, levelID, points int, now time.Time) (State, Outcome, error) {
	lvl, ok := r.Catalog.Level(levelID)
	if !ok {
		return s, Outcome{}, fmt.Errorf("level %d: %w", levelID, errs.ErrUnknownLevel)
	}
	if s.IsCompleted(levelID) {
		return s, Outcome{}, nil
	}
	if !r.Catalog.Unlocked(levelID, s.completedSet()) {
		return s, Outcome{}, fmt.Errorf("level %d: %w", levelID, errs.ErrLevelLocked)
	}
	if points <= 0 {
		points = lvl.XP
	}

	next := s.Clone()
	next.CompletedLevels = uniqueSorted(append(next.CompletedLevels, levelID))
	next.Score += points
	next.CurrentLevel = boundLevel(max(next.CurrentLevel, levelID+1), r.Catalog.MaxLevel())
	next.Profile.Rank = model.RankForLevel(next.CurrentLevel)
	next.Profile.XP = next.Score

	out := Outcome{Applied: true, XPGained: points}
	if def, ok := r.Catalog.BadgeFor(levelID); ok && !next.HasBadge(def.ID) {
		b := model.Badge{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			Icon:        def.Icon,
			EarnedAt:    now.UTC(),
		}
		next = AddBadge(next, b)
		out.Badge = &b
	}
	return next, out, nil
}

// UnlockNextLevel advances the level pointer by one, never past the last level.
func (r Rules) UnlockNextLevel(s State) State {
	next := s.Clone()
	next.CurrentLevel = boundLevel(next.CurrentLevel+1, r.Catalog.MaxLevel())
	next.Profile.Rank = model.RankForLevel(next.CurrentLevel)
	return next
}

// Reset returns the initial state, keeping only the display name.
func (r Rules) Reset(s State) State {
	return NewState(s.Profile.Username)
}

// AddBadge attaches b unless a badge with the same id is present.
func AddBadge(s State, b model.Badge) State {
	if s.HasBadge(b.ID) {
		return s
	}
	next := s.Clone()
	next.Profile.Badges = append(next.Profile.Badges, b)
	return next
}

// ProfilePatch carries client-editable profile fields; nil means unchanged.
// Progression fields are not editable this way.
type ProfilePatch struct {
	Username *string
}

// UpdateProfile applies p to the profile.
func UpdateProfile(s State, p ProfilePatch) State {
	next := s.Clone()
	if p.Username != nil && *p.Username != "" {
		next.Profile.Username = *p.Username
	}
	return next
}

// LevelProgress is the derived view of one level.
type LevelProgress struct {
	IsCompleted bool `json:"isCompleted"`
	IsUnlocked  bool `json:"isUnlocked"`
	CanPlay     bool `json:"canPlay"`
}

// LevelProgress derives completion and unlock status. Unlocking uses the
// prerequisite set only.
func (r Rules) LevelProgress(s State, levelID int) LevelProgress {
	unlocked := r.Catalog.Unlocked(levelID, s.completedSet())
	return LevelProgress{
		IsCompleted: s.IsCompleted(levelID),
		IsUnlocked:  unlocked,
		CanPlay:     unlocked,
	}
}

// Stats summarizes a state for dashboards.
type Stats struct {
	TotalLevels          int        `json:"totalLevels"`
	CompletedCount       int        `json:"completedCount"`
	CompletionPercentage int        `json:"completionPercentage"`
	CurrentRank          model.Rank `json:"currentRank"`
	TotalXP              int        `json:"totalXP"`
	AvailableXP          int        `json:"availableXP"`
	BadgesCount          int        `json:"badgesCount"`
	LoginStreak          int        `json:"loginStreak"`
}

// Stats computes summary figures for s.
func (r Rules) Stats(s State) Stats {
	total := r.Catalog.Len()
	pct := 0
	if total > 0 {
		pct = int(math.Round(float64(len(s.CompletedLevels)) / float64(total) * 100))
	}
	return Stats{
		TotalLevels:          total,
		CompletedCount:       len(s.CompletedLevels),
		CompletionPercentage: pct,
		CurrentRank:          s.Profile.Rank,
		TotalXP:              s.Score,
		AvailableXP:          r.Catalog.AvailableXP(),
		BadgesCount:          len(s.Profile.Badges),
		LoginStreak:          s.Profile.LoginStreak,
	}
}

// Normalize repairs a state decoded from an untrusted cache: dedupes sets,
// restores the xp/score mirror and recomputes the level pointer and rank.
func (r Rules) Normalize(s State) State {
	return s.normalize(r.Catalog.MaxLevel())
}
