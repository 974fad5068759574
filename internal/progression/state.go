// Package progression implements the level-completion state machine and the
// snapshot merge policy shared by the client and the account service.
package progression

import (
	"sort"
	"time"

	"github.com/and161185/hacking-zone/internal/model"
)

// DefaultUsername is the display name of an anonymous learner.
const DefaultUsername = "Hacker"

// Profile is the learner-facing part of the state.
type Profile struct {
	Username    string        `json:"username"`
	Rank        model.Rank    `json:"rank"`
	XP          int           `json:"xp"`
	Badges      []model.Badge `json:"badges"`
	LoginStreak int           `json:"loginStreak"`
	LastLogin   *time.Time    `json:"lastLogin"`
}

// State is the in-session game state. Its JSON form is the cached game data.
type State struct {
	CurrentLevel    int     `json:"currentLevel"`
	CompletedLevels []int   `json:"completedLevels"`
	Score           int     `json:"score"`
	Profile         Profile `json:"userProfile"`
}

// NewState returns the initial state for a learner.
func NewState(username string) State {
	if username == "" {
		username = DefaultUsername
	}
	return State{
		CurrentLevel:    1,
		CompletedLevels: []int{},
		Profile: Profile{
			Username: username,
			Rank:     model.RankRecruit,
			Badges:   []model.Badge{},
		},
	}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	c := s
	c.CompletedLevels = append([]int{}, s.CompletedLevels...)
	c.Profile.Badges = append([]model.Badge{}, s.Profile.Badges...)
	if s.Profile.LastLogin != nil {
		t := *s.Profile.LastLogin
		c.Profile.LastLogin = &t
	}
	return c
}

// IsCompleted reports whether levelID is in the completed set.
func (s State) IsCompleted(levelID int) bool {
	for _, id := range s.CompletedLevels {
		if id == levelID {
			return true
		}
	}
	return false
}

func (s State) completedSet() map[int]bool {
	m := make(map[int]bool, len(s.CompletedLevels))
	for _, id := range s.CompletedLevels {
		m[id] = true
	}
	return m
}

// HasBadge reports whether a badge with id is already earned.
func (s State) HasBadge(id string) bool {
	for _, b := range s.Profile.Badges {
		if b.ID == id {
			return true
		}
	}
	return false
}

// Snapshot extracts the synchronizable subset of s.
func (s State) Snapshot() model.Snapshot {
	return model.Snapshot{
		Rank:            s.Profile.Rank,
		XP:              s.Profile.XP,
		Level:           s.CurrentLevel,
		CompletedLevels: append([]int{}, s.CompletedLevels...),
		Badges:          append([]model.Badge{}, s.Profile.Badges...),
	}
}

// normalize repairs a state decoded from an untrusted cache.
func (s State) normalize(maxLevel int) State {
	s = s.Clone()
	if s.CompletedLevels == nil {
		s.CompletedLevels = []int{}
	}
	if s.Profile.Badges == nil {
		s.Profile.Badges = []model.Badge{}
	}
	if s.Profile.Username == "" {
		s.Profile.Username = DefaultUsername
	}
	s.CompletedLevels = uniqueSorted(s.CompletedLevels)
	s.Profile.Badges = unionBadges(s.Profile.Badges, nil)
	if s.Score < 0 {
		s.Score = 0
	}
	if s.Profile.XP > s.Score {
		s.Score = s.Profile.XP
	}
	s.Profile.XP = s.Score
	s.CurrentLevel = boundLevel(max(s.CurrentLevel, nextAfter(s.CompletedLevels)), maxLevel)
	s.Profile.Rank = model.RankForLevel(s.CurrentLevel)
	return s
}

func uniqueSorted(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

// nextAfter is the level pointer implied by a completed set.
func nextAfter(completed []int) int {
	n := 1
	for _, id := range completed {
		if id+1 > n {
			n = id + 1
		}
	}
	return n
}

// boundLevel clamps a level pointer to [1, maxLevel].
func boundLevel(level, maxLevel int) int {
	if level < 1 {
		return 1
	}
	if maxLevel > 0 && level > maxLevel {
		return maxLevel
	}
	return level
}
