// Package catalog holds the static level and badge definitions.
package catalog

import (
	"fmt"
	"sort"
)

// Difficulty tiers, ordered.
type Difficulty int

const (
	Easy Difficulty = iota + 1
	Medium
	Hard
	Expert
)

func (d Difficulty) String() string {
	switch d {
	case Easy:
		return "Easy"
	case Medium:
		return "Medium"
	case Hard:
		return "Hard"
	case Expert:
		return "Expert"
	}
	return fmt.Sprintf("Difficulty(%d)", int(d))
}

func (d Difficulty) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Difficulty) UnmarshalText(b []byte) error {
	v, ok := ParseDifficulty(string(b))
	if !ok {
		return fmt.Errorf("unknown difficulty %q", b)
	}
	*d = v
	return nil
}

// ParseDifficulty parses a tier name.
func ParseDifficulty(s string) (Difficulty, bool) {
	for _, d := range []Difficulty{Easy, Medium, Hard, Expert} {
		if d.String() == s {
			return d, true
		}
	}
	return 0, false
}

// Level is an immutable challenge definition.
type Level struct {
	ID            int        `json:"id"`
	Name          string     `json:"name"`
	Concept       string     `json:"concept"`
	XP            int        `json:"xp"`
	Badge         string     `json:"badge,omitempty"`
	Duration      string     `json:"duration"`
	Difficulty    Difficulty `json:"difficulty"`
	Prerequisites []int      `json:"prerequisites"`
}

// BadgeDef describes a badge awarded on first completion of a level.
type BadgeDef struct {
	ID          string
	Name        string
	Description string
	Icon        string
}

// Catalog is a validated set of levels plus the completion badge mapping.
type Catalog struct {
	levels []Level
	byID   map[int]int
	badges map[int]BadgeDef
}

// New validates levels and badges and builds a Catalog.
func New(levels []Level, badges map[int]BadgeDef) (*Catalog, error) {
	c := &Catalog{
		levels: make([]Level, len(levels)),
		byID:   make(map[int]int, len(levels)),
		badges: make(map[int]BadgeDef, len(badges)),
	}
	copy(c.levels, levels)
	sort.Slice(c.levels, func(i, j int) bool { return c.levels[i].ID < c.levels[j].ID })

	for i, l := range c.levels {
		if l.ID <= 0 {
			return nil, fmt.Errorf("level id %d: must be positive", l.ID)
		}
		if _, dup := c.byID[l.ID]; dup {
			return nil, fmt.Errorf("level id %d: duplicate", l.ID)
		}
		c.byID[l.ID] = i
	}
	for _, l := range c.levels {
		for _, p := range l.Prerequisites {
			if p == l.ID {
				return nil, fmt.Errorf("level %d: requires itself", l.ID)
			}
			if _, ok := c.byID[p]; !ok {
				return nil, fmt.Errorf("level %d: unknown prerequisite %d", l.ID, p)
			}
		}
	}
	for id, b := range badges {
		if _, ok := c.byID[id]; !ok {
			return nil, fmt.Errorf("badge %q: unknown level %d", b.ID, id)
		}
		c.badges[id] = b
	}
	return c, nil
}

// Level returns the level with the given id.
func (c *Catalog) Level(id int) (Level, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Level{}, false
	}
	return c.levels[i], true
}

// Levels returns all levels ordered by id.
func (c *Catalog) Levels() []Level {
	out := make([]Level, len(c.levels))
	copy(out, c.levels)
	return out
}

// Len is the number of levels.
func (c *Catalog) Len() int { return len(c.levels) }

// MaxLevel is the highest level id.
func (c *Catalog) MaxLevel() int {
	if len(c.levels) == 0 {
		return 0
	}
	return c.levels[len(c.levels)-1].ID
}

// BadgeFor returns the badge awarded for completing levelID, if any.
func (c *Catalog) BadgeFor(levelID int) (BadgeDef, bool) {
	b, ok := c.badges[levelID]
	return b, ok
}

// Unlocked reports whether every prerequisite of levelID is in completed.
// Unknown levels are never unlocked.
func (c *Catalog) Unlocked(levelID int, completed map[int]bool) bool {
	l, ok := c.Level(levelID)
	if !ok {
		return false
	}
	for _, p := range l.Prerequisites {
		if !completed[p] {
			return false
		}
	}
	return true
}

// AvailableXP is the sum of rewards over all levels.
func (c *Catalog) AvailableXP() int {
	sum := 0
	for _, l := range c.levels {
		sum += l.XP
	}
	return sum
}

// EarnedXP sums catalog rewards for the given completed ids, ignoring unknown ids.
func (c *Catalog) EarnedXP(completed []int) int {
	seen := make(map[int]bool, len(completed))
	sum := 0
	for _, id := range completed {
		if seen[id] {
			continue
		}
		seen[id] = true
		if l, ok := c.Level(id); ok {
			sum += l.XP
		}
	}
	return sum
}

// Filter returns the levels of one difficulty tier; zero means all.
func (c *Catalog) Filter(d Difficulty) []Level {
	out := make([]Level, 0, len(c.levels))
	for _, l := range c.levels {
		if d == 0 || l.Difficulty == d {
			out = append(out, l)
		}
	}
	return out
}

// SortKey orders level listings.
type SortKey string

const (
	SortByID         SortKey = "id"
	SortByDifficulty SortKey = "difficulty"
	SortByXP         SortKey = "xp"
)

// Sort orders levels in place: difficulty ascending, xp descending, otherwise by id.
func Sort(levels []Level, key SortKey) {
	sort.SliceStable(levels, func(i, j int) bool {
		switch key {
		case SortByDifficulty:
			return levels[i].Difficulty < levels[j].Difficulty
		case SortByXP:
			return levels[i].XP > levels[j].XP
		default:
			return levels[i].ID < levels[j].ID
		}
	})
}
