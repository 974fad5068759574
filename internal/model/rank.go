package model

import (
	"encoding/json"
	"fmt"
)

// Rank is a learner tier. Values are ordered: a greater Rank is a higher tier.
type Rank int

const (
	RankRecruit Rank = iota
	RankSpecialist
	RankCyberSentinel
)

// Thresholds on the current level pointer.
const (
	SpecialistLevel    = 3
	CyberSentinelLevel = 7
)

var rankNames = map[Rank]string{
	RankRecruit:       "Recruit",
	RankSpecialist:    "Specialist",
	RankCyberSentinel: "Cyber Sentinel",
}

// RankForLevel maps the current level pointer to a rank.
func RankForLevel(currentLevel int) Rank {
	switch {
	case currentLevel >= CyberSentinelLevel:
		return RankCyberSentinel
	case currentLevel >= SpecialistLevel:
		return RankSpecialist
	default:
		return RankRecruit
	}
}

func (r Rank) String() string {
	if s, ok := rankNames[r]; ok {
		return s
	}
	return fmt.Sprintf("Rank(%d)", int(r))
}

// ParseRank parses a display name. The legacy client default "Beginner" maps to Recruit.
func ParseRank(s string) (Rank, error) {
	switch s {
	case "", "Recruit", "Beginner":
		return RankRecruit, nil
	case "Specialist":
		return RankSpecialist, nil
	case "Cyber Sentinel":
		return RankCyberSentinel, nil
	}
	return RankRecruit, fmt.Errorf("unknown rank %q", s)
}

func (r Rank) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Rank) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseRank(s)
	if err != nil {
		return err
	}
	*r = v
	return nil
}
