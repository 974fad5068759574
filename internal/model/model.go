// Package model defines domain entities used by services and repositories.
package model

import (
	"sort"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens carries an issued session token.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Badge is an achievement attached to an account at most once per ID.
type Badge struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon,omitempty"`
	EarnedAt    time.Time `json:"earnedAt"`
}

// Snapshot is the progression subset exchanged between client and server.
// It is also the body of a progress update: merging treats zero values as no-ops.
type Snapshot struct {
	Rank            Rank    `json:"rank"`
	XP              int     `json:"xp"`
	Level           int     `json:"level"`
	CompletedLevels []int   `json:"completedLevels"`
	Badges          []Badge `json:"badges"`
}

// Account represents a registered learner. PwdHash never leaves the server.
type Account struct {
	ID          uuid.UUID // PK
	Seq         int64     // creation order, used for deterministic tie-breaks
	Username    string    // unique, case-sensitive
	Email       string    // unique, case-sensitive
	PwdHash     string    // PHC-encoded argon2id
	Progress    Snapshot
	LastLogin   time.Time
	LoginStreak int
	CreatedAt   time.Time
}

// NewAccountSnapshot returns the progression of a freshly registered account.
func NewAccountSnapshot() Snapshot {
	return Snapshot{
		Rank:            RankRecruit,
		Level:           1,
		CompletedLevels: []int{},
		Badges:          []Badge{},
	}
}

// PublicUser is the wire representation of an account. It has no credential field.
type PublicUser struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	Rank            Rank      `json:"rank"`
	XP              int       `json:"xp"`
	Level           int       `json:"level"`
	CompletedLevels []int     `json:"completedLevels"`
	Badges          []Badge   `json:"badges"`
	LastLogin       time.Time `json:"lastLogin"`
	LoginStreak     int       `json:"loginStreak"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Public returns the credential-free representation of a.
func (a Account) Public() PublicUser {
	levels := append([]int{}, a.Progress.CompletedLevels...)
	sort.Ints(levels)
	badges := append([]Badge{}, a.Progress.Badges...)
	return PublicUser{
		ID:              a.ID.String(),
		Username:        a.Username,
		Email:           a.Email,
		Rank:            a.Progress.Rank,
		XP:              a.Progress.XP,
		Level:           a.Progress.Level,
		CompletedLevels: levels,
		Badges:          badges,
		LastLogin:       a.LastLogin,
		LoginStreak:     a.LoginStreak,
		CreatedAt:       a.CreatedAt,
	}
}

// Snapshot extracts the progression part of a public user.
func (u PublicUser) Snapshot() Snapshot {
	return Snapshot{
		Rank:            u.Rank,
		XP:              u.XP,
		Level:           u.Level,
		CompletedLevels: append([]int{}, u.CompletedLevels...),
		Badges:          append([]Badge{}, u.Badges...),
	}
}

// AccountSummary is the leaderboard projection of an account.
type AccountSummary struct {
	ID              string `json:"id"`
	Seq             int64  `json:"-"`
	Username        string `json:"username"`
	Rank            Rank   `json:"rank"`
	XP              int    `json:"xp"`
	LevelsCompleted int    `json:"levelsCompleted"`
	Badges          int    `json:"badges"`
	Streak          int    `json:"streak"`
}

// Summary projects a for leaderboards.
func (a Account) Summary() AccountSummary {
	return AccountSummary{
		ID:              a.ID.String(),
		Seq:             a.Seq,
		Username:        a.Username,
		Rank:            a.Progress.Rank,
		XP:              a.Progress.XP,
		LevelsCompleted: len(a.Progress.CompletedLevels),
		Badges:          len(a.Progress.Badges),
		Streak:          a.LoginStreak,
	}
}

// LeaderboardEntry is a ranked summary; Position starts at 1.
type LeaderboardEntry struct {
	Position int `json:"position"`
	AccountSummary
}
