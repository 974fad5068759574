package progression

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/and161185/hacking-zone/internal/catalog"
	"github.com/and161185/hacking-zone/internal/errs"
	"github.com/and161185/hacking-zone/internal/model"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func rules() Rules { return Rules{Catalog: catalog.Default()} }

// completeAll completes ids in order, failing the test on any error.
func completeAll(t *testing.T, r Rules, s State, ids ...int) State {
	t.Helper()
	for _, id := range ids {
		var err error
		s, _, err = r.CompleteLevel(s, id, 0, t0)
		if err != nil {
			t.Fatalf("CompleteLevel(%d): %v", id, err)
		}
	}
	return s
}

func TestCompleteLevel_FirstCompletion(t *testing.T) {
	t.Parallel()

	r := rules()
	s := NewState("alice")

	next, out, err := r.CompleteLevel(s, 1, 100, t0)
	if err != nil {
		t.Fatalf("CompleteLevel: %v", err)
	}
	if !out.Applied || out.XPGained != 100 {
		t.Fatalf("bad outcome: %+v", out)
	}
	if !reflect.DeepEqual(next.CompletedLevels, []int{1}) {
		t.Fatalf("completed=%v", next.CompletedLevels)
	}
	if next.Score != 100 || next.Profile.XP != 100 || next.CurrentLevel != 2 {
		t.Fatalf("score=%d xp=%d level=%d", next.Score, next.Profile.XP, next.CurrentLevel)
	}
	if next.Profile.Rank != model.RankRecruit {
		t.Fatalf("rank=%v", next.Profile.Rank)
	}
	if out.Badge == nil || out.Badge.ID != "firewall_master" || !next.HasBadge("firewall_master") {
		t.Fatalf("badge not awarded: %+v", out.Badge)
	}
	if !out.Badge.EarnedAt.Equal(t0) {
		t.Fatalf("earnedAt=%v", out.Badge.EarnedAt)
	}
	if len(s.CompletedLevels) != 0 || s.Score != 0 {
		t.Fatalf("input state mutated: %+v", s)
	}
}

func TestCompleteLevel_Idempotent(t *testing.T) {
	t.Parallel()

	r := rules()
	once, _, err := r.CompleteLevel(NewState("alice"), 1, 100, t0)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	twice, out, err := r.CompleteLevel(once, 1, 100, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if out.Applied || out.Badge != nil {
		t.Fatalf("second completion must be a no-op: %+v", out)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("state changed on repeat:\n once=%+v\ntwice=%+v", once, twice)
	}
}

func TestCompleteLevel_DefaultPointsFromCatalog(t *testing.T) {
	t.Parallel()

	r := rules()
	s := completeAll(t, r, NewState(""), 1, 2)
	if s.Score != 250 {
		t.Fatalf("score=%d, want 250", s.Score)
	}
}

func TestCompleteLevel_Rejections(t *testing.T) {
	t.Parallel()

	r := rules()
	s := NewState("")

	if _, _, err := r.CompleteLevel(s, 42, 10, t0); !errors.Is(err, errs.ErrUnknownLevel) {
		t.Fatalf("want ErrUnknownLevel, got %v", err)
	}
	if _, _, err := r.CompleteLevel(s, 3, 10, t0); !errors.Is(err, errs.ErrLevelLocked) {
		t.Fatalf("want ErrLevelLocked, got %v", err)
	}
	if _, _, err := r.CompleteLevel(s, 3, 10, t0); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("locked level is a validation error, got %v", err)
	}
}

func TestRankThresholds(t *testing.T) {
	t.Parallel()

	r := rules()
	s := completeAll(t, r, NewState(""), 1)
	if s.Profile.Rank != model.RankRecruit {
		t.Fatalf("after 1: %v", s.Profile.Rank)
	}
	s = completeAll(t, r, s, 2)
	if s.CurrentLevel != 3 || s.Profile.Rank != model.RankSpecialist {
		t.Fatalf("after 2: level=%d rank=%v", s.CurrentLevel, s.Profile.Rank)
	}
	s = completeAll(t, r, s, 3, 4, 5, 6)
	if s.CurrentLevel != 7 || s.Profile.Rank != model.RankCyberSentinel {
		t.Fatalf("after 6: level=%d rank=%v", s.CurrentLevel, s.Profile.Rank)
	}
}

// Every reachable state keeps rank == RankForLevel(CurrentLevel) and xp never decreases.
func TestInvariants_RankConsistencyAndMonotonicXP(t *testing.T) {
	t.Parallel()

	r := rules()
	events := []struct {
		kind  string
		level int
	}{
		{"complete", 1}, {"complete", 1}, {"complete", 3}, {"unlock", 0},
		{"complete", 2}, {"complete", 3}, {"unlock", 0}, {"complete", 2},
		{"complete", 4}, {"complete", 5}, {"complete", 99}, {"complete", 6},
		{"unlock", 0}, {"unlock", 0}, {"unlock", 0}, {"unlock", 0}, {"unlock", 0},
		{"complete", 7}, {"complete", 8}, {"complete", 9}, {"complete", 10},
		{"unlock", 0}, {"complete", 10},
	}

	s := NewState("")
	for i, ev := range events {
		prevXP := s.Profile.XP
		switch ev.kind {
		case "complete":
			next, _, err := r.CompleteLevel(s, ev.level, 0, t0)
			if err == nil {
				s = next
			}
		case "unlock":
			s = r.UnlockNextLevel(s)
		}
		if s.Profile.XP < prevXP {
			t.Fatalf("event %d: xp decreased %d -> %d", i, prevXP, s.Profile.XP)
		}
		if s.Profile.XP != s.Score {
			t.Fatalf("event %d: xp %d != score %d", i, s.Profile.XP, s.Score)
		}
		if want := model.RankForLevel(s.CurrentLevel); s.Profile.Rank != want {
			t.Fatalf("event %d: rank %v, want %v for level %d", i, s.Profile.Rank, want, s.CurrentLevel)
		}
	}
	if s.Score != catalog.Default().AvailableXP() {
		t.Fatalf("final score=%d, want %d", s.Score, catalog.Default().AvailableXP())
	}
	if len(s.Profile.Badges) != 3 {
		t.Fatalf("badges=%d, want 3", len(s.Profile.Badges))
	}
}

func TestLevelProgress_PrerequisiteGating(t *testing.T) {
	t.Parallel()

	r := rules()
	cat := catalog.Default()
	s := completeAll(t, r, NewState(""), 1, 2, 3)

	for _, l := range cat.Levels() {
		lp := r.LevelProgress(s, l.ID)
		want := true
		for _, p := range l.Prerequisites {
			if !s.IsCompleted(p) {
				want = false
			}
		}
		if lp.IsUnlocked != want || lp.CanPlay != want {
			t.Fatalf("level %d: unlocked=%v, want %v", l.ID, lp.IsUnlocked, want)
		}
		if lp.IsCompleted != s.IsCompleted(l.ID) {
			t.Fatalf("level %d: completed mismatch", l.ID)
		}
	}

	// The level pointer does not unlock anything on its own.
	s = r.UnlockNextLevel(r.UnlockNextLevel(s))
	if r.LevelProgress(s, 5).IsUnlocked {
		t.Fatalf("level 5 must stay locked without level 4")
	}
}

func TestUnlockNextLevel_Bounded(t *testing.T) {
	t.Parallel()

	r := rules()
	s := NewState("")
	for i := 0; i < 50; i++ {
		s = r.UnlockNextLevel(s)
	}
	if s.CurrentLevel != 10 {
		t.Fatalf("level=%d, want 10", s.CurrentLevel)
	}
	if s.Profile.Rank != model.RankCyberSentinel {
		t.Fatalf("rank=%v", s.Profile.Rank)
	}
}

// Completing, unlocking and merging all stop the pointer at the last level.
func TestLevelPointer_SameBoundEverywhere(t *testing.T) {
	t.Parallel()

	r := rules()
	maxLevel := catalog.Default().MaxLevel()
	done := completeAll(t, r, NewState(""), 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	if done.CurrentLevel != maxLevel {
		t.Fatalf("after last level: %d, want %d", done.CurrentLevel, maxLevel)
	}
	if got := r.UnlockNextLevel(done).CurrentLevel; got != maxLevel {
		t.Fatalf("unlock past last: %d", got)
	}
	merged := MergeSnapshot(done.Snapshot(), model.Snapshot{Level: maxLevel + 1}, maxLevel)
	if merged.Level != maxLevel {
		t.Fatalf("merged level=%d", merged.Level)
	}
}

func TestReset_KeepsUsername(t *testing.T) {
	t.Parallel()

	r := rules()
	s := completeAll(t, r, NewState("neo"), 1, 2, 3)
	s = r.Reset(s)
	want := NewState("neo")
	if !reflect.DeepEqual(s, want) {
		t.Fatalf("reset=%+v, want %+v", s, want)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	r := rules()
	s := completeAll(t, r, NewState(""), 1, 2, 3)
	st := r.Stats(s)
	if st.TotalLevels != 10 || st.CompletedCount != 3 || st.CompletionPercentage != 30 {
		t.Fatalf("stats=%+v", st)
	}
	if st.TotalXP != 450 || st.BadgesCount != 1 || st.CurrentRank != model.RankSpecialist {
		t.Fatalf("stats=%+v", st)
	}
}

func TestNormalize_RepairsCache(t *testing.T) {
	t.Parallel()

	r := rules()
	dirty := State{
		CurrentLevel:    0,
		CompletedLevels: []int{2, 1, 2},
		Score:           -5,
		Profile: Profile{
			Rank: model.RankCyberSentinel,
			XP:   250,
			Badges: []model.Badge{
				{ID: "firewall_master", EarnedAt: t0.Add(time.Hour)},
				{ID: "firewall_master", EarnedAt: t0},
			},
		},
	}
	s := r.Normalize(dirty)
	if !reflect.DeepEqual(s.CompletedLevels, []int{1, 2}) {
		t.Fatalf("completed=%v", s.CompletedLevels)
	}
	if s.Score != 250 || s.Profile.XP != 250 {
		t.Fatalf("score=%d xp=%d", s.Score, s.Profile.XP)
	}
	if s.CurrentLevel != 3 || s.Profile.Rank != model.RankSpecialist {
		t.Fatalf("level=%d rank=%v", s.CurrentLevel, s.Profile.Rank)
	}
	if len(s.Profile.Badges) != 1 || !s.Profile.Badges[0].EarnedAt.Equal(t0) {
		t.Fatalf("badges=%+v", s.Profile.Badges)
	}
	if s.Profile.Username != DefaultUsername {
		t.Fatalf("username=%q", s.Profile.Username)
	}
}

func TestAddBadgeAndUpdateProfile(t *testing.T) {
	t.Parallel()

	s := NewState("")
	b := model.Badge{ID: "custom", Name: "Custom", EarnedAt: t0}
	s = AddBadge(s, b)
	s = AddBadge(s, model.Badge{ID: "custom", Name: "Other", EarnedAt: t0.Add(time.Hour)})
	if len(s.Profile.Badges) != 1 || s.Profile.Badges[0].Name != "Custom" {
		t.Fatalf("badges=%+v", s.Profile.Badges)
	}

	name := "trinity"
	s = UpdateProfile(s, ProfilePatch{Username: &name})
	if s.Profile.Username != "trinity" {
		t.Fatalf("username=%q", s.Profile.Username)
	}
	empty := ""
	if got := UpdateProfile(s, ProfilePatch{Username: &empty}); got.Profile.Username != "trinity" {
		t.Fatalf("empty username must be ignored")
	}
}
