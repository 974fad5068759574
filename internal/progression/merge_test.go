package progression

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/and161185/hacking-zone/internal/catalog"
	"github.com/and161185/hacking-zone/internal/model"
)

func TestMergeSnapshot_UnionAndMax(t *testing.T) {
	t.Parallel()

	base := model.Snapshot{
		XP:              250,
		Level:           3,
		CompletedLevels: []int{1, 2},
		Badges:          []model.Badge{{ID: "firewall_master", EarnedAt: t0.Add(time.Hour)}},
	}
	incoming := model.Snapshot{
		Rank:            model.RankCyberSentinel, // never trusted
		XP:              100,
		Level:           2,
		CompletedLevels: []int{1, 3},
		Badges: []model.Badge{
			{ID: "firewall_master", EarnedAt: t0},
			{ID: "network_scout", EarnedAt: t0.Add(2 * time.Hour)},
		},
	}

	got := MergeSnapshot(base, incoming, 10)
	if !reflect.DeepEqual(got.CompletedLevels, []int{1, 2, 3}) {
		t.Fatalf("completed=%v", got.CompletedLevels)
	}
	if got.XP != 250 {
		t.Fatalf("xp=%d", got.XP)
	}
	if got.Level != 4 || got.Rank != model.RankSpecialist {
		t.Fatalf("level=%d rank=%v", got.Level, got.Rank)
	}
	if len(got.Badges) != 2 || got.Badges[0].ID != "firewall_master" || !got.Badges[0].EarnedAt.Equal(t0) {
		t.Fatalf("badges=%+v", got.Badges)
	}
}

func TestMergeSnapshot_IdempotentAndCommutative(t *testing.T) {
	t.Parallel()

	a := model.Snapshot{XP: 400, Level: 4, CompletedLevels: []int{1, 2, 3}, Badges: []model.Badge{{ID: "a", EarnedAt: t0}}}
	b := model.Snapshot{XP: 100, Level: 2, CompletedLevels: []int{1}, Badges: []model.Badge{{ID: "b", EarnedAt: t0}}}

	ab := MergeSnapshot(a, b, 10)
	ba := MergeSnapshot(b, a, 10)
	if !reflect.DeepEqual(ab, ba) {
		t.Fatalf("not commutative:\n%+v\n%+v", ab, ba)
	}
	again := MergeSnapshot(ab, b, 10)
	if !reflect.DeepEqual(ab, again) {
		t.Fatalf("re-sending a snapshot changed the result:\n%+v\n%+v", ab, again)
	}
}

func TestMergeSnapshot_LevelBounded(t *testing.T) {
	t.Parallel()

	got := MergeSnapshot(model.Snapshot{}, model.Snapshot{Level: 500}, 10)
	if got.Level != 10 {
		t.Fatalf("level=%d, want 10", got.Level)
	}
	got = MergeSnapshot(model.Snapshot{}, model.Snapshot{XP: -10}, 10)
	if got.Level != 1 || got.XP != 0 {
		t.Fatalf("zero merge: %+v", got)
	}
}

func TestApplySnapshot_ServerBaseline(t *testing.T) {
	t.Parallel()

	r := rules()
	local := completeAll(t, r, NewState("guest"), 1)
	server := model.Snapshot{XP: 450, Level: 4, CompletedLevels: []int{1, 2, 3}}

	s := ApplySnapshot(local, server, 10)
	if s.Score != 450 || s.Profile.XP != 450 || s.CurrentLevel != 4 {
		t.Fatalf("score=%d level=%d", s.Score, s.CurrentLevel)
	}
	if !s.HasBadge("firewall_master") {
		t.Fatalf("local badge lost")
	}
	if s.Profile.Rank != model.RankSpecialist {
		t.Fatalf("rank=%v", s.Profile.Rank)
	}
}

func TestEngine_Playthrough(t *testing.T) {
	t.Parallel()

	e := NewEngine(catalog.Default(), NewState("alice")).WithClock(func() time.Time { return t0 })

	st, out, err := e.CompleteLevel(1, 100)
	if err != nil || !out.Applied {
		t.Fatalf("complete: %+v %v", out, err)
	}
	if st.Profile.XP != 100 || st.CurrentLevel != 2 || !st.HasBadge("firewall_master") {
		t.Fatalf("state=%+v", st)
	}

	st2, out, err := e.CompleteLevel(1, 100)
	if err != nil || out.Applied {
		t.Fatalf("repeat: %+v %v", out, err)
	}
	if !reflect.DeepEqual(st, st2) {
		t.Fatalf("repeat changed state")
	}

	if lp := e.LevelProgress(2); !lp.IsUnlocked || lp.IsCompleted {
		t.Fatalf("level 2 progress=%+v", lp)
	}
	if got := e.UnlockNextLevel(); got != 3 {
		t.Fatalf("unlock=%d", got)
	}
	if e.Stats().CurrentRank != model.RankSpecialist {
		t.Fatalf("rank after unlock")
	}

	st = e.Reset()
	if st.Profile.Username != "alice" || st.Score != 0 || len(st.Profile.Badges) != 0 {
		t.Fatalf("reset=%+v", st)
	}
}

func TestEngine_FailedTransitionKeepsState(t *testing.T) {
	t.Parallel()

	e := NewEngine(catalog.Default(), NewState(""))
	before := e.State()
	if _, _, err := e.CompleteLevel(5, 10); err == nil {
		t.Fatalf("want locked error")
	}
	if !reflect.DeepEqual(before, e.State()) {
		t.Fatalf("failed transition mutated state")
	}
}

func TestEngine_ConcurrentCompletionsApplyOnce(t *testing.T) {
	t.Parallel()

	e := NewEngine(catalog.Default(), NewState(""))
	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, out, err := e.CompleteLevel(1, 100)
			if err == nil && out.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if applied != 1 {
		t.Fatalf("applied=%d, want 1", applied)
	}
	if e.State().Score != 100 {
		t.Fatalf("score=%d", e.State().Score)
	}
}

func TestEngine_MergeAndIdentity(t *testing.T) {
	t.Parallel()

	e := NewEngine(catalog.Default(), NewState(""))
	last := t0
	e.SetIdentity("alice", 3, &last)
	st := e.Merge(model.Snapshot{XP: 250, Level: 3, CompletedLevels: []int{1, 2}})
	if st.Profile.Username != "alice" || st.Profile.LoginStreak != 3 || st.Score != 250 {
		t.Fatalf("state=%+v", st)
	}
	snap := e.Snapshot()
	if snap.XP != 250 || snap.Level != 3 || !reflect.DeepEqual(snap.CompletedLevels, []int{1, 2}) {
		t.Fatalf("snapshot=%+v", snap)
	}
}
