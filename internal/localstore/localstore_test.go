package localstore

import (
	"testing"
	"time"

	"github.com/and161185/hacking-zone/internal/model"
	"github.com/and161185/hacking-zone/internal/progression"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := New(fs, "/home/u/.config/hacking-zone")
	require.NoError(t, err)
	return s, fs
}

func TestTokenAndClear(t *testing.T) {
	s, fs := newStore(t)

	_, ok, err := s.Token()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SetToken("abc.def.ghi"))
	tok, ok, err := s.Token()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "abc.def.ghi", tok)

	exists, err := afero.Exists(fs, "/home/u/.config/hacking-zone/hackingZoneToken")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, s.SaveUser(model.PublicUser{Username: "alice"}))
	require.NoError(t, s.SaveGame(progression.NewState("alice")))
	require.NoError(t, s.Clear())
	for _, k := range []string{KeyToken, KeyUser, KeyGameData} {
		_, ok, err := s.Get(k)
		require.NoError(t, err)
		require.False(t, ok, k)
	}
	require.NoError(t, s.Clear())
}

func TestGameRoundTrip(t *testing.T) {
	s, _ := newStore(t)

	st, ok := s.LoadGame()
	require.False(t, ok)
	require.Equal(t, progression.NewState(""), st)

	last := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	want := progression.NewState("alice")
	want.CurrentLevel = 3
	want.CompletedLevels = []int{1, 2}
	want.Score = 250
	want.Profile.XP = 250
	want.Profile.Rank = model.RankSpecialist
	want.Profile.Badges = []model.Badge{{ID: "firewall_master", Name: "Firewall Master", EarnedAt: last}}
	want.Profile.LastLogin = &last
	require.NoError(t, s.SaveGame(want))

	got, ok := s.LoadGame()
	require.True(t, ok)
	require.Equal(t, want.CompletedLevels, got.CompletedLevels)
	require.Equal(t, want.Profile.Rank, got.Profile.Rank)
	require.True(t, got.Profile.LastLogin.Equal(last))
	require.Equal(t, "firewall_master", got.Profile.Badges[0].ID)
}

func TestCorruptEntriesAreDiscarded(t *testing.T) {
	s, _ := newStore(t)

	require.NoError(t, s.Set(KeyGameData, "{not json"))
	st, ok := s.LoadGame()
	require.False(t, ok)
	require.Equal(t, 1, st.CurrentLevel)
	_, present, err := s.Get(KeyGameData)
	require.NoError(t, err)
	require.False(t, present)

	require.NoError(t, s.Set(KeyGameData, `{"userProfile":{"rank":"Overlord"}}`))
	_, ok = s.LoadGame()
	require.False(t, ok)

	require.NoError(t, s.Set(KeyUser, "[]"))
	_, ok = s.LoadUser()
	require.False(t, ok)
	_, present, err = s.Get(KeyUser)
	require.NoError(t, err)
	require.False(t, present)
}
