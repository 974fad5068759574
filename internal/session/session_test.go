package session

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/and161185/hacking-zone/internal/catalog"
	"github.com/and161185/hacking-zone/internal/client"
	pkgcrypto "github.com/and161185/hacking-zone/internal/crypto"
	"github.com/and161185/hacking-zone/internal/errs"
	"github.com/and161185/hacking-zone/internal/localstore"
	"github.com/and161185/hacking-zone/internal/model"
	"github.com/and161185/hacking-zone/internal/progression"
	"github.com/and161185/hacking-zone/internal/repository/memory"
	"github.com/and161185/hacking-zone/internal/server/httpserver"
	"github.com/and161185/hacking-zone/internal/service"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeAPI keeps one server-side account and merges pushes the way the service does.
type fakeAPI struct {
	mu      sync.Mutex
	user    model.PublicUser
	meErr   error
	pushErr error
	pushes  []model.Snapshot
}

func (f *fakeAPI) Signup(_ context.Context, in client.SignupRequest) (client.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user.Username = in.Username
	return client.AuthResult{Token: "tok", User: f.user}, nil
}

func (f *fakeAPI) Login(context.Context, string, string) (client.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return client.AuthResult{Token: "tok", User: f.user}, nil
}

func (f *fakeAPI) Me(context.Context, string) (model.PublicUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user, f.meErr
}

func (f *fakeAPI) UpdateProgress(_ context.Context, _ string, snap model.Snapshot) (model.PublicUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, snap)
	if f.pushErr != nil {
		return model.PublicUser{}, f.pushErr
	}
	merged := progression.MergeSnapshot(f.user.Snapshot(), snap, catalog.Default().MaxLevel())
	f.user.Rank, f.user.XP, f.user.Level = merged.Rank, merged.XP, merged.Level
	f.user.CompletedLevels, f.user.Badges = merged.CompletedLevels, merged.Badges
	return f.user, nil
}

func (f *fakeAPI) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

func newUser() model.PublicUser {
	return model.PublicUser{
		ID:              "7d3c0c1e-0000-4000-8000-000000000001",
		Username:        "alice",
		Rank:            model.RankRecruit,
		Level:           1,
		CompletedLevels: []int{},
		Badges:          []model.Badge{},
		LoginStreak:     2,
		LastLogin:       time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func newSession(t *testing.T, api API) (*Session, *localstore.Store) {
	t.Helper()
	store, err := localstore.New(afero.NewMemMapFs(), "/state")
	require.NoError(t, err)
	s := New(api, store, catalog.Default(), zaptest.NewLogger(t))
	t.Cleanup(s.Close)
	return s, store
}

func TestGuestPlayIsCachedAndNotPushed(t *testing.T) {
	api := &fakeAPI{user: newUser()}
	s, store := newSession(t, api)
	require.NoError(t, s.Start(context.Background()))

	out, err := s.CompleteLevel(1, 100)
	require.NoError(t, err)
	require.True(t, out.Applied)
	require.NotNil(t, out.Badge)

	again, err := s.CompleteLevel(1, 100)
	require.NoError(t, err)
	require.False(t, again.Applied)

	_, err = s.CompleteLevel(4, 0)
	require.ErrorIs(t, err, errs.ErrLevelLocked)

	cached, ok := store.LoadGame()
	require.True(t, ok)
	require.Equal(t, []int{1}, cached.CompletedLevels)
	require.Equal(t, 100, cached.Profile.XP)

	require.ErrorIs(t, s.Sync(context.Background()), ErrNotAuthenticated)
	s.Close()
	require.Equal(t, 0, api.pushCount())
}

func TestLoginMergesGuestProgressAndPushes(t *testing.T) {
	u := newUser()
	u.CompletedLevels = []int{1, 2}
	u.XP = 250
	u.Level = 3
	api := &fakeAPI{user: u}
	s, _ := newSession(t, api)

	_, err := s.CompleteLevel(1, 100)
	require.NoError(t, err)

	_, err = s.Login(context.Background(), "alice", "pass1x")
	require.NoError(t, err)
	st := s.Engine().State()
	require.Equal(t, []int{1, 2}, st.CompletedLevels)
	require.Equal(t, 250, st.Profile.XP)
	require.Equal(t, "alice", st.Profile.Username)
	require.Equal(t, 2, st.Profile.LoginStreak)

	// local firewall_master badge is missing on the server
	s.Close()
	require.Equal(t, 1, api.pushCount())
	require.Len(t, api.user.Badges, 1)
}

func TestCompleteLevelPushesInBackground(t *testing.T) {
	api := &fakeAPI{user: newUser()}
	s, _ := newSession(t, api)
	_, err := s.Login(context.Background(), "alice", "pass1x")
	require.NoError(t, err)

	_, err = s.CompleteLevel(1, 0)
	require.NoError(t, err)
	s.Close()

	require.GreaterOrEqual(t, api.pushCount(), 1)
	require.Equal(t, []int{1}, api.user.CompletedLevels)
	require.Equal(t, 100, api.user.XP)
	require.NoError(t, s.LastSyncError())
}

func TestPushFailureKeepsLocalState(t *testing.T) {
	api := &fakeAPI{user: newUser()}
	s, store := newSession(t, api)
	_, err := s.Login(context.Background(), "alice", "pass1x")
	require.NoError(t, err)

	api.mu.Lock()
	api.pushErr = errors.New("connection refused")
	api.mu.Unlock()

	_, err = s.CompleteLevel(1, 0)
	require.NoError(t, err)
	require.Error(t, s.Sync(context.Background()))
	require.Error(t, s.LastSyncError())

	st := s.Engine().State()
	require.Equal(t, []int{1}, st.CompletedLevels)
	cached, _ := store.LoadGame()
	require.Equal(t, []int{1}, cached.CompletedLevels)
	require.Equal(t, "tok", s.Token())

	api.mu.Lock()
	api.pushErr = nil
	api.mu.Unlock()
	s.Close()
	require.NoError(t, s.Sync(context.Background()))
	require.NoError(t, s.LastSyncError())
	require.Equal(t, []int{1}, api.user.CompletedLevels)
}

func TestStartWithRejectedTokenSignsOut(t *testing.T) {
	api := &fakeAPI{user: newUser(), meErr: &client.APIError{Status: 401, Code: "UNAUTHORIZED"}}
	store, err := localstore.New(afero.NewMemMapFs(), "/state")
	require.NoError(t, err)
	require.NoError(t, store.SetToken("stale"))
	require.NoError(t, store.SaveUser(newUser()))
	game := progression.NewState("alice")
	game.CompletedLevels = []int{1}
	game.Score, game.Profile.XP = 100, 100
	require.NoError(t, store.SaveGame(game))

	s := New(api, store, catalog.Default(), zaptest.NewLogger(t))
	defer s.Close()
	require.NoError(t, s.Start(context.Background()))
	require.Empty(t, s.Token())
	_, ok := s.User()
	require.False(t, ok)

	_, ok, err = store.Token()
	require.NoError(t, err)
	require.False(t, ok)
	cached, ok := store.LoadGame()
	require.True(t, ok)
	require.Equal(t, []int{1}, cached.CompletedLevels)
}

func TestStartOfflineUsesCache(t *testing.T) {
	netErr := errors.New("dial tcp: connection refused")
	api := &fakeAPI{user: newUser(), meErr: netErr}
	store, err := localstore.New(afero.NewMemMapFs(), "/state")
	require.NoError(t, err)
	require.NoError(t, store.SetToken("tok"))
	require.NoError(t, store.SaveUser(newUser()))

	s := New(api, store, catalog.Default(), zaptest.NewLogger(t))
	defer s.Close()
	require.ErrorIs(t, s.Start(context.Background()), netErr)
	require.Equal(t, "tok", s.Token())
	u, ok := s.User()
	require.True(t, ok)
	require.Equal(t, "alice", u.Username)
	require.ErrorIs(t, s.LastSyncError(), netErr)
}

func TestResetAndLogout(t *testing.T) {
	api := &fakeAPI{user: newUser()}
	s, store := newSession(t, api)
	_, err := s.Login(context.Background(), "alice", "pass1x")
	require.NoError(t, err)
	_, err = s.CompleteLevel(1, 0)
	require.NoError(t, err)
	lvl, err := s.UnlockNextLevel()
	require.NoError(t, err)
	require.Equal(t, 3, lvl)
	s.Close()

	require.NoError(t, s.Reset())
	st := s.Engine().State()
	require.Empty(t, st.CompletedLevels)
	require.Equal(t, "alice", st.Profile.Username)
	_, ok := store.LoadGame()
	require.False(t, ok)

	require.NoError(t, s.Logout())
	require.Empty(t, s.Token())
	require.Equal(t, progression.DefaultUsername, s.Engine().State().Profile.Username)
	_, ok, err = store.Token()
	require.NoError(t, err)
	require.False(t, ok)
}

// Saving through the session and reloading from the real service yields the same progress.
func TestRoundTripAgainstService(t *testing.T) {
	auth := service.NewAuthService(memory.New(), []byte("secret"), time.Hour, nil,
		service.WithPasswordPolicy(service.DefaultMinPasswordLen, pkgcrypto.Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}))
	srv := httptest.NewServer(httpserver.New(auth, zaptest.NewLogger(t), httpserver.Options{}).Routes())
	defer srv.Close()
	api := client.New(srv.URL, client.WithHTTPClient(srv.Client()))

	s, store := newSession(t, api)
	_, err := s.Signup(context.Background(), client.SignupRequest{Username: "alice", Email: "alice@x.com", Password: "pass1x", ConfirmPassword: "pass1x"})
	require.NoError(t, err)
	for _, id := range []int{1, 2, 3} {
		_, err := s.CompleteLevel(id, 0)
		require.NoError(t, err)
	}
	require.NoError(t, s.Sync(context.Background()))
	want := s.Engine().Snapshot()
	s.Close()

	// a fresh device with only the token
	store2, err := localstore.New(afero.NewMemMapFs(), "/other")
	require.NoError(t, err)
	tok, _, err := store.Token()
	require.NoError(t, err)
	require.NoError(t, store2.SetToken(tok))
	s2 := New(api, store2, catalog.Default(), zaptest.NewLogger(t))
	defer s2.Close()
	require.NoError(t, s2.Start(context.Background()))

	got := s2.Engine().Snapshot()
	require.Equal(t, want.CompletedLevels, got.CompletedLevels)
	require.Equal(t, want.XP, got.XP)
	require.Equal(t, 450, got.XP)
	require.ElementsMatch(t, badgeIDs(want.Badges), badgeIDs(got.Badges))
	require.Equal(t, model.RankSpecialist, got.Rank)
}

func badgeIDs(bs []model.Badge) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.ID
	}
	return out
}
