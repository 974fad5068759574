// Package session keeps the local game state, the client cache and the
// account service in step for one learner.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/and161185/hacking-zone/internal/catalog"
	"github.com/and161185/hacking-zone/internal/client"
	"github.com/and161185/hacking-zone/internal/errs"
	"github.com/and161185/hacking-zone/internal/localstore"
	"github.com/and161185/hacking-zone/internal/model"
	"github.com/and161185/hacking-zone/internal/progression"
	"go.uber.org/zap"
)

// API is the subset of the account service client a session uses.
type API interface {
	Signup(ctx context.Context, in client.SignupRequest) (client.AuthResult, error)
	Login(ctx context.Context, identifier, password string) (client.AuthResult, error)
	Me(ctx context.Context, token string) (model.PublicUser, error)
	UpdateProgress(ctx context.Context, token string, snap model.Snapshot) (model.PublicUser, error)
}

var _ API = (*client.Client)(nil)

// ErrNotAuthenticated is returned by Sync without a session token.
var ErrNotAuthenticated = errors.New("not signed in")

const pushTimeout = 15 * time.Second

// Session owns one learner's engine. Mutations apply locally first and are
// pushed to the account service in the background when signed in.
type Session struct {
	api    API
	store  *localstore.Store
	engine *progression.Engine
	log    *zap.Logger

	mu          sync.Mutex
	token       string
	user        *model.PublicUser
	lastSyncErr error

	saveMu sync.Mutex

	pushCh chan struct{}
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// New builds a session from the cached game state and starts the pusher.
// Call Close to stop it.
func New(api API, store *localstore.Store, cat *catalog.Catalog, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	st, _ := store.LoadGame()
	s := &Session{
		api:    api,
		store:  store,
		engine: progression.NewEngine(cat, st),
		log:    log,
		pushCh: make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Engine exposes the underlying engine for read-only queries.
func (s *Session) Engine() *progression.Engine { return s.engine }

// Start restores the signed-in session from the cache. With a cached token
// the server snapshot is merged in as the baseline; a rejected token is
// discarded. A network failure leaves the cached state in use and is
// returned and recorded as the last sync error.
func (s *Session) Start(ctx context.Context) error {
	tok, ok, err := s.store.Token()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	s.mu.Lock()
	s.token = tok
	if u, ok := s.store.LoadUser(); ok {
		s.user = &u
	}
	s.mu.Unlock()

	u, err := s.api.Me(ctx, tok)
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			s.log.Info("cached token rejected, signing out")
			return s.dropCredentials()
		}
		s.setSyncErr(err)
		return err
	}
	return s.adopt(u)
}

// Signup registers and signs in. Local progress made as a guest is kept and pushed.
func (s *Session) Signup(ctx context.Context, in client.SignupRequest) (model.PublicUser, error) {
	res, err := s.api.Signup(ctx, in)
	if err != nil {
		return model.PublicUser{}, err
	}
	return s.signedIn(res)
}

// Login signs in by username or email.
func (s *Session) Login(ctx context.Context, identifier, password string) (model.PublicUser, error) {
	res, err := s.api.Login(ctx, identifier, password)
	if err != nil {
		return model.PublicUser{}, err
	}
	return s.signedIn(res)
}

func (s *Session) signedIn(res client.AuthResult) (model.PublicUser, error) {
	if err := s.store.SetToken(res.Token); err != nil {
		return model.PublicUser{}, err
	}
	s.mu.Lock()
	s.token = res.Token
	s.mu.Unlock()
	if err := s.adopt(res.User); err != nil {
		return model.PublicUser{}, err
	}
	return res.User, nil
}

// Logout forgets the token, the profile and the game state. The server is not contacted.
func (s *Session) Logout() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.engine.Load(progression.NewState(""))
	if err := s.dropCredentials(); err != nil {
		return err
	}
	return s.store.Clear()
}

// CompleteLevel applies a level completion, caches the result and schedules a push.
func (s *Session) CompleteLevel(levelID, points int) (progression.Outcome, error) {
	_, out, err := s.engine.CompleteLevel(levelID, points)
	if err != nil || !out.Applied {
		return out, err
	}
	if err := s.persist(); err != nil {
		return out, err
	}
	s.schedule()
	return out, nil
}

// UnlockNextLevel advances the level pointer and returns it.
func (s *Session) UnlockNextLevel() (int, error) {
	lvl := s.engine.UnlockNextLevel()
	if err := s.persist(); err != nil {
		return lvl, err
	}
	s.schedule()
	return lvl, nil
}

// Reset restores the default game state and drops the cached game data.
// The account service keeps its record: server progress never regresses.
func (s *Session) Reset() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.engine.Reset()
	return s.store.Remove(localstore.KeyGameData)
}

// Sync pushes the current snapshot and waits for the answer.
func (s *Session) Sync(ctx context.Context) error {
	if s.Token() == "" {
		return ErrNotAuthenticated
	}
	return s.push(ctx)
}

// LastSyncError is the outcome of the most recent push or session restore; nil after success.
func (s *Session) LastSyncError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSyncErr
}

// Token returns the session token, empty for guests.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// User returns the last known server profile.
func (s *Session) User() (model.PublicUser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return model.PublicUser{}, false
	}
	return *s.user, true
}

// Close stops the pusher after a last pending push, if any.
func (s *Session) Close() {
	s.once.Do(func() { close(s.quit) })
	<-s.done
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.pushCh:
			s.backgroundPush()
		case <-s.quit:
			select {
			case <-s.pushCh:
				s.backgroundPush()
			default:
			}
			return
		}
	}
}

func (s *Session) backgroundPush() {
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if err := s.push(ctx); err != nil {
		s.log.Warn("progress sync failed", zap.Error(err))
	}
}

// schedule requests a push; requests made while one is pending coalesce.
func (s *Session) schedule() {
	if s.Token() == "" {
		return
	}
	select {
	case s.pushCh <- struct{}{}:
	default:
	}
}

func (s *Session) push(ctx context.Context) error {
	tok := s.Token()
	if tok == "" {
		return nil
	}
	u, err := s.api.UpdateProgress(ctx, tok, s.engine.Snapshot())
	if s.Token() != tok {
		// signed out or switched accounts meanwhile
		return nil
	}
	if err != nil {
		s.setSyncErr(err)
		if errors.Is(err, errs.ErrUnauthorized) {
			_ = s.dropCredentials()
		}
		return err
	}
	s.setSyncErr(nil)
	return s.adopt(u)
}

// adopt merges a server profile into the engine, caches both and schedules
// a push when the local state holds progress the server lacks.
func (s *Session) adopt(u model.PublicUser) error {
	s.setSyncErr(nil)
	server := u.Snapshot()
	s.engine.Merge(server)
	last := u.LastLogin
	s.engine.SetIdentity(u.Username, u.LoginStreak, &last)

	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()

	if err := s.store.SaveUser(u); err != nil {
		return err
	}
	if err := s.persist(); err != nil {
		return err
	}
	if ahead(s.engine.Snapshot(), server) {
		s.schedule()
	}
	return nil
}

func (s *Session) persist() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.store.SaveGame(s.engine.State())
}

// dropCredentials forgets the token and profile; cached game data stays.
func (s *Session) dropCredentials() error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()
	return errors.Join(s.store.Remove(localstore.KeyToken), s.store.Remove(localstore.KeyUser))
}

func (s *Session) setSyncErr(err error) {
	s.mu.Lock()
	s.lastSyncErr = err
	s.mu.Unlock()
}

// ahead reports whether local has progress missing from server.
func ahead(local, server model.Snapshot) bool {
	if local.XP > server.XP || local.Level > server.Level {
		return true
	}
	levels := make(map[int]bool, len(server.CompletedLevels))
	for _, l := range server.CompletedLevels {
		levels[l] = true
	}
	for _, l := range local.CompletedLevels {
		if !levels[l] {
			return true
		}
	}
	badges := make(map[string]bool, len(server.Badges))
	for _, b := range server.Badges {
		badges[b.ID] = true
	}
	for _, b := range local.Badges {
		if !badges[b.ID] {
			return true
		}
	}
	return false
}
