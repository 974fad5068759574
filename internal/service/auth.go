// Package service contains the account service: registration, login,
// token verification and server-side progress merging.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/and161185/hacking-zone/internal/catalog"
	pkgcrypto "github.com/and161185/hacking-zone/internal/crypto"
	"github.com/and161185/hacking-zone/internal/errs"
	"github.com/and161185/hacking-zone/internal/leaderboard"
	"github.com/and161185/hacking-zone/internal/limiter"
	"github.com/and161185/hacking-zone/internal/model"
	"github.com/and161185/hacking-zone/internal/progression"
	"github.com/and161185/hacking-zone/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultMinPasswordLen is the minimum accepted password length in characters.
const DefaultMinPasswordLen = 6

// RegisterInput is the signup request.
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// AuthService defines account operations.
type AuthService interface {
	// Register creates an account and signs the caller in.
	Register(ctx context.Context, in RegisterInput) (model.Tokens, model.Account, error)
	// LoginWithIP applies rate-limiting, authenticates by username or email and updates the streak.
	LoginWithIP(ctx context.Context, identifier, password, ip string) (model.Tokens, model.Account, error)
	// Authenticate resolves a bearer token to its account.
	Authenticate(ctx context.Context, token string) (model.Account, error)
	// UpdateProgress merges a snapshot into the stored progression.
	UpdateProgress(ctx context.Context, id uuid.UUID, snap model.Snapshot) (model.Account, error)
	// Count returns the number of registered accounts.
	Count(ctx context.Context) (int, error)
	// Leaderboard ranks all accounts by key and returns at most limit entries.
	Leaderboard(ctx context.Context, key leaderboard.SortKey, limit int) ([]model.LeaderboardEntry, error)
}

var _ AuthService = (*AuthServiceImpl)(nil)

type AuthServiceImpl struct {
	accounts  repository.AccountRepository
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter

	cat       *catalog.Catalog
	minPwdLen int
	hash      pkgcrypto.Params
	loc       *time.Location
	now       func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// Option customizes AuthServiceImpl.
type Option func(*AuthServiceImpl)

// WithCatalog sets the level catalog used to validate progress updates.
func WithCatalog(c *catalog.Catalog) Option { return func(s *AuthServiceImpl) { s.cat = c } }

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option { return func(s *AuthServiceImpl) { s.now = now } }

// WithLocation sets the time zone in which login streak days are counted.
func WithLocation(loc *time.Location) Option { return func(s *AuthServiceImpl) { s.loc = loc } }

// WithPasswordPolicy sets the minimum length and the hashing cost.
func WithPasswordPolicy(minLen int, p pkgcrypto.Params) Option {
	return func(s *AuthServiceImpl) {
		s.minPwdLen = minLen
		s.hash = p
	}
}

// NewAuthService constructs AuthService with required dependencies. lim may be nil.
func NewAuthService(accounts repository.AccountRepository, signKey []byte, accessTTL time.Duration, lim limiter.Limiter, opts ...Option) *AuthServiceImpl {
	s := &AuthServiceImpl{
		accounts:  accounts,
		signKey:   signKey,
		accessTTL: accessTTL,
		lim:       lim,
		cat:       catalog.Default(),
		minPwdLen: DefaultMinPasswordLen,
		hash:      pkgcrypto.DefaultParams,
		loc:       time.UTC,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register validates input, stores a hashed credential and issues a token.
func (s *AuthServiceImpl) Register(ctx context.Context, in RegisterInput) (model.Tokens, model.Account, error) {
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return model.Tokens{}, model.Account{}, errs.ErrMissingFields
	}
	if in.Password != in.ConfirmPassword {
		return model.Tokens{}, model.Account{}, errs.ErrPasswordMismatch
	}
	if utf8.RuneCountInString(in.Password) < s.minPwdLen {
		return model.Tokens{}, model.Account{}, errs.ErrPasswordTooShort
	}
	// Cheap pre-check before hashing; Insert still enforces uniqueness atomically.
	if _, err := s.accounts.FindByUsernameOrEmail(ctx, in.Username, in.Email); err == nil {
		return model.Tokens{}, model.Account{}, errs.ErrAlreadyExists
	} else if !errors.Is(err, errs.ErrNotFound) {
		return model.Tokens{}, model.Account{}, err
	}

	uid, err := uuid.NewV4()
	if err != nil {
		return model.Tokens{}, model.Account{}, err
	}
	pwdHash, err := pkgcrypto.Hash(in.Password, s.hash)
	if err != nil {
		return model.Tokens{}, model.Account{}, err
	}
	now := s.now().UTC()
	a := &model.Account{
		ID:        uid,
		Username:  in.Username,
		Email:     in.Email,
		PwdHash:   pwdHash,
		Progress:  model.NewAccountSnapshot(),
		LastLogin: now,
		CreatedAt: now,
	}
	if err := s.accounts.Insert(ctx, a); err != nil {
		return model.Tokens{}, model.Account{}, err
	}

	tok, err := s.issueAccessToken(a.ID)
	if err != nil {
		return model.Tokens{}, model.Account{}, err
	}
	return tok, *a, nil
}

// LoginWithIP authenticates with rate limiting by caller IP.
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, identifier, password, ip string) (model.Tokens, model.Account, error) {
	if s.lim != nil {
		allowed, retry, err := s.lim.Allow(ctx, limiter.HashIP(ip))
		if err != nil {
			return model.Tokens{}, model.Account{}, fmt.Errorf("limiter: %w", err)
		}
		if !allowed {
			return model.Tokens{}, model.Account{}, &errs.RateLimitError{RetryAfter: retry}
		}
	}
	if identifier == "" || password == "" {
		return model.Tokens{}, model.Account{}, errs.ErrMissingCredentials
	}

	a, err := s.accounts.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			// hash anyway so unknown identifiers cost the same as wrong passwords
			_, _ = pkgcrypto.Verify(password, s.dummy())
			return model.Tokens{}, model.Account{}, errs.ErrInvalidCredentials
		}
		return model.Tokens{}, model.Account{}, err
	}
	ok, err := pkgcrypto.Verify(password, a.PwdHash)
	if err != nil {
		return model.Tokens{}, model.Account{}, fmt.Errorf("account %s: %w", a.ID, err)
	}
	if !ok {
		return model.Tokens{}, model.Account{}, errs.ErrInvalidCredentials
	}

	now := s.now()
	if streak, changed := NextStreak(a.LoginStreak, a.LastLogin, now, s.loc); changed {
		if err := s.accounts.UpdateLogin(ctx, a.ID, streak, now.UTC()); err != nil {
			return model.Tokens{}, model.Account{}, err
		}
		a.LoginStreak = streak
		a.LastLogin = now.UTC()
	}

	tok, err := s.issueAccessToken(a.ID)
	if err != nil {
		return model.Tokens{}, model.Account{}, err
	}
	return tok, *a, nil
}

// NextStreak computes the login streak for a login at now. The streak
// changes only when now falls on a different calendar day (in loc) than
// last: it grows by one after a login yesterday and restarts at 1 otherwise.
func NextStreak(streak int, last, now time.Time, loc *time.Location) (int, bool) {
	ly, lm, ld := last.In(loc).Date()
	ny, nm, nd := now.In(loc).Date()
	if ly == ny && lm == nm && ld == nd {
		return streak, false
	}
	yy, ym, yd := time.Date(ny, nm, nd-1, 12, 0, 0, 0, loc).Date()
	if ly == yy && lm == ym && ld == yd {
		return streak + 1, true
	}
	return 1, true
}

// Authenticate verifies signature and expiry and loads the bound account.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, token string) (model.Account, error) {
	id, err := s.parseAccessToken(token)
	if err != nil {
		return model.Account{}, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Account{}, fmt.Errorf("%w: unknown subject", errs.ErrUnauthorized)
		}
		return model.Account{}, err
	}
	return *a, nil
}

// UpdateProgress validates snap and merges it into the stored progression.
// Merging is a union of levels and badges and a max of xp and level, so
// resending a snapshot has no further effect.
func (s *AuthServiceImpl) UpdateProgress(ctx context.Context, id uuid.UUID, snap model.Snapshot) (model.Account, error) {
	if snap.XP < 0 {
		return model.Account{}, errs.ErrNegativeXP
	}
	for _, l := range snap.CompletedLevels {
		if _, ok := s.cat.Level(l); !ok {
			return model.Account{}, fmt.Errorf("level %d: %w", l, errs.ErrUnknownLevel)
		}
	}
	now := s.now().UTC()
	badges := make([]model.Badge, 0, len(snap.Badges))
	for _, b := range snap.Badges {
		if b.ID == "" {
			return model.Account{}, fmt.Errorf("%w: badge id required", errs.ErrValidation)
		}
		if b.EarnedAt.IsZero() {
			b.EarnedAt = now
		}
		badges = append(badges, b)
	}
	snap.Badges = badges

	maxLevel := s.cat.MaxLevel()
	var lockErr error
	a, err := s.accounts.UpdateProgress(ctx, id, func(cur model.Snapshot) model.Snapshot {
		merged := progression.MergeSnapshot(cur, snap, maxLevel)
		if l, ok := s.lockedLevel(cur, merged); ok {
			lockErr = fmt.Errorf("level %d: %w", l, errs.ErrLevelLocked)
			return cur
		}
		lockErr = nil
		return merged
	})
	if err != nil {
		return model.Account{}, err
	}
	if lockErr != nil {
		return model.Account{}, lockErr
	}
	return *a, nil
}

// lockedLevel returns a level newly completed in merged whose prerequisites
// merged does not satisfy.
func (s *AuthServiceImpl) lockedLevel(cur, merged model.Snapshot) (int, bool) {
	done := make(map[int]bool, len(merged.CompletedLevels))
	for _, l := range merged.CompletedLevels {
		done[l] = true
	}
	had := make(map[int]bool, len(cur.CompletedLevels))
	for _, l := range cur.CompletedLevels {
		had[l] = true
	}
	for _, l := range merged.CompletedLevels {
		if !had[l] && !s.cat.Unlocked(l, done) {
			return l, true
		}
	}
	return 0, false
}

// Count returns the number of accounts.
func (s *AuthServiceImpl) Count(ctx context.Context) (int, error) {
	return s.accounts.Count(ctx)
}

// Leaderboard ranks account summaries.
func (s *AuthServiceImpl) Leaderboard(ctx context.Context, key leaderboard.SortKey, limit int) ([]model.LeaderboardEntry, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	sums := make([]model.AccountSummary, len(accounts))
	for i, a := range accounts {
		sums[i] = a.Summary()
	}
	entries, err := leaderboard.Rank(sums, key)
	if err != nil {
		return nil, err
	}
	return leaderboard.Top(entries, limit), nil
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *AuthServiceImpl) issueAccessToken(userID uuid.UUID) (model.Tokens, error) {
	now := s.now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: signed, ExpiresAt: exp}, nil
}

// parseAccessToken validates an HS256 JWT and returns its subject.
func (s *AuthServiceImpl) parseAccessToken(tok string) (uuid.UUID, error) {
	if tok == "" {
		return uuid.Nil, errors.New("empty token")
	}
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return uuid.Nil, errors.New("invalid token")
	}

	v := jwt.NewValidator(jwt.WithLeeway(30*time.Second), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err := v.Validate(&claims); err != nil {
		return uuid.Nil, errors.New("token expired or not valid yet")
	}

	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return uuid.Nil, errors.New("bad subject")
	}
	return id, nil
}

func (s *AuthServiceImpl) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = pkgcrypto.Hash("not-a-real-password", s.hash)
	})
	return s.dummyHash
}
