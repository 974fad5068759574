// Package memory is an in-process AccountRepository used by default and in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/and161185/hacking-zone/internal/errs"
	"github.com/and161185/hacking-zone/internal/model"
	"github.com/and161185/hacking-zone/internal/repository"
	"github.com/gofrs/uuid/v5"
)

var _ repository.AccountRepository = (*Repo)(nil)

// Repo keeps accounts in maps guarded by a mutex.
type Repo struct {
	mu         sync.RWMutex
	seq        int64
	byID       map[uuid.UUID]*model.Account
	byUsername map[string]uuid.UUID
	byEmail    map[string]uuid.UUID
	now        func() time.Time
}

// New returns an empty repository.
func New() *Repo {
	return &Repo{
		byID:       make(map[uuid.UUID]*model.Account),
		byUsername: make(map[string]uuid.UUID),
		byEmail:    make(map[string]uuid.UUID),
		now:        time.Now,
	}
}

// Insert stores a copy of a. Uniqueness check and insertion happen under one lock.
func (r *Repo) Insert(_ context.Context, a *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byUsername[a.Username]; ok {
		return errs.ErrAlreadyExists
	}
	if _, ok := r.byEmail[a.Email]; ok {
		return errs.ErrAlreadyExists
	}
	if _, ok := r.byID[a.ID]; ok {
		return errs.ErrAlreadyExists
	}
	r.seq++
	a.Seq = r.seq
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now().UTC()
	}
	c := clone(a)
	r.byID[a.ID] = c
	r.byUsername[a.Username] = a.ID
	r.byEmail[a.Email] = a.ID
	return nil
}

// GetByID loads an account by ID.
func (r *Repo) GetByID(_ context.Context, id uuid.UUID) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return clone(a), nil
}

// FindByIdentifier matches username or email. When both hit different
// accounts the earliest created one wins, as in the SQL stores.
func (r *Repo) FindByIdentifier(_ context.Context, identifier string) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.earliest(identifier, identifier)
}

// FindByUsernameOrEmail loads an account with the given username or email.
func (r *Repo) FindByUsernameOrEmail(_ context.Context, username, email string) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.earliest(username, email)
}

// earliest must be called with mu held.
func (r *Repo) earliest(username, email string) (*model.Account, error) {
	var found *model.Account
	if id, ok := r.byUsername[username]; ok {
		found = r.byID[id]
	}
	if id, ok := r.byEmail[email]; ok {
		if a := r.byID[id]; found == nil || a.Seq < found.Seq {
			found = a
		}
	}
	if found == nil {
		return nil, errs.ErrNotFound
	}
	return clone(found), nil
}

func (r *Repo) UpdateProgress(_ context.Context, id uuid.UUID, fn repository.MergeFunc) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	a.Progress = cloneSnapshot(fn(cloneSnapshot(a.Progress)))
	return clone(a), nil
}

// UpdateLogin stores streak bookkeeping.
func (r *Repo) UpdateLogin(_ context.Context, id uuid.UUID, streak int, lastLogin time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	a.LoginStreak = streak
	a.LastLogin = lastLogin
	return nil
}

// Count returns the number of accounts.
func (r *Repo) Count(context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}

// List returns copies of all accounts ordered by Seq.
func (r *Repo) List(context.Context) ([]model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Account, 0, len(r.byID))
	for _, a := range r.byID {
		out = append(out, *clone(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Ping always succeeds.
func (r *Repo) Ping(context.Context) error { return nil }

func clone(a *model.Account) *model.Account {
	c := *a
	c.Progress = cloneSnapshot(a.Progress)
	return &c
}

func cloneSnapshot(s model.Snapshot) model.Snapshot {
	s.CompletedLevels = append([]int{}, s.CompletedLevels...)
	s.Badges = append([]model.Badge{}, s.Badges...)
	return s
}
