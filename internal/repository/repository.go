// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/hacking-zone/internal/model"
	"github.com/gofrs/uuid/v5"
)

// MergeFunc computes the stored progression from the current one.
type MergeFunc func(current model.Snapshot) model.Snapshot

// AccountRepository provides access to learner accounts.
type AccountRepository interface {
	// Insert stores a new account, assigning Seq and CreatedAt when unset.
	// Returns errs.ErrAlreadyExists if username or email is taken.
	Insert(ctx context.Context, a *model.Account) error
	// GetByID loads an account by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	// FindByIdentifier loads the account whose username or email equals identifier.
	FindByIdentifier(ctx context.Context, identifier string) (*model.Account, error)
	// FindByUsernameOrEmail loads an account matching either value.
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*model.Account, error)
	// UpdateProgress replaces the progression with fn(current) atomically
	// with respect to concurrent updates of the same account.
	UpdateProgress(ctx context.Context, id uuid.UUID, fn MergeFunc) (*model.Account, error)
	// UpdateLogin stores streak bookkeeping after a successful login.
	UpdateLogin(ctx context.Context, id uuid.UUID, streak int, lastLogin time.Time) error
	// Count returns the number of stored accounts.
	Count(ctx context.Context) (int, error)
	// List returns all accounts in creation order.
	List(ctx context.Context) ([]model.Account, error)
	// Ping checks backend reachability.
	Ping(ctx context.Context) error
}
