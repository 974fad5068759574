package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/hacking-zone/internal/errs"
	"github.com/and161185/hacking-zone/internal/model"
	"github.com/and161185/hacking-zone/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

var _ repository.AccountRepository = (*AccountRepo)(nil)

// AccountRepo implements AccountRepository using PostgreSQL.
type AccountRepo struct{ db *DB }

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

const accountCols = `id, seq, username, email, pwd_hash, rank, xp, level, completed_levels, badges, last_login, login_streak, created_at`

// Insert inserts a new account row; seq and created_at are assigned by the database.
func (r *AccountRepo) Insert(ctx context.Context, a *model.Account) error {
	const q = `
INSERT INTO accounts (id, username, email, pwd_hash, rank, xp, level, completed_levels, badges, last_login, login_streak)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING seq, created_at`
	badges, err := encodeBadges(a.Progress.Badges)
	if err != nil {
		return err
	}
	err = r.db.Pool.QueryRow(ctx, q,
		a.ID, a.Username, a.Email, a.PwdHash,
		a.Progress.Rank.String(), a.Progress.XP, a.Progress.Level, toInt32s(a.Progress.CompletedLevels), badges,
		a.LastLogin, a.LoginStreak,
	).Scan(&a.Seq, &a.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects an account by ID.
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	q := `SELECT ` + accountCols + ` FROM accounts WHERE id=$1`
	return scanAccount(r.db.Pool.QueryRow(ctx, q, id))
}

// FindByIdentifier selects an account by username or email.
func (r *AccountRepo) FindByIdentifier(ctx context.Context, identifier string) (*model.Account, error) {
	q := `SELECT ` + accountCols + ` FROM accounts WHERE username=$1 OR email=$1 ORDER BY seq LIMIT 1`
	return scanAccount(r.db.Pool.QueryRow(ctx, q, identifier))
}

// FindByUsernameOrEmail selects an account matching either value.
func (r *AccountRepo) FindByUsernameOrEmail(ctx context.Context, username, email string) (*model.Account, error) {
	q := `SELECT ` + accountCols + ` FROM accounts WHERE username=$1 OR email=$2 ORDER BY seq LIMIT 1`
	return scanAccount(r.db.Pool.QueryRow(ctx, q, username, email))
}

// UpdateProgress locks the row, applies fn and stores the result in one transaction.
func (r *AccountRepo) UpdateProgress(
	ctx context.Context, id uuid.UUID, fn repository.MergeFunc,
) (acc *model.Account, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			acc, err = nil, e
		}
	}()

	sel := `SELECT ` + accountCols + ` FROM accounts WHERE id=$1 FOR UPDATE`
	acc, err = scanAccount(tx.QueryRow(ctx, sel, id))
	if err != nil {
		return nil, err
	}
	acc.Progress = fn(acc.Progress)

	badges, err := encodeBadges(acc.Progress.Badges)
	if err != nil {
		return nil, err
	}
	const upd = `
UPDATE accounts
SET rank=$2, xp=$3, level=$4, completed_levels=$5, badges=$6
WHERE id=$1`
	p := acc.Progress
	if _, err = tx.Exec(ctx, upd, id, p.Rank.String(), p.XP, p.Level, toInt32s(p.CompletedLevels), badges); err != nil {
		return nil, err
	}
	return acc, nil
}

// UpdateLogin stores streak bookkeeping.
func (r *AccountRepo) UpdateLogin(ctx context.Context, id uuid.UUID, streak int, lastLogin time.Time) error {
	const q = `UPDATE accounts SET login_streak=$2, last_login=$3 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, streak, lastLogin)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Count returns the number of accounts.
func (r *AccountRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM accounts`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// List returns all accounts ordered by creation.
func (r *AccountRepo) List(ctx context.Context) ([]model.Account, error) {
	q := `SELECT ` + accountCols + ` FROM accounts ORDER BY seq`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Ping checks database reachability.
func (r *AccountRepo) Ping(ctx context.Context) error { return r.db.Pool.Ping(ctx) }

func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		a      model.Account
		rank   string
		levels []int32
		badges []byte
	)
	err := row.Scan(&a.ID, &a.Seq, &a.Username, &a.Email, &a.PwdHash,
		&rank, &a.Progress.XP, &a.Progress.Level, &levels, &badges,
		&a.LastLogin, &a.LoginStreak, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	if a.Progress.Rank, err = model.ParseRank(rank); err != nil {
		return nil, fmt.Errorf("account %s: %w", a.ID, err)
	}
	a.Progress.CompletedLevels = make([]int, len(levels))
	for i, l := range levels {
		a.Progress.CompletedLevels[i] = int(l)
	}
	a.Progress.Badges = []model.Badge{}
	if len(badges) > 0 {
		if err := json.Unmarshal(badges, &a.Progress.Badges); err != nil {
			return nil, fmt.Errorf("account %s badges: %w", a.ID, err)
		}
	}
	return &a, nil
}

func encodeBadges(b []model.Badge) ([]byte, error) {
	if b == nil {
		b = []model.Badge{}
	}
	return json.Marshal(b)
}

func toInt32s(ids []int) []int32 {
	out := make([]int32, len(ids))
	for i, id := range ids {
		out[i] = int32(id)
	}
	return out
}
