package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/and161185/hacking-zone/internal/errs"
	"github.com/and161185/hacking-zone/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

var cols = []string{"id", "seq", "username", "email", "pwd_hash", "rank", "xp", "level",
	"completed_levels", "badges", "last_login", "login_streak", "created_at"}

const selectCols = `SELECT id, seq, username, email, pwd_hash, rank, xp, level, completed_levels, badges, last_login, login_streak, created_at FROM accounts`

var ts = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func accountRow(id uuid.UUID, username string) *pgxmock.Rows {
	return pgxmock.NewRows(cols).AddRow(
		id, int64(7), username, username+"@x.io", "$argon2id$h",
		"Specialist", 250, 3, []int32{1, 2},
		[]byte(`[{"id":"firewall_master","name":"Firewall Master","description":"d","earnedAt":"2026-03-01T12:00:00Z"}]`),
		ts, 2, ts,
	)
}

func TestAccountRepo_Insert_OK_and_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	a := &model.Account{
		ID:        uuid.Must(uuid.NewV4()),
		Username:  "alice",
		Email:     "a@x.io",
		PwdHash:   "$argon2id$h",
		Progress:  model.NewAccountSnapshot(),
		LastLogin: ts,
	}
	const ins = `INSERT INTO accounts \(id, username, email, pwd_hash, rank, xp, level, completed_levels, badges, last_login, login_streak\) VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9, \$10, \$11\) RETURNING seq, created_at`
	args := []any{a.ID, "alice", "a@x.io", "$argon2id$h", "Recruit", 0, 1, []int32{}, []byte("[]"), ts, 0}

	// OK
	mock.ExpectQuery(ins).
		WithArgs(args...).
		WillReturnRows(pgxmock.NewRows([]string{"seq", "created_at"}).AddRow(int64(1), ts))
	require.NoError(t, r.Insert(ctx, a))
	require.Equal(t, int64(1), a.Seq)
	require.Equal(t, ts, a.CreatedAt)

	// Unique violation
	mock.ExpectQuery(ins).
		WithArgs(args...).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Insert(ctx, a), errs.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_GetByID(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(selectCols + ` WHERE id=\$1`).
		WithArgs(id).
		WillReturnRows(accountRow(id, "alice"))
	a, err := r.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, a.ID)
	require.Equal(t, model.RankSpecialist, a.Progress.Rank)
	require.Equal(t, []int{1, 2}, a.Progress.CompletedLevels)
	require.Len(t, a.Progress.Badges, 1)
	require.Equal(t, "firewall_master", a.Progress.Badges[0].ID)
	require.True(t, a.Progress.Badges[0].EarnedAt.Equal(ts))

	mock.ExpectQuery(selectCols + ` WHERE id=\$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByID(ctx, id)
	require.ErrorIs(t, err, errs.ErrNotFound)

	boom := errors.New("conn reset")
	mock.ExpectQuery(selectCols + ` WHERE id=\$1`).
		WithArgs(id).
		WillReturnError(boom)
	_, err = r.GetByID(ctx, id)
	require.ErrorIs(t, err, boom)
}

func TestAccountRepo_FindByIdentifierAndUsernameOrEmail(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(selectCols + ` WHERE username=\$1 OR email=\$1 ORDER BY seq LIMIT 1`).
		WithArgs("alice@x.io").
		WillReturnRows(accountRow(id, "alice"))
	a, err := r.FindByIdentifier(ctx, "alice@x.io")
	require.NoError(t, err)
	require.Equal(t, "alice", a.Username)

	mock.ExpectQuery(selectCols + ` WHERE username=\$1 OR email=\$2 ORDER BY seq LIMIT 1`).
		WithArgs("bob", "bob@x.io").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.FindByUsernameOrEmail(ctx, "bob", "bob@x.io")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestAccountRepo_UpdateProgress_Commit(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectBegin()
	mock.ExpectQuery(selectCols + ` WHERE id=\$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(accountRow(id, "alice"))
	mock.ExpectExec(`UPDATE accounts SET rank=\$2, xp=\$3, level=\$4, completed_levels=\$5, badges=\$6 WHERE id=\$1`).
		WithArgs(id, "Specialist", 450, 4, []int32{1, 2, 3}, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	a, err := r.UpdateProgress(ctx, id, func(cur model.Snapshot) model.Snapshot {
		cur.XP = 450
		cur.Level = 4
		cur.CompletedLevels = append(cur.CompletedLevels, 3)
		return cur
	})
	require.NoError(t, err)
	require.Equal(t, 450, a.Progress.XP)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_UpdateProgress_NotFoundRollsBack(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectBegin()
	mock.ExpectQuery(selectCols + ` WHERE id=\$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	called := false
	_, err := r.UpdateProgress(ctx, id, func(s model.Snapshot) model.Snapshot { called = true; return s })
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.False(t, called)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_UpdateLogin(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`UPDATE accounts SET login_streak=\$2, last_login=\$3 WHERE id=\$1`).
		WithArgs(id, 3, ts).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.UpdateLogin(ctx, id, 3, ts))

	mock.ExpectExec(`UPDATE accounts SET login_streak=\$2, last_login=\$3 WHERE id=\$1`).
		WithArgs(id, 3, ts).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.UpdateLogin(ctx, id, 3, ts), errs.ErrNotFound)
}

func TestAccountRepo_CountListPing(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT count\(\*\) FROM accounts`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	n, err := r.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	rows := accountRow(a, "alice")
	rows.AddRow(b, int64(8), "bob", "bob@x.io", "$argon2id$h", "Recruit", 0, 1, []int32{}, []byte(`[]`), ts, 0, ts)
	mock.ExpectQuery(selectCols + ` ORDER BY seq`).WillReturnRows(rows)
	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "alice", list[0].Username)
	require.Equal(t, "bob", list[1].Username)
	require.Empty(t, list[1].Progress.Badges)

	mock.ExpectPing()
	require.NoError(t, r.Ping(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}
