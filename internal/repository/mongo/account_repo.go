// Package mongo contains a MongoDB implementation of AccountRepository.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/hacking-zone/internal/errs"
	"github.com/and161185/hacking-zone/internal/model"
	"github.com/and161185/hacking-zone/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	accountsColl = "accounts"
	countersColl = "counters"

	// maxRetries bounds optimistic compare-and-set attempts in UpdateProgress.
	maxRetries = 5
)

var _ repository.AccountRepository = (*AccountRepo)(nil)

type badgeDoc struct {
	ID          string    `bson:"id"`
	Name        string    `bson:"name"`
	Description string    `bson:"description"`
	Icon        string    `bson:"icon,omitempty"`
	EarnedAt    time.Time `bson:"earned_at"`
}

type accountDoc struct {
	ID              string     `bson:"_id"`
	Seq             int64      `bson:"seq"`
	Username        string     `bson:"username"`
	Email           string     `bson:"email"`
	PwdHash         string     `bson:"pwd_hash"`
	Rank            string     `bson:"rank"`
	XP              int        `bson:"xp"`
	Level           int        `bson:"level"`
	CompletedLevels []int      `bson:"completed_levels"`
	Badges          []badgeDoc `bson:"badges"`
	LastLogin       time.Time  `bson:"last_login"`
	LoginStreak     int        `bson:"login_streak"`
	CreatedAt       time.Time  `bson:"created_at"`
	Version         int64      `bson:"version"`
}

// AccountRepo implements AccountRepository over a Mongo database.
type AccountRepo struct {
	db       *mongo.Database
	accounts *mongo.Collection
	counters *mongo.Collection
	now      func() time.Time
}

// NewAccountRepo constructs a repository over db.
func NewAccountRepo(db *mongo.Database) *AccountRepo {
	return &AccountRepo{
		db:       db,
		accounts: db.Collection(accountsColl),
		counters: db.Collection(countersColl),
		now:      time.Now,
	}
}

// EnsureIndexes creates the unique indexes username/email uniqueness relies on.
func (r *AccountRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.accounts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "seq", Value: 1}}},
	})
	return err
}

// Insert stores a; uniqueness is enforced by the indexes, so the check is atomic.
func (r *AccountRepo) Insert(ctx context.Context, a *model.Account) error {
	seq, err := r.nextSeq(ctx)
	if err != nil {
		return err
	}
	a.Seq = seq
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now().UTC().Truncate(time.Millisecond)
	}
	doc := toDoc(a)
	if _, err := r.accounts.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errs.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *AccountRepo) nextSeq(ctx context.Context) (int64, error) {
	var out struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: accountsColl}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	return out.Seq, nil
}

// GetByID loads an account by ID.
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	a, _, err := r.findOne(ctx, bson.D{{Key: "_id", Value: id.String()}})
	return a, err
}

// FindByIdentifier loads the account with username or email equal to identifier.
func (r *AccountRepo) FindByIdentifier(ctx context.Context, identifier string) (*model.Account, error) {
	return r.FindByUsernameOrEmail(ctx, identifier, identifier)
}

// FindByUsernameOrEmail loads an account matching either value.
func (r *AccountRepo) FindByUsernameOrEmail(ctx context.Context, username, email string) (*model.Account, error) {
	a, _, err := r.findOne(ctx, bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "username", Value: username}},
		bson.D{{Key: "email", Value: email}},
	}}})
	return a, err
}

func (r *AccountRepo) findOne(ctx context.Context, filter bson.D) (*model.Account, int64, error) {
	var doc accountDoc
	opts := options.FindOne().SetSort(bson.D{{Key: "seq", Value: 1}})
	if err := r.accounts.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, 0, errs.ErrNotFound
		}
		return nil, 0, err
	}
	a, err := fromDoc(doc)
	if err != nil {
		return nil, 0, err
	}
	return a, doc.Version, nil
}

// UpdateProgress applies fn using a version compare-and-set, retrying on
// concurrent writers up to maxRetries times.
func (r *AccountRepo) UpdateProgress(ctx context.Context, id uuid.UUID, fn repository.MergeFunc) (*model.Account, error) {
	for attempt := 0; attempt < maxRetries; attempt++ {
		a, ver, err := r.findOne(ctx, bson.D{{Key: "_id", Value: id.String()}})
		if err != nil {
			return nil, err
		}
		a.Progress = fn(a.Progress)
		p := a.Progress
		res, err := r.accounts.UpdateOne(ctx,
			bson.D{{Key: "_id", Value: id.String()}, {Key: "version", Value: ver}},
			bson.D{{Key: "$set", Value: bson.D{
				{Key: "rank", Value: p.Rank.String()},
				{Key: "xp", Value: p.XP},
				{Key: "level", Value: p.Level},
				{Key: "completed_levels", Value: p.CompletedLevels},
				{Key: "badges", Value: toBadgeDocs(p.Badges)},
				{Key: "version", Value: ver + 1},
			}}},
		)
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 1 {
			return a, nil
		}
	}
	return nil, errs.ErrVersionConflict
}

// UpdateLogin stores streak bookkeeping.
func (r *AccountRepo) UpdateLogin(ctx context.Context, id uuid.UUID, streak int, lastLogin time.Time) error {
	res, err := r.accounts.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id.String()}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "login_streak", Value: streak},
			{Key: "last_login", Value: lastLogin},
		}}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Count returns the number of accounts.
func (r *AccountRepo) Count(ctx context.Context) (int, error) {
	n, err := r.accounts.CountDocuments(ctx, bson.D{})
	return int(n), err
}

// List returns all accounts ordered by seq.
func (r *AccountRepo) List(ctx context.Context) ([]model.Account, error) {
	cur, err := r.accounts.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []model.Account
	for cur.Next(ctx) {
		var doc accountDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		a, err := fromDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, cur.Err()
}

// Ping checks the primary is reachable.
func (r *AccountRepo) Ping(ctx context.Context) error {
	return r.db.Client().Ping(ctx, readpref.Primary())
}

func toDoc(a *model.Account) accountDoc {
	levels := a.Progress.CompletedLevels
	if levels == nil {
		levels = []int{}
	}
	return accountDoc{
		ID:              a.ID.String(),
		Seq:             a.Seq,
		Username:        a.Username,
		Email:           a.Email,
		PwdHash:         a.PwdHash,
		Rank:            a.Progress.Rank.String(),
		XP:              a.Progress.XP,
		Level:           a.Progress.Level,
		CompletedLevels: levels,
		Badges:          toBadgeDocs(a.Progress.Badges),
		LastLogin:       a.LastLogin,
		LoginStreak:     a.LoginStreak,
		CreatedAt:       a.CreatedAt,
	}
}

func toBadgeDocs(bs []model.Badge) []badgeDoc {
	out := make([]badgeDoc, len(bs))
	for i, b := range bs {
		out[i] = badgeDoc{ID: b.ID, Name: b.Name, Description: b.Description, Icon: b.Icon, EarnedAt: b.EarnedAt}
	}
	return out
}

func fromDoc(d accountDoc) (*model.Account, error) {
	id, err := uuid.FromString(d.ID)
	if err != nil {
		return nil, fmt.Errorf("account id %q: %w", d.ID, err)
	}
	rank, err := model.ParseRank(d.Rank)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", d.ID, err)
	}
	badges := make([]model.Badge, len(d.Badges))
	for i, b := range d.Badges {
		badges[i] = model.Badge{ID: b.ID, Name: b.Name, Description: b.Description, Icon: b.Icon, EarnedAt: b.EarnedAt.UTC()}
	}
	levels := append([]int{}, d.CompletedLevels...)
	return &model.Account{
		ID:       id,
		Seq:      d.Seq,
		Username: d.Username,
		Email:    d.Email,
		PwdHash:  d.PwdHash,
		Progress: model.Snapshot{
			Rank:            rank,
			XP:              d.XP,
			Level:           d.Level,
			CompletedLevels: levels,
			Badges:          badges,
		},
		LastLogin:   d.LastLogin.UTC(),
		LoginStreak: d.LoginStreak,
		CreatedAt:   d.CreatedAt.UTC(),
	}, nil
}
