package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store owns a Mongo client and the account repository built on it.
type Store struct {
	Client   *mongo.Client
	Accounts *AccountRepo
}

// Connect dials uri, pings it and prepares the accounts collection of database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	ctxConnect, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctxConnect, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	repo := NewAccountRepo(client.Database(database))
	if err := repo.Ping(ctxConnect); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	if err := repo.EnsureIndexes(ctxConnect); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}
	return &Store{Client: client, Accounts: repo}, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	if s.Client != nil {
		return s.Client.Disconnect(ctx)
	}
	return nil
}
