package repo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	Client *mongo.Client
	DB     *mongo.Database
}

func NewStore(ctx context.Context, uri, dbname string) (*Store, error) {
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return &Store{Client: cli, DB: cli.Database(dbname)}, nil
}

// EnsureIndexes creates all collection indexes. Safe to call on every start.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for _, fn := range []func(context.Context) error{
		s.EnsureUserIndexes,
		s.EnsureCredentialIndexes,
		s.EnsureAttemptIndexes,
		s.EnsureSyncJobIndexes,
		s.EnsureAcademicIndexes,
	} {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}
