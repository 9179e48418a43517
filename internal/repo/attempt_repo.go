package repo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ortaizi/sync-service/internal/domain"
)

const attemptsColl = "auth_attempts"

func (s *Store) EnsureAttemptIndexes(ctx context.Context) error {
	_, err := s.DB.Collection(attemptsColl).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "identifier", Value: 1}, {Key: "created_at", Value: -1}},
	})
	return err
}

// InsertAttempt appends one audit row. The collection is write-once.
func (s *Store) InsertAttempt(ctx context.Context, a domain.AuthAttempt) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.DB.Collection(attemptsColl).InsertOne(ctx, a)
	return err
}
