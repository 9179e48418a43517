package repo

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/ortaizi/sync-service/internal/domain"
)

const usersColl = "users"

func (s *Store) EnsureUserIndexes(ctx context.Context) error {
	coll := s.DB.Collection(usersColl)
	if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "provider_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetSparse(true),
	})
	return err
}

// UpsertProviderUser creates or refreshes the user row for a stage-1 login.
// Matched by provider subject, falling back to email. Avatar and name are
// refreshed on every login. Idempotent under concurrent duplicate calls:
// the loser of an insert race re-reads the winner's row.
func (s *Store) UpsertProviderUser(ctx context.Context, p domain.ProviderProfile) (*domain.User, error) {
	sp, ctx := tracer.StartSpanFromContext(ctx, "mongo.users.upsert_provider",
		tracer.Tag("provider_id", p.Subject))
	defer sp.Finish()

	email := strings.ToLower(strings.TrimSpace(p.Email))
	now := time.Now().UTC()

	filter := bson.M{"$or": []bson.M{
		{"provider_id": p.Subject},
		{"email": email},
	}}
	update := bson.M{
		"$set": bson.M{
			"provider_id":  p.Subject,
			"display_name": p.Name,
			"avatar_url":   p.Picture,
			"updated_at":   now,
		},
		"$setOnInsert": bson.M{
			"email":             email,
			"is_setup_complete": false,
			"created_at":        now,
		},
	}

	var u domain.User
	err := s.DB.Collection(usersColl).FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&u)
	if mongo.IsDuplicateKeyError(err) {
		// lost the unique-key insert race; the winner's row exists now
		err = s.DB.Collection(usersColl).FindOne(ctx, bson.M{"email": email}).Decode(&u)
	}
	if err != nil {
		sp.SetTag("error", err)
		return nil, err
	}
	return &u, nil
}

func (s *Store) FindUserByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	var u domain.User
	err := s.DB.Collection(usersColl).FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	return &u, err
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := s.DB.Collection(usersColl).FindOne(ctx,
		bson.M{"email": strings.ToLower(strings.TrimSpace(email))}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	return &u, err
}

// MarkSetupComplete records stage-2 completion on the user row.
func (s *Store) MarkSetupComplete(ctx context.Context, id primitive.ObjectID, institutionID string) error {
	sp, ctx := tracer.StartSpanFromContext(ctx, "mongo.users.mark_setup_complete",
		tracer.Tag("user_id", id.Hex()))
	defer sp.Finish()

	_, err := s.DB.Collection(usersColl).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"is_setup_complete": true,
			"institution_id":    institutionID,
			"updated_at":        time.Now().UTC(),
		}})
	if err != nil {
		sp.SetTag("error", err)
	}
	return err
}
