package repo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/ortaizi/sync-service/internal/domain"
)

const credentialsColl = "institution_credentials"

func (s *Store) EnsureCredentialIndexes(ctx context.Context) error {
	_, err := s.DB.Collection(credentialsColl).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "institution_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// UpsertCredential writes the single credential row for (user, institution),
// overwriting any previous secret. Only called after a live verification.
func (s *Store) UpsertCredential(ctx context.Context, c domain.InstitutionCredential) error {
	sp, ctx := tracer.StartSpanFromContext(ctx, "mongo.credentials.upsert",
		tracer.Tag("user_id", c.UserID.Hex()),
		tracer.Tag("institution_id", c.InstitutionID))
	defer sp.Finish()

	now := time.Now().UTC()
	_, err := s.DB.Collection(credentialsColl).UpdateOne(ctx,
		bson.M{"user_id": c.UserID, "institution_id": c.InstitutionID},
		bson.M{
			"$set": bson.M{
				"username":         c.Username,
				"encrypted_secret": c.EncryptedSecret,
				"is_verified":      c.IsVerified,
				"is_active":        c.IsActive,
				"last_verified_at": c.LastVerifiedAt,
				"updated_at":       now,
			},
			"$setOnInsert": bson.M{"created_at": now},
		},
		options.Update().SetUpsert(true))
	if err != nil {
		sp.SetTag("error", err)
	}
	return err
}

func (s *Store) FindCredential(ctx context.Context, userID primitive.ObjectID, institutionID string) (*domain.InstitutionCredential, error) {
	var c domain.InstitutionCredential
	err := s.DB.Collection(credentialsColl).FindOne(ctx,
		bson.M{"user_id": userID, "institution_id": institutionID}).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	return &c, err
}

// FindActiveCredential returns the user's verified+active credential for any
// institution, or nil.
func (s *Store) FindActiveCredential(ctx context.Context, userID primitive.ObjectID) (*domain.InstitutionCredential, error) {
	var c domain.InstitutionCredential
	err := s.DB.Collection(credentialsColl).FindOne(ctx,
		bson.M{"user_id": userID, "is_verified": true, "is_active": true}).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	return &c, err
}

func (s *Store) RevokeCredential(ctx context.Context, userID primitive.ObjectID, institutionID string) error {
	sp, ctx := tracer.StartSpanFromContext(ctx, "mongo.credentials.revoke",
		tracer.Tag("user_id", userID.Hex()))
	defer sp.Finish()

	_, err := s.DB.Collection(credentialsColl).UpdateOne(ctx,
		bson.M{"user_id": userID, "institution_id": institutionID},
		bson.M{"$set": bson.M{"is_active": false, "updated_at": time.Now().UTC()}})
	if err != nil {
		sp.SetTag("error", err)
	}
	return err
}
