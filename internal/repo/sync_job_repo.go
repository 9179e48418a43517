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

const syncJobsColl = "sync_jobs"

// Job rows expire a day after their last update; an active job keeps
// refreshing updated_at, so only finished or abandoned rows age out.
const syncJobTTL = 24 * time.Hour

func (s *Store) EnsureSyncJobIndexes(ctx context.Context) error {
	coll := s.DB.Collection(syncJobsColl)
	if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
	}); err != nil {
		return err
	}
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "updated_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(syncJobTTL / time.Second)),
	})
	return err
}

func (s *Store) CreateJob(ctx context.Context, job domain.SyncJob) error {
	sp, ctx := tracer.StartSpanFromContext(ctx, "mongo.sync_jobs.insert",
		tracer.Tag("job_id", job.ID))
	defer sp.Finish()

	now := time.Now().UTC()
	job.CreatedAt, job.UpdatedAt = now, now
	_, err := s.DB.Collection(syncJobsColl).InsertOne(ctx, job)
	if err != nil {
		sp.SetTag("error", err)
	}
	return err
}

// UpdateJob applies a partial update. A job already in a terminal status is
// never touched: the filter excludes it and the method reports false so the
// caller can log the refused update instead of resurrecting a finished job.
func (s *Store) UpdateJob(ctx context.Context, jobID string, u domain.SyncJobUpdate) (bool, error) {
	sp, ctx := tracer.StartSpanFromContext(ctx, "mongo.sync_jobs.update",
		tracer.Tag("job_id", jobID),
		tracer.Tag("status", string(u.Status)))
	defer sp.Finish()

	set := bson.M{
		"status":     u.Status,
		"progress":   u.Progress,
		"message":    u.Message,
		"message_en": u.MessageEn,
		"updated_at": time.Now().UTC(),
	}
	if u.Result != nil {
		set["result"] = u.Result
	}

	res, err := s.DB.Collection(syncJobsColl).UpdateOne(ctx,
		bson.M{
			"_id":    jobID,
			"status": bson.M{"$nin": bson.A{domain.SyncCompleted, domain.SyncError}},
		},
		bson.M{"$set": set})
	if err != nil {
		sp.SetTag("error", err)
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	var job domain.SyncJob
	err := s.DB.Collection(syncJobsColl).FindOne(ctx, bson.M{"_id": jobID}).Decode(&job)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	return &job, err
}

// GetActiveJob returns the user's newest non-terminal job, or nil.
func (s *Store) GetActiveJob(ctx context.Context, userID primitive.ObjectID) (*domain.SyncJob, error) {
	var job domain.SyncJob
	err := s.DB.Collection(syncJobsColl).FindOne(ctx,
		bson.M{
			"user_id": userID,
			"status":  bson.M{"$nin": bson.A{domain.SyncCompleted, domain.SyncError}},
		},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	).Decode(&job)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	return &job, err
}

// GetLastCompletedAt returns when the user's most recent successful sync
// finished, or nil. Feeds the lastSync session claim.
func (s *Store) GetLastCompletedAt(ctx context.Context, userID primitive.ObjectID) (*time.Time, error) {
	var job domain.SyncJob
	err := s.DB.Collection(syncJobsColl).FindOne(ctx,
		bson.M{"user_id": userID, "status": domain.SyncCompleted},
		options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}}),
	).Decode(&job)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job.UpdatedAt, nil
}
