package repo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ortaizi/sync-service/internal/domain"
)

// Academic collections hold exactly what the sync pipeline writes. Upserts
// are keyed by the entity's natural key so re-syncs overwrite in place.

const (
	coursesColl       = "courses"
	enrollmentsColl   = "enrollments"
	sectionsColl      = "sections"
	assignmentsColl   = "assignments"
	filesColl         = "course_files"
	staffColl         = "course_staff"
	announcementsColl = "announcements"
	examsColl         = "exams"
)

func (s *Store) EnsureAcademicIndexes(ctx context.Context) error {
	byExternal := bson.D{{Key: "institution_id", Value: 1}, {Key: "external_id", Value: 1}}
	perCourse := bson.D{{Key: "institution_id", Value: 1}, {Key: "course_id", Value: 1}, {Key: "external_id", Value: 1}}

	for coll, keys := range map[string]bson.D{
		coursesColl:       byExternal,
		enrollmentsColl:   {{Key: "user_id", Value: 1}, {Key: "institution_id", Value: 1}, {Key: "course_id", Value: 1}},
		sectionsColl:      perCourse,
		assignmentsColl:   perCourse,
		filesColl:         perCourse,
		staffColl:         {{Key: "institution_id", Value: 1}, {Key: "course_id", Value: 1}, {Key: "name", Value: 1}},
		announcementsColl: perCourse,
		examsColl:         perCourse,
	} {
		if _, err := s.DB.Collection(coll).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    keys,
			Options: options.Index().SetUnique(true),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, coll string, filter bson.M, doc any) error {
	_, err := s.DB.Collection(coll).ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) UpsertCourse(ctx context.Context, c domain.Course) error {
	c.UpdatedAt = time.Now().UTC()
	c.ID = primitive.NilObjectID // omitempty keeps _id stable across re-syncs
	return s.upsert(ctx, coursesColl,
		bson.M{"institution_id": c.InstitutionID, "external_id": c.ExternalID}, c)
}

func (s *Store) UpsertEnrollment(ctx context.Context, e domain.Enrollment) error {
	e.UpdatedAt = time.Now().UTC()
	return s.upsert(ctx, enrollmentsColl,
		bson.M{"user_id": e.UserID, "institution_id": e.InstitutionID, "course_id": e.CourseID}, e)
}

func (s *Store) UpsertSection(ctx context.Context, v domain.Section) error {
	v.UpdatedAt = time.Now().UTC()
	return s.upsert(ctx, sectionsColl,
		bson.M{"institution_id": v.InstitutionID, "course_id": v.CourseID, "external_id": v.ExternalID}, v)
}

func (s *Store) UpsertAssignment(ctx context.Context, v domain.Assignment) error {
	v.UpdatedAt = time.Now().UTC()
	return s.upsert(ctx, assignmentsColl,
		bson.M{"institution_id": v.InstitutionID, "course_id": v.CourseID, "external_id": v.ExternalID}, v)
}

func (s *Store) UpsertFile(ctx context.Context, v domain.CourseFile) error {
	v.UpdatedAt = time.Now().UTC()
	return s.upsert(ctx, filesColl,
		bson.M{"institution_id": v.InstitutionID, "course_id": v.CourseID, "external_id": v.ExternalID}, v)
}

func (s *Store) UpsertStaff(ctx context.Context, v domain.StaffMember) error {
	v.UpdatedAt = time.Now().UTC()
	return s.upsert(ctx, staffColl,
		bson.M{"institution_id": v.InstitutionID, "course_id": v.CourseID, "name": v.Name}, v)
}

func (s *Store) UpsertAnnouncement(ctx context.Context, v domain.Announcement) error {
	v.UpdatedAt = time.Now().UTC()
	return s.upsert(ctx, announcementsColl,
		bson.M{"institution_id": v.InstitutionID, "course_id": v.CourseID, "external_id": v.ExternalID}, v)
}

func (s *Store) UpsertExam(ctx context.Context, v domain.Exam) error {
	v.UpdatedAt = time.Now().UTC()
	return s.upsert(ctx, examsColl,
		bson.M{"institution_id": v.InstitutionID, "course_id": v.CourseID, "external_id": v.ExternalID}, v)
}
