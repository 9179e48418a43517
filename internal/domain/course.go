package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Academic entities are stored only in the shape the sync job writes them;
// natural key is (institution_id, external_id).

type Course struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	InstitutionID string             `bson:"institution_id"`
	ExternalID    string             `bson:"external_id"`
	Name          string             `bson:"name"`
	URL           string             `bson:"url,omitempty"`
	Semester      string             `bson:"semester,omitempty"`
	UpdatedAt     time.Time          `bson:"updated_at"`
}

type Enrollment struct {
	UserID        primitive.ObjectID `bson:"user_id"`
	InstitutionID string             `bson:"institution_id"`
	CourseID      string             `bson:"course_id"` // external course id
	UpdatedAt     time.Time          `bson:"updated_at"`
}

type Section struct {
	InstitutionID string    `bson:"institution_id"`
	CourseID      string    `bson:"course_id"`
	ExternalID    string    `bson:"external_id"`
	Title         string    `bson:"title"`
	Order         int       `bson:"order"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

type Assignment struct {
	InstitutionID string     `bson:"institution_id"`
	CourseID      string     `bson:"course_id"`
	ExternalID    string     `bson:"external_id"`
	Title         string     `bson:"title"`
	DueAt         *time.Time `bson:"due_at,omitempty"`
	URL           string     `bson:"url,omitempty"`
	UpdatedAt     time.Time  `bson:"updated_at"`
}

type CourseFile struct {
	InstitutionID string    `bson:"institution_id"`
	CourseID      string    `bson:"course_id"`
	ExternalID    string    `bson:"external_id"`
	Name          string    `bson:"name"`
	URL           string    `bson:"url,omitempty"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

type StaffMember struct {
	InstitutionID string    `bson:"institution_id"`
	CourseID      string    `bson:"course_id"`
	Name          string    `bson:"name"`
	Email         string    `bson:"email,omitempty"`
	Role          string    `bson:"role,omitempty"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

type Announcement struct {
	InstitutionID string    `bson:"institution_id"`
	CourseID      string    `bson:"course_id"`
	ExternalID    string    `bson:"external_id"`
	Title         string    `bson:"title"`
	Body          string    `bson:"body,omitempty"`
	PostedAt      time.Time `bson:"posted_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

type Exam struct {
	InstitutionID string     `bson:"institution_id"`
	CourseID      string     `bson:"course_id"`
	ExternalID    string     `bson:"external_id"`
	Title         string     `bson:"title"`
	HeldAt        *time.Time `bson:"held_at,omitempty"`
	UpdatedAt     time.Time  `bson:"updated_at"`
}
