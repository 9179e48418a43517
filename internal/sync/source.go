package sync

import (
	"context"
	"time"

	"github.com/ortaizi/sync-service/internal/domain"
)

// Credentials is the verified institution credential pair handed to the
// pipeline. It only ever lives in memory.
type Credentials struct {
	InstitutionID string
	Username      string
	Secret        string
}

// AuthResult is the outcome of a live authentication against the
// institution. OK=false with a message means wrong credentials, which is
// terminal for the attempt; transport failures come back as errors.
type AuthResult struct {
	OK      bool
	Message domain.Message
}

type CourseRef struct {
	ExternalID string
	Name       string
	URL        string
}

type ItemKind string

const (
	ItemAssignment   ItemKind = "assignment"
	ItemFile         ItemKind = "file"
	ItemExam         ItemKind = "exam"
	ItemAnnouncement ItemKind = "announcement"
	ItemStaff        ItemKind = "staff"
	ItemSection      ItemKind = "section"
)

// Item is one raw course element as the portal exposes it, before
// classification.
type Item struct {
	Kind       ItemKind
	ExternalID string
	Title      string
	URL        string
	Body       string
	DueAt      *time.Time
	PostedAt   time.Time
	Email      string // staff
	Role       string // staff
	Order      int    // section
}

type CourseDetail struct {
	Ref      CourseRef
	Semester string
	Items    []Item
}

// CourseDataSource is the external academic-portal collaborator. Its
// scraping/API mechanics are out of scope; this is the full contract the
// core depends on.
type CourseDataSource interface {
	Authenticate(ctx context.Context, institutionID, username, secret string) (AuthResult, error)
	ListCourses(ctx context.Context, creds Credentials) ([]CourseRef, error)
	FetchCourseDetail(ctx context.Context, creds Credentials, ref CourseRef) (CourseDetail, error)
}
