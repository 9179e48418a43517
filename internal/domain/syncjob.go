package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SyncStatus string

const (
	SyncStarting         SyncStatus = "starting"
	SyncCreatingTables   SyncStatus = "creating_tables"
	SyncFetchingCourses  SyncStatus = "fetching_courses"
	SyncAnalyzingContent SyncStatus = "analyzing_content"
	SyncClassifyingData  SyncStatus = "classifying_data"
	SyncSaving           SyncStatus = "saving_to_database"
	SyncCompleted        SyncStatus = "completed"
	SyncError            SyncStatus = "error"
)

// ErrorProgress is the sentinel reported for abnormal termination.
const ErrorProgress = -1

func (s SyncStatus) Terminal() bool {
	return s == SyncCompleted || s == SyncError
}

// SyncResult summarizes what a completed job classified and persisted.
type SyncResult struct {
	Courses          int `bson:"courses"           json:"courses"`
	ProcessedCourses int `bson:"processed_courses" json:"processed_courses"`
	SkippedCourses   int `bson:"skipped_courses"   json:"skipped_courses"`
	Assignments      int `bson:"assignments"       json:"assignments"`
	Files            int `bson:"files"             json:"files"`
	Exams            int `bson:"exams"             json:"exams"`
	Announcements    int `bson:"announcements"     json:"announcements"`
	Staff            int `bson:"staff"             json:"staff"`
	Sections         int `bson:"sections"          json:"sections"`
	TotalItems       int `bson:"total_items"       json:"total_items"`
}

type SyncJob struct {
	ID        string             `bson:"_id"                json:"id"`
	UserID    primitive.ObjectID `bson:"user_id"            json:"user_id"`
	Status    SyncStatus         `bson:"status"             json:"status"`
	Progress  int                `bson:"progress"           json:"progress"`
	Message   string             `bson:"message"            json:"message"` // Hebrew, user facing
	MessageEn string             `bson:"message_en"         json:"message_en"`
	Result    *SyncResult        `bson:"result,omitempty"   json:"result,omitempty"`
	CreatedAt time.Time          `bson:"created_at"         json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"         json:"updated_at"`
}

// SyncJobUpdate is a partial job mutation. Status, progress and messages are
// always written together; Result only at completion.
type SyncJobUpdate struct {
	Status    SyncStatus
	Progress  int
	Message   string
	MessageEn string
	Result    *SyncResult
}

// Message is a bilingual user-facing string pair, Hebrew first.
type Message struct {
	He string
	En string
}
