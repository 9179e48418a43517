package sync

import (
	"github.com/ortaizi/sync-service/internal/domain"
)

// Classified is the deterministic, in-memory aggregation of fetched items
// into the categories the persistence phase writes.
type Classified struct {
	Assignments   []domain.Assignment
	Files         []domain.CourseFile
	Exams         []domain.Exam
	Announcements []domain.Announcement
	Staff         []domain.StaffMember
	Sections      []domain.Section
	TotalItems    int
}

// Classify groups course items by kind. Pure function, no I/O; a failure
// here is a programming error and is never retried.
func Classify(institutionID string, details []CourseDetail) Classified {
	var c Classified
	for _, d := range details {
		courseID := d.Ref.ExternalID
		for _, it := range d.Items {
			switch it.Kind {
			case ItemAssignment:
				c.Assignments = append(c.Assignments, domain.Assignment{
					InstitutionID: institutionID,
					CourseID:      courseID,
					ExternalID:    it.ExternalID,
					Title:         it.Title,
					DueAt:         it.DueAt,
					URL:           it.URL,
				})
			case ItemFile:
				c.Files = append(c.Files, domain.CourseFile{
					InstitutionID: institutionID,
					CourseID:      courseID,
					ExternalID:    it.ExternalID,
					Name:          it.Title,
					URL:           it.URL,
				})
			case ItemExam:
				c.Exams = append(c.Exams, domain.Exam{
					InstitutionID: institutionID,
					CourseID:      courseID,
					ExternalID:    it.ExternalID,
					Title:         it.Title,
					HeldAt:        it.DueAt,
				})
			case ItemAnnouncement:
				c.Announcements = append(c.Announcements, domain.Announcement{
					InstitutionID: institutionID,
					CourseID:      courseID,
					ExternalID:    it.ExternalID,
					Title:         it.Title,
					Body:          it.Body,
					PostedAt:      it.PostedAt,
				})
			case ItemStaff:
				c.Staff = append(c.Staff, domain.StaffMember{
					InstitutionID: institutionID,
					CourseID:      courseID,
					Name:          it.Title,
					Email:         it.Email,
					Role:          it.Role,
				})
			case ItemSection:
				c.Sections = append(c.Sections, domain.Section{
					InstitutionID: institutionID,
					CourseID:      courseID,
					ExternalID:    it.ExternalID,
					Title:         it.Title,
					Order:         it.Order,
				})
			default:
				continue // unknown kinds are not counted
			}
			c.TotalItems++
		}
	}
	return c
}
