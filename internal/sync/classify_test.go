package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyGroupsByKind(t *testing.T) {
	due := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	details := []CourseDetail{
		{
			Ref:      CourseRef{ExternalID: "c1", Name: "Intro to CS"},
			Semester: "2026A",
			Items: []Item{
				{Kind: ItemAssignment, ExternalID: "a1", Title: "HW 1", DueAt: &due},
				{Kind: ItemFile, ExternalID: "f1", Title: "Lecture 1 slides"},
				{Kind: ItemStaff, Title: "Dr. Cohen", Email: "cohen@bgu.ac.il", Role: "lecturer"},
				{Kind: ItemSection, ExternalID: "s1", Title: "Week 1", Order: 1},
			},
		},
		{
			Ref: CourseRef{ExternalID: "c2", Name: "Linear Algebra"},
			Items: []Item{
				{Kind: ItemExam, ExternalID: "e1", Title: "Moed A", DueAt: &due},
				{Kind: ItemAnnouncement, ExternalID: "n1", Title: "Room change", PostedAt: due},
			},
		},
	}

	c := Classify("bgu", details)

	require.Len(t, c.Assignments, 1)
	assert.Equal(t, "c1", c.Assignments[0].CourseID)
	assert.Equal(t, "bgu", c.Assignments[0].InstitutionID)
	assert.Equal(t, &due, c.Assignments[0].DueAt)

	require.Len(t, c.Files, 1)
	require.Len(t, c.Exams, 1)
	assert.Equal(t, "c2", c.Exams[0].CourseID)
	require.Len(t, c.Announcements, 1)
	require.Len(t, c.Staff, 1)
	assert.Equal(t, "Dr. Cohen", c.Staff[0].Name)
	require.Len(t, c.Sections, 1)

	assert.Equal(t, 6, c.TotalItems)
}

func TestClassifySkipsUnknownKinds(t *testing.T) {
	details := []CourseDetail{{
		Ref: CourseRef{ExternalID: "c1"},
		Items: []Item{
			{Kind: ItemKind("quiz"), ExternalID: "q1", Title: "Quiz 1"},
			{Kind: ItemFile, ExternalID: "f1", Title: "Syllabus"},
		},
	}}

	c := Classify("tau", details)

	assert.Len(t, c.Files, 1)
	assert.Equal(t, 1, c.TotalItems, "unknown kinds must not be counted")
}

func TestClassifyEmptyInput(t *testing.T) {
	c := Classify("huji", nil)
	assert.Zero(t, c.TotalItems)
	assert.Empty(t, c.Assignments)
}
