package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/ortaizi/sync-service/internal/domain"
	"github.com/ortaizi/sync-service/internal/retry"
)

type fakeJobs struct {
	mu      sync.Mutex
	jobs    map[string]*domain.SyncJob
	updates []domain.SyncJobUpdate
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: map[string]*domain.SyncJob{}}
}

func (f *fakeJobs) CreateJob(ctx context.Context, job domain.SyncJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	f.jobs[job.ID] = &job
	return nil
}

func (f *fakeJobs) UpdateJob(ctx context.Context, jobID string, u domain.SyncJobUpdate) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok || j.Status.Terminal() {
		return false, nil
	}
	j.Status = u.Status
	j.Progress = u.Progress
	j.Message = u.Message
	j.MessageEn = u.MessageEn
	if u.Result != nil {
		j.Result = u.Result
	}
	j.UpdatedAt = time.Now()
	f.updates = append(f.updates, u)
	return true, nil
}

func (f *fakeJobs) GetJob(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobs) GetActiveJob(ctx context.Context, userID primitive.ObjectID) (*domain.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.UserID == userID && !j.Status.Terminal() {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

type fakeAcademic struct {
	mu          sync.Mutex
	written     map[string]int
	failCourses bool
	failFiles   bool
}

func newFakeAcademic() *fakeAcademic {
	return &fakeAcademic{written: map[string]int{}}
}

func (f *fakeAcademic) write(entity string, fail bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fail {
		return fmt.Errorf("%s write failed", entity)
	}
	f.written[entity]++
	return nil
}

func (f *fakeAcademic) EnsureAcademicIndexes(ctx context.Context) error { return nil }
func (f *fakeAcademic) UpsertCourse(ctx context.Context, c domain.Course) error {
	return f.write("course", f.failCourses)
}
func (f *fakeAcademic) UpsertEnrollment(ctx context.Context, e domain.Enrollment) error {
	return f.write("enrollment", false)
}
func (f *fakeAcademic) UpsertSection(ctx context.Context, v domain.Section) error {
	return f.write("section", false)
}
func (f *fakeAcademic) UpsertAssignment(ctx context.Context, v domain.Assignment) error {
	return f.write("assignment", false)
}
func (f *fakeAcademic) UpsertFile(ctx context.Context, v domain.CourseFile) error {
	return f.write("file", f.failFiles)
}
func (f *fakeAcademic) UpsertStaff(ctx context.Context, v domain.StaffMember) error {
	return f.write("staff", false)
}
func (f *fakeAcademic) UpsertAnnouncement(ctx context.Context, v domain.Announcement) error {
	return f.write("announcement", false)
}
func (f *fakeAcademic) UpsertExam(ctx context.Context, v domain.Exam) error {
	return f.write("exam", false)
}

type fakeSource struct {
	courses    []CourseRef
	details    map[string]CourseDetail
	listErr    error
	detailErr  map[string]error
	listCalls  int
	authResult AuthResult
}

func (f *fakeSource) Authenticate(ctx context.Context, institutionID, username, secret string) (AuthResult, error) {
	return f.authResult, nil
}

func (f *fakeSource) ListCourses(ctx context.Context, creds Credentials) ([]CourseRef, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.courses, nil
}

func (f *fakeSource) FetchCourseDetail(ctx context.Context, creds Credentials, ref CourseRef) (CourseDetail, error) {
	if err := f.detailErr[ref.ExternalID]; err != nil {
		return CourseDetail{}, err
	}
	return f.details[ref.ExternalID], nil
}

func testOrchestrator(jobs *fakeJobs, store *fakeAcademic, source CourseDataSource) *Orchestrator {
	o := NewOrchestrator(jobs, store, source, nil, "sync.events", time.Minute, zap.NewNop())
	o.SetRetryPolicy(retry.Policy{MaxAttempts: 2, InitialInterval: time.Millisecond})
	return o
}

func twoCourses() *fakeSource {
	return &fakeSource{
		courses: []CourseRef{
			{ExternalID: "c1", Name: "Intro to CS"},
			{ExternalID: "c2", Name: "Calculus"},
		},
		details: map[string]CourseDetail{
			"c1": {
				Ref:      CourseRef{ExternalID: "c1", Name: "Intro to CS"},
				Semester: "2026A",
				Items: []Item{
					{Kind: ItemAssignment, ExternalID: "a1", Title: "HW 1"},
					{Kind: ItemFile, ExternalID: "f1", Title: "Slides"},
				},
			},
			"c2": {
				Ref:   CourseRef{ExternalID: "c2", Name: "Calculus"},
				Items: []Item{{Kind: ItemExam, ExternalID: "e1", Title: "Moed A"}},
			},
		},
	}
}

func TestStartReusesActiveJob(t *testing.T) {
	jobs := newFakeJobs()
	userID := primitive.NewObjectID()
	o := testOrchestrator(jobs, newFakeAcademic(), twoCourses())
	o.SetDispatch(func(Task) {}) // never run

	first, err := o.Start(context.Background(), userID, Credentials{InstitutionID: "bgu"})
	require.NoError(t, err)

	second, err := o.Start(context.Background(), userID, Credentials{InstitutionID: "bgu"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, jobs.jobs, 1)
}

func TestStartCreatesJobBeforeDispatch(t *testing.T) {
	jobs := newFakeJobs()
	userID := primitive.NewObjectID()
	o := testOrchestrator(jobs, newFakeAcademic(), twoCourses())

	var seen *domain.SyncJob
	o.SetDispatch(func(task Task) {
		seen, _ = jobs.GetJob(context.Background(), task.JobID)
	})

	jobID, err := o.Start(context.Background(), userID, Credentials{InstitutionID: "bgu"})
	require.NoError(t, err)
	require.NotNil(t, seen, "job row must exist when the task is dispatched")
	assert.Equal(t, jobID, seen.ID)
	assert.Equal(t, domain.SyncStarting, seen.Status)
}

func TestRunCompletesAndReportsResult(t *testing.T) {
	jobs := newFakeJobs()
	store := newFakeAcademic()
	source := twoCourses()
	userID := primitive.NewObjectID()
	o := testOrchestrator(jobs, store, source)
	o.SetDispatch(func(Task) {})

	jobID, err := o.Start(context.Background(), userID, Credentials{InstitutionID: "bgu", Username: "dana"})
	require.NoError(t, err)
	o.Run(Task{JobID: jobID, UserID: userID, Creds: Credentials{InstitutionID: "bgu", Username: "dana"}})

	job, err := jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.Result)
	assert.Equal(t, 2, job.Result.Courses)
	assert.Equal(t, 2, job.Result.ProcessedCourses)
	assert.Equal(t, 0, job.Result.SkippedCourses)
	assert.Equal(t, 1, job.Result.Assignments)
	assert.Equal(t, 1, job.Result.Files)
	assert.Equal(t, 1, job.Result.Exams)
	assert.Equal(t, 3, job.Result.TotalItems)
	assert.Equal(t, 2, store.written["enrollment"])
}

func TestRunProgressIsMonotonic(t *testing.T) {
	jobs := newFakeJobs()
	userID := primitive.NewObjectID()
	o := testOrchestrator(jobs, newFakeAcademic(), twoCourses())
	o.SetDispatch(func(Task) {})

	jobID, _ := o.Start(context.Background(), userID, Credentials{InstitutionID: "bgu"})
	o.Run(Task{JobID: jobID, UserID: userID, Creds: Credentials{InstitutionID: "bgu"}})

	prev := 0
	for _, u := range jobs.updates {
		require.GreaterOrEqual(t, u.Progress, prev,
			"progress went backwards at status %s", u.Status)
		prev = u.Progress
	}
	assert.Equal(t, 100, prev)
}

func TestRunSkipsFailingCourse(t *testing.T) {
	jobs := newFakeJobs()
	store := newFakeAcademic()
	source := twoCourses()
	source.detailErr = map[string]error{"c2": errors.New("page layout changed")}
	userID := primitive.NewObjectID()
	o := testOrchestrator(jobs, store, source)
	o.SetDispatch(func(Task) {})

	jobID, _ := o.Start(context.Background(), userID, Credentials{InstitutionID: "bgu"})
	o.Run(Task{JobID: jobID, UserID: userID, Creds: Credentials{InstitutionID: "bgu"}})

	job, _ := jobs.GetJob(context.Background(), jobID)
	require.Equal(t, domain.SyncCompleted, job.Status)
	assert.Equal(t, 1, job.Result.ProcessedCourses)
	assert.Equal(t, 1, job.Result.SkippedCourses)
	assert.Zero(t, job.Result.Exams, "skipped course items must not be persisted")
}

func TestRunFailsWhenCourseListUnavailable(t *testing.T) {
	jobs := newFakeJobs()
	source := twoCourses()
	source.listErr = errors.New("session expired")
	userID := primitive.NewObjectID()
	o := testOrchestrator(jobs, newFakeAcademic(), source)
	o.SetDispatch(func(Task) {})

	jobID, _ := o.Start(context.Background(), userID, Credentials{InstitutionID: "bgu"})
	o.Run(Task{JobID: jobID, UserID: userID, Creds: Credentials{InstitutionID: "bgu"}})

	job, _ := jobs.GetJob(context.Background(), jobID)
	assert.Equal(t, domain.SyncError, job.Status)
	assert.Equal(t, domain.ErrorProgress, job.Progress)
	assert.NotEmpty(t, job.Message)
	assert.NotEmpty(t, job.MessageEn)
}

func TestRunRetriesTransientListFailure(t *testing.T) {
	jobs := newFakeJobs()
	failures := 1
	wrapped := &flakyList{fakeSource: twoCourses(), failures: &failures}
	userID := primitive.NewObjectID()
	o := testOrchestrator(jobs, newFakeAcademic(), wrapped)
	o.SetDispatch(func(Task) {})

	jobID, _ := o.Start(context.Background(), userID, Credentials{InstitutionID: "bgu"})
	o.Run(Task{JobID: jobID, UserID: userID, Creds: Credentials{InstitutionID: "bgu"}})

	job, _ := jobs.GetJob(context.Background(), jobID)
	assert.Equal(t, domain.SyncCompleted, job.Status)
	assert.Zero(t, failures, "transient failure consumed by a retry")
	assert.Equal(t, 1, wrapped.listCalls, "retry succeeded on the second call")
}

type flakyList struct {
	*fakeSource
	failures *int
}

func (f *flakyList) ListCourses(ctx context.Context, creds Credentials) ([]CourseRef, error) {
	if *f.failures > 0 {
		*f.failures--
		return nil, errors.New("connection reset")
	}
	return f.fakeSource.ListCourses(ctx, creds)
}

func TestRunFailsWhenNoCourseRowsWritten(t *testing.T) {
	jobs := newFakeJobs()
	store := newFakeAcademic()
	store.failCourses = true
	userID := primitive.NewObjectID()
	o := testOrchestrator(jobs, store, twoCourses())
	o.SetDispatch(func(Task) {})

	jobID, _ := o.Start(context.Background(), userID, Credentials{InstitutionID: "bgu"})
	o.Run(Task{JobID: jobID, UserID: userID, Creds: Credentials{InstitutionID: "bgu"}})

	job, _ := jobs.GetJob(context.Background(), jobID)
	assert.Equal(t, domain.SyncError, job.Status)
}

func TestRunToleratesPartialPersistFailures(t *testing.T) {
	jobs := newFakeJobs()
	store := newFakeAcademic()
	store.failFiles = true
	userID := primitive.NewObjectID()
	o := testOrchestrator(jobs, store, twoCourses())
	o.SetDispatch(func(Task) {})

	jobID, _ := o.Start(context.Background(), userID, Credentials{InstitutionID: "bgu"})
	o.Run(Task{JobID: jobID, UserID: userID, Creds: Credentials{InstitutionID: "bgu"}})

	job, _ := jobs.GetJob(context.Background(), jobID)
	require.Equal(t, domain.SyncCompleted, job.Status)
	assert.Equal(t, 2, job.Result.Courses)
	assert.Zero(t, job.Result.Files, "failed file writes drop out of the result")
	assert.Equal(t, 1, job.Result.Assignments)
}

func TestRunCompletesWithNoCourses(t *testing.T) {
	jobs := newFakeJobs()
	source := &fakeSource{}
	userID := primitive.NewObjectID()
	o := testOrchestrator(jobs, newFakeAcademic(), source)
	o.SetDispatch(func(Task) {})

	jobID, _ := o.Start(context.Background(), userID, Credentials{InstitutionID: "bgu"})
	o.Run(Task{JobID: jobID, UserID: userID, Creds: Credentials{InstitutionID: "bgu"}})

	job, _ := jobs.GetJob(context.Background(), jobID)
	assert.Equal(t, domain.SyncCompleted, job.Status)
	assert.Zero(t, job.Result.Courses)
}

func TestTerminalJobIgnoresLateUpdates(t *testing.T) {
	jobs := newFakeJobs()
	userID := primitive.NewObjectID()
	o := testOrchestrator(jobs, newFakeAcademic(), twoCourses())
	o.SetDispatch(func(Task) {})

	jobID, _ := o.Start(context.Background(), userID, Credentials{InstitutionID: "bgu"})
	task := Task{JobID: jobID, UserID: userID, Creds: Credentials{InstitutionID: "bgu"}}
	o.Run(task)

	job, _ := jobs.GetJob(context.Background(), jobID)
	require.Equal(t, domain.SyncCompleted, job.Status)

	// a straggler failure from a timed-out duplicate must not resurrect it
	o.FailJob(task, errors.New("late straggler"))
	job, _ = jobs.GetJob(context.Background(), jobID)
	assert.Equal(t, domain.SyncCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
}
