package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/ortaizi/sync-service/internal/domain"
	"github.com/ortaizi/sync-service/internal/metrics"
	"github.com/ortaizi/sync-service/internal/queue"
	"github.com/ortaizi/sync-service/internal/retry"
)

// JobStore is the sole mutation path for SyncJob rows.
type JobStore interface {
	CreateJob(ctx context.Context, job domain.SyncJob) error
	UpdateJob(ctx context.Context, jobID string, u domain.SyncJobUpdate) (bool, error)
	GetJob(ctx context.Context, jobID string) (*domain.SyncJob, error)
	GetActiveJob(ctx context.Context, userID primitive.ObjectID) (*domain.SyncJob, error)
}

// AcademicStore persists what the pipeline fetched.
type AcademicStore interface {
	EnsureAcademicIndexes(ctx context.Context) error
	UpsertCourse(ctx context.Context, c domain.Course) error
	UpsertEnrollment(ctx context.Context, e domain.Enrollment) error
	UpsertSection(ctx context.Context, v domain.Section) error
	UpsertAssignment(ctx context.Context, v domain.Assignment) error
	UpsertFile(ctx context.Context, v domain.CourseFile) error
	UpsertStaff(ctx context.Context, v domain.StaffMember) error
	UpsertAnnouncement(ctx context.Context, v domain.Announcement) error
	UpsertExam(ctx context.Context, v domain.Exam) error
}

// Task is one dispatched pipeline run.
type Task struct {
	JobID  string
	UserID primitive.ObjectID
	Creds  Credentials
}

// Dispatch hands a created job off for detached execution. The default runs
// the pipeline on a goroutine; a queue-backed dispatcher publishes a durable
// task instead.
type Dispatch func(t Task)

type Orchestrator struct {
	jobs     JobStore
	store    AcademicStore
	source   CourseDataSource
	events   queue.Publisher
	exchange string
	policy   retry.Policy
	timeout  time.Duration
	log      *zap.Logger
	dispatch Dispatch
}

func NewOrchestrator(jobs JobStore, store AcademicStore, source CourseDataSource,
	events queue.Publisher, exchange string, timeout time.Duration, log *zap.Logger) *Orchestrator {

	if events == nil {
		events = queue.NewNoop()
	}
	o := &Orchestrator{
		jobs:     jobs,
		store:    store,
		source:   source,
		events:   events,
		exchange: exchange,
		policy:   retry.Policy{MaxAttempts: 3, InitialInterval: time.Second},
		timeout:  timeout,
		log:      log,
	}
	o.dispatch = func(t Task) { go o.Run(t) }
	return o
}

// SetDispatch replaces the default goroutine dispatch, e.g. with a durable
// queue publisher. Must be called before Start.
func (o *Orchestrator) SetDispatch(d Dispatch) { o.dispatch = d }

// SetRetryPolicy overrides the per-phase retry bounds, mostly for tests.
func (o *Orchestrator) SetRetryPolicy(p retry.Policy) { o.policy = p }

// Start creates the job row and dispatches the pipeline, returning
// immediately with the job id. Idempotent per user: while a job is active,
// Start returns its id instead of creating a duplicate. The row is created
// before dispatch, so it happens-before the pipeline's first update.
func (o *Orchestrator) Start(ctx context.Context, userID primitive.ObjectID, creds Credentials) (string, error) {
	if active, err := o.jobs.GetActiveJob(ctx, userID); err != nil {
		return "", fmt.Errorf("query active job: %w", err)
	} else if active != nil {
		o.log.Info("sync already running, reusing job",
			zap.String("job_id", active.ID), zap.String("user_id", userID.Hex()))
		return active.ID, nil
	}

	jobID := uuid.NewString()
	job := domain.SyncJob{
		ID:        jobID,
		UserID:    userID,
		Status:    domain.SyncStarting,
		Progress:  0,
		Message:   msgStarting.He,
		MessageEn: msgStarting.En,
	}
	if err := o.jobs.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create sync job: %w", err)
	}

	o.log.Info("sync job created",
		zap.String("job_id", jobID),
		zap.String("user_id", userID.Hex()),
		zap.String("institution_id", creds.InstitutionID))

	o.dispatch(Task{JobID: jobID, UserID: userID, Creds: creds})
	return jobID, nil
}

// Run executes the pipeline under the configured overall timeout and makes
// sure the job never stays non-terminal: on timeout or failure the job is
// forced to error with the causing message.
func (o *Orchestrator) Run(t Task) {
	ctx := context.Background()
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	span := tracer.StartSpan("sync.pipeline", tracer.Tag("job_id", t.JobID))
	defer span.Finish()
	ctx = tracer.ContextWithSpan(ctx, span)

	if err := o.execute(ctx, t); err != nil {
		msg := msgFailed(err.Error())
		if errors.Is(err, context.DeadlineExceeded) {
			msg = msgTimeout
		}
		o.fail(t, msg, err)
	}
}

// FailJob marks a job as failed before the pipeline could run, e.g. when the
// worker cannot load the credential for a dispatched task.
func (o *Orchestrator) FailJob(t Task, cause error) {
	o.fail(t, msgFailed(cause.Error()), cause)
}

func (o *Orchestrator) execute(ctx context.Context, t Task) error {
	log := o.log.With(zap.String("job_id", t.JobID), zap.String("user_id", t.UserID.Hex()))

	// phase 1: storage prerequisites, idempotent
	if err := o.setStatus(t.JobID, domain.SyncCreatingTables, 10, msgPreparing, nil); err != nil {
		return err
	}
	if err := o.phase("ensure_storage", func() error {
		_, err := retry.Do(ctx, o.policy, retry.Transient, func() (struct{}, error) {
			return struct{}{}, o.store.EnsureAcademicIndexes(ctx)
		})
		return err
	}); err != nil {
		return fmt.Errorf("ensure storage: %w", err)
	}

	// phase 2: course list
	if err := o.setStatus(t.JobID, domain.SyncFetchingCourses, 20, msgFetching, nil); err != nil {
		return err
	}
	var refs []CourseRef
	if err := o.phase("fetch_courses", func() error {
		var err error
		refs, err = retry.Do(ctx, o.policy, retry.Transient, func() ([]CourseRef, error) {
			return o.source.ListCourses(ctx, t.Creds)
		})
		return err
	}); err != nil {
		return fmt.Errorf("fetch course list: %w", err)
	}
	log.Info("course list fetched", zap.Int("courses", len(refs)))

	// phase 3: per-course analysis; one course's failure is logged and
	// skipped, best-effort completeness over all-or-nothing
	details := make([]CourseDetail, 0, len(refs))
	skipped := 0
	err := o.phase("analyze_courses", func() error {
		for i, ref := range refs {
			detail, err := retry.Do(ctx, o.policy, retry.Transient, func() (CourseDetail, error) {
				return o.source.FetchCourseDetail(ctx, t.Creds, ref)
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				skipped++
				log.Warn("course skipped after retries",
					zap.String("course_id", ref.ExternalID), zap.Error(err))
				continue
			}
			details = append(details, detail)

			// 20 → 70, scaled by courses processed so far
			progress := 20 + (i+1)*50/len(refs)
			if err := o.setStatus(t.JobID, domain.SyncAnalyzingContent, progress,
				msgAnalyzing(i+1, len(refs)), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("analyze courses: %w", err)
	}

	// phase 4: pure in-memory classification, never retried
	if err := o.setStatus(t.JobID, domain.SyncClassifyingData, 70, msgClassifying, nil); err != nil {
		return err
	}
	classified := Classify(t.Creds.InstitutionID, details)

	// phase 5: persistence, continue-on-error per record
	if err := o.setStatus(t.JobID, domain.SyncSaving, 90, msgSaving, nil); err != nil {
		return err
	}
	var report *BatchReport
	if err := o.phase("persist", func() error {
		report = o.persist(ctx, t, details, classified)
		return nil
	}); err != nil {
		return err
	}
	for _, f := range report.Failures {
		log.Warn("record persist failed",
			zap.String("entity", f.Entity), zap.String("key", f.Key), zap.Error(f.Err))
	}
	// minimum viable subset: the course rows themselves
	if len(details) > 0 && report.Written["course"] == 0 {
		return errors.New("persistence failed: no course records written")
	}

	// phase 6: completion
	result := &domain.SyncResult{
		Courses:          report.Written["course"],
		ProcessedCourses: len(details),
		SkippedCourses:   skipped,
		Assignments:      report.Written["assignment"],
		Files:            report.Written["file"],
		Exams:            report.Written["exam"],
		Announcements:    report.Written["announcement"],
		Staff:            report.Written["staff"],
		Sections:         report.Written["section"],
		TotalItems:       classified.TotalItems,
	}
	if err := o.setStatus(t.JobID, domain.SyncCompleted, 100, msgCompleted, result); err != nil {
		return err
	}
	metrics.SyncJobsTotal.WithLabelValues(string(domain.SyncCompleted)).Inc()
	log.Info("sync completed",
		zap.Int("courses", result.ProcessedCourses),
		zap.Int("skipped", result.SkippedCourses),
		zap.Int("items", result.TotalItems))

	o.publish(queue.KeySyncCompleted, queue.SyncCompleted{JobID: t.JobID, UserID: t.UserID, Result: *result})
	return nil
}

func (o *Orchestrator) persist(ctx context.Context, t Task, details []CourseDetail, c Classified) *BatchReport {
	report := newBatchReport()
	for _, d := range details {
		report.record("course", d.Ref.ExternalID, o.store.UpsertCourse(ctx, domain.Course{
			InstitutionID: t.Creds.InstitutionID,
			ExternalID:    d.Ref.ExternalID,
			Name:          d.Ref.Name,
			URL:           d.Ref.URL,
			Semester:      d.Semester,
		}))
		report.record("enrollment", d.Ref.ExternalID, o.store.UpsertEnrollment(ctx, domain.Enrollment{
			UserID:        t.UserID,
			InstitutionID: t.Creds.InstitutionID,
			CourseID:      d.Ref.ExternalID,
		}))
	}
	for _, v := range c.Sections {
		report.record("section", v.ExternalID, o.store.UpsertSection(ctx, v))
	}
	for _, v := range c.Assignments {
		report.record("assignment", v.ExternalID, o.store.UpsertAssignment(ctx, v))
	}
	for _, v := range c.Files {
		report.record("file", v.ExternalID, o.store.UpsertFile(ctx, v))
	}
	for _, v := range c.Staff {
		report.record("staff", v.Name, o.store.UpsertStaff(ctx, v))
	}
	for _, v := range c.Announcements {
		report.record("announcement", v.ExternalID, o.store.UpsertAnnouncement(ctx, v))
	}
	for _, v := range c.Exams {
		report.record("exam", v.ExternalID, o.store.UpsertExam(ctx, v))
	}
	return report
}

// setStatus is the single update path for the job row. Status writes use
// their own short context so a timed-out pipeline can still record its
// terminal state.
func (o *Orchestrator) setStatus(jobID string, status domain.SyncStatus, progress int, msg domain.Message, result *domain.SyncResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, err := o.jobs.UpdateJob(ctx, jobID, domain.SyncJobUpdate{
		Status:    status,
		Progress:  progress,
		Message:   msg.He,
		MessageEn: msg.En,
		Result:    result,
	})
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	if !ok {
		// terminal jobs reject updates; a delayed retry must not resurrect one
		o.log.Warn("job update refused, job already terminal",
			zap.String("job_id", jobID), zap.String("status", string(status)))
	}
	return nil
}

func (o *Orchestrator) fail(t Task, msg domain.Message, cause error) {
	o.log.Error("sync job failed",
		zap.String("job_id", t.JobID), zap.String("user_id", t.UserID.Hex()), zap.Error(cause))

	if err := o.setStatus(t.JobID, domain.SyncError, domain.ErrorProgress, msg, nil); err != nil {
		o.log.Error("failed to record job error", zap.String("job_id", t.JobID), zap.Error(err))
	}
	metrics.SyncJobsTotal.WithLabelValues(string(domain.SyncError)).Inc()
	o.publish(queue.KeySyncFailed, queue.SyncFailed{JobID: t.JobID, UserID: t.UserID, Reason: msg.En})
}

func (o *Orchestrator) phase(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.SyncPhaseDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return err
}

func (o *Orchestrator) publish(key string, event any) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := o.events.Publish(ctx, o.exchange, key, event, ""); err != nil {
		o.log.Warn("event publish failed", zap.String("key", key), zap.Error(err))
	}
}
