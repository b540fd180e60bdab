package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/repository"
)

func TestAssessmentSweepTransitionsAreMonotonic(t *testing.T) {
	db := newTestDB(t)
	f := seedSchool(t, db)
	repo := repository.NewAssessmentRepository(db)
	notifications := NewNotificationService(repository.NewNotificationRepository(db), NotificationFanout{}, testValidator(), testLogger())

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	scheduled, _ := seedAssessment(t, db, f, models.AssessmentStatusScheduled, now.Add(time.Hour), now.Add(2*time.Hour))
	draft, _ := seedAssessment(t, db, f, models.AssessmentStatusDraft, now.Add(-time.Hour), now.Add(time.Hour))
	overdue, _ := seedAssessment(t, db, f, models.AssessmentStatusActive, now.Add(-3*time.Hour), now.Add(-time.Minute))
	finished, _ := seedAssessment(t, db, f, models.AssessmentStatusClosed, now.Add(-5*time.Hour), now.Add(-4*time.Hour))
	waiting, _ := seedAssessment(t, db, f, models.AssessmentStatusClosed, now.Add(-5*time.Hour), now.Add(-4*time.Hour))

	graded := time.Now().UTC()
	require.NoError(t, db.Create(&models.Submission{AssessmentID: finished.ID, StudentID: f.Student.ID, Status: models.SubmissionStatusGraded, SubmittedAt: graded, GradedAt: &graded}).Error)
	require.NoError(t, db.Create(&models.Submission{AssessmentID: waiting.ID, StudentID: f.Student.ID, Status: models.SubmissionStatusSubmitted, SubmittedAt: graded}).Error)

	events := &recordingEvents{}
	sweeper := NewAssessmentSweeper(repo, nil, events, notifications, testLogger()).(*assessmentSweeper)
	sweeper.now = func() time.Time { return now }

	summary, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []uint{draft.ID}, summary.Activated)
	require.ElementsMatch(t, []uint{overdue.ID}, summary.Closed)
	require.ElementsMatch(t, []uint{finished.ID}, summary.Graded)
	require.Len(t, events.names(), 3)

	statusOf := func(id uint) string {
		assessment, err := repo.GetByID(context.Background(), id)
		require.NoError(t, err)
		return assessment.Status
	}
	require.Equal(t, models.AssessmentStatusScheduled, statusOf(scheduled.ID))
	require.Equal(t, models.AssessmentStatusClosed, statusOf(waiting.ID))

	// a rerun at the same instant changes nothing
	summary, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Empty(t, summary.Activated)
	require.Empty(t, summary.Closed)
	require.Empty(t, summary.Graded)

	// past every window: scheduled opens and closes in one sweep, closed ones stay closed
	sweeper.now = func() time.Time { return now.Add(3 * time.Hour) }
	summary, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []uint{scheduled.ID}, summary.Activated)
	require.ElementsMatch(t, []uint{scheduled.ID, draft.ID}, summary.Closed)
	require.NotContains(t, summary.Activated, overdue.ID)
	require.Equal(t, models.AssessmentStatusClosed, statusOf(overdue.ID))
	require.Equal(t, models.AssessmentStatusGraded, statusOf(finished.ID))

	teacherNotes, err := notifications.List(context.Background(), f.Teacher.ID, false, 50, 0)
	require.NoError(t, err)
	// overdue closed, finished graded, then scheduled and draft closed
	require.Len(t, teacherNotes.Items, 4)
}

func TestAssessmentSweepReportsOnlyRowsItChanged(t *testing.T) {
	db := newTestDB(t)
	f := seedSchool(t, db)
	now := time.Now().UTC()
	closedByHand, _ := seedAssessment(t, db, f, models.AssessmentStatusDraft, now.Add(-time.Hour), now.Add(time.Hour))
	opened, _ := seedAssessment(t, db, f, models.AssessmentStatusDraft, now.Add(-time.Hour), now.Add(time.Hour))

	// a teacher closes one assessment right after the sweep has selected it
	var once sync.Once
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:close_by_hand", func(tx *gorm.DB) {
		if tx.Statement.Table != "assessments" {
			return
		}
		once.Do(func() {
			require.NoError(t, db.Exec("UPDATE assessments SET status = ? WHERE id = ?", models.AssessmentStatusClosed, closedByHand.ID).Error)
		})
	}))

	events := &recordingEvents{}
	summary, err := NewAssessmentSweeper(repository.NewAssessmentRepository(db), nil, events, nil, testLogger()).Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uint{opened.ID}, summary.Activated)
	require.Empty(t, summary.Closed)
	require.Len(t, events.names(), 1)

	var stored models.Assessment
	require.NoError(t, db.First(&stored, closedByHand.ID).Error)
	require.Equal(t, models.AssessmentStatusClosed, stored.Status)
}

func TestAssessmentSweepSkipsInactiveAssessments(t *testing.T) {
	db := newTestDB(t)
	f := seedSchool(t, db)
	repo := repository.NewAssessmentRepository(db)

	now := time.Now().UTC()
	hidden, _ := seedAssessment(t, db, f, models.AssessmentStatusDraft, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, db.Model(&models.Assessment{}).Where("id = ?", hidden.ID).Update("is_active", false).Error)

	summary, err := NewAssessmentSweeper(repo, nil, nopEvents(), nil, testLogger()).Sweep(context.Background())
	require.NoError(t, err)
	require.Empty(t, summary.Activated)
}

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestSweepLeaseExcludesSecondHolder(t *testing.T) {
	mr, client := newMiniredisClient(t)
	first := NewSweepLease(client, "teachmate", time.Minute)
	second := NewSweepLease(client, "teachmate", time.Minute)

	release, ok, err := first.Acquire(context.Background(), "assessment-sweep")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, mr.Exists("teachmate:lease:assessment-sweep"))

	_, ok, err = second.Acquire(context.Background(), "assessment-sweep")
	require.NoError(t, err)
	require.False(t, ok)

	release()
	require.False(t, mr.Exists("teachmate:lease:assessment-sweep"))

	release2, ok, err := second.Acquire(context.Background(), "assessment-sweep")
	require.NoError(t, err)
	require.True(t, ok)
	release2()
}

func TestSweepLeaseReleaseKeepsForeignToken(t *testing.T) {
	mr, client := newMiniredisClient(t)
	lease := NewSweepLease(client, "teachmate", time.Second)

	release, ok, err := lease.Acquire(context.Background(), "grading")
	require.NoError(t, err)
	require.True(t, ok)

	// the lease expired and another instance took it over
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("teachmate:lease:grading", "other-instance"))

	release()
	value, err := mr.Get("teachmate:lease:grading")
	require.NoError(t, err)
	require.Equal(t, "other-instance", value)
}

func TestSweepSkippedWhileLeaseHeldElsewhere(t *testing.T) {
	db := newTestDB(t)
	f := seedSchool(t, db)
	now := time.Now().UTC()
	seedAssessment(t, db, f, models.AssessmentStatusDraft, now.Add(-time.Hour), now.Add(time.Hour))

	mr, client := newMiniredisClient(t)
	require.NoError(t, mr.Set("teachmate:lease:assessment-sweep", "someone-else"))

	sweeper := NewAssessmentSweeper(repository.NewAssessmentRepository(db), NewSweepLease(client, "teachmate", time.Minute), nopEvents(), nil, testLogger())
	summary, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Empty(t, summary.Activated)
}

func TestNewSchedulerRejectsInvalidSpec(t *testing.T) {
	_, err := NewScheduler(SchedulerConfig{AssessmentSpec: "every now and then"}, nil, nil, testLogger())
	require.Error(t, err)

	grading := NewGradingScheduler(nil, nil, nil, nil, nopEvents(), GradingSchedulerConfig{}, testLogger())
	scheduler, err := NewScheduler(SchedulerConfig{}, NewAssessmentSweeper(nil, nil, nopEvents(), nil, testLogger()), grading, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, scheduler.Stop(ctx))
}
