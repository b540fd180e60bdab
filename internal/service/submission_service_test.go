package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/repository"
)

func newSubmissionServiceForTest(t *testing.T) (SubmissionService, schoolFixture, *recordingEvents, func(status string) (models.Assessment, models.AssessmentQuestions)) {
	t.Helper()

	db := newTestDB(t)
	f := seedSchool(t, db)
	events := &recordingEvents{}
	svc := NewSubmissionService(
		repository.NewSubmissionRepository(db),
		repository.NewAssessmentRepository(db),
		repository.NewStudentRepository(db),
		events,
		testValidator(),
		testLogger(),
	)

	now := time.Now().UTC()
	seed := func(status string) (models.Assessment, models.AssessmentQuestions) {
		return seedAssessment(t, db, f, status, now.Add(-time.Hour), now.Add(24*time.Hour))
	}
	return svc, f, events, seed
}

func TestSubmitStoresEveryQuestion(t *testing.T) {
	svc, f, events, seed := newSubmissionServiceForTest(t)
	assessment, questions := seed(models.AssessmentStatusActive)
	require.Equal(t, 3.0, assessment.TotalMarks)

	resp, err := svc.Submit(context.Background(), dto.SubmissionCreateRequest{
		AssessmentID: assessment.ID,
		StudentID:    f.Student.ID,
		Answers: []dto.SubmitAnswer{
			{QuestionID: questions.Questions[0].QuestionID, Answer: "  Chlorophyll "},
		},
		TimeTaken: 12,
	})
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusSubmitted, resp.Status)
	require.Equal(t, 3.0, resp.TotalMarks)
	require.Len(t, resp.Answers, 2, "skipped questions keep an empty answer row")
	require.Equal(t, "Chlorophyll", resp.Answers[0].StudentAnswer)
	require.Empty(t, resp.Answers[1].StudentAnswer)
	require.Equal(t, 2.0, resp.Answers[1].MaxMarks)
	require.Contains(t, events.names(), "submission.created")
}

func TestSubmitRejectsDuplicate(t *testing.T) {
	svc, f, _, seed := newSubmissionServiceForTest(t)
	assessment, questions := seed(models.AssessmentStatusActive)

	payload := dto.SubmissionCreateRequest{
		AssessmentID: assessment.ID,
		StudentID:    f.Student.ID,
		Answers:      []dto.SubmitAnswer{{QuestionID: questions.Questions[0].QuestionID, Answer: "Chlorophyll"}},
	}
	_, err := svc.Submit(context.Background(), payload)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), payload)
	require.ErrorIs(t, err, ErrDuplicateSubmission)

	submissions, err := svc.ListByAssessment(context.Background(), assessment.ID)
	require.NoError(t, err)
	require.Len(t, submissions, 1)
}

func TestSubmitRequiresActiveAssessment(t *testing.T) {
	for _, status := range []string{
		models.AssessmentStatusDraft,
		models.AssessmentStatusScheduled,
		models.AssessmentStatusClosed,
		models.AssessmentStatusGraded,
	} {
		t.Run(status, func(t *testing.T) {
			svc, f, _, seed := newSubmissionServiceForTest(t)
			assessment, questions := seed(status)

			_, err := svc.Submit(context.Background(), dto.SubmissionCreateRequest{
				AssessmentID: assessment.ID,
				StudentID:    f.Student.ID,
				Answers:      []dto.SubmitAnswer{{QuestionID: questions.Questions[0].QuestionID, Answer: "Chlorophyll"}},
			})
			require.ErrorIs(t, err, ErrAssessmentNotActive)
		})
	}
}

func TestSubmitRejectsUnknownQuestion(t *testing.T) {
	svc, f, _, seed := newSubmissionServiceForTest(t)
	assessment, _ := seed(models.AssessmentStatusActive)

	_, err := svc.Submit(context.Background(), dto.SubmissionCreateRequest{
		AssessmentID: assessment.ID,
		StudentID:    f.Student.ID,
		Answers:      []dto.SubmitAnswer{{QuestionID: "not-a-question", Answer: "x"}},
	})
	require.ErrorIs(t, err, ErrInvalidAnswers)

	status, err := svc.Status(context.Background(), assessment.ID, f.Student.ID)
	require.NoError(t, err)
	require.False(t, status.Submitted)
}

func TestSubmitUnknownStudentAndAssessment(t *testing.T) {
	svc, f, _, seed := newSubmissionServiceForTest(t)
	assessment, questions := seed(models.AssessmentStatusActive)
	answers := []dto.SubmitAnswer{{QuestionID: questions.Questions[0].QuestionID, Answer: "Chlorophyll"}}

	_, err := svc.Submit(context.Background(), dto.SubmissionCreateRequest{AssessmentID: assessment.ID, StudentID: 999, Answers: answers})
	require.ErrorIs(t, err, ErrStudentNotFound)

	_, err = svc.Submit(context.Background(), dto.SubmissionCreateRequest{AssessmentID: 999, StudentID: f.Student.ID, Answers: answers})
	require.ErrorIs(t, err, ErrAssessmentNotFound)
}
