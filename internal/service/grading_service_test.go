package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/repository"
)

type gradingFixture struct {
	db          *gorm.DB
	school      schoolFixture
	submissions repository.SubmissionRepository
	assessments repository.AssessmentRepository
	assessment  models.Assessment
	questions   models.AssessmentQuestions
}

func newGradingFixture(t *testing.T) gradingFixture {
	t.Helper()

	db := newTestDB(t)
	f := seedSchool(t, db)
	now := time.Now().UTC()
	assessment, questions := seedAssessment(t, db, f, models.AssessmentStatusClosed, now.Add(-48*time.Hour), now.Add(-time.Hour))
	return gradingFixture{
		db:          db,
		school:      f,
		submissions: repository.NewSubmissionRepository(db),
		assessments: repository.NewAssessmentRepository(db),
		assessment:  assessment,
		questions:   questions,
	}
}

func (g gradingFixture) submit(t *testing.T, mcq, short string) models.Submission {
	t.Helper()

	submission := models.Submission{
		AssessmentID: g.assessment.ID,
		StudentID:    g.school.Student.ID,
		Answers: []models.SubmissionAnswer{
			{QuestionID: g.questions.Questions[0].QuestionID, QuestionText: g.questions.Questions[0].Question, StudentAnswer: mcq, MaxMarks: 1},
			{QuestionID: g.questions.Questions[1].QuestionID, QuestionText: g.questions.Questions[1].Question, StudentAnswer: short, MaxMarks: 2},
		},
		TotalMarks:  g.questions.TotalMarks,
		Status:      models.SubmissionStatusSubmitted,
		SubmittedAt: time.Now().UTC(),
	}
	require.NoError(t, g.submissions.Create(context.Background(), &submission))
	return submission
}

func (g gradingFixture) scheduler(grader SubmissionGradingAgent) GradingScheduler {
	return NewGradingScheduler(g.submissions, g.assessments, grader, nil, nopEvents(), GradingSchedulerConfig{}, testLogger())
}

func TestGradeSubmissionScoresAnswers(t *testing.T) {
	g := newGradingFixture(t)
	submission := g.submit(t, "chlorophyll", "Chlorophyll reflects green wavelengths.")

	llm := &scriptedChat{responses: replies(`{"marks": 2, "accuracy_percentage": 92, "feedback": "Accurate explanation."}`)}
	grading := g.scheduler(NewSubmissionGradingAgent(llm, AgentConfig{}, testLogger()))

	require.NoError(t, grading.GradeSubmission(context.Background(), submission.ID))

	stored, err := g.submissions.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusGraded, stored.Status)
	require.NotNil(t, stored.GradedAt)
	require.Equal(t, 3.0, stored.TotalMarksObtained)
	require.InDelta(t, 100.0, stored.Percentage, 0.001)
	require.True(t, stored.Answers[0].IsCorrect)
	require.Equal(t, "Chlorophyll", stored.Answers[0].CorrectAnswer)
	require.Equal(t, "Accurate explanation.", stored.Answers[1].AIFeedback)
	require.Contains(t, stored.AIGradingNotes, "Q2: 92% accurate")
	require.Equal(t, 1, llm.calls(), "objective questions are graded without the model")
}

func TestGradeSubmissionHalfMarksBand(t *testing.T) {
	g := newGradingFixture(t)
	submission := g.submit(t, "Keratin", "Because of the sun.")

	llm := &scriptedChat{responses: replies(`{"marks": 1, "accuracy_percentage": 60, "feedback": "Partially correct."}`)}
	grading := g.scheduler(NewSubmissionGradingAgent(llm, AgentConfig{}, testLogger()))
	require.NoError(t, grading.GradeSubmission(context.Background(), submission.ID))

	stored, err := g.submissions.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Equal(t, 0.0, stored.Answers[0].MarksObtained)
	require.Equal(t, 1.0, stored.Answers[1].MarksObtained)
	require.False(t, stored.Answers[1].IsCorrect)
	require.InDelta(t, 100.0/3.0, stored.Percentage, 0.001)
}

func TestGradeSubmissionRollsBackOnProviderFailure(t *testing.T) {
	g := newGradingFixture(t)
	submission := g.submit(t, "Chlorophyll", "Leaves contain chlorophyll.")

	llm := &scriptedChat{err: errors.New("upstream timeout")}
	grading := g.scheduler(NewSubmissionGradingAgent(llm, AgentConfig{}, testLogger()))

	err := grading.GradeSubmission(context.Background(), submission.ID)
	require.Error(t, err)
	var external *ExternalError
	require.ErrorAs(t, err, &external)

	stored, err := g.submissions.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusSubmitted, stored.Status)
	require.Nil(t, stored.GradedAt)
	require.Zero(t, stored.TotalMarksObtained)
	require.Empty(t, stored.Answers[0].CorrectAnswer, "partial grading is not persisted")
}

func TestGradeSubmissionScoresUnreadableJudgementAsZero(t *testing.T) {
	g := newGradingFixture(t)
	submission := g.submit(t, "Chlorophyll", "Leaves contain chlorophyll.")

	llm := &scriptedChat{responses: replies("The student clearly understands photosynthesis.")}
	grading := g.scheduler(NewSubmissionGradingAgent(llm, AgentConfig{}, testLogger()))
	require.NoError(t, grading.GradeSubmission(context.Background(), submission.ID))

	stored, err := g.submissions.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusGraded, stored.Status)
	require.Equal(t, 1.0, stored.TotalMarksObtained)
	require.True(t, stored.Answers[0].IsCorrect)
	require.Zero(t, stored.Answers[1].MarksObtained)
	require.Contains(t, stored.AIGradingNotes, "Q2: Grading failed - ")
}

func TestGradingRunOnceMovesPastUnreadableJudgements(t *testing.T) {
	g := newGradingFixture(t)
	older := g.submit(t, "Chlorophyll", "Something about leaves.")
	newer := g.submit(t, "Chlorophyll", "Chlorophyll reflects green light.")

	llm := &scriptedChat{responses: replies(
		"Sorry, I cannot grade this.",
		`{"marks": 2, "accuracy_percentage": 95, "feedback": "Correct."}`,
	)}
	grading := NewGradingScheduler(g.submissions, g.assessments, NewSubmissionGradingAgent(llm, AgentConfig{}, testLogger()), nil, nopEvents(), GradingSchedulerConfig{BatchSize: 1}, testLogger())

	summary, err := grading.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, GradingRunSummary{Pending: 1, Graded: 1}, summary)

	summary, err = grading.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, GradingRunSummary{Pending: 1, Graded: 1}, summary)

	first, err := g.submissions.GetByID(context.Background(), older.ID)
	require.NoError(t, err)
	require.True(t, first.IsGraded())
	require.Equal(t, 1.0, first.TotalMarksObtained)

	second, err := g.submissions.GetByID(context.Background(), newer.ID)
	require.NoError(t, err)
	require.True(t, second.IsGraded())
	require.Equal(t, 3.0, second.TotalMarksObtained)
	require.Equal(t, 2, llm.calls())
}

func TestSaveQuestionsRecomputesTotalMarks(t *testing.T) {
	g := newGradingFixture(t)
	ctx := context.Background()
	require.Equal(t, 3.0, g.questions.TotalMarks)

	questions, err := g.assessments.GetQuestions(ctx, g.assessment.ID)
	require.NoError(t, err)
	questions.Questions[1].Marks = 5
	questions.Questions = append(questions.Questions, models.Question{
		Question:  "Name the gas released during photosynthesis.",
		InputType: models.InputTypeShortAnswer,
		Marks:     4,
	})
	require.NoError(t, g.assessments.SaveQuestions(ctx, &questions))
	require.Equal(t, 10.0, questions.TotalMarks)

	stored, err := g.assessments.GetQuestions(ctx, g.assessment.ID)
	require.NoError(t, err)
	require.Equal(t, 10.0, stored.TotalMarks)
	require.Len(t, stored.Questions, 3)
	require.NotEmpty(t, stored.Questions[2].QuestionID)
	require.Equal(t, 3, stored.Questions[2].Order)

	assessment, err := g.assessments.GetByID(ctx, g.assessment.ID)
	require.NoError(t, err)
	require.Equal(t, 10.0, assessment.TotalMarks)
}

func TestGradeSubmissionSkipsClaimedSubmission(t *testing.T) {
	g := newGradingFixture(t)
	submission := g.submit(t, "Chlorophyll", "")
	ok, err := g.submissions.TransitionStatus(context.Background(), submission.ID, models.SubmissionStatusSubmitted, models.SubmissionStatusGrading)
	require.NoError(t, err)
	require.True(t, ok)

	grading := g.scheduler(NewSubmissionGradingAgent(&scriptedChat{}, AgentConfig{}, testLogger()))
	err = grading.GradeSubmission(context.Background(), submission.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := g.submissions.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusGrading, stored.Status, "another grader's claim is left alone")
}

func TestGradingRunOnceRetriesFailuresNextRun(t *testing.T) {
	g := newGradingFixture(t)
	submission := g.submit(t, "Chlorophyll", "It reflects green light.")

	llm := &scriptedChat{err: errors.New("rate limited")}
	grading := g.scheduler(NewSubmissionGradingAgent(llm, AgentConfig{}, testLogger()))

	summary, err := grading.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, GradingRunSummary{Pending: 1, Failed: 1}, summary)

	llm.mu.Lock()
	llm.err = nil
	llm.responses = replies(`{"marks": 2, "accuracy_percentage": 100, "feedback": "Correct."}`)
	llm.mu.Unlock()

	summary, err = grading.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, GradingRunSummary{Pending: 1, Graded: 1}, summary)

	stored, err := g.submissions.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.True(t, stored.IsGraded())
}

type blockingGrader struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingGrader) GradeAnswer(ctx context.Context, _ models.Question, _ models.SubmissionAnswer) AgentResult[AnswerJudgement] {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	select {
	case <-b.release:
	case <-ctx.Done():
		return agentFailed[AnswerJudgement](ctx.Err())
	}
	return agentSucceeded(AnswerJudgement{Marks: 1, Accuracy: 100, Feedback: "ok"})
}

func TestTriggerManualReportsRunningSweep(t *testing.T) {
	g := newGradingFixture(t)
	g.submit(t, "Chlorophyll", "Chlorophyll.")

	grader := &blockingGrader{entered: make(chan struct{}, 1), release: make(chan struct{})}
	grading := g.scheduler(grader)
	t.Cleanup(grading.Stop)

	first := grading.TriggerManual()
	require.True(t, first.Started)

	select {
	case <-grader.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("grading run did not start")
	}

	second := grading.TriggerManual()
	require.False(t, second.Started)
	require.True(t, second.AlreadyRunning)

	_, err := grading.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrGradingInProgress)
	require.True(t, grading.Running())

	close(grader.release)
	require.Eventually(t, func() bool { return !grading.Running() }, 5*time.Second, 10*time.Millisecond)
}
