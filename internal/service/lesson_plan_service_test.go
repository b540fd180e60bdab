package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/repository"
)

type stubPlanner struct {
	err error
}

func (s stubPlanner) Plan(_ context.Context, input LessonPlanInput) AgentResult[PlannedLesson] {
	if s.err != nil {
		return agentFailed[PlannedLesson](s.err)
	}
	lesson := PlannedLesson{
		OverallObjectives: []string{"Describe how plants make food"},
		LearningOutcomes:  []string{"Explain the role of chlorophyll"},
		Prerequisites:     []string{"Parts of a plant"},
	}
	topics := [][]string{{"Chlorophyll", "Sunlight"}, {"Glucose", "Chlorophyll"}}
	for i := 0; i < input.Sessions; i++ {
		lesson.Sessions = append(lesson.Sessions, PlannedSession{
			SessionNumber:      i + 1,
			LearningObjectives: []string{"Objective"},
			TopicsCovered:      topics[i%len(topics)],
			TeachingFlow:       []models.TeachingStep{{TimeSlot: "0-10 min", Activity: "Warm up", Description: "Recap"}},
		})
	}
	return agentSucceeded(lesson)
}

type stubGenerator struct{}

func (stubGenerator) GenerateQuestions(_ context.Context, input QuestionInput) AgentResult[[]models.Question] {
	if len(input.Topics) == 0 {
		return agentFailed[[]models.Question](ErrNoTopics)
	}
	return agentSucceeded(sampleQuestions())
}

type stubCurator struct{}

func (stubCurator) Curate(_ context.Context, input CurationInput) AgentResult[CurationResult] {
	out := CurationResult{ByTopic: map[string][]models.SessionResource{}}
	for _, topic := range input.Topics {
		video := models.SessionResource{Kind: models.ResourceKindVideo, Title: topic + " explained", URL: "https://www.youtube.com/watch?v=" + topic, Topic: topic}
		out.Videos = append(out.Videos, video)
		out.ByTopic[topic] = []models.SessionResource{video}
	}
	return agentSucceeded(out)
}

type teachingStack struct {
	db          *gorm.DB
	school      schoolFixture
	plans       LessonPlanService
	assessments AssessmentService
	submissions SubmissionService
	grading     GradingScheduler
	sweeper     *assessmentSweeper
	jobs        JobRunner
	events      *recordingEvents
}

func newTeachingStack(t *testing.T, planner LessonPlanningAgent) teachingStack {
	t.Helper()

	db := newTestDB(t)
	f := seedSchool(t, db)
	validate := testValidator()
	logger := testLogger()
	events := &recordingEvents{}

	planRepo := repository.NewLessonPlanRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	notifications := NewNotificationService(repository.NewNotificationRepository(db), NotificationFanout{}, validate, logger)

	jobs := NewJobRunner(repository.NewJobRepository(db), notifications, JobRunnerConfig{Workers: 1, QueueSize: 8, Timeout: 10 * time.Second}, logger)
	jobs.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = jobs.Shutdown(ctx)
	})

	assessments := NewAssessmentService(assessmentRepo, planRepo, stubGenerator{}, nil, events, validate, logger)
	workflow := NewWorkflowService(planRepo, stubCurator{}, assessments, nil, events, logger)
	plans := NewLessonPlanService(LessonPlanDependencies{
		Plans:     planRepo,
		Grades:    repository.NewGradeRepository(db),
		Subjects:  repository.NewSubjectRepository(db),
		Chapters:  repository.NewChapterRepository(db),
		Materials: NewUploadService(nil, repository.NewMaterialRepository(db), planRepo, 1, logger),
		Planner:   planner,
		Workflow:  workflow,
		Jobs:      jobs,
		Events:    events,
	}, validate, logger)

	grader := NewSubmissionGradingAgent(&scriptedChat{responses: replies(`{"marks": 2, "accuracy_percentage": 95, "feedback": "Well explained."}`)}, AgentConfig{}, logger)

	return teachingStack{
		db:          db,
		school:      f,
		plans:       plans,
		assessments: assessments,
		submissions: NewSubmissionService(submissionRepo, assessmentRepo, repository.NewStudentRepository(db), events, validate, logger),
		grading:     NewGradingScheduler(submissionRepo, assessmentRepo, grader, nil, events, GradingSchedulerConfig{}, logger),
		sweeper:     NewAssessmentSweeper(assessmentRepo, nil, events, notifications, logger).(*assessmentSweeper),
		jobs:        jobs,
		events:      events,
	}
}

func (s teachingStack) generate(t *testing.T, sessions int) dto.LessonPlanGenerateResponse {
	t.Helper()
	resp, err := s.plans.Generate(context.Background(), dto.LessonPlanGenerateRequest{
		TeacherID:     s.school.Teacher.ID,
		SubjectID:     s.school.Subject.ID,
		GradeID:       s.school.Grade.ID,
		ChapterID:     s.school.Chapter.ID,
		ChapterNumber: 3,
		Sessions:      sessions,
	})
	require.NoError(t, err)
	return resp
}

func (s teachingStack) waitForJob(t *testing.T, jobID string) dto.JobResponse {
	t.Helper()
	var job dto.JobResponse
	require.Eventually(t, func() bool {
		current, err := s.jobs.Get(context.Background(), jobID)
		if err != nil {
			return false
		}
		job = current
		return job.Status == models.JobStatusSucceeded || job.Status == models.JobStatusFailed
	}, 5*time.Second, 20*time.Millisecond)
	return job
}

func TestGenerateLessonPlanValidatesBounds(t *testing.T) {
	stack := newTeachingStack(t, stubPlanner{})
	base := dto.LessonPlanGenerateRequest{
		TeacherID:     stack.school.Teacher.ID,
		SubjectID:     stack.school.Subject.ID,
		GradeID:       stack.school.Grade.ID,
		ChapterID:     stack.school.Chapter.ID,
		ChapterNumber: 3,
	}

	tooMany := base
	tooMany.Sessions = 21
	_, err := stack.plans.Generate(context.Background(), tooMany)
	require.ErrorIs(t, err, ErrInvalidSessionCount)

	tooShort := base
	tooShort.Sessions = 2
	tooShort.SessionDuration = 20
	_, err = stack.plans.Generate(context.Background(), tooShort)
	require.ErrorIs(t, err, ErrInvalidSessionDuration)

	wrongChapter := base
	wrongChapter.Sessions = 2
	wrongChapter.ChapterID = 999
	_, err = stack.plans.Generate(context.Background(), wrongChapter)
	require.ErrorIs(t, err, ErrChapterNotFound)
}

func TestGenerateLessonPlanPlannerFailureStoresNothing(t *testing.T) {
	stack := newTeachingStack(t, stubPlanner{err: externalError("openrouter", errors.New("503"))})
	_, err := stack.plans.Generate(context.Background(), dto.LessonPlanGenerateRequest{
		TeacherID:     stack.school.Teacher.ID,
		SubjectID:     stack.school.Subject.ID,
		GradeID:       stack.school.Grade.ID,
		ChapterID:     stack.school.Chapter.ID,
		ChapterNumber: 3,
		Sessions:      2,
	})
	require.Error(t, err)

	plans, err := stack.plans.ListByTeacher(context.Background(), stack.school.Teacher.ID)
	require.NoError(t, err)
	require.Empty(t, plans)
}

func TestCompleteSessionTwiceKeepsFirstCompletion(t *testing.T) {
	stack := newTeachingStack(t, stubPlanner{})
	plan := stack.generate(t, 2).LessonPlan

	first, err := stack.plans.CompleteSession(context.Background(), plan.ID, 1)
	require.NoError(t, err)
	require.False(t, first.AllSessionsCompleted)

	_, err = stack.plans.CompleteSession(context.Background(), plan.ID, 1)
	require.ErrorIs(t, err, ErrSessionAlreadyCompleted)

	_, err = stack.plans.CompleteSession(context.Background(), plan.ID, 7)
	require.ErrorIs(t, err, ErrSessionNotFound)

	stored, err := stack.plans.Get(context.Background(), plan.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.SessionDetails[0].CompletedAt)
	require.WithinDuration(t, first.CompletedAt, *stored.SessionDetails[0].CompletedAt, time.Millisecond)
	require.Empty(t, stored.SessionDetails[1].Status)

	last, err := stack.plans.CompleteSession(context.Background(), plan.ID, 2)
	require.NoError(t, err)
	require.True(t, last.AllSessionsCompleted)
}

func TestLessonPlanStatusTransitions(t *testing.T) {
	stack := newTeachingStack(t, stubPlanner{})
	plan := stack.generate(t, 1).LessonPlan
	require.Equal(t, models.LessonPlanStatusDraft, plan.Status)

	_, err := stack.plans.UpdateStatus(context.Background(), plan.ID, dto.LessonPlanStatusRequest{Status: models.LessonPlanStatusCompleted})
	require.ErrorIs(t, err, ErrInvalidTransition)

	same, err := stack.plans.UpdateStatus(context.Background(), plan.ID, dto.LessonPlanStatusRequest{Status: models.LessonPlanStatusDraft})
	require.NoError(t, err)
	require.Empty(t, same.AssessmentJobID)

	_, err = stack.plans.UpdateStatus(context.Background(), plan.ID, dto.LessonPlanStatusRequest{Status: models.LessonPlanStatusArchived})
	require.NoError(t, err)

	_, err = stack.plans.UpdateStatus(context.Background(), plan.ID, dto.LessonPlanStatusRequest{Status: models.LessonPlanStatusActive})
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = stack.plans.UpdateStatus(context.Background(), plan.ID, dto.LessonPlanStatusRequest{Status: "Paused"})
	require.Error(t, err)
}

func TestCanTransitionLessonPlan(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{models.LessonPlanStatusDraft, models.LessonPlanStatusActive, true},
		{models.LessonPlanStatusDraft, models.LessonPlanStatusCompleted, false},
		{models.LessonPlanStatusActive, models.LessonPlanStatusCompleted, true},
		{models.LessonPlanStatusActive, models.LessonPlanStatusDraft, false},
		{models.LessonPlanStatusCompleted, models.LessonPlanStatusArchived, true},
		{models.LessonPlanStatusCompleted, models.LessonPlanStatusActive, false},
		{models.LessonPlanStatusArchived, models.LessonPlanStatusDraft, false},
		{models.LessonPlanStatusArchived, models.LessonPlanStatusArchived, true},
		{models.LessonPlanStatusDraft, "Unknown", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, CanTransitionLessonPlan(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestInitialAssessmentStatus(t *testing.T) {
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	require.Equal(t, models.AssessmentStatusScheduled, InitialAssessmentStatus(now.Add(time.Minute), now))
	require.Equal(t, models.AssessmentStatusDraft, InitialAssessmentStatus(now, now))
	require.Equal(t, models.AssessmentStatusDraft, InitialAssessmentStatus(now.Add(-time.Hour), now))
}

func TestSessionAssessmentRequiresCompletedSessionAndWindow(t *testing.T) {
	stack := newTeachingStack(t, stubPlanner{})
	plan := stack.generate(t, 2).LessonPlan
	now := time.Now().UTC()

	window := dto.SessionAssessmentRequest{OpensOn: now, DueDate: now.Add(time.Hour)}
	_, err := stack.plans.CreateSessionAssessment(context.Background(), plan.ID, 1, window)
	require.ErrorIs(t, err, ErrSessionNotCompleted)

	_, err = stack.plans.CompleteSession(context.Background(), plan.ID, 1)
	require.NoError(t, err)

	backwards := dto.SessionAssessmentRequest{OpensOn: now.Add(time.Hour), DueDate: now}
	_, err = stack.plans.CreateSessionAssessment(context.Background(), plan.ID, 1, backwards)
	require.ErrorIs(t, err, ErrInvalidDateWindow)

	equal := dto.SessionAssessmentRequest{OpensOn: now, DueDate: now}
	_, err = stack.plans.CreateSessionAssessment(context.Background(), plan.ID, 1, equal)
	require.ErrorIs(t, err, ErrInvalidDateWindow)

	future := dto.SessionAssessmentRequest{OpensOn: now.Add(24 * time.Hour), DueDate: now.Add(48 * time.Hour)}
	created, err := stack.plans.CreateSessionAssessment(context.Background(), plan.ID, 1, future)
	require.NoError(t, err)
	require.Equal(t, models.AssessmentStatusScheduled, created.Assessment.Status)
	require.Equal(t, 1, created.Assessment.SessionNumber)
	require.Equal(t, 3.0, created.Questions.TotalMarks)

	stored, err := stack.plans.Get(context.Background(), plan.ID)
	require.NoError(t, err)
	require.Equal(t, []uint{created.Assessment.ID}, stored.SessionDetails[0].AssessmentIDs)
}

func TestAssessmentGenerateRejectsInvertedWindow(t *testing.T) {
	stack := newTeachingStack(t, stubPlanner{})
	plan := stack.generate(t, 1).LessonPlan
	opens := time.Now().UTC().Add(time.Hour)
	due := opens.Add(-time.Minute)

	_, err := stack.assessments.Generate(context.Background(), dto.AssessmentGenerateRequest{
		LessonPlanID:   plan.ID,
		AssessmentType: models.AssessmentTypeChapter,
		OpensOn:        &opens,
		DueDate:        &due,
	})
	require.ErrorIs(t, err, ErrInvalidDateWindow)

	list, err := stack.assessments.ListByTeacher(context.Background(), stack.school.Teacher.ID)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestAssessmentWindowEnforcedOnWrite(t *testing.T) {
	db := newTestDB(t)
	f := seedSchool(t, db)
	now := time.Now().UTC()

	assessment := models.Assessment{
		Title:     "Backwards",
		OpensOn:   now,
		DueDate:   now.Add(-time.Hour),
		Status:    models.AssessmentStatusDraft,
		GradeID:   f.Grade.ID,
		SubjectID: f.Subject.ID,
		TeacherID: f.Teacher.ID,
		IsActive:  true,
	}
	err := repository.NewAssessmentRepository(db).Create(context.Background(), &assessment, nil)
	require.ErrorIs(t, err, models.ErrInvalidAssessmentWindow)
}

func TestTeachingFlowEndToEnd(t *testing.T) {
	stack := newTeachingStack(t, stubPlanner{})
	ctx := context.Background()

	generated := stack.generate(t, 2)
	plan := generated.LessonPlan
	require.Len(t, plan.SessionDetails, 2)
	require.NotEmpty(t, generated.CurationJobID)

	curation := stack.waitForJob(t, generated.CurationJobID)
	require.Equal(t, models.JobStatusSucceeded, curation.Status, curation.Error)

	curated, err := stack.plans.Get(ctx, plan.ID)
	require.NoError(t, err)
	require.Len(t, curated.RecommendedVideos, 3, "one video per unique topic")
	require.NotEmpty(t, curated.SessionDetails[0].Resources)

	for _, number := range []int{1, 2} {
		_, err := stack.plans.CompleteSession(ctx, plan.ID, number)
		require.NoError(t, err)
	}

	opens := time.Now().UTC().Add(-time.Minute)
	created, err := stack.plans.CreateSessionAssessment(ctx, plan.ID, 1, dto.SessionAssessmentRequest{OpensOn: opens, DueDate: opens.Add(time.Hour)})
	require.NoError(t, err)
	require.Equal(t, models.AssessmentStatusDraft, created.Assessment.Status)

	summary, err := stack.sweeper.Sweep(ctx)
	require.NoError(t, err)
	require.Contains(t, summary.Activated, created.Assessment.ID)

	questions, err := stack.assessments.Questions(ctx, created.Assessment.ID, false)
	require.NoError(t, err)
	submitted, err := stack.submissions.Submit(ctx, dto.SubmissionCreateRequest{
		AssessmentID: created.Assessment.ID,
		StudentID:    stack.school.Student.ID,
		Answers: []dto.SubmitAnswer{
			{QuestionID: questions.Questions[0].QuestionID, Answer: "Chlorophyll"},
			{QuestionID: questions.Questions[1].QuestionID, Answer: "Chlorophyll reflects green light."},
		},
		TimeTaken: 9,
	})
	require.NoError(t, err)

	run, err := stack.grading.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, run.Graded)

	graded, err := stack.submissions.Get(ctx, submitted.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusGraded, graded.Status)
	require.InDelta(t, 100.0, graded.Percentage, 0.001)

	stack.sweeper.now = func() time.Time { return opens.Add(2 * time.Hour) }
	summary, err = stack.sweeper.Sweep(ctx)
	require.NoError(t, err)
	require.Contains(t, summary.Closed, created.Assessment.ID)
	require.Contains(t, summary.Graded, created.Assessment.ID)

	_, err = stack.plans.UpdateStatus(ctx, plan.ID, dto.LessonPlanStatusRequest{Status: models.LessonPlanStatusActive})
	require.NoError(t, err)
	completed, err := stack.plans.UpdateStatus(ctx, plan.ID, dto.LessonPlanStatusRequest{Status: models.LessonPlanStatusCompleted})
	require.NoError(t, err)
	require.NotEmpty(t, completed.AssessmentJobID)

	chapterJob := stack.waitForJob(t, completed.AssessmentJobID)
	require.Equal(t, models.JobStatusSucceeded, chapterJob.Status, chapterJob.Error)

	final, err := stack.plans.Get(ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, models.LessonPlanStatusCompleted, final.Status)
	require.NotNil(t, final.ChapterWiseAssessment)

	chapter, err := stack.assessments.Get(ctx, *final.ChapterWiseAssessment)
	require.NoError(t, err)
	require.Equal(t, models.AssessmentTypeChapter, chapter.AssessmentType)
	require.Equal(t, "Chapter Assessment - Photosynthesis", chapter.Title)

	require.Subset(t, stack.events.names(), []string{
		"lesson_plan.created",
		"lesson_plan.curated",
		"lesson_plan.session_completed",
		"assessment.created",
		"submission.created",
		"submission.graded",
		"assessment.status_changed",
		"lesson_plan.status_changed",
	})
}
