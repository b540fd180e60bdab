package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/repository"
)

const (
	minSessions            = 1
	maxSessions            = 20
	minSessionDuration     = 30
	maxSessionDuration     = 120
	defaultSessionDuration = 45
)

// LessonPlanService exposes lesson plan use cases.
type LessonPlanService interface {
	Generate(ctx context.Context, payload dto.LessonPlanGenerateRequest) (dto.LessonPlanGenerateResponse, error)
	Get(ctx context.Context, id uint) (dto.LessonPlanResponse, error)
	ListByTeacher(ctx context.Context, teacherID uint) ([]dto.LessonPlanResponse, error)
	UpdateStatus(ctx context.Context, id uint, payload dto.LessonPlanStatusRequest) (dto.LessonPlanStatusResponse, error)
	Delete(ctx context.Context, id uint) error
	CompleteSession(ctx context.Context, id uint, sessionNumber int) (dto.SessionCompleteResponse, error)
	CreateSessionAssessment(ctx context.Context, id uint, sessionNumber int, payload dto.SessionAssessmentRequest) (dto.AssessmentGenerateResponse, error)
	EnqueueWorkflow(ctx context.Context, id uint, config dto.AssessmentConfig) (dto.JobResponse, error)
	EnqueueIndexing(ctx context.Context, id uint) (dto.JobResponse, error)
}

type lessonPlanService struct {
	repo      repository.LessonPlanRepository
	grades    repository.GradeRepository
	subjects  repository.SubjectRepository
	chapters  repository.ChapterRepository
	materials MaterialCleaner
	planner   LessonPlanningAgent
	workflow  WorkflowService
	indexer   ContentIndexer
	jobs      JobRunner
	events    EventPublisher
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// LessonPlanDependencies groups the collaborators of the lesson plan service.
type LessonPlanDependencies struct {
	Plans     repository.LessonPlanRepository
	Grades    repository.GradeRepository
	Subjects  repository.SubjectRepository
	Chapters  repository.ChapterRepository
	Materials MaterialCleaner
	Planner   LessonPlanningAgent
	Workflow  WorkflowService
	Indexer   ContentIndexer
	Jobs      JobRunner
	Events    EventPublisher
}

// NewLessonPlanService constructs the lesson plan service.
func NewLessonPlanService(deps LessonPlanDependencies, validate *validator.Validate, logger zerolog.Logger) LessonPlanService {
	return &lessonPlanService{
		repo:      deps.Plans,
		grades:    deps.Grades,
		subjects:  deps.Subjects,
		chapters:  deps.Chapters,
		materials: deps.Materials,
		planner:   deps.Planner,
		workflow:  deps.Workflow,
		indexer:   deps.Indexer,
		jobs:      deps.Jobs,
		events:    deps.Events,
		validator: validate,
		logger:    logger.With().Str("component", "lesson_plan_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/teachmate-api/internal/service/lesson_plan"),
		now:       time.Now,
	}
}

func (s *lessonPlanService) load(ctx context.Context, id uint) (models.LessonPlan, error) {
	plan, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.LessonPlan{}, ErrLessonPlanNotFound
		}
		return models.LessonPlan{}, err
	}
	return plan, nil
}

func notFoundAs(err error, target error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}
	return err
}

func (s *lessonPlanService) Generate(ctx context.Context, payload dto.LessonPlanGenerateRequest) (dto.LessonPlanGenerateResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.LessonPlanGenerateResponse{}, err
	}
	if payload.Sessions < minSessions || payload.Sessions > maxSessions {
		return dto.LessonPlanGenerateResponse{}, ErrInvalidSessionCount
	}
	if payload.SessionDuration == 0 {
		payload.SessionDuration = defaultSessionDuration
	}
	if payload.SessionDuration < minSessionDuration || payload.SessionDuration > maxSessionDuration {
		return dto.LessonPlanGenerateResponse{}, ErrInvalidSessionDuration
	}

	ctx, span := s.tracer.Start(ctx, "lesson_plan.generate", trace.WithAttributes(
		attribute.Int64("chapter.id", int64(payload.ChapterID)),
		attribute.Int("lesson_plan.sessions", payload.Sessions),
	))
	defer span.End()

	grade, err := s.grades.GetByID(ctx, payload.GradeID)
	if err != nil {
		return dto.LessonPlanGenerateResponse{}, notFoundAs(err, ErrGradeNotFound)
	}
	subject, err := s.subjects.GetByID(ctx, payload.SubjectID)
	if err != nil {
		return dto.LessonPlanGenerateResponse{}, notFoundAs(err, ErrSubjectNotFound)
	}
	chapter, err := s.chapters.GetByID(ctx, payload.ChapterID)
	if err != nil {
		return dto.LessonPlanGenerateResponse{}, notFoundAs(err, ErrChapterNotFound)
	}
	if chapter.SubjectID != subject.ID {
		return dto.LessonPlanGenerateResponse{}, ErrChapterNotFound
	}

	result := s.planner.Plan(ctx, LessonPlanInput{
		GradeName:       grade.GradeName,
		SubjectName:     subject.SubjectName,
		ChapterName:     chapter.ChapterName,
		Sessions:        payload.Sessions,
		SessionDuration: payload.SessionDuration,
	})
	if !result.Success {
		span.RecordError(result.Error)
		return dto.LessonPlanGenerateResponse{}, result.Error
	}

	plan := models.LessonPlan{
		TeacherID:         payload.TeacherID,
		SubjectID:         subject.ID,
		GradeID:           grade.ID,
		ChapterID:         chapter.ID,
		ChapterNumber:     payload.ChapterNumber,
		TotalSessions:     payload.Sessions,
		SessionDuration:   payload.SessionDuration,
		OverallObjectives: result.Data.OverallObjectives,
		LearningOutcomes:  result.Data.LearningOutcomes,
		Prerequisites:     result.Data.Prerequisites,
		Status:            models.LessonPlanStatusDraft,
		IsActive:          true,
	}
	for _, session := range result.Data.Sessions {
		plan.Sessions = append(plan.Sessions, models.LessonPlanSession{
			SessionNumber:      session.SessionNumber,
			LearningObjectives: session.LearningObjectives,
			TopicsCovered:      session.TopicsCovered,
			TeachingFlow:       session.TeachingFlow,
		})
	}

	if err := s.repo.Create(ctx, &plan); err != nil {
		return dto.LessonPlanGenerateResponse{}, err
	}

	stored, err := s.load(ctx, plan.ID)
	if err != nil {
		return dto.LessonPlanGenerateResponse{}, err
	}

	resp := dto.LessonPlanGenerateResponse{LessonPlan: dto.NewLessonPlanResponse(stored)}

	planID := stored.ID
	job, err := s.jobs.Enqueue(ctx, JobSpec{
		Kind:         JobKindContentCuration,
		ReferenceID:  planID,
		NotifyUserID: stored.TeacherID,
		Run: func(ctx context.Context) (map[string]interface{}, error) {
			summary, err := s.workflow.TriggerContentCuration(ctx, planID)
			if err != nil {
				return nil, err
			}
			return jobResult(summary)
		},
	})
	if err != nil {
		s.logger.Warn().Err(err).Uint("lesson_plan_id", planID).Msg("failed to enqueue content curation")
	} else {
		resp.CurationJobID = job.JobID
	}

	s.events.Publish(ctx, "lesson_plan.created", map[string]interface{}{
		"lesson_plan_id": planID,
		"teacher_id":     stored.TeacherID,
		"sessions":       stored.TotalSessions,
	})
	s.logger.Info().Uint("lesson_plan_id", planID).Int("sessions", stored.TotalSessions).Msg("lesson plan generated")

	return resp, nil
}

func (s *lessonPlanService) Get(ctx context.Context, id uint) (dto.LessonPlanResponse, error) {
	plan, err := s.load(ctx, id)
	if err != nil {
		return dto.LessonPlanResponse{}, err
	}
	return dto.NewLessonPlanResponse(plan), nil
}

func (s *lessonPlanService) ListByTeacher(ctx context.Context, teacherID uint) ([]dto.LessonPlanResponse, error) {
	plans, err := s.repo.List(ctx, repository.LessonPlanFilter{TeacherID: &teacherID})
	if err != nil {
		return nil, err
	}
	return dto.NewLessonPlanResponseSlice(plans), nil
}

// UpdateStatus applies a transition from the lesson plan table. Moving to Completed enqueues
// the chapter assessment.
func (s *lessonPlanService) UpdateStatus(ctx context.Context, id uint, payload dto.LessonPlanStatusRequest) (dto.LessonPlanStatusResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.LessonPlanStatusResponse{}, err
	}

	plan, err := s.load(ctx, id)
	if err != nil {
		return dto.LessonPlanStatusResponse{}, err
	}
	if plan.Status == payload.Status {
		return dto.LessonPlanStatusResponse{LessonPlan: dto.NewLessonPlanResponse(plan)}, nil
	}
	if !CanTransitionLessonPlan(plan.Status, payload.Status) {
		return dto.LessonPlanStatusResponse{}, ErrInvalidTransition
	}

	if err := s.repo.UpdateStatus(ctx, id, payload.Status); err != nil {
		return dto.LessonPlanStatusResponse{}, notFoundAs(err, ErrLessonPlanNotFound)
	}
	from := plan.Status
	plan.Status = payload.Status

	resp := dto.LessonPlanStatusResponse{LessonPlan: dto.NewLessonPlanResponse(plan)}

	if payload.Status == models.LessonPlanStatusCompleted {
		job, err := s.jobs.Enqueue(ctx, JobSpec{
			Kind:         JobKindChapterAssessment,
			ReferenceID:  id,
			NotifyUserID: plan.TeacherID,
			Run: func(ctx context.Context) (map[string]interface{}, error) {
				generated, err := s.workflow.TriggerAssessmentGeneration(ctx, id, dto.AssessmentConfig{})
				if err != nil {
					return nil, err
				}
				return jobResult(generated.Assessment)
			},
		})
		if err != nil {
			s.logger.Warn().Err(err).Uint("lesson_plan_id", id).Msg("failed to enqueue chapter assessment")
		} else {
			resp.AssessmentJobID = job.JobID
		}
	}

	s.events.Publish(ctx, "lesson_plan.status_changed", map[string]interface{}{
		"lesson_plan_id": id,
		"from":           from,
		"to":             payload.Status,
	})
	s.logger.Info().Uint("lesson_plan_id", id).Str("from", from).Str("to", payload.Status).Msg("lesson plan status changed")

	return resp, nil
}

// Delete removes the plan, its sessions and material records. Indexed vectors are removed
// best-effort.
func (s *lessonPlanService) Delete(ctx context.Context, id uint) error {
	plan, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return notFoundAs(err, ErrLessonPlanNotFound)
	}
	if s.materials != nil {
		if _, err := s.materials.RemoveLessonPlanMaterials(ctx, id); err != nil {
			s.logger.Warn().Err(err).Uint("lesson_plan_id", id).Msg("failed to delete materials")
		}
	}
	if s.indexer != nil {
		if err := s.indexer.DeleteLessonPlan(ctx, plan); err != nil && !isProviderUnavailable(err) {
			s.logger.Warn().Err(err).Uint("lesson_plan_id", id).Msg("failed to delete indexed vectors")
		}
	}

	s.events.Publish(ctx, "lesson_plan.deleted", map[string]interface{}{"lesson_plan_id": id})
	s.logger.Info().Uint("lesson_plan_id", id).Msg("lesson plan deleted")
	return nil
}

func (s *lessonPlanService) CompleteSession(ctx context.Context, id uint, sessionNumber int) (dto.SessionCompleteResponse, error) {
	plan, err := s.load(ctx, id)
	if err != nil {
		return dto.SessionCompleteResponse{}, err
	}
	session := plan.SessionByNumber(sessionNumber)
	if session == nil {
		return dto.SessionCompleteResponse{}, ErrSessionNotFound
	}
	if session.IsCompleted() {
		return dto.SessionCompleteResponse{}, ErrSessionAlreadyCompleted
	}

	completedAt := s.now().UTC()
	completed, err := s.repo.CompleteSession(ctx, session.ID, completedAt)
	if err != nil {
		return dto.SessionCompleteResponse{}, err
	}
	if !completed {
		return dto.SessionCompleteResponse{}, ErrSessionAlreadyCompleted
	}
	session.Status = models.SessionStatusCompleted
	session.CompletedAt = &completedAt
	if fresh, err := s.load(ctx, id); err == nil {
		plan = fresh
	}

	all := plan.AllSessionsCompleted()
	s.events.Publish(ctx, "lesson_plan.session_completed", map[string]interface{}{
		"lesson_plan_id":         id,
		"session_number":         sessionNumber,
		"all_sessions_completed": all,
	})
	s.logger.Info().Uint("lesson_plan_id", id).Int("session_number", sessionNumber).Bool("all_completed", all).Msg("session completed")

	return dto.SessionCompleteResponse{
		LessonPlanID:         id,
		SessionNumber:        sessionNumber,
		CompletedAt:          completedAt,
		AllSessionsCompleted: all,
	}, nil
}

func (s *lessonPlanService) CreateSessionAssessment(ctx context.Context, id uint, sessionNumber int, payload dto.SessionAssessmentRequest) (dto.AssessmentGenerateResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssessmentGenerateResponse{}, err
	}
	if !payload.OpensOn.Before(payload.DueDate) {
		return dto.AssessmentGenerateResponse{}, ErrInvalidDateWindow
	}

	opensOn, dueDate := payload.OpensOn, payload.DueDate
	return s.workflow.TriggerSessionAssessment(ctx, id, sessionNumber, dto.AssessmentConfig{
		OpensOn:  &opensOn,
		DueDate:  &dueDate,
		ClassID:  payload.ClassID,
		Duration: payload.Duration,
	})
}

func (s *lessonPlanService) EnqueueWorkflow(ctx context.Context, id uint, config dto.AssessmentConfig) (dto.JobResponse, error) {
	if err := s.validator.Struct(config); err != nil {
		return dto.JobResponse{}, err
	}
	if config.OpensOn != nil && config.DueDate != nil && !config.OpensOn.Before(*config.DueDate) {
		return dto.JobResponse{}, ErrInvalidDateWindow
	}
	plan, err := s.load(ctx, id)
	if err != nil {
		return dto.JobResponse{}, err
	}

	return s.jobs.Enqueue(ctx, JobSpec{
		Kind:         JobKindCompleteWorkflow,
		ReferenceID:  id,
		NotifyUserID: plan.TeacherID,
		Run: func(ctx context.Context) (map[string]interface{}, error) {
			result, err := s.workflow.ExecuteCompleteWorkflow(ctx, id, config)
			if err != nil {
				return nil, err
			}
			return jobResult(result)
		},
	})
}

func (s *lessonPlanService) EnqueueIndexing(ctx context.Context, id uint) (dto.JobResponse, error) {
	plan, err := s.load(ctx, id)
	if err != nil {
		return dto.JobResponse{}, err
	}

	return s.jobs.Enqueue(ctx, JobSpec{
		Kind:         JobKindLessonPlanIndexing,
		ReferenceID:  id,
		NotifyUserID: plan.TeacherID,
		Run: func(ctx context.Context) (map[string]interface{}, error) {
			count, err := s.workflow.IndexLessonPlan(ctx, id)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"lesson_plan_id": id, "indexed_vectors": count}, nil
		},
	})
}
