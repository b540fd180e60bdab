package service

import (
	"context"
	"errors"
	"fmt"
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
	defaultAssessmentDuration = 30
	defaultAssessmentWindow   = 7 * 24 * time.Hour
)

// AssessmentService exposes assessment use cases.
type AssessmentService interface {
	Generate(ctx context.Context, payload dto.AssessmentGenerateRequest) (dto.AssessmentGenerateResponse, error)
	Get(ctx context.Context, id uint) (dto.AssessmentResponse, error)
	Questions(ctx context.Context, id uint, reveal bool) (dto.AssessmentQuestionsResponse, error)
	ListByTeacher(ctx context.Context, teacherID uint) ([]dto.AssessmentResponse, error)
	UpdateStatus(ctx context.Context, id uint, payload dto.AssessmentStatusRequest) (dto.AssessmentResponse, error)
}

type assessmentService struct {
	repo      repository.AssessmentRepository
	plans     repository.LessonPlanRepository
	generator AssessmentGeneratorAgent
	indexer   ContentIndexer
	events    EventPublisher
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewAssessmentService constructs the assessment service.
func NewAssessmentService(repo repository.AssessmentRepository, plans repository.LessonPlanRepository, generator AssessmentGeneratorAgent, indexer ContentIndexer, events EventPublisher, validate *validator.Validate, logger zerolog.Logger) AssessmentService {
	return &assessmentService{
		repo:      repo,
		plans:     plans,
		generator: generator,
		indexer:   indexer,
		events:    events,
		validator: validate,
		logger:    logger.With().Str("component", "assessment_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/teachmate-api/internal/service/assessment"),
		now:       time.Now,
	}
}

// assessmentTitle names generated assessments after their session or chapter.
func assessmentTitle(assessmentType string, sessionNumber int, chapter string) string {
	if assessmentType == models.AssessmentTypeSession {
		return fmt.Sprintf("Session %d Assessment - %s", sessionNumber, chapter)
	}
	return fmt.Sprintf("Chapter Assessment - %s", chapter)
}

func (s *assessmentService) Generate(ctx context.Context, payload dto.AssessmentGenerateRequest) (dto.AssessmentGenerateResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssessmentGenerateResponse{}, err
	}
	if payload.AssessmentType == models.AssessmentTypeSession && payload.SessionNumber < 1 {
		return dto.AssessmentGenerateResponse{}, ErrSessionNotFound
	}

	ctx, span := s.tracer.Start(ctx, "assessment.generate", trace.WithAttributes(
		attribute.Int64("lesson_plan.id", int64(payload.LessonPlanID)),
		attribute.String("assessment.type", payload.AssessmentType),
		attribute.Int("session.number", payload.SessionNumber),
	))
	defer span.End()

	now := s.now().UTC()
	opensOn := now
	if payload.OpensOn != nil {
		opensOn = payload.OpensOn.UTC()
	}
	dueDate := opensOn.Add(defaultAssessmentWindow)
	if payload.DueDate != nil {
		dueDate = payload.DueDate.UTC()
	}
	if !opensOn.Before(dueDate) {
		return dto.AssessmentGenerateResponse{}, ErrInvalidDateWindow
	}

	plan, err := s.plans.GetByID(ctx, payload.LessonPlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssessmentGenerateResponse{}, ErrLessonPlanNotFound
		}
		return dto.AssessmentGenerateResponse{}, err
	}

	var (
		session *models.LessonPlanSession
		topics  []string
	)
	if payload.AssessmentType == models.AssessmentTypeSession {
		session = plan.SessionByNumber(payload.SessionNumber)
		if session == nil {
			return dto.AssessmentGenerateResponse{}, ErrSessionNotFound
		}
		topics = []string(session.TopicsCovered)
	} else {
		payload.SessionNumber = 0
		topics = plan.UniqueTopics()
	}

	result := s.generator.GenerateQuestions(ctx, QuestionInput{
		SubjectName:   plan.Subject.SubjectName,
		GradeName:     plan.Grade.GradeName,
		ChapterNumber: plan.ChapterNumber,
		Topics:        topics,
	})
	if !result.Success {
		span.RecordError(result.Error)
		return dto.AssessmentGenerateResponse{}, result.Error
	}

	duration := payload.Duration
	if duration <= 0 {
		duration = defaultAssessmentDuration
	}
	planID := plan.ID
	assessment := models.Assessment{
		Title:          assessmentTitle(payload.AssessmentType, payload.SessionNumber, plan.Chapter.ChapterName),
		LessonPlanID:   &planID,
		AssessmentType: payload.AssessmentType,
		SessionNumber:  payload.SessionNumber,
		OpensOn:        opensOn,
		DueDate:        dueDate,
		Status:         InitialAssessmentStatus(opensOn, now),
		ClassID:        payload.ClassID,
		GradeID:        plan.GradeID,
		SubjectID:      plan.SubjectID,
		Topics:         topics,
		TeacherID:      plan.TeacherID,
		Duration:       duration,
		IsActive:       true,
	}
	questions := models.AssessmentQuestions{Questions: result.Data}

	if err := s.repo.Create(ctx, &assessment, &questions); err != nil {
		if errors.Is(err, models.ErrInvalidAssessmentWindow) {
			return dto.AssessmentGenerateResponse{}, ErrInvalidDateWindow
		}
		return dto.AssessmentGenerateResponse{}, err
	}

	if session != nil {
		assessmentID := assessment.ID
		if _, err := s.plans.EditSessionContent(ctx, session.ID, func(stored *models.LessonPlanSession) {
			stored.AssessmentIDs = append(stored.AssessmentIDs, assessmentID)
		}); err != nil {
			return dto.AssessmentGenerateResponse{}, err
		}
	} else if err := s.plans.SetChapterAssessment(ctx, plan.ID, assessment.ID); err != nil {
		return dto.AssessmentGenerateResponse{}, notFoundAs(err, ErrLessonPlanNotFound)
	}

	// reload for the grade, subject and class names
	if stored, err := s.repo.GetByID(ctx, assessment.ID); err == nil {
		assessment = stored
	}

	if s.indexer != nil {
		if _, err := s.indexer.IndexAssessment(ctx, assessment, questions.Questions); err != nil {
			s.logger.Warn().Err(err).Uint("assessment_id", assessment.ID).Msg("assessment indexing failed")
		}
	}

	s.events.Publish(ctx, "assessment.created", map[string]interface{}{
		"assessment_id":   assessment.ID,
		"lesson_plan_id":  plan.ID,
		"assessment_type": assessment.AssessmentType,
		"status":          assessment.Status,
	})
	s.logger.Info().
		Uint("assessment_id", assessment.ID).
		Uint("lesson_plan_id", plan.ID).
		Str("type", assessment.AssessmentType).
		Int("questions", len(questions.Questions)).
		Float64("total_marks", questions.TotalMarks).
		Msg("assessment generated")

	return dto.AssessmentGenerateResponse{
		Assessment: dto.NewAssessmentResponse(assessment),
		Questions:  dto.NewAssessmentQuestionsResponse(questions, true),
	}, nil
}

func (s *assessmentService) load(ctx context.Context, id uint) (models.Assessment, error) {
	assessment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assessment{}, ErrAssessmentNotFound
		}
		return models.Assessment{}, err
	}
	return assessment, nil
}

func (s *assessmentService) Get(ctx context.Context, id uint) (dto.AssessmentResponse, error) {
	assessment, err := s.load(ctx, id)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}
	return dto.NewAssessmentResponse(assessment), nil
}

func (s *assessmentService) Questions(ctx context.Context, id uint, reveal bool) (dto.AssessmentQuestionsResponse, error) {
	questions, err := s.repo.GetQuestions(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssessmentQuestionsResponse{}, ErrAssessmentNotFound
		}
		return dto.AssessmentQuestionsResponse{}, err
	}
	return dto.NewAssessmentQuestionsResponse(questions, reveal), nil
}

func (s *assessmentService) ListByTeacher(ctx context.Context, teacherID uint) ([]dto.AssessmentResponse, error) {
	assessments, err := s.repo.List(ctx, repository.AssessmentFilter{TeacherID: &teacherID})
	if err != nil {
		return nil, err
	}
	return dto.NewAssessmentResponseSlice(assessments), nil
}

// UpdateStatus applies a manual override. Any known status is accepted.
func (s *assessmentService) UpdateStatus(ctx context.Context, id uint, payload dto.AssessmentStatusRequest) (dto.AssessmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssessmentResponse{}, err
	}
	if !IsKnownAssessmentStatus(payload.Status) {
		return dto.AssessmentResponse{}, fmt.Errorf("%w: %q", ErrInvalidStatus, payload.Status)
	}

	if err := s.repo.UpdateStatus(ctx, id, payload.Status); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssessmentResponse{}, ErrAssessmentNotFound
		}
		return dto.AssessmentResponse{}, err
	}

	assessment, err := s.load(ctx, id)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}

	s.events.Publish(ctx, "assessment.status_overridden", map[string]interface{}{
		"assessment_id": id,
		"status":        payload.Status,
	})
	s.logger.Info().Uint("assessment_id", id).Str("status", payload.Status).Msg("assessment status overridden")

	return dto.NewAssessmentResponse(assessment), nil
}
