package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/repository"
)

// CurationSummary reports what a curation run attached to a lesson plan.
type CurationSummary struct {
	LessonPlanID uint `json:"lesson_plan_id"`
	Topics       int  `json:"topics"`
	Videos       int  `json:"videos"`
	Simulations  int  `json:"simulations"`
	Indexed      int  `json:"indexed_vectors"`
}

// WorkflowStep is the outcome of one step of the complete workflow.
type WorkflowStep struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// WorkflowResult reports every step of the complete workflow.
type WorkflowResult struct {
	LessonPlanID    uint          `json:"lesson_plan_id"`
	ContentCuration WorkflowStep  `json:"content_curation"`
	Assessment      *WorkflowStep `json:"assessment,omitempty"`
}

// WorkflowService sequences agent calls around lesson plan and session status changes.
type WorkflowService interface {
	TriggerContentCuration(ctx context.Context, lessonPlanID uint) (CurationSummary, error)
	TriggerAssessmentGeneration(ctx context.Context, lessonPlanID uint, config dto.AssessmentConfig) (dto.AssessmentGenerateResponse, error)
	TriggerSessionAssessment(ctx context.Context, lessonPlanID uint, sessionNumber int, config dto.AssessmentConfig) (dto.AssessmentGenerateResponse, error)
	ExecuteCompleteWorkflow(ctx context.Context, lessonPlanID uint, config dto.AssessmentConfig) (WorkflowResult, error)
	IndexLessonPlan(ctx context.Context, lessonPlanID uint) (int, error)
	CurateTopics(ctx context.Context, payload dto.ContentCurationRequest) (dto.ContentCurationResponse, error)
}

type workflowService struct {
	plans       repository.LessonPlanRepository
	curator     ContentCurationAgent
	assessments AssessmentService
	indexer     ContentIndexer
	events      EventPublisher
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewWorkflowService wires the workflow.
func NewWorkflowService(plans repository.LessonPlanRepository, curator ContentCurationAgent, assessments AssessmentService, indexer ContentIndexer, events EventPublisher, logger zerolog.Logger) WorkflowService {
	return &workflowService{
		plans:       plans,
		curator:     curator,
		assessments: assessments,
		indexer:     indexer,
		events:      events,
		logger:      logger.With().Str("component", "workflow_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/teachmate-api/internal/service/workflow"),
	}
}

func (s *workflowService) loadPlan(ctx context.Context, id uint) (models.LessonPlan, error) {
	plan, err := s.plans.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.LessonPlan{}, ErrLessonPlanNotFound
		}
		return models.LessonPlan{}, err
	}
	return plan, nil
}

func (s *workflowService) TriggerContentCuration(ctx context.Context, lessonPlanID uint) (CurationSummary, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.content_curation", trace.WithAttributes(attribute.Int64("lesson_plan.id", int64(lessonPlanID))))
	defer span.End()

	plan, err := s.loadPlan(ctx, lessonPlanID)
	if err != nil {
		return CurationSummary{}, err
	}

	topics := plan.UniqueTopics()
	result := s.curator.Curate(ctx, CurationInput{
		SubjectName: plan.Subject.SubjectName,
		GradeName:   plan.Grade.GradeName,
		Topics:      topics,
	})
	if !result.Success {
		span.RecordError(result.Error)
		return CurationSummary{}, result.Error
	}

	plan.RecommendedVideos = result.Data.Videos
	plan.Simulations = result.Data.Simulations
	if err := s.plans.SetCuration(ctx, plan.ID, result.Data.Videos, result.Data.Simulations); err != nil {
		return CurationSummary{}, notFoundAs(err, ErrLessonPlanNotFound)
	}

	// the sessions may have changed while the curator ran
	for i := range plan.Sessions {
		stored, err := s.plans.EditSessionContent(ctx, plan.Sessions[i].ID, func(session *models.LessonPlanSession) {
			attachCurated(session, result.Data)
		})
		if err != nil {
			return CurationSummary{}, err
		}
		plan.Sessions[i] = stored
	}

	summary := CurationSummary{
		LessonPlanID: plan.ID,
		Topics:       len(topics),
		Videos:       len(result.Data.Videos),
		Simulations:  len(result.Data.Simulations),
	}

	if s.indexer != nil {
		indexed, err := s.indexer.IndexLessonPlan(ctx, plan)
		if err != nil {
			s.logger.Warn().Err(err).Uint("lesson_plan_id", plan.ID).Msg("lesson plan indexing failed")
		}
		summary.Indexed = indexed
	}

	s.events.Publish(ctx, "lesson_plan.curated", map[string]interface{}{
		"lesson_plan_id": plan.ID,
		"videos":         summary.Videos,
		"simulations":    summary.Simulations,
	})
	s.logger.Info().
		Uint("lesson_plan_id", plan.ID).
		Int("videos", summary.Videos).
		Int("simulations", summary.Simulations).
		Msg("content curation stored")

	return summary, nil
}

func assessmentRequest(planID uint, assessmentType string, sessionNumber int, config dto.AssessmentConfig) dto.AssessmentGenerateRequest {
	return dto.AssessmentGenerateRequest{
		LessonPlanID:   planID,
		AssessmentType: assessmentType,
		SessionNumber:  sessionNumber,
		OpensOn:        config.OpensOn,
		DueDate:        config.DueDate,
		ClassID:        config.ClassID,
		Duration:       config.Duration,
	}
}

func (s *workflowService) TriggerAssessmentGeneration(ctx context.Context, lessonPlanID uint, config dto.AssessmentConfig) (dto.AssessmentGenerateResponse, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.chapter_assessment", trace.WithAttributes(attribute.Int64("lesson_plan.id", int64(lessonPlanID))))
	defer span.End()

	plan, err := s.loadPlan(ctx, lessonPlanID)
	if err != nil {
		return dto.AssessmentGenerateResponse{}, err
	}
	if plan.Status != models.LessonPlanStatusCompleted {
		return dto.AssessmentGenerateResponse{}, ErrLessonPlanNotCompleted
	}

	resp, err := s.assessments.Generate(ctx, assessmentRequest(plan.ID, models.AssessmentTypeChapter, 0, config))
	if err != nil {
		span.RecordError(err)
		return dto.AssessmentGenerateResponse{}, err
	}
	return resp, nil
}

func (s *workflowService) TriggerSessionAssessment(ctx context.Context, lessonPlanID uint, sessionNumber int, config dto.AssessmentConfig) (dto.AssessmentGenerateResponse, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.session_assessment", trace.WithAttributes(
		attribute.Int64("lesson_plan.id", int64(lessonPlanID)),
		attribute.Int("session.number", sessionNumber),
	))
	defer span.End()

	plan, err := s.loadPlan(ctx, lessonPlanID)
	if err != nil {
		return dto.AssessmentGenerateResponse{}, err
	}
	session := plan.SessionByNumber(sessionNumber)
	if session == nil {
		return dto.AssessmentGenerateResponse{}, ErrSessionNotFound
	}
	if !session.IsCompleted() {
		return dto.AssessmentGenerateResponse{}, ErrSessionNotCompleted
	}

	resp, err := s.assessments.Generate(ctx, assessmentRequest(plan.ID, models.AssessmentTypeSession, sessionNumber, config))
	if err != nil {
		span.RecordError(err)
		return dto.AssessmentGenerateResponse{}, err
	}
	return resp, nil
}

// ExecuteCompleteWorkflow curates content and, for a completed plan, generates the chapter
// assessment. A failed curation does not stop the assessment step.
func (s *workflowService) ExecuteCompleteWorkflow(ctx context.Context, lessonPlanID uint, config dto.AssessmentConfig) (WorkflowResult, error) {
	started := time.Now()
	plan, err := s.loadPlan(ctx, lessonPlanID)
	if err != nil {
		return WorkflowResult{}, err
	}

	result := WorkflowResult{LessonPlanID: plan.ID}

	summary, err := s.TriggerContentCuration(ctx, plan.ID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("lesson_plan_id", plan.ID).Msg("content curation failed, continuing")
		result.ContentCuration = WorkflowStep{Error: PublicErrorMessage(err)}
	} else {
		result.ContentCuration = WorkflowStep{Success: true, Data: summary}
	}

	if plan.Status == models.LessonPlanStatusCompleted {
		resp, err := s.TriggerAssessmentGeneration(ctx, plan.ID, config)
		if err != nil {
			s.logger.Warn().Err(err).Uint("lesson_plan_id", plan.ID).Msg("chapter assessment generation failed")
			result.Assessment = &WorkflowStep{Error: PublicErrorMessage(err)}
		} else {
			result.Assessment = &WorkflowStep{Success: true, Data: resp.Assessment}
		}
	}

	s.logger.Info().
		Uint("lesson_plan_id", plan.ID).
		Bool("curated", result.ContentCuration.Success).
		Bool("assessed", result.Assessment != nil && result.Assessment.Success).
		Dur("duration", time.Since(started)).
		Msg("workflow finished")

	return result, nil
}

func (s *workflowService) IndexLessonPlan(ctx context.Context, lessonPlanID uint) (int, error) {
	plan, err := s.loadPlan(ctx, lessonPlanID)
	if err != nil {
		return 0, err
	}
	if s.indexer == nil {
		return 0, externalError("pinecone", ErrProviderUnavailable)
	}
	return s.indexer.IndexLessonPlan(ctx, plan)
}

// CurateTopics runs content curation for explicit topics without touching any lesson plan.
func (s *workflowService) CurateTopics(ctx context.Context, payload dto.ContentCurationRequest) (dto.ContentCurationResponse, error) {
	topics := make([]string, 0, len(payload.Topics))
	for _, topic := range payload.Topics {
		if trimmed := strings.TrimSpace(topic); trimmed != "" {
			topics = append(topics, trimmed)
		}
	}
	if len(topics) == 0 {
		return dto.ContentCurationResponse{}, ErrNoTopics
	}

	result := s.curator.Curate(ctx, CurationInput{
		SubjectName: payload.SubjectName,
		GradeName:   payload.GradeName,
		Topics:      topics,
	})
	if !result.Success {
		return dto.ContentCurationResponse{}, result.Error
	}

	byTopic := result.Data.ByTopic
	if byTopic == nil {
		byTopic = map[string][]models.SessionResource{}
	}
	return dto.ContentCurationResponse{
		Videos:      nonNilSessionResources(result.Data.Videos),
		ByTopic:     byTopic,
		Simulations: nonNilSessionResources(result.Data.Simulations),
	}, nil
}

func nonNilSessionResources(values []models.SessionResource) []models.SessionResource {
	if values == nil {
		return []models.SessionResource{}
	}
	return values
}
