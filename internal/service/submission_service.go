package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/repository"
)

// SubmissionService orchestrates submission workflows.
type SubmissionService interface {
	Submit(ctx context.Context, payload dto.SubmissionCreateRequest) (dto.SubmissionResponse, error)
	Get(ctx context.Context, id uint) (dto.SubmissionResponse, error)
	ListByAssessment(ctx context.Context, assessmentID uint) ([]dto.SubmissionResponse, error)
	ListByStudent(ctx context.Context, studentID uint) ([]dto.SubmissionResponse, error)
	ListUngraded(ctx context.Context) ([]dto.SubmissionResponse, error)
	Status(ctx context.Context, assessmentID, studentID uint) (dto.SubmissionStatusResponse, error)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	assessments repository.AssessmentRepository
	students    repository.StudentRepository
	events      EventPublisher
	validator   *validator.Validate
	logger      zerolog.Logger
	now         func() time.Time
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(subRepo repository.SubmissionRepository, assessmentRepo repository.AssessmentRepository, studentRepo repository.StudentRepository, events EventPublisher, validate *validator.Validate, logger zerolog.Logger) SubmissionService {
	return &submissionService{
		submissions: subRepo,
		assessments: assessmentRepo,
		students:    studentRepo,
		events:      events,
		validator:   validate,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		now:         time.Now,
	}
}

// Submit stores the answers ungraded. Every question of the assessment gets an answer row;
// questions the student skipped keep an empty answer and score zero when graded.
func (s *submissionService) Submit(ctx context.Context, payload dto.SubmissionCreateRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	assessment, err := s.assessments.GetByID(ctx, payload.AssessmentID)
	if err != nil {
		return dto.SubmissionResponse{}, notFoundAs(err, ErrAssessmentNotFound)
	}
	if assessment.Status != models.AssessmentStatusActive || !assessment.IsActive {
		return dto.SubmissionResponse{}, fmt.Errorf("%w: current status %s", ErrAssessmentNotActive, assessment.Status)
	}

	if _, err := s.students.GetByID(ctx, payload.StudentID); err != nil {
		return dto.SubmissionResponse{}, notFoundAs(err, ErrStudentNotFound)
	}

	exists, err := s.submissions.Exists(ctx, payload.AssessmentID, payload.StudentID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	if exists {
		return dto.SubmissionResponse{}, ErrDuplicateSubmission
	}

	questions, err := s.assessments.GetQuestions(ctx, payload.AssessmentID)
	if err != nil {
		return dto.SubmissionResponse{}, notFoundAs(err, ErrAssessmentNotFound)
	}

	given := make(map[string]string, len(payload.Answers))
	for _, answer := range payload.Answers {
		if _, ok := questions.Find(answer.QuestionID); !ok {
			return dto.SubmissionResponse{}, fmt.Errorf("%w: unknown question %s", ErrInvalidAnswers, answer.QuestionID)
		}
		given[answer.QuestionID] = strings.TrimSpace(answer.Answer)
	}

	answers := make([]models.SubmissionAnswer, 0, len(questions.Questions))
	for _, question := range questions.Questions {
		answers = append(answers, models.SubmissionAnswer{
			QuestionID:    question.QuestionID,
			QuestionText:  question.Question,
			StudentAnswer: given[question.QuestionID],
			MaxMarks:      question.Marks,
		})
	}

	submission := models.Submission{
		AssessmentID: payload.AssessmentID,
		StudentID:    payload.StudentID,
		Answers:      answers,
		TotalMarks:   questions.TotalMarks,
		Status:       models.SubmissionStatusSubmitted,
		SubmittedAt:  s.now().UTC(),
		TimeTaken:    payload.TimeTaken,
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	stored, err := s.submissions.GetByID(ctx, submission.ID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	s.events.Publish(ctx, "submission.created", map[string]interface{}{
		"submission_id": submission.ID,
		"assessment_id": submission.AssessmentID,
		"student_id":    submission.StudentID,
	})
	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("assessment_id", submission.AssessmentID).
		Uint("student_id", submission.StudentID).
		Msg("submission received")

	return dto.NewSubmissionResponse(stored), nil
}

func (s *submissionService) Get(ctx context.Context, id uint) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		return dto.SubmissionResponse{}, notFoundAs(err, ErrSubmissionNotFound)
	}
	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) ListByAssessment(ctx context.Context, assessmentID uint) ([]dto.SubmissionResponse, error) {
	submissions, err := s.submissions.List(ctx, repository.SubmissionFilter{AssessmentID: &assessmentID})
	if err != nil {
		return nil, err
	}
	return dto.NewSubmissionResponseSlice(submissions), nil
}

func (s *submissionService) ListByStudent(ctx context.Context, studentID uint) ([]dto.SubmissionResponse, error) {
	submissions, err := s.submissions.List(ctx, repository.SubmissionFilter{StudentID: &studentID})
	if err != nil {
		return nil, err
	}
	return dto.NewSubmissionResponseSlice(submissions), nil
}

func (s *submissionService) ListUngraded(ctx context.Context) ([]dto.SubmissionResponse, error) {
	status := models.SubmissionStatusSubmitted
	submissions, err := s.submissions.List(ctx, repository.SubmissionFilter{Status: &status})
	if err != nil {
		return nil, err
	}
	return dto.NewSubmissionResponseSlice(submissions), nil
}

func (s *submissionService) Status(ctx context.Context, assessmentID, studentID uint) (dto.SubmissionStatusResponse, error) {
	submission, err := s.submissions.GetByAssessmentAndStudent(ctx, assessmentID, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionStatusResponse{Submitted: false}, nil
		}
		return dto.SubmissionStatusResponse{}, err
	}

	resp := dto.SubmissionStatusResponse{
		Submitted:    true,
		SubmissionID: submission.ID,
		Status:       submission.Status,
		SubmittedAt:  &submission.SubmittedAt,
	}
	if submission.IsGraded() {
		percentage := submission.Percentage
		resp.Percentage = &percentage
	}
	return resp, nil
}
