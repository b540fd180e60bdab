package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/observability"
	"github.com/noah-isme/teachmate-api/internal/repository"
	"github.com/noah-isme/teachmate-api/pkg/ai"
)

const defaultGradingBatch = 50

// GradingRunSummary reports one pass over the pending submissions.
type GradingRunSummary struct {
	Pending int `json:"pending"`
	Graded  int `json:"graded"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// GradingSchedulerConfig tunes the grading sweep.
type GradingSchedulerConfig struct {
	Delay     time.Duration
	BatchSize int
}

// GradingScheduler grades submitted answers one at a time, oldest first. Only one run is
// active per process; manual triggers during a run are reported, not queued.
type GradingScheduler interface {
	RunOnce(ctx context.Context) (GradingRunSummary, error)
	TriggerManual() dto.GradingTriggerResponse
	GradeSubmission(ctx context.Context, submissionID uint) error
	Running() bool
	Stop()
}

type gradingScheduler struct {
	submissions repository.SubmissionRepository
	assessments repository.AssessmentRepository
	grader      SubmissionGradingAgent
	lease       SweepLease
	events      EventPublisher
	config      GradingSchedulerConfig
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time

	running atomic.Bool
	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewGradingScheduler wires the grading sweep.
func NewGradingScheduler(submissions repository.SubmissionRepository, assessments repository.AssessmentRepository, grader SubmissionGradingAgent, lease SweepLease, events EventPublisher, config GradingSchedulerConfig, logger zerolog.Logger) GradingScheduler {
	if config.Delay < 0 {
		config.Delay = 0
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaultGradingBatch
	}
	if lease == nil {
		lease = NewSweepLease(nil, "", 0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &gradingScheduler{
		submissions: submissions,
		assessments: assessments,
		grader:      grader,
		lease:       lease,
		events:      events,
		config:      config,
		logger:      logger.With().Str("component", "grading_scheduler").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/teachmate-api/internal/service/grading"),
		now:         time.Now,
		baseCtx:     ctx,
		cancel:      cancel,
	}
}

func (s *gradingScheduler) Running() bool {
	return s.running.Load()
}

// RunOnce grades the pending backlog synchronously. It fails with ErrGradingInProgress while
// another run holds the guard.
func (s *gradingScheduler) RunOnce(ctx context.Context) (GradingRunSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		observability.SchedulerSweeps().WithLabelValues("grading", "skipped").Inc()
		return GradingRunSummary{}, ErrGradingInProgress
	}
	defer s.running.Store(false)
	return s.run(ctx)
}

// TriggerManual starts a run in the background.
func (s *gradingScheduler) TriggerManual() dto.GradingTriggerResponse {
	if !s.running.CompareAndSwap(false, true) {
		return dto.GradingTriggerResponse{AlreadyRunning: true}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		if _, err := s.run(s.baseCtx); err != nil {
			s.logger.Error().Err(err).Msg("manual grading run failed")
		}
	}()
	return dto.GradingTriggerResponse{Started: true}
}

// Stop cancels a background run and waits for it to return.
func (s *gradingScheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *gradingScheduler) run(ctx context.Context) (GradingRunSummary, error) {
	var summary GradingRunSummary

	release, acquired, err := s.lease.Acquire(ctx, "grading")
	if err != nil {
		observability.SchedulerSweeps().WithLabelValues("grading", "error").Inc()
		return summary, fmt.Errorf("acquire grading lease: %w", err)
	}
	if !acquired {
		observability.SchedulerSweeps().WithLabelValues("grading", "skipped").Inc()
		s.logger.Debug().Msg("grading lease held elsewhere")
		return summary, nil
	}
	defer release()

	pending, err := s.submissions.ListPending(ctx, s.config.BatchSize)
	if err != nil {
		observability.SchedulerSweeps().WithLabelValues("grading", "error").Inc()
		return summary, err
	}
	summary.Pending = len(pending)
	if len(pending) == 0 {
		observability.SchedulerSweeps().WithLabelValues("grading", "idle").Inc()
		return summary, nil
	}

	started := time.Now()
	s.logger.Info().Int("pending", len(pending)).Msg("grading pending submissions")

	for i, submission := range pending {
		if ctx.Err() != nil {
			break
		}

		err := s.GradeSubmission(ctx, submission.ID)
		switch {
		case err == nil:
			summary.Graded++
		case errors.Is(err, ErrInvalidTransition):
			summary.Skipped++
		default:
			summary.Failed++
			s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("grading failed")
		}

		if i < len(pending)-1 && s.config.Delay > 0 {
			timer := time.NewTimer(s.config.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
	}

	observability.SchedulerSweeps().WithLabelValues("grading", "ok").Inc()
	s.logger.Info().
		Int("graded", summary.Graded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Dur("duration", time.Since(started)).
		Msg("grading run finished")

	return summary, ctx.Err()
}

// GradeSubmission claims a Submitted submission, grades every answer and stores the result.
// Any failure after the claim moves the submission back to Submitted.
func (s *gradingScheduler) GradeSubmission(ctx context.Context, submissionID uint) (err error) {
	ctx, span := s.tracer.Start(ctx, "grading.submission", trace.WithAttributes(
		attribute.Int64("submission.id", int64(submissionID)),
	))
	defer span.End()

	claimed, err := s.submissions.TransitionStatus(ctx, submissionID, models.SubmissionStatusSubmitted, models.SubmissionStatusGrading)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !claimed {
		observability.GradingOutcomes().WithLabelValues("skipped").Inc()
		return fmt.Errorf("%w: submission %d is not awaiting grading", ErrInvalidTransition, submissionID)
	}

	defer func() {
		if err == nil {
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "grading failed")
		observability.GradingOutcomes().WithLabelValues("rolled_back").Inc()

		rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, rbErr := s.submissions.TransitionStatus(rollbackCtx, submissionID, models.SubmissionStatusGrading, models.SubmissionStatusSubmitted); rbErr != nil {
			s.logger.Error().Err(rbErr).Uint("submission_id", submissionID).Msg("grading rollback failed")
		}
	}()

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return notFoundAs(err, ErrSubmissionNotFound)
	}
	questions, err := s.assessments.GetQuestions(ctx, submission.AssessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssessmentNotFound
		}
		return err
	}

	notes := make([]string, 0, len(submission.Answers))
	obtained := 0.0
	for i := range submission.Answers {
		answer := &submission.Answers[i]
		question, ok := questions.Find(answer.QuestionID)
		if !ok {
			return fmt.Errorf("%w: unknown question %s", ErrInvalidAnswers, answer.QuestionID)
		}
		if answer.MaxMarks <= 0 {
			answer.MaxMarks = question.Marks
		}

		result := s.grader.GradeAnswer(ctx, question, *answer)
		answer.CorrectAnswer = question.ExpectedAnswer()
		if !result.Success {
			if !unreadableJudgement(result.Error) {
				return fmt.Errorf("grade question %s: %w", answer.QuestionID, result.Error)
			}
			s.logger.Warn().Err(result.Error).
				Uint("submission_id", submissionID).
				Str("question_id", answer.QuestionID).
				Msg("judgement unreadable, awarding zero")
			answer.MarksObtained = 0
			answer.IsCorrect = false
			answer.AIFeedback = "Grading failed - please review manually."
			notes = append(notes, fmt.Sprintf("Q%d: Grading failed - %v", i+1, result.Error))
			continue
		}

		answer.MarksObtained = result.Data.Marks
		answer.IsCorrect = result.Data.Marks == answer.MaxMarks
		answer.AIFeedback = result.Data.Feedback
		obtained += result.Data.Marks

		notes = append(notes, fmt.Sprintf("Q%d: %g%% accurate - %s", i+1, result.Data.Accuracy, result.Data.Feedback))
	}

	gradedAt := s.now().UTC()
	submission.TotalMarksObtained = obtained
	if submission.TotalMarks > 0 {
		submission.Percentage = obtained / submission.TotalMarks * 100
	}
	submission.Status = models.SubmissionStatusGraded
	submission.GradedAt = &gradedAt
	submission.AIGradingNotes = strings.Join(notes, "\n")

	if err = s.submissions.Update(ctx, &submission); err != nil {
		return err
	}

	observability.GradingOutcomes().WithLabelValues("graded").Inc()
	span.SetAttributes(attribute.Float64("submission.percentage", submission.Percentage))
	s.events.Publish(ctx, "submission.graded", map[string]interface{}{
		"submission_id": submission.ID,
		"assessment_id": submission.AssessmentID,
		"student_id":    submission.StudentID,
		"percentage":    submission.Percentage,
	})
	s.logger.Info().
		Uint("submission_id", submission.ID).
		Float64("obtained", obtained).
		Float64("total", submission.TotalMarks).
		Msg("submission graded")

	return nil
}

// unreadableJudgement reports a model reply that will not parse on a retry either.
func unreadableJudgement(err error) bool {
	return errors.Is(err, ai.ErrNoJSON) || errors.Is(err, ai.ErrMalformedJSON)
}
