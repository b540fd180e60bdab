package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/observability"
	"github.com/noah-isme/teachmate-api/internal/repository"
)

const sweepTimeout = 50 * time.Second

// SweepSummary lists the assessments moved by one sweep.
type SweepSummary struct {
	Activated []uint `json:"activated"`
	Closed    []uint `json:"closed"`
	Graded    []uint `json:"graded"`
}

// AssessmentSweeper applies the time driven assessment transitions.
type AssessmentSweeper interface {
	Sweep(ctx context.Context) (SweepSummary, error)
}

type assessmentSweeper struct {
	repo          repository.AssessmentRepository
	lease         SweepLease
	events        EventPublisher
	notifications NotificationService
	logger        zerolog.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

// NewAssessmentSweeper constructs the sweeper. Notifications may be nil.
func NewAssessmentSweeper(repo repository.AssessmentRepository, lease SweepLease, events EventPublisher, notifications NotificationService, logger zerolog.Logger) AssessmentSweeper {
	if lease == nil {
		lease = NewSweepLease(nil, "", 0)
	}
	return &assessmentSweeper{
		repo:          repo,
		lease:         lease,
		events:        events,
		notifications: notifications,
		logger:        logger.With().Str("component", "assessment_scheduler").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/teachmate-api/internal/service/scheduler"),
		now:           time.Now,
	}
}

// Sweep runs the three transitions in order. Each one is conditional on the source status,
// so reruns are harmless and a Closed assessment never becomes Active again.
func (s *assessmentSweeper) Sweep(ctx context.Context) (SweepSummary, error) {
	var summary SweepSummary

	release, acquired, err := s.lease.Acquire(ctx, "assessment-sweep")
	if err != nil {
		observability.SchedulerSweeps().WithLabelValues("assessment", "error").Inc()
		return summary, fmt.Errorf("acquire sweep lease: %w", err)
	}
	if !acquired {
		observability.SchedulerSweeps().WithLabelValues("assessment", "skipped").Inc()
		return summary, nil
	}
	defer release()

	ctx, span := s.tracer.Start(ctx, "scheduler.assessment_sweep")
	defer span.End()

	now := s.now().UTC()

	summary.Activated, err = s.repo.TransitionDue(ctx,
		[]string{models.AssessmentStatusDraft, models.AssessmentStatusScheduled},
		models.AssessmentStatusActive, "opens_on", now)
	if err != nil {
		return s.failed(span, summary, fmt.Errorf("activate assessments: %w", err))
	}

	summary.Closed, err = s.repo.TransitionDue(ctx,
		[]string{models.AssessmentStatusActive},
		models.AssessmentStatusClosed, "due_date", now)
	if err != nil {
		return s.failed(span, summary, fmt.Errorf("close assessments: %w", err))
	}

	summary.Graded, err = s.repo.CloseGradedAssessments(ctx)
	if err != nil {
		return s.failed(span, summary, fmt.Errorf("finalise graded assessments: %w", err))
	}

	s.announce(ctx, summary.Activated, models.AssessmentStatusActive)
	s.announce(ctx, summary.Closed, models.AssessmentStatusClosed)
	s.announce(ctx, summary.Graded, models.AssessmentStatusGraded)

	span.SetAttributes(
		attribute.Int("assessments.activated", len(summary.Activated)),
		attribute.Int("assessments.closed", len(summary.Closed)),
		attribute.Int("assessments.graded", len(summary.Graded)),
	)
	observability.SchedulerSweeps().WithLabelValues("assessment", "ok").Inc()

	if len(summary.Activated)+len(summary.Closed)+len(summary.Graded) > 0 {
		s.logger.Info().
			Int("activated", len(summary.Activated)).
			Int("closed", len(summary.Closed)).
			Int("graded", len(summary.Graded)).
			Msg("assessment sweep applied transitions")
	}
	return summary, nil
}

func (s *assessmentSweeper) failed(span trace.Span, summary SweepSummary, err error) (SweepSummary, error) {
	span.RecordError(err)
	observability.SchedulerSweeps().WithLabelValues("assessment", "error").Inc()
	return summary, err
}

func (s *assessmentSweeper) announce(ctx context.Context, ids []uint, status string) {
	if len(ids) == 0 {
		return
	}
	observability.AssessmentTransitions().WithLabelValues(status).Add(float64(len(ids)))

	for _, id := range ids {
		s.events.Publish(ctx, "assessment.status_changed", map[string]interface{}{
			"assessment_id": id,
			"status":        status,
		})

		if s.notifications == nil || status == models.AssessmentStatusActive {
			continue
		}
		assessment, err := s.repo.GetByID(ctx, id)
		if err != nil {
			s.logger.Warn().Err(err).Uint("assessment_id", id).Msg("load assessment for notification")
			continue
		}
		if _, err := s.notifications.Publish(ctx, dto.NotificationCreateRequest{
			UserID:  assessment.TeacherID,
			Type:    "assessment." + statusEventSuffix(status),
			Title:   assessment.Title,
			Message: assessmentStatusMessage(assessment.Title, status),
			Data:    map[string]interface{}{"assessment_id": id, "status": status},
		}); err != nil {
			s.logger.Warn().Err(err).Uint("assessment_id", id).Msg("publish assessment notification")
		}
	}
}

func statusEventSuffix(status string) string {
	switch status {
	case models.AssessmentStatusClosed:
		return "closed"
	case models.AssessmentStatusGraded:
		return "graded"
	default:
		return "updated"
	}
}

func assessmentStatusMessage(title, status string) string {
	switch status {
	case models.AssessmentStatusClosed:
		return fmt.Sprintf("%s has reached its due date and is closed for submissions.", title)
	case models.AssessmentStatusGraded:
		return fmt.Sprintf("Every submission for %s has been graded.", title)
	default:
		return fmt.Sprintf("%s is now %s.", title, status)
	}
}

// SchedulerConfig holds the cron specs of both sweeps.
type SchedulerConfig struct {
	AssessmentSpec string
	GradingSpec    string
}

// Scheduler owns the cron instance driving the assessment and grading sweeps.
type Scheduler struct {
	cron    *cron.Cron
	sweeper AssessmentSweeper
	grading GradingScheduler
	logger  zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// NewScheduler registers both sweeps. Overlapping ticks of the same sweep are skipped.
func NewScheduler(config SchedulerConfig, sweeper AssessmentSweeper, grading GradingScheduler, logger zerolog.Logger) (*Scheduler, error) {
	componentLogger := logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{logger: componentLogger}

	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: c, sweeper: sweeper, grading: grading, logger: componentLogger, ctx: ctx, cancel: cancel}

	if config.AssessmentSpec == "" {
		config.AssessmentSpec = "@every 1m"
	}
	if config.GradingSpec == "" {
		config.GradingSpec = "@every 1m"
	}

	if _, err := c.AddFunc(config.AssessmentSpec, s.runAssessmentSweep); err != nil {
		cancel()
		return nil, fmt.Errorf("register assessment sweep: %w", err)
	}
	if _, err := c.AddFunc(config.GradingSpec, s.runGradingSweep); err != nil {
		cancel()
		return nil, fmt.Errorf("register grading sweep: %w", err)
	}
	return s, nil
}

func (s *Scheduler) runAssessmentSweep() {
	ctx, cancel := context.WithTimeout(s.ctx, sweepTimeout)
	defer cancel()
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		s.logger.Error().Err(err).Msg("assessment sweep failed")
	}
}

func (s *Scheduler) runGradingSweep() {
	if _, err := s.grading.RunOnce(s.ctx); err != nil && !errors.Is(err, ErrGradingInProgress) && !errors.Is(err, context.Canceled) {
		s.logger.Error().Err(err).Msg("grading sweep failed")
	}
}

// Start begins running the registered sweeps in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("entries", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop halts the cron and waits for running sweeps, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	s.grading.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
