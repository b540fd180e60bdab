package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/observability"
	"github.com/noah-isme/teachmate-api/internal/repository"
)

// Job kinds.
const (
	JobKindContentCuration    = "content_curation"
	JobKindChapterAssessment  = "chapter_assessment"
	JobKindCompleteWorkflow   = "complete_workflow"
	JobKindLessonPlanIndexing = "lesson_plan_indexing"
)

// ErrJobQueueFull is recorded on jobs rejected because every worker slot is taken.
var ErrJobQueueFull = errors.New("job queue is full")

// JobFunc performs the work of a background job and returns its result payload.
type JobFunc func(ctx context.Context) (map[string]interface{}, error)

// JobSpec describes a job to enqueue.
type JobSpec struct {
	Kind         string
	ReferenceID  uint
	NotifyUserID uint
	Run          JobFunc
}

// JobRunner executes background work on a bounded worker pool.
type JobRunner interface {
	Enqueue(ctx context.Context, spec JobSpec) (dto.JobResponse, error)
	Get(ctx context.Context, jobID string) (dto.JobResponse, error)
	Start(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// JobRunnerConfig tunes the worker pool.
type JobRunnerConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

type queuedJob struct {
	job  models.BackgroundJob
	spec JobSpec
}

type jobRunner struct {
	repo          repository.JobRepository
	notifications NotificationService
	config        JobRunnerConfig
	queue         chan queuedJob
	logger        zerolog.Logger
	tracer        trace.Tracer
	now           func() time.Time

	mu      sync.Mutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewJobRunner constructs a job runner. Notifications are optional.
func NewJobRunner(repo repository.JobRepository, notifications NotificationService, config JobRunnerConfig, logger zerolog.Logger) JobRunner {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Minute
	}

	return &jobRunner{
		repo:          repo,
		notifications: notifications,
		config:        config,
		queue:         make(chan queuedJob, config.QueueSize),
		logger:        logger.With().Str("component", "job_runner").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/teachmate-api/internal/service/jobs"),
		now:           time.Now,
	}
}

// Start launches the workers and fails jobs left over from a previous process.
func (r *jobRunner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	r.failInterrupted(ctx)

	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.work(i)
	}
	r.logger.Info().Int("workers", r.config.Workers).Int("queue_size", r.config.QueueSize).Msg("job runner started")
}

// Shutdown stops accepting jobs and waits for queued work to drain.
func (r *jobRunner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job runner drain: %w", ctx.Err())
	}
}

func (r *jobRunner) Enqueue(ctx context.Context, spec JobSpec) (dto.JobResponse, error) {
	if spec.Run == nil {
		return dto.JobResponse{}, errors.New("job function is required")
	}

	job := models.BackgroundJob{
		JobID:       uuid.NewString(),
		Kind:        spec.Kind,
		ReferenceID: spec.ReferenceID,
		Status:      models.JobStatusQueued,
	}
	if err := r.repo.Create(ctx, &job); err != nil {
		return dto.JobResponse{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.reject(ctx, &job, errors.New("job runner is shutting down"))
		return dto.NewJobResponse(job), nil
	}

	select {
	case r.queue <- queuedJob{job: job, spec: spec}:
		r.logger.Debug().Str("job_id", job.JobID).Str("kind", job.Kind).Uint("reference_id", job.ReferenceID).Msg("job enqueued")
	default:
		r.reject(ctx, &job, ErrJobQueueFull)
	}

	return dto.NewJobResponse(job), nil
}

func (r *jobRunner) Get(ctx context.Context, jobID string) (dto.JobResponse, error) {
	job, err := r.repo.GetByJobID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.JobResponse{}, ErrJobNotFound
		}
		return dto.JobResponse{}, err
	}
	return dto.NewJobResponse(job), nil
}

func (r *jobRunner) reject(ctx context.Context, job *models.BackgroundJob, cause error) {
	finished := r.now()
	job.Status = models.JobStatusFailed
	job.Error = cause.Error()
	job.FinishedAt = &finished
	if err := r.repo.Save(ctx, job); err != nil {
		r.logger.Error().Err(err).Str("job_id", job.JobID).Msg("failed to persist rejected job")
	}
	observability.Jobs().WithLabelValues(job.Kind, job.Status).Inc()
	r.logger.Warn().Err(cause).Str("job_id", job.JobID).Str("kind", job.Kind).Msg("job rejected")
}

func (r *jobRunner) work(worker int) {
	defer r.wg.Done()
	for item := range r.queue {
		r.execute(worker, item)
	}
}

func (r *jobRunner) execute(worker int, item queuedJob) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.Timeout)
	defer cancel()

	job := item.job
	logger := r.logger.With().Int("worker", worker).Str("job_id", job.JobID).Str("kind", job.Kind).Logger()

	spanCtx, span := r.tracer.Start(ctx, "jobs.execute", trace.WithAttributes(
		attribute.String("job.id", job.JobID),
		attribute.String("job.kind", job.Kind),
		attribute.Int64("job.reference_id", int64(job.ReferenceID)),
	))
	defer span.End()

	started := r.now()
	job.Status = models.JobStatusRunning
	job.StartedAt = &started
	if err := r.repo.Save(spanCtx, &job); err != nil {
		logger.Error().Err(err).Msg("failed to mark job running")
	}

	observability.JobsInFlight().Inc()
	result, runErr := r.run(spanCtx, item.spec.Run)
	observability.JobsInFlight().Dec()

	finished := r.now()
	job.FinishedAt = &finished
	job.Result = result
	if runErr != nil {
		span.RecordError(runErr)
		job.Status = models.JobStatusFailed
		job.Error = PublicErrorMessage(runErr)
		logger.Error().Err(runErr).Dur("duration", finished.Sub(started)).Msg("job failed")
	} else {
		job.Status = models.JobStatusSucceeded
		logger.Info().Dur("duration", finished.Sub(started)).Msg("job succeeded")
	}

	// the job context may be expired; persist the final state regardless
	saveCtx, saveCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer saveCancel()
	if err := r.repo.Save(saveCtx, &job); err != nil {
		logger.Error().Err(err).Msg("failed to persist job result")
	}

	observability.Jobs().WithLabelValues(job.Kind, job.Status).Inc()
	r.notify(saveCtx, item.spec.NotifyUserID, job)
}

func (r *jobRunner) run(ctx context.Context, fn JobFunc) (result map[string]interface{}, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("job panicked: %v", recovered)
		}
	}()
	return fn(ctx)
}

func (r *jobRunner) notify(ctx context.Context, userID uint, job models.BackgroundJob) {
	if r.notifications == nil || userID == 0 {
		return
	}

	message := fmt.Sprintf("Background job %s finished successfully.", job.Kind)
	if job.Status == models.JobStatusFailed {
		message = fmt.Sprintf("Background job %s failed.", job.Kind)
	}

	_, err := r.notifications.Publish(ctx, dto.NotificationCreateRequest{
		UserID:  userID,
		Type:    "job." + job.Status,
		Title:   "Background job update",
		Message: message,
		Data: map[string]interface{}{
			"job_id":       job.JobID,
			"kind":         job.Kind,
			"reference_id": job.ReferenceID,
		},
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("failed to notify job completion")
	}
}

func (r *jobRunner) failInterrupted(ctx context.Context) {
	for _, status := range []string{models.JobStatusQueued, models.JobStatusRunning} {
		jobs, err := r.repo.ListByStatus(ctx, status)
		if err != nil {
			r.logger.Warn().Err(err).Str("status", status).Msg("failed to load interrupted jobs")
			continue
		}
		for i := range jobs {
			finished := r.now()
			jobs[i].Status = models.JobStatusFailed
			jobs[i].Error = "interrupted by restart"
			jobs[i].FinishedAt = &finished
			if err := r.repo.Save(ctx, &jobs[i]); err != nil {
				r.logger.Warn().Err(err).Str("job_id", jobs[i].JobID).Msg("failed to fail interrupted job")
			}
		}
		if len(jobs) > 0 {
			r.logger.Warn().Int("count", len(jobs)).Str("status", status).Msg("failed jobs interrupted by restart")
		}
	}
}

// jobResult flattens a typed result into the JSON object stored on the job row.
func jobResult(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode job result: %w", err)
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("encode job result: %w", err)
	}
	return out, nil
}
