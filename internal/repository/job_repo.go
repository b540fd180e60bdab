package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/models"
)

// JobRepository tracks background job state.
type JobRepository interface {
	Create(ctx context.Context, job *models.BackgroundJob) error
	GetByJobID(ctx context.Context, jobID string) (models.BackgroundJob, error)
	Save(ctx context.Context, job *models.BackgroundJob) error
	ListByStatus(ctx context.Context, status string) ([]models.BackgroundJob, error)
}

type jobRepository struct {
	db *gorm.DB
}

// NewJobRepository instantiates the repository.
func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{db: db}
}

func (r *jobRepository) Create(ctx context.Context, job *models.BackgroundJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *jobRepository) GetByJobID(ctx context.Context, jobID string) (models.BackgroundJob, error) {
	var job models.BackgroundJob
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error; err != nil {
		return models.BackgroundJob{}, err
	}
	return job, nil
}

func (r *jobRepository) Save(ctx context.Context, job *models.BackgroundJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

func (r *jobRepository) ListByStatus(ctx context.Context, status string) ([]models.BackgroundJob, error) {
	var jobs []models.BackgroundJob
	if err := r.db.WithContext(ctx).Where("status = ?", status).Order("created_at ASC").Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}
