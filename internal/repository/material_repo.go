package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/models"
)

// MaterialRepository keeps the records of files teachers attached to lesson plan sessions.
type MaterialRepository interface {
	Create(ctx context.Context, material *models.Material) error
	ListBySession(ctx context.Context, lessonPlanID uint, sessionNumber int) ([]models.Material, error)
	// FindByChecksum returns nil when the session holds no file with that content.
	FindByChecksum(ctx context.Context, lessonPlanID uint, sessionNumber int, checksum string) (*models.Material, error)
	// DeleteByLessonPlan removes every record of the plan and returns what was removed.
	DeleteByLessonPlan(ctx context.Context, lessonPlanID uint) ([]models.Material, error)
}

type materialRepository struct {
	db *gorm.DB
}

func NewMaterialRepository(db *gorm.DB) MaterialRepository {
	return &materialRepository{db: db}
}

func (r *materialRepository) Create(ctx context.Context, material *models.Material) error {
	return r.db.WithContext(ctx).Create(material).Error
}

func (r *materialRepository) session(ctx context.Context, lessonPlanID uint, sessionNumber int) *gorm.DB {
	return r.db.WithContext(ctx).
		Where("lesson_plan_id = ? AND session_number = ?", lessonPlanID, sessionNumber)
}

func (r *materialRepository) ListBySession(ctx context.Context, lessonPlanID uint, sessionNumber int) ([]models.Material, error) {
	var materials []models.Material
	err := r.session(ctx, lessonPlanID, sessionNumber).Order("created_at ASC").Find(&materials).Error
	return materials, err
}

func (r *materialRepository) FindByChecksum(ctx context.Context, lessonPlanID uint, sessionNumber int, checksum string) (*models.Material, error) {
	var material models.Material
	err := r.session(ctx, lessonPlanID, sessionNumber).Where("checksum = ?", checksum).First(&material).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &material, nil
}

func (r *materialRepository) DeleteByLessonPlan(ctx context.Context, lessonPlanID uint) ([]models.Material, error) {
	var removed []models.Material
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("lesson_plan_id = ?", lessonPlanID).Find(&removed).Error; err != nil {
			return err
		}
		if len(removed) == 0 {
			return nil
		}
		return tx.Where("lesson_plan_id = ?", lessonPlanID).Delete(&models.Material{}).Error
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
