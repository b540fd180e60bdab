package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/teachmate-api/internal/models"
)

// LessonPlanFilter narrows lesson plan listings.
type LessonPlanFilter struct {
	TeacherID *uint
	SubjectID *uint
	GradeID   *uint
	Status    string
}

// LessonPlanRepository persists lesson plans and their sessions.
type LessonPlanRepository interface {
	List(ctx context.Context, filter LessonPlanFilter) ([]models.LessonPlan, error)
	GetByID(ctx context.Context, id uint) (models.LessonPlan, error)
	Create(ctx context.Context, plan *models.LessonPlan) error
	UpdateStatus(ctx context.Context, id uint, status string) error
	SetCuration(ctx context.Context, id uint, videos, simulations []models.SessionResource) error
	SetChapterAssessment(ctx context.Context, id, assessmentID uint) error
	EditSessionContent(ctx context.Context, sessionID uint, edit func(*models.LessonPlanSession)) (models.LessonPlanSession, error)
	CompleteSession(ctx context.Context, sessionID uint, at time.Time) (bool, error)
	Delete(ctx context.Context, id uint) error
}

type lessonPlanRepository struct {
	db *gorm.DB
}

// NewLessonPlanRepository instantiates the repository.
func NewLessonPlanRepository(db *gorm.DB) LessonPlanRepository {
	return &lessonPlanRepository{db: db}
}

func (r *lessonPlanRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.LessonPlan{}).
		Preload("Sessions", func(db *gorm.DB) *gorm.DB {
			return db.Order("session_number ASC")
		}).
		Preload("Subject").
		Preload("Grade").
		Preload("Chapter").
		Preload("Teacher")
}

func (r *lessonPlanRepository) List(ctx context.Context, filter LessonPlanFilter) ([]models.LessonPlan, error) {
	query := r.baseQuery(ctx).Where("is_active = ?", true)

	if filter.TeacherID != nil {
		query = query.Where("teacher_id = ?", *filter.TeacherID)
	}
	if filter.SubjectID != nil {
		query = query.Where("subject_id = ?", *filter.SubjectID)
	}
	if filter.GradeID != nil {
		query = query.Where("grade_id = ?", *filter.GradeID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var plans []models.LessonPlan
	if err := query.Order("created_at DESC").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *lessonPlanRepository) GetByID(ctx context.Context, id uint) (models.LessonPlan, error) {
	var plan models.LessonPlan
	if err := r.baseQuery(ctx).First(&plan, id).Error; err != nil {
		return models.LessonPlan{}, err
	}
	return plan, nil
}

func (r *lessonPlanRepository) Create(ctx context.Context, plan *models.LessonPlan) error {
	return r.db.WithContext(ctx).Omit("Teacher", "Subject", "Grade", "Chapter").Create(plan).Error
}

func (r *lessonPlanRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	result := r.db.WithContext(ctx).Model(&models.LessonPlan{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *lessonPlanRepository) updatePlan(ctx context.Context, id uint, columns map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.LessonPlan{}).Where("id = ?", id).Updates(columns)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetCuration writes the curated videos and simulations and leaves every other column alone.
func (r *lessonPlanRepository) SetCuration(ctx context.Context, id uint, videos, simulations []models.SessionResource) error {
	return r.updatePlan(ctx, id, map[string]interface{}{
		"recommended_videos": datatypes.JSONSlice[models.SessionResource](videos),
		"simulations":        datatypes.JSONSlice[models.SessionResource](simulations),
	})
}

func (r *lessonPlanRepository) SetChapterAssessment(ctx context.Context, id, assessmentID uint) error {
	return r.updatePlan(ctx, id, map[string]interface{}{"chapter_assessment_id": assessmentID})
}

// EditSessionContent re-reads the session under a row lock, applies edit and writes back the
// resources and assessment ids only. Status and completion time are never written here.
func (r *lessonPlanRepository) EditSessionContent(ctx context.Context, sessionID uint, edit func(*models.LessonPlanSession)) (models.LessonPlanSession, error) {
	var session models.LessonPlanSession
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&session, sessionID).Error; err != nil {
			return err
		}
		edit(&session)
		return tx.Model(&models.LessonPlanSession{}).Where("id = ?", sessionID).Updates(map[string]interface{}{
			"resources":      session.Resources,
			"assessment_ids": session.AssessmentIDs,
		}).Error
	})
	return session, err
}

// CompleteSession marks the session taught unless it already is. It reports false when another
// caller completed it first.
func (r *lessonPlanRepository) CompleteSession(ctx context.Context, sessionID uint, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.LessonPlanSession{}).
		Where("id = ? AND (status IS NULL OR status <> ?)", sessionID, models.SessionStatusCompleted).
		Updates(map[string]interface{}{
			"status":       models.SessionStatusCompleted,
			"completed_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *lessonPlanRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("lesson_plan_id = ?", id).Delete(&models.LessonPlanSession{}).Error; err != nil {
			return err
		}
		return deleteByID(ctx, tx, &models.LessonPlan{}, id)
	})
}
