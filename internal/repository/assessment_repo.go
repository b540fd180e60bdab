package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/models"
)

// AssessmentFilter narrows assessment listings.
type AssessmentFilter struct {
	TeacherID    *uint
	LessonPlanID *uint
	GradeID      *uint
	ClassID      *uint
	Statuses     []string
	OpensAfter   *time.Time
	Limit        int
}

// AssessmentRepository persists assessments and their question sets.
type AssessmentRepository interface {
	Create(ctx context.Context, assessment *models.Assessment, questions *models.AssessmentQuestions) error
	GetByID(ctx context.Context, id uint) (models.Assessment, error)
	GetQuestions(ctx context.Context, assessmentID uint) (models.AssessmentQuestions, error)
	SaveQuestions(ctx context.Context, questions *models.AssessmentQuestions) error
	List(ctx context.Context, filter AssessmentFilter) ([]models.Assessment, error)
	UpdateStatus(ctx context.Context, id uint, status string) error
	TransitionDue(ctx context.Context, from []string, to string, column string, now time.Time) ([]uint, error)
	CloseGradedAssessments(ctx context.Context) ([]uint, error)
}

type assessmentRepository struct {
	db *gorm.DB
}

// NewAssessmentRepository instantiates the repository.
func NewAssessmentRepository(db *gorm.DB) AssessmentRepository {
	return &assessmentRepository{db: db}
}

func (r *assessmentRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Assessment{}).
		Preload("Class").
		Preload("Grade").
		Preload("Subject")
}

// statusQuery skips model hooks so partial status updates do not trip the date-window check.
func (r *assessmentRepository) statusQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Session(&gorm.Session{SkipHooks: true}).Model(&models.Assessment{})
}

// Create stores the assessment and its questions in one transaction and copies the computed total.
func (r *assessmentRepository) Create(ctx context.Context, assessment *models.Assessment, questions *models.AssessmentQuestions) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Class", "Grade", "Subject").Create(assessment).Error; err != nil {
			return err
		}
		if questions == nil {
			return nil
		}
		questions.AssessmentID = assessment.ID
		if err := tx.Create(questions).Error; err != nil {
			return err
		}
		assessment.TotalMarks = questions.TotalMarks
		return tx.Session(&gorm.Session{SkipHooks: true}).Model(&models.Assessment{}).
			Where("id = ?", assessment.ID).
			Update("total_marks", questions.TotalMarks).Error
	})
}

func (r *assessmentRepository) GetByID(ctx context.Context, id uint) (models.Assessment, error) {
	var assessment models.Assessment
	if err := r.baseQuery(ctx).First(&assessment, id).Error; err != nil {
		return models.Assessment{}, err
	}
	return assessment, nil
}

func (r *assessmentRepository) GetQuestions(ctx context.Context, assessmentID uint) (models.AssessmentQuestions, error) {
	var questions models.AssessmentQuestions
	if err := r.db.WithContext(ctx).Where("assessment_id = ?", assessmentID).First(&questions).Error; err != nil {
		return models.AssessmentQuestions{}, err
	}
	return questions, nil
}

func (r *assessmentRepository) SaveQuestions(ctx context.Context, questions *models.AssessmentQuestions) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(questions).Error; err != nil {
			return err
		}
		return tx.Session(&gorm.Session{SkipHooks: true}).Model(&models.Assessment{}).
			Where("id = ?", questions.AssessmentID).
			Update("total_marks", questions.TotalMarks).Error
	})
}

func (r *assessmentRepository) List(ctx context.Context, filter AssessmentFilter) ([]models.Assessment, error) {
	query := r.baseQuery(ctx)

	if filter.TeacherID != nil {
		query = query.Where("teacher_id = ?", *filter.TeacherID)
	}
	if filter.LessonPlanID != nil {
		query = query.Where("lesson_plan_id = ?", *filter.LessonPlanID)
	}
	if filter.GradeID != nil {
		query = query.Where("grade_id = ?", *filter.GradeID)
	}
	if filter.ClassID != nil {
		query = query.Where("class_id = ?", *filter.ClassID)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}

	order := "created_at DESC"
	if filter.OpensAfter != nil {
		query = query.Where("opens_on >= ?", *filter.OpensAfter)
		order = "opens_on ASC"
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var assessments []models.Assessment
	if err := query.Order(order).Find(&assessments).Error; err != nil {
		return nil, err
	}
	return assessments, nil
}

func (r *assessmentRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	result := r.statusQuery(ctx).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TransitionDue moves active-flagged assessments whose column (opens_on or due_date) is at or
// before now from one of the given statuses to the target status. The update re-checks the
// source status so rows changed concurrently are left alone.
func (r *assessmentRepository) TransitionDue(ctx context.Context, from []string, to string, column string, now time.Time) ([]uint, error) {
	if column != "opens_on" && column != "due_date" {
		return nil, gorm.ErrInvalidField
	}

	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.Assessment{}).
		Where("status IN ?", from).
		Where("is_active = ?", true).
		Where(column+" <= ?", now).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	return r.transitionEach(ctx, ids, from, map[string]interface{}{"status": to, "updated_at": now})
}

// CloseGradedAssessments marks Closed assessments as Graded once every submission is graded.
func (r *assessmentRepository) CloseGradedAssessments(ctx context.Context) ([]uint, error) {
	pending := r.db.Model(&models.Submission{}).
		Select("1").
		Where("submissions.assessment_id = assessments.id").
		Where("submissions.status <> ?", models.SubmissionStatusGraded)
	graded := r.db.Model(&models.Submission{}).
		Select("1").
		Where("submissions.assessment_id = assessments.id")

	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.Assessment{}).
		Where("status = ?", models.AssessmentStatusClosed).
		Where("EXISTS (?)", graded).
		Where("NOT EXISTS (?)", pending).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	return r.transitionEach(ctx, ids, []string{models.AssessmentStatusClosed},
		map[string]interface{}{"status": models.AssessmentStatusGraded, "updated_at": time.Now().UTC()})
}

// transitionEach applies values to each id still in a from status and returns the ids it changed.
func (r *assessmentRepository) transitionEach(ctx context.Context, ids []uint, from []string, values map[string]interface{}) ([]uint, error) {
	changed := make([]uint, 0, len(ids))
	for _, id := range ids {
		result := r.statusQuery(ctx).
			Where("id = ?", id).
			Where("status IN ?", from).
			Updates(values)
		if result.Error != nil {
			return changed, result.Error
		}
		if result.RowsAffected > 0 {
			changed = append(changed, id)
		}
	}
	return changed, nil
}
