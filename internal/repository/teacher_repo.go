package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/models"
)

// TeacherFilter narrows teacher listings by association.
type TeacherFilter struct {
	SubjectName string
	GradeID     *uint
	ClassID     *uint
}

// TeacherRepository persists teachers and their class/grade/subject links.
type TeacherRepository interface {
	List(ctx context.Context, filter TeacherFilter) ([]models.Teacher, error)
	GetByID(ctx context.Context, id uint) (models.Teacher, error)
	GetByEmail(ctx context.Context, email string) (models.Teacher, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
	Delete(ctx context.Context, id uint) error
}

type teacherRepository struct {
	db *gorm.DB
}

// NewTeacherRepository instantiates the repository.
func NewTeacherRepository(db *gorm.DB) TeacherRepository {
	return &teacherRepository{db: db}
}

func (r *teacherRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Teacher{}).
		Preload("Classes").
		Preload("Grades").
		Preload("Subjects")
}

func (r *teacherRepository) List(ctx context.Context, filter TeacherFilter) ([]models.Teacher, error) {
	query := r.baseQuery(ctx)

	if name := strings.TrimSpace(filter.SubjectName); name != "" {
		query = query.Where("teachers.id IN (?)", r.db.Table("teacher_subjects").
			Select("teacher_subjects.teacher_id").
			Joins("JOIN subjects ON subjects.id = teacher_subjects.subject_id").
			Where("LOWER(subjects.subject_name) = ?", strings.ToLower(name)))
	}
	if filter.GradeID != nil {
		query = query.Where("teachers.id IN (?)", r.db.Table("teacher_grades").
			Select("teacher_id").
			Where("grade_id = ?", *filter.GradeID))
	}
	if filter.ClassID != nil {
		query = query.Where("teachers.id IN (?)", r.db.Table("teacher_classes").
			Select("teacher_id").
			Where("class_id = ?", *filter.ClassID))
	}

	var teachers []models.Teacher
	if err := query.Order("name ASC").Find(&teachers).Error; err != nil {
		return nil, err
	}
	return teachers, nil
}

func (r *teacherRepository) GetByID(ctx context.Context, id uint) (models.Teacher, error) {
	var teacher models.Teacher
	if err := r.baseQuery(ctx).First(&teacher, id).Error; err != nil {
		return models.Teacher{}, err
	}
	return teacher, nil
}

func (r *teacherRepository) GetByEmail(ctx context.Context, email string) (models.Teacher, error) {
	var teacher models.Teacher
	if err := r.baseQuery(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&teacher).Error; err != nil {
		return models.Teacher{}, err
	}
	return teacher, nil
}

func (r *teacherRepository) Create(ctx context.Context, teacher *models.Teacher) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		classes, grades, subjects := teacher.Classes, teacher.Grades, teacher.Subjects
		if err := tx.Omit("Classes", "Grades", "Subjects").Create(teacher).Error; err != nil {
			return err
		}
		return replaceTeacherLinks(tx, teacher, classes, grades, subjects)
	})
}

func (r *teacherRepository) Update(ctx context.Context, teacher *models.Teacher) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		classes, grades, subjects := teacher.Classes, teacher.Grades, teacher.Subjects
		if err := tx.Omit("Classes", "Grades", "Subjects").Save(teacher).Error; err != nil {
			return err
		}
		return replaceTeacherLinks(tx, teacher, classes, grades, subjects)
	})
}

func replaceTeacherLinks(tx *gorm.DB, teacher *models.Teacher, classes []models.Class, grades []models.Grade, subjects []models.Subject) error {
	if err := tx.Model(teacher).Omit("Classes.*").Association("Classes").Replace(classes); err != nil {
		return err
	}
	if err := tx.Model(teacher).Omit("Grades.*").Association("Grades").Replace(grades); err != nil {
		return err
	}
	return tx.Model(teacher).Omit("Subjects.*").Association("Subjects").Replace(subjects)
}

func (r *teacherRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		teacher := models.Teacher{ID: id}
		if err := tx.Model(&teacher).Association("Classes").Clear(); err != nil {
			return err
		}
		if err := tx.Model(&teacher).Association("Grades").Clear(); err != nil {
			return err
		}
		if err := tx.Model(&teacher).Association("Subjects").Clear(); err != nil {
			return err
		}
		return deleteByID(ctx, tx, &models.Teacher{}, id)
	})
}
