package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/models"
)

// StudentFilter narrows student listings.
type StudentFilter struct {
	Search  string
	GradeID *uint
	ClassID *uint
}

// StudentRepository provides access to student records.
type StudentRepository interface {
	List(ctx context.Context, filter StudentFilter) ([]models.Student, error)
	GetByID(ctx context.Context, id uint) (models.Student, error)
	GetByEmail(ctx context.Context, email string) (models.Student, error)
	ExistsByEmailOrRoll(ctx context.Context, email, rollNumber string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id uint) error
}

type studentRepository struct {
	db *gorm.DB
}

// NewStudentRepository constructs a student repository.
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Student{}).
		Preload("Class").
		Preload("Grade")
}

func (r *studentRepository) List(ctx context.Context, filter StudentFilter) ([]models.Student, error) {
	query := r.baseQuery(ctx)

	if filter.Search != "" {
		like := "%" + strings.ToLower(strings.TrimSpace(filter.Search)) + "%"
		query = query.Where("LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(roll_number) LIKE ?", like, like, like, like)
	}
	if filter.GradeID != nil {
		query = query.Where("grade_id = ?", *filter.GradeID)
	}
	if filter.ClassID != nil {
		query = query.Where("class_id = ?", *filter.ClassID)
	}

	var students []models.Student
	if err := query.Order("roll_number ASC").Find(&students).Error; err != nil {
		return nil, err
	}

	return students, nil
}

func (r *studentRepository) GetByID(ctx context.Context, id uint) (models.Student, error) {
	var student models.Student
	if err := r.baseQuery(ctx).First(&student, id).Error; err != nil {
		return models.Student{}, err
	}

	return student, nil
}

func (r *studentRepository) GetByEmail(ctx context.Context, email string) (models.Student, error) {
	var student models.Student
	if err := r.baseQuery(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&student).Error; err != nil {
		return models.Student{}, err
	}

	return student, nil
}

func (r *studentRepository) ExistsByEmailOrRoll(ctx context.Context, email, rollNumber string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Student{}).
		Where("email = ? OR roll_number = ?", strings.ToLower(strings.TrimSpace(email)), strings.TrimSpace(rollNumber)).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *studentRepository) Create(ctx context.Context, student *models.Student) error {
	return r.db.WithContext(ctx).Omit("Class", "Grade").Create(student).Error
}

func (r *studentRepository) Update(ctx context.Context, student *models.Student) error {
	return r.db.WithContext(ctx).Omit("Class", "Grade").Save(student).Error
}

func (r *studentRepository) Delete(ctx context.Context, id uint) error {
	return deleteByID(ctx, r.db, &models.Student{}, id)
}
