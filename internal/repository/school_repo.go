package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/models"
)

// GradeRepository persists grades.
type GradeRepository interface {
	List(ctx context.Context) ([]models.Grade, error)
	GetByID(ctx context.Context, id uint) (models.Grade, error)
	GetByName(ctx context.Context, name string) (models.Grade, error)
	Create(ctx context.Context, grade *models.Grade) error
	Update(ctx context.Context, grade *models.Grade) error
	Delete(ctx context.Context, id uint) error
}

type gradeRepository struct {
	db *gorm.DB
}

// NewGradeRepository instantiates the repository.
func NewGradeRepository(db *gorm.DB) GradeRepository {
	return &gradeRepository{db: db}
}

func (r *gradeRepository) List(ctx context.Context) ([]models.Grade, error) {
	var grades []models.Grade
	if err := r.db.WithContext(ctx).Order("grade_name ASC").Find(&grades).Error; err != nil {
		return nil, err
	}
	return grades, nil
}

func (r *gradeRepository) GetByID(ctx context.Context, id uint) (models.Grade, error) {
	var grade models.Grade
	if err := r.db.WithContext(ctx).First(&grade, id).Error; err != nil {
		return models.Grade{}, err
	}
	return grade, nil
}

func (r *gradeRepository) GetByName(ctx context.Context, name string) (models.Grade, error) {
	var grade models.Grade
	if err := r.db.WithContext(ctx).Where("LOWER(grade_name) = ?", strings.ToLower(strings.TrimSpace(name))).First(&grade).Error; err != nil {
		return models.Grade{}, err
	}
	return grade, nil
}

func (r *gradeRepository) Create(ctx context.Context, grade *models.Grade) error {
	return r.db.WithContext(ctx).Create(grade).Error
}

func (r *gradeRepository) Update(ctx context.Context, grade *models.Grade) error {
	return r.db.WithContext(ctx).Save(grade).Error
}

func (r *gradeRepository) Delete(ctx context.Context, id uint) error {
	return deleteByID(ctx, r.db, &models.Grade{}, id)
}

// ClassRepository persists classes.
type ClassRepository interface {
	List(ctx context.Context, gradeID *uint) ([]models.Class, error)
	GetByID(ctx context.Context, id uint) (models.Class, error)
	GetByName(ctx context.Context, name string, gradeID uint) (models.Class, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	Delete(ctx context.Context, id uint) error
}

type classRepository struct {
	db *gorm.DB
}

// NewClassRepository instantiates the repository.
func NewClassRepository(db *gorm.DB) ClassRepository {
	return &classRepository{db: db}
}

func (r *classRepository) List(ctx context.Context, gradeID *uint) ([]models.Class, error) {
	query := r.db.WithContext(ctx).Preload("Grade")
	if gradeID != nil {
		query = query.Where("grade_id = ?", *gradeID)
	}
	var classes []models.Class
	if err := query.Order("class_name ASC").Find(&classes).Error; err != nil {
		return nil, err
	}
	return classes, nil
}

func (r *classRepository) GetByID(ctx context.Context, id uint) (models.Class, error) {
	var class models.Class
	if err := r.db.WithContext(ctx).Preload("Grade").First(&class, id).Error; err != nil {
		return models.Class{}, err
	}
	return class, nil
}

func (r *classRepository) GetByName(ctx context.Context, name string, gradeID uint) (models.Class, error) {
	var class models.Class
	query := r.db.WithContext(ctx).Preload("Grade").Where("LOWER(class_name) = ?", strings.ToLower(strings.TrimSpace(name)))
	if gradeID != 0 {
		query = query.Where("grade_id = ?", gradeID)
	}
	if err := query.First(&class).Error; err != nil {
		return models.Class{}, err
	}
	return class, nil
}

func (r *classRepository) Create(ctx context.Context, class *models.Class) error {
	return r.db.WithContext(ctx).Omit("Grade").Create(class).Error
}

func (r *classRepository) Update(ctx context.Context, class *models.Class) error {
	return r.db.WithContext(ctx).Omit("Grade").Save(class).Error
}

func (r *classRepository) Delete(ctx context.Context, id uint) error {
	return deleteByID(ctx, r.db, &models.Class{}, id)
}

// SubjectRepository persists subjects.
type SubjectRepository interface {
	List(ctx context.Context, gradeID *uint) ([]models.Subject, error)
	GetByID(ctx context.Context, id uint) (models.Subject, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
	Delete(ctx context.Context, id uint) error
}

type subjectRepository struct {
	db *gorm.DB
}

// NewSubjectRepository instantiates the repository.
func NewSubjectRepository(db *gorm.DB) SubjectRepository {
	return &subjectRepository{db: db}
}

func (r *subjectRepository) List(ctx context.Context, gradeID *uint) ([]models.Subject, error) {
	query := r.db.WithContext(ctx).Preload("Grade").Preload("Class")
	if gradeID != nil {
		query = query.Where("grade_id = ?", *gradeID)
	}
	var subjects []models.Subject
	if err := query.Order("subject_name ASC").Find(&subjects).Error; err != nil {
		return nil, err
	}
	return subjects, nil
}

func (r *subjectRepository) GetByID(ctx context.Context, id uint) (models.Subject, error) {
	var subject models.Subject
	if err := r.db.WithContext(ctx).Preload("Grade").Preload("Class").First(&subject, id).Error; err != nil {
		return models.Subject{}, err
	}
	return subject, nil
}

func (r *subjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	return r.db.WithContext(ctx).Omit("Grade", "Class").Create(subject).Error
}

func (r *subjectRepository) Update(ctx context.Context, subject *models.Subject) error {
	return r.db.WithContext(ctx).Omit("Grade", "Class").Save(subject).Error
}

func (r *subjectRepository) Delete(ctx context.Context, id uint) error {
	return deleteByID(ctx, r.db, &models.Subject{}, id)
}

// ChapterFilter narrows chapter listings.
type ChapterFilter struct {
	SubjectID *uint
	GradeID   *uint
}

// ChapterRepository persists chapters.
type ChapterRepository interface {
	List(ctx context.Context, filter ChapterFilter) ([]models.Chapter, error)
	GetByID(ctx context.Context, id uint) (models.Chapter, error)
	Create(ctx context.Context, chapter *models.Chapter) error
	Update(ctx context.Context, chapter *models.Chapter) error
	Delete(ctx context.Context, id uint) error
}

type chapterRepository struct {
	db *gorm.DB
}

// NewChapterRepository instantiates the repository.
func NewChapterRepository(db *gorm.DB) ChapterRepository {
	return &chapterRepository{db: db}
}

func (r *chapterRepository) List(ctx context.Context, filter ChapterFilter) ([]models.Chapter, error) {
	query := r.db.WithContext(ctx).Preload("Subject").Preload("Grade")
	if filter.SubjectID != nil {
		query = query.Where("subject_id = ?", *filter.SubjectID)
	}
	if filter.GradeID != nil {
		query = query.Where("grade_id = ?", *filter.GradeID)
	}
	var chapters []models.Chapter
	if err := query.Order("chapter_number ASC, chapter_name ASC").Find(&chapters).Error; err != nil {
		return nil, err
	}
	return chapters, nil
}

func (r *chapterRepository) GetByID(ctx context.Context, id uint) (models.Chapter, error) {
	var chapter models.Chapter
	if err := r.db.WithContext(ctx).Preload("Subject").Preload("Grade").First(&chapter, id).Error; err != nil {
		return models.Chapter{}, err
	}
	return chapter, nil
}

func (r *chapterRepository) Create(ctx context.Context, chapter *models.Chapter) error {
	return r.db.WithContext(ctx).Omit("Subject", "Grade").Create(chapter).Error
}

func (r *chapterRepository) Update(ctx context.Context, chapter *models.Chapter) error {
	return r.db.WithContext(ctx).Omit("Subject", "Grade").Save(chapter).Error
}

func (r *chapterRepository) Delete(ctx context.Context, id uint) error {
	return deleteByID(ctx, r.db, &models.Chapter{}, id)
}

func deleteByID(ctx context.Context, db *gorm.DB, model interface{}, id uint) error {
	result := db.WithContext(ctx).Delete(model, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
