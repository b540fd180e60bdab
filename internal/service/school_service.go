package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/repository"
)

// SchoolService manages grades, classes, subjects and chapters.
type SchoolService interface {
	ListGrades(ctx context.Context) ([]dto.GradeResponse, error)
	GetGrade(ctx context.Context, id uint) (dto.GradeResponse, error)
	CreateGrade(ctx context.Context, payload dto.GradeRequest) (dto.GradeResponse, error)
	UpdateGrade(ctx context.Context, id uint, payload dto.GradeRequest) (dto.GradeResponse, error)
	DeleteGrade(ctx context.Context, id uint) error

	ListClasses(ctx context.Context, gradeID *uint) ([]dto.ClassResponse, error)
	GetClass(ctx context.Context, id uint) (dto.ClassResponse, error)
	CreateClass(ctx context.Context, payload dto.ClassRequest) (dto.ClassResponse, error)
	UpdateClass(ctx context.Context, id uint, payload dto.ClassRequest) (dto.ClassResponse, error)
	DeleteClass(ctx context.Context, id uint) error

	ListSubjects(ctx context.Context, gradeID *uint) ([]dto.SubjectResponse, error)
	GetSubject(ctx context.Context, id uint) (dto.SubjectResponse, error)
	CreateSubject(ctx context.Context, payload dto.SubjectRequest) (dto.SubjectResponse, error)
	UpdateSubject(ctx context.Context, id uint, payload dto.SubjectRequest) (dto.SubjectResponse, error)
	DeleteSubject(ctx context.Context, id uint) error

	ListChapters(ctx context.Context, filter repository.ChapterFilter) ([]dto.ChapterResponse, error)
	GetChapter(ctx context.Context, id uint) (dto.ChapterResponse, error)
	CreateChapter(ctx context.Context, payload dto.ChapterRequest) (dto.ChapterResponse, error)
	UpdateChapter(ctx context.Context, id uint, payload dto.ChapterRequest) (dto.ChapterResponse, error)
	DeleteChapter(ctx context.Context, id uint) error
}

type schoolService struct {
	grades    repository.GradeRepository
	classes   repository.ClassRepository
	subjects  repository.SubjectRepository
	chapters  repository.ChapterRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewSchoolService constructs the school structure service.
func NewSchoolService(grades repository.GradeRepository, classes repository.ClassRepository, subjects repository.SubjectRepository, chapters repository.ChapterRepository, validate *validator.Validate, logger zerolog.Logger) SchoolService {
	return &schoolService{
		grades:    grades,
		classes:   classes,
		subjects:  subjects,
		chapters:  chapters,
		validator: validate,
		logger:    logger.With().Str("component", "school_service").Logger(),
	}
}

func duplicateAs(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateRecord
	}
	return err
}

func (s *schoolService) ListGrades(ctx context.Context) ([]dto.GradeResponse, error) {
	grades, err := s.grades.List(ctx)
	if err != nil {
		return nil, err
	}
	return dto.NewGradeResponseSlice(grades), nil
}

func (s *schoolService) GetGrade(ctx context.Context, id uint) (dto.GradeResponse, error) {
	grade, err := s.grades.GetByID(ctx, id)
	if err != nil {
		return dto.GradeResponse{}, notFoundAs(err, ErrGradeNotFound)
	}
	return dto.NewGradeResponse(grade), nil
}

func (s *schoolService) CreateGrade(ctx context.Context, payload dto.GradeRequest) (dto.GradeResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.GradeResponse{}, err
	}
	grade := models.Grade{GradeName: strings.TrimSpace(payload.GradeName)}
	if err := s.grades.Create(ctx, &grade); err != nil {
		return dto.GradeResponse{}, duplicateAs(err)
	}
	s.logger.Info().Uint("grade_id", grade.ID).Msg("grade created")
	return dto.NewGradeResponse(grade), nil
}

func (s *schoolService) UpdateGrade(ctx context.Context, id uint, payload dto.GradeRequest) (dto.GradeResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.GradeResponse{}, err
	}
	grade, err := s.grades.GetByID(ctx, id)
	if err != nil {
		return dto.GradeResponse{}, notFoundAs(err, ErrGradeNotFound)
	}
	grade.GradeName = strings.TrimSpace(payload.GradeName)
	if err := s.grades.Update(ctx, &grade); err != nil {
		return dto.GradeResponse{}, duplicateAs(err)
	}
	return dto.NewGradeResponse(grade), nil
}

func (s *schoolService) DeleteGrade(ctx context.Context, id uint) error {
	return notFoundAs(s.grades.Delete(ctx, id), ErrGradeNotFound)
}

// resolveGrade accepts either an id or a grade name.
func (s *schoolService) resolveGrade(ctx context.Context, id uint, name string) (models.Grade, error) {
	var (
		grade models.Grade
		err   error
	)
	if id != 0 {
		grade, err = s.grades.GetByID(ctx, id)
	} else {
		grade, err = s.grades.GetByName(ctx, name)
	}
	if err != nil {
		return models.Grade{}, notFoundAs(err, ErrGradeNotFound)
	}
	return grade, nil
}

func (s *schoolService) ListClasses(ctx context.Context, gradeID *uint) ([]dto.ClassResponse, error) {
	classes, err := s.classes.List(ctx, gradeID)
	if err != nil {
		return nil, err
	}
	return dto.NewClassResponseSlice(classes), nil
}

func (s *schoolService) GetClass(ctx context.Context, id uint) (dto.ClassResponse, error) {
	class, err := s.classes.GetByID(ctx, id)
	if err != nil {
		return dto.ClassResponse{}, notFoundAs(err, ErrClassNotFound)
	}
	return dto.NewClassResponse(class), nil
}

func (s *schoolService) CreateClass(ctx context.Context, payload dto.ClassRequest) (dto.ClassResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ClassResponse{}, err
	}
	grade, err := s.resolveGrade(ctx, payload.GradeID, payload.GradeName)
	if err != nil {
		return dto.ClassResponse{}, err
	}

	class := models.Class{
		ClassName:     strings.TrimSpace(payload.ClassName),
		ClassStrength: payload.ClassStrength,
		GradeID:       grade.ID,
	}
	if err := s.classes.Create(ctx, &class); err != nil {
		return dto.ClassResponse{}, duplicateAs(err)
	}
	class.Grade = grade
	s.logger.Info().Uint("class_id", class.ID).Uint("grade_id", grade.ID).Msg("class created")
	return dto.NewClassResponse(class), nil
}

func (s *schoolService) UpdateClass(ctx context.Context, id uint, payload dto.ClassRequest) (dto.ClassResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ClassResponse{}, err
	}
	class, err := s.classes.GetByID(ctx, id)
	if err != nil {
		return dto.ClassResponse{}, notFoundAs(err, ErrClassNotFound)
	}
	grade, err := s.resolveGrade(ctx, payload.GradeID, payload.GradeName)
	if err != nil {
		return dto.ClassResponse{}, err
	}

	class.ClassName = strings.TrimSpace(payload.ClassName)
	class.ClassStrength = payload.ClassStrength
	class.GradeID = grade.ID
	class.Grade = grade
	if err := s.classes.Update(ctx, &class); err != nil {
		return dto.ClassResponse{}, duplicateAs(err)
	}
	return dto.NewClassResponse(class), nil
}

func (s *schoolService) DeleteClass(ctx context.Context, id uint) error {
	return notFoundAs(s.classes.Delete(ctx, id), ErrClassNotFound)
}

func (s *schoolService) ListSubjects(ctx context.Context, gradeID *uint) ([]dto.SubjectResponse, error) {
	subjects, err := s.subjects.List(ctx, gradeID)
	if err != nil {
		return nil, err
	}
	return dto.NewSubjectResponseSlice(subjects), nil
}

func (s *schoolService) GetSubject(ctx context.Context, id uint) (dto.SubjectResponse, error) {
	subject, err := s.subjects.GetByID(ctx, id)
	if err != nil {
		return dto.SubjectResponse{}, notFoundAs(err, ErrSubjectNotFound)
	}
	return dto.NewSubjectResponse(subject), nil
}

func (s *schoolService) checkSubjectRefs(ctx context.Context, payload dto.SubjectRequest) error {
	if _, err := s.grades.GetByID(ctx, payload.GradeID); err != nil {
		return notFoundAs(err, ErrGradeNotFound)
	}
	if payload.ClassID != nil {
		class, err := s.classes.GetByID(ctx, *payload.ClassID)
		if err != nil {
			return notFoundAs(err, ErrClassNotFound)
		}
		if class.GradeID != payload.GradeID {
			return ErrClassNotFound
		}
	}
	return nil
}

func (s *schoolService) CreateSubject(ctx context.Context, payload dto.SubjectRequest) (dto.SubjectResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubjectResponse{}, err
	}
	if err := s.checkSubjectRefs(ctx, payload); err != nil {
		return dto.SubjectResponse{}, err
	}

	subject := models.Subject{
		SubjectName: strings.TrimSpace(payload.SubjectName),
		GradeID:     payload.GradeID,
		ClassID:     payload.ClassID,
	}
	if err := s.subjects.Create(ctx, &subject); err != nil {
		return dto.SubjectResponse{}, duplicateAs(err)
	}
	return s.GetSubject(ctx, subject.ID)
}

func (s *schoolService) UpdateSubject(ctx context.Context, id uint, payload dto.SubjectRequest) (dto.SubjectResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubjectResponse{}, err
	}
	subject, err := s.subjects.GetByID(ctx, id)
	if err != nil {
		return dto.SubjectResponse{}, notFoundAs(err, ErrSubjectNotFound)
	}
	if err := s.checkSubjectRefs(ctx, payload); err != nil {
		return dto.SubjectResponse{}, err
	}

	subject.SubjectName = strings.TrimSpace(payload.SubjectName)
	subject.GradeID = payload.GradeID
	subject.ClassID = payload.ClassID
	if err := s.subjects.Update(ctx, &subject); err != nil {
		return dto.SubjectResponse{}, duplicateAs(err)
	}
	return s.GetSubject(ctx, subject.ID)
}

func (s *schoolService) DeleteSubject(ctx context.Context, id uint) error {
	return notFoundAs(s.subjects.Delete(ctx, id), ErrSubjectNotFound)
}

func (s *schoolService) ListChapters(ctx context.Context, filter repository.ChapterFilter) ([]dto.ChapterResponse, error) {
	chapters, err := s.chapters.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return dto.NewChapterResponseSlice(chapters), nil
}

func (s *schoolService) GetChapter(ctx context.Context, id uint) (dto.ChapterResponse, error) {
	chapter, err := s.chapters.GetByID(ctx, id)
	if err != nil {
		return dto.ChapterResponse{}, notFoundAs(err, ErrChapterNotFound)
	}
	return dto.NewChapterResponse(chapter), nil
}

// checkChapterRefs requires the subject to be taught in the chapter's grade.
func (s *schoolService) checkChapterRefs(ctx context.Context, payload dto.ChapterRequest) error {
	subject, err := s.subjects.GetByID(ctx, payload.SubjectID)
	if err != nil {
		return notFoundAs(err, ErrSubjectNotFound)
	}
	if _, err := s.grades.GetByID(ctx, payload.GradeID); err != nil {
		return notFoundAs(err, ErrGradeNotFound)
	}
	if subject.GradeID != payload.GradeID {
		return ErrSubjectNotFound
	}
	return nil
}

func (s *schoolService) CreateChapter(ctx context.Context, payload dto.ChapterRequest) (dto.ChapterResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ChapterResponse{}, err
	}
	if err := s.checkChapterRefs(ctx, payload); err != nil {
		return dto.ChapterResponse{}, err
	}

	chapter := models.Chapter{
		ChapterName:   strings.TrimSpace(payload.ChapterName),
		ChapterNumber: payload.ChapterNumber,
		SubjectID:     payload.SubjectID,
		GradeID:       payload.GradeID,
	}
	if err := s.chapters.Create(ctx, &chapter); err != nil {
		return dto.ChapterResponse{}, duplicateAs(err)
	}
	s.logger.Info().Uint("chapter_id", chapter.ID).Uint("subject_id", chapter.SubjectID).Msg("chapter created")
	return s.GetChapter(ctx, chapter.ID)
}

func (s *schoolService) UpdateChapter(ctx context.Context, id uint, payload dto.ChapterRequest) (dto.ChapterResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ChapterResponse{}, err
	}
	chapter, err := s.chapters.GetByID(ctx, id)
	if err != nil {
		return dto.ChapterResponse{}, notFoundAs(err, ErrChapterNotFound)
	}
	if err := s.checkChapterRefs(ctx, payload); err != nil {
		return dto.ChapterResponse{}, err
	}

	chapter.ChapterName = strings.TrimSpace(payload.ChapterName)
	chapter.ChapterNumber = payload.ChapterNumber
	chapter.SubjectID = payload.SubjectID
	chapter.GradeID = payload.GradeID
	if err := s.chapters.Update(ctx, &chapter); err != nil {
		return dto.ChapterResponse{}, duplicateAs(err)
	}
	return s.GetChapter(ctx, chapter.ID)
}

func (s *schoolService) DeleteChapter(ctx context.Context, id uint) error {
	return notFoundAs(s.chapters.Delete(ctx, id), ErrChapterNotFound)
}
