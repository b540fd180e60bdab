package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/repository"
)

// PeopleQuery filters teacher and student listings. Grade and Class accept an id or a name.
type PeopleQuery struct {
	Search  string
	Subject string
	Grade   string
	Class   string
}

// PeopleService manages teacher, student and parent accounts.
type PeopleService interface {
	RegisterTeacher(ctx context.Context, payload dto.TeacherRegisterRequest) (dto.TeacherResponse, error)
	ListTeachers(ctx context.Context, query PeopleQuery) ([]dto.TeacherResponse, error)
	GetTeacher(ctx context.Context, id uint) (dto.TeacherResponse, error)
	UpdateTeacher(ctx context.Context, id uint, payload dto.TeacherUpdateRequest) (dto.TeacherResponse, error)
	DeleteTeacher(ctx context.Context, id uint) error

	RegisterStudent(ctx context.Context, payload dto.StudentRegisterRequest) (dto.StudentResponse, error)
	ListStudents(ctx context.Context, query PeopleQuery) ([]dto.StudentResponse, error)
	GetStudent(ctx context.Context, id uint) (dto.StudentResponse, error)
	UpdateStudent(ctx context.Context, id uint, payload dto.StudentUpdateRequest) (dto.StudentResponse, error)
	DeleteStudent(ctx context.Context, id uint) error

	RegisterParent(ctx context.Context, payload dto.ParentRegisterRequest) (dto.ParentResponse, error)
	ListParents(ctx context.Context, search string) ([]dto.ParentResponse, error)
	GetParent(ctx context.Context, id uint) (dto.ParentResponse, error)
	UpdateParent(ctx context.Context, id uint, payload dto.ParentUpdateRequest) (dto.ParentResponse, error)
	DeleteParent(ctx context.Context, id uint) error
}

type peopleService struct {
	teachers  repository.TeacherRepository
	students  repository.StudentRepository
	parents   repository.ParentRepository
	grades    repository.GradeRepository
	classes   repository.ClassRepository
	subjects  repository.SubjectRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewPeopleService constructs the account management service.
func NewPeopleService(teachers repository.TeacherRepository, students repository.StudentRepository, parents repository.ParentRepository, grades repository.GradeRepository, classes repository.ClassRepository, subjects repository.SubjectRepository, validate *validator.Validate, logger zerolog.Logger) PeopleService {
	return &peopleService{
		teachers:  teachers,
		students:  students,
		parents:   parents,
		grades:    grades,
		classes:   classes,
		subjects:  subjects,
		validator: validate,
		logger:    logger.With().Str("component", "people_service").Logger(),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func accountConflict(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateAccount
	}
	return err
}

func (s *peopleService) gradeRef(ctx context.Context, ref string) (uint, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		return uint(id), nil
	}
	grade, err := s.grades.GetByName(ctx, ref)
	if err != nil {
		return 0, notFoundAs(err, ErrGradeNotFound)
	}
	return grade.ID, nil
}

func (s *peopleService) classRef(ctx context.Context, ref string, gradeID uint) (uint, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		return uint(id), nil
	}
	class, err := s.classes.GetByName(ctx, ref, gradeID)
	if err != nil {
		return 0, notFoundAs(err, ErrClassNotFound)
	}
	return class.ID, nil
}

func (s *peopleService) loadLinks(ctx context.Context, classIDs, gradeIDs, subjectIDs []uint) ([]models.Class, []models.Grade, []models.Subject, error) {
	classes := make([]models.Class, 0, len(classIDs))
	for _, id := range classIDs {
		class, err := s.classes.GetByID(ctx, id)
		if err != nil {
			return nil, nil, nil, notFoundAs(err, ErrClassNotFound)
		}
		classes = append(classes, class)
	}
	grades := make([]models.Grade, 0, len(gradeIDs))
	for _, id := range gradeIDs {
		grade, err := s.grades.GetByID(ctx, id)
		if err != nil {
			return nil, nil, nil, notFoundAs(err, ErrGradeNotFound)
		}
		grades = append(grades, grade)
	}
	subjects := make([]models.Subject, 0, len(subjectIDs))
	for _, id := range subjectIDs {
		subject, err := s.subjects.GetByID(ctx, id)
		if err != nil {
			return nil, nil, nil, notFoundAs(err, ErrSubjectNotFound)
		}
		subjects = append(subjects, subject)
	}
	return classes, grades, subjects, nil
}

func (s *peopleService) RegisterTeacher(ctx context.Context, payload dto.TeacherRegisterRequest) (dto.TeacherResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.TeacherResponse{}, err
	}
	email := normalizeEmail(payload.Email)
	if _, err := s.teachers.GetByEmail(ctx, email); err == nil {
		return dto.TeacherResponse{}, ErrDuplicateAccount
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.TeacherResponse{}, err
	}

	classes, grades, subjects, err := s.loadLinks(ctx, payload.ClassIDs, payload.GradeIDs, payload.SubjectIDs)
	if err != nil {
		return dto.TeacherResponse{}, err
	}
	hash, err := HashPassword(payload.Password)
	if err != nil {
		return dto.TeacherResponse{}, err
	}

	teacher := models.Teacher{
		Name:         strings.TrimSpace(payload.Name),
		Email:        email,
		PasswordHash: hash,
		Phone:        strings.TrimSpace(payload.Phone),
		IsActive:     true,
		Classes:      classes,
		Grades:       grades,
		Subjects:     subjects,
	}
	if err := s.teachers.Create(ctx, &teacher); err != nil {
		return dto.TeacherResponse{}, accountConflict(err)
	}
	s.logger.Info().Uint("teacher_id", teacher.ID).Msg("teacher registered")
	return s.GetTeacher(ctx, teacher.ID)
}

func (s *peopleService) ListTeachers(ctx context.Context, query PeopleQuery) ([]dto.TeacherResponse, error) {
	filter := repository.TeacherFilter{SubjectName: query.Subject}
	if query.Grade != "" {
		id, err := s.gradeRef(ctx, query.Grade)
		if err != nil {
			return nil, err
		}
		filter.GradeID = &id
	}
	if query.Class != "" {
		id, err := s.classRef(ctx, query.Class, 0)
		if err != nil {
			return nil, err
		}
		filter.ClassID = &id
	}

	teachers, err := s.teachers.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return dto.NewTeacherResponseSlice(teachers), nil
}

func (s *peopleService) GetTeacher(ctx context.Context, id uint) (dto.TeacherResponse, error) {
	teacher, err := s.teachers.GetByID(ctx, id)
	if err != nil {
		return dto.TeacherResponse{}, notFoundAs(err, ErrTeacherNotFound)
	}
	return dto.NewTeacherResponse(teacher), nil
}

func (s *peopleService) UpdateTeacher(ctx context.Context, id uint, payload dto.TeacherUpdateRequest) (dto.TeacherResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.TeacherResponse{}, err
	}
	teacher, err := s.teachers.GetByID(ctx, id)
	if err != nil {
		return dto.TeacherResponse{}, notFoundAs(err, ErrTeacherNotFound)
	}

	if payload.Name != nil {
		teacher.Name = strings.TrimSpace(*payload.Name)
	}
	if payload.Phone != nil {
		teacher.Phone = strings.TrimSpace(*payload.Phone)
	}
	if payload.IsActive != nil {
		teacher.IsActive = *payload.IsActive
	}
	if payload.Password != nil {
		hash, err := HashPassword(*payload.Password)
		if err != nil {
			return dto.TeacherResponse{}, err
		}
		teacher.PasswordHash = hash
	}
	if payload.ClassIDs != nil || payload.GradeIDs != nil || payload.SubjectIDs != nil {
		classes, grades, subjects, err := s.loadLinks(ctx, payload.ClassIDs, payload.GradeIDs, payload.SubjectIDs)
		if err != nil {
			return dto.TeacherResponse{}, err
		}
		if payload.ClassIDs != nil {
			teacher.Classes = classes
		}
		if payload.GradeIDs != nil {
			teacher.Grades = grades
		}
		if payload.SubjectIDs != nil {
			teacher.Subjects = subjects
		}
	}

	if err := s.teachers.Update(ctx, &teacher); err != nil {
		return dto.TeacherResponse{}, accountConflict(err)
	}
	return s.GetTeacher(ctx, id)
}

func (s *peopleService) DeleteTeacher(ctx context.Context, id uint) error {
	return notFoundAs(s.teachers.Delete(ctx, id), ErrTeacherNotFound)
}

func (s *peopleService) RegisterStudent(ctx context.Context, payload dto.StudentRegisterRequest) (dto.StudentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.StudentResponse{}, err
	}
	email := normalizeEmail(payload.Email)
	rollNumber := strings.TrimSpace(payload.RollNumber)

	exists, err := s.students.ExistsByEmailOrRoll(ctx, email, rollNumber)
	if err != nil {
		return dto.StudentResponse{}, err
	}
	if exists {
		return dto.StudentResponse{}, ErrDuplicateAccount
	}

	gradeID := payload.GradeID
	if gradeID == 0 {
		if gradeID, err = s.gradeRef(ctx, payload.GradeName); err != nil {
			return dto.StudentResponse{}, err
		}
	} else if _, err := s.grades.GetByID(ctx, gradeID); err != nil {
		return dto.StudentResponse{}, notFoundAs(err, ErrGradeNotFound)
	}

	var class models.Class
	if payload.ClassID != 0 {
		class, err = s.classes.GetByID(ctx, payload.ClassID)
	} else {
		class, err = s.classes.GetByName(ctx, payload.ClassName, gradeID)
	}
	if err != nil {
		return dto.StudentResponse{}, notFoundAs(err, ErrClassNotFound)
	}
	if class.GradeID != gradeID {
		return dto.StudentResponse{}, ErrClassNotFound
	}

	hash, err := HashPassword(payload.Password)
	if err != nil {
		return dto.StudentResponse{}, err
	}

	student := models.Student{
		FirstName:    strings.TrimSpace(payload.FirstName),
		LastName:     strings.TrimSpace(payload.LastName),
		FatherName:   strings.TrimSpace(payload.FatherName),
		MotherName:   strings.TrimSpace(payload.MotherName),
		Email:        email,
		PasswordHash: hash,
		ClassID:      class.ID,
		GradeID:      gradeID,
		RollNumber:   rollNumber,
		IsActive:     true,
	}
	if err := s.students.Create(ctx, &student); err != nil {
		return dto.StudentResponse{}, accountConflict(err)
	}
	s.logger.Info().Uint("student_id", student.ID).Uint("class_id", class.ID).Msg("student registered")
	return s.GetStudent(ctx, student.ID)
}

func (s *peopleService) ListStudents(ctx context.Context, query PeopleQuery) ([]dto.StudentResponse, error) {
	filter := repository.StudentFilter{Search: strings.TrimSpace(query.Search)}
	if query.Grade != "" {
		id, err := s.gradeRef(ctx, query.Grade)
		if err != nil {
			return nil, err
		}
		filter.GradeID = &id
	}
	if query.Class != "" {
		var gradeID uint
		if filter.GradeID != nil {
			gradeID = *filter.GradeID
		}
		id, err := s.classRef(ctx, query.Class, gradeID)
		if err != nil {
			return nil, err
		}
		filter.ClassID = &id
	}

	students, err := s.students.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return dto.NewStudentResponseSlice(students), nil
}

func (s *peopleService) GetStudent(ctx context.Context, id uint) (dto.StudentResponse, error) {
	student, err := s.students.GetByID(ctx, id)
	if err != nil {
		return dto.StudentResponse{}, notFoundAs(err, ErrStudentNotFound)
	}
	return dto.NewStudentResponse(student), nil
}

func (s *peopleService) UpdateStudent(ctx context.Context, id uint, payload dto.StudentUpdateRequest) (dto.StudentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.StudentResponse{}, err
	}
	student, err := s.students.GetByID(ctx, id)
	if err != nil {
		return dto.StudentResponse{}, notFoundAs(err, ErrStudentNotFound)
	}

	if payload.FirstName != nil {
		student.FirstName = strings.TrimSpace(*payload.FirstName)
	}
	if payload.LastName != nil {
		student.LastName = strings.TrimSpace(*payload.LastName)
	}
	if payload.FatherName != nil {
		student.FatherName = strings.TrimSpace(*payload.FatherName)
	}
	if payload.MotherName != nil {
		student.MotherName = strings.TrimSpace(*payload.MotherName)
	}
	if payload.IsActive != nil {
		student.IsActive = *payload.IsActive
	}
	if payload.Password != nil {
		hash, err := HashPassword(*payload.Password)
		if err != nil {
			return dto.StudentResponse{}, err
		}
		student.PasswordHash = hash
	}
	if payload.GradeID != nil {
		if _, err := s.grades.GetByID(ctx, *payload.GradeID); err != nil {
			return dto.StudentResponse{}, notFoundAs(err, ErrGradeNotFound)
		}
		student.GradeID = *payload.GradeID
	}
	if payload.ClassID != nil {
		class, err := s.classes.GetByID(ctx, *payload.ClassID)
		if err != nil {
			return dto.StudentResponse{}, notFoundAs(err, ErrClassNotFound)
		}
		student.ClassID = class.ID
	}
	if payload.GradeID != nil || payload.ClassID != nil {
		class, err := s.classes.GetByID(ctx, student.ClassID)
		if err != nil {
			return dto.StudentResponse{}, notFoundAs(err, ErrClassNotFound)
		}
		if class.GradeID != student.GradeID {
			return dto.StudentResponse{}, ErrClassNotFound
		}
	}

	if err := s.students.Update(ctx, &student); err != nil {
		return dto.StudentResponse{}, accountConflict(err)
	}
	return s.GetStudent(ctx, id)
}

func (s *peopleService) DeleteStudent(ctx context.Context, id uint) error {
	return notFoundAs(s.students.Delete(ctx, id), ErrStudentNotFound)
}

func (s *peopleService) loadChildren(ctx context.Context, ids []uint) ([]models.Student, error) {
	children := make([]models.Student, 0, len(ids))
	for _, id := range ids {
		student, err := s.students.GetByID(ctx, id)
		if err != nil {
			return nil, notFoundAs(err, ErrStudentNotFound)
		}
		children = append(children, student)
	}
	return children, nil
}

func (s *peopleService) RegisterParent(ctx context.Context, payload dto.ParentRegisterRequest) (dto.ParentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ParentResponse{}, err
	}
	email := normalizeEmail(payload.Email)
	if _, err := s.parents.GetByEmail(ctx, email); err == nil {
		return dto.ParentResponse{}, ErrDuplicateAccount
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.ParentResponse{}, err
	}

	children, err := s.loadChildren(ctx, payload.ChildIDs)
	if err != nil {
		return dto.ParentResponse{}, err
	}
	hash, err := HashPassword(payload.Password)
	if err != nil {
		return dto.ParentResponse{}, err
	}

	parent := models.Parent{
		FatherName:   strings.TrimSpace(payload.FatherName),
		MotherName:   strings.TrimSpace(payload.MotherName),
		Email:        email,
		PasswordHash: hash,
		Phone:        strings.TrimSpace(payload.Phone),
		IsActive:     true,
		Children:     children,
	}
	if err := s.parents.Create(ctx, &parent); err != nil {
		return dto.ParentResponse{}, accountConflict(err)
	}
	s.logger.Info().Uint("parent_id", parent.ID).Int("children", len(children)).Msg("parent registered")
	return s.GetParent(ctx, parent.ID)
}

func (s *peopleService) ListParents(ctx context.Context, search string) ([]dto.ParentResponse, error) {
	parents, err := s.parents.List(ctx, search)
	if err != nil {
		return nil, err
	}
	return dto.NewParentResponseSlice(parents), nil
}

func (s *peopleService) GetParent(ctx context.Context, id uint) (dto.ParentResponse, error) {
	parent, err := s.parents.GetByID(ctx, id)
	if err != nil {
		return dto.ParentResponse{}, notFoundAs(err, ErrParentNotFound)
	}
	return dto.NewParentResponse(parent), nil
}

func (s *peopleService) UpdateParent(ctx context.Context, id uint, payload dto.ParentUpdateRequest) (dto.ParentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ParentResponse{}, err
	}
	parent, err := s.parents.GetByID(ctx, id)
	if err != nil {
		return dto.ParentResponse{}, notFoundAs(err, ErrParentNotFound)
	}

	if payload.FatherName != nil {
		parent.FatherName = strings.TrimSpace(*payload.FatherName)
	}
	if payload.MotherName != nil {
		parent.MotherName = strings.TrimSpace(*payload.MotherName)
	}
	if payload.Phone != nil {
		parent.Phone = strings.TrimSpace(*payload.Phone)
	}
	if payload.IsActive != nil {
		parent.IsActive = *payload.IsActive
	}
	if payload.Password != nil {
		hash, err := HashPassword(*payload.Password)
		if err != nil {
			return dto.ParentResponse{}, err
		}
		parent.PasswordHash = hash
	}
	if payload.ChildIDs != nil {
		children, err := s.loadChildren(ctx, payload.ChildIDs)
		if err != nil {
			return dto.ParentResponse{}, err
		}
		parent.Children = children
	}

	if err := s.parents.Update(ctx, &parent); err != nil {
		return dto.ParentResponse{}, accountConflict(err)
	}
	return s.GetParent(ctx, id)
}

func (s *peopleService) DeleteParent(ctx context.Context, id uint) error {
	return notFoundAs(s.parents.Delete(ctx, id), ErrParentNotFound)
}
