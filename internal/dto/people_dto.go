package dto

import (
	"time"

	"github.com/noah-isme/teachmate-api/internal/models"
)

// LoginRequest authenticates a teacher, student or parent.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required,oneof=teacher student parent"`
}

// LoginResponse carries the issued token.
type LoginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	Role      string      `json:"role"`
	User      interface{} `json:"user"`
}

// TeacherRegisterRequest registers a teacher account.
type TeacherRegisterRequest struct {
	Name       string `json:"name" validate:"required,min=2,max=100"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=6,max=72"`
	Phone      string `json:"phone" validate:"omitempty,max=20"`
	ClassIDs   []uint `json:"class_ids"`
	GradeIDs   []uint `json:"grade_ids"`
	SubjectIDs []uint `json:"subject_ids"`
}

// TeacherUpdateRequest updates a teacher. Nil fields are left unchanged.
type TeacherUpdateRequest struct {
	Name       *string `json:"name" validate:"omitempty,min=2,max=100"`
	Phone      *string `json:"phone" validate:"omitempty,max=20"`
	Password   *string `json:"password" validate:"omitempty,min=6,max=72"`
	IsActive   *bool   `json:"is_active"`
	ClassIDs   []uint  `json:"class_ids"`
	GradeIDs   []uint  `json:"grade_ids"`
	SubjectIDs []uint  `json:"subject_ids"`
}

// TeacherResponse is the public view of a teacher.
type TeacherResponse struct {
	ID        uint              `json:"id"`
	Name      string            `json:"name"`
	Email     string            `json:"email"`
	Phone     string            `json:"phone"`
	IsActive  bool              `json:"is_active"`
	Classes   []ClassResponse   `json:"classes"`
	Grades    []GradeResponse   `json:"grades"`
	Subjects  []SubjectResponse `json:"subjects"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewTeacherResponse converts a teacher model.
func NewTeacherResponse(teacher models.Teacher) TeacherResponse {
	return TeacherResponse{
		ID:        teacher.ID,
		Name:      teacher.Name,
		Email:     teacher.Email,
		Phone:     teacher.Phone,
		IsActive:  teacher.IsActive,
		Classes:   NewClassResponseSlice(teacher.Classes),
		Grades:    NewGradeResponseSlice(teacher.Grades),
		Subjects:  NewSubjectResponseSlice(teacher.Subjects),
		CreatedAt: teacher.CreatedAt,
	}
}

// NewTeacherResponseSlice converts teachers.
func NewTeacherResponseSlice(teachers []models.Teacher) []TeacherResponse {
	out := make([]TeacherResponse, 0, len(teachers))
	for _, teacher := range teachers {
		out = append(out, NewTeacherResponse(teacher))
	}
	return out
}

// StudentRegisterRequest registers a student. Grade and class may be given by id or by name.
type StudentRegisterRequest struct {
	FirstName  string `json:"first_name" validate:"required,min=1,max=50"`
	LastName   string `json:"last_name" validate:"required,min=1,max=50"`
	FatherName string `json:"father_name" validate:"omitempty,max=100"`
	MotherName string `json:"mother_name" validate:"omitempty,max=100"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=6,max=72"`
	RollNumber string `json:"roll_number" validate:"required,max=64"`
	GradeID    uint   `json:"grade_id" validate:"required_without=GradeName"`
	GradeName  string `json:"grade_name" validate:"required_without=GradeID,omitempty,max=64"`
	ClassID    uint   `json:"class_id" validate:"required_without=ClassName"`
	ClassName  string `json:"class_name" validate:"required_without=ClassID,omitempty,max=64"`
}

// StudentUpdateRequest updates a student. Nil fields are left unchanged.
type StudentUpdateRequest struct {
	FirstName  *string `json:"first_name" validate:"omitempty,min=1,max=50"`
	LastName   *string `json:"last_name" validate:"omitempty,min=1,max=50"`
	FatherName *string `json:"father_name" validate:"omitempty,max=100"`
	MotherName *string `json:"mother_name" validate:"omitempty,max=100"`
	Password   *string `json:"password" validate:"omitempty,min=6,max=72"`
	ClassID    *uint   `json:"class_id"`
	GradeID    *uint   `json:"grade_id"`
	IsActive   *bool   `json:"is_active"`
}

// StudentResponse is the public view of a student.
type StudentResponse struct {
	ID         uint      `json:"id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	FatherName string    `json:"father_name"`
	MotherName string    `json:"mother_name"`
	Email      string    `json:"email"`
	RollNumber string    `json:"roll_number"`
	ClassID    uint      `json:"class_id"`
	ClassName  string    `json:"class_name"`
	GradeID    uint      `json:"grade_id"`
	GradeName  string    `json:"grade_name"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewStudentResponse converts a student model.
func NewStudentResponse(student models.Student) StudentResponse {
	return StudentResponse{
		ID:         student.ID,
		FirstName:  student.FirstName,
		LastName:   student.LastName,
		FatherName: student.FatherName,
		MotherName: student.MotherName,
		Email:      student.Email,
		RollNumber: student.RollNumber,
		ClassID:    student.ClassID,
		ClassName:  student.Class.ClassName,
		GradeID:    student.GradeID,
		GradeName:  student.Grade.GradeName,
		IsActive:   student.IsActive,
		CreatedAt:  student.CreatedAt,
	}
}

// NewStudentResponseSlice converts students.
func NewStudentResponseSlice(students []models.Student) []StudentResponse {
	out := make([]StudentResponse, 0, len(students))
	for _, student := range students {
		out = append(out, NewStudentResponse(student))
	}
	return out
}

// ParentRegisterRequest registers a parent account linked to students.
type ParentRegisterRequest struct {
	FatherName string `json:"father_name" validate:"required,min=1,max=100"`
	MotherName string `json:"mother_name" validate:"omitempty,max=100"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=6,max=72"`
	Phone      string `json:"phone" validate:"omitempty,max=20"`
	ChildIDs   []uint `json:"child_ids" validate:"required,min=1"`
}

// ParentUpdateRequest updates a parent. Nil fields are left unchanged.
type ParentUpdateRequest struct {
	FatherName *string `json:"father_name" validate:"omitempty,min=1,max=100"`
	MotherName *string `json:"mother_name" validate:"omitempty,max=100"`
	Phone      *string `json:"phone" validate:"omitempty,max=20"`
	Password   *string `json:"password" validate:"omitempty,min=6,max=72"`
	IsActive   *bool   `json:"is_active"`
	ChildIDs   []uint  `json:"child_ids"`
}

// ParentResponse is the public view of a parent.
type ParentResponse struct {
	ID         uint              `json:"id"`
	FatherName string            `json:"father_name"`
	MotherName string            `json:"mother_name"`
	Email      string            `json:"email"`
	Phone      string            `json:"phone"`
	IsActive   bool              `json:"is_active"`
	Children   []StudentResponse `json:"children"`
	CreatedAt  time.Time         `json:"created_at"`
}

// NewParentResponse converts a parent model.
func NewParentResponse(parent models.Parent) ParentResponse {
	return ParentResponse{
		ID:         parent.ID,
		FatherName: parent.FatherName,
		MotherName: parent.MotherName,
		Email:      parent.Email,
		Phone:      parent.Phone,
		IsActive:   parent.IsActive,
		Children:   NewStudentResponseSlice(parent.Children),
		CreatedAt:  parent.CreatedAt,
	}
}

// NewParentResponseSlice converts parents.
func NewParentResponseSlice(parents []models.Parent) []ParentResponse {
	out := make([]ParentResponse, 0, len(parents))
	for _, parent := range parents {
		out = append(out, NewParentResponse(parent))
	}
	return out
}
