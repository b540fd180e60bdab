package models

import (
	"strings"
	"time"
)

// User roles issued in JWT claims.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
	RoleParent  = "parent"
	RoleAdmin   = "admin"
)

// Student represents a learner enrolled in a class.
type Student struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	FirstName    string    `gorm:"size:50;not null" json:"first_name"`
	LastName     string    `gorm:"size:50;not null" json:"last_name"`
	FatherName   string    `gorm:"size:100" json:"father_name"`
	MotherName   string    `gorm:"size:100" json:"mother_name"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	ClassID      uint      `gorm:"not null;index" json:"class_id"`
	Class        Class     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"class"`
	GradeID      uint      `gorm:"not null;index" json:"grade_id"`
	Grade        Grade     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"grade"`
	RollNumber   string    `gorm:"size:64;uniqueIndex;not null" json:"roll_number"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FullName joins first and last name.
func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// Teacher is a staff member that owns lesson plans and assessments.
type Teacher struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:100;not null" json:"name"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Phone        string    `gorm:"size:20" json:"phone"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	Classes      []Class   `gorm:"many2many:teacher_classes;" json:"classes"`
	Grades       []Grade   `gorm:"many2many:teacher_grades;" json:"grades"`
	Subjects     []Subject `gorm:"many2many:teacher_subjects;" json:"subjects"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Parent is a guardian account linked to one or more students.
type Parent struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	FatherName   string    `gorm:"size:100;not null" json:"father_name"`
	MotherName   string    `gorm:"size:100" json:"mother_name"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Phone        string    `gorm:"size:20" json:"phone"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	Children     []Student `gorm:"many2many:parent_children;" json:"children"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
