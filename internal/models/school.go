package models

import "time"

// Grade is a school year level such as "Grade 8".
type Grade struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	GradeName string    `gorm:"size:64;uniqueIndex;not null" json:"grade_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Class is a section of students within a grade.
type Class struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ClassName     string    `gorm:"size:64;not null;index" json:"class_name"`
	ClassStrength int       `gorm:"not null;default:0" json:"class_strength"`
	GradeID       uint      `gorm:"not null;index" json:"grade_id"`
	Grade         Grade     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"grade"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Subject is taught to a grade and optionally to a single class.
type Subject struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SubjectName string    `gorm:"size:128;not null;index" json:"subject_name"`
	GradeID     uint      `gorm:"not null;index" json:"grade_id"`
	Grade       Grade     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"grade"`
	ClassID     *uint     `gorm:"index" json:"class_id"`
	Class       *Class    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"class,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Chapter is a textbook chapter. Names are unique per subject.
type Chapter struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ChapterName   string    `gorm:"size:255;not null;uniqueIndex:idx_chapter_subject" json:"chapter_name"`
	ChapterNumber int       `gorm:"not null;default:0" json:"chapter_number"`
	SubjectID     uint      `gorm:"not null;uniqueIndex:idx_chapter_subject" json:"subject_id"`
	Subject       Subject   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"subject"`
	GradeID       uint      `gorm:"not null;index" json:"grade_id"`
	Grade         Grade     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"grade"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
