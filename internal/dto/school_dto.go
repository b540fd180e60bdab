package dto

import (
	"time"

	"github.com/noah-isme/teachmate-api/internal/models"
)

// GradeRequest creates or renames a grade.
type GradeRequest struct {
	GradeName string `json:"grade_name" validate:"required,min=1,max=64"`
}

// GradeResponse is the public view of a grade.
type GradeResponse struct {
	ID        uint      `json:"id"`
	GradeName string    `json:"grade_name"`
	CreatedAt time.Time `json:"created_at"`
}

// NewGradeResponse converts a grade model.
func NewGradeResponse(grade models.Grade) GradeResponse {
	return GradeResponse{ID: grade.ID, GradeName: grade.GradeName, CreatedAt: grade.CreatedAt}
}

// NewGradeResponseSlice converts grades.
func NewGradeResponseSlice(grades []models.Grade) []GradeResponse {
	out := make([]GradeResponse, 0, len(grades))
	for _, grade := range grades {
		out = append(out, NewGradeResponse(grade))
	}
	return out
}

// ClassRequest creates or updates a class. Either grade_id or grade_name identifies the grade.
type ClassRequest struct {
	ClassName     string `json:"class_name" validate:"required,min=1,max=64"`
	ClassStrength int    `json:"class_strength" validate:"omitempty,min=0,max=500"`
	GradeID       uint   `json:"grade_id" validate:"required_without=GradeName"`
	GradeName     string `json:"grade_name" validate:"required_without=GradeID,omitempty,max=64"`
}

// ClassResponse is the public view of a class.
type ClassResponse struct {
	ID            uint      `json:"id"`
	ClassName     string    `json:"class_name"`
	ClassStrength int       `json:"class_strength"`
	GradeID       uint      `json:"grade_id"`
	GradeName     string    `json:"grade_name"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewClassResponse converts a class model.
func NewClassResponse(class models.Class) ClassResponse {
	return ClassResponse{
		ID:            class.ID,
		ClassName:     class.ClassName,
		ClassStrength: class.ClassStrength,
		GradeID:       class.GradeID,
		GradeName:     class.Grade.GradeName,
		CreatedAt:     class.CreatedAt,
	}
}

// NewClassResponseSlice converts classes.
func NewClassResponseSlice(classes []models.Class) []ClassResponse {
	out := make([]ClassResponse, 0, len(classes))
	for _, class := range classes {
		out = append(out, NewClassResponse(class))
	}
	return out
}

// SubjectRequest creates or updates a subject.
type SubjectRequest struct {
	SubjectName string `json:"subject_name" validate:"required,min=1,max=128"`
	GradeID     uint   `json:"grade_id" validate:"required"`
	ClassID     *uint  `json:"class_id"`
}

// SubjectResponse is the public view of a subject.
type SubjectResponse struct {
	ID          uint      `json:"id"`
	SubjectName string    `json:"subject_name"`
	GradeID     uint      `json:"grade_id"`
	GradeName   string    `json:"grade_name"`
	ClassID     *uint     `json:"class_id,omitempty"`
	ClassName   string    `json:"class_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewSubjectResponse converts a subject model.
func NewSubjectResponse(subject models.Subject) SubjectResponse {
	resp := SubjectResponse{
		ID:          subject.ID,
		SubjectName: subject.SubjectName,
		GradeID:     subject.GradeID,
		GradeName:   subject.Grade.GradeName,
		ClassID:     subject.ClassID,
		CreatedAt:   subject.CreatedAt,
	}
	if subject.Class != nil {
		resp.ClassName = subject.Class.ClassName
	}
	return resp
}

// NewSubjectResponseSlice converts subjects.
func NewSubjectResponseSlice(subjects []models.Subject) []SubjectResponse {
	out := make([]SubjectResponse, 0, len(subjects))
	for _, subject := range subjects {
		out = append(out, NewSubjectResponse(subject))
	}
	return out
}

// ChapterRequest creates or updates a chapter.
type ChapterRequest struct {
	ChapterName   string `json:"chapter_name" validate:"required,min=1,max=255"`
	ChapterNumber int    `json:"chapter_number" validate:"omitempty,min=1"`
	SubjectID     uint   `json:"subject_id" validate:"required"`
	GradeID       uint   `json:"grade_id" validate:"required"`
}

// ChapterResponse is the public view of a chapter.
type ChapterResponse struct {
	ID            uint      `json:"id"`
	ChapterName   string    `json:"chapter_name"`
	ChapterNumber int       `json:"chapter_number"`
	SubjectID     uint      `json:"subject_id"`
	SubjectName   string    `json:"subject_name"`
	GradeID       uint      `json:"grade_id"`
	GradeName     string    `json:"grade_name"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewChapterResponse converts a chapter model.
func NewChapterResponse(chapter models.Chapter) ChapterResponse {
	return ChapterResponse{
		ID:            chapter.ID,
		ChapterName:   chapter.ChapterName,
		ChapterNumber: chapter.ChapterNumber,
		SubjectID:     chapter.SubjectID,
		SubjectName:   chapter.Subject.SubjectName,
		GradeID:       chapter.GradeID,
		GradeName:     chapter.Grade.GradeName,
		CreatedAt:     chapter.CreatedAt,
	}
}

// NewChapterResponseSlice converts chapters.
func NewChapterResponseSlice(chapters []models.Chapter) []ChapterResponse {
	out := make([]ChapterResponse, 0, len(chapters))
	for _, chapter := range chapters {
		out = append(out, NewChapterResponse(chapter))
	}
	return out
}
