package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission statuses.
const (
	SubmissionStatusSubmitted = "Submitted"
	SubmissionStatusGrading   = "Grading"
	SubmissionStatusGraded    = "Graded"
)

// SubmissionAnswer is a student's answer to one question.
type SubmissionAnswer struct {
	QuestionID    string  `json:"question_id"`
	QuestionText  string  `json:"question_text"`
	StudentAnswer string  `json:"student_answer"`
	CorrectAnswer string  `json:"correct_answer"`
	MarksObtained float64 `json:"marks_obtained"`
	MaxMarks      float64 `json:"max_marks"`
	IsCorrect     bool    `json:"is_correct"`
	AIFeedback    string  `json:"ai_feedback"`
}

// Submission is a student's answer set for one assessment.
type Submission struct {
	ID                 uint                                  `gorm:"primaryKey" json:"id"`
	AssessmentID       uint                                  `gorm:"not null;index:idx_submission_pair" json:"assessment_id"`
	Assessment         Assessment                            `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	StudentID          uint                                  `gorm:"not null;index:idx_submission_pair" json:"student_id"`
	Student            Student                               `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Answers            datatypes.JSONSlice[SubmissionAnswer] `json:"answers"`
	TotalMarksObtained float64                               `gorm:"not null;default:0" json:"total_marks_obtained"`
	TotalMarks         float64                               `gorm:"not null;default:0" json:"total_marks"`
	Percentage         float64                               `gorm:"not null;default:0" json:"percentage"`
	Status             string                                `gorm:"size:32;not null;index" json:"status"`
	SubmittedAt        time.Time                             `gorm:"not null;index" json:"submitted_at"`
	GradedAt           *time.Time                            `json:"graded_at"`
	TimeTaken          int                                   `gorm:"not null;default:0" json:"time_taken"`
	AIGradingNotes     string                                `gorm:"type:text" json:"ai_grading_notes"`
	CreatedAt          time.Time                             `json:"created_at"`
	UpdatedAt          time.Time                             `json:"updated_at"`
}

// IsGraded reports whether the submission has a final grade.
func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}
