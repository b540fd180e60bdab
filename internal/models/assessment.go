package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Assessment statuses.
const (
	AssessmentStatusDraft     = "Draft"
	AssessmentStatusScheduled = "Scheduled"
	AssessmentStatusActive    = "Active"
	AssessmentStatusClosed    = "Closed"
	AssessmentStatusGraded    = "Graded"
)

// Assessment types.
const (
	AssessmentTypeSession = "session"
	AssessmentTypeChapter = "chapter"
)

// Question input types.
const (
	InputTypeMCQ            = "MCQ"
	InputTypeMultipleSelect = "Multiple Select"
	InputTypeShortAnswer    = "Short Answer"
	InputTypeLongAnswer     = "Long Answer"
	InputTypeTrueFalse      = "True/False"
	InputTypeFillInBlank    = "Fill in the Blank"
)

// ErrInvalidAssessmentWindow is returned when an assessment would open at or after its due date.
var ErrInvalidAssessmentWindow = errors.New("assessment opens_on must be before due_date")

// Assessment is a scored test with an open/due window.
type Assessment struct {
	ID             uint                        `gorm:"primaryKey" json:"id"`
	Title          string                      `gorm:"size:255;not null" json:"title"`
	LessonPlanID   *uint                       `gorm:"index" json:"lesson_plan_id"`
	AssessmentType string                      `gorm:"size:16;not null;default:chapter" json:"assessment_type"`
	SessionNumber  int                         `gorm:"not null;default:0" json:"session_number"`
	OpensOn        time.Time                   `gorm:"not null;index" json:"opens_on"`
	DueDate        time.Time                   `gorm:"not null;index" json:"due_date"`
	Status         string                      `gorm:"size:32;not null;index" json:"status"`
	ClassID        *uint                       `gorm:"index" json:"class_id"`
	Class          *Class                      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"-"`
	GradeID        uint                        `gorm:"not null;index" json:"grade_id"`
	Grade          Grade                       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	SubjectID      uint                        `gorm:"not null;index" json:"subject_id"`
	Subject        Subject                     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Topics         datatypes.JSONSlice[string] `json:"topics"`
	TeacherID      uint                        `gorm:"not null;index" json:"teacher_id"`
	TotalMarks     float64                     `gorm:"not null;default:0" json:"total_marks"`
	Duration       int                         `gorm:"not null;default:30" json:"duration"`
	IsActive       bool                        `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

// BeforeSave enforces the open/due ordering on every write.
func (a *Assessment) BeforeSave(tx *gorm.DB) error {
	if !a.OpensOn.Before(a.DueDate) {
		return ErrInvalidAssessmentWindow
	}
	return nil
}

// AnswerOption is a candidate or expected answer of a question.
type AnswerOption struct {
	Option      string `json:"option"`
	IsCorrect   bool   `json:"is_correct"`
	Explanation string `json:"explanation"`
}

// Question is a single item of an assessment.
type Question struct {
	QuestionID string         `json:"question_id"`
	Question   string         `json:"question"`
	InputType  string         `json:"input_type"`
	Answers    []AnswerOption `json:"answers"`
	Marks      float64        `json:"marks"`
	Difficulty string         `json:"difficulty"`
	Topic      string         `json:"topic"`
	Order      int            `json:"order"`
}

// CorrectOptions returns the answers flagged as correct.
func (q Question) CorrectOptions() []string {
	options := make([]string, 0, len(q.Answers))
	for _, answer := range q.Answers {
		if answer.IsCorrect {
			options = append(options, answer.Option)
		}
	}
	return options
}

// ExpectedAnswer is the reference answer used for grading.
func (q Question) ExpectedAnswer() string {
	if correct := q.CorrectOptions(); len(correct) > 0 {
		return correct[0]
	}
	if len(q.Answers) > 0 {
		return q.Answers[0].Option
	}
	return ""
}

// IsObjective reports whether the question can be graded by option matching.
func (q Question) IsObjective() bool {
	switch q.InputType {
	case InputTypeMCQ, InputTypeTrueFalse, InputTypeMultipleSelect:
		return true
	default:
		return false
	}
}

// AssessmentQuestions holds the ordered questions of one assessment.
type AssessmentQuestions struct {
	ID           uint                          `gorm:"primaryKey" json:"id"`
	AssessmentID uint                          `gorm:"not null;uniqueIndex" json:"assessment_id"`
	Questions    datatypes.JSONSlice[Question] `json:"questions"`
	TotalMarks   float64                       `gorm:"not null;default:0" json:"total_marks"`
	CreatedAt    time.Time                     `json:"created_at"`
	UpdatedAt    time.Time                     `json:"updated_at"`
}

// BeforeSave assigns question ids and order, and recomputes total marks.
func (q *AssessmentQuestions) BeforeSave(tx *gorm.DB) error {
	total := 0.0
	for i := range q.Questions {
		if q.Questions[i].QuestionID == "" {
			q.Questions[i].QuestionID = uuid.NewString()
		}
		if q.Questions[i].Order <= 0 {
			q.Questions[i].Order = i + 1
		}
		total += q.Questions[i].Marks
	}
	q.TotalMarks = total
	return nil
}

// Find returns the question with the given id.
func (q AssessmentQuestions) Find(questionID string) (Question, bool) {
	for _, question := range q.Questions {
		if question.QuestionID == questionID {
			return question, true
		}
	}
	return Question{}, false
}
