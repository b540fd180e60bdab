package dto

import (
	"time"

	"github.com/noah-isme/teachmate-api/internal/models"
)

// AssessmentGenerateRequest generates an assessment for a lesson plan directly.
type AssessmentGenerateRequest struct {
	LessonPlanID   uint       `json:"lesson_plan_id" validate:"required"`
	AssessmentType string     `json:"assessment_type" validate:"required,oneof=session chapter"`
	SessionNumber  int        `json:"session_number" validate:"omitempty,min=1"`
	OpensOn        *time.Time `json:"opens_on"`
	DueDate        *time.Time `json:"due_date"`
	ClassID        *uint      `json:"class_id"`
	Duration       int        `json:"duration" validate:"omitempty,min=5,max=300"`
}

// AssessmentStatusRequest overrides an assessment status.
type AssessmentStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// AssessmentResponse is the public view of an assessment.
type AssessmentResponse struct {
	ID             uint      `json:"id"`
	Title          string    `json:"title"`
	LessonPlanID   *uint     `json:"lesson_plan_id"`
	AssessmentType string    `json:"assessment_type"`
	SessionNumber  int       `json:"session_number"`
	OpensOn        time.Time `json:"opens_on"`
	DueDate        time.Time `json:"due_date"`
	Status         string    `json:"status"`
	ClassID        *uint     `json:"class_id"`
	ClassName      string    `json:"class_name,omitempty"`
	GradeID        uint      `json:"grade_id"`
	GradeName      string    `json:"grade_name"`
	SubjectID      uint      `json:"subject_id"`
	SubjectName    string    `json:"subject_name"`
	Topics         []string  `json:"topics"`
	TeacherID      uint      `json:"teacher_id"`
	TotalMarks     float64   `json:"total_marks"`
	Duration       int       `json:"duration"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewAssessmentResponse converts an assessment model.
func NewAssessmentResponse(assessment models.Assessment) AssessmentResponse {
	resp := AssessmentResponse{
		ID:             assessment.ID,
		Title:          assessment.Title,
		LessonPlanID:   assessment.LessonPlanID,
		AssessmentType: assessment.AssessmentType,
		SessionNumber:  assessment.SessionNumber,
		OpensOn:        assessment.OpensOn,
		DueDate:        assessment.DueDate,
		Status:         assessment.Status,
		ClassID:        assessment.ClassID,
		GradeID:        assessment.GradeID,
		GradeName:      assessment.Grade.GradeName,
		SubjectID:      assessment.SubjectID,
		SubjectName:    assessment.Subject.SubjectName,
		Topics:         nonNilStrings(assessment.Topics),
		TeacherID:      assessment.TeacherID,
		TotalMarks:     assessment.TotalMarks,
		Duration:       assessment.Duration,
		IsActive:       assessment.IsActive,
		CreatedAt:      assessment.CreatedAt,
	}
	if assessment.Class != nil {
		resp.ClassName = assessment.Class.ClassName
	}
	return resp
}

// NewAssessmentResponseSlice converts assessments.
func NewAssessmentResponseSlice(assessments []models.Assessment) []AssessmentResponse {
	out := make([]AssessmentResponse, 0, len(assessments))
	for _, assessment := range assessments {
		out = append(out, NewAssessmentResponse(assessment))
	}
	return out
}

// AssessmentQuestionsResponse lists the questions of an assessment.
type AssessmentQuestionsResponse struct {
	AssessmentID uint              `json:"assessment_id"`
	Questions    []models.Question `json:"questions"`
	TotalMarks   float64           `json:"total_marks"`
}

// NewAssessmentQuestionsResponse converts questions. Answer keys are removed unless reveal is set.
func NewAssessmentQuestionsResponse(questions models.AssessmentQuestions, reveal bool) AssessmentQuestionsResponse {
	items := make([]models.Question, 0, len(questions.Questions))
	for _, question := range questions.Questions {
		if !reveal {
			answers := make([]models.AnswerOption, 0, len(question.Answers))
			if question.IsObjective() {
				for _, answer := range question.Answers {
					answers = append(answers, models.AnswerOption{Option: answer.Option})
				}
			}
			question.Answers = answers
		}
		items = append(items, question)
	}
	return AssessmentQuestionsResponse{
		AssessmentID: questions.AssessmentID,
		Questions:    items,
		TotalMarks:   questions.TotalMarks,
	}
}

// AssessmentGenerateResponse returns the created assessment and its questions.
type AssessmentGenerateResponse struct {
	Assessment AssessmentResponse          `json:"assessment"`
	Questions  AssessmentQuestionsResponse `json:"questions"`
}
