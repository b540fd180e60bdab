package dto

import (
	"time"

	"github.com/noah-isme/teachmate-api/internal/models"
)

// SubmitAnswer is a student's answer to one question.
type SubmitAnswer struct {
	QuestionID string `json:"question_id" validate:"required"`
	Answer     string `json:"student_answer" validate:"max=10000"`
}

// SubmissionCreateRequest is the payload of POST /submission/submit.
type SubmissionCreateRequest struct {
	AssessmentID uint           `json:"assessment_id" validate:"required"`
	StudentID    uint           `json:"student_id" validate:"required"`
	Answers      []SubmitAnswer `json:"answers" validate:"required,min=1,dive"`
	TimeTaken    int            `json:"time_taken" validate:"min=0"`
}

// SubmissionResponse is the public view of a submission.
type SubmissionResponse struct {
	ID                 uint                      `json:"id"`
	AssessmentID       uint                      `json:"assessment_id"`
	AssessmentTitle    string                    `json:"assessment_title,omitempty"`
	StudentID          uint                      `json:"student_id"`
	StudentName        string                    `json:"student_name,omitempty"`
	Answers            []models.SubmissionAnswer `json:"answers"`
	TotalMarksObtained float64                   `json:"total_marks_obtained"`
	TotalMarks         float64                   `json:"total_marks"`
	Percentage         float64                   `json:"percentage"`
	Status             string                    `json:"status"`
	SubmittedAt        time.Time                 `json:"submitted_at"`
	GradedAt           *time.Time                `json:"graded_at"`
	TimeTaken          int                       `json:"time_taken"`
	AIGradingNotes     string                    `json:"ai_grading_notes,omitempty"`
}

// NewSubmissionResponse converts a submission model.
func NewSubmissionResponse(submission models.Submission) SubmissionResponse {
	answers := []models.SubmissionAnswer(submission.Answers)
	if answers == nil {
		answers = []models.SubmissionAnswer{}
	}
	return SubmissionResponse{
		ID:                 submission.ID,
		AssessmentID:       submission.AssessmentID,
		AssessmentTitle:    submission.Assessment.Title,
		StudentID:          submission.StudentID,
		StudentName:        submission.Student.FullName(),
		Answers:            answers,
		TotalMarksObtained: submission.TotalMarksObtained,
		TotalMarks:         submission.TotalMarks,
		Percentage:         submission.Percentage,
		Status:             submission.Status,
		SubmittedAt:        submission.SubmittedAt,
		GradedAt:           submission.GradedAt,
		TimeTaken:          submission.TimeTaken,
		AIGradingNotes:     submission.AIGradingNotes,
	}
}

// NewSubmissionResponseSlice converts submissions.
func NewSubmissionResponseSlice(submissions []models.Submission) []SubmissionResponse {
	out := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		out = append(out, NewSubmissionResponse(submission))
	}
	return out
}

// SubmissionStatusResponse tells a student whether an assessment was already submitted.
type SubmissionStatusResponse struct {
	Submitted    bool       `json:"submitted"`
	SubmissionID uint       `json:"submission_id,omitempty"`
	Status       string     `json:"status,omitempty"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	Percentage   *float64   `json:"percentage,omitempty"`
}

// GradingTriggerResponse reports a manual grading kick.
type GradingTriggerResponse struct {
	Started        bool `json:"started"`
	AlreadyRunning bool `json:"already_running"`
}

// JobResponse is the public view of a background job.
type JobResponse struct {
	JobID       string                 `json:"job_id"`
	Kind        string                 `json:"kind"`
	ReferenceID uint                   `json:"reference_id"`
	Status      string                 `json:"status"`
	Result      map[string]interface{} `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   *time.Time             `json:"started_at"`
	FinishedAt  *time.Time             `json:"finished_at"`
	CreatedAt   time.Time              `json:"created_at"`
}

// NewJobResponse converts a job model.
func NewJobResponse(job models.BackgroundJob) JobResponse {
	return JobResponse{
		JobID:       job.JobID,
		Kind:        job.Kind,
		ReferenceID: job.ReferenceID,
		Status:      job.Status,
		Result:      job.Result,
		Error:       job.Error,
		StartedAt:   job.StartedAt,
		FinishedAt:  job.FinishedAt,
		CreatedAt:   job.CreatedAt,
	}
}
