package dto

import (
	"time"

	"github.com/noah-isme/teachmate-api/internal/models"
)

// LessonPlanGenerateRequest asks the planning agent for a new lesson plan.
type LessonPlanGenerateRequest struct {
	TeacherID       uint `json:"teacher_id" validate:"required"`
	SubjectID       uint `json:"subject_id" validate:"required"`
	GradeID         uint `json:"grade_id" validate:"required"`
	ChapterID       uint `json:"chapter_id" validate:"required"`
	ChapterNumber   int  `json:"chapter_number" validate:"required,min=1"`
	Sessions        int  `json:"sessions" validate:"required"`
	SessionDuration int  `json:"session_duration"`
}

// LessonPlanStatusRequest moves a lesson plan to another status.
type LessonPlanStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=Draft Active Completed Archived"`
}

// SessionAssessmentRequest creates the assessment of a completed session.
type SessionAssessmentRequest struct {
	OpensOn  time.Time `json:"opens_on" validate:"required"`
	DueDate  time.Time `json:"due_date" validate:"required"`
	ClassID  *uint     `json:"class_id"`
	Duration int       `json:"duration" validate:"omitempty,min=5,max=300"`
}

// AssessmentConfig carries optional window settings for generated assessments.
type AssessmentConfig struct {
	OpensOn  *time.Time `json:"opens_on"`
	DueDate  *time.Time `json:"due_date"`
	ClassID  *uint      `json:"class_id"`
	Duration int        `json:"duration" validate:"omitempty,min=5,max=300"`
}

// SessionResponse is the public view of a lesson plan session.
type SessionResponse struct {
	SessionNumber      int                      `json:"session_number"`
	LearningObjectives []string                 `json:"learning_objectives"`
	TopicsCovered      []string                 `json:"topics_covered"`
	TeachingFlow       []models.TeachingStep    `json:"teaching_flow"`
	Resources          []models.SessionResource `json:"resources"`
	AssessmentIDs      []uint                   `json:"assessment"`
	Status             string                   `json:"status,omitempty"`
	CompletedAt        *time.Time               `json:"completed_at,omitempty"`
}

// LessonPlanResponse is the public view of a lesson plan with display names projected from
// its references.
type LessonPlanResponse struct {
	ID                    uint                     `json:"id"`
	TeacherID             uint                     `json:"teacher_id"`
	TeacherName           string                   `json:"teacher_name"`
	SubjectID             uint                     `json:"subject_id"`
	SubjectName           string                   `json:"subject_name"`
	GradeID               uint                     `json:"grade_id"`
	GradeName             string                   `json:"grade_name"`
	ChapterID             uint                     `json:"chapter_id"`
	ChapterName           string                   `json:"chapter_name"`
	ChapterNumber         int                      `json:"chapter_number"`
	TotalSessions         int                      `json:"total_sessions"`
	SessionDuration       int                      `json:"session_duration"`
	SessionDetails        []SessionResponse        `json:"session_details"`
	OverallObjectives     []string                 `json:"overall_objectives"`
	LearningOutcomes      []string                 `json:"learning_outcomes"`
	Prerequisites         []string                 `json:"prerequisites"`
	RecommendedVideos     []models.SessionResource `json:"recommended_videos"`
	Simulations           []models.SessionResource `json:"simulations"`
	ChapterWiseAssessment *uint                    `json:"chapter_wise_assessment"`
	Status                string                   `json:"status"`
	CreatedAt             time.Time                `json:"created_at"`
	UpdatedAt             time.Time                `json:"updated_at"`
}

// NewLessonPlanResponse converts a lesson plan model.
func NewLessonPlanResponse(plan models.LessonPlan) LessonPlanResponse {
	sessions := make([]SessionResponse, 0, len(plan.Sessions))
	for _, session := range plan.Sessions {
		sessions = append(sessions, NewSessionResponse(session))
	}

	return LessonPlanResponse{
		ID:                    plan.ID,
		TeacherID:             plan.TeacherID,
		TeacherName:           plan.Teacher.Name,
		SubjectID:             plan.SubjectID,
		SubjectName:           plan.Subject.SubjectName,
		GradeID:               plan.GradeID,
		GradeName:             plan.Grade.GradeName,
		ChapterID:             plan.ChapterID,
		ChapterName:           plan.Chapter.ChapterName,
		ChapterNumber:         plan.ChapterNumber,
		TotalSessions:         plan.TotalSessions,
		SessionDuration:       plan.SessionDuration,
		SessionDetails:        sessions,
		OverallObjectives:     nonNilStrings(plan.OverallObjectives),
		LearningOutcomes:      nonNilStrings(plan.LearningOutcomes),
		Prerequisites:         nonNilStrings(plan.Prerequisites),
		RecommendedVideos:     nonNilResources(plan.RecommendedVideos),
		Simulations:           nonNilResources(plan.Simulations),
		ChapterWiseAssessment: plan.ChapterAssessmentID,
		Status:                plan.Status,
		CreatedAt:             plan.CreatedAt,
		UpdatedAt:             plan.UpdatedAt,
	}
}

// NewLessonPlanResponseSlice converts lesson plans.
func NewLessonPlanResponseSlice(plans []models.LessonPlan) []LessonPlanResponse {
	out := make([]LessonPlanResponse, 0, len(plans))
	for _, plan := range plans {
		out = append(out, NewLessonPlanResponse(plan))
	}
	return out
}

// NewSessionResponse converts a session model.
func NewSessionResponse(session models.LessonPlanSession) SessionResponse {
	flow := []models.TeachingStep(session.TeachingFlow)
	if flow == nil {
		flow = []models.TeachingStep{}
	}
	ids := []uint(session.AssessmentIDs)
	if ids == nil {
		ids = []uint{}
	}
	return SessionResponse{
		SessionNumber:      session.SessionNumber,
		LearningObjectives: nonNilStrings(session.LearningObjectives),
		TopicsCovered:      nonNilStrings(session.TopicsCovered),
		TeachingFlow:       flow,
		Resources:          nonNilResources(session.Resources),
		AssessmentIDs:      ids,
		Status:             session.Status,
		CompletedAt:        session.CompletedAt,
	}
}

// LessonPlanGenerateResponse returns the new plan and the curation job started for it.
type LessonPlanGenerateResponse struct {
	LessonPlan    LessonPlanResponse `json:"lesson_plan"`
	CurationJobID string             `json:"curation_job_id,omitempty"`
}

// LessonPlanStatusResponse returns the plan after a status change.
type LessonPlanStatusResponse struct {
	LessonPlan      LessonPlanResponse `json:"lesson_plan"`
	AssessmentJobID string             `json:"assessment_job_id,omitempty"`
}

// SessionCompleteResponse reports a completed session.
type SessionCompleteResponse struct {
	LessonPlanID         uint      `json:"lesson_plan_id"`
	SessionNumber        int       `json:"session_number"`
	CompletedAt          time.Time `json:"completed_at"`
	AllSessionsCompleted bool      `json:"all_sessions_completed"`
}

// ContentCurationRequest curates resources for explicit topics.
type ContentCurationRequest struct {
	Topics      []string `json:"topics" validate:"required,min=1,dive,required,max=255"`
	SubjectName string   `json:"subject_name" validate:"required,max=128"`
	GradeName   string   `json:"grade_name" validate:"required,max=64"`
}

// ContentCurationResponse is the outcome of a curation run.
type ContentCurationResponse struct {
	Videos      []models.SessionResource            `json:"videos"`
	ByTopic     map[string][]models.SessionResource `json:"by_topic"`
	Simulations []models.SessionResource            `json:"simulations"`
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nonNilResources(values []models.SessionResource) []models.SessionResource {
	if values == nil {
		return []models.SessionResource{}
	}
	return values
}

// MaterialUploadRequest carries the form fields of a material upload.
type MaterialUploadRequest struct {
	Title     string `form:"title" validate:"omitempty,max=255"`
	TeacherID *uint  `form:"teacher_id"`
}

// MaterialResponse describes a stored teaching material.
type MaterialResponse struct {
	ID            uint      `json:"id"`
	LessonPlanID  uint      `json:"lesson_plan_id"`
	SessionNumber int       `json:"session_number"`
	Title         string    `json:"title"`
	FileName      string    `json:"file_name"`
	URL           string    `json:"url"`
	MimeType      string    `json:"mime_type"`
	SizeBytes     int64     `json:"size_bytes"`
	Checksum      string    `json:"checksum"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewMaterialResponse converts a material model.
func NewMaterialResponse(material models.Material) MaterialResponse {
	return MaterialResponse{
		ID:            material.ID,
		LessonPlanID:  material.LessonPlanID,
		SessionNumber: material.SessionNumber,
		Title:         material.Title,
		FileName:      material.FileName,
		URL:           material.URL,
		MimeType:      material.MimeType,
		SizeBytes:     material.SizeBytes,
		Checksum:      material.Checksum,
		CreatedAt:     material.CreatedAt,
	}
}
