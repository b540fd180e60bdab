package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Lesson plan statuses.
const (
	LessonPlanStatusDraft     = "Draft"
	LessonPlanStatusActive    = "Active"
	LessonPlanStatusCompleted = "Completed"
	LessonPlanStatusArchived  = "Archived"
)

// SessionStatusCompleted marks a taught session. Sessions start with an empty status.
const SessionStatusCompleted = "Completed"

// Resource kinds attached to sessions.
const (
	ResourceKindVideo      = "video"
	ResourceKindSimulation = "simulation"
	ResourceKindMaterial   = "material"
)

// TeachingStep is one time slot of a session's teaching flow.
type TeachingStep struct {
	TimeSlot    string `json:"time_slot"`
	Activity    string `json:"activity"`
	Description string `json:"description"`
}

// SessionResource is a curated video, simulation or uploaded teaching material.
type SessionResource struct {
	Kind           string  `json:"kind"`
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	Topic          string  `json:"topic,omitempty"`
	Channel        string  `json:"channel,omitempty"`
	ThumbnailURL   string  `json:"thumbnail_url,omitempty"`
	Duration       string  `json:"duration,omitempty"`
	ContentType    string  `json:"content_type,omitempty"`
	RelevanceScore float64 `json:"relevance_score,omitempty"`
}

// LessonPlan is a chapter divided into teaching sessions.
type LessonPlan struct {
	ID                  uint                                 `gorm:"primaryKey" json:"id"`
	TeacherID           uint                                 `gorm:"not null;index" json:"teacher_id"`
	Teacher             Teacher                              `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	SubjectID           uint                                 `gorm:"not null;index" json:"subject_id"`
	Subject             Subject                              `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	GradeID             uint                                 `gorm:"not null;index" json:"grade_id"`
	Grade               Grade                                `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	ChapterID           uint                                 `gorm:"not null;index" json:"chapter_id"`
	Chapter             Chapter                              `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	ChapterNumber       int                                  `gorm:"not null" json:"chapter_number"`
	TotalSessions       int                                  `gorm:"not null" json:"total_sessions"`
	SessionDuration     int                                  `gorm:"not null;default:45" json:"session_duration"`
	Sessions            []LessonPlanSession                  `gorm:"foreignKey:LessonPlanID;constraint:OnDelete:CASCADE" json:"session_details"`
	OverallObjectives   datatypes.JSONSlice[string]          `json:"overall_objectives"`
	LearningOutcomes    datatypes.JSONSlice[string]          `json:"learning_outcomes"`
	Prerequisites       datatypes.JSONSlice[string]          `json:"prerequisites"`
	RecommendedVideos   datatypes.JSONSlice[SessionResource] `json:"recommended_videos"`
	Simulations         datatypes.JSONSlice[SessionResource] `json:"simulations"`
	ChapterAssessmentID *uint                                `json:"chapter_wise_assessment"`
	Status              string                               `gorm:"size:32;not null;index" json:"status"`
	IsActive            bool                                 `gorm:"not null;default:true" json:"is_active"`
	CreatedAt           time.Time                            `json:"created_at"`
	UpdatedAt           time.Time                            `json:"updated_at"`
}

// LessonPlanSession is one teaching session of a lesson plan.
type LessonPlanSession struct {
	ID                 uint                                 `gorm:"primaryKey" json:"id"`
	LessonPlanID       uint                                 `gorm:"not null;uniqueIndex:idx_plan_session" json:"lesson_plan_id"`
	SessionNumber      int                                  `gorm:"not null;uniqueIndex:idx_plan_session" json:"session_number"`
	LearningObjectives datatypes.JSONSlice[string]          `json:"learning_objectives"`
	TopicsCovered      datatypes.JSONSlice[string]          `json:"topics_covered"`
	TeachingFlow       datatypes.JSONSlice[TeachingStep]    `json:"teaching_flow"`
	Resources          datatypes.JSONSlice[SessionResource] `json:"resources"`
	AssessmentIDs      datatypes.JSONSlice[uint]            `json:"assessment"`
	Status             string                               `gorm:"size:32" json:"status"`
	CompletedAt        *time.Time                           `json:"completed_at"`
	CreatedAt          time.Time                            `json:"created_at"`
	UpdatedAt          time.Time                            `json:"updated_at"`
}

// IsCompleted reports whether the session was marked as taught.
func (s LessonPlanSession) IsCompleted() bool {
	return s.Status == SessionStatusCompleted
}

// SessionByNumber returns the session with the given number, or nil.
func (p *LessonPlan) SessionByNumber(number int) *LessonPlanSession {
	for i := range p.Sessions {
		if p.Sessions[i].SessionNumber == number {
			return &p.Sessions[i]
		}
	}
	return nil
}

// AllSessionsCompleted reports whether every session has been completed.
func (p LessonPlan) AllSessionsCompleted() bool {
	if len(p.Sessions) == 0 {
		return false
	}
	for _, session := range p.Sessions {
		if !session.IsCompleted() {
			return false
		}
	}
	return true
}

// UniqueTopics returns the topics of all sessions in first-seen order without duplicates.
func (p LessonPlan) UniqueTopics() []string {
	seen := make(map[string]struct{})
	topics := make([]string, 0)
	for _, session := range p.Sessions {
		for _, topic := range session.TopicsCovered {
			trimmed := strings.TrimSpace(topic)
			if trimmed == "" {
				continue
			}
			if _, ok := seen[trimmed]; ok {
				continue
			}
			seen[trimmed] = struct{}{}
			topics = append(topics, trimmed)
		}
	}
	return topics
}
