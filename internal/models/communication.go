package models

import (
	"time"

	"gorm.io/datatypes"
)

// Chat roles.
const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
	ChatRoleSystem    = "system"
)

// ChatMessage is one turn of a tutoring conversation.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ToolsUsed []string  `json:"tools_used,omitempty"`
}

// ChatConversation is a tutoring session between a student or parent and the assistant.
type ChatConversation struct {
	ID                    uint                             `gorm:"primaryKey" json:"id"`
	SessionID             string                           `gorm:"size:64;uniqueIndex;not null" json:"session_id"`
	UserType              string                           `gorm:"size:16;not null" json:"user_type"`
	StudentID             *uint                            `gorm:"index" json:"student_id"`
	ParentID              *uint                            `gorm:"index" json:"parent_id"`
	Messages              datatypes.JSONSlice[ChatMessage] `json:"messages"`
	SelectedChapters      datatypes.JSONSlice[string]      `json:"selected_chapters"`
	SubjectContext        string                           `gorm:"size:128" json:"subject_context"`
	NeedsTeacherAttention bool                             `gorm:"not null;default:false;index" json:"needs_teacher_attention"`
	IsActive              bool                             `gorm:"not null;default:true" json:"is_active"`
	LastMessageAt         *time.Time                       `json:"last_message_at"`
	CreatedAt             time.Time                        `json:"created_at"`
	UpdatedAt             time.Time                        `json:"updated_at"`
}

// Voice call statuses.
const (
	VoiceCallStatusInitiated = "initiated"
	VoiceCallStatusOngoing   = "ongoing"
	VoiceCallStatusEnded     = "ended"
	VoiceCallStatusFailed    = "failed"
)

// VoiceCall tracks a voice tutoring call placed through the voice provider.
type VoiceCall struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	CallID       string            `gorm:"size:64;uniqueIndex;not null" json:"call_id"`
	UserType     string            `gorm:"size:16;not null" json:"user_type"`
	StudentID    uint              `gorm:"not null;index" json:"student_id"`
	ParentID     *uint             `gorm:"index" json:"parent_id"`
	RetellCallID string            `gorm:"size:128;index" json:"retell_call_id"`
	AccessToken  string            `gorm:"type:text" json:"-"`
	Status       string            `gorm:"size:16;not null;index" json:"status"`
	Metadata     datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	Transcript   string            `gorm:"type:text" json:"transcript"`
	EndedAt      *time.Time        `json:"ended_at"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Notification is a teacher-facing alert.
type Notification struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	UserID    uint              `gorm:"not null;index" json:"user_id"`
	Type      string            `gorm:"size:64;not null" json:"type"`
	Title     string            `gorm:"size:255" json:"title"`
	Message   string            `gorm:"type:text" json:"message"`
	Data      datatypes.JSONMap `gorm:"type:json" json:"data"`
	ReadAt    *time.Time        `json:"read_at"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Job statuses.
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// BackgroundJob is a persisted unit of asynchronous work.
type BackgroundJob struct {
	ID          uint              `gorm:"primaryKey" json:"-"`
	JobID       string            `gorm:"size:64;uniqueIndex;not null" json:"job_id"`
	Kind        string            `gorm:"size:64;not null;index" json:"kind"`
	ReferenceID uint              `gorm:"index" json:"reference_id"`
	Status      string            `gorm:"size:16;not null;index" json:"status"`
	Result      datatypes.JSONMap `gorm:"type:json" json:"result,omitempty"`
	Error       string            `gorm:"type:text" json:"error,omitempty"`
	StartedAt   *time.Time        `json:"started_at"`
	FinishedAt  *time.Time        `json:"finished_at"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}
