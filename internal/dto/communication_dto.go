package dto

import (
	"time"

	"github.com/noah-isme/teachmate-api/internal/models"
)

// StudentChatStartRequest opens a tutoring chat for a student.
type StudentChatStartRequest struct {
	StudentID        uint     `json:"student_id" validate:"required"`
	SelectedChapters []string `json:"selected_chapters" validate:"omitempty,max=20,dive,max=255"`
	SubjectContext   string   `json:"subject_context" validate:"omitempty,max=128"`
}

// ParentChatStartRequest opens an assistant chat for a parent about one child.
type ParentChatStartRequest struct {
	ParentID  uint   `json:"parent_id" validate:"required"`
	StudentID uint   `json:"student_id" validate:"required"`
	Subject   string `json:"subject" validate:"omitempty,max=128"`
}

// ChatPerson summarises a participant of a chat session.
type ChatPerson struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Grade string `json:"grade,omitempty"`
	Class string `json:"class,omitempty"`
}

// ChatStartResponse is returned when a chat session is opened.
type ChatStartResponse struct {
	SessionID string      `json:"session_id"`
	Message   string      `json:"message"`
	Student   *ChatPerson `json:"student,omitempty"`
	Parent    *ChatPerson `json:"parent,omitempty"`
	Child     *ChatPerson `json:"child,omitempty"`
	Subject   string      `json:"subject"`
	Chapters  []string    `json:"chapters"`
}

// ChatSessionSummary is one row of a student's session list.
type ChatSessionSummary struct {
	SessionID             string     `json:"session_id"`
	UserType              string     `json:"user_type"`
	IsActive              bool       `json:"is_active"`
	MessageCount          int        `json:"message_count"`
	SubjectContext        string     `json:"subject_context"`
	NeedsTeacherAttention bool       `json:"needs_teacher_attention"`
	LastMessage           string     `json:"last_message,omitempty"`
	LastMessageAt         *time.Time `json:"last_message_at"`
}

// ChatSocketMessage is a user turn sent over the websocket.
type ChatSocketMessage struct {
	Message string `json:"message" validate:"required,min=1,max=4000"`
}

// ChatSocketEvent is pushed to websocket clients of a session.
type ChatSocketEvent struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Content   string    `json:"content"`
	ToolsUsed []string  `json:"tools_used,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatMessageRequest sends one user turn.
type ChatMessageRequest struct {
	SessionID string `json:"session_id" validate:"required,uuid"`
	Message   string `json:"message" validate:"required,min=1,max=4000"`
	Subject   string `json:"subject" validate:"omitempty,max=128"`
	Chapter   string `json:"chapter" validate:"omitempty,max=255"`
}

// ChatReplyResponse is the assistant answer to one turn.
type ChatReplyResponse struct {
	SessionID             string   `json:"session_id"`
	Response              string   `json:"response"`
	ToolsUsed             []string `json:"tools_used"`
	NeedsTeacherAttention bool     `json:"needs_teacher_attention"`
}

// ChatConversationResponse is the public view of a chat session.
type ChatConversationResponse struct {
	SessionID             string               `json:"session_id"`
	UserType              string               `json:"user_type"`
	StudentID             *uint                `json:"student_id"`
	ParentID              *uint                `json:"parent_id,omitempty"`
	Messages              []models.ChatMessage `json:"messages"`
	SelectedChapters      []string             `json:"selected_chapters"`
	SubjectContext        string               `json:"subject_context"`
	NeedsTeacherAttention bool                 `json:"needs_teacher_attention"`
	IsActive              bool                 `json:"is_active"`
	LastMessageAt         *time.Time           `json:"last_message_at"`
	CreatedAt             time.Time            `json:"created_at"`
}

// NewChatConversationResponse converts a conversation model.
func NewChatConversationResponse(conversation models.ChatConversation) ChatConversationResponse {
	messages := []models.ChatMessage(conversation.Messages)
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	return ChatConversationResponse{
		SessionID:             conversation.SessionID,
		UserType:              conversation.UserType,
		StudentID:             conversation.StudentID,
		ParentID:              conversation.ParentID,
		Messages:              messages,
		SelectedChapters:      nonNilStrings(conversation.SelectedChapters),
		SubjectContext:        conversation.SubjectContext,
		NeedsTeacherAttention: conversation.NeedsTeacherAttention,
		IsActive:              conversation.IsActive,
		LastMessageAt:         conversation.LastMessageAt,
		CreatedAt:             conversation.CreatedAt,
	}
}

// NewChatConversationResponseSlice converts conversations.
func NewChatConversationResponseSlice(items []models.ChatConversation) []ChatConversationResponse {
	out := make([]ChatConversationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewChatConversationResponse(item))
	}
	return out
}

// VoiceStartRequest starts a voice call for a student.
type VoiceStartRequest struct {
	StudentID        uint     `json:"student_id" validate:"required"`
	Subject          string   `json:"subject" validate:"omitempty,max=128"`
	SelectedChapters []string `json:"selected_chapters" validate:"omitempty,max=20,dive,max=255"`
}

// ParentVoiceStartRequest starts a voice call for a parent about one child.
type ParentVoiceStartRequest struct {
	ParentID  uint   `json:"parent_id" validate:"required"`
	StudentID uint   `json:"student_id" validate:"required"`
	Subject   string `json:"subject" validate:"omitempty,max=128"`
}

// VoiceStartResponse gives the browser what it needs to join the call.
type VoiceStartResponse struct {
	CallID       string      `json:"call_id"`
	RetellCallID string      `json:"retell_call_id"`
	AccessToken  string      `json:"access_token"`
	Status       string      `json:"status"`
	Student      *ChatPerson `json:"student,omitempty"`
	Parent       *ChatPerson `json:"parent,omitempty"`
	Child        *ChatPerson `json:"child,omitempty"`
	Subject      string      `json:"subject"`
	Chapters     []string    `json:"chapters"`
}

// VoiceWebhookRequest is the provider callback carrying the caller's latest transcript.
type VoiceWebhookRequest struct {
	CallID     string                 `json:"call_id"`
	Transcript string                 `json:"transcript"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// VoiceWebhookResponse is returned to the provider as-is, without the API envelope.
type VoiceWebhookResponse struct {
	Response string `json:"response"`
	EndCall  bool   `json:"end_call"`
}

// VoiceFunctionCall identifies the call a voice tool invocation belongs to.
type VoiceFunctionCall struct {
	CallID   string                 `json:"call_id"`
	Metadata map[string]interface{} `json:"metadata"`
}

// VoiceFunctionRequest is a tool invocation issued by the voice agent.
type VoiceFunctionRequest struct {
	Call VoiceFunctionCall      `json:"call"`
	Args map[string]interface{} `json:"args"`
}

// VoiceFunctionResponse is the spoken result of a voice tool.
type VoiceFunctionResponse struct {
	Result string `json:"result"`
}

// VoiceCallResponse is the public view of a voice call.
type VoiceCallResponse struct {
	CallID       string     `json:"call_id"`
	UserType     string     `json:"user_type"`
	StudentID    uint       `json:"student_id"`
	ParentID     *uint      `json:"parent_id,omitempty"`
	RetellCallID string     `json:"retell_call_id"`
	Status       string     `json:"status"`
	Transcript   string     `json:"transcript"`
	EndedAt      *time.Time `json:"ended_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// NewVoiceCallResponse converts a voice call model.
func NewVoiceCallResponse(call models.VoiceCall) VoiceCallResponse {
	return VoiceCallResponse{
		CallID:       call.CallID,
		UserType:     call.UserType,
		StudentID:    call.StudentID,
		ParentID:     call.ParentID,
		RetellCallID: call.RetellCallID,
		Status:       call.Status,
		Transcript:   call.Transcript,
		EndedAt:      call.EndedAt,
		CreatedAt:    call.CreatedAt,
	}
}

// NewVoiceCallResponseSlice converts voice calls.
func NewVoiceCallResponseSlice(calls []models.VoiceCall) []VoiceCallResponse {
	out := make([]VoiceCallResponse, 0, len(calls))
	for _, call := range calls {
		out = append(out, NewVoiceCallResponse(call))
	}
	return out
}

// NotificationCreateRequest describes a notification for a teacher.
type NotificationCreateRequest struct {
	UserID  uint                   `json:"user_id" validate:"required"`
	Type    string                 `json:"type" validate:"required,max=64"`
	Title   string                 `json:"title" validate:"omitempty,max=255"`
	Message string                 `json:"message" validate:"required,min=1,max=2000"`
	Data    map[string]interface{} `json:"data"`
}

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID        uint                   `json:"id"`
	UserID    uint                   `json:"user_id"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Read      bool                   `json:"read"`
	ReadAt    *time.Time             `json:"read_at"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewNotificationResponse converts a notification model to DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        model.ID,
		UserID:    model.UserID,
		Type:      model.Type,
		Title:     model.Title,
		Message:   model.Message,
		Data:      model.Data,
		Read:      model.ReadAt != nil,
		ReadAt:    model.ReadAt,
		CreatedAt: model.CreatedAt,
	}
}

// NotificationPage is one page of a user's notifications plus their unread total.
type NotificationPage struct {
	Items  []NotificationResponse `json:"items"`
	Unread int64                  `json:"unread"`
	Limit  int                    `json:"-"`
	Offset int                    `json:"-"`
}

// NewNotificationResponseSlice converts a slice to DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}
