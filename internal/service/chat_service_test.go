package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/repository"
	"github.com/noah-isme/teachmate-api/pkg/ai"
)

type stubKnowledge struct {
	chunks []KnowledgeChunk
	err    error
}

func (s stubKnowledge) Search(_ context.Context, _ string, topK int, _ map[string]interface{}) ([]KnowledgeChunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.chunks) > topK {
		return s.chunks[:topK], nil
	}
	return s.chunks, nil
}

type chatFixture struct {
	db            *gorm.DB
	school        schoolFixture
	llm           *scriptedChat
	notifications NotificationService
	service       ChatService
}

func newChatFixture(t *testing.T, client *redis.Client) chatFixture {
	t.Helper()

	db := newTestDB(t)
	f := seedSchool(t, db)
	validate := testValidator()
	logger := testLogger()
	llm := &scriptedChat{}
	insights := NewLearnerInsights(repository.NewSubmissionRepository(db), repository.NewAssessmentRepository(db))
	knowledge := stubKnowledge{chunks: []KnowledgeChunk{{Text: "Chlorophyll absorbs light.", Chapter: "Photosynthesis", Score: 0.9}}}
	notifications := NewNotificationService(repository.NewNotificationRepository(db), NotificationFanout{}, validate, logger)

	channel := ""
	if client != nil {
		channel = "teachmate"
	}
	svc := NewChatService(ChatDependencies{
		Conversations: repository.NewChatRepository(db),
		Students:      repository.NewStudentRepository(db),
		Parents:       repository.NewParentRepository(db),
		Teachers:      repository.NewTeacherRepository(db),
		StudentAgent:  NewStudentAssistantAgent(llm, knowledge, insights, AgentConfig{}, logger),
		ParentAgent:   NewParentAssistantAgent(llm, knowledge, insights, AgentConfig{}, logger),
		Notifications: notifications,
		Redis:         client,
		ChannelBase:   channel,
	}, validate, logger)

	return chatFixture{db: db, school: f, llm: llm, notifications: notifications, service: svc}
}

func (c chatFixture) startStudent(t *testing.T) string {
	t.Helper()
	resp, err := c.service.StartStudent(context.Background(), dto.StudentChatStartRequest{
		StudentID:        c.school.Student.ID,
		SelectedChapters: []string{"Photosynthesis"},
		SubjectContext:   "Science",
	})
	require.NoError(t, err)
	require.Equal(t, "Arjun Rao", resp.Student.Name)
	return resp.SessionID
}

func TestChatTurnUsesToolsAndFlagsTeacherOnce(t *testing.T) {
	c := newChatFixture(t, nil)
	sessionID := c.startStudent(t)

	c.llm.responses = []ai.ChatResponse{
		{ToolCalls: []ai.ToolCall{{ID: "call-1", Name: "search_knowledge_base", Arguments: `{"query":"chlorophyll"}`}}},
		{Content: "Chlorophyll captures sunlight so the plant can make glucose."},
		{Content: "Let's go through it step by step."},
	}

	reply, err := c.service.SendMessage(context.Background(), dto.ChatMessageRequest{
		SessionID: sessionID,
		Message:   "I am confused about <b>chlorophyll</b>",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"search_knowledge_base"}, reply.ToolsUsed)
	require.True(t, reply.NeedsTeacherAttention)

	// the tool result is fed back to the model before the final answer
	second := c.llm.requests[1]
	last := second.Messages[len(second.Messages)-1]
	require.Equal(t, ai.RoleTool, last.Role)
	require.Equal(t, "call-1", last.ToolCallID)
	require.Contains(t, last.Content, "Chlorophyll absorbs light.")

	_, err = c.service.SendMessage(context.Background(), dto.ChatMessageRequest{SessionID: sessionID, Message: "Still struggling with this"})
	require.NoError(t, err)

	notes, err := c.notifications.List(context.Background(), c.school.Teacher.ID, false, 10, 0)
	require.NoError(t, err)
	require.Len(t, notes.Items, 1, "a conversation notifies the class teachers only when first flagged")
	require.Equal(t, "chat.attention", notes.Items[0].Type)

	history, err := c.service.History(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, history.Messages, 4)
	require.Equal(t, "I am confused about chlorophyll", history.Messages[0].Content, "markup is stripped before storage")

	flagged, err := c.service.NeedsAttention(context.Background())
	require.NoError(t, err)
	require.Len(t, flagged, 1)
}

func TestChatAgentFailurePersistsNothing(t *testing.T) {
	c := newChatFixture(t, nil)
	sessionID := c.startStudent(t)
	c.llm.err = errors.New("provider down")

	_, err := c.service.SendMessage(context.Background(), dto.ChatMessageRequest{SessionID: sessionID, Message: "What is a stomata?"})
	var external *ExternalError
	require.ErrorAs(t, err, &external)

	history, err := c.service.History(context.Background(), sessionID)
	require.NoError(t, err)
	require.Empty(t, history.Messages)
}

func TestChatClosedSessionRejectsMessages(t *testing.T) {
	c := newChatFixture(t, nil)
	sessionID := c.startStudent(t)

	require.NoError(t, c.service.Close(context.Background(), sessionID))

	_, err := c.service.SendMessage(context.Background(), dto.ChatMessageRequest{SessionID: sessionID, Message: "hello"})
	require.ErrorIs(t, err, ErrConversationClosed)
	require.Zero(t, c.llm.calls())

	sessions, err := c.service.StudentSessions(context.Background(), c.school.Student.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.False(t, sessions[0].IsActive)

	require.ErrorIs(t, c.service.Close(context.Background(), "2f6c1f8e-0000-4000-8000-000000000000"), ErrConversationNotFound)
}

func TestChatUnknownSession(t *testing.T) {
	c := newChatFixture(t, nil)
	_, err := c.service.SendMessage(context.Background(), dto.ChatMessageRequest{SessionID: "2f6c1f8e-0000-4000-8000-000000000000", Message: "hi"})
	require.ErrorIs(t, err, ErrConversationNotFound)

	_, err = c.service.StartStudent(context.Background(), dto.StudentChatStartRequest{StudentID: 404})
	require.ErrorIs(t, err, ErrStudentNotFound)
}

func TestChatHistoryCachedInRedis(t *testing.T) {
	mr, client := newMiniredisClient(t)
	c := newChatFixture(t, client)
	sessionID := c.startStudent(t)
	c.llm.responses = replies("Photosynthesis happens in the chloroplast.")

	_, err := c.service.SendMessage(context.Background(), dto.ChatMessageRequest{SessionID: sessionID, Message: "Where does photosynthesis happen?"})
	require.NoError(t, err)

	key := "teachmate:chat:history:" + sessionID
	raw, err := mr.Get(key)
	require.NoError(t, err)
	var cached []models.ChatMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	require.Len(t, cached, 2)
	require.Equal(t, models.ChatRoleAssistant, cached[1].Role)

	require.NoError(t, c.service.Close(context.Background(), sessionID))
	require.False(t, mr.Exists(key))
}

func TestParentChatTurn(t *testing.T) {
	c := newChatFixture(t, nil)
	resp, err := c.service.StartParent(context.Background(), dto.ParentChatStartRequest{
		ParentID:  c.school.Parent.ID,
		StudentID: c.school.Student.ID,
	})
	require.NoError(t, err)
	require.Equal(t, "Vikram Rao", resp.Parent.Name)
	require.Equal(t, "All subjects", resp.Subject)

	c.llm.responses = replies("Arjun has no graded assessments yet.")
	reply, err := c.service.SendMessage(context.Background(), dto.ChatMessageRequest{SessionID: resp.SessionID, Message: "This is hard, how is my son doing?"})
	require.NoError(t, err)
	require.False(t, reply.NeedsTeacherAttention, "parent turns are never flagged")
	require.Equal(t, "Arjun has no graded assessments yet.", reply.Response)
}
