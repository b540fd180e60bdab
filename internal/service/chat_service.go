package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/observability"
	"github.com/noah-isme/teachmate-api/internal/repository"
)

const (
	chatHistoryWindow  = 10
	chatSendBufferSize = 32
	chatUserStudent    = "student"
	chatUserParent     = "parent"
)

// ChatConnectionOptions wraps metadata extracted during the websocket upgrade.
type ChatConnectionOptions struct {
	SessionID     string
	UserID        uint
	Role          string
	CorrelationID string
	Context       context.Context
}

// ChatService runs tutoring conversations for students and parents.
type ChatService interface {
	StartStudent(ctx context.Context, payload dto.StudentChatStartRequest) (dto.ChatStartResponse, error)
	StartParent(ctx context.Context, payload dto.ParentChatStartRequest) (dto.ChatStartResponse, error)
	SendMessage(ctx context.Context, payload dto.ChatMessageRequest) (dto.ChatReplyResponse, error)
	History(ctx context.Context, sessionID string) (dto.ChatConversationResponse, error)
	StudentSessions(ctx context.Context, studentID uint) ([]dto.ChatSessionSummary, error)
	NeedsAttention(ctx context.Context) ([]dto.ChatConversationResponse, error)
	Close(ctx context.Context, sessionID string) error
	ServeConnection(conn *websocket.Conn, opts ChatConnectionOptions)
	Start(ctx context.Context)
}

// ChatDependencies groups the collaborators of the chat service.
type ChatDependencies struct {
	Conversations repository.ChatRepository
	Students      repository.StudentRepository
	Parents       repository.ParentRepository
	Teachers      repository.TeacherRepository
	StudentAgent  StudentAssistantAgent
	ParentAgent   ParentAssistantAgent
	Notifications NotificationService
	Redis         *redis.Client
	NATS          *nats.Conn
	ChannelBase   string
	CacheTTL      time.Duration
}

type chatService struct {
	deps        ChatDependencies
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	sanitizer   *bluemonday.Policy
	hub         *chatHub
	relay       *clusterRelay
	cachePrefix string
	locks       sync.Map
	now         func() time.Time
}

// chatHub tracks websocket clients per chat session.
type chatHub struct {
	mu       sync.RWMutex
	sessions map[string]map[*chatClient]struct{}
	log      zerolog.Logger
}

type chatClient struct {
	conn    *websocket.Conn
	send    chan dto.ChatSocketEvent
	options ChatConnectionOptions
	service *chatService
	closed  chan struct{}
	once    sync.Once
}

// NewChatService constructs the chat service. Redis and NATS are optional; without them history
// is read from the database and websocket fan-out stays within the process.
func NewChatService(deps ChatDependencies, validate *validator.Validate, logger zerolog.Logger) ChatService {
	if deps.CacheTTL <= 0 {
		deps.CacheTTL = 30 * time.Minute
	}

	s := &chatService{
		deps:      deps,
		validator: validate,
		logger:    logger.With().Str("component", "chat_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/teachmate-api/internal/service/chat"),
		sanitizer: bluemonday.StrictPolicy(),
		hub: &chatHub{
			sessions: make(map[string]map[*chatClient]struct{}),
			log:      logger.With().Str("component", "chat_hub").Logger(),
		},
		relay: newClusterRelay(deps.ChannelBase, "chat", deps.Redis, deps.NATS, logger),
		now:   time.Now,
	}
	if deps.ChannelBase != "" {
		s.cachePrefix = deps.ChannelBase + ":chat:history"
	}
	return s
}

// Start relays socket events from sessions whose sockets live on other replicas.
func (s *chatService) Start(ctx context.Context) {
	s.relay.listen(ctx, func(payload json.RawMessage) {
		var event dto.ChatSocketEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			s.logger.Warn().Err(err).Msg("invalid chat event")
			return
		}
		s.broadcast(event, false)
	})
}

func personFromStudent(student models.Student) *dto.ChatPerson {
	return &dto.ChatPerson{
		ID:    student.ID,
		Name:  student.FullName(),
		Grade: student.Grade.GradeName,
		Class: student.Class.ClassName,
	}
}

func parentDisplayName(parent models.Parent) string {
	if strings.TrimSpace(parent.FatherName) != "" {
		return strings.TrimSpace(parent.FatherName)
	}
	return strings.TrimSpace(parent.MotherName)
}

func (s *chatService) StartStudent(ctx context.Context, payload dto.StudentChatStartRequest) (dto.ChatStartResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ChatStartResponse{}, err
	}
	student, err := s.deps.Students.GetByID(ctx, payload.StudentID)
	if err != nil {
		return dto.ChatStartResponse{}, notFoundAs(err, ErrStudentNotFound)
	}

	studentID := student.ID
	conversation := models.ChatConversation{
		SessionID:        uuid.NewString(),
		UserType:         chatUserStudent,
		StudentID:        &studentID,
		SelectedChapters: payload.SelectedChapters,
		SubjectContext:   strings.TrimSpace(payload.SubjectContext),
		IsActive:         true,
	}
	if err := s.deps.Conversations.Create(ctx, &conversation); err != nil {
		return dto.ChatStartResponse{}, err
	}

	subject := conversation.SubjectContext
	if subject == "" {
		subject = "All subjects"
	}
	chapters := payload.SelectedChapters
	if len(chapters) == 0 {
		chapters = []string{"All chapters"}
	}

	s.logger.Info().Str("session_id", conversation.SessionID).Uint("student_id", studentID).Msg("student chat started")
	return dto.ChatStartResponse{
		SessionID: conversation.SessionID,
		Message:   "Student chat session started",
		Student:   personFromStudent(student),
		Subject:   subject,
		Chapters:  chapters,
	}, nil
}

func (s *chatService) StartParent(ctx context.Context, payload dto.ParentChatStartRequest) (dto.ChatStartResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ChatStartResponse{}, err
	}
	parent, err := s.deps.Parents.GetByID(ctx, payload.ParentID)
	if err != nil {
		return dto.ChatStartResponse{}, notFoundAs(err, ErrParentNotFound)
	}
	student, err := s.deps.Students.GetByID(ctx, payload.StudentID)
	if err != nil {
		return dto.ChatStartResponse{}, notFoundAs(err, ErrStudentNotFound)
	}

	parentID, studentID := parent.ID, student.ID
	conversation := models.ChatConversation{
		SessionID:      uuid.NewString(),
		UserType:       chatUserParent,
		StudentID:      &studentID,
		ParentID:       &parentID,
		SubjectContext: strings.TrimSpace(payload.Subject),
		IsActive:       true,
	}
	if err := s.deps.Conversations.Create(ctx, &conversation); err != nil {
		return dto.ChatStartResponse{}, err
	}

	subject := conversation.SubjectContext
	if subject == "" {
		subject = "All subjects"
	}

	s.logger.Info().Str("session_id", conversation.SessionID).Uint("parent_id", parentID).Msg("parent chat started")
	return dto.ChatStartResponse{
		SessionID: conversation.SessionID,
		Message:   "Parent chat session started",
		Parent:    &dto.ChatPerson{ID: parent.ID, Name: parentDisplayName(parent)},
		Child:     personFromStudent(student),
		Subject:   subject,
		Chapters:  []string{},
	}, nil
}

// sessionLock serialises turns of one conversation so concurrent sends do not drop messages.
func (s *chatService) sessionLock(sessionID string) *sync.Mutex {
	lock, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// SendMessage runs one assistant turn. The exchange is stored only when the agent succeeds.
func (s *chatService) SendMessage(ctx context.Context, payload dto.ChatMessageRequest) (dto.ChatReplyResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ChatReplyResponse{}, err
	}
	message := strings.TrimSpace(s.sanitizer.Sanitize(payload.Message))
	if message == "" {
		return dto.ChatReplyResponse{}, fmt.Errorf("%w: message is empty", ErrInvalidAnswers)
	}

	lock := s.sessionLock(payload.SessionID)
	lock.Lock()
	defer lock.Unlock()

	ctx, span := s.tracer.Start(ctx, "chat.message", trace.WithAttributes(attribute.String("chat.session_id", payload.SessionID)))
	defer span.End()

	conversation, err := s.deps.Conversations.GetBySessionID(ctx, payload.SessionID)
	if err != nil {
		return dto.ChatReplyResponse{}, notFoundAs(err, ErrConversationNotFound)
	}
	if !conversation.IsActive {
		return dto.ChatReplyResponse{}, ErrConversationClosed
	}
	if conversation.StudentID == nil {
		return dto.ChatReplyResponse{}, ErrStudentNotFound
	}
	student, err := s.deps.Students.GetByID(ctx, *conversation.StudentID)
	if err != nil {
		return dto.ChatReplyResponse{}, notFoundAs(err, ErrStudentNotFound)
	}

	history := s.recentHistory(ctx, conversation)
	span.SetAttributes(attribute.String("chat.user_type", conversation.UserType))

	var (
		result         AgentResult[AssistantReply]
		needsAttention bool
	)
	switch conversation.UserType {
	case chatUserParent:
		if conversation.ParentID == nil {
			return dto.ChatReplyResponse{}, ErrParentNotFound
		}
		parent, err := s.deps.Parents.GetByID(ctx, *conversation.ParentID)
		if err != nil {
			return dto.ChatReplyResponse{}, notFoundAs(err, ErrParentNotFound)
		}
		result = s.deps.ParentAgent.Reply(ctx, ParentContext{
			Parent:  parent,
			Child:   student,
			Subject: conversation.SubjectContext,
		}, history, message)
	default:
		subject := strings.TrimSpace(payload.Subject)
		if subject == "" {
			subject = conversation.SubjectContext
		}
		chapters := []string(conversation.SelectedChapters)
		if chapter := strings.TrimSpace(payload.Chapter); chapter != "" {
			chapters = []string{chapter}
		}
		result = s.deps.StudentAgent.Reply(ctx, StudentContext{
			Student:          student,
			Subject:          subject,
			SelectedChapters: chapters,
		}, history, message)
		needsAttention = NeedsTeacherAttention(message)
	}

	if !result.Success {
		span.RecordError(result.Error)
		observability.ChatMessages().WithLabelValues(conversation.UserType, "error").Inc()
		return dto.ChatReplyResponse{}, result.Error
	}

	now := s.now().UTC()
	conversation.Messages = append(conversation.Messages,
		models.ChatMessage{Role: models.ChatRoleUser, Content: message, Timestamp: now},
		models.ChatMessage{Role: models.ChatRoleAssistant, Content: result.Data.Response, Timestamp: now, ToolsUsed: result.Data.ToolsUsed},
	)
	conversation.LastMessageAt = &now
	flagged := needsAttention && !conversation.NeedsTeacherAttention
	if needsAttention {
		conversation.NeedsTeacherAttention = true
	}
	if err := s.deps.Conversations.Save(ctx, &conversation); err != nil {
		return dto.ChatReplyResponse{}, err
	}

	s.cacheHistory(ctx, conversation)
	if flagged {
		s.notifyTeachers(ctx, conversation, student, message)
	}
	observability.ChatMessages().WithLabelValues(conversation.UserType, "ok").Inc()

	toolsUsed := result.Data.ToolsUsed
	if toolsUsed == nil {
		toolsUsed = []string{}
	}
	return dto.ChatReplyResponse{
		SessionID:             conversation.SessionID,
		Response:              result.Data.Response,
		ToolsUsed:             toolsUsed,
		NeedsTeacherAttention: conversation.NeedsTeacherAttention,
	}, nil
}

func (s *chatService) historyKey(sessionID string) string {
	return fmt.Sprintf("%s:%s", s.cachePrefix, sessionID)
}

// recentHistory returns the last turns used as model context, preferring the Redis copy.
func (s *chatService) recentHistory(ctx context.Context, conversation models.ChatConversation) []models.ChatMessage {
	if s.deps.Redis != nil && s.cachePrefix != "" {
		if raw, err := s.deps.Redis.Get(ctx, s.historyKey(conversation.SessionID)).Bytes(); err == nil {
			var cached []models.ChatMessage
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("chat history cache read failed")
		}
	}
	return tailMessages(conversation.Messages, chatHistoryWindow)
}

func (s *chatService) cacheHistory(ctx context.Context, conversation models.ChatConversation) {
	if s.deps.Redis == nil || s.cachePrefix == "" {
		return
	}
	payload, err := json.Marshal(tailMessages(conversation.Messages, chatHistoryWindow))
	if err != nil {
		return
	}
	if err := s.deps.Redis.Set(ctx, s.historyKey(conversation.SessionID), payload, s.deps.CacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("chat history cache write failed")
	}
}

func tailMessages(messages []models.ChatMessage, n int) []models.ChatMessage {
	if len(messages) <= n {
		return append([]models.ChatMessage(nil), messages...)
	}
	return append([]models.ChatMessage(nil), messages[len(messages)-n:]...)
}

func (s *chatService) notifyTeachers(ctx context.Context, conversation models.ChatConversation, student models.Student, message string) {
	if s.deps.Notifications == nil || s.deps.Teachers == nil {
		return
	}
	classID := student.ClassID
	teachers, err := s.deps.Teachers.List(ctx, repository.TeacherFilter{ClassID: &classID})
	if err != nil {
		s.logger.Warn().Err(err).Uint("class_id", classID).Msg("load class teachers")
		return
	}

	excerpt := message
	if len(excerpt) > 200 {
		excerpt = excerpt[:200] + "..."
	}
	for _, teacher := range teachers {
		if _, err := s.deps.Notifications.Publish(ctx, dto.NotificationCreateRequest{
			UserID:  teacher.ID,
			Type:    "chat.attention",
			Title:   fmt.Sprintf("%s may need help", student.FullName()),
			Message: excerpt,
			Data: map[string]interface{}{
				"session_id": conversation.SessionID,
				"student_id": student.ID,
			},
		}); err != nil {
			s.logger.Warn().Err(err).Uint("teacher_id", teacher.ID).Msg("publish attention notification")
		}
	}
}

func (s *chatService) History(ctx context.Context, sessionID string) (dto.ChatConversationResponse, error) {
	conversation, err := s.deps.Conversations.GetBySessionID(ctx, sessionID)
	if err != nil {
		return dto.ChatConversationResponse{}, notFoundAs(err, ErrConversationNotFound)
	}
	return dto.NewChatConversationResponse(conversation), nil
}

func (s *chatService) StudentSessions(ctx context.Context, studentID uint) ([]dto.ChatSessionSummary, error) {
	conversations, err := s.deps.Conversations.List(ctx, repository.ChatFilter{StudentID: &studentID, IncludeClosed: true})
	if err != nil {
		return nil, err
	}

	sessions := make([]dto.ChatSessionSummary, 0, len(conversations))
	for _, conversation := range conversations {
		summary := dto.ChatSessionSummary{
			SessionID:             conversation.SessionID,
			UserType:              conversation.UserType,
			IsActive:              conversation.IsActive,
			MessageCount:          len(conversation.Messages),
			SubjectContext:        conversation.SubjectContext,
			NeedsTeacherAttention: conversation.NeedsTeacherAttention,
			LastMessageAt:         conversation.LastMessageAt,
		}
		if n := len(conversation.Messages); n > 0 {
			last := []rune(conversation.Messages[n-1].Content)
			if len(last) > 100 {
				last = last[:100]
			}
			summary.LastMessage = string(last)
		}
		sessions = append(sessions, summary)
	}
	return sessions, nil
}

func (s *chatService) NeedsAttention(ctx context.Context) ([]dto.ChatConversationResponse, error) {
	flagged := true
	conversations, err := s.deps.Conversations.List(ctx, repository.ChatFilter{NeedsTeacherAttention: &flagged})
	if err != nil {
		return nil, err
	}
	return dto.NewChatConversationResponseSlice(conversations), nil
}

func (s *chatService) Close(ctx context.Context, sessionID string) error {
	if err := s.deps.Conversations.Deactivate(ctx, sessionID); err != nil {
		return notFoundAs(err, ErrConversationNotFound)
	}
	if s.deps.Redis != nil && s.cachePrefix != "" {
		_ = s.deps.Redis.Del(ctx, s.historyKey(sessionID)).Err()
	}
	s.locks.Delete(sessionID)
	s.broadcast(dto.ChatSocketEvent{Type: "closed", SessionID: sessionID, Timestamp: s.now().UTC()}, true)
	return nil
}

// ServeConnection relays user turns from a websocket into SendMessage and pushes every event of
// the session to all of its connected clients.
func (s *chatService) ServeConnection(conn *websocket.Conn, opts ChatConnectionOptions) {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	client := &chatClient{
		conn:    conn,
		send:    make(chan dto.ChatSocketEvent, chatSendBufferSize),
		options: opts,
		service: s,
		closed:  make(chan struct{}),
	}

	s.hub.register(client)
	go client.writer()
	client.reader()
}

func (s *chatService) broadcast(event dto.ChatSocketEvent, fanOut bool) {
	s.hub.broadcast(event.SessionID, event)
	if !fanOut {
		return
	}
	if err := s.publish(event); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish chat event")
	}
}

func (s *chatService) publish(event dto.ChatSocketEvent) error {
	return s.relay.publish(context.Background(), event)
}

func (h *chatHub) register(client *chatClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	session := client.options.SessionID
	if _, ok := h.sessions[session]; !ok {
		h.sessions[session] = make(map[*chatClient]struct{})
	}
	h.sessions[session][client] = struct{}{}
	h.log.Debug().Str("session_id", session).Uint("user_id", client.options.UserID).Msg("chat client connected")
}

func (h *chatHub) unregister(client *chatClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	session := client.options.SessionID
	if clients, ok := h.sessions[session]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.sessions, session)
		}
	}
	h.log.Debug().Str("session_id", session).Msg("chat client disconnected")
}

func (h *chatHub) broadcast(sessionID string, event dto.ChatSocketEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.sessions[sessionID] {
		select {
		case client.send <- event:
		default:
			h.log.Warn().Str("session_id", sessionID).Msg("dropping chat event for slow client")
		}
	}
}

func (c *chatClient) reader() {
	defer c.close()

	for {
		var payload dto.ChatSocketMessage
		if err := c.conn.ReadJSON(&payload); err != nil {
			c.service.logger.Debug().Err(err).Msg("chat read loop ended")
			return
		}

		sessionID := c.options.SessionID
		c.service.broadcast(dto.ChatSocketEvent{
			Type:      models.ChatRoleUser,
			SessionID: sessionID,
			Content:   payload.Message,
			Timestamp: time.Now().UTC(),
		}, true)

		reply, err := c.service.SendMessage(c.options.Context, dto.ChatMessageRequest{SessionID: sessionID, Message: payload.Message})
		if err != nil {
			c.service.logger.Warn().Err(err).Str("session_id", sessionID).Str("correlation_id", c.options.CorrelationID).Msg("chat turn failed")
			c.push(dto.ChatSocketEvent{Type: "error", SessionID: sessionID, Content: PublicErrorMessage(err), Timestamp: time.Now().UTC()})
			if errors.Is(err, ErrConversationClosed) || errors.Is(err, ErrConversationNotFound) {
				return
			}
			continue
		}

		c.service.broadcast(dto.ChatSocketEvent{
			Type:      models.ChatRoleAssistant,
			SessionID: sessionID,
			Content:   reply.Response,
			ToolsUsed: reply.ToolsUsed,
			Timestamp: time.Now().UTC(),
		}, true)
	}
}

func (c *chatClient) push(event dto.ChatSocketEvent) {
	select {
	case <-c.closed:
	case c.send <- event:
	default:
	}
}

func (c *chatClient) writer() {
	defer c.close()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case event := <-c.send:
			if err := c.conn.WriteJSON(event); err != nil {
				c.service.logger.Debug().Err(err).Msg("chat write loop terminated")
				return
			}
			if event.Type == "closed" {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *chatClient) close() {
	c.once.Do(func() {
		close(c.closed)
		c.service.hub.unregister(c)
		_ = c.conn.Close()
	})
}
