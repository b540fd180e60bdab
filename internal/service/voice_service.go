package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/observability"
	"github.com/noah-isme/teachmate-api/internal/repository"
	"github.com/noah-isme/teachmate-api/pkg/retell"
)

const (
	voiceResultLimit     = 500
	voiceDefaultSubject  = "Science"
	voiceFallbackReply   = "I'm having trouble right now. Please try again."
	voiceNoStudentResult = "I don't have your student information yet. Please start a proper call session first."
)

// VoiceConfig selects the provider agents used per caller type.
type VoiceConfig struct {
	StudentAgentID string
	ParentAgentID  string
	WebhookSecret  string
}

// VoiceService places voice tutoring calls and answers the provider's callbacks.
type VoiceService interface {
	StartStudent(ctx context.Context, payload dto.VoiceStartRequest) (dto.VoiceStartResponse, error)
	StartParent(ctx context.Context, payload dto.ParentVoiceStartRequest) (dto.VoiceStartResponse, error)
	HandleWebhook(ctx context.Context, payload dto.VoiceWebhookRequest) (dto.VoiceWebhookResponse, error)
	History(ctx context.Context, studentID uint) ([]dto.VoiceCallResponse, error)
	End(ctx context.Context, callID string) (dto.VoiceCallResponse, error)
	VerifySignature(body []byte, signature string) error

	SearchKnowledgeBase(ctx context.Context, payload dto.VoiceFunctionRequest) dto.VoiceFunctionResponse
	StudentProgress(ctx context.Context, payload dto.VoiceFunctionRequest) dto.VoiceFunctionResponse
	UpcomingAssessments(ctx context.Context, payload dto.VoiceFunctionRequest) dto.VoiceFunctionResponse
}

// VoiceDependencies groups the collaborators of the voice service.
type VoiceDependencies struct {
	Calls        repository.VoiceCallRepository
	Students     repository.StudentRepository
	Parents      repository.ParentRepository
	Caller       retell.Caller
	StudentAgent StudentAssistantAgent
	ParentAgent  ParentAssistantAgent
	Knowledge    KnowledgeSearcher
	Insights     *LearnerInsights
	Numbering    ChapterNumberingPolicy
}

type voiceService struct {
	deps      VoiceDependencies
	config    VoiceConfig
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	sanitizer *bluemonday.Policy
	now       func() time.Time
}

// NewVoiceService constructs the voice service. A nil Caller makes call creation fail with
// ErrProviderUnavailable while webhooks and tool endpoints keep working.
func NewVoiceService(deps VoiceDependencies, config VoiceConfig, validate *validator.Validate, logger zerolog.Logger) VoiceService {
	return &voiceService{
		deps:      deps,
		config:    config,
		validator: validate,
		logger:    logger.With().Str("component", "voice_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/teachmate-api/internal/service/voice"),
		sanitizer: bluemonday.StrictPolicy(),
		now:       time.Now,
	}
}

func (s *voiceService) StartStudent(ctx context.Context, payload dto.VoiceStartRequest) (dto.VoiceStartResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.VoiceStartResponse{}, err
	}
	student, err := s.deps.Students.GetByID(ctx, payload.StudentID)
	if err != nil {
		return dto.VoiceStartResponse{}, notFoundAs(err, ErrStudentNotFound)
	}

	chapters := payload.SelectedChapters
	if chapters == nil {
		chapters = []string{}
	}
	metadata := map[string]interface{}{
		"subject":           strings.TrimSpace(payload.Subject),
		"selected_chapters": chapters,
		"grade":             student.Grade.GradeName,
		"class":             student.Class.ClassName,
	}

	call, err := s.place(ctx, chatUserStudent, s.config.StudentAgentID, student.ID, nil, metadata)
	if err != nil {
		return dto.VoiceStartResponse{}, err
	}

	subject := strings.TrimSpace(payload.Subject)
	if subject == "" {
		subject = "All subjects"
	}
	if len(chapters) == 0 {
		chapters = []string{"All chapters"}
	}
	return dto.VoiceStartResponse{
		CallID:       call.CallID,
		RetellCallID: call.RetellCallID,
		AccessToken:  call.AccessToken,
		Status:       call.Status,
		Student:      personFromStudent(student),
		Subject:      subject,
		Chapters:     chapters,
	}, nil
}

func (s *voiceService) StartParent(ctx context.Context, payload dto.ParentVoiceStartRequest) (dto.VoiceStartResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.VoiceStartResponse{}, err
	}
	parent, err := s.deps.Parents.GetByID(ctx, payload.ParentID)
	if err != nil {
		return dto.VoiceStartResponse{}, notFoundAs(err, ErrParentNotFound)
	}
	student, err := s.deps.Students.GetByID(ctx, payload.StudentID)
	if err != nil {
		return dto.VoiceStartResponse{}, notFoundAs(err, ErrStudentNotFound)
	}

	metadata := map[string]interface{}{
		"subject":    strings.TrimSpace(payload.Subject),
		"child_name": student.FullName(),
		"grade":      student.Grade.GradeName,
	}
	parentID := parent.ID
	call, err := s.place(ctx, chatUserParent, s.config.ParentAgentID, student.ID, &parentID, metadata)
	if err != nil {
		return dto.VoiceStartResponse{}, err
	}

	subject := strings.TrimSpace(payload.Subject)
	if subject == "" {
		subject = "All subjects"
	}
	return dto.VoiceStartResponse{
		CallID:       call.CallID,
		RetellCallID: call.RetellCallID,
		AccessToken:  call.AccessToken,
		Status:       call.Status,
		Parent:       &dto.ChatPerson{ID: parent.ID, Name: parentDisplayName(parent)},
		Child:        personFromStudent(student),
		Subject:      subject,
		Chapters:     []string{},
	}, nil
}

// place registers the web call with the provider and persists it. The local call id travels in
// the provider metadata so callbacks can be matched without the provider id.
func (s *voiceService) place(ctx context.Context, userType, agentID string, studentID uint, parentID *uint, metadata map[string]interface{}) (models.VoiceCall, error) {
	if s.deps.Caller == nil || strings.TrimSpace(agentID) == "" {
		observability.VoiceCalls().WithLabelValues(userType, "unavailable").Inc()
		return models.VoiceCall{}, externalError("retell", ErrProviderUnavailable)
	}

	ctx, span := s.tracer.Start(ctx, "voice.start", trace.WithAttributes(attribute.String("voice.user_type", userType)))
	defer span.End()

	callID := uuid.NewString()
	metadata["call_id"] = callID
	metadata["user_type"] = userType
	metadata["student_id"] = strconv.FormatUint(uint64(studentID), 10)
	if parentID != nil {
		metadata["parent_id"] = strconv.FormatUint(uint64(*parentID), 10)
	}

	webCall, err := s.deps.Caller.CreateWebCall(ctx, retell.WebCallRequest{AgentID: agentID, Metadata: metadata})
	if err != nil {
		span.RecordError(err)
		observability.VoiceCalls().WithLabelValues(userType, "error").Inc()
		return models.VoiceCall{}, externalError("retell", err)
	}

	call := models.VoiceCall{
		CallID:       callID,
		UserType:     userType,
		StudentID:    studentID,
		ParentID:     parentID,
		RetellCallID: webCall.CallID,
		AccessToken:  webCall.AccessToken,
		Status:       models.VoiceCallStatusInitiated,
		Metadata:     metadata,
	}
	if err := s.deps.Calls.Create(ctx, &call); err != nil {
		return models.VoiceCall{}, err
	}

	observability.VoiceCalls().WithLabelValues(userType, "ok").Inc()
	s.logger.Info().Str("call_id", callID).Str("retell_call_id", webCall.CallID).Str("user_type", userType).Msg("voice call started")
	return call, nil
}

// resolveCall finds the call a callback refers to: the local id carried in metadata first,
// then the given id as a local id, then as a provider id.
func (s *voiceService) resolveCall(ctx context.Context, metadata map[string]interface{}, callID string) (models.VoiceCall, error) {
	if local := metadataString(metadata, "call_id"); local != "" {
		call, err := s.deps.Calls.GetByCallID(ctx, local)
		if err == nil {
			return call, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return models.VoiceCall{}, err
		}
	}

	callID = strings.TrimSpace(callID)
	if callID == "" {
		return models.VoiceCall{}, ErrVoiceCallNotFound
	}
	call, err := s.deps.Calls.GetByCallID(ctx, callID)
	if err == nil {
		return call, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.VoiceCall{}, err
	}
	call, err = s.deps.Calls.GetByProviderCallID(ctx, callID)
	if err != nil {
		return models.VoiceCall{}, notFoundAs(err, ErrVoiceCallNotFound)
	}
	return call, nil
}

// HandleWebhook answers one caller utterance. Voice turns carry no prior history.
func (s *voiceService) HandleWebhook(ctx context.Context, payload dto.VoiceWebhookRequest) (dto.VoiceWebhookResponse, error) {
	fallback := dto.VoiceWebhookResponse{Response: voiceFallbackReply}

	call, err := s.resolveCall(ctx, payload.Metadata, payload.CallID)
	if err != nil {
		return fallback, err
	}
	student, err := s.deps.Students.GetByID(ctx, call.StudentID)
	if err != nil {
		return fallback, notFoundAs(err, ErrStudentNotFound)
	}

	ctx, span := s.tracer.Start(ctx, "voice.webhook", trace.WithAttributes(
		attribute.String("voice.call_id", call.CallID),
		attribute.String("voice.user_type", call.UserType),
	))
	defer span.End()

	transcript := strings.TrimSpace(s.sanitizer.Sanitize(payload.Transcript))
	subject := metadataString(call.Metadata, "subject")

	var result AgentResult[AssistantReply]
	switch call.UserType {
	case chatUserParent:
		if call.ParentID == nil {
			return fallback, ErrParentNotFound
		}
		parent, err := s.deps.Parents.GetByID(ctx, *call.ParentID)
		if err != nil {
			return fallback, notFoundAs(err, ErrParentNotFound)
		}
		result = s.deps.ParentAgent.Reply(ctx, ParentContext{Parent: parent, Child: student, Subject: subject}, nil, transcript)
	default:
		result = s.deps.StudentAgent.Reply(ctx, StudentContext{
			Student:          student,
			Subject:          subject,
			SelectedChapters: metadataStrings(call.Metadata, "selected_chapters"),
		}, nil, transcript)
	}
	if !result.Success {
		span.RecordError(result.Error)
		return fallback, result.Error
	}

	if call.Status == models.VoiceCallStatusInitiated {
		call.Status = models.VoiceCallStatusOngoing
	}
	var b strings.Builder
	b.WriteString(call.Transcript)
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%s: %s\nassistant: %s", call.UserType, transcript, result.Data.Response)
	call.Transcript = b.String()
	if err := s.deps.Calls.Save(ctx, &call); err != nil {
		s.logger.Warn().Err(err).Str("call_id", call.CallID).Msg("persist voice transcript")
	}

	s.logger.Debug().Str("call_id", call.CallID).Strs("tools_used", result.Data.ToolsUsed).Msg("voice turn answered")
	return dto.VoiceWebhookResponse{Response: result.Data.Response, EndCall: false}, nil
}

func (s *voiceService) History(ctx context.Context, studentID uint) ([]dto.VoiceCallResponse, error) {
	calls, err := s.deps.Calls.ListByStudent(ctx, studentID, 0)
	if err != nil {
		return nil, err
	}
	return dto.NewVoiceCallResponseSlice(calls), nil
}

// End marks the call as ended. Ending an ended call keeps the first end time.
func (s *voiceService) End(ctx context.Context, callID string) (dto.VoiceCallResponse, error) {
	call, err := s.resolveCall(ctx, nil, callID)
	if err != nil {
		return dto.VoiceCallResponse{}, err
	}
	if call.Status != models.VoiceCallStatusEnded {
		now := s.now().UTC()
		call.Status = models.VoiceCallStatusEnded
		call.EndedAt = &now
		if err := s.deps.Calls.Save(ctx, &call); err != nil {
			return dto.VoiceCallResponse{}, err
		}
		s.logger.Info().Str("call_id", call.CallID).Msg("voice call ended")
	}
	return dto.NewVoiceCallResponse(call), nil
}

func (s *voiceService) VerifySignature(body []byte, signature string) error {
	return retell.VerifySignature(s.config.WebhookSecret, body, signature)
}

// lookupCall is the tool-endpoint variant of resolveCall: a missing call is not an error.
func (s *voiceService) lookupCall(ctx context.Context, payload dto.VoiceFunctionRequest) (models.VoiceCall, bool) {
	call, err := s.resolveCall(ctx, payload.Call.Metadata, payload.Call.CallID)
	if err != nil {
		if !errors.Is(err, ErrVoiceCallNotFound) {
			s.logger.Warn().Err(err).Str("call_id", payload.Call.CallID).Msg("resolve voice call")
		}
		return models.VoiceCall{}, false
	}
	return call, true
}

func (s *voiceService) SearchKnowledgeBase(ctx context.Context, payload dto.VoiceFunctionRequest) dto.VoiceFunctionResponse {
	query := metadataString(payload.Args, "query")
	call, found := s.lookupCall(ctx, payload)

	subject := metadataString(payload.Args, "subject")
	if subject == "" && found {
		subject = metadataString(call.Metadata, "subject")
	}
	if subject == "" {
		subject = voiceDefaultSubject
	}

	grade := defaultGradeNumber
	var chapters []string
	if found {
		grade = gradeNumber(metadataString(call.Metadata, "grade"))
		chapters = metadataStrings(call.Metadata, "selected_chapters")
	}
	if n, ok := s.deps.Numbering.ParseChapterReference(subject, query); ok && chapterMentioned(query) {
		chapters = []string{strconv.Itoa(n)}
	}

	if strings.TrimSpace(query) == "" || s.deps.Knowledge == nil {
		return dto.VoiceFunctionResponse{Result: "I couldn't find specific information about that in the textbook. Let me explain it in general terms."}
	}

	filter := map[string]interface{}{"grade": grade}
	if normalized := indexSubject(subject); normalized != "" {
		filter["subject"] = normalized
	}
	if len(chapters) > 0 {
		filter["chapter"] = map[string]interface{}{"$in": chapters}
	}

	chunks, err := s.deps.Knowledge.Search(ctx, query, 5, filter)
	if err != nil {
		s.logger.Warn().Err(err).Msg("voice knowledge search failed")
		return dto.VoiceFunctionResponse{Result: "I'm having trouble searching right now."}
	}
	if len(chunks) == 0 {
		return dto.VoiceFunctionResponse{Result: "I couldn't find specific information about that in the textbook. Let me explain it in general terms."}
	}

	texts := make([]string, 0, 2)
	for _, chunk := range chunks[:min(len(chunks), 2)] {
		texts = append(texts, chunk.Text)
	}
	return dto.VoiceFunctionResponse{Result: truncateRunes(strings.Join(texts, " "), voiceResultLimit)}
}

func (s *voiceService) StudentProgress(ctx context.Context, payload dto.VoiceFunctionRequest) dto.VoiceFunctionResponse {
	call, found := s.lookupCall(ctx, payload)
	if !found || call.StudentID == 0 {
		return dto.VoiceFunctionResponse{Result: voiceNoStudentResult}
	}

	subject := metadataString(payload.Args, "subject")
	if subject == "" {
		subject = metadataString(call.Metadata, "subject")
	}
	progress, ok, err := s.deps.Insights.StudentProgress(ctx, call.StudentID, subject)
	if err != nil {
		s.logger.Warn().Err(err).Str("call_id", call.CallID).Msg("voice progress lookup failed")
		return dto.VoiceFunctionResponse{Result: "I'm having trouble getting your progress right now."}
	}
	if !ok {
		return dto.VoiceFunctionResponse{Result: "I don't have your assessment history yet. Once you complete some assessments, I can show you your progress."}
	}

	result := fmt.Sprintf("You've completed %d assessments with an average score of %g%%. ", progress.TotalAssessments, progress.AverageScore)
	if len(progress.WeakTopics) > 0 {
		result += fmt.Sprintf("You might want to review: %s.", strings.Join(progress.WeakTopics[:min(len(progress.WeakTopics), 2)], ", "))
	} else {
		result += "You're doing well overall!"
	}
	return dto.VoiceFunctionResponse{Result: result}
}

func (s *voiceService) UpcomingAssessments(ctx context.Context, payload dto.VoiceFunctionRequest) dto.VoiceFunctionResponse {
	call, found := s.lookupCall(ctx, payload)
	if !found || call.StudentID == 0 {
		return dto.VoiceFunctionResponse{Result: voiceNoStudentResult}
	}
	student, err := s.deps.Students.GetByID(ctx, call.StudentID)
	if err != nil {
		return dto.VoiceFunctionResponse{Result: voiceNoStudentResult}
	}

	upcoming, err := s.deps.Insights.UpcomingAssessments(ctx, student)
	if err != nil {
		s.logger.Warn().Err(err).Str("call_id", call.CallID).Msg("voice upcoming lookup failed")
		return dto.VoiceFunctionResponse{Result: "I'm having trouble getting your assessments right now."}
	}
	if len(upcoming) == 0 {
		return dto.VoiceFunctionResponse{Result: "You don't have any upcoming assessments scheduled right now."}
	}

	upcoming = upcoming[:min(len(upcoming), 3)]
	plural := ""
	if len(upcoming) > 1 {
		plural = "s"
	}
	parts := make([]string, 0, len(upcoming))
	for _, a := range upcoming {
		topics := a.Topics[:min(len(a.Topics), 2)]
		parts = append(parts, fmt.Sprintf("%s on %s, covering %s", a.Subject, a.OpensOn.Format("January 2"), strings.Join(topics, " and ")))
	}
	return dto.VoiceFunctionResponse{Result: fmt.Sprintf("You have %d upcoming assessment%s. %s", len(upcoming), plural, strings.Join(parts, ". "))}
}

// chapterMentioned reports whether text names a chapter rather than being a bare number.
func chapterMentioned(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "chapter") || strings.Contains(lower, "ch ") || strings.Contains(lower, "ch.")
}

func metadataString(metadata map[string]interface{}, key string) string {
	if metadata == nil {
		return ""
	}
	switch v := metadata[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func metadataStrings(metadata map[string]interface{}, key string) []string {
	if metadata == nil {
		return nil
	}
	switch v := metadata[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
