package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/pkg/ai"
)

var attentionKeywords = []string{"don't understand", "confused", "struggling", "difficult", "hard", "help me"}

// NeedsTeacherAttention reports whether a student message signals they are stuck.
func NeedsTeacherAttention(message string) bool {
	lower := strings.ToLower(message)
	for _, keyword := range attentionKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// StudentContext scopes a tutoring turn. Student must have Grade and Class loaded.
type StudentContext struct {
	Student          models.Student
	Subject          string
	SelectedChapters []string
}

// StudentAssistantAgent answers student questions with textbook search and progress tools.
type StudentAssistantAgent interface {
	Reply(ctx context.Context, sc StudentContext, history []models.ChatMessage, message string) AgentResult[AssistantReply]
}

type studentAssistantAgent struct {
	llm       ai.ChatCompleter
	knowledge KnowledgeSearcher
	insights  *LearnerInsights
	config    AgentConfig
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewStudentAssistantAgent constructs the student tutor.
func NewStudentAssistantAgent(llm ai.ChatCompleter, knowledge KnowledgeSearcher, insights *LearnerInsights, config AgentConfig, logger zerolog.Logger) StudentAssistantAgent {
	return &studentAssistantAgent{
		llm:       llm,
		knowledge: knowledge,
		insights:  insights,
		config:    config.withDefaults("anthropic/claude-3.5-sonnet", 0.7, 1000, 60*time.Second),
		logger:    logger.With().Str("component", "student_assistant_agent").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/teachmate-api/internal/service/agents"),
	}
}

func (a *studentAssistantAgent) Reply(ctx context.Context, sc StudentContext, history []models.ChatMessage, message string) (result AgentResult[AssistantReply]) {
	started := time.Now()
	ctx, span := a.tracer.Start(ctx, "agents.student_assistant", trace.WithAttributes(
		attribute.Int64("student.id", int64(sc.Student.ID)),
		attribute.String("chat.subject", sc.Subject),
	))
	defer func() {
		if result.Error != nil {
			span.RecordError(result.Error)
		}
		span.End()
		recordAgentCall("student_assistant", started, result.Error)
	}()

	messages := append([]ai.Message{{Role: ai.RoleSystem, Content: studentSystemPrompt(sc)}}, historyMessages(history)...)
	messages = append(messages, ai.Message{Role: ai.RoleUser, Content: message})

	reply, err := runToolLoop(ctx, a.llm, a.config, messages, a.tools(sc), a.logger)
	if err != nil {
		a.logger.Error().Err(err).Uint("student_id", sc.Student.ID).Msg("student assistant failed")
		return AgentResult[AssistantReply]{Data: AssistantReply{Response: assistantFallback}, Error: err}
	}
	return agentSucceeded(reply)
}

func (a *studentAssistantAgent) tools(sc StudentContext) toolbox {
	grade := gradeNumber(sc.Student.Grade.GradeName)

	return toolbox{
		"search_knowledge_base": {
			spec: ai.Tool{
				Name:        "search_knowledge_base",
				Description: "Search the textbook content for information about a specific topic or concept. Use this when the student asks about subject concepts, definitions, or explanations.",
				Parameters: objectSchema([]string{"query"}, map[string]interface{}{
					"query":   stringProp("The search query to find relevant content"),
					"subject": stringProp("The subject to search in (e.g., Science, Math, english)"),
					"chapter": stringProp("The chapter to search in the subject"),
				}),
			},
			run: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				subject := sc.Subject
				if subject == "" {
					subject = stringArg(args, "subject")
				}
				return searchTextbook(ctx, a.knowledge, stringArg(args, "query"), subject, grade, 5)
			},
		},
		"get_student_progress": {
			spec: ai.Tool{
				Name:        "get_student_progress",
				Description: "Get the student's recent assessment performance and identify weak areas. Use this when the student asks about their progress, performance, or what to study.",
				Parameters: objectSchema([]string{"student_id"}, map[string]interface{}{
					"student_id": stringProp("The student's ID"),
					"subject":    stringProp("Optional: filter by specific subject"),
				}),
			},
			run: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				subject := sc.Subject
				if subject == "" {
					subject = stringArg(args, "subject")
				}
				// the model never chooses whose records are read
				progress, ok, err := a.insights.StudentProgress(ctx, sc.Student.ID, subject)
				if err != nil {
					return nil, err
				}
				if !ok {
					return map[string]string{"message": "No assessment history found"}, nil
				}
				return progress, nil
			},
		},
		"get_upcoming_assessments": {
			spec: ai.Tool{
				Name:        "get_upcoming_assessments",
				Description: "Get the list of upcoming assessments for the student. Use this when the student asks about tests, quizzes, or what's coming up.",
				Parameters: objectSchema([]string{"student_id"}, map[string]interface{}{
					"student_id": stringProp("The student's ID"),
				}),
			},
			run: func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
				return a.insights.UpcomingAssessments(ctx, sc.Student)
			},
		},
	}
}

// TextbookPassage is a search hit returned to the models.
type TextbookPassage struct {
	Content string  `json:"content"`
	Chapter string  `json:"chapter"`
	Topic   string  `json:"topic"`
	Score   float64 `json:"score"`
}

func searchTextbook(ctx context.Context, knowledge KnowledgeSearcher, query, subject string, grade, topK int) ([]TextbookPassage, error) {
	if knowledge == nil {
		return nil, externalError("pinecone", ErrProviderUnavailable)
	}
	if strings.TrimSpace(query) == "" {
		return []TextbookPassage{}, nil
	}

	filter := map[string]interface{}{"grade": grade}
	if normalized := indexSubject(subject); normalized != "" {
		filter["subject"] = normalized
	}

	chunks, err := knowledge.Search(ctx, query, topK, filter)
	if err != nil {
		return nil, err
	}

	passages := make([]TextbookPassage, 0, len(chunks))
	for _, chunk := range chunks {
		passages = append(passages, TextbookPassage{
			Content: chunk.Text,
			Chapter: chunk.Chapter,
			Topic:   chunk.Topic,
			Score:   chunk.Score,
		})
	}
	return passages, nil
}

func studentSystemPrompt(sc StudentContext) string {
	student := sc.Student
	gradeName := student.Grade.GradeName

	var b strings.Builder
	fmt.Fprintf(&b, "You are a helpful, patient, and encouraging AI tutor assistant for %s, a %s student.\n\n", student.FirstName, gradeName)
	b.WriteString(`Your role:
- Answer questions about lessons, homework, and concepts
- Provide clear, age-appropriate explanations
- Encourage learning and critical thinking
- Be supportive and motivating
- Never give direct answers to homework/test questions, but guide students to find answers themselves

Guidelines:
`)
	fmt.Fprintf(&b, "- Use simple language appropriate for %s level\n", gradeName)
	b.WriteString(`- Break down complex topics into smaller steps
- Ask guiding questions to help students think
- Praise effort and progress
- If a question is outside your knowledge or inappropriate, politely redirect
- Never discuss personal, emotional, or non-academic topics

Student Context:
`)
	fmt.Fprintf(&b, "- Name: %s\n- Grade: %s\n- Class: %s", student.FullName(), gradeName, student.Class.ClassName)

	if sc.Subject != "" {
		fmt.Fprintf(&b, "\n- Current Subject: %s", sc.Subject)
	}
	if len(sc.SelectedChapters) > 0 {
		chapters := strings.Join(sc.SelectedChapters, ", ")
		fmt.Fprintf(&b, "\n- Focused Chapters: %s", chapters)
		fmt.Fprintf(&b, "\n\nIMPORTANT: The student is currently studying chapters %s. Prioritize content from these chapters when answering questions and searching the knowledge base.", chapters)
	}
	return b.String()
}
