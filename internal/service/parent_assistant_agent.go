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

// ParentContext scopes a parent conversation to one child. Child must have Grade and Class loaded.
type ParentContext struct {
	Parent  models.Parent
	Child   models.Student
	Subject string
}

// ParentAssistantAgent explains a child's progress to their parent.
type ParentAssistantAgent interface {
	Reply(ctx context.Context, pc ParentContext, history []models.ChatMessage, message string) AgentResult[AssistantReply]
}

type parentAssistantAgent struct {
	llm       ai.ChatCompleter
	knowledge KnowledgeSearcher
	insights  *LearnerInsights
	config    AgentConfig
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewParentAssistantAgent constructs the parent assistant.
func NewParentAssistantAgent(llm ai.ChatCompleter, knowledge KnowledgeSearcher, insights *LearnerInsights, config AgentConfig, logger zerolog.Logger) ParentAssistantAgent {
	return &parentAssistantAgent{
		llm:       llm,
		knowledge: knowledge,
		insights:  insights,
		config:    config.withDefaults("openai/gpt-4o", 0.7, 1000, 60*time.Second),
		logger:    logger.With().Str("component", "parent_assistant_agent").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/teachmate-api/internal/service/agents"),
	}
}

func (a *parentAssistantAgent) Reply(ctx context.Context, pc ParentContext, history []models.ChatMessage, message string) (result AgentResult[AssistantReply]) {
	started := time.Now()
	ctx, span := a.tracer.Start(ctx, "agents.parent_assistant", trace.WithAttributes(
		attribute.Int64("parent.id", int64(pc.Parent.ID)),
		attribute.Int64("student.id", int64(pc.Child.ID)),
	))
	defer func() {
		if result.Error != nil {
			span.RecordError(result.Error)
		}
		span.End()
		recordAgentCall("parent_assistant", started, result.Error)
	}()

	messages := append([]ai.Message{{Role: ai.RoleSystem, Content: parentSystemPrompt(pc)}}, historyMessages(history)...)
	messages = append(messages, ai.Message{Role: ai.RoleUser, Content: message})

	reply, err := runToolLoop(ctx, a.llm, a.config, messages, a.tools(pc), a.logger)
	if err != nil {
		a.logger.Error().Err(err).Uint("parent_id", pc.Parent.ID).Msg("parent assistant failed")
		return AgentResult[AssistantReply]{Data: AssistantReply{Response: assistantFallback}, Error: err}
	}
	return agentSucceeded(reply)
}

func (a *parentAssistantAgent) tools(pc ParentContext) toolbox {
	child := pc.Child
	grade := gradeNumber(child.Grade.GradeName)
	subjectOr := func(args map[string]interface{}) string {
		if pc.Subject != "" {
			return pc.Subject
		}
		return stringArg(args, "subject")
	}
	studentID := stringProp("The child's student ID")

	// every tool reads the linked child regardless of the student_id argument
	return toolbox{
		"get_child_progress": {
			spec: ai.Tool{
				Name:        "get_child_progress",
				Description: "Get detailed analysis of child's academic performance including scores, trends, and comparison with class average.",
				Parameters: objectSchema([]string{"student_id"}, map[string]interface{}{
					"student_id": studentID,
					"subject":    stringProp("Optional: filter by specific subject"),
					"time_period": map[string]interface{}{
						"type":        "string",
						"description": "Time period: 'last_month', 'last_3_months', 'all'",
						"enum":        []string{PeriodLastMonth, PeriodLastQuarter, PeriodAll},
					},
				}),
			},
			run: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				period := stringArg(args, "time_period")
				if period == "" {
					period = PeriodAll
				}
				progress, ok, err := a.insights.ChildProgress(ctx, child.ID, subjectOr(args), period)
				if err != nil {
					return nil, err
				}
				if !ok {
					return map[string]string{"message": "No assessment data found for the specified period"}, nil
				}
				return progress, nil
			},
		},
		"get_weak_areas": {
			spec: ai.Tool{
				Name:        "get_weak_areas",
				Description: "Identify topics and concepts where the child is struggling based on assessment performance.",
				Parameters: objectSchema([]string{"student_id"}, map[string]interface{}{
					"student_id": studentID,
					"subject":    stringProp("Optional: filter by specific subject"),
				}),
			},
			run: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				weak, ok, err := a.insights.WeakAreas(ctx, child.ID, subjectOr(args))
				if err != nil {
					return nil, err
				}
				if !ok {
					return map[string]interface{}{"message": "No assessment data available", "weak_topics": []WeakArea{}}, nil
				}
				return weak, nil
			},
		},
		"get_study_recommendations": {
			spec: ai.Tool{
				Name:        "get_study_recommendations",
				Description: "Get personalized study recommendations based on child's weak areas and upcoming assessments.",
				Parameters:  objectSchema([]string{"student_id"}, map[string]interface{}{"student_id": studentID}),
			},
			run: func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
				return a.insights.StudyRecommendations(ctx, child)
			},
		},
		"get_upcoming_assessments": {
			spec: ai.Tool{
				Name:        "get_upcoming_assessments",
				Description: "Get list of upcoming tests and assessments for the child.",
				Parameters:  objectSchema([]string{"student_id"}, map[string]interface{}{"student_id": studentID}),
			},
			run: func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
				return a.insights.UpcomingAssessments(ctx, child)
			},
		},
		"understand_topic": {
			spec: ai.Tool{
				Name:        "understand_topic",
				Description: "Search educational content to help parent understand what a specific topic is about (so they can help their child).",
				Parameters: objectSchema([]string{"topic", "grade"}, map[string]interface{}{
					"topic": stringProp("The topic to understand"),
					"grade": map[string]interface{}{"type": "number", "description": "Grade level"},
				}),
			},
			run: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				return searchTextbook(ctx, a.knowledge, stringArg(args, "topic"), "", grade, 2)
			},
		},
	}
}

func parentSystemPrompt(pc ParentContext) string {
	child := pc.Child
	parentName := strings.TrimSpace(pc.Parent.FatherName)
	if parentName == "" {
		parentName = strings.TrimSpace(pc.Parent.MotherName)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a helpful AI assistant for %s, a parent of %s (%s).\n\n", parentName, child.FullName(), child.Grade.GradeName)
	fmt.Fprintf(&b, "Child Information:\n- Student ID: %d\n- Full name: %s\n- Grade: %s\n- Class: %s\n",
		child.ID, child.FullName(), child.Grade.GradeName, child.Class.ClassName)
	if pc.Subject != "" {
		fmt.Fprintf(&b, "- Subject in focus: %s\n", pc.Subject)
	}
	b.WriteString(`
Your role:
- Help parents understand their child's academic progress
- Explain what topics their child is learning
- Identify areas where the child needs improvement
- Provide actionable suggestions for supporting their child's learning
- Be encouraging and supportive

Guidelines:
- Use clear, non-technical language
- Focus on constructive feedback
- Provide specific, actionable recommendations
- Celebrate strengths while addressing weaknesses
- Never share other students' information
- Be respectful of the parent-child relationship

Response Rule: Response should always be in markdown format

Remember: You're helping parents support their child's education, not replacing the teacher.`)
	return b.String()
}
