package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/pkg/ai"
)

const lessonPlannerSystemPrompt = "You are an expert CBSE curriculum teacher creating detailed lesson plans. Always respond with valid JSON only, no additional text."

// LessonPlanInput carries everything the planner needs about the chapter.
type LessonPlanInput struct {
	GradeName       string
	SubjectName     string
	ChapterName     string
	Sessions        int
	SessionDuration int
}

// PlannedSession is one generated session.
type PlannedSession struct {
	SessionNumber      int                   `json:"session_number"`
	LearningObjectives []string              `json:"learning_objectives"`
	TopicsCovered      []string              `json:"topics_covered"`
	TeachingFlow       []models.TeachingStep `json:"teaching_flow"`
}

// PlannedLesson is the generated body of a lesson plan.
type PlannedLesson struct {
	Sessions          []PlannedSession `json:"session_details"`
	OverallObjectives []string         `json:"overall_objectives"`
	Prerequisites     []string         `json:"prerequisites"`
	LearningOutcomes  []string         `json:"learning_outcomes"`
}

// LessonPlanningAgent drafts session-by-session plans from textbook content.
type LessonPlanningAgent interface {
	Plan(ctx context.Context, input LessonPlanInput) AgentResult[PlannedLesson]
}

type lessonPlanningAgent struct {
	llm       ai.ChatCompleter
	knowledge KnowledgeSearcher
	config    AgentConfig
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewLessonPlanningAgent constructs the planning agent.
func NewLessonPlanningAgent(llm ai.ChatCompleter, knowledge KnowledgeSearcher, config AgentConfig, logger zerolog.Logger) LessonPlanningAgent {
	return &lessonPlanningAgent{
		llm:       llm,
		knowledge: knowledge,
		config:    config.withDefaults("anthropic/claude-3.5-sonnet", 0.7, 4000, 60*time.Second),
		logger:    logger.With().Str("component", "lesson_planning_agent").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/teachmate-api/internal/service/agents"),
	}
}

func (a *lessonPlanningAgent) Plan(ctx context.Context, input LessonPlanInput) (result AgentResult[PlannedLesson]) {
	started := time.Now()
	ctx, span := a.tracer.Start(ctx, "agents.lesson_planning", trace.WithAttributes(
		attribute.String("lesson.subject", input.SubjectName),
		attribute.String("lesson.chapter", input.ChapterName),
		attribute.Int("lesson.sessions", input.Sessions),
	))
	defer func() {
		if result.Error != nil {
			span.RecordError(result.Error)
		}
		span.End()
		recordAgentCall("lesson_planning", started, result.Error)
	}()

	if input.SessionDuration <= 0 {
		input.SessionDuration = 45
	}

	chunks, err := a.retrieve(ctx, input)
	if err != nil {
		if !isProviderUnavailable(err) {
			return agentFailed[PlannedLesson](err)
		}
		a.logger.Warn().Err(err).Msg("vector search unavailable, planning from curriculum knowledge only")
	}

	content, err := a.config.complete(ctx, a.llm, lessonPlannerSystemPrompt, buildLessonPlanPrompt(input, chunks))
	if err != nil {
		return agentFailed[PlannedLesson](err)
	}

	plan, err := ai.DecodeJSON[PlannedLesson](content, lessonPlanOutputSchema)
	if err != nil {
		return agentFailed[PlannedLesson](externalError("openrouter", err))
	}

	plan, err = normalizePlannedSessions(plan, input.Sessions)
	if err != nil {
		return agentFailed[PlannedLesson](externalError("openrouter", err))
	}

	a.logger.Info().Int("sessions", len(plan.Sessions)).Int("chunks", len(chunks)).Msg("lesson plan generated")
	return agentSucceeded(plan)
}

// retrieve queries by chapter first and falls back to the whole subject.
func (a *lessonPlanningAgent) retrieve(ctx context.Context, input LessonPlanInput) ([]KnowledgeChunk, error) {
	if a.knowledge == nil {
		return nil, externalError("pinecone", ErrProviderUnavailable)
	}

	query := fmt.Sprintf("%s %s grade %s education learning teaching curriculum %d sessions",
		input.SubjectName, input.ChapterName, input.GradeName, input.Sessions)

	base := map[string]interface{}{"grade": gradeNumber(input.GradeName)}
	if subject := planningSubject(input.SubjectName); subject != "" {
		base["subject"] = subject
	}

	filter := make(map[string]interface{}, len(base)+1)
	for k, v := range base {
		filter[k] = v
	}
	if input.ChapterName != "" {
		filter["$or"] = []map[string]interface{}{
			{"chapter": input.ChapterName},
			{"topic": input.ChapterName},
			{"chapter_name": input.ChapterName},
		}
	}

	chunks, err := a.knowledge.Search(ctx, query, 200, filter)
	if err != nil {
		return nil, err
	}
	if len(chunks) > 0 {
		return chunks, nil
	}

	a.logger.Debug().Str("chapter", input.ChapterName).Msg("no chapter matches, broadening search")
	return a.knowledge.Search(ctx, query, 100, base)
}

// planningSubject keeps subject casing except English, which is indexed lowercase.
func planningSubject(subject string) string {
	if strings.EqualFold(strings.TrimSpace(subject), "english") {
		return "english"
	}
	return strings.TrimSpace(subject)
}

func curriculumType(subject string) string {
	switch strings.TrimSpace(subject) {
	case "Science", "Mathematics", "English":
		return "CBSE " + strings.TrimSpace(subject)
	default:
		return "CBSE General"
	}
}

func buildLessonPlanPrompt(input LessonPlanInput, chunks []KnowledgeChunk) string {
	grouped := groupChunks(chunks, map[string]int{
		contentTypeExplanation: 10,
		contentTypeExample:     5,
		contentTypeActivity:    5,
		contentTypeExercise:    5,
		contentTypeDefinition:  5,
	})

	analysis := truncate(strings.Join(grouped[contentTypeExplanation], "\n\n"), 2000)
	if analysis == "" {
		analysis = "No specific content found - use general curriculum knowledge"
	}

	curriculum := curriculumType(input.SubjectName)
	chapter := input.ChapterName
	grade := input.GradeName

	var b strings.Builder
	b.WriteString("Create a detailed lesson plan using ALL the provided information:\n\n")
	b.WriteString("REQUIRED INPUTS (ALL MUST BE USED):\n")
	fmt.Fprintf(&b, "- Grade: %s\n- Subject: %s\n- Chapter: %s\n- Total Sessions: %d\n- Session Duration: %d minutes\n- Curriculum: %s\n\n",
		grade, input.SubjectName, chapter, input.Sessions, input.SessionDuration, curriculum)
	fmt.Fprintf(&b, "CHAPTER CONTENT ANALYSIS:\n%s\n\n", analysis)
	b.WriteString("AVAILABLE RESOURCES:\n")
	fmt.Fprintf(&b, "- Examples: %s\n- Activities: %s\n- Exercises: %s\n- Definitions: %s\n- Total Content Chunks: %d\n\n",
		yesNo(len(grouped[contentTypeExample]) > 0),
		yesNo(len(grouped[contentTypeActivity]) > 0),
		yesNo(len(grouped[contentTypeExercise]) > 0),
		yesNo(len(grouped[contentTypeDefinition]) > 0),
		len(chunks))
	fmt.Fprintf(&b, "TASK:\nCreate a comprehensive lesson plan for %q in %s for Grade %s that MUST be divided into exactly %d sessions.\n\n",
		chapter, input.SubjectName, grade, input.Sessions)
	b.WriteString("Each session MUST include:\n")
	b.WriteString(joinNumbered([]string{
		fmt.Sprintf("Clear learning objectives aligned with %s Grade %s standards", curriculum, grade),
		fmt.Sprintf("Specific topics from %q to be covered", chapter),
		fmt.Sprintf("Detailed teaching flow with time slots (total %d minutes per session)", input.SessionDuration),
		fmt.Sprintf("Interactive activities and engagement strategies appropriate for Grade %s", grade),
	}))
	b.WriteString("\nCRITICAL REQUIREMENTS:\n")
	fmt.Fprintf(&b, "- Use Grade %s appropriate language and concepts\n", grade)
	fmt.Fprintf(&b, "- Ensure all %d sessions cover different aspects of %q\n", input.Sessions, chapter)
	fmt.Fprintf(&b, "- Each session must be exactly %d minutes\n", input.SessionDuration)
	fmt.Fprintf(&b, "- Progressive difficulty across all %d sessions\n", input.Sessions)
	fmt.Fprintf(&b, "- Include %s-specific teaching methodologies\n", input.SubjectName)
	fmt.Fprintf(&b, "- Align with %s curriculum standards\n\n", curriculum)
	b.WriteString(`OUTPUT FORMAT (JSON only, no other text):
{
  "session_details": [
    {
      "session_number": 1,
      "learning_objectives": ["objective 1", "objective 2"],
      "topics_covered": ["topic 1", "topic 2"],
      "teaching_flow": [
        {"time_slot": "0-10 min", "activity": "Introduction", "description": "What happens in this slot"}
      ]
    }
  ],
  "overall_objectives": ["..."],
  "prerequisites": ["..."],
  "learning_outcomes": ["..."]
}

NOTE: Do NOT include assessment or recommended_videos fields. They will be added later.`)

	return b.String()
}

// normalizePlannedSessions orders sessions and enforces the requested count.
func normalizePlannedSessions(plan PlannedLesson, want int) (PlannedLesson, error) {
	if len(plan.Sessions) < want {
		return plan, fmt.Errorf("model returned %d sessions, expected %d", len(plan.Sessions), want)
	}

	sort.SliceStable(plan.Sessions, func(i, j int) bool {
		return plan.Sessions[i].SessionNumber < plan.Sessions[j].SessionNumber
	})
	plan.Sessions = plan.Sessions[:want]
	for i := range plan.Sessions {
		plan.Sessions[i].SessionNumber = i + 1
	}
	return plan, nil
}
