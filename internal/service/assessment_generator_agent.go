package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/pkg/ai"
)

const questionWriterSystemPrompt = "You are an expert CBSE teacher creating assessment questions. Generate questions ONLY from the provided textbook content. Always respond with valid JSON only."

// ErrNoTextbookContent is returned when retrieval finds nothing for the requested topics.
var ErrNoTextbookContent = errors.New("no content found for these topics")

// QuestionInput identifies the chapter and topics to assess.
type QuestionInput struct {
	SubjectName   string
	GradeName     string
	ChapterNumber int
	Topics        []string
}

// AssessmentGeneratorAgent writes questions grounded in retrieved textbook content.
type AssessmentGeneratorAgent interface {
	GenerateQuestions(ctx context.Context, input QuestionInput) AgentResult[[]models.Question]
}

type assessmentGeneratorAgent struct {
	llm       ai.ChatCompleter
	knowledge KnowledgeSearcher
	numbering ChapterNumberingPolicy
	config    AgentConfig
	logger    zerolog.Logger
	tracer    trace.Tracer
}

type generatedQuestions struct {
	Questions []models.Question `json:"questions"`
}

// NewAssessmentGeneratorAgent constructs the question writer.
func NewAssessmentGeneratorAgent(llm ai.ChatCompleter, knowledge KnowledgeSearcher, numbering ChapterNumberingPolicy, config AgentConfig, logger zerolog.Logger) AssessmentGeneratorAgent {
	return &assessmentGeneratorAgent{
		llm:       llm,
		knowledge: knowledge,
		numbering: numbering,
		config:    config.withDefaults("anthropic/claude-3.5-sonnet", 0.7, 4000, 60*time.Second),
		logger:    logger.With().Str("component", "assessment_generator_agent").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/teachmate-api/internal/service/agents"),
	}
}

func (a *assessmentGeneratorAgent) GenerateQuestions(ctx context.Context, input QuestionInput) (result AgentResult[[]models.Question]) {
	started := time.Now()
	ctx, span := a.tracer.Start(ctx, "agents.assessment_generator", trace.WithAttributes(
		attribute.String("assessment.subject", input.SubjectName),
		attribute.Int("assessment.chapter", input.ChapterNumber),
		attribute.Int("assessment.topics", len(input.Topics)),
	))
	defer func() {
		if result.Error != nil {
			span.RecordError(result.Error)
		}
		span.End()
		recordAgentCall("assessment_generator", started, result.Error)
	}()

	if len(input.Topics) == 0 {
		return agentFailed[[]models.Question](ErrNoTopics)
	}
	if a.knowledge == nil {
		return agentFailed[[]models.Question](externalError("pinecone", ErrProviderUnavailable))
	}

	filter := map[string]interface{}{
		"grade":   gradeNumber(input.GradeName),
		"chapter": strconv.Itoa(a.numbering.IndexNumber(input.SubjectName, input.ChapterNumber)),
	}
	if subject := planningSubject(input.SubjectName); subject != "" {
		filter["subject"] = subject
	}

	chunks, err := a.knowledge.Search(ctx, strings.Join(input.Topics, " "), 100, filter)
	if err != nil {
		return agentFailed[[]models.Question](err)
	}
	if len(chunks) == 0 {
		return agentFailed[[]models.Question](ErrNoTextbookContent)
	}

	content, err := a.config.complete(ctx, a.llm, questionWriterSystemPrompt, buildQuestionPrompt(input.Topics, chunks))
	if err != nil {
		return agentFailed[[]models.Question](err)
	}

	decoded, err := ai.DecodeJSON[generatedQuestions](content, questionsOutputSchema)
	if err != nil {
		return agentFailed[[]models.Question](externalError("openrouter", err))
	}

	questions := make([]models.Question, 0, len(decoded.Questions))
	for _, q := range decoded.Questions {
		q.QuestionID = ""
		q.Order = 0
		if q.Difficulty == "" {
			q.Difficulty = "Medium"
		}
		questions = append(questions, q)
	}

	a.logger.Info().Int("questions", len(questions)).Int("chunks", len(chunks)).Msg("assessment questions generated")
	return agentSucceeded(questions)
}

func buildQuestionPrompt(topics []string, chunks []KnowledgeChunk) string {
	grouped := groupChunks(chunks, map[string]int{
		contentTypeExplanation: 10,
		contentTypeExample:     10,
		contentTypeDefinition:  10,
		contentTypeExercise:    10,
	})

	var b strings.Builder
	b.WriteString("Generate assessment questions based ONLY on the following textbook content.\n\n")
	b.WriteString("TOPICS TO ASSESS:\n")
	b.WriteString(strings.Join(topics, ", "))
	b.WriteString("\n\nTEXTBOOK CONTENT:\n\nDefinitions:\n")
	b.WriteString(truncate(strings.Join(grouped[contentTypeDefinition], "\n\n"), 1000))
	b.WriteString("\n\nExplanations:\n")
	b.WriteString(truncate(strings.Join(grouped[contentTypeExplanation], "\n\n"), 1500))
	b.WriteString("\n\nExamples:\n")
	b.WriteString(truncate(strings.Join(grouped[contentTypeExample], "\n\n"), 1000))
	b.WriteString(`

REQUIREMENTS:
Generate exactly 10 questions with the following distribution:

1. 5 MCQ questions (2 marks each)
   - 4 options each
   - Mark correct answer
   - Mix of easy and medium difficulty

2. 2 Fill in the Blank questions (1 mark each)
   - Single word or short phrase answer
   - Easy difficulty

3. 2 Short Answer questions (2 marks each)
   - 2-3 sentence answers
   - Medium difficulty

4. 1 Long Answer question (4 marks)
   - Detailed explanation required
   - Hard difficulty

IMPORTANT RULES:
- Questions MUST be answerable from the given textbook content
- Do NOT add external information
- Ensure questions test understanding, not just memorization

OUTPUT FORMAT (JSON only):
{
  "questions": [
    {
      "question": "Question text here",
      "input_type": "MCQ",
      "answers": [
        {"option": "Option A", "is_correct": true, "explanation": "Why this is correct"},
        {"option": "Option B", "is_correct": false, "explanation": ""},
        {"option": "Option C", "is_correct": false, "explanation": ""},
        {"option": "Option D", "is_correct": false, "explanation": ""}
      ],
      "marks": 2,
      "difficulty": "Easy",
      "topic": "Topic name"
    },
    {
      "question": "Fill in the blank: _____ is the process...",
      "input_type": "Fill in the Blank",
      "answers": [{"option": "Expected word", "is_correct": true, "explanation": ""}],
      "marks": 1,
      "difficulty": "Easy",
      "topic": "Topic name"
    },
    {
      "question": "Short or long answer question?",
      "input_type": "Short Answer",
      "answers": [{"option": "Expected answer points", "is_correct": true, "explanation": ""}],
      "marks": 2,
      "difficulty": "Medium",
      "topic": "Topic name"
    }
  ]
}`)
	return b.String()
}
