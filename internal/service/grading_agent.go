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

const graderSystemPrompt = "You are an expert CBSE teacher. Always respond with valid JSON only."

// AnswerJudgement is the graded outcome of one answer.
type AnswerJudgement struct {
	Marks    float64
	Accuracy float64
	Feedback string
}

// SubmissionGradingAgent scores individual answers. Objective questions are graded by option
// matching; everything else goes through the model judge and the scoring bands.
type SubmissionGradingAgent interface {
	GradeAnswer(ctx context.Context, question models.Question, answer models.SubmissionAnswer) AgentResult[AnswerJudgement]
}

type judgeReply struct {
	Marks    float64 `json:"marks"`
	Accuracy float64 `json:"accuracy_percentage"`
	Feedback string  `json:"feedback"`
}

type submissionGradingAgent struct {
	llm    ai.ChatCompleter
	config AgentConfig
	logger zerolog.Logger
	tracer trace.Tracer
}

// NewSubmissionGradingAgent constructs the grader.
func NewSubmissionGradingAgent(llm ai.ChatCompleter, config AgentConfig, logger zerolog.Logger) SubmissionGradingAgent {
	return &submissionGradingAgent{
		llm:    llm,
		config: config.withDefaults("openai/gpt-4o-mini", 0.2, 500, 30*time.Second),
		logger: logger.With().Str("component", "grading_agent").Logger(),
		tracer: otel.Tracer("github.com/noah-isme/teachmate-api/internal/service/agents"),
	}
}

func (a *submissionGradingAgent) GradeAnswer(ctx context.Context, question models.Question, answer models.SubmissionAnswer) (result AgentResult[AnswerJudgement]) {
	maxMarks := answer.MaxMarks
	if maxMarks <= 0 {
		maxMarks = question.Marks
	}

	if question.IsObjective() {
		marks, feedback := GradeObjective(question, answer.StudentAnswer)
		accuracy := 0.0
		if marks > 0 {
			accuracy = 100
		}
		return agentSucceeded(AnswerJudgement{Marks: marks, Accuracy: accuracy, Feedback: feedback})
	}

	if strings.TrimSpace(answer.StudentAnswer) == "" {
		return agentSucceeded(AnswerJudgement{Marks: 0, Accuracy: 0, Feedback: "No answer provided."})
	}

	started := time.Now()
	ctx, span := a.tracer.Start(ctx, "agents.grading", trace.WithAttributes(
		attribute.String("question.id", question.QuestionID),
		attribute.String("question.input_type", question.InputType),
	))
	defer func() {
		if result.Error != nil {
			span.RecordError(result.Error)
		}
		span.End()
		recordAgentCall("grading", started, result.Error)
	}()

	expected := question.ExpectedAnswer()
	if expected == "" {
		expected = "No expected answer provided"
	}
	questionText := answer.QuestionText
	if questionText == "" {
		questionText = question.Question
	}

	content, err := a.config.complete(ctx, a.llm, graderSystemPrompt, buildGradingPrompt(questionText, expected, answer.StudentAnswer, maxMarks))
	if err != nil {
		return agentFailed[AnswerJudgement](err)
	}

	reply, err := ai.DecodeJSON[judgeReply](content, gradingOutputSchema)
	if err != nil {
		return agentFailed[AnswerJudgement](externalError("openrouter", err))
	}

	return agentSucceeded(AnswerJudgement{
		Marks:    BandMarks(reply.Accuracy, maxMarks),
		Accuracy: reply.Accuracy,
		Feedback: strings.TrimSpace(reply.Feedback),
	})
}

func buildGradingPrompt(question, expected, studentAnswer string, maxMarks float64) string {
	return fmt.Sprintf(`You are an expert CBSE teacher grading a student's answer.

QUESTION:
%s

EXPECTED ANSWER:
%s

STUDENT'S ANSWER:
%s

MAXIMUM MARKS: %g

GRADING CRITERIA:
- If the answer is >= 90%% accurate: Award FULL marks (%g)
- If the answer is >= 50%% accurate but < 90%%: Award HALF marks (%g)
- If the answer is < 50%% accurate: Award 0 marks

Evaluate the student's answer based on:
1. Correctness of key concepts
2. Completeness of the answer
3. Clarity and coherence
4. Relevance to the question

Respond ONLY with valid JSON in this exact format:
{
  "marks": <number>,
  "accuracy_percentage": <number>,
  "feedback": "<brief feedback explaining the marks>"
}`, question, expected, studentAnswer, maxMarks, maxMarks, maxMarks/2)
}
