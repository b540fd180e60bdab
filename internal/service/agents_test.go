package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/pkg/youtube"
)

const plannedLessonJSON = "Here is the plan:\n```json\n" + `{
	"session_details": [
		{"session_number": 5, "topics_covered": ["Glucose"]},
		{"session_number": 2, "topics_covered": ["Chlorophyll"], "learning_objectives": ["Name the pigment"]},
		{"session_number": 9, "topics_covered": ["Stomata"]}
	],
	"overall_objectives": ["Explain photosynthesis"],
	"prerequisites": ["Cell structure"]
}` + "\n```"

func TestLessonPlanningAgentOrdersAndTrimsSessions(t *testing.T) {
	llm := &scriptedChat{responses: replies(plannedLessonJSON)}
	agent := NewLessonPlanningAgent(llm, nil, AgentConfig{}, testLogger())

	result := agent.Plan(context.Background(), LessonPlanInput{GradeName: "Grade 8", SubjectName: "Science", ChapterName: "Photosynthesis", Sessions: 2})
	require.NoError(t, result.Error, "planning continues without retrieval")
	require.True(t, result.Success)

	sessions := result.Data.Sessions
	require.Len(t, sessions, 2)
	require.Equal(t, 1, sessions[0].SessionNumber)
	require.Equal(t, []string{"Chlorophyll"}, sessions[0].TopicsCovered)
	require.Equal(t, 2, sessions[1].SessionNumber)
	require.Equal(t, []string{"Glucose"}, sessions[1].TopicsCovered)
	require.Equal(t, []string{"Explain photosynthesis"}, result.Data.OverallObjectives)

	require.Equal(t, 1, llm.calls())
	require.Equal(t, "anthropic/claude-3.5-sonnet", llm.requests[0].Model)
}

func TestLessonPlanningAgentSearchesChapterFirst(t *testing.T) {
	knowledge := &capturingKnowledge{chunks: []KnowledgeChunk{{Text: "Chlorophyll absorbs red and blue light.", ContentType: contentTypeExplanation}}}
	llm := &scriptedChat{responses: replies(plannedLessonJSON)}
	agent := NewLessonPlanningAgent(llm, knowledge, AgentConfig{}, testLogger())

	result := agent.Plan(context.Background(), LessonPlanInput{GradeName: "Grade 8", SubjectName: "Science", ChapterName: "Photosynthesis", Sessions: 1})
	require.NoError(t, result.Error)

	require.Len(t, knowledge.filters, 1)
	filter := knowledge.filters[0]
	require.Equal(t, 8, filter["grade"])
	require.Equal(t, "Science", filter["subject"])
	require.Contains(t, filter, "$or")
	require.Contains(t, llm.requests[0].Messages[1].Content, "Chlorophyll absorbs red and blue light.")
}

func TestLessonPlanningAgentRejectsBadOutput(t *testing.T) {
	cases := map[string]string{
		"no json":         "I cannot help with that.",
		"missing topics":  `{"session_details": [{"session_number": 1}]}`,
		"empty sessions":  `{"session_details": []}`,
		"too few":         `{"session_details": [{"session_number": 1, "topics_covered": ["Glucose"]}]}`,
		"string sessions": `{"session_details": [{"session_number": "one", "topics_covered": []}]}`,
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			agent := NewLessonPlanningAgent(&scriptedChat{responses: replies(reply)}, nil, AgentConfig{}, testLogger())
			result := agent.Plan(context.Background(), LessonPlanInput{SubjectName: "Science", ChapterName: "Photosynthesis", Sessions: 2})
			require.False(t, result.Success)

			var external *ExternalError
			require.ErrorAs(t, result.Error, &external)
			require.Equal(t, "openrouter", external.Provider)
		})
	}

	result := NewLessonPlanningAgent(nil, nil, AgentConfig{}, testLogger()).Plan(context.Background(), LessonPlanInput{Sessions: 1})
	require.ErrorIs(t, result.Error, ErrProviderUnavailable)
}

const generatedQuestionsJSON = `{"questions": [
	{"question_id": "model-7", "order": 4, "question": "Which pigment traps light?", "input_type": "MCQ", "marks": 1,
	 "answers": [{"option": "Chlorophyll", "is_correct": true}, {"option": "Keratin"}]},
	{"question": "Explain why leaves are green.", "input_type": "Short Answer", "marks": 3, "difficulty": "Hard"}
]}`

func TestAssessmentGeneratorWritesQuestionsFromTextbook(t *testing.T) {
	knowledge := &capturingKnowledge{chunks: []KnowledgeChunk{{Text: "Chlorophyll reflects green light.", ContentType: contentTypeDefinition}}}
	llm := &scriptedChat{responses: replies(generatedQuestionsJSON)}
	agent := NewAssessmentGeneratorAgent(llm, knowledge, DefaultChapterNumbering(), AgentConfig{}, testLogger())

	result := agent.GenerateQuestions(context.Background(), QuestionInput{SubjectName: "Science", GradeName: "Grade 8", ChapterNumber: 3, Topics: []string{"Chlorophyll", "Leaves"}})
	require.NoError(t, result.Error)
	require.Len(t, result.Data, 2)

	first := result.Data[0]
	require.Empty(t, first.QuestionID, "ids are assigned when the assessment is saved")
	require.Zero(t, first.Order)
	require.Equal(t, "Medium", first.Difficulty)
	require.Equal(t, []string{"Chlorophyll"}, first.CorrectOptions())
	require.Equal(t, "Hard", result.Data[1].Difficulty)

	filter := knowledge.filters[0]
	require.Equal(t, "103", filter["chapter"])
	require.Equal(t, 8, filter["grade"])
	require.Equal(t, "Science", filter["subject"])
	require.Contains(t, llm.requests[0].Messages[1].Content, "Chlorophyll reflects green light.")
}

func TestAssessmentGeneratorFailures(t *testing.T) {
	input := QuestionInput{SubjectName: "English", GradeName: "Grade 8", ChapterNumber: 2, Topics: []string{"Tenses"}}

	t.Run("no topics", func(t *testing.T) {
		agent := NewAssessmentGeneratorAgent(&scriptedChat{}, &capturingKnowledge{}, DefaultChapterNumbering(), AgentConfig{}, testLogger())
		result := agent.GenerateQuestions(context.Background(), QuestionInput{SubjectName: "Science"})
		require.ErrorIs(t, result.Error, ErrNoTopics)
	})

	t.Run("no retrieval", func(t *testing.T) {
		agent := NewAssessmentGeneratorAgent(&scriptedChat{}, nil, DefaultChapterNumbering(), AgentConfig{}, testLogger())
		result := agent.GenerateQuestions(context.Background(), input)
		require.ErrorIs(t, result.Error, ErrProviderUnavailable)
	})

	t.Run("no content", func(t *testing.T) {
		knowledge := &capturingKnowledge{}
		llm := &scriptedChat{}
		agent := NewAssessmentGeneratorAgent(llm, knowledge, DefaultChapterNumbering(), AgentConfig{}, testLogger())
		result := agent.GenerateQuestions(context.Background(), input)
		require.ErrorIs(t, result.Error, ErrNoTextbookContent)
		require.Zero(t, llm.calls())
		require.Equal(t, "english", knowledge.filters[0]["subject"])
		require.Equal(t, "2", knowledge.filters[0]["chapter"])
	})

	t.Run("unknown input type", func(t *testing.T) {
		knowledge := &capturingKnowledge{chunks: []KnowledgeChunk{{Text: "Past tense describes finished actions."}}}
		llm := &scriptedChat{responses: replies(`{"questions": [{"question": "Define tense", "input_type": "Essay", "marks": 2}]}`)}
		agent := NewAssessmentGeneratorAgent(llm, knowledge, DefaultChapterNumbering(), AgentConfig{}, testLogger())
		result := agent.GenerateQuestions(context.Background(), input)

		var external *ExternalError
		require.ErrorAs(t, result.Error, &external)
		require.Equal(t, "openrouter", external.Provider)
	})
}

func TestGradingAgentUsesScoringBands(t *testing.T) {
	question := models.Question{QuestionID: "q2", Question: "Why are leaves green?", InputType: models.InputTypeShortAnswer, Marks: 4}
	answer := models.SubmissionAnswer{QuestionID: "q2", StudentAnswer: "They reflect green light.", MaxMarks: 4}

	cases := []struct {
		reply string
		marks float64
	}{
		{`{"accuracy_percentage": 95, "feedback": " Well explained. "}`, 4},
		{`{"accuracy_percentage": 60}`, 2},
		{`{"accuracy_percentage": 20}`, 0},
	}
	for _, tc := range cases {
		agent := NewSubmissionGradingAgent(&scriptedChat{responses: replies(tc.reply)}, AgentConfig{}, testLogger())
		result := agent.GradeAnswer(context.Background(), question, answer)
		require.NoError(t, result.Error)
		require.Equal(t, tc.marks, result.Data.Marks, tc.reply)
	}

	agent := NewSubmissionGradingAgent(&scriptedChat{responses: replies(`{"accuracy_percentage": 95, "feedback": " Well explained. "}`)}, AgentConfig{}, testLogger())
	require.Equal(t, "Well explained.", agent.GradeAnswer(context.Background(), question, answer).Data.Feedback)

	agent = NewSubmissionGradingAgent(&scriptedChat{responses: replies(`{"accuracy_percentage": 140}`)}, AgentConfig{}, testLogger())
	result := agent.GradeAnswer(context.Background(), question, answer)
	var external *ExternalError
	require.ErrorAs(t, result.Error, &external, "accuracy above 100 fails the schema")

	llm := &scriptedChat{}
	agent = NewSubmissionGradingAgent(llm, AgentConfig{}, testLogger())
	blank := agent.GradeAnswer(context.Background(), question, models.SubmissionAnswer{QuestionID: "q2", StudentAnswer: "  "})
	require.NoError(t, blank.Error)
	require.Zero(t, blank.Data.Marks)
	require.Zero(t, llm.calls(), "blank answers never reach the model")
}

type stubSearcher struct {
	mu      sync.Mutex
	queries []string
	videos  map[string][]youtube.Video
}

func (s *stubSearcher) SearchVideos(_ context.Context, query string, _ int64) ([]youtube.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	for prefix, videos := range s.videos {
		if strings.HasPrefix(query, prefix) {
			return videos, nil
		}
	}
	return nil, errors.New("quota exceeded")
}

func TestContentCurationRanksVideosAndMatchesSimulations(t *testing.T) {
	searcher := &stubSearcher{videos: map[string][]youtube.Video{
		"Photosynthesis in leaves": {
			{Title: "Cooking with plants", ChannelTitle: "Somebody", URL: "https://youtu.be/b", Duration: 40 * time.Minute},
			{Title: "Photosynthesis in leaves explained", ChannelTitle: "Khan Academy", URL: "https://youtu.be/a", Duration: 10 * time.Minute, ViewCount: 1000, LikeCount: 50},
		},
	}}
	agent := NewContentCurationAgent(searcher, testLogger())
	agent.(*contentCurationAgent).stagger = 0

	result := agent.Curate(context.Background(), CurationInput{SubjectName: "science", GradeName: "8", Topics: []string{"Photosynthesis in leaves", "Electricity basics"}})
	require.NoError(t, result.Error)

	videos := result.Data.ByTopic["Photosynthesis in leaves"]
	require.Len(t, videos, 2)
	require.Equal(t, "https://youtu.be/a", videos[0].URL)
	require.InDelta(t, 1.0, videos[0].RelevanceScore, 1e-9)
	require.Equal(t, "10:00", videos[0].Duration)
	require.Equal(t, models.ResourceKindVideo, videos[0].Kind)
	require.Empty(t, result.Data.ByTopic["Electricity basics"], "a failed search leaves the topic empty")
	require.Len(t, result.Data.Videos, 2)

	require.Len(t, result.Data.Simulations, 2)
	require.Equal(t, "Energy Forms and Changes", result.Data.Simulations[0].Title)
	require.Equal(t, "Circuit Construction Kit", result.Data.Simulations[1].Title)
	require.Len(t, searcher.queries, 2)

	sessions := []models.LessonPlanSession{
		{SessionNumber: 1, TopicsCovered: []string{"photosynthesis"}, Resources: []models.SessionResource{
			{Kind: models.ResourceKindMaterial, Title: "Worksheet"},
			{Kind: models.ResourceKindVideo, Title: "Stale video"},
		}},
		{SessionNumber: 2, TopicsCovered: []string{"Electricity basics"}},
	}
	DistributeResources(sessions, result.Data)

	require.Len(t, sessions[0].Resources, 4)
	require.Equal(t, "Worksheet", sessions[0].Resources[0].Title)
	require.Len(t, sessions[1].Resources, 1)
	require.Equal(t, models.ResourceKindSimulation, sessions[1].Resources[0].Kind)
}

func TestContentCurationRejectsInput(t *testing.T) {
	agent := NewContentCurationAgent(&stubSearcher{}, testLogger())

	require.ErrorIs(t, agent.Curate(context.Background(), CurationInput{SubjectName: "History", Topics: []string{"Mughals"}}).Error, ErrUnsupportedSubject)
	require.ErrorIs(t, agent.Curate(context.Background(), CurationInput{SubjectName: "Maths"}).Error, ErrNoTopics)

	result := NewContentCurationAgent(nil, testLogger()).Curate(context.Background(), CurationInput{SubjectName: "Maths", Topics: []string{"Algebra"}})
	require.ErrorIs(t, result.Error, ErrProviderUnavailable)
}
