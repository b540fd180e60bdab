package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/pkg/pinecone"
)

// memoryIndex is an in-process vector index keyed by namespace.
type memoryIndex struct {
	mu       sync.Mutex
	vectors  map[string]map[string]pinecone.Vector
	queries  []pinecone.QueryRequest
	matches  []pinecone.QueryMatch
	queryErr error
}

func newMemoryIndex() *memoryIndex {
	return &memoryIndex{vectors: make(map[string]map[string]pinecone.Vector)}
}

func (m *memoryIndex) Query(_ context.Context, req pinecone.QueryRequest) (*pinecone.QueryResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, req)
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return &pinecone.QueryResponse{Matches: m.matches}, nil
}

func (m *memoryIndex) Upsert(_ context.Context, req pinecone.UpsertRequest) (*pinecone.UpsertResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.vectors[req.Namespace]
	if !ok {
		ns = make(map[string]pinecone.Vector)
		m.vectors[req.Namespace] = ns
	}
	for _, vector := range req.Vectors {
		ns[vector.ID] = vector
	}
	return &pinecone.UpsertResponse{UpsertedCount: int64(len(req.Vectors))}, nil
}

func (m *memoryIndex) Delete(_ context.Context, req pinecone.DeleteRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range req.IDs {
		delete(m.vectors[req.Namespace], id)
	}
	return nil
}

func (m *memoryIndex) ids(namespace string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.vectors[namespace]))
	for id := range m.vectors[namespace] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func indexedPlan() models.LessonPlan {
	return models.LessonPlan{
		ID:                11,
		Subject:           models.Subject{SubjectName: "Science"},
		Grade:             models.Grade{GradeName: "Grade 8"},
		Chapter:           models.Chapter{ChapterName: "Photosynthesis"},
		OverallObjectives: []string{"Explain photosynthesis"},
		Sessions: []models.LessonPlanSession{
			{SessionNumber: 1, TopicsCovered: []string{"Chlorophyll", "Sunlight"}},
			{SessionNumber: 2, TopicsCovered: []string{"Glucose"}},
		},
	}
}

func TestIndexLessonPlanUsesStableIDs(t *testing.T) {
	index := newMemoryIndex()
	indexer := NewContentIndexer(fixedEmbedder{}, index, testLogger())

	count, err := indexer.IndexLessonPlan(context.Background(), indexedPlan())
	require.NoError(t, err)
	require.Equal(t, 4, count)
	require.Equal(t, []string{"lesson-11-obj-0", "lesson-11-s1-t0", "lesson-11-s1-t1", "lesson-11-s2-t0"}, index.ids(ContentNamespace))

	vector := index.vectors[ContentNamespace]["lesson-11-s1-t1"]
	require.Equal(t, vectorTypeTopic, vector.Metadata["type"])
	require.Equal(t, "11", vector.Metadata["lesson_plan_id"])
	require.Equal(t, 1, vector.Metadata["session_number"])
	require.NotEmpty(t, vector.Values)

	// reindexing overwrites in place
	_, err = indexer.IndexLessonPlan(context.Background(), indexedPlan())
	require.NoError(t, err)
	require.Len(t, index.ids(ContentNamespace), 4)

	require.NoError(t, indexer.DeleteLessonPlan(context.Background(), indexedPlan()))
	require.Empty(t, index.ids(ContentNamespace))
}

func TestIndexAssessmentSkipsQuestionsWithoutID(t *testing.T) {
	index := newMemoryIndex()
	indexer := NewContentIndexer(fixedEmbedder{}, index, testLogger())

	questions := sampleQuestions()
	questions[0].QuestionID = "q1"
	count, err := indexer.IndexAssessment(context.Background(), models.Assessment{ID: 5, Subject: models.Subject{SubjectName: "Science"}}, questions)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, []string{"assessment-5-q-q1"}, index.ids(ContentNamespace))
}

func TestIndexerProviderFailures(t *testing.T) {
	_, err := NewContentIndexer(nil, newMemoryIndex(), testLogger()).IndexLessonPlan(context.Background(), indexedPlan())
	require.ErrorIs(t, err, ErrProviderUnavailable)

	_, err = NewContentIndexer(fixedEmbedder{}, nil, testLogger()).IndexLessonPlan(context.Background(), indexedPlan())
	require.ErrorIs(t, err, ErrProviderUnavailable)

	index := newMemoryIndex()
	_, err = NewContentIndexer(fixedEmbedder{err: errors.New("embedding quota")}, index, testLogger()).IndexLessonPlan(context.Background(), indexedPlan())
	var external *ExternalError
	require.ErrorAs(t, err, &external)
	require.Equal(t, "openrouter", external.Provider)
	require.Empty(t, index.ids(ContentNamespace), "nothing is upserted when an embedding fails")
}

func TestKnowledgeBaseSearchMapsMetadata(t *testing.T) {
	index := newMemoryIndex()
	index.matches = []pinecone.QueryMatch{
		{ID: "c1", Score: 0.91, Metadata: map[string]any{"textPreview": "Chlorophyll is green.", "text": "long text", "contentType": "definition", "chapter": float64(103), "topic": "Pigments"}},
		{ID: "c2", Score: 0.72, Metadata: map[string]any{"text": "Leaves make food."}},
	}
	kb := NewKnowledgeBase(fixedEmbedder{}, index, "textbooks", testLogger())

	chunks, err := kb.Search(context.Background(), "why are leaves green", 3, map[string]interface{}{"grade": 8})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Equal(t, KnowledgeChunk{ID: "c1", Text: "Chlorophyll is green.", ContentType: "definition", Chapter: "103", Topic: "Pigments", Score: 0.91}, chunks[0])
	require.Equal(t, "Leaves make food.", chunks[1].Text)
	require.Equal(t, contentTypeExplanation, chunks[1].ContentType)

	require.Len(t, index.queries, 1)
	require.Equal(t, "textbooks", index.queries[0].Namespace)
	require.Equal(t, 3, index.queries[0].TopK)
	require.True(t, index.queries[0].IncludeMetadata)

	index.queryErr = errors.New("index unavailable")
	_, err = kb.Search(context.Background(), "anything", 3, nil)
	var external *ExternalError
	require.ErrorAs(t, err, &external)
	require.Equal(t, "pinecone", external.Provider)

	var missing *KnowledgeBase
	_, err = missing.Search(context.Background(), "anything", 3, nil)
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestGroupChunksCapsPerType(t *testing.T) {
	grouped := groupChunks([]KnowledgeChunk{
		{Text: "a", ContentType: contentTypeExample},
		{Text: "b", ContentType: contentTypeExample},
		{Text: "c", ContentType: "diagram"},
		{Text: " ", ContentType: contentTypeDefinition},
	}, map[string]int{contentTypeExample: 1, contentTypeExplanation: 2, contentTypeDefinition: 1})

	require.Equal(t, []string{"a"}, grouped[contentTypeExample])
	require.Equal(t, []string{"c"}, grouped[contentTypeExplanation])
	require.Empty(t, grouped[contentTypeDefinition])
}

func TestGradeAndSubjectNormalisation(t *testing.T) {
	require.Equal(t, 8, gradeNumber("Grade 8"))
	require.Equal(t, 10, gradeNumber("10th"))
	require.Equal(t, defaultGradeNumber, gradeNumber("Kindergarten"))
	require.Equal(t, "Mathematics", indexSubject("maths"))
	require.Equal(t, "Science", indexSubject("General Science"))
	require.Empty(t, indexSubject(""))
}
