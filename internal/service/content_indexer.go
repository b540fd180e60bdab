package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/pkg/ai"
	"github.com/noah-isme/teachmate-api/pkg/pinecone"
)

const (
	// ContentNamespace holds vectors derived from lesson plans and assessments.
	ContentNamespace   = "educational-content"
	indexerConcurrency = 4
	upsertBatchSize    = 100
)

// Vector metadata types.
const (
	vectorTypeObjective = "lesson_objective"
	vectorTypeTopic     = "lesson_topic"
	vectorTypeQuestion  = "assessment_question"
)

// ContentIndexer keeps lesson plans and assessment questions searchable.
type ContentIndexer interface {
	IndexLessonPlan(ctx context.Context, plan models.LessonPlan) (int, error)
	IndexAssessment(ctx context.Context, assessment models.Assessment, questions []models.Question) (int, error)
	DeleteLessonPlan(ctx context.Context, plan models.LessonPlan) error
}

type indexEntry struct {
	id       string
	text     string
	metadata map[string]any
}

type contentIndexer struct {
	embedder ai.Embedder
	index    pinecone.Client
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewContentIndexer constructs the indexer. With a nil embedder or index every call fails
// with ErrProviderUnavailable.
func NewContentIndexer(embedder ai.Embedder, index pinecone.Client, logger zerolog.Logger) ContentIndexer {
	return &contentIndexer{
		embedder: embedder,
		index:    index,
		logger:   logger.With().Str("component", "content_indexer").Logger(),
		tracer:   otel.Tracer("github.com/noah-isme/teachmate-api/internal/service/indexer"),
	}
}

func lessonObjectiveID(planID uint, n int) string {
	return fmt.Sprintf("lesson-%d-obj-%d", planID, n)
}

func lessonTopicID(planID uint, session, n int) string {
	return fmt.Sprintf("lesson-%d-s%d-t%d", planID, session, n)
}

func assessmentQuestionID(assessmentID uint, questionID string) string {
	return fmt.Sprintf("assessment-%d-q-%s", assessmentID, questionID)
}

func lessonPlanEntries(plan models.LessonPlan) []indexEntry {
	subject := plan.Subject.SubjectName
	chapter := plan.Chapter.ChapterName
	base := func(kind, topic string) map[string]any {
		return map[string]any{
			"type":           kind,
			"lesson_plan_id": strconv.FormatUint(uint64(plan.ID), 10),
			"subject":        subject,
			"grade":          plan.Grade.GradeName,
			"chapter":        chapter,
			"topic":          topic,
			"text":           topic,
		}
	}

	entries := make([]indexEntry, 0, len(plan.OverallObjectives))
	for i, objective := range plan.OverallObjectives {
		entries = append(entries, indexEntry{
			id:       lessonObjectiveID(plan.ID, i),
			text:     fmt.Sprintf("%s - %s: %s", subject, chapter, objective),
			metadata: base(vectorTypeObjective, objective),
		})
	}
	for _, session := range plan.Sessions {
		for i, topic := range session.TopicsCovered {
			metadata := base(vectorTypeTopic, topic)
			metadata["session_number"] = session.SessionNumber
			entries = append(entries, indexEntry{
				id:       lessonTopicID(plan.ID, session.SessionNumber, i),
				text:     fmt.Sprintf("%s - %s - Session %d: %s", subject, chapter, session.SessionNumber, topic),
				metadata: metadata,
			})
		}
	}
	return entries
}

func (i *contentIndexer) IndexLessonPlan(ctx context.Context, plan models.LessonPlan) (int, error) {
	ctx, span := i.tracer.Start(ctx, "indexer.lesson_plan", trace.WithAttributes(attribute.Int64("lesson_plan.id", int64(plan.ID))))
	defer span.End()

	count, err := i.upsert(ctx, lessonPlanEntries(plan))
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	i.logger.Info().Uint("lesson_plan_id", plan.ID).Int("vectors", count).Msg("lesson plan indexed")
	return count, nil
}

func (i *contentIndexer) IndexAssessment(ctx context.Context, assessment models.Assessment, questions []models.Question) (int, error) {
	ctx, span := i.tracer.Start(ctx, "indexer.assessment", trace.WithAttributes(attribute.Int64("assessment.id", int64(assessment.ID))))
	defer span.End()

	entries := make([]indexEntry, 0, len(questions))
	for _, question := range questions {
		if question.QuestionID == "" {
			continue
		}
		entries = append(entries, indexEntry{
			id:   assessmentQuestionID(assessment.ID, question.QuestionID),
			text: fmt.Sprintf("%s - %s", assessment.Subject.SubjectName, question.Question),
			metadata: map[string]any{
				"type":          vectorTypeQuestion,
				"assessment_id": strconv.FormatUint(uint64(assessment.ID), 10),
				"question_id":   question.QuestionID,
				"subject":       assessment.Subject.SubjectName,
				"grade":         assessment.Grade.GradeName,
				"topic":         question.Topic,
				"difficulty":    question.Difficulty,
				"text":          question.Question,
			},
		})
	}

	count, err := i.upsert(ctx, entries)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	i.logger.Info().Uint("assessment_id", assessment.ID).Int("vectors", count).Msg("assessment indexed")
	return count, nil
}

// DeleteLessonPlan removes the vectors of a plan. Ids are derived from the plan content, so
// the plan must be passed as it was last indexed.
func (i *contentIndexer) DeleteLessonPlan(ctx context.Context, plan models.LessonPlan) error {
	if i.index == nil {
		return externalError("pinecone", ErrProviderUnavailable)
	}
	entries := lessonPlanEntries(plan)
	if len(entries) == 0 {
		return nil
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.id)
	}
	for start := 0; start < len(ids); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(ids))
		if err := i.index.Delete(ctx, pinecone.DeleteRequest{IDs: ids[start:end], Namespace: ContentNamespace}); err != nil {
			return externalError("pinecone", err)
		}
	}
	i.logger.Info().Uint("lesson_plan_id", plan.ID).Int("vectors", len(ids)).Msg("lesson plan vectors deleted")
	return nil
}

func (i *contentIndexer) upsert(ctx context.Context, entries []indexEntry) (int, error) {
	if i.embedder == nil {
		return 0, externalError("openrouter", ErrProviderUnavailable)
	}
	if i.index == nil {
		return 0, externalError("pinecone", ErrProviderUnavailable)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	vectors := make([]pinecone.Vector, len(entries))
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(indexerConcurrency)
	for idx, entry := range entries {
		idx, entry := idx, entry
		group.Go(func() error {
			values, err := i.embedder.Embed(groupCtx, strings.TrimSpace(entry.text))
			if err != nil {
				return externalError("openrouter", err)
			}
			mu.Lock()
			vectors[idx] = pinecone.Vector{ID: entry.id, Values: values, Metadata: entry.metadata}
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return 0, err
	}

	for start := 0; start < len(vectors); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(vectors))
		if _, err := i.index.Upsert(ctx, pinecone.UpsertRequest{Vectors: vectors[start:end], Namespace: ContentNamespace}); err != nil {
			return 0, externalError("pinecone", err)
		}
	}
	return len(vectors), nil
}
