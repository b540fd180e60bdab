package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/noah-isme/teachmate-api/pkg/ai"
	"github.com/noah-isme/teachmate-api/pkg/pinecone"
)

const defaultGradeNumber = 8

// Textbook chunk content types.
const (
	contentTypeExplanation = "explanation"
	contentTypeExample     = "example"
	contentTypeActivity    = "activity"
	contentTypeExercise    = "exercise"
	contentTypeDefinition  = "definition"
)

// KnowledgeChunk is one retrieved textbook passage.
type KnowledgeChunk struct {
	ID          string
	Text        string
	ContentType string
	Chapter     string
	Topic       string
	Section     string
	Score       float64
}

// KnowledgeSearcher runs semantic searches over textbook chunks.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, topK int, filter map[string]interface{}) ([]KnowledgeChunk, error)
}

// KnowledgeBase embeds queries and searches the textbook namespace of the vector index.
type KnowledgeBase struct {
	embedder  ai.Embedder
	index     pinecone.Client
	namespace string
	logger    zerolog.Logger
}

// NewKnowledgeBase wires an embedder and a vector index. Either may be nil when the
// provider is not configured; searches then fail with ErrProviderUnavailable.
func NewKnowledgeBase(embedder ai.Embedder, index pinecone.Client, namespace string, logger zerolog.Logger) *KnowledgeBase {
	return &KnowledgeBase{
		embedder:  embedder,
		index:     index,
		namespace: namespace,
		logger:    logger.With().Str("component", "knowledge_base").Logger(),
	}
}

// Search embeds the query and returns the best matching chunks.
func (k *KnowledgeBase) Search(ctx context.Context, query string, topK int, filter map[string]interface{}) ([]KnowledgeChunk, error) {
	if k == nil || k.embedder == nil {
		return nil, externalError("openrouter", ErrProviderUnavailable)
	}
	if k.index == nil {
		return nil, externalError("pinecone", ErrProviderUnavailable)
	}

	vector, err := k.embedder.Embed(ctx, query)
	if err != nil {
		return nil, externalError("openrouter", err)
	}

	res, err := k.index.Query(ctx, pinecone.QueryRequest{
		Namespace:       k.namespace,
		Vector:          vector,
		TopK:            topK,
		Filter:          filter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, externalError("pinecone", err)
	}

	chunks := make([]KnowledgeChunk, 0, len(res.Matches))
	for _, match := range res.Matches {
		text := match.MetadataString("textPreview")
		if text == "" {
			text = match.MetadataString("text")
		}
		contentType := match.MetadataString("contentType")
		if contentType == "" {
			contentType = contentTypeExplanation
		}
		chunks = append(chunks, KnowledgeChunk{
			ID:          match.ID,
			Text:        text,
			ContentType: contentType,
			Chapter:     match.MetadataString("chapter"),
			Topic:       match.MetadataString("topic"),
			Section:     match.MetadataString("section"),
			Score:       match.Score,
		})
	}

	k.logger.Debug().Int("matches", len(chunks)).Int("top_k", topK).Msg("knowledge base search")
	return chunks, nil
}

// indexSubject maps a subject name onto the casing used by the textbook metadata.
func indexSubject(subject string) string {
	lower := strings.ToLower(strings.TrimSpace(subject))
	switch {
	case lower == "":
		return ""
	case strings.Contains(lower, "math"):
		return "Mathematics"
	case strings.Contains(lower, "science"):
		return "Science"
	case strings.Contains(lower, "english"):
		return "english"
	default:
		return strings.TrimSpace(subject)
	}
}

// gradeNumber extracts the digits of a grade name ("Grade 8" → 8), falling back to 8.
func gradeNumber(gradeName string) int {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, gradeName)
	if digits == "" {
		return defaultGradeNumber
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return defaultGradeNumber
	}
	return n
}

// groupChunks buckets chunk texts by content type keeping at most limit items per type.
func groupChunks(chunks []KnowledgeChunk, limits map[string]int) map[string][]string {
	grouped := make(map[string][]string)
	for _, chunk := range chunks {
		kind := chunk.ContentType
		if _, ok := limits[kind]; !ok {
			kind = contentTypeExplanation
		}
		if strings.TrimSpace(chunk.Text) == "" || len(grouped[kind]) >= limits[kind] {
			continue
		}
		grouped[kind] = append(grouped[kind], chunk.Text)
	}
	return grouped
}

func truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}

func yesNo(ok bool) string {
	if ok {
		return "Yes"
	}
	return "No"
}

func isProviderUnavailable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}

func joinNumbered(items []string) string {
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	return b.String()
}
