package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/pkg/youtube"
)

const (
	videosPerTopic      = 3
	videoSearchResults  = 10
	curationConcurrency = 2
	curationStagger     = 500 * time.Millisecond
)

type simulation struct {
	Title string
	URL   string
	Type  string
}

type subjectResources struct {
	Channels    []string
	Keywords    []string
	Simulations map[string]simulation
}

var curationResources = map[string]subjectResources{
	"Science": {
		Channels: []string{"Khan Academy", "CrashCourse", "Bozeman Science", "Amoeba Sisters", "Professor Dave Explains", "TED-Ed"},
		Keywords: []string{"science", "experiment", "explanation", "CBSE", "education"},
		Simulations: map[string]simulation{
			"photosynthesis": {Title: "Energy Forms and Changes", URL: "https://phet.colorado.edu/en/simulations/energy-forms-and-changes", Type: "PhET Simulation"},
			"electricity":    {Title: "Circuit Construction Kit", URL: "https://phet.colorado.edu/en/simulations/circuit-construction-kit-dc", Type: "PhET Simulation"},
			"forces":         {Title: "Forces and Motion", URL: "https://phet.colorado.edu/en/simulations/forces-and-motion-basics", Type: "PhET Simulation"},
			"light":          {Title: "Bending Light", URL: "https://phet.colorado.edu/en/simulations/bending-light", Type: "PhET Simulation"},
			"matter":         {Title: "States of Matter", URL: "https://phet.colorado.edu/en/simulations/states-of-matter", Type: "PhET Simulation"},
		},
	},
	"Math": {
		Channels: []string{"Khan Academy", "3Blue1Brown", "Numberphile", "PatrickJMT", "Math Antics", "TED-Ed"},
		Keywords: []string{"math", "mathematics", "tutorial", "problem solving", "CBSE"},
		Simulations: map[string]simulation{
			"algebra":  {Title: "Desmos Graphing Calculator", URL: "https://www.desmos.com/calculator", Type: "Interactive Tool"},
			"geometry": {Title: "GeoGebra Geometry", URL: "https://www.geogebra.org/geometry", Type: "Interactive Tool"},
			"graphing": {Title: "Desmos Graphing", URL: "https://www.desmos.com/calculator", Type: "Interactive Tool"},
		},
	},
	"English": {
		Channels: []string{"CrashCourse", "TED-Ed", "The School of Life", "Khan Academy"},
		Keywords: []string{"literature", "grammar", "writing", "english", "CBSE"},
	},
}

// ErrUnsupportedSubject is returned for subjects without a curation profile.
var ErrUnsupportedSubject = fmt.Errorf("subject not supported for curation, supported: Science, Math, English")

// CurationInput lists the topics to find resources for.
type CurationInput struct {
	SubjectName string
	GradeName   string
	Topics      []string
}

// CurationResult holds the ranked videos and matched simulations.
type CurationResult struct {
	Videos      []models.SessionResource
	ByTopic     map[string][]models.SessionResource
	Simulations []models.SessionResource
}

// ContentCurationAgent finds videos and simulations for lesson topics.
type ContentCurationAgent interface {
	Curate(ctx context.Context, input CurationInput) AgentResult[CurationResult]
}

type contentCurationAgent struct {
	videos  youtube.Searcher
	logger  zerolog.Logger
	tracer  trace.Tracer
	stagger time.Duration
}

// NewContentCurationAgent constructs the curation agent. A nil searcher disables video search.
func NewContentCurationAgent(videos youtube.Searcher, logger zerolog.Logger) ContentCurationAgent {
	return &contentCurationAgent{
		videos:  videos,
		logger:  logger.With().Str("component", "content_curation_agent").Logger(),
		tracer:  otel.Tracer("github.com/noah-isme/teachmate-api/internal/service/agents"),
		stagger: curationStagger,
	}
}

// curationSubject maps subject names onto a curation profile key.
func curationSubject(subject string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(subject))
	switch lower {
	case "mathematics", "maths", "math":
		return "Math", true
	case "science":
		return "Science", true
	case "english":
		return "English", true
	}
	return "", false
}

func (a *contentCurationAgent) Curate(ctx context.Context, input CurationInput) (result AgentResult[CurationResult]) {
	started := time.Now()
	ctx, span := a.tracer.Start(ctx, "agents.content_curation", trace.WithAttributes(
		attribute.String("curation.subject", input.SubjectName),
		attribute.Int("curation.topics", len(input.Topics)),
	))
	defer func() {
		if result.Error != nil {
			span.RecordError(result.Error)
		}
		span.End()
		recordAgentCall("content_curation", started, result.Error)
	}()

	subject, ok := curationSubject(input.SubjectName)
	if !ok {
		return agentFailed[CurationResult](fmt.Errorf("%w: %q", ErrUnsupportedSubject, input.SubjectName))
	}
	if len(input.Topics) == 0 {
		return agentFailed[CurationResult](ErrNoTopics)
	}
	if a.videos == nil {
		return agentFailed[CurationResult](externalError("youtube", ErrProviderUnavailable))
	}
	profile := curationResources[subject]

	var (
		mu      sync.Mutex
		byTopic = make(map[string][]models.SessionResource, len(input.Topics))
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(curationConcurrency)
	for i, topic := range input.Topics {
		i, topic := i, topic
		group.Go(func() error {
			select {
			case <-groupCtx.Done():
				return groupCtx.Err()
			case <-time.After(time.Duration(i) * a.stagger):
			}

			videos, err := a.searchTopic(groupCtx, topic, subject, input.GradeName, profile)
			if err != nil {
				// a failed topic leaves the others untouched
				a.logger.Warn().Err(err).Str("topic", topic).Msg("video search failed")
				return nil
			}
			mu.Lock()
			byTopic[topic] = videos
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return agentFailed[CurationResult](err)
	}

	out := CurationResult{
		ByTopic:     make(map[string][]models.SessionResource, len(input.Topics)),
		Videos:      make([]models.SessionResource, 0),
		Simulations: matchSimulations(input.Topics, profile),
	}
	for _, topic := range input.Topics {
		videos := byTopic[topic]
		if videos == nil {
			videos = []models.SessionResource{}
		}
		out.ByTopic[topic] = videos
		out.Videos = append(out.Videos, videos...)
	}

	a.logger.Info().Int("videos", len(out.Videos)).Int("simulations", len(out.Simulations)).Msg("content curated")
	return agentSucceeded(out)
}

func (a *contentCurationAgent) searchTopic(ctx context.Context, topic, subject, grade string, profile subjectResources) ([]models.SessionResource, error) {
	query := fmt.Sprintf("%s %s %s grade %s", topic, subject, strings.Join(profile.Keywords, " "), grade)

	hits, err := a.videos.SearchVideos(ctx, query, videoSearchResults)
	if err != nil {
		return nil, externalError("youtube", err)
	}

	resources := make([]models.SessionResource, 0, len(hits))
	for _, hit := range hits {
		resources = append(resources, models.SessionResource{
			Kind:           models.ResourceKindVideo,
			Title:          hit.Title,
			URL:            hit.URL,
			Topic:          topic,
			Channel:        hit.ChannelTitle,
			ThumbnailURL:   hit.ThumbnailURL,
			Duration:       formatVideoDuration(hit.Duration),
			RelevanceScore: videoRelevance(hit, topic, profile.Channels),
		})
	}

	sort.SliceStable(resources, func(i, j int) bool {
		return resources[i].RelevanceScore > resources[j].RelevanceScore
	})
	if len(resources) > videosPerTopic {
		resources = resources[:videosPerTopic]
	}
	return resources, nil
}

// videoRelevance scores title match, channel reputation, length and engagement, capped at 1.
func videoRelevance(video youtube.Video, topic string, channels []string) float64 {
	score := 0.0

	title := strings.ToLower(video.Title)
	topicLower := strings.ToLower(strings.TrimSpace(topic))
	if topicLower != "" && strings.Contains(title, topicLower) {
		score += 0.4
	} else {
		for _, word := range strings.Fields(title) {
			if strings.Contains(topicLower, word) {
				score += 0.2
				break
			}
		}
	}

	for _, channel := range channels {
		if strings.Contains(video.ChannelTitle, channel) {
			score += 0.3
			break
		}
	}

	minutes := video.Duration.Minutes()
	switch {
	case minutes >= 5 && minutes <= 15:
		score += 0.2
	case minutes >= 3 && minutes <= 20:
		score += 0.1
	}

	if video.ViewCount > 0 {
		ratio := float64(video.LikeCount) / float64(video.ViewCount)
		switch {
		case ratio > 0.02:
			score += 0.1
		case ratio > 0.01:
			score += 0.05
		}
	}

	if score > 1 {
		return 1
	}
	return score
}

func formatVideoDuration(d time.Duration) string {
	total := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func matchSimulations(topics []string, profile subjectResources) []models.SessionResource {
	keys := make([]string, 0, len(profile.Simulations))
	for key := range profile.Simulations {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]models.SessionResource, 0)
	for _, topic := range topics {
		topicLower := strings.ToLower(strings.TrimSpace(topic))
		firstWord := ""
		if fields := strings.Fields(topicLower); len(fields) > 0 {
			firstWord = fields[0]
		}
		for _, key := range keys {
			if strings.Contains(topicLower, key) || (firstWord != "" && strings.Contains(key, firstWord)) {
				sim := profile.Simulations[key]
				out = append(out, models.SessionResource{
					Kind:        models.ResourceKindSimulation,
					Title:       sim.Title,
					URL:         sim.URL,
					Topic:       topic,
					ContentType: sim.Type,
				})
			}
		}
	}
	return out
}

// DistributeResources attaches curated videos and simulations to the sessions whose topics
// overlap them. Uploaded materials already on a session are kept.
func DistributeResources(sessions []models.LessonPlanSession, curated CurationResult) {
	for i := range sessions {
		attachCurated(&sessions[i], curated)
	}
}

// attachCurated replaces the session's curated resources and keeps uploaded materials.
func attachCurated(session *models.LessonPlanSession, curated CurationResult) {
	resources := make([]models.SessionResource, 0)
	for _, existing := range session.Resources {
		if existing.Kind == models.ResourceKindMaterial {
			resources = append(resources, existing)
		}
	}
	for _, video := range curated.Videos {
		if topicsOverlap(session.TopicsCovered, video.Topic) {
			resources = append(resources, video)
		}
	}
	for _, sim := range curated.Simulations {
		if topicsOverlap(session.TopicsCovered, sim.Topic) {
			resources = append(resources, sim)
		}
	}
	session.Resources = resources
}

func topicsOverlap(sessionTopics []string, topic string) bool {
	needle := strings.ToLower(strings.TrimSpace(topic))
	if needle == "" {
		return false
	}
	for _, candidate := range sessionTopics {
		lower := strings.ToLower(strings.TrimSpace(candidate))
		if lower == "" {
			continue
		}
		if strings.Contains(lower, needle) || strings.Contains(needle, lower) {
			return true
		}
	}
	return false
}
