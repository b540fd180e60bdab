package youtube

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// ErrNotConfigured is returned when the API key is missing.
var ErrNotConfigured = errors.New("youtube is not configured")

// Config holds Data API settings. Endpoint overrides the API base URL in tests.
type Config struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
}

// Video is an embeddable search hit enriched with statistics.
type Video struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	ChannelTitle string        `json:"channel_title"`
	ThumbnailURL string        `json:"thumbnail_url"`
	URL          string        `json:"url"`
	Duration     time.Duration `json:"duration"`
	ViewCount    uint64        `json:"view_count"`
	LikeCount    uint64        `json:"like_count"`
}

// Searcher finds educational videos.
type Searcher interface {
	SearchVideos(ctx context.Context, query string, maxResults int64) ([]Video, error)
}

// Client wraps the YouTube Data API v3.
type Client struct {
	svc     *yt.Service
	timeout time.Duration
	logger  zerolog.Logger
}

// New builds a YouTube client.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init youtube service: %w", err)
	}

	return &Client{
		svc:     svc,
		timeout: cfg.Timeout,
		logger:  logger.With().Str("component", "youtube").Logger(),
	}, nil
}

// SearchVideos runs a medium-length, embeddable English video search and loads details
// for every hit.
func (c *Client) SearchVideos(ctx context.Context, query string, maxResults int64) ([]Video, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	search, err := c.svc.Search.List([]string{"snippet"}).
		Q(query).
		Type("video").
		MaxResults(maxResults).
		VideoDuration("medium").
		VideoEmbeddable("true").
		RelevanceLanguage("en").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube search: %w", err)
	}

	ids := make([]string, 0, len(search.Items))
	for _, item := range search.Items {
		if item.Id != nil && item.Id.VideoId != "" {
			ids = append(ids, item.Id.VideoId)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	details, err := c.svc.Videos.List([]string{"snippet", "contentDetails", "statistics"}).
		Id(ids...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube videos: %w", err)
	}

	videos := make([]Video, 0, len(details.Items))
	for _, item := range details.Items {
		if item.Snippet != nil && !englishOrUnset(item.Snippet.DefaultLanguage, item.Snippet.DefaultAudioLanguage) {
			continue
		}
		video := Video{
			ID:  item.Id,
			URL: "https://www.youtube.com/watch?v=" + item.Id,
		}
		if item.Snippet != nil {
			video.Title = item.Snippet.Title
			video.Description = item.Snippet.Description
			video.ChannelTitle = item.Snippet.ChannelTitle
			video.ThumbnailURL = thumbnail(item.Snippet.Thumbnails)
		}
		if item.ContentDetails != nil {
			if d, err := ParseDuration(item.ContentDetails.Duration); err == nil {
				video.Duration = d
			}
		}
		if item.Statistics != nil {
			video.ViewCount = item.Statistics.ViewCount
			video.LikeCount = item.Statistics.LikeCount
		}
		videos = append(videos, video)
	}

	c.logger.Debug().Str("query", query).Int("videos", len(videos)).Msg("youtube search completed")
	return videos, nil
}

// englishOrUnset keeps videos without a declared language; most English uploads omit it.
func englishOrUnset(languages ...string) bool {
	for _, lang := range languages {
		if lang != "" {
			return strings.HasPrefix(strings.ToLower(lang), "en")
		}
	}
	return true
}

func thumbnail(details *yt.ThumbnailDetails) string {
	if details == nil {
		return ""
	}
	for _, t := range []*yt.Thumbnail{details.High, details.Medium, details.Default} {
		if t != nil && t.Url != "" {
			return t.Url
		}
	}
	return ""
}

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDuration converts an ISO 8601 duration such as PT12M30S.
func ParseDuration(value string) (time.Duration, error) {
	m := isoDuration.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return 0, fmt.Errorf("invalid iso8601 duration %q", value)
	}
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, err
		}
		total += time.Duration(n) * unit
	}
	return total, nil
}
