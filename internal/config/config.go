package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName  string
	AppEnv   string
	AppPort  string
	AppURL   string
	LogLevel string

	DatabaseURL  string
	RedisURL     string
	NATSURL      string
	EventChannel string

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	CORSAllowOrigins string

	JWTSecret string
	JWTTTL    time.Duration

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	MaterialMaxBytes       int

	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	PlanningModel     string
	AssistantModel    string
	GradingModel      string
	EmbeddingModel    string
	LLMTimeout        time.Duration
	GradingTimeout    time.Duration

	PineconeAPIKey    string
	PineconeIndexName string
	PineconeHost      string
	PineconeNamespace string
	PineconeTimeout   time.Duration

	YouTubeAPIKey  string
	YouTubeTimeout time.Duration

	RetellAPIKey         string
	RetellBaseURL        string
	RetellWebhookSecret  string
	RetellStudentAgentID string
	RetellParentAgentID  string
	RetellTimeout        time.Duration

	AssessmentCron    string
	GradingCron       string
	GradingDelay      time.Duration
	SchedulerLeaseTTL time.Duration
	SchedulersEnabled bool

	JobWorkers   int
	JobQueueSize int
	JobTimeout   time.Duration

	ChatCacheTTL     time.Duration
	AIRateLimit      int
	AIRateLimitEvery time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("TEACHMATE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "TeachMate API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.url", "http://localhost")
	v.SetDefault("log.level", "info")
	v.SetDefault("events.channel", "teachmate")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("jwt.ttl", "720h")
	v.SetDefault("cloudinary.folder", "teachmate/materials")
	v.SetDefault("material.max_bytes", 20*1024*1024)
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openrouter.planning_model", "anthropic/claude-3.5-sonnet")
	v.SetDefault("openrouter.assistant_model", "anthropic/claude-3.5-sonnet")
	v.SetDefault("openrouter.grading_model", "openai/gpt-4o-mini")
	v.SetDefault("openrouter.embedding_model", "openai/text-embedding-3-small")
	v.SetDefault("openrouter.timeout", "60s")
	v.SetDefault("openrouter.grading_timeout", "30s")
	v.SetDefault("pinecone.index", "teachmate-resources")
	v.SetDefault("pinecone.timeout", "30s")
	v.SetDefault("youtube.timeout", "15s")
	v.SetDefault("retell.base_url", "https://api.retellai.com")
	v.SetDefault("retell.timeout", "30s")
	v.SetDefault("scheduler.assessment_cron", "@every 1m")
	v.SetDefault("scheduler.grading_cron", "@every 1m")
	v.SetDefault("scheduler.grading_delay", "1s")
	v.SetDefault("scheduler.lease_ttl", "55s")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("jobs.workers", 4)
	v.SetDefault("jobs.queue_size", 64)
	v.SetDefault("jobs.timeout", "10m")
	v.SetDefault("chat.cache_ttl", "30m")
	v.SetDefault("ai.rate_limit", 20)
	v.SetDefault("ai.rate_window", "1m")

	durations := map[string]*time.Duration{}
	cfg := Config{
		AppName:  v.GetString("app.name"),
		AppEnv:   v.GetString("app.env"),
		AppPort:  v.GetString("app.port"),
		AppURL:   v.GetString("app.url"),
		LogLevel: strings.ToLower(v.GetString("log.level")),

		DatabaseURL:  v.GetString("database.url"),
		RedisURL:     v.GetString("redis.url"),
		NATSURL:      v.GetString("nats.url"),
		EventChannel: v.GetString("events.channel"),

		DBMaxOpenConns: v.GetInt("database.max_open_conns"),
		DBMaxIdleConns: v.GetInt("database.max_idle_conns"),

		CORSAllowOrigins: strings.TrimSpace(v.GetString("cors.allow_origins")),

		JWTSecret: v.GetString("jwt.secret"),

		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		MaterialMaxBytes:       v.GetInt("material.max_bytes"),

		OpenRouterAPIKey:  v.GetString("openrouter.api_key"),
		OpenRouterBaseURL: v.GetString("openrouter.base_url"),
		PlanningModel:     v.GetString("openrouter.planning_model"),
		AssistantModel:    v.GetString("openrouter.assistant_model"),
		GradingModel:      v.GetString("openrouter.grading_model"),
		EmbeddingModel:    v.GetString("openrouter.embedding_model"),

		PineconeAPIKey:    v.GetString("pinecone.api_key"),
		PineconeIndexName: v.GetString("pinecone.index"),
		PineconeHost:      v.GetString("pinecone.host"),
		PineconeNamespace: v.GetString("pinecone.namespace"),

		YouTubeAPIKey: v.GetString("youtube.api_key"),

		RetellAPIKey:         v.GetString("retell.api_key"),
		RetellBaseURL:        v.GetString("retell.base_url"),
		RetellWebhookSecret:  v.GetString("retell.webhook_secret"),
		RetellStudentAgentID: v.GetString("retell.student_agent_id"),
		RetellParentAgentID:  v.GetString("retell.parent_agent_id"),

		AssessmentCron:    v.GetString("scheduler.assessment_cron"),
		GradingCron:       v.GetString("scheduler.grading_cron"),
		SchedulersEnabled: v.GetBool("scheduler.enabled"),

		JobWorkers:   v.GetInt("jobs.workers"),
		JobQueueSize: v.GetInt("jobs.queue_size"),

		AIRateLimit: v.GetInt("ai.rate_limit"),
	}

	durations["jwt.ttl"] = &cfg.JWTTTL
	durations["database.conn_max_lifetime"] = &cfg.DBConnMaxLifetime
	durations["openrouter.timeout"] = &cfg.LLMTimeout
	durations["openrouter.grading_timeout"] = &cfg.GradingTimeout
	durations["pinecone.timeout"] = &cfg.PineconeTimeout
	durations["youtube.timeout"] = &cfg.YouTubeTimeout
	durations["retell.timeout"] = &cfg.RetellTimeout
	durations["scheduler.grading_delay"] = &cfg.GradingDelay
	durations["scheduler.lease_ttl"] = &cfg.SchedulerLeaseTTL
	durations["jobs.timeout"] = &cfg.JobTimeout
	durations["chat.cache_ttl"] = &cfg.ChatCacheTTL
	durations["ai.rate_window"] = &cfg.AIRateLimitEvery

	for key, target := range durations {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		*target = parsed
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for key, spec := range map[string]string{"scheduler.assessment_cron": cfg.AssessmentCron, "scheduler.grading_cron": cfg.GradingCron} {
		if _, err := parser.Parse(spec); err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	if cfg.JobWorkers <= 0 {
		cfg.JobWorkers = 4
	}
	if cfg.JobQueueSize <= 0 {
		cfg.JobQueueSize = 64
	}
	if cfg.CORSAllowOrigins == "" {
		cfg.CORSAllowOrigins = "*"
	}
	if cfg.MaterialMaxBytes <= 0 {
		cfg.MaterialMaxBytes = 20 * 1024 * 1024
	}

	return cfg, nil
}
