package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/config"
	"github.com/noah-isme/teachmate-api/internal/database"
	"github.com/noah-isme/teachmate-api/internal/handler"
	"github.com/noah-isme/teachmate-api/internal/middleware"
	"github.com/noah-isme/teachmate-api/internal/repository"
	"github.com/noah-isme/teachmate-api/internal/router"
	"github.com/noah-isme/teachmate-api/internal/service"
	"github.com/noah-isme/teachmate-api/pkg/ai"
	cloud "github.com/noah-isme/teachmate-api/pkg/cloudinary"
	"github.com/noah-isme/teachmate-api/pkg/pinecone"
	"github.com/noah-isme/teachmate-api/pkg/retell"
	"github.com/noah-isme/teachmate-api/pkg/youtube"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", cfg.AppName).Logger()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	db, err := database.ConnectPostgres(startupCtx, cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	}, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("%v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(startupCtx, cfg.RedisURL, "teachmate-api")
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis not configured; chat cache and scheduler leases disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	providers := buildProviders(cfg, logger)
	validate := validator.New(validator.WithRequiredStructEnabled())

	gradeRepo := repository.NewGradeRepository(db)
	classRepo := repository.NewClassRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	chapterRepo := repository.NewChapterRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	parentRepo := repository.NewParentRepository(db)
	lessonPlanRepo := repository.NewLessonPlanRepository(db)
	materialRepo := repository.NewMaterialRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	chatRepo := repository.NewChatRepository(db)
	voiceCallRepo := repository.NewVoiceCallRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	jobRepo := repository.NewJobRepository(db)

	events := service.NewEventPublisher(natsConn, cfg.EventChannel, logger)
	notificationService := service.NewNotificationService(notificationRepo, service.NotificationFanout{
		Redis:   redisClient,
		NATS:    natsConn,
		Channel: cfg.EventChannel,
	}, validate, logger)
	jobRunner := service.NewJobRunner(jobRepo, notificationService, service.JobRunnerConfig{
		Workers:   cfg.JobWorkers,
		QueueSize: cfg.JobQueueSize,
		Timeout:   cfg.JobTimeout,
	}, logger)

	numbering := service.DefaultChapterNumbering()
	knowledge := service.NewKnowledgeBase(providers.embedder, providers.index, cfg.PineconeNamespace, logger)
	indexer := service.NewContentIndexer(providers.embedder, providers.index, logger)
	insights := service.NewLearnerInsights(submissionRepo, assessmentRepo)

	planningConfig := service.AgentConfig{Model: cfg.PlanningModel, Timeout: cfg.LLMTimeout}
	assistantConfig := service.AgentConfig{Model: cfg.AssistantModel, Timeout: cfg.LLMTimeout}
	gradingConfig := service.AgentConfig{Model: cfg.GradingModel, Timeout: cfg.GradingTimeout}

	planner := service.NewLessonPlanningAgent(providers.llm, knowledge, planningConfig, logger)
	generator := service.NewAssessmentGeneratorAgent(providers.llm, knowledge, numbering, planningConfig, logger)
	curator := service.NewContentCurationAgent(providers.videos, logger)
	grader := service.NewSubmissionGradingAgent(providers.llm, gradingConfig, logger)
	studentAgent := service.NewStudentAssistantAgent(providers.llm, knowledge, insights, assistantConfig, logger)
	parentAgent := service.NewParentAssistantAgent(providers.llm, knowledge, insights, assistantConfig, logger)

	authService := service.NewAuthService(teacherRepo, studentRepo, parentRepo, validate, cfg.JWTSecret, cfg.JWTTTL, logger)
	schoolService := service.NewSchoolService(gradeRepo, classRepo, subjectRepo, chapterRepo, validate, logger)
	peopleService := service.NewPeopleService(teacherRepo, studentRepo, parentRepo, gradeRepo, classRepo, subjectRepo, validate, logger)
	assessmentService := service.NewAssessmentService(assessmentRepo, lessonPlanRepo, generator, indexer, events, validate, logger)
	workflowService := service.NewWorkflowService(lessonPlanRepo, curator, assessmentService, indexer, events, logger)
	uploadService := service.NewUploadService(providers.storage, materialRepo, lessonPlanRepo, cfg.MaterialMaxBytes/(1024*1024), logger)
	lessonPlanService := service.NewLessonPlanService(service.LessonPlanDependencies{
		Plans:     lessonPlanRepo,
		Grades:    gradeRepo,
		Subjects:  subjectRepo,
		Chapters:  chapterRepo,
		Materials: uploadService,
		Planner:   planner,
		Workflow:  workflowService,
		Indexer:   indexer,
		Jobs:      jobRunner,
		Events:    events,
	}, validate, logger)
	submissionService := service.NewSubmissionService(submissionRepo, assessmentRepo, studentRepo, events, validate, logger)

	lease := service.NewSweepLease(redisClient, cfg.EventChannel, cfg.SchedulerLeaseTTL)
	gradingScheduler := service.NewGradingScheduler(submissionRepo, assessmentRepo, grader, lease, events, service.GradingSchedulerConfig{
		Delay: cfg.GradingDelay,
	}, logger)
	sweeper := service.NewAssessmentSweeper(assessmentRepo, lease, events, notificationService, logger)

	chatService := service.NewChatService(service.ChatDependencies{
		Conversations: chatRepo,
		Students:      studentRepo,
		Parents:       parentRepo,
		Teachers:      teacherRepo,
		StudentAgent:  studentAgent,
		ParentAgent:   parentAgent,
		Notifications: notificationService,
		Redis:         redisClient,
		NATS:          natsConn,
		ChannelBase:   cfg.EventChannel,
		CacheTTL:      cfg.ChatCacheTTL,
	}, validate, logger)
	voiceService := service.NewVoiceService(service.VoiceDependencies{
		Calls:        voiceCallRepo,
		Students:     studentRepo,
		Parents:      parentRepo,
		Caller:       providers.caller,
		StudentAgent: studentAgent,
		ParentAgent:  parentAgent,
		Knowledge:    knowledge,
		Insights:     insights,
		Numbering:    numbering,
	}, service.VoiceConfig{
		StudentAgentID: cfg.RetellStudentAgentID,
		ParentAgentID:  cfg.RetellParentAgentID,
		WebhookSecret:  cfg.RetellWebhookSecret,
	}, validate, logger)

	backgroundCtx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()

	jobRunner.Start(backgroundCtx)
	notificationService.Start(backgroundCtx)
	chatService.Start(backgroundCtx)

	var scheduler *service.Scheduler
	if cfg.SchedulersEnabled {
		scheduler, err = service.NewScheduler(service.SchedulerConfig{
			AssessmentSpec: cfg.AssessmentCron,
			GradingSpec:    cfg.GradingCron,
		}, sweeper, gradingScheduler, logger)
		if err != nil {
			log.Fatalf("failed to create scheduler: %v", err)
		}
		scheduler.Start()
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    cfg.MaterialMaxBytes + 1024*1024,
	})

	var limiterStorage fiber.Storage
	if store := middleware.NewRedisStorage(redisClient, cfg.EventChannel+":ratelimit"); store != nil {
		limiterStorage = store
	}

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		Auth:         handler.NewAuthHandler(authService, logger),
		School:       handler.NewSchoolHandler(schoolService, logger),
		People:       handler.NewPeopleHandler(peopleService, logger),
		LessonPlan:   handler.NewLessonPlanHandler(lessonPlanService, logger),
		Upload:       handler.NewUploadHandler(uploadService, logger),
		Assessment:   handler.NewAssessmentHandler(assessmentService, logger),
		Submission:   handler.NewSubmissionHandler(submissionService, gradingScheduler, logger),
		Curation:     handler.NewContentCurationHandler(workflowService, validate, logger),
		Jobs:         handler.NewJobHandler(jobRunner, logger),
		Chat:         handler.NewChatHandler(chatService, logger),
		Voice:        handler.NewVoiceHandler(voiceService, logger),
		Notification: handler.NewNotificationHandler(notificationService, logger, 30*time.Second),
		HealthProbes: healthProbes(db, redisClient),

		RateLimitStorage: limiterStorage,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, logger, func(ctx context.Context) {
		if scheduler != nil {
			if err := scheduler.Stop(ctx); err != nil {
				logger.Warn().Err(err).Msg("scheduler did not stop in time")
			}
		}
		if err := jobRunner.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("job runner did not drain in time")
		}
		cancelBackground()
	})
}

type providerSet struct {
	llm      ai.ChatCompleter
	embedder ai.Embedder
	index    pinecone.Client
	videos   youtube.Searcher
	caller   retell.Caller
	storage  service.MaterialStorage
}

// buildProviders connects the external services that are configured. Missing credentials leave
// the matching field nil so dependent operations fail with a provider-unavailable error instead
// of blocking startup.
func buildProviders(cfg config.Config, logger zerolog.Logger) providerSet {
	var set providerSet

	if client, err := ai.NewOpenRouterClient(ai.OpenRouterConfig{
		APIKey:         cfg.OpenRouterAPIKey,
		BaseURL:        cfg.OpenRouterBaseURL,
		ChatModel:      cfg.AssistantModel,
		EmbeddingModel: cfg.EmbeddingModel,
		Timeout:        cfg.LLMTimeout,
		Referer:        cfg.AppURL,
		Title:          cfg.AppName,
		Logger:         logger,
	}); err == nil {
		set.llm = client
		set.embedder = client
	} else {
		logger.Warn().Err(err).Msg("model gateway disabled")
	}

	if index, err := pinecone.New(pinecone.Config{
		APIKey:    cfg.PineconeAPIKey,
		IndexName: cfg.PineconeIndexName,
		Host:      cfg.PineconeHost,
		Timeout:   cfg.PineconeTimeout,
	}, logger); err == nil {
		set.index = index
	} else {
		logger.Warn().Err(err).Msg("vector index disabled")
	}

	if videos, err := youtube.New(context.Background(), youtube.Config{
		APIKey:  cfg.YouTubeAPIKey,
		Timeout: cfg.YouTubeTimeout,
	}, logger); err == nil {
		set.videos = videos
	} else {
		logger.Warn().Err(err).Msg("video search disabled")
	}

	if caller, err := retell.New(retell.Config{
		APIKey:        cfg.RetellAPIKey,
		BaseURL:       cfg.RetellBaseURL,
		WebhookSecret: cfg.RetellWebhookSecret,
		Timeout:       cfg.RetellTimeout,
	}, logger); err == nil {
		set.caller = caller
	} else {
		logger.Warn().Err(err).Msg("voice calls disabled")
	}

	if uploader, err := cloud.New(cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger); err == nil {
		set.storage = uploader
	} else {
		logger.Warn().Err(err).Msg("material uploads disabled")
	}

	return set
}

func healthProbes(db *gorm.DB, redisClient *redis.Client) map[string]handler.HealthProbe {
	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return probes
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger, stopBackground func(ctx context.Context)) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	stopBackground(ctx)

	logger.Info().Msg("server stopped")
}
