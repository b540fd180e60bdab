package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/teachmate-api/internal/config"
	"github.com/noah-isme/teachmate-api/internal/handler"
	"github.com/noah-isme/teachmate-api/internal/middleware"
	"github.com/noah-isme/teachmate-api/internal/observability"
)

// Dependencies groups router dependencies for registration. Nil handlers are skipped.
type Dependencies struct {
	Auth         *handler.AuthHandler
	School       *handler.SchoolHandler
	People       *handler.PeopleHandler
	LessonPlan   *handler.LessonPlanHandler
	Upload       *handler.UploadHandler
	Assessment   *handler.AssessmentHandler
	Submission   *handler.SubmissionHandler
	Curation     *handler.ContentCurationHandler
	Jobs         *handler.JobHandler
	Chat         *handler.ChatHandler
	Voice        *handler.VoiceHandler
	Notification *handler.NotificationHandler

	HealthProbes map[string]handler.HealthProbe

	// JWTMiddleware defaults to JWTProtected with the configured secret.
	JWTMiddleware fiber.Handler
	// AILimiter defaults to a per-user limit built from the AI rate settings.
	AILimiter fiber.Handler
	// RateLimitStorage shares limiter counters across replicas; nil keeps them in memory.
	RateLimitStorage fiber.Storage
}

// Register wires the HTTP routes into the fiber application. Public routes are registered
// before the authenticated /api group so they answer without a token.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	public := app.Group("/api", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	public.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	if deps.Auth != nil {
		deps.Auth.RegisterPublic(public.Group("/auth"))
	}
	if deps.People != nil {
		deps.People.RegisterTeacherSignup(public.Group("/teacher"))
	}
	if deps.Voice != nil {
		deps.Voice.RegisterCallbacks(public.Group("/voice"), public.Group("/voice-functions"))
	}

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}
	aiLimit := deps.AILimiter
	if aiLimit == nil {
		aiLimit = middleware.RateLimit("ai", cfg.AIRateLimit, cfg.AIRateLimitEvery, deps.RateLimitStorage)
	}

	api := app.Group("/api", jwtMiddleware)

	if deps.Auth != nil {
		deps.Auth.Register(api.Group("/auth"))
	}

	if deps.School != nil {
		deps.School.RegisterGrades(api.Group("/grade"))
		deps.School.RegisterClasses(api.Group("/class"))
		deps.School.RegisterSubjects(api.Group("/subject"))
		deps.School.RegisterChapters(api.Group("/chapter"))
	}

	if deps.People != nil {
		deps.People.RegisterTeachers(api.Group("/teacher"))
		deps.People.RegisterStudents(api.Group("/student"))
		deps.People.RegisterParents(api.Group("/parents"))
	}

	plans := api.Group("/lesson-plan")
	if deps.LessonPlan != nil {
		deps.LessonPlan.Register(plans, aiLimit)
	}
	if deps.Upload != nil {
		deps.Upload.Register(plans)
	}

	if deps.Assessment != nil {
		deps.Assessment.Register(api.Group("/assessment"), aiLimit)
	}
	if deps.Submission != nil {
		deps.Submission.Register(api.Group("/submission"))
	}
	if deps.Curation != nil {
		deps.Curation.Register(api.Group("/content-curation"), aiLimit)
	}
	if deps.Jobs != nil {
		deps.Jobs.Register(api.Group("/jobs", middleware.RequireRole(middleware.AuthRoleTeacher)))
	}
	if deps.Chat != nil {
		deps.Chat.Register(api.Group("/chat"), aiLimit)
	}
	if deps.Voice != nil {
		deps.Voice.Register(api.Group("/voice"))
	}
	if deps.Notification != nil {
		deps.Notification.Register(api.Group("/notifications"))
	}
}
