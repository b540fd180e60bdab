package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/config"
	"github.com/noah-isme/teachmate-api/internal/database"
	"github.com/noah-isme/teachmate-api/internal/handler"
	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/repository"
	"github.com/noah-isme/teachmate-api/internal/router"
	"github.com/noah-isme/teachmate-api/internal/service"
)

const (
	testSecret     = "handler-secret"
	testWebhookKey = "voice-secret"
	testPassword   = "secret-pass"
	teacherEmail   = "meera@school.test"
	studentEmail   = "arjun@school.test"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Details json.RawMessage `json:"details"`
}

type testApp struct {
	app           *fiber.App
	db            *gorm.DB
	student       models.Student
	teacher       models.Teacher
	notifications service.NotificationService
}

func setupApp(t *testing.T) testApp {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	grade := models.Grade{GradeName: "Grade 8"}
	require.NoError(t, db.Create(&grade).Error)
	class := models.Class{ClassName: "8A", ClassStrength: 30, GradeID: grade.ID}
	require.NoError(t, db.Omit("Grade").Create(&class).Error)
	teacher := models.Teacher{Name: "Meera Iyer", Email: teacherEmail, PasswordHash: string(hash), IsActive: true}
	require.NoError(t, db.Create(&teacher).Error)
	student := models.Student{FirstName: "Arjun", LastName: "Rao", Email: studentEmail, PasswordHash: string(hash), ClassID: class.ID, GradeID: grade.ID, RollNumber: "8A-01", IsActive: true}
	require.NoError(t, db.Omit("Class", "Grade").Create(&student).Error)

	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())

	teachers := repository.NewTeacherRepository(db)
	students := repository.NewStudentRepository(db)
	parents := repository.NewParentRepository(db)
	submissions := repository.NewSubmissionRepository(db)
	assessments := repository.NewAssessmentRepository(db)
	events := service.NewEventPublisher(nil, "", logger)

	authService := service.NewAuthService(teachers, students, parents, validate, testSecret, time.Hour, logger)
	submissionService := service.NewSubmissionService(submissions, assessments, students, events, validate, logger)
	grading := service.NewGradingScheduler(submissions, assessments, service.NewSubmissionGradingAgent(nil, service.AgentConfig{}, logger),
		service.NewSweepLease(nil, "", time.Minute), events, service.GradingSchedulerConfig{}, logger)
	t.Cleanup(grading.Stop)

	voiceService := service.NewVoiceService(service.VoiceDependencies{
		Calls:    repository.NewVoiceCallRepository(db),
		Students: students,
		Parents:  parents,
	}, service.VoiceConfig{WebhookSecret: testWebhookKey}, validate, logger)

	notifications := service.NewNotificationService(repository.NewNotificationRepository(db), service.NotificationFanout{}, validate, logger)
	uploads := service.NewUploadService(nil, repository.NewMaterialRepository(db), repository.NewLessonPlanRepository(db), 1, logger)
	jobs := service.NewJobRunner(repository.NewJobRepository(db), notifications, service.JobRunnerConfig{Workers: 1}, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", JWTSecret: testSecret, AIRateLimit: 100, AIRateLimitEvery: time.Minute}, router.Dependencies{
		Auth:         handler.NewAuthHandler(authService, logger),
		Submission:   handler.NewSubmissionHandler(submissionService, grading, logger),
		Voice:        handler.NewVoiceHandler(voiceService, logger),
		Jobs:         handler.NewJobHandler(jobs, logger),
		Upload:       handler.NewUploadHandler(uploads, logger),
		Notification: handler.NewNotificationHandler(notifications, logger, time.Second),
	})

	return testApp{app: app, db: db, student: student, teacher: teacher, notifications: notifications}
}

func doRequest(t *testing.T, app *fiber.App, method, path, token string, body interface{}, headers ...string) *http.Response {
	t.Helper()

	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(v)
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()
	var out envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func login(t *testing.T, app *fiber.App, email, role string) string {
	t.Helper()
	resp := doRequest(t, app, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": testPassword,
		"role":     role,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}
