package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/database"
	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/repository"
	"github.com/noah-isme/teachmate-api/pkg/ai"
)

const fixturePassword = "secret-pass"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// background workers share the in-memory database through a single connection
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func nopEvents() EventPublisher {
	return NewEventPublisher(nil, "", testLogger())
}

type schoolFixture struct {
	Grade   models.Grade
	Class   models.Class
	Subject models.Subject
	Chapter models.Chapter
	Teacher models.Teacher
	Student models.Student
	Parent  models.Parent
}

func seedSchool(t *testing.T, db *gorm.DB) schoolFixture {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(fixturePassword), bcrypt.MinCost)
	require.NoError(t, err)

	var f schoolFixture
	f.Grade = models.Grade{GradeName: "Grade 8"}
	require.NoError(t, db.Create(&f.Grade).Error)

	f.Class = models.Class{ClassName: "8A", ClassStrength: 30, GradeID: f.Grade.ID}
	require.NoError(t, db.Omit("Grade").Create(&f.Class).Error)

	f.Subject = models.Subject{SubjectName: "Science", GradeID: f.Grade.ID}
	require.NoError(t, db.Omit("Grade", "Class").Create(&f.Subject).Error)

	f.Chapter = models.Chapter{ChapterName: "Photosynthesis", ChapterNumber: 3, SubjectID: f.Subject.ID, GradeID: f.Grade.ID}
	require.NoError(t, db.Omit("Subject", "Grade").Create(&f.Chapter).Error)

	f.Teacher = models.Teacher{Name: "Meera Iyer", Email: "meera@school.test", PasswordHash: string(hash), IsActive: true}
	require.NoError(t, db.Create(&f.Teacher).Error)
	require.NoError(t, db.Model(&f.Teacher).Association("Classes").Append(&f.Class))

	f.Student = models.Student{
		FirstName:    "Arjun",
		LastName:     "Rao",
		Email:        "arjun@school.test",
		PasswordHash: string(hash),
		ClassID:      f.Class.ID,
		GradeID:      f.Grade.ID,
		RollNumber:   "8A-01",
		IsActive:     true,
	}
	require.NoError(t, db.Omit("Class", "Grade").Create(&f.Student).Error)

	f.Parent = models.Parent{FatherName: "Vikram Rao", Email: "vikram@home.test", PasswordHash: string(hash), IsActive: true}
	require.NoError(t, db.Create(&f.Parent).Error)
	require.NoError(t, db.Model(&f.Parent).Association("Children").Append(&f.Student))

	return f
}

func sampleQuestions() []models.Question {
	return []models.Question{
		{
			Question:  "Which pigment absorbs light?",
			InputType: models.InputTypeMCQ,
			Marks:     1,
			Answers: []models.AnswerOption{
				{Option: "Chlorophyll", IsCorrect: true},
				{Option: "Keratin"},
			},
		},
		{
			Question:  "Explain why leaves are green.",
			InputType: models.InputTypeShortAnswer,
			Marks:     2,
			Answers:   []models.AnswerOption{{Option: "Chlorophyll reflects green light.", IsCorrect: true}},
		},
	}
}

// seedAssessment stores an assessment with the sample questions in the given status and window.
func seedAssessment(t *testing.T, db *gorm.DB, f schoolFixture, status string, opensOn, dueDate time.Time) (models.Assessment, models.AssessmentQuestions) {
	t.Helper()

	assessment := models.Assessment{
		Title:          "Photosynthesis check",
		AssessmentType: models.AssessmentTypeChapter,
		OpensOn:        opensOn.UTC(),
		DueDate:        dueDate.UTC(),
		Status:         status,
		ClassID:        &f.Class.ID,
		GradeID:        f.Grade.ID,
		SubjectID:      f.Subject.ID,
		TeacherID:      f.Teacher.ID,
		Topics:         []string{"Chlorophyll"},
		Duration:       30,
		IsActive:       true,
	}
	questions := models.AssessmentQuestions{Questions: sampleQuestions()}
	require.NoError(t, repository.NewAssessmentRepository(db).Create(context.Background(), &assessment, &questions))
	return assessment, questions
}

// scriptedChat replays canned completions in order and records every request.
type scriptedChat struct {
	mu        sync.Mutex
	responses []ai.ChatResponse
	err       error
	requests  []ai.ChatRequest
}

func (s *scriptedChat) Chat(_ context.Context, req ai.ChatRequest) (ai.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return ai.ChatResponse{}, s.err
	}
	if len(s.responses) == 0 {
		return ai.ChatResponse{}, fmt.Errorf("no scripted response left")
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return next, nil
}

func (s *scriptedChat) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func replies(contents ...string) []ai.ChatResponse {
	out := make([]ai.ChatResponse, 0, len(contents))
	for _, content := range contents {
		out = append(out, ai.ChatResponse{Content: content, FinishReason: "stop"})
	}
	return out
}

type fixedEmbedder struct {
	err error
}

func (e fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text)), 0.5, 0.25}, nil
}

// recordingEvents keeps published event names for assertions.
type recordingEvents struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingEvents) Publish(_ context.Context, event string, _ map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEvents) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func uintPtr(v uint) *uint {
	return &v
}
