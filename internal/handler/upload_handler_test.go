package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/repository"
)

func seedLessonPlan(t *testing.T, env testApp) models.LessonPlan {
	t.Helper()
	subject := models.Subject{SubjectName: "Science", GradeID: env.student.GradeID}
	require.NoError(t, env.db.Omit("Grade", "Class").Create(&subject).Error)
	chapter := models.Chapter{ChapterName: "Photosynthesis", ChapterNumber: 3, SubjectID: subject.ID, GradeID: env.student.GradeID}
	require.NoError(t, env.db.Omit("Subject", "Grade").Create(&chapter).Error)

	plan := models.LessonPlan{
		TeacherID:     env.teacher.ID,
		SubjectID:     subject.ID,
		GradeID:       env.student.GradeID,
		ChapterID:     chapter.ID,
		ChapterNumber: 3,
		TotalSessions: 1,
		Sessions:      []models.LessonPlanSession{{SessionNumber: 1}},
		Status:        models.LessonPlanStatusDraft,
		IsActive:      true,
	}
	require.NoError(t, repository.NewLessonPlanRepository(env.db).Create(context.Background(), &plan))
	return plan
}

func materialForm(t *testing.T, name string, content []byte) ([]byte, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body.Bytes(), writer.FormDataContentType()
}

func TestSessionResources(t *testing.T) {
	env := setupApp(t)
	plan := seedLessonPlan(t, env)
	resources := fmt.Sprintf("/api/lesson-plan/%d/session/1/resources", plan.ID)

	studentToken := login(t, env.app, studentEmail, "student")
	resp := doRequest(t, env.app, http.MethodGet, resources, studentToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var items []json.RawMessage
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &items))
	require.Empty(t, items)

	body, contentType := materialForm(t, "notes.txt", []byte("leaf notes"))
	resp = doRequest(t, env.app, http.MethodPost, resources, studentToken, body, "Content-Type", contentType)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	teacherToken := login(t, env.app, teacherEmail, "teacher")
	resp = doRequest(t, env.app, http.MethodPost, resources, teacherToken, body, "Content-Type", contentType)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode, "no storage is configured")

	resp = doRequest(t, env.app, http.MethodPost, resources, teacherToken, nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "file is required", decodeEnvelope(t, resp).Message)
}

func TestSessionResourcesLookupErrors(t *testing.T) {
	env := setupApp(t)
	plan := seedLessonPlan(t, env)
	token := login(t, env.app, teacherEmail, "teacher")

	resp := doRequest(t, env.app, http.MethodGet, fmt.Sprintf("/api/lesson-plan/%d/session/0/resources", plan.ID), token, nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, env.app, http.MethodGet, fmt.Sprintf("/api/lesson-plan/%d/session/4/resources", plan.ID), token, nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = doRequest(t, env.app, http.MethodGet, "/api/lesson-plan/9999/session/1/resources", token, nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
