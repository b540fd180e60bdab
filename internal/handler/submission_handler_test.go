package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestSubmitIsStudentOnly(t *testing.T) {
	env := setupApp(t)
	payload := map[string]interface{}{
		"assessment_id": 999,
		"answers":       []map[string]string{{"question_id": "q1", "student_answer": "Chlorophyll"}},
	}

	teacherToken := login(t, env.app, teacherEmail, "teacher")
	resp := doRequest(t, env.app, http.MethodPost, "/api/submission/submit", teacherToken, payload)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	studentToken := login(t, env.app, studentEmail, "student")
	resp = doRequest(t, env.app, http.MethodPost, "/api/submission/submit", studentToken, payload)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode, "the student id comes from the token")

	resp = doRequest(t, env.app, http.MethodPost, "/api/submission/submit", studentToken, map[string]interface{}{"assessment_id": 999})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGradingTriggerIsTeacherOnly(t *testing.T) {
	env := setupApp(t)

	studentToken := login(t, env.app, studentEmail, "student")
	resp := doRequest(t, env.app, http.MethodPost, "/api/submission/grade/trigger", studentToken, nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	teacherToken := login(t, env.app, teacherEmail, "teacher")
	resp = doRequest(t, env.app, http.MethodPost, "/api/submission/grade/trigger", teacherToken, nil)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	var data struct {
		Started        bool `json:"started"`
		AlreadyRunning bool `json:"already_running"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &data))
	require.True(t, data.Started || data.AlreadyRunning)
}

func TestSubmissionBadParams(t *testing.T) {
	env := setupApp(t)
	token := login(t, env.app, teacherEmail, "teacher")

	resp := doRequest(t, env.app, http.MethodGet, "/api/submission/abc", token, nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, env.app, http.MethodGet, "/api/submission/42", token, nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
