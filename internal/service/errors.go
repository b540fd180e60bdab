package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/teachmate-api/pkg/ai"
)

// Not found errors.
var (
	ErrGradeNotFound        = errors.New("grade not found")
	ErrClassNotFound        = errors.New("class not found")
	ErrSubjectNotFound      = errors.New("subject not found")
	ErrChapterNotFound      = errors.New("chapter not found")
	ErrTeacherNotFound      = errors.New("teacher not found")
	ErrStudentNotFound      = errors.New("student not found")
	ErrParentNotFound       = errors.New("parent not found")
	ErrLessonPlanNotFound   = errors.New("lesson plan not found")
	ErrSessionNotFound      = errors.New("session not found")
	ErrAssessmentNotFound   = errors.New("assessment not found")
	ErrSubmissionNotFound   = errors.New("submission not found")
	ErrConversationNotFound = errors.New("chat session not found")
	ErrVoiceCallNotFound    = errors.New("voice call not found")
	ErrJobNotFound          = errors.New("job not found")
	ErrNotificationNotFound = errors.New("notification not found")
)

// Validation errors.
var (
	ErrInvalidDateWindow      = errors.New("opens_on must be before due_date")
	ErrInvalidSessionCount    = errors.New("sessions must be between 1 and 20")
	ErrInvalidSessionDuration = errors.New("session duration must be between 30 and 120 minutes")
	ErrInvalidStatus          = errors.New("invalid status")
	ErrInvalidAnswers         = errors.New("answers do not match the assessment questions")
	ErrInvalidFileType        = errors.New("unsupported file type")
	ErrNoTopics               = errors.New("at least one topic is required")
	ErrNotificationEmpty      = errors.New("notification message is empty")
)

// State conflict errors.
var (
	ErrSessionAlreadyCompleted = errors.New("session is already completed")
	ErrSessionNotCompleted     = errors.New("session must be completed before creating its assessment")
	ErrLessonPlanNotCompleted  = errors.New("lesson plan must be completed before generating the chapter assessment")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrAssessmentNotActive     = errors.New("assessment is not accepting submissions")
	ErrConversationClosed      = errors.New("chat session is closed")
)

// Conflict and auth errors.
var (
	ErrDuplicateSubmission = errors.New("submission already exists for this assessment")
	ErrDuplicateAccount    = errors.New("an account with this email already exists")
	ErrDuplicateRecord     = errors.New("a record with the same name already exists")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrAccountInactive     = errors.New("account is inactive")
)

// Provider errors.
var (
	ErrProviderUnavailable = errors.New("provider is not configured")
	ErrNoJSONInResponse    = ai.ErrNoJSON
	ErrGradingInProgress   = errors.New("grading already in progress")
)

// ExternalError wraps a failure of an external provider.
type ExternalError struct {
	Provider string
	Err      error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ExternalError) Unwrap() error {
	return e.Err
}

func externalError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var existing *ExternalError
	if errors.As(err, &existing) {
		return err
	}
	return &ExternalError{Provider: provider, Err: err}
}

// AgentResult is the outcome of an agent call. Provider failures are reported through
// Success=false and Error instead of a second return value.
type AgentResult[T any] struct {
	Success bool
	Data    T
	Error   error
}

func agentSucceeded[T any](data T) AgentResult[T] {
	return AgentResult[T]{Success: true, Data: data}
}

func agentFailed[T any](err error) AgentResult[T] {
	return AgentResult[T]{Error: err}
}

// PublicErrorMessage returns text safe to show to clients. Provider failures are reduced to
// the provider name; the cause is only logged.
func PublicErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var external *ExternalError
	if errors.As(err, &external) {
		return fmt.Sprintf("%s request failed", external.Provider)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "operation timed out"
	}
	return err.Error()
}
