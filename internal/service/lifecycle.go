package service

import (
	"time"

	"github.com/noah-isme/teachmate-api/internal/models"
)

var lessonPlanTransitions = map[string][]string{
	models.LessonPlanStatusDraft:     {models.LessonPlanStatusActive, models.LessonPlanStatusArchived},
	models.LessonPlanStatusActive:    {models.LessonPlanStatusCompleted, models.LessonPlanStatusArchived},
	models.LessonPlanStatusCompleted: {models.LessonPlanStatusArchived},
	models.LessonPlanStatusArchived:  {},
}

// CanTransitionLessonPlan reports whether a lesson plan may move from one status to another.
// Re-applying the current status is allowed and treated as a no-op by callers.
func CanTransitionLessonPlan(from, to string) bool {
	if _, known := lessonPlanTransitions[to]; !known {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range lessonPlanTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var assessmentStatuses = map[string]struct{}{
	models.AssessmentStatusDraft:     {},
	models.AssessmentStatusScheduled: {},
	models.AssessmentStatusActive:    {},
	models.AssessmentStatusClosed:    {},
	models.AssessmentStatusGraded:    {},
}

// IsKnownAssessmentStatus validates a manual status override.
func IsKnownAssessmentStatus(status string) bool {
	_, ok := assessmentStatuses[status]
	return ok
}

// InitialAssessmentStatus is Scheduled for a future window and Draft otherwise; the
// scheduler activates both once opens_on is reached.
func InitialAssessmentStatus(opensOn, now time.Time) string {
	if opensOn.After(now) {
		return models.AssessmentStatusScheduled
	}
	return models.AssessmentStatusDraft
}
