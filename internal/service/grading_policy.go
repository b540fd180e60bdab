package service

import (
	"sort"
	"strings"

	"github.com/noah-isme/teachmate-api/internal/models"
)

// Accuracy thresholds for subjective answers.
const (
	fullMarksAccuracy = 90.0
	halfMarksAccuracy = 50.0
)

// BandMarks maps a judge's accuracy percentage onto the three scoring bands. The judge's own
// mark proposal never reaches this function.
func BandMarks(accuracy, maxMarks float64) float64 {
	switch {
	case accuracy >= fullMarksAccuracy:
		return maxMarks
	case accuracy >= halfMarksAccuracy:
		return maxMarks / 2
	default:
		return 0
	}
}

// GradeObjective scores MCQ, True/False and Multiple Select answers by comparing chosen
// options with the correct set. Multiple Select options are separated by commas or pipes.
func GradeObjective(question models.Question, answer string) (float64, string) {
	correct := question.CorrectOptions()
	if len(correct) == 0 {
		return 0, "No correct option is defined for this question."
	}

	chosen := normalizeOptions(splitOptions(answer, question.InputType == models.InputTypeMultipleSelect))
	expected := normalizeOptions(correct)

	if equalOptionSets(chosen, expected) {
		return question.Marks, "Correct."
	}
	return 0, "Incorrect. Correct answer: " + strings.Join(correct, ", ")
}

func splitOptions(answer string, multiple bool) []string {
	if !multiple {
		return []string{answer}
	}
	return strings.FieldsFunc(answer, func(r rune) bool { return r == ',' || r == '|' })
}

func normalizeOptions(options []string) []string {
	out := make([]string, 0, len(options))
	for _, option := range options {
		trimmed := strings.ToLower(strings.TrimSpace(option))
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	sort.Strings(out)
	return out
}

func equalOptionSets(a, b []string) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
