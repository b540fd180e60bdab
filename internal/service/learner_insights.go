package service

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/repository"
)

// Time windows accepted by ChildProgress.
const (
	PeriodLastMonth    = "last_month"
	PeriodLastQuarter  = "last_3_months"
	PeriodAll          = "all"
	weakTopicThreshold = 60.0
)

var studyTips = []string{
	"Focus on topics with lowest scores first",
	"Practice regularly for 30 minutes daily",
	"Review mistakes from past assessments",
	"Prepare for upcoming assessments in advance",
}

// RecentScore is one graded assessment in a progress summary.
type RecentScore struct {
	Title string    `json:"title"`
	Score float64   `json:"score"`
	Date  time.Time `json:"date"`
}

// StudentProgress summarises the latest graded work of a student.
type StudentProgress struct {
	TotalAssessments int           `json:"total_assessments"`
	AverageScore     float64       `json:"average_score"`
	WeakTopics       []string      `json:"weak_topics"`
	RecentScores     []RecentScore `json:"recent_scores"`
}

// UpcomingAssessment is a scheduled or open assessment.
type UpcomingAssessment struct {
	Title   string    `json:"title"`
	Subject string    `json:"subject"`
	OpensOn time.Time `json:"opens_on"`
	DueDate time.Time `json:"due_date"`
	Topics  []string  `json:"topics"`
}

// AssessmentResult is one graded assessment in a parent progress report.
type AssessmentResult struct {
	Title      string    `json:"title"`
	Subject    string    `json:"subject"`
	Score      float64   `json:"score"`
	OutOfTotal float64   `json:"out_of_total_marks"`
	Date       time.Time `json:"date"`
	Topics     []string  `json:"topics"`
}

// ChildProgress is the parent-facing progress report.
type ChildProgress struct {
	TotalAssessments  int                `json:"total_assessments"`
	AverageScore      float64            `json:"average_score"`
	HighestScore      float64            `json:"highest_score"`
	LowestScore       float64            `json:"lowest_score"`
	Trend             string             `json:"trend"`
	RecentAssessments []AssessmentResult `json:"recent_assessments"`
}

// WeakArea is a topic whose average percentage is below the threshold.
type WeakArea struct {
	Topic        string  `json:"topic"`
	AverageScore float64 `json:"average_score"`
	Attempts     int     `json:"attempts"`
}

// WeakAreas lists the weakest topics.
type WeakAreas struct {
	WeakTopics          []WeakArea `json:"weak_topics"`
	TotalTopicsAnalyzed int        `json:"total_topics_analyzed"`
}

// StudyRecommendations combines weak areas, upcoming work and general tips.
type StudyRecommendations struct {
	WeakAreas           []WeakArea           `json:"weak_areas"`
	UpcomingAssessments []UpcomingAssessment `json:"upcoming_assessments"`
	Recommendations     []string             `json:"recommendations"`
}

// LearnerInsights answers progress questions about a student for the assistants and voice tools.
type LearnerInsights struct {
	submissions repository.SubmissionRepository
	assessments repository.AssessmentRepository
	now         func() time.Time
}

// NewLearnerInsights constructs the insights reader.
func NewLearnerInsights(submissions repository.SubmissionRepository, assessments repository.AssessmentRepository) *LearnerInsights {
	return &LearnerInsights{submissions: submissions, assessments: assessments, now: time.Now}
}

// StudentProgress reports the last five graded submissions. ok is false without history.
func (l *LearnerInsights) StudentProgress(ctx context.Context, studentID uint, subject string) (StudentProgress, bool, error) {
	submissions, err := l.submissions.RecentGraded(ctx, studentID, 5)
	if err != nil {
		return StudentProgress{}, false, err
	}
	submissions = filterBySubject(submissions, subject)
	if len(submissions) == 0 {
		return StudentProgress{}, false, nil
	}

	progress := StudentProgress{
		TotalAssessments: len(submissions),
		WeakTopics:       make([]string, 0, 3),
		RecentScores:     make([]RecentScore, 0, len(submissions)),
	}

	seen := make(map[string]struct{})
	total := 0.0
	for _, sub := range submissions {
		total += sub.Percentage
		progress.RecentScores = append(progress.RecentScores, RecentScore{
			Title: sub.Assessment.Title,
			Score: sub.Percentage,
			Date:  sub.SubmittedAt,
		})
		for _, answer := range sub.Answers {
			if answer.IsCorrect || answer.MarksObtained >= answer.MaxMarks*0.5 {
				continue
			}
			topic := truncate(answer.QuestionText, 50)
			if _, ok := seen[topic]; ok || len(progress.WeakTopics) >= 3 {
				continue
			}
			seen[topic] = struct{}{}
			progress.WeakTopics = append(progress.WeakTopics, topic)
		}
	}
	progress.AverageScore = round1(total / float64(len(submissions)))

	return progress, true, nil
}

// UpcomingAssessments lists up to five assessments of the student's grade and class that
// open from now on.
func (l *LearnerInsights) UpcomingAssessments(ctx context.Context, student models.Student) ([]UpcomingAssessment, error) {
	now := l.now()
	gradeID := student.GradeID
	filter := repository.AssessmentFilter{
		GradeID:    &gradeID,
		Statuses:   []string{models.AssessmentStatusScheduled, models.AssessmentStatusActive},
		OpensAfter: &now,
		Limit:      5,
	}
	if student.ClassID != 0 {
		classID := student.ClassID
		filter.ClassID = &classID
	}

	assessments, err := l.assessments.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	out := make([]UpcomingAssessment, 0, len(assessments))
	for _, assessment := range assessments {
		out = append(out, UpcomingAssessment{
			Title:   assessment.Title,
			Subject: assessment.Subject.SubjectName,
			OpensOn: assessment.OpensOn,
			DueDate: assessment.DueDate,
			Topics:  []string(assessment.Topics),
		})
	}
	return out, nil
}

// ChildProgress computes score statistics and the trend over a time window.
func (l *LearnerInsights) ChildProgress(ctx context.Context, studentID uint, subject, period string) (ChildProgress, bool, error) {
	submissions, err := l.submissions.RecentGraded(ctx, studentID, 200)
	if err != nil {
		return ChildProgress{}, false, err
	}

	var since time.Time
	switch period {
	case PeriodLastMonth:
		since = l.now().AddDate(0, 0, -30)
	case PeriodLastQuarter:
		since = l.now().AddDate(0, 0, -90)
	}
	if !since.IsZero() {
		kept := submissions[:0]
		for _, sub := range submissions {
			if !sub.SubmittedAt.Before(since) {
				kept = append(kept, sub)
			}
		}
		submissions = kept
	}

	submissions = filterBySubject(submissions, subject)
	if len(submissions) == 0 {
		return ChildProgress{}, false, nil
	}

	scores := make([]float64, 0, len(submissions))
	for _, sub := range submissions {
		scores = append(scores, sub.TotalMarksObtained)
	}

	progress := ChildProgress{
		TotalAssessments:  len(submissions),
		AverageScore:      round1(mean(scores)),
		HighestScore:      scores[0],
		LowestScore:       scores[0],
		Trend:             scoreTrend(scores),
		RecentAssessments: make([]AssessmentResult, 0, 5),
	}
	for _, score := range scores {
		progress.HighestScore = math.Max(progress.HighestScore, score)
		progress.LowestScore = math.Min(progress.LowestScore, score)
	}
	for i, sub := range submissions {
		if i >= 5 {
			break
		}
		progress.RecentAssessments = append(progress.RecentAssessments, AssessmentResult{
			Title:      sub.Assessment.Title,
			Subject:    sub.Assessment.Subject.SubjectName,
			Score:      sub.TotalMarksObtained,
			OutOfTotal: sub.TotalMarks,
			Date:       sub.SubmittedAt,
			Topics:     []string(sub.Assessment.Topics),
		})
	}

	return progress, true, nil
}

// WeakAreas averages the percentage per assessment topic over the last ten graded submissions.
func (l *LearnerInsights) WeakAreas(ctx context.Context, studentID uint, subject string) (WeakAreas, bool, error) {
	submissions, err := l.submissions.RecentGraded(ctx, studentID, 10)
	if err != nil {
		return WeakAreas{}, false, err
	}
	submissions = filterBySubject(submissions, subject)
	if len(submissions) == 0 {
		return WeakAreas{WeakTopics: []WeakArea{}}, false, nil
	}

	type tally struct {
		total float64
		count int
	}
	order := make([]string, 0)
	perTopic := make(map[string]*tally)
	for _, sub := range submissions {
		for _, topic := range sub.Assessment.Topics {
			entry, ok := perTopic[topic]
			if !ok {
				entry = &tally{}
				perTopic[topic] = entry
				order = append(order, topic)
			}
			entry.total += sub.Percentage
			entry.count++
		}
	}

	weak := make([]WeakArea, 0)
	for _, topic := range order {
		entry := perTopic[topic]
		avg := entry.total / float64(entry.count)
		if avg < weakTopicThreshold {
			weak = append(weak, WeakArea{Topic: topic, AverageScore: round1(avg), Attempts: entry.count})
		}
	}
	sort.SliceStable(weak, func(i, j int) bool { return weak[i].AverageScore < weak[j].AverageScore })
	if len(weak) > 5 {
		weak = weak[:5]
	}

	return WeakAreas{WeakTopics: weak, TotalTopicsAnalyzed: len(order)}, true, nil
}

// StudyRecommendations combines weak areas with the next three assessments.
func (l *LearnerInsights) StudyRecommendations(ctx context.Context, student models.Student) (StudyRecommendations, error) {
	weak, _, err := l.WeakAreas(ctx, student.ID, "")
	if err != nil {
		return StudyRecommendations{}, err
	}
	upcoming, err := l.UpcomingAssessments(ctx, student)
	if err != nil {
		return StudyRecommendations{}, err
	}
	if len(upcoming) > 3 {
		upcoming = upcoming[:3]
	}

	tips := make([]string, len(studyTips))
	copy(tips, studyTips)
	return StudyRecommendations{
		WeakAreas:           weak.WeakTopics,
		UpcomingAssessments: upcoming,
		Recommendations:     tips,
	}, nil
}

func filterBySubject(submissions []models.Submission, subject string) []models.Submission {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return submissions
	}
	out := make([]models.Submission, 0, len(submissions))
	for _, sub := range submissions {
		if strings.EqualFold(sub.Assessment.Subject.SubjectName, subject) {
			out = append(out, sub)
		}
	}
	return out
}

// scoreTrend compares the newest three scores with the three before them.
func scoreTrend(scores []float64) string {
	recent := scores[:min(3, len(scores))]
	recentAvg := mean(recent)
	olderAvg := recentAvg
	if len(scores) > 3 {
		olderAvg = mean(scores[3:min(6, len(scores))])
	}

	switch {
	case recentAvg > olderAvg+5:
		return "improving"
	case recentAvg < olderAvg-5:
		return "declining"
	default:
		return "stable"
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
