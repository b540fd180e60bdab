package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	apiRequestsTotal  *prometheus.CounterVec
	apiLatencySeconds *prometheus.HistogramVec
	apiErrorsTotal    *prometheus.CounterVec

	agentCallsTotal      *prometheus.CounterVec
	agentLatencySeconds  *prometheus.HistogramVec
	schedulerSweepsTotal *prometheus.CounterVec
	assessmentTransition *prometheus.CounterVec
	gradingOutcomesTotal *prometheus.CounterVec
	jobsTotal            *prometheus.CounterVec
	jobsInFlight         prometheus.Gauge
	notificationsTotal   *prometheus.CounterVec
	sseClientsActive     prometheus.Gauge
	chatMessagesTotal    *prometheus.CounterVec
	voiceCallsTotal      *prometheus.CounterVec
	uploadRequestsTotal  *prometheus.CounterVec
	uploadRejectedTotal  *prometheus.CounterVec
	uploadLatency        prometheus.Histogram
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teachmate_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "teachmate_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 15.0, 60.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teachmate_api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		agentCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teachmate_agent_calls_total",
			Help: "Agent invocations partitioned by outcome.",
		}, []string{"agent", "outcome"})

		agentLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "teachmate_agent_latency_seconds",
			Help:    "Wall time spent inside an agent invocation.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"agent"})

		schedulerSweepsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teachmate_scheduler_sweeps_total",
			Help: "Scheduled sweeps partitioned by outcome.",
		}, []string{"sweep", "outcome"})

		assessmentTransition = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teachmate_assessment_transitions_total",
			Help: "Assessment status transitions applied by the scheduler.",
		}, []string{"to"})

		gradingOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teachmate_grading_outcomes_total",
			Help: "Submission grading attempts partitioned by outcome.",
		}, []string{"outcome"})

		jobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teachmate_jobs_total",
			Help: "Background jobs partitioned by kind and final status.",
		}, []string{"kind", "status"})

		jobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "teachmate_jobs_in_flight",
			Help: "Background jobs currently executing.",
		})

		notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teachmate_notifications_published_total",
			Help: "Notifications delivered to subscribers.",
		}, []string{"type"})

		sseClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "teachmate_sse_clients_active",
			Help: "Open notification streams.",
		})

		chatMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teachmate_chat_messages_total",
			Help: "Chat turns handled by the assistants.",
		}, []string{"user_type", "outcome"})

		voiceCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teachmate_voice_calls_total",
			Help: "Voice calls started partitioned by caller type and outcome.",
		}, []string{"user_type", "outcome"})

		uploadRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teachmate_material_uploads_total",
			Help: "Teaching materials stored, partitioned by detected type.",
		}, []string{"type"})

		uploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teachmate_material_uploads_rejected_total",
			Help: "Rejected material uploads partitioned by reason.",
		}, []string{"reason"})

		uploadLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "teachmate_material_upload_duration_seconds",
			Help:    "Time spent validating and storing a material upload.",
			Buckets: prometheus.DefBuckets,
		})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			agentCallsTotal, agentLatencySeconds,
			schedulerSweepsTotal, assessmentTransition, gradingOutcomesTotal,
			jobsTotal, jobsInFlight,
			notificationsTotal, sseClientsActive,
			chatMessagesTotal, voiceCallsTotal,
			uploadRequestsTotal, uploadRejectedTotal, uploadLatency,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// AgentCalls counts agent invocations by agent and outcome.
func AgentCalls() *prometheus.CounterVec {
	RegisterMetrics()
	return agentCallsTotal
}

// AgentLatency observes agent invocation durations.
func AgentLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return agentLatencySeconds
}

// SchedulerSweeps counts scheduler sweep runs.
func SchedulerSweeps() *prometheus.CounterVec {
	RegisterMetrics()
	return schedulerSweepsTotal
}

// AssessmentTransitions counts status changes applied by sweeps.
func AssessmentTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return assessmentTransition
}

// GradingOutcomes counts grading attempts.
func GradingOutcomes() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingOutcomesTotal
}

// Jobs counts finished background jobs.
func Jobs() *prometheus.CounterVec {
	RegisterMetrics()
	return jobsTotal
}

// JobsInFlight tracks running background jobs.
func JobsInFlight() prometheus.Gauge {
	RegisterMetrics()
	return jobsInFlight
}

// NotificationsPublishedTotal counts notifications fanned out to subscribers.
func NotificationsPublishedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsTotal
}

// SSEClientsActive tracks open notification streams.
func SSEClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return sseClientsActive
}

// ChatMessages counts assistant chat turns.
func ChatMessages() *prometheus.CounterVec {
	RegisterMetrics()
	return chatMessagesTotal
}

// VoiceCalls counts started voice calls.
func VoiceCalls() *prometheus.CounterVec {
	RegisterMetrics()
	return voiceCallsTotal
}

// UploadRequests counts stored material uploads.
func UploadRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRequestsTotal
}

// UploadRejected counts rejected material uploads.
func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejectedTotal
}

// UploadLatency observes material upload durations.
func UploadLatency() prometheus.Histogram {
	RegisterMetrics()
	return uploadLatency
}
