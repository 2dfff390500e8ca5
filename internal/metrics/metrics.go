// Package metrics provides Prometheus metrics for the planner: decomposition calls,
// timer sessions, the job queue and HTTP traffic.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DecompositionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bordo_decompositions_total",
			Help: "Total number of task decompositions by outcome",
		},
		[]string{"outcome"},
	)
	DecompositionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bordo_decomposition_duration_seconds",
			Help:    "Decomposition duration in seconds, completion call included",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"outcome"},
	)
	SubtasksCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bordo_subtasks_created_total",
			Help: "Total number of subtasks inserted by decomposition",
		},
	)
	TimerSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bordo_timer_sessions_total",
			Help: "Total number of timer sessions by outcome",
		},
		[]string{"outcome"},
	)
	TimerMinutesLogged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bordo_timer_minutes_logged_total",
			Help: "Total minutes credited to tasks by stopped timers",
		},
	)
	TimersRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bordo_timers_running",
			Help: "Number of timers currently running in this process",
		},
	)
	OpenTimeEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bordo_open_time_entries",
			Help: "Number of time entries without an end time",
		},
	)
	OrphanEntriesClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bordo_orphan_entries_closed_total",
			Help: "Total number of abandoned time entries closed without credit",
		},
	)
	TasksCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bordo_tasks_completed_total",
			Help: "Total number of tasks marked completed",
		},
	)
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bordo_jobs_processed_total",
			Help: "Total number of queued jobs processed by type and status",
		},
		[]string{"type", "status"},
	)
	JobsInQueue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bordo_jobs_in_queue",
			Help: "Current number of jobs by status",
		},
		[]string{"status", "type"},
	)
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bordo_queue_depth",
			Help: "Current number of jobs waiting to be picked up",
		},
	)
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bordo_realtime_connections",
			Help: "Number of open realtime connections",
		},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bordo_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bordo_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func RecordDecomposition(outcome string, subtasks int, duration time.Duration) {
	DecompositionsTotal.WithLabelValues(outcome).Inc()
	DecompositionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if subtasks > 0 {
		SubtasksCreated.Add(float64(subtasks))
	}
}

func RecordTimerStarted() {
	TimerSessionsTotal.WithLabelValues("started").Inc()
	TimersRunning.Inc()
}

// RecordTimerStopped counts a finished session. outcome is "stopped" or "partial".
func RecordTimerStopped(outcome string, minutes int) {
	TimerSessionsTotal.WithLabelValues(outcome).Inc()
	TimersRunning.Dec()
	if minutes > 0 {
		TimerMinutesLogged.Add(float64(minutes))
	}
}

func RecordTimerResumed() {
	TimerSessionsTotal.WithLabelValues("resumed").Inc()
	TimersRunning.Inc()
}

func RecordTimerAbandoned() {
	TimerSessionsTotal.WithLabelValues("abandoned").Inc()
	TimersRunning.Dec()
}

func RecordOrphansClosed(count int) {
	OrphanEntriesClosed.Add(float64(count))
}

func RecordTaskCompleted() {
	TasksCompleted.Inc()
}

func RecordJobProcessed(jobType, status string) {
	JobsProcessed.WithLabelValues(jobType, status).Inc()
}

func UpdateJobGauges(jobsByStatus map[string]map[string]int) {
	JobsInQueue.Reset()
	for status, typeMap := range jobsByStatus {
		for jobType, count := range typeMap {
			JobsInQueue.WithLabelValues(status, jobType).Set(float64(count))
		}
	}
}

func UpdateQueueDepth(depth int) {
	QueueDepth.Set(float64(depth))
}

func UpdateOpenTimeEntries(count int) {
	OpenTimeEntries.Set(float64(count))
}

func UpdateRealtimeConnections(delta int) {
	RealtimeConnections.Add(float64(delta))
}

func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
