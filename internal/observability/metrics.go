package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	queuePending *prometheus.GaugeVec
	queueTasks   *prometheus.CounterVec
	taskDuration prometheus.Histogram

	activeSessions     prometheus.Gauge
	conversationEvents *prometheus.CounterVec

	uploadsTotal     *prometheus.CounterVec
	uploadBytesTotal prometheus.Counter
	assembliesTotal  *prometheus.CounterVec
	assemblyDuration prometheus.Histogram
	archiveEntries   prometheus.Histogram
	cleanupWarnings  prometheus.Counter
	orphansRemoved   prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queuePending: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "zipbot_queue_pending",
					Help: "Tasks waiting or running in the chat lanes.",
				},
				[]string{"state"},
			),
			queueTasks: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "zipbot_queue_tasks_total",
					Help: "Total lane tasks by status.",
				},
				[]string{"status"},
			),
			taskDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "zipbot_task_duration_seconds",
					Help:    "Lane task execution duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "zipbot_active_sessions",
					Help: "Current live session count.",
				},
			),
			conversationEvents: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "zipbot_conversation_events_total",
					Help: "Conversation events by event and outcome.",
				},
				[]string{"event", "outcome"},
			),
			uploadsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "zipbot_uploads_total",
					Help: "Total staged uploads by status.",
				},
				[]string{"status"},
			),
			uploadBytesTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "zipbot_upload_bytes_total",
					Help: "Total bytes staged from uploads.",
				},
			),
			assembliesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "zipbot_assemblies_total",
					Help: "Total archive assemblies by status.",
				},
				[]string{"status"},
			),
			assemblyDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "zipbot_assembly_duration_seconds",
					Help:    "Archive build and delivery duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			archiveEntries: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "zipbot_archive_entries",
					Help:    "Number of entries per assembled archive.",
					Buckets: prometheus.ExponentialBuckets(1, 2, 10),
				},
			),
			cleanupWarnings: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "zipbot_cleanup_warnings_total",
					Help: "Blob deletions that failed after assembly.",
				},
			),
			orphansRemoved: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "zipbot_orphaned_blobs_removed_total",
					Help: "Unreferenced blobs removed by the janitor.",
				},
			),
		}

		prometheus.MustRegister(
			m.queuePending,
			m.queueTasks,
			m.taskDuration,
			m.activeSessions,
			m.conversationEvents,
			m.uploadsTotal,
			m.uploadBytesTotal,
			m.assembliesTotal,
			m.assemblyDuration,
			m.archiveEntries,
			m.cleanupWarnings,
			m.orphansRemoved,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func SetQueuePending(queued, running int) {
	m := getMetrics()
	m.queuePending.WithLabelValues("queued").Set(float64(queued))
	m.queuePending.WithLabelValues("running").Set(float64(running))
}

func RecordTaskCompletion(duration time.Duration, success bool) {
	m := getMetrics()
	m.queueTasks.WithLabelValues(statusLabel(success)).Inc()
	m.taskDuration.Observe(duration.Seconds())
}

func SetActiveSessions(count int) {
	m := getMetrics()
	m.activeSessions.Set(float64(count))
}

func RecordConversationEvent(event, outcome string) {
	m := getMetrics()
	m.conversationEvents.WithLabelValues(event, outcome).Inc()
}

func RecordUpload(bytes int64, success bool) {
	m := getMetrics()
	m.uploadsTotal.WithLabelValues(statusLabel(success)).Inc()
	if success {
		m.uploadBytesTotal.Add(float64(bytes))
	}
}

func RecordAssembly(duration time.Duration, entries int, success bool) {
	m := getMetrics()
	m.assembliesTotal.WithLabelValues(statusLabel(success)).Inc()
	m.assemblyDuration.Observe(duration.Seconds())
	if success {
		m.archiveEntries.Observe(float64(entries))
	}
}

func RecordCleanupWarnings(count int) {
	if count <= 0 {
		return
	}
	m := getMetrics()
	m.cleanupWarnings.Add(float64(count))
}

func RecordOrphansRemoved(count int) {
	if count <= 0 {
		return
	}
	m := getMetrics()
	m.orphansRemoved.Add(float64(count))
}
