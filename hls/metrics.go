package hls

import "github.com/prometheus/client_golang/prometheus"

var (
	tasksStartedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hlsforge",
		Name:      "tasks_started_total",
		Help:      "Total number of tasks dispatched, by class.",
	}, []string{"class"})

	tasksCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hlsforge",
		Name:      "tasks_completed_total",
		Help:      "Total number of tasks completed successfully, by class.",
	}, []string{"class"})

	tasksFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hlsforge",
		Name:      "tasks_failed_total",
		Help:      "Total number of tasks that failed, by class.",
	}, []string{"class"})

	encodeDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hlsforge",
		Name:      "encode_duration_seconds",
		Help:      "Duration of completed task encodes in seconds, by class.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"class"})

	activeTasks = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "hlsforge",
		Name:      "active_tasks",
		Help:      "Number of currently running tasks, by class.",
	}, []string{"class"})
)

// Register registers the package's metrics with reg, mirroring the
// package-level-vars-plus-Register pattern used for torrent-engine metrics.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		tasksStartedTotal,
		tasksCompletedTotal,
		tasksFailedTotal,
		encodeDurationSeconds,
		activeTasks,
	)
}

// Metrics is a thin handle workers/executor use to record task lifecycle
// events without reaching for package-level vars directly.
type Metrics struct{}

// NewMetrics returns a Metrics handle. Call Register once per process to
// wire the underlying collectors into a prometheus.Registerer.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) TaskStarted(class string) {
	tasksStartedTotal.WithLabelValues(class).Inc()
	activeTasks.WithLabelValues(class).Inc()
}

func (m *Metrics) TaskCompleted(class string, durationSeconds float64) {
	tasksCompletedTotal.WithLabelValues(class).Inc()
	encodeDurationSeconds.WithLabelValues(class).Observe(durationSeconds)
	activeTasks.WithLabelValues(class).Dec()
}

func (m *Metrics) TaskFailed(class string) {
	tasksFailedTotal.WithLabelValues(class).Inc()
	activeTasks.WithLabelValues(class).Dec()
}
