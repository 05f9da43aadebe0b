package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(tasksEnqueuedTotal, tasksProcessedTotal, tasksReclaimedTotal)
}

var (
	tasksEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_tasks_enqueued_total",
			Help: "Total tasks enqueued, labeled by kind.",
		},
		[]string{"kind"},
	)

	tasksProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_tasks_processed_total",
			Help: "Total tasks processed, labeled by kind and terminal status.",
		},
		[]string{"kind", "status"},
	)

	tasksReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_tasks_reclaimed_total",
			Help: "Tasks returned to pending after a worker went away mid-claim.",
		},
	)
)

func IncTaskEnqueued(kind string) {
	tasksEnqueuedTotal.WithLabelValues(norm(kind)).Inc()
}

func IncTaskProcessed(kind, status string) {
	tasksProcessedTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}

func AddTasksReclaimed(n int) {
	tasksReclaimedTotal.Add(float64(n))
}
