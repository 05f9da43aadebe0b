package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(evaluationsScheduledTotal, evaluationsOverflowedTotal, evaluationsProcessedTotal)
}

var (
	evaluationsScheduledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "evaluations_scheduled_total",
			Help: "Subjects assigned an evaluation day.",
		},
	)

	evaluationsOverflowedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "evaluations_overflowed_total",
			Help: "Subjects pushed past today because the daily quota was full.",
		},
	)

	evaluationsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluations_processed_total",
			Help: "Daily-queue evaluations processed, labeled by status.",
		},
		[]string{"status"},
	)
)

func IncEvaluationScheduled()  { evaluationsScheduledTotal.Inc() }
func IncEvaluationOverflowed() { evaluationsOverflowedTotal.Inc() }

func IncEvaluationProcessed(status string) {
	evaluationsProcessedTotal.WithLabelValues(norm(status)).Inc()
}
