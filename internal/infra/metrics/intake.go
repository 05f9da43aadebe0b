package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(intakeDecisionsTotal, duplicateFlagsTotal, entitiesCreatedTotal)
}

var (
	intakeDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_decisions_total",
			Help: "Review decisions applied, labeled by action (approve, reject).",
		},
		[]string{"action"},
	)

	duplicateFlagsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_duplicate_flags_total",
			Help: "Documents flagged during intake, labeled by flag kind.",
		},
		[]string{"flag"},
	)

	entitiesCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_entities_created_total",
			Help: "Entities created from approved documents, labeled by kind.",
		},
		[]string{"kind"},
	)
)

func IncIntakeDecision(action string) {
	intakeDecisionsTotal.WithLabelValues(norm(action)).Inc()
}

func IncDuplicateFlag(flag string) {
	duplicateFlagsTotal.WithLabelValues(norm(flag)).Inc()
}

func IncEntityCreated(kind string) {
	entitiesCreatedTotal.WithLabelValues(norm(kind)).Inc()
}
