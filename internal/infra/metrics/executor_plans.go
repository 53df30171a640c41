package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		planMutationsTotal,
		mutationBacklogDepth,
		backlogFlushedTotal,
	)
}

var (
	planMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_plan_mutations_total",
			Help: "Executor plan mutations by type and result.",
		},
		[]string{"type", "result"}, // result: 'applied', 'not_found', 'failed', 'queued'
	)

	mutationBacklogDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "executor_plan_backlog_depth",
			Help: "Mutations waiting in the durable fallback list.",
		},
	)

	backlogFlushedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_plan_backlog_flushed_total",
			Help: "Mutations replayed from the durable fallback list, by result.",
		},
		[]string{"result"}, // 'applied', 'restored', 'dropped'
	)
)

func IncPlanMutation(mutationType, result string) {
	planMutationsTotal.WithLabelValues(norm(mutationType), norm(result)).Inc()
}

func SetBacklogDepth(n int64) {
	mutationBacklogDepth.Set(float64(n))
}

func IncBacklogFlushed(result string, n int) {
	backlogFlushedTotal.WithLabelValues(norm(result)).Add(float64(n))
}
