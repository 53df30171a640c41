package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		reminderJobsTotal,
		remindersSentTotal,
		reminderJobRunsTotal,
	)
}

var (
	reminderJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_jobs_total",
			Help: "Delayed reminder job operations.",
		},
		[]string{"op"}, // 'scheduled', 'removed', 'claimed', 'retried'
	)

	remindersSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminders_sent_total",
			Help: "Reminder deliveries by stage and result.",
		},
		[]string{"stage", "result"}, // result: 'ok', 'failed', 'skipped'
	)

	reminderJobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_job_runs_total",
			Help: "Fired reminder jobs by resolution.",
		},
		[]string{"resolution"}, // 'sent', 'completed', 'stale', 'inactive', 'missing', 'duplicate', 'error'
	)
)

func IncReminderJob(op string) {
	reminderJobsTotal.WithLabelValues(norm(op)).Inc()
}

func IncReminderSent(stage, result string) {
	remindersSentTotal.WithLabelValues(stage, norm(result)).Inc()
}

func IncReminderRun(resolution string) {
	reminderJobRunsTotal.WithLabelValues(norm(resolution)).Inc()
}
