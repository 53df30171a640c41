package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		moderatorCommandTotal,
		moderatorCommandsHandledTotal,
		moderatorRateLimitedTotal,
	)
}

var (
	moderatorCommandTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderator_command_total",
			Help: "Tracks attempts to use moderator commands.",
		},
		[]string{"command", "status"}, // status: 'authorized', 'unauthorized', 'rate_limited'
	)

	moderatorCommandsHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderator_commands_handled_total",
			Help: "Moderator commands that reached a plan handler.",
		},
		[]string{"command"},
	)

	moderatorRateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moderator_rate_limit_triggered_total",
			Help: "Times a moderator hit the command rate limit.",
		},
	)
)

func IncModeratorCommand(command, status string) {
	moderatorCommandTotal.WithLabelValues(norm(command), norm(status)).Inc()
}

func IncCommandHandled(command string) {
	moderatorCommandsHandledTotal.WithLabelValues(norm(command)).Inc()
}

func IncRateLimitTriggered() {
	moderatorRateLimitedTotal.Inc()
}
