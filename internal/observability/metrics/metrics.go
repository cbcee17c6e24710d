package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TelemetryMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordinator_telemetry_messages_total",
			Help: "Total number of telemetry messages by type and outcome.",
		},
		[]string{"type", "result"},
	)

	SessionsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coordinator_sessions_started_total",
			Help: "Total number of charging sessions started.",
		},
	)

	SessionsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordinator_sessions_completed_total",
			Help: "Total number of charging sessions completed, by trigger.",
		},
		[]string{"reason"},
	)

	ControlPublishesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordinator_control_publishes_total",
			Help: "Total number of outbound control commands by outcome.",
		},
		[]string{"command", "result"},
	)

	TrackedSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "coordinator_tracked_sessions",
			Help: "Number of sessions currently tracked in the registry.",
		},
	)
)

func MustRegister() {
	prometheus.MustRegister(
		TelemetryMessagesTotal,
		SessionsStartedTotal,
		SessionsCompletedTotal,
		ControlPublishesTotal,
		TrackedSessions,
	)
}
