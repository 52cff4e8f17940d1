// Package metrics holds the Prometheus instruments of the ingestion pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Report outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeMalformed = "malformed"
	OutcomeStorage   = "storage_unavailable"
)

var (
	ReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uptix_reports_total",
			Help: "Agent reports processed, by outcome",
		},
		[]string{"outcome"},
	)

	ReportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "uptix_report_duration_seconds",
			Help:    "Time spent ingesting one agent report",
			Buckets: prometheus.DefBuckets,
		},
	)

	AlertDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uptix_alert_decisions_total",
			Help: "Alert decisions, by category and result (fired, suppressed, muted)",
		},
		[]string{"category", "result"},
	)

	AlertDispatch = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uptix_alert_dispatch_total",
			Help: "Alert notifications handed to the transport, by result (sent, failed, dropped)",
		},
		[]string{"result"},
	)

	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "uptix_alert_queue_depth",
			Help: "Notifications waiting for a dispatch worker",
		},
	)

	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "uptix_broadcast_subscribers",
			Help: "Number of connected live-feed subscribers",
		},
	)

	BroadcastDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uptix_broadcast_dropped_total",
			Help: "Broadcast messages not delivered, by reason (hub_full, slow_subscriber)",
		},
		[]string{"reason"},
	)

	AgentConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "uptix_agent_connections_active",
			Help: "Number of connected agent sockets",
		},
	)
)
