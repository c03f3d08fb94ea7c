// internal/app/system/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratacomm_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stratacomm_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
		[]string{"method", "route"},
	)

	// Delivery metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratacomm_messages_sent_total",
			Help: "Send calls by outcome",
		},
		[]string{"outcome"}, // "delivered", "partial", "failed"
	)

	RecipientDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratacomm_recipient_deliveries_total",
			Help: "Per-recipient link writes by outcome",
		},
		[]string{"outcome"}, // "ok", "error", "timeout"
	)

	FanOutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stratacomm_fanout_duration_seconds",
			Help:    "Time spent delivering one message to all recipients",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratacomm_notifications_created_total",
			Help: "Notifications persisted",
		},
		[]string{"type"},
	)

	LivePushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratacomm_live_pushes_total",
			Help: "Live push attempts by outcome",
		},
		[]string{"outcome"}, // "ok", "error"
	)

	// Authorization metrics
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratacomm_permission_checks_total",
			Help: "Permission checks by decision",
		},
		[]string{"decision"}, // "allow", "deny", "error"
	)

	RoleCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratacomm_role_cache_lookups_total",
			Help: "Role cache lookups",
		},
		[]string{"result"}, // "hit", "miss", "error"
	)

	// Live connections
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stratacomm_websocket_connections",
			Help: "Open websocket connections on this instance",
		},
	)
)
