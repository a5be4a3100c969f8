package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebsocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collabdocs_websocket_connections",
		Help: "Open websocket connections",
	})

	SessionBindings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collabdocs_session_bindings",
		Help: "Credentials bound to a live connection",
	})

	PresentConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collabdocs_present_connections",
		Help: "Connections joined to a document",
	})

	TypingDocuments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collabdocs_typing_documents",
		Help: "Documents with at least one typing user",
	})

	SessionsDisplaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collabdocs_sessions_displaced_total",
		Help: "Connections displaced by a newer login with the same credential",
	})

	DroppedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collabdocs_dropped_messages_total",
		Help: "Outbound websocket messages dropped on a full send queue",
	})

	DocumentEdits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collabdocs_document_edits_total",
		Help: "Persisted document edits",
	}, []string{"transport"})

	MailJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collabdocs_mail_jobs_total",
		Help: "Mail jobs processed by the worker",
	}, []string{"kind", "result"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collabdocs_http_requests_total",
		Help: "HTTP requests by route and status",
	}, []string{"route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "collabdocs_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"route"})
)
