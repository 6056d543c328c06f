package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesDispatchedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sms_dispatch",
			Name:      "messages_dispatched_total",
			Help:      "Total number of outbound messages handed to the gateway.",
		},
		[]string{"outcome"}, // outcome: "sent", "failed", "save_error"
	)

	deliveryReportsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sms_dispatch",
			Name:      "delivery_reports_total",
			Help:      "Total number of delivery reports handled by the reconciler.",
		},
		[]string{"outcome"}, // outcome: "matched", "deferred", "dropped", "rejected", "error"
	)

	jobRunsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sms_dispatch",
			Name:      "job_runs_total",
			Help:      "Total number of periodic job runs.",
		},
		[]string{"job", "result"}, // result: "success", "error", "panic"
	)

	jobDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sms_dispatch",
			Name:      "job_duration_seconds",
			Help:      "Duration of periodic job runs.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	sessionRestartsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sms_dispatch",
			Name:      "session_restarts_total",
			Help:      "Total number of gateway session restarts requested by a job.",
		},
		[]string{"job"},
	)
)
