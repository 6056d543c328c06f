package smsgateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gatewayRequestDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sms_gateway",
			Name:      "request_duration_seconds",
			Help:      "Duration of requests made to the SMS gateway.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"session", "operation"}, // operation: "send", "health"
	)

	gatewaySessionActiveGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sms_gateway",
			Name:      "session_active",
			Help:      "1 when the gateway session is active, 0 otherwise.",
		},
		[]string{"session"},
	)
)
