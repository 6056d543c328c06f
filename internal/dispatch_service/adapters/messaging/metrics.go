package messaging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var natsMessagesReceivedCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sms_dispatch",
		Name:      "nats_messages_received_total",
		Help:      "Total number of NATS messages received by the ingest consumers.",
	},
	[]string{"consumer", "result"}, // result: "accepted", "invalid", "error"
)
