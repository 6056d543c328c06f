package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProcessedDeliveryReport is published once a delivery report has been
// applied to its outbound message.
type ProcessedDeliveryReport struct {
	MessageID   uuid.UUID     `json:"message_id"`
	ExternalID  string        `json:"external_id"`
	Status      MessageStatus `json:"status"`
	DeliveredAt *time.Time    `json:"delivered_at,omitempty"`
	ProcessedAt time.Time     `json:"processed_at"`
}

// ProcessedDeliveryReportSubject is the NATS subject for an event with the given status.
func ProcessedDeliveryReportSubject(status MessageStatus) string {
	return "dlr.processed.v1." + string(status)
}
