package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageStatus is the lifecycle state of an outbound SMS.
type MessageStatus string

const (
	MessageStatusPending       MessageStatus = "PENDING"
	MessageStatusSent          MessageStatus = "SENT"
	MessageStatusFailed        MessageStatus = "FAILED"
	MessageStatusDelivered     MessageStatus = "DELIVERED"
	MessageStatusEnroute       MessageStatus = "ENROUTE"
	MessageStatusAccepted      MessageStatus = "ACCEPTED"
	MessageStatusExpired       MessageStatus = "EXPIRED"
	MessageStatusDeleted       MessageStatus = "DELETED"
	MessageStatusUndeliverable MessageStatus = "UNDELIVERABLE"
	MessageStatusRejected      MessageStatus = "REJECTED"
	MessageStatusUnknown       MessageStatus = "UNKNOWN"
)

var knownStatuses = map[MessageStatus]struct{}{
	MessageStatusPending:       {},
	MessageStatusSent:          {},
	MessageStatusFailed:        {},
	MessageStatusDelivered:     {},
	MessageStatusEnroute:       {},
	MessageStatusAccepted:      {},
	MessageStatusExpired:       {},
	MessageStatusDeleted:       {},
	MessageStatusUndeliverable: {},
	MessageStatusRejected:      {},
	MessageStatusUnknown:       {},
}

// gateway short forms as they appear in SMPP receipts
var gatewayAliases = map[string]MessageStatus{
	"DELIVRD": MessageStatusDelivered,
	"UNDELIV": MessageStatusUndeliverable,
	"ACCEPTD": MessageStatusAccepted,
	"REJECTD": MessageStatusRejected,
	"EXPIRD":  MessageStatusExpired,
	"DELETD":  MessageStatusDeleted,
	"UNKNOWN": MessageStatusUnknown,
	"ENROUTE": MessageStatusEnroute,
}

func (s MessageStatus) String() string { return string(s) }

// IsValid reports whether s is one of the known statuses.
func (s MessageStatus) IsValid() bool {
	_, ok := knownStatuses[s]
	return ok
}

// statuses only the dispatcher may assign; a receipt carrying one is meaningless
var dispatchOnlyStatuses = map[MessageStatus]struct{}{
	MessageStatusPending: {},
	MessageStatusSent:    {},
}

// ParseMessageStatus normalizes a gateway receipt status. Unrecognized values,
// and PENDING or SENT, map to UNKNOWN.
func ParseMessageStatus(raw string) MessageStatus {
	v := strings.ToUpper(strings.TrimSpace(raw))
	if _, dispatchOnly := dispatchOnlyStatuses[MessageStatus(v)]; dispatchOnly {
		return MessageStatusUnknown
	}
	if s := MessageStatus(v); s.IsValid() {
		return s
	}
	if s, ok := gatewayAliases[v]; ok {
		return s
	}
	return MessageStatusUnknown
}

// Value implements driver.Valuer.
func (s MessageStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Scan implements sql.Scanner.
func (s *MessageStatus) Scan(value any) error {
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("failed to scan MessageStatus: unexpected type %T", value)
	}
	status := MessageStatus(raw)
	if !status.IsValid() {
		return fmt.Errorf("unknown MessageStatus value: %q", raw)
	}
	*s = status
	return nil
}

// OutboundMessage is a queued or sent SMS.
// DeliveredAt is set only when DeliveryStatus is DELIVERED.
// ExternalID is set only once a send was accepted by the gateway.
type OutboundMessage struct {
	ID                 uuid.UUID     `json:"id"`
	ExternalID         *string       `json:"external_id,omitempty"`
	SourceAddress      string        `json:"source_address"`
	DestinationAddress string        `json:"mobile_number"`
	Body               string        `json:"message"`
	DeliveryStatus     MessageStatus `json:"delivery_status"`
	SubmittedAt        *time.Time    `json:"submitted_on_date,omitempty"`
	DeliveredAt        *time.Time    `json:"delivered_on_date,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// NewPendingMessage builds a message ready for the dispatcher.
func NewPendingMessage(source, destination, body string, now time.Time) *OutboundMessage {
	return &OutboundMessage{
		ID:                 uuid.New(),
		SourceAddress:      source,
		DestinationAddress: destination,
		Body:               body,
		DeliveryStatus:     MessageStatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// MarkSubmitted records the outcome of a send attempt made at `at`.
// An empty externalID means the gateway did not accept the message.
func (m *OutboundMessage) MarkSubmitted(externalID string, at time.Time) {
	m.SubmittedAt = &at
	m.UpdatedAt = at
	if externalID == "" {
		m.DeliveryStatus = MessageStatusFailed
		return
	}
	id := externalID
	m.ExternalID = &id
	m.DeliveryStatus = MessageStatusSent
}

// ApplyDeliveryReport copies the report status onto the message.
// A DELIVERED report without a completion time is stamped with now.
// A PENDING report is refused with ErrInvalidStatusTransition and leaves m untouched.
func (m *OutboundMessage) ApplyDeliveryReport(r *DeliveryReport, now time.Time) error {
	if r.Status == MessageStatusPending {
		return fmt.Errorf("%w: report for %s cannot move message %s back to %s",
			ErrInvalidStatusTransition, r.MessageID, m.ID, r.Status)
	}
	m.DeliveryStatus = r.Status
	m.UpdatedAt = now
	if r.Status != MessageStatusDelivered {
		m.DeliveredAt = nil
		return nil
	}
	at := now
	if r.CompletedAt != nil {
		at = *r.CompletedAt
	}
	m.DeliveredAt = &at
	return nil
}

// ExternalIDOrEmpty is a logging helper.
func (m *OutboundMessage) ExternalIDOrEmpty() string {
	if m.ExternalID == nil {
		return ""
	}
	return *m.ExternalID
}

// DeliveryReport is a gateway notification about a previously sent message.
// Attempts counts unmatched lookups; NextAttemptAt is when the report is due again.
type DeliveryReport struct {
	ID            uuid.UUID     `json:"id"`
	MessageID     string        `json:"message_id"`
	Status        MessageStatus `json:"delivery_status"`
	CompletedAt   *time.Time    `json:"done_on_date,omitempty"`
	Attempts      int           `json:"attempts"`
	NextAttemptAt time.Time     `json:"next_attempt_at"`
	CreatedAt     time.Time     `json:"created_at"`
}

// NewDeliveryReport builds a report that is due immediately.
func NewDeliveryReport(messageID string, status MessageStatus, completedAt *time.Time, now time.Time) *DeliveryReport {
	return &DeliveryReport{
		ID:            uuid.New(),
		MessageID:     messageID,
		Status:        status,
		CompletedAt:   completedAt,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
}
