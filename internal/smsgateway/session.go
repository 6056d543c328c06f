package smsgateway

import (
	"context"

	"github.com/google/uuid"
)

// SendRequest is one SMS handed to the gateway.
type SendRequest struct {
	// CorrelationID is our internal message id, echoed back by the gateway in receipts.
	CorrelationID      uuid.UUID
	SourceAddress      string
	DestinationAddress string
	Body               string
}

// SendResponse is the gateway's answer to a SendRequest.
// An empty ExternalID means the message was not accepted.
type SendResponse struct {
	ExternalID    string
	GatewayStatus string
}

// Session is the stateful connection to the SMS gateway.
type Session interface {
	// IsActive reports whether the session can currently carry traffic.
	IsActive() bool
	// Restart starts a reconnect in the background and returns immediately.
	Restart()
	// Send may block on network I/O; the caller's ctx bounds it.
	Send(ctx context.Context, req SendRequest) (*SendResponse, error)
	Name() string
}
