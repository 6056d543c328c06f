package domain

import "errors"

var (
	ErrOutboundMessageNotFound = errors.New("outbound message not found")
	ErrDeliveryReportNotFound  = errors.New("delivery report not found")
	ErrSessionInactive         = errors.New("gateway session is not active")
	ErrGatewayRejected         = errors.New("gateway rejected the message")
	ErrInvalidStatusTransition = errors.New("invalid message status transition")
)
