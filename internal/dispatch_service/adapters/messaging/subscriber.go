package messaging

import (
	"context"

	"github.com/nats-io/nats.go"
)

// Subscriber is the part of *messagebroker.NATSClient the consumers need.
type Subscriber interface {
	SubscribeToSubjectWithQueue(ctx context.Context, subject, queueGroup string, handler func(msg *nats.Msg)) error
}
