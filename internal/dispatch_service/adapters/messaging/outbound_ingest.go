package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"

	"github.com/Edwingudfriend/mifos-sms-gateway/internal/core_sms/domain"
	"github.com/Edwingudfriend/mifos-sms-gateway/internal/dispatch_service/repository"
)

const consumerOutbound = "outbound_ingest"

// OutboundSubmission is a message queued for sending by an upstream service.
type OutboundSubmission struct {
	SourceAddress      string `json:"source_address" validate:"required,max=20"`
	DestinationAddress string `json:"destination_address" validate:"required,min=5,max=20"`
	Body               string `json:"body" validate:"required,max=1600"`
}

// OutboundIngestConsumer stores submissions as PENDING messages for the dispatcher.
type OutboundIngestConsumer struct {
	subscriber Subscriber
	messages   repository.OutboundMessageRepository
	validate   *validator.Validate
	logger     *slog.Logger
	now        func() time.Time
}

func NewOutboundIngestConsumer(subscriber Subscriber, messages repository.OutboundMessageRepository, validate *validator.Validate, logger *slog.Logger) *OutboundIngestConsumer {
	return &OutboundIngestConsumer{
		subscriber: subscriber,
		messages:   messages,
		validate:   validate,
		logger:     logger.With("component", consumerOutbound),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// StartConsuming blocks until ctx is cancelled.
func (c *OutboundIngestConsumer) StartConsuming(ctx context.Context, subject, queueGroup string) error {
	c.logger.InfoContext(ctx, "Starting outbound message subscription", "subject", subject, "queue_group", queueGroup)
	err := c.subscriber.SubscribeToSubjectWithQueue(ctx, subject, queueGroup, func(msg *nats.Msg) {
		if err := c.HandleMessage(ctx, msg); err != nil {
			c.logger.ErrorContext(ctx, "Failed to ingest outbound message", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe to outbound messages: %w", err)
	}
	return nil
}

func (c *OutboundIngestConsumer) HandleMessage(ctx context.Context, msg *nats.Msg) error {
	var sub OutboundSubmission
	if err := json.Unmarshal(msg.Data, &sub); err != nil {
		natsMessagesReceivedCounter.WithLabelValues(consumerOutbound, "invalid").Inc()
		c.logger.WarnContext(ctx, "Discarding undecodable outbound message", "subject", msg.Subject, "error", err)
		return nil
	}
	if err := c.validate.StructCtx(ctx, sub); err != nil {
		natsMessagesReceivedCounter.WithLabelValues(consumerOutbound, "invalid").Inc()
		c.logger.WarnContext(ctx, "Discarding invalid outbound message", "subject", msg.Subject, "error", err)
		return nil
	}

	out := domain.NewPendingMessage(sub.SourceAddress, sub.DestinationAddress, sub.Body, c.now())
	if err := c.messages.Create(ctx, out); err != nil {
		natsMessagesReceivedCounter.WithLabelValues(consumerOutbound, "error").Inc()
		return fmt.Errorf("create outbound message: %w", err)
	}

	natsMessagesReceivedCounter.WithLabelValues(consumerOutbound, "accepted").Inc()
	c.logger.DebugContext(ctx, "Outbound message queued", "message_id", out.ID)
	return nil
}
