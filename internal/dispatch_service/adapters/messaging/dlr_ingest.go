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

const consumerDLR = "dlr_ingest"

// RawDeliveryReport is the receipt payload published by the gateway on dlr.raw.<provider>.
type RawDeliveryReport struct {
	MessageID string     `json:"message_id" validate:"required,max=64"`
	Status    string     `json:"status" validate:"required,max=32"`
	DoneAt    *time.Time `json:"done_at,omitempty"`
}

// DLRIngestConsumer turns gateway receipts into queued delivery reports.
type DLRIngestConsumer struct {
	subscriber Subscriber
	reports    repository.DeliveryReportRepository
	validate   *validator.Validate
	logger     *slog.Logger
	now        func() time.Time
}

func NewDLRIngestConsumer(subscriber Subscriber, reports repository.DeliveryReportRepository, validate *validator.Validate, logger *slog.Logger) *DLRIngestConsumer {
	return &DLRIngestConsumer{
		subscriber: subscriber,
		reports:    reports,
		validate:   validate,
		logger:     logger.With("component", consumerDLR),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// StartConsuming blocks until ctx is cancelled.
func (c *DLRIngestConsumer) StartConsuming(ctx context.Context, subject, queueGroup string) error {
	c.logger.InfoContext(ctx, "Starting delivery report subscription", "subject", subject, "queue_group", queueGroup)
	err := c.subscriber.SubscribeToSubjectWithQueue(ctx, subject, queueGroup, func(msg *nats.Msg) {
		if err := c.HandleMessage(ctx, msg); err != nil {
			c.logger.ErrorContext(ctx, "Failed to ingest delivery report", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe to delivery reports: %w", err)
	}
	return nil
}

// HandleMessage validates one receipt and enqueues it. Invalid payloads are
// logged and dropped without an error.
func (c *DLRIngestConsumer) HandleMessage(ctx context.Context, msg *nats.Msg) error {
	var raw RawDeliveryReport
	if err := json.Unmarshal(msg.Data, &raw); err != nil {
		natsMessagesReceivedCounter.WithLabelValues(consumerDLR, "invalid").Inc()
		c.logger.WarnContext(ctx, "Discarding undecodable delivery report", "subject", msg.Subject, "error", err)
		return nil
	}
	if err := c.validate.StructCtx(ctx, raw); err != nil {
		natsMessagesReceivedCounter.WithLabelValues(consumerDLR, "invalid").Inc()
		c.logger.WarnContext(ctx, "Discarding invalid delivery report", "subject", msg.Subject, "error", err)
		return nil
	}

	status := domain.ParseMessageStatus(raw.Status)
	report := domain.NewDeliveryReport(raw.MessageID, status, raw.DoneAt, c.now())
	if err := c.reports.Enqueue(ctx, report); err != nil {
		natsMessagesReceivedCounter.WithLabelValues(consumerDLR, "error").Inc()
		return fmt.Errorf("enqueue delivery report for %s: %w", raw.MessageID, err)
	}

	natsMessagesReceivedCounter.WithLabelValues(consumerDLR, "accepted").Inc()
	c.logger.DebugContext(ctx, "Delivery report queued", "report_id", report.ID, "external_id", raw.MessageID, "status", status)
	return nil
}
