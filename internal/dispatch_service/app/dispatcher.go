package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Edwingudfriend/mifos-sms-gateway/internal/core_sms/domain"
	"github.com/Edwingudfriend/mifos-sms-gateway/internal/dispatch_service/repository"
	"github.com/Edwingudfriend/mifos-sms-gateway/internal/platform/config"
	"github.com/Edwingudfriend/mifos-sms-gateway/internal/smsgateway"
)

const JobDispatch = "dispatch"

// OutboundDispatcher sends PENDING messages through the gateway session.
type OutboundDispatcher struct {
	messages repository.OutboundMessageRepository
	session  smsgateway.Session
	gate     *SessionGate
	toggles  config.Toggles
	logger   *slog.Logger
	maxBatch int
	now      func() time.Time
}

func NewOutboundDispatcher(
	messages repository.OutboundMessageRepository,
	session smsgateway.Session,
	gate *SessionGate,
	toggles config.Toggles,
	logger *slog.Logger,
	maxBatch int,
) *OutboundDispatcher {
	return &OutboundDispatcher{
		messages: messages,
		session:  session,
		gate:     gate,
		toggles:  toggles,
		logger:   logger.With("component", "outbound_dispatcher"),
		maxBatch: maxBatch,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce dispatches at most one batch. Each message is saved right after its
// send, so an interrupted run leaves only unprocessed messages PENDING.
// Only a failed batch read is returned as an error.
func (d *OutboundDispatcher) RunOnce(ctx context.Context) error {
	if !d.toggles.OutboundSchedulingEnabled() || !d.toggles.SchedulerEnabled() || !d.toggles.TransportEnabled() {
		d.logger.DebugContext(ctx, "Dispatch disabled by feature toggles")
		return nil
	}
	if !d.gate.Ready(ctx, JobDispatch) {
		return nil
	}

	pending, err := d.messages.FindPending(ctx, d.maxBatch)
	if err != nil {
		return fmt.Errorf("find pending messages: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	d.logger.InfoContext(ctx, "Dispatching pending messages", "count", len(pending))
	var sent, failed int
	for _, msg := range pending {
		if ctx.Err() != nil {
			d.logger.InfoContext(ctx, "Dispatch interrupted, remaining messages stay pending",
				"processed", sent+failed, "remaining", len(pending)-sent-failed)
			return nil
		}

		resp, sendErr := d.session.Send(ctx, smsgateway.SendRequest{
			CorrelationID:      msg.ID,
			SourceAddress:      msg.SourceAddress,
			DestinationAddress: msg.DestinationAddress,
			Body:               msg.Body,
		})
		if sendErr != nil && ctx.Err() != nil {
			// shutdown interrupted the send; nothing is known about its outcome
			d.logger.InfoContext(ctx, "Send interrupted by shutdown, message stays pending", "message_id", msg.ID)
			return nil
		}

		externalID := ""
		if resp != nil {
			externalID = resp.ExternalID
		}
		if sendErr != nil {
			d.logger.WarnContext(ctx, "Gateway send failed", "message_id", msg.ID, "error", sendErr)
			externalID = ""
		}

		msg.MarkSubmitted(externalID, d.now())
		if msg.DeliveryStatus == domain.MessageStatusSent {
			sent++
		} else {
			failed++
		}

		// the gateway call already happened; the outcome must be recorded even during shutdown
		if err := d.messages.Save(context.WithoutCancel(ctx), msg); err != nil {
			messagesDispatchedCounter.WithLabelValues("save_error").Inc()
			d.logger.ErrorContext(ctx, "Failed to save dispatched message",
				"message_id", msg.ID, "external_id", externalID, "status", msg.DeliveryStatus, "error", err)
			continue
		}
		messagesDispatchedCounter.WithLabelValues(outcomeLabel(msg.DeliveryStatus)).Inc()
	}

	d.logger.InfoContext(ctx, "Dispatch run finished", "sent", sent, "failed", failed)
	return nil
}

func outcomeLabel(status domain.MessageStatus) string {
	if status == domain.MessageStatusSent {
		return "sent"
	}
	return "failed"
}
