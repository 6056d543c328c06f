package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Edwingudfriend/mifos-sms-gateway/internal/core_sms/domain"
)

// OutboundMessageRepository stores outbound SMS. Save must be durable
// before it returns.
type OutboundMessageRepository interface {
	Create(ctx context.Context, msg *domain.OutboundMessage) error
	// FindPending returns up to limit PENDING messages in a stable order.
	FindPending(ctx context.Context, limit int) ([]*domain.OutboundMessage, error)
	// FindByExternalID returns domain.ErrOutboundMessageNotFound when absent.
	FindByExternalID(ctx context.Context, externalID string) (*domain.OutboundMessage, error)
	Save(ctx context.Context, msg *domain.OutboundMessage) error
}

// DeliveryReportRepository is the queue of delivery reports awaiting reconciliation.
type DeliveryReportRepository interface {
	Enqueue(ctx context.Context, report *domain.DeliveryReport) error
	// FindDue returns up to limit reports with NextAttemptAt <= now, oldest first.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.DeliveryReport, error)
	// FindDueRetries is FindDue restricted to reports that already missed at least once.
	FindDueRetries(ctx context.Context, now time.Time, limit int) ([]*domain.DeliveryReport, error)
	Defer(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time) error
	// Delete returns domain.ErrDeliveryReportNotFound when the report is gone.
	Delete(ctx context.Context, id uuid.UUID) error
}
