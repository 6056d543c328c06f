package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Edwingudfriend/mifos-sms-gateway/internal/core_sms/domain"
	"github.com/Edwingudfriend/mifos-sms-gateway/internal/dispatch_service/repository"
	"github.com/Edwingudfriend/mifos-sms-gateway/internal/platform/config"
)

const (
	JobReconcile      = "reconcile"
	JobReconcileRetry = "reconcile_retry"
)

// EventPublisher publishes processed delivery reports. *messagebroker.NATSClient implements it.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// ReconcilerConfig holds the batch and retry budget of the reconciler.
type ReconcilerConfig struct {
	MaxBatch      int
	MaxRetries    int
	RetryInterval time.Duration
}

// DeliveryReconciler matches queued delivery reports to outbound messages.
// An unmatched report is deferred by RetryInterval instead of blocking the
// run; after MaxRetries deferrals it is dropped.
type DeliveryReconciler struct {
	reports   repository.DeliveryReportRepository
	messages  repository.OutboundMessageRepository
	gate      *SessionGate
	toggles   config.Toggles
	publisher EventPublisher
	logger    *slog.Logger
	cfg       ReconcilerConfig
	now       func() time.Time

	mu sync.Mutex
}

// NewDeliveryReconciler builds a reconciler. publisher may be nil.
func NewDeliveryReconciler(
	reports repository.DeliveryReportRepository,
	messages repository.OutboundMessageRepository,
	gate *SessionGate,
	toggles config.Toggles,
	publisher EventPublisher,
	logger *slog.Logger,
	cfg ReconcilerConfig,
) *DeliveryReconciler {
	return &DeliveryReconciler{
		reports:   reports,
		messages:  messages,
		gate:      gate,
		toggles:   toggles,
		publisher: publisher,
		logger:    logger.With("component", "delivery_reconciler"),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type reportFetcher func(ctx context.Context, now time.Time, limit int) ([]*domain.DeliveryReport, error)

// RunOnce processes every due report, fresh or deferred.
func (r *DeliveryReconciler) RunOnce(ctx context.Context) error {
	return r.run(ctx, JobReconcile, r.reports.FindDue)
}

// RetryDue processes only deferred reports whose retry time has come.
func (r *DeliveryReconciler) RetryDue(ctx context.Context) error {
	return r.run(ctx, JobReconcileRetry, r.reports.FindDueRetries)
}

func (r *DeliveryReconciler) run(ctx context.Context, job string, fetch reportFetcher) error {
	if !r.toggles.TransportEnabled() {
		r.logger.DebugContext(ctx, "Reconciliation disabled by feature toggles", "job", job)
		return nil
	}
	if !r.gate.Ready(ctx, job) {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	reports, err := fetch(ctx, r.now(), r.cfg.MaxBatch)
	if err != nil {
		return fmt.Errorf("find due delivery reports: %w", err)
	}
	if len(reports) == 0 {
		return nil
	}

	r.logger.InfoContext(ctx, "Reconciling delivery reports", "job", job, "count", len(reports))
	for i, report := range reports {
		if ctx.Err() != nil {
			r.logger.InfoContext(ctx, "Reconciliation interrupted, remaining reports stay queued",
				"job", job, "remaining", len(reports)-i)
			return nil
		}
		r.reconcile(ctx, report)
	}
	return nil
}

func (r *DeliveryReconciler) reconcile(ctx context.Context, report *domain.DeliveryReport) {
	log := r.logger.With("report_id", report.ID, "external_id", report.MessageID)

	msg, err := r.messages.FindByExternalID(ctx, report.MessageID)
	switch {
	case err == nil:
		r.apply(ctx, log, report, msg)
	case errors.Is(err, domain.ErrOutboundMessageNotFound):
		r.retryLater(ctx, log, report)
	case ctx.Err() != nil:
		log.InfoContext(ctx, "Lookup interrupted, report stays queued")
	default:
		deliveryReportsCounter.WithLabelValues("error").Inc()
		log.ErrorContext(ctx, "Failed to look up outbound message for delivery report", "error", err)
	}
}

func (r *DeliveryReconciler) apply(ctx context.Context, log *slog.Logger, report *domain.DeliveryReport, msg *domain.OutboundMessage) {
	now := r.now()
	if err := msg.ApplyDeliveryReport(report, now); err != nil {
		// the report can never apply, retrying it is pointless
		if delErr := r.reports.Delete(ctx, report.ID); delErr != nil {
			deliveryReportsCounter.WithLabelValues("error").Inc()
			log.ErrorContext(ctx, "Failed to drop unusable delivery report", "message_id", msg.ID, "error", delErr)
			return
		}
		deliveryReportsCounter.WithLabelValues("rejected").Inc()
		log.WarnContext(ctx, "Delivery report rejected, message left unchanged",
			"message_id", msg.ID, "message_status", msg.DeliveryStatus, "error", err)
		return
	}

	// the report may only go once the status update is durable
	if err := r.messages.Save(ctx, msg); err != nil {
		deliveryReportsCounter.WithLabelValues("error").Inc()
		log.ErrorContext(ctx, "Failed to save reconciled message, report stays queued", "message_id", msg.ID, "error", err)
		return
	}
	if err := r.reports.Delete(context.WithoutCancel(ctx), report.ID); err != nil {
		log.ErrorContext(ctx, "Message updated but delivery report could not be deleted", "message_id", msg.ID, "error", err)
	}
	deliveryReportsCounter.WithLabelValues("matched").Inc()
	log.InfoContext(ctx, "SMS message status updated from delivery report",
		"message_id", msg.ID, "status", msg.DeliveryStatus, "attempts", report.Attempts+1)

	r.publish(ctx, log, msg, now)
}

func (r *DeliveryReconciler) retryLater(ctx context.Context, log *slog.Logger, report *domain.DeliveryReport) {
	attempts := report.Attempts + 1
	if attempts > r.cfg.MaxRetries {
		if err := r.reports.Delete(ctx, report.ID); err != nil {
			deliveryReportsCounter.WithLabelValues("error").Inc()
			log.ErrorContext(ctx, "Failed to drop unmatched delivery report", "error", err)
			return
		}
		deliveryReportsCounter.WithLabelValues("dropped").Inc()
		log.WarnContext(ctx, "No outbound message matched delivery report, dropping it",
			"status", report.Status, "lookups", attempts)
		return
	}

	next := r.now().Add(r.cfg.RetryInterval)
	if err := r.reports.Defer(ctx, report.ID, attempts, next); err != nil {
		deliveryReportsCounter.WithLabelValues("error").Inc()
		log.ErrorContext(ctx, "Failed to defer unmatched delivery report", "error", err)
		return
	}
	deliveryReportsCounter.WithLabelValues("deferred").Inc()
	log.DebugContext(ctx, "Outbound message not visible yet, delivery report deferred",
		"attempt", attempts, "next_attempt_at", next)
}

func (r *DeliveryReconciler) publish(ctx context.Context, log *slog.Logger, msg *domain.OutboundMessage, processedAt time.Time) {
	if r.publisher == nil {
		return
	}
	event := domain.ProcessedDeliveryReport{
		MessageID:   msg.ID,
		ExternalID:  msg.ExternalIDOrEmpty(),
		Status:      msg.DeliveryStatus,
		DeliveredAt: msg.DeliveredAt,
		ProcessedAt: processedAt,
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.ErrorContext(ctx, "Failed to marshal processed delivery report", "error", err)
		return
	}
	if err := r.publisher.Publish(ctx, domain.ProcessedDeliveryReportSubject(msg.DeliveryStatus), data); err != nil {
		log.WarnContext(ctx, "Failed to publish processed delivery report", "error", err)
	}
}
