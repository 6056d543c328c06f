package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Edwingudfriend/mifos-sms-gateway/internal/core_sms/domain"
	"github.com/Edwingudfriend/mifos-sms-gateway/internal/dispatch_service/repository"
	"github.com/Edwingudfriend/mifos-sms-gateway/internal/platform/database"
)

const deliveryReportColumns = `id, message_id, delivery_status, done_on_date, attempts, next_attempt_at, created_at`

type PgDeliveryReportRepository struct {
	db     database.PgxPool
	logger *slog.Logger
}

func NewPgDeliveryReportRepository(db database.PgxPool, logger *slog.Logger) repository.DeliveryReportRepository {
	return &PgDeliveryReportRepository{db: db, logger: logger.With("component", "delivery_report_repository_pg")}
}

func (r *PgDeliveryReportRepository) Enqueue(ctx context.Context, report *domain.DeliveryReport) error {
	query := `INSERT INTO sms_delivery_report (` + deliveryReportColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Exec(ctx, query,
		report.ID, report.MessageID, report.Status, report.CompletedAt,
		report.Attempts, report.NextAttemptAt, report.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery report %s: %w", report.ID, err)
	}
	return nil
}

func (r *PgDeliveryReportRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.DeliveryReport, error) {
	query := `SELECT ` + deliveryReportColumns + `
		FROM sms_delivery_report
		WHERE next_attempt_at <= $1
		ORDER BY created_at, id
		LIMIT $2`
	return r.query(ctx, query, now, limit)
}

func (r *PgDeliveryReportRepository) FindDueRetries(ctx context.Context, now time.Time, limit int) ([]*domain.DeliveryReport, error) {
	query := `SELECT ` + deliveryReportColumns + `
		FROM sms_delivery_report
		WHERE attempts > 0 AND next_attempt_at <= $1
		ORDER BY created_at, id
		LIMIT $2`
	return r.query(ctx, query, now, limit)
}

func (r *PgDeliveryReportRepository) query(ctx context.Context, query string, args ...any) ([]*domain.DeliveryReport, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query delivery reports: %w", err)
	}
	defer rows.Close()

	var reports []*domain.DeliveryReport
	for rows.Next() {
		var (
			rep domain.DeliveryReport
			id  string
		)
		if err := rows.Scan(&id, &rep.MessageID, &rep.Status, &rep.CompletedAt, &rep.Attempts, &rep.NextAttemptAt, &rep.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery report: %w", err)
		}
		if rep.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse delivery report id %q: %w", id, err)
		}
		reports = append(reports, &rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery reports: %w", err)
	}
	return reports, nil
}

func (r *PgDeliveryReportRepository) Defer(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE sms_delivery_report SET attempts = $2, next_attempt_at = $3 WHERE id = $1`,
		id, attempts, nextAttemptAt,
	)
	if err != nil {
		return fmt.Errorf("defer delivery report %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDeliveryReportNotFound
	}
	return nil
}

func (r *PgDeliveryReportRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM sms_delivery_report WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete delivery report %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDeliveryReportNotFound
	}
	r.logger.DebugContext(ctx, "Delivery report deleted", "report_id", id)
	return nil
}
