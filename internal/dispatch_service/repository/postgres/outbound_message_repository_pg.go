package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Edwingudfriend/mifos-sms-gateway/internal/core_sms/domain"
	"github.com/Edwingudfriend/mifos-sms-gateway/internal/dispatch_service/repository"
	"github.com/Edwingudfriend/mifos-sms-gateway/internal/platform/database"
)

const outboundMessageColumns = `id, external_id, source_address, mobile_number, message, delivery_status,
		submitted_on_date, delivered_on_date, created_at, updated_at`

type PgOutboundMessageRepository struct {
	db     database.PgxPool
	logger *slog.Logger
}

func NewPgOutboundMessageRepository(db database.PgxPool, logger *slog.Logger) repository.OutboundMessageRepository {
	return &PgOutboundMessageRepository{db: db, logger: logger.With("component", "outbound_message_repository_pg")}
}

func (r *PgOutboundMessageRepository) Create(ctx context.Context, msg *domain.OutboundMessage) error {
	query := `INSERT INTO sms_outbound_message (` + outboundMessageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.Exec(ctx, query,
		msg.ID, msg.ExternalID, msg.SourceAddress, msg.DestinationAddress, msg.Body, msg.DeliveryStatus,
		msg.SubmittedAt, msg.DeliveredAt, msg.CreatedAt, msg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbound message %s: %w", msg.ID, err)
	}
	return nil
}

func (r *PgOutboundMessageRepository) FindPending(ctx context.Context, limit int) ([]*domain.OutboundMessage, error) {
	query := `SELECT ` + outboundMessageColumns + `
		FROM sms_outbound_message
		WHERE delivery_status = $1
		ORDER BY created_at, id
		LIMIT $2`
	rows, err := r.db.Query(ctx, query, domain.MessageStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending messages: %w", err)
	}
	defer rows.Close()

	var messages []*domain.OutboundMessage
	for rows.Next() {
		msg, err := scanOutboundMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending messages: %w", err)
	}
	return messages, nil
}

func (r *PgOutboundMessageRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.OutboundMessage, error) {
	query := `SELECT ` + outboundMessageColumns + `
		FROM sms_outbound_message
		WHERE external_id = $1`
	msg, err := scanOutboundMessage(r.db.QueryRow(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOutboundMessageNotFound
		}
		return nil, err
	}
	return msg, nil
}

// Save writes the mutable columns in a single statement.
func (r *PgOutboundMessageRepository) Save(ctx context.Context, msg *domain.OutboundMessage) error {
	query := `UPDATE sms_outbound_message
		SET external_id = $2, delivery_status = $3, submitted_on_date = $4, delivered_on_date = $5, updated_at = $6
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query,
		msg.ID, msg.ExternalID, msg.DeliveryStatus, msg.SubmittedAt, msg.DeliveredAt, msg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update outbound message %s: %w", msg.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOutboundMessageNotFound
	}
	r.logger.DebugContext(ctx, "Outbound message saved", "message_id", msg.ID, "status", msg.DeliveryStatus)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutboundMessage(row rowScanner) (*domain.OutboundMessage, error) {
	var (
		msg domain.OutboundMessage
		id  string
	)
	// delivery_status goes through MessageStatus.Scan, which rejects unknown values
	err := row.Scan(
		&id, &msg.ExternalID, &msg.SourceAddress, &msg.DestinationAddress, &msg.Body, &msg.DeliveryStatus,
		&msg.SubmittedAt, &msg.DeliveredAt, &msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan outbound message: %w", err)
	}
	if msg.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse outbound message id %q: %w", id, err)
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	msg.UpdatedAt = msg.UpdatedAt.UTC()
	return &msg, nil
}

