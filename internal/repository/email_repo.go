package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"briefd/internal/model"
)

type InboundEmailRepository struct {
	db *pgxpool.Pool
}

func NewInboundEmailRepository(db *pgxpool.Pool) *InboundEmailRepository {
	return &InboundEmailRepository{db: db}
}

// Create writes the audit row for a delivered email.
func (r *InboundEmailRepository) Create(ctx context.Context, e *model.InboundEmail) error {
	query := `
        INSERT INTO inbound_emails (
            id, message_id, recipient, sender, subject, received_at, blob_key, created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
    `
	_, err := r.db.Exec(ctx, query,
		e.ID, e.MessageID, e.Recipient, e.Sender, e.Subject, e.ReceivedAt, e.BlobKey,
	)
	return err
}

func (r *InboundEmailRepository) FindByMessageID(ctx context.Context, messageID string) (*model.InboundEmail, error) {
	var e model.InboundEmail
	err := r.db.QueryRow(ctx, `
        SELECT id, message_id, recipient, sender, subject, received_at, blob_key, created_at
        FROM inbound_emails
        WHERE message_id = $1
    `, messageID).Scan(
		&e.ID, &e.MessageID, &e.Recipient, &e.Sender, &e.Subject,
		&e.ReceivedAt, &e.BlobKey, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
