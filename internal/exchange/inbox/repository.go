package inbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository is the pgx-backed inbox store. The external_id column
// carries a unique constraint; a violation is the dedup signal.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Insert records a new inbound message. A duplicate external id returns
// ErrDuplicateMessage without writing anything.
func (r *PgRepository) Insert(ctx context.Context, msg Message) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO inbox_messages
  (id, external_id, document_type, business_process, sender_party, receiver_party,
   payload, received_at, processed, attempts)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, 0)`,
		msg.ID, msg.ExternalID, msg.DocumentType, msg.BusinessProcess,
		msg.SenderParty, msg.ReceiverParty, msg.Payload, msg.ReceivedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateMessage
		}
		return err
	}
	return nil
}

// GetByExternalID loads a message by its hub identifier.
func (r *PgRepository) GetByExternalID(ctx context.Context, externalID string) (Message, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, external_id, document_type, business_process, sender_party, receiver_party,
       payload, received_at, processed, processed_at, processing_error, attempts
FROM inbox_messages WHERE external_id=$1`, externalID)
	return scanInbound(row)
}

// MarkProcessed flags a message as successfully handled.
func (r *PgRepository) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE inbox_messages SET processed=TRUE, processed_at=$1, processing_error=NULL
WHERE id=$2`, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// RecordFailure stores the attempt count and last error of a failed
// handler dispatch.
func (r *PgRepository) RecordFailure(ctx context.Context, id uuid.UUID, attempts int, processingError string) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE inbox_messages SET attempts=$1, processing_error=$2 WHERE id=$3`,
		attempts, processingError, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// ListUnprocessed returns unprocessed messages below the attempt ceiling,
// oldest first.
func (r *PgRepository) ListUnprocessed(ctx context.Context, maxAttempts, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, external_id, document_type, business_process, sender_party, receiver_party,
       payload, received_at, processed, processed_at, processing_error, attempts
FROM inbox_messages
WHERE processed=FALSE AND attempts < $1
ORDER BY received_at ASC LIMIT $2`, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		msg, err := scanInbound(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// ListFailed returns unprocessed messages that exhausted their attempts.
func (r *PgRepository) ListFailed(ctx context.Context, maxAttempts, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, external_id, document_type, business_process, sender_party, receiver_party,
       payload, received_at, processed, processed_at, processing_error, attempts
FROM inbox_messages
WHERE processed=FALSE AND attempts >= $1
ORDER BY received_at ASC LIMIT $2`, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		msg, err := scanInbound(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInbound(row rowScanner) (Message, error) {
	var msg Message
	var processingError *string
	err := row.Scan(&msg.ID, &msg.ExternalID, &msg.DocumentType, &msg.BusinessProcess,
		&msg.SenderParty, &msg.ReceiverParty, &msg.Payload, &msg.ReceivedAt,
		&msg.Processed, &msg.ProcessedAt, &processingError, &msg.Attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrMessageNotFound
		}
		return Message{}, err
	}
	if processingError != nil {
		msg.ProcessingError = *processingError
	}
	return msg, nil
}
