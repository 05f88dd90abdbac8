package ingest

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queueRepoPG struct{ pool *pgxpool.Pool }

func NewQueueRepoPG(pool *pgxpool.Pool) QueueRepository {
	return &queueRepoPG{pool: pool}
}

const queueCols = `id, device_id, raw_message, parsed_data, status, error_message,
	order_id, order_test_id, patient_id, barcode, test_code, result, unit,
	created_at, processed_at`

func scanEntry(row pgx.Row) (*QueueEntry, error) {
	var e QueueEntry
	err := row.Scan(&e.ID, &e.DeviceID, &e.RawMessage, &e.ParsedData, &e.Status,
		&e.ErrorMessage, &e.OrderID, &e.OrderTestID, &e.PatientID,
		&e.Barcode, &e.TestCode, &e.Result, &e.Unit,
		&e.CreatedAt, &e.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &e, err
}

func (r *queueRepoPG) Create(ctx context.Context, deviceID uuid.UUID, rawMessage string) (*QueueEntry, error) {
	id := uuid.New()
	return scanEntry(r.pool.QueryRow(ctx, `
		INSERT INTO device_result_queue (id, device_id, raw_message, status)
		VALUES ($1, $2, $3, $4)
		RETURNING `+queueCols,
		id, deviceID, rawMessage, StatusPending))
}

// ClaimNext wins the oldest PENDING entry with a conditional update. The
// SKIP LOCKED subselect lets concurrent workers claim distinct entries
// without blocking on each other.
func (r *queueRepoPG) ClaimNext(ctx context.Context) (*QueueEntry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `
		UPDATE device_result_queue
		SET status = $1
		WHERE id = (
			SELECT id FROM device_result_queue
			WHERE status = $2
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+queueCols,
		StatusProcessing, StatusPending))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrEmpty
	}
	return e, err
}

func (r *queueRepoPG) SaveParsed(ctx context.Context, id uuid.UUID, parsed []byte) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE device_result_queue SET parsed_data = $2 WHERE id = $1`, id, parsed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *queueRepoPG) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE device_result_queue
		SET status = $2, error_message = NULL, processed_at = NOW()
		WHERE id = $1`, id, StatusProcessed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *queueRepoPG) MarkError(ctx context.Context, id uuid.UUID, msg string) error {
	return r.finalize(ctx, id, StatusError, msg)
}

func (r *queueRepoPG) MarkManualReview(ctx context.Context, id uuid.UUID, msg string) error {
	return r.finalize(ctx, id, StatusManualReview, msg)
}

func (r *queueRepoPG) finalize(ctx context.Context, id uuid.UUID, status, msg string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE device_result_queue
		SET status = $2, error_message = $3, processed_at = NOW()
		WHERE id = $1`, id, status, msg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *queueRepoPG) RecordLinkage(ctx context.Context, id uuid.UUID, l Linkage) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE device_result_queue
		SET order_id = $2, order_test_id = $3,
			patient_id = (SELECT patient_id FROM lab_order WHERE id = $2),
			barcode = $4, test_code = $5, result = $6, unit = $7
		WHERE id = $1`,
		id, l.OrderID, l.OrderTestID, l.Barcode, l.TestCode, l.Result, l.Unit)
	return err
}

func (r *queueRepoPG) Retry(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE device_result_queue
		SET status = $1, error_message = NULL, processed_at = NULL
		WHERE id = $2 AND status IN ($3, $4, $5)`,
		StatusPending, id, StatusError, StatusManualReview, StatusProcessing)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrNotRetryable
	}
	return nil
}

func (r *queueRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	return scanEntry(r.pool.QueryRow(ctx,
		`SELECT `+queueCols+` FROM device_result_queue WHERE id = $1`, id))
}

func (r *queueRepoPG) List(ctx context.Context, status string, limit, offset int) ([]*QueueEntry, int, error) {
	// NULLIF makes an empty status filter match every row.
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM device_result_queue
		WHERE status = COALESCE(NULLIF($1, ''), status)`, status).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+queueCols+` FROM device_result_queue
		WHERE status = COALESCE(NULLIF($1, ''), status)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectEntries(rows)
	return items, total, err
}

func (r *queueRepoPG) ListByDevice(ctx context.Context, deviceID uuid.UUID, limit, offset int) ([]*QueueEntry, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM device_result_queue WHERE device_id = $1`, deviceID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+queueCols+` FROM device_result_queue
		WHERE device_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, deviceID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectEntries(rows)
	return items, total, err
}

func collectEntries(rows pgx.Rows) ([]*QueueEntry, error) {
	var items []*QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
