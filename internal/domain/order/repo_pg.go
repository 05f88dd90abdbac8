package order

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type orderRepoPG struct{ pool *pgxpool.Pool }

func NewOrderRepoPG(pool *pgxpool.Pool) OrderRepository {
	return &orderRepoPG{pool: pool}
}

const orderTestCols = `id, order_id, test_id, barcode, status, created_at`

func (r *orderRepoPG) GetTestByBarcode(ctx context.Context, barcode string) (*OrderTest, error) {
	var ot OrderTest
	err := r.pool.QueryRow(ctx,
		`SELECT `+orderTestCols+` FROM order_test WHERE barcode = $1`, barcode).
		Scan(&ot.ID, &ot.OrderID, &ot.TestID, &ot.Barcode, &ot.Status, &ot.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadParameters(ctx, &ot); err != nil {
		return nil, err
	}
	return &ot, nil
}

func (r *orderRepoPG) GetTestsByOrderBarcode(ctx context.Context, barcode string) ([]*OrderTest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ot.id, ot.order_id, ot.test_id, ot.barcode, ot.status, ot.created_at
		FROM order_test ot
		JOIN lab_order o ON o.id = ot.order_id
		WHERE o.barcode = $1
		ORDER BY ot.created_at`, barcode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tests []*OrderTest
	for rows.Next() {
		var ot OrderTest
		if err := rows.Scan(&ot.ID, &ot.OrderID, &ot.TestID, &ot.Barcode, &ot.Status, &ot.CreatedAt); err != nil {
			return nil, err
		}
		tests = append(tests, &ot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tests) == 0 {
		return nil, ErrNotFound
	}
	for _, ot := range tests {
		if err := r.loadParameters(ctx, ot); err != nil {
			return nil, err
		}
	}
	return tests, nil
}

func (r *orderRepoPG) loadParameters(ctx context.Context, ot *OrderTest) error {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_test_id, test_parameter_id, result_value, unit,
			reference_range, flags, status, measured_at, entered_at, entered_by
		FROM order_test_parameter
		WHERE order_test_id = $1`, ot.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var p OrderTestParameter
		if err := rows.Scan(&p.ID, &p.OrderTestID, &p.TestParameterID, &p.ResultValue,
			&p.Unit, &p.ReferenceRange, &p.Flags, &p.Status, &p.MeasuredAt, &p.EnteredAt, &p.EnteredBy); err != nil {
			return err
		}
		ot.Parameters = append(ot.Parameters, &p)
	}
	return rows.Err()
}

// SetParameterResult writes a device observation into a slot. entered_at
// records when the result landed in the system; the analyzer's own
// timestamp goes to measured_at.
func (r *orderRepoPG) SetParameterResult(ctx context.Context, slotID uuid.UUID, entry ResultEntry, enteredBy string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE order_test_parameter
		SET result_value=$2, unit=$3, reference_range=$4, flags=$5,
			status=$6, measured_at=$7, entered_at=NOW(), entered_by=$8
		WHERE id = $1`,
		slotID, entry.Value, nullable(entry.Unit), nullable(entry.ReferenceRange),
		nullable(entry.Flags), ParamEntered, entry.MeasuredAt, enteredBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
