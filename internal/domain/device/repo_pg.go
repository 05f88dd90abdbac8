package device

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type deviceRepoPG struct{ pool *pgxpool.Pool }

func NewDeviceRepoPG(pool *pgxpool.Pool) DeviceRepository {
	return &deviceRepoPG{pool: pool}
}

const deviceCols = `id, name, manufacturer, model, serial_number, protocol,
	connection_type, host, port, serial_port, baud_rate, is_active,
	last_connected, created_at, updated_at`

func (r *deviceRepoPG) scanDevice(row pgx.Row) (*Device, error) {
	var d Device
	err := row.Scan(&d.ID, &d.Name, &d.Manufacturer, &d.Model, &d.SerialNumber,
		&d.Protocol, &d.ConnectionType, &d.Host, &d.Port, &d.SerialPort,
		&d.BaudRate, &d.IsActive, &d.LastConnected, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &d, err
}

func (r *deviceRepoPG) Create(ctx context.Context, d *Device) error {
	d.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO device (id, name, manufacturer, model, serial_number,
			protocol, connection_type, host, port, serial_port, baud_rate, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		d.ID, d.Name, d.Manufacturer, d.Model, d.SerialNumber,
		d.Protocol, d.ConnectionType, d.Host, d.Port, d.SerialPort,
		d.BaudRate, d.IsActive)
	return err
}

func (r *deviceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Device, error) {
	return r.scanDevice(r.pool.QueryRow(ctx, `SELECT `+deviceCols+` FROM device WHERE id = $1`, id))
}

func (r *deviceRepoPG) Update(ctx context.Context, d *Device) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE device SET name=$2, manufacturer=$3, model=$4, serial_number=$5,
			protocol=$6, connection_type=$7, host=$8, port=$9, serial_port=$10,
			baud_rate=$11, is_active=$12, updated_at=NOW()
		WHERE id = $1`,
		d.ID, d.Name, d.Manufacturer, d.Model, d.SerialNumber,
		d.Protocol, d.ConnectionType, d.Host, d.Port, d.SerialPort,
		d.BaudRate, d.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *deviceRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM device WHERE id = $1`, id)
	return err
}

func (r *deviceRepoPG) List(ctx context.Context, limit, offset int) ([]*Device, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM device`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+deviceCols+` FROM device ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Device
	for rows.Next() {
		d, err := r.scanDevice(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *deviceRepoPG) ListActive(ctx context.Context) ([]*Device, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+deviceCols+` FROM device WHERE is_active ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Device
	for rows.Next() {
		d, err := r.scanDevice(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *deviceRepoPG) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE device SET is_active=$2, updated_at=NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *deviceRepoPG) TouchLastConnected(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE device SET last_connected=$2, updated_at=NOW() WHERE id = $1`, id, at)
	return err
}

func (r *deviceRepoPG) AddMapping(ctx context.Context, m *TestMapping) error {
	m.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO device_test_mapping (id, device_id, device_test_code, test_parameter_id)
		VALUES ($1,$2,$3,$4)`,
		m.ID, m.DeviceID, m.DeviceTestCode, m.TestParameterID)
	return err
}

func (r *deviceRepoPG) RemoveMapping(ctx context.Context, mappingID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM device_test_mapping WHERE id = $1`, mappingID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *deviceRepoPG) ListMappings(ctx context.Context, deviceID uuid.UUID) ([]*TestMapping, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, device_id, device_test_code, test_parameter_id, created_at
		FROM device_test_mapping WHERE device_id = $1 ORDER BY device_test_code`, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*TestMapping
	for rows.Next() {
		var m TestMapping
		if err := rows.Scan(&m.ID, &m.DeviceID, &m.DeviceTestCode, &m.TestParameterID, &m.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &m)
	}
	return items, rows.Err()
}
