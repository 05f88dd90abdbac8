package device

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a device or mapping does not exist.
var ErrNotFound = errors.New("device not found")

type DeviceRepository interface {
	Create(ctx context.Context, d *Device) error
	GetByID(ctx context.Context, id uuid.UUID) (*Device, error)
	Update(ctx context.Context, d *Device) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Device, int, error)
	ListActive(ctx context.Context) ([]*Device, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	TouchLastConnected(ctx context.Context, id uuid.UUID, at time.Time) error

	AddMapping(ctx context.Context, m *TestMapping) error
	RemoveMapping(ctx context.Context, mappingID uuid.UUID) error
	ListMappings(ctx context.Context, deviceID uuid.UUID) ([]*TestMapping, error)
}
