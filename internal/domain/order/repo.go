package order

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no order test matches the given barcode.
var ErrNotFound = errors.New("order test not found")

type OrderRepository interface {
	// GetTestByBarcode finds the specimen line carrying the given barcode
	// and loads its parameter slots.
	GetTestByBarcode(ctx context.Context, barcode string) (*OrderTest, error)

	// GetTestsByOrderBarcode is the legacy fallback for devices that report
	// the order-level barcode instead of the specimen barcode.
	GetTestsByOrderBarcode(ctx context.Context, barcode string) ([]*OrderTest, error)

	// SetParameterResult writes a device result into one parameter slot and
	// marks it ENTERED. Re-delivery of the same result overwrites the slot,
	// which keeps ingestion idempotent.
	SetParameterResult(ctx context.Context, slotID uuid.UUID, entry ResultEntry, enteredBy string) error
}
