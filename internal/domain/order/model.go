package order

import (
	"time"

	"github.com/google/uuid"
)

// Parameter entry states. A slot moves PENDING -> ENTERED when a device
// result lands, and ENTERED -> APPROVED when a technician signs off.
const (
	ParamPending  = "PENDING"
	ParamEntered  = "ENTERED"
	ParamApproved = "APPROVED"
)

// EnteredByDevice marks results written by the ingestion pipeline rather
// than a human operator.
const EnteredByDevice = "device"

// Order is a lab order grouping one or more specimen lines.
type Order struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Barcode   *string    `db:"barcode" json:"barcode,omitempty"`
	PatientID *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	Status    string     `db:"status" json:"status"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// OrderTest is a specimen line within an order. Its barcode is the value
// analyzers report back and is the primary linkage key for results.
type OrderTest struct {
	ID         uuid.UUID             `db:"id" json:"id"`
	OrderID    uuid.UUID             `db:"order_id" json:"order_id"`
	TestID     uuid.UUID             `db:"test_id" json:"test_id"`
	Barcode    string                `db:"barcode" json:"barcode"`
	Status     string                `db:"status" json:"status"`
	CreatedAt  time.Time             `db:"created_at" json:"created_at"`
	Parameters []*OrderTestParameter `db:"-" json:"parameters,omitempty"`
}

// OrderTestParameter is a single result slot on a specimen line. The slot
// is keyed by TestParameterID, which device test codes map onto.
type OrderTestParameter struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	OrderTestID     uuid.UUID  `db:"order_test_id" json:"order_test_id"`
	TestParameterID uuid.UUID  `db:"test_parameter_id" json:"test_parameter_id"`
	ResultValue     *string    `db:"result_value" json:"result_value,omitempty"`
	Unit            *string    `db:"unit" json:"unit,omitempty"`
	ReferenceRange  *string    `db:"reference_range" json:"reference_range,omitempty"`
	Flags           *string    `db:"flags" json:"flags,omitempty"`
	Status          string     `db:"status" json:"status"`
	MeasuredAt      *time.Time `db:"measured_at" json:"measured_at,omitempty"`
	EnteredAt       *time.Time `db:"entered_at" json:"entered_at,omitempty"`
	EnteredBy       *string    `db:"entered_by" json:"entered_by,omitempty"`
}

// ResultEntry carries one device observation into a parameter slot.
// MeasuredAt is the analyzer's own timestamp; the write time is stamped
// by the repository.
type ResultEntry struct {
	Value          string
	Unit           string
	ReferenceRange string
	Flags          string
	MeasuredAt     time.Time
}
