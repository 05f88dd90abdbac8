package ingest

import (
	"time"

	"github.com/google/uuid"
)

// Queue entry states. Only PENDING entries are claimed by workers;
// PROCESSED is terminal. ERROR and MANUAL_REVIEW wait for an operator,
// who may reset either back to PENDING.
const (
	StatusPending      = "PENDING"
	StatusProcessing   = "PROCESSING"
	StatusProcessed    = "PROCESSED"
	StatusError        = "ERROR"
	StatusManualReview = "MANUAL_REVIEW"
)

// QueueEntry is the durable work item for one inbound device message.
// Entries are created by the link layer, mutated only by the reconciler,
// and never deleted. The raw message is kept verbatim as an audit trail.
type QueueEntry struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	DeviceID     uuid.UUID  `db:"device_id" json:"device_id"`
	RawMessage   string     `db:"raw_message" json:"raw_message"`
	ParsedData   []byte     `db:"parsed_data" json:"parsed_data,omitempty"`
	Status       string     `db:"status" json:"status"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	OrderID      *uuid.UUID `db:"order_id" json:"order_id,omitempty"`
	OrderTestID  *uuid.UUID `db:"order_test_id" json:"order_test_id,omitempty"`
	PatientID    *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	Barcode      *string    `db:"barcode" json:"barcode,omitempty"`
	TestCode     *string    `db:"test_code" json:"test_code,omitempty"`
	Result       *string    `db:"result" json:"result,omitempty"`
	Unit         *string    `db:"unit" json:"unit,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time `db:"processed_at" json:"processed_at,omitempty"`
}

// Linkage is the resolved attribution of a queue entry: which order and
// specimen line received the write, and what value was entered. It is
// denormalized onto the entry so audit queries need no joins.
type Linkage struct {
	OrderID     uuid.UUID
	OrderTestID uuid.UUID
	Barcode     string
	TestCode    string
	Result      string
	Unit        string
}
