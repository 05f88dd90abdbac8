package ingest

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a queue entry does not exist.
	ErrNotFound = errors.New("queue entry not found")

	// ErrEmpty is returned by ClaimNext when no PENDING entry is available.
	ErrEmpty = errors.New("queue is empty")

	// ErrNotRetryable is returned when Retry is called on an entry that is
	// not in a retryable state.
	ErrNotRetryable = errors.New("entry is not retryable")
)

type QueueRepository interface {
	// Create persists a new PENDING entry. The write must complete before
	// the enqueue is acknowledged so a crash cannot lose a received message.
	Create(ctx context.Context, deviceID uuid.UUID, rawMessage string) (*QueueEntry, error)

	// ClaimNext atomically moves the oldest PENDING entry to PROCESSING and
	// returns it. At most one worker can win a given entry.
	ClaimNext(ctx context.Context) (*QueueEntry, error)

	// SaveParsed checkpoints the parsed observation snapshot onto the entry
	// so a crash mid-processing still leaves forensic data.
	SaveParsed(ctx context.Context, id uuid.UUID, parsed []byte) error

	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkError(ctx context.Context, id uuid.UUID, msg string) error
	MarkManualReview(ctx context.Context, id uuid.UUID, msg string) error

	// RecordLinkage stores the resolved attribution on the entry for audit
	// queries. The patient id is derived from the linked order.
	RecordLinkage(ctx context.Context, id uuid.UUID, l Linkage) error

	// Retry resets an ERROR, MANUAL_REVIEW, or stale PROCESSING entry back
	// to PENDING and clears its error message. PROCESSING is accepted so an
	// operator can recover entries orphaned by a worker crash.
	Retry(ctx context.Context, id uuid.UUID) error

	GetByID(ctx context.Context, id uuid.UUID) (*QueueEntry, error)
	List(ctx context.Context, status string, limit, offset int) ([]*QueueEntry, int, error)
	ListByDevice(ctx context.Context, deviceID uuid.UUID, limit, offset int) ([]*QueueEntry, int, error)
}
