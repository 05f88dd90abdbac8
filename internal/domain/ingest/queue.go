package ingest

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Queue accepts raw device messages and hands them to the worker pool.
// The entry is persisted before Enqueue returns so a crash between
// "received" and "queued" cannot lose a message; the wake signal after
// the write is purely an optimization over the poll interval.
type Queue struct {
	repo   QueueRepository
	logger zerolog.Logger
	wake   chan struct{}
}

func NewQueue(repo QueueRepository, logger zerolog.Logger) *Queue {
	return &Queue{
		repo:   repo,
		logger: logger.With().Str("component", "ingest-queue").Logger(),
		wake:   make(chan struct{}, 1),
	}
}

// Enqueue persists one raw message as a PENDING entry. Implements the
// sink the link layer forwards inbound data to.
func (q *Queue) Enqueue(ctx context.Context, deviceID uuid.UUID, rawMessage string) error {
	e, err := q.repo.Create(ctx, deviceID, rawMessage)
	if err != nil {
		return err
	}
	q.logger.Debug().
		Stringer("entry_id", e.ID).
		Stringer("device_id", deviceID).
		Int("bytes", len(rawMessage)).
		Msg("message enqueued")

	q.Nudge()
	return nil
}

// Nudge wakes an idle worker without enqueueing anything. Used after an
// operator retry resets an entry to PENDING.
func (q *Queue) Nudge() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Wake signals when new work may be available. Workers also poll, so a
// missed signal only delays pickup by one poll interval.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}
