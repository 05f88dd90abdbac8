package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/halilibrahimsaltas/HIS/internal/domain/device"
	"github.com/halilibrahimsaltas/HIS/internal/domain/order"
	"github.com/halilibrahimsaltas/HIS/internal/platform/protocol"
)

// reviewError aborts reconciliation of an entry into MANUAL_REVIEW rather
// than ERROR. A result that cannot be attributed to a patient must never
// be silently discarded nor guessed at.
type reviewError struct{ msg string }

func (e *reviewError) Error() string { return e.msg }

// DeviceSource is the slice of the device registry the reconciler reads.
type DeviceSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*device.Device, error)
	ListMappings(ctx context.Context, deviceID uuid.UUID) ([]*device.TestMapping, error)
}

// Reconciler turns one claimed queue entry into result writes on order
// parameter slots. All processing is keyed by slot id, so re-running an
// entry overwrites instead of duplicating.
type Reconciler struct {
	queue   QueueRepository
	devices DeviceSource
	orders  order.OrderRepository
	logger  zerolog.Logger
}

func NewReconciler(queue QueueRepository, devices DeviceSource, orders order.OrderRepository, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		queue:   queue,
		devices: devices,
		orders:  orders,
		logger:  logger.With().Str("component", "reconciler").Logger(),
	}
}

// finalizeTimeout bounds the status write that closes out an entry.
const finalizeTimeout = 5 * time.Second

// Process runs the reconciliation algorithm on an already-claimed entry
// and finalizes its status. The returned error reflects only failures to
// persist the final status, not reconciliation outcomes.
//
// The final status write uses its own context: ctx may already be dead
// when reconcile returns (processing timeout, shutdown), and the entry
// must still leave PROCESSING or it would wedge there with no worker
// ever reclaiming it.
func (r *Reconciler) Process(ctx context.Context, e *QueueEntry) error {
	err := r.reconcile(ctx, e)

	fctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if err == nil {
		return r.queue.MarkProcessed(fctx, e.ID)
	}

	var review *reviewError
	if errors.As(err, &review) {
		r.logger.Warn().Stringer("entry_id", e.ID).Str("reason", review.msg).Msg("entry needs manual review")
		return r.queue.MarkManualReview(fctx, e.ID, review.msg)
	}

	r.logger.Error().Err(err).Stringer("entry_id", e.ID).Msg("entry failed")
	return r.queue.MarkError(fctx, e.ID, err.Error())
}

func (r *Reconciler) reconcile(ctx context.Context, e *QueueEntry) error {
	dev, err := r.devices.GetByID(ctx, e.DeviceID)
	if err != nil {
		return fmt.Errorf("load device: %w", err)
	}

	parser, err := protocol.ForProtocol(string(dev.Protocol))
	if err != nil {
		return err
	}

	observations := parser.Parse(e.RawMessage)
	if len(observations) == 0 {
		return fmt.Errorf("no parseable result")
	}

	parsed, err := json.Marshal(observations)
	if err != nil {
		return fmt.Errorf("marshal observations: %w", err)
	}
	if err := r.queue.SaveParsed(ctx, e.ID, parsed); err != nil {
		return fmt.Errorf("save parsed data: %w", err)
	}

	mappings, err := r.devices.ListMappings(ctx, e.DeviceID)
	if err != nil {
		return fmt.Errorf("load test mappings: %w", err)
	}
	codeToParam := make(map[string]device.TestMapping, len(mappings))
	for _, m := range mappings {
		codeToParam[m.DeviceTestCode] = *m
	}

	for _, ob := range observations {
		m, ok := codeToParam[ob.TestCode]
		if !ok {
			r.logger.Warn().
				Stringer("entry_id", e.ID).
				Str("test_code", ob.TestCode).
				Msg("unmapped test code, observation skipped")
			continue
		}

		tests, err := r.resolveBarcode(ctx, ob.Barcode)
		if err != nil {
			return err
		}

		slot, owner := findSlot(tests, m)
		if slot == nil {
			r.logger.Warn().
				Stringer("entry_id", e.ID).
				Str("barcode", ob.Barcode).
				Stringer("test_parameter_id", m.TestParameterID).
				Msg("no parameter slot for mapped code, observation skipped")
			continue
		}

		entry := order.ResultEntry{
			Value:          ob.Result,
			Unit:           ob.Unit,
			ReferenceRange: ob.ReferenceRange,
			Flags:          strings.Join(ob.Flags, ","),
			MeasuredAt:     ob.Timestamp,
		}
		if err := r.orders.SetParameterResult(ctx, slot.ID, entry, order.EnteredByDevice); err != nil {
			return fmt.Errorf("write result for %s: %w", ob.TestCode, err)
		}
		if err := r.queue.RecordLinkage(ctx, e.ID, Linkage{
			OrderID:     owner.OrderID,
			OrderTestID: owner.ID,
			Barcode:     ob.Barcode,
			TestCode:    ob.TestCode,
			Result:      ob.Result,
			Unit:        ob.Unit,
		}); err != nil {
			return fmt.Errorf("record linkage: %w", err)
		}

		r.logger.Info().
			Stringer("entry_id", e.ID).
			Str("test_code", ob.TestCode).
			Str("barcode", ob.Barcode).
			Str("result", ob.Result).
			Msg("result entered")
	}
	return nil
}

// resolveBarcode finds the specimen lines a barcode refers to. The
// per-test-line barcode is authoritative; the order-level barcode is a
// legacy fallback that fans out over all of the order's lines.
func (r *Reconciler) resolveBarcode(ctx context.Context, barcode string) ([]*order.OrderTest, error) {
	if barcode == "" {
		return nil, &reviewError{msg: "observation carries no barcode"}
	}
	ot, err := r.orders.GetTestByBarcode(ctx, barcode)
	if err == nil {
		return []*order.OrderTest{ot}, nil
	}
	if !errors.Is(err, order.ErrNotFound) {
		return nil, fmt.Errorf("lookup barcode %s: %w", barcode, err)
	}

	tests, err := r.orders.GetTestsByOrderBarcode(ctx, barcode)
	if err == nil {
		return tests, nil
	}
	if !errors.Is(err, order.ErrNotFound) {
		return nil, fmt.Errorf("lookup order barcode %s: %w", barcode, err)
	}
	return nil, &reviewError{msg: fmt.Sprintf("no order test matches barcode %s", barcode)}
}

func findSlot(tests []*order.OrderTest, m device.TestMapping) (*order.OrderTestParameter, *order.OrderTest) {
	for _, ot := range tests {
		for _, p := range ot.Parameters {
			if p.TestParameterID == m.TestParameterID {
				return p, ot
			}
		}
	}
	return nil, nil
}
