// Package inventory provides the transaction coordinator: the four mutating
// operations of the stock engine. Each runs inside one atomic unit of work,
// validates business rules, writes one or more ledger rows, and refreshes
// the cached quantity on the item record from a post-write recomputation.
package inventory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"larder/internal/core/appctx"
	"larder/internal/core/apperror"
	"larder/internal/core/id"
	"larder/internal/core/tx"
	"larder/internal/core/types"
	"larder/pkg/logger"

	"larder/internal/domain/catalog/batch"
	"larder/internal/domain/catalog/item"
	"larder/internal/domain/catalog/location"
	"larder/internal/domain/ledger"
	"larder/internal/domain/reorder"
)

// Coordinator executes the mutating inventory operations.
type Coordinator struct {
	txm        tx.Manager
	movements  ledger.Repository
	aggregator *ledger.Aggregator
	fefo       *ledger.FEFOSelector
	items      item.Repository
	locations  location.Repository
	batches    batch.Repository
	monitor    *reorder.Monitor
	activity   ActivityRecorder
}

// NewCoordinator creates the transaction coordinator. All collaborators are
// injected; the coordinator holds no ambient state.
func NewCoordinator(
	txm tx.Manager,
	movements ledger.Repository,
	aggregator *ledger.Aggregator,
	fefo *ledger.FEFOSelector,
	items item.Repository,
	locations location.Repository,
	batches batch.Repository,
	monitor *reorder.Monitor,
	activity ActivityRecorder,
) *Coordinator {
	if activity == nil {
		activity = NopActivityRecorder{}
	}
	return &Coordinator{
		txm:        txm,
		movements:  movements,
		aggregator: aggregator,
		fefo:       fefo,
		items:      items,
		locations:  locations,
		batches:    batches,
		monitor:    monitor,
		activity:   activity,
	}
}

// ReceiveInput carries the parameters of a stock receipt.
type ReceiveInput struct {
	ItemID     id.ID
	Qty        types.Quantity
	LocationID id.ID

	// BatchID references an existing lot. When absent and BatchPayload is
	// supplied, a new batch is synthesized first. An existing batch wins
	// over a payload.
	BatchID      *id.ID
	BatchPayload *batch.Payload

	ReferenceKind  string // defaults to "goods_receipt"
	ReferenceID    string
	EffectiveAt    *time.Time
	IdempotencyKey *string
}

// Receive records a stock receipt: one positive RECEIPT movement, an
// updated last-restocked timestamp, and a recomputed cached quantity.
func (c *Coordinator) Receive(ctx context.Context, in ReceiveInput) (*ledger.Movement, error) {
	if !in.Qty.IsPositive() {
		return nil, apperror.NewValidation("qty must be positive for receipt").
			WithDetail("qty", in.Qty.String())
	}
	if in.ReferenceKind == "" {
		in.ReferenceKind = "goods_receipt"
	}

	var result *ledger.Movement
	err := c.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if replayed, ok, err := c.replay(ctx, in.IdempotencyKey); err != nil {
			return err
		} else if ok {
			if err := c.verifyReceiptReplay(replayed, in); err != nil {
				return err
			}
			result = replayed[0]
			return nil
		}

		it, err := c.items.GetForUpdate(ctx, in.ItemID)
		if err != nil {
			return err
		}
		if _, err := c.locations.GetByID(ctx, in.LocationID); err != nil {
			return err
		}

		now := time.Now().UTC()
		effective := now
		if in.EffectiveAt != nil {
			effective = *in.EffectiveAt
		}

		batchID, err := c.resolveBatch(ctx, in, now)
		if err != nil {
			return err
		}

		mv := &ledger.Movement{
			ID:             id.New(),
			OperationID:    id.New(),
			ItemID:         in.ItemID,
			LocationID:     in.LocationID,
			BatchID:        batchID,
			Kind:           ledger.KindReceipt,
			Qty:            in.Qty,
			EffectiveAt:    effective,
			RecordedAt:     now,
			ActorID:        appctx.GetActorID(ctx),
			ReferenceKind:  in.ReferenceKind,
			ReferenceID:    in.ReferenceID,
			IdempotencyKey: in.IdempotencyKey,
		}
		if err := c.movements.Append(ctx, []*ledger.Movement{mv}); err != nil {
			return fmt.Errorf("append receipt: %w", err)
		}

		newQty, err := c.refreshCachedQuantity(ctx, in.ItemID, &now)
		if err != nil {
			return err
		}

		c.recordActivity(ctx, Activity{
			ID:          id.New(),
			ItemID:      in.ItemID,
			OperationID: mv.OperationID,
			Action:      ActionReceive,
			QtyChange:   in.Qty,
			PreviousQty: it.Quantity,
			NewQty:      newQty,
			Reason:      in.ReferenceID,
			ActorID:     mv.ActorID,
			CreatedAt:   now,
		})

		result = mv
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock received",
		"item_id", in.ItemID,
		"location_id", in.LocationID,
		"qty", in.Qty.String(),
	)
	return result, nil
}

// Component is one (item, requested quantity) entry of an order consumption.
type Component struct {
	ItemID id.ID
	Qty    types.Quantity
}

// ConsumeInput carries the parameters of an order consumption.
type ConsumeInput struct {
	OrderID        string
	Components     []Component
	LocationID     id.ID
	EffectiveAt    *time.Time
	FEFO           bool
	IdempotencyKey *string
}

// ConsumeForOrder depletes stock for an order. Non-positive requested
// quantities are skipped; a request exceeding the item's total availability
// at the location fails the whole operation with no partial commit. With
// FEFO enabled, batches are depleted in first-expired-first-out order, one
// negative SALE movement per batch touched; any remainder not covered by
// batches is recorded as one unbatched SALE movement.
func (c *Coordinator) ConsumeForOrder(ctx context.Context, in ConsumeInput) ([]*ledger.Movement, error) {
	if in.OrderID == "" {
		return nil, apperror.NewValidation("order id is required").
			WithDetail("field", "orderId")
	}

	var result []*ledger.Movement
	var affected []id.ID

	err := c.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if replayed, ok, err := c.replay(ctx, in.IdempotencyKey); err != nil {
			return err
		} else if ok {
			if err := verifyReferenceReplay(replayed[0], "order", in.OrderID, *in.IdempotencyKey); err != nil {
				return err
			}
			result = replayed
			return nil
		}

		if _, err := c.locations.GetByID(ctx, in.LocationID); err != nil {
			return err
		}

		now := time.Now().UTC()
		effective := now
		if in.EffectiveAt != nil {
			effective = *in.EffectiveAt
		}

		opID := id.New()
		actorID := appctx.GetActorID(ctx)
		key := in.IdempotencyKey

		// Lock items in a stable order so concurrent consumptions of
		// overlapping component sets cannot deadlock.
		components := append([]Component(nil), in.Components...)
		sort.Slice(components, func(i, j int) bool {
			return components[i].ItemID.String() < components[j].ItemID.String()
		})

		prevQty := make(map[id.ID]types.Quantity)
		var movements []*ledger.Movement

		// Movements are appended in one batch after the loop, so ledger
		// reads inside the loop do not see consumption built for earlier
		// components. Track it here and subtract before each check.
		pendingItem := make(map[id.ID]types.Quantity)
		pendingBatch := make(map[id.ID]types.Quantity)

		for _, comp := range components {
			if !comp.Qty.IsPositive() {
				continue
			}

			it, err := c.items.GetForUpdate(ctx, comp.ItemID)
			if err != nil {
				return err
			}
			if _, seen := prevQty[comp.ItemID]; !seen {
				prevQty[comp.ItemID] = it.Quantity
			}

			locID := in.LocationID
			avail, err := c.aggregator.ItemStock(ctx, comp.ItemID, &locID, nil)
			if err != nil {
				return err
			}
			avail -= pendingItem[comp.ItemID]
			if comp.Qty > avail {
				return apperror.NewInsufficientStock(
					comp.ItemID.String(), comp.Qty.String(), avail.String())
			}

			remaining := comp.Qty
			if in.FEFO {
				ordered, err := c.fefo.AvailableBatchesFEFO(ctx, comp.ItemID, in.LocationID)
				if err != nil {
					return err
				}
				for _, ba := range ordered {
					if !remaining.IsPositive() {
						break
					}
					usable := ba.Available - pendingBatch[ba.Batch.ID]
					take := remaining.Min(usable)
					if !take.IsPositive() {
						continue
					}
					batchID := ba.Batch.ID
					pendingBatch[batchID] += take
					movements = append(movements, &ledger.Movement{
						ID:             id.New(),
						OperationID:    opID,
						ItemID:         comp.ItemID,
						LocationID:     in.LocationID,
						BatchID:        &batchID,
						Kind:           ledger.KindSale,
						Qty:            take.Neg(),
						EffectiveAt:    effective,
						RecordedAt:     now,
						ActorID:        actorID,
						ReferenceKind:  "order",
						ReferenceID:    in.OrderID,
						Reason:         "Consumption for order",
						IdempotencyKey: key,
					})
					key = nil
					remaining -= take
				}
			}

			// The availability pre-check bounds the total, so any
			// remainder after the batch walk is unbatched stock.
			if remaining.IsPositive() {
				movements = append(movements, &ledger.Movement{
					ID:             id.New(),
					OperationID:    opID,
					ItemID:         comp.ItemID,
					LocationID:     in.LocationID,
					Kind:           ledger.KindSale,
					Qty:            remaining.Neg(),
					EffectiveAt:    effective,
					RecordedAt:     now,
					ActorID:        actorID,
					ReferenceKind:  "order",
					ReferenceID:    in.OrderID,
					Reason:         "Consumption for order (unbatched)",
					IdempotencyKey: key,
				})
				key = nil
			}

			if _, seen := pendingItem[comp.ItemID]; !seen {
				affected = append(affected, comp.ItemID)
			}
			pendingItem[comp.ItemID] += comp.Qty
		}

		if len(movements) == 0 {
			return nil
		}

		if err := c.movements.Append(ctx, movements); err != nil {
			return fmt.Errorf("append consumption: %w", err)
		}

		for _, itemID := range affected {
			newQty, err := c.refreshCachedQuantity(ctx, itemID, nil)
			if err != nil {
				return err
			}
			c.recordActivity(ctx, Activity{
				ID:          id.New(),
				ItemID:      itemID,
				OperationID: opID,
				Action:      ActionConsume,
				QtyChange:   sumFor(movements, itemID),
				PreviousQty: prevQty[itemID],
				NewQty:      newQty,
				Reason:      fmt.Sprintf("order %s", in.OrderID),
				ActorID:     actorID,
				CreatedAt:   now,
			})
		}

		result = movements
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(affected) > 0 {
		c.monitor.CheckAndNotify(ctx, affected)
		logger.Info(ctx, "stock consumed for order",
			"order_id", in.OrderID,
			"location_id", in.LocationID,
			"movements", len(result),
		)
	}
	return result, nil
}

// AdjustInput carries the parameters of a manual adjustment.
type AdjustInput struct {
	ItemID         id.ID
	Delta          types.Quantity
	LocationID     id.ID
	Reason         string
	EffectiveAt    *time.Time
	IdempotencyKey *string
}

// AdjustStock records one signed ADJUSTMENT movement. A zero delta is
// rejected; an adjustment that would drive the location-scoped stock
// negative is rejected, not clamped. Last-restocked is untouched: that
// field is reserved for genuine receipts.
func (c *Coordinator) AdjustStock(ctx context.Context, in AdjustInput) (*ledger.Movement, error) {
	if in.Delta.IsZero() {
		return nil, apperror.NewValidation("delta qty cannot be zero")
	}
	if in.Reason == "" {
		in.Reason = "Manual adjustment"
	}

	var result *ledger.Movement
	err := c.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if replayed, ok, err := c.replay(ctx, in.IdempotencyKey); err != nil {
			return err
		} else if ok {
			if err := c.verifyAdjustReplay(replayed, in); err != nil {
				return err
			}
			result = replayed[0]
			return nil
		}

		it, err := c.items.GetForUpdate(ctx, in.ItemID)
		if err != nil {
			return err
		}
		if _, err := c.locations.GetByID(ctx, in.LocationID); err != nil {
			return err
		}

		locID := in.LocationID
		current, err := c.aggregator.ItemStock(ctx, in.ItemID, &locID, nil)
		if err != nil {
			return err
		}
		if current+in.Delta < 0 {
			return apperror.NewNegativeStock(
				in.ItemID.String(), current.String(), in.Delta.String())
		}

		now := time.Now().UTC()
		effective := now
		if in.EffectiveAt != nil {
			effective = *in.EffectiveAt
		}

		mv := &ledger.Movement{
			ID:             id.New(),
			OperationID:    id.New(),
			ItemID:         in.ItemID,
			LocationID:     in.LocationID,
			Kind:           ledger.KindAdjustment,
			Qty:            in.Delta,
			EffectiveAt:    effective,
			RecordedAt:     now,
			ActorID:        appctx.GetActorID(ctx),
			ReferenceKind:  "adjustment",
			Reason:         in.Reason,
			IdempotencyKey: in.IdempotencyKey,
		}
		if err := c.movements.Append(ctx, []*ledger.Movement{mv}); err != nil {
			return fmt.Errorf("append adjustment: %w", err)
		}

		newQty, err := c.refreshCachedQuantity(ctx, in.ItemID, nil)
		if err != nil {
			return err
		}

		c.recordActivity(ctx, Activity{
			ID:          id.New(),
			ItemID:      in.ItemID,
			OperationID: mv.OperationID,
			Action:      ActionAdjust,
			QtyChange:   in.Delta,
			PreviousQty: it.Quantity,
			NewQty:      newQty,
			Reason:      in.Reason,
			ActorID:     mv.ActorID,
			CreatedAt:   now,
		})

		result = mv
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.monitor.CheckAndNotify(ctx, []id.ID{in.ItemID})
	logger.Info(ctx, "stock adjusted",
		"item_id", in.ItemID,
		"location_id", in.LocationID,
		"delta", in.Delta.String(),
	)
	return result, nil
}

// TransferInput carries the parameters of an inter-location transfer.
type TransferInput struct {
	ItemID         id.ID
	Qty            types.Quantity
	FromLocationID id.ID
	ToLocationID   id.ID
	EffectiveAt    *time.Time
	FEFO           bool
	IdempotencyKey *string
}

// TransferStock moves stock between locations. The source's batches are
// depleted in FEFO order; each portion moved yields a paired TRANSFER_OUT
// and TRANSFER_IN movement referencing the same batch and a shared
// "from->to" reference. The movement quantities of one transfer sum to
// zero: global stock is conserved, only the per-location distribution
// changes.
func (c *Coordinator) TransferStock(ctx context.Context, in TransferInput) ([]*ledger.Movement, error) {
	if !in.Qty.IsPositive() {
		return nil, apperror.NewValidation("qty must be positive to transfer").
			WithDetail("qty", in.Qty.String())
	}
	if in.FromLocationID == in.ToLocationID {
		return nil, apperror.NewValidation("source and destination locations must differ")
	}

	refID := fmt.Sprintf("%s->%s", in.FromLocationID, in.ToLocationID)

	var result []*ledger.Movement
	err := c.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if replayed, ok, err := c.replay(ctx, in.IdempotencyKey); err != nil {
			return err
		} else if ok {
			if err := verifyReferenceReplay(replayed[0], "transfer", refID, *in.IdempotencyKey); err != nil {
				return err
			}
			result = replayed
			return nil
		}

		it, err := c.items.GetForUpdate(ctx, in.ItemID)
		if err != nil {
			return err
		}
		if _, err := c.locations.GetByID(ctx, in.FromLocationID); err != nil {
			return err
		}
		if _, err := c.locations.GetByID(ctx, in.ToLocationID); err != nil {
			return err
		}

		fromID := in.FromLocationID
		avail, err := c.aggregator.ItemStock(ctx, in.ItemID, &fromID, nil)
		if err != nil {
			return err
		}
		if in.Qty > avail {
			return apperror.NewInsufficientStock(
				in.ItemID.String(), in.Qty.String(), avail.String())
		}

		now := time.Now().UTC()
		effective := now
		if in.EffectiveAt != nil {
			effective = *in.EffectiveAt
		}

		opID := id.New()
		actorID := appctx.GetActorID(ctx)
		key := in.IdempotencyKey

		pair := func(batchID *id.ID, qty types.Quantity, reason string) {
			result = append(result,
				&ledger.Movement{
					ID:             id.New(),
					OperationID:    opID,
					ItemID:         in.ItemID,
					LocationID:     in.FromLocationID,
					BatchID:        batchID,
					Kind:           ledger.KindTransferOut,
					Qty:            qty.Neg(),
					EffectiveAt:    effective,
					RecordedAt:     now,
					ActorID:        actorID,
					ReferenceKind:  "transfer",
					ReferenceID:    refID,
					Reason:         "Transfer out" + reason,
					IdempotencyKey: key,
				},
				&ledger.Movement{
					ID:            id.New(),
					OperationID:   opID,
					ItemID:        in.ItemID,
					LocationID:    in.ToLocationID,
					BatchID:       batchID,
					Kind:          ledger.KindTransferIn,
					Qty:           qty,
					EffectiveAt:   effective,
					RecordedAt:    now,
					ActorID:       actorID,
					ReferenceKind: "transfer",
					ReferenceID:   refID,
					Reason:        "Transfer in" + reason,
				},
			)
			key = nil
		}

		remaining := in.Qty
		if in.FEFO {
			ordered, err := c.fefo.AvailableBatchesFEFO(ctx, in.ItemID, in.FromLocationID)
			if err != nil {
				return err
			}
			for _, ba := range ordered {
				if !remaining.IsPositive() {
					break
				}
				take := remaining.Min(ba.Available)
				if !take.IsPositive() {
					continue
				}
				batchID := ba.Batch.ID
				pair(&batchID, take, "")
				remaining -= take
			}
		}
		if remaining.IsPositive() {
			pair(nil, remaining, " (unbatched)")
		}

		if err := c.movements.Append(ctx, result); err != nil {
			return fmt.Errorf("append transfer: %w", err)
		}

		// Global total is unchanged by a transfer, but the cache is
		// always rewritten from a post-write aggregate, never assumed.
		newQty, err := c.refreshCachedQuantity(ctx, in.ItemID, nil)
		if err != nil {
			return err
		}

		c.recordActivity(ctx, Activity{
			ID:          id.New(),
			ItemID:      in.ItemID,
			OperationID: opID,
			Action:      ActionTransfer,
			QtyChange:   0,
			PreviousQty: it.Quantity,
			NewQty:      newQty,
			Reason:      refID,
			ActorID:     actorID,
			CreatedAt:   now,
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	c.monitor.CheckAndNotify(ctx, []id.ID{in.ItemID})
	logger.Info(ctx, "stock transferred",
		"item_id", in.ItemID,
		"from", in.FromLocationID,
		"to", in.ToLocationID,
		"qty", in.Qty.String(),
	)
	return result, nil
}

// --- internal helpers ---

// resolveBatch returns the batch id for a receipt: the referenced existing
// batch, a batch synthesized from the payload, or nil for unbatched stock.
func (c *Coordinator) resolveBatch(ctx context.Context, in ReceiveInput, now time.Time) (*id.ID, error) {
	if in.BatchID != nil {
		b, err := c.batches.GetByID(ctx, *in.BatchID)
		if err != nil {
			return nil, err
		}
		if b.ItemID != in.ItemID {
			return nil, apperror.NewValidation("batch belongs to a different item").
				WithDetail("batch_id", b.ID).
				WithDetail("batch_item_id", b.ItemID)
		}
		return &b.ID, nil
	}
	if in.BatchPayload != nil {
		b := batch.NewFromPayload(in.ItemID, *in.BatchPayload, now)
		if err := b.Validate(ctx); err != nil {
			return nil, err
		}
		if err := c.batches.Create(ctx, b); err != nil {
			return nil, fmt.Errorf("create batch: %w", err)
		}
		return &b.ID, nil
	}
	return nil, nil
}

// refreshCachedQuantity recomputes the item's total across all locations
// from the ledger (inside the current transaction, so just-written rows are
// visible) and persists it rounded to 2 decimal places.
func (c *Coordinator) refreshCachedQuantity(ctx context.Context, itemID id.ID, restockedAt *time.Time) (types.Quantity, error) {
	total, err := c.aggregator.ItemStock(ctx, itemID, nil, nil)
	if err != nil {
		return 0, fmt.Errorf("recompute quantity: %w", err)
	}
	rounded := total.Round2()
	if err := c.items.UpdateCachedQuantity(ctx, itemID, rounded, restockedAt); err != nil {
		return 0, fmt.Errorf("update cached quantity: %w", err)
	}
	return rounded, nil
}

// replay looks up a previously completed operation by idempotency key.
// Must run inside the operation's transaction so the check and any insert
// are atomic.
func (c *Coordinator) replay(ctx context.Context, key *string) ([]*ledger.Movement, bool, error) {
	if key == nil || *key == "" {
		return nil, false, nil
	}
	lead, err := c.movements.GetByIdempotencyKey(ctx, *key)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	movements, err := c.movements.GetByOperationID(ctx, lead.OperationID)
	if err != nil {
		return nil, false, err
	}
	if len(movements) == 0 {
		movements = []*ledger.Movement{lead}
	}
	return movements, true, nil
}

func (c *Coordinator) verifyReceiptReplay(replayed []*ledger.Movement, in ReceiveInput) error {
	lead := replayed[0]
	if lead.Kind != ledger.KindReceipt ||
		lead.ItemID != in.ItemID ||
		lead.LocationID != in.LocationID ||
		lead.Qty != in.Qty {
		return apperror.NewIdempotencyMismatch(*in.IdempotencyKey)
	}
	return nil
}

func (c *Coordinator) verifyAdjustReplay(replayed []*ledger.Movement, in AdjustInput) error {
	lead := replayed[0]
	if lead.Kind != ledger.KindAdjustment ||
		lead.ItemID != in.ItemID ||
		lead.LocationID != in.LocationID ||
		lead.Qty != in.Delta {
		return apperror.NewIdempotencyMismatch(*in.IdempotencyKey)
	}
	return nil
}

func verifyReferenceReplay(lead *ledger.Movement, refKind, refID, key string) error {
	if lead.ReferenceKind != refKind || lead.ReferenceID != refID {
		return apperror.NewIdempotencyMismatch(key)
	}
	return nil
}

// recordActivity writes an audit-trail entry; failures are logged, never
// propagated.
func (c *Coordinator) recordActivity(ctx context.Context, entry Activity) {
	if err := c.activity.Record(ctx, entry); err != nil {
		logger.Warn(ctx, "activity record failed",
			"item_id", entry.ItemID,
			"action", string(entry.Action),
			"error", err,
		)
	}
}

func sumFor(movements []*ledger.Movement, itemID id.ID) types.Quantity {
	var total types.Quantity
	for _, m := range movements {
		if m.ItemID == itemID {
			total += m.Qty
		}
	}
	return total
}
