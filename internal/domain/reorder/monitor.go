package reorder

import (
	"context"
	"fmt"

	"larder/internal/core/id"
	"larder/internal/core/types"
	"larder/pkg/logger"

	"larder/internal/domain/catalog/item"
	"larder/internal/domain/ledger"
	"larder/internal/domain/notify"
)

// LowStock pairs an item with its current quantity at the monitored scope.
type LowStock struct {
	Item     *item.Item     `json:"item"`
	Quantity types.Quantity `json:"quantity"`
}

// Monitor evaluates reorder thresholds and raises low-stock signals.
// Notification delivery is best-effort: sink failures are logged and never
// surfaced to callers.
type Monitor struct {
	settings   Repository
	items      item.Repository
	aggregator *ledger.Aggregator
	directory  notify.Directory
	sink       notify.Sink
}

// NewMonitor creates a low-stock monitor.
func NewMonitor(settings Repository, items item.Repository, aggregator *ledger.Aggregator, directory notify.Directory, sink notify.Sink) *Monitor {
	return &Monitor{
		settings:   settings,
		items:      items,
		aggregator: aggregator,
		directory:  directory,
		sink:       sink,
	}
}

// SaveSetting upserts a reorder setting administratively.
func (m *Monitor) SaveSetting(ctx context.Context, s *Setting) error {
	if err := s.Validate(ctx); err != nil {
		return err
	}
	if id.IsNil(s.ID) {
		s.ID = id.New()
	}
	if err := m.settings.Upsert(ctx, s); err != nil {
		return fmt.Errorf("upsert reorder setting: %w", err)
	}
	return nil
}

// LowStockItems returns, for every (item, location) with a reorder setting
// (optionally filtered to the given items), the items whose location-scoped
// current stock is at or below the setting's reorder point. Read-only.
func (m *Monitor) LowStockItems(ctx context.Context, itemIDs []id.ID) ([]LowStock, error) {
	settings, err := m.settings.List(ctx, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("list reorder settings: %w", err)
	}
	if len(settings) == 0 {
		return nil, nil
	}

	var low []LowStock
	seen := make(map[id.ID]bool)
	for _, s := range settings {
		locID := s.LocationID
		qty, err := m.aggregator.ItemStock(ctx, s.ItemID, &locID, nil)
		if err != nil {
			return nil, fmt.Errorf("stock for item %s: %w", s.ItemID, err)
		}
		if qty > s.ReorderPoint || seen[s.ItemID] {
			continue
		}
		it, err := m.items.GetByID(ctx, s.ItemID)
		if err != nil {
			return nil, err
		}
		low = append(low, LowStock{Item: it, Quantity: qty})
		seen[s.ItemID] = true
	}
	return low, nil
}

// TriggerLowStockNotifications resolves the threshold set (the given items,
// falling back to every item with a reorder setting), computes the items at
// or below their reorder point, and emits one notification per low item to
// every manager. Returns the notified item ids. Sink failures are logged
// and never returned.
func (m *Monitor) TriggerLowStockNotifications(ctx context.Context, itemIDs []id.ID) ([]id.ID, error) {
	ids := itemIDs
	if len(ids) == 0 {
		tracked, err := m.settings.TrackedItemIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve tracked items: %w", err)
		}
		ids = tracked
	}
	if len(ids) == 0 {
		return nil, nil
	}

	low, err := m.LowStockItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(low) == 0 {
		return nil, nil
	}

	lowIDs := make([]id.ID, 0, len(low))
	for _, ls := range low {
		lowIDs = append(lowIDs, ls.Item.ID)
	}
	m.notifyLowStock(ctx, lowIDs)
	return lowIDs, nil
}

// CheckAndNotify is the post-commit hook invoked by the transaction
// coordinator. It compares total stock for the affected items against
// their configured low-stock thresholds and notifies managers for any item
// at or below threshold. Entirely best-effort: every failure is logged and
// swallowed.
func (m *Monitor) CheckAndNotify(ctx context.Context, itemIDs []id.ID) {
	if len(itemIDs) == 0 {
		return
	}

	settings, err := m.settings.List(ctx, itemIDs)
	if err != nil {
		logger.Warn(ctx, "low-stock check skipped", "error", err)
		return
	}
	if len(settings) == 0 {
		return
	}

	thresholds := make(map[id.ID]types.Quantity)
	for _, s := range settings {
		// The lowest configured threshold wins when an item is tracked
		// at several locations.
		if cur, ok := thresholds[s.ItemID]; !ok || s.LowStockThreshold < cur {
			thresholds[s.ItemID] = s.LowStockThreshold
		}
	}

	tracked := make([]id.ID, 0, len(thresholds))
	for itemID := range thresholds {
		tracked = append(tracked, itemID)
	}

	totals, err := m.aggregator.CurrentStock(ctx, tracked, nil, nil)
	if err != nil {
		logger.Warn(ctx, "low-stock check skipped", "error", err)
		return
	}

	var lowIDs []id.ID
	for itemID, threshold := range thresholds {
		if totals[itemID] <= threshold {
			lowIDs = append(lowIDs, itemID)
		}
	}
	if len(lowIDs) == 0 {
		return
	}

	m.notifyLowStock(ctx, lowIDs)
}

// notifyLowStock fans out one notification per (manager, low item).
func (m *Monitor) notifyLowStock(ctx context.Context, lowIDs []id.ID) {
	managers, err := m.directory.Managers(ctx)
	if err != nil {
		logger.Warn(ctx, "low-stock notification skipped", "error", err)
		return
	}
	if len(managers) == 0 {
		return
	}

	totals, err := m.aggregator.CurrentStock(ctx, lowIDs, nil, nil)
	if err != nil {
		logger.Warn(ctx, "low-stock notification skipped", "error", err)
		return
	}

	for _, itemID := range lowIDs {
		it, err := m.items.GetByID(ctx, itemID)
		if err != nil {
			logger.Warn(ctx, "low-stock notification skipped for item",
				"item_id", itemID, "error", err)
			continue
		}

		title := fmt.Sprintf("Low stock: %s", it.Name)
		msg := fmt.Sprintf("Item %q is at or below threshold. Current: %s",
			it.Name, totals[itemID].String())

		for _, mgr := range managers {
			n := notify.NewNotification(mgr.ID, title, msg, "warning")
			n.Metadata = map[string]any{
				"item_id":  itemID.String(),
				"quantity": totals[itemID].String(),
			}
			if res := m.sink.Send(ctx, n); res.Failed() {
				logger.Warn(ctx, "low-stock notification delivery failed",
					"item_id", itemID,
					"recipient_id", mgr.ID,
					"error", res.Err,
				)
			}
		}
		logger.Info(ctx, "low-stock alert raised",
			"item_id", itemID,
			"quantity", totals[itemID].String(),
			"recipients", len(managers),
		)
	}
}
