package inventory

import (
	"context"
	"sort"
	"sync"
	"time"

	"larder/internal/core/apperror"
	"larder/internal/core/id"
	"larder/internal/core/types"

	"larder/internal/domain/catalog/batch"
	"larder/internal/domain/catalog/item"
	"larder/internal/domain/catalog/location"
	"larder/internal/domain/ledger"
	"larder/internal/domain/notify"
	"larder/internal/domain/reorder"
)

// passthroughTx runs the callback directly. The coordinator's transaction
// semantics are exercised against a real database elsewhere; here only the
// orchestration logic is under test.
type passthroughTx struct {
	calls int
}

func (p *passthroughTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	p.calls++
	return fn(ctx)
}

type memLedger struct {
	mu        sync.Mutex
	movements []*ledger.Movement
	appends   int
}

func (r *memLedger) Append(ctx context.Context, movements []*ledger.Movement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appends++
	r.movements = append(r.movements, movements...)
	return nil
}

func (r *memLedger) SumByItem(ctx context.Context, filter ledger.SumFilter) (map[id.ID]types.Quantity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make(map[id.ID]bool, len(filter.ItemIDs))
	for _, itemID := range filter.ItemIDs {
		wanted[itemID] = true
	}

	out := make(map[id.ID]types.Quantity)
	for _, m := range r.movements {
		if len(wanted) > 0 && !wanted[m.ItemID] {
			continue
		}
		if filter.LocationID != nil && m.LocationID != *filter.LocationID {
			continue
		}
		if filter.AsOf != nil && m.EffectiveAt.After(*filter.AsOf) {
			continue
		}
		out[m.ItemID] += m.Qty
	}
	return out, nil
}

func (r *memLedger) SumByBatch(ctx context.Context, itemID id.ID, locationID *id.ID, asOf *time.Time) (map[id.ID]types.Quantity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[id.ID]types.Quantity)
	for _, m := range r.movements {
		if m.ItemID != itemID || m.BatchID == nil {
			continue
		}
		if locationID != nil && m.LocationID != *locationID {
			continue
		}
		if asOf != nil && m.EffectiveAt.After(*asOf) {
			continue
		}
		out[*m.BatchID] += m.Qty
	}
	return out, nil
}

func (r *memLedger) GetByIdempotencyKey(ctx context.Context, key string) (*ledger.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.movements {
		if m.IdempotencyKey != nil && *m.IdempotencyKey == key {
			return m, nil
		}
	}
	return nil, apperror.NewNotFound("movement", key)
}

func (r *memLedger) GetByOperationID(ctx context.Context, opID id.ID) ([]*ledger.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ledger.Movement
	for _, m := range r.movements {
		if m.OperationID == opID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.Before(out[j].RecordedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r *memLedger) ListLedger(ctx context.Context, filter ledger.LedgerFilter) ([]*ledger.Movement, error) {
	return nil, nil
}

func (r *memLedger) ListRecent(ctx context.Context, filter ledger.ActivityFilter) ([]*ledger.Movement, error) {
	return nil, nil
}

func (r *memLedger) Turnover(ctx context.Context, filter ledger.TurnoverFilter) (ledger.Turnover, error) {
	return ledger.Turnover{}, nil
}

func (r *memLedger) LastUpdate(ctx context.Context, itemID id.ID, locationID *id.ID) (*ledger.StockTimestamps, error) {
	return nil, apperror.NewNotFound("movement", itemID.String())
}

func (r *memLedger) all() []*ledger.Movement {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ledger.Movement, len(r.movements))
	copy(out, r.movements)
	return out
}

type memItems struct {
	mu    sync.Mutex
	items map[id.ID]*item.Item
	locks int
}

func newMemItems() *memItems {
	return &memItems{items: make(map[id.ID]*item.Item)}
}

func (r *memItems) Create(ctx context.Context, it *item.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[it.ID] = it
	return nil
}

func (r *memItems) GetByID(ctx context.Context, itemID id.ID) (*item.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[itemID]
	if !ok {
		return nil, apperror.NewNotFound("item", itemID.String())
	}
	cp := *it
	return &cp, nil
}

func (r *memItems) GetForUpdate(ctx context.Context, itemID id.ID) (*item.Item, error) {
	r.mu.Lock()
	r.locks++
	r.mu.Unlock()
	return r.GetByID(ctx, itemID)
}

func (r *memItems) List(ctx context.Context, filter item.ListFilter) ([]*item.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := make(map[id.ID]bool, len(filter.IDs))
	for _, itemID := range filter.IDs {
		wanted[itemID] = true
	}
	var out []*item.Item
	for _, it := range r.items {
		if len(wanted) > 0 && !wanted[it.ID] {
			continue
		}
		cp := *it
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memItems) UpdateCachedQuantity(ctx context.Context, itemID id.ID, qty types.Quantity, restockedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[itemID]
	if !ok {
		return apperror.NewNotFound("item", itemID.String())
	}
	it.Quantity = qty
	if restockedAt != nil {
		it.LastRestocked = restockedAt
	}
	it.UpdatedAt = time.Now().UTC()
	return nil
}

type memLocations struct {
	locations map[id.ID]*location.Location
}

func newMemLocations() *memLocations {
	return &memLocations{locations: make(map[id.ID]*location.Location)}
}

func (r *memLocations) Create(ctx context.Context, loc *location.Location) error {
	r.locations[loc.ID] = loc
	return nil
}

func (r *memLocations) GetByID(ctx context.Context, locID id.ID) (*location.Location, error) {
	loc, ok := r.locations[locID]
	if !ok {
		return nil, apperror.NewNotFound("location", locID.String())
	}
	return loc, nil
}

func (r *memLocations) GetByCode(ctx context.Context, code string) (*location.Location, error) {
	for _, loc := range r.locations {
		if loc.Code == code {
			return loc, nil
		}
	}
	return nil, apperror.NewNotFound("location", code)
}

func (r *memLocations) List(ctx context.Context) ([]*location.Location, error) {
	out := make([]*location.Location, 0, len(r.locations))
	for _, loc := range r.locations {
		out = append(out, loc)
	}
	return out, nil
}

type memBatches struct {
	batches map[id.ID]*batch.Batch
}

func newMemBatches() *memBatches {
	return &memBatches{batches: make(map[id.ID]*batch.Batch)}
}

func (r *memBatches) Create(ctx context.Context, b *batch.Batch) error {
	r.batches[b.ID] = b
	return nil
}

func (r *memBatches) GetByID(ctx context.Context, batchID id.ID) (*batch.Batch, error) {
	b, ok := r.batches[batchID]
	if !ok {
		return nil, apperror.NewNotFound("batch", batchID.String())
	}
	return b, nil
}

func (r *memBatches) GetByIDs(ctx context.Context, batchIDs []id.ID) (map[id.ID]*batch.Batch, error) {
	out := make(map[id.ID]*batch.Batch, len(batchIDs))
	for _, batchID := range batchIDs {
		if b, ok := r.batches[batchID]; ok {
			out[batchID] = b
		}
	}
	return out, nil
}

func (r *memBatches) ListExpiring(ctx context.Context, filter batch.ExpiryFilter) ([]*batch.Batch, error) {
	var out []*batch.Batch
	for _, b := range r.batches {
		if b.ExpiryDate == nil || b.ExpiryDate.After(filter.Cutoff) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

type memSettings struct {
	settings []*reorder.Setting
}

func (r *memSettings) Upsert(ctx context.Context, s *reorder.Setting) error {
	for i, existing := range r.settings {
		if existing.ItemID == s.ItemID && existing.LocationID == s.LocationID {
			r.settings[i] = s
			return nil
		}
	}
	r.settings = append(r.settings, s)
	return nil
}

func (r *memSettings) Get(ctx context.Context, itemID, locationID id.ID) (*reorder.Setting, error) {
	for _, s := range r.settings {
		if s.ItemID == itemID && s.LocationID == locationID {
			return s, nil
		}
	}
	return nil, apperror.NewNotFound("reorder setting", itemID.String())
}

func (r *memSettings) List(ctx context.Context, itemIDs []id.ID) ([]*reorder.Setting, error) {
	wanted := make(map[id.ID]bool, len(itemIDs))
	for _, itemID := range itemIDs {
		wanted[itemID] = true
	}
	var out []*reorder.Setting
	for _, s := range r.settings {
		if len(wanted) > 0 && !wanted[s.ItemID] {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *memSettings) TrackedItemIDs(ctx context.Context) ([]id.ID, error) {
	seen := make(map[id.ID]bool)
	var out []id.ID
	for _, s := range r.settings {
		if !seen[s.ItemID] {
			seen[s.ItemID] = true
			out = append(out, s.ItemID)
		}
	}
	return out, nil
}

// captureSink records every notification it is handed.
type captureSink struct {
	sent []notify.Notification
	err  error
}

func (s *captureSink) Send(ctx context.Context, n notify.Notification) notify.Result {
	s.sent = append(s.sent, n)
	return notify.Result{NotificationID: n.ID, Err: s.err}
}

// harness wires a coordinator over in-memory collaborators.
type harness struct {
	tx        *passthroughTx
	movements *memLedger
	items     *memItems
	locations *memLocations
	batches   *memBatches
	settings  *memSettings
	sink      *captureSink
	monitor   *reorder.Monitor
	coord     *Coordinator
}

func newHarness() *harness {
	h := &harness{
		tx:        &passthroughTx{},
		movements: &memLedger{},
		items:     newMemItems(),
		locations: newMemLocations(),
		batches:   newMemBatches(),
		settings:  &memSettings{},
		sink:      &captureSink{},
	}
	aggregator := ledger.NewAggregator(h.movements)
	fefo := ledger.NewFEFOSelector(aggregator, h.batches)
	directory := notify.StaticDirectory{Recipients: []notify.Recipient{{ID: id.New(), Name: "Manager"}}}
	h.monitor = reorder.NewMonitor(h.settings, h.items, aggregator, directory, h.sink)
	h.coord = NewCoordinator(h.tx, h.movements, aggregator, fefo, h.items, h.locations, h.batches, h.monitor, nil)
	return h
}

func (h *harness) addItem(name string) *item.Item {
	it := item.NewItem(name, "kg")
	_ = h.items.Create(context.Background(), it)
	return it
}

func (h *harness) addLocation(code string) *location.Location {
	loc := location.NewLocation(code, code)
	_ = h.locations.Create(context.Background(), loc)
	return loc
}

func (h *harness) addBatch(itemID id.ID, expiry *time.Time) *batch.Batch {
	b := &batch.Batch{
		ID:         id.New(),
		ItemID:     itemID,
		ExpiryDate: expiry,
		CreatedAt:  time.Now().UTC(),
	}
	_ = h.batches.Create(context.Background(), b)
	return b
}

func strptr(s string) *string { return &s }

var (
	_ ledger.Repository   = (*memLedger)(nil)
	_ item.Repository     = (*memItems)(nil)
	_ location.Repository = (*memLocations)(nil)
	_ batch.Repository    = (*memBatches)(nil)
	_ reorder.Repository  = (*memSettings)(nil)
	_ notify.Sink         = (*captureSink)(nil)
)
