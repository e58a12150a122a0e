// Package main provides a CLI tool for seeding the database with demo data.
// It creates a small catalog and replays a full day of stock operations:
// a receipt, an order consumption, a transfer and a spoilage adjustment.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"larder/internal/config"
	"larder/internal/core/apperror"
	"larder/internal/core/types"
	"larder/internal/domain/catalog/batch"
	"larder/internal/domain/catalog/item"
	"larder/internal/domain/catalog/location"
	"larder/internal/domain/inventory"
	"larder/internal/domain/ledger"
	"larder/internal/domain/notify"
	"larder/internal/domain/reorder"
	"larder/internal/infrastructure/storage/postgres"
	"larder/internal/infrastructure/storage/postgres/catalog_repo"
	"larder/internal/infrastructure/storage/postgres/ledger_repo"
	"larder/internal/infrastructure/storage/postgres/reorder_repo"
	"larder/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.App.LogLevel,
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DB.DSN))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	if err := seed(ctx, pool, log); err != nil {
		log.Fatalw("seeding failed", "error", err)
	}

	log.Info("seeding completed successfully")
}

func seed(ctx context.Context, pool *postgres.Pool, log *logger.Logger) error {
	txm := postgres.NewTxManager(pool)

	items := catalog_repo.NewItemRepo(txm)
	locations := catalog_repo.NewLocationRepo(txm)
	batches := catalog_repo.NewBatchRepo(txm)
	movements := ledger_repo.NewMovementRepo(txm)
	settings := reorder_repo.NewSettingRepo(txm)

	activity, err := postgres.NewActivityStore(txm)
	if err != nil {
		return fmt.Errorf("create activity store: %w", err)
	}

	aggregator := ledger.NewAggregator(movements)
	fefo := ledger.NewFEFOSelector(aggregator, batches)

	monitor := reorder.NewMonitor(
		settings, items, aggregator,
		notify.StaticDirectory{}, postgres.NewOutboxSink(txm),
	)

	coordinator := inventory.NewCoordinator(
		txm, movements, aggregator, fefo,
		items, locations, batches, monitor, activity,
	)

	itemSvc := item.NewService(items)
	locationSvc := location.NewService(locations)

	// Catalog
	mainLoc, err := locationSvc.EnsureByCode(ctx, "MAIN")
	if err != nil {
		return fmt.Errorf("ensure MAIN: %w", err)
	}
	branch, err := locationSvc.EnsureByCode(ctx, "BRANCH")
	if err != nil {
		return fmt.Errorf("ensure BRANCH: %w", err)
	}

	rice := item.NewItem("Rice", "kg")
	rice.Category = "Dry goods"
	rice.MinStock = types.MustQuantity("10")
	if err := itemSvc.Create(ctx, rice); err != nil {
		return fmt.Errorf("create item: %w", err)
	}

	threshold := reorder.NewSetting(rice.ID, mainLoc.ID)
	threshold.ReorderPoint = types.MustQuantity("20")
	threshold.ReorderQty = types.MustQuantity("100")
	threshold.LowStockThreshold = types.MustQuantity("15")
	if err := monitor.SaveSetting(ctx, threshold); err != nil {
		return fmt.Errorf("save reorder setting: %w", err)
	}

	// A day of operations against the ledger.
	expiry := time.Now().UTC().AddDate(0, 3, 0)
	receiptKey := "seed-receipt-1"
	if _, err := coordinator.Receive(ctx, inventory.ReceiveInput{
		ItemID:     rice.ID,
		Qty:        types.MustQuantity("100"),
		LocationID: mainLoc.ID,
		BatchPayload: &batch.Payload{
			LotCode:    "LOT-2026-001",
			ExpiryDate: &expiry,
			Supplier:   "Acme Grains",
		},
		ReferenceID:    "PO-1001",
		IdempotencyKey: &receiptKey,
	}); err != nil {
		return fmt.Errorf("receive: %w", err)
	}
	log.Infow("received stock", "item", rice.Name, "qty", "100")

	consumeKey := "seed-consume-1"
	if _, err := coordinator.ConsumeForOrder(ctx, inventory.ConsumeInput{
		OrderID:        "ORD-1",
		Components:     []inventory.Component{{ItemID: rice.ID, Qty: types.MustQuantity("30")}},
		LocationID:     mainLoc.ID,
		FEFO:           true,
		IdempotencyKey: &consumeKey,
	}); err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	log.Infow("consumed for order", "order", "ORD-1", "qty", "30")

	transferKey := "seed-transfer-1"
	if _, err := coordinator.TransferStock(ctx, inventory.TransferInput{
		ItemID:         rice.ID,
		Qty:            types.MustQuantity("20"),
		FromLocationID: mainLoc.ID,
		ToLocationID:   branch.ID,
		FEFO:           true,
		IdempotencyKey: &transferKey,
	}); err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	log.Infow("transferred stock", "from", mainLoc.Code, "to", branch.Code, "qty", "20")

	adjustKey := "seed-adjust-1"
	if _, err := coordinator.AdjustStock(ctx, inventory.AdjustInput{
		ItemID:         rice.ID,
		Delta:          types.MustQuantity("-5"),
		LocationID:     mainLoc.ID,
		Reason:         "Spoilage",
		IdempotencyKey: &adjustKey,
	}); err != nil {
		return fmt.Errorf("adjust: %w", err)
	}
	log.Infow("adjusted stock", "delta", "-5", "reason", "Spoilage")

	// The guard: an adjustment that would drive stock negative is refused.
	_, err = coordinator.AdjustStock(ctx, inventory.AdjustInput{
		ItemID:     rice.ID,
		Delta:      types.MustQuantity("-1000"),
		LocationID: mainLoc.ID,
		Reason:     "Bad count",
	})
	if err == nil {
		return fmt.Errorf("expected negative stock rejection, got none")
	}
	if !apperror.IsCode(err, apperror.CodeNegativeStock) {
		return fmt.Errorf("expected negative stock rejection, got: %w", err)
	}
	log.Infow("negative adjustment rejected as expected")

	final, err := itemSvc.GetByID(ctx, rice.ID)
	if err != nil {
		return fmt.Errorf("reload item: %w", err)
	}
	log.Infow("final cached quantity", "item", final.Name, "quantity", final.Quantity.String())

	return nil
}
