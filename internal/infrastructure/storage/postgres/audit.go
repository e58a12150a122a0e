package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"larder/internal/core/appctx"
	"larder/internal/core/id"
	"larder/internal/core/types"
	"larder/internal/domain/inventory"
)

// CompressionAlgo specifies the compression algorithm used for stored
// metadata payloads.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// activityRow is the storage shape of one audit-trail entry. Metadata
// above the threshold is stored zstd-compressed.
type activityRow struct {
	ID                 id.ID           `db:"id"`
	ItemID             id.ID           `db:"item_id"`
	OperationID        id.ID           `db:"operation_id"`
	Action             string          `db:"action"`
	QtyChange          int64           `db:"qty_change"`
	PreviousQty        int64           `db:"previous_qty"`
	NewQty             int64           `db:"new_qty"`
	Reason             string          `db:"reason"`
	ActorID            *id.ID          `db:"actor_id"`
	Metadata           json.RawMessage `db:"metadata"`
	MetadataCompressed []byte          `db:"metadata_compressed"`
	CompressionAlgo    CompressionAlgo `db:"compression_algo"`
	CreatedAt          time.Time       `db:"created_at"`
}

// ActivityStore persists the inventory audit trail. It implements
// inventory.ActivityRecorder and writes within the caller's transaction
// so the trail commits or rolls back with the movements it describes.
type ActivityStore struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes
}

// NewActivityStore creates a new activity store.
func NewActivityStore(txManager *TxManager) (*ActivityStore, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &ActivityStore{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// Record persists one audit-trail entry.
func (s *ActivityStore) Record(ctx context.Context, entry inventory.Activity) error {
	row := activityRow{
		ID:              entry.ID,
		ItemID:          entry.ItemID,
		OperationID:     entry.OperationID,
		Action:          string(entry.Action),
		QtyChange:       entry.QtyChange.Int64Scaled(),
		PreviousQty:     entry.PreviousQty.Int64Scaled(),
		NewQty:          entry.NewQty.Int64Scaled(),
		Reason:          entry.Reason,
		ActorID:         entry.ActorID,
		CompressionAlgo: CompressionNone,
		CreatedAt:       entry.CreatedAt,
	}

	if row.ActorID == nil {
		row.ActorID = appctx.GetActorID(ctx)
	}
	if id.IsNil(row.ID) {
		row.ID = id.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	if len(entry.Metadata) > 0 {
		metadataJSON, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		row.Metadata = metadataJSON

		if len(metadataJSON) > s.compressThreshold {
			row.MetadataCompressed = s.encoder.EncodeAll(metadataJSON, nil)
			row.Metadata = nil
			row.CompressionAlgo = CompressionZstd
		}
	}

	sql := `
		INSERT INTO inv_activity (
			id, item_id, operation_id, action,
			qty_change, previous_qty, new_qty, reason, actor_id,
			metadata, metadata_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	querier := s.txManager.GetQuerier(ctx)
	_, err := querier.Exec(ctx, sql,
		row.ID, row.ItemID, row.OperationID, row.Action,
		row.QtyChange, row.PreviousQty, row.NewQty, row.Reason, row.ActorID,
		row.Metadata, row.MetadataCompressed, row.CompressionAlgo, row.CreatedAt,
	)

	return err
}

// ItemHistory retrieves the audit trail for an item, newest first.
func (s *ActivityStore) ItemHistory(ctx context.Context, itemID id.ID, limit int) ([]inventory.Activity, error) {
	if limit <= 0 {
		limit = 100
	}

	sql := `
		SELECT id, item_id, operation_id, action,
			   qty_change, previous_qty, new_qty, reason, actor_id,
			   metadata, metadata_compressed, compression_algo, created_at
		FROM inv_activity
		WHERE item_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := s.txManager.GetQuerier(ctx).Query(ctx, sql, itemID, limit)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	var entries []inventory.Activity
	for rows.Next() {
		var row activityRow
		err := rows.Scan(
			&row.ID, &row.ItemID, &row.OperationID, &row.Action,
			&row.QtyChange, &row.PreviousQty, &row.NewQty, &row.Reason, &row.ActorID,
			&row.Metadata, &row.MetadataCompressed, &row.CompressionAlgo, &row.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}

		entry, err := s.toActivity(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (s *ActivityStore) toActivity(row activityRow) (inventory.Activity, error) {
	entry := inventory.Activity{
		ID:          row.ID,
		ItemID:      row.ItemID,
		OperationID: row.OperationID,
		Action:      inventory.Action(row.Action),
		QtyChange:   types.NewQuantityFromInt64Scaled(row.QtyChange),
		PreviousQty: types.NewQuantityFromInt64Scaled(row.PreviousQty),
		NewQty:      types.NewQuantityFromInt64Scaled(row.NewQty),
		Reason:      row.Reason,
		ActorID:     row.ActorID,
		CreatedAt:   row.CreatedAt,
	}

	metadataJSON := row.Metadata
	if row.CompressionAlgo == CompressionZstd && len(row.MetadataCompressed) > 0 {
		decompressed, err := s.decoder.DecodeAll(row.MetadataCompressed, nil)
		if err != nil {
			return entry, fmt.Errorf("decompress metadata: %w", err)
		}
		metadataJSON = decompressed
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return entry, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return entry, nil
}

// Ensure interface compliance.
var _ inventory.ActivityRecorder = (*ActivityStore)(nil)
