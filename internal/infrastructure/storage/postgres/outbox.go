package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"larder/internal/core/id"
	"larder/internal/domain/notify"
	"larder/pkg/logger"
)

// OutboxStatus represents the state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

const outboxMaxRetries = 5

// OutboxMessage represents one queued notification awaiting delivery.
type OutboxMessage struct {
	ID          id.ID        `db:"id"`
	RecipientID id.ID        `db:"recipient_id"`
	Kind        string       `db:"kind"`
	Payload     []byte       `db:"payload"` // JSON-encoded notify.Notification
	Status      OutboxStatus `db:"status"`
	RetryCount  int          `db:"retry_count"`
	LastError   *string      `db:"last_error"`
	NextRetryAt *time.Time   `db:"next_retry_at"`
	CreatedAt   time.Time    `db:"created_at"`
	PublishedAt *time.Time   `db:"published_at"`
}

// OutboxSink implements notify.Sink by queueing notifications in the
// outbox table. The low-stock monitor runs post-commit, so each send is
// its own short write; the relay delivers asynchronously. A failed enqueue
// surfaces only through the Result value.
type OutboxSink struct {
	txManager *TxManager
}

// NewOutboxSink creates a new outbox-backed notification sink.
func NewOutboxSink(txManager *TxManager) *OutboxSink {
	return &OutboxSink{txManager: txManager}
}

// Send implements notify.Sink.
func (s *OutboxSink) Send(ctx context.Context, n notify.Notification) notify.Result {
	payload, err := json.Marshal(n)
	if err != nil {
		return notify.Result{NotificationID: n.ID, Err: fmt.Errorf("marshal notification: %w", err)}
	}

	querier := s.txManager.GetQuerier(ctx)
	_, err = querier.Exec(ctx, `
		INSERT INTO inv_notification_outbox (id, recipient_id, kind, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.ID, n.RecipientID, n.Kind, payload, OutboxStatusPending, time.Now().UTC())
	if err != nil {
		return notify.Result{NotificationID: n.ID, Err: fmt.Errorf("enqueue notification: %w", err)}
	}

	return notify.Result{NotificationID: n.ID}
}

// OutboxHandler delivers one queued notification to its channel.
type OutboxHandler interface {
	Handle(ctx context.Context, msg *OutboxMessage) error
}

// LogOutboxHandler writes deliveries to the structured log. Stands in
// until a real channel (mail, chat webhook) is wired to the relay.
type LogOutboxHandler struct{}

// Handle implements OutboxHandler.
func (LogOutboxHandler) Handle(ctx context.Context, msg *OutboxMessage) error {
	var n notify.Notification
	if err := json.Unmarshal(msg.Payload, &n); err != nil {
		return fmt.Errorf("unmarshal notification: %w", err)
	}
	logger.Info(ctx, "notification delivered",
		"notification_id", n.ID,
		"recipient_id", n.RecipientID,
		"title", n.Title,
		"kind", n.Kind,
	)
	return nil
}

// OutboxRelay drains pending notifications from the outbox.
// Run by the background worker.
type OutboxRelay struct {
	pool      *pgxpool.Pool
	batchSize int
	handler   OutboxHandler
}

// NewOutboxRelay creates a new outbox relay.
func NewOutboxRelay(pool *pgxpool.Pool, batchSize int, handler OutboxHandler) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{
		pool:      pool,
		batchSize: batchSize,
		handler:   handler,
	}
}

// ProcessBatch fetches and delivers pending messages.
// Returns the number of delivered messages.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, recipient_id, kind, payload, status,
		       retry_count, last_error, next_retry_at, created_at, published_at
		FROM inv_notification_outbox
		WHERE status = $1
		  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY created_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, OutboxStatusPending, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []*OutboxMessage
	for rows.Next() {
		var msg OutboxMessage
		err := rows.Scan(
			&msg.ID, &msg.RecipientID, &msg.Kind, &msg.Payload, &msg.Status,
			&msg.RetryCount, &msg.LastError, &msg.NextRetryAt,
			&msg.CreatedAt, &msg.PublishedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("scan outbox message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate outbox messages: %w", err)
	}

	delivered := 0
	for _, msg := range messages {
		if err := r.processMessage(ctx, msg); err != nil {
			logger.Warn(ctx, "outbox delivery failed",
				"message_id", msg.ID,
				"retry_count", msg.RetryCount,
				"error", err,
			)
			continue
		}
		delivered++
	}

	return delivered, nil
}

func (r *OutboxRelay) processMessage(ctx context.Context, msg *OutboxMessage) error {
	err := r.handler.Handle(ctx, msg)

	if err != nil {
		// Linear backoff keyed to the retry count; give up after the cap.
		nextRetry := time.Now().Add(time.Duration(msg.RetryCount+1) * time.Minute)
		errStr := err.Error()

		_, updateErr := r.pool.Exec(ctx, `
			UPDATE inv_notification_outbox
			SET retry_count = retry_count + 1,
			    last_error = $1,
			    next_retry_at = $2,
			    status = CASE WHEN retry_count >= $3 THEN $4 ELSE status END
			WHERE id = $5
		`, errStr, nextRetry, outboxMaxRetries-1, OutboxStatusFailed, msg.ID)
		if updateErr != nil {
			return fmt.Errorf("update failed message: %w", updateErr)
		}
		return err
	}

	now := time.Now().UTC()
	_, err = r.pool.Exec(ctx, `
		UPDATE inv_notification_outbox
		SET status = $1, published_at = $2
		WHERE id = $3
	`, OutboxStatusPublished, now, msg.ID)

	return err
}

// Ensure interface compliance.
var _ notify.Sink = (*OutboxSink)(nil)
