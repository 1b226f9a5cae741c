package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/dispatch/internal/domain"
)

// WebhookEventRepository хранит применённые webhook-события для дедупликации.
type WebhookEventRepository struct {
	db *sql.DB
}

// NewWebhookEventRepository создаёт репозиторий webhook-событий поверх открытого Store.
func NewWebhookEventRepository(store *Store) *WebhookEventRepository {
	return &WebhookEventRepository{db: store.DB()}
}

// Record идемпотентно фиксирует событие через INSERT ... ON CONFLICT DO NOTHING.
// false означает, что событие с таким (provider_event_id, order_id) уже применялось.
func (r *WebhookEventRepository) Record(event domain.WebhookEvent) (bool, error) {
	if event.ProviderEventID == "" {
		return false, domain.ErrEventIDRequired
	}

	ctx, cancel := queryContext()
	defer cancel()

	appliedAt := event.AppliedAt
	if appliedAt.IsZero() {
		appliedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_events (provider_event_id, order_id, reported_status, applied_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider_event_id, order_id) DO NOTHING
	`, event.ProviderEventID, event.OrderID, event.ReportedStatus, appliedAt)
	if err != nil {
		return false, fmt.Errorf("record webhook event %s: %w", event.ProviderEventID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("read record result for webhook event %s: %w", event.ProviderEventID, err)
	}

	return affected == 1, nil
}

// Seen сообщает, фиксировалось ли событие с таким (provider_event_id, order_id).
func (r *WebhookEventRepository) Seen(providerEventID, orderID string) (bool, error) {
	if providerEventID == "" {
		return false, domain.ErrEventIDRequired
	}

	ctx, cancel := queryContext()
	defer cancel()

	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM webhook_events
			WHERE provider_event_id = $1 AND order_id = $2
		)
	`, providerEventID, orderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check webhook event %s: %w", providerEventID, err)
	}

	return exists, nil
}

// DeleteExpired удаляет события, применённые раньше before, не более limit за вызов.
// Выборка по ctid позволяет удалять порциями без отдельного столбца-счётчика.
func (r *WebhookEventRepository) DeleteExpired(before time.Time, limit int) (int, error) {
	ctx, cancel := queryContext()
	defer cancel()

	if limit <= 0 {
		limit = 500
	}

	result, err := r.db.ExecContext(ctx, `
		DELETE FROM webhook_events
		WHERE ctid IN (
			SELECT ctid
			FROM webhook_events
			WHERE applied_at < $1
			LIMIT $2
		)
	`, before, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired webhook events: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read delete result for webhook events: %w", err)
	}

	return int(affected), nil
}

var _ domain.WebhookEventRepository = (*WebhookEventRepository)(nil)
