package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/dispatch/internal/domain"
)

// webhookEventRepositoryInMemory хранит применённые webhook-события в памяти.
type webhookEventRepositoryInMemory struct {
	mu     sync.Mutex
	events map[string]domain.WebhookEvent
}

// NewWebhookEventRepository создаёт in-memory реализацию WebhookEventRepository.
func NewWebhookEventRepository() domain.WebhookEventRepository {
	return &webhookEventRepositoryInMemory{events: make(map[string]domain.WebhookEvent)}
}

func dedupKey(providerEventID, orderID string) string {
	return providerEventID + "/" + orderID
}

// Record идемпотентно фиксирует событие; false означает повторную доставку.
func (r *webhookEventRepositoryInMemory) Record(event domain.WebhookEvent) (bool, error) {
	if event.ProviderEventID == "" {
		return false, domain.ErrEventIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := dedupKey(event.ProviderEventID, event.OrderID)
	if _, exists := r.events[key]; exists {
		return false, nil
	}

	if event.AppliedAt.IsZero() {
		event.AppliedAt = time.Now().UTC()
	}
	r.events[key] = event
	return true, nil
}

// Seen сообщает, фиксировалось ли событие с таким ключом.
func (r *webhookEventRepositoryInMemory) Seen(providerEventID, orderID string) (bool, error) {
	if providerEventID == "" {
		return false, domain.ErrEventIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.events[dedupKey(providerEventID, orderID)]
	return exists, nil
}

// DeleteExpired удаляет события старше before, не более limit за вызов.
func (r *webhookEventRepositoryInMemory) DeleteExpired(before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = len(r.events)
	}

	deleted := 0
	for key, event := range r.events {
		if deleted >= limit {
			break
		}
		if event.AppliedAt.Before(before) {
			delete(r.events, key)
			deleted++
		}
	}
	return deleted, nil
}

var _ domain.WebhookEventRepository = (*webhookEventRepositoryInMemory)(nil)
