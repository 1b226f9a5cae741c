package domain

import (
	"context"
	"time"
)

// OrderRepository описывает требования к хранилищу заказов.
//
// Единственная дисциплина мутации — условная запись (compare-and-swap):
// Save и Claim применяются хранилищем атомарно и только если запись всё ещё
// соответствует ожидаемому состоянию. Реализация не имеет права выполнять
// read-check-write на стороне клиента.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// GetByExternalRef ищет заказ по идентификатору у платёжного провайдера.
	GetByExternalRef(ref string) (Order, error)
	// ListByTenant возвращает заказы витрины с опциональным ограничением на количество.
	ListByTenant(tenantID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу одной условной записью по Version.
	// Claimant и ExternalRef через Save не переназначаются.
	Save(order Order) error
	// Claim — единственная операция, назначающая исполнителя. Выполняется одной
	// атомарной условной записью: статус claimable, claimant не задан, версия
	// совпадает. Возвращает (заказ, true) победителю; проигравшему — текущее
	// состояние и false без ошибки: проигрыш гонки не является сбоем.
	Claim(orderID, claimantID string, expectedVersion int64) (Order, bool, error)
}

// WebhookEventRepository хранит применённые webhook-события для дедупликации.
type WebhookEventRepository interface {
	// Record идемпотентно фиксирует событие. Возвращает false, если событие
	// с таким (provider_event_id, order_id) уже было применено.
	Record(event WebhookEvent) (bool, error)
	// Seen сообщает, фиксировалось ли событие (provider_event_id, order_id).
	Seen(providerEventID, orderID string) (bool, error)
	// DeleteExpired удаляет события, применённые раньше before, порциями limit.
	DeleteExpired(before time.Time, limit int) (int, error)
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// PaymentGateway описывает исходящее взаимодействие с платёжным провайдером.
type PaymentGateway interface {
	// CreateCharge создаёт списание по заказу и возвращает external_ref —
	// идентификатор записи у провайдера.
	CreateCharge(ctx context.Context, orderID string, amountMinor int64) (string, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
