package lifecycle

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/dispatch/internal/domain"
	"github.com/vladislavdragonenkov/dispatch/internal/metrics"
)

const (
	timelineEventOrderCreated       = "OrderCreated"
	timelineEventOrderClaimed       = "OrderClaimed"
	timelineEventOrderStatusChanged = "OrderStatusChanged"
)

// ItemInput описывает позицию создаваемого заказа.
type ItemInput struct {
	Name       string
	Qty        int32
	PriceMinor int64
}

// CreateInput — входные данные операции Create.
type CreateInput struct {
	TenantID string
	Items    []ItemInput
	Address  string
}

// Store — единственный владелец жизненного цикла заказа. Все мутации проходят
// через условные записи репозитория: проигрыш гонки и устаревшая версия
// различаются как исходы, а не сваливаются в одну общую ошибку.
type Store struct {
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
	outbox   domain.OutboxRepository
	logger   *log.Entry
	metrics  *metrics.LifecycleMetrics
}

// NewStore создаёт рабочий экземпляр store.
func NewStore(
	orders domain.OrderRepository,
	timeline domain.TimelineRepository,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) *Store {
	if logger == nil {
		logger = log.New().WithField("component", "lifecycle")
	}
	return &Store{
		orders:   orders,
		timeline: timeline,
		outbox:   outbox,
		logger:   logger,
		metrics:  metrics.NewLifecycleMetrics(),
	}
}

// NewStoreWithoutMetrics создаёт store без метрик (для тестов).
func NewStoreWithoutMetrics(
	orders domain.OrderRepository,
	timeline domain.TimelineRepository,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) *Store {
	store := NewStore(orders, timeline, outbox, logger)
	store.metrics = nil
	return store
}

// Create валидирует входные данные и сохраняет новый заказ со статусом created
// и версией 1. Невалидный ввод отклоняется до какой-либо записи в хранилище.
func (s *Store) Create(input CreateInput) (domain.Order, error) {
	start := time.Now()
	defer s.observe("create", start)

	now := time.Now().UTC()
	items := make([]domain.OrderItem, 0, len(input.Items))
	for _, item := range input.Items {
		items = append(items, domain.OrderItem{
			ID:         uuid.NewString(),
			Name:       item.Name,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
			CreatedAt:  now,
		})
	}

	order := domain.Order{
		ID:          uuid.NewString(),
		TenantID:    input.TenantID,
		Status:      domain.OrderStatusCreated,
		AmountMinor: domain.ItemsAmount(items),
		Items:       items,
		Address:     input.Address,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, fmt.Errorf("%w: %s", domain.ErrInvalidOrder, joinErrors(errs))
	}

	if err := s.orders.Create(order); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to create order")
		return domain.Order{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCreated()
	}
	s.appendTimeline(order.ID, timelineEventOrderCreated, "", order.CreatedAt)
	s.emitEvent(order, "order.created")

	return order, nil
}

// Claim — единственная операция, назначающая исполнителя. Выполняется как одна
// атомарная условная запись в хранилище; два конкурентных вызова дают ровно
// одного победителя. Проигрыш возвращается как won=false, не как ошибка.
func (s *Store) Claim(orderID, claimantID string, expectedVersion int64) (domain.Order, bool, error) {
	start := time.Now()
	defer s.observe("claim", start)

	if claimantID == "" {
		return domain.Order{}, false, domain.ErrClaimantRequired
	}

	order, won, err := s.orders.Claim(orderID, claimantID, expectedVersion)
	if err != nil {
		if !domain.IsNotFound(err) {
			s.logger.WithError(err).WithField("order_id", orderID).Error("claim failed")
		}
		return domain.Order{}, false, err
	}

	if !won {
		if s.metrics != nil {
			s.metrics.RecordClaimLost()
		}
		s.logger.WithFields(log.Fields{
			"order_id": orderID,
			"claimant": claimantID,
		}).Debug("claim lost the race")
		return order, false, nil
	}

	if s.metrics != nil {
		s.metrics.RecordClaimWon()
	}
	s.appendTimeline(order.ID, timelineEventOrderClaimed, claimantID, order.UpdatedAt)
	s.emitEvent(order, "order.claimed")

	return order, true, nil
}

// Advance переводит заказ по таблице переходов с CAS-дисциплиной по версии.
// Недопустимое ребро — ErrInvalidTransition, устаревшая версия —
// ErrVersionConflict; в обоих случаях состояние не меняется.
func (s *Store) Advance(orderID string, target domain.OrderStatus, expectedVersion int64) (domain.Order, error) {
	start := time.Now()
	defer s.observe("advance", start)

	if !target.Valid() {
		if s.metrics != nil {
			s.metrics.RecordInvalidTransition()
		}
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, target)
	}

	current, err := s.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}

	if current.Version != expectedVersion {
		if s.metrics != nil {
			s.metrics.RecordVersionConflict()
		}
		return domain.Order{}, domain.ErrVersionConflict
	}

	if !domain.CanAdvance(current.Status, target) {
		if s.metrics != nil {
			s.metrics.RecordInvalidTransition()
		}
		// Нарушение таблицы переходов — дефект данных или кода, логируем громко.
		s.logger.WithFields(log.Fields{
			"order_id": orderID,
			"from":     current.Status,
			"to":       target,
		}).Error("rejected invalid status transition")
		return domain.Order{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, target)
	}

	updated := current
	updated.Status = target
	updated.UpdatedAt = time.Now().UTC()

	if err := s.orders.Save(updated); err != nil {
		if domain.IsVersionConflict(err) && s.metrics != nil {
			s.metrics.RecordVersionConflict()
		}
		return domain.Order{}, err
	}
	updated.Version = expectedVersion + 1

	s.appendTimeline(updated.ID, timelineEventOrderStatusChanged, string(target), updated.UpdatedAt)
	s.emitEvent(updated, "order."+string(target))

	return updated, nil
}

// AttachExternalRef связывает заказ с записью у платёжного провайдера.
// Ссылка задаётся не более одного раза; повторный вызов с тем же значением идемпотентен.
func (s *Store) AttachExternalRef(orderID, ref string, expectedVersion int64) (domain.Order, error) {
	if ref == "" {
		return domain.Order{}, domain.ErrExternalRefRequired
	}

	current, err := s.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}

	if current.ExternalRef == ref {
		return current, nil
	}
	if current.ExternalRef != "" {
		return domain.Order{}, domain.ErrExternalRefAssigned
	}
	if current.Version != expectedVersion {
		if s.metrics != nil {
			s.metrics.RecordVersionConflict()
		}
		return domain.Order{}, domain.ErrVersionConflict
	}

	updated := current
	updated.ExternalRef = ref
	updated.UpdatedAt = time.Now().UTC()

	if err := s.orders.Save(updated); err != nil {
		if domain.IsVersionConflict(err) && s.metrics != nil {
			s.metrics.RecordVersionConflict()
		}
		return domain.Order{}, err
	}
	updated.Version = expectedVersion + 1

	return updated, nil
}

// Get возвращает заказ по идентификатору.
func (s *Store) Get(orderID string) (domain.Order, error) {
	return s.orders.Get(orderID)
}

// GetByExternalRef возвращает заказ по идентификатору у платёжного провайдера.
func (s *Store) GetByExternalRef(ref string) (domain.Order, error) {
	return s.orders.GetByExternalRef(ref)
}

// ListByTenant возвращает заказы витрины.
func (s *Store) ListByTenant(tenantID string, limit int) ([]domain.Order, error) {
	return s.orders.ListByTenant(tenantID, limit)
}

// Timeline возвращает события жизненного цикла заказа.
func (s *Store) Timeline(orderID string) ([]domain.TimelineEvent, error) {
	if s.timeline == nil {
		return nil, nil
	}
	return s.timeline.List(orderID)
}

func (s *Store) appendTimeline(orderID, eventType, reason string, occurred time.Time) {
	if s.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: occurred,
	}
	if err := s.timeline.Append(event); err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("failed to append timeline event")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordTimelineEvent()
	}
}

func (s *Store) emitEvent(order domain.Order, eventType string) {
	if s.outbox == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"order_id":     order.ID,
		"tenant_id":    order.TenantID,
		"status":       string(order.Status),
		"claimant":     order.Claimant,
		"amount_minor": order.AmountMinor,
		"version":      order.Version,
		"ts":           time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to marshal outbox payload")
		return
	}

	if _, err := s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to enqueue outbox event")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
}

func (s *Store) observe(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordOpDuration(op, time.Since(start))
	}
}

func joinErrors(errs []error) string {
	out := ""
	for i, err := range errs {
		if i > 0 {
			out += "; "
		}
		out += err.Error()
	}
	return out
}
