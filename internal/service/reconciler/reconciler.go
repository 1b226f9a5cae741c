package reconciler

import (
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/dispatch/internal/domain"
	"github.com/vladislavdragonenkov/dispatch/internal/metrics"
	"github.com/vladislavdragonenkov/dispatch/internal/service/lifecycle"
)

// Результаты обработки уведомления для метрик и логов.
const (
	resultApplied    = "applied"
	resultDuplicate  = "duplicate"
	resultUnknownRef = "unknown_ref"
	resultUnmapped   = "unmapped"
	resultConflict   = "conflict"
	resultGaveUp     = "gave_up"
)

// providerStatusMap переводит словарь платёжного провайдера в целевой статус
// заказа. Неизвестные значения не являются ошибкой: логируются и отбрасываются.
var providerStatusMap = map[string]domain.OrderStatus{
	"PAID":       domain.OrderStatusInProgress,
	"APPROVED":   domain.OrderStatusInProgress,
	"DECLINED":   domain.OrderStatusCancelled,
	"REJECTED":   domain.OrderStatusCancelled,
	"CANCELLED":  domain.OrderStatusCancelled,
	"REFUNDED":   domain.OrderStatusRefunded,
	"CHARGEBACK": domain.OrderStatusRefunded,
}

// RetryConfig задаёт параметры внутренних повторов при конфликте версий.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Reconciler принимает асинхронные уведомления платёжного провайдера и
// проводит их через ту же таблицу переходов, что и остальные мутации.
//
// Контракт с провайдером: бизнес-отказ (неизвестная ссылка, дубликат,
// неприменимый переход) всегда подтверждается, иначе провайдер будет
// ретраить вечно. Ошибка возвращается только при сбое самого хранилища.
type Reconciler struct {
	store   *lifecycle.Store
	events  domain.WebhookEventRepository
	logger  *log.Entry
	metrics *metrics.LifecycleMetrics
	retry   RetryConfig
}

// NewReconciler создаёт reconciler с конфигурацией повторов по умолчанию.
func NewReconciler(
	store *lifecycle.Store,
	events domain.WebhookEventRepository,
	logger *log.Entry,
) *Reconciler {
	if logger == nil {
		logger = log.New().WithField("component", "reconciler")
	}
	return &Reconciler{
		store:   store,
		events:  events,
		logger:  logger,
		metrics: metrics.NewLifecycleMetrics(),
		retry:   DefaultRetryConfig(),
	}
}

// NewReconcilerWithoutMetrics создаёт reconciler без метрик (для тестов).
func NewReconcilerWithoutMetrics(
	store *lifecycle.Store,
	events domain.WebhookEventRepository,
	logger *log.Entry,
) *Reconciler {
	r := NewReconciler(store, events, logger)
	r.metrics = nil
	return r
}

// WithRetryConfig заменяет конфигурацию внутренних повторов.
func (r *Reconciler) WithRetryConfig(cfg RetryConfig) *Reconciler {
	if cfg.MaxAttempts > 0 {
		r.retry = cfg
	}
	return r
}

// OnNotification обрабатывает одно уведомление провайдера.
// Возвращаемая ошибка означает сбой хранилища (транспортный уровень);
// все бизнес-исходы подтверждаются молча.
func (r *Reconciler) OnNotification(n domain.PaymentNotification) error {
	logger := r.logger.WithFields(log.Fields{
		"provider_event_id": n.ProviderEventID,
		"external_ref":      n.ExternalRef,
		"reported_status":   n.ReportedStatus,
	})

	if n.ProviderEventID == "" {
		logger.Warn("notification without provider_event_id discarded")
		r.record(resultUnmapped)
		return nil
	}

	order, err := r.store.GetByExternalRef(n.ExternalRef)
	if err != nil {
		if domain.IsNotFound(err) {
			logger.Warn("notification for unknown external_ref acknowledged")
			r.record(resultUnknownRef)
			return nil
		}
		return err
	}

	target, ok := providerStatusMap[strings.ToUpper(strings.TrimSpace(n.ReportedStatus))]
	if !ok {
		logger.Warn("unmapped provider status discarded")
		r.record(resultUnmapped)
		return nil
	}

	seen, err := r.events.Seen(n.ProviderEventID, order.ID)
	if err != nil {
		return err
	}
	if seen {
		logger.Debug("duplicate notification acknowledged without reapplying")
		r.record(resultDuplicate)
		return nil
	}

	outcome, err := r.advanceWithRetry(logger, order.ID, target)
	if err != nil {
		// Событие не зафиксировано: повторная доставка провайдера применит
		// переход заново после восстановления хранилища.
		return err
	}
	r.record(outcome)

	// Исчезнувший заказ и исчерпанные повторы не фиксируются: повторная
	// доставка провайдера даст событию ещё один шанс примениться.
	if outcome == resultUnknownRef || outcome == resultGaveUp {
		return nil
	}

	// Дедуп-запись делается после применения. Если сам Record откажет,
	// повторная доставка безопасна: advance увидит достигнутый статус.
	if _, err := r.events.Record(domain.WebhookEvent{
		ProviderEventID: n.ProviderEventID,
		OrderID:         order.ID,
		ReportedStatus:  n.ReportedStatus,
		AppliedAt:       time.Now().UTC(),
	}); err != nil {
		return err
	}

	return nil
}

// advanceWithRetry применяет переход, перечитывая актуальную версию при
// конфликте. Неприменимый переход (например, PAID после cancelled) — это
// конфликт с внешним миром, он логируется и подтверждается.
func (r *Reconciler) advanceWithRetry(logger *log.Entry, orderID string, target domain.OrderStatus) (string, error) {
	delay := r.retry.InitialDelay

	for attempt := 1; attempt <= r.retry.MaxAttempts; attempt++ {
		current, err := r.store.Get(orderID)
		if err != nil {
			if domain.IsNotFound(err) {
				logger.Warn("order vanished before reconciliation, acknowledged")
				return resultUnknownRef, nil
			}
			return "", err
		}

		if current.Status == target {
			// Статус уже достигнут другим путём, повторять нечего.
			return resultDuplicate, nil
		}

		_, err = r.store.Advance(orderID, target, current.Version)
		if err == nil {
			logger.WithField("target", target).Info("payment notification reconciled")
			return resultApplied, nil
		}

		if domain.IsInvalidTransition(err) {
			logger.WithFields(log.Fields{
				"current": current.Status,
				"target":  target,
			}).Warn("notification conflicts with order state, acknowledged")
			return resultConflict, nil
		}

		if !domain.IsVersionConflict(err) {
			return "", err
		}

		if attempt < r.retry.MaxAttempts {
			time.Sleep(delay)
			delay = time.Duration(float64(delay) * r.retry.BackoffFactor)
			if delay > r.retry.MaxDelay {
				delay = r.retry.MaxDelay
			}
		}
	}

	logger.WithField("target", target).Error("reconciliation gave up after version conflicts, manual review required")
	return resultGaveUp, nil
}

func (r *Reconciler) record(result string) {
	if r.metrics != nil {
		r.metrics.RecordWebhook(result)
	}
}
