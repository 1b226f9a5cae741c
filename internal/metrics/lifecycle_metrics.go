package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LifecycleMetrics содержит метрики операций жизненного цикла заказа.
type LifecycleMetrics struct {
	// Счётчики операций
	ordersCreated     prometheus.Counter
	claimAttempts     *prometheus.CounterVec
	versionConflicts  prometheus.Counter
	invalidTransition prometheus.Counter

	// Результаты обработки webhook-уведомлений
	webhookEvents *prometheus.CounterVec

	// Гистограмма времени выполнения операций
	opDuration *prometheus.HistogramVec

	// Счётчики событий timeline и outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewLifecycleMetrics создаёт новый экземпляр метрик жизненного цикла.
func NewLifecycleMetrics() *LifecycleMetrics {
	return newLifecycleMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newLifecycleMetricsWithRegisterer(registerer prometheus.Registerer) *LifecycleMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &LifecycleMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "dispatch_orders_created_total",
			Help: "Total number of orders created",
		}),
		claimAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "dispatch_claim_attempts_total",
			Help: "Total number of claim attempts grouped by outcome",
		}, []string{"outcome"}),
		versionConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "dispatch_version_conflicts_total",
			Help: "Total number of rejected stale-version mutations",
		}),
		invalidTransition: registerCounter(registerer, prometheus.CounterOpts{
			Name: "dispatch_invalid_transitions_total",
			Help: "Total number of status changes rejected by the transition table",
		}),
		webhookEvents: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "dispatch_webhook_events_total",
			Help: "Total number of payment webhook notifications grouped by result",
		}, []string{"result"}),
		opDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "dispatch_operation_duration_seconds",
			Help:    "Duration of lifecycle operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"op"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "dispatch_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "dispatch_outbox_events_total",
			Help: "Total number of events enqueued to the transactional outbox",
		}),
	}
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *LifecycleMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordClaimWon фиксирует выигранную попытку принятия заказа.
func (m *LifecycleMetrics) RecordClaimWon() {
	m.claimAttempts.WithLabelValues("won").Inc()
}

// RecordClaimLost фиксирует проигранную гонку за заказ.
func (m *LifecycleMetrics) RecordClaimLost() {
	m.claimAttempts.WithLabelValues("lost").Inc()
}

// RecordVersionConflict увеличивает счётчик конфликтов версий.
func (m *LifecycleMetrics) RecordVersionConflict() {
	m.versionConflicts.Inc()
}

// RecordInvalidTransition увеличивает счётчик отклонённых переходов.
func (m *LifecycleMetrics) RecordInvalidTransition() {
	m.invalidTransition.Inc()
}

// RecordWebhook фиксирует результат обработки webhook-уведомления.
func (m *LifecycleMetrics) RecordWebhook(result string) {
	m.webhookEvents.WithLabelValues(result).Inc()
}

// RecordOpDuration записывает время выполнения операции.
func (m *LifecycleMetrics) RecordOpDuration(op string, duration time.Duration) {
	m.opDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *LifecycleMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *LifecycleMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}
