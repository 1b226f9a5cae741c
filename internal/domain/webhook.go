package domain

import "time"

// PaymentNotification — входящее уведомление платёжного провайдера.
// Провайдер доставляет уведомления с повторами, дубликатами и без гарантии
// порядка, поэтому обработка обязана быть идемпотентной.
type PaymentNotification struct {
	// ProviderEventID — уникальный идентификатор события у провайдера, ключ дедупликации.
	ProviderEventID string
	// ExternalRef — идентификатор заказа у провайдера (наш external_ref).
	ExternalRef string
	// ReportedStatus — статус в словаре провайдера ("PAID", "DECLINED", ...).
	ReportedStatus string
}

// WebhookEvent фиксирует применённое webhook-событие для дедупликации повторов.
type WebhookEvent struct {
	ProviderEventID string
	OrderID         string
	ReportedStatus  string
	AppliedAt       time.Time
}
