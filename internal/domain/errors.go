package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора витрины.
	ErrTenantRequired = errors.New("tenant_id is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отсутствующего названия позиции.
	ErrItemNameRequired = errors.New("item name is required")
	// Ошибка при некорректном количестве (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")
	// ErrInvalidOrder объединяет нарушения инвариантов при создании заказа.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrVersionConflict сигнализирует о конфликте версий при сохранении:
	// кто-то успел изменить заказ между чтением и записью.
	ErrVersionConflict = errors.New("order version conflict")
	// ErrInvalidTransition — запрошенный переход отсутствует в таблице статусов.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrClaimantRequired — идентификатор исполнителя обязателен для claim.
	ErrClaimantRequired = errors.New("claimant_id is required")
	// ErrClaimantImmutable — исполнитель заказа не переназначается этим компонентом.
	ErrClaimantImmutable = errors.New("order claimant cannot be reassigned")
	// ErrExternalRefRequired — пустая ссылка на платёжного провайдера недопустима.
	ErrExternalRefRequired = errors.New("external_ref is required")
	// ErrExternalRefAssigned — ссылка на платёжного провайдера задаётся один раз.
	ErrExternalRefAssigned = errors.New("order external_ref is already assigned")
	// ErrEventIDRequired — у webhook-уведомления обязателен идентификатор события.
	ErrEventIDRequired = errors.New("provider_event_id is required")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsInvalidTransition проверяет, является ли ошибка нарушением таблицы переходов.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsNotFound проверяет, является ли ошибка отсутствием заказа.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound)
}
