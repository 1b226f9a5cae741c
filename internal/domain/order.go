package domain

import "time"

// OrderStatus описывает жизненный цикл заказа в Dispatch.
type OrderStatus string

const (
	// OrderStatusDraft — заказ собирается клиентом, позиции ещё могут меняться.
	OrderStatusDraft OrderStatus = "draft"
	// OrderStatusCreated — заказ оформлен, сумма и позиции зафиксированы.
	OrderStatusCreated OrderStatus = "created"
	// OrderStatusSearching — идёт поиск исполнителя, заказ доступен для принятия.
	OrderStatusSearching OrderStatus = "searching"
	// OrderStatusClaimed — заказ принят ровно одним исполнителем.
	OrderStatusClaimed OrderStatus = "claimed"
	// OrderStatusInProgress — оплата подтверждена, исполнитель работает над заказом.
	OrderStatusInProgress OrderStatus = "in_progress"
	// OrderStatusDelivered — доставка подтверждена, заказ завершён.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён до завершения цикла.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded — деньги возвращены клиенту после отмены или доставки.
	OrderStatusRefunded OrderStatus = "refunded"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusDraft, OrderStatusCreated, OrderStatusSearching,
		OrderStatusClaimed, OrderStatusInProgress, OrderStatusDelivered,
		OrderStatusCancelled, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// Claimable сообщает, может ли заказ в этом статусе быть принят исполнителем.
func (s OrderStatus) Claimable() bool {
	return s == OrderStatusCreated || s == OrderStatusSearching
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	// ID позиции нужен для однозначной идентификации и аудита.
	ID string
	// Name — название позиции в каталоге витрины.
	Name string
	// Qty — количество единиц.
	Qty int32
	// PriceMinor — цена за единицу в минимальных денежных единицах (например, сентаво).
	PriceMinor int64
	// CreatedAt фиксирует момент добавления позиции в заказ.
	CreatedAt time.Time
}

// Order агрегирует состояние заказа витрины и его позиции.
//
// Claimant устанавливается не более одного раза и только операцией Claim.
// Version растёт ровно на 1 при каждой принятой мутации и служит токеном
// optimistic locking: запись с устаревшей версией отклоняется, а не
// перезаписывает чужие изменения.
type Order struct {
	ID       string
	TenantID string
	Status   OrderStatus
	// Claimant — исполнитель, выигравший заказ; пустая строка, пока заказ никем не принят.
	Claimant    string
	AmountMinor int64
	Items       []OrderItem
	// Address — опциональный адрес доставки, задаётся при создании.
	Address string
	// ExternalRef связывает заказ с записью у платёжного провайдера; задаётся не более одного раза.
	ExternalRef string
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.TenantID == "" {
		errs = append(errs, ErrTenantRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем сумму заказа с суммой позиций: qty * price.
	var calc int64
	for _, item := range o.Items {
		if item.Name == "" {
			errs = append(errs, ErrItemNameRequired)
		}
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += int64(item.Qty) * item.PriceMinor
	}
	if calc != o.AmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// ItemsAmount считает сумму заказа по позициям в минимальных единицах.
func ItemsAmount(items []OrderItem) int64 {
	var sum int64
	for _, item := range items {
		sum += int64(item.Qty) * item.PriceMinor
	}
	return sum
}
