package domain

// allowedTransitions задаёт закрытую таблицу переходов статусов заказа.
// Переход searching→claimed выполняется только операцией Claim; для Advance
// он закрыт (см. CanAdvance).
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusDraft:      {OrderStatusCreated},
	OrderStatusCreated:    {OrderStatusSearching, OrderStatusCancelled},
	OrderStatusSearching:  {OrderStatusClaimed, OrderStatusCancelled},
	OrderStatusClaimed:    {OrderStatusInProgress, OrderStatusCancelled},
	OrderStatusInProgress: {OrderStatusDelivered},
	OrderStatusDelivered:  {OrderStatusRefunded},
	OrderStatusCancelled:  {OrderStatusRefunded},
	// Терминальный статус: дальнейших переходов нет.
	OrderStatusRefunded: {},
}

// CanTransition сообщает, существует ли ребро from→to в таблице переходов.
func CanTransition(from, to OrderStatus) bool {
	allowed, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// CanAdvance сообщает, допустим ли переход from→to для операции Advance.
// Статус claimed назначается только через Claim, поэтому для Advance он закрыт.
func CanAdvance(from, to OrderStatus) bool {
	if to == OrderStatusClaimed {
		return false
	}
	return CanTransition(from, to)
}
