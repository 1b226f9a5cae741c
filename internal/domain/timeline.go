package domain

import "time"

// TimelineEvent — одна запись в истории заказа: что произошло и когда.
// Reason заполняется только для отмен и отказов.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}

// Before задаёт хронологический порядок событий.
func (e TimelineEvent) Before(other TimelineEvent) bool {
	return e.Occurred.Before(other.Occurred)
}
