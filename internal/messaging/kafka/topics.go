package kafka

// Имена топиков по умолчанию. Рабочие значения берутся из конфигурации
// сервиса; константы нужны инструментам (replay) и тестам.
const (
	TopicOrderEvents     = "dispatch.order.events"
	TopicDeadLetterQueue = "dispatch.dlq"
)
