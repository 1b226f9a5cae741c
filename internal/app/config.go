package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config описывает настройки запуска сервиса, читаемые из окружения.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	PostgresDSN string

	KafkaBrokers     []string
	OrderEventsTopic string
	DLQTopic         string

	MercadoPagoToken string
	PaymentMock      bool

	OutboxPollInterval   time.Duration
	DedupCleanupInterval time.Duration
	DedupRetention       time.Duration

	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает конфигурацию с базовыми значениями.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:             ":8080",
		MetricsAddr:          ":9090",
		OrderEventsTopic:     "dispatch.order.events",
		DLQTopic:             "dispatch.dlq",
		PaymentMock:          true,
		OutboxPollInterval:   time.Second,
		DedupCleanupInterval: 15 * time.Minute,
		DedupRetention:       72 * time.Hour,
		ShutdownTimeout:      5 * time.Second,
	}
}

// LoadConfig читает конфигурацию из переменных окружения поверх дефолтов.
func LoadConfig() Config {
	cfg := DefaultConfig()

	cfg.HTTPAddr = getEnv("DISPATCH_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = getEnv("DISPATCH_METRICS_ADDR", cfg.MetricsAddr)
	cfg.PostgresDSN = getEnv("DISPATCH_POSTGRES_DSN", cfg.PostgresDSN)

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	cfg.OrderEventsTopic = getEnv("DISPATCH_ORDER_EVENTS_TOPIC", cfg.OrderEventsTopic)
	cfg.DLQTopic = getEnv("DISPATCH_DLQ_TOPIC", cfg.DLQTopic)

	cfg.MercadoPagoToken = getEnv("MERCADOPAGO_ACCESS_TOKEN", cfg.MercadoPagoToken)
	// Реальный провайдер включается только при наличии токена и явном
	// выключении mock-режима.
	cfg.PaymentMock = getEnvBool("PAYMENT_GATEWAY_MOCK", cfg.MercadoPagoToken == "")

	cfg.OutboxPollInterval = getEnvDuration("DISPATCH_OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.DedupCleanupInterval = getEnvDuration("DISPATCH_DEDUP_CLEANUP_INTERVAL", cfg.DedupCleanupInterval)
	cfg.DedupRetention = getEnvDuration("DISPATCH_DEDUP_RETENTION", cfg.DedupRetention)
	cfg.ShutdownTimeout = getEnvDuration("DISPATCH_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	return cfg
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
