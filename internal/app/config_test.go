package app

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.HTTPAddr != ":8080" || cfg.MetricsAddr != ":9090" {
		t.Fatalf("unexpected default addrs: %s %s", cfg.HTTPAddr, cfg.MetricsAddr)
	}
	if cfg.OrderEventsTopic != "dispatch.order.events" || cfg.DLQTopic != "dispatch.dlq" {
		t.Fatalf("unexpected default topics: %s %s", cfg.OrderEventsTopic, cfg.DLQTopic)
	}
	if !cfg.PaymentMock {
		t.Fatal("payment gateway must default to mock mode")
	}
	if cfg.DedupRetention != 72*time.Hour {
		t.Fatalf("unexpected default dedup retention: %s", cfg.DedupRetention)
	}
}

func TestLoadConfig_ReadsEnvironment(t *testing.T) {
	t.Setenv("DISPATCH_HTTP_ADDR", ":18080")
	t.Setenv("DISPATCH_METRICS_ADDR", ":19090")
	t.Setenv("DISPATCH_POSTGRES_DSN", "postgres://dispatch:dispatch@db:5432/dispatch")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092 ,")
	t.Setenv("DISPATCH_ORDER_EVENTS_TOPIC", "custom.events")
	t.Setenv("DISPATCH_DLQ_TOPIC", "custom.dlq")
	t.Setenv("MERCADOPAGO_ACCESS_TOKEN", "TEST-token")
	t.Setenv("PAYMENT_GATEWAY_MOCK", "false")
	t.Setenv("DISPATCH_OUTBOX_POLL_INTERVAL", "250ms")
	t.Setenv("DISPATCH_DEDUP_CLEANUP_INTERVAL", "30")
	t.Setenv("DISPATCH_DEDUP_RETENTION", "48h")
	t.Setenv("DISPATCH_SHUTDOWN_TIMEOUT", "10s")

	cfg := LoadConfig()

	if cfg.HTTPAddr != ":18080" || cfg.MetricsAddr != ":19090" {
		t.Fatalf("unexpected addrs: %s %s", cfg.HTTPAddr, cfg.MetricsAddr)
	}
	if cfg.PostgresDSN != "postgres://dispatch:dispatch@db:5432/dispatch" {
		t.Fatalf("unexpected dsn: %s", cfg.PostgresDSN)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "broker-1:9092" || cfg.KafkaBrokers[1] != "broker-2:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
	if cfg.OrderEventsTopic != "custom.events" || cfg.DLQTopic != "custom.dlq" {
		t.Fatalf("unexpected topics: %s %s", cfg.OrderEventsTopic, cfg.DLQTopic)
	}
	if cfg.MercadoPagoToken != "TEST-token" || cfg.PaymentMock {
		t.Fatalf("unexpected payment config: token=%q mock=%v", cfg.MercadoPagoToken, cfg.PaymentMock)
	}
	if cfg.OutboxPollInterval != 250*time.Millisecond {
		t.Fatalf("unexpected outbox poll interval: %s", cfg.OutboxPollInterval)
	}
	if cfg.DedupCleanupInterval != 30*time.Second {
		t.Fatalf("seconds fallback must parse bare integers, got %s", cfg.DedupCleanupInterval)
	}
	if cfg.DedupRetention != 48*time.Hour {
		t.Fatalf("unexpected dedup retention: %s", cfg.DedupRetention)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("unexpected shutdown timeout: %s", cfg.ShutdownTimeout)
	}
}

func TestLoadConfig_PaymentMockDefaultsByToken(t *testing.T) {
	t.Setenv("MERCADOPAGO_ACCESS_TOKEN", "TEST-token")
	t.Setenv("PAYMENT_GATEWAY_MOCK", "")

	cfg := LoadConfig()
	if cfg.PaymentMock {
		t.Fatal("mock must default to false when access token is set")
	}

	t.Setenv("MERCADOPAGO_ACCESS_TOKEN", "")
	cfg = LoadConfig()
	if !cfg.PaymentMock {
		t.Fatal("mock must default to true without access token")
	}
}

func TestLoadConfig_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("DISPATCH_OUTBOX_POLL_INTERVAL", "not-a-duration")

	cfg := LoadConfig()
	if cfg.OutboxPollInterval != DefaultConfig().OutboxPollInterval {
		t.Fatalf("invalid duration must fall back to default, got %s", cfg.OutboxPollInterval)
	}
}
