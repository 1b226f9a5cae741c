package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/dispatch/internal/domain"
	"github.com/vladislavdragonenkov/dispatch/internal/payments"
	"github.com/vladislavdragonenkov/dispatch/internal/storage/memory"
	"github.com/vladislavdragonenkov/dispatch/internal/storage/postgres"
)

// Dependencies содержит зависимости приложения: хранилища и платёжный шлюз.
type Dependencies struct {
	Repo         domain.OrderRepository
	OutboxRepo   domain.OutboxRepository
	TimelineRepo domain.TimelineRepository
	WebhookRepo  domain.WebhookEventRepository
	Gateway      domain.PaymentGateway
	Logger       *log.Entry

	// pgStore не nil, когда хранилища работают поверх Postgres.
	pgStore *postgres.Store
}

// NewDependencies создаёт зависимости приложения по конфигурации.
// Пустой PostgresDSN включает in-memory хранилища для локальной разработки.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{Logger: logger}

	if cfg.PostgresDSN != "" {
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("ensure postgres schema: %w", err)
		}

		deps.pgStore = store
		deps.Repo = postgres.NewOrderRepository(store)
		deps.OutboxRepo = postgres.NewOutboxRepository(store)
		deps.TimelineRepo = postgres.NewTimelineRepository(store)
		deps.WebhookRepo = postgres.NewWebhookEventRepository(store)
		logger.Info("postgres storage initialized")
	} else {
		deps.Repo = memory.NewOrderRepository()
		deps.OutboxRepo = memory.NewOutboxRepository()
		deps.TimelineRepo = memory.NewTimelineRepository()
		deps.WebhookRepo = memory.NewWebhookEventRepository()
		logger.Warn("postgres dsn is empty, using in-memory storage")
	}

	gateway, err := payments.NewMercadoPagoGateway(cfg.MercadoPagoToken, cfg.PaymentMock,
		logger.WithField("component", "payment-gateway"))
	if err != nil {
		_ = deps.Close()
		return nil, fmt.Errorf("init payment gateway: %w", err)
	}
	deps.Gateway = gateway

	return deps, nil
}

// PostgresStore возвращает нижележащий Store или nil для in-memory режима.
func (d *Dependencies) PostgresStore() *postgres.Store {
	return d.pgStore
}

// Close освобождает ресурсы зависимостей.
func (d *Dependencies) Close() error {
	if d.pgStore != nil {
		return d.pgStore.Close()
	}
	return nil
}
