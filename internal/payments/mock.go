package payments

import (
	"context"
	"strconv"

	"github.com/vladislavdragonenkov/dispatch/internal/domain"
)

// MockGateway — конфигурируемая заглушка PaymentGateway для тестов.
type MockGateway struct {
	ChargeRef string
	ChargeErr error

	ChargeCalls int
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// CreateCharge возвращает заранее настроенный external_ref и считает вызовы.
func (m *MockGateway) CreateCharge(_ context.Context, orderID string, _ int64) (string, error) {
	m.ChargeCalls++
	if m.ChargeErr != nil {
		return "", m.ChargeErr
	}
	if m.ChargeRef != "" {
		return m.ChargeRef, nil
	}
	return "mock-ref-" + orderID + "-" + strconv.Itoa(m.ChargeCalls), nil
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
