package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/dispatch/internal/domain"
)

// ErrMissingAccessToken возвращается, когда токен Mercado Pago не задан
// и mock-режим выключен.
var ErrMissingAccessToken = errors.New("missing mercado pago access token")

// ErrGatewayNotConfigured возвращается при вызове ненастроенного шлюза.
var ErrGatewayNotConfigured = errors.New("mercado pago gateway not configured")

// MercadoPagoGateway создаёт списания через Mercado Pago SDK.
// В mock-режиме шлюз генерирует синтетический external_ref без
// обращения к провайдеру.
type MercadoPagoGateway struct {
	client   payment.Client
	logger   *log.Entry
	mockMode bool
}

// NewMercadoPagoGateway создаёт шлюз. При mockMode=true accessToken
// не требуется.
func NewMercadoPagoGateway(accessToken string, mockMode bool, logger *log.Entry) (*MercadoPagoGateway, error) {
	if logger == nil {
		logger = log.WithField("component", "mercadopago-gateway")
	}

	if mockMode {
		logger.Info("mercado pago gateway running in mock mode")
		return &MercadoPagoGateway{logger: logger, mockMode: true}, nil
	}

	if accessToken == "" {
		return nil, ErrMissingAccessToken
	}

	cfg, err := config.New(accessToken)
	if err != nil {
		return nil, fmt.Errorf("create mercado pago config: %w", err)
	}

	logger.Info("mercado pago client initialized")
	return &MercadoPagoGateway{
		client: payment.NewClient(cfg),
		logger: logger,
	}, nil
}

// CreateCharge создаёт списание и возвращает идентификатор записи
// у провайдера. Сумма передаётся в minor units.
func (g *MercadoPagoGateway) CreateCharge(ctx context.Context, orderID string, amountMinor int64) (string, error) {
	if g == nil {
		return "", ErrGatewayNotConfigured
	}

	if g.mockMode {
		ref := "mock-" + strconv.FormatInt(time.Now().UTC().UnixNano(), 10)
		g.logger.WithFields(log.Fields{
			"order_id":     orderID,
			"amount_minor": amountMinor,
			"external_ref": ref,
		}).Info("mock charge created")
		return ref, nil
	}

	if g.client == nil {
		return "", ErrGatewayNotConfigured
	}

	req := payment.Request{
		TransactionAmount: float64(amountMinor) / 100,
		Description:       "dispatch order " + orderID,
		ExternalReference: orderID,
	}

	resp, err := g.client.Create(ctx, req)
	if err != nil {
		g.logger.WithError(err).WithField("order_id", orderID).Error("mercado pago create failed")
		return "", fmt.Errorf("mercado pago create: %w", err)
	}

	ref := strconv.Itoa(resp.ID)
	g.logger.WithFields(log.Fields{
		"order_id":     orderID,
		"external_ref": ref,
		"status":       resp.Status,
	}).Info("charge created")
	return ref, nil
}

var _ domain.PaymentGateway = (*MercadoPagoGateway)(nil)
