package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/dispatch/internal/domain"
	"github.com/vladislavdragonenkov/dispatch/internal/payments"
	"github.com/vladislavdragonenkov/dispatch/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/dispatch/internal/service/reconciler"
	"github.com/vladislavdragonenkov/dispatch/internal/storage/memory"
)

func newTestServer(t *testing.T) (*Server, *payments.MockGateway) {
	t.Helper()

	logger := log.New().WithField("component", "http-test")
	store := lifecycle.NewStoreWithoutMetrics(
		memory.NewOrderRepository(),
		memory.NewTimelineRepository(),
		memory.NewOutboxRepository(),
		logger,
	)
	rec := reconciler.NewReconcilerWithoutMetrics(store, memory.NewWebhookEventRepository(), logger)
	gateway := payments.NewMockGateway()

	return NewServer(":0", store, rec, gateway, logger), gateway
}

func doJSON(t *testing.T, handler http.Handler, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func createTestOrder(t *testing.T, handler http.Handler) orderResponse {
	t.Helper()

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/orders", createOrderRequest{
		TenantID: "tenant-1",
		Items: []orderItemRequest{
			{Name: "consulta", Qty: 2, PriceMinor: 1000},
			{Name: "laudo", Qty: 1, PriceMinor: 500},
		},
		Address: "Av. Paulista 1000",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	var order orderResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &order))
	return order
}

func TestCreateOrder(t *testing.T) {
	server, _ := newTestServer(t)

	order := createTestOrder(t, server.Router())

	assert.NotEmpty(t, order.ID)
	assert.Equal(t, "tenant-1", order.TenantID)
	assert.Equal(t, string(domain.OrderStatusCreated), order.Status)
	assert.Equal(t, int64(2500), order.AmountMinor)
	assert.Equal(t, int64(1), order.Version)
}

func TestCreateOrderInvalid(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doJSON(t, server.Router(), http.MethodPost, "/api/v1/orders", createOrderRequest{
		TenantID: "",
		Items:    nil,
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetOrderNotFound(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doJSON(t, server.Router(), http.MethodGet, "/api/v1/orders/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListOrders(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Router()

	createTestOrder(t, handler)
	createTestOrder(t, handler)

	rr := doJSON(t, handler, http.MethodGet, "/api/v1/orders?tenant_id=tenant-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var orders []orderResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &orders))
	assert.Len(t, orders, 2)

	rr = doJSON(t, handler, http.MethodGet, "/api/v1/orders", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestClaimOrder(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Router()

	order := createTestOrder(t, handler)

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+order.ID+"/claim", claimOrderRequest{
		ClaimantID:      "prof-1",
		ExpectedVersion: order.Version,
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp claimResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "claimed", resp.Outcome)
	assert.Equal(t, "prof-1", resp.Claimant)
	require.NotNil(t, resp.Order)
	assert.Equal(t, string(domain.OrderStatusClaimed), resp.Order.Status)
}

func TestClaimOrderAlreadyClaimed(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Router()

	order := createTestOrder(t, handler)

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+order.ID+"/claim", claimOrderRequest{
		ClaimantID:      "prof-1",
		ExpectedVersion: order.Version,
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+order.ID+"/claim", claimOrderRequest{
		ClaimantID:      "prof-2",
		ExpectedVersion: order.Version + 1,
	})
	require.Equal(t, http.StatusConflict, rr.Code)

	var resp claimResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "already_claimed", resp.Outcome)
	assert.Equal(t, "prof-1", resp.Claimant)
}

func TestClaimOrderMissingClaimant(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Router()

	order := createTestOrder(t, handler)

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+order.ID+"/claim", claimOrderRequest{
		ExpectedVersion: order.Version,
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAdvanceOrder(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Router()

	order := createTestOrder(t, handler)

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+order.ID+"/advance", advanceOrderRequest{
		TargetStatus:    string(domain.OrderStatusSearching),
		ExpectedVersion: order.Version,
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var updated orderResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updated))
	assert.Equal(t, string(domain.OrderStatusSearching), updated.Status)
	assert.Equal(t, order.Version+1, updated.Version)
}

func TestAdvanceOrderInvalidTransition(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Router()

	order := createTestOrder(t, handler)

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+order.ID+"/advance", advanceOrderRequest{
		TargetStatus:    string(domain.OrderStatusDelivered),
		ExpectedVersion: order.Version,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestAdvanceOrderStaleVersion(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Router()

	order := createTestOrder(t, handler)

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+order.ID+"/advance", advanceOrderRequest{
		TargetStatus:    string(domain.OrderStatusSearching),
		ExpectedVersion: order.Version + 10,
	})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestAdvanceToClaimedRejected(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Router()

	order := createTestOrder(t, handler)

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+order.ID+"/advance", advanceOrderRequest{
		TargetStatus:    string(domain.OrderStatusSearching),
		ExpectedVersion: order.Version,
	})
	require.Equal(t, http.StatusOK, rr.Code)

	// claimed достижим только через claim, не через advance
	rr = doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+order.ID+"/advance", advanceOrderRequest{
		TargetStatus:    string(domain.OrderStatusClaimed),
		ExpectedVersion: order.Version + 1,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestCancelOrder(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Router()

	order := createTestOrder(t, handler)

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+order.ID+"/cancel", cancelOrderRequest{
		ExpectedVersion: order.Version,
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var updated orderResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updated))
	assert.Equal(t, string(domain.OrderStatusCancelled), updated.Status)
}

func TestChargeOrder(t *testing.T) {
	server, gateway := newTestServer(t)
	handler := server.Router()

	gateway.ChargeRef = "mp-42"
	order := createTestOrder(t, handler)

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+order.ID+"/charge", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var updated orderResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updated))
	assert.Equal(t, "mp-42", updated.ExternalRef)
	assert.Equal(t, 1, gateway.ChargeCalls)

	// повторное списание отклоняется, external_ref назначается один раз
	rr = doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+order.ID+"/charge", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, 1, gateway.ChargeCalls)
}

func TestOrderTimeline(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Router()

	order := createTestOrder(t, handler)

	rr := doJSON(t, handler, http.MethodGet, "/api/v1/orders/"+order.ID+"/timeline", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var events []timelineEventResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &events))
	require.NotEmpty(t, events)
	assert.Equal(t, order.ID, events[0].OrderID)
}

func preparePaidOrder(t *testing.T, handler http.Handler, gateway *payments.MockGateway, ref string) orderResponse {
	t.Helper()

	gateway.ChargeRef = ref
	order := createTestOrder(t, handler)

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+order.ID+"/charge", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+order.ID+"/advance", advanceOrderRequest{
		TargetStatus:    string(domain.OrderStatusSearching),
		ExpectedVersion: order.Version + 1,
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+order.ID+"/claim", claimOrderRequest{
		ClaimantID:      "prof-1",
		ExpectedVersion: order.Version + 2,
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp claimResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Order)
	return *resp.Order
}

func TestPaymentWebhookApplied(t *testing.T) {
	server, gateway := newTestServer(t)
	handler := server.Router()

	order := preparePaidOrder(t, handler, gateway, "mp-1")

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/webhooks/payment", paymentWebhookRequest{
		ProviderEventID: "evt-1",
		ExternalRef:     "mp-1",
		Status:          "PAID",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, handler, http.MethodGet, "/api/v1/orders/"+order.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var stored orderResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stored))
	assert.Equal(t, string(domain.OrderStatusInProgress), stored.Status)
}

func TestPaymentWebhookDuplicateAcknowledged(t *testing.T) {
	server, gateway := newTestServer(t)
	handler := server.Router()

	order := preparePaidOrder(t, handler, gateway, "mp-1")

	payload := paymentWebhookRequest{
		ProviderEventID: "evt-1",
		ExternalRef:     "mp-1",
		Status:          "PAID",
	}

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/webhooks/payment", payload)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, handler, http.MethodPost, "/api/v1/webhooks/payment", payload)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, handler, http.MethodGet, "/api/v1/orders/"+order.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var stored orderResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stored))
	assert.Equal(t, string(domain.OrderStatusInProgress), stored.Status)
}

func TestPaymentWebhookUnknownRefAcknowledged(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doJSON(t, server.Router(), http.MethodPost, "/api/v1/webhooks/payment", paymentWebhookRequest{
		ProviderEventID: "evt-1",
		ExternalRef:     "mp-unknown",
		Status:          "PAID",
	})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequestIDHeader(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doJSON(t, server.Router(), http.MethodGet, "/api/v1/orders/missing", nil)
	assert.NotEmpty(t, rr.Header().Get(requestIDHeader))
}

func TestConcurrentClaimSingleWinnerHTTP(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Router()

	order := createTestOrder(t, handler)

	winners := 0
	for i := 0; i < 4; i++ {
		rr := doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+order.ID+"/claim", claimOrderRequest{
			ClaimantID:      fmt.Sprintf("prof-%d", i),
			ExpectedVersion: order.Version,
		})
		if rr.Code == http.StatusOK {
			winners++
		} else {
			assert.Equal(t, http.StatusConflict, rr.Code)
		}
	}
	assert.Equal(t, 1, winners)
}
