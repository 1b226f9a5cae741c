package payments

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestMockGateway(t *testing.T) {
	mock := NewMockGateway()
	if mock == nil {
		t.Fatal("expected non-nil mock")
	}

	ref, err := mock.CreateCharge(context.Background(), "o-1", 2500)
	if err != nil {
		t.Fatalf("unexpected charge error: %v", err)
	}
	if !strings.HasPrefix(ref, "mock-ref-o-1") {
		t.Fatalf("unexpected external ref: %s", ref)
	}

	mock.ChargeRef = "mp-fixed"
	ref, err = mock.CreateCharge(context.Background(), "o-1", 2500)
	if err != nil {
		t.Fatalf("unexpected charge error: %v", err)
	}
	if ref != "mp-fixed" {
		t.Fatalf("unexpected external ref: %s", ref)
	}

	mock.ChargeErr = errors.New("charge failed")
	if _, err := mock.CreateCharge(context.Background(), "o-2", 100); err == nil {
		t.Fatal("expected charge error")
	}

	if mock.ChargeCalls != 3 {
		t.Fatalf("unexpected call count: %d", mock.ChargeCalls)
	}
}

func TestMercadoPagoGateway_MockMode(t *testing.T) {
	gateway, err := NewMercadoPagoGateway("", true, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ref, err := gateway.CreateCharge(context.Background(), "o-1", 2500)
	if err != nil {
		t.Fatalf("unexpected charge error: %v", err)
	}
	if !strings.HasPrefix(ref, "mock-") {
		t.Fatalf("unexpected external ref: %s", ref)
	}
}

func TestMercadoPagoGateway_MissingToken(t *testing.T) {
	if _, err := NewMercadoPagoGateway("", false, nil); !errors.Is(err, ErrMissingAccessToken) {
		t.Fatalf("expected ErrMissingAccessToken, got %v", err)
	}
}
