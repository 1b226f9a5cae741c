package domain_test

import (
	"testing"

	"github.com/vladislavdragonenkov/dispatch/internal/domain"
)

func TestCanTransition_AllowedEdges(t *testing.T) {
	edges := [][2]domain.OrderStatus{
		{domain.OrderStatusDraft, domain.OrderStatusCreated},
		{domain.OrderStatusCreated, domain.OrderStatusSearching},
		{domain.OrderStatusCreated, domain.OrderStatusCancelled},
		{domain.OrderStatusSearching, domain.OrderStatusClaimed},
		{domain.OrderStatusSearching, domain.OrderStatusCancelled},
		{domain.OrderStatusClaimed, domain.OrderStatusInProgress},
		{domain.OrderStatusClaimed, domain.OrderStatusCancelled},
		{domain.OrderStatusInProgress, domain.OrderStatusDelivered},
		{domain.OrderStatusDelivered, domain.OrderStatusRefunded},
		{domain.OrderStatusCancelled, domain.OrderStatusRefunded},
	}

	for _, e := range edges {
		if !domain.CanTransition(e[0], e[1]) {
			t.Fatalf("expected transition %s -> %s to be allowed", e[0], e[1])
		}
	}
}

// Замыкание таблицы: любая пара вне списка рёбер должна быть запрещена.
func TestCanTransition_Closure(t *testing.T) {
	allowed := map[[2]domain.OrderStatus]bool{
		{domain.OrderStatusDraft, domain.OrderStatusCreated}:         true,
		{domain.OrderStatusCreated, domain.OrderStatusSearching}:     true,
		{domain.OrderStatusCreated, domain.OrderStatusCancelled}:     true,
		{domain.OrderStatusSearching, domain.OrderStatusClaimed}:     true,
		{domain.OrderStatusSearching, domain.OrderStatusCancelled}:   true,
		{domain.OrderStatusClaimed, domain.OrderStatusInProgress}:    true,
		{domain.OrderStatusClaimed, domain.OrderStatusCancelled}:     true,
		{domain.OrderStatusInProgress, domain.OrderStatusDelivered}:  true,
		{domain.OrderStatusDelivered, domain.OrderStatusRefunded}:    true,
		{domain.OrderStatusCancelled, domain.OrderStatusRefunded}:    true,
	}

	for _, from := range allStatuses() {
		for _, to := range allStatuses() {
			got := domain.CanTransition(from, to)
			want := allowed[[2]domain.OrderStatus{from, to}]
			if got != want {
				t.Fatalf("transition %s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
}

// claimed достижим только через Claim, поэтому Advance туда запрещён.
func TestCanAdvance_ClaimOnlyEdge(t *testing.T) {
	if domain.CanAdvance(domain.OrderStatusSearching, domain.OrderStatusClaimed) {
		t.Fatal("advance to claimed must be rejected, claim is the only entry")
	}
	if !domain.CanAdvance(domain.OrderStatusClaimed, domain.OrderStatusInProgress) {
		t.Fatal("expected claimed -> in_progress to be advanceable")
	}
}

func TestCanTransition_UnknownStatus(t *testing.T) {
	if domain.CanTransition(domain.OrderStatus("procurando"), domain.OrderStatusClaimed) {
		t.Fatal("unknown source status must not transition")
	}
}
