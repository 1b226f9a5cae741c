package lifecycle_test

import (
	"errors"
	"sync"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/dispatch/internal/domain"
	"github.com/vladislavdragonenkov/dispatch/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/dispatch/internal/storage/memory"
)

func newStore() (*lifecycle.Store, domain.OrderRepository) {
	repo := memory.NewOrderRepository()
	store := lifecycle.NewStoreWithoutMetrics(
		repo,
		memory.NewTimelineRepository(),
		memory.NewOutboxRepository(),
		log.New().WithField("component", "lifecycle-test"),
	)
	return store, repo
}

func createOrder(t *testing.T, store *lifecycle.Store) domain.Order {
	t.Helper()

	order, err := store.Create(lifecycle.CreateInput{
		TenantID: "tenant-1",
		Items: []lifecycle.ItemInput{
			{Name: "pizza calabresa", Qty: 2, PriceMinor: 1000},
			{Name: "guarana lata", Qty: 1, PriceMinor: 500},
		},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return order
}

func TestStore_Create(t *testing.T) {
	store, _ := newStore()
	order := createOrder(t, store)

	if order.Status != domain.OrderStatusCreated {
		t.Fatalf("expected status created, got %s", order.Status)
	}
	if order.Version != 1 {
		t.Fatalf("expected version 1, got %d", order.Version)
	}
	if order.AmountMinor != 2500 {
		t.Fatalf("expected amount 2500, got %d", order.AmountMinor)
	}
}

func TestStore_CreateInvalidInput(t *testing.T) {
	store, _ := newStore()

	cases := []struct {
		name  string
		input lifecycle.CreateInput
	}{
		{
			name:  "no items",
			input: lifecycle.CreateInput{TenantID: "tenant-1"},
		},
		{
			name: "zero qty",
			input: lifecycle.CreateInput{
				TenantID: "tenant-1",
				Items:    []lifecycle.ItemInput{{Name: "item", Qty: 0, PriceMinor: 100}},
			},
		},
		{
			name: "negative price",
			input: lifecycle.CreateInput{
				TenantID: "tenant-1",
				Items:    []lifecycle.ItemInput{{Name: "item", Qty: 1, PriceMinor: -1}},
			},
		},
		{
			name: "no tenant",
			input: lifecycle.CreateInput{
				Items: []lifecycle.ItemInput{{Name: "item", Qty: 1, PriceMinor: 100}},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := store.Create(tc.input); !errors.Is(err, domain.ErrInvalidOrder) {
				t.Fatalf("expected ErrInvalidOrder, got %v", err)
			}
		})
	}
}

// Полный happy path: created -> searching -> claimed -> in_progress -> delivered
// с версией, растущей ровно на 1 на каждом шаге.
func TestStore_HappyPath(t *testing.T) {
	store, _ := newStore()
	order := createOrder(t, store)

	order, err := store.Advance(order.ID, domain.OrderStatusSearching, 1)
	if err != nil {
		t.Fatalf("advance to searching failed: %v", err)
	}
	if order.Version != 2 {
		t.Fatalf("expected version 2, got %d", order.Version)
	}

	order, won, err := store.Claim(order.ID, "prof-1", 2)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if !won {
		t.Fatal("expected claim to win")
	}
	if order.Status != domain.OrderStatusClaimed || order.Version != 3 {
		t.Fatalf("unexpected state after claim: status=%s version=%d", order.Status, order.Version)
	}

	order, err = store.Advance(order.ID, domain.OrderStatusInProgress, 3)
	if err != nil {
		t.Fatalf("advance to in_progress failed: %v", err)
	}
	if order.Version != 4 {
		t.Fatalf("expected version 4, got %d", order.Version)
	}

	order, err = store.Advance(order.ID, domain.OrderStatusDelivered, 4)
	if err != nil {
		t.Fatalf("advance to delivered failed: %v", err)
	}
	if order.Version != 5 {
		t.Fatalf("expected version 5, got %d", order.Version)
	}

	final, err := store.Get(order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if final.Status != domain.OrderStatusDelivered {
		t.Fatalf("expected delivered, got %s", final.Status)
	}
	if final.Claimant != "prof-1" {
		t.Fatalf("expected claimant prof-1, got %q", final.Claimant)
	}
}

// Два конкурентных claim с одной и той же версией: ровно один победитель,
// проигравший получает won=false, не ошибку.
func TestStore_ClaimLostRace(t *testing.T) {
	store, _ := newStore()
	order := createOrder(t, store)

	order, err := store.Advance(order.ID, domain.OrderStatusSearching, 1)
	if err != nil {
		t.Fatalf("advance failed: %v", err)
	}

	type result struct {
		claimant string
		won      bool
	}

	var wg sync.WaitGroup
	results := make(chan result, 2)
	start := make(chan struct{})

	for _, claimant := range []string{"A", "B"} {
		wg.Add(1)
		go func(claimant string) {
			defer wg.Done()
			<-start
			_, won, err := store.Claim(order.ID, claimant, order.Version)
			if err != nil {
				t.Errorf("claim %s errored: %v", claimant, err)
				return
			}
			results <- result{claimant: claimant, won: won}
		}(claimant)
	}
	close(start)
	wg.Wait()
	close(results)

	winners := make([]string, 0, 2)
	for r := range results {
		if r.won {
			winners = append(winners, r.claimant)
		}
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %v", winners)
	}

	stored, err := store.Get(order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Claimant != winners[0] {
		t.Fatalf("stored claimant %q does not match winner %q", stored.Claimant, winners[0])
	}
}

func TestStore_ClaimRequiresClaimant(t *testing.T) {
	store, _ := newStore()
	order := createOrder(t, store)

	if _, _, err := store.Claim(order.ID, "", order.Version); !errors.Is(err, domain.ErrClaimantRequired) {
		t.Fatalf("expected ErrClaimantRequired, got %v", err)
	}
}

func TestStore_AdvanceInvalidTransition(t *testing.T) {
	store, _ := newStore()
	order := createOrder(t, store)

	// created -> delivered отсутствует в таблице.
	if _, err := store.Advance(order.ID, domain.OrderStatusDelivered, 1); !domain.IsInvalidTransition(err) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	// Состояние не должно измениться.
	stored, err := store.Get(order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Status != domain.OrderStatusCreated || stored.Version != 1 {
		t.Fatalf("state mutated by rejected transition: status=%s version=%d", stored.Status, stored.Version)
	}
}

func TestStore_AdvanceToClaimedRejected(t *testing.T) {
	store, _ := newStore()
	order := createOrder(t, store)

	order, err := store.Advance(order.ID, domain.OrderStatusSearching, 1)
	if err != nil {
		t.Fatalf("advance failed: %v", err)
	}

	// claimed достижим только через Claim.
	if _, err := store.Advance(order.ID, domain.OrderStatusClaimed, order.Version); !domain.IsInvalidTransition(err) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestStore_AdvanceStaleVersion(t *testing.T) {
	store, _ := newStore()
	order := createOrder(t, store)

	if _, err := store.Advance(order.ID, domain.OrderStatusSearching, 99); !domain.IsVersionConflict(err) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestStore_AdvanceUnknownOrder(t *testing.T) {
	store, _ := newStore()
	if _, err := store.Advance("missing", domain.OrderStatusSearching, 1); !domain.IsNotFound(err) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestStore_AttachExternalRef(t *testing.T) {
	store, _ := newStore()
	order := createOrder(t, store)

	updated, err := store.AttachExternalRef(order.ID, "mp-1", 1)
	if err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	if updated.ExternalRef != "mp-1" || updated.Version != 2 {
		t.Fatalf("unexpected state: ref=%q version=%d", updated.ExternalRef, updated.Version)
	}

	// Повторный вызов с тем же значением идемпотентен.
	again, err := store.AttachExternalRef(order.ID, "mp-1", 2)
	if err != nil {
		t.Fatalf("idempotent attach failed: %v", err)
	}
	if again.Version != 2 {
		t.Fatalf("idempotent attach must not bump version, got %d", again.Version)
	}

	// Другое значение отклоняется: ссылка задаётся один раз.
	if _, err := store.AttachExternalRef(order.ID, "mp-2", 2); !errors.Is(err, domain.ErrExternalRefAssigned) {
		t.Fatalf("expected ErrExternalRefAssigned, got %v", err)
	}
}

func TestStore_AttachExternalRefEmpty(t *testing.T) {
	store, _ := newStore()
	order := createOrder(t, store)

	if _, err := store.AttachExternalRef(order.ID, "", 1); !errors.Is(err, domain.ErrExternalRefRequired) {
		t.Fatalf("expected ErrExternalRefRequired, got %v", err)
	}

	stored, err := store.Get(order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.ExternalRef != "" || stored.Version != 1 {
		t.Fatalf("rejected attach mutated the order: ref=%q version=%d", stored.ExternalRef, stored.Version)
	}
}

// Монотонность версии: каждая принятая мутация увеличивает её ровно на 1.
func TestStore_VersionMonotonicity(t *testing.T) {
	store, _ := newStore()
	order := createOrder(t, store)

	wantVersion := int64(1)
	if order.Version != wantVersion {
		t.Fatalf("expected version %d, got %d", wantVersion, order.Version)
	}

	steps := []domain.OrderStatus{
		domain.OrderStatusSearching,
		domain.OrderStatusCancelled,
		domain.OrderStatusRefunded,
	}
	for _, target := range steps {
		var err error
		order, err = store.Advance(order.ID, target, wantVersion)
		if err != nil {
			t.Fatalf("advance to %s failed: %v", target, err)
		}
		wantVersion++
		if order.Version != wantVersion {
			t.Fatalf("after %s: expected version %d, got %d", target, wantVersion, order.Version)
		}
	}
}
