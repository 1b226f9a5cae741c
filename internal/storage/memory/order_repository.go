package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/dispatch/internal/domain"
)

// orderRepositoryInMemory — простая in-memory реализация OrderRepository.
// Единый мьютекс делает Save и Claim атомарными условными записями,
// то есть контракт хранилища соблюдается и без внешней БД.
type orderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Order
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items: make(map[string]domain.Order),
	}
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepositoryInMemory) Create(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrVersionConflict
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.items[order.ID] = order
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

// GetByExternalRef ищет заказ по идентификатору у платёжного провайдера.
func (r *orderRepositoryInMemory) GetByExternalRef(ref string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ref == "" {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	for _, order := range r.items {
		if order.ExternalRef == ref {
			return order, nil
		}
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

// ListByTenant возвращает заказы витрины, ограничивая выборку limit (если >0).
func (r *orderRepositoryInMemory) ListByTenant(tenantID string, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if order.TenantID != tenantID {
			continue
		}
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Save перезаписывает заказ одной условной записью по версии (optimistic locking).
// Claimant и ExternalRef через Save не переназначаются.
func (r *orderRepositoryInMemory) Save(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrVersionConflict
	}
	if current.Claimant != "" && order.Claimant != current.Claimant {
		return domain.ErrClaimantImmutable
	}
	if current.ExternalRef != "" && order.ExternalRef != current.ExternalRef {
		return domain.ErrExternalRefAssigned
	}

	// Инкрементируем версию перед сохранением.
	order.Version++
	r.items[order.ID] = order
	return nil
}

// Claim назначает исполнителя одной атомарной условной записью.
// Проигравший гонку получает текущее состояние заказа и won=false без ошибки.
func (r *orderRepositoryInMemory) Claim(orderID, claimantID string, expectedVersion int64) (domain.Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[orderID]
	if !ok {
		return domain.Order{}, false, domain.ErrOrderNotFound
	}

	if current.Claimant != "" || !current.Status.Claimable() || current.Version != expectedVersion {
		return current, false, nil
	}

	current.Claimant = claimantID
	current.Status = domain.OrderStatusClaimed
	current.Version++
	current.UpdatedAt = time.Now().UTC()
	r.items[orderID] = current
	return current, true, nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
