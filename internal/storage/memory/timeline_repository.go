package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/dispatch/internal/domain"
)

// timelineRepository держит историю заказов в памяти; порядок по Occurred
// поддерживается при каждой вставке.
type timelineRepository struct {
	mu        sync.RWMutex
	byOrderID map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepository{byOrderID: make(map[string][]domain.TimelineEvent)}
}

func (r *timelineRepository) Append(event domain.TimelineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	history := append(r.byOrderID[event.OrderID], event)
	sort.Slice(history, func(i, j int) bool { return history[i].Before(history[j]) })
	r.byOrderID[event.OrderID] = history

	return nil
}

func (r *timelineRepository) List(orderID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.byOrderID[orderID]
	out := make([]domain.TimelineEvent, len(history))
	copy(out, history)
	return out, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
