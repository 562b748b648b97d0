package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

// orderRepositoryInMemory — in-memory реализация OrderRepository с индексами по номеру и токену.
type orderRepositoryInMemory struct {
	mu       sync.RWMutex
	items    map[string]domain.Order
	byNumber map[string]string
	byToken  map[string]string
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items:    make(map[string]domain.Order),
		byNumber: make(map[string]string),
		byToken:  make(map[string]string),
	}
}

// Create сохраняет новый заказ, если ID и номер ещё не заняты.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	if _, exists := r.byNumber[order.OrderNumber]; exists {
		return domain.ErrOrderNumberConflict
	}
	r.store(order.Clone())
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (r *orderRepositoryInMemory) FindByTransactionID(_ context.Context, token string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byToken[token]
	if !ok || token == "" {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return r.items[id].Clone(), nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepositoryInMemory) Save(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	if current.Payment.ExternalTransactionID != "" && current.Payment.ExternalTransactionID != order.Payment.ExternalTransactionID {
		delete(r.byToken, current.Payment.ExternalTransactionID)
	}
	order.Version++
	r.store(order.Clone())
	return nil
}

func (r *orderRepositoryInMemory) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.items[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	delete(r.items, id)
	delete(r.byNumber, order.OrderNumber)
	if order.Payment.ExternalTransactionID != "" {
		delete(r.byToken, order.Payment.ExternalTransactionID)
	}
	return nil
}

func (r *orderRepositoryInMemory) ListByUser(_ context.Context, userID string, page domain.Page) (domain.OrderPage, error) {
	return r.collect(page, func(o *domain.Order) bool {
		return userID != "" && o.UserID == userID
	}), nil
}

func (r *orderRepositoryInMemory) List(_ context.Context, filter domain.OrderFilter) (domain.OrderPage, error) {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	return r.collect(filter.Page, func(o *domain.Order) bool {
		if filter.Status != "" && o.Status != filter.Status {
			return false
		}
		if filter.From != nil && o.CreatedAt.Before(*filter.From) {
			return false
		}
		if filter.To != nil && o.CreatedAt.After(*filter.To) {
			return false
		}
		if search == "" {
			return true
		}
		for _, field := range []string{
			o.OrderNumber,
			o.ShippingAddress.Email,
			o.ShippingAddress.FirstName,
			o.ShippingAddress.LastName,
		} {
			if strings.Contains(strings.ToLower(field), search) {
				return true
			}
		}
		return false
	}), nil
}

func (r *orderRepositoryInMemory) Stats(_ context.Context) (domain.OrderStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byStatus := make(map[domain.OrderStatus]*domain.StatusStat)
	var stats domain.OrderStats
	for _, order := range r.items {
		stats.TotalOrders++
		if order.IsPaid() {
			stats.TotalRevenue += order.Total
		}
		stat, ok := byStatus[order.Status]
		if !ok {
			stat = &domain.StatusStat{Status: order.Status}
			byStatus[order.Status] = stat
		}
		stat.Count++
		stat.TotalAmount += order.Total
	}

	for _, status := range domain.AllOrderStatuses() {
		if stat, ok := byStatus[status]; ok {
			stats.StatusBreakdown = append(stats.StatusBreakdown, *stat)
		}
	}
	return stats, nil
}

func (r *orderRepositoryInMemory) collect(page domain.Page, match func(o *domain.Order) bool) domain.OrderPage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range r.items {
		if !match(&order) {
			continue
		}
		result = append(result, order.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	total := len(result)
	offset := page.Offset()
	if offset >= total {
		return domain.OrderPage{Orders: []domain.Order{}, Total: total}
	}
	result = result[offset:]
	if page.Limit > 0 && len(result) > page.Limit {
		result = result[:page.Limit]
	}
	return domain.OrderPage{Orders: result, Total: total}
}

func (r *orderRepositoryInMemory) store(order domain.Order) {
	r.items[order.ID] = order
	r.byNumber[order.OrderNumber] = order.ID
	if order.Payment.ExternalTransactionID != "" {
		r.byToken[order.Payment.ExternalTransactionID] = order.ID
	}
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
