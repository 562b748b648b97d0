package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

// productRepositoryInMemory хранит каталог в памяти; операции над остатком атомарны под mutex.
type productRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Product
}

// NewProductRepository возвращает in-memory каталог для локальной разработки и тестов.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{items: make(map[string]domain.Product)}
}

func (r *productRepositoryInMemory) Create(_ context.Context, product domain.Product) error {
	if product.ID == "" {
		return domain.ErrProductIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[product.ID]; exists {
		return domain.NewValidationError("id", "product already exists")
	}
	r.items[product.ID] = product
	return nil
}

func (r *productRepositoryInMemory) Get(_ context.Context, id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

func (r *productRepositoryInMemory) GetMany(_ context.Context, ids []string) (map[string]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if product, ok := r.items[id]; ok {
			result[id] = product
		}
	}
	return result, nil
}

func (r *productRepositoryInMemory) Update(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[product.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.Stock = current.Stock
	product.CreatedAt = current.CreatedAt
	r.items[product.ID] = product
	return nil
}

func (r *productRepositoryInMemory) SetStock(_ context.Context, id string, stock int64, at time.Time) error {
	if stock < 0 {
		return domain.NewValidationError("stock", "must not be negative")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.Stock = stock
	product.UpdatedAt = at
	r.items[id] = product
	return nil
}

func (r *productRepositoryInMemory) Deactivate(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	if product.IsActive {
		product.IsActive = false
		product.UpdatedAt = at
		r.items[id] = product
	}
	return nil
}

// DecrementStock проверяет и уменьшает остаток под одной блокировкой.
func (r *productRepositoryInMemory) DecrementStock(_ context.Context, id string, qty int64) (bool, error) {
	if qty <= 0 {
		return false, domain.ErrStockQuantityInvalid
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok || !product.Sellable(qty) {
		return false, nil
	}
	product.Stock -= qty
	product.UpdatedAt = time.Now().UTC()
	r.items[id] = product
	return true, nil
}

func (r *productRepositoryInMemory) IncrementStock(_ context.Context, id string, qty int64) error {
	if qty <= 0 {
		return domain.ErrStockQuantityInvalid
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.Stock += qty
	product.UpdatedAt = time.Now().UTC()
	r.items[id] = product
	return nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
