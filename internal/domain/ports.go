package domain

import (
	"context"
	"time"
)

// ProductRepository хранит каталог и выполняет атомарные операции над остатком.
type ProductRepository interface {
	Create(ctx context.Context, product Product) error
	// Get возвращает товар по идентификатору или ErrProductNotFound.
	Get(ctx context.Context, id string) (Product, error)
	// GetMany возвращает найденные товары по ключу ID; отсутствующие просто не попадают в map.
	GetMany(ctx context.Context, ids []string) (map[string]Product, error)
	// Update сохраняет карточку товара; остаток не меняет.
	Update(ctx context.Context, product Product) error
	// SetStock записывает абсолютное значение остатка (приёмка или инвентаризация).
	SetStock(ctx context.Context, id string, stock int64, at time.Time) error
	// Deactivate снимает товар с продажи, не трогая остальные поля.
	Deactivate(ctx context.Context, id string, at time.Time) error
	// DecrementStock уменьшает остаток одной операцией, только если stock >= qty и товар активен.
	// Возвращает false без изменений, если условие не выполнено.
	DecrementStock(ctx context.Context, id string, qty int64) (bool, error)
	// IncrementStock безусловно возвращает qty единиц на склад.
	IncrementStock(ctx context.Context, id string, qty int64) error
}

// OrderFilter — параметры административного списка заказов.
type OrderFilter struct {
	Status OrderStatus
	From   *time.Time
	To     *time.Time
	// Search ищет без учёта регистра по номеру заказа, email, имени и фамилии.
	Search string
	Page   Page
}

// Page задаёт пагинацию (нумерация страниц с 1).
type Page struct {
	Number int
	Limit  int
}

// Offset возвращает смещение первой записи страницы.
func (p Page) Offset() int {
	if p.Number <= 1 {
		return 0
	}
	return (p.Number - 1) * p.Limit
}

// OrderPage — страница заказов и общее число записей.
type OrderPage struct {
	Orders []Order
	Total  int
}

// StatusStat — агрегат по одному статусу.
type StatusStat struct {
	Status      OrderStatus
	Count       int
	TotalAmount int64
}

// OrderStats — сводка по заказам для администратора.
type OrderStats struct {
	TotalOrders     int
	TotalRevenue    int64
	StatusBreakdown []StatusStat
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ; занятый номер заказа даёт ErrOrderNumberConflict.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// FindByTransactionID ищет заказ по токену транзакции шлюза.
	FindByTransactionID(ctx context.Context, token string) (Order, error)
	// Save применяет изменения с учётом optimistic locking: order.Version должен совпадать с сохранённой.
	Save(ctx context.Context, order Order) error
	// Delete удаляет заказ (только как компенсация при сбое создания транзакции).
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string, page Page) (OrderPage, error)
	List(ctx context.Context, filter OrderFilter) (OrderPage, error)
	Stats(ctx context.Context) (OrderStats, error)
}

// SequenceRepository выдаёт атомарный суточный счётчик номеров заказов.
type SequenceRepository interface {
	// Next увеличивает счётчик дня и возвращает новое значение (первое значение равно 1).
	Next(ctx context.Context, day string) (int64, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}
