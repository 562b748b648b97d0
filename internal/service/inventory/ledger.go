package inventory

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
	"github.com/vladislavdragonenkov/exopet/internal/metrics"
)

// Ledger реализует InventoryLedger поверх атомарных операций ProductRepository.
type Ledger struct {
	products domain.ProductRepository
	metrics  *metrics.CheckoutMetrics
	log      *log.Entry
}

// NewLedger создаёт складской журнал. metrics и logger могут быть nil.
func NewLedger(products domain.ProductRepository, m *metrics.CheckoutMetrics, logger *log.Entry) *Ledger {
	if logger == nil {
		logger = log.WithField("component", "inventory-ledger")
	}
	return &Ledger{products: products, metrics: m, log: logger}
}

// IsAvailable сообщает, что товар существует, активен и на складе не меньше qty.
func (l *Ledger) IsAvailable(ctx context.Context, productID string, qty int64) (bool, error) {
	product, err := l.products.Get(ctx, productID)
	if errors.Is(err, domain.ErrProductNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check availability of %s: %w", productID, err)
	}
	return product.Sellable(qty), nil
}

// Decrement списывает остаток одной условной операцией хранилища.
func (l *Ledger) Decrement(ctx context.Context, productID string, qty int64) (bool, error) {
	if qty <= 0 {
		return false, domain.ErrStockQuantityInvalid
	}
	ok, err := l.products.DecrementStock(ctx, productID, qty)
	if errors.Is(err, domain.ErrProductNotFound) {
		ok, err = false, nil
	}
	switch {
	case err != nil:
		l.metrics.RecordDecrement(metrics.ResultError)
		return false, fmt.Errorf("decrement stock of %s: %w", productID, err)
	case !ok:
		l.metrics.RecordDecrement(metrics.ResultInsufficient)
		l.log.WithFields(log.Fields{"product_id": productID, "qty": qty}).Warn("stock decrement rejected")
		return false, nil
	}
	l.metrics.RecordDecrement(metrics.ResultOK)
	return true, nil
}

// Increment возвращает остаток на склад, в том числе для снятого с продажи товара.
func (l *Ledger) Increment(ctx context.Context, productID string, qty int64) error {
	if qty <= 0 {
		return domain.ErrStockQuantityInvalid
	}
	if err := l.products.IncrementStock(ctx, productID, qty); err != nil {
		return fmt.Errorf("increment stock of %s: %w", productID, err)
	}
	l.metrics.RecordIncrement()
	return nil
}

// CheckBatch проверяет все строки без остановки на первой ошибке.
// Повторяющиеся товары суммируются, но в отчёте остаются отдельными строками.
func (l *Ledger) CheckBatch(ctx context.Context, lines []domain.StockLine) (domain.StockReport, error) {
	ids := make([]string, 0, len(lines))
	requested := make(map[string]int64, len(lines))
	for _, line := range lines {
		if _, seen := requested[line.ProductID]; !seen {
			ids = append(ids, line.ProductID)
		}
		requested[line.ProductID] += line.Quantity
	}

	products, err := l.products.GetMany(ctx, ids)
	if err != nil {
		return domain.StockReport{}, fmt.Errorf("load products for stock check: %w", err)
	}

	report := domain.StockReport{AllAvailable: true, Items: make([]domain.StockCheck, 0, len(lines))}
	for _, line := range lines {
		check := domain.StockCheck{ProductID: line.ProductID, Requested: line.Quantity}
		if product, ok := products[line.ProductID]; ok {
			check.Name = product.Name
			if product.IsActive {
				check.Available = product.Stock
			}
			check.IsAvailable = line.Quantity > 0 && product.Sellable(requested[line.ProductID])
		}
		if !check.IsAvailable {
			report.AllAvailable = false
		}
		report.Items = append(report.Items, check)
	}
	return report, nil
}

var _ domain.InventoryLedger = (*Ledger)(nil)
