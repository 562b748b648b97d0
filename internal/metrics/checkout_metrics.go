package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты операций склада.
const (
	ResultOK           = "ok"
	ResultInsufficient = "insufficient"
	ResultError        = "error"
)

// CheckoutMetrics содержит метрики жизненного цикла заказа и склада.
type CheckoutMetrics struct {
	// Оформление
	ordersPlaced     prometheus.Counter
	checkoutFailures *prometheus.CounterVec
	compensations    prometheus.Counter

	// Подтверждение оплаты
	reconciliations *prometheus.CounterVec
	stockShortages  prometheus.Counter

	// Отмена
	cancellations prometheus.Counter
	stockRestores prometheus.Counter

	// Склад
	inventoryDecrements *prometheus.CounterVec
	inventoryIncrements prometheus.Counter

	operationDuration *prometheus.HistogramVec
	inFlight          prometheus.Gauge
}

// NewCheckoutMetrics регистрирует метрики в DefaultRegisterer.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer регистрирует метрики в переданном регистре.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		ordersPlaced: registerCounter(registerer, prometheus.CounterOpts{
			Name: "exopet_orders_placed_total",
			Help: "Total number of orders placed with an initiated payment transaction",
		}),
		checkoutFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "exopet_checkout_failures_total",
			Help: "Total number of failed checkouts by error kind",
		}, []string{"kind"}),
		compensations: registerCounter(registerer, prometheus.CounterOpts{
			Name: "exopet_checkout_compensations_total",
			Help: "Total number of pending orders deleted after payment initiation failure",
		}),
		reconciliations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "exopet_reconciliations_total",
			Help: "Total number of payment reconciliations by outcome",
		}, []string{"result"}),
		stockShortages: registerCounter(registerer, prometheus.CounterOpts{
			Name: "exopet_reconciliation_stock_shortages_total",
			Help: "Total number of order lines that could not be decremented after payment approval",
		}),
		cancellations: registerCounter(registerer, prometheus.CounterOpts{
			Name: "exopet_order_cancellations_total",
			Help: "Total number of cancelled orders",
		}),
		stockRestores: registerCounter(registerer, prometheus.CounterOpts{
			Name: "exopet_order_stock_restores_total",
			Help: "Total number of cancellations that restored stock",
		}),
		inventoryDecrements: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "exopet_inventory_decrements_total",
			Help: "Total number of stock decrements by result",
		}, []string{"result"}),
		inventoryIncrements: registerCounter(registerer, prometheus.CounterOpts{
			Name: "exopet_inventory_increments_total",
			Help: "Total number of stock increments",
		}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "exopet_order_operation_duration_seconds",
			Help:    "Duration of order lifecycle operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"operation"}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "exopet_order_operations_in_flight",
			Help: "Number of order lifecycle operations currently running",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderPlaced увеличивает счётчик оформленных заказов.
func (m *CheckoutMetrics) RecordOrderPlaced() {
	if m == nil {
		return
	}
	m.ordersPlaced.Inc()
}

// RecordCheckoutFailure учитывает неудачное оформление по классу ошибки.
func (m *CheckoutMetrics) RecordCheckoutFailure(kind string) {
	if m == nil {
		return
	}
	m.checkoutFailures.WithLabelValues(kind).Inc()
}

// RecordCompensation учитывает удаление заказа после сбоя шлюза.
func (m *CheckoutMetrics) RecordCompensation() {
	if m == nil {
		return
	}
	m.compensations.Inc()
}

// RecordReconciliation учитывает результат подтверждения оплаты (approved, rejected, replayed, error).
func (m *CheckoutMetrics) RecordReconciliation(result string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(result).Inc()
}

// RecordStockShortage учитывает позицию, которую не удалось списать после оплаты.
func (m *CheckoutMetrics) RecordStockShortage() {
	if m == nil {
		return
	}
	m.stockShortages.Inc()
}

// RecordCancellation учитывает отмену; restored сообщает, был ли возвращён сток.
func (m *CheckoutMetrics) RecordCancellation(restored bool) {
	if m == nil {
		return
	}
	m.cancellations.Inc()
	if restored {
		m.stockRestores.Inc()
	}
}

// RecordDecrement учитывает списание по результату (ok, insufficient, error).
func (m *CheckoutMetrics) RecordDecrement(result string) {
	if m == nil {
		return
	}
	m.inventoryDecrements.WithLabelValues(result).Inc()
}

// RecordIncrement увеличивает счётчик возвратов на склад.
func (m *CheckoutMetrics) RecordIncrement() {
	if m == nil {
		return
	}
	m.inventoryIncrements.Inc()
}

// ObserveOperation запускает замер операции и возвращает функцию завершения.
func (m *CheckoutMetrics) ObserveOperation(operation string) func() {
	if m == nil {
		return func() {}
	}
	started := time.Now()
	m.inFlight.Inc()
	return func() {
		m.inFlight.Dec()
		m.operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	}
}
