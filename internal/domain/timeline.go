package domain

import "time"

// Типы событий жизненного цикла заказа (timeline и outbox).
const (
	EventOrderPlaced                  = "OrderPlaced"
	EventOrderPaymentInitiationFailed = "OrderPaymentInitiationFailed"
	EventOrderPaymentApproved         = "OrderPaymentApproved"
	EventOrderPaymentRejected         = "OrderPaymentRejected"
	EventOrderStockShortage           = "OrderStockShortage"
	EventOrderPaymentUnrecorded       = "OrderPaymentUnrecorded"
	EventOrderStatusChanged           = "OrderStatusChanged"
	EventOrderCancelled               = "OrderCancelled"
)

// AggregateTypeOrder — тип агрегата в outbox.
const AggregateTypeOrder = "order"

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}

// Normalize проверяет событие и приводит время к UTC; пустое время заменяется на now.
func (e TimelineEvent) Normalize(now time.Time) (TimelineEvent, error) {
	if e.OrderID == "" {
		return TimelineEvent{}, ErrOrderIDRequired
	}
	if e.Type == "" {
		return TimelineEvent{}, NewValidationError("type", "timeline event type is required")
	}
	if e.Occurred.IsZero() {
		e.Occurred = now
	}
	e.Occurred = e.Occurred.UTC()
	return e, nil
}
