package orders

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

// DefaultCancelReason записывается, если причина не указана.
const DefaultCancelReason = "cancelled by request"

// Cancel отменяет заказ владельцем или администратором. Если оплата была одобрена,
// после сохранения отмены на склад возвращаются только строки, остаток по которым был списан.
func (s *Service) Cancel(ctx context.Context, actor domain.Actor, orderID, reason string) (order domain.Order, err error) {
	ctx, finish := s.startSpan(ctx, "cancel")
	defer finish(&err)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("order.id", orderID))

	order, err = s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := requireActor(actor, actor.CanAccess(&order)); err != nil {
		return domain.Order{}, err
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultCancelReason
	}

	var paid bool
	previous := order.Status
	if _, err := s.mutate(ctx, &order, func(o *domain.Order) (bool, error) {
		previous = o.Status
		paid = o.IsPaid()
		if !o.Cancel(reason, s.now()) {
			return false, domain.ErrOrderNotCancellable
		}
		return true, nil
	}); err != nil {
		return domain.Order{}, err
	}

	restored := false
	if paid {
		restored = s.restoreStock(ctx, &order, order.DecrementedItems())
	}

	s.metrics.RecordCancellation(restored)
	s.emitEvent(&order, domain.EventOrderCancelled, map[string]any{
		"reason":         reason,
		"cancelled_by":   actor.UserID,
		"stock_restored": restored,
	})
	s.emitStatusChanged(&order, previous)
	s.logger.WithFields(log.Fields{
		"order_id":       order.ID,
		"order_number":   order.OrderNumber,
		"stock_restored": restored,
	}).Info("order cancelled")

	return order, nil
}

// restoreStock возвращает на склад переданные позиции; false, если возвращать нечего или что-то не вернулось.
func (s *Service) restoreStock(ctx context.Context, order *domain.Order, items []domain.OrderItem) bool {
	if len(items) == 0 {
		return false
	}
	ctx = context.WithoutCancel(ctx)
	restored := true
	for _, item := range items {
		if err := s.ledger.Increment(ctx, item.ProductID, item.Quantity); err != nil {
			restored = false
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id":   order.ID,
				"product_id": item.ProductID,
				"qty":        item.Quantity,
			}).Error("failed to restore stock for cancelled order")
		}
	}
	return restored
}
