package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

// Исходы подтверждения оплаты для метрик.
const (
	reconcileApproved = "approved"
	reconcileRejected = "rejected"
	reconcileReplayed = "replayed"
	reconcileError    = "error"
)

// PaymentSummary — сокращённое представление заказа после подтверждения оплаты.
// Данные карты ограничены маской, сохранённой в заказе.
type PaymentSummary struct {
	OrderID           string
	OrderNumber       string
	Status            domain.OrderStatus
	Total             int64
	PaymentStatus     domain.PaymentStatus
	AuthorizationCode string
	MaskedCardNumber  string
	TransactionAt     *time.Time
	RequiresReview    bool
}

// SummaryOf строит PaymentSummary по заказу.
func SummaryOf(order domain.Order) PaymentSummary {
	return PaymentSummary{
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber,
		Status:            order.Status,
		Total:             order.Total,
		PaymentStatus:     order.Payment.Status,
		AuthorizationCode: order.Payment.AuthorizationCode,
		MaskedCardNumber:  order.Payment.MaskedCardNumber,
		TransactionAt:     order.Payment.TransactionAt,
		RequiresReview:    order.RequiresReview,
	}
}

// ConfirmPayment подтверждает транзакцию у шлюза и переносит результат на заказ.
// Повторный вызов для уже обработанного токена возвращает сохранённый результат без обращения к шлюзу.
func (s *Service) ConfirmPayment(ctx context.Context, token string) (summary PaymentSummary, err error) {
	ctx, finish := s.startSpan(ctx, "confirm_payment")
	outcome := reconcileError
	defer func() {
		s.metrics.RecordReconciliation(outcome)
		finish(&err)
	}()

	token = strings.TrimSpace(token)
	if token == "" {
		return PaymentSummary{}, &domain.ValidationError{Field: "token_ws", Message: "is required", Err: domain.ErrTokenRequired}
	}

	order, err := s.orders.FindByTransactionID(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return PaymentSummary{}, err
		}
		return PaymentSummary{}, fmt.Errorf("%w: lookup order: %w", domain.ErrPaymentConfirmation, err)
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("order.number", order.OrderNumber),
	)
	if reconciled(order) {
		outcome = reconcileReplayed
		return SummaryOf(order), nil
	}

	logger := s.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
	})

	result, err := s.gateway.CommitTransaction(ctx, token)
	if err != nil {
		// Параллельный запрос мог уже подтвердить ту же транзакцию.
		if fresh, loadErr := s.orders.Get(ctx, order.ID); loadErr == nil && reconciled(fresh) {
			outcome = reconcileReplayed
			return SummaryOf(fresh), nil
		}
		logger.WithError(err).Error("payment commit failed")
		if !errors.Is(err, domain.ErrPaymentConfirmation) {
			err = fmt.Errorf("%w: %w", domain.ErrPaymentConfirmation, err)
		}
		return PaymentSummary{}, err
	}
	if result.Approved() && result.Amount != 0 && result.Amount != order.Total {
		logger.WithFields(log.Fields{
			"expected": order.Total,
			"charged":  result.Amount,
		}).Warn("gateway amount differs from order total")
	}

	previous := order.Status
	applied, err := s.mutate(ctx, &order, func(o *domain.Order) (bool, error) {
		if reconciled(*o) {
			return false, nil
		}
		o.ApplyPaymentResult(result, s.now())
		return true, nil
	})
	if err != nil {
		if result.Approved() {
			s.reportUnrecordedPayment(&order, token, result, err, logger)
		}
		return PaymentSummary{}, fmt.Errorf("%w: save order: %w", domain.ErrPaymentConfirmation, err)
	}
	if !applied {
		outcome = reconcileReplayed
		return SummaryOf(order), nil
	}

	if !order.IsPaid() {
		outcome = reconcileRejected
		s.emitEvent(&order, domain.EventOrderPaymentRejected, map[string]any{
			"reason":        domain.CancelReasonPaymentRejected,
			"response_code": result.ResponseCode,
		})
		s.emitStatusChanged(&order, previous)
		logger.WithField("response_code", result.ResponseCode).Info("payment rejected, order cancelled")
		return SummaryOf(order), nil
	}

	outcome = reconcileApproved
	s.emitEvent(&order, domain.EventOrderPaymentApproved, map[string]any{
		"authorization_code": order.Payment.AuthorizationCode,
		"amount":             order.Payment.Amount,
	})
	s.emitStatusChanged(&order, previous)
	s.decrementStock(ctx, &order, logger)

	logger.WithField("requires_review", order.RequiresReview).Info("payment approved, order confirmed")
	return SummaryOf(order), nil
}

// decrementStock списывает остатки по каждой строке и отмечает списанные строки в заказе.
// Нехватка после одобренной оплаты не откатывает заказ: он остаётся confirmed с флагом RequiresReview.
func (s *Service) decrementStock(ctx context.Context, order *domain.Order, logger *log.Entry) {
	ctx = context.WithoutCancel(ctx)

	decremented := make(map[string]bool, len(order.Items))
	var shortages []domain.OrderItem
	for _, item := range order.Items {
		if item.StockDecremented {
			continue
		}
		ok, err := s.ledger.Decrement(ctx, item.ProductID, item.Quantity)
		if err != nil {
			logger.WithError(err).WithField("product_id", item.ProductID).Error("stock decrement failed")
		}
		if err != nil || !ok {
			shortages = append(shortages, item)
			continue
		}
		decremented[item.ID] = true
	}

	cancelledMeanwhile := false
	if _, err := s.mutate(ctx, order, func(o *domain.Order) (bool, error) {
		if o.Status == domain.OrderStatusCancelled {
			cancelledMeanwhile = true
			return false, nil
		}
		changed := false
		for i := range o.Items {
			if decremented[o.Items[i].ID] && !o.Items[i].StockDecremented {
				o.Items[i].StockDecremented = true
				changed = true
			}
		}
		if len(shortages) > 0 && !o.RequiresReview {
			o.RequiresReview = true
			changed = true
		}
		if changed {
			o.UpdatedAt = s.now()
		}
		return changed, nil
	}); err != nil {
		logger.WithError(err).WithField("decremented_items", len(decremented)).
			Error("failed to record stock decrement on order, cancellation will not restore these lines")
	}

	if cancelledMeanwhile {
		// Отмена прошла до отметки строк и ничего не вернула.
		for _, item := range order.Items {
			if !decremented[item.ID] {
				continue
			}
			if err := s.ledger.Increment(ctx, item.ProductID, item.Quantity); err != nil {
				logger.WithError(err).WithField("product_id", item.ProductID).Error("failed to return stock of order cancelled during decrement")
			}
		}
		return
	}

	for _, item := range shortages {
		s.metrics.RecordStockShortage()
		s.emitEvent(order, domain.EventOrderStockShortage, map[string]any{
			"reason":     fmt.Sprintf("stock shortage for %s", item.ProductID),
			"product_id": item.ProductID,
			"quantity":   item.Quantity,
		})
		logger.WithFields(log.Fields{
			"product_id": item.ProductID,
			"qty":        item.Quantity,
		}).Warn("stock shortage after payment approval, order requires review")
	}
}

// reportUnrecordedPayment фиксирует аномалию сверки: шлюз списал деньги, а заказ не сохранился.
func (s *Service) reportUnrecordedPayment(order *domain.Order, token string, result domain.PaymentResult, saveErr error, logger *log.Entry) {
	logger.WithError(saveErr).WithFields(log.Fields{
		"token":              token,
		"authorization_code": result.AuthorizationCode,
		"amount":             result.Amount,
	}).Error("reconciliation anomaly: payment captured but order was not updated")
	s.emitEvent(order, domain.EventOrderPaymentUnrecorded, map[string]any{
		"reason":             "payment captured but order was not updated",
		"token":              token,
		"authorization_code": result.AuthorizationCode,
		"amount":             result.Amount,
	})
}

// reconciled — заказ уже получил результат оплаты или закрыт до него.
func reconciled(order domain.Order) bool {
	return order.Payment.Status != domain.PaymentStatusPending || order.Status == domain.OrderStatusCancelled
}
