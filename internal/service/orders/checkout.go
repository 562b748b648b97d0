package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

// CheckoutRequest — корзина, адрес доставки и комментарий покупателя.
type CheckoutRequest struct {
	Items           []domain.StockLine
	ShippingAddress domain.ShippingAddress
	Notes           string
	Method          domain.PaymentMethod
}

// CheckoutResult — созданный заказ и данные для перехода на страницу оплаты.
type CheckoutResult struct {
	Order   domain.Order
	Payment domain.Transaction
}

// Checkout проверяет корзину, создаёт заказ в pending и инициирует транзакцию у шлюза.
// Сбой шлюза удаляет только что созданный заказ.
func (s *Service) Checkout(ctx context.Context, actor domain.Actor, req CheckoutRequest) (result CheckoutResult, err error) {
	ctx, finish := s.startSpan(ctx, "checkout")
	defer func() {
		if err != nil {
			s.metrics.RecordCheckoutFailure(string(domain.KindOf(err)))
		}
		finish(&err)
	}()

	address, err := s.validateCheckout(req)
	if err != nil {
		return CheckoutResult{}, err
	}

	report, err := s.ledger.CheckBatch(ctx, req.Items)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("check stock: %w", err)
	}
	if !report.AllAvailable {
		return CheckoutResult{}, availabilityError(report.Unavailable())
	}

	items, err := s.snapshotItems(ctx, req.Items)
	if err != nil {
		return CheckoutResult{}, err
	}
	totals, err := s.cfg.Pricing.Quote(domain.Subtotal(items))
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("quote totals: %w", err)
	}

	method := req.Method
	if method == "" {
		method = domain.PaymentMethodWebpay
	}
	now := s.now()
	order := domain.Order{
		ID:              s.newID(),
		UserID:          actor.UserID,
		Items:           items,
		ShippingAddress: address,
		Payment: domain.PaymentInfo{
			Method: method,
			Status: domain.PaymentStatusPending,
			Amount: totals.Total,
		},
		Status:    domain.OrderStatusPending,
		Notes:     strings.TrimSpace(req.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	}
	totals.Apply(&order)

	if err := s.createWithNumber(ctx, &order); err != nil {
		return CheckoutResult{}, err
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("order.number", order.OrderNumber),
		attribute.Int64("order.total", order.Total),
	)

	tx, err := s.gateway.CreateTransaction(ctx, domain.TransactionRequest{
		BuyOrder:  order.OrderNumber,
		SessionID: sessionIDPrefix + order.ID,
		Amount:    order.Total,
		ReturnURL: s.cfg.ReturnURL,
	})
	if err != nil {
		if !isGatewayKind(err) {
			err = fmt.Errorf("%w: %w", domain.ErrPaymentInitiation, err)
		}
		s.compensate(ctx, &order, err)
		return CheckoutResult{}, err
	}

	if _, err := s.mutate(ctx, &order, func(o *domain.Order) (bool, error) {
		o.Payment.ExternalTransactionID = tx.Token
		o.UpdatedAt = s.now()
		return true, nil
	}); err != nil {
		s.compensate(ctx, &order, err)
		return CheckoutResult{}, fmt.Errorf("attach transaction token: %w", err)
	}

	s.emitEvent(&order, domain.EventOrderPlaced, map[string]any{
		"user_id":     order.UserID,
		"total":       order.Total,
		"items_count": len(order.Items),
	})
	s.metrics.RecordOrderPlaced()
	s.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"total":        order.Total,
	}).Info("order placed")

	return CheckoutResult{Order: order, Payment: tx}, nil
}

func (s *Service) validateCheckout(req CheckoutRequest) (domain.ShippingAddress, error) {
	if len(req.Items) == 0 {
		return domain.ShippingAddress{}, &domain.ValidationError{Field: "items", Message: "order must contain at least one item", Err: domain.ErrItemsRequired}
	}
	if len(req.Items) > s.cfg.MaxLines {
		return domain.ShippingAddress{}, &domain.ValidationError{
			Field:   "items",
			Message: fmt.Sprintf("order may contain at most %d items", s.cfg.MaxLines),
			Err:     domain.ErrTooManyItems,
		}
	}
	for i, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return domain.ShippingAddress{}, &domain.ValidationError{
				Field:   fmt.Sprintf("items[%d].productId", i),
				Message: "is required",
				Err:     domain.ErrProductIDRequired,
			}
		}
		if item.Quantity <= 0 || item.Quantity > s.cfg.MaxQuantity {
			return domain.ShippingAddress{}, &domain.ValidationError{
				Field:   fmt.Sprintf("items[%d].quantity", i),
				Message: fmt.Sprintf("must be between 1 and %d", s.cfg.MaxQuantity),
				Err:     domain.ErrItemQtyInvalid,
			}
		}
	}

	address := req.ShippingAddress.Normalize()
	if err := address.Validate(); err != nil {
		return domain.ShippingAddress{}, err
	}
	return address, nil
}

// snapshotItems фиксирует название, цену и изображение товара на момент оформления.
func (s *Service) snapshotItems(ctx context.Context, lines []domain.StockLine) ([]domain.OrderItem, error) {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.products.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok || !product.IsActive {
			return nil, &domain.AvailabilityError{ProductID: line.ProductID, Requested: line.Quantity}
		}
		items = append(items, product.Snapshot(s.newID(), line.Quantity))
	}
	return items, nil
}

// createWithNumber назначает номер и сохраняет заказ; занятый номер запрашивается заново.
func (s *Service) createWithNumber(ctx context.Context, order *domain.Order) error {
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		number, err := s.numbers.Next(ctx)
		if err != nil {
			return fmt.Errorf("generate order number: %w", err)
		}
		order.OrderNumber = number

		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return fmt.Errorf("order invariants: %w", errors.Join(errs...))
		}

		err = s.orders.Create(ctx, *order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrOrderNumberConflict) {
			return fmt.Errorf("create order: %w", err)
		}
		s.logger.WithFields(log.Fields{
			"order_number": number,
			"attempt":      attempt,
		}).Warn("order number already taken, retrying")
	}
	return fmt.Errorf("create order: %w", domain.ErrOrderNumberConflict)
}

// compensate удаляет заказ без транзакции и оставляет запись в timeline.
func (s *Service) compensate(ctx context.Context, order *domain.Order, cause error) {
	ctx = context.WithoutCancel(ctx)
	logger := s.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
	})

	if err := s.orders.Delete(ctx, order.ID); err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
		logger.WithError(err).Error("failed to delete order after payment initiation failure")
	} else {
		s.metrics.RecordCompensation()
		logger.WithError(cause).Warn("payment initiation failed, pending order deleted")
	}
	s.appendTimeline(order.ID, domain.EventOrderPaymentInitiationFailed, cause.Error(), s.now())
}

func availabilityError(lines []domain.StockCheck) error {
	errs := make([]error, 0, len(lines))
	for _, line := range lines {
		errs = append(errs, &domain.AvailabilityError{
			ProductID: line.ProductID,
			Name:      line.Name,
			Requested: line.Requested,
			Available: line.Available,
		})
	}
	return errors.Join(errs...)
}

// AvailabilityDetails извлекает все позиции из ошибки доступности.
func AvailabilityDetails(err error) []*domain.AvailabilityError {
	var out []*domain.AvailabilityError
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if ae, ok := e.(*domain.AvailabilityError); ok {
			out = append(out, ae)
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}

func isGatewayKind(err error) bool {
	kind := domain.KindOf(err)
	return kind == domain.KindGateway || kind == domain.KindGatewayTimeout
}
