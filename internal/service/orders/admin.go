package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

const (
	// DefaultAdminPageLimit — размер страницы административного списка.
	DefaultAdminPageLimit = 20
	// DefaultUserPageLimit — размер страницы списка заказов пользователя.
	DefaultUserPageLimit = 10
	// MaxPageLimit ограничивает размер любой страницы.
	MaxPageLimit = 100
)

// StatusUpdate — административное изменение заказа.
type StatusUpdate struct {
	Status            domain.OrderStatus
	TrackingNumber    *string
	Notes             *string
	EstimatedDelivery *time.Time
}

// UpdateStatus выполняет административный переход статуса.
// cancelled делегируется Cancel, delivered допускается из любого нетерминального статуса.
func (s *Service) UpdateStatus(ctx context.Context, actor domain.Actor, orderID string, update StatusUpdate) (order domain.Order, err error) {
	if err := requireActor(actor, actor.IsAdmin()); err != nil {
		return domain.Order{}, err
	}
	if !update.Status.Valid() {
		return domain.Order{}, &domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", update.Status), Err: domain.ErrUnknownStatus}
	}
	if update.Status == domain.OrderStatusCancelled {
		reason := ""
		if update.Notes != nil {
			reason = *update.Notes
		}
		return s.Cancel(ctx, actor, orderID, reason)
	}

	ctx, finish := s.startSpan(ctx, "update_status")
	defer finish(&err)
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.target_status", string(update.Status)),
	)

	order, err = s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	previous := order.Status
	if _, err := s.mutate(ctx, &order, func(o *domain.Order) (bool, error) {
		previous = o.Status
		now := s.now()
		if err := applyTransition(o, update.Status, now); err != nil {
			return false, err
		}
		if update.TrackingNumber != nil {
			o.TrackingNumber = strings.TrimSpace(*update.TrackingNumber)
		}
		if update.Notes != nil {
			o.Notes = strings.TrimSpace(*update.Notes)
		}
		if update.EstimatedDelivery != nil {
			eta := update.EstimatedDelivery.UTC()
			o.EstimatedDelivery = &eta
		}
		o.UpdatedAt = now
		return true, nil
	}); err != nil {
		return domain.Order{}, err
	}

	s.emitStatusChanged(&order, previous)
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"status":   order.Status,
		"previous": previous,
	}).Info("order status updated")
	return order, nil
}

func applyTransition(o *domain.Order, target domain.OrderStatus, now time.Time) error {
	if o.Status == target {
		return nil
	}
	switch target {
	case domain.OrderStatusDelivered:
		if !o.MarkDelivered(now) {
			return fmt.Errorf("%w: order is %s", domain.ErrInvalidStatusTransition, o.Status)
		}
		return nil
	case domain.OrderStatusProcessing, domain.OrderStatusShipped:
		return o.AdvanceTo(target, now)
	default:
		return fmt.Errorf("%w: %s cannot be set by an administrator", domain.ErrInvalidStatusTransition, target)
	}
}

// Get возвращает заказ владельцу или администратору.
func (s *Service) Get(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := requireActor(actor, actor.CanAccess(&order)); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// ListMine возвращает заказы аутентифицированного пользователя, новые первыми.
func (s *Service) ListMine(ctx context.Context, actor domain.Actor, page domain.Page) (domain.OrderPage, domain.Page, error) {
	if err := requireActor(actor, true); err != nil {
		return domain.OrderPage{}, page, err
	}
	page = NormalizePage(page, DefaultUserPageLimit)
	result, err := s.orders.ListByUser(ctx, actor.UserID, page)
	if err != nil {
		return domain.OrderPage{}, page, fmt.Errorf("list user orders: %w", err)
	}
	return result, page, nil
}

// List — административный список с фильтрами.
func (s *Service) List(ctx context.Context, actor domain.Actor, filter domain.OrderFilter) (domain.OrderPage, domain.Page, error) {
	if err := requireActor(actor, actor.IsAdmin()); err != nil {
		return domain.OrderPage{}, filter.Page, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return domain.OrderPage{}, filter.Page, &domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", filter.Status), Err: domain.ErrUnknownStatus}
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return domain.OrderPage{}, filter.Page, domain.NewValidationError("endDate", "must not be before startDate")
	}
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Page = NormalizePage(filter.Page, DefaultAdminPageLimit)

	result, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.OrderPage{}, filter.Page, fmt.Errorf("list orders: %w", err)
	}
	return result, filter.Page, nil
}

// Stats возвращает сводку по заказам.
func (s *Service) Stats(ctx context.Context, actor domain.Actor) (domain.OrderStats, error) {
	if err := requireActor(actor, actor.IsAdmin()); err != nil {
		return domain.OrderStats{}, err
	}
	stats, err := s.orders.Stats(ctx)
	if err != nil {
		return domain.OrderStats{}, fmt.Errorf("order stats: %w", err)
	}
	return stats, nil
}

// Timeline возвращает историю событий заказа. История удалённого (компенсированного)
// заказа доступна только администратору.
func (s *Service) Timeline(ctx context.Context, actor domain.Actor, orderID string) ([]domain.TimelineEvent, error) {
	if s.timeline == nil {
		return nil, nil
	}
	order, err := s.orders.Get(ctx, orderID)
	switch {
	case err == nil:
		if err := requireActor(actor, actor.CanAccess(&order)); err != nil {
			return nil, err
		}
	case actor.IsAdmin():
	default:
		return nil, err
	}

	events, err := s.timeline.List(orderID)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	return events, nil
}

// NormalizePage подставляет значения по умолчанию и ограничивает размер страницы.
func NormalizePage(page domain.Page, defaultLimit int) domain.Page {
	if page.Number < 1 {
		page.Number = 1
	}
	if page.Limit <= 0 {
		page.Limit = defaultLimit
	}
	if page.Limit > MaxPageLimit {
		page.Limit = MaxPageLimit
	}
	return page
}

// TotalPages возвращает число страниц для total записей.
func TotalPages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
