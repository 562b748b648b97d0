package orders

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
	"github.com/vladislavdragonenkov/exopet/internal/metrics"
)

const (
	// DefaultMaxLines — максимум строк в одном заказе.
	DefaultMaxLines = 50
	// DefaultMaxQuantity — максимум единиц в одной строке.
	DefaultMaxQuantity = 100
	// DefaultReturnPath добавляется к адресу фронтенда для возврата со шлюза.
	DefaultReturnPath = "/checkout/return"

	maxSaveAttempts = 3
	baseRetryDelay  = 10 * time.Millisecond
	sessionIDPrefix = "session_"
	tracerName      = "github.com/vladislavdragonenkov/exopet/internal/service/orders"
)

// NumberGenerator выдаёт человекочитаемые номера заказов.
type NumberGenerator interface {
	Next(ctx context.Context) (string, error)
}

// Dependencies — обязательные зависимости сервиса.
type Dependencies struct {
	Orders   domain.OrderRepository
	Products domain.ProductRepository
	Ledger   domain.InventoryLedger
	Numbers  NumberGenerator
	Gateway  domain.PaymentGateway
	Outbox   domain.OutboxRepository
	Timeline domain.TimelineRepository
}

// Config — бизнес-параметры оформления.
type Config struct {
	Pricing domain.PricingPolicy
	// ReturnURL — адрес, на который шлюз вернёт покупателя.
	ReturnURL   string
	MaxLines    int
	MaxQuantity int64
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithTracer задаёт tracer для спанов операций.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// Service реализует жизненный цикл заказа: оформление, подтверждение оплаты,
// отмену с возвратом остатков и административные операции.
type Service struct {
	orders   domain.OrderRepository
	products domain.ProductRepository
	ledger   domain.InventoryLedger
	numbers  NumberGenerator
	gateway  domain.PaymentGateway
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository

	cfg     Config
	metrics *metrics.CheckoutMetrics
	tracer  trace.Tracer
	logger  *log.Entry
	now     func() time.Time
	newID   func() string
	sleep   func(time.Duration)
}

// NewService проверяет зависимости и создаёт сервис.
func NewService(deps Dependencies, cfg Config, opts ...Option) (*Service, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("orders repository is required")
	case deps.Products == nil:
		return nil, errors.New("products repository is required")
	case deps.Ledger == nil:
		return nil, errors.New("inventory ledger is required")
	case deps.Numbers == nil:
		return nil, errors.New("order number generator is required")
	case deps.Gateway == nil:
		return nil, errors.New("payment gateway is required")
	case deps.Outbox == nil:
		return nil, errors.New("outbox repository is required")
	}

	if cfg.MaxLines <= 0 {
		cfg.MaxLines = DefaultMaxLines
	}
	if cfg.MaxQuantity <= 0 {
		cfg.MaxQuantity = DefaultMaxQuantity
	}
	if cfg.Pricing.TaxRate.IsZero() && cfg.Pricing.ShippingFee == 0 && cfg.Pricing.FreeShippingThreshold == 0 {
		cfg.Pricing = domain.DefaultPricingPolicy()
	}

	s := &Service{
		orders:   deps.Orders,
		products: deps.Products,
		ledger:   deps.Ledger,
		numbers:  deps.Numbers,
		gateway:  deps.Gateway,
		outbox:   deps.Outbox,
		timeline: deps.Timeline,
		cfg:      cfg,
		tracer:   otel.Tracer(tracerName),
		logger:   log.WithField("component", "orders"),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// startSpan открывает спан операции и замер метрик.
func (s *Service) startSpan(ctx context.Context, operation string) (context.Context, func(*error)) {
	ctx, span := s.tracer.Start(ctx, "orders."+operation)
	done := s.metrics.ObserveOperation(operation)
	return ctx, func(errp *error) {
		if errp != nil && *errp != nil {
			span.RecordError(*errp)
			span.SetStatus(codes.Error, string(domain.KindOf(*errp)))
		}
		span.End()
		done()
	}
}

// mutate загружает заказ, применяет apply и сохраняет его с учётом версии.
// Конфликт версий перечитывает заказ и повторяет apply с экспоненциальной задержкой.
// apply возвращает false, если изменений не требуется.
func (s *Service) mutate(ctx context.Context, order *domain.Order, apply func(*domain.Order) (bool, error)) (bool, error) {
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		candidate := order.Clone()
		changed, err := apply(&candidate)
		if err != nil || !changed {
			return false, err
		}

		err = s.orders.Save(ctx, candidate)
		if err == nil {
			candidate.Version++
			*order = candidate
			return true, nil
		}
		if !domain.IsVersionConflict(err) || attempt == maxSaveAttempts-1 {
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"attempt":  attempt + 1,
			}).Error("failed to persist order")
			return false, err
		}

		s.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"attempt":  attempt + 1,
			"version":  order.Version,
		}).Warn("version conflict detected, retrying")

		fresh, loadErr := s.orders.Get(ctx, order.ID)
		if loadErr != nil {
			s.logger.WithError(loadErr).WithField("order_id", order.ID).Error("failed to reload order after conflict")
			return false, loadErr
		}
		*order = fresh
		s.sleep(baseRetryDelay * time.Duration(1<<uint(attempt)))
	}
	return false, domain.ErrOrderVersionConflict
}

// emitEvent пишет событие в outbox и timeline; ошибки только логируются.
func (s *Service) emitEvent(order *domain.Order, eventType string, payload map[string]any) {
	if payload == nil {
		payload = make(map[string]any)
	}
	occurred := s.now()
	payload["order_id"] = order.ID
	payload["order_number"] = order.OrderNumber
	payload["status"] = order.Status
	payload["ts"] = occurred.Format(time.RFC3339Nano)

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       data,
	}
	if _, err := s.outbox.Enqueue(msg); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Warn("enqueue event failed")
	}

	reason, _ := payload["reason"].(string)
	s.appendTimeline(order.ID, eventType, reason, occurred)
}

func (s *Service) appendTimeline(orderID, eventType, reason string, occurred time.Time) {
	if s.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: occurred,
	}
	if err := s.timeline.Append(event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Warn("append timeline event failed")
	}
}

func (s *Service) emitStatusChanged(order *domain.Order, previous domain.OrderStatus) {
	if order.Status == previous {
		return
	}
	s.emitEvent(order, domain.EventOrderStatusChanged, map[string]any{
		"previous_status": previous,
	})
}

// requireActor отличает гостя (401) от недостатка прав (403).
func requireActor(actor domain.Actor, allowed bool) error {
	if actor.IsGuest() {
		return domain.ErrUnauthenticated
	}
	if !allowed {
		return domain.ErrForbidden
	}
	return nil
}
