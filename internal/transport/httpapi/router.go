// Package httpapi — REST-интерфейс магазина: заказы, оплата и каталог.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vladislavdragonenkov/exopet/internal/auth"
	"github.com/vladislavdragonenkov/exopet/internal/domain"
	"github.com/vladislavdragonenkov/exopet/internal/service/idempotency"
	"github.com/vladislavdragonenkov/exopet/internal/service/orders"
)

const (
	// DefaultRequestTimeout ограничивает обработку одного запроса.
	DefaultRequestTimeout = 30 * time.Second
	// IdempotencyKeyHeader — заголовок ключа идемпотентности для POST /api/orders.
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader выставляется на ответах, воспроизведённых по ключу идемпотентности.
	ReplayedHeader = "Idempotent-Replayed"

	maxBodyBytes  = 1 << 20
	operationName = "exopet-api"
)

// OrderService — операции жизненного цикла заказа, которые вызывает HTTP-слой.
type OrderService interface {
	Checkout(ctx context.Context, actor domain.Actor, req orders.CheckoutRequest) (orders.CheckoutResult, error)
	ConfirmPayment(ctx context.Context, token string) (orders.PaymentSummary, error)
	Cancel(ctx context.Context, actor domain.Actor, orderID, reason string) (domain.Order, error)
	UpdateStatus(ctx context.Context, actor domain.Actor, orderID string, update orders.StatusUpdate) (domain.Order, error)
	Get(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error)
	ListMine(ctx context.Context, actor domain.Actor, page domain.Page) (domain.OrderPage, domain.Page, error)
	List(ctx context.Context, actor domain.Actor, filter domain.OrderFilter) (domain.OrderPage, domain.Page, error)
	Stats(ctx context.Context, actor domain.Actor) (domain.OrderStats, error)
	Timeline(ctx context.Context, actor domain.Actor, orderID string) ([]domain.TimelineEvent, error)
}

// Deps — зависимости роутера. Idempotency необязателен.
type Deps struct {
	Orders      OrderService
	Products    domain.ProductRepository
	Ledger      domain.InventoryLedger
	Tokens      *auth.TokenService
	Idempotency *idempotency.Guard
}

// Option настраивает роутер.
type Option func(*handler)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(h *handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithRequestTimeout меняет таймаут обработки запроса.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(h *handler) {
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

// WithClock подменяет источник времени для операций каталога.
func WithClock(now func() time.Time) Option {
	return func(h *handler) {
		if now != nil {
			h.now = now
		}
	}
}

type handler struct {
	orders   OrderService
	products domain.ProductRepository
	ledger   domain.InventoryLedger
	tokens   *auth.TokenService
	guard    *idempotency.Guard

	logger  *log.Entry
	timeout time.Duration
	now     func() time.Time
	newID   func() string
}

// NewRouter собирает chi-роутер со всеми маршрутами /api и оборачивает его в otelhttp.
func NewRouter(deps Deps, opts ...Option) (http.Handler, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("order service is required")
	case deps.Products == nil:
		return nil, errors.New("products repository is required")
	case deps.Ledger == nil:
		return nil, errors.New("inventory ledger is required")
	case deps.Tokens == nil:
		return nil, errors.New("token service is required")
	}

	h := &handler{
		orders:   deps.Orders,
		products: deps.Products,
		ledger:   deps.Ledger,
		tokens:   deps.Tokens,
		guard:    deps.Idempotency,
		logger:   log.WithField("component", "http"),
		timeout:  DefaultRequestTimeout,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	r.Use(accessLog(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.timeout))
	r.Use(authenticate(h.tokens, h.logger))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorBody(w, http.StatusNotFound, errorBody{Kind: domain.KindNotFound, Message: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorBody(w, http.StatusMethodNotAllowed, errorBody{Kind: domain.KindValidation, Message: "method not allowed"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.With(h.idempotent).Post("/", h.checkout)
			r.Get("/", h.listOrders)
			r.Post("/confirm-payment", h.confirmPayment)
			r.Get("/my-orders", h.myOrders)
			r.Get("/stats/overview", h.stats)
			r.Get("/{id}", h.getOrder)
			r.Get("/{id}/timeline", h.timeline)
			r.Patch("/{id}/cancel", h.cancel)
			r.Patch("/{id}/status", h.updateStatus)
		})
		r.Route("/products", func(r chi.Router) {
			r.Post("/check-stock", h.checkStock)
			r.Get("/{id}", h.getProduct)
			r.Post("/", h.createProduct)
			r.Put("/{id}", h.updateProduct)
			r.Delete("/{id}", h.deleteProduct)
		})
	})

	return otelhttp.NewHandler(r, operationName), nil
}
