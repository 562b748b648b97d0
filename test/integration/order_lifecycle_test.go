package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/exopet/internal/auth"
	"github.com/vladislavdragonenkov/exopet/internal/domain"
	"github.com/vladislavdragonenkov/exopet/internal/service/idempotency"
	"github.com/vladislavdragonenkov/exopet/internal/service/inventory"
	"github.com/vladislavdragonenkov/exopet/internal/service/ordernumber"
	"github.com/vladislavdragonenkov/exopet/internal/service/orders"
	"github.com/vladislavdragonenkov/exopet/internal/service/outbox"
	"github.com/vladislavdragonenkov/exopet/internal/service/payment"
	"github.com/vladislavdragonenkov/exopet/internal/storage/memory"
	"github.com/vladislavdragonenkov/exopet/internal/transport/httpapi"
)

// recordingPublisher запоминает опубликованные события.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OutboxMessage
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types(aggregateID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		if e.AggregateID == aggregateID {
			out = append(out, e.EventType)
		}
	}
	return out
}

type apiError struct {
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   apiError        `json:"error"`
}

type checkoutData struct {
	Order struct {
		ID          string `json:"id"`
		OrderNumber string `json:"orderNumber"`
		Total       int64  `json:"total"`
	} `json:"order"`
	Payment struct {
		Token string `json:"token"`
		URL   string `json:"url"`
	} `json:"payment"`
}

type summaryData struct {
	Order struct {
		ID             string             `json:"id"`
		Status         domain.OrderStatus `json:"status"`
		RequiresReview bool               `json:"requiresReview"`
	} `json:"order"`
	Payment struct {
		Status     domain.PaymentStatus `json:"status"`
		CardNumber string               `json:"cardNumber"`
	} `json:"payment"`
}

type orderData struct {
	ID             string             `json:"id"`
	Status         domain.OrderStatus `json:"status"`
	TrackingNumber string             `json:"trackingNumber"`
	RequiresReview bool               `json:"requiresReview"`
	DeliveredAt    *time.Time         `json:"deliveredAt"`
	CancelReason   string             `json:"cancelReason"`
}

type timelineData struct {
	Type string `json:"type"`
}

// OrderLifecycleTestSuite проверяет полный жизненный цикл заказа через HTTP API.
type OrderLifecycleTestSuite struct {
	suite.Suite

	server    *httptest.Server
	products  domain.ProductRepository
	gateway   *payment.MockGateway
	worker    *outbox.Worker
	published *recordingPublisher

	customer string
	admin    string
}

func (s *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "integration-test")

	s.products = memory.NewProductRepository()
	outboxRepo := memory.NewOutboxRepository()
	ledger := inventory.NewLedger(s.products, nil, logger)
	s.gateway = payment.NewMockGateway()

	service, err := orders.NewService(orders.Dependencies{
		Orders:   memory.NewOrderRepository(),
		Products: s.products,
		Ledger:   ledger,
		Numbers:  ordernumber.NewGenerator(memory.NewSequenceRepository()),
		Gateway:  payment.NewResilientGateway(s.gateway, payment.DefaultRetryConfig(), payment.NewCircuitBreaker(5, time.Second, logger), logger),
		Outbox:   outboxRepo,
		Timeline: memory.NewTimelineRepository(),
	}, orders.Config{ReturnURL: "http://localhost:5173/checkout/return"}, orders.WithLogger(logger))
	s.Require().NoError(err)

	tokens, err := auth.NewTokenService(nil, time.Hour)
	s.Require().NoError(err)

	router, err := httpapi.NewRouter(httpapi.Deps{
		Orders:      service,
		Products:    s.products,
		Ledger:      ledger,
		Tokens:      tokens,
		Idempotency: idempotency.NewGuard(memory.NewIdempotencyRepository(), time.Hour, logger),
	}, httpapi.WithLogger(logger))
	s.Require().NoError(err)
	s.server = httptest.NewServer(router)

	s.published = &recordingPublisher{}
	s.worker = outbox.NewWorker(outboxRepo, s.published, outbox.WithLogger(logger))

	s.customer, err = tokens.Issue(domain.Actor{UserID: "user-1", Role: domain.RoleCustomer})
	s.Require().NoError(err)
	s.admin, err = tokens.Issue(domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin})
	s.Require().NoError(err)

	now := time.Now().UTC()
	s.Require().NoError(s.products.Create(context.Background(), domain.Product{
		ID: "terrarium", Name: "Terrario 60x45", Price: 30000, Stock: 10, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}))
	s.Require().NoError(s.products.Create(context.Background(), domain.Product{
		ID: "substrate", Name: "Sustrato de coco", Price: 4500, Stock: 3, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}))
}

func (s *OrderLifecycleTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *OrderLifecycleTestSuite) call(method, path, token string, body any, out any) (int, apiResponse) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		s.Require().NoError(err)
	}

	req, err := http.NewRequest(method, s.server.URL+path, bytes.NewReader(payload))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var envelope apiResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&envelope))
	if out != nil && envelope.Success {
		s.Require().NoError(json.Unmarshal(envelope.Data, out))
	}
	return resp.StatusCode, envelope
}

func (s *OrderLifecycleTestSuite) checkout(token string, lines ...map[string]any) checkoutData {
	var created checkoutData
	status, env := s.call(http.MethodPost, "/api/orders", token, checkoutRequest(lines...), &created)
	s.Require().Equal(http.StatusCreated, status, env.Error.Message)
	return created
}

func (s *OrderLifecycleTestSuite) confirm(token string) summaryData {
	var summary summaryData
	status, env := s.call(http.MethodPost, "/api/orders/confirm-payment", "", map[string]string{"token_ws": token}, &summary)
	s.Require().Equal(http.StatusOK, status, env.Error.Message)
	return summary
}

func (s *OrderLifecycleTestSuite) stock(id string) int64 {
	p, err := s.products.Get(context.Background(), id)
	s.Require().NoError(err)
	return p.Stock
}

func line(productID string, qty int64) map[string]any {
	return map[string]any{"productId": productID, "quantity": qty}
}

func checkoutRequest(lines ...map[string]any) map[string]any {
	return map[string]any{
		"items": lines,
		"shippingAddress": map[string]any{
			"firstName":  "Camila",
			"lastName":   "Soto",
			"email":      "camila@example.com",
			"phone":      "+56922223333",
			"address":    "Los Leones 456",
			"city":       "Providencia",
			"region":     "RM",
			"postalCode": "7510000",
		},
	}
}

// TestFullLifecycle проходит путь pending → confirmed → processing → shipped → delivered.
func (s *OrderLifecycleTestSuite) TestFullLifecycle() {
	created := s.checkout(s.customer, line("terrarium", 2), line("substrate", 1))
	s.Require().Equal(int64(10), s.stock("terrarium"), "checkout must not reserve stock")

	summary := s.confirm(created.Payment.Token)
	s.Require().Equal(domain.OrderStatusConfirmed, summary.Order.Status)
	s.Require().Equal(domain.PaymentStatusApproved, summary.Payment.Status)
	s.Require().False(summary.Order.RequiresReview)
	s.Require().Equal(int64(8), s.stock("terrarium"))
	s.Require().Equal(int64(2), s.stock("substrate"))

	// Повторное подтверждение не списывает остатки второй раз.
	replay := s.confirm(created.Payment.Token)
	s.Require().Equal(domain.OrderStatusConfirmed, replay.Order.Status)
	s.Require().Equal(int64(8), s.stock("terrarium"))
	s.Require().Equal(1, s.gateway.CommitCalls)

	path := "/api/orders/" + created.Order.ID
	var order orderData
	status, _ := s.call(http.MethodPatch, path+"/status", s.admin, map[string]any{"status": "processing"}, &order)
	s.Require().Equal(http.StatusOK, status)
	s.Require().Equal(domain.OrderStatusProcessing, order.Status)

	status, _ = s.call(http.MethodPatch, path+"/status", s.admin, map[string]any{"status": "shipped", "trackingNumber": "CL123456789"}, &order)
	s.Require().Equal(http.StatusOK, status)
	s.Require().Equal("CL123456789", order.TrackingNumber)

	// Отправленный заказ отменить нельзя.
	status, env := s.call(http.MethodPatch, path+"/cancel", s.customer, map[string]any{"reason": "late"}, nil)
	s.Require().Equal(http.StatusBadRequest, status)
	s.Require().Equal(domain.KindNotCancellable, env.Error.Kind)

	status, _ = s.call(http.MethodPatch, path+"/status", s.admin, map[string]any{"status": "delivered"}, &order)
	s.Require().Equal(http.StatusOK, status)
	s.Require().Equal(domain.OrderStatusDelivered, order.Status)
	s.Require().NotNil(order.DeliveredAt)

	var timeline []timelineData
	status, _ = s.call(http.MethodGet, path+"/timeline", s.customer, nil, &timeline)
	s.Require().Equal(http.StatusOK, status)
	s.Require().NotEmpty(timeline)
	s.Require().Equal(domain.EventOrderPlaced, timeline[0].Type)

	s.Require().Positive(s.worker.ProcessOnce(context.Background()))
	events := s.published.types(created.Order.ID)
	s.Require().Contains(events, domain.EventOrderPlaced)
	s.Require().Contains(events, domain.EventOrderPaymentApproved)
	s.Require().Contains(events, domain.EventOrderStatusChanged)
	s.Require().NotContains(events, domain.EventOrderStockShortage)
}

// TestRejectedPaymentCancelsOrder — отклонённая оплата не трогает склад.
func (s *OrderLifecycleTestSuite) TestRejectedPaymentCancelsOrder() {
	s.gateway.ResponseCode = -1
	created := s.checkout(s.customer, line("terrarium", 1))

	summary := s.confirm(created.Payment.Token)
	s.Require().Equal(domain.OrderStatusCancelled, summary.Order.Status)
	s.Require().Equal(domain.PaymentStatusRejected, summary.Payment.Status)
	s.Require().Equal(int64(10), s.stock("terrarium"))

	s.worker.ProcessOnce(context.Background())
	s.Require().Contains(s.published.types(created.Order.ID), domain.EventOrderPaymentRejected)
}

// TestShortageAfterApprovalRequiresReview — два заказа на последний остаток.
func (s *OrderLifecycleTestSuite) TestShortageAfterApprovalRequiresReview() {
	first := s.checkout(s.customer, line("substrate", 2))
	second := s.checkout(s.customer, line("substrate", 2))

	s.Require().False(s.confirm(first.Payment.Token).Order.RequiresReview)
	summary := s.confirm(second.Payment.Token)
	s.Require().Equal(domain.OrderStatusConfirmed, summary.Order.Status)
	s.Require().True(summary.Order.RequiresReview)
	s.Require().Equal(int64(1), s.stock("substrate"), "stock must never go negative")

	s.worker.ProcessOnce(context.Background())
	s.Require().Contains(s.published.types(second.Order.ID), domain.EventOrderStockShortage)

	// Строка второго заказа не списывалась, отмена не должна её возвращать.
	status, _ := s.call(http.MethodPatch, "/api/orders/"+second.Order.ID+"/cancel", s.admin, map[string]any{"reason": "out of stock"}, nil)
	s.Require().Equal(http.StatusOK, status)
	s.Require().Equal(int64(1), s.stock("substrate"))
}

// TestCancelRestoresStockOnce — отмена оплаченного заказа возвращает остатки один раз.
func (s *OrderLifecycleTestSuite) TestCancelRestoresStockOnce() {
	created := s.checkout(s.customer, line("terrarium", 4))
	s.confirm(created.Payment.Token)
	s.Require().Equal(int64(6), s.stock("terrarium"))

	var order orderData
	status, _ := s.call(http.MethodPatch, "/api/orders/"+created.Order.ID+"/cancel", s.customer, map[string]any{"reason": "changed my mind"}, &order)
	s.Require().Equal(http.StatusOK, status)
	s.Require().Equal(domain.OrderStatusCancelled, order.Status)
	s.Require().Equal("changed my mind", order.CancelReason)
	s.Require().Equal(int64(10), s.stock("terrarium"))

	status, _ = s.call(http.MethodPatch, "/api/orders/"+created.Order.ID+"/cancel", s.admin, nil, nil)
	s.Require().Equal(http.StatusBadRequest, status)
	s.Require().Equal(int64(10), s.stock("terrarium"))
}

// TestConcurrentConfirmationsNeverOversell — параллельные подтверждения не уводят остаток в минус.
func (s *OrderLifecycleTestSuite) TestConcurrentConfirmationsNeverOversell() {
	const buyers = 6
	tokens := make([]string, 0, buyers)
	for i := 0; i < buyers; i++ {
		tokens = append(tokens, s.checkout(s.customer, line("substrate", 1)).Payment.Token)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reviewed int
	)
	for _, token := range tokens {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			body, err := json.Marshal(map[string]string{"token_ws": token})
			if err != nil {
				return
			}
			resp, err := s.server.Client().Post(s.server.URL+"/api/orders/confirm-payment", "application/json", bytes.NewReader(body))
			if err != nil {
				return
			}
			defer resp.Body.Close()

			var env apiResponse
			if json.NewDecoder(resp.Body).Decode(&env) != nil {
				return
			}
			var summary summaryData
			if json.Unmarshal(env.Data, &summary) == nil && summary.Order.RequiresReview {
				mu.Lock()
				reviewed++
				mu.Unlock()
			}
		}(token)
	}
	wg.Wait()

	s.Require().Equal(int64(0), s.stock("substrate"))
	s.Require().Equal(buyers-3, reviewed)
}

// TestStockCheckAndStats — проверка остатков и агрегаты для администратора.
func (s *OrderLifecycleTestSuite) TestStockCheckAndStats() {
	var report domain.StockReport
	status, _ := s.call(http.MethodPost, "/api/products/check-stock", "", map[string]any{
		"items": []map[string]any{line("terrarium", 3), line("substrate", 5)},
	}, &report)
	s.Require().Equal(http.StatusOK, status)
	s.Require().False(report.AllAvailable)
	s.Require().Len(report.Items, 2)

	created := s.checkout(s.customer, line("terrarium", 1))
	s.confirm(created.Payment.Token)

	var stats map[string]any
	status, _ = s.call(http.MethodGet, "/api/orders/stats/overview", s.admin, nil, &stats)
	s.Require().Equal(http.StatusOK, status)
	s.Require().NotEmpty(stats)

	status, env := s.call(http.MethodGet, "/api/orders/stats/overview", s.customer, nil, nil)
	s.Require().Equal(http.StatusForbidden, status)
	s.Require().Equal(domain.KindForbidden, env.Error.Kind)
}

func TestOrderLifecycleSuite(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}

func TestGuestCheckoutOverHTTP(t *testing.T) {
	products := memory.NewProductRepository()
	now := time.Now().UTC()
	require.NoError(t, products.Create(context.Background(), domain.Product{
		ID: "lamp", Name: "Lampara UVB", Price: 25000, Stock: 1, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}))
	ledger := inventory.NewLedger(products, nil, nil)

	service, err := orders.NewService(orders.Dependencies{
		Orders:   memory.NewOrderRepository(),
		Products: products,
		Ledger:   ledger,
		Numbers:  ordernumber.NewGenerator(memory.NewSequenceRepository()),
		Gateway:  payment.NewMockGateway(),
		Outbox:   memory.NewOutboxRepository(),
		Timeline: memory.NewTimelineRepository(),
	}, orders.Config{ReturnURL: "http://localhost:5173/checkout/return"})
	require.NoError(t, err)

	tokens, err := auth.NewTokenService(nil, time.Hour)
	require.NoError(t, err)
	router, err := httpapi.NewRouter(httpapi.Deps{Orders: service, Products: products, Ledger: ledger, Tokens: tokens})
	require.NoError(t, err)

	server := httptest.NewServer(router)
	defer server.Close()

	body, err := json.Marshal(checkoutRequest(line("lamp", 1)))
	require.NoError(t, err)
	resp, err := server.Client().Post(server.URL+"/api/orders", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var env apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	var created checkoutData
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.NotEmpty(t, created.Order.OrderNumber)
	require.NotEmpty(t, created.Payment.Token)
	require.GreaterOrEqual(t, created.Order.Total, int64(25000))

	p, err := products.Get(context.Background(), "lamp")
	require.NoError(t, err)
	require.Equal(t, int64(1), p.Stock)
}
