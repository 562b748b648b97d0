package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

// MockGateway — конфигурируемый шлюз для тестов и режима TRANSBANK_ENVIRONMENT=mock.
// По умолчанию одобряет все транзакции.
type MockGateway struct {
	mu sync.Mutex

	// BaseURL — адрес страницы оплаты, возвращаемый в Transaction.URL.
	BaseURL      string
	ResponseCode int
	CardNumber   string
	CreateErr    error
	CommitErr    error
	// CreateDelay имитирует медленный шлюз; ожидание прерывается контекстом.
	CreateDelay time.Duration

	transactions map[string]domain.TransactionRequest
	committed    map[string]bool
	CreateCalls  int
	CommitCalls  int
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		BaseURL:      "http://localhost:8080/mock-webpay",
		ResponseCode: domain.ResponseCodeApproved,
		CardNumber:   "XXXXXXXXXXXX6623",
		transactions: make(map[string]domain.TransactionRequest),
		committed:    make(map[string]bool),
	}
}

// CreateTransaction регистрирует транзакцию и возвращает случайный токен.
func (m *MockGateway) CreateTransaction(ctx context.Context, req domain.TransactionRequest) (domain.Transaction, error) {
	m.mu.Lock()
	m.CreateCalls++
	delay, createErr := m.CreateDelay, m.CreateErr
	m.mu.Unlock()

	if delay > 0 {
		if err := sleepContext(ctx, delay); err != nil {
			return domain.Transaction{}, err
		}
	}
	if createErr != nil {
		return domain.Transaction{}, createErr
	}

	token := uuid.NewString()
	m.mu.Lock()
	m.transactions[token] = req
	m.mu.Unlock()

	return domain.Transaction{Token: token, URL: m.BaseURL}, nil
}

// CommitTransaction возвращает настроенный код ответа для известного токена.
func (m *MockGateway) CommitTransaction(_ context.Context, token string) (domain.PaymentResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CommitCalls++
	if m.CommitErr != nil {
		return domain.PaymentResult{}, m.CommitErr
	}
	req, ok := m.transactions[token]
	if !ok {
		return domain.PaymentResult{}, fmt.Errorf("unknown transaction token %q", token)
	}
	if m.committed[token] {
		return domain.PaymentResult{}, fmt.Errorf("transaction %q already committed", token)
	}
	m.committed[token] = true

	result := domain.PaymentResult{
		ResponseCode:     m.ResponseCode,
		CardBrand:        "credit",
		CardNumber:       m.CardNumber,
		InstallmentCount: 0,
		Amount:           req.Amount,
		BuyOrder:         req.BuyOrder,
		Status:           "AUTHORIZED",
	}
	if result.Approved() {
		result.AuthorizationCode = "1213"
	} else {
		result.Status = "FAILED"
	}
	return result, nil
}

// Register добавляет транзакцию с известным токеном.
func (m *MockGateway) Register(token string, req domain.TransactionRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[token] = req
}

// Calls возвращает число вызовов create и commit.
func (m *MockGateway) Calls() (create, commit int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CreateCalls, m.CommitCalls
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
