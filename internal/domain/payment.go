package domain

import (
	"context"
	"strings"
	"time"
)

// PaymentStatus описывает состояние платежа в системе.
type PaymentStatus string

const (
	// PaymentStatusPending — транзакция создана, результат ещё не получен.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusApproved — шлюз подтвердил списание.
	PaymentStatusApproved PaymentStatus = "approved"
	// PaymentStatusRejected — шлюз отклонил платёж.
	PaymentStatusRejected PaymentStatus = "rejected"
	// PaymentStatusNullified — платёж аннулирован после подтверждения.
	PaymentStatusNullified PaymentStatus = "nullified"
)

// PaymentMethod — способ оплаты заказа.
type PaymentMethod string

const (
	PaymentMethodWebpay   PaymentMethod = "webpay"
	PaymentMethodOneclick PaymentMethod = "oneclick"
	PaymentMethodTransfer PaymentMethod = "transfer"
)

// ResponseCodeApproved — код ответа шлюза, означающий одобрение.
const ResponseCodeApproved = 0

// PaymentInfo — платёжная часть заказа.
type PaymentInfo struct {
	Method                PaymentMethod
	ExternalTransactionID string
	AuthorizationCode     string
	CardBrand             string
	// MaskedCardNumber хранит только последние 4 цифры.
	MaskedCardNumber string
	InstallmentCount int
	Status           PaymentStatus
	TransactionAt    *time.Time
	Amount           int64
}

// TransactionRequest — параметры создания транзакции у шлюза.
type TransactionRequest struct {
	BuyOrder  string
	SessionID string
	Amount    int64
	ReturnURL string
}

// Transaction — ответ шлюза на создание транзакции.
type Transaction struct {
	Token string
	URL   string
}

// PaymentResult — результат commit транзакции.
type PaymentResult struct {
	ResponseCode      int
	AuthorizationCode string
	CardBrand         string
	CardNumber        string
	InstallmentCount  int
	Amount            int64
	BuyOrder          string
	Status            string
}

// Approved сообщает, что шлюз одобрил платёж.
func (r PaymentResult) Approved() bool {
	return r.ResponseCode == ResponseCodeApproved
}

// PaymentGateway описывает контракт внешнего шлюза: create → commit.
type PaymentGateway interface {
	CreateTransaction(ctx context.Context, req TransactionRequest) (Transaction, error)
	CommitTransaction(ctx context.Context, token string) (PaymentResult, error)
}

// MaskCardNumber оставляет только последние 4 цифры номера карты.
func MaskCardNumber(raw string) string {
	digits := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] >= '0' && raw[i] <= '9' {
			digits = append(digits, raw[i])
		}
	}
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}
	return strings.TrimSpace(string(digits))
}
