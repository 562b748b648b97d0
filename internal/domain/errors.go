package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation — базовая ошибка валидации входных данных.
	ErrValidation = errors.New("validation failed")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка превышения количества позиций в одном заказе.
	ErrTooManyItems = errors.New("order contains too many items")
	// Ошибка при некорректном количестве товара (<= 0 или выше лимита).
	ErrItemQtyInvalid = errors.New("item quantity is invalid")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия итоговых сумм заказа и позиций.
	ErrAmountMismatch = errors.New("order totals do not match items")
	// Ошибка отсутствующего номера заказа.
	ErrOrderNumberRequired = errors.New("order number is required")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order id is required")
	// Ошибка отсутствующего идентификатора товара.
	ErrProductIDRequired = errors.New("product id is required")
	// ErrUnknownStatus — статус заказа не входит в жизненный цикл.
	ErrUnknownStatus = errors.New("unknown order status")
	// ErrTokenRequired — в запросе подтверждения оплаты нет токена транзакции.
	ErrTokenRequired = errors.New("transaction token is required")

	// ErrInsufficientStock — на складе меньше единиц, чем запрошено.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStockQuantityInvalid — изменение остатка на неположительное количество.
	ErrStockQuantityInvalid = errors.New("stock quantity must be greater than zero")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound возвращается, если товар не найден или снят с продажи.
	ErrProductNotFound = errors.New("product not found")

	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOrderNumberConflict — номер заказа уже занят (нарушение уникальности).
	ErrOrderNumberConflict = errors.New("order number already exists")
	// ErrOrderNotCancellable — заказ в текущем статусе нельзя отменить.
	ErrOrderNotCancellable = errors.New("order cannot be cancelled")
	// ErrInvalidStatusTransition — запрошенный переход статуса запрещён.
	ErrInvalidStatusTransition = errors.New("invalid order status transition")

	// ErrPaymentInitiation — не удалось создать транзакцию у платёжного шлюза.
	ErrPaymentInitiation = errors.New("payment initiation failed")
	// ErrPaymentInitiationTimeout — шлюз не ответил за отведённое время.
	ErrPaymentInitiationTimeout = errors.New("payment initiation timed out")
	// ErrPaymentConfirmation — не удалось подтвердить транзакцию (commit).
	ErrPaymentConfirmation = errors.New("payment confirmation failed")
	// ErrGatewayTemporary — временная ошибка шлюза, запрос можно повторить.
	ErrGatewayTemporary = errors.New("payment gateway temporary error")
	// ErrGatewayUnavailable — circuit breaker разомкнут, шлюз не вызывается.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrUnauthenticated — запрос без валидного токена.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden — у актора нет прав на операцию.
	ErrForbidden = errors.New("forbidden")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой hash запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже использован.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound — запись по ключу отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// ValidationError описывает ошибку конкретного поля запроса.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError создаёт ошибку валидации поля.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap позволяет матчить ошибку и через ErrValidation, и через исходную причину.
func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}
	return []error{ErrValidation}
}

// AvailabilityError описывает позицию, которую нельзя продать в запрошенном количестве.
type AvailabilityError struct {
	ProductID string
	Name      string
	Requested int64
	Available int64
}

func (e *AvailabilityError) Error() string {
	label := e.Name
	if label == "" {
		label = e.ProductID
	}
	return fmt.Sprintf("product %s is unavailable: requested %d, available %d", label, e.Requested, e.Available)
}

func (e *AvailabilityError) Unwrap() error {
	return ErrInsufficientStock
}

// ErrorKind классифицирует ошибки ядра для транспортного слоя.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindAvailability    ErrorKind = "availability"
	KindNotCancellable  ErrorKind = "not_cancellable"
	KindNotFound        ErrorKind = "not_found"
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindForbidden       ErrorKind = "forbidden"
	KindConflict        ErrorKind = "conflict"
	KindGateway         ErrorKind = "gateway"
	KindGatewayTimeout  ErrorKind = "gateway_timeout"
	KindInternal        ErrorKind = "internal"
)

var kindBySentinel = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInsufficientStock, KindAvailability},
	{ErrOrderNotCancellable, KindNotCancellable},
	{ErrValidation, KindValidation},
	{ErrItemsRequired, KindValidation},
	{ErrTooManyItems, KindValidation},
	{ErrItemQtyInvalid, KindValidation},
	{ErrItemPriceInvalid, KindValidation},
	{ErrProductIDRequired, KindValidation},
	{ErrOrderIDRequired, KindValidation},
	{ErrUnknownStatus, KindValidation},
	{ErrTokenRequired, KindValidation},
	{ErrInvalidStatusTransition, KindValidation},
	{ErrStockQuantityInvalid, KindValidation},
	{ErrOrderNotFound, KindNotFound},
	{ErrProductNotFound, KindNotFound},
	{ErrUnauthenticated, KindUnauthenticated},
	{ErrForbidden, KindForbidden},
	{ErrOrderVersionConflict, KindConflict},
	{ErrOrderNumberConflict, KindConflict},
	{ErrIdempotencyKeyAlreadyExists, KindConflict},
	{ErrIdempotencyHashMismatch, KindConflict},
	{ErrPaymentInitiationTimeout, KindGatewayTimeout},
	{ErrPaymentInitiation, KindGateway},
	{ErrPaymentConfirmation, KindGateway},
	{ErrGatewayUnavailable, KindGateway},
	{ErrGatewayTemporary, KindGateway},
}

// KindOf возвращает класс ошибки; неизвестные ошибки считаются внутренними.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, entry := range kindBySentinel {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindInternal
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsIdempotencyConflict проверяет, связана ли ошибка с повторным использованием ключа.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
