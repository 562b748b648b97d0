package domain

import (
	"fmt"
	"strings"
	"time"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, оплата ещё не подтверждена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — шлюз подтвердил оплату, сток списан.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing — заказ собирается на складе.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ доставлен (терминальный статус).
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён (терминальный статус).
	OrderStatusCancelled OrderStatus = "cancelled"
)

// CancelReasonPaymentRejected записывается при отказе шлюза.
const CancelReasonPaymentRejected = "payment rejected"

var statusRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusConfirmed:  1,
	OrderStatusProcessing: 2,
	OrderStatusShipped:    3,
	OrderStatusDelivered:  4,
}

// ParseOrderStatus проверяет строковое значение статуса.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	return status, nil
}

// Valid сообщает, входит ли статус в жизненный цикл.
func (s OrderStatus) Valid() bool {
	if s == OrderStatusCancelled {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// Terminal сообщает, что из статуса нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// AllOrderStatuses перечисляет статусы в порядке жизненного цикла.
func AllOrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusConfirmed,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled,
	}
}

// OrderItem — неизменяемый снимок товара на момент оформления.
type OrderItem struct {
	ID        string
	ProductID string
	Name      string
	// UnitPrice — цена за единицу в минимальных денежных единицах (для CLP — песо).
	UnitPrice int64
	Quantity  int64
	Image     string
	// StockDecremented взводится, когда остаток по строке списан после оплаты.
	StockDecremented bool
}

// LineTotal возвращает стоимость позиции.
func (i OrderItem) LineTotal() int64 {
	return i.UnitPrice * i.Quantity
}

// Order агрегирует состояние заказа, его позиции и платёж.
type Order struct {
	ID          string
	OrderNumber string
	// UserID пустой для гостевого заказа.
	UserID          string
	Items           []OrderItem
	ShippingAddress ShippingAddress
	Payment         PaymentInfo

	Subtotal     int64
	ShippingCost int64
	Tax          int64
	Total        int64

	Status            OrderStatus
	Notes             string
	TrackingNumber    string
	EstimatedDelivery *time.Time
	DeliveredAt       *time.Time
	CancelledAt       *time.Time
	CancelReason      string
	// RequiresReview выставляется, когда после подтверждения оплаты не удалось списать сток.
	RequiresReview bool

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone возвращает копию заказа без общих слайсов и указателей.
func (o Order) Clone() Order {
	dst := o
	dst.Items = append([]OrderItem(nil), o.Items...)
	dst.EstimatedDelivery = cloneTime(o.EstimatedDelivery)
	dst.DeliveredAt = cloneTime(o.DeliveredAt)
	dst.CancelledAt = cloneTime(o.CancelledAt)
	dst.Payment.TransactionAt = cloneTime(o.Payment.TransactionAt)
	return dst
}

// DecrementedItems возвращает строки, остаток по которым был списан.
func (o *Order) DecrementedItems() []OrderItem {
	var items []OrderItem
	for _, item := range o.Items {
		if item.StockDecremented {
			items = append(items, item)
		}
	}
	return items
}

// IsGuest сообщает, что заказ оформлен без авторизации.
func (o *Order) IsGuest() bool {
	return o.UserID == ""
}

// IsPaid сообщает, что шлюз подтвердил оплату.
func (o *Order) IsPaid() bool {
	return o.Payment.Status == PaymentStatusApproved
}

// TotalItems возвращает суммарное количество единиц в заказе.
func (o *Order) TotalItems() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}

// CanBeCancelled — отмена разрешена только из pending и confirmed.
func (o *Order) CanBeCancelled() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

// Cancel переводит заказ в cancelled. Возвращает false, если отмена недопустима.
func (o *Order) Cancel(reason string, now time.Time) bool {
	if !o.CanBeCancelled() {
		return false
	}
	o.Status = OrderStatusCancelled
	o.CancelledAt = &now
	o.CancelReason = strings.TrimSpace(reason)
	o.UpdatedAt = now
	return true
}

// MarkDelivered отмечает доставку из любого нетерминального статуса.
func (o *Order) MarkDelivered(now time.Time) bool {
	if o.Status.Terminal() {
		return false
	}
	o.Status = OrderStatusDelivered
	o.DeliveredAt = &now
	o.UpdatedAt = now
	return true
}

// AdvanceTo выполняет административный переход в processing или shipped.
// Переход возможен только вперёд и только после подтверждения оплаты.
func (o *Order) AdvanceTo(target OrderStatus, now time.Time) error {
	if o.Status.Terminal() {
		return fmt.Errorf("%w: order is %s", ErrInvalidStatusTransition, o.Status)
	}
	switch target {
	case OrderStatusProcessing, OrderStatusShipped:
	default:
		return fmt.Errorf("%w: %s cannot be set directly", ErrInvalidStatusTransition, target)
	}
	if o.Status == OrderStatusPending {
		return fmt.Errorf("%w: order payment is not confirmed", ErrInvalidStatusTransition)
	}
	if o.Status == target {
		return nil
	}
	if statusRank[target] < statusRank[o.Status] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, o.Status, target)
	}
	o.Status = target
	o.UpdatedAt = now
	return nil
}

// ApplyPaymentResult переносит результат commit на заказ.
// Одобренный платёж подтверждает заказ, любой другой отменяет его.
func (o *Order) ApplyPaymentResult(result PaymentResult, now time.Time) {
	o.Payment.AuthorizationCode = result.AuthorizationCode
	o.Payment.CardBrand = result.CardBrand
	o.Payment.MaskedCardNumber = MaskCardNumber(result.CardNumber)
	o.Payment.InstallmentCount = result.InstallmentCount
	transactionAt := now
	o.Payment.TransactionAt = &transactionAt

	if result.Approved() {
		o.Payment.Status = PaymentStatusApproved
		o.Status = OrderStatusConfirmed
	} else {
		o.Payment.Status = PaymentStatusRejected
		o.Status = OrderStatusCancelled
		o.CancelReason = CancelReasonPaymentRejected
		o.CancelledAt = &transactionAt
	}
	o.UpdatedAt = now
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.OrderNumber == "" {
		errs = append(errs, ErrOrderNumberRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrUnknownStatus)
	}

	// Сверяем subtotal с суммой позиций, total с его слагаемыми.
	var calc int64
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPrice < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += item.LineTotal()
	}
	if calc != o.Subtotal || o.Subtotal+o.ShippingCost+o.Tax != o.Total {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
