package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
	"github.com/vladislavdragonenkov/exopet/internal/service/orders"
)

type stockLineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

type addressRequest struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type checkoutRequest struct {
	Items           []stockLineRequest   `json:"items"`
	ShippingAddress addressRequest       `json:"shippingAddress"`
	Notes           string               `json:"notes"`
	PaymentMethod   domain.PaymentMethod `json:"paymentMethod"`
}

type confirmPaymentRequest struct {
	Token string `json:"token_ws"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type statusRequest struct {
	Status            string     `json:"status"`
	TrackingNumber    *string    `json:"trackingNumber"`
	Notes             *string    `json:"notes"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery"`
}

type stockCheckRequest struct {
	Items []stockLineRequest `json:"items"`
}

type productRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Image       *string `json:"image"`
	Price       *int64  `json:"price"`
	Stock       *int64  `json:"stock"`
	IsActive    *bool   `json:"isActive"`
}

func toStockLines(lines []stockLineRequest) []domain.StockLine {
	out := make([]domain.StockLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, domain.StockLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return out
}

func (a addressRequest) toDomain() domain.ShippingAddress {
	return domain.ShippingAddress{
		FirstName:  a.FirstName,
		LastName:   a.LastName,
		Email:      a.Email,
		Phone:      a.Phone,
		Address:    a.Address,
		City:       a.City,
		Region:     a.Region,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

// apply переносит заданные поля запроса на товар.
func (p productRequest) apply(product *domain.Product) {
	if p.Name != nil {
		product.Name = *p.Name
	}
	if p.Description != nil {
		product.Description = *p.Description
	}
	if p.Category != nil {
		product.Category = *p.Category
	}
	if p.Image != nil {
		product.Image = *p.Image
	}
	if p.Price != nil {
		product.Price = *p.Price
	}
	if p.Stock != nil {
		product.Stock = *p.Stock
	}
	if p.IsActive != nil {
		product.IsActive = *p.IsActive
	}
}

type orderItemResponse struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
	Image     string `json:"image,omitempty"`
	Total     int64  `json:"total"`
}

type addressResponse struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type paymentResponse struct {
	Method            domain.PaymentMethod `json:"method"`
	Status            domain.PaymentStatus `json:"status"`
	AuthorizationCode string               `json:"authorizationCode,omitempty"`
	CardBrand         string               `json:"cardBrand,omitempty"`
	CardNumber        string               `json:"cardNumber,omitempty"`
	Installments      int                  `json:"installments,omitempty"`
	TransactionDate   *time.Time           `json:"transactionDate,omitempty"`
	Amount            int64                `json:"amount"`
}

type orderResponse struct {
	ID                string              `json:"id"`
	OrderNumber       string              `json:"orderNumber"`
	UserID            string              `json:"userId,omitempty"`
	Items             []orderItemResponse `json:"items"`
	ShippingAddress   addressResponse     `json:"shippingAddress"`
	Payment           paymentResponse     `json:"payment"`
	Subtotal          int64               `json:"subtotal"`
	ShippingCost      int64               `json:"shippingCost"`
	Tax               int64               `json:"tax"`
	Total             int64               `json:"total"`
	TotalItems        int64               `json:"totalItems"`
	Status            domain.OrderStatus  `json:"status"`
	Notes             string              `json:"notes,omitempty"`
	TrackingNumber    string              `json:"trackingNumber,omitempty"`
	EstimatedDelivery *time.Time          `json:"estimatedDelivery,omitempty"`
	DeliveredAt       *time.Time          `json:"deliveredAt,omitempty"`
	CancelledAt       *time.Time          `json:"cancelledAt,omitempty"`
	CancelReason      string              `json:"cancelReason,omitempty"`
	RequiresReview    bool                `json:"requiresReview"`
	CreatedAt         time.Time           `json:"createdAt"`
	UpdatedAt         time.Time           `json:"updatedAt"`
}

func toOrderResponse(o domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.UnitPrice,
			Quantity:  item.Quantity,
			Image:     item.Image,
			Total:     item.LineTotal(),
		})
	}
	a := o.ShippingAddress
	return orderResponse{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Items:       items,
		ShippingAddress: addressResponse{
			FirstName:  a.FirstName,
			LastName:   a.LastName,
			Email:      a.Email,
			Phone:      a.Phone,
			Address:    a.Address,
			City:       a.City,
			Region:     a.Region,
			PostalCode: a.PostalCode,
			Country:    a.Country,
		},
		Payment: paymentResponse{
			Method:            o.Payment.Method,
			Status:            o.Payment.Status,
			AuthorizationCode: o.Payment.AuthorizationCode,
			CardBrand:         o.Payment.CardBrand,
			CardNumber:        o.Payment.MaskedCardNumber,
			Installments:      o.Payment.InstallmentCount,
			TransactionDate:   o.Payment.TransactionAt,
			Amount:            o.Payment.Amount,
		},
		Subtotal:          o.Subtotal,
		ShippingCost:      o.ShippingCost,
		Tax:               o.Tax,
		Total:             o.Total,
		TotalItems:        o.TotalItems(),
		Status:            o.Status,
		Notes:             o.Notes,
		TrackingNumber:    o.TrackingNumber,
		EstimatedDelivery: o.EstimatedDelivery,
		DeliveredAt:       o.DeliveredAt,
		CancelledAt:       o.CancelledAt,
		CancelReason:      o.CancelReason,
		RequiresReview:    o.RequiresReview,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

func toOrderResponses(list []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderResponse(o))
	}
	return out
}

type checkoutOrderResponse struct {
	ID          string `json:"id"`
	OrderNumber string `json:"orderNumber"`
	Total       int64  `json:"total"`
}

type checkoutPaymentResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

type checkoutResponse struct {
	Order   checkoutOrderResponse   `json:"order"`
	Payment checkoutPaymentResponse `json:"payment"`
}

func toCheckoutResponse(result orders.CheckoutResult) checkoutResponse {
	return checkoutResponse{
		Order: checkoutOrderResponse{
			ID:          result.Order.ID,
			OrderNumber: result.Order.OrderNumber,
			Total:       result.Order.Total,
		},
		Payment: checkoutPaymentResponse{Token: result.Payment.Token, URL: result.Payment.URL},
	}
}

type summaryOrderResponse struct {
	ID             string             `json:"id"`
	OrderNumber    string             `json:"orderNumber"`
	Status         domain.OrderStatus `json:"status"`
	Total          int64              `json:"total"`
	RequiresReview bool               `json:"requiresReview"`
}

type summaryPaymentResponse struct {
	Status            domain.PaymentStatus `json:"status"`
	AuthorizationCode string               `json:"authorizationCode,omitempty"`
	CardNumber        string               `json:"cardNumber,omitempty"`
	TransactionDate   *time.Time           `json:"transactionDate,omitempty"`
}

type paymentSummaryResponse struct {
	Order   summaryOrderResponse   `json:"order"`
	Payment summaryPaymentResponse `json:"payment"`
}

func toPaymentSummaryResponse(s orders.PaymentSummary) paymentSummaryResponse {
	return paymentSummaryResponse{
		Order: summaryOrderResponse{
			ID:             s.OrderID,
			OrderNumber:    s.OrderNumber,
			Status:         s.Status,
			Total:          s.Total,
			RequiresReview: s.RequiresReview,
		},
		Payment: summaryPaymentResponse{
			Status:            s.PaymentStatus,
			AuthorizationCode: s.AuthorizationCode,
			CardNumber:        s.MaskedCardNumber,
			TransactionDate:   s.TransactionAt,
		},
	}
}

type paginationResponse struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalOrders int  `json:"totalOrders"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

type orderListResponse struct {
	Orders     []orderResponse    `json:"orders"`
	Pagination paginationResponse `json:"pagination"`
}

func toOrderListResponse(page domain.OrderPage, p domain.Page) orderListResponse {
	totalPages := orders.TotalPages(page.Total, p.Limit)
	return orderListResponse{
		Orders: toOrderResponses(page.Orders),
		Pagination: paginationResponse{
			CurrentPage: p.Number,
			TotalPages:  totalPages,
			TotalOrders: page.Total,
			HasNextPage: p.Number < totalPages,
			HasPrevPage: p.Number > 1,
		},
	}
}

type statusStatResponse struct {
	Status      domain.OrderStatus `json:"status"`
	Count       int                `json:"count"`
	TotalAmount int64              `json:"totalAmount"`
}

type statsResponse struct {
	TotalOrders     int                  `json:"totalOrders"`
	TotalRevenue    int64                `json:"totalRevenue"`
	StatusBreakdown []statusStatResponse `json:"statusBreakdown"`
}

func toStatsResponse(stats domain.OrderStats) statsResponse {
	breakdown := make([]statusStatResponse, 0, len(stats.StatusBreakdown))
	for _, s := range stats.StatusBreakdown {
		breakdown = append(breakdown, statusStatResponse{Status: s.Status, Count: s.Count, TotalAmount: s.TotalAmount})
	}
	return statsResponse{
		TotalOrders:     stats.TotalOrders,
		TotalRevenue:    stats.TotalRevenue,
		StatusBreakdown: breakdown,
	}
}

type timelineEventResponse struct {
	Type       string    `json:"type"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func toTimelineResponse(events []domain.TimelineEvent) []timelineEventResponse {
	out := make([]timelineEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, timelineEventResponse{Type: e.Type, Reason: e.Reason, OccurredAt: e.Occurred})
	}
	return out
}

type productResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Image       string    `json:"image,omitempty"`
	Price       int64     `json:"price"`
	Stock       int64     `json:"stock"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Image:       p.Image,
		Price:       p.Price,
		Stock:       p.Stock,
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
