package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/exopet/internal/auth"
	"github.com/vladislavdragonenkov/exopet/internal/domain"
	"github.com/vladislavdragonenkov/exopet/internal/service/orders"
)

const dateLayout = "2006-01-02"

func (h *handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.orders.Checkout(r.Context(), auth.ActorFrom(r.Context()), orders.CheckoutRequest{
		Items:           toStockLines(req.Items),
		ShippingAddress: req.ShippingAddress.toDomain(),
		Notes:           req.Notes,
		Method:          req.PaymentMethod,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, toCheckoutResponse(result))
}

func (h *handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		writeError(w, h.logger, err)
		return
	}

	summary, err := h.orders.ConfirmPayment(r.Context(), req.Token)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, toPaymentSummaryResponse(summary))
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.Context(), auth.ActorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, toOrderResponse(order))
}

func (h *handler) timeline(w http.ResponseWriter, r *http.Request) {
	events, err := h.orders.Timeline(r.Context(), auth.ActorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, toTimelineResponse(events))
}

func (h *handler) myOrders(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r.URL.Query())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	list, normalized, err := h.orders.ListMine(r.Context(), auth.ActorFrom(r.Context()), page)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, toOrderListResponse(list, normalized))
}

func (h *handler) listOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := parseOrderFilter(r.URL.Query())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	list, normalized, err := h.orders.List(r.Context(), auth.ActorFrom(r.Context()), filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, toOrderListResponse(list, normalized))
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orders.Stats(r.Context(), auth.ActorFrom(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, toStatsResponse(stats))
}

func (h *handler) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		writeError(w, h.logger, err)
		return
	}

	order, err := h.orders.Cancel(r.Context(), auth.ActorFrom(r.Context()), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, toOrderResponse(order))
}

func (h *handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, h.logger, err)
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), auth.ActorFrom(r.Context()), chi.URLParam(r, "id"), orders.StatusUpdate{
		Status:            domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		TrackingNumber:    req.TrackingNumber,
		Notes:             req.Notes,
		EstimatedDelivery: req.EstimatedDelivery,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, toOrderResponse(order))
}

// decodeBody читает JSON-тело запроса. Неизвестные поля игнорируются.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && allowEmpty:
		return nil
	case errors.Is(err, io.EOF):
		return domain.NewValidationError("body", "request body is required")
	default:
		return &domain.ValidationError{Field: "body", Message: "invalid JSON body", Err: err}
	}
}

func parsePage(q url.Values) (domain.Page, error) {
	number, err := parseIntParam(q, "page")
	if err != nil {
		return domain.Page{}, err
	}
	limit, err := parseIntParam(q, "limit")
	if err != nil {
		return domain.Page{}, err
	}
	return domain.Page{Number: number, Limit: limit}, nil
}

func parseIntParam(q url.Values, name string) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, domain.NewValidationError(name, "must be a positive integer")
	}
	return value, nil
}

func parseOrderFilter(q url.Values) (domain.OrderFilter, error) {
	page, err := parsePage(q)
	if err != nil {
		return domain.OrderFilter{}, err
	}
	filter := domain.OrderFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Page:   page,
	}

	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, err := domain.ParseOrderStatus(raw)
		if err != nil {
			return domain.OrderFilter{}, &domain.ValidationError{Field: "status", Message: err.Error(), Err: err}
		}
		filter.Status = status
	}
	if filter.From, err = parseDateParam(q, "startDate", false); err != nil {
		return domain.OrderFilter{}, err
	}
	if filter.To, err = parseDateParam(q, "endDate", true); err != nil {
		return domain.OrderFilter{}, err
	}
	return filter, nil
}

// parseDateParam принимает RFC3339 или YYYY-MM-DD. Дата без времени в endOfDay
// означает весь указанный день включительно.
func parseDateParam(q url.Values, name string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, domain.NewValidationError(name, "must be RFC3339 or YYYY-MM-DD")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
