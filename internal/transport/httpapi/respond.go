package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
	"github.com/vladislavdragonenkov/exopet/internal/service/orders"
)

const internalErrorMessage = "internal error"

// errorStatusMap — единственная таблица соответствия классов ошибок HTTP-статусам.
var errorStatusMap = map[domain.ErrorKind]int{
	domain.KindValidation:      http.StatusBadRequest,
	domain.KindAvailability:    http.StatusBadRequest,
	domain.KindNotCancellable:  http.StatusBadRequest,
	domain.KindNotFound:        http.StatusNotFound,
	domain.KindUnauthenticated: http.StatusUnauthorized,
	domain.KindForbidden:       http.StatusForbidden,
	domain.KindConflict:        http.StatusConflict,
	domain.KindGateway:         http.StatusInternalServerError,
	domain.KindGatewayTimeout:  http.StatusGatewayTimeout,
	domain.KindInternal:        http.StatusInternalServerError,
}

// gatewayMessages — публичные сообщения об ошибках шлюза; детали ответа шлюза наружу не уходят.
var gatewayMessages = []error{
	domain.ErrPaymentInitiationTimeout,
	domain.ErrPaymentInitiation,
	domain.ErrPaymentConfirmation,
	domain.ErrGatewayUnavailable,
}

type successEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

type errorBody struct {
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
	Details any              `json:"details,omitempty"`
}

type availabilityDetail struct {
	ProductID string `json:"productId"`
	Name      string `json:"name,omitempty"`
	Requested int64  `json:"requested"`
	Available int64  `json:"available"`
}

type fieldDetail struct {
	Field string `json:"field"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, successEnvelope{Success: true, Data: data})
}

func writeErrorBody(w http.ResponseWriter, code int, body errorBody) {
	writeJSON(w, code, errorEnvelope{Success: false, Error: body})
}

// writeError классифицирует ошибку ядра и пишет ответ с соответствующим статусом.
func writeError(w http.ResponseWriter, logger *log.Entry, err error) {
	kind := domain.KindOf(err)
	status, ok := errorStatusMap[kind]
	if !ok {
		kind = domain.KindInternal
		status = http.StatusInternalServerError
	}

	body := errorBody{Kind: kind, Message: publicMessage(kind, err), Details: errorDetails(kind, err)}
	if status >= http.StatusInternalServerError {
		logger.WithError(err).WithField("kind", kind).Error("request failed")
	}
	writeErrorBody(w, status, body)
}

func publicMessage(kind domain.ErrorKind, err error) string {
	switch kind {
	case domain.KindInternal:
		return internalErrorMessage
	case domain.KindGateway, domain.KindGatewayTimeout:
		for _, sentinel := range gatewayMessages {
			if errors.Is(err, sentinel) {
				return sentinel.Error()
			}
		}
		return "payment gateway error"
	case domain.KindAvailability:
		return "some products are not available in the requested quantity"
	default:
		return err.Error()
	}
}

func errorDetails(kind domain.ErrorKind, err error) any {
	switch kind {
	case domain.KindAvailability:
		items := orders.AvailabilityDetails(err)
		out := make([]availabilityDetail, 0, len(items))
		for _, item := range items {
			out = append(out, availabilityDetail{
				ProductID: item.ProductID,
				Name:      item.Name,
				Requested: item.Requested,
				Available: item.Available,
			})
		}
		return out
	case domain.KindValidation:
		var verr *domain.ValidationError
		if errors.As(err, &verr) && verr.Field != "" {
			return fieldDetail{Field: verr.Field}
		}
	}
	return nil
}
