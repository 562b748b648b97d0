package webpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
	"github.com/vladislavdragonenkov/exopet/internal/version"
)

// Environment — окружение Transbank.
type Environment string

const (
	EnvironmentIntegration Environment = "integration"
	EnvironmentProduction  Environment = "production"
)

const (
	IntegrationBaseURL = "https://webpay3gint.transbank.cl"
	ProductionBaseURL  = "https://webpay3g.transbank.cl"

	// Публичные учётные данные тестовой среды Webpay Plus.
	IntegrationCommerceCode = "597055555532"
	IntegrationAPIKey       = "579B532A7440BB0C9079DED94D31EA1615BACEB56610332264630D42D0A36B1C"

	transactionsPath = "/rswebpaytransaction/api/webpay/v1.2/transactions"
	maxErrorBody     = 4096
)

// ErrMissingCredentials — продакшен без кода коммерции или ключа.
var ErrMissingCredentials = errors.New("webpay production requires commerce code and api key")

// Options — параметры клиента.
type Options struct {
	Environment  Environment
	CommerceCode string
	APIKey       string
	// BaseURL переопределяет адрес API (тесты, прокси).
	BaseURL    string
	HTTPClient *http.Client
	Logger     *log.Entry
}

// Client — REST-клиент Webpay Plus: create → commit.
type Client struct {
	baseURL      string
	commerceCode string
	apiKey       string
	http         *http.Client
	log          *log.Entry
}

// NewClient создаёт клиента для выбранного окружения.
func NewClient(opts Options) (*Client, error) {
	env := opts.Environment
	if env == "" {
		env = EnvironmentIntegration
	}

	baseURL, code, key := opts.BaseURL, opts.CommerceCode, opts.APIKey
	switch env {
	case EnvironmentIntegration:
		if baseURL == "" {
			baseURL = IntegrationBaseURL
		}
		if code == "" || key == "" {
			code, key = IntegrationCommerceCode, IntegrationAPIKey
		}
	case EnvironmentProduction:
		if baseURL == "" {
			baseURL = ProductionBaseURL
		}
		if code == "" || key == "" {
			return nil, ErrMissingCredentials
		}
	default:
		return nil, fmt.Errorf("unknown webpay environment %q", env)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "webpay")
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		commerceCode: code,
		apiKey:       key,
		http:         httpClient,
		log:          logger.WithField("environment", string(env)),
	}, nil
}

type createRequest struct {
	BuyOrder  string `json:"buy_order"`
	SessionID string `json:"session_id"`
	Amount    int64  `json:"amount"`
	ReturnURL string `json:"return_url"`
}

type createResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

type commitResponse struct {
	VCI        string `json:"vci"`
	Amount     int64  `json:"amount"`
	Status     string `json:"status"`
	BuyOrder   string `json:"buy_order"`
	SessionID  string `json:"session_id"`
	CardDetail struct {
		CardNumber string `json:"card_number"`
	} `json:"card_detail"`
	TransactionDate    string `json:"transaction_date"`
	AuthorizationCode  string `json:"authorization_code"`
	PaymentTypeCode    string `json:"payment_type_code"`
	ResponseCode       int    `json:"response_code"`
	InstallmentsNumber int    `json:"installments_number"`
}

type errorResponse struct {
	ErrorMessage string `json:"error_message"`
}

// CreateTransaction создаёт транзакцию и возвращает токен и адрес формы оплаты.
func (c *Client) CreateTransaction(ctx context.Context, req domain.TransactionRequest) (domain.Transaction, error) {
	var resp createResponse
	err := c.do(ctx, http.MethodPost, transactionsPath, createRequest{
		BuyOrder:  req.BuyOrder,
		SessionID: req.SessionID,
		Amount:    req.Amount,
		ReturnURL: req.ReturnURL,
	}, &resp)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("webpay create transaction: %w", err)
	}
	if resp.Token == "" {
		return domain.Transaction{}, errors.New("webpay create transaction: empty token")
	}
	c.log.WithField("buy_order", req.BuyOrder).Debug("webpay transaction created")
	return domain.Transaction{Token: resp.Token, URL: resp.URL}, nil
}

// CommitTransaction подтверждает транзакцию по токену.
func (c *Client) CommitTransaction(ctx context.Context, token string) (domain.PaymentResult, error) {
	var resp commitResponse
	if err := c.do(ctx, http.MethodPut, transactionsPath+"/"+token, nil, &resp); err != nil {
		return domain.PaymentResult{}, fmt.Errorf("webpay commit transaction: %w", err)
	}
	return domain.PaymentResult{
		ResponseCode:      resp.ResponseCode,
		AuthorizationCode: resp.AuthorizationCode,
		CardBrand:         cardBrand(resp.PaymentTypeCode),
		CardNumber:        resp.CardDetail.CardNumber,
		InstallmentCount:  resp.InstallmentsNumber,
		Amount:            resp.Amount,
		BuyOrder:          resp.BuyOrder,
		Status:            resp.Status,
	}, nil
}

// cardBrand: VD — Redcompra (дебет), остальные коды — кредитные карты.
func cardBrand(paymentTypeCode string) string {
	if paymentTypeCode == "VD" {
		return "debit"
	}
	return "credit"
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Tbk-Api-Key-Id", c.commerceCode)
	req.Header.Set("Tbk-Api-Key-Secret", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrGatewayTemporary, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var apiErr errorResponse
		message := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.ErrorMessage != "" {
			message = apiErr.ErrorMessage
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: status %d: %s", domain.ErrGatewayTemporary, resp.StatusCode, message)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, message)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ domain.PaymentGateway = (*Client)(nil)
