package app

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/exopet/internal/config"
	"github.com/vladislavdragonenkov/exopet/internal/domain"
	"github.com/vladislavdragonenkov/exopet/internal/service/payment"
	"github.com/vladislavdragonenkov/exopet/internal/service/payment/webpay"
)

const (
	breakerMaxFailures  = 5
	breakerResetTimeout = 30 * time.Second
)

// initGateway выбирает шлюз по TRANSBANK_ENVIRONMENT и оборачивает его таймаутом,
// повтором и circuit breaker'ом.
func initGateway(cfg config.Config, logger *log.Entry) (domain.PaymentGateway, error) {
	var base domain.PaymentGateway
	switch cfg.GatewayEnvironment {
	case config.GatewayMock:
		logger.Warn("payment gateway runs in mock mode, every transaction is approved")
		base = payment.NewMockGateway()
	default:
		client, err := webpay.NewClient(webpay.Options{
			Environment:  webpay.Environment(cfg.GatewayEnvironment),
			CommerceCode: cfg.CommerceCode,
			APIKey:       cfg.APIKey,
			Logger:       logger.WithField("component", "webpay"),
		})
		if err != nil {
			return nil, fmt.Errorf("init webpay client: %w", err)
		}
		base = client
	}

	retry := payment.DefaultRetryConfig()
	retry.Timeout = cfg.GatewayTimeout
	retry.Retries = cfg.GatewayRetries

	breaker := payment.NewCircuitBreaker(breakerMaxFailures, breakerResetTimeout, logger.WithField("component", "payment-breaker"))
	logger.WithFields(log.Fields{
		"environment": cfg.GatewayEnvironment,
		"timeout":     retry.Timeout,
		"retries":     retry.Retries,
	}).Info("payment gateway initialized")
	return payment.NewResilientGateway(base, retry, breaker, logger.WithField("component", "payment-gateway")), nil
}
