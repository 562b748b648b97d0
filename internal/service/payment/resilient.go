package payment

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

// RetryConfig конфигурация вызовов шлюза.
type RetryConfig struct {
	// Timeout ограничивает одну попытку.
	Timeout time.Duration
	// Retries — число повторов create после временной ошибки.
	Retries      int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// BackoffFactor умножает задержку после каждой неудачной попытки.
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию: 10s на попытку и один повтор.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Timeout:       10 * time.Second,
		Retries:       1,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// ResilientGateway ограничивает вызовы шлюза по времени, повторяет временные сбои create
// и защищает шлюз circuit breaker'ом.
type ResilientGateway struct {
	next    domain.PaymentGateway
	config  RetryConfig
	breaker *CircuitBreaker
	logger  *log.Entry
	sleep   func(context.Context, time.Duration) error
}

// NewResilientGateway оборачивает шлюз. breaker может быть nil.
func NewResilientGateway(next domain.PaymentGateway, config RetryConfig, breaker *CircuitBreaker, logger *log.Entry) *ResilientGateway {
	if logger == nil {
		logger = log.WithField("component", "payment-gateway")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultRetryConfig().Timeout
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	if config.BackoffFactor < 1 {
		config.BackoffFactor = 1
	}
	return &ResilientGateway{
		next:    next,
		config:  config,
		breaker: breaker,
		logger:  logger,
		sleep:   sleepContext,
	}
}

// CreateTransaction создаёт транзакцию. Таймаут последней попытки превращается в
// ErrPaymentInitiationTimeout, прочие ошибки оборачиваются в ErrPaymentInitiation.
func (g *ResilientGateway) CreateTransaction(ctx context.Context, req domain.TransactionRequest) (domain.Transaction, error) {
	var (
		tx      domain.Transaction
		lastErr error
		delay   = g.config.InitialDelay
	)

	attempts := g.config.Retries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		err := g.call("create", func() error {
			attemptCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
			defer cancel()

			var err error
			tx, err = g.next.CreateTransaction(attemptCtx, req)
			if err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				err = fmt.Errorf("%w: %w", errAttemptTimeout, err)
			}
			return err
		})
		if err == nil {
			if attempt > 1 {
				g.logger.WithFields(log.Fields{
					"buy_order": req.BuyOrder,
					"attempt":   attempt,
				}).Info("payment transaction created after retry")
			}
			return tx, nil
		}
		lastErr = err

		if !isTransient(err) || attempt == attempts || ctx.Err() != nil {
			break
		}
		g.logger.WithFields(log.Fields{
			"buy_order": req.BuyOrder,
			"attempt":   attempt,
			"delay":     delay,
			"error":     err,
		}).Warn("payment transaction creation failed, retrying")

		if err := g.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
		delay = time.Duration(float64(delay) * g.config.BackoffFactor)
		if g.config.MaxDelay > 0 && delay > g.config.MaxDelay {
			delay = g.config.MaxDelay
		}
	}

	switch {
	case errors.Is(lastErr, errAttemptTimeout):
		return domain.Transaction{}, fmt.Errorf("%w: %w", domain.ErrPaymentInitiationTimeout, lastErr)
	case errors.Is(lastErr, domain.ErrPaymentInitiation):
		return domain.Transaction{}, lastErr
	default:
		return domain.Transaction{}, fmt.Errorf("%w: %w", domain.ErrPaymentInitiation, lastErr)
	}
}

// CommitTransaction подтверждает транзакцию одной попыткой с таймаутом:
// повтор commit может повторно списать или вернуть ответ «уже подтверждено».
func (g *ResilientGateway) CommitTransaction(ctx context.Context, token string) (domain.PaymentResult, error) {
	var result domain.PaymentResult
	err := g.call("commit", func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()

		var err error
		result, err = g.next.CommitTransaction(attemptCtx, token)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrPaymentConfirmation) {
			return domain.PaymentResult{}, err
		}
		return domain.PaymentResult{}, fmt.Errorf("%w: %w", domain.ErrPaymentConfirmation, err)
	}
	return result, nil
}

func (g *ResilientGateway) call(operation string, fn func() error) error {
	if g.breaker == nil {
		return fn()
	}
	return g.breaker.Execute(operation, fn, isTransient)
}

var errAttemptTimeout = errors.New("gateway attempt timed out")

// isTransient — таймауты, сетевые сбои и 5xx шлюза.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrGatewayUnavailable) {
		return false
	}
	if errors.Is(err, errAttemptTimeout) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrGatewayTemporary) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ domain.PaymentGateway = (*ResilientGateway)(nil)
