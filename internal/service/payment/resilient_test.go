package payment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

type scriptedGateway struct {
	createErrs []error
	commitErr  error
	block      bool
	creates    int
	commits    int
}

func (g *scriptedGateway) CreateTransaction(ctx context.Context, req domain.TransactionRequest) (domain.Transaction, error) {
	g.creates++
	if g.block {
		<-ctx.Done()
		return domain.Transaction{}, ctx.Err()
	}
	if len(g.createErrs) > 0 {
		err := g.createErrs[0]
		g.createErrs = g.createErrs[1:]
		if err != nil {
			return domain.Transaction{}, err
		}
	}
	return domain.Transaction{Token: "tok-" + req.BuyOrder, URL: "https://pay"}, nil
}

func (g *scriptedGateway) CommitTransaction(context.Context, string) (domain.PaymentResult, error) {
	g.commits++
	if g.commitErr != nil {
		return domain.PaymentResult{}, g.commitErr
	}
	return domain.PaymentResult{ResponseCode: domain.ResponseCodeApproved}, nil
}

func fastConfig() RetryConfig {
	return RetryConfig{Timeout: 20 * time.Millisecond, Retries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestResilientGateway_RetriesTransientOnce(t *testing.T) {
	inner := &scriptedGateway{createErrs: []error{fmt.Errorf("%w: 503", domain.ErrGatewayTemporary)}}
	gw := NewResilientGateway(inner, fastConfig(), nil, nil)
	gw.sleep = noSleep

	tx, err := gw.CreateTransaction(context.Background(), domain.TransactionRequest{BuyOrder: "EXO1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tx.Token != "tok-EXO1" || inner.creates != 2 {
		t.Fatalf("token=%q creates=%d", tx.Token, inner.creates)
	}
}

func TestResilientGateway_DoesNotRetryPermanentError(t *testing.T) {
	inner := &scriptedGateway{createErrs: []error{errors.New("invalid commerce code")}}
	gw := NewResilientGateway(inner, fastConfig(), nil, nil)
	gw.sleep = noSleep

	_, err := gw.CreateTransaction(context.Background(), domain.TransactionRequest{BuyOrder: "EXO1"})
	if !errors.Is(err, domain.ErrPaymentInitiation) {
		t.Fatalf("expected ErrPaymentInitiation, got %v", err)
	}
	if errors.Is(err, domain.ErrPaymentInitiationTimeout) {
		t.Fatal("permanent error must not look like a timeout")
	}
	if inner.creates != 1 {
		t.Fatalf("creates = %d, want 1", inner.creates)
	}
}

func TestResilientGateway_TimeoutIsDeterministic(t *testing.T) {
	inner := &scriptedGateway{block: true}
	gw := NewResilientGateway(inner, fastConfig(), nil, nil)
	gw.sleep = noSleep

	started := time.Now()
	_, err := gw.CreateTransaction(context.Background(), domain.TransactionRequest{BuyOrder: "EXO1"})
	if !errors.Is(err, domain.ErrPaymentInitiationTimeout) {
		t.Fatalf("expected ErrPaymentInitiationTimeout, got %v", err)
	}
	if domain.KindOf(err) != domain.KindGatewayTimeout {
		t.Fatalf("kind = %s", domain.KindOf(err))
	}
	if inner.creates != 2 {
		t.Fatalf("creates = %d, want 2 (one retry)", inner.creates)
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Fatalf("timeout took too long: %s", elapsed)
	}
}

func TestResilientGateway_CommitWrapsErrorsWithoutRetry(t *testing.T) {
	inner := &scriptedGateway{commitErr: fmt.Errorf("%w: 502", domain.ErrGatewayTemporary)}
	gw := NewResilientGateway(inner, fastConfig(), nil, nil)

	_, err := gw.CommitTransaction(context.Background(), "tok")
	if !errors.Is(err, domain.ErrPaymentConfirmation) {
		t.Fatalf("expected ErrPaymentConfirmation, got %v", err)
	}
	if inner.commits != 1 {
		t.Fatalf("commits = %d, want 1", inner.commits)
	}

	inner.commitErr = nil
	result, err := gw.CommitTransaction(context.Background(), "tok")
	if err != nil || !result.Approved() {
		t.Fatalf("unexpected commit result %+v err=%v", result, err)
	}
}

func TestResilientGateway_BreakerOpensAndShortCircuits(t *testing.T) {
	temporary := fmt.Errorf("%w: 500", domain.ErrGatewayTemporary)
	inner := &scriptedGateway{createErrs: []error{temporary, temporary, temporary, temporary}}
	breaker := NewCircuitBreaker(2, time.Hour, nil)
	gw := NewResilientGateway(inner, fastConfig(), breaker, nil)
	gw.sleep = noSleep

	if _, err := gw.CreateTransaction(context.Background(), domain.TransactionRequest{BuyOrder: "EXO1"}); err == nil {
		t.Fatal("expected failure")
	}
	if breaker.State() != CircuitOpen {
		t.Fatalf("breaker state = %s, want open", breaker.State())
	}

	_, err := gw.CreateTransaction(context.Background(), domain.TransactionRequest{BuyOrder: "EXO2"})
	if !errors.Is(err, domain.ErrGatewayUnavailable) || !errors.Is(err, domain.ErrPaymentInitiation) {
		t.Fatalf("expected unavailable initiation error, got %v", err)
	}
	if inner.creates != 2 {
		t.Fatalf("open breaker must not call the gateway, creates = %d", inner.creates)
	}
}
