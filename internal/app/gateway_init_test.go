package app

import (
	"context"
	"errors"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/exopet/internal/config"
	"github.com/vladislavdragonenkov/exopet/internal/domain"
	"github.com/vladislavdragonenkov/exopet/internal/service/payment/webpay"
)

func TestInitGateway_Mock(t *testing.T) {
	gateway, err := initGateway(testConfig(), log.WithField("test", "gateway-mock"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	created, err := gateway.CreateTransaction(context.Background(), domain.TransactionRequest{
		BuyOrder:  "EXO-20261018-0001",
		SessionID: "order-1",
		Amount:    12000,
		ReturnURL: "http://localhost:5173/checkout/return",
	})
	if err != nil {
		t.Fatalf("mock gateway should approve, got %v", err)
	}
	if created.Token == "" || created.URL == "" {
		t.Errorf("expected token and url, got %+v", created)
	}
}

func TestInitGateway_IntegrationUsesPublicCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.GatewayEnvironment = config.GatewayIntegration

	if _, err := initGateway(cfg, log.WithField("test", "gateway-integration")); err != nil {
		t.Fatalf("integration gateway should not require credentials: %v", err)
	}
}

func TestInitGateway_ProductionRequiresCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.GatewayEnvironment = config.GatewayProduction

	_, err := initGateway(cfg, log.WithField("test", "gateway-production"))
	if !errors.Is(err, webpay.ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestInitKafkaProducer_Disabled(t *testing.T) {
	producer := initKafkaProducer(testConfig(), log.WithField("test", "kafka-disabled"))
	if producer != nil {
		t.Fatal("producer should be nil without brokers")
	}

	// Не должно паниковать
	closeKafka(producer, log.WithField("test", "kafka-close"))
}
