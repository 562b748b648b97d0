package app

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/exopet/internal/config"
)

// testConfig — рабочая конфигурация без внешних зависимостей.
func testConfig() config.Config {
	return config.Config{
		HTTPAddr:                   "127.0.0.1:0",
		MetricsAddr:                "127.0.0.1:0",
		StorageDriver:              config.StorageDriverMemory,
		SequenceDriver:             config.SequenceDriverAuto,
		FreeShippingThreshold:      50000,
		ShippingFee:                5000,
		TaxRate:                    "0.19",
		OrderNumberPrefix:          "EXO",
		OrderTimezone:              "UTC",
		GatewayEnvironment:         config.GatewayMock,
		GatewayTimeout:             time.Second,
		FrontendURL:                "http://localhost:5173",
		KafkaTopic:                 "exopet.order.events",
		KafkaDLQTopic:              "exopet.dlq",
		OutboxPollInterval:         50 * time.Millisecond,
		OutboxBatchSize:            10,
		OutboxMaxAttempts:          3,
		IdempotencyTTL:             time.Hour,
		IdempotencyCleanupInterval: time.Minute,
	}
}

func findFreePort(t *testing.T) int {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	defer lis.Close()
	return lis.Addr().(*net.TCPAddr).Port
}

func localAddr(port int) string {
	return fmt.Sprintf("127.0.0.1:%d", port)
}
