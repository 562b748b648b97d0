// Package pgtest поднимает PostgreSQL для интеграционных тестов.
package pgtest

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// EnvDSN — переменная окружения с DSN уже запущенной тестовой базы.
const EnvDSN = "EXOPET_POSTGRES_TEST_DSN"

var (
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
)

// DSN возвращает строку подключения к тестовой базе.
// Без EXOPET_POSTGRES_TEST_DSN поднимается один контейнер на процесс; без Docker тест пропускается.
func DSN(t *testing.T) string {
	t.Helper()

	if dsn := strings.TrimSpace(os.Getenv(EnvDSN)); dsn != "" {
		return dsn
	}
	if testing.Short() {
		t.Skip("postgres integration tests are skipped in short mode")
	}

	testcontainers.SkipIfProviderIsNotHealthy(t)

	containerOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		container, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("exopet"),
			postgres.WithUsername("exopet"),
			postgres.WithPassword("exopet"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			containerErr = err
			return
		}
		containerDSN, containerErr = container.ConnectionString(ctx, "sslmode=disable")
	})

	if containerErr != nil {
		t.Skipf("postgres container is not available: %v", containerErr)
	}
	return containerDSN
}
