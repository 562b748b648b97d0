package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/govalues/decimal"
	"github.com/joho/godotenv"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

// Драйверы хранилища и счётчика номеров заказов.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	SequenceDriverAuto  = "auto"
	SequenceDriverRedis = "redis"
)

// Окружения платёжного шлюза.
const (
	GatewayIntegration = "integration"
	GatewayProduction  = "production"
	GatewayMock        = "mock"
)

const returnPath = "/checkout/return"

// Config описывает настройки запуска сервиса. Значения читаются из окружения.
type Config struct {
	HTTPAddr    string `env:"EXOPET_HTTP_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"EXOPET_METRICS_ADDR" envDefault:":9090"`

	StorageDriver       string `env:"EXOPET_STORAGE_DRIVER" envDefault:"memory"`
	PostgresDSN         string `env:"EXOPET_POSTGRES_DSN"`
	PostgresAutoMigrate bool   `env:"EXOPET_POSTGRES_AUTO_MIGRATE" envDefault:"true"`
	SequenceDriver      string `env:"EXOPET_SEQUENCE_DRIVER" envDefault:"auto"`
	RedisAddr           string `env:"EXOPET_REDIS_ADDR"`

	FreeShippingThreshold int64  `env:"EXOPET_FREE_SHIPPING_THRESHOLD" envDefault:"50000"`
	ShippingFee           int64  `env:"EXOPET_SHIPPING_FEE" envDefault:"5000"`
	TaxRate               string `env:"EXOPET_TAX_RATE" envDefault:"0.19"`
	OrderNumberPrefix     string `env:"EXOPET_ORDER_NUMBER_PREFIX" envDefault:"EXO"`
	OrderTimezone         string `env:"EXOPET_ORDER_TIMEZONE" envDefault:"UTC"`

	GatewayEnvironment string        `env:"TRANSBANK_ENVIRONMENT" envDefault:"integration"`
	CommerceCode       string        `env:"TRANSBANK_COMMERCE_CODE"`
	APIKey             string        `env:"TRANSBANK_API_KEY"`
	GatewayTimeout     time.Duration `env:"EXOPET_GATEWAY_TIMEOUT" envDefault:"10s"`
	GatewayRetries     int           `env:"EXOPET_GATEWAY_RETRIES" envDefault:"1"`
	FrontendURL        string        `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`

	TokenKey string `env:"EXOPET_TOKEN_KEY"`

	KafkaBrokers  []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic    string   `env:"EXOPET_KAFKA_TOPIC" envDefault:"exopet.order.events"`
	KafkaDLQTopic string   `env:"EXOPET_KAFKA_DLQ_TOPIC" envDefault:"exopet.dlq"`

	OutboxPollInterval time.Duration `env:"EXOPET_OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	OutboxBatchSize    int           `env:"EXOPET_OUTBOX_BATCH_SIZE" envDefault:"100"`
	OutboxMaxAttempts  int           `env:"EXOPET_OUTBOX_MAX_ATTEMPTS" envDefault:"3"`

	IdempotencyTTL             time.Duration `env:"EXOPET_IDEMPOTENCY_TTL" envDefault:"24h"`
	IdempotencyCleanupInterval time.Duration `env:"EXOPET_IDEMPOTENCY_CLEANUP_INTERVAL" envDefault:"10m"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load загружает .env (если файл есть) и разбирает окружение.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}
	return Parse()
}

// Parse разбирает конфигурацию только из переменных окружения.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.SequenceDriver = strings.ToLower(strings.TrimSpace(c.SequenceDriver))
	c.GatewayEnvironment = strings.ToLower(strings.TrimSpace(c.GatewayEnvironment))
	c.FrontendURL = strings.TrimRight(strings.TrimSpace(c.FrontendURL), "/")

	brokers := c.KafkaBrokers[:0]
	for _, b := range c.KafkaBrokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	c.KafkaBrokers = brokers
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("EXOPET_POSTGRES_DSN is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.StorageDriver))
	}

	switch c.SequenceDriver {
	case SequenceDriverAuto, StorageDriverMemory:
	case StorageDriverPostgres:
		if c.StorageDriver != StorageDriverPostgres {
			errs = append(errs, errors.New("postgres sequence requires postgres storage"))
		}
	case SequenceDriverRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("EXOPET_REDIS_ADDR is required for redis sequence"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sequence driver %q", c.SequenceDriver))
	}

	if c.FreeShippingThreshold < 0 || c.ShippingFee < 0 {
		errs = append(errs, errors.New("shipping fee and free shipping threshold must be non-negative"))
	}
	if _, err := c.Pricing(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	switch c.GatewayEnvironment {
	case GatewayIntegration, GatewayMock:
	case GatewayProduction:
		if c.CommerceCode == "" || c.APIKey == "" {
			errs = append(errs, errors.New("TRANSBANK_COMMERCE_CODE and TRANSBANK_API_KEY are required in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown gateway environment %q", c.GatewayEnvironment))
	}
	if c.GatewayTimeout <= 0 {
		errs = append(errs, errors.New("EXOPET_GATEWAY_TIMEOUT must be positive"))
	}
	if c.GatewayRetries < 0 {
		errs = append(errs, errors.New("EXOPET_GATEWAY_RETRIES must be non-negative"))
	}

	if _, err := c.TokenKeyBytes(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// EffectiveSequenceDriver раскрывает auto в драйвер хранилища.
func (c Config) EffectiveSequenceDriver() string {
	if c.SequenceDriver == "" || c.SequenceDriver == SequenceDriverAuto {
		return c.StorageDriver
	}
	return c.SequenceDriver
}

// Pricing собирает политику цен из настроек.
func (c Config) Pricing() (domain.PricingPolicy, error) {
	rate, err := decimal.Parse(strings.TrimSpace(c.TaxRate))
	if err != nil {
		return domain.PricingPolicy{}, fmt.Errorf("EXOPET_TAX_RATE: %w", err)
	}
	if rate.IsNeg() || rate.Cmp(decimal.One) > 0 {
		return domain.PricingPolicy{}, fmt.Errorf("EXOPET_TAX_RATE must be within [0, 1], got %s", rate)
	}
	return domain.PricingPolicy{
		FreeShippingThreshold: c.FreeShippingThreshold,
		ShippingFee:           c.ShippingFee,
		TaxRate:               rate,
	}, nil
}

// Location возвращает часовой пояс для суточного счётчика номеров заказов.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.OrderTimezone)
	if err != nil {
		return nil, fmt.Errorf("EXOPET_ORDER_TIMEZONE: %w", err)
	}
	return loc, nil
}

// ReturnURL — адрес возврата покупателя после оплаты.
func (c Config) ReturnURL() string {
	return c.FrontendURL + returnPath
}

// TokenKeyBytes декодирует ключ токенов. Пустой ключ возвращает nil.
func (c Config) TokenKeyBytes() ([]byte, error) {
	raw := strings.TrimSpace(c.TokenKey)
	if raw == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("EXOPET_TOKEN_KEY must be hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("EXOPET_TOKEN_KEY must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// KafkaEnabled сообщает, что брокеры заданы.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
