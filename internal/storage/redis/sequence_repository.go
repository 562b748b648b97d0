package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

const (
	// KeySequence — ключ суточного счётчика номеров заказов.
	KeySequence = "order_seq:%s"
	// TTLSequence — счётчик живёт двое суток, чтобы пережить смену дня в любом часовом поясе.
	TTLSequence = 48 * time.Hour

	opTimeout = 2 * time.Second
)

// NewClient создаёт клиента Redis с короткими таймаутами.
func NewClient(addr string) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:         addr,
		DialTimeout:  opTimeout,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	})
}

// SequenceRepository выдаёт номера через атомарный INCR.
type SequenceRepository struct {
	client goredis.UniversalClient
}

// NewSequenceRepository создаёт Redis-реализацию SequenceRepository.
func NewSequenceRepository(client goredis.UniversalClient) *SequenceRepository {
	return &SequenceRepository{client: client}
}

// Next увеличивает счётчик дня и продлевает его срок жизни в одной транзакции.
func (r *SequenceRepository) Next(ctx context.Context, day string) (int64, error) {
	if r == nil || r.client == nil {
		return 0, errors.New("redis client is not initialized")
	}
	key := fmt.Sprintf(KeySequence, day)

	var incr *goredis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, TTLSequence)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment order sequence %s: %w", day, err)
	}
	return incr.Val(), nil
}

// Ping проверяет доступность Redis для readiness.
func (r *SequenceRepository) Ping(ctx context.Context) error {
	if r == nil || r.client == nil {
		return errors.New("redis client is not initialized")
	}
	return r.client.Ping(ctx).Err()
}

var _ domain.SequenceRepository = (*SequenceRepository)(nil)
