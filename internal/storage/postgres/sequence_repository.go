package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

type sequenceRepository struct {
	db *sql.DB
}

// NewSequenceRepository создаёт суточный счётчик номеров заказов в PostgreSQL.
func NewSequenceRepository(store *Store) domain.SequenceRepository {
	return &sequenceRepository{db: store.DB()}
}

// Next атомарно увеличивает счётчик дня через upsert.
func (r *sequenceRepository) Next(ctx context.Context, day string) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var value int64
	if err := r.db.QueryRowContext(ctx, `
		INSERT INTO order_sequences (day, value)
		VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET value = order_sequences.value + 1
		RETURNING value
	`, day).Scan(&value); err != nil {
		return 0, fmt.Errorf("next order sequence: %w", err)
	}
	return value, nil
}

var _ domain.SequenceRepository = (*sequenceRepository)(nil)
