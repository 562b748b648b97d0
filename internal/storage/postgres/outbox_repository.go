package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

var outboxColumns = []string{"id", "aggregate_type", "aggregate_id", "event_type", "payload", "created_at"}

// outboxRepository хранит события заказов в outbox_messages до публикации в Kafka.
type outboxRepository struct {
	db *sql.DB
	qb sq.StatementBuilderType
}

func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{db: store.DB(), qb: store.qb}
}

func (r *outboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	now := time.Now().UTC()
	msg, err := msg.Prepare(uuid.NewString, now)
	if err != nil {
		return domain.OutboxMessage{}, err
	}

	ctx, cancel := withTimeout(context.Background())
	defer cancel()

	query, args, err := r.qb.Insert("outbox_messages").
		SetMap(map[string]any{
			"id":             msg.ID,
			"aggregate_type": msg.AggregateType,
			"aggregate_id":   msg.AggregateID,
			"event_type":     msg.EventType,
			"payload":        msg.Payload,
			"status":         domain.OutboxStatusPending,
			"attempt_count":  0,
			"created_at":     msg.CreatedAt,
			"updated_at":     now,
		}).
		ToSql()
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("build insert outbox message: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return domain.OutboxMessage{}, domain.NewValidationError("id", "outbox message already exists")
		}
		return domain.OutboxMessage{}, fmt.Errorf("insert outbox message for %s %s: %w", msg.EventType, msg.AggregateID, err)
	}
	return msg, nil
}

func (r *outboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := withTimeout(context.Background())
	defer cancel()

	limit = domain.PullLimit(limit)
	query, args, err := r.qb.Select(outboxColumns...).
		From("outbox_messages").
		Where(sq.Eq{"status": domain.OutboxStatusPending}).
		OrderBy("created_at ASC", "id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select pending outbox: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select pending outbox: %w", err)
	}
	defer rows.Close()

	batch := make([]domain.OutboxMessage, 0, limit)
	for rows.Next() {
		var m domain.OutboxMessage
		if err := rows.Scan(&m.ID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.Payload, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		batch = append(batch, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read outbox rows: %w", err)
	}
	return batch, nil
}

func (r *outboxRepository) Stats() (domain.OutboxStats, error) {
	ctx, cancel := withTimeout(context.Background())
	defer cancel()

	query, args, err := r.qb.Select("COUNT(*)", "MIN(created_at)").
		From("outbox_messages").
		Where(sq.Eq{"status": domain.OutboxStatusPending}).
		ToSql()
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("build outbox stats: %w", err)
	}

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&stats.PendingCount, &oldest); err != nil {
		return domain.OutboxStats{}, fmt.Errorf("select outbox stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

func (r *outboxRepository) MarkSent(id string) error {
	return r.transition(id, domain.OutboxStatusSent)
}

func (r *outboxRepository) MarkFailed(id string) error {
	return r.transition(id, domain.OutboxStatusFailed)
}

// transition фиксирует исход попытки доставки и увеличивает attempt_count.
func (r *outboxRepository) transition(id, status string) error {
	ctx, cancel := withTimeout(context.Background())
	defer cancel()

	query, args, err := r.qb.Update("outbox_messages").
		SetMap(map[string]any{
			"status":        status,
			"attempt_count": sq.Expr("attempt_count + 1"),
			"updated_at":    time.Now().UTC(),
		}).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build outbox transition: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set outbox message %s to %s: %w", id, status, err)
	}
	if err := expectAffected(res, domain.ErrOutboxPublish); err != nil {
		return fmt.Errorf("outbox message %s not found: %w", id, err)
	}
	return nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
