package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

var timelineColumns = []string{"order_id", "type", "reason", "occurred_at"}

// timelineRepository пишет историю заказа в timeline_events.
// Строки не ссылаются на orders, поэтому история удалённого при компенсации заказа сохраняется.
type timelineRepository struct {
	db *sql.DB
	qb sq.StatementBuilderType
}

func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB(), qb: store.qb}
}

func (r *timelineRepository) Append(event domain.TimelineEvent) error {
	event, err := event.Normalize(time.Now().UTC())
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(context.Background())
	defer cancel()

	query, args, err := r.qb.Insert("timeline_events").
		Columns(timelineColumns...).
		Values(event.OrderID, event.Type, event.Reason, event.Occurred).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert timeline event: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert timeline event for order %s: %w", event.OrderID, err)
	}
	return nil
}

// List отдаёт события по времени; при равном времени порядок вставки задаёт id.
func (r *timelineRepository) List(orderID string) ([]domain.TimelineEvent, error) {
	if orderID == "" {
		return nil, domain.ErrOrderIDRequired
	}

	ctx, cancel := withTimeout(context.Background())
	defer cancel()

	query, args, err := r.qb.Select(timelineColumns...).
		From("timeline_events").
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("occurred_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select timeline: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select timeline for order %s: %w", orderID, err)
	}
	defer rows.Close()

	var history []domain.TimelineEvent
	for rows.Next() {
		var e domain.TimelineEvent
		if err := rows.Scan(&e.OrderID, &e.Type, &e.Reason, &e.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline row: %w", err)
		}
		e.Occurred = e.Occurred.UTC()
		history = append(history, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read timeline rows: %w", err)
	}
	if history == nil {
		history = []domain.TimelineEvent{}
	}
	return history, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
