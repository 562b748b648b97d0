package domain

import "time"

// Статусы записи outbox.
const (
	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
	OutboxStatusFailed  = "failed"
)

// DefaultOutboxPullLimit используется, когда PullPending вызван с limit <= 0.
const DefaultOutboxPullLimit = 100

// OutboxMessage — событие заказа, ожидающее публикации в брокер.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// Prepare проверяет обязательные поля и заполняет ID, CreatedAt и пустой payload.
func (m OutboxMessage) Prepare(newID func() string, now time.Time) (OutboxMessage, error) {
	if m.AggregateID == "" {
		return OutboxMessage{}, NewValidationError("aggregate_id", "outbox message needs an aggregate id")
	}
	if m.EventType == "" {
		return OutboxMessage{}, NewValidationError("event_type", "outbox message needs an event type")
	}
	if m.AggregateType == "" {
		m.AggregateType = AggregateTypeOrder
	}
	if m.Payload == nil {
		m.Payload = []byte("{}")
	}
	if m.ID == "" {
		m.ID = newID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

// OutboxStats — размер backlog и возраст самого старого неотправленного события.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// PullLimit нормализует размер пачки для PullPending.
func PullLimit(limit int) int {
	if limit <= 0 {
		return DefaultOutboxPullLimit
	}
	return limit
}
