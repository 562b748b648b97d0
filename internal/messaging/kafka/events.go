package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "exopet.order.events"
	TopicDeadLetterQueue = "exopet.dlq" // сообщения, которые не удалось опубликовать после всех попыток
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEventEnvelope — формат сообщения о событии заказа в топике.
type OrderEventEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewOrderEventEnvelope оборачивает outbox-сообщение для публикации.
func NewOrderEventEnvelope(msg domain.OutboxMessage, publishedAt time.Time) OrderEventEnvelope {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return OrderEventEnvelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		OccurredAt:    msg.CreatedAt.UTC(),
		PublishedAt:   publishedAt.UTC(),
	}
}

// PartitionKey — ключ партиционирования: события одного заказа попадают в одну партицию.
func PartitionKey(msg domain.OutboxMessage) string {
	if msg.AggregateID != "" {
		return msg.AggregateID
	}
	return msg.ID
}
