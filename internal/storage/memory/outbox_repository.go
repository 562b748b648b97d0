package memory

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

type outboxEntry struct {
	msg      domain.OutboxMessage
	status   string
	attempts int
}

// OutboxRepository — transactional outbox в памяти процесса.
// Конкретный тип нужен тестам сервиса заказов ради AllPending и Attempts.
type OutboxRepository struct {
	mu      sync.RWMutex
	entries map[string]*outboxEntry
	now     func() time.Time
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		entries: make(map[string]*outboxEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *OutboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	msg, err := msg.Prepare(uuid.NewString, r.now())
	if err != nil {
		return domain.OutboxMessage{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[msg.ID] = &outboxEntry{msg: msg, status: domain.OutboxStatusPending}
	return msg, nil
}

// PullPending отдаёт самые старые pending-сообщения; статус не меняется до MarkSent/MarkFailed.
func (r *OutboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	backlog := r.backlog()
	if limit = domain.PullLimit(limit); len(backlog) > limit {
		backlog = backlog[:limit]
	}
	return backlog, nil
}

func (r *OutboxRepository) Stats() (domain.OutboxStats, error) {
	backlog := r.backlog()
	if len(backlog) == 0 {
		return domain.OutboxStats{}, nil
	}
	return domain.OutboxStats{PendingCount: len(backlog), OldestPendingAt: backlog[0].CreatedAt}, nil
}

func (r *OutboxRepository) MarkSent(id string) error {
	return r.transition(id, domain.OutboxStatusSent)
}

func (r *OutboxRepository) MarkFailed(id string) error {
	return r.transition(id, domain.OutboxStatusFailed)
}

// AllPending возвращает весь backlog без ограничения размера.
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	return r.backlog()
}

// Attempts — число попыток доставки сообщения id.
func (r *OutboxRepository) Attempts(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[id]; ok {
		return e.attempts
	}
	return 0
}

func (r *OutboxRepository) backlog() []domain.OutboxMessage {
	r.mu.RLock()
	out := make([]domain.OutboxMessage, 0, len(r.entries))
	for _, e := range r.entries {
		if e.status == domain.OutboxStatusPending {
			out = append(out, e.msg)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.OutboxMessage) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (r *OutboxRepository) transition(id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("outbox message %s not found: %w", id, domain.ErrOutboxPublish)
	}
	e.status = status
	e.attempts++
	return nil
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
