package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

// sequenceRepositoryInMemory — суточные счётчики номеров заказов в пределах процесса.
type sequenceRepositoryInMemory struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewSequenceRepository создаёт in-memory счётчик.
func NewSequenceRepository() domain.SequenceRepository {
	return &sequenceRepositoryInMemory{counters: make(map[string]int64)}
}

func (r *sequenceRepositoryInMemory) Next(_ context.Context, day string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counters[day]++
	return r.counters[day], nil
}

var _ domain.SequenceRepository = (*sequenceRepositoryInMemory)(nil)
