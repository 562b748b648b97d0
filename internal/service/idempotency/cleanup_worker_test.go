package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
	"github.com/vladislavdragonenkov/exopet/internal/metrics"
	"github.com/vladislavdragonenkov/exopet/internal/storage/memory"
)

func isolatedMetrics() CleanupOption {
	return WithCleanupMetrics(metrics.NewCleanupMetricsWithRegisterer(prometheus.NewRegistry()))
}

func TestCleanupWorker_RemovesOnlyExpiredKeys(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()

	for i, ttl := range []time.Duration{-3 * time.Hour, -2 * time.Hour, -time.Minute} {
		key := []string{"checkout-a", "checkout-b", "checkout-c"}[i]
		if _, err := repo.CreateProcessing(key, "cart", now.Add(ttl)); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
	}
	if _, err := repo.CreateProcessing("checkout-live", "cart", now.Add(time.Hour)); err != nil {
		t.Fatalf("seed live: %v", err)
	}

	worker := NewCleanupWorker(repo, WithBatchSize(2), isolatedMetrics())
	deleted, err := worker.DeleteExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("expected 3 deleted, got %d", deleted)
	}
	if _, err := repo.Get("checkout-live"); err != nil {
		t.Fatalf("live key must survive cleanup: %v", err)
	}
}

func TestCleanupWorker_StopsOnPartialBatch(t *testing.T) {
	repo := &scriptedCleanupRepo{results: []int{10, 10, 4, 10}}

	deleted, err := NewCleanupWorker(repo, WithBatchSize(10), isolatedMetrics()).
		DeleteExpired(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if deleted != 24 || repo.callCount() != 3 {
		t.Fatalf("expected 24 deleted in 3 calls, got %d in %d", deleted, repo.callCount())
	}
}

func TestCleanupWorker_HonoursBatchLimit(t *testing.T) {
	repo := &scriptedCleanupRepo{results: []int{5, 5, 5, 5, 5}}

	deleted, err := NewCleanupWorker(repo, WithBatchSize(5), WithMaxBatches(2), isolatedMetrics()).
		DeleteExpired(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if deleted != 10 || repo.callCount() != 2 {
		t.Fatalf("expected 10 deleted in 2 calls, got %d in %d", deleted, repo.callCount())
	}
}

func TestCleanupWorker_ReturnsPartialTotalOnError(t *testing.T) {
	storeErr := errors.New("canceling statement due to statement timeout")
	repo := &scriptedCleanupRepo{results: []int{3}, errAt: 2, err: storeErr}

	deleted, err := NewCleanupWorker(repo, WithBatchSize(3), isolatedMetrics()).
		DeleteExpired(context.Background(), time.Now())
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
	if deleted != 3 {
		t.Fatalf("expected partial total 3, got %d", deleted)
	}
}

func TestCleanupWorker_ZeroCutoffUsesClock(t *testing.T) {
	fixed := time.Date(2026, 10, 18, 4, 0, 0, 0, time.UTC)
	repo := &scriptedCleanupRepo{}

	worker := NewCleanupWorker(repo, WithCleanupClock(func() time.Time { return fixed }), isolatedMetrics())
	if _, err := worker.DeleteExpired(context.Background(), time.Time{}); err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if !repo.lastBefore().Equal(fixed) {
		t.Fatalf("expected cutoff %v, got %v", fixed, repo.lastBefore())
	}
}

func TestCleanupWorker_RunSweepsUntilCancelled(t *testing.T) {
	repo := &scriptedCleanupRepo{}
	worker := NewCleanupWorker(repo, WithInterval(5*time.Millisecond), isolatedMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	deadline := time.Now().Add(time.Second)
	for repo.callCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup worker did not stop on context cancel")
	}
	if repo.callCount() < 2 {
		t.Fatalf("expected an immediate sweep and at least one tick, got %d calls", repo.callCount())
	}
}

func TestCleanupWorker_RunWithoutRepoReturns(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewCleanupWorker(nil, isolatedMetrics()).Run(context.Background())
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled cleanup worker must return immediately")
	}
}

// scriptedCleanupRepo отдаёт заранее заданные результаты DeleteExpired.
type scriptedCleanupRepo struct {
	mu      sync.Mutex
	results []int
	errAt   int
	err     error
	calls   int
	before  time.Time
}

func (s *scriptedCleanupRepo) DeleteExpired(before time.Time, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.before = before
	if s.err != nil && s.calls == s.errAt {
		return 0, s.err
	}
	if len(s.results) == 0 {
		return 0, nil
	}
	n := s.results[0]
	s.results = s.results[1:]
	return n, nil
}

func (s *scriptedCleanupRepo) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *scriptedCleanupRepo) lastBefore() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.before
}

func (s *scriptedCleanupRepo) CreateProcessing(string, string, time.Time) (domain.IdempotencyRecord, error) {
	return domain.IdempotencyRecord{}, errors.New("not used by cleanup")
}

func (s *scriptedCleanupRepo) Get(string) (domain.IdempotencyRecord, error) {
	return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
}

func (s *scriptedCleanupRepo) MarkDone(string, []byte, int) error   { return nil }
func (s *scriptedCleanupRepo) MarkFailed(string, []byte, int) error { return nil }

var _ domain.IdempotencyRepository = (*scriptedCleanupRepo)(nil)
