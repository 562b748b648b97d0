package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
	"github.com/vladislavdragonenkov/exopet/internal/metrics"
)

func orderEvent(id, orderID, eventType string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       []byte(`{"order_id":"` + orderID + `"}`),
		CreatedAt:     time.Now().UTC().Add(-time.Second),
	}
}

func newTestWorker(repo domain.OutboxRepository, pub domain.OutboxPublisher, opts ...Option) *Worker {
	base := []Option{
		WithRetryBaseDelay(0),
		WithMetrics(metrics.NewOutboxMetricsWithRegisterer(prometheus.NewRegistry())),
	}
	return NewWorker(repo, pub, append(base, opts...)...)
}

func TestWorker_DeliversBatchInOrder(t *testing.T) {
	t.Parallel()

	repo := newFakeOutbox(
		orderEvent("e1", "order-1", domain.EventOrderPlaced),
		orderEvent("e2", "order-1", domain.EventOrderPaymentApproved),
		orderEvent("e3", "order-2", domain.EventOrderPlaced),
	)
	pub := &fakePublisher{}

	worker := newTestWorker(repo, pub, WithBatchSize(2))

	require.Equal(t, 2, worker.ProcessOnce(context.Background()))
	require.Equal(t, []string{"e1", "e2"}, pub.ids())
	require.Equal(t, []string{"e1", "e2"}, repo.sent)

	require.Equal(t, 1, worker.ProcessOnce(context.Background()))
	require.Equal(t, 0, worker.ProcessOnce(context.Background()))
	require.Empty(t, repo.failed)
}

func TestWorker_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	repo := newFakeOutbox(orderEvent("e1", "order-3", domain.EventOrderStatusChanged))
	pub := &fakePublisher{script: []error{errors.New("leader not available"), errors.New("leader not available")}}

	require.Equal(t, 1, newTestWorker(repo, pub, WithMaxAttempts(3)).ProcessOnce(context.Background()))
	require.Equal(t, 3, pub.calls())
	require.Equal(t, []string{"e1"}, repo.sent)
	require.Empty(t, repo.failed)
}

func TestWorker_GivesUpAndSendsDeadLetter(t *testing.T) {
	t.Parallel()

	repo := newFakeOutbox(orderEvent("e9", "order-9", domain.EventOrderCancelled))
	pub := &fakePublisher{fail: errors.New("broker unreachable")}
	dlq := &fakePublisher{}
	failedAt := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	worker := newTestWorker(repo, pub,
		WithMaxAttempts(2),
		WithDLQPublisher(dlq),
		WithClock(func() time.Time { return failedAt }),
	)

	require.Zero(t, worker.ProcessOnce(context.Background()))
	require.Equal(t, 2, pub.calls())
	require.Equal(t, []string{"e9"}, repo.failed)
	require.Empty(t, repo.sent)
	require.Equal(t, 1, dlq.calls())

	letter := dlq.last()
	require.Equal(t, "order-9", letter.AggregateID)
	require.Equal(t, domain.EventOrderCancelled, letter.EventType)

	var decoded deadLetter
	require.NoError(t, json.Unmarshal(letter.Payload, &decoded))
	require.Equal(t, "e9", decoded.OutboxID)
	require.Contains(t, decoded.PublishError, "broker unreachable")
	require.JSONEq(t, `{"order_id":"order-9"}`, string(decoded.Payload))
	require.True(t, decoded.FailedAt.Equal(failedAt))
}

func TestWorker_DeadLetterWrapsInvalidPayload(t *testing.T) {
	t.Parallel()

	msg := orderEvent("e5", "order-5", domain.EventOrderPlaced)
	msg.Payload = []byte("not json")
	repo := newFakeOutbox(msg)
	dlq := &fakePublisher{}

	newTestWorker(repo, &fakePublisher{fail: errors.New("down")}, WithMaxAttempts(1), WithDLQPublisher(dlq)).
		ProcessOnce(context.Background())

	var decoded deadLetter
	require.NoError(t, json.Unmarshal(dlq.last().Payload, &decoded))
	require.JSONEq(t, `{}`, string(decoded.Payload))
}

func TestWorker_ShutdownKeepsEventPending(t *testing.T) {
	t.Parallel()

	repo := newFakeOutbox(orderEvent("e4", "order-4", domain.EventOrderPlaced))
	pub := &fakePublisher{fail: errors.New("broker down")}

	worker := newTestWorker(repo, pub, WithRetryBaseDelay(time.Hour), WithMaxAttempts(3))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Zero(t, worker.ProcessOnce(ctx))

	require.Equal(t, 1, pub.calls())
	require.Empty(t, repo.failed)
	require.Empty(t, repo.sent)
}

func TestWorker_PullErrorIsSwallowed(t *testing.T) {
	t.Parallel()

	repo := newFakeOutbox()
	repo.pullErr = errors.New("connection reset")

	require.Zero(t, newTestWorker(repo, &fakePublisher{}).ProcessOnce(context.Background()))
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	repo := newFakeOutbox(orderEvent("e1", "order-1", domain.EventOrderPlaced))
	pub := &fakePublisher{}
	worker := newTestWorker(repo, pub, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	require.Eventually(t, func() bool { return pub.calls() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestWorker_RunWithoutPublisherReturns(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewWorker(newFakeOutbox(), nil).Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled worker must return immediately")
	}
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	require.Zero(t, backoff(0, 3))
	require.Equal(t, 50*time.Millisecond, backoff(50*time.Millisecond, 1))
	require.Equal(t, 200*time.Millisecond, backoff(50*time.Millisecond, 3))
	require.Equal(t, maxRetryDelay, backoff(time.Second, 64))
}

// fakeOutbox — outbox в памяти с учётом переходов статуса.
type fakeOutbox struct {
	mu      sync.Mutex
	queue   []domain.OutboxMessage
	sent    []string
	failed  []string
	pullErr error
}

func newFakeOutbox(msgs ...domain.OutboxMessage) *fakeOutbox {
	return &fakeOutbox{queue: msgs}
}

func (f *fakeOutbox) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, msg)
	return msg, nil
}

func (f *fakeOutbox) PullPending(limit int) ([]domain.OutboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	n := min(domain.PullLimit(limit), len(f.queue))
	return append([]domain.OutboxMessage(nil), f.queue[:n]...), nil
}

func (f *fakeOutbox) Stats() (domain.OutboxStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return domain.OutboxStats{}, nil
	}
	return domain.OutboxStats{PendingCount: len(f.queue), OldestPendingAt: f.queue[0].CreatedAt}, nil
}

func (f *fakeOutbox) MarkSent(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, id)
	f.remove(id)
	return nil
}

func (f *fakeOutbox) MarkFailed(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, id)
	f.remove(id)
	return nil
}

func (f *fakeOutbox) remove(id string) {
	for i, msg := range f.queue {
		if msg.ID == id {
			f.queue = append(f.queue[:i], f.queue[i+1:]...)
			return
		}
	}
}

type fakePublisher struct {
	mu        sync.Mutex
	fail      error
	script    []error
	published []domain.OutboxMessage
}

func (p *fakePublisher) Publish(_ context.Context, msg domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, msg)
	if len(p.script) > 0 {
		err := p.script[0]
		p.script = p.script[1:]
		return err
	}
	return p.fail
}

func (p *fakePublisher) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func (p *fakePublisher) last() domain.OutboxMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published[len(p.published)-1]
}

func (p *fakePublisher) ids() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.published))
	for _, msg := range p.published {
		ids = append(ids, msg.ID)
	}
	return ids
}

var (
	_ domain.OutboxRepository = (*fakeOutbox)(nil)
	_ domain.OutboxPublisher  = (*fakePublisher)(nil)
)
