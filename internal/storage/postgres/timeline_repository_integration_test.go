package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	orderRepo := NewOrderRepository(store)
	timelineRepo := NewTimelineRepository(store)

	createdAt := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)
	order := sampleOrder("timeline-order", "EXO2410180001", "user-timeline", createdAt)
	require.NoError(t, orderRepo.Create(context.Background(), order))

	// Нулевое время подставляется репозиторием.
	require.NoError(t, timelineRepo.Append(domain.TimelineEvent{
		OrderID: order.ID,
		Type:    domain.EventOrderPlaced,
		Reason:  "created",
	}))

	explicit := createdAt.Add(-10 * time.Second)
	require.NoError(t, timelineRepo.Append(domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     domain.EventOrderPaymentApproved,
		Reason:   "paid",
		Occurred: explicit,
	}))

	events, err := timelineRepo.List(order.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, domain.EventOrderPaymentApproved, events[0].Type)
	require.True(t, events[0].Occurred.Equal(explicit))
	require.Equal(t, domain.EventOrderPlaced, events[1].Type)
}

func TestTimelineRepository_PostgresKeepsHistoryOfDeletedOrder(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	orderRepo := NewOrderRepository(store)
	timelineRepo := NewTimelineRepository(store)
	ctx := context.Background()

	order := sampleOrder("compensated", "EXO2410180002", "", time.Now().UTC())
	require.NoError(t, orderRepo.Create(ctx, order))
	require.NoError(t, timelineRepo.Append(domain.TimelineEvent{
		OrderID: order.ID,
		Type:    domain.EventOrderPaymentInitiationFailed,
		Reason:  "gateway down",
	}))
	require.NoError(t, orderRepo.Delete(ctx, order.ID))

	events, err := timelineRepo.List(order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)

	empty, err := timelineRepo.List("missing-order")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestTimelineRepository_PostgresRejectsInvalidEvents(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewTimelineRepository(store)

	require.ErrorIs(t, repo.Append(domain.TimelineEvent{Type: domain.EventOrderPlaced}), domain.ErrOrderIDRequired)
	require.Equal(t, domain.KindValidation, domain.KindOf(repo.Append(domain.TimelineEvent{OrderID: "o-1"})))

	_, err := repo.List("")
	require.ErrorIs(t, err, domain.ErrOrderIDRequired)
}
