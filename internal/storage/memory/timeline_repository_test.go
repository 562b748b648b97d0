package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

func TestTimelineRepository_KeepsChronologicalOrder(t *testing.T) {
	repo := NewTimelineRepository()
	base := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

	events := []domain.TimelineEvent{
		{OrderID: "o-1", Type: domain.EventOrderPlaced, Occurred: base},
		{OrderID: "o-1", Type: domain.EventOrderStatusChanged, Reason: "shipped", Occurred: base.Add(2 * time.Minute)},
		{OrderID: "o-1", Type: domain.EventOrderPaymentApproved, Occurred: base.Add(time.Minute)},
		// То же время, что у OrderPlaced: остаётся после него.
		{OrderID: "o-1", Type: domain.EventOrderStockShortage, Occurred: base},
		{OrderID: "o-2", Type: domain.EventOrderPlaced, Occurred: base},
	}
	for _, e := range events {
		if err := repo.Append(e); err != nil {
			t.Fatalf("append %s: %v", e.Type, err)
		}
	}

	got, err := repo.List("o-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{
		domain.EventOrderPlaced,
		domain.EventOrderStockShortage,
		domain.EventOrderPaymentApproved,
		domain.EventOrderStatusChanged,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i, typ := range want {
		if got[i].Type != typ {
			t.Fatalf("event %d: expected %s, got %s", i, typ, got[i].Type)
		}
	}

	// Возвращается копия.
	got[0].Reason = "mutated"
	again, _ := repo.List("o-1")
	if again[0].Reason == "mutated" {
		t.Fatal("list must not expose internal storage")
	}
}

func TestTimelineRepository_Validation(t *testing.T) {
	repo := NewTimelineRepository()

	if err := repo.Append(domain.TimelineEvent{Type: domain.EventOrderPlaced}); !errors.Is(err, domain.ErrOrderIDRequired) {
		t.Fatalf("expected ErrOrderIDRequired, got %v", err)
	}
	if err := repo.Append(domain.TimelineEvent{OrderID: "o-1"}); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := repo.List(""); !errors.Is(err, domain.ErrOrderIDRequired) {
		t.Fatalf("expected ErrOrderIDRequired, got %v", err)
	}

	empty, err := repo.List("unknown")
	if err != nil {
		t.Fatalf("list unknown: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil history, got %#v", empty)
	}

	if err := repo.Append(domain.TimelineEvent{OrderID: "o-1", Type: domain.EventOrderPlaced}); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, _ := repo.List("o-1")
	if got[0].Occurred.IsZero() {
		t.Fatal("expected occurred time to be filled")
	}
}
