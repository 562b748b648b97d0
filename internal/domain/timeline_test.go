package domain

import (
	"errors"
	"testing"
	"time"
)

func TestTimelineEventNormalize(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	santiago := time.FixedZone("CLT", -3*3600)

	got, err := TimelineEvent{OrderID: "o-1", Type: EventOrderPlaced}.Normalize(now)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !got.Occurred.Equal(now) {
		t.Fatalf("expected zero time replaced with now, got %v", got.Occurred)
	}

	local := time.Date(2026, 10, 18, 9, 0, 0, 0, santiago)
	got, err = TimelineEvent{OrderID: "o-1", Type: EventOrderCancelled, Occurred: local}.Normalize(now)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Occurred.Location() != time.UTC || !got.Occurred.Equal(local) {
		t.Fatalf("expected same instant in UTC, got %v", got.Occurred)
	}

	if _, err := (TimelineEvent{Type: EventOrderPlaced}).Normalize(now); !errors.Is(err, ErrOrderIDRequired) {
		t.Fatalf("expected ErrOrderIDRequired, got %v", err)
	}
	_, err = TimelineEvent{OrderID: "o-1"}.Normalize(now)
	if KindOf(err) != KindValidation {
		t.Fatalf("expected validation error for empty type, got %v", err)
	}
}
