package domain

import (
	"testing"
	"time"
)

func TestOutboxMessagePrepare(t *testing.T) {
	now := time.Date(2026, 10, 18, 8, 30, 0, 0, time.UTC)
	newID := func() string { return "generated" }

	got, err := OutboxMessage{AggregateID: "o-1", EventType: EventOrderPlaced}.Prepare(newID, now)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if got.ID != "generated" || got.AggregateType != AggregateTypeOrder || !got.CreatedAt.Equal(now) || string(got.Payload) != "{}" {
		t.Fatalf("defaults not applied: %+v", got)
	}

	kept, err := OutboxMessage{ID: "fixed", AggregateID: "o-1", EventType: EventOrderCancelled, Payload: []byte(`{"a":1}`)}.Prepare(newID, now)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if kept.ID != "fixed" || string(kept.Payload) != `{"a":1}` {
		t.Fatalf("explicit fields overwritten: %+v", kept)
	}

	for name, msg := range map[string]OutboxMessage{
		"no aggregate": {EventType: EventOrderPlaced},
		"no event":     {AggregateID: "o-1"},
	} {
		if _, err := msg.Prepare(newID, now); KindOf(err) != KindValidation {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestPullLimit(t *testing.T) {
	if PullLimit(0) != DefaultOutboxPullLimit || PullLimit(-3) != DefaultOutboxPullLimit {
		t.Fatal("non-positive limit must fall back to default")
	}
	if PullLimit(7) != 7 {
		t.Fatal("positive limit must be kept")
	}
}
