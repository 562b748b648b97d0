package ordernumber

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
	"github.com/vladislavdragonenkov/exopet/internal/storage/memory"
)

type failingSequence struct{}

func (failingSequence) Next(context.Context, string) (int64, error) {
	return 0, errors.New("sequence down")
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGenerator_FormatAndDailyReset(t *testing.T) {
	clock := time.Date(2024, 10, 18, 15, 0, 0, 0, time.UTC)
	current := clock
	gen := NewGenerator(memory.NewSequenceRepository(), WithClock(func() time.Time { return current }))
	ctx := context.Background()

	first, err := gen.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	second, _ := gen.Next(ctx)
	if first != "EXO2410180001" || second != "EXO2410180002" {
		t.Fatalf("unexpected numbers %q %q", first, second)
	}

	current = clock.Add(24 * time.Hour)
	next, _ := gen.Next(ctx)
	if next != "EXO2410190001" {
		t.Fatalf("sequence must restart per day, got %q", next)
	}
}

func TestGenerator_UsesConfiguredLocation(t *testing.T) {
	santiago := time.FixedZone("CLT", -3*60*60)
	// 01:00 UTC 19 октября в Сантьяго ещё 18 октября.
	clock := time.Date(2024, 10, 19, 1, 0, 0, 0, time.UTC)
	gen := NewGenerator(memory.NewSequenceRepository(),
		WithClock(fixedClock(clock)),
		WithLocation(santiago),
		WithPrefix("PET"),
	)

	number, err := gen.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if number != "PET2410180001" {
		t.Fatalf("number = %q", number)
	}
	if gen.Prefix() != "PET" {
		t.Fatalf("prefix = %q", gen.Prefix())
	}
}

func TestGenerator_ConcurrentNumbersAreUnique(t *testing.T) {
	gen := NewGenerator(memory.NewSequenceRepository(), WithClock(fixedClock(time.Date(2024, 10, 18, 0, 0, 0, 0, time.UTC))))

	const n = 100
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			number, err := gen.Next(context.Background())
			if err != nil {
				t.Errorf("next: %v", err)
				return
			}
			mu.Lock()
			seen[number] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("expected %d distinct numbers, got %d", n, len(seen))
	}
	for number := range seen {
		if !strings.HasPrefix(number, "EXO241018") {
			t.Fatalf("unexpected number %q", number)
		}
		if _, _, err := domain.ParseOrderNumber("EXO", number); err != nil {
			t.Fatalf("parse %q: %v", number, err)
		}
	}
}

func TestGenerator_SequenceError(t *testing.T) {
	gen := NewGenerator(failingSequence{})
	if _, err := gen.Next(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
