package domain

import (
	"testing"
	"time"
)

func TestFormatOrderNumber(t *testing.T) {
	day := SequenceDay(time.Date(2024, time.October, 18, 23, 59, 0, 0, time.UTC))
	if day != "241018" {
		t.Fatalf("day = %q", day)
	}

	if got := FormatOrderNumber("EXO", day, 7); got != "EXO2410180007" {
		t.Fatalf("FormatOrderNumber = %q", got)
	}
	if got := FormatOrderNumber("EXO", day, 12345); got != "EXO24101812345" {
		t.Fatalf("wide sequence = %q", got)
	}
}

func TestParseOrderNumber(t *testing.T) {
	day, seq, err := ParseOrderNumber("EXO", "EXO2410180042")
	if err != nil {
		t.Fatalf("ParseOrderNumber: %v", err)
	}
	if day != "241018" || seq != 42 {
		t.Fatalf("got day=%q seq=%d", day, seq)
	}

	for _, bad := range []string{"", "ABC2410180001", "EXO241018", "EXO2413400001", "EXO241018abcd"} {
		if _, _, err := ParseOrderNumber("EXO", bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
