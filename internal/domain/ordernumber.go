package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultOrderNumberPrefix — префикс человекочитаемого номера заказа.
const DefaultOrderNumberPrefix = "EXO"

// SequenceDay возвращает ключ суточной последовательности (YYMMDD).
func SequenceDay(t time.Time) string {
	return t.Format("060102")
}

// FormatOrderNumber собирает номер вида PREFIX + YYMMDD + порядковый номер из 4 цифр.
func FormatOrderNumber(prefix, day string, seq int64) string {
	return fmt.Sprintf("%s%s%04d", prefix, day, seq)
}

// ParseOrderNumber разбирает номер заказа на день и порядковый номер.
func ParseOrderNumber(prefix, number string) (day string, seq int64, err error) {
	rest, ok := strings.CutPrefix(number, prefix)
	if !ok || len(rest) < 10 {
		return "", 0, fmt.Errorf("%w: malformed order number %q", ErrValidation, number)
	}
	day = rest[:6]
	if _, err := time.Parse("060102", day); err != nil {
		return "", 0, fmt.Errorf("%w: malformed order number date %q", ErrValidation, number)
	}
	if _, err := fmt.Sscanf(rest[6:], "%d", &seq); err != nil || seq <= 0 {
		return "", 0, fmt.Errorf("%w: malformed order number sequence %q", ErrValidation, number)
	}
	return day, seq, nil
}
