package ordernumber

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/exopet/internal/domain"
)

// Generator выдаёт номера вида PREFIX + YYMMDD + порядковый номер дня.
type Generator struct {
	sequences domain.SequenceRepository
	prefix    string
	location  *time.Location
	now       func() time.Time
}

// Option настраивает Generator.
type Option func(*Generator)

// WithPrefix меняет префикс номера.
func WithPrefix(prefix string) Option {
	return func(g *Generator) {
		if prefix != "" {
			g.prefix = prefix
		}
	}
}

// WithLocation задаёт часовой пояс, в котором определяется текущий день.
func WithLocation(loc *time.Location) Option {
	return func(g *Generator) {
		if loc != nil {
			g.location = loc
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGenerator создаёт генератор поверх атомарного суточного счётчика.
func NewGenerator(sequences domain.SequenceRepository, opts ...Option) *Generator {
	g := &Generator{
		sequences: sequences,
		prefix:    domain.DefaultOrderNumberPrefix,
		location:  time.UTC,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Next возвращает следующий номер заказа за текущий день.
func (g *Generator) Next(ctx context.Context) (string, error) {
	day := domain.SequenceDay(g.now().In(g.location))
	seq, err := g.sequences.Next(ctx, day)
	if err != nil {
		return "", fmt.Errorf("next order sequence: %w", err)
	}
	return domain.FormatOrderNumber(g.prefix, day, seq), nil
}

// Prefix возвращает используемый префикс.
func (g *Generator) Prefix() string {
	return g.prefix
}
