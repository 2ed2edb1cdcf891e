// Package employee issues employee business IDs such as FE007.
package employee

import (
	"context"

	"backoffice/internal/core/sequence"
	"backoffice/pkg/logger"
)

// Service issues and previews employee IDs.
type Service struct {
	counter sequence.Counter
	seeder  sequence.Seeder
}

// NewService creates an employee ID service.
func NewService(counter sequence.Counter, seeder sequence.Seeder) *Service {
	return &Service{counter: counter, seeder: seeder}
}

// NextID allocates the next ID for prefix. An unknown prefix is NotFound
// unless createPrefix is set, in which case its counter starts at 1.
func (s *Service) NextID(ctx context.Context, prefix string, createPrefix bool) (string, error) {
	return sequence.NextIdentifier(ctx, s.counter, sequence.KindEmployee, prefix, createPrefix)
}

// PreviewNextID returns the ID NextID would allocate now.
func (s *Service) PreviewNextID(ctx context.Context, prefix string) (string, error) {
	return sequence.PreviewIdentifier(ctx, s.counter, sequence.KindEmployee, prefix)
}

// LearnManualID records a manually entered ID so the counter never issues
// it again. The returned identifier carries the counter's next number, which
// may exceed the kind's width when the manual ID was the last one.
func (s *Service) LearnManualID(ctx context.Context, employeeID string) (sequence.Identifier, error) {
	ident, err := sequence.ParseManual(sequence.KindEmployee, employeeID)
	if err != nil {
		return sequence.Identifier{}, err
	}

	next, err := s.seeder.Seed(ctx, sequence.KindEmployee.Key(ident.Prefix), ident.Number+1)
	if err != nil {
		return sequence.Identifier{}, err
	}

	logger.Info(ctx, "employee counter learned manual id",
		"employee_id", employeeID, "prefix", ident.Prefix, "next_value", next)

	ident.Number = next
	return ident, nil
}
