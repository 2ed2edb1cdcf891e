// Package payslip issues payslip IDs (MIS00012).
package payslip

import (
	"context"

	"backoffice/internal/core/sequence"
)

// Service issues and previews payslip IDs.
type Service struct {
	counter sequence.Counter
}

// NewService creates a payslip ID service.
func NewService(counter sequence.Counter) *Service {
	return &Service{counter: counter}
}

// NextID allocates the next payslip ID. The counter is created on first use.
func (s *Service) NextID(ctx context.Context) (string, error) {
	return sequence.NextIdentifier(ctx, s.counter, sequence.KindPayslip, sequence.PayslipPrefix, true)
}

// PreviewNextID returns the ID NextID would allocate now.
func (s *Service) PreviewNextID(ctx context.Context) (string, error) {
	return sequence.PreviewIdentifier(ctx, s.counter, sequence.KindPayslip, sequence.PayslipPrefix)
}
