package labels

import (
	"context"

	"backoffice/internal/core/id"
	"backoffice/internal/core/sequence"
)

// Service is the label surface exposed to the HTTP layer.
type Service struct {
	pipeline  *Pipeline
	previewer sequence.Previewer
}

// NewService creates a label service.
func NewService(pipeline *Pipeline, previewer sequence.Previewer) *Service {
	return &Service{pipeline: pipeline, previewer: previewer}
}

// GenerateLabels allocates count serials under prefix for productID and
// returns the rendered sheet.
func (s *Service) GenerateLabels(ctx context.Context, productID id.ID, count int, prefix string) (*Result, error) {
	return s.pipeline.AllocateAndRender(ctx, Request{ProductID: productID, Prefix: prefix, Count: count})
}

// PreviewNextSerial renders the serial the next allocation would start at.
// It never mutates allocation state.
func (s *Service) PreviewNextSerial(ctx context.Context, prefix string) (string, error) {
	if err := sequence.KindBarcode.ValidatePrefix(prefix); err != nil {
		return "", err
	}
	next, err := s.previewer.PreviewNext(ctx, prefix)
	if err != nil {
		return "", err
	}
	return sequence.Format(sequence.KindBarcode, prefix, next)
}
