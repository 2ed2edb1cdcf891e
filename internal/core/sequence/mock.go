package sequence

import (
	"context"
)

// MockCounter is a test implementation of Counter.
// Use in unit tests to avoid database dependencies.
type MockCounter struct {
	NextFunc    func(ctx context.Context, key string, autoCreate bool) (int64, error)
	ReserveFunc func(ctx context.Context, key string, n int64, autoCreate bool) (int64, error)
	PreviewFunc func(ctx context.Context, key string) (int64, error)
}

// Next implements Counter.
func (m *MockCounter) Next(ctx context.Context, key string, autoCreate bool) (int64, error) {
	if m.NextFunc != nil {
		return m.NextFunc(ctx, key, autoCreate)
	}
	return 1, nil
}

// Reserve implements Counter.
func (m *MockCounter) Reserve(ctx context.Context, key string, n int64, autoCreate bool) (int64, error) {
	if m.ReserveFunc != nil {
		return m.ReserveFunc(ctx, key, n, autoCreate)
	}
	return 1, nil
}

// Preview implements Counter.
func (m *MockCounter) Preview(ctx context.Context, key string) (int64, error) {
	if m.PreviewFunc != nil {
		return m.PreviewFunc(ctx, key)
	}
	return 1, nil
}

// Ensure compile-time interface compliance.
var _ Counter = (*MockCounter)(nil)
