// Package audit defines the allocation audit trail contract.
// Entries are informational: a failed audit write never fails the operation
// that produced it.
package audit

import "context"

// Action names an audited allocation event.
type Action string

const (
	ActionBatchCreated       Action = "batch_created"
	ActionBatchCompensated   Action = "batch_compensated"
	ActionCompensationFailed Action = "compensation_failed"
	ActionCounterSeeded      Action = "counter_seeded"
	ActionCounterCreated     Action = "counter_created"
	ActionCounterToggled     Action = "counter_toggled"
)

// Recorder persists audit entries. Subject is the prefix or counter key the
// event concerns.
type Recorder interface {
	Record(ctx context.Context, action Action, subject string, payload map[string]any) error
}

// Nop discards every entry.
type Nop struct{}

func (Nop) Record(context.Context, Action, string, map[string]any) error { return nil }

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}
